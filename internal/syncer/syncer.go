// Package syncer reconciles the local tracked-app collection with the
// cross-device remote store. It decides when merges happen (remote change
// signal, explicit force, startup, local save), runs the merge engine, and
// persists the result to both stores. Remote failures degrade to warnings;
// the app stays fully usable with zero remote connectivity.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rankradar/rankradar/internal/store"
	"github.com/rankradar/rankradar/internal/tracker"
	"github.com/rankradar/rankradar/pkg/merge"
	"github.com/rankradar/rankradar/pkg/model"
)

// Syncer orchestrates sync cycles. At most one cycle runs at a time; a
// trigger arriving mid-cycle schedules another cycle rather than being
// dropped, so every local mutation is reconciled at least once.
type Syncer struct {
	tracker *tracker.Tracker
	local   store.KV
	remote  store.KV
	status  *tracker.Status
	log     *slog.Logger

	mu       sync.Mutex // serializes cycles
	force    chan struct{}
	lastSync time.Time
}

// New creates a syncer. The tracker's change callback is wired so that
// local saves schedule a cycle.
func New(t *tracker.Tracker, local, remote store.KV, status *tracker.Status, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	if status == nil {
		status = &tracker.Status{}
	}
	s := &Syncer{
		tracker: t,
		local:   local,
		remote:  remote,
		status:  status,
		log:     logger,
		force:   make(chan struct{}, 1),
	}
	t.OnChange(s.Force)
	return s
}

// Status returns the shared busy/last-error state.
func (s *Syncer) Status() *tracker.Status { return s.status }

// LastSync returns when the last successful cycle completed.
func (s *Syncer) LastSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

// Force schedules a sync cycle without blocking the caller. A pending
// trigger covers any number of calls.
func (s *Syncer) Force() {
	select {
	case s.force <- struct{}{}:
	default:
	}
}

// Run performs a startup sync and then serves triggers until the context
// is cancelled: forced syncs, and change notifications when the remote
// store supports watching.
func (s *Syncer) Run(ctx context.Context) error {
	var changes <-chan struct{}
	if w, ok := s.remote.(store.Watcher); ok {
		changes = w.Changes()
	}

	if err := s.SyncOnce(ctx); err != nil {
		s.log.Warn("startup sync", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.force:
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			s.log.Info("remote store changed")
		}
		if err := s.SyncOnce(ctx); err != nil {
			s.log.Warn("sync cycle", "error", err)
		}
	}
}

// SyncOnce runs a single merge-and-persist cycle. The returned error is
// only ever a local persistence or context failure; remote trouble is
// downgraded to a recorded warning.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.Begin()
	defer s.status.End()

	local := s.tracker.Apps()
	remote := s.readRemote(ctx)

	merged := merge.Collections(local, remote)

	// Install merges into the live collection, so a mutation that landed
	// after the snapshot above is kept; the next cycle reconciles it with
	// the remote side.
	final, err := s.tracker.Install(ctx, merged)
	if err != nil {
		s.status.SetError(fmt.Sprintf("sync: persist local: %v", err))
		return err
	}

	s.writeRemote(ctx, final)
	s.syncCountry(ctx)

	now := time.Now().UTC()
	if err := s.local.Set(ctx, store.KeyLastSync, []byte(now.Format(time.RFC3339))); err != nil {
		s.log.Warn("stamp last sync", "error", err)
	}
	s.lastSync = now
	return nil
}

// readRemote loads the remote snapshot. Any failure, read or decode, means
// "no remote data this cycle", never a fatal sync error.
func (s *Syncer) readRemote(ctx context.Context) model.Collection {
	data, err := s.remote.Get(ctx, store.KeyTrackedApps)
	if errors.Is(err, store.ErrNoData) {
		return model.Collection{}
	}
	if err != nil {
		s.status.SetError(fmt.Sprintf("sync: remote unavailable: %v", err))
		s.log.Warn("remote read failed, no remote data this cycle", "error", err)
		return model.Collection{}
	}

	c, err := model.Decode(data)
	if err != nil {
		s.status.SetError(fmt.Sprintf("sync: remote undecodable: %v", err))
		s.log.Warn("remote snapshot undecodable, no remote data this cycle", "error", err)
		return model.Collection{}
	}
	return c
}

// writeRemote pushes the merged snapshot so the remote converges even when
// only this device held some of the data. Capacity failures are surfaced
// distinctly from ordinary sync failures.
func (s *Syncer) writeRemote(ctx context.Context, c model.Collection) {
	data, err := model.Encode(c)
	if err != nil {
		s.status.SetError(fmt.Sprintf("sync: encode: %v", err))
		return
	}
	if err := s.remote.Set(ctx, store.KeyTrackedApps, data); err != nil {
		if errors.Is(err, store.ErrCapacity) {
			s.status.SetError("sync: remote store is full; remove apps or keywords to resume syncing")
			s.log.Warn("remote store quota exceeded", "bytes", len(data))
			return
		}
		s.status.SetError(fmt.Sprintf("sync: remote write: %v", err))
		s.log.Warn("remote write failed", "error", err)
	}
}

// syncCountry reconciles the selected-country key: adopt the remote value
// when we still have the default, otherwise push ours.
func (s *Syncer) syncCountry(ctx context.Context) {
	localCountry := s.tracker.Country()

	remoteData, err := s.remote.Get(ctx, store.KeyCountry)
	remoteCountry := ""
	if err == nil {
		remoteCountry = string(remoteData)
	}

	if remoteCountry != "" && localCountry == model.DefaultCountry && remoteCountry != localCountry {
		if err := s.tracker.SetCountry(ctx, remoteCountry); err != nil {
			s.log.Warn("adopt remote country", "error", err)
		}
		return
	}
	if remoteCountry != localCountry {
		if err := s.remote.Set(ctx, store.KeyCountry, []byte(localCountry)); err != nil {
			s.log.Warn("push country", "error", err)
		}
	}
}
