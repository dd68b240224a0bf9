package syncer

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rankradar/rankradar/internal/store"
	"github.com/rankradar/rankradar/internal/tracker"
	"github.com/rankradar/rankradar/pkg/appstore"
	"github.com/rankradar/rankradar/pkg/model"
)

// kvFake is an in-memory store.KV with per-key error injection.
type kvFake struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr map[string]error
	setErr error
}

func newKVFake() *kvFake {
	return &kvFake{data: make(map[string][]byte), getErr: make(map[string]error)}
}

func (kv *kvFake) Get(ctx context.Context, key string) ([]byte, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if err := kv.getErr[key]; err != nil {
		return nil, err
	}
	data, ok := kv.data[key]
	if !ok {
		return nil, store.ErrNoData
	}
	return append([]byte(nil), data...), nil
}

func (kv *kvFake) Set(ctx context.Context, key string, value []byte) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if kv.setErr != nil {
		return kv.setErr
	}
	kv.data[key] = append([]byte(nil), value...)
	return nil
}

func (kv *kvFake) Close() error { return nil }

// watchKV adds a change channel so Run sees a store.Watcher.
type watchKV struct {
	*kvFake
	ch chan struct{}
}

func (w *watchKV) Changes() <-chan struct{} { return w.ch }

var testResult = appstore.Result{
	CatalogID:   111,
	Name:        "My App",
	BundleID:    "com.example.myapp",
	Rating:      4.5,
	RatingCount: 120,
}

func newTestTracker(t *testing.T, kv store.KV) *tracker.Tracker {
	t.Helper()
	tr := tracker.New(kv, nil)
	if err := tr.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return tr
}

// remoteSnapshot builds an encoded collection holding a single app.
func remoteSnapshot(t *testing.T, catalogID int64, name string) []byte {
	t.Helper()
	now := time.Now().UTC()
	data, err := model.Encode(model.Collection{Apps: []model.TrackedApp{{
		ID:          model.NewID(),
		CatalogID:   catalogID,
		Name:        name,
		BundleID:    "com.example.remote",
		DateAdded:   now,
		LastUpdated: now,
	}}})
	if err != nil {
		t.Fatalf("encode remote snapshot: %v", err)
	}
	return data
}

func TestSyncBootstrapPushesLocal(t *testing.T) {
	local := newKVFake()
	remote := newKVFake()
	tr := newTestTracker(t, local)
	ctx := context.Background()

	if _, err := tr.AddApp(ctx, testResult); err != nil {
		t.Fatal(err)
	}

	s := New(tr, local, remote, nil, nil)
	if err := s.SyncOnce(ctx); err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}

	// An empty remote must not erase local data.
	if apps := tr.Apps().Apps; len(apps) != 1 || apps[0].CatalogID != 111 {
		t.Fatalf("local collection after sync = %+v", tr.Apps())
	}

	// And the remote converges to hold the local data.
	data, err := remote.Get(ctx, store.KeyTrackedApps)
	if err != nil {
		t.Fatalf("remote snapshot missing: %v", err)
	}
	c, err := model.Decode(data)
	if err != nil {
		t.Fatalf("remote snapshot undecodable: %v", err)
	}
	if len(c.Apps) != 1 || c.Apps[0].CatalogID != 111 {
		t.Errorf("remote collection = %+v", c)
	}

	if _, err := local.Get(ctx, store.KeyLastSync); err != nil {
		t.Errorf("last-sync not stamped: %v", err)
	}
	if s.LastSync().IsZero() {
		t.Error("LastSync is zero after a successful cycle")
	}
}

func TestSyncAdoptsRemoteOnFreshInstall(t *testing.T) {
	local := newKVFake()
	remote := newKVFake()
	ctx := context.Background()
	remote.data[store.KeyTrackedApps] = remoteSnapshot(t, 222, "Remote App")

	tr := newTestTracker(t, local)
	s := New(tr, local, remote, nil, nil)
	if err := s.SyncOnce(ctx); err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}

	apps := tr.Apps().Apps
	if len(apps) != 1 || apps[0].CatalogID != 222 {
		t.Fatalf("collection after fresh-install sync = %+v", apps)
	}
}

func TestSyncMergesBothSides(t *testing.T) {
	local := newKVFake()
	remote := newKVFake()
	ctx := context.Background()
	remote.data[store.KeyTrackedApps] = remoteSnapshot(t, 222, "Remote App")

	tr := newTestTracker(t, local)
	if _, err := tr.AddApp(ctx, testResult); err != nil {
		t.Fatal(err)
	}

	s := New(tr, local, remote, nil, nil)
	if err := s.SyncOnce(ctx); err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}

	got := map[int64]bool{}
	for _, app := range tr.Apps().Apps {
		got[app.CatalogID] = true
	}
	if !got[111] || !got[222] {
		t.Errorf("merged collection missing a side: %v", got)
	}
}

func TestSyncUndecodableRemoteIsNonFatal(t *testing.T) {
	local := newKVFake()
	remote := newKVFake()
	ctx := context.Background()
	remote.data[store.KeyTrackedApps] = []byte("{not json")

	tr := newTestTracker(t, local)
	if _, err := tr.AddApp(ctx, testResult); err != nil {
		t.Fatal(err)
	}

	s := New(tr, local, remote, nil, nil)
	if err := s.SyncOnce(ctx); err != nil {
		t.Fatalf("SyncOnce must not fail on undecodable remote: %v", err)
	}

	if apps := tr.Apps().Apps; len(apps) != 1 || apps[0].CatalogID != 111 {
		t.Fatalf("local collection disturbed: %+v", tr.Apps())
	}
	if _, lastErr := s.Status().Snapshot(); lastErr == "" {
		t.Error("undecodable remote not recorded in status")
	}

	// The damaged snapshot gets overwritten with a good one.
	data, err := remote.Get(ctx, store.KeyTrackedApps)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := model.Decode(data); err != nil {
		t.Errorf("remote snapshot still undecodable after cycle: %v", err)
	}
}

func TestSyncRemoteUnavailableIsNonFatal(t *testing.T) {
	local := newKVFake()
	remote := newKVFake()
	ctx := context.Background()
	remote.getErr[store.KeyTrackedApps] = context.DeadlineExceeded

	tr := newTestTracker(t, local)
	if _, err := tr.AddApp(ctx, testResult); err != nil {
		t.Fatal(err)
	}

	s := New(tr, local, remote, nil, nil)
	if err := s.SyncOnce(ctx); err != nil {
		t.Fatalf("SyncOnce must not fail on unreachable remote: %v", err)
	}
	if apps := tr.Apps().Apps; len(apps) != 1 {
		t.Fatalf("local collection disturbed: %+v", apps)
	}
}

func TestSyncRemoteCapacityMessage(t *testing.T) {
	local := newKVFake()
	remote := newKVFake()
	remote.setErr = store.ErrCapacity
	ctx := context.Background()

	tr := newTestTracker(t, local)
	if _, err := tr.AddApp(ctx, testResult); err != nil {
		t.Fatal(err)
	}

	s := New(tr, local, remote, nil, nil)
	if err := s.SyncOnce(ctx); err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}

	_, lastErr := s.Status().Snapshot()
	if !strings.Contains(lastErr, "full") {
		t.Errorf("capacity failure message = %q, want a store-is-full hint", lastErr)
	}
}

func TestSyncCountryAdoptedWhenLocalIsDefault(t *testing.T) {
	local := newKVFake()
	remote := newKVFake()
	ctx := context.Background()
	remote.data[store.KeyCountry] = []byte("de")

	tr := newTestTracker(t, local)
	s := New(tr, local, remote, nil, nil)
	if err := s.SyncOnce(ctx); err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}

	if got := tr.Country(); got != "de" {
		t.Errorf("country = %q, want remote value adopted", got)
	}
}

func TestSyncCountryPushedWhenLocalIsExplicit(t *testing.T) {
	local := newKVFake()
	remote := newKVFake()
	ctx := context.Background()
	remote.data[store.KeyCountry] = []byte("de")

	tr := newTestTracker(t, local)
	if err := tr.SetCountry(ctx, "fr"); err != nil {
		t.Fatal(err)
	}

	s := New(tr, local, remote, nil, nil)
	if err := s.SyncOnce(ctx); err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}

	if got := tr.Country(); got != "fr" {
		t.Errorf("country = %q, explicit choice must win", got)
	}
	data, err := remote.Get(ctx, store.KeyCountry)
	if err != nil || string(data) != "fr" {
		t.Errorf("remote country = %q, %v; want pushed %q", data, err, "fr")
	}
}

func TestRunSyncsOnRemoteChange(t *testing.T) {
	local := newKVFake()
	remote := &watchKV{kvFake: newKVFake(), ch: make(chan struct{}, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := newTestTracker(t, local)
	s := New(tr, local, remote, nil, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()

	// Simulate another device writing, then signalling.
	remote.kvFake.mu.Lock()
	remote.kvFake.data[store.KeyTrackedApps] = remoteSnapshot(t, 222, "Remote App")
	remote.kvFake.mu.Unlock()
	remote.ch <- struct{}{}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if apps := tr.Apps().Apps; len(apps) == 1 && apps[0].CatalogID == 222 {
			cancel()
			<-done
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("remote change never reconciled")
}
