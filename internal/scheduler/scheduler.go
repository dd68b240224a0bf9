package scheduler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rankradar/rankradar/internal/syncer"
	"github.com/rankradar/rankradar/internal/tracker"
)

// Scheduler runs periodic refresh sweeps and hands results to the sync
// orchestrator. Sync itself is event-driven (remote watcher, local saves);
// the scheduler only supplies the refresh cadence.
type Scheduler struct {
	refresher  *tracker.Refresher
	syncer     *syncer.Syncer
	refreshInt time.Duration
}

// New creates a new scheduler.
func New(r *tracker.Refresher, s *syncer.Syncer, refreshInt time.Duration) *Scheduler {
	if refreshInt == 0 {
		refreshInt = 6 * time.Hour
	}
	return &Scheduler{
		refresher:  r,
		syncer:     s,
		refreshInt: refreshInt,
	}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.refreshInt)
	defer ticker.Stop()

	// Run immediately on start.
	fmt.Fprintln(os.Stderr, "scheduler: initial refresh...")
	s.refreshAndSync(ctx)

	fmt.Fprintf(os.Stderr, "scheduler: running (refresh every %s)\n", s.refreshInt)

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "scheduler: stopped")
			return ctx.Err()
		case <-ticker.C:
			fmt.Fprintln(os.Stderr, "scheduler: refreshing...")
			s.refreshAndSync(ctx)
		}
	}
}

func (s *Scheduler) refreshAndSync(ctx context.Context) {
	if err := s.refresher.RefreshAll(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "  refresh interrupted: %v\n", err)
		return
	}
	if _, lastErr := s.refresher.Status().Snapshot(); lastErr != "" {
		fmt.Fprintf(os.Stderr, "  refresh warning: %s\n", lastErr)
	}
	s.syncer.Force()
}
