package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rankradar/rankradar/pkg/appstore"
	"github.com/rankradar/rankradar/pkg/model"
)

// Catalog is the slice of the app-store client the refresh driver needs.
// Tests substitute a fake.
type Catalog interface {
	Lookup(ctx context.Context, catalogID int64, country string) (*appstore.Result, error)
	Rank(ctx context.Context, term, country string, limit int, catalogID int64) (rank int, found bool, err error)
}

// Refresher sweeps every tracked (app, keyword) pair, appending one rank
// observation per positive sighting and one rating snapshot per app.
// Lookups are issued sequentially with a mandatory delay; a failing pair is
// reported and skipped, never aborting the batch. Cancellation stops
// further lookups promptly but keeps observations already appended.
type Refresher struct {
	tracker     *Tracker
	catalog     Catalog
	limiter     *RateLimiter
	searchLimit int
	status      *Status
	log         *slog.Logger
}

// NewRefresher creates a refresh driver.
func NewRefresher(t *Tracker, catalog Catalog, status *Status, delay time.Duration, searchLimit int, logger *slog.Logger) *Refresher {
	if searchLimit <= 0 {
		searchLimit = appstore.DefaultSearchLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	if status == nil {
		status = &Status{}
	}
	return &Refresher{
		tracker:     t,
		catalog:     catalog,
		limiter:     NewRateLimiter(delay),
		searchLimit: searchLimit,
		status:      status,
		log:         logger,
	}
}

// Status returns the shared busy/last-error state.
func (r *Refresher) Status() *Status { return r.status }

// RefreshAll runs one full sweep over the current collection snapshot.
// The only error it returns is the context's; everything else is recorded
// in the status and skipped.
func (r *Refresher) RefreshAll(ctx context.Context) error {
	r.status.Begin()
	defer r.status.End()

	snapshot := r.tracker.Apps()
	var touched []int64

	for _, app := range snapshot.Apps {
		if err := ctx.Err(); err != nil {
			break
		}

		appTouched := false
		if r.refreshRating(ctx, app.CatalogID, app.Name) {
			appTouched = true
		}

		for _, kw := range app.Keywords {
			if err := ctx.Err(); err != nil {
				break
			}
			if err := r.limiter.Wait(ctx); err != nil {
				break
			}
			if r.refreshRank(ctx, app.CatalogID, app.Name, kw) {
				appTouched = true
			}
		}

		if appTouched {
			touched = append(touched, app.CatalogID)
		}
	}

	if len(touched) > 0 {
		if err := r.tracker.TouchApps(ctx, touched); err != nil {
			r.status.SetError(fmt.Sprintf("persist refresh: %v", err))
		}
	}

	r.log.Info("refresh sweep done", "apps", len(snapshot.Apps), "touched", len(touched))
	return ctx.Err()
}

// refreshRating appends one rating snapshot for an app via lookup-by-id.
// Reports whether an observation was appended.
func (r *Refresher) refreshRating(ctx context.Context, catalogID int64, name string) bool {
	res, err := r.catalog.Lookup(ctx, catalogID, r.tracker.Country())
	if err != nil {
		r.status.SetError(fmt.Sprintf("lookup %s: %v", name, err))
		r.log.Warn("rating lookup failed", "app", name, "error", err)
		return false
	}
	if res.RatingCount == 0 {
		return false
	}
	if err := r.tracker.AppendRating(ctx, catalogID, res.Rating, res.RatingCount); err != nil {
		r.status.SetError(fmt.Sprintf("append rating %s: %v", name, err))
		return false
	}
	return true
}

// refreshRank appends one rank observation for a keyword when the app is
// sighted in the search window. "Not found in top N" appends nothing;
// absence is not recorded as a sentinel.
func (r *Refresher) refreshRank(ctx context.Context, catalogID int64, name string, kw model.TrackedKeyword) bool {
	rank, found, err := r.catalog.Rank(ctx, kw.Text, kw.Country, r.searchLimit, catalogID)
	if err != nil {
		r.status.SetError(fmt.Sprintf("rank %q for %s: %v", kw.Text, name, err))
		r.log.Warn("rank lookup failed", "keyword", kw.Text, "app", name, "error", err)
		return false
	}
	if !found {
		return false
	}
	if err := r.tracker.AppendRanking(ctx, catalogID, kw.ID, rank, 0); err != nil {
		r.status.SetError(fmt.Sprintf("append rank %q for %s: %v", kw.Text, name, err))
		return false
	}
	return true
}
