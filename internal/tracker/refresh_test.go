package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rankradar/rankradar/pkg/appstore"
)

// fakeCatalog scripts rank lookups per keyword text.
type fakeCatalog struct {
	mu       sync.Mutex
	ranks    map[string]int   // keyword text -> rank; missing means not found
	failing  map[string]bool  // keyword text -> lookup error
	rating   *appstore.Result // nil means lookup-by-id fails
	attempts []string
	cancel   context.CancelFunc // when set, fired on the first rank call
}

func (f *fakeCatalog) Lookup(ctx context.Context, catalogID int64, country string) (*appstore.Result, error) {
	if f.rating == nil {
		return nil, &appstore.TransportError{Err: errors.New("unreachable")}
	}
	return f.rating, nil
}

func (f *fakeCatalog) Rank(ctx context.Context, term, country string, limit int, catalogID int64) (int, bool, error) {
	f.mu.Lock()
	f.attempts = append(f.attempts, term)
	cancel := f.cancel
	f.cancel = nil
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if f.failing[term] {
		return 0, false, &appstore.StatusError{StatusCode: 503}
	}
	rank, ok := f.ranks[term]
	return rank, ok, nil
}

func (f *fakeCatalog) attempted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.attempts...)
}

func setupRefresh(t *testing.T, catalog Catalog) (*Tracker, *Refresher) {
	t.Helper()
	tr, _ := newTestTracker(t)
	ctx := context.Background()
	if _, err := tr.AddApp(ctx, testResult); err != nil {
		t.Fatal(err)
	}
	r := NewRefresher(tr, catalog, &Status{}, time.Millisecond, 200, nil)
	return tr, r
}

func TestRefreshAppendsObservations(t *testing.T) {
	catalog := &fakeCatalog{
		ranks:  map[string]int{"fitness": 5, "workout": 12},
		rating: &appstore.Result{CatalogID: 111, Rating: 4.6, RatingCount: 130},
	}
	tr, r := setupRefresh(t, catalog)
	ctx := context.Background()

	for _, kw := range []string{"fitness", "workout", "unranked"} {
		if _, err := tr.AddKeyword(ctx, 111, kw); err != nil {
			t.Fatal(err)
		}
	}
	before := tr.Apps().Apps[0].LastUpdated

	if err := r.RefreshAll(ctx); err != nil {
		t.Fatalf("RefreshAll: %v", err)
	}

	app := tr.Apps().Apps[0]
	for _, kw := range app.Keywords {
		switch kw.Text {
		case "fitness":
			if kw.CurrentRank() != 5 {
				t.Errorf("fitness rank = %d, want 5", kw.CurrentRank())
			}
		case "workout":
			if kw.CurrentRank() != 12 {
				t.Errorf("workout rank = %d, want 12", kw.CurrentRank())
			}
		case "unranked":
			// Not found in top N: absence is not recorded.
			if len(kw.Rankings) != 0 {
				t.Errorf("unranked keyword has %d observations", len(kw.Rankings))
			}
		}
	}

	// One fresh rating snapshot beyond the one captured at add time.
	if got := len(app.Ratings); got != 2 {
		t.Errorf("rating snapshots = %d, want 2", got)
	}

	if !app.LastUpdated.After(before) {
		t.Error("lastUpdated not advanced after sweep")
	}
}

func TestRefreshSurvivesFailingPair(t *testing.T) {
	keywords := []string{"k0", "k1", "k2", "k3", "k4"}
	ranks := make(map[string]int)
	for i, kw := range keywords {
		ranks[kw] = i + 1
	}
	catalog := &fakeCatalog{
		ranks:   ranks,
		failing: map[string]bool{"k2": true},
		rating:  &appstore.Result{CatalogID: 111, Rating: 4.0, RatingCount: 10},
	}
	tr, r := setupRefresh(t, catalog)
	ctx := context.Background()

	if _, err := tr.AddKeywords(ctx, 111, keywords); err != nil {
		t.Fatal(err)
	}
	if err := r.RefreshAll(ctx); err != nil {
		t.Fatalf("RefreshAll: %v", err)
	}

	if got := len(catalog.attempted()); got != len(keywords) {
		t.Fatalf("attempted %d lookups, want %d (failure must not abort the batch)", got, len(keywords))
	}

	app := tr.Apps().Apps[0]
	for _, kw := range app.Keywords {
		want := 1
		if kw.Text == "k2" {
			want = 0
		}
		if got := len(kw.Rankings); got != want {
			t.Errorf("%s: %d observations, want %d", kw.Text, got, want)
		}
	}

	if _, lastErr := r.Status().Snapshot(); lastErr == "" {
		t.Error("failing pair not recorded in status")
	}
}

func TestRefreshRatingFailureDoesNotBlockRanks(t *testing.T) {
	catalog := &fakeCatalog{
		ranks: map[string]int{"fitness": 7},
		// rating nil: lookup-by-id fails with a transport error.
	}
	tr, r := setupRefresh(t, catalog)
	ctx := context.Background()

	if _, err := tr.AddKeyword(ctx, 111, "fitness"); err != nil {
		t.Fatal(err)
	}
	if err := r.RefreshAll(ctx); err != nil {
		t.Fatalf("RefreshAll: %v", err)
	}

	app := tr.Apps().Apps[0]
	if got := app.Keywords[0].CurrentRank(); got != 7 {
		t.Errorf("rank = %d, want 7 despite rating failure", got)
	}
	if got := len(app.Ratings); got != 1 {
		t.Errorf("rating snapshots = %d, want only the add-time one", got)
	}
}

func TestRefreshCancellationKeepsPartialProgress(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	catalog := &fakeCatalog{
		ranks:  map[string]int{"k0": 1, "k1": 2, "k2": 3},
		rating: &appstore.Result{CatalogID: 111, Rating: 4.0, RatingCount: 10},
		cancel: cancel, // cancels during the first rank lookup
	}
	tr, r := setupRefresh(t, catalog)

	if _, err := tr.AddKeywords(context.Background(), 111, []string{"k0", "k1", "k2"}); err != nil {
		t.Fatal(err)
	}

	err := r.RefreshAll(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RefreshAll: err = %v, want context.Canceled", err)
	}

	// No further lookups after cancellation, but the first observation
	// is kept, not rolled back.
	if got := len(catalog.attempted()); got != 1 {
		t.Errorf("attempted %d lookups after cancel, want 1", got)
	}
	total := 0
	for _, kw := range tr.Apps().Apps[0].Keywords {
		total += len(kw.Rankings)
	}
	if total != 1 {
		t.Errorf("kept %d observations, want 1", total)
	}
}

func TestRateLimiterSpacing(t *testing.T) {
	delay := 30 * time.Millisecond
	l := NewRateLimiter(delay)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	// First call is immediate; the next two are spaced.
	if elapsed := time.Since(start); elapsed < 2*delay {
		t.Errorf("3 calls took %v, want at least %v", elapsed, 2*delay)
	}
}

func TestRateLimiterCancel(t *testing.T) {
	l := NewRateLimiter(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	if err := l.Wait(ctx); err != nil {
		t.Fatalf("first Wait: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- l.Wait(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Wait after cancel: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after cancellation")
	}
}

var _ Catalog = (*fakeCatalog)(nil)
