// Package tracker owns the in-memory tracked-app collection. Every mutation
// from user actions or the refresh driver goes through one Tracker, which
// serializes writers, persists each change to the local store, and signals
// the sync orchestrator. External operations work on value snapshots; the
// collection is never locked across a network call.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rankradar/rankradar/internal/store"
	"github.com/rankradar/rankradar/pkg/appstore"
	"github.com/rankradar/rankradar/pkg/merge"
	"github.com/rankradar/rankradar/pkg/model"
)

var (
	ErrAppExists       = errors.New("app already tracked")
	ErrAppNotFound     = errors.New("app not tracked")
	ErrKeywordExists   = errors.New("keyword already tracked")
	ErrKeywordNotFound = errors.New("keyword not tracked")
)

// Tracker is the single owner of the tracked-app collection.
type Tracker struct {
	local store.KV
	log   *slog.Logger

	mu         sync.Mutex
	collection model.Collection
	country    string

	onChange func()
}

// New creates a tracker persisting into the given local store.
func New(local store.KV, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		local:   local,
		log:     logger,
		country: model.DefaultCountry,
	}
}

// OnChange registers a callback fired after every persisted local mutation.
// The sync orchestrator uses it to schedule a cycle.
func (t *Tracker) OnChange(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}

// Load reads the persisted collection and country from the local store.
// A missing or undecodable snapshot leaves the tracker empty; local-first
// operation must survive a damaged store.
func (t *Tracker) Load(ctx context.Context) error {
	data, err := t.local.Get(ctx, store.KeyTrackedApps)
	switch {
	case errors.Is(err, store.ErrNoData):
	case err != nil:
		return fmt.Errorf("load collection: %w", err)
	default:
		c, err := model.Decode(data)
		if err != nil {
			t.log.Warn("local snapshot undecodable, starting empty", "error", err)
		} else {
			t.mu.Lock()
			t.collection = c
			t.mu.Unlock()
		}
	}

	if data, err := t.local.Get(ctx, store.KeyCountry); err == nil && len(data) > 0 {
		t.mu.Lock()
		t.country = string(data)
		t.mu.Unlock()
	}
	return nil
}

// Apps returns a deep-copy snapshot of the collection.
func (t *Tracker) Apps() model.Collection {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.collection.Clone()
}

// Country returns the preferred country code.
func (t *Tracker) Country() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.country
}

// SetCountry stores the preferred country code.
func (t *Tracker) SetCountry(ctx context.Context, code string) error {
	t.mu.Lock()
	t.country = code
	t.mu.Unlock()

	if err := t.local.Set(ctx, store.KeyCountry, []byte(code)); err != nil {
		return err
	}
	t.notify()
	return nil
}

// AddApp starts tracking a catalog search result.
func (t *Tracker) AddApp(ctx context.Context, res appstore.Result) (model.TrackedApp, error) {
	now := time.Now().UTC()
	app := model.TrackedApp{
		ID:          model.NewID(),
		CatalogID:   res.CatalogID,
		Name:        res.Name,
		BundleID:    res.BundleID,
		Seller:      res.Seller,
		ArtworkURL:  res.ArtworkURL,
		Category:    res.Category,
		DateAdded:   now,
		LastUpdated: now,
	}
	if res.RatingCount > 0 {
		app.Ratings = append(app.Ratings, model.RatingSnapshot{
			ID:        model.NewID(),
			Average:   res.Rating,
			Count:     res.RatingCount,
			Timestamp: now,
		})
	}

	t.mu.Lock()
	if t.collection.FindApp(res.CatalogID) >= 0 {
		t.mu.Unlock()
		return model.TrackedApp{}, fmt.Errorf("catalog id %d: %w", res.CatalogID, ErrAppExists)
	}
	t.collection.Apps = append(t.collection.Apps, app)
	t.mu.Unlock()

	return app, t.persist(ctx)
}

// RemoveApp stops tracking an app, cascading to its keywords and snapshots.
func (t *Tracker) RemoveApp(ctx context.Context, catalogID int64) error {
	t.mu.Lock()
	i := t.collection.FindApp(catalogID)
	if i < 0 {
		t.mu.Unlock()
		return fmt.Errorf("catalog id %d: %w", catalogID, ErrAppNotFound)
	}
	t.collection.Apps = append(t.collection.Apps[:i], t.collection.Apps[i+1:]...)
	t.mu.Unlock()

	return t.persist(ctx)
}

// AddKeyword starts tracking a keyword for an app in the current country.
// Text is case-folded and trimmed before the uniqueness check.
func (t *Tracker) AddKeyword(ctx context.Context, catalogID int64, text string) (model.TrackedKeyword, error) {
	kws, err := t.AddKeywords(ctx, catalogID, []string{text})
	if err != nil {
		return model.TrackedKeyword{}, err
	}
	return kws[0], nil
}

// AddKeywords is the batch form of AddKeyword. Duplicates within the batch
// or against existing keywords fail the whole batch before anything is
// stored.
func (t *Tracker) AddKeywords(ctx context.Context, catalogID int64, texts []string) ([]model.TrackedKeyword, error) {
	country := t.Country()
	now := time.Now().UTC()

	added := make([]model.TrackedKeyword, 0, len(texts))
	seen := make(map[string]bool)
	for _, text := range texts {
		norm := model.NormalizeKeyword(text)
		if norm == "" {
			return nil, fmt.Errorf("empty keyword")
		}
		if seen[norm] {
			return nil, fmt.Errorf("keyword %q: %w", norm, ErrKeywordExists)
		}
		seen[norm] = true
		added = append(added, model.TrackedKeyword{
			ID:         model.NewID(),
			Text:       norm,
			Country:    country,
			DateAdded:  now,
			Popularity: model.PopularityScore(norm),
			Difficulty: model.DifficultyScore(norm),
		})
	}

	t.mu.Lock()
	i := t.collection.FindApp(catalogID)
	if i < 0 {
		t.mu.Unlock()
		return nil, fmt.Errorf("catalog id %d: %w", catalogID, ErrAppNotFound)
	}
	app := &t.collection.Apps[i]
	for _, kw := range added {
		if app.FindKeyword(kw.Text, country) >= 0 {
			t.mu.Unlock()
			return nil, fmt.Errorf("keyword %q (%s): %w", kw.Text, country, ErrKeywordExists)
		}
	}
	app.Keywords = append(app.Keywords, added...)
	app.LastUpdated = now
	t.mu.Unlock()

	return added, t.persist(ctx)
}

// RemoveKeyword stops tracking a (text, country) keyword for an app.
func (t *Tracker) RemoveKeyword(ctx context.Context, catalogID int64, text string) error {
	country := t.Country()

	t.mu.Lock()
	i := t.collection.FindApp(catalogID)
	if i < 0 {
		t.mu.Unlock()
		return fmt.Errorf("catalog id %d: %w", catalogID, ErrAppNotFound)
	}
	app := &t.collection.Apps[i]
	j := app.FindKeyword(text, country)
	if j < 0 {
		t.mu.Unlock()
		return fmt.Errorf("keyword %q (%s): %w", model.NormalizeKeyword(text), country, ErrKeywordNotFound)
	}
	app.Keywords = append(app.Keywords[:j], app.Keywords[j+1:]...)
	app.LastUpdated = time.Now().UTC()
	t.mu.Unlock()

	return t.persist(ctx)
}

// AppendRanking records one rank observation for a keyword. Observations are
// immutable once appended; lastUpdated is advanced separately, once per
// refresh sweep.
func (t *Tracker) AppendRanking(ctx context.Context, catalogID int64, keywordID string, rank, impressions int) error {
	obs := model.KeywordRanking{
		ID:          model.NewID(),
		Rank:        rank,
		Timestamp:   time.Now().UTC(),
		Impressions: impressions,
	}

	t.mu.Lock()
	i := t.collection.FindApp(catalogID)
	if i < 0 {
		t.mu.Unlock()
		return fmt.Errorf("catalog id %d: %w", catalogID, ErrAppNotFound)
	}
	app := &t.collection.Apps[i]
	found := false
	for j := range app.Keywords {
		if app.Keywords[j].ID == keywordID {
			app.Keywords[j].Rankings = append(app.Keywords[j].Rankings, obs)
			found = true
			break
		}
	}
	t.mu.Unlock()

	if !found {
		return fmt.Errorf("keyword %s: %w", keywordID, ErrKeywordNotFound)
	}
	return t.persist(ctx)
}

// AppendRating records one rating snapshot for an app.
func (t *Tracker) AppendRating(ctx context.Context, catalogID int64, average float64, count int) error {
	obs := model.RatingSnapshot{
		ID:        model.NewID(),
		Average:   average,
		Count:     count,
		Timestamp: time.Now().UTC(),
	}

	t.mu.Lock()
	i := t.collection.FindApp(catalogID)
	if i < 0 {
		t.mu.Unlock()
		return fmt.Errorf("catalog id %d: %w", catalogID, ErrAppNotFound)
	}
	t.collection.Apps[i].Ratings = append(t.collection.Apps[i].Ratings, obs)
	t.mu.Unlock()

	return t.persist(ctx)
}

// TouchApps advances lastUpdated once for each listed app. The refresh
// driver calls it after a full sweep.
func (t *Tracker) TouchApps(ctx context.Context, catalogIDs []int64) error {
	now := time.Now().UTC()

	t.mu.Lock()
	for _, id := range catalogIDs {
		if i := t.collection.FindApp(id); i >= 0 {
			t.collection.Apps[i].LastUpdated = now
		}
	}
	t.mu.Unlock()

	return t.persist(ctx)
}

// Install merges a reconciled collection into the live one and returns the
// result. Merging rather than replacing means a mutation that landed while
// a sync was in flight survives immediately instead of waiting for the next
// cycle to resurrect it from the local store.
func (t *Tracker) Install(ctx context.Context, merged model.Collection) (model.Collection, error) {
	t.mu.Lock()
	t.collection = merge.Collections(t.collection, merged)
	out := t.collection.Clone()
	t.mu.Unlock()

	if err := t.persistQuiet(ctx); err != nil {
		return out, err
	}
	return out, nil
}

// persist writes the collection to the local store and fires the change
// callback.
func (t *Tracker) persist(ctx context.Context) error {
	if err := t.persistQuiet(ctx); err != nil {
		return err
	}
	t.notify()
	return nil
}

// persistQuiet persists without signalling, so that installing a sync
// result does not immediately schedule another sync.
func (t *Tracker) persistQuiet(ctx context.Context) error {
	snapshot := t.Apps()
	data, err := model.Encode(snapshot)
	if err != nil {
		return err
	}
	if err := t.local.Set(ctx, store.KeyTrackedApps, data); err != nil {
		return fmt.Errorf("persist collection: %w", err)
	}
	return nil
}

func (t *Tracker) notify() {
	t.mu.Lock()
	fn := t.onChange
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}
