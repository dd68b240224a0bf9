// Package model defines the tracked-app collection: apps under observation,
// their keywords, and the append-only ranking and rating time series.
package model

import (
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Collection is a full snapshot of every tracked app. It is passed by value
// between the store, the merge engine and the refresh driver; functions that
// operate on it never mutate their input.
type Collection struct {
	Apps []TrackedApp `json:"apps"`
}

// TrackedApp is one app under observation.
type TrackedApp struct {
	ID         string `json:"id"`
	CatalogID  int64  `json:"catalog_id"`
	Name       string `json:"name"`
	BundleID   string `json:"bundle_id"`
	Seller     string `json:"seller"`
	ArtworkURL string `json:"artwork_url"`
	Category   string `json:"category"`

	DateAdded   time.Time `json:"date_added"`
	LastUpdated time.Time `json:"last_updated"`

	Keywords []TrackedKeyword `json:"keywords"`
	Ratings  []RatingSnapshot `json:"ratings"`
}

// TrackedKeyword is one (keyword text, country) pair tracked for an app.
// Popularity and Difficulty are stable labels assigned once at creation,
// never recomputed.
type TrackedKeyword struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Country    string    `json:"country"`
	DateAdded  time.Time `json:"date_added"`
	Popularity int       `json:"popularity"`
	Difficulty int       `json:"difficulty"`

	Rankings []KeywordRanking `json:"rankings"`
}

// KeywordRanking is one immutable rank observation. Rank is the 1-based
// position in search results; observations are only recorded for positive
// sightings, so Rank is always >= 1.
type KeywordRanking struct {
	ID          string    `json:"id"`
	Rank        int       `json:"rank"`
	Timestamp   time.Time `json:"timestamp"`
	Impressions int       `json:"impressions,omitempty"`
}

// RatingSnapshot is one immutable (average, count) observation.
type RatingSnapshot struct {
	ID        string    `json:"id"`
	Average   float64   `json:"average"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// NewID returns a fresh opaque identifier. Identifiers are generated once at
// entity creation and never reused or reassigned, which is what makes
// union-by-id a lossless merge.
func NewID() string {
	return ulid.Make().String()
}

// NormalizeKeyword case-folds and trims keyword text. Uniqueness checks and
// storage always operate on the normalized form.
func NormalizeKeyword(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// FindApp returns the index of the app with the given catalog id, or -1.
func (c Collection) FindApp(catalogID int64) int {
	for i := range c.Apps {
		if c.Apps[i].CatalogID == catalogID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the collection. Nil slices stay nil so that
// a clone is structurally identical to its source.
func (c Collection) Clone() Collection {
	if c.Apps == nil {
		return Collection{}
	}
	out := Collection{Apps: make([]TrackedApp, len(c.Apps))}
	for i := range c.Apps {
		out.Apps[i] = c.Apps[i].Clone()
	}
	return out
}

// Clone returns a deep copy of the app.
func (a TrackedApp) Clone() TrackedApp {
	out := a
	if a.Keywords != nil {
		out.Keywords = make([]TrackedKeyword, len(a.Keywords))
		for i := range a.Keywords {
			out.Keywords[i] = a.Keywords[i].Clone()
		}
	}
	out.Ratings = append([]RatingSnapshot(nil), a.Ratings...)
	return out
}

// Clone returns a deep copy of the keyword.
func (k TrackedKeyword) Clone() TrackedKeyword {
	out := k
	out.Rankings = append([]KeywordRanking(nil), k.Rankings...)
	return out
}

// FindKeyword returns the index of the keyword matching the normalized text
// and country, or -1.
func (a TrackedApp) FindKeyword(text, country string) int {
	text = NormalizeKeyword(text)
	for i := range a.Keywords {
		if a.Keywords[i].Text == text && a.Keywords[i].Country == country {
			return i
		}
	}
	return -1
}

// CurrentRank returns the rank of the most recent observation, or 0 if no
// observation exists. Storage order is not trusted; observations are
// re-sorted by timestamp at read time.
func (k TrackedKeyword) CurrentRank() int {
	recent := k.recentRanks(1)
	if len(recent) == 0 {
		return 0
	}
	return recent[0].Rank
}

// PreviousRank returns the rank of the second-most-recent observation, or 0.
func (k TrackedKeyword) PreviousRank() int {
	recent := k.recentRanks(2)
	if len(recent) < 2 {
		return 0
	}
	return recent[1].Rank
}

// RankChange returns previousRank - currentRank; positive means the app
// moved up. Zero when fewer than two observations exist.
func (k TrackedKeyword) RankChange() int {
	recent := k.recentRanks(2)
	if len(recent) < 2 {
		return 0
	}
	return recent[1].Rank - recent[0].Rank
}

func (k TrackedKeyword) recentRanks(n int) []KeywordRanking {
	sorted := append([]KeywordRanking(nil), k.Rankings...)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.After(sorted[j].Timestamp)
		}
		return sorted[i].ID > sorted[j].ID
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// LatestRating returns the most recent rating snapshot, or nil.
func (a TrackedApp) LatestRating() *RatingSnapshot {
	var latest *RatingSnapshot
	for i := range a.Ratings {
		if latest == nil || a.Ratings[i].Timestamp.After(latest.Timestamp) {
			latest = &a.Ratings[i]
		}
	}
	return latest
}

// Assumed monthly search volume per popularity bucket. The bucket
// boundaries are 0, 15, 30, 50, 70, 85, 95, 100.
var searchVolumeBuckets = []struct {
	maxPopularity int
	volume        float64
}{
	{15, 50},
	{30, 300},
	{50, 1500},
	{70, 5000},
	{85, 15000},
	{95, 40000},
	{100, 100000},
}

const (
	clickThroughRate = 0.42
	installRate      = 0.05
)

// EstimatedDownloads maps the keyword's popularity bucket to an assumed
// monthly search volume, applies the fixed click-through and install rates,
// and floors the result at 1. It is monotonically non-decreasing in
// popularity.
func (k TrackedKeyword) EstimatedDownloads() int {
	volume := searchVolumeBuckets[len(searchVolumeBuckets)-1].volume
	for _, b := range searchVolumeBuckets {
		if k.Popularity < b.maxPopularity {
			volume = b.volume
			break
		}
	}
	downloads := int(volume * clickThroughRate * installRate)
	if downloads < 1 {
		downloads = 1
	}
	return downloads
}
