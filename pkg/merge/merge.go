// Package merge reconciles two independently-mutated snapshots of the
// tracked-app collection into one. The merge is a pure function: it never
// mutates its inputs, never errors, is idempotent, and is commutative at
// the entity-union level. Scalar conflicts are resolved by comparing
// lastUpdated timestamps (last writer wins).
package merge

import (
	"sort"

	"github.com/rankradar/rankradar/pkg/model"
)

// Collections merges a local and a remote collection snapshot.
//
// Apps are unioned by catalog id. An app on both sides takes its scalar
// fields from whichever copy has the strictly greater lastUpdated (ties keep
// the local copy; the sides are observably equivalent), while its keyword
// and rating collections are always recomputed as unions of both sides.
// Output ordering is deterministic so that repeated merges are structurally
// identical.
func Collections(local, remote model.Collection) model.Collection {
	byCatalog := make(map[int64]model.TrackedApp)
	var order []int64

	for _, app := range local.Apps {
		if _, ok := byCatalog[app.CatalogID]; !ok {
			order = append(order, app.CatalogID)
		}
		byCatalog[app.CatalogID] = app.Clone()
	}
	for _, app := range remote.Apps {
		existing, ok := byCatalog[app.CatalogID]
		if !ok {
			order = append(order, app.CatalogID)
			byCatalog[app.CatalogID] = app.Clone()
			continue
		}
		byCatalog[app.CatalogID] = apps(existing, app.Clone())
	}

	if len(order) == 0 {
		return model.Collection{}
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	out := model.Collection{Apps: make([]model.TrackedApp, 0, len(order))}
	for _, id := range order {
		out.Apps = append(out.Apps, byCatalog[id])
	}
	return out
}

// apps merges two copies of the same app. Scalar-field selection and
// child-collection merging are independent steps: the base record supplies
// name, artwork, identifiers and so on, and both child collections are then
// replaced by recursive unions.
func apps(a, b model.TrackedApp) model.TrackedApp {
	base, other := a, b
	if b.LastUpdated.After(a.LastUpdated) {
		base, other = b, a
	}

	merged := base
	merged.Keywords = keywords(base.Keywords, other.Keywords)
	merged.Ratings = ratings(base.Ratings, other.Ratings)
	return merged
}

// keywords unions two keyword sets by local identifier. A keyword present on
// both sides keeps all non-collection fields from the base side's copy, but
// its ranking collection is recomputed as a union rather than inherited.
//
// Two keywords created independently on each side with the same
// (text, country) but different identifiers are deliberately kept as
// distinct entries; uniqueness by (text, country) is enforced at creation
// time only, not across sides.
func keywords(base, other []model.TrackedKeyword) []model.TrackedKeyword {
	byID := make(map[string]model.TrackedKeyword, len(base))
	var order []string

	for _, kw := range base {
		if _, ok := byID[kw.ID]; !ok {
			order = append(order, kw.ID)
		}
		byID[kw.ID] = kw
	}
	for _, kw := range other {
		existing, ok := byID[kw.ID]
		if !ok {
			order = append(order, kw.ID)
			byID[kw.ID] = kw
			continue
		}
		existing.Rankings = rankings(existing.Rankings, kw.Rankings)
		byID[kw.ID] = existing
	}

	if len(order) == 0 {
		return nil
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := byID[order[i]], byID[order[j]]
		if !a.DateAdded.Equal(b.DateAdded) {
			return a.DateAdded.Before(b.DateAdded)
		}
		return a.ID < b.ID
	})

	out := make([]model.TrackedKeyword, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

// rankings unions two observation sets by identifier. Identifiers are
// generated once and never reused, so the union is lossless and free of
// true duplicates. Result is sorted by timestamp ascending for storage;
// consumers re-sort descending at read time.
func rankings(a, b []model.KeywordRanking) []model.KeywordRanking {
	byID := make(map[string]model.KeywordRanking, len(a)+len(b))
	for _, r := range a {
		byID[r.ID] = r
	}
	for _, r := range b {
		if _, ok := byID[r.ID]; !ok {
			byID[r.ID] = r
		}
	}

	if len(byID) == 0 {
		return nil
	}
	out := make([]model.KeywordRanking, 0, len(byID))
	for _, r := range byID {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ratings follows the same union-by-identifier discipline as rankings.
func ratings(a, b []model.RatingSnapshot) []model.RatingSnapshot {
	byID := make(map[string]model.RatingSnapshot, len(a)+len(b))
	for _, r := range a {
		byID[r.ID] = r
	}
	for _, r := range b {
		if _, ok := byID[r.ID]; !ok {
			byID[r.ID] = r
		}
	}

	if len(byID) == 0 {
		return nil
	}
	out := make([]model.RatingSnapshot, 0, len(byID))
	for _, r := range byID {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
