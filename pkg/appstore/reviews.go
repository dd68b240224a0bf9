package appstore

import (
	"context"
	"fmt"
	"strconv"
)

// Review is one customer review entry. The feed provides no trustworthy
// per-review date; entries are most-recent-first and that ordering is all
// callers may rely on.
type Review struct {
	ID      string `json:"id"`
	Author  string `json:"author"`
	Rating  int    `json:"rating"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	Version string `json:"version"`
}

// The reviews feed is RSS served as JSON: every field is wrapped in a
// {"label": ...} envelope.
type reviewsFeed struct {
	Feed struct {
		Entry []reviewEntry `json:"entry"`
	} `json:"feed"`
}

type reviewEntry struct {
	ID struct {
		Label string `json:"label"`
	} `json:"id"`
	Author struct {
		Name struct {
			Label string `json:"label"`
		} `json:"name"`
	} `json:"author"`
	Rating struct {
		Label string `json:"label"`
	} `json:"im:rating"`
	Title struct {
		Label string `json:"label"`
	} `json:"title"`
	Content struct {
		Label string `json:"label"`
	} `json:"content"`
	Version struct {
		Label string `json:"label"`
	} `json:"im:version"`
}

// Reviews fetches one page of the customer-reviews feed for an app.
func (c *Client) Reviews(ctx context.Context, catalogID int64, country string, page int) ([]Review, error) {
	if page < 1 {
		page = 1
	}
	path := fmt.Sprintf("/%s/rss/customerreviews/page=%d/id=%d/sortby=mostrecent/json",
		country, page, catalogID)

	var feed reviewsFeed
	if err := c.getJSON(ctx, path, &feed); err != nil {
		return nil, err
	}

	reviews := make([]Review, 0, len(feed.Feed.Entry))
	for _, e := range feed.Feed.Entry {
		// The first entry of page 1 is the app itself, not a review.
		if e.Rating.Label == "" {
			continue
		}
		rating, err := strconv.Atoi(e.Rating.Label)
		if err != nil || rating < 1 || rating > 5 {
			continue
		}
		reviews = append(reviews, Review{
			ID:      e.ID.Label,
			Author:  e.Author.Name.Label,
			Rating:  rating,
			Title:   e.Title.Label,
			Body:    e.Content.Label,
			Version: e.Version.Label,
		})
	}
	return reviews, nil
}
