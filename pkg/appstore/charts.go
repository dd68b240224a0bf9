package appstore

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mmcdole/gofeed"
)

// ChartEntry is one app from a top-charts feed, used to suggest candidates
// for tracking.
type ChartEntry struct {
	Position int    `json:"position"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Summary  string `json:"summary,omitempty"`
}

// TopCharts fetches the top-free-applications feed for a country, optionally
// scoped to a genre id (0 means all categories). Chart position is the
// 1-based index within the feed.
func (c *Client) TopCharts(ctx context.Context, country string, genre, limit int) ([]ChartEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	path := fmt.Sprintf("/%s/rss/topfreeapplications/limit=%d", country, limit)
	if genre > 0 {
		path += fmt.Sprintf("/genre=%d", genre)
	}
	path += "/xml"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create charts request: %w", err)
	}
	req.Header.Set("User-Agent", "rankradar/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	parsed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	entries := make([]ChartEntry, 0, len(parsed.Items))
	for i, item := range parsed.Items {
		entries = append(entries, ChartEntry{
			Position: i + 1,
			Name:     item.Title,
			URL:      item.Link,
			Summary:  truncate(item.Description, 200),
		})
	}
	return entries, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
