// Package appstore is a thin client for the public app-store search, lookup
// and reviews endpoints.
package appstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultBaseURL = "https://itunes.apple.com"

// DefaultSearchLimit bounds how deep a rank lookup searches. Rank is only
// meaningful within the requested result window.
const DefaultSearchLimit = 200

// Result is one catalog entry from search or lookup, in externally-defined
// relevance order.
type Result struct {
	CatalogID   int64    `json:"trackId"`
	Name        string   `json:"trackName"`
	BundleID    string   `json:"bundleId"`
	Seller      string   `json:"sellerName"`
	Category    string   `json:"primaryGenreName"`
	ArtworkURL  string   `json:"artworkUrl100"`
	Rating      float64  `json:"averageUserRating"`
	RatingCount int      `json:"userRatingCount"`
	Price       float64  `json:"price"`
	Screenshots []string `json:"screenshotUrls"`
}

// Client calls the catalog endpoints. The zero value is not usable; use New.
type Client struct {
	baseURL string
	client  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the endpoint base URL. Used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// New creates a catalog client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchResponse struct {
	ResultCount int      `json:"resultCount"`
	Results     []Result `json:"results"`
}

// Search returns catalog entries matching a free-text term, in relevance
// order, limited to the requested window.
func (c *Client) Search(ctx context.Context, term, country string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	q := url.Values{
		"term":    {term},
		"country": {country},
		"entity":  {"software"},
		"limit":   {strconv.Itoa(limit)},
	}
	var resp searchResponse
	if err := c.getJSON(ctx, "/search?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Lookup returns the catalog entry for a catalog id, or ErrNotFound.
func (c *Client) Lookup(ctx context.Context, catalogID int64, country string) (*Result, error) {
	q := url.Values{
		"id":      {strconv.FormatInt(catalogID, 10)},
		"country": {country},
	}
	return c.lookup(ctx, q)
}

// LookupBundleID returns the catalog entry for a bundle id, or ErrNotFound.
func (c *Client) LookupBundleID(ctx context.Context, bundleID, country string) (*Result, error) {
	q := url.Values{
		"bundleId": {bundleID},
		"country":  {country},
	}
	return c.lookup(ctx, q)
}

func (c *Client) lookup(ctx context.Context, q url.Values) (*Result, error) {
	var resp searchResponse
	if err := c.getJSON(ctx, "/lookup?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, ErrNotFound
	}
	return &resp.Results[0], nil
}

// Rank returns the 1-based position of catalogID within the search results
// for a term, or found=false when the app is absent from the requested
// window. Absence is not an error.
func (c *Client) Rank(ctx context.Context, term, country string, limit int, catalogID int64) (rank int, found bool, err error) {
	results, err := c.Search(ctx, term, country, limit)
	if err != nil {
		return 0, false, err
	}
	for i, r := range results {
		if r.CatalogID == catalogID {
			return i + 1, true, nil
		}
	}
	return 0, false, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request %s: %w", path, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}
