// Package vector implements the HTTP client for the semantic-search index.
// The index is an external collaborator; this adapter only shapes requests
// and classifies failures for the retry layer.
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/frameiq/queryflow/core"
	"github.com/frameiq/queryflow/tool"
)

// Options configure the vector index client.
type Options struct {
	// Timeout bounds each search call.
	Timeout time.Duration
	// HTTPClient overrides the transport, for tests.
	HTTPClient *http.Client
}

// Client calls the vector index's /search endpoint and maps ranked hits
// into core items, preserving the index's relevance order.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

var _ tool.SemanticSearcher = (*Client)(nil)

// NewClient constructs a client for the index at baseURL.
func NewClient(baseURL string, optFns ...func(o *Options)) *Client {
	opts := Options{
		Timeout:    5 * time.Second,
		HTTPClient: http.DefaultClient,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{baseURL: baseURL, http: opts.HTTPClient, timeout: opts.Timeout}
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type searchResponse struct {
	Results []searchHit `json:"results"`
}

type searchHit struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	MediaType string  `json:"media_type"`
	Year      string  `json:"year"`
	Score     float64 `json:"score"`
	Snippet   string  `json:"snippet"`
}

// Search implements tool.SemanticSearcher.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]core.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(searchRequest{Query: query, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, core.NewTimeoutError("vector.search", err)
		}
		return nil, core.NewUnavailableError("vector.search", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, core.NewUnavailableError("vector.search", fmt.Errorf("index returned %d", resp.StatusCode))
	default:
		return nil, fmt.Errorf("vector search rejected with status %d", resp.StatusCode)
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	items := make([]core.Item, 0, len(out.Results))
	for _, hit := range out.Results {
		items = append(items, core.Item{
			ID:        hit.ID,
			Title:     hit.Title,
			MediaType: hit.MediaType,
			Year:      hit.Year,
			Score:     hit.Score,
			Snippet:   hit.Snippet,
		})
	}
	return items, nil
}
