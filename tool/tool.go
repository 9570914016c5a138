// Package tool defines the adapter boundary to the external retrieval and
// metadata providers the agent nodes call into, plus the shared retry glue.
// Concrete HTTP clients live in the vector and tmdb subpackages; in-package
// mocks support tests and local development.
package tool

import (
	"context"
	"errors"

	"github.com/frameiq/queryflow/core"
)

// ErrNotFound reports that the metadata catalog has no record for the
// query. It is a terminal per-item outcome, not a transient failure, and is
// never retried.
var ErrNotFound = errors.New("media not found")

// SemanticSearcher is the vector-index boundary: free-text query in, ranked
// items out. Implementations must preserve the index's relevance order.
type SemanticSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]core.Item, error)
}

// MetadataQuery addresses one canonical record, by source id or by title
// (optionally narrowed by year).
type MetadataQuery struct {
	ID        string
	Title     string
	Year      string
	MediaType string // "movie" or "tv"; empty searches both
}

// MetadataRecord is the canonical catalog record for one media item.
type MetadataRecord struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	MediaType string `json:"media_type"`
	Year      string `json:"year,omitempty"`
	Overview  string `json:"overview,omitempty"`
	PosterURL string `json:"poster_url,omitempty"`
	Link      string `json:"link,omitempty"`
}

// MetadataClient is the structured-catalog boundary. Lookup returns
// ErrNotFound when no record matches; transient transport failures are
// reported as core.UpstreamError so callers can retry.
type MetadataClient interface {
	Lookup(ctx context.Context, q MetadataQuery) (*MetadataRecord, error)
}
