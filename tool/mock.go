package tool

import (
	"context"
	"sync"

	"github.com/frameiq/queryflow/core"
)

// MockSearcher is an in-memory SemanticSearcher for tests and examples. It
// returns the registered items in order and records the queries it saw.
type MockSearcher struct {
	mu      sync.Mutex
	items   []core.Item
	err     error
	queries []string
}

var _ SemanticSearcher = (*MockSearcher)(nil)

// NewMockSearcher registers the canned result set.
func NewMockSearcher(items ...core.Item) *MockSearcher {
	return &MockSearcher{items: items}
}

// Fail makes every subsequent Search return err.
func (m *MockSearcher) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Search implements SemanticSearcher.
func (m *MockSearcher) Search(_ context.Context, query string, limit int) ([]core.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, query)
	if m.err != nil {
		return nil, m.err
	}
	if limit <= 0 || limit > len(m.items) {
		limit = len(m.items)
	}
	out := make([]core.Item, limit)
	copy(out, m.items[:limit])
	return out, nil
}

// Calls reports how many searches were issued.
func (m *MockSearcher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queries)
}

// Queries returns the search inputs seen so far, oldest first.
func (m *MockSearcher) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.queries))
	copy(out, m.queries)
	return out
}

// MockMetadataClient is an in-memory MetadataClient keyed by id and title.
// Unknown queries return ErrNotFound. Individual keys can be made to fail
// to exercise partial-enrichment paths.
type MockMetadataClient struct {
	mu      sync.Mutex
	records map[string]*MetadataRecord
	failing map[string]error
	calls   int
}

var _ MetadataClient = (*MockMetadataClient)(nil)

// NewMockMetadataClient constructs an empty catalog.
func NewMockMetadataClient() *MockMetadataClient {
	return &MockMetadataClient{
		records: make(map[string]*MetadataRecord),
		failing: make(map[string]error),
	}
}

// Add registers a record under both its id and title.
func (m *MockMetadataClient) Add(rec MetadataRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := rec
	m.records[rec.ID] = &r
	if rec.Title != "" {
		m.records[rec.Title] = &r
	}
}

// FailKey makes lookups for the given id or title return err.
func (m *MockMetadataClient) FailKey(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing[key] = err
}

// Lookup implements MetadataClient.
func (m *MockMetadataClient) Lookup(_ context.Context, q MetadataQuery) (*MetadataRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	for _, key := range []string{q.ID, q.Title} {
		if key == "" {
			continue
		}
		if err, ok := m.failing[key]; ok {
			return nil, err
		}
		if rec, ok := m.records[key]; ok {
			r := *rec
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

// Calls reports how many lookups were issued.
func (m *MockMetadataClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
