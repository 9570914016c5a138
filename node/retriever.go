package node

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/frameiq/queryflow/core"
	"github.com/frameiq/queryflow/logging"
	"github.com/frameiq/queryflow/model"
	"github.com/frameiq/queryflow/tool"
)

const phraseInstructions = `Rewrite the user's request as a short search
phrase for a media catalog index. Reply with the phrase only.`

// RetrieverOptions configure the retriever node.
type RetrieverOptions struct {
	// Limit caps the number of semantic-search results per invocation.
	Limit int
	// Model optionally supplies the fast tier used to phrase semantic
	// queries; nil sends the raw query to the index.
	Model  model.Model
	Retry  tool.RetryPolicy
	Logger logging.Logger
}

// Retriever resolves the query against the external indexes: explicitly
// named titles go to the structured metadata catalog, thematic queries go to
// the semantic index. Results merge into the state deduplicated by source
// id; the node always hands control back to the router.
type Retriever struct {
	searcher tool.SemanticSearcher
	metadata tool.MetadataClient
	fast     model.Model
	limit    int
	retry    tool.RetryPolicy
	logger   logging.Logger
}

var _ core.Node = (*Retriever)(nil)

// NewRetriever constructs a retriever over the two search tools.
func NewRetriever(searcher tool.SemanticSearcher, metadata tool.MetadataClient, optFns ...func(o *RetrieverOptions)) *Retriever {
	opts := RetrieverOptions{
		Limit:  5,
		Retry:  tool.DefaultRetryPolicy(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Retriever{
		searcher: searcher,
		metadata: metadata,
		fast:     opts.Model,
		limit:    opts.Limit,
		retry:    opts.Retry,
		logger:   opts.Logger,
	}
}

// Name implements core.Node.
func (r *Retriever) Name() core.NodeName { return core.NodeRetrieve }

// Execute implements core.Node.
func (r *Retriever) Execute(ctx context.Context, s core.State) (core.State, core.NodeName, error) {
	items, err := r.search(ctx, s.Query)
	if err != nil {
		return s, core.NodeRouter, fmt.Errorf("retrieval failed: %w", err)
	}
	r.logger.Debug("retrieval completed", "items", len(items))
	return s.MergeItems(items...), core.NodeRouter, nil
}

func (r *Retriever) search(ctx context.Context, query string) ([]core.Item, error) {
	if title, year, ok := explicitTitle(query); ok {
		return r.lookupTitle(ctx, title, year)
	}
	return r.semanticSearch(ctx, r.searchPhrase(ctx, query))
}

// searchPhrase asks the fast tier to compress the query into an index
// phrase. Phrasing is best-effort: any failure falls back to the raw query.
func (r *Retriever) searchPhrase(ctx context.Context, query string) string {
	if r.fast == nil {
		return query
	}
	resp, err := r.fast.Complete(ctx, model.Request{
		Instructions: phraseInstructions,
		Messages:     []model.Message{{Role: model.RoleUser, Text: query}},
		Temperature:  0,
		MaxTokens:    64,
	})
	if err != nil {
		r.logger.Debug("query phrasing failed; using raw query", "error", err)
		return query
	}
	phrase := resp.Text
	if i := strings.IndexByte(phrase, '\n'); i >= 0 {
		phrase = phrase[:i]
	}
	phrase = strings.Trim(strings.TrimSpace(phrase), `"`)
	if phrase == "" {
		return query
	}
	return phrase
}

func (r *Retriever) lookupTitle(ctx context.Context, title, year string) ([]core.Item, error) {
	var rec *tool.MetadataRecord
	start := time.Now()
	err := tool.Retry(ctx, r.retry, func(ctx context.Context) error {
		var lerr error
		rec, lerr = r.metadata.Lookup(ctx, tool.MetadataQuery{Title: title, Year: year})
		return lerr
	})
	if err != nil {
		// An unknown title is not a run failure; the reasoner can still
		// answer from the conversation alone.
		if errors.Is(err, tool.ErrNotFound) {
			r.logger.Debug("title not in catalog", "title", title)
			return nil, nil
		}
		logging.LogToolCall(r.logger, "metadata.lookup", time.Since(start), err)
		return nil, err
	}
	logging.LogToolCall(r.logger, "metadata.lookup", time.Since(start), nil)
	return []core.Item{{
		ID:        rec.ID,
		Title:     rec.Title,
		MediaType: rec.MediaType,
		Year:      rec.Year,
		Snippet:   rec.Overview,
	}}, nil
}

func (r *Retriever) semanticSearch(ctx context.Context, query string) ([]core.Item, error) {
	var items []core.Item
	start := time.Now()
	err := tool.Retry(ctx, r.retry, func(ctx context.Context) error {
		var serr error
		items, serr = r.searcher.Search(ctx, query, r.limit)
		return serr
	})
	if err != nil {
		logging.LogToolCall(r.logger, "semantic.search", time.Since(start), err)
		return nil, err
	}
	logging.LogToolCall(r.logger, "semantic.search", time.Since(start), nil)
	return items, nil
}

var (
	quotedTitleRe = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	titleYearRe   = regexp.MustCompile(`(?i)^\s*(.+?)\s*\(((?:19|20)\d{2})\)\s*$`)
	yearRe        = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)
)

// explicitTitle detects queries naming one concrete work: a quoted title, or
// a "Title (1999)" shape. Thematic phrasing ("movies like ...") falls
// through to the semantic index.
func explicitTitle(query string) (title, year string, ok bool) {
	if m := quotedTitleRe.FindStringSubmatch(query); m != nil {
		title = m[1]
		if title == "" {
			title = m[2]
		}
		if y := yearRe.FindString(query); y != "" {
			year = y
		}
		return strings.TrimSpace(title), year, true
	}
	if m := titleYearRe.FindStringSubmatch(query); m != nil {
		return strings.TrimSpace(m[1]), m[2], true
	}
	return "", "", false
}
