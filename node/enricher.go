package node

import (
	"context"
	"errors"

	"github.com/frameiq/queryflow/core"
	"github.com/frameiq/queryflow/logging"
	"github.com/frameiq/queryflow/tool"
)

// EnricherOptions configure the enricher node.
type EnricherOptions struct {
	Retry  tool.RetryPolicy
	Logger logging.Logger
}

// Enricher attaches poster and descriptive metadata to each item the answer
// references. Enrichment is best-effort per item: a lookup that fails after
// retries, or finds nothing, records an absent enrichment and the run
// proceeds. The node never fails a run on its own.
type Enricher struct {
	metadata tool.MetadataClient
	retry    tool.RetryPolicy
	logger   logging.Logger
}

var _ core.Node = (*Enricher)(nil)

// NewEnricher constructs an enricher over the metadata catalog.
func NewEnricher(metadata tool.MetadataClient, optFns ...func(o *EnricherOptions)) *Enricher {
	opts := EnricherOptions{
		Retry:  tool.DefaultRetryPolicy(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Enricher{metadata: metadata, retry: opts.Retry, logger: opts.Logger}
}

// Name implements core.Node.
func (e *Enricher) Name() core.NodeName { return core.NodeEnrich }

// Execute implements core.Node.
func (e *Enricher) Execute(ctx context.Context, s core.State) (core.State, core.NodeName, error) {
	for _, item := range s.Unenriched() {
		if err := ctx.Err(); err != nil {
			return s, core.NodeTerminate, err
		}

		enrichment, err := e.lookup(ctx, item)
		if err != nil {
			if ctx.Err() != nil {
				return s, core.NodeTerminate, ctx.Err()
			}
			e.logger.Warn("enrichment failed", "item", item.ID, "title", item.Title, "error", err)
			s = s.WithEnrichment(item.ID, core.Enrichment{Missing: true})
			continue
		}
		s = s.WithEnrichment(item.ID, enrichment)
	}
	return s, core.NodeTerminate, nil
}

func (e *Enricher) lookup(ctx context.Context, item core.Item) (core.Enrichment, error) {
	q := tool.MetadataQuery{
		ID:        item.ID,
		Title:     item.Title,
		Year:      item.Year,
		MediaType: item.MediaType,
	}

	var rec *tool.MetadataRecord
	err := tool.Retry(ctx, e.retry, func(ctx context.Context) error {
		var lerr error
		rec, lerr = e.metadata.Lookup(ctx, q)
		return lerr
	})
	if err != nil {
		// Retrying by title alone covers items whose source id is not a
		// catalog id (semantic-index hits).
		if q.ID != "" && q.Title != "" && !errors.Is(err, context.Canceled) {
			err = tool.Retry(ctx, e.retry, func(ctx context.Context) error {
				var lerr error
				rec, lerr = e.metadata.Lookup(ctx, tool.MetadataQuery{Title: q.Title, Year: q.Year, MediaType: q.MediaType})
				return lerr
			})
		}
		if err != nil {
			return core.Enrichment{}, err
		}
	}

	return core.Enrichment{
		PosterURL: rec.PosterURL,
		Year:      rec.Year,
		Link:      rec.Link,
	}, nil
}
