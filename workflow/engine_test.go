package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frameiq/queryflow/core"
	"github.com/frameiq/queryflow/model"
	"github.com/frameiq/queryflow/node"
	"github.com/frameiq/queryflow/tool"
)

func collectEvents(t *testing.T, run func(emit chan<- core.ProgressEvent)) []core.ProgressEvent {
	t.Helper()
	emit := make(chan core.ProgressEvent, 64)
	run(emit)
	close(emit)
	var events []core.ProgressEvent
	for ev := range emit {
		events = append(events, ev)
	}
	return events
}

func testNodes(t *testing.T, deep *model.MockModel) NodeSet {
	t.Helper()
	searcher := tool.NewMockSearcher(
		core.Item{ID: "603", Title: "The Matrix", Year: "1999", Score: 0.9},
		core.Item{ID: "78", Title: "Blade Runner", Year: "1982", Score: 0.8},
	)
	metadata := tool.NewMockMetadataClient()
	metadata.Add(tool.MetadataRecord{ID: "603", Title: "The Matrix", Year: "1999", PosterURL: "https://img/matrix.jpg", Link: "https://catalog/movie/603"})
	metadata.Add(tool.MetadataRecord{ID: "78", Title: "Blade Runner", Year: "1982", PosterURL: "https://img/br.jpg", Link: "https://catalog/movie/78"})

	return NewNodeSet(
		node.NewRouter(),
		node.NewRetriever(searcher, metadata),
		node.NewReasoner(deep),
		node.NewEnricher(metadata),
	)
}

func TestEngine_FullPipeline(t *testing.T) {
	deep := model.NewMockModel("deep", "mock")
	deep.AddResponse("movies like Inception",
		"I recommend The Matrix and Blade Runner, you might enjoy their layered realities.")

	engine, err := New(testNodes(t, deep))
	require.NoError(t, err)

	var final core.State
	var outcome Outcome
	events := collectEvents(t, func(emit chan<- core.ProgressEvent) {
		final, outcome = engine.Run(context.Background(), "run-1", core.NewState("movies like Inception", nil), emit)
	})

	assert.Equal(t, OutcomeSuccess, outcome)
	assert.Contains(t, final.Answer, "The Matrix")
	require.Len(t, final.Items, 2)
	assert.Equal(t, "https://img/matrix.jpg", final.Enrichment["603"].PosterURL)
	assert.Equal(t, "https://img/br.jpg", final.Enrichment["78"].PosterURL)
	assert.False(t, final.Truncated)

	// router → retrieve → router → reason → enrich, one event per transition
	require.NotEmpty(t, events)
	for i, ev := range events {
		assert.Equal(t, i+1, ev.Seq, "events are strictly ordered by sequence number")
		assert.Equal(t, "run-1", ev.RunID)
	}
	assert.Equal(t, string(core.NodeRouter), events[0].Stage)
	assert.Equal(t, string(core.NodeEnrich), events[len(events)-1].Stage)
}

func TestEngine_ReasonerFailureFailsRun(t *testing.T) {
	deep := model.NewMockModel("deep", "mock")
	deep.Fail(core.NewTimeoutError("deep.complete", errors.New("deadline exceeded")))

	searcher := tool.NewMockSearcher(core.Item{ID: "603", Title: "The Matrix"})
	metadata := tool.NewMockMetadataClient()
	nodes := NewNodeSet(
		node.NewRouter(),
		node.NewRetriever(searcher, metadata),
		node.NewReasoner(deep, func(o *node.ReasonerOptions) {
			o.Retry = tool.RetryPolicy{MaxAttempts: 3, BaseDelay: 1}
		}),
		node.NewEnricher(metadata),
	)
	engine, err := New(nodes)
	require.NoError(t, err)

	var final core.State
	var outcome Outcome
	collectEvents(t, func(emit chan<- core.ProgressEvent) {
		final, outcome = engine.Run(context.Background(), "run-2", core.NewState("movies like Inception", nil), emit)
	})

	assert.Equal(t, OutcomeFailed, outcome)
	require.NotNil(t, final.Err)
	assert.Equal(t, core.KindFatalTool, final.Err.Kind)
	assert.Empty(t, final.Answer, "a failed run carries no partial answer")
}

func TestEngine_RecursionBoundTruncates(t *testing.T) {
	// A router that always selects retrieval, paired with a dry index,
	// produces a pathological router/retrieve loop.
	loopRouter := node.NewRouter(func(o *node.RouterOptions) {
		o.Classify = func(core.State) []core.NodeName {
			return []core.NodeName{core.NodeRetrieve}
		}
	})
	searcher := tool.NewMockSearcher()
	metadata := tool.NewMockMetadataClient()
	deep := model.NewMockModel("deep", "mock")

	engine, err := New(NewNodeSet(loopRouter, node.NewRetriever(searcher, metadata), node.NewReasoner(deep), node.NewEnricher(metadata)))
	require.NoError(t, err)

	var final core.State
	var outcome Outcome
	collectEvents(t, func(emit chan<- core.ProgressEvent) {
		final, outcome = engine.Run(context.Background(), "run-3", core.NewState("recommend movies", nil), emit)
	})

	assert.Equal(t, OutcomeTruncated, outcome)
	assert.True(t, final.Truncated)
	assert.Equal(t, DefaultBound, final.Iterations)
	assert.NotEmpty(t, final.Answer, "truncation still yields a partial answer")
	assert.Nil(t, final.Err, "hitting the bound is not an error")
}

func TestEngine_CancellationStopsEmission(t *testing.T) {
	deep := model.NewMockModel("deep", "mock")
	engine, err := New(testNodes(t, deep))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	emit := make(chan core.ProgressEvent) // unbuffered: emission would block
	_, outcome := engine.Run(ctx, "run-4", core.NewState("movies like Inception", nil), emit)
	assert.Equal(t, OutcomeFailed, outcome)
}

func TestNodeSet_Validate(t *testing.T) {
	deep := model.NewMockModel("deep", "mock")
	incomplete := NewNodeSet(node.NewRouter(), node.NewReasoner(deep))
	_, err := New(incomplete)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}
