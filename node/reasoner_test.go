package node

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frameiq/queryflow/core"
	"github.com/frameiq/queryflow/model"
	"github.com/frameiq/queryflow/tool"
)

func TestReasoner_AnswerReferencingItemsRoutesToEnrich(t *testing.T) {
	deep := model.NewMockModel("deep", "mock")
	deep.AddResponse("movies like Inception", "You might enjoy The Matrix, it shares the layered-reality theme.")

	r := NewReasoner(deep)
	s := core.NewState("movies like Inception", nil).
		MergeItems(core.Item{ID: "603", Title: "The Matrix"})

	got, next, err := r.Execute(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, core.NodeEnrich, next)
	assert.Contains(t, got.Answer, "The Matrix")
}

func TestReasoner_AnswerWithoutItemReferencesTerminates(t *testing.T) {
	deep := model.NewMockModel("deep", "mock")
	deep.AddResponse("what is film noir", "Film noir is a moody visual style from the 1940s.")

	r := NewReasoner(deep)
	s := core.NewState("what is film noir", nil)

	got, next, err := r.Execute(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, core.NodeTerminate, next)
	assert.NotEmpty(t, got.Answer)
}

func TestReasoner_PromptCarriesItemsAndTurns(t *testing.T) {
	deep := model.NewMockModel("deep", "mock")
	r := NewReasoner(deep)

	turns := []core.Turn{
		{Role: "user", Text: "hi"},
		{Role: "assistant", Text: "hello, what can I find for you"},
	}
	s := core.NewState("movies like Inception", turns).
		MergeItems(core.Item{ID: "603", Title: "The Matrix", Year: "1999", Snippet: "simulated reality"})

	_, _, err := r.Execute(context.Background(), s)
	require.NoError(t, err)

	reqs := deep.Requests()
	require.Len(t, reqs, 1)
	req := reqs[0]
	assert.NotEmpty(t, req.Instructions)
	require.Len(t, req.Messages, 4, "two turns, one item block, the query")
	assert.Equal(t, model.RoleAssistant, req.Messages[1].Role)
	assert.Contains(t, req.Messages[2].Text, "The Matrix (1999) [id=603]")
	assert.Equal(t, "movies like Inception", req.Messages[3].Text)
}

func TestReasoner_ExhaustedTimeoutsFailTheRun(t *testing.T) {
	deep := model.NewMockModel("deep", "mock")
	deep.Fail(core.NewTimeoutError("deep.complete", errors.New("deadline exceeded")))

	r := NewReasoner(deep, func(o *ReasonerOptions) {
		o.Retry = tool.RetryPolicy{MaxAttempts: 3, BaseDelay: 1}
	})
	s := core.NewState("movies like Inception", nil)

	_, _, err := r.Execute(context.Background(), s)
	require.Error(t, err)

	var fatal *core.FatalToolError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "reason", fatal.Op)
	assert.False(t, core.IsTransient(err), "exhausted retries are final")
}

func TestReasoner_EmptyCompletionIsFatal(t *testing.T) {
	deep := model.NewMockModel("deep", "mock")
	deep.AddResponse("query", "   ")

	r := NewReasoner(deep)
	s := core.NewState("query", nil)

	_, _, err := r.Execute(context.Background(), s)
	var fatal *core.FatalToolError
	require.ErrorAs(t, err, &fatal)
}
