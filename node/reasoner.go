package node

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/frameiq/queryflow/core"
	"github.com/frameiq/queryflow/logging"
	"github.com/frameiq/queryflow/model"
	"github.com/frameiq/queryflow/tool"
)

const reasonerInstructions = `You are a knowledgeable movie and TV assistant.
Ground your answer in the retrieved items when they are present, explain why
each recommendation fits, and mention titles exactly as given. Keep answers
conversational and concise.`

// ReasonerOptions configure the reasoner node.
type ReasonerOptions struct {
	// Instructions override the default system prompt.
	Instructions string
	// ContextTurns caps how many prior turns feed the prompt.
	ContextTurns int
	Temperature  float64
	Retry        tool.RetryPolicy
	Logger       logging.Logger
}

// Reasoner synthesizes the answer from the query, the retrieved items and
// the recent conversation. It drives the deep model tier and is the only
// node allowed to finalize the answer; a completion failure that survives
// the retry budget fails the whole run.
type Reasoner struct {
	deep         model.Model
	instructions string
	contextTurns int
	temperature  float64
	retry        tool.RetryPolicy
	logger       logging.Logger
}

var _ core.Node = (*Reasoner)(nil)

// NewReasoner constructs a reasoner over the deep model tier.
func NewReasoner(deep model.Model, optFns ...func(o *ReasonerOptions)) *Reasoner {
	opts := ReasonerOptions{
		Instructions: reasonerInstructions,
		ContextTurns: 6,
		Temperature:  0.7,
		Retry:        tool.DefaultRetryPolicy(),
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Reasoner{
		deep:         deep,
		instructions: opts.Instructions,
		contextTurns: opts.ContextTurns,
		temperature:  opts.Temperature,
		retry:        opts.Retry,
		logger:       opts.Logger,
	}
}

// Name implements core.Node.
func (r *Reasoner) Name() core.NodeName { return core.NodeReason }

// Execute implements core.Node.
func (r *Reasoner) Execute(ctx context.Context, s core.State) (core.State, core.NodeName, error) {
	req := r.buildRequest(s)

	var resp model.Response
	start := time.Now()
	err := tool.Retry(ctx, r.retry, func(ctx context.Context) error {
		var cerr error
		resp, cerr = r.deep.Complete(ctx, req)
		return cerr
	})
	if err != nil {
		logging.LogModelCall(r.logger, r.deep.Info().Name, 0, time.Since(start), err)
		return s, core.NodeTerminate, &core.FatalToolError{Op: "reason", Err: err}
	}
	if strings.TrimSpace(resp.Text) == "" {
		return s, core.NodeTerminate, &core.FatalToolError{Op: "reason", Err: fmt.Errorf("empty completion")}
	}
	tokens := 0
	if resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}
	logging.LogModelCall(r.logger, r.deep.Info().Name, tokens, time.Since(start), nil)

	s = s.WithAnswer(resp.Text)
	if referencesUnenriched(s) {
		return s, core.NodeEnrich, nil
	}
	return s, core.NodeTerminate, nil
}

// buildRequest folds the recent turns, the retrieved items and the query
// into one completion request for the deep tier.
func (r *Reasoner) buildRequest(s core.State) model.Request {
	messages := make([]model.Message, 0, r.contextTurns+2)
	for _, turn := range s.RecentTurns(r.contextTurns) {
		role := model.RoleUser
		if turn.Role == "assistant" {
			role = model.RoleAssistant
		}
		messages = append(messages, model.Message{Role: role, Text: turn.Text})
	}
	if len(s.Items) > 0 {
		messages = append(messages, model.Message{Role: model.RoleSystem, Text: formatItems(s.Items)})
	}
	messages = append(messages, model.Message{Role: model.RoleUser, Text: s.Query})

	return model.Request{
		Instructions: r.instructions,
		Messages:     messages,
		Temperature:  r.temperature,
	}
}

func formatItems(items []core.Item) string {
	var b strings.Builder
	b.WriteString("Retrieved items:\n")
	for _, it := range items {
		fmt.Fprintf(&b, "- %s", it.Title)
		if it.Year != "" {
			fmt.Fprintf(&b, " (%s)", it.Year)
		}
		fmt.Fprintf(&b, " [id=%s]", it.ID)
		if it.Snippet != "" {
			fmt.Fprintf(&b, ": %s", it.Snippet)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// referencesUnenriched reports whether the answer mentions an item that has
// no enrichment yet, either by title or by the id markers the prompt embeds.
func referencesUnenriched(s core.State) bool {
	lower := strings.ToLower(s.Answer)
	for _, it := range s.Unenriched() {
		if it.Title != "" && strings.Contains(lower, strings.ToLower(it.Title)) {
			return true
		}
		if it.ID != "" && strings.Contains(lower, fmt.Sprintf("id=%s", strings.ToLower(it.ID))) {
			return true
		}
	}
	return false
}
