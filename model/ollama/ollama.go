// Package ollama provides a model wrapper for a local Ollama runtime, the
// default deployment target for the fast classification tier.
package ollama

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/frameiq/queryflow/core"
	"github.com/frameiq/queryflow/model"
)

const defaultHostURL = "http://localhost:11434"

// Options configure the Ollama model adapter.
type Options struct {
	// HostURL is the Ollama server URL.
	HostURL string
	// Temperature applied when the request does not carry one.
	Temperature float64
	// MaxTokens bounds generation when the request does not carry one.
	MaxTokens int64
	// HTTPClient overrides the transport, for tests.
	HTTPClient *http.Client
}

// Model wraps the Ollama chat API behind the generic model.Model interface.
type Model struct {
	client *api.Client
	name   string
	opts   Options
}

var _ model.Model = (*Model)(nil)

// NewModel creates a client for the named model on an Ollama server.
func NewModel(name string, optFns ...func(o *Options)) (*Model, error) {
	opts := Options{
		HostURL:     defaultHostURL,
		Temperature: 0.7,
		MaxTokens:   4096,
		HTTPClient:  http.DefaultClient,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	parsed, err := url.Parse(opts.HostURL)
	if err != nil {
		return nil, err
	}
	return &Model{
		client: api.NewClient(parsed, opts.HTTPClient),
		name:   name,
		opts:   opts,
	}, nil
}

// Complete implements model.Model.
func (m *Model) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	temperature := m.opts.Temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	maxTokens := m.opts.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    m.name,
		Messages: buildMessages(req),
		Stream:   &stream,
		Options: map[string]any{
			"temperature": temperature,
			"num_predict": maxTokens,
		},
	}

	var last api.ChatResponse
	err := m.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		last = resp
		return nil
	})
	if err != nil {
		return model.Response{}, classifyError(err)
	}

	return model.Response{
		Text:         last.Message.Content,
		FinishReason: finishReason(&last),
		Usage: &model.TokenUsage{
			PromptTokens:     last.PromptEvalCount,
			CompletionTokens: last.EvalCount,
			TotalTokens:      last.PromptEvalCount + last.EvalCount,
		},
	}, nil
}

func buildMessages(req model.Request) []api.Message {
	messages := make([]api.Message, 0, len(req.Messages)+1)
	if req.Instructions != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.Instructions})
	}
	for _, msg := range req.Messages {
		messages = append(messages, api.Message{Role: string(msg.Role), Content: msg.Text})
	}
	return messages
}

func finishReason(resp *api.ChatResponse) string {
	if !resp.Done {
		return "incomplete"
	}
	switch resp.DoneReason {
	case "", "stop":
		return "stop"
	case "length":
		return "length"
	default:
		return resp.DoneReason
	}
}

// classifyError maps transport faults onto the retryable error kinds; the
// api client only exposes them as opaque error strings.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return core.NewTimeoutError("ollama.complete", err)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "timeout"):
		return core.NewUnavailableError("ollama.complete", err)
	default:
		return err
	}
}

// Info returns metadata describing this Ollama model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:     m.name,
		Provider: "ollama",
	}
}
