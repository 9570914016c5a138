package model

import (
	"context"
	"fmt"
	"sync"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of provider-neutral conversation input.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Request captures the normalized completion input produced by nodes.
// Instructions carry the system prompt separately because providers
// disagree on where it belongs in the message list.
type Request struct {
	Instructions string    `json:"instructions,omitempty"`
	Messages     []Message `json:"messages"`
	Temperature  float64   `json:"temperature,omitempty"`
	MaxTokens    int64     `json:"max_tokens,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the completed model output.
type Response struct {
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason"` // "stop", "length", etc.
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "ollama", etc.
}

// Model is the minimal interface nodes need to drive generation. Adapters
// must surface transport failures as core.UpstreamError values so the retry
// layer can distinguish transient faults from bad requests.
type Model interface {
	Complete(ctx context.Context, req Request) (Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// Tiered pairs the two model tiers the pipeline draws on: Fast serves
// latency-sensitive classification, Deep serves answer synthesis.
type Tiered struct {
	Fast Model
	Deep Model
}

// NewTiered builds a tier pairing. Passing the same model for both tiers
// is valid and collapses the pipeline onto a single provider.
func NewTiered(fast, deep Model) Tiered {
	return Tiered{Fast: fast, Deep: deep}
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Responses are matched on the text of the last message; unmatched input
// falls back to a deterministic echo.
type MockModel struct {
	mu        sync.Mutex
	info      Info
	responses map[string]string
	err       error
	requests  []Request
}

var _ Model = (*MockModel)(nil)

// NewMockModel constructs a MockModel.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: provider},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// Fail makes every subsequent Complete return err.
func (m *MockModel) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Complete implements Model.
func (m *MockModel) Complete(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	if m.err != nil {
		return Response{}, m.err
	}
	if len(req.Messages) == 0 {
		return Response{}, fmt.Errorf("no messages provided")
	}

	input := req.Messages[len(req.Messages)-1].Text
	text := m.responses[input]
	if text == "" {
		text = fmt.Sprintf("Mock response to: %s", input)
	}
	return Response{Text: text, FinishReason: "stop"}, nil
}

// Requests returns the completion inputs seen so far, oldest first.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
