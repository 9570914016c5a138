// Package testutil provides fluent builders for run states and items used
// across the package tests.
package testutil

import (
	"fmt"
	"time"

	"github.com/frameiq/queryflow/core"
)

// StateBuilder provides a fluent helper for constructing run states in
// tests. Example:
//
//	s := NewStateBuilder("movies like Inception").
//		Item("603", "The Matrix").
//		Answer("Try The Matrix.").
//		Build()
//
// Chain only the parts you need; sensible defaults are applied.
type StateBuilder struct {
	query string
	turns []core.Turn
	items []core.Item
	enr   map[string]core.Enrichment
	ans   string
	visit []core.NodeName
}

// NewStateBuilder creates a builder seeded with the query.
func NewStateBuilder(query string) *StateBuilder {
	return &StateBuilder{query: query, enr: map[string]core.Enrichment{}}
}

// Turn appends a prior conversation turn (chainable). Timestamps advance one
// second per call to keep the time-order invariant visible in assertions.
func (b *StateBuilder) Turn(role, text string) *StateBuilder {
	b.turns = append(b.turns, core.Turn{
		Role:      role,
		Text:      text,
		Timestamp: time.Unix(1700000000+int64(len(b.turns)), 0).UTC(),
	})
	return b
}

// Item appends a retrieved item (chainable).
func (b *StateBuilder) Item(id, title string) *StateBuilder {
	b.items = append(b.items, core.Item{ID: id, Title: title})
	return b
}

// Enriched records a successful enrichment for id (chainable).
func (b *StateBuilder) Enriched(id string) *StateBuilder {
	b.enr[id] = core.Enrichment{PosterURL: fmt.Sprintf("https://img.test/%s.jpg", id)}
	return b
}

// Missing records a failed enrichment for id (chainable).
func (b *StateBuilder) Missing(id string) *StateBuilder {
	b.enr[id] = core.Enrichment{Missing: true}
	return b
}

// Answer sets the accumulated answer text (chainable).
func (b *StateBuilder) Answer(text string) *StateBuilder {
	b.ans = text
	return b
}

// Visited appends node names to the routing history (chainable).
func (b *StateBuilder) Visited(names ...core.NodeName) *StateBuilder {
	b.visit = append(b.visit, names...)
	return b
}

// Build materializes the state.
func (b *StateBuilder) Build() core.State {
	s := core.NewState(b.query, b.turns)
	s = s.MergeItems(b.items...)
	for id, e := range b.enr {
		s = s.WithEnrichment(id, e)
	}
	if b.ans != "" {
		s = s.WithAnswer(b.ans)
	}
	for _, n := range b.visit {
		s = s.WithVisit(n)
	}
	return s
}

// Items builds n sequentially numbered items for volume tests.
func Items(n int) []core.Item {
	out := make([]core.Item, n)
	for i := range out {
		out[i] = core.Item{
			ID:    fmt.Sprintf("item-%03d", i),
			Title: fmt.Sprintf("Title %03d", i),
			Score: 1 - float64(i)/float64(n+1),
		}
	}
	return out
}
