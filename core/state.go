package core

import "time"

// NodeName identifies an agent node within the workflow graph. The set is
// closed: the topology is fixed by design and not user-programmable.
type NodeName string

const (
	// NodeRouter classifies the query and picks the next node.
	NodeRouter NodeName = "router"
	// NodeRetrieve searches the vector index or the metadata catalog.
	NodeRetrieve NodeName = "retrieve"
	// NodeReason produces the accumulated answer text.
	NodeReason NodeName = "reason"
	// NodeEnrich attaches poster/descriptive metadata to answer items.
	NodeEnrich NodeName = "enrich"
	// NodeTerminate is the sentinel routing choice ending a run.
	NodeTerminate NodeName = "terminate"
)

// Turn is a single conversational exchange entry. Turns are append-only
// within a session and strictly time-ordered.
type Turn struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Item is one retrieved media record. ID is the source id used for
// deduplication; Score preserves the relevance order reported by the
// underlying tool.
type Item struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	MediaType string  `json:"media_type,omitempty"` // "movie" or "tv"
	Year      string  `json:"year,omitempty"`
	Score     float64 `json:"score,omitempty"`
	Snippet   string  `json:"snippet,omitempty"`
}

// Enrichment holds the metadata attached to one item by the enricher node.
// Missing marks items whose lookup failed after retries; the run still
// succeeds and the item is surfaced without the enriched fields.
type Enrichment struct {
	PosterURL string `json:"poster_url,omitempty"`
	Year      string `json:"year,omitempty"`
	Link      string `json:"link,omitempty"`
	Missing   bool   `json:"missing,omitempty"`
}

// ErrorRecord captures a terminal failure in taxonomy form. Only the kind
// and a safe message cross the façade boundary; full detail stays in logs.
type ErrorRecord struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// State is the value threaded through one workflow run. It is created fresh
// per request, owned solely by the workflow engine for the lifetime of that
// run, and discarded afterwards except for the derived conversation turn.
//
// Invariants:
//   - Iterations strictly increases per node execution; the engine forces
//     termination when it reaches the configured bound.
//   - Items contains no duplicate source ids.
//   - Visited records node names in execution order (diagnostics only; the
//     iteration bound is the sole cycle-prevention mechanism).
type State struct {
	Query      string
	Turns      []Turn
	Visited    []NodeName
	Items      []Item
	Answer     string
	Enrichment map[string]Enrichment
	Err        *ErrorRecord
	Iterations int
	Truncated  bool
}

// NewState seeds a fresh run state from the user query and prior session
// turns.
func NewState(query string, turns []Turn) State {
	ts := make([]Turn, len(turns))
	copy(ts, turns)
	return State{Query: query, Turns: ts}
}

// WithVisit returns a copy with n appended to the routing history and the
// iteration counter advanced.
func (s State) WithVisit(n NodeName) State {
	visited := make([]NodeName, len(s.Visited), len(s.Visited)+1)
	copy(visited, s.Visited)
	s.Visited = append(visited, n)
	s.Iterations++
	return s
}

// MergeItems returns a copy with items appended, deduplicated by source id.
// Existing items keep their position; new items keep the relevance order
// reported by the tool.
func (s State) MergeItems(items ...Item) State {
	seen := make(map[string]bool, len(s.Items)+len(items))
	merged := make([]Item, 0, len(s.Items)+len(items))
	for _, it := range s.Items {
		if it.ID == "" || seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		merged = append(merged, it)
	}
	for _, it := range items {
		if it.ID == "" || seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		merged = append(merged, it)
	}
	s.Items = merged
	return s
}

// WithAnswer returns a copy carrying the accumulated answer text.
func (s State) WithAnswer(answer string) State {
	s.Answer = answer
	return s
}

// WithEnrichment returns a copy with e recorded for the given item id. The
// enrichment map is copied so prior states remain untouched.
func (s State) WithEnrichment(id string, e Enrichment) State {
	m := make(map[string]Enrichment, len(s.Enrichment)+1)
	for k, v := range s.Enrichment {
		m[k] = v
	}
	m[id] = e
	s.Enrichment = m
	return s
}

// WithError returns a copy carrying a terminal error record.
func (s State) WithError(kind ErrorKind, message string) State {
	s.Err = &ErrorRecord{Kind: kind, Message: message}
	return s
}

// WithTruncated returns a copy flagged as truncated by the iteration bound.
func (s State) WithTruncated() State {
	s.Truncated = true
	return s
}

// Unenriched returns the items that have no successful enrichment recorded.
// Items with a Missing enrichment are excluded; their lookup already failed
// and must not be retried within the run.
func (s State) Unenriched() []Item {
	var out []Item
	for _, it := range s.Items {
		if _, ok := s.Enrichment[it.ID]; ok {
			continue
		}
		out = append(out, it)
	}
	return out
}

// RecentTurns returns at most n of the latest prior turns, oldest first.
func (s State) RecentTurns(n int) []Turn {
	if n <= 0 || len(s.Turns) == 0 {
		return nil
	}
	if len(s.Turns) <= n {
		out := make([]Turn, len(s.Turns))
		copy(out, s.Turns)
		return out
	}
	out := make([]Turn, n)
	copy(out, s.Turns[len(s.Turns)-n:])
	return out
}

// VisitCounts aggregates the routing history into per-node visit counts for
// the metrics record.
func (s State) VisitCounts() map[string]int {
	counts := make(map[string]int, 4)
	for _, n := range s.Visited {
		counts[string(n)]++
	}
	return counts
}
