package core

import (
	"time"

	"github.com/google/uuid"
)

// ProgressEvent reports one stage transition inside a run. Events are
// immutable after emission and strictly ordered per run by Seq; no ordering
// exists across runs.
type ProgressEvent struct {
	RunID     string    `json:"run_id"`
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	Seq       int       `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
}

// EventType discriminates the stream event union sent to the caller.
type EventType string

const (
	// EventProgress carries a stage transition.
	EventProgress EventType = "progress"
	// EventFinal carries the completed answer; always the last event of a
	// successful run.
	EventFinal EventType = "final"
	// EventRejected is the single event of an admission-rejected request.
	EventRejected EventType = "rejected"
	// EventFailed terminates a run that hit a fatal error.
	EventFailed EventType = "failed"
)

// ResultItem is one media entry of the final answer, the retrieved record
// merged with its enrichment. PosterURL is empty when enrichment failed or
// was never attempted; absence is not an error.
type ResultItem struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	MediaType string `json:"media_type,omitempty"`
	Year      string `json:"year,omitempty"`
	PosterURL string `json:"poster_url,omitempty"`
	Link      string `json:"link,omitempty"`
}

// FinalResult is the terminal payload of a completed run.
type FinalResult struct {
	Answer    string       `json:"answer"`
	Items     []ResultItem `json:"items"`
	Truncated bool         `json:"truncated"`
}

// StreamEvent is the union type relayed to the caller. Exactly one of the
// payload fields is populated according to Type.
type StreamEvent struct {
	Type              EventType      `json:"type"`
	Progress          *ProgressEvent `json:"progress,omitempty"`
	Final             *FinalResult   `json:"final,omitempty"`
	RetryAfterSeconds float64        `json:"retry_after_seconds,omitempty"`
	Reason            string         `json:"reason,omitempty"`
}

// NewProgressEvent constructs a progress event stamped with the current UTC
// time.
func NewProgressEvent(runID string, stage NodeName, message string, seq int) ProgressEvent {
	return ProgressEvent{
		RunID:     runID,
		Stage:     string(stage),
		Message:   message,
		Seq:       seq,
		Timestamp: time.Now().UTC(),
	}
}

// NewID generates a unique identifier for runs and events.
func NewID() string { return uuid.NewString() }
