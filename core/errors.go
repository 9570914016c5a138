package core

import (
	"errors"
	"fmt"
)

// ErrorKind labels a failure with its taxonomy category. Kinds are the only
// error detail surfaced to callers; wrapped causes stay internal.
type ErrorKind string

const (
	// KindAdmissionRejected marks a caller or global budget overflow.
	KindAdmissionRejected ErrorKind = "admission_rejected"
	// KindUpstreamTimeout marks a transient tool timeout.
	KindUpstreamTimeout ErrorKind = "upstream_timeout"
	// KindUpstreamUnavailable marks a transient tool connectivity failure.
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
	// KindPartialEnrichment marks enrichment lookups that failed after
	// retries. Never terminal: missing fields are surfaced as absent.
	KindPartialEnrichment ErrorKind = "partial_enrichment"
	// KindRecursionBound marks a run stopped by the iteration bound. Never
	// terminal either: the run ends Terminated with the truncated flag.
	KindRecursionBound ErrorKind = "recursion_bound"
	// KindFatalTool marks a non-retryable failure from a required call.
	KindFatalTool ErrorKind = "fatal_tool"
)

// UpstreamError is a transient failure from an external tool. Nodes retry
// these with bounded backoff before converting the exhausted attempt into a
// per-call failure or, for required calls, a FatalToolError.
type UpstreamError struct {
	Op   string
	Kind ErrorKind // KindUpstreamTimeout or KindUpstreamUnavailable
	Err  error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *UpstreamError) Unwrap() error { return e.Err }

// NewTimeoutError wraps err as a transient timeout for operation op.
func NewTimeoutError(op string, err error) *UpstreamError {
	return &UpstreamError{Op: op, Kind: KindUpstreamTimeout, Err: err}
}

// NewUnavailableError wraps err as a transient connectivity failure.
func NewUnavailableError(op string, err error) *UpstreamError {
	return &UpstreamError{Op: op, Kind: KindUpstreamUnavailable, Err: err}
}

// FatalToolError is a non-retryable failure from a required call, e.g. a
// malformed response from the reasoning tool or exhausted retries on the
// final answer path. It converts the run to Failed.
type FatalToolError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *FatalToolError) Error() string {
	return fmt.Sprintf("fatal tool error: %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *FatalToolError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried by the issuing node.
// A FatalToolError is final even when it wraps an exhausted transient cause.
func IsTransient(err error) bool {
	var fe *FatalToolError
	if errors.As(err, &fe) {
		return false
	}
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// ClassifyError maps err onto its taxonomy kind, defaulting to
// KindFatalTool for anything unclassified.
func ClassifyError(err error) ErrorKind {
	var fe *FatalToolError
	if errors.As(err, &fe) {
		return KindFatalTool
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return KindFatalTool
}

// SafeMessage returns the caller-visible description for err: the taxonomy
// kind plus a generic message, never internal detail.
func SafeMessage(err error) string {
	switch ClassifyError(err) {
	case KindUpstreamTimeout:
		return "an upstream service timed out"
	case KindUpstreamUnavailable:
		return "an upstream service is unavailable"
	default:
		return "the request could not be completed"
	}
}
