// Package workflow drives one run through the node graph: repeated routing
// until a terminal decision, bounded by the recursion limit, with a progress
// event emitted per transition. The engine owns the run's state value for
// the duration and never shares it across runs.
package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/frameiq/queryflow/core"
	"github.com/frameiq/queryflow/logging"
)

// DefaultBound is the default recursion limit per run.
const DefaultBound = 15

// Outcome is the terminal classification of a run.
type Outcome string

const (
	// OutcomeSuccess means the run terminated normally with an answer.
	OutcomeSuccess Outcome = "success"
	// OutcomeTruncated means the iteration bound forced termination; the
	// state carries the best partial answer and the truncated flag.
	OutcomeTruncated Outcome = "truncated"
	// OutcomeFailed means a node reported a fatal error, or the run was
	// cancelled.
	OutcomeFailed Outcome = "failed"
)

// NodeSet maps node names to implementations. The engine requires entries
// for router, retrieve, reason and enrich.
type NodeSet map[core.NodeName]core.Node

// NewNodeSet indexes nodes by their name.
func NewNodeSet(nodes ...core.Node) NodeSet {
	set := make(NodeSet, len(nodes))
	for _, n := range nodes {
		set[n.Name()] = n
	}
	return set
}

// Validate checks that every routable node is present.
func (ns NodeSet) Validate() error {
	for _, name := range []core.NodeName{core.NodeRouter, core.NodeRetrieve, core.NodeReason, core.NodeEnrich} {
		if _, ok := ns[name]; !ok {
			return fmt.Errorf("node set is missing %q", name)
		}
	}
	return nil
}

// Options configure the workflow engine.
type Options struct {
	// Bound is the recursion limit; reaching it forces termination with
	// the truncated flag rather than an error.
	Bound  int
	Logger logging.Logger
}

// Engine executes runs over a fixed node set. It is stateless across runs
// and safe for concurrent use.
type Engine struct {
	nodes  NodeSet
	bound  int
	logger logging.Logger
}

// New constructs an engine over the given node set.
func New(nodes NodeSet, optFns ...func(o *Options)) (*Engine, error) {
	opts := Options{
		Bound:  DefaultBound,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if err := nodes.Validate(); err != nil {
		return nil, err
	}
	if opts.Bound < 1 {
		opts.Bound = DefaultBound
	}
	return &Engine{nodes: nodes, bound: opts.Bound, logger: opts.Logger}, nil
}

// Run drives the state machine from the router until a terminal decision,
// emitting one progress event per transition on emit. Emission blocks when
// the consumer lags; progress is never dropped. The caller owns emit and
// closes it after Run returns.
func (e *Engine) Run(ctx context.Context, runID string, s core.State, emit chan<- core.ProgressEvent) (core.State, Outcome) {
	current := core.NodeRouter
	seq := 0

	for {
		node, ok := e.nodes[current]
		if !ok {
			// Unroutable name from a node bug; treated as fatal.
			s = s.WithError(core.KindFatalTool, "the request could not be completed")
			e.logger.Error("unknown route", "run_id", runID, "node", string(current))
			return s, OutcomeFailed
		}

		out, next, err := node.Execute(ctx, s)
		if err == nil {
			s = out
		}
		s = s.WithVisit(current)

		if err != nil {
			if ctx.Err() != nil {
				s = s.WithError(core.ClassifyError(err), "the request was cancelled")
				return s, OutcomeFailed
			}
			e.logger.Error("node failed", "run_id", runID, "node", string(current), "error", err)
			s = s.WithError(core.ClassifyError(err), core.SafeMessage(err))
			seq++
			if !e.emit(ctx, emit, core.NewProgressEvent(runID, current, "failed", seq)) {
				return s, OutcomeFailed
			}
			return s, OutcomeFailed
		}

		seq++
		logging.LogTransition(e.logger, runID, string(current), string(next), s.Iterations)
		if !e.emit(ctx, emit, core.NewProgressEvent(runID, current, transitionMessage(current, next), seq)) {
			s = s.WithError(core.KindFatalTool, "the request was cancelled")
			return s, OutcomeFailed
		}

		if next == core.NodeTerminate {
			if s.Truncated {
				return s, OutcomeTruncated
			}
			return s, OutcomeSuccess
		}

		if s.Iterations >= e.bound {
			e.logger.Warn("recursion bound reached", "run_id", runID, "bound", e.bound)
			s = s.WithTruncated()
			if s.Answer == "" {
				s = s.WithAnswer(partialAnswer(s))
			}
			seq++
			e.emit(ctx, emit, core.NewProgressEvent(runID, core.NodeTerminate, "truncated", seq))
			return s, OutcomeTruncated
		}

		current = next
	}
}

// emit blocks until the event is accepted or the run is cancelled. Returns
// false on cancellation.
func (e *Engine) emit(ctx context.Context, emit chan<- core.ProgressEvent, ev core.ProgressEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case emit <- ev:
		return true
	}
}

func transitionMessage(from, to core.NodeName) string {
	switch from {
	case core.NodeRouter:
		return fmt.Sprintf("routing to %s", to)
	case core.NodeRetrieve:
		return "retrieval completed"
	case core.NodeReason:
		return "answer drafted"
	case core.NodeEnrich:
		return "enrichment completed"
	default:
		return fmt.Sprintf("moving to %s", to)
	}
}

// partialAnswer builds the best-available answer for a truncated run that
// never reached the reasoner.
func partialAnswer(s core.State) string {
	if len(s.Items) == 0 {
		return "I couldn't finish working on that request. Could you rephrase it?"
	}
	titles := make([]string, 0, len(s.Items))
	for _, it := range s.Items {
		if it.Title != "" {
			titles = append(titles, it.Title)
		}
	}
	if len(titles) == 0 {
		return "I couldn't finish working on that request. Could you rephrase it?"
	}
	return fmt.Sprintf("I ran out of time finishing that request, but these titles looked relevant: %s.", strings.Join(titles, ", "))
}
