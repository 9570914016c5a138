// Package queryflow provides a high-level façade over the admission gate,
// conversation memory and the workflow engine, enabling a web layer to serve
// query-orchestration requests with a few calls. Most applications interact
// with this package by:
//  1. Creating an Orchestrator via New() with a wired node set (optionally
//     overriding the in-memory defaults for admission, memory and metrics)
//  2. Calling Handle() per incoming request and relaying the event stream
//  3. Calling Cancel() when a caller disconnects mid-run
//
// All defaults are safe for local development and testing; production
// deployments typically supply a Redis-backed memory store, a Prometheus
// recorder and a structured logger.
package queryflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/frameiq/queryflow/admission"
	"github.com/frameiq/queryflow/core"
	"github.com/frameiq/queryflow/logging"
	"github.com/frameiq/queryflow/memory"
	"github.com/frameiq/queryflow/metrics"
	"github.com/frameiq/queryflow/workflow"
)

// Options configures the Orchestrator.
type Options struct {
	// Limiter is the admission gate; defaults to 20/caller and 100 global
	// per minute.
	Limiter *admission.Limiter
	// Store holds conversation memory; defaults to the in-memory store
	// with a 24h TTL.
	Store memory.Store
	// Recorder consumes per-run metrics records; defaults to a no-op.
	Recorder metrics.Recorder
	// EventBufferSize sets the channel buffer for the caller-facing event
	// stream. The engine blocks rather than drop events once it fills.
	EventBufferSize int
	// ContextTurns caps how many prior session turns seed a run.
	ContextTurns int
	// Logger defaults to NoOp.
	Logger logging.Logger
}

// Orchestrator is the high-level façade aggregating admission control,
// conversation memory, the workflow engine and metrics. Public methods are
// safe for concurrent use; each request gets an isolated run.
type Orchestrator struct {
	engine   *workflow.Engine
	limiter  *admission.Limiter
	store    memory.Store
	recorder metrics.Recorder
	logger   logging.Logger

	eventBufferSize int
	contextTurns    int

	mu         sync.Mutex
	activeRuns map[string]context.CancelFunc
}

// New constructs an Orchestrator over a workflow engine.
func New(engine *workflow.Engine, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		Limiter:         admission.New(),
		Store:           memory.NewInMemoryStore(),
		Recorder:        metrics.NoopRecorder{},
		EventBufferSize: 16,
		ContextTurns:    10,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Orchestrator{
		engine:          engine,
		limiter:         opts.Limiter,
		store:           opts.Store,
		recorder:        opts.Recorder,
		logger:          opts.Logger,
		eventBufferSize: opts.EventBufferSize,
		contextTurns:    opts.ContextTurns,
		activeRuns:      make(map[string]context.CancelFunc),
	}
}

// Handle admits and starts one request, returning the run id and the event
// stream. The stream carries zero or more progress events and closes after
// exactly one terminal event: final, failed, or — when admission rejects the
// request — a single rejected event. The caller consumes the stream at most
// once; it is never restartable.
func (o *Orchestrator) Handle(ctx context.Context, callerKey, sessionKey, query string) (string, <-chan core.StreamEvent, error) {
	if strings.TrimSpace(query) == "" {
		return "", nil, fmt.Errorf("query must not be empty")
	}
	if callerKey == "" {
		return "", nil, fmt.Errorf("caller key must not be empty")
	}

	runID := core.NewID()
	start := time.Now()

	decision := o.limiter.Admit(callerKey)
	logging.LogAdmission(o.logger, callerKey, decision.Allowed, string(decision.Scope), decision.RetryAfter)
	if !decision.Allowed {
		o.recorder.ObserveRun(metrics.RunRecord{
			Duration:      time.Since(start),
			Outcome:       "rejected",
			RejectedScope: string(decision.Scope),
		})
		out := make(chan core.StreamEvent, 1)
		out <- core.StreamEvent{
			Type:              core.EventRejected,
			RetryAfterSeconds: decision.RetryAfter.Seconds(),
		}
		close(out)
		return runID, out, nil
	}

	var turns []core.Turn
	if sess, ok, err := o.store.Get(ctx, callerKey, sessionKey); err != nil {
		o.logger.Warn("session lookup failed", "run_id", runID, "error", err)
	} else if ok {
		turns = sess.Turns
	}
	state := core.NewState(query, lastTurns(turns, o.contextTurns))

	runCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.activeRuns[runID] = cancel
	o.mu.Unlock()

	out := make(chan core.StreamEvent, o.eventBufferSize)
	progress := make(chan core.ProgressEvent, o.eventBufferSize)
	done := make(chan struct{})

	var final core.State
	var outcome workflow.Outcome

	go func() {
		defer close(progress)
		defer close(done)
		final, outcome = o.engine.Run(runCtx, runID, state, progress)
	}()

	go func() {
		defer func() {
			cancel()
			o.mu.Lock()
			delete(o.activeRuns, runID)
			o.mu.Unlock()
			close(out)
		}()

		for ev := range progress {
			ev := ev
			select {
			case <-runCtx.Done():
				// Drain remaining progress so the engine goroutine exits.
				for range progress {
				}
				return
			case out <- core.StreamEvent{Type: core.EventProgress, Progress: &ev}:
			}
		}
		<-done

		o.finishRun(runCtx, callerKey, sessionKey, runID, query, final, outcome, start, out)
	}()

	return runID, out, nil
}

// Cancel stops a running run by id. Further events stop flowing and
// in-flight tool calls are abandoned; other runs are unaffected.
func (o *Orchestrator) Cancel(runID string) error {
	o.mu.Lock()
	cancel, exists := o.activeRuns[runID]
	o.mu.Unlock()

	if !exists {
		return fmt.Errorf("run %s not found", runID)
	}
	cancel()
	return nil
}

// Close releases the orchestrator's owned resources.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	for _, cancel := range o.activeRuns {
		cancel()
	}
	o.mu.Unlock()
	return o.store.Close()
}

// finishRun emits the terminal event, persists the exchange and records the
// run's metrics.
func (o *Orchestrator) finishRun(
	ctx context.Context,
	callerKey, sessionKey, runID, query string,
	final core.State,
	outcome workflow.Outcome,
	start time.Time,
	out chan<- core.StreamEvent,
) {
	record := metrics.RunRecord{
		Duration:   time.Since(start),
		Outcome:    string(outcome),
		NodeVisits: final.VisitCounts(),
	}
	defer o.recorder.ObserveRun(record)

	// A cancelled run emits nothing further and persists no partial state.
	if ctx.Err() != nil {
		return
	}

	if outcome == workflow.OutcomeFailed {
		reason := "the request could not be completed"
		if final.Err != nil {
			reason = final.Err.Message
		}
		select {
		case <-ctx.Done():
		case out <- core.StreamEvent{Type: core.EventFailed, Reason: reason}:
		}
		return
	}

	now := time.Now().UTC()
	err := o.store.Append(context.WithoutCancel(ctx), callerKey, sessionKey,
		core.Turn{Role: "user", Text: query, Timestamp: now},
		core.Turn{Role: "assistant", Text: final.Answer, Timestamp: now.Add(time.Millisecond)},
	)
	if err != nil {
		o.logger.Warn("session append failed", "run_id", runID, "error", err)
	}

	select {
	case <-ctx.Done():
	case out <- core.StreamEvent{Type: core.EventFinal, Final: buildFinal(final)}:
	}
}

// buildFinal merges retrieved items with their enrichment into the
// caller-facing result.
func buildFinal(s core.State) *core.FinalResult {
	items := make([]core.ResultItem, 0, len(s.Items))
	for _, it := range s.Items {
		ri := core.ResultItem{
			ID:        it.ID,
			Title:     it.Title,
			MediaType: it.MediaType,
			Year:      it.Year,
		}
		if e, ok := s.Enrichment[it.ID]; ok && !e.Missing {
			ri.PosterURL = e.PosterURL
			ri.Link = e.Link
			if e.Year != "" {
				ri.Year = e.Year
			}
		}
		items = append(items, ri)
	}
	return &core.FinalResult{
		Answer:    s.Answer,
		Items:     items,
		Truncated: s.Truncated,
	}
}

func lastTurns(turns []core.Turn, n int) []core.Turn {
	if n <= 0 || len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}
