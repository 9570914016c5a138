// Package admission implements the dual-scope request gate checked before a
// workflow run starts. Two independent sliding windows are maintained: one
// keyed by caller identity and one global. A request is admitted only when
// both windows have headroom; rejection is immediate and carries the time
// until the oldest counted request exits the window.
package admission

import (
	"sync"
	"time"
)

// Scope names the budget that rejected a request.
type Scope string

const (
	// ScopeCaller is the per-caller budget.
	ScopeCaller Scope = "caller"
	// ScopeGlobal is the process-wide budget.
	ScopeGlobal Scope = "global"
)

// Decision is the outcome of an admission check. RetryAfter is positive on
// rejection and zero when allowed.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Scope      Scope
}

// Options configure a Limiter.
type Options struct {
	// CallerLimit is the per-caller ceiling within Window.
	CallerLimit int
	// GlobalLimit is the process-wide ceiling within Window.
	GlobalLimit int
	// Window is the trailing span over which requests are counted.
	Window time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Limiter is the dual-scope admission controller. It never blocks or
// queues; callers receive an immediate allow/reject decision. Safe for
// concurrent use: each scope's counter mutation is a single atomic region.
type Limiter struct {
	callerLimit int
	globalLimit int
	window      time.Duration
	now         func() time.Time

	mu      sync.Mutex
	global  *window
	callers map[string]*window
}

// window is one sliding-window counter: timestamps of counted requests,
// pruned lazily on every check.
type window struct {
	limit  int
	span   time.Duration
	stamps []time.Time
}

// New constructs a Limiter with the default budgets (20/min per caller,
// 100/min global) unless overridden.
func New(optFns ...func(o *Options)) *Limiter {
	opts := Options{
		CallerLimit: 20,
		GlobalLimit: 100,
		Window:      time.Minute,
		Now:         time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Limiter{
		callerLimit: opts.CallerLimit,
		globalLimit: opts.GlobalLimit,
		window:      opts.Window,
		now:         opts.Now,
		global:      &window{limit: opts.GlobalLimit, span: opts.Window},
		callers:     make(map[string]*window),
	}
}

// Admit checks both scopes for callerKey. The global budget is checked
// first so a saturated system rejects uniformly regardless of caller. A
// stamp is recorded in a scope only when that scope admits the request, so
// rejected requests do not consume budget.
func (l *Limiter) Admit(callerKey string) Decision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if wait, ok := l.global.reserve(now); !ok {
		return Decision{RetryAfter: wait, Scope: ScopeGlobal}
	}

	cw, ok := l.callers[callerKey]
	if !ok {
		cw = &window{limit: l.callerLimit, span: l.window}
		l.callers[callerKey] = cw
	}
	if wait, ok := cw.reserve(now); !ok {
		// Give back the global slot the rejected request grabbed.
		l.global.release()
		return Decision{RetryAfter: wait, Scope: ScopeCaller}
	}

	return Decision{Allowed: true}
}

// Remaining reports how many requests callerKey may still issue in the
// current window, for rate-limit introspection headers.
func (l *Limiter) Remaining(callerKey string) int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	cw, ok := l.callers[callerKey]
	if !ok {
		return l.callerLimit
	}
	cw.prune(now)
	return cw.limit - len(cw.stamps)
}

// reserve prunes expired stamps and either records the request and admits
// it, or reports the wait until the oldest stamp leaves the window.
func (w *window) reserve(now time.Time) (time.Duration, bool) {
	w.prune(now)
	if len(w.stamps) >= w.limit {
		wait := w.stamps[0].Add(w.span).Sub(now)
		if wait < 0 {
			wait = 0
		}
		return wait, false
	}
	w.stamps = append(w.stamps, now)
	return 0, true
}

// release removes the most recent stamp, undoing a reserve.
func (w *window) release() {
	if len(w.stamps) > 0 {
		w.stamps = w.stamps[:len(w.stamps)-1]
	}
}

// prune drops stamps older than the trailing window.
func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}
