package memory

import (
	"context"
	"sync"
	"time"

	"github.com/frameiq/queryflow/core"
)

// Options configure the in-memory store.
type Options struct {
	// TTL is the idle lifetime of a session.
	TTL time.Duration
	// SweepInterval is how often the background eviction runs. Zero
	// disables the sweep; expiry is then enforced lazily on Get only.
	SweepInterval time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// entry pairs a session with its own lock so concurrent turns for the same
// session serialize without blocking other sessions.
type entry struct {
	mu   sync.Mutex
	sess *Session
}

// InMemoryStore is a process-local Store. The session map is guarded by a
// read-write mutex; per-session mutation happens under the entry lock. The
// eviction sweep runs on its own goroutine and never blocks request
// handling: it may race with an in-flight append, in which case the append
// wins by refreshing last-access.
type InMemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]*entry

	done      chan struct{}
	closeOnce sync.Once
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore constructs a store with a 24 hour TTL and a periodic
// eviction sweep unless overridden.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	opts := Options{
		TTL:           24 * time.Hour,
		SweepInterval: 10 * time.Minute,
		Now:           time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &InMemoryStore{
		ttl:      opts.TTL,
		now:      opts.Now,
		sessions: make(map[string]*entry),
		done:     make(chan struct{}),
	}

	if opts.SweepInterval > 0 {
		go s.sweep(opts.SweepInterval)
	}

	return s
}

// Get returns a snapshot of the session. Expired sessions are treated as
// absent and removed eagerly.
func (s *InMemoryStore) Get(_ context.Context, callerKey, sessKey string) (*Session, bool, error) {
	key := sessionKey(callerKey, sessKey)

	s.mu.RLock()
	e, ok := s.sessions[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := s.now()
	if s.expired(e.sess, now) {
		s.remove(key)
		return nil, false, nil
	}
	e.sess.LastAccess = now
	return e.sess.Clone(), true, nil
}

// Append adds turns to the session, creating it on first use.
func (s *InMemoryStore) Append(_ context.Context, callerKey, sessKey string, turns ...core.Turn) error {
	key := sessionKey(callerKey, sessKey)
	now := s.now()

	s.mu.Lock()
	e, ok := s.sessions[key]
	if !ok {
		e = &entry{sess: &Session{
			CallerKey:  callerKey,
			SessionKey: sessKey,
			Created:    now,
		}}
		s.sessions[key] = e
	}
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// The sweep (or an expired Get) may have removed the entry between the
	// two locks; reinsert it so these turns do not land on an orphan.
	s.mu.Lock()
	if s.sessions[key] != e {
		s.sessions[key] = e
	}
	s.mu.Unlock()

	if s.expired(e.sess, now) {
		// The session lapsed between creation and this append; restart it
		// rather than resurrecting stale turns.
		e.sess.Turns = nil
		e.sess.MessageCount = 0
		e.sess.Created = now
	}
	e.sess.Turns = append(e.sess.Turns, turns...)
	e.sess.MessageCount += len(turns)
	e.sess.LastAccess = now
	return nil
}

// Evict removes every session idle beyond the TTL and reports how many were
// dropped. Called periodically by the sweep goroutine; exported so callers
// with their own scheduling can trigger it directly.
func (s *InMemoryStore) Evict() int {
	now := s.now()

	s.mu.RLock()
	keys := make([]string, 0, len(s.sessions))
	for k := range s.sessions {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	evicted := 0
	for _, k := range keys {
		s.mu.RLock()
		e, ok := s.sessions[k]
		s.mu.RUnlock()
		if !ok {
			continue
		}
		e.mu.Lock()
		if s.expired(e.sess, now) {
			s.remove(k)
			evicted++
		}
		e.mu.Unlock()
	}
	return evicted
}

// Len reports the number of live sessions, for introspection and tests.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close stops the eviction sweep.
func (s *InMemoryStore) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func (s *InMemoryStore) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.Evict()
		}
	}
}

func (s *InMemoryStore) expired(sess *Session, now time.Time) bool {
	last := sess.LastAccess
	if last.IsZero() {
		last = sess.Created
	}
	return now.Sub(last) > s.ttl
}

func (s *InMemoryStore) remove(key string) {
	s.mu.Lock()
	delete(s.sessions, key)
	s.mu.Unlock()
}
