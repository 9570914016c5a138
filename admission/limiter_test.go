package admission

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock for deterministic window tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLimiter_CallerBudget(t *testing.T) {
	clock := newFakeClock()
	l := New(func(o *Options) {
		o.CallerLimit = 20
		o.GlobalLimit = 100
		o.Now = clock.Now
	})

	// Scenario: 21 requests from one caller within one minute.
	for i := 0; i < 20; i++ {
		d := l.Admit("alice")
		require.True(t, d.Allowed, "request %d should be admitted", i+1)
		clock.Advance(time.Second)
	}

	d := l.Admit("alice")
	require.False(t, d.Allowed, "21st request within the window must be rejected")
	assert.Equal(t, ScopeCaller, d.Scope)
	assert.Greater(t, d.RetryAfter, time.Duration(0))

	// Other callers are unaffected.
	assert.True(t, l.Admit("bob").Allowed)

	// Once the oldest request leaves the window the caller is admitted again.
	clock.Advance(d.RetryAfter + time.Millisecond)
	assert.True(t, l.Admit("alice").Allowed)
}

func TestLimiter_GlobalBudget(t *testing.T) {
	clock := newFakeClock()
	l := New(func(o *Options) {
		o.CallerLimit = 10
		o.GlobalLimit = 15
		o.Now = clock.Now
	})

	for i := 0; i < 15; i++ {
		d := l.Admit("caller-" + string(rune('a'+i%5)))
		require.True(t, d.Allowed)
	}

	d := l.Admit("caller-z")
	require.False(t, d.Allowed)
	assert.Equal(t, ScopeGlobal, d.Scope)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
}

func TestLimiter_RejectionConsumesNoBudget(t *testing.T) {
	clock := newFakeClock()
	l := New(func(o *Options) {
		o.CallerLimit = 1
		o.GlobalLimit = 100
		o.Now = clock.Now
	})

	require.True(t, l.Admit("alice").Allowed)
	for i := 0; i < 5; i++ {
		require.False(t, l.Admit("alice").Allowed)
	}

	// Caller rejections must not have eaten global slots.
	assert.Equal(t, 100-1, 100-len(l.global.stamps))
}

func TestLimiter_Remaining(t *testing.T) {
	clock := newFakeClock()
	l := New(func(o *Options) {
		o.CallerLimit = 3
		o.Now = clock.Now
	})

	assert.Equal(t, 3, l.Remaining("alice"))
	l.Admit("alice")
	l.Admit("alice")
	assert.Equal(t, 1, l.Remaining("alice"))

	clock.Advance(time.Minute + time.Second)
	assert.Equal(t, 3, l.Remaining("alice"))
}

func TestLimiter_ConcurrentAdmits(t *testing.T) {
	l := New(func(o *Options) {
		o.CallerLimit = 50
		o.GlobalLimit = 50
	})

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Admit("shared").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Exactly the ceiling is admitted, never more, regardless of interleaving.
	assert.Equal(t, 50, allowed)
}
