package memory

import (
	"context"
	"time"

	"github.com/frameiq/queryflow/core"
)

// Session is the caller-scoped conversational context spanning multiple
// runs. The turn list is append-only during the session's lifetime.
type Session struct {
	CallerKey  string      `json:"caller_key"`
	SessionKey string      `json:"session_key"`
	Turns      []core.Turn `json:"turns"`
	// MessageCount is the total number of turns appended over the
	// session's lifetime.
	MessageCount int       `json:"message_count"`
	Created      time.Time `json:"created"`
	LastAccess   time.Time `json:"last_access"`
}

// Clone returns a deep copy safe for use outside the store's locks.
func (s *Session) Clone() *Session {
	turns := make([]core.Turn, len(s.Turns))
	copy(turns, s.Turns)
	c := *s
	c.Turns = turns
	return &c
}

// Store abstracts conversation persistence. Reads and writes to the same
// session key are mutually exclusive inside each implementation; different
// sessions do not contend. A session idle beyond the TTL is reported as
// absent.
type Store interface {
	// Get returns a snapshot of the session, refreshing its last-access
	// time. The boolean is false when the session does not exist or has
	// expired.
	Get(ctx context.Context, callerKey, sessionKey string) (*Session, bool, error)

	// Append adds turns to the session, creating it on first use.
	Append(ctx context.Context, callerKey, sessionKey string, turns ...core.Turn) error

	// Close releases background resources (eviction loops, connections).
	Close() error
}

// sessionKey joins the two identity components into one storage key.
func sessionKey(callerKey, sessionKey string) string {
	return callerKey + "/" + sessionKey
}
