// Package memory provides the short-lived conversation store consulted and
// updated by the orchestration façade. Sessions are keyed by caller id plus
// session id, hold an append-only ordered turn list, and are evicted once
// idle beyond a fixed time-to-live.
//
// Two implementations exist: a process-local store with per-session locking
// and a background eviction sweep, and a Redis-backed store that delegates
// expiry to the server's native TTL. Pick one at wiring time via the Store
// interface.
package memory
