package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/frameiq/queryflow/core"
)

// RedisOptions configure the Redis-backed store.
type RedisOptions struct {
	// TTL is the idle lifetime of a session; the server expires keys
	// natively so no eviction loop is needed.
	TTL time.Duration
	// KeyPrefix namespaces session keys within a shared instance.
	KeyPrefix string
}

// RedisStore persists sessions as JSON values with a server-side TTL.
// Get refreshes the TTL so expiry tracks idle time, matching the in-memory
// store's last-access semantics. Appends use a read-modify-write with the
// last writer winning on last-access refresh, which is acceptable for the
// conversational workload: turns for one session arrive from one caller.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an existing client. The caller owns the client's
// lifecycle up to Close.
func NewRedisStore(client *redis.Client, optFns ...func(o *RedisOptions)) *RedisStore {
	opts := RedisOptions{
		TTL:       24 * time.Hour,
		KeyPrefix: "conversation:",
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &RedisStore{client: client, ttl: opts.TTL, prefix: opts.KeyPrefix}
}

// NewRedisStoreFromURL connects using a redis:// URL and verifies the
// connection with a ping.
func NewRedisStoreFromURL(ctx context.Context, url string, optFns ...func(o *RedisOptions)) (*RedisStore, error) {
	ropts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(ropts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisStore(client, optFns...), nil
}

// Get loads and deserializes the session, refreshing its TTL.
func (s *RedisStore) Get(ctx context.Context, callerKey, sessKey string) (*Session, bool, error) {
	key := s.key(callerKey, sessKey)
	data, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to load session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	sess.LastAccess = time.Now().UTC()
	s.client.Expire(ctx, key, s.ttl)
	return &sess, true, nil
}

// Append adds turns to the session, creating it on first use, and rewrites
// the value with a fresh TTL.
func (s *RedisStore) Append(ctx context.Context, callerKey, sessKey string, turns ...core.Turn) error {
	sess, ok, err := s.Get(ctx, callerKey, sessKey)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if !ok {
		sess = &Session{CallerKey: callerKey, SessionKey: sessKey, Created: now}
	}
	sess.Turns = append(sess.Turns, turns...)
	sess.MessageCount += len(turns)
	sess.LastAccess = now

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return s.client.Set(ctx, s.key(callerKey, sessKey), data, s.ttl).Err()
}

// Close releases the underlying client.
func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) key(callerKey, sessKey string) string {
	return s.prefix + sessionKey(callerKey, sessKey)
}
