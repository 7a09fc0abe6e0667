// Package cache wraps Redis for the search-response/schema cache (C6) and
// the tier-aware rate limiter (C8). Every operation is fail-soft: a Redis
// outage degrades to "no cache"/"no limit" rather than failing the caller,
// mirroring the teacher corpus's "graceful degradation if Redis unavailable"
// philosophy.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the fail-soft cache facade used by the orchestrator (C5),
// which also caches the schema inspector's (C4) results, and by the
// analytics aggregator (C7).
type Store struct {
	client *redis.Client
	logger *slog.Logger
}

// New builds a Store from host/port/password, matching the config
// package's CACHE_* fields.
func New(addr, password string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		logger: logger,
	}
}

// NewWithClient wraps an existing *redis.Client, used by tests to inject a
// miniredis-backed client.
func NewWithClient(client *redis.Client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: client, logger: logger}
}

func (s *Store) warn(op string, err error) {
	s.logger.Warn("cache operation failed, degrading to miss", "op", op, "error", err)
}

// Get looks up key and unmarshals its JSON value into dest. A miss or any
// Redis error returns (false, nil) — callers treat both identically.
func (s *Store) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		s.warn("get", err)
		return false, nil
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		s.warn("get:unmarshal", err)
		return false, nil
	}
	return true, nil
}

// Set marshals value as JSON and stores it under key with the given TTL.
// Failures are logged and swallowed.
func (s *Store) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		s.warn("set:marshal", err)
		return
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		s.warn("set", err)
	}
}

// Del removes key. Failures are logged and swallowed.
func (s *Store) Del(ctx context.Context, key string) {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.warn("del", err)
	}
}

// Incr increments key and returns the new value. On failure it returns 0
// and false so a rate limiter can fail open.
func (s *Store) Incr(ctx context.Context, key string) (int64, bool) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		s.warn("incr", err)
		return 0, false
	}
	return n, true
}

// Expire sets a TTL on an existing key, best-effort.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		s.warn("expire", err)
	}
}

// ZAdd adds member with score to a sorted set, best-effort.
func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) {
	if err := s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		s.warn("zadd", err)
	}
}

// ZRevRange returns the top n members of a sorted set by descending score.
// On failure it returns an empty slice rather than an error.
func (s *Store) ZRevRange(ctx context.Context, key string, n int64) []string {
	members, err := s.client.ZRevRange(ctx, key, 0, n-1).Result()
	if err != nil {
		s.warn("zrevrange", err)
		return nil
	}
	return members
}

// Ping reports whether the underlying Redis connection is reachable.
func (s *Store) Ping(ctx context.Context) bool {
	return s.client.Ping(ctx).Err() == nil
}

// Close releases the underlying client's connections.
func (s *Store) Close() error {
	return s.client.Close()
}
