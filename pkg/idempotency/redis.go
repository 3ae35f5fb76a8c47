// Package idempotency guards against EventBridge's at-least-once delivery by
// remembering alarm_event_ids already handled within a dedup window. It is
// not part of the core decision algebra: a store miss or an unreachable
// store is treated as "not seen" — a cache failure must never block
// processing.
package idempotency

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the dedup cache AlarmEventHandler checks before running the
// Controller's first-contact decision.
type Store interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkSeen(ctx context.Context, eventID string, ttl time.Duration) error
}

// RedisStore is the production Store, backed by Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials addr. A connection error here is not fatal — the
// returned store simply fails open on every call.
func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// Seen reports whether eventID has been recorded and is still within its
// TTL. Any Redis error is logged and reported as "not seen".
func (s *RedisStore) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, key(eventID)).Result()
	if err != nil {
		log.Printf("warn: idempotency store unreachable, failing open: %v", err)
		return false, err
	}
	return n > 0, nil
}

// MarkSeen records eventID for ttl.
func (s *RedisStore) MarkSeen(ctx context.Context, eventID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key(eventID), "1", ttl).Err(); err != nil {
		log.Printf("warn: idempotency store write failed: %v", err)
		return err
	}
	return nil
}

func key(eventID string) string {
	return "alb-shed:idempotency:" + eventID
}

// NoopStore is used when IDEMPOTENCY_REDIS_ADDR is unset: it always reports
// "not seen", per SPEC_FULL.md §6.
type NoopStore struct{}

var _ Store = NoopStore{}

func (NoopStore) Seen(ctx context.Context, eventID string) (bool, error) { return false, nil }

func (NoopStore) MarkSeen(ctx context.Context, eventID string, ttl time.Duration) error { return nil }
