package gateway

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// IdentifyLock is a best-effort cross-cluster mutual-exclusion lock on a
// token's identify bucket (SPEC_FULL.md §6 note). It only matters when
// more than one process shares the same bot token's max_concurrency
// bucket, as the teacher's multi-cluster deployment does; a single
// process needs nothing beyond ConcurrencyLimiter.
//
// Grounded on the teacher's manager.go redis.NewClient(configuration.
// redisOptions) wiring; the lock primitive itself is SetNX with a TTL,
// the standard go-redis distributed-lock idiom rather than anything
// carried directly from the teacher (the teacher's own redis usage is
// entity-cache reads/writes, dropped per DESIGN.md).
type IdentifyLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewIdentifyLock builds a lock keyed per bucket, e.g. "sandwich-
// gateway:identify-lock:<bucket-key>".
func NewIdentifyLock(opts *redis.Options, key string, ttl time.Duration) *IdentifyLock {
	return &IdentifyLock{client: redis.NewClient(opts), key: key, ttl: ttl}
}

// Acquire blocks, polling at 100ms, until it holds the lock, ctx is
// canceled, or Redis returns an error.
func (l *IdentifyLock) Acquire(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, l.key, 1, l.ttl).Result()
		if err != nil {
			return err
		}

		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Release drops the lock early, letting the next waiting cluster proceed
// before ttl expires.
func (l *IdentifyLock) Release(ctx context.Context) error {
	return l.client.Del(ctx, l.key).Err()
}

// Close closes the underlying redis client.
func (l *IdentifyLock) Close() error {
	return l.client.Close()
}
