package security

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// AttemptLimiter counts attempts per key inside a fixed window.
type AttemptLimiter interface {
	// Attempt records an attempt on key and reports whether it is within the
	// threshold. Recording and checking are a single step, so concurrent
	// callers can never exceed the threshold between them.
	Attempt(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

type window struct {
	count   int
	resetAt time.Time
}

type MemoryLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string]window
	now     func() time.Time
}

func NewMemoryLimiter(max int, win time.Duration) *MemoryLimiter {
	return &MemoryLimiter{max: max, window: win, entries: make(map[string]window), now: time.Now}
}

func (l *MemoryLimiter) current(key string) window {
	w, ok := l.entries[key]
	if !ok || !l.now().Before(w.resetAt) {
		return window{}
	}
	return w
}

func (l *MemoryLimiter) Attempt(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.current(key)
	if w.count == 0 {
		w.resetAt = l.now().Add(l.window)
	}
	w.count++
	l.entries[key] = w
	return w.count <= l.max, nil
}

func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
	return nil
}

// RedisLimiter shares failure counts across server instances.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	max    int
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, max int, win time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: "attempts:", max: max, window: win}
}

// Attempt increments the shared counter inside MULTI/EXEC and compares the
// returned value, so the check is decided by the INCR itself.
func (l *RedisLimiter) Attempt(ctx context.Context, key string) (bool, error) {
	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, l.prefix+key)
	pipe.ExpireNX(ctx, l.prefix+key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("record attempt: %w", err)
	}
	return incr.Val() <= int64(l.max), nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.prefix+key).Err()
}
