// Package ratelimit bounds request rate per client identity for the public
// read endpoints. It is abuse mitigation only; a limiter failure never
// touches inventory state.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// Limiter counts requests per client key in fixed Redis windows. Counters
// tolerate eventual consistency; approximate limiting is acceptable.
type Limiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewLimiter(client *redis.Client, limit int, window time.Duration) *Limiter {
	return &Limiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

func (l *Limiter) Limit(ctx context.Context, clientKey string) (*Result, error) {
	key := fmt.Sprintf("ratelimit:%s", clientKey)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to increment rate counter: %w", err)
	}
	if count == 1 {
		l.client.Expire(ctx, key, l.window)
	}

	ttl, err := l.client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = l.window
	}

	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return &Result{
		Allowed:   count <= int64(l.limit),
		Remaining: remaining,
		Reset:     time.Now().Add(ttl),
	}, nil
}
