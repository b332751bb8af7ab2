package limiter

import (
	"context"
	"log"
	"time"

	"github.com/go-redis/redis_rate/v10"
	toolkit "github.com/hiendaovinh/toolkit/pkg/limiter"
	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is re-exported so callers can match the toolkit sentinel the
// way the rest of the codebase does.
var ErrRateLimited = toolkit.ErrRateLimited

// Result carries what callers need to build a Retry-After hint.
type Result struct {
	Remaining  int
	RetryAfter time.Duration
	ResetAfter time.Duration
}

type allower interface {
	Allow(ctx context.Context, key string, limit redis_rate.Limit) (*redis_rate.Result, error)
}

// Limiter wraps a redis_rate sliding-window counter. The counter store is
// shared across all service instances; nothing is tracked in-process.
type Limiter struct {
	rl allower
}

func NewLimiter(client redis.UniversalClient) (*Limiter, error) {
	return &Limiter{redis_rate.NewLimiter(client)}, nil
}

// Allow consumes one unit of quota for key. When the counter store is
// unreachable the request is allowed and a degraded-mode warning is logged:
// availability over strictness, deliberately.
func (l *Limiter) Allow(ctx context.Context, key string, limit redis_rate.Limit) (*Result, error) {
	res, err := l.rl.Allow(ctx, key, limit)
	if err != nil {
		log.Printf("limiter degraded, allowing %s: %v", key, err)
		return &Result{Remaining: limit.Rate}, nil
	}

	out := &Result{
		Remaining:  res.Remaining,
		RetryAfter: res.RetryAfter,
		ResetAfter: res.ResetAfter,
	}

	if res.Allowed == 0 {
		return out, ErrRateLimited
	}
	return out, nil
}
