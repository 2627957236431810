package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pulsefeed/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// MsgRateLimited is the body of a 429 response.
const MsgRateLimited = "Too many requests, please try again later."

// maxLocalBuckets bounds the in-process fallback before idle buckets are pruned.
const maxLocalBuckets = 10000

type localBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter counts requests per resource and caller in Redis. When Redis is
// unavailable it falls back to an in-process token bucket per key.
type Limiter struct {
	rdb      *redis.Client
	disabled bool
	now      func() time.Time

	mu    sync.Mutex
	local map[string]*localBucket
}

// NewLimiter returns a limiter for env. Rate limiting is disabled when env is
// "test", "development" or "stress" so dev and load test workflows are not throttled.
func NewLimiter(rdb *redis.Client, env string) *Limiter {
	disabled := false
	switch env {
	case "", "test", "development", "stress":
		disabled = true
	}
	return &Limiter{
		rdb:      rdb,
		disabled: disabled,
		now:      time.Now,
		local:    map[string]*localBucket{},
	}
}

// Allow reports whether one more request for (resource, id) fits in limit per window.
func (l *Limiter) Allow(ctx context.Context, resource, id string, limit int, window time.Duration) bool {
	if l.disabled {
		return true
	}
	key := fmt.Sprintf("rl:%s:%s", resource, id)

	if l.rdb != nil {
		allowed, err := l.allowRedis(ctx, key, limit, window)
		if err == nil {
			return allowed
		}
		Logger.WarnContext(ctx, "Rate limit store unavailable, using local limiter",
			slog.String("resource", resource),
			slog.String("error", err.Error()),
		)
	}
	return l.allowLocal(key, limit, window)
}

func (l *Limiter) allowRedis(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	// The counter is created with its expiry in the same transaction as INCR.
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, 0, window)
		incr = pipe.Incr(ctx, key)
		ttl = pipe.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return false, err
	}
	// A counter left without an expiry would throttle the caller forever.
	if ttl.Val() < 0 {
		if err := l.rdb.Expire(ctx, key, window).Err(); err != nil {
			return false, err
		}
	}
	return incr.Val() <= int64(limit), nil
}

func (l *Limiter) allowLocal(key string, limit int, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.local[key]
	if !ok {
		if len(l.local) >= maxLocalBuckets {
			l.pruneLocked(now, window)
		}
		every := window / time.Duration(max(limit, 1))
		b = &localBucket{limiter: rate.NewLimiter(rate.Every(every), limit)}
		l.local[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (l *Limiter) pruneLocked(now time.Time, idle time.Duration) {
	for k, b := range l.local {
		if now.Sub(b.lastSeen) > idle {
			delete(l.local, k)
		}
	}
}

// Handler returns a Fiber middleware enforcing limit requests per window on
// resource. It keys by authenticated user when known, otherwise by remote IP.
func (l *Limiter) Handler(resource string, limit int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var id string
		if uid, ok := CurrentUserID(c); ok {
			id = fmt.Sprintf("user:%d", uid)
		} else {
			id = "ip:" + c.IP()
		}

		if !l.Allow(c.UserContext(), resource, id, limit, window) {
			c.Set(fiber.HeaderRetryAfter, fmt.Sprintf("%d", int(window.Seconds())))
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Error: MsgRateLimited,
				Code:  models.CodeRateLimited,
			})
		}
		return c.Next()
	}
}
