package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestLimiter_DisabledEnvironments(t *testing.T) {
	for _, env := range []string{"", "test", "development", "stress"} {
		l := NewLimiter(nil, env)
		for i := 0; i < 5; i++ {
			assert.True(t, l.Allow(context.Background(), "signup", "ip:1", 1, time.Minute), env)
		}
	}
}

func TestLimiter_Redis(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewLimiter(rdb, "production")
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "login", "ip:1", 2, time.Minute))
	assert.True(t, l.Allow(ctx, "login", "ip:1", 2, time.Minute))
	assert.False(t, l.Allow(ctx, "login", "ip:1", 2, time.Minute))

	// Other callers and resources have their own counters.
	assert.True(t, l.Allow(ctx, "login", "ip:2", 2, time.Minute))
	assert.True(t, l.Allow(ctx, "signup", "ip:1", 2, time.Minute))

	assert.Equal(t, time.Minute, mr.TTL("rl:login:ip:1"))
	mr.FastForward(time.Minute + time.Second)
	assert.True(t, l.Allow(ctx, "login", "ip:1", 2, time.Minute))
}

func TestLimiter_RedisCounterAlwaysExpires(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewLimiter(rdb, "production")
	ctx := context.Background()

	require.True(t, l.Allow(ctx, "post", "user:1", 3, time.Minute))
	got, err := mr.Get("rl:post:user:1")
	require.NoError(t, err)
	assert.Equal(t, "1", got)
	assert.Equal(t, time.Minute, mr.TTL("rl:post:user:1"))

	// A counter stranded without an expiry is repaired on the next request.
	require.NoError(t, mr.Set("rl:post:user:2", "10"))
	assert.False(t, l.Allow(ctx, "post", "user:2", 3, time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("rl:post:user:2"))

	mr.FastForward(time.Minute + time.Second)
	assert.True(t, l.Allow(ctx, "post", "user:2", 3, time.Minute))
}

func TestLimiter_FallsBackWhenRedisFails(t *testing.T) {
	mr, rdb := newTestRedis(t)
	mr.Close()

	l := NewLimiter(rdb, "production")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "post", "user:1", 2, time.Minute))
	assert.True(t, l.Allow(ctx, "post", "user:1", 2, time.Minute))
	assert.False(t, l.Allow(ctx, "post", "user:1", 2, time.Minute))

	// One token refills every window/limit.
	now = now.Add(30 * time.Second)
	assert.True(t, l.Allow(ctx, "post", "user:1", 2, time.Minute))
	assert.False(t, l.Allow(ctx, "post", "user:1", 2, time.Minute))
}

func TestLimiter_Handler(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := NewLimiter(rdb, "production")

	app := fiber.New()
	app.Post("/login", l.Handler("login", 1, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/login", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/login", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
}

func TestLimiter_HandlerKeysByUser(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := NewLimiter(rdb, "production")

	app := fiber.New()
	app.Post("/post", func(c *fiber.Ctx) error {
		c.Locals(LocalUserID, uint(c.QueryInt("user")))
		return c.Next()
	}, l.Handler("create_post", 1, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusCreated)
	})

	for _, tc := range []struct {
		url    string
		status int
	}{
		{"/post?user=1", http.StatusCreated},
		{"/post?user=2", http.StatusCreated},
		{"/post?user=1", http.StatusTooManyRequests},
	} {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, tc.url, nil))
		require.NoError(t, err)
		assert.Equal(t, tc.status, resp.StatusCode, tc.url)
	}
}
