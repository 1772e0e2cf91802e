package api

import (
	"buildtrack-backend/internal/auth"
	"buildtrack-backend/internal/metrics"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// windowCounter records a hit and returns the hits already in the window.
type windowCounter interface {
	Hit(ctx context.Context, key string, window time.Duration, now time.Time) (int64, error)
}

// redisCounter keeps one sorted set per key scored by hit time.
type redisCounter struct {
	client *redis.Client
}

func (c *redisCounter) Hit(ctx context.Context, key string, window time.Duration, now time.Time) (int64, error) {
	windowStart := now.Add(-window)

	pipe := c.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(windowStart.UnixMilli(), 10))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	pipe.Expire(ctx, key, window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("rate limit pipeline failed: %w", err)
	}
	return countCmd.Val(), nil
}

// RateLimiter implements a per-user sliding window on message writes.
// Reads and the realtime channel are not limited.
type RateLimiter struct {
	counter windowCounter
	limit   int
	window  time.Duration
	logger  zerolog.Logger
	now     func() time.Time
}

// NewRateLimiter creates a limiter allowing perMinute writes per user.
func NewRateLimiter(client *redis.Client, perMinute int, logger zerolog.Logger) *RateLimiter {
	return newRateLimiter(&redisCounter{client: client}, perMinute, logger)
}

func newRateLimiter(counter windowCounter, perMinute int, logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		counter: counter,
		limit:   perMinute,
		window:  time.Minute,
		logger:  logger.With().Str("component", "RateLimiter").Logger(),
		now:     time.Now,
	}
}

// Middleware must run after JwtAuthMiddleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		p, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		now := rl.now()
		key := "ratelimit:user:" + p.UserID.String()
		count, err := rl.counter.Hit(r.Context(), key, rl.window, now)
		if err != nil {
			// Fail open: a limiter outage must not stop chat writes.
			rl.logger.Warn().Err(err).Msg("rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}

		remaining := rl.limit - int(count) - 1
		if remaining < 0 {
			remaining = 0
		}
		resetAt := now.Add(rl.window)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if count >= int64(rl.limit) {
			metrics.RateLimitHits.Inc()
			rl.logger.Warn().
				Str("user_id", p.UserID.String()).
				Str("endpoint", r.URL.Path).
				Msg("rate limit exceeded")
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded","kind":"rate_limited"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}
