package httpapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/digiklausur/data-gateway/pkg/observability"
)

// RateLimiter throttles requests per client using a Redis-backed counter,
// so the limit holds across gateway instances. Redis outages fail open:
// losing rate limiting must not take the gateway down with it.
type RateLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
	prefix string
	log    *observability.Logger
}

// NewRateLimiter creates a limiter allowing limit requests per window.
func NewRateLimiter(client *redis.Client, limit int, window time.Duration, log *observability.Logger) *RateLimiter {
	return &RateLimiter{
		redis:  client,
		limit:  limit,
		window: window,
		prefix: "ratelimit",
		log:    log,
	}
}

// Allow reports whether the client identified by key may proceed.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("%s:%s", rl.prefix, key)

	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("redis error: %w", err)
	}

	return incr.Val() <= int64(rl.limit), nil
}

// Middleware wraps next with per-client-IP rate limiting.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "ip:" + clientIP(r)

		allowed, err := rl.Allow(r.Context(), key)
		if err != nil {
			rl.log.WithError(err).Warn("rate limiter unavailable, failing open")
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			retryAfter := rl.window
			if ttl, err := rl.redis.TTL(r.Context(), rl.prefix+":"+key).Result(); err == nil && ttl > 0 {
				retryAfter = ttl
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.Index(fwd, ","); idx >= 0 {
			fwd = fwd[:idx]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
