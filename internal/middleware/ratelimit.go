package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/babynest/backend/pkg/clientip"
	"github.com/babynest/backend/pkg/logger"
)

const (
	// RateLimitWindow is 120 seconds
	RateLimitWindow = 120 * time.Second
	// RateLimitMaxRequests is the maximum number of requests allowed in the window
	RateLimitMaxRequests = 120
	// RateLimitKeyPrefix is the Redis key prefix for rate limiting
	RateLimitKeyPrefix = "ratelimit:"
	// BlockedIPKeyPrefix is the Redis key prefix for blocked IPs
	BlockedIPKeyPrefix = "blocked_ip:"
	// BlockedIPDuration is how long an IP stays blocked after exceeding the limit
	BlockedIPDuration = 15 * time.Minute
)

// RedisRateLimiter is a fixed-window per-IP limiter shared by all instances.
// An IP that exceeds the window is blocked for BlockedIPDuration. Redis
// errors fail open.
type RedisRateLimiter struct {
	client     *redis.Client
	limit      int64
	window     time.Duration
	block      time.Duration
	trustProxy bool
}

func NewRedisRateLimiter(client *redis.Client, trustProxy bool) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:     client,
		limit:      RateLimitMaxRequests,
		window:     RateLimitWindow,
		block:      BlockedIPDuration,
		trustProxy: trustProxy,
	}
}

func (l *RedisRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ip := clientip.RealClientIP(r, l.trustProxy)
		blockedKey := BlockedIPKeyPrefix + ip

		blocked, err := l.client.Exists(ctx, blockedKey).Result()
		if err != nil {
			logger.Warn("ratelimit: redis unavailable, allowing request", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if blocked > 0 {
			writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
			return
		}

		key := RateLimitKeyPrefix + ip
		count, err := l.client.Incr(ctx, key).Result()
		if err != nil {
			logger.Warn("ratelimit: redis unavailable, allowing request", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if count == 1 {
			// First hit opens the window.
			if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
				logger.Warn("ratelimit: failed to set window", "ip", ip, "error", err)
			}
		}

		if count > l.limit {
			if err := l.client.Set(ctx, blockedKey, "1", l.block).Err(); err != nil {
				logger.Warn("ratelimit: failed to block ip", "ip", ip, "error", err)
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(l.block.Seconds())))
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(l.limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(l.limit-count, 10))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(l.window).Unix(), 10))
		next.ServeHTTP(w, r)
	})
}
