package session

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brickfolio/brickfolio/internal/platform/httpx"
)

// LoginLimiter applies a fixed-window per-IP ceiling to the credential
// endpoints. The counter lives in Redis so the ceiling holds across
// instances. Redis outages fail open: blunting credential stuffing is not
// worth taking logins down with the cache.
type LoginLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	logger *slog.Logger
}

// NewLoginLimiter constructs a limiter allowing limit requests per window per IP.
func NewLoginLimiter(client *redis.Client, limit int, window time.Duration, logger *slog.Logger) *LoginLimiter {
	return &LoginLimiter{client: client, limit: limit, window: window, logger: logger}
}

// Allow increments the caller's window counter and reports whether the
// request is under the ceiling, along with the time until the window resets.
func (l *LoginLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	redisKey := "ratelimit:credentials:" + key

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, 0, err
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return false, 0, err
		}
	}
	if count <= int64(l.limit) {
		return true, 0, nil
	}
	ttl, err := l.client.TTL(ctx, redisKey).Result()
	if err != nil || ttl < 0 {
		ttl = l.window
	}
	return false, ttl, nil
}

// Handler wraps login/registration endpoints with the per-IP ceiling.
func (l *LoginLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, retryAfter, err := l.Allow(r.Context(), clientIP(r))
		if err != nil {
			if l.logger != nil {
				l.logger.Warn("login rate limiter unavailable", slog.Any("error", err))
			}
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			httpx.Problem(w, http.StatusTooManyRequests, "RATE_LIMITED",
				fmt.Sprintf("too many attempts, retry in %ds", int(retryAfter.Seconds())+1))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP relies on chi's RealIP middleware having already rewritten
// RemoteAddr from forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
