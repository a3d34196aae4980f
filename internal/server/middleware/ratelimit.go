package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/agentstation/sails/internal/server/response"
	"github.com/agentstation/sails/pkg/constants"
)

// RateLimiter allows a fixed number of requests per client IP in each window.
// Visitor state lives in an expiring cache, so idle clients age out on their own.
type RateLimiter struct {
	mu       sync.Mutex
	visitors *cache.Cache
	limit    int
	window   time.Duration
	logger   *zerolog.Logger
}

// visitor tracks rate limit state for a single IP.
type visitor struct {
	remaining int
}

// NewRateLimiter creates a new rate limiter allowing limit requests per
// window for each IP.
func NewRateLimiter(limit int, window time.Duration, logger *zerolog.Logger) *RateLimiter {
	if window <= 0 {
		window = constants.RateLimitWindow
	}
	return &RateLimiter{
		visitors: cache.New(window, constants.CacheCleanupInterval),
		limit:    limit,
		window:   window,
		logger:   logger,
	}
}

// allow checks if a request from the IP is allowed.
func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if v, found := rl.visitors.Get(ip); found {
		vis := v.(*visitor)
		if vis.remaining <= 0 {
			return false
		}
		vis.remaining--
		return true
	}

	if rl.limit <= 0 {
		return false
	}
	rl.visitors.Set(ip, &visitor{remaining: rl.limit - 1}, rl.window)
	return true
}

// clientIP prefers the first X-Forwarded-For hop and falls back to the
// connection's remote host.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateLimit middleware limits requests per IP address.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !rl.allow(ip) {
				rl.logger.Warn().
					Str("ip", ip).
					Str("path", r.URL.Path).
					Msg("Rate limit exceeded")

				response.RateLimited(w, "Too many requests. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
