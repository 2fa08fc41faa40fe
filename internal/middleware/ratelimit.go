package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/tierhost/tierhost/internal/auth"
	"github.com/tierhost/tierhost/internal/cache"
	"github.com/tierhost/tierhost/internal/model"
)

// Limiter consumes request budgets.
type Limiter interface {
	CheckUserRateLimit(ctx context.Context, userID string, perMinute, burst int) (*cache.RateLimitResult, error)
	CheckIPRateLimit(ctx context.Context, ip string, perSecond, burst int) (*cache.RateLimitResult, error)
}

// RateLimitConfig holds configuration for rate limiting middleware.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Limiter Limiter

	// Per-user limits, sized by tier.
	UserEnabled bool

	// Per-IP limits for link redemption.
	IPEnabled bool
	IPRPS     int
	IPBurst   int
}

// RateLimitUser limits authenticated requests per user using the budget of
// the user's tier. Must be applied after Auth middleware.
func RateLimitUser(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.PrincipalFrom(r.Context())
			if !cfg.UserEnabled || p == nil {
				next.ServeHTTP(w, r)
				return
			}

			limits := model.RateLimitFor(p.Tier)
			result, err := cfg.Limiter.CheckUserRateLimit(r.Context(), p.UserID, limits.RequestsPerMinute, limits.Burst)
			if err != nil {
				cfg.logger().Error("rate_limit_check_failed",
					slog.String("error", err.Error()),
					slog.String("user_id", p.UserID),
				)
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w, limits.RequestsPerMinute, result)
			if !result.Allowed {
				cfg.logger().Warn("rate_limit_exceeded",
					slog.String("type", "user"),
					slog.String("user_id", p.UserID),
					slog.String("tier", string(p.Tier)),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeRateLimitError(w, result.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitIP limits requests per client IP. Used on link redemption, which
// is the endpoint most exposed to token guessing.
func RateLimitIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.IPEnabled {
				next.ServeHTTP(w, r)
				return
			}

			ip := remoteIP(r)
			result, err := cfg.Limiter.CheckIPRateLimit(r.Context(), ip, cfg.IPRPS, cfg.IPBurst)
			if err != nil {
				cfg.logger().Error("rate_limit_check_failed",
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			if !result.Allowed {
				cfg.logger().Warn("rate_limit_exceeded",
					slog.String("type", "ip"),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeRateLimitError(w, result.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (c RateLimitConfig) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func setRateLimitHeaders(w http.ResponseWriter, limit int, res *cache.RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}

// writeRateLimitError writes a 429 Too Many Requests response.
func writeRateLimitError(w http.ResponseWriter, retryAfter time.Duration) {
	secs := max(int(retryAfter.Seconds()), 1)
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeError(w, http.StatusTooManyRequests,
		fmt.Sprintf("Request was throttled. Expected available in %d seconds.", secs))
}

// remoteIP returns the host part of RemoteAddr. Proxy headers are resolved
// earlier by chi's RealIP middleware.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
