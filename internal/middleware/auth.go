package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tierhost/tierhost/internal/auth"
	"github.com/tierhost/tierhost/internal/model"
	"github.com/tierhost/tierhost/internal/repository"
)

// DefaultMinAuthFailure is the minimum time spent on a rejected credential,
// so invalid keys and unknown prefixes cost the same.
const DefaultMinAuthFailure = 200 * time.Millisecond

const lastUsedTimeout = 2 * time.Second

// KeyStore resolves API keys to their owners.
type KeyStore interface {
	GetKeyCandidatesByPrefix(ctx context.Context, prefix string) ([]repository.KeyCandidate, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id string) error
}

// PrincipalCache caches resolved principals by key hash.
type PrincipalCache interface {
	GetAuthContext(ctx context.Context, cacheKey string) (*model.AuthContext, error)
	SetAuthContext(ctx context.Context, cacheKey string, p *model.AuthContext) error
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger *slog.Logger
	Keys   KeyStore
	Cache  PrincipalCache // optional

	// MinFailureDuration pads rejected requests. Zero disables padding.
	MinFailureDuration time.Duration
}

// Auth authenticates requests by API key and injects the principal.
// Requests without a valid key are rejected with 401.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()

			principal, reason, err := authenticate(ctx, cfg, extractAPIKey(r))
			if err != nil {
				logger.Error("auth_lookup_failed",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(ctx)),
				)
			}
			if principal == nil {
				logger.Warn("authentication_failed",
					slog.String("reason", reason),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(ctx)),
				)
				if wait := cfg.MinFailureDuration - time.Since(start); wait > 0 {
					time.Sleep(wait)
				}
				writeError(w, http.StatusUnauthorized, MsgUnauthenticated)
				return
			}

			logger.Debug("authentication_succeeded",
				slog.String("key_prefix", principal.KeyPrefix),
				slog.String("user_id", principal.UserID),
				slog.String("request_id", GetRequestID(ctx)),
			)
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(ctx, principal)))
		})
	}
}

// authenticate resolves a plaintext key. A nil principal comes with the
// reason for rejection; err is set only for infrastructure failures.
func authenticate(ctx context.Context, cfg AuthConfig, key string) (*model.AuthContext, string, error) {
	if key == "" {
		return nil, "missing_key", nil
	}

	prefix, err := auth.KeyPrefix(key)
	if err != nil {
		return nil, "invalid_format", nil
	}

	// Step 1: Try cache
	cacheKey := auth.CacheKey(key)
	if cfg.Cache != nil {
		if p, err := cfg.Cache.GetAuthContext(ctx, cacheKey); err == nil && p != nil {
			return p, "", nil
		}
	}

	// Step 2: Candidates sharing the prefix
	candidates, err := cfg.Keys.GetKeyCandidatesByPrefix(ctx, prefix)
	if err != nil {
		return nil, "lookup_failed", err
	}

	// Step 3: Verify the secret against each candidate
	for _, c := range candidates {
		ok, err := auth.VerifySecret(key, c.Key.KeyHash)
		if err != nil || !ok {
			continue
		}

		p := &model.AuthContext{
			KeyID:     c.Key.ID,
			KeyPrefix: c.Key.KeyPrefix,
			UserID:    c.Owner.ID,
			Username:  c.Owner.Username,
			Tier:      c.Owner.Tier,
			Scopes:    c.Key.Scopes,
		}

		// Step 4: Backfill cache
		if cfg.Cache != nil {
			_ = cfg.Cache.SetAuthContext(ctx, cacheKey, p)
		}
		go touchKey(cfg.Keys, c.Key.ID)
		return p, "", nil
	}

	return nil, "invalid_key", nil
}

func touchKey(keys KeyStore, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), lastUsedTimeout)
	defer cancel()
	if err := keys.UpdateAPIKeyLastUsed(ctx, id); err != nil {
		slog.Warn("api_key_touch_failed", "key_id", id, "error", err)
	}
}

// extractAPIKey reads "Authorization: Bearer <key>" or "X-API-Key: <key>".
func extractAPIKey(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if key, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(key)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}
