package middleware

import (
	"net/http"

	"github.com/tierhost/tierhost/internal/auth"
	"github.com/tierhost/tierhost/internal/model"
)

// RequireScope returns middleware that enforces scope requirements.
// Must be applied after Auth middleware.
// If multiple scopes are provided, having ANY of them is sufficient.
func RequireScope(required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.PrincipalFrom(r.Context())
			if p == nil {
				writeError(w, http.StatusUnauthorized, MsgUnauthenticated)
				return
			}

			for _, scope := range required {
				if p.HasScope(scope) {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, MsgPermissionDenied)
		})
	}
}

// RequireRead is a convenience middleware for read scope.
func RequireRead() func(http.Handler) http.Handler {
	return RequireScope(model.ScopeRead)
}

// RequireWrite is a convenience middleware for write scope.
func RequireWrite() func(http.Handler) http.Handler {
	return RequireScope(model.ScopeWrite)
}

// RequireAdmin guards the user administration API.
func RequireAdmin() func(http.Handler) http.Handler {
	return RequireScope(model.ScopeAdmin)
}

// RequireMethodScope picks read scope for safe methods and write scope for
// everything else.
func RequireMethodScope() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		read := RequireRead()(next)
		write := RequireWrite()(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				read.ServeHTTP(w, r)
			default:
				write.ServeHTTP(w, r)
			}
		})
	}
}
