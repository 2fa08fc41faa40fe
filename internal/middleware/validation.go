package middleware

import (
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
)

// Path parameter formats.
var (
	// TokenPattern matches temporary link tokens.
	TokenPattern = regexp.MustCompile(`^[-a-zA-Z0-9_]{1,64}$`)

	// IDPattern matches entity ids (ULIDs and legacy ids alike).
	IDPattern = regexp.MustCompile(`^[0-9A-Za-z]{1,64}$`)
)

// ValidateParam answers 404 when the named chi URL parameter does not match
// pattern, so malformed ids never reach the store.
func ValidateParam(name string, pattern *regexp.Regexp) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !pattern.MatchString(chi.URLParam(r, name)) {
				writeError(w, http.StatusNotFound, MsgNotFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
