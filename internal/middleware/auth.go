package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/hookline-systems/hookline/internal/httputil"
)

// BearerAuth rejects requests that do not carry the configured static
// bearer token. An empty configured token disables the check (local
// development only).
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			got := ExtractBearer(r.Header.Get("Authorization"))
			if got == "" {
				httputil.WriteError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				httputil.WriteError(w, http.StatusUnauthorized, "invalid bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ExtractBearer returns the credential from an Authorization header,
// or "" when the header is absent or not a Bearer scheme.
func ExtractBearer(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
