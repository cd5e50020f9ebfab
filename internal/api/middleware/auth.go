package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/panday-team/panday/internal/api/response"
)

// Auth middleware validates the static API key sent as "Authorization: Bearer <key>".
// Keys are compared in constant time.
func Auth(apiKey string) func(http.Handler) http.Handler {
	expected := []byte(apiKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.RespondUnauthorized(w, "Missing Authorization header")

				return
			}

			// Expected format: "Bearer <api-key>"
			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") {
				response.RespondUnauthorized(w, "Invalid Authorization header format. Expected: Bearer <api-key>")

				return
			}

			token = strings.TrimSpace(token)
			if token == "" {
				response.RespondUnauthorized(w, "API key is empty")

				return
			}

			if len(expected) == 0 || subtle.ConstantTimeCompare([]byte(token), expected) != 1 {
				response.RespondUnauthorized(w, "Invalid API key")

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
