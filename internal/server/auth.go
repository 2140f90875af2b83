package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// validateToken checks an "Authorization: Bearer <token>" header value.
// An empty expected token disables the check.
func validateToken(authHeader, expected string) bool {
	if expected == "" {
		return true
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return false
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	return subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1
}

// authorized accepts the bearer header, or the token query parameter when
// allowQuery is set (browsers cannot add headers to WebSocket handshakes).
func authorized(r *http.Request, expected string, allowQuery bool) bool {
	if validateToken(r.Header.Get("Authorization"), expected) {
		return true
	}
	if allowQuery {
		if token := r.URL.Query().Get("token"); token != "" {
			return subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1
		}
	}
	return false
}

// requireAuth rejects requests without a valid bearer token
func requireAuth(expected string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r, expected, false) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
