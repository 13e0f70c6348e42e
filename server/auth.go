package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"hyc/hyc-node/logging"
)

// Withdrawals carry their own proof and views are public. Everything that moves funds or
// changes pool settings on the node's word alone sits behind the API key.
var protectedPrefixes = []string{"/admin/", "/deposit", "/transfers"}

func requiresAuthentication(path string) bool {
	for _, prefix := range protectedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func presentedAPIKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return token
	}
	return ""
}

func validAPIKey(expected string, r *http.Request) bool {
	presented := presentedAPIKey(r)
	return presented != "" && subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}

// conditionalAuthMiddleware is a no-op when apiKey is empty.
func conditionalAuthMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if apiKey == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !requiresAuthentication(r.URL.Path) || validAPIKey(apiKey, r) {
				next.ServeHTTP(w, r)
				return
			}
			logging.Logger().Warn().
				Str("remote_addr", r.RemoteAddr).
				Str("path", r.URL.Path).
				Msg("Rejected pool request without a valid API key")
			RequestsTotal.WithLabelValues(strings.Trim(r.URL.Path, "/"), "unauthorized").Inc()
			(&Error{
				StatusCode: http.StatusUnauthorized,
				Code:       "unauthorized",
				Message:    "Invalid or missing API key. Send it as 'Authorization: Bearer <api-key>' or in the X-API-Key header.",
			}).send(w)
		})
	}
}
