package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// extractBearerToken pulls a bearer token out of the Authorization header.
func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}

// tokenMatch is a constant-time comparison; an empty expected token means
// auth is not configured, a deliberate bypass for standalone/dev mode.
func tokenMatch(provided, expected string) bool {
	if expected == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// requireAPIToken wraps a handler with the static job-management bearer
// token check.
func (s *Server) requireAPIToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !tokenMatch(extractBearerToken(r), s.APIToken) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// requireAgentToken verifies the per-agent token issued at registration,
// checked the same way as the static API token.
func (s *Server) requireAgentToken(agentID, provided string) bool {
	expected, ok := s.Registry.AgentToken(agentID)
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}
