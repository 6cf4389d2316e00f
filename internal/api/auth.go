package api

import (
	"net/http"
	"strings"
)

// parseToken extracts a bearer token from either the Authorization
// header or a "token" query parameter, the latter needed because
// browser WebSocket clients cannot set arbitrary headers on the
// handshake request.
func parseToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	return ""
}
