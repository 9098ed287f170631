package handler

import (
	"net/http"
	"strings"
)

// bearerToken pulls the identity token out of the Authorization header.
// Returns "" when the header is missing or not a Bearer scheme. The token
// value itself must never be logged.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
