package testutil

import (
	"net/http"
	"time"

	"waterlily/pkg/requestcontext"
)

// WithUserID attaches a verified user id, as RequireAuth would.
func WithUserID(req *http.Request, userID int64) *http.Request {
	return req.WithContext(requestcontext.WithUserID(req.Context(), userID))
}

// WithRequestTime pins the request clock.
func WithRequestTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}

// WithBearer sets the Authorization header.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}
