// Package requestcontext carries request-scoped values (caller identity,
// request id, pinned clock) without depending on net/http. Middleware sets
// them; services and stores read them.
package requestcontext

import (
	"context"
	"time"
)

type (
	userIDKey      struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// UserID returns the authenticated account id, or 0 when the request carries
// no identity.
func UserID(ctx context.Context) int64 {
	if id, ok := ctx.Value(userIDKey{}).(int64); ok {
		return id
	}
	return 0
}

func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now returns the time pinned by the RequestTime middleware. Outside a
// request (relay worker, CLI) it is the wall clock.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the request clock. Tests use it for deterministic timestamps.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
