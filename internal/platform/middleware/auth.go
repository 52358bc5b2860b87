package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"waterlily/pkg/platform/httputil"
	"waterlily/pkg/requestcontext"
)

// JWTValidator defines the interface for validating access tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims the middleware needs from a validated token
type JWTClaims struct {
	UserID int64
	Email  string
	JTI    string
}

// RequireAuth resolves the bearer token to a user id. A missing or malformed
// Authorization header is 401; a token that fails validation is 403.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{
					Error:            "unauthorized",
					ErrorDescription: "Missing or invalid Authorization header",
				})
				return
			}

			claims, err := validator.ValidateToken(strings.TrimSpace(token))
			if err != nil {
				logger.WarnContext(ctx, "forbidden - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteJSON(w, http.StatusForbidden, httputil.ErrorResponse{
					Error:            "forbidden",
					ErrorDescription: "Invalid or expired token",
				})
				return
			}

			ctx = requestcontext.WithUserID(ctx, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
