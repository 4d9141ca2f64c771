package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "irpf/pkg/domain"
	"irpf/pkg/requestcontext"
)

// TokenValidator validates bearer tokens issued by the identity service.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// CapabilityChecker resolves elevated capabilities for a user. It is queried
// once per authenticated request.
type CapabilityChecker interface {
	IsAdmin(ctx context.Context, userID id.UserID) (bool, error)
}

// Claims are the token fields the middleware relies on.
type Claims struct {
	UserID string
	JTI    string
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAuth resolves the acting user from the bearer token and stores it in
// the request context. Payload-supplied owner fields are never consulted.
func RequireAuth(validator TokenValidator, capabilities CapabilityChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			userID, err := id.ParseUserID(claims.UserID)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - malformed subject",
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}
			ctx = requestcontext.WithUserID(ctx, userID)

			if capabilities != nil {
				admin, err := capabilities.IsAdmin(ctx, userID)
				if err != nil {
					logger.ErrorContext(ctx, "failed to resolve capabilities",
						"error", err,
						"request_id", requestID,
					)
					writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to resolve capabilities")
					return
				}
				ctx = requestcontext.WithAdmin(ctx, admin)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
