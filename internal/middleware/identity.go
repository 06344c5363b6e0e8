package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tollgate/tollgate/internal/auth"
	"github.com/tollgate/tollgate/internal/model"
)

// IdentityResolver resolves a bearer credential to a user.
type IdentityResolver interface {
	Resolve(ctx context.Context, credential string) (*model.Identity, error)
}

// Identity returns a middleware that authenticates end users against the
// identity provider and injects the resolved identity into the context.
// Provider outages surface as 500 rather than 401 so clients do not discard
// valid sessions.
func Identity(resolver IdentityResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeJSONError(w, http.StatusUnauthorized, "No authorization header")
				return
			}

			id, err := resolver.Resolve(r.Context(), auth.BearerToken(header))
			switch {
			case err == nil:
			case errors.Is(err, auth.ErrUnauthenticated):
				logger.Warn("identity rejected",
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeJSONError(w, http.StatusUnauthorized, "Invalid token")
				return
			default:
				logger.Error("identity provider unavailable",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeJSONError(w, http.StatusInternalServerError, "authentication unavailable")
				return
			}

			recordAccount(r.Context(), id.UserID)
			next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), id)))
		})
	}
}
