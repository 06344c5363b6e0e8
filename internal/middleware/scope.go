package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/tollgate/tollgate/internal/auth"
	"github.com/tollgate/tollgate/internal/model"
)

// RequireScope returns middleware that enforces scope requirements.
// Must be applied after OperatorAuth.
// If multiple scopes are provided, having ANY of them is sufficient.
// Admin scope grants all permissions.
func RequireScope(required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op := auth.OperatorFromContext(r.Context())
			if op == nil {
				writeJSONError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			for _, scope := range required {
				if op.HasScope(scope) {
					next.ServeHTTP(w, r)
					return
				}
			}
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			writeJSONError(w, http.StatusForbidden, "insufficient permissions, required scope: "+required[0])
		})
	}
}

// RequireRead is a convenience middleware for read scope.
func RequireRead() func(http.Handler) http.Handler {
	return RequireScope(model.ScopeRead)
}

// RequireAdmin is a convenience middleware for admin scope.
func RequireAdmin() func(http.Handler) http.Handler {
	return RequireScope(model.ScopeAdmin)
}

// writeJSONError writes {"error": message}.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
