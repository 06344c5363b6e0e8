package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/tollgate/tollgate/internal/auth"
	"github.com/tollgate/tollgate/internal/model"
)

const (
	// minAuthDuration is the minimum time to spend on auth to prevent timing attacks.
	minAuthDuration = 200 * time.Millisecond

	lastUsedTimeout = 5 * time.Second
)

// OperatorKeyStore looks up operator keys.
type OperatorKeyStore interface {
	GetOperatorKeysByPrefix(ctx context.Context, prefix string) ([]*model.OperatorKey, error)
	UpdateOperatorKeyLastUsed(ctx context.Context, id string) error
}

// OperatorCache caches verified operator keys by a hash of the raw key.
type OperatorCache interface {
	GetAuthContext(ctx context.Context, cacheKey string) (*model.OperatorContext, error)
	SetAuthContext(ctx context.Context, cacheKey string, op *model.OperatorContext) error
}

// OperatorAuthConfig holds configuration for the operator auth middleware.
type OperatorAuthConfig struct {
	Logger *slog.Logger
	Keys   OperatorKeyStore
	// Cache may be nil.
	Cache OperatorCache
	// MinDuration overrides minAuthDuration when positive.
	MinDuration time.Duration
}

// OperatorAuth returns a middleware that authenticates operator console
// requests with an operator key and injects the operator into the context.
func OperatorAuth(cfg OperatorAuthConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	floor := cfg.MinDuration
	if floor <= 0 {
		floor = minAuthDuration
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startTime := time.Now()

			// Ensure consistent timing regardless of outcome
			defer func() {
				if elapsed := time.Since(startTime); elapsed < floor {
					time.Sleep(floor - elapsed)
				}
			}()

			fail := func(reason string) {
				logger.Warn("operator authentication failed",
					slog.String("reason", reason),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeOperatorAuthError(w)
			}

			key := auth.BearerToken(r.Header.Get("Authorization"))
			if key == "" {
				fail("missing_key")
				return
			}

			parsed, err := auth.ParseOperatorKey(key)
			if err != nil {
				fail("invalid_format")
				return
			}

			cacheKey := auth.QuickHash(key)
			if cfg.Cache != nil {
				if op, _ := cfg.Cache.GetAuthContext(r.Context(), cacheKey); op != nil {
					logger.Info("operator authenticated",
						slog.String("key_id", op.KeyID),
						slog.String("key_prefix", op.KeyPrefix),
						slog.Bool("cache_hit", true),
						slog.String("request_id", GetRequestID(r.Context())),
					)
					recordOperator(r.Context(), op.KeyID)
					next.ServeHTTP(w, r.WithContext(auth.ContextWithOperator(r.Context(), op)))
					return
				}
			}

			keys, err := cfg.Keys.GetOperatorKeysByPrefix(r.Context(), parsed.Prefix)
			if err != nil {
				logger.Error("database error during operator auth",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeOperatorAuthError(w)
				return
			}

			// Prefixes may collide, so every candidate is verified.
			var matched *model.OperatorKey
			for _, k := range keys {
				if ok, err := auth.VerifySecret(key, k.KeyHash); err == nil && ok {
					matched = k
					break
				}
			}
			if matched == nil {
				fail("invalid_key")
				return
			}

			op := &model.OperatorContext{
				KeyID:     matched.ID,
				KeyPrefix: matched.KeyPrefix,
				Name:      matched.Name,
				Scopes:    matched.Scopes,
			}
			if cfg.Cache != nil {
				if err := cfg.Cache.SetAuthContext(r.Context(), cacheKey, op); err != nil {
					logger.Debug("failed to cache operator auth context",
						slog.String("key_id", op.KeyID),
						slog.String("error", err.Error()),
					)
				}
			}

			go func(ctx context.Context, id string) {
				ctx, cancel := context.WithTimeout(ctx, lastUsedTimeout)
				defer cancel()
				if err := cfg.Keys.UpdateOperatorKeyLastUsed(ctx, id); err != nil {
					logger.Debug("failed to update operator key last_used_at", "key_id", id, "error", err)
				}
			}(context.WithoutCancel(r.Context()), matched.ID)

			logger.Info("operator authenticated",
				slog.String("key_id", op.KeyID),
				slog.String("key_prefix", op.KeyPrefix),
				slog.Bool("cache_hit", false),
				slog.String("request_id", GetRequestID(r.Context())),
			)

			recordOperator(r.Context(), op.KeyID)
			next.ServeHTTP(w, r.WithContext(auth.ContextWithOperator(r.Context(), op)))
		})
	}
}

// writeOperatorAuthError writes a 401 Unauthorized response.
// Uses the same message for all auth failures to prevent enumeration.
func writeOperatorAuthError(w http.ResponseWriter) {
	writeJSONError(w, http.StatusUnauthorized, "invalid or missing operator key")
}
