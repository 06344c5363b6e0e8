package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tollgate/tollgate/internal/auth"
)

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// callerLog collects who a request was authenticated as. Auth middleware
// runs inside Logger and only sees a derived context, so it records the
// caller here instead.
type callerLog struct {
	mu         sync.Mutex
	accountID  string
	operatorID string
}

type callerLogKey struct{}

func recordAccount(ctx context.Context, accountID string) {
	if c, ok := ctx.Value(callerLogKey{}).(*callerLog); ok {
		c.mu.Lock()
		c.accountID = accountID
		c.mu.Unlock()
	}
}

func recordOperator(ctx context.Context, keyID string) {
	if c, ok := ctx.Value(callerLogKey{}).(*callerLog); ok {
		c.mu.Lock()
		c.operatorID = keyID
		c.mu.Unlock()
	}
}

// credentialKind describes an Authorization header without any of its
// secret material.
func credentialKind(header string) string {
	if header == "" {
		return "none"
	}
	token := auth.BearerToken(header)
	switch {
	case token == "" || token == header:
		return "other"
	case strings.HasPrefix(token, auth.OperatorKeyPrefix):
		return "operator_key"
	default:
		return "bearer"
	}
}

// Logger returns a middleware that writes one access log line per request.
// The line names the authenticated account or operator key when there is
// one and never includes credentials.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			caller := &callerLog{}
			wrapped := wrapResponseWriter(w)

			next.ServeHTTP(wrapped, r.WithContext(context.WithValue(r.Context(), callerLogKey{}, caller)))

			attrs := []slog.Attr{
				slog.String("request_id", GetRequestID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status_code", wrapped.status),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("user_agent", r.UserAgent()),
				slog.String("credential", credentialKind(r.Header.Get("Authorization"))),
			}

			caller.mu.Lock()
			if caller.accountID != "" {
				attrs = append(attrs, slog.String("account_id", caller.accountID))
			}
			if caller.operatorID != "" {
				attrs = append(attrs, slog.String("operator_key_id", caller.operatorID))
			}
			caller.mu.Unlock()

			level := slog.LevelInfo
			if wrapped.status >= 500 {
				level = slog.LevelError
			} else if wrapped.status >= 400 {
				level = slog.LevelWarn
			}

			logger.LogAttrs(r.Context(), level, "http request", attrs...)
		})
	}
}
