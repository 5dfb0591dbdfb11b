package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// correlationHeader carries the request correlation id. It is echoed on the
// response and threaded through to push requests so webhook echoes can be
// matched exactly.
const correlationHeader = "X-Correlation-ID"

// slowRequestThreshold is the duration above which requests are logged at
// WARN level.
const slowRequestThreshold = 2 * time.Second

type ctxKey int

const correlationKey ctxKey = iota

// CorrelationID returns the request's correlation id, or "" outside a
// request context.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey).(string)
	return id
}

// correlate assigns each request a correlation id, generating one when the
// caller didn't send one, and echoes it on the response.
func (s *Server) correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(correlationHeader)
		if id == "" {
			id = uuid.New().String()[:8]
		}
		w.Header().Set(correlationHeader, id)
		ctx := context.WithValue(r.Context(), correlationKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// logRequests logs every request with timing. Slow requests are logged at
// WARN level.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", duration.Milliseconds(),
			"correlation_id", CorrelationID(r.Context()),
		}

		switch {
		case rec.status >= 500:
			s.logger.Error("request failed", attrs...)
		case duration > slowRequestThreshold:
			s.logger.Warn("slow request", attrs...)
		default:
			s.logger.Debug("request completed", attrs...)
		}
	})
}

// auth enforces the bearer token on management endpoints. An empty
// configured token disables the check.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.BearerToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.BearerToken)) != 1 {
			var body errorBody
			body.Error.Code = "UNAUTHENTICATED"
			body.Error.Message = "missing or invalid bearer token"
			writeJSON(w, http.StatusUnauthorized, body)
			return
		}
		next.ServeHTTP(w, r)
	})
}
