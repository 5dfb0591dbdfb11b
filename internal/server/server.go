// Package server provides the HTTP API surface of the sync engine: the
// webhook receiver, the pull/push/reindex triggers, and the health and
// conflict read endpoints.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/pressbridge/pressbridge/internal/metrics"
	"github.com/pressbridge/pressbridge/internal/reindex"
	"github.com/pressbridge/pressbridge/internal/store"
	"github.com/pressbridge/pressbridge/internal/sync"
)

// Config holds the server-level settings.
type Config struct {
	// BearerToken guards the management endpoints. Empty disables auth
	// (local development). The webhook endpoint authenticates by API key
	// and HMAC instead.
	BearerToken string

	// PullBatchLimit caps items fetched per pull invocation.
	PullBatchLimit int

	// ReindexBatchLimit caps jobs admitted per reindex run.
	ReindexBatchLimit int
}

// Services bundles the engine services the handlers dispatch to.
type Services struct {
	Store    store.Store
	Puller   *sync.Puller
	Pusher   *sync.Pusher
	Ingestor *sync.Ingestor
	Detector *sync.Detector
	Health   *sync.Health
	Queue    *reindex.Queue
	Worker   *reindex.Worker
}

// Server is the HTTP API server.
type Server struct {
	svc    Services
	stats  *metrics.Collector
	cfg    Config
	logger *slog.Logger
}

// New creates the API server.
func New(svc Services, stats *metrics.Collector, cfg Config, logger *slog.Logger) *Server {
	return &Server{
		svc:    svc,
		stats:  stats,
		cfg:    cfg,
		logger: logger,
	}
}

// Routes builds the full handler chain.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Liveness probe, no auth
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	// Webhook receiver authenticates by API key + HMAC, not bearer token
	mux.HandleFunc("POST /webhook/content", s.handleWebhook)

	mux.Handle("POST /sync/pull", s.auth(http.HandlerFunc(s.handlePull)))
	mux.Handle("POST /sync/push", s.auth(http.HandlerFunc(s.handlePush)))
	mux.Handle("GET /sync/health", s.auth(http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /sync/conflicts", s.auth(http.HandlerFunc(s.handleConflicts)))
	mux.Handle("POST /sync/conflicts/resolve", s.auth(http.HandlerFunc(s.handleResolveConflict)))
	mux.Handle("POST /reindex/run", s.auth(http.HandlerFunc(s.handleReindexRun)))
	mux.Handle("GET /ws/health", s.auth(http.HandlerFunc(s.handleHealthStream)))
	mux.Handle("GET /stats", s.auth(http.HandlerFunc(s.handleStats)))

	return s.correlate(s.logRequests(mux))
}

// HTTPServer wraps the handler chain in an http.Server bound to port.
func (s *Server) HTTPServer(port string) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second, // pull batches can take a while
		IdleTimeout:  120 * time.Second,
	}
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps engine sentinel errors onto stable HTTP codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := sync.CodeInternal

	switch {
	case errors.Is(err, sync.ErrUnauthenticated):
		status, code = http.StatusUnauthorized, sync.CodeUnauthenticated
	case errors.Is(err, sync.ErrInvalidSignature):
		status, code = http.StatusUnauthorized, sync.CodeInvalidSignature
	case errors.Is(err, sync.ErrTenantMismatch):
		// Cross-tenant probes look identical to missing records.
		status, code = http.StatusNotFound, sync.CodeTenantMismatch
	case errors.Is(err, store.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, sync.ErrRemoteNotFound):
		status, code = http.StatusConflict, sync.CodeRemoteNotFound
	case errors.Is(err, sync.ErrNotPushed):
		status, code = http.StatusConflict, "NOT_PUSHED"
	}

	if status >= 500 {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}

	var body errorBody
	body.Error.Code = code
	body.Error.Message = err.Error()
	writeJSON(w, status, body)
}

// decode reads a JSON request body into dst.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 10<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func badRequest(w http.ResponseWriter, msg string) {
	var body errorBody
	body.Error.Code = "BAD_REQUEST"
	body.Error.Message = msg
	writeJSON(w, http.StatusBadRequest, body)
}
