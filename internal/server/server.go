package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/regsight/regsight/internal/auth"
)

// Server is the regsight HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// ServerConfig holds all dependencies and settings for creating a Server.
type ServerConfig struct {
	Handlers *Handlers
	Tokens   *auth.TokenManager
	Logger   *slog.Logger

	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// New creates an HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := cfg.Handlers

	mux := http.NewServeMux()

	// Token issuance (no auth; validated against the bootstrap key).
	mux.HandleFunc("POST /auth/token", h.HandleAuthToken)

	// Ingestion surfaces (ingest or admin).
	mux.Handle("POST /v1/ingest", requireIngest(http.HandlerFunc(h.HandleIngest)))
	mux.Handle("POST /v1/reconcile", requireIngest(http.HandlerFunc(h.HandleReconcile)))
	mux.Handle("POST /v1/unclassified", requireIngest(http.HandlerFunc(h.HandleRegisterUnclassified)))

	// Read surfaces (any authenticated actor).
	mux.HandleFunc("GET /v1/records/{identifier}", h.HandleGetRecord)
	mux.HandleFunc("GET /v1/records/{identifier}/history", h.HandleRecordHistory)
	mux.HandleFunc("GET /v1/audit/recent", h.HandleRecentAudit)
	mux.HandleFunc("GET /v1/audit/{table}/{record_id}", h.HandleAuditTrail)
	mux.HandleFunc("GET /v1/quality/report", h.HandleQualityReport)
	mux.HandleFunc("GET /v1/unclassified/overdue", h.HandleOverdueUnclassified)
	mux.HandleFunc("GET /v1/unclassified/{identifier}", h.HandleGetUnclassified)
	mux.HandleFunc("GET /v1/scores", h.HandleListScores)

	// Review surfaces (reviewer or admin).
	mux.Handle("POST /v1/quality/issues/{id}/resolve", requireReview(http.HandlerFunc(h.HandleResolveIssue)))
	mux.Handle("POST /v1/unclassified/{identifier}/claim", requireReview(http.HandlerFunc(h.HandleClaimUnclassified)))
	mux.Handle("POST /v1/unclassified/{identifier}/resolve", requireReview(http.HandlerFunc(h.HandleResolveUnclassified)))
	mux.Handle("POST /v1/unclassified/{identifier}/escalate", requireReview(http.HandlerFunc(h.HandleEscalateUnclassified)))

	// Score computation (ingest or admin; evidence arrives with the call).
	mux.Handle("POST /v1/scores", requireIngest(http.HandlerFunc(h.HandleComputeScore)))

	// Health (no auth).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.Tokens, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
