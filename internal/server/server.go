// Package server exposes the privacy engine over HTTP: a pseudonymization
// endpoint, health and info probes, Prometheus metrics and the live event
// hub.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/pii-sentinel/internal/config"
	"github.com/raaihank/pii-sentinel/internal/ledger"
	"github.com/raaihank/pii-sentinel/internal/logger"
	"github.com/raaihank/pii-sentinel/internal/metrics"
	"github.com/raaihank/pii-sentinel/internal/privacy"
	"github.com/raaihank/pii-sentinel/internal/security"
	"github.com/raaihank/pii-sentinel/internal/web"
	"github.com/raaihank/pii-sentinel/internal/websocket"
)

// Version is reported by /info.
var Version = "0.1.0"

const statusInterval = 10 * time.Second

// Recorder persists the audit trail of the server run.
type Recorder interface {
	StartRun(ctx context.Context, run *ledger.Run) error
	RecordDocuments(ctx context.Context, runID string, docs []*ledger.Document) error
	FinishRun(ctx context.Context, runID string, summary ledger.RunSummary) error
}

// Server represents the HTTP API server. One server process is one run:
// every request shares the salt of the engine it was created with.
type Server struct {
	config    *config.Config
	logger    *logger.Logger
	engine    atomic.Pointer[privacy.Engine]
	router    *mux.Router
	server    *http.Server
	wsHub     *websocket.Hub
	limiter   *security.RateLimiter
	metrics   *metrics.Metrics
	ledger    *ledgerWriter
	runID     string
	startTime time.Time
	stats     runStats

	ctx    context.Context
	cancel context.CancelFunc
}

// runStats are the counters reported in system status events and to the
// ledger when the run finishes.
type runStats struct {
	documents    atomic.Int64
	succeeded    atomic.Int64
	failed       atomic.Int64
	replacements atomic.Int64
}

// New creates a new server instance. recorder and m may be nil.
func New(cfg *config.Config, engine *privacy.Engine, recorder Recorder, m *metrics.Metrics, log *logger.Logger) (*Server, error) {
	if engine == nil {
		return nil, errors.New("privacy engine is required")
	}
	if log == nil {
		log = logger.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		config:    cfg,
		logger:    log.WithComponent("server"),
		router:    mux.NewRouter(),
		wsHub:     websocket.NewHub(cfg.WebSocket, log.Logger),
		limiter:   security.NewRateLimiter(cfg.RateLimit),
		metrics:   m,
		runID:     uuid.NewString(),
		startTime: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.engine.Store(engine)

	if recorder != nil {
		s.ledger = newLedgerWriter(recorder, s.runID, s.logger.WithRunID(s.runID))
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Probes and metrics
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	// Dashboard and its event stream
	if s.config.WebSocket.Enabled {
		dashboard := s.wsHub.RequireAuth(http.HandlerFunc(web.ServeDashboard))
		s.router.Handle("/", dashboard).Methods(http.MethodGet)
		s.router.Handle("/dashboard", dashboard).Methods(http.MethodGet)
		s.router.HandleFunc(s.config.WebSocket.Path, s.wsHub.HandleWebSocket).Methods(http.MethodGet)
	}

	// Pseudonymization API
	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.HandleFunc("/pseudonymize", s.handlePseudonymize).Methods(http.MethodPost)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// RunID returns the id of the run this server process records.
func (s *Server) RunID() string {
	return s.runID
}

// Start starts the background workers and the HTTP server. It blocks until
// the server stops and never returns http.ErrServerClosed.
func (s *Server) Start() error {
	engine := s.engine.Load()
	s.logger.Info("Starting PII Sentinel server",
		zap.Int("port", s.config.Server.Port),
		zap.String("run_id", s.runID),
		zap.Strings("categories", engine.Categories().Strings()),
		zap.Bool("annotator", engine.HasAnnotator()),
		zap.Bool("rate_limit", s.config.RateLimit.Enabled),
	)

	s.startBackground()

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// startBackground starts the hub, the status publisher, the limiter cleanup
// and the ledger writer.
func (s *Server) startBackground() {
	go s.wsHub.Run(s.ctx)

	if s.config.RateLimit.Enabled {
		s.limiter.StartCleanupRoutine(s.ctx)
	}

	if s.ledger != nil {
		s.ledger.start(s.ctx, &ledger.Run{
			ID:         s.runID,
			Source:     metrics.SourceHTTP,
			Categories: s.engine.Load().Categories().Strings(),
			StartedAt:  s.startTime,
		})
	}

	go s.publishStatusLoop()
}

// Stop gracefully stops the HTTP server, then the background workers, and
// closes the ledger run.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping PII Sentinel server")

	err := s.server.Shutdown(ctx)
	s.cancel()

	if s.ledger != nil {
		s.ledger.finish(ctx, s.summary())
	}
	return err
}

// Reload swaps the engine for one with the category policy of cfg. The salt
// and annotator are kept, so pseudonyms stay consistent across the run.
func (s *Server) Reload(cfg *config.Config) {
	categories, err := privacy.ResolveCategoryList(cfg.Privacy.Categories)
	if err != nil {
		s.logger.Warn("Ignoring invalid privacy policy", zap.Error(err))
		return
	}

	engine, err := s.engine.Load().WithCategories(categories)
	if err != nil {
		s.logger.Warn("Failed to rebuild privacy engine", zap.Error(err))
		return
	}

	s.engine.Store(engine)
	s.logger.Info("Privacy policy reloaded", zap.Strings("categories", categories.Strings()))
}

// Engine returns the engine currently serving requests.
func (s *Server) Engine() *privacy.Engine {
	return s.engine.Load()
}

func (s *Server) summary() ledger.RunSummary {
	return ledger.RunSummary{
		Documents:    s.stats.documents.Load(),
		Succeeded:    s.stats.succeeded.Load(),
		Failed:       s.stats.failed.Load(),
		Replacements: s.stats.replacements.Load(),
	}
}

// publishStatusLoop broadcasts a system status event periodically.
func (s *Server) publishStatusLoop() {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.wsHub.PublishSystemStatus(s.systemStatus())
		}
	}
}
