package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/nvsettings/nvsettings/internal/config"
	"github.com/nvsettings/nvsettings/internal/metrics"
	"github.com/nvsettings/nvsettings/internal/middleware"
	"github.com/nvsettings/nvsettings/internal/persist"
	"github.com/nvsettings/nvsettings/internal/settings"
	"github.com/sirupsen/logrus"
)

// Server exposes one settings pack over HTTP
type Server struct {
	config         *config.Config
	httpServer     *http.Server
	router         *mux.Router
	pack           *settings.Pack
	codec          *persist.Codec
	metricsManager metrics.Manager
	logger         *logrus.Logger
	restart        func()
	startTime      time.Time // Server start time for uptime calculation

	// mu serializes every access to pack; requests are handled one at a time
	mu sync.Mutex
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger
func WithLogger(l *logrus.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics sets the metrics manager
func WithMetrics(m metrics.Manager) Option {
	return func(s *Server) { s.metricsManager = m }
}

// WithRestart sets the function called after a restart request has
// been answered.
func WithRestart(fn func()) Option {
	return func(s *Server) { s.restart = fn }
}

// New creates a server for pack. The pack must already be loaded.
func New(cfg *config.Config, pack *settings.Pack, codec *persist.Codec, opts ...Option) *Server {
	s := &Server{
		config:         cfg,
		pack:           pack,
		codec:          codec,
		metricsManager: metrics.NewManager(metrics.Config{}),
		logger:         logrus.StandardLogger(),
		restart:        func() {},
		startTime:      time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.metricsManager.SetSettingsCount(pack.Len())
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the complete HTTP handler, middleware included
func (s *Server) Handler() http.Handler {
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(s.logger),
		handlers.PrintRecoveryStack(true),
	)(s.router)
}

func (s *Server) setupRoutes() {
	router := mux.NewRouter()

	router.Use(middleware.Tracing(s.logger))
	router.Use(middleware.Logging(s.logger))
	router.Use(middleware.CORS())
	router.Use(middleware.WriteLimit(middleware.WriteLimitConfig{
		WritesPerSecond: s.config.RateLimit.WritesPerSecond,
		BurstSize:       s.config.RateLimit.Burst,
	}))
	if s.config.Metrics.Enable {
		router.Use(s.metricsManager.Middleware())
		router.Handle(s.config.Metrics.Path, s.metricsManager.Handler()).Methods("GET")
	}

	router.HandleFunc("/health", s.handleHealth).Methods("GET", "OPTIONS")

	router.HandleFunc("/api/v1/settings", s.handleGetSettings).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/v1/settings", s.handlePostSettings).Methods("POST")
	router.HandleFunc("/api/v1/settings/erase", s.handleErase).Methods("POST", "OPTIONS")
	router.HandleFunc("/api/v1/settings/restart", s.handleRestart).Methods("POST", "OPTIONS")
	router.HandleFunc("/api/v1/settings/{group}/{setting}", s.handleGetSetting).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/v1/settings/{group}/{setting}", s.handlePutSetting).Methods("PUT")

	s.router = router
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"address":   s.config.Listen,
		"backend":   s.config.Store.Backend,
		"namespace": s.codec.Namespace(),
		"settings":  s.pack.Len(),
	}).Info("Starting settings server")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	return s.shutdown()
}

func (s *Server) shutdown() error {
	s.logger.Info("Shutting down settings server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.WithError(err).Error("Failed to shutdown HTTP server")
		return err
	}
	return nil
}
