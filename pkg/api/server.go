package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/prediction-market/callindexor/internal/common"
	"github.com/prediction-market/callindexor/internal/logger"
	"github.com/prediction-market/callindexor/pkg/api/docs"
	"github.com/prediction-market/callindexor/pkg/config"
)

// registers the swagger spec served under /swagger/
var _ = docs.SwaggerInfo

const shutdownCtxTimeout = 10 * time.Second

// Server represents the API HTTP server.
type Server struct {
	config  *config.APIConfig
	indexer Indexer
	handler *Handler
	server  *http.Server
	log     *logger.Logger
}

// NewServer creates a new API server.
func NewServer(cfg *config.APIConfig, idx Indexer, log *logger.Logger) *Server {
	log = log.WithComponent(common.ComponentAPI)
	handler := NewHandler(idx, log)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handler.Health)

	// Lifecycle endpoints
	mux.HandleFunc("POST /indexer/start", handler.StartIndexer)
	mux.HandleFunc("POST /indexer/stop", handler.StopIndexer)
	mux.HandleFunc("GET /indexer/status", handler.GetStatus)

	// Read endpoints, scoped by chain
	mux.HandleFunc("GET /indexer/{chain}/events/type/{eventType}", handler.GetEventsByType)
	mux.HandleFunc("GET /indexer/{chain}/events/contract/{contractId}", handler.GetEventsByContract)
	mux.HandleFunc("GET /indexer/{chain}/stats", handler.GetStats)
	mux.HandleFunc("GET /indexer/{chain}/calls", handler.ListCalls)
	mux.HandleFunc("GET /indexer/{chain}/calls/{callId}", handler.GetCall)

	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
	))

	var h http.Handler = mux
	h = RecoveryMiddleware(log)(h)
	h = LoggingMiddleware(log)(h)

	if cfg.CORS.Enabled {
		h = CORSMiddleware(cfg.CORS.AllowedOrigins)(h)
	}

	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout.Duration,
		WriteTimeout: cfg.WriteTimeout.Duration,
		IdleTimeout:  cfg.IdleTimeout.Duration,
	}

	return &Server{
		config:  cfg,
		indexer: idx,
		handler: handler,
		server:  httpServer,
		log:     log,
	}
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves the API until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.log.Info("API server is disabled")
		return nil
	}

	s.log.Infof("Starting API server on %s", s.config.ListenAddress)

	serveErr := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("API server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownCtxTimeout)
	defer cancel()

	s.log.Info("Shutting down API server...")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown error: %w", err)
	}

	s.log.Info("API server stopped")
	return nil
}
