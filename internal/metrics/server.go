package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prediction-market/callindexor/internal/logger"
	"github.com/prediction-market/callindexor/pkg/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const systemMetricsInterval = 15 * time.Second

// Server is the HTTP server that exposes Prometheus metrics.
type Server struct {
	config *config.MetricsConfig
	log    *logger.Logger
	server *http.Server
	addr   string
	stopCh chan struct{}
}

// NewServer creates a new metrics server.
func NewServer(config *config.MetricsConfig, log *logger.Logger) *Server {
	return &Server{
		config: config,
		log:    log,
		stopCh: make(chan struct{}),
	}
}

// Handler returns the mux served by the metrics server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.config.Path, promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// Start starts the metrics HTTP server and begins collecting system metrics.
func (s *Server) Start(ctx context.Context) error {
	if s.config == nil || !s.config.Enabled {
		return nil
	}

	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	s.addr = ln.Addr().String()

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	UpdateSystemMetrics()
	go s.updateSystemMetrics(ctx)

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorw("metrics server error", "error", err)
		}
	}()

	s.log.Infow("metrics server started", "address", s.addr, "path", s.config.Path)

	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	return s.addr
}

// Stop stops the metrics HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	close(s.stopCh)

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown metrics server: %w", err)
	}

	return nil
}

// updateSystemMetrics periodically updates system-level metrics.
func (s *Server) updateSystemMetrics(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			UpdateSystemMetrics()
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		}
	}
}
