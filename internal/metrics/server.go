package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/flowmesh/archiver/internal/logger"
)

// DefaultPath is where metrics are served when no path is configured
const DefaultPath = "/metrics"

// Server represents a standalone metrics HTTP server
type Server struct {
	httpServer *http.Server
	addr       string
	path       string
	collector  *Collector
	readiness  func() bool
	log        zerolog.Logger
	listenAddr string
	ready      bool
	mu         sync.RWMutex
}

// NewServer creates a new metrics server for the collector
func NewServer(addr, path string, collector *Collector) *Server {
	if path == "" {
		path = DefaultPath
	}
	return &Server{
		addr:      addr,
		path:      path,
		collector: collector,
		log:       logger.WithComponent("metrics.server"),
	}
}

// SetReadiness installs the check behind /ready. Call before Start.
func (s *Server) SetReadiness(ready func() bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readiness = ready
}

// Start binds the listener and serves metrics in the background
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(s.path, s.collector.Handler())
	mux.HandleFunc("/health", HealthCheck)
	mux.Handle("/ready", ReadinessCheck(s.readiness))

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}
	s.listenAddr = ln.Addr().String()

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("Metrics server error")
		}
	}()

	s.ready = true
	s.log.Info().Str("addr", s.listenAddr).Str("path", s.path).Msg("Metrics server started")

	return nil
}

// Stop gracefully stops the metrics server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return nil
	}

	s.log.Info().Msg("Stopping metrics server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		//nolint:errcheck // Ignore close error if shutdown failed
		_ = s.httpServer.Close()
		return err
	}

	s.ready = false
	s.log.Info().Msg("Metrics server stopped")

	return nil
}

// Ready returns true if the server is serving
func (s *Server) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Addr returns the bound listen address once started
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listenAddr
}
