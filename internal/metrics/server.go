// Package metrics serves storage statistics and health over HTTP.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iudanet/storysync/internal/store"
)

// Server exposes /metrics and /healthz
type Server struct {
	http    *http.Server
	logger  *slog.Logger
	done    chan struct{}
	started bool
}

// NewServer builds a server for svc. Storage readiness is checked with
// StorageUsage.
func NewServer(addr string, svc *store.Service, version string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	if err := registry.Register(store.NewCollector(svc)); err != nil {
		return nil, fmt.Errorf("failed to register storage collector: %w", err)
	}
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register go collector: %w", err)
	}

	health := NewHealthHandler(logger, version, func(ctx context.Context) error {
		_, err := svc.StorageUsage(ctx)
		return err
	})

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", health.Health)

	var handler http.Handler = mux
	handler = Logging(logger)(handler)
	handler = Recovery(logger)(handler)

	return &Server{
		http: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
		done:   make(chan struct{}),
	}, nil
}

// Handler returns the root handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start binds the address and serves in the background. A bind failure is
// returned immediately.
func (s *Server) Start() (net.Addr, error) {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.http.Addr, err)
	}
	s.started = true

	go func() {
		defer close(s.done)
		s.logger.Info("serving metrics", "addr", ln.Addr().String())
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server failed", "error", err)
		}
	}()
	return ln.Addr(), nil
}

// Shutdown stops the server and waits for the serve loop to exit
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	if !s.started {
		return nil
	}
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
