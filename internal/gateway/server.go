// Package gateway exposes the HTTP API, websocket event stream, and metrics
// surface in front of the connection coordinator and instance registry.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/helioscrm/walink/internal/config"
	"github.com/helioscrm/walink/internal/connect"
	"github.com/helioscrm/walink/internal/instances"
	"github.com/helioscrm/walink/internal/reconcile"
)

// Server wires the coordinator, registry, and reconciler behind one HTTP
// listener.
type Server struct {
	cfg         *config.Config
	logger      *slog.Logger
	coordinator *connect.Coordinator
	store       *instances.Store
	reconciler  *reconcile.Reconciler
	metrics     *metrics
	hub         *hub

	httpServer   *http.Server
	httpListener net.Listener
}

// New assembles a server. The reconciler may be nil when disabled.
func New(cfg *config.Config, coordinator *connect.Coordinator, store *instances.Store, reconciler *reconcile.Reconciler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:         cfg,
		logger:      logger,
		coordinator: coordinator,
		store:       store,
		reconciler:  reconciler,
		hub:         newHub(logger),
	}
	s.metrics = newMetrics(
		func() float64 { return float64(coordinator.ActiveCount()) },
		func() float64 { return float64(coordinator.PollTicks()) },
		func() float64 {
			if reconciler == nil {
				return 0
			}
			return float64(reconciler.Runs())
		},
	)
	return s
}

// Start begins serving. Non-blocking; the listener runs on its own goroutine.
func (s *Server) Start(ctx context.Context) error {
	if s.reconciler != nil {
		if err := s.reconciler.Start(); err != nil {
			return fmt.Errorf("start reconciler: %w", err)
		}
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.HTTPPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	s.httpListener = listener
	s.httpServer = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("gateway started", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound listen address, useful when the port was 0.
func (s *Server) Addr() string {
	if s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// Stop shuts everything down in dependency order: listener first so no new
// attempts start, then the coordinator, then the reconciler.
func (s *Server) Stop(ctx context.Context) {
	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http server shutdown error", "error", err)
		}
		s.httpServer = nil
		s.httpListener = nil
	}

	s.hub.Close()
	s.coordinator.Shutdown()

	if s.reconciler != nil {
		s.reconciler.Stop()
	}
	s.logger.Info("gateway stopped")
}
