// Package monitor implements the optional, disabled-by-default local
// debug/observability server for a running Engine: health, scan
// progress, and a WebSocket watch feed. It is ambient tooling, not a
// second way to reach the engine's operations — those stay reachable
// only through ffpick.Engine and the cgo boundary.
package monitor

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/rybkr/ffpick"
)

// Server serves the monitor endpoints for a single Engine.
type Server struct {
	addr        string
	engine      *ffpick.Engine
	session     *IndexSession
	rateLimiter *rateLimiter
	httpServer  *http.Server
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer constructs a Server bound to engine, ready to Start.
func NewServer(engine *ffpick.Engine, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:        addr,
		engine:      engine,
		rateLimiter: newRateLimiter(50, 100, time.Second),
		logger:      logger.With("component", "monitor"),
		ctx:         ctx,
		cancel:      cancel,
	}
	s.session = NewIndexSession(engine, s.logger)
	return s
}

// Start begins serving and blocks until the server exits or Shutdown is
// called.
func (s *Server) Start() error {
	s.session.Start()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/scan-progress", s.handleScanProgress)
	mux.HandleFunc("/watch", s.handleWatch)

	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      requestLogger(s.logger, mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived
		IdleTimeout:  120 * time.Second,
	}

	s.wg.Add(1)
	go s.pollLoop()

	s.logger.Info(logInfo+" monitor server starting", "addr", "http://"+s.addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP listener, the poll loop, and the
// watch session. Safe to call even if Start failed or was never called.
func (s *Server) Shutdown() {
	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(logError+" monitor shutdown error", "error", err)
		}
	}
	s.cancel()
	s.rateLimiter.Close()
	s.wg.Wait()
	s.session.Close()
	s.logger.Info(logSuccess + " monitor server stopped")
}
