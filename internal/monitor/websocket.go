package monitor

import (
	"compress/flate"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
)

// localUpgrader allows all origins: the monitor server is process-local
// diagnostic tooling, reachable only from the host it runs on.
var localUpgrader = websocket.Upgrader{
	CheckOrigin:       func(_ *http.Request) bool { return true },
	EnableCompression: true,
}

// handleWatch upgrades to a WebSocket and streams WatchMessage updates
// for the lifetime of the connection.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	ip := getClientIP(r)
	if !s.rateLimiter.allow(ip) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	conn, err := localUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error(logError+" watch upgrade failed", "error", err)
		return
	}

	conn.EnableWriteCompression(true)
	_ = conn.SetCompressionLevel(flate.BestSpeed)
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	s.session.sendInitialState(conn)
	mu := s.session.registerClient(conn)

	done := make(chan struct{})
	s.session.clientWg.Add(2)
	go s.session.clientReadPump(conn, done)
	go s.session.clientWritePump(conn, done, mu)
}
