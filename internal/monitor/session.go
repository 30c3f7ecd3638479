package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rybkr/ffpick"
)

// IndexSession tracks the single engine this server observes, its
// WebSocket clients, and the broadcast channel that fans watch
// transactions out to them. There is exactly one of these per server:
// one index per engine instance, no multi-tenant pooling.
type IndexSession struct {
	engine *ffpick.Engine
	logger *slog.Logger

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]*sync.Mutex

	broadcast chan WatchMessage

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	clientWg sync.WaitGroup
}

const broadcastChannelSize = 32

// NewIndexSession constructs a session wrapping engine.
func NewIndexSession(engine *ffpick.Engine, logger *slog.Logger) *IndexSession {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &IndexSession{
		engine:    engine,
		logger:    logger.With("component", "monitor-session"),
		clients:   make(map[*websocket.Conn]*sync.Mutex),
		broadcast: make(chan WatchMessage, broadcastChannelSize),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the broadcast fan-out goroutine.
func (s *IndexSession) Start() {
	s.wg.Add(1)
	go s.handleBroadcast()
}

// Close cancels the session, sends close frames to all clients, then
// force-closes connections.
func (s *IndexSession) Close() {
	s.cancel()
	s.wg.Wait()

	s.clientsMu.RLock()
	clients := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		clients = append(clients, conn)
	}
	s.clientsMu.RUnlock()

	if len(clients) > 0 {
		closeMsg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		deadline := time.Now().Add(1 * time.Second)
		for _, conn := range clients {
			_ = conn.WriteControl(websocket.CloseMessage, closeMsg, deadline)
		}
		time.Sleep(250 * time.Millisecond)
	}

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close()
	}
	s.clients = make(map[*websocket.Conn]*sync.Mutex)
	s.clientsMu.Unlock()

	s.clientWg.Wait()
}

func (s *IndexSession) handleBroadcast() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.broadcast:
			s.sendToAllClients(msg)
		}
	}
}

func (s *IndexSession) sendToAllClients(msg WatchMessage) {
	s.clientsMu.RLock()
	snapshot := make(map[*websocket.Conn]*sync.Mutex, len(s.clients))
	for conn, mu := range s.clients {
		snapshot[conn] = mu
	}
	s.clientsMu.RUnlock()

	var failed []*websocket.Conn
	for conn, mu := range snapshot {
		mu.Lock()
		err := conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err == nil {
			err = conn.WriteJSON(msg)
		}
		mu.Unlock()
		if err != nil {
			s.logger.Warn("broadcast failed, dropping client", "addr", conn.RemoteAddr(), "error", err)
			failed = append(failed, conn)
		}
	}

	if len(failed) > 0 {
		s.clientsMu.Lock()
		for _, conn := range failed {
			delete(s.clients, conn)
			_ = conn.Close()
		}
		s.clientsMu.Unlock()
	}
}

// broadcastWatch queues msg for delivery. Non-blocking: drops the
// message if the channel is full, since /watch clients only need the
// latest state, not every intermediate one.
func (s *IndexSession) broadcastWatch(msg WatchMessage) {
	select {
	case s.broadcast <- msg:
	default:
		s.logger.Warn("watch broadcast channel full, dropping message")
	}
}

func (s *IndexSession) registerClient(conn *websocket.Conn) *sync.Mutex {
	mu := &sync.Mutex{}
	s.clientsMu.Lock()
	s.clients[conn] = mu
	count := len(s.clients)
	s.clientsMu.Unlock()
	s.logger.Info("watch client connected", "addr", conn.RemoteAddr(), "total", count)
	return mu
}

func (s *IndexSession) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	if _, ok := s.clients[conn]; ok {
		delete(s.clients, conn)
		_ = conn.Close()
	}
}

func (s *IndexSession) sendInitialState(conn *websocket.Conn) {
	msg := WatchMessage{Scanning: s.engine.IsScanning(), Scanned: s.engine.GetScanProgress()}
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return
	}
	_ = conn.WriteJSON(msg)
}

func (s *IndexSession) clientReadPump(conn *websocket.Conn, done chan struct{}) {
	defer s.clientWg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("recovered panic in watch read pump", "addr", conn.RemoteAddr(), "panic", r)
		}
		close(done)
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *IndexSession) clientWritePump(conn *websocket.Conn, done chan struct{}, mu *sync.Mutex) {
	defer s.clientWg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer s.removeClient(conn)

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			mu.Lock()
			err := conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err == nil {
				err = conn.WriteMessage(websocket.PingMessage, nil)
			}
			mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// pollOnce samples the engine's scan state and broadcasts a WatchMessage
// when it differs from the last sample.
func (s *IndexSession) pollOnce(last *WatchMessage) {
	cur := WatchMessage{Scanning: s.engine.IsScanning(), Scanned: s.engine.GetScanProgress()}
	cur.Changed = int(cur.Scanned - last.Scanned)
	if cur.Scanning == last.Scanning && cur.Changed == 0 {
		return
	}
	*last = cur
	s.broadcastWatch(cur)
}
