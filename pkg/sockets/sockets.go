package sockets

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("hub closed")

const writeWait = 10 * time.Second

// Hub upgrades HTTP requests to websockets and fans messages out to every
// connected client.
type Hub struct {
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	onConnected  func(*websocket.Conn)
	logger       *zap.Logger

	mu     sync.Mutex
	conns  map[*websocket.Conn]*sync.Mutex
	closed bool
}

func New(opts ...func(*Hub)) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		pingInterval: 30 * time.Second,
		conns:        make(map[*websocket.Conn]*sync.Mutex),
		logger:       zap.L(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	lock := &sync.Mutex{}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = ws.Close()
		return
	}
	h.conns[ws] = lock
	h.mu.Unlock()

	if h.onConnected != nil {
		lock.Lock()
		h.onConnected(ws)
		lock.Unlock()
	}

	done := make(chan struct{})
	go h.ping(ws, lock, done)
	// clients only listen, reading detects the close
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
	close(done)
	h.remove(ws)
}

// Broadcast writes msg to every client. Clients that fail the write are dropped.
func (h *Hub) Broadcast(msg []byte) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	conns := make(map[*websocket.Conn]*sync.Mutex, len(h.conns))
	for ws, lock := range h.conns {
		conns[ws] = lock
	}
	h.mu.Unlock()

	for ws, lock := range conns {
		if err := write(ws, lock, websocket.TextMessage, msg); err != nil {
			h.logger.Debug("dropping websocket client", zap.Error(err))
			h.remove(ws)
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ws := range h.conns {
		_ = ws.Close()
		delete(h.conns, ws)
	}
	return nil
}

func (h *Hub) remove(ws *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[ws]; ok {
		_ = ws.Close()
		delete(h.conns, ws)
	}
}

func (h *Hub) ping(ws *websocket.Conn, lock *sync.Mutex, done <-chan struct{}) {
	if h.pingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := write(ws, lock, websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func write(ws *websocket.Conn, lock *sync.Mutex, messageType int, msg []byte) error {
	lock.Lock()
	defer lock.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteMessage(messageType, msg)
}
