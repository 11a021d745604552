package sockets

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func WithPingInterval(d time.Duration) func(*Hub) {
	return func(h *Hub) {
		h.pingInterval = d
	}
}

// OnConnected is called with every new client before it receives broadcasts.
func OnConnected(f func(*websocket.Conn)) func(*Hub) {
	return func(h *Hub) {
		h.onConnected = f
	}
}

func WithLogger(l *zap.Logger) func(*Hub) {
	return func(h *Hub) {
		h.logger = l
	}
}
