package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 10 * time.Second

type wsEnvelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Local bridge, local consumers; no origin restrictions.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans one state payload out to every connected websocket subscriber.
// All writes happen under the hub lock, so a connection never has two
// concurrent writers.
type Hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]bool
}

func NewHub() *Hub {
	return &Hub{conns: make(map[*websocket.Conn]bool)}
}

// Broadcast writes the payload to every subscriber, dropping connections
// that fail to accept the write in time.
func (h *Hub) Broadcast(data interface{}) {
	envelope := wsEnvelope{Type: "state", Data: data}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(envelope); err != nil {
			log.Debug().Err(err).Msg("Dropping websocket subscriber")
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.conns[conn] = true
	count := len(h.conns)
	h.mu.Unlock()
	log.Info().Int("subscribers", count).Msg("Websocket subscriber connected")

	// Drain incoming frames to process control messages and notice closure.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	if h.conns[conn] {
		conn.Close()
		delete(h.conns, conn)
	}
	h.mu.Unlock()
	log.Info().Msg("Websocket subscriber disconnected")
}
