package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/pagepress/export-api/internal/job"
)

// Hub fans job updates out to connected websocket clients. The pipeline
// pushes a snapshot after every persisted state change.
type Hub struct {
	upgrader  websocket.Upgrader
	broadcast chan []byte

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		broadcast: make(chan []byte, 64),
		clients:   make(map[*websocket.Conn]struct{}),
	}
}

// Run delivers broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					_ = conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastJob queues a job snapshot for delivery. Non-blocking: if the
// buffer is full the update is dropped, polling still has the truth.
func (h *Hub) BroadcastJob(j *job.Job) {
	msg, err := json.Marshal(map[string]any{
		"type": "job_update",
		"job":  j.Snapshot(),
	})
	if err != nil {
		slog.Error("ws: marshal job update", "job", j.ID, "error", err)
		return
	}

	select {
	case h.broadcast <- msg:
	default:
	}
}

// Serve upgrades the request and keeps the connection registered until the
// client goes away. Inbound messages are discarded.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws: upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	slog.Info("ws: client connected", "clients", total)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		_ = conn.Close()
	}
	h.clients = make(map[*websocket.Conn]struct{})
}
