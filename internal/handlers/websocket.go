package handlers

import (
	"log"
	"sync"

	"github.com/gofiber/contrib/websocket"

	"blockflow/internal/models"
)

// UpdateHub fans execution updates out to connected websocket clients. Slow
// clients are disconnected rather than allowed to block the hub.
type UpdateHub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan models.ExecutionUpdate
}

func NewUpdateHub() *UpdateHub {
	return &UpdateHub{clients: make(map[*websocket.Conn]chan models.ExecutionUpdate)}
}

// Broadcast sends an update to every connected client.
func (h *UpdateHub) Broadcast(update models.ExecutionUpdate) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn, ch := range h.clients {
		select {
		case ch <- update:
		default:
			log.Printf("⚠️ [WS] Client %p too slow, dropping update", conn)
		}
	}
}

// Handle is the websocket endpoint for GET /ws/runs. It holds the connection
// open and forwards updates until the client disconnects.
func (h *UpdateHub) Handle(conn *websocket.Conn) {
	ch := make(chan models.ExecutionUpdate, 64)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	log.Printf("🔌 [WS] Client connected (%d total)", h.clientCount())

	// Writer goroutine; the read loop below detects disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range ch {
			if err := conn.WriteJSON(update); err != nil {
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	close(ch)
	<-done
	conn.Close()
	log.Printf("🔌 [WS] Client disconnected (%d total)", h.clientCount())
}

func (h *UpdateHub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
