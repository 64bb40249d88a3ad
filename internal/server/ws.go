package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/gesturepad/internal/app"
)

// signalsInterval paces the signal broadcast at about 15 Hz.
const signalsInterval = 66 * time.Millisecond

// writeWait bounds a single websocket write.
const writeWait = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// signalsMessage is one broadcast frame.
type signalsMessage struct {
	Timestamp int64 `json:"timestamp"`
	app.Status
}

// SignalsHandler broadcasts the channel state to every connected websocket
// client.
type SignalsHandler struct {
	status  func() app.Status
	clients map[*websocket.Conn]bool
	mu      sync.RWMutex
	done    chan struct{}
	once    sync.Once
}

// NewSignalsHandler creates a SignalsHandler and starts its broadcaster.
// Callers must call Close to stop it.
func NewSignalsHandler(status func() app.Status) *SignalsHandler {
	h := &SignalsHandler{
		status:  status,
		clients: make(map[*websocket.Conn]bool),
		done:    make(chan struct{}),
	}
	go h.broadcast()
	return h
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *SignalsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Clients returns the number of connected clients.
func (h *SignalsHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops the broadcaster and disconnects every client.
func (h *SignalsHandler) Close() {
	h.once.Do(func() {
		close(h.done)

		h.mu.Lock()
		defer h.mu.Unlock()
		for conn := range h.clients {
			conn.Close()
		}
	})
}

// broadcast sends the channel state to all connected clients.
func (h *SignalsHandler) broadcast() {
	ticker := time.NewTicker(signalsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
		}

		if h.Clients() == 0 {
			continue
		}

		msg, err := json.Marshal(signalsMessage{
			Timestamp: time.Now().UnixMilli(),
			Status:    h.status(),
		})
		if err != nil {
			log.Printf("encode signals: %v", err)
			continue
		}

		// Only the broadcaster writes, so holding the read lock is enough.
		h.mu.RLock()
		for conn := range h.clients {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				conn.Close()
			}
		}
		h.mu.RUnlock()
	}
}
