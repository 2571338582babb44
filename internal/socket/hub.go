// internal/socket/hub.go
package socket

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub tracks the live websocket connection of each signed-in user.
type Hub struct {
	// clients is keyed by user id hex
	clients map[string]*websocket.Conn
	// mu also serialises writes: a websocket.Conn allows one writer at a time
	mu sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*websocket.Conn),
	}
}

// Register stores conn for userID, closing a previous connection of the same user.
func (h *Hub) Register(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.clients[userID]; ok && old != conn {
		old.Close()
	}
	h.clients[userID] = conn
	log.Printf("WebSocket client registered: %s", userID)
}

// Unregister removes conn if it is still the registered connection of userID.
func (h *Hub) Unregister(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.clients[userID]; ok && current == conn {
		delete(h.clients, userID)
		log.Printf("WebSocket client unregistered: %s", userID)
	}
}

// Connected reports whether userID has a live connection.
func (h *Hub) Connected(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.clients[userID]
	return ok
}

// Send writes message to userID. An offline user is not an error.
func (h *Hub) Send(userID string, message []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.clients[userID]
	if !ok {
		log.Printf("WebSocket client not found, could not send message: %s", userID)
		return nil
	}

	if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
		conn.Close()
		delete(h.clients, userID)
		return err
	}
	return nil
}
