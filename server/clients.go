package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dotside-studios/davi-ndef-viewer/protocol"
)

const clientWriteTimeout = 5 * time.Second

// Client is a connected display. Writes are serialized; gorilla
// connections support one concurrent writer.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{conn: conn}
}

// WriteJSON sends v to the display.
func (c *Client) WriteJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
	return c.conn.WriteJSON(v)
}

// Respond sends a successful response to req.
func (c *Client) Respond(req protocol.WebSocketRequest, payload any) error {
	return c.WriteJSON(protocol.WebSocketResponse{
		ID:      req.ID,
		Type:    req.Type,
		Success: true,
		Payload: payload,
	})
}

// SendError sends a structured error response.
func (c *Client) SendError(requestID, errorCode, message string) error {
	return c.WriteJSON(protocol.WebSocketResponse{
		ID:      requestID,
		Type:    protocol.WSTypeError,
		Success: false,
		Error:   message,
		Payload: map[string]any{"code": errorCode},
	})
}

// clientManager tracks display connections and broadcasts to them.
type clientManager struct {
	clients map[*Client]bool
	mu      sync.RWMutex
}

func newClientManager() *clientManager {
	return &clientManager{clients: make(map[*Client]bool)}
}

func (cm *clientManager) add(c *Client) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.clients[c] = true
}

func (cm *clientManager) remove(c *Client) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.clients, c)
}

func (cm *clientManager) count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.clients)
}

// broadcast sends message to every display; clients that fail are dropped.
func (cm *clientManager) broadcast(message protocol.WebSocketMessage) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for client := range cm.clients {
		if err := client.WriteJSON(message); err != nil {
			log.WithError(err).Debug("WebSocket write failed, dropping client")
			client.conn.Close()
			delete(cm.clients, client)
		}
	}
}

func (cm *clientManager) closeAll() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for client := range cm.clients {
		client.conn.Close()
		delete(cm.clients, client)
	}
}
