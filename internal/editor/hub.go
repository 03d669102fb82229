// internal/editor/hub.go
package editor

import (
	"encoding/json"

	"go.uber.org/zap"

	"collabedit/internal/logging"
	"collabedit/pkg/ot"
)

// Hub maintains active client connections and broadcasts messages.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Inbound messages from clients
	broadcast chan []byte

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Document-specific client tracking
	documentClients map[string]map[*Client]bool
}

// Message is the websocket wire envelope. For "text_update" it carries an
// Operation (the wire record of spec.md §6) rather than a bare content
// string — the edit itself is an ot.Operation, not a full-document replace.
type Message struct {
	Type       string              `json:"type"`
	ClientID   string              `json:"clientId,omitempty"`
	DocumentID string              `json:"documentId,omitempty"`
	Operation  *ot.OperationRecord `json:"operation,omitempty"`
	Position   int                 `json:"position,omitempty"`
	Version    int                 `json:"version,omitempty"`
	Data       interface{}         `json:"data,omitempty"`
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		broadcast:       make(chan []byte, 256),
		register:        make(chan *Client),
		unregister:      make(chan *Client),
		clients:         make(map[*Client]bool),
		documentClients: make(map[string]map[*Client]bool),
	}
}

// run starts the hub's main loop.
func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case message := <-h.broadcast:
			h.handleBroadcast(message)
		}
	}
}

// handleRegister handles client registration.
func (h *Hub) handleRegister(client *Client) {
	h.clients[client] = true

	if client.documentID != "" {
		if h.documentClients[client.documentID] == nil {
			h.documentClients[client.documentID] = make(map[*Client]bool)
		}
		h.documentClients[client.documentID][client] = true
	}

	logging.L().Info("client connected", zap.String("clientId", client.id), zap.Int("totalClients", len(h.clients)))

	if client.documentID != "" {
		h.notifyUserJoined(client)
	}
}

// handleUnregister handles client disconnection.
func (h *Hub) handleUnregister(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}

	delete(h.clients, client)
	close(client.send)

	if client.documentID != "" && h.documentClients[client.documentID] != nil {
		delete(h.documentClients[client.documentID], client)

		if len(h.documentClients[client.documentID]) == 0 {
			delete(h.documentClients, client.documentID)
		}

		h.notifyUserLeft(client)
	}

	if client.service != nil {
		client.service.RemoveClientFromDocument(client)
	}

	logging.L().Info("client disconnected", zap.String("clientId", client.id), zap.Int("totalClients", len(h.clients)))
}

// handleBroadcast handles message broadcasting.
func (h *Hub) handleBroadcast(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		logging.L().Warn("broadcast message unmarshal failed", zap.Error(err))
		return
	}

	switch msg.Type {
	case "broadcast_all":
		h.broadcastToAll(message, msg.ClientID)
	default:
		if msg.DocumentID != "" {
			h.broadcastToDocument(msg.DocumentID, message, msg.ClientID)
		}
	}
}

// broadcastToDocument sends a message to all clients in a specific document.
func (h *Hub) broadcastToDocument(docID string, message []byte, excludeClientID string) {
	clients := h.documentClients[docID]
	if clients == nil {
		return
	}

	for client := range clients {
		if client.id != excludeClientID {
			select {
			case client.send <- message:
			default:
				close(client.send)
				delete(h.clients, client)
				delete(clients, client)
			}
		}
	}
}

// broadcastToAll sends a message to all connected clients.
func (h *Hub) broadcastToAll(message []byte, excludeClientID string) {
	for client := range h.clients {
		if client.id != excludeClientID {
			select {
			case client.send <- message:
			default:
				close(client.send)
				delete(h.clients, client)
			}
		}
	}
}

// notifyUserJoined notifies other users in a document that a new user joined.
func (h *Hub) notifyUserJoined(newClient *Client) {
	notification := Message{
		Type:       "user_joined",
		ClientID:   newClient.id,
		DocumentID: newClient.documentID,
		Data: map[string]interface{}{
			"userId":   newClient.id,
			"username": newClient.username,
			"color":    newClient.color,
		},
	}

	data, err := json.Marshal(notification)
	if err != nil {
		logging.L().Warn("join notification marshal failed", zap.Error(err))
		return
	}

	h.broadcastToDocument(newClient.documentID, data, newClient.id)
	h.sendActiveUsers(newClient)
}

// notifyUserLeft notifies other users in a document that a user left.
func (h *Hub) notifyUserLeft(leftClient *Client) {
	notification := Message{
		Type:       "user_left",
		ClientID:   leftClient.id,
		DocumentID: leftClient.documentID,
		Data: map[string]interface{}{
			"userId": leftClient.id,
		},
	}

	data, err := json.Marshal(notification)
	if err != nil {
		logging.L().Warn("leave notification marshal failed", zap.Error(err))
		return
	}

	h.broadcastToDocument(leftClient.documentID, data, leftClient.id)
}

// sendActiveUsers sends the list of active users to a client.
func (h *Hub) sendActiveUsers(client *Client) {
	users := []map[string]interface{}{}

	if clients := h.documentClients[client.documentID]; clients != nil {
		for c := range clients {
			if c.id != client.id {
				users = append(users, map[string]interface{}{
					"userId":   c.id,
					"username": c.username,
					"color":    c.color,
				})
			}
		}
	}

	message := Message{Type: "active_users", Data: users}

	data, err := json.Marshal(message)
	if err != nil {
		logging.L().Warn("active users marshal failed", zap.Error(err))
		return
	}

	select {
	case client.send <- data:
	default:
	}
}

// shutdown gracefully shuts down the hub.
func (h *Hub) shutdown() {
	for client := range h.clients {
		close(client.send)
		client.conn.Close()
	}
}

// GetStats returns statistics about the hub, kept for the /stats endpoint.
func (h *Hub) GetStats() map[string]interface{} {
	detail := make(map[string]int, len(h.documentClients))
	for docID, clients := range h.documentClients {
		detail[docID] = len(clients)
	}

	return map[string]interface{}{
		"total_clients":    len(h.clients),
		"total_documents":  len(h.documentClients),
		"documents_detail": detail,
	}
}
