// internal/editor/client.go
package editor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"collabedit/internal/logging"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024 // 512KB
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Client represents a connected user/editor
type Client struct {
	// Unique identifier
	id string

	// The hub that manages this client
	hub *Hub

	// The websocket connection
	conn *websocket.Conn

	// Buffered channel of outbound messages
	send chan []byte

	// Document this client is editing
	documentID string

	// Reference to the service
	service *Service

	// User information
	username string
	color    string // For cursor color

	// Position tracking
	cursorPosition int
	selection      *Selection
}

// Selection represents text selection
type Selection struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// readPump pumps messages from the websocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.L().Warn("websocket read error", zap.String("clientId", c.id), zap.Error(err))
			}
			break
		}

		message = bytes.TrimSpace(bytes.Replace(message, newline, space, -1))

		c.processMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processMessage processes incoming messages from the client
func (c *Client) processMessage(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		logging.L().Warn("message unmarshal failed", zap.String("clientId", c.id), zap.Error(err))
		c.sendError("Invalid message format")
		return
	}

	msg.ClientID = c.id
	msg.DocumentID = c.documentID

	if c.service != nil {
		c.service.metrics.mu.Lock()
		c.service.metrics.MessagesReceived++
		c.service.metrics.mu.Unlock()
	}

	switch msg.Type {
	case "text_update":
		c.handleTextUpdate(msg)

	case "cursor_position":
		c.handleCursorPosition(msg)

	case "selection":
		c.handleSelection(msg)

	case "request_document":
		c.handleDocumentRequest(msg)

	case "save_document":
		c.handleSaveDocument(msg)

	case "typing_start":
		c.handleTypingStart(msg)

	case "typing_stop":
		c.handleTypingStop(msg)

	case "ping":
		return

	default:
		logging.L().Warn("unknown message type", zap.String("type", msg.Type))
		c.sendError(fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
}

func (c *Client) handleTypingStart(msg Message) {
	msg.Data = map[string]interface{}{
		"userId":   c.id,
		"username": c.username,
		"color":    c.color,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		logging.L().Warn("typing start marshal failed", zap.Error(err))
		return
	}

	c.hub.broadcast <- data
}

func (c *Client) handleTypingStop(msg Message) {
	msg.Data = map[string]interface{}{
		"userId": c.id,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		logging.L().Warn("typing stop marshal failed", zap.Error(err))
		return
	}

	c.hub.broadcast <- data
}

// sendInitMessage tells a newly connected client its assigned identity.
func (c *Client) sendInitMessage() {
	initMsg := Message{
		Type:     "init",
		ClientID: c.id,
		Data: map[string]interface{}{
			"username": c.username,
			"color":    c.color,
		},
	}

	data, err := json.Marshal(initMsg)
	if err != nil {
		logging.L().Warn("init message marshal failed", zap.Error(err))
		return
	}

	select {
	case c.send <- data:
	default:
	}
}

// handleTextUpdate applies an incoming operation to the document and
// queues it for sync, then rebroadcasts it to the other editors of the
// same document.
func (c *Client) handleTextUpdate(msg Message) {
	if msg.Operation == nil {
		c.sendError("text_update requires an operation")
		return
	}

	if c.service != nil {
		if err := c.service.UpdateDocument(c.documentID, c.id, *msg.Operation); err != nil {
			logging.L().Warn("document update failed", zap.String("documentId", c.documentID), zap.Error(err))
			c.sendError("Failed to update document")
			return
		}
	}

	msg.ClientID = c.id
	msg.DocumentID = c.documentID

	data, err := json.Marshal(msg)
	if err != nil {
		logging.L().Warn("text update marshal failed", zap.Error(err))
		return
	}

	c.hub.broadcast <- data

	if c.service != nil {
		c.service.metrics.mu.Lock()
		c.service.metrics.MessagesSent++
		c.service.metrics.mu.Unlock()
	}
}

// handleCursorPosition handles cursor position updates
func (c *Client) handleCursorPosition(msg Message) {
	c.cursorPosition = msg.Position

	if c.service != nil {
		if doc, err := c.service.GetDocument(c.documentID); err == nil {
			doc.mu.RLock()
			docLen := utf8.RuneCountInString(doc.Content)
			doc.mu.RUnlock()
			doc.CursorManager.UpdateCursorPosition(c.id, c.username, c.color, msg.Position, docLen)
		}
	}

	msg.Data = map[string]interface{}{
		"userId":   c.id,
		"username": c.username,
		"color":    c.color,
		"position": msg.Position,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		logging.L().Warn("cursor position marshal failed", zap.Error(err))
		return
	}

	c.hub.broadcast <- data
}

// handleSelection handles text selection updates
func (c *Client) handleSelection(msg Message) {
	if selData, ok := msg.Data.(map[string]interface{}); ok {
		c.selection = &Selection{
			Start: int(selData["start"].(float64)),
			End:   int(selData["end"].(float64)),
		}
	}

	if c.service != nil {
		if doc, err := c.service.GetDocument(c.documentID); err == nil && c.selection != nil {
			doc.mu.RLock()
			docLen := utf8.RuneCountInString(doc.Content)
			doc.mu.RUnlock()
			doc.CursorManager.UpdateSelection(c.id, c.username, c.color, c.selection.Start, c.selection.End, docLen)
		}
	}

	msg.Data = map[string]interface{}{
		"userId":    c.id,
		"username":  c.username,
		"color":     c.color,
		"selection": c.selection,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		logging.L().Warn("selection marshal failed", zap.Error(err))
		return
	}

	c.hub.broadcast <- data
}

// handleDocumentRequest handles requests for document state
func (c *Client) handleDocumentRequest(msg Message) {
	if c.service != nil {
		c.service.sendDocumentState(c, c.documentID)
	}
}

// handleSaveDocument forces an immediate flush of the document to storage.
func (c *Client) handleSaveDocument(msg Message) {
	saved := true
	if c.service != nil {
		if err := c.service.SaveDocument(c.documentID); err != nil {
			logging.L().Warn("manual save failed", zap.String("documentId", c.documentID), zap.Error(err))
			saved = false
		}
	}

	response := Message{
		Type: "save_confirmation",
		Data: map[string]interface{}{
			"documentId": c.documentID,
			"saved":      saved,
			"timestamp":  time.Now().Unix(),
		},
	}

	data, err := json.Marshal(response)
	if err != nil {
		logging.L().Warn("save confirmation marshal failed", zap.Error(err))
		return
	}

	select {
	case c.send <- data:
	default:
	}
}

// sendError sends an error message to the client
func (c *Client) sendError(errorMsg string) {
	msg := Message{
		Type: "error",
		Data: map[string]interface{}{
			"message": errorMsg,
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		logging.L().Warn("error message marshal failed", zap.Error(err))
		return
	}

	select {
	case c.send <- data:
	default:
	}
}

// SendMessage sends a message to the client
func (c *Client) SendMessage(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("client %s not ready to receive", c.id)
	}
}

// NewClient creates a new client
func NewClient(hub *Hub, conn *websocket.Conn, service *Service, documentID string) *Client {
	clientID := uuid.New().String()

	colors := []string{"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4", "#FFEAA7", "#DDA0DD", "#98D8C8", "#FFA07A"}
	color := colors[time.Now().UnixNano()%int64(len(colors))]

	return &Client{
		id:         clientID[:8],
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, 256),
		documentID: documentID,
		service:    service,
		username:   fmt.Sprintf("User-%s", clientID[:4]),
		color:      color,
	}
}
