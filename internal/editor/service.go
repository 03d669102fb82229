// internal/editor/service.go
package editor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"collabedit/internal/logging"
	"collabedit/internal/metrics"
	"collabedit/internal/offline"
	collabsync "collabedit/internal/sync"
	"collabedit/internal/storage"
	"collabedit/pkg/ot"
)

// maxHistoryLength bounds how many recently-applied operations a Document
// keeps in memory for transforming late-arriving concurrent edits against.
const maxHistoryLength = 200

// Service represents the editor service with all its dependencies
type Service struct {
	hub      *Hub
	upgrader websocket.Upgrader
	config   *Config
	mu       sync.RWMutex
	store    storage.Store
	offline  offline.Store

	// Document storage (in-memory cache with storage.Store backing)
	documents map[string]*Document

	// Metrics
	metrics *Metrics
}

// Config holds service configuration
type Config struct {
	MaxMessageSize   int64
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	MaxClients       int
	AutoSaveInterval time.Duration
}

// Document represents a collaborative document
type Document struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedAt time.Time `json:"created_at"`

	// Track active editors and presence
	CursorManager *CursorManager     `json:"-"`
	ActiveClients map[string]*Client `json:"-"`
	mu            sync.RWMutex       `json:"-"`

	// history holds the most recently applied operations, so a concurrent
	// edit arriving against a stale version can be transformed forward
	// against everything it missed instead of being rejected.
	history []ot.SequencedOperation `json:"-"`

	// offlineManager queues every applied operation for persistence; one
	// that fails to persist stays queued so the sync driver can retry it
	// without blocking the realtime broadcast path.
	offlineManager *offline.Manager `json:"-"`
	syncDriver     *collabsync.Driver `json:"-"`

	dirty     bool      `json:"-"`
	lastSaved time.Time `json:"-"`
}

// Metrics tracks service performance
type Metrics struct {
	ActiveConnections int64
	MessagesSent      int64
	MessagesReceived  int64
	DocumentsActive   int64
	DocumentsSaved    int64

	mu sync.RWMutex
}

// storageTransport adapts a storage.Store into a sync.Transport, so a
// document's offline.Manager retries persistence the same way a client
// would retry a flaky network: AppendOperation failures are queued and
// retried rather than dropped.
type storageTransport struct {
	store storage.Store
}

func (t *storageTransport) Send(ctx context.Context, documentID string, rec ot.OperationRecord) (int, error) {
	revision, err := t.store.LatestRevision(documentID)
	if err != nil {
		return 0, err
	}
	revision++

	if err := t.store.AppendOperation(documentID, ot.SequencedOperation{Record: rec, Revision: revision}); err != nil {
		return 0, err
	}
	return revision, nil
}

// NewService creates a new editor service backed by store.
func NewService(cfg *Config, store storage.Store, offlineStore offline.Store) *Service {
	if cfg == nil {
		cfg = &Config{
			MaxMessageSize:   512 * 1024,
			WriteTimeout:     10 * time.Second,
			ReadTimeout:      60 * time.Second,
			PingInterval:     30 * time.Second,
			MaxClients:       1000,
			AutoSaveInterval: 30 * time.Second,
		}
	}

	if offlineStore == nil {
		offlineStore = offline.NewMemoryStore()
	}

	return &Service{
		hub: NewHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		config:    cfg,
		store:     store,
		offline:   offlineStore,
		documents: make(map[string]*Document),
		metrics:   &Metrics{},
	}
}

// Start initializes and starts the service
func (s *Service) Start() error {
	logging.L().Info("starting editor service")

	go s.hub.run()
	go s.collectMetrics()
	go s.autoSaveLoop()

	logging.L().Info("editor service started")
	return nil
}

// Shutdown gracefully shuts down the service
func (s *Service) Shutdown() {
	logging.L().Info("shutting down editor service")

	s.hub.shutdown()
	s.savePendingDocuments()

	logging.L().Info("editor service shut down complete")
}

// HandleWebSocket handles WebSocket upgrade requests
func (s *Service) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	docID := r.URL.Query().Get("doc")
	if docID == "" {
		http.Error(w, "Missing document ID", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.L().Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	clientID := uuid.New().String()
	client := &Client{
		id:         clientID[:8],
		hub:        s.hub,
		conn:       conn,
		send:       make(chan []byte, 256),
		documentID: docID,
		service:    s,
		username:   "User-" + clientID[:4],
		color:      "#4ECDC4",
	}

	s.hub.register <- client

	s.metrics.mu.Lock()
	s.metrics.ActiveConnections++
	s.metrics.mu.Unlock()

	go client.writePump()
	go client.readPump()
	client.sendInitMessage()

	s.sendDocumentState(client, docID)

	logging.L().Info("client connected", zap.String("clientId", client.id), zap.String("documentId", docID))
}

// GetDocument retrieves a document by ID, loading it from storage (snapshot
// plus any operations logged since) if it isn't already cached in memory.
func (s *Service) GetDocument(id string) (*Document, error) {
	s.mu.RLock()
	doc, exists := s.documents[id]
	s.mu.RUnlock()

	if exists {
		return doc, nil
	}

	doc, err := s.loadOrCreateDocument(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.documents[id] = doc
	s.mu.Unlock()

	s.metrics.mu.Lock()
	s.metrics.DocumentsActive++
	s.metrics.mu.Unlock()

	return doc, nil
}

func (s *Service) loadOrCreateDocument(id string) (*Document, error) {
	exists, err := s.store.DocumentExists(id)
	if err != nil {
		return nil, err
	}

	doc := s.newDocument(id)

	if !exists {
		if err := s.store.CreateDocument(id); err != nil {
			return nil, err
		}
		doc.dirty = true
		return doc, nil
	}

	snapshot, err := s.store.LoadSnapshot(id)
	content, revision := "", 0
	if err == nil {
		content, revision = snapshot.Content, snapshot.Revision
	} else if err != storage.ErrSnapshotNotFound {
		return nil, err
	}

	ops, err := s.store.LoadOperations(id, revision)
	if err != nil {
		return nil, err
	}

	for _, sequenced := range ops {
		op, pos, err := ot.FromRecord(sequenced.Record)
		if err != nil {
			logging.L().Warn("skipping unreadable logged operation", zap.String("documentId", id), zap.Error(err))
			continue
		}
		content, err = ot.Apply(content, op, pos)
		if err != nil {
			logging.L().Warn("skipping unapplyable logged operation", zap.String("documentId", id), zap.Error(err))
			continue
		}
		revision = sequenced.Revision
	}

	doc.Content = content
	doc.Version = revision
	doc.history = trimHistory(ops)
	logging.L().Info("loaded document from storage", zap.String("documentId", id), zap.Int("revision", revision))
	return doc, nil
}

func trimHistory(ops []ot.SequencedOperation) []ot.SequencedOperation {
	if len(ops) <= maxHistoryLength {
		return append([]ot.SequencedOperation(nil), ops...)
	}
	return append([]ot.SequencedOperation(nil), ops[len(ops)-maxHistoryLength:]...)
}

func (s *Service) newDocument(id string) *Document {
	doc := &Document{
		ID:            id,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
		CursorManager: NewCursorManager(),
		ActiveClients: make(map[string]*Client),
		lastSaved:     time.Now(),
	}

	doc.offlineManager = offline.New(id, s.offline, nil, offline.Callbacks{
		OnSyncError: func(op offline.QueuedOperation, cause error) {
			logging.L().Warn("operation persistence failed", zap.String("documentId", id), zap.String("operationId", op.ID), zap.Error(cause))
			metrics.Get().SyncFailuresTotal.WithLabelValues(id).Inc()
		},
	})
	doc.syncDriver = collabsync.New(id, doc.offlineManager, &storageTransport{store: s.store})

	return doc
}

// UpdateDocument reconciles an incoming operation against anything applied
// to the document since the client's rec.Version (spec.md §4.3's
// concurrent-edit case), applies the reconciled operation to the
// in-memory content immediately so collaborators see it without delay,
// then queues it for durable persistence via the document's sync driver.
func (s *Service) UpdateDocument(docID string, clientID string, rec ot.OperationRecord) error {
	doc, err := s.GetDocument(docID)
	if err != nil {
		return err
	}

	op, pos, err := ot.FromRecord(rec)
	if err != nil {
		return fmt.Errorf("editor: %w", err)
	}

	doc.mu.Lock()

	positioned := ot.Positioned{Op: op, Position: pos}
	for _, prior := range doc.history {
		if prior.Revision <= rec.Version {
			continue
		}
		priorOp, priorPos, err := ot.FromRecord(prior.Record)
		if err != nil {
			continue
		}
		positioned, _ = ot.Transform(positioned, ot.Positioned{Op: priorOp, Position: priorPos}, clientID < prior.Record.UserID)
		metrics.Get().TransformsTotal.Inc()
	}

	newContent, err := ot.Apply(doc.Content, positioned.Op, positioned.Position)
	if err != nil {
		doc.mu.Unlock()
		return fmt.Errorf("editor: %w", err)
	}

	doc.Content = newContent
	doc.Version++
	doc.UpdatedAt = time.Now()
	doc.dirty = true

	rec.Position = positioned.Position
	if d, ok := positioned.Op.(ot.Delete); ok {
		rec.Length = d.Length
	}
	rec.Version = doc.Version
	doc.history = append(doc.history, ot.SequencedOperation{Record: rec, Revision: doc.Version})
	if len(doc.history) > maxHistoryLength {
		doc.history = doc.history[len(doc.history)-maxHistoryLength:]
	}
	doc.mu.Unlock()

	metrics.Get().OperationsAppliedTotal.WithLabelValues(docID, rec.Type).Inc()

	doc.offlineManager.QueueOperation(rec)
	metrics.Get().QueueDepth.WithLabelValues(docID).Set(float64(doc.offlineManager.GetQueueSize()))
	doc.syncDriver.Tick(context.Background())
	metrics.Get().QueueDepth.WithLabelValues(docID).Set(float64(doc.offlineManager.GetQueueSize()))

	return nil
}

// SaveDocument forces a snapshot save of a document's current content.
func (s *Service) SaveDocument(docID string) error {
	s.mu.RLock()
	doc, exists := s.documents[docID]
	s.mu.RUnlock()

	if !exists || !doc.dirty {
		return nil
	}

	doc.mu.RLock()
	content := doc.Content
	version := doc.Version
	doc.mu.RUnlock()

	start := time.Now()
	err := s.store.SaveSnapshot(docID, version, content)
	metrics.Get().DocumentSaveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		logging.L().Warn("snapshot save failed", zap.String("documentId", docID), zap.Error(err))
		return err
	}

	doc.mu.Lock()
	doc.dirty = false
	doc.lastSaved = time.Now()
	doc.mu.Unlock()

	s.metrics.mu.Lock()
	s.metrics.DocumentsSaved++
	s.metrics.mu.Unlock()

	logging.L().Info("saved document snapshot", zap.String("documentId", docID), zap.Int("revision", version))
	return nil
}

// autoSaveLoop runs in background and saves dirty documents periodically
func (s *Service) autoSaveLoop() {
	ticker := time.NewTicker(s.config.AutoSaveInterval)
	defer ticker.Stop()

	for range ticker.C {
		s.autoSave()
	}
}

// autoSave saves all dirty documents and evicts stale presence state on
// the same cadence.
func (s *Service) autoSave() {
	s.mu.RLock()
	docIDs := make([]string, 0)
	for id, doc := range s.documents {
		doc.mu.RLock()
		needsSave := doc.dirty && time.Since(doc.lastSaved) > 10*time.Second
		doc.mu.RUnlock()

		if needsSave {
			docIDs = append(docIDs, id)
		}
		doc.CursorManager.CleanupStale(staleCursorTimeout)
	}
	s.mu.RUnlock()

	for _, id := range docIDs {
		if err := s.SaveDocument(id); err != nil {
			logging.L().Warn("auto-save failed", zap.String("documentId", id), zap.Error(err))
		}
	}
}

// BroadcastToDocument sends a message to all clients editing a document
func (s *Service) BroadcastToDocument(docID string, message []byte, excludeClient *Client) {
	doc, err := s.GetDocument(docID)
	if err != nil {
		logging.L().Warn("broadcast lookup failed", zap.String("documentId", docID), zap.Error(err))
		return
	}

	doc.mu.RLock()
	defer doc.mu.RUnlock()

	for _, client := range doc.ActiveClients {
		if client != excludeClient {
			select {
			case client.send <- message:
			default:
				close(client.send)
				delete(doc.ActiveClients, client.id)
			}
		}
	}

	s.metrics.mu.Lock()
	s.metrics.MessagesSent++
	s.metrics.mu.Unlock()
}

// sendDocumentState sends the current document state to a client
func (s *Service) sendDocumentState(client *Client, docID string) {
	doc, err := s.GetDocument(docID)
	if err != nil {
		logging.L().Warn("document state lookup failed", zap.String("documentId", docID), zap.Error(err))
		return
	}

	doc.mu.Lock()
	doc.ActiveClients[client.id] = client
	doc.mu.Unlock()

	doc.mu.RLock()
	state := map[string]interface{}{
		"type":       "document_state",
		"content":    doc.Content,
		"version":    doc.Version,
		"docId":      doc.ID,
		"cursors":    doc.CursorManager.GetAllCursors(client.id),
		"selections": doc.CursorManager.GetAllSelections(client.id),
	}
	doc.mu.RUnlock()

	data, err := json.Marshal(state)
	if err != nil {
		logging.L().Warn("document state marshal failed", zap.Error(err))
		return
	}

	client.send <- data
}

// RemoveClientFromDocument removes a client from a document's active clients
func (s *Service) RemoveClientFromDocument(client *Client) {
	if client.documentID == "" {
		return
	}

	doc, err := s.GetDocument(client.documentID)
	if err != nil {
		return
	}

	doc.CursorManager.RemoveClient(client.id)

	doc.mu.Lock()
	delete(doc.ActiveClients, client.id)
	activeCount := len(doc.ActiveClients)
	doc.mu.Unlock()

	if activeCount == 0 {
		s.SaveDocument(client.documentID)

		s.metrics.mu.Lock()
		s.metrics.DocumentsActive--
		s.metrics.mu.Unlock()
	}
}

// GetMetrics returns current service metrics
func (s *Service) GetMetrics() map[string]interface{} {
	s.metrics.mu.RLock()
	defer s.metrics.mu.RUnlock()

	return map[string]interface{}{
		"active_connections": s.metrics.ActiveConnections,
		"messages_sent":       s.metrics.MessagesSent,
		"messages_received":   s.metrics.MessagesReceived,
		"documents_active":    s.metrics.DocumentsActive,
		"documents_saved":     s.metrics.DocumentsSaved,
		"hub_clients":         len(s.hub.clients),
	}
}

// savePendingDocuments saves any documents with pending changes
func (s *Service) savePendingDocuments() {
	s.mu.RLock()
	docIDs := make([]string, 0)
	for id, doc := range s.documents {
		if doc.dirty {
			docIDs = append(docIDs, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range docIDs {
		s.SaveDocument(id)
	}

	logging.L().Info("saved pending documents on shutdown", zap.Int("count", len(docIDs)))
}

// collectMetrics periodically collects and logs metrics
func (s *Service) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		metrics := s.GetMetrics()
		logging.L().Info("metrics", zap.Any("metrics", metrics))
	}
}

// staleCursorTimeout is how long a client's cursor/selection survives
// without an update before CleanupStale evicts it; cleared on the same
// cadence as autoSave so a document with no live clients doesn't hold
// presence state indefinitely.
const staleCursorTimeout = 60 * time.Second

// CursorPosition is a client's last-known caret, expressed in the same
// rune-indexed coordinate space as ot.Operation positions so presence
// survives a concurrent edit without drifting in front of or behind it.
type CursorPosition struct {
	ClientID  string    `json:"clientId"`
	Username  string    `json:"username"`
	Position  int       `json:"position"`
	Color     string    `json:"color"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SelectionRange is a client's active text selection, in the same
// rune-indexed coordinate space as CursorPosition.
type SelectionRange struct {
	ClientID string `json:"clientId"`
	Username string `json:"username"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Color    string `json:"color"`
}

// CursorManager tracks presence (cursor positions and selections) for the
// clients editing a single Document.
type CursorManager struct {
	mu         sync.RWMutex
	cursors    map[string]*CursorPosition
	selections map[string]*SelectionRange
}

// NewCursorManager creates an empty CursorManager.
func NewCursorManager() *CursorManager {
	return &CursorManager{
		cursors:    make(map[string]*CursorPosition),
		selections: make(map[string]*SelectionRange),
	}
}

// clampPosition pins position into [0, docLen] so a cursor recorded just
// before a concurrent delete shrank the document can't be reported past
// its end.
func clampPosition(position, docLen int) int {
	if position < 0 {
		return 0
	}
	if position > docLen {
		return docLen
	}
	return position
}

// UpdateCursorPosition records clientID's caret, clamped to the current
// document length.
func (cm *CursorManager) UpdateCursorPosition(clientID, username, color string, position, docLen int) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.cursors[clientID] = &CursorPosition{
		ClientID:  clientID,
		Username:  username,
		Position:  clampPosition(position, docLen),
		Color:     color,
		UpdatedAt: time.Now(),
	}
}

// UpdateSelection records clientID's selection, clamped to the current
// document length, or clears it when start == end.
func (cm *CursorManager) UpdateSelection(clientID, username, color string, start, end, docLen int) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	start, end = clampPosition(start, docLen), clampPosition(end, docLen)
	if start > end {
		start, end = end, start
	}

	if start == end {
		delete(cm.selections, clientID)
		return
	}
	cm.selections[clientID] = &SelectionRange{
		ClientID: clientID,
		Username: username,
		Start:    start,
		End:      end,
		Color:    color,
	}
}

// RemoveClient drops clientID's cursor and selection, e.g. on disconnect.
func (cm *CursorManager) RemoveClient(clientID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	delete(cm.cursors, clientID)
	delete(cm.selections, clientID)
}

// GetAllCursors returns every tracked cursor except excludeClientID's own.
func (cm *CursorManager) GetAllCursors(excludeClientID string) []CursorPosition {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	var positions []CursorPosition
	for id, cursor := range cm.cursors {
		if id != excludeClientID {
			positions = append(positions, *cursor)
		}
	}
	return positions
}

// GetAllSelections returns every tracked selection except
// excludeClientID's own.
func (cm *CursorManager) GetAllSelections(excludeClientID string) []SelectionRange {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	var selections []SelectionRange
	for id, selection := range cm.selections {
		if id != excludeClientID {
			selections = append(selections, *selection)
		}
	}
	return selections
}

// CleanupStale evicts cursors (and their selections) idle past timeout.
func (cm *CursorManager) CleanupStale(timeout time.Duration) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	now := time.Now()
	for id, cursor := range cm.cursors {
		if now.Sub(cursor.UpdatedAt) > timeout {
			delete(cm.cursors, id)
			delete(cm.selections, id)
		}
	}
}
