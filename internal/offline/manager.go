// Package offline implements the client-side Offline Operation Manager
// (OOM): a durable FIFO queue of locally-produced edits that survives
// disconnects and process restarts, hands ready operations to a sync
// driver, and bounds retries against a remote authority.
package offline

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"collabedit/internal/logging"
	"collabedit/pkg/ot"
)

// DefaultMaxRetries is the retry ceiling New gives every Manager, and so
// every QueuedOperation it queues; New takes no other value.
const DefaultMaxRetries = 3

// QueuedOperation is an operation record enriched with the bookkeeping the
// OOM needs: a locally-unique id, the time it was queued, and a retry
// counter bounded by MaxRetries.
type QueuedOperation struct {
	ID             string           `json:"id"`
	Record         ot.OperationRecord `json:"record"`
	LocalTimestamp time.Time        `json:"localTimestamp"`
	RetryCount     int              `json:"retryCount"`
	MaxRetries     int              `json:"maxRetries"`
}

// OfflineState is the full persisted record for a single document's queue.
type OfflineState struct {
	DocumentID      string            `json:"documentId"`
	Operations      []QueuedOperation `json:"operations"`
	LastSyncVersion int               `json:"lastSyncVersion"`
	IsOffline       bool              `json:"isOffline"`
	LastSyncTime    time.Time         `json:"lastSyncTimestamp"`
}

// Callbacks are invoked synchronously, inside the mutating call that
// triggers them. Any may be nil.
type Callbacks struct {
	OnOperationQueued    func(QueuedOperation)
	OnOperationSynced    func(QueuedOperation)
	OnSyncError          func(QueuedOperation, error)
	OnOfflineStateChange func(isOffline bool)
}

// Manager owns one document's durable operation queue. All methods are
// safe for concurrent use; none suspend, matching the core's synchronous
// scheduling model — a sync driver wrapping a Manager is free to await
// transport calls, but Manager's own methods never do.
type Manager struct {
	mu sync.Mutex

	documentID string
	maxRetries int
	store      Store
	reach      NetworkReachability
	callbacks  Callbacks
	unsubscribe func()

	state OfflineState

	syncInProgress bool
}

// New constructs a Manager for documentID, loading any previously
// persisted state from store and seeding isOffline from reach's current
// signal. A read/parse failure on load is logged and the manager starts
// from empty defaults rather than failing construction.
func New(documentID string, store Store, reach NetworkReachability, callbacks Callbacks) *Manager {
	m := &Manager{
		documentID: documentID,
		maxRetries: DefaultMaxRetries,
		store:      store,
		reach:      reach,
		callbacks:  callbacks,
		state: OfflineState{
			DocumentID: documentID,
			Operations: []QueuedOperation{},
		},
	}

	if loaded, err := store.Load(documentID); err != nil {
		logging.L().Warn("offline: load failed, starting empty", zap.String("documentID", documentID), zap.Error(err))
	} else if loaded != nil {
		m.state = *loaded
		if m.state.Operations == nil {
			m.state.Operations = []QueuedOperation{}
		}
	}

	if reach != nil {
		m.state.IsOffline = !reach.IsOnline()
		m.unsubscribe = reach.Subscribe(func(online bool) {
			m.SetOfflineState(!online)
		})
	}

	return m
}

// QueueOperation assigns an id/timestamp/retry state to rec, appends it,
// persists the queue, and emits OnOperationQueued. A persistence failure
// is logged but does not fail the call: the in-memory queue remains
// authoritative for the session.
func (m *Manager) QueueOperation(rec ot.OperationRecord) QueuedOperation {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := QueuedOperation{
		ID:             newOperationID(m.documentID),
		Record:         rec,
		LocalTimestamp: time.Now(),
		RetryCount:     0,
		MaxRetries:     m.maxRetries,
	}

	m.state.Operations = append(m.state.Operations, q)
	m.persist()

	if m.callbacks.OnOperationQueued != nil {
		m.callbacks.OnOperationQueued(q)
	}

	return q
}

// GetQueuedOperations returns a defensive copy of the current queue.
func (m *Manager) GetQueuedOperations() []QueuedOperation {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]QueuedOperation(nil), m.state.Operations...)
}

// RemoveOperation removes the operation with the given id, if present,
// persists the queue, and emits OnOperationSynced. Unknown ids are
// silently ignored: no persistence write, no callback.
func (m *Manager) RemoveOperation(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeLocked(id, true)
}

// removeLocked removes id from the queue. When notify is true and the
// operation was present, it persists and fires OnOperationSynced.
func (m *Manager) removeLocked(id string, notify bool) {
	idx := -1
	for i, op := range m.state.Operations {
		if op.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}

	removed := m.state.Operations[idx]
	m.state.Operations = append(m.state.Operations[:idx], m.state.Operations[idx+1:]...)

	if notify {
		m.persist()
		if m.callbacks.OnOperationSynced != nil {
			m.callbacks.OnOperationSynced(removed)
		}
	}
}

// MarkOperationFailed increments id's retry counter. The operation is
// evicted (via RemoveOperation, which fires OnOperationSynced) once a
// failure call observes retryCount already at maxRetries — i.e. it
// survives calls 1..maxRetries and is evicted on call maxRetries+1. This
// off-by-one mirrors the source behavior exactly and is deliberate, not a
// bug: see the open-question note in DESIGN.md. OnSyncError fires on
// every call regardless of eviction. Unknown ids are a no-op.
func (m *Manager) MarkOperationFailed(id string, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i, op := range m.state.Operations {
		if op.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}

	op := m.state.Operations[idx]

	if op.RetryCount >= op.MaxRetries {
		m.removeLocked(id, true)
		if m.callbacks.OnSyncError != nil {
			m.callbacks.OnSyncError(op, cause)
		}
		return
	}

	op.RetryCount++
	m.state.Operations[idx] = op
	m.persist()

	if m.callbacks.OnSyncError != nil {
		m.callbacks.OnSyncError(op, cause)
	}
}

// GetRetryableOperations returns the subset of the queue still eligible
// for sync: retryCount < maxRetries.
func (m *Manager) GetRetryableOperations() []QueuedOperation {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []QueuedOperation
	for _, op := range m.state.Operations {
		if op.RetryCount < op.MaxRetries {
			out = append(out, op)
		}
	}
	return out
}

// GetOperationsForSync returns the retryable operations sorted ascending
// by LocalTimestamp, stable for equal timestamps (original insertion
// order is preserved).
func (m *Manager) GetOperationsForSync() []QueuedOperation {
	ops := m.GetRetryableOperations()
	sort.SliceStable(ops, func(i, j int) bool {
		return ops[i].LocalTimestamp.Before(ops[j].LocalTimestamp)
	})
	return ops
}

// SetOfflineState updates the offline flag, persisting and emitting
// OnOfflineStateChange only on an actual transition.
func (m *Manager) SetOfflineState(isOffline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.IsOffline == isOffline {
		return
	}

	m.state.IsOffline = isOffline
	m.persist()

	if m.callbacks.OnOfflineStateChange != nil {
		m.callbacks.OnOfflineStateChange(isOffline)
	}
}

// IsOffline reports the manager's current offline flag.
func (m *Manager) IsOffline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state.IsOffline
}

// UpdateLastSyncVersion records v as the document version the queue's
// remaining operations are predicated on. Not enforced to be monotone.
func (m *Manager) UpdateLastSyncVersion(v int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.LastSyncVersion = v
	m.state.LastSyncTime = time.Now()
	m.persist()
}

// GetLastSyncVersion returns the most recently recorded sync version.
func (m *Manager) GetLastSyncVersion() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state.LastSyncVersion
}

// SetSyncInProgress records whether a sync round is currently running.
// In-memory only: not persisted, since it has no meaning across restarts.
func (m *Manager) SetSyncInProgress(inProgress bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.syncInProgress = inProgress
}

// IsSyncInProgress reports the in-memory sync-in-progress flag.
func (m *Manager) IsSyncInProgress() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.syncInProgress
}

// GetQueueSize returns the number of operations currently queued
// (retryable or not — eviction already removed exhausted ones).
func (m *Manager) GetQueueSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.state.Operations)
}

// ClearQueue drops all queued operations and persists the empty state.
func (m *Manager) ClearQueue() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Operations = []QueuedOperation{}
	m.persist()
}

// Destroy detaches the manager from its NetworkReachability source. It
// does not clear persisted state.
func (m *Manager) Destroy() {
	m.mu.Lock()
	unsub := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// persist must be called with m.mu held. A write failure is logged and
// swallowed: the in-memory state remains authoritative for the session.
func (m *Manager) persist() {
	if m.store == nil {
		return
	}
	if err := m.store.Save(m.documentID, m.state); err != nil {
		logging.L().Warn("offline: persist failed", zap.String("documentID", m.documentID), zap.Error(err))
	}
}

func newOperationID(documentID string) string {
	return documentID + "-" + uuid.NewString()
}
