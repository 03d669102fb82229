package storage

import (
	"sync"
	"time"

	"collabedit/pkg/ot"
)

type documentData struct {
	snapshot   *ot.DocumentSnapshot
	operations []ot.SequencedOperation
}

// MemoryStore is an in-process Store. Used in tests and by the
// editor-service CLI when run with --use-db=false or without DATABASE_URL.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*documentData
}

// NewMemoryStore creates an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*documentData)}
}

func (m *MemoryStore) CreateDocument(docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.docs[docID]; exists {
		return ErrDocumentExists
	}

	m.docs[docID] = &documentData{operations: make([]ot.SequencedOperation, 0)}
	return nil
}

func (m *MemoryStore) DocumentExists(docID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.docs[docID]
	return exists, nil
}

func (m *MemoryStore) SaveSnapshot(docID string, revision int, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, exists := m.docs[docID]
	if !exists {
		return ErrDocumentNotFound
	}

	doc.snapshot = &ot.DocumentSnapshot{
		DocumentID: docID,
		Revision:   revision,
		Content:    content,
		CreatedAt:  time.Now(),
	}

	m.pruneOperations(doc, revision)
	return nil
}

func (m *MemoryStore) pruneOperations(doc *documentData, snapshotRevision int) {
	kept := make([]ot.SequencedOperation, 0, len(doc.operations))
	for _, op := range doc.operations {
		if op.Revision > snapshotRevision {
			kept = append(kept, op)
		}
	}
	doc.operations = kept
}

func (m *MemoryStore) LoadSnapshot(docID string) (ot.DocumentSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, exists := m.docs[docID]
	if !exists {
		return ot.DocumentSnapshot{}, ErrDocumentNotFound
	}
	if doc.snapshot == nil {
		return ot.DocumentSnapshot{}, ErrSnapshotNotFound
	}
	return *doc.snapshot, nil
}

func (m *MemoryStore) AppendOperation(docID string, op ot.SequencedOperation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, exists := m.docs[docID]
	if !exists {
		return ErrDocumentNotFound
	}

	doc.operations = append(doc.operations, op)
	return nil
}

func (m *MemoryStore) LoadOperations(docID string, sinceRevision int) ([]ot.SequencedOperation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, exists := m.docs[docID]
	if !exists {
		return nil, ErrDocumentNotFound
	}

	var result []ot.SequencedOperation
	for _, op := range doc.operations {
		if op.Revision > sinceRevision {
			result = append(result, op)
		}
	}
	return result, nil
}

func (m *MemoryStore) LatestRevision(docID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, exists := m.docs[docID]
	if !exists {
		return 0, ErrDocumentNotFound
	}

	if len(doc.operations) > 0 {
		return doc.operations[len(doc.operations)-1].Revision, nil
	}
	if doc.snapshot != nil {
		return doc.snapshot.Revision, nil
	}
	return 0, nil
}

var _ Store = (*MemoryStore)(nil)
