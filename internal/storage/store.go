// Package storage is the server-side document store: periodic content
// snapshots plus the operation log appended since the last one. It
// deliberately implements no access control (spec.md §1 non-goal).
package storage

import (
	"errors"

	"collabedit/pkg/ot"
)

var (
	// ErrDocumentExists is returned by CreateDocument for an id already present.
	ErrDocumentExists = errors.New("storage: document already exists")
	// ErrDocumentNotFound is returned whenever docID has no record.
	ErrDocumentNotFound = errors.New("storage: document not found")
	// ErrSnapshotNotFound is returned by LoadSnapshot when none has been saved yet.
	ErrSnapshotNotFound = errors.New("storage: snapshot not found")
)

// Store persists document snapshots and the operation log recorded since
// the latest one. Implementations: PostgresStore (production), MemoryStore
// (tests, --use-db=false dev mode).
type Store interface {
	// CreateDocument registers a new, empty document under docID.
	CreateDocument(docID string) error
	// DocumentExists reports whether docID has ever been created.
	DocumentExists(docID string) (bool, error)
	// SaveSnapshot persists content as the document's state at revision,
	// and prunes any logged operations at or before that revision.
	SaveSnapshot(docID string, revision int, content string) error
	// LoadSnapshot returns the most recently saved snapshot for docID.
	LoadSnapshot(docID string) (ot.DocumentSnapshot, error)
	// AppendOperation appends op to docID's operation log.
	AppendOperation(docID string, op ot.SequencedOperation) error
	// LoadOperations returns every logged operation with Revision strictly
	// greater than sinceRevision, in append order.
	LoadOperations(docID string, sinceRevision int) ([]ot.SequencedOperation, error)
	// LatestRevision returns the highest revision recorded for docID,
	// across both the operation log and the snapshot, or 0 if neither exists.
	LatestRevision(docID string) (int, error)
}
