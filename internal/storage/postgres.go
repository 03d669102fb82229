package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"collabedit/pkg/ot"
)

// PostgresStore is the production Store, backed by Postgres via sqlx and
// lib/pq. Schema (see Migrate):
//
//	documents(id text primary key)
//	snapshots(document_id text, revision int, content text, created_at timestamptz)
//	operations(document_id text, revision int, record jsonb)
type PostgresStore struct {
	db *sqlx.DB
}

// OpenPostgresStore opens and pings a Postgres connection at dsn.
func OpenPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: connect postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (p *PostgresStore) Close() error {
	return p.db.Close()
}

// Migrate creates the store's tables if they do not already exist.
func (p *PostgresStore) Migrate() error {
	_, err := p.db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY
		);
		CREATE TABLE IF NOT EXISTS snapshots (
			document_id TEXT PRIMARY KEY REFERENCES documents(id),
			revision INT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS operations (
			id SERIAL PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id),
			revision INT NOT NULL,
			record JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS operations_document_revision_idx
			ON operations (document_id, revision);
	`)
	if err != nil {
		return fmt.Errorf("storage: migrate: %w", err)
	}
	return nil
}

func (p *PostgresStore) CreateDocument(docID string) error {
	_, err := p.db.Exec(`INSERT INTO documents (id) VALUES ($1)`, docID)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return ErrDocumentExists
	}
	if err != nil {
		return fmt.Errorf("storage: create document: %w", err)
	}
	return nil
}

func (p *PostgresStore) DocumentExists(docID string) (bool, error) {
	var exists bool
	err := p.db.Get(&exists, `SELECT EXISTS(SELECT 1 FROM documents WHERE id = $1)`, docID)
	if err != nil {
		return false, fmt.Errorf("storage: document exists: %w", err)
	}
	return exists, nil
}

func (p *PostgresStore) SaveSnapshot(docID string, revision int, content string) error {
	exists, err := p.DocumentExists(docID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrDocumentNotFound
	}

	tx, err := p.db.Beginx()
	if err != nil {
		return fmt.Errorf("storage: save snapshot: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO snapshots (document_id, revision, content, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (document_id) DO UPDATE
		SET revision = EXCLUDED.revision, content = EXCLUDED.content, created_at = now()
	`, docID, revision, content)
	if err != nil {
		return fmt.Errorf("storage: save snapshot: upsert: %w", err)
	}

	_, err = tx.Exec(`DELETE FROM operations WHERE document_id = $1 AND revision <= $2`, docID, revision)
	if err != nil {
		return fmt.Errorf("storage: save snapshot: prune: %w", err)
	}

	return tx.Commit()
}

type snapshotRow struct {
	DocumentID string `db:"document_id"`
	Revision   int    `db:"revision"`
	Content    string `db:"content"`
	CreatedAt  sql.NullTime `db:"created_at"`
}

func (p *PostgresStore) LoadSnapshot(docID string) (ot.DocumentSnapshot, error) {
	var row snapshotRow
	err := p.db.Get(&row, `SELECT document_id, revision, content, created_at FROM snapshots WHERE document_id = $1`, docID)
	if errors.Is(err, sql.ErrNoRows) {
		exists, existsErr := p.DocumentExists(docID)
		if existsErr != nil {
			return ot.DocumentSnapshot{}, existsErr
		}
		if !exists {
			return ot.DocumentSnapshot{}, ErrDocumentNotFound
		}
		return ot.DocumentSnapshot{}, ErrSnapshotNotFound
	}
	if err != nil {
		return ot.DocumentSnapshot{}, fmt.Errorf("storage: load snapshot: %w", err)
	}

	return ot.DocumentSnapshot{
		DocumentID: row.DocumentID,
		Revision:   row.Revision,
		Content:    row.Content,
		CreatedAt:  row.CreatedAt.Time,
	}, nil
}

func (p *PostgresStore) AppendOperation(docID string, op ot.SequencedOperation) error {
	encoded, err := json.Marshal(op.Record)
	if err != nil {
		return fmt.Errorf("storage: append operation: encode: %w", err)
	}

	_, err = p.db.Exec(
		`INSERT INTO operations (document_id, revision, record) VALUES ($1, $2, $3)`,
		docID, op.Revision, encoded,
	)
	if err != nil {
		return fmt.Errorf("storage: append operation: %w", err)
	}
	return nil
}

type operationRow struct {
	Revision int    `db:"revision"`
	Record   []byte `db:"record"`
}

func (p *PostgresStore) LoadOperations(docID string, sinceRevision int) ([]ot.SequencedOperation, error) {
	var rows []operationRow
	err := p.db.Select(&rows, `
		SELECT revision, record FROM operations
		WHERE document_id = $1 AND revision > $2
		ORDER BY revision ASC
	`, docID, sinceRevision)
	if err != nil {
		return nil, fmt.Errorf("storage: load operations: %w", err)
	}

	out := make([]ot.SequencedOperation, 0, len(rows))
	for _, row := range rows {
		var rec ot.OperationRecord
		if err := json.Unmarshal(row.Record, &rec); err != nil {
			return nil, fmt.Errorf("storage: load operations: decode: %w", err)
		}
		out = append(out, ot.SequencedOperation{Record: rec, Revision: row.Revision})
	}
	return out, nil
}

func (p *PostgresStore) LatestRevision(docID string) (int, error) {
	var maxOpRevision sql.NullInt64
	if err := p.db.Get(&maxOpRevision, `SELECT MAX(revision) FROM operations WHERE document_id = $1`, docID); err != nil {
		return 0, fmt.Errorf("storage: latest revision: operations: %w", err)
	}
	if maxOpRevision.Valid {
		return int(maxOpRevision.Int64), nil
	}

	var snapshotRevision sql.NullInt64
	if err := p.db.Get(&snapshotRevision, `SELECT revision FROM snapshots WHERE document_id = $1`, docID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("storage: latest revision: snapshot: %w", err)
	}
	return int(snapshotRevision.Int64), nil
}

var _ Store = (*PostgresStore)(nil)
