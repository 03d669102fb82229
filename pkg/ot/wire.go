package ot

import (
	"fmt"
	"time"
)

// OperationRecord is the wire/transport representation of an Operation
// (spec §6): {type, position, content?, userId, timestamp, version}. It
// is what crosses the websocket and what QueuedOperation wraps for
// durable storage.
type OperationRecord struct {
	Type      string    `json:"type"`
	Position  int       `json:"position"`
	Content   string    `json:"content,omitempty"`
	Length    int       `json:"length,omitempty"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
	Version   int       `json:"version"`
}

// ToRecord converts an Operation plus its position/version/authorship
// into the wire record sent to a transport.
func ToRecord(op Operation, position int, userID string, timestamp time.Time, version int) OperationRecord {
	rec := OperationRecord{
		Position:  position,
		UserID:    userID,
		Timestamp: timestamp,
		Version:   version,
	}

	switch v := op.(type) {
	case Insert:
		rec.Type = KindInsert.String()
		rec.Content = v.Content
	case Delete:
		rec.Type = KindDelete.String()
		rec.Length = v.Length
	case Retain:
		rec.Type = KindRetain.String()
		rec.Length = v.Length
	}

	return rec
}

// FromRecord reconstructs the Operation and position carried by a wire
// record. It returns an error for an unrecognized type rather than
// guessing.
func FromRecord(rec OperationRecord) (Operation, int, error) {
	switch rec.Type {
	case KindInsert.String():
		return Insert{Content: rec.Content, ClientID: rec.UserID}, rec.Position, nil
	case KindDelete.String():
		return Delete{Length: rec.Length, ClientID: rec.UserID}, rec.Position, nil
	case KindRetain.String():
		return Retain{Length: rec.Length, ClientID: rec.UserID}, rec.Position, nil
	default:
		return nil, 0, fmt.Errorf("ot: unknown operation record type %q", rec.Type)
	}
}

// SequencedOperation is an OperationRecord plus the server-assigned
// revision it landed at. This is the history record that flows from the
// sync driver into the server-side store and back out to other clients.
type SequencedOperation struct {
	Record   OperationRecord `json:"record"`
	Revision int             `json:"revision"`
}

// DocumentSnapshot is a compaction point: the full document content at a
// given revision, letting a store prune the operation log that precedes it.
type DocumentSnapshot struct {
	DocumentID string    `json:"documentId"`
	Revision   int       `json:"revision"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}
