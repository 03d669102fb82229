// Package ot implements Operational Transformation for real-time
// collaborative editing: typed operations over plain-text documents,
// composition, transformation for concurrent edits, and inversion for
// undo. Positions are character (rune) indices, not byte offsets.
package ot

import (
	"errors"
	"unicode/utf8"
)

var (
	// ErrInvalidPosition is returned when an operation's position falls
	// outside the bounds of the document it is applied to.
	ErrInvalidPosition = errors.New("ot: invalid position")

	// ErrInvalidRange is returned when a delete's position+length would
	// reach past the end of the document.
	ErrInvalidRange = errors.New("ot: invalid range")
)

// OpKind identifies which operation variant a value holds: one of the
// three single edits, or an OperationSequence.
type OpKind int

const (
	KindInsert OpKind = iota
	KindDelete
	KindRetain
	// KindSequence marks an OperationSequence standing in for a single
	// Operation — produced when Transform must split a Delete around a
	// concurrent Insert that lands inside it (see transformInsertDelete).
	KindSequence
)

func (k OpKind) String() string {
	switch k {
	case KindInsert:
		return "insert"
	case KindDelete:
		return "delete"
	case KindRetain:
		return "retain"
	case KindSequence:
		return "sequence"
	default:
		return "unknown"
	}
}

// Operation is a typed edit: Insert, Delete, or Retain, or an
// OperationSequence of them standing in for a single edit. It is modeled
// as a closed tagged sum (concrete types, an unexported marker method)
// rather than class-hierarchy dispatch, so Compose, Transform, Apply, and
// Invert can switch over the concrete type.
type Operation interface {
	// Kind reports which variant this operation is.
	Kind() OpKind
	// Len returns the operation's length: the rune count of Content for
	// Insert, the stored length for Delete/Retain.
	Len() int
	// Apply applies the operation to doc at pos, returning the edited
	// document and the cursor position after the edit.
	Apply(doc string, pos int) (result string, newPos int, err error)
	// Invert returns the operation that undoes this one, given the
	// document and position it was originally applied against.
	Invert(doc string, pos int) (Operation, error)
	// Who returns the originating client/user id, empty if unset.
	Who() string

	isOperation()
}

// Insert inserts Content at the operation's position.
type Insert struct {
	Content  string
	ClientID string
	// Priority breaks ties when two inserts land at the same position
	// during Transform; higher wins (stays put), lower shifts right.
	Priority int
}

func (Insert) isOperation()  {}
func (Insert) Kind() OpKind  { return KindInsert }
func (i Insert) Len() int    { return utf8.RuneCountInString(i.Content) }
func (i Insert) Who() string { return i.ClientID }

// Apply splices Content into doc at pos and advances the cursor past it.
func (i Insert) Apply(doc string, pos int) (string, int, error) {
	runes := []rune(doc)
	if pos < 0 || pos > len(runes) {
		return "", 0, ErrInvalidPosition
	}

	out := make([]rune, 0, len(runes)+i.Len())
	out = append(out, runes[:pos]...)
	out = append(out, []rune(i.Content)...)
	out = append(out, runes[pos:]...)

	return string(out), pos + i.Len(), nil
}

// Invert of an Insert is a Delete of the same length at the same position.
func (i Insert) Invert(doc string, pos int) (Operation, error) {
	runes := []rune(doc)
	if pos < 0 || pos > len(runes) {
		return nil, ErrInvalidPosition
	}
	return Delete{Length: i.Len(), ClientID: i.ClientID, Priority: i.Priority}, nil
}

// Delete removes Length characters starting at the operation's position.
type Delete struct {
	Length   int
	ClientID string
	Priority int
}

func (Delete) isOperation()  {}
func (Delete) Kind() OpKind  { return KindDelete }
func (d Delete) Len() int    { return d.Length }
func (d Delete) Who() string { return d.ClientID }

// Apply removes Length characters from doc at pos.
func (d Delete) Apply(doc string, pos int) (string, int, error) {
	runes := []rune(doc)
	if pos < 0 || pos > len(runes) {
		return "", 0, ErrInvalidPosition
	}
	if pos+d.Length > len(runes) {
		return "", 0, ErrInvalidRange
	}

	out := make([]rune, 0, len(runes)-d.Length)
	out = append(out, runes[:pos]...)
	out = append(out, runes[pos+d.Length:]...)

	return string(out), pos, nil
}

// Invert of a Delete is an Insert of the characters that were removed.
func (d Delete) Invert(doc string, pos int) (Operation, error) {
	runes := []rune(doc)
	if pos < 0 || pos > len(runes) {
		return nil, ErrInvalidPosition
	}
	if pos+d.Length > len(runes) {
		return nil, ErrInvalidRange
	}

	removed := string(runes[pos : pos+d.Length])
	return Insert{Content: removed, ClientID: d.ClientID, Priority: d.Priority}, nil
}

// Retain advances the cursor by Length characters without modifying the
// document. A zero-length Retain is a no-op sentinel.
type Retain struct {
	Length   int
	ClientID string
	Priority int
}

func (Retain) isOperation()  {}
func (Retain) Kind() OpKind  { return KindRetain }
func (r Retain) Len() int    { return r.Length }
func (r Retain) Who() string { return r.ClientID }

// Apply is a no-op on the document content; it only advances the cursor.
func (r Retain) Apply(doc string, pos int) (string, int, error) {
	runes := []rune(doc)
	if pos < 0 || pos > len(runes) {
		return "", 0, ErrInvalidPosition
	}
	return doc, pos + r.Length, nil
}

// Invert of a Retain is itself: moving the cursor has no undo.
func (r Retain) Invert(doc string, pos int) (Operation, error) {
	runes := []rune(doc)
	if pos < 0 || pos > len(runes) {
		return nil, ErrInvalidPosition
	}
	return Retain{Length: r.Length, ClientID: r.ClientID, Priority: r.Priority}, nil
}

// IsNoOp reports whether op has no effect on a document: a zero-length
// Retain, Insert, or Delete.
func IsNoOp(op Operation) bool {
	return op.Len() == 0
}

// Apply is the package-level entry point from spec §4.4: applies a
// single operation to document starting at position.
func Apply(document string, operation Operation, position int) (string, error) {
	result, _, err := operation.Apply(document, position)
	return result, err
}

// Invert is the package-level entry point mirroring Apply: yields the
// operation that undoes operation when applied against document at
// position.
func Invert(operation Operation, document string, position int) (Operation, error) {
	return operation.Invert(document, position)
}
