package ot

// OperationSequence is an ordered list of operations applied left to
// right with a threaded cursor: the position after operation i is the
// input position to operation i+1.
//
// OperationSequence also satisfies Operation itself, so a sequence can
// stand in anywhere a single Insert/Delete/Retain would: Transform uses
// this to represent a Delete that has been split into two spans around a
// concurrent Insert landing inside its original range (see
// transformInsertDelete) — a single contiguous Delete cannot both skip
// the survivor and remove the rest of its range, but a two-delete,
// one-retain sequence can.
type OperationSequence []Operation

func (OperationSequence) isOperation() {}
func (OperationSequence) Kind() OpKind { return KindSequence }

// Len is the sum of the sequence's parts' lengths.
func (s OperationSequence) Len() int {
	total := 0
	for _, op := range s {
		total += op.Len()
	}
	return total
}

// Who returns the first non-empty authorship among the sequence's parts.
func (s OperationSequence) Who() string {
	for _, op := range s {
		if who := op.Who(); who != "" {
			return who
		}
	}
	return ""
}

// Apply threads doc/pos through each part in order, exactly like
// ApplySequence but starting from an arbitrary pos instead of 0.
func (s OperationSequence) Apply(doc string, pos int) (string, int, error) {
	cur, curPos := doc, pos
	for _, op := range s {
		next, newPos, err := op.Apply(cur, curPos)
		if err != nil {
			return "", 0, err
		}
		cur, curPos = next, newPos
	}
	return cur, curPos, nil
}

// Invert undoes the sequence: replay forward recording each part's
// pre-state, then invert each part against its own snapshot, keeping the
// parts' original order so the undo threads the same cursor from pos,
// mirroring InvertSequence.
func (s OperationSequence) Invert(doc string, pos int) (Operation, error) {
	docs := make([]string, len(s)+1)
	positions := make([]int, len(s)+1)
	docs[0], positions[0] = doc, pos

	for i, op := range s {
		next, newPos, err := op.Apply(docs[i], positions[i])
		if err != nil {
			return nil, err
		}
		docs[i+1], positions[i+1] = next, newPos
	}

	inverted := make(OperationSequence, len(s))
	for i := len(s) - 1; i >= 0; i-- {
		inv, err := s[i].Invert(docs[i], positions[i])
		if err != nil {
			return nil, err
		}
		inverted[i] = inv
	}
	return inverted, nil
}

// ApplySequence threads a position cursor (starting at 0) through seq,
// calling each operation's Apply with the evolving (document, position).
func ApplySequence(document string, seq OperationSequence) (string, error) {
	doc := document
	pos := 0

	for _, op := range seq {
		next, newPos, err := op.Apply(doc, pos)
		if err != nil {
			return "", err
		}
		doc = next
		pos = newPos
	}

	return doc, nil
}

// InvertSequence computes the undo of seq against its original starting
// document, per spec:
//  1. Replay seq forward from document, recording the document/position
//     snapshot before each operation runs.
//  2. Invert each operation, last to first, against its own pre-state
//     snapshot.
//  3. Return the inverses in the sequence's own order, so that applied to
//     the edited document with a cursor starting at 0 they undo seq.
//
// Guarantee: ApplySequence(ApplySequence(doc, seq), InvertSequence(seq, doc)) == doc.
func InvertSequence(seq OperationSequence, document string) (OperationSequence, error) {
	docs := make([]string, len(seq)+1)
	positions := make([]int, len(seq)+1)
	docs[0] = document
	positions[0] = 0

	for i, op := range seq {
		next, newPos, err := op.Apply(docs[i], positions[i])
		if err != nil {
			return nil, err
		}
		docs[i+1] = next
		positions[i+1] = newPos
	}

	inverses := make(OperationSequence, len(seq))
	for i := len(seq) - 1; i >= 0; i-- {
		inv, err := seq[i].Invert(docs[i], positions[i])
		if err != nil {
			return nil, err
		}
		inverses[i] = inv
	}

	return inverses, nil
}

// RemoveNoOps strips zero-length operations from seq without changing
// its semantics. It is a fixed point under repetition: calling it again
// on its own output returns an equal sequence.
func RemoveNoOps(seq OperationSequence) OperationSequence {
	out := make(OperationSequence, 0, len(seq))
	for _, op := range seq {
		if !IsNoOp(op) {
			out = append(out, op)
		}
	}
	return out
}

// TransformSequence applies Transform pairwise across seqA and seqB,
// threading each sequence's own cursor independently so each op is
// transformed against its positional counterpart, producing transformed
// sequences of the same semantics as the inputs. Operations beyond the
// shorter sequence's length pass through untransformed (there is nothing
// concurrent left to reconcile them against).
func TransformSequence(seqA, seqB OperationSequence, priority bool) (OperationSequence, OperationSequence) {
	outA := make(OperationSequence, 0, len(seqA))
	outB := make(OperationSequence, 0, len(seqB))

	posA, posB := 0, 0
	n := len(seqA)
	if len(seqB) < n {
		n = len(seqB)
	}

	for i := 0; i < n; i++ {
		pa := Positioned{Op: seqA[i], Position: posA}
		pb := Positioned{Op: seqB[i], Position: posB}
		ta, tb := Transform(pa, pb, priority)
		outA = append(outA, ta.Op)
		outB = append(outB, tb.Op)
		posA += seqA[i].Len()
		posB += seqB[i].Len()
	}
	for i := n; i < len(seqA); i++ {
		outA = append(outA, seqA[i])
	}
	for i := n; i < len(seqB); i++ {
		outB = append(outB, seqB[i])
	}

	return outA, outB
}
