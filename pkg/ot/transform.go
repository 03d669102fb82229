package ot

// Positioned pairs an Operation with the document position it applies
// at. Transform and CanApplyConcurrently need positions to reason about
// overlap; Apply/Invert take position as a separate call argument
// instead of storing it on Operation, so a Positioned value is how the
// two meet.
type Positioned struct {
	Op       Operation
	Position int
}

// Transform takes two positioned operations opA, opB produced concurrently
// against the same document state and returns (opA', opB') such that
// applying them in either order converges:
//
//	Apply(Apply(doc, opA), opB') == Apply(Apply(doc, opB), opA')
//
// priority resolves ties when two Inserts land at the same position: the
// higher-priority insert (by Operation.Who()/Priority, falling back to
// the explicit priority flag) keeps its position; the other shifts right
// by the winner's length. Overlapping deletes collapse to their union.
// An Insert landing inside a concurrent Delete's range splits the Delete
// into an OperationSequence around the survivor, so the insert's text is
// preserved no matter which side applies first.
func Transform(opA, opB Positioned, priority bool) (Positioned, Positioned) {
	// A side already split by an earlier Transform call (e.g. reconciling
	// against several history entries in turn) is reconciled part by
	// part rather than falling through unmatched below.
	if seqA, ok := opA.Op.(OperationSequence); ok {
		return transformSeqAgainstSingle(seqA, opA.Position, opB, priority)
	}
	if seqB, ok := opB.Op.(OperationSequence); ok {
		bPrime, aPrime := transformSeqAgainstSingle(seqB, opB.Position, opA, priority)
		return aPrime, bPrime
	}

	switch a := opA.Op.(type) {
	case Insert:
		switch b := opB.Op.(type) {
		case Insert:
			return transformInsertInsert(a, opA.Position, b, opB.Position, priority)
		case Delete:
			return transformInsertDelete(a, opA.Position, b, opB.Position)
		case Retain:
			return opA, opB
		}
	case Delete:
		switch b := opB.Op.(type) {
		case Insert:
			bPrime, aPrime := transformInsertDelete(b, opB.Position, a, opA.Position)
			return aPrime, bPrime
		case Delete:
			return transformDeleteDelete(a, opA.Position, b, opB.Position)
		case Retain:
			return opA, opB
		}
	case Retain:
		return opA, opB
	}
	return opA, opB
}

// insertWins decides whether insert a keeps its position over insert b
// when both land at the same index: higher Priority wins; ties fall back
// to a lexically-smaller ClientID; a final tie falls back to priority.
func insertWins(a, b Insert, priority bool) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if a.ClientID != b.ClientID {
		return a.ClientID < b.ClientID
	}
	return priority
}

func transformInsertInsert(a Insert, posA int, b Insert, posB int, priority bool) (Positioned, Positioned) {
	switch {
	case posA < posB:
		return Positioned{a, posA}, Positioned{b, posB + a.Len()}
	case posA > posB:
		return Positioned{a, posA + b.Len()}, Positioned{b, posB}
	default:
		if insertWins(a, b, priority) {
			return Positioned{a, posA}, Positioned{b, posB + a.Len()}
		}
		return Positioned{a, posA + b.Len()}, Positioned{b, posB}
	}
}

func transformInsertDelete(insert Insert, posI int, del Delete, posD int) (Positioned, Positioned) {
	switch {
	case posI <= posD:
		// Insert lands at or before the delete: delete shifts right so it
		// still removes the same original characters.
		return Positioned{insert, posI}, Positioned{del, posD + insert.Len()}
	case posI >= posD+del.Length:
		// Insert lands after the deleted range: it shifts left by the
		// amount already removed.
		return Positioned{insert, posI - del.Length}, Positioned{del, posD}
	default:
		// Insert lands strictly inside the deleted range. The insert
		// survives at the delete's start (posD), but a single contiguous
		// Delete can no longer express "remove the original range minus
		// the survivor": applied after the insert, it must remove
		// doc[posD:posI], skip over the insert's own content, then
		// remove the rest of the original range, now shifted right by
		// insert.Len(). That's two deletes around a retain, not one op.
		head := posI - posD
		tail := del.Length - head
		split := OperationSequence{
			Delete{Length: head, ClientID: del.ClientID, Priority: del.Priority},
			Retain{Length: insert.Len()},
			Delete{Length: tail, ClientID: del.ClientID, Priority: del.Priority},
		}
		return Positioned{insert, posD}, Positioned{split, posD}
	}
}

// transformSeqAgainstSingle reconciles a sequence produced by an earlier
// split (see transformInsertDelete) against a further concurrent
// operation, by running Transform part by part across the sequence's own
// internal cursor. other may itself end up split partway through, in
// which case later parts reconcile against that split in turn.
func transformSeqAgainstSingle(seq OperationSequence, posSeq int, other Positioned, priority bool) (Positioned, Positioned) {
	outSeq := make(OperationSequence, 0, len(seq))
	pos := posSeq

	for _, sub := range seq {
		subPrime, otherPrime := Transform(Positioned{Op: sub, Position: pos}, other, priority)
		outSeq = append(outSeq, subPrime.Op)

		if subPrime.Op.Kind() == KindDelete {
			pos = subPrime.Position
		} else {
			pos = subPrime.Position + subPrime.Op.Len()
		}
		other = otherPrime
	}

	return Positioned{Op: outSeq, Position: posSeq}, other
}

func transformDeleteDelete(a Delete, posA int, b Delete, posB int) (Positioned, Positioned) {
	aEnd := posA + a.Length
	bEnd := posB + b.Length

	switch {
	case aEnd <= posB:
		return Positioned{a, posA}, Positioned{b, posB - a.Length}
	case bEnd <= posA:
		return Positioned{a, posA - b.Length}, Positioned{b, posB}
	case posA <= posB:
		// Overlapping; a starts first (or ties). Union of the two ranges
		// is deleted once; each prime only removes its own non-overlapping
		// remainder so composing both doesn't double-delete.
		overlap := min(aEnd, bEnd) - posB
		aPrime := Delete{Length: a.Length - overlap, ClientID: a.ClientID, Priority: a.Priority}
		bPrime := Delete{Length: b.Length - overlap, ClientID: b.ClientID, Priority: b.Priority}
		return Positioned{aPrime, posA}, Positioned{bPrime, posA}
	default:
		overlap := min(aEnd, bEnd) - posA
		aPrime := Delete{Length: a.Length - overlap, ClientID: a.ClientID, Priority: a.Priority}
		bPrime := Delete{Length: b.Length - overlap, ClientID: b.ClientID, Priority: b.Priority}
		return Positioned{aPrime, posB}, Positioned{bPrime, posB}
	}
}

// CanApplyConcurrently reports whether opA and opB affect disjoint ranges
// of the document and so can be applied in either order without
// transformation.
func CanApplyConcurrently(opA Positioned, opB Positioned) bool {
	if opA.Op.Kind() == KindRetain || opB.Op.Kind() == KindRetain {
		return true
	}

	aEnd := opA.Position + opA.Op.Len()
	bEnd := opB.Position + opB.Op.Len()

	return aEnd <= opB.Position || bEnd <= opA.Position
}
