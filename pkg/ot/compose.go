package ot

// Compose merges two sequential operations op1, op2 (op2 applied right
// after op1) into a single equivalent operation, when one exists. It
// returns nil when no single operation is equivalent to applying both in
// sequence — the caller then keeps both operations rather than treating
// this as an error (ComposeIncompatible in spec terms is a signal, not
// an error).
//
//	apply(apply(doc, op1), op2) == apply(doc, Compose(op1, op2))   (when non-nil)
func Compose(op1, op2 Operation) Operation {
	switch a := op1.(type) {
	case Insert:
		switch b := op2.(type) {
		case Insert:
			return Insert{Content: a.Content + b.Content, ClientID: a.ClientID, Priority: a.Priority}
		case Delete:
			runes := []rune(a.Content)
			switch {
			case b.Length == len(runes):
				return Retain{Length: 0, ClientID: a.ClientID, Priority: a.Priority}
			case b.Length < len(runes):
				return Insert{Content: string(runes[b.Length:]), ClientID: a.ClientID, Priority: a.Priority}
			default:
				return nil
			}
		case Retain:
			return a
		}
	case Delete:
		switch b := op2.(type) {
		case Insert:
			// A delete followed by an insert cannot collapse into a
			// single Insert/Delete/Retain without a Replace variant,
			// which this algebra deliberately does not have.
			return nil
		case Delete:
			return Delete{Length: a.Length + b.Length, ClientID: a.ClientID, Priority: a.Priority}
		case Retain:
			return a
		}
	case Retain:
		return op2
	}
	return nil
}

// ComposeSequence walks seq left to right, greedily folding adjacent
// operations whenever Compose succeeds. A successful compose that
// results in a zero-length operation is dropped entirely rather than
// kept as a Retain(0) no-op. The result applies to the same starting
// state as seq and is never longer than seq.
func ComposeSequence(seq []Operation) []Operation {
	if len(seq) == 0 {
		return nil
	}

	result := make([]Operation, 0, len(seq))
	current := seq[0]

	for _, next := range seq[1:] {
		if combined := Compose(current, next); combined != nil {
			if IsNoOp(combined) {
				// compose(Insert, matching Delete) cancelled out.
				current = Retain{Length: 0}
				continue
			}
			current = combined
			continue
		}
		if !IsNoOp(current) {
			result = append(result, current)
		}
		current = next
	}
	if !IsNoOp(current) {
		result = append(result, current)
	}

	return result
}
