package ot_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabedit/pkg/ot"
)

func TestTransform_ConcurrentInsertsAtSamePosition(t *testing.T) {
	t.Parallel()

	doc := ""
	insertA := ot.Positioned{Op: ot.Insert{Content: "A", ClientID: "alice", Priority: 1}, Position: 0}
	insertB := ot.Positioned{Op: ot.Insert{Content: "B", ClientID: "bob", Priority: 0}, Position: 0}

	aPrime, bPrime := ot.Transform(insertA, insertB, true)

	// Apply A then B' (alice's insert wins the tie, stays at 0).
	afterA, err := ot.Apply(doc, insertA.Op, insertA.Position)
	require.NoError(t, err)
	resultAB, err := ot.Apply(afterA, bPrime.Op, bPrime.Position)
	require.NoError(t, err)

	// Apply B then A'.
	afterB, err := ot.Apply(doc, insertB.Op, insertB.Position)
	require.NoError(t, err)
	resultBA, err := ot.Apply(afterB, aPrime.Op, aPrime.Position)
	require.NoError(t, err)

	assert.Equal(t, resultAB, resultBA)
	assert.Equal(t, "AB", resultAB)
}

func TestTransform_InsertInsert_DifferentPositions(t *testing.T) {
	t.Parallel()

	doc := "HELLO"
	insertA := ot.Positioned{Op: ot.Insert{Content: "X", ClientID: "alice"}, Position: 1}
	insertB := ot.Positioned{Op: ot.Insert{Content: "Y", ClientID: "bob"}, Position: 3}

	aPrime, bPrime := ot.Transform(insertA, insertB, true)

	afterA, err := ot.Apply(doc, insertA.Op, insertA.Position)
	require.NoError(t, err)
	resultAB, err := ot.Apply(afterA, bPrime.Op, bPrime.Position)
	require.NoError(t, err)

	afterB, err := ot.Apply(doc, insertB.Op, insertB.Position)
	require.NoError(t, err)
	resultBA, err := ot.Apply(afterB, aPrime.Op, aPrime.Position)
	require.NoError(t, err)

	assert.Equal(t, resultAB, resultBA)
}

func TestTransform_InsertDelete_InsertBeforeDelete(t *testing.T) {
	t.Parallel()

	doc := "HELLO"
	insert := ot.Positioned{Op: ot.Insert{Content: "X", ClientID: "alice"}, Position: 0}
	del := ot.Positioned{Op: ot.Delete{Length: 2, ClientID: "bob"}, Position: 2}

	insPrime, delPrime := ot.Transform(insert, del, true)

	afterInsert, err := ot.Apply(doc, insert.Op, insert.Position)
	require.NoError(t, err)
	resultID, err := ot.Apply(afterInsert, delPrime.Op, delPrime.Position)
	require.NoError(t, err)

	afterDelete, err := ot.Apply(doc, del.Op, del.Position)
	require.NoError(t, err)
	resultDI, err := ot.Apply(afterDelete, insPrime.Op, insPrime.Position)
	require.NoError(t, err)

	assert.Equal(t, resultID, resultDI)
}

func TestTransform_InsertDelete_InsertInsideDeleteRange(t *testing.T) {
	t.Parallel()

	doc := "HELLO"
	// Delete "ELL" (positions 1..4); insert "X" at position 2, inside the range.
	insert := ot.Positioned{Op: ot.Insert{Content: "X", ClientID: "alice"}, Position: 2}
	del := ot.Positioned{Op: ot.Delete{Length: 3, ClientID: "bob"}, Position: 1}

	insPrime, delPrime := ot.Transform(insert, del, true)

	afterInsert, err := ot.Apply(doc, insert.Op, insert.Position)
	require.NoError(t, err)
	resultID, err := ot.Apply(afterInsert, delPrime.Op, delPrime.Position)
	require.NoError(t, err)

	afterDelete, err := ot.Apply(doc, del.Op, del.Position)
	require.NoError(t, err)
	resultDI, err := ot.Apply(afterDelete, insPrime.Op, insPrime.Position)
	require.NoError(t, err)

	assert.Equal(t, resultID, resultDI)
	assert.Contains(t, resultID, "X")
}

func TestTransform_DeleteDelete_Disjoint(t *testing.T) {
	t.Parallel()

	doc := "HELLO WORLD"
	delA := ot.Positioned{Op: ot.Delete{Length: 2, ClientID: "alice"}, Position: 0}
	delB := ot.Positioned{Op: ot.Delete{Length: 2, ClientID: "bob"}, Position: 6}

	aPrime, bPrime := ot.Transform(delA, delB, true)

	afterA, err := ot.Apply(doc, delA.Op, delA.Position)
	require.NoError(t, err)
	resultAB, err := ot.Apply(afterA, bPrime.Op, bPrime.Position)
	require.NoError(t, err)

	afterB, err := ot.Apply(doc, delB.Op, delB.Position)
	require.NoError(t, err)
	resultBA, err := ot.Apply(afterB, aPrime.Op, aPrime.Position)
	require.NoError(t, err)

	assert.Equal(t, resultAB, resultBA)
}

func TestTransform_DeleteDelete_Overlapping(t *testing.T) {
	t.Parallel()

	doc := "HELLO"
	// a deletes [1,4) "ELL"; b deletes [2,5) "LLO" -- they overlap on "LL".
	delA := ot.Positioned{Op: ot.Delete{Length: 3, ClientID: "alice"}, Position: 1}
	delB := ot.Positioned{Op: ot.Delete{Length: 3, ClientID: "bob"}, Position: 2}

	aPrime, bPrime := ot.Transform(delA, delB, true)

	afterA, err := ot.Apply(doc, delA.Op, delA.Position)
	require.NoError(t, err)
	resultAB, err := ot.Apply(afterA, bPrime.Op, bPrime.Position)
	require.NoError(t, err)

	afterB, err := ot.Apply(doc, delB.Op, delB.Position)
	require.NoError(t, err)
	resultBA, err := ot.Apply(afterB, aPrime.Op, aPrime.Position)
	require.NoError(t, err)

	assert.Equal(t, resultAB, resultBA)
	assert.Equal(t, "H", resultAB)
}

// TestTransform_InsertDelete_InsertInsideDeleteRange_SplitsDelete pins
// down the exact counter-example that broke convergence before delPrime
// split around the survivor: a single contiguous Delete couldn't both
// skip an interior Insert and remove the rest of its range.
func TestTransform_InsertDelete_InsertInsideDeleteRange_SplitsDelete(t *testing.T) {
	t.Parallel()

	doc := "HELLO"
	insert := ot.Positioned{Op: ot.Insert{Content: "X", ClientID: "alice"}, Position: 2}
	del := ot.Positioned{Op: ot.Delete{Length: 3, ClientID: "bob"}, Position: 1}

	insPrime, delPrime := ot.Transform(insert, del, true)

	afterInsert, err := ot.Apply(doc, insert.Op, insert.Position)
	require.NoError(t, err)
	resultID, err := ot.Apply(afterInsert, delPrime.Op, delPrime.Position)
	require.NoError(t, err)

	afterDelete, err := ot.Apply(doc, del.Op, del.Position)
	require.NoError(t, err)
	resultDI, err := ot.Apply(afterDelete, insPrime.Op, insPrime.Position)
	require.NoError(t, err)

	assert.Equal(t, "HXO", resultID)
	assert.Equal(t, "HXO", resultDI)
	assert.Equal(t, ot.KindSequence, delPrime.Op.Kind())
}

// TestTransform_SplitDelete_ReconcilesAgainstThirdOperation walks a later
// concurrent operation forward through Transform against each earlier
// operation in commit order, one of which is a split sequence. The walk
// has the same shape as Service.UpdateDocument's history loop, rather
// than asserting a standalone convergence equation across mismatched
// frames.
func TestTransform_SplitDelete_ReconcilesAgainstThirdOperation(t *testing.T) {
	t.Parallel()

	doc := "HELLOWORLD"
	insert := ot.Positioned{Op: ot.Insert{Content: "X", ClientID: "alice"}, Position: 2}
	del := ot.Positioned{Op: ot.Delete{Length: 3, ClientID: "bob"}, Position: 1}
	_, delPrime := ot.Transform(insert, del, true)
	require.Equal(t, ot.KindSequence, delPrime.Op.Kind())

	revision1, err := ot.Apply(doc, insert.Op, insert.Position)
	require.NoError(t, err)
	revision2, err := ot.Apply(revision1, delPrime.Op, delPrime.Position)
	require.NoError(t, err)
	require.Equal(t, "HXOWORLD", revision2)

	// A third, later concurrent edit authored against the original doc:
	// insert "Y" between the surviving "WO" and "RLD" of "WORLD".
	third := ot.Positioned{Op: ot.Insert{Content: "Y", ClientID: "carol"}, Position: 7}

	// Walk it forward through each history entry in commit order, exactly
	// as Service.UpdateDocument does.
	third, _ = ot.Transform(third, insert, true)
	third, _ = ot.Transform(third, delPrime, true)

	result, err := ot.Apply(revision2, third.Op, third.Position)
	require.NoError(t, err)
	assert.Equal(t, "HXOWOYRLD", result)
}

func TestTransform_RetainPassesThroughUnchanged(t *testing.T) {
	t.Parallel()

	retain := ot.Positioned{Op: ot.Retain{Length: 2}, Position: 0}
	insert := ot.Positioned{Op: ot.Insert{Content: "Z", ClientID: "alice"}, Position: 1}

	rPrime, iPrime := ot.Transform(retain, insert, true)
	assert.Equal(t, retain, rPrime)
	assert.Equal(t, insert, iPrime)
}

func TestCanApplyConcurrently_DisjointRanges(t *testing.T) {
	t.Parallel()

	a := ot.Positioned{Op: ot.Delete{Length: 2}, Position: 0}
	b := ot.Positioned{Op: ot.Delete{Length: 2}, Position: 5}

	assert.True(t, ot.CanApplyConcurrently(a, b))
}

func TestCanApplyConcurrently_OverlappingRanges(t *testing.T) {
	t.Parallel()

	a := ot.Positioned{Op: ot.Delete{Length: 3}, Position: 0}
	b := ot.Positioned{Op: ot.Delete{Length: 3}, Position: 2}

	assert.False(t, ot.CanApplyConcurrently(a, b))
}

func TestCanApplyConcurrently_RetainAlwaysTrue(t *testing.T) {
	t.Parallel()

	a := ot.Positioned{Op: ot.Retain{Length: 0}, Position: 0}
	b := ot.Positioned{Op: ot.Delete{Length: 3}, Position: 0}

	assert.True(t, ot.CanApplyConcurrently(a, b))
}
