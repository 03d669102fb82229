package ot_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabedit/pkg/ot"
)

func TestCompose_InsertInsert_Concatenates(t *testing.T) {
	t.Parallel()

	op1 := ot.Insert{Content: "Hel", ClientID: "alice"}
	op2 := ot.Insert{Content: "lo", ClientID: "alice"}

	combined := ot.Compose(op1, op2)
	require.NotNil(t, combined)

	ins, ok := combined.(ot.Insert)
	require.True(t, ok)
	assert.Equal(t, "Hello", ins.Content)

	// Equivalence: applying both in sequence equals applying the composed op.
	seq, err := ot.ApplySequence("", ot.OperationSequence{op1, op2})
	require.NoError(t, err)

	single, err := ot.Apply("", combined, 0)
	require.NoError(t, err)
	assert.Equal(t, seq, single)
}

func TestCompose_InsertThenMatchingDelete_Cancels(t *testing.T) {
	t.Parallel()

	insert := ot.Insert{Content: "XYZ", ClientID: "alice"}
	del := ot.Delete{Length: 3, ClientID: "alice"}

	combined := ot.Compose(insert, del)
	require.NotNil(t, combined)
	assert.True(t, ot.IsNoOp(combined))
}

func TestCompose_InsertThenPartialDelete(t *testing.T) {
	t.Parallel()

	insert := ot.Insert{Content: "XYZ", ClientID: "alice"}
	del := ot.Delete{Length: 1, ClientID: "alice"}

	combined := ot.Compose(insert, del)
	require.NotNil(t, combined)

	ins, ok := combined.(ot.Insert)
	require.True(t, ok)
	assert.Equal(t, "YZ", ins.Content)
}

func TestCompose_InsertThenOverlongDelete_ReturnsNil(t *testing.T) {
	t.Parallel()

	insert := ot.Insert{Content: "XY", ClientID: "alice"}
	del := ot.Delete{Length: 5, ClientID: "alice"}

	assert.Nil(t, ot.Compose(insert, del))
}

func TestCompose_DeleteThenInsert_ReturnsNil(t *testing.T) {
	t.Parallel()

	del := ot.Delete{Length: 2, ClientID: "alice"}
	insert := ot.Insert{Content: "Z", ClientID: "alice"}

	assert.Nil(t, ot.Compose(del, insert))
}

func TestCompose_DeleteDelete_Sums(t *testing.T) {
	t.Parallel()

	d1 := ot.Delete{Length: 2, ClientID: "alice"}
	d2 := ot.Delete{Length: 3, ClientID: "alice"}

	combined := ot.Compose(d1, d2)
	require.NotNil(t, combined)

	del, ok := combined.(ot.Delete)
	require.True(t, ok)
	assert.Equal(t, 5, del.Length)
}

func TestCompose_RetainIsIdentity(t *testing.T) {
	t.Parallel()

	insert := ot.Insert{Content: "A", ClientID: "alice"}
	retain := ot.Retain{Length: 0}

	assert.Equal(t, insert, ot.Compose(retain, insert))
	assert.Equal(t, insert, ot.Compose(insert, retain))
}

func TestComposeSequence_FoldsAdjacentInserts(t *testing.T) {
	t.Parallel()

	seq := []ot.Operation{
		ot.Insert{Content: "H", ClientID: "alice"},
		ot.Insert{Content: "e", ClientID: "alice"},
		ot.Insert{Content: "llo", ClientID: "alice"},
	}

	folded := ot.ComposeSequence(seq)
	require.Len(t, folded, 1)

	ins, ok := folded[0].(ot.Insert)
	require.True(t, ok)
	assert.Equal(t, "Hello", ins.Content)
}

func TestComposeSequence_DropsCancelledNoOps(t *testing.T) {
	t.Parallel()

	seq := []ot.Operation{
		ot.Insert{Content: "XYZ", ClientID: "alice"},
		ot.Delete{Length: 3, ClientID: "alice"},
		ot.Insert{Content: "done", ClientID: "alice"},
	}

	folded := ot.ComposeSequence(seq)
	require.Len(t, folded, 1)

	ins, ok := folded[0].(ot.Insert)
	require.True(t, ok)
	assert.Equal(t, "done", ins.Content)
}

func TestComposeSequence_Empty(t *testing.T) {
	t.Parallel()

	assert.Nil(t, ot.ComposeSequence(nil))
}
