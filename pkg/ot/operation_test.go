package ot_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabedit/pkg/ot"
)

func TestInsert_Apply(t *testing.T) {
	t.Parallel()

	result, newPos, err := ot.Insert{Content: "ELLO"}.Apply("H", 1)
	require.NoError(t, err)
	assert.Equal(t, "HELLO", result)
	assert.Equal(t, 5, newPos)
}

func TestInsert_Apply_IntoEmpty(t *testing.T) {
	t.Parallel()

	result, newPos, err := ot.Insert{Content: "A"}.Apply("", 0)
	require.NoError(t, err)
	assert.Equal(t, "A", result)
	assert.Equal(t, 1, newPos)
}

func TestInsert_Apply_InvalidPosition(t *testing.T) {
	t.Parallel()

	_, _, err := ot.Insert{Content: "X"}.Apply("ABC", 10)
	assert.ErrorIs(t, err, ot.ErrInvalidPosition)

	_, _, err = ot.Insert{Content: "X"}.Apply("ABC", -1)
	assert.ErrorIs(t, err, ot.ErrInvalidPosition)
}

func TestInsert_Apply_Unicode(t *testing.T) {
	t.Parallel()

	result, newPos, err := ot.Insert{Content: "🌍"}.Apply("hello", 5)
	require.NoError(t, err)
	assert.Equal(t, "hello🌍", result)
	assert.Equal(t, 6, newPos)
}

func TestDelete_Apply(t *testing.T) {
	t.Parallel()

	result, newPos, err := ot.Delete{Length: 2}.Apply("HELLO", 2)
	require.NoError(t, err)
	assert.Equal(t, "HEO", result)
	assert.Equal(t, 2, newPos)
}

func TestDelete_Apply_InvalidRange(t *testing.T) {
	t.Parallel()

	_, _, err := ot.Delete{Length: 10}.Apply("ABC", 0)
	assert.ErrorIs(t, err, ot.ErrInvalidRange)
}

func TestDelete_Apply_InvalidPosition(t *testing.T) {
	t.Parallel()

	_, _, err := ot.Delete{Length: 1}.Apply("ABC", -1)
	assert.ErrorIs(t, err, ot.ErrInvalidPosition)
}

func TestDelete_Apply_FromEmpty(t *testing.T) {
	t.Parallel()

	_, _, err := ot.Delete{Length: 1}.Apply("", 0)
	assert.ErrorIs(t, err, ot.ErrInvalidRange)
}

func TestDelete_Apply_Unicode(t *testing.T) {
	t.Parallel()

	// Delete the "é" at index 1.
	result, newPos, err := ot.Delete{Length: 1}.Apply("héllo", 1)
	require.NoError(t, err)
	assert.Equal(t, "hllo", result)
	assert.Equal(t, 1, newPos)
}

func TestRetain_Apply(t *testing.T) {
	t.Parallel()

	result, newPos, err := ot.Retain{Length: 3}.Apply("HELLO", 0)
	require.NoError(t, err)
	assert.Equal(t, "HELLO", result)
	assert.Equal(t, 3, newPos)
}

func TestRetain_ZeroLength_IsNoOp(t *testing.T) {
	t.Parallel()

	op := ot.Retain{Length: 0}
	assert.True(t, ot.IsNoOp(op))

	result, err := ot.Apply("HELLO", op, 0)
	require.NoError(t, err)
	assert.Equal(t, "HELLO", result)
}

func TestInvert_Insert(t *testing.T) {
	t.Parallel()

	op := ot.Insert{Content: "XYZ", ClientID: "alice"}
	inv, err := op.Invert("AB", 1)
	require.NoError(t, err)

	del, ok := inv.(ot.Delete)
	require.True(t, ok)
	assert.Equal(t, 3, del.Length)
}

func TestInvert_Delete(t *testing.T) {
	t.Parallel()

	doc := "HELLO"
	op := ot.Delete{Length: 2, ClientID: "alice"}
	inv, err := op.Invert(doc, 1)
	require.NoError(t, err)

	ins, ok := inv.(ot.Insert)
	require.True(t, ok)
	assert.Equal(t, "EL", ins.Content)
}

func TestInvert_Retain(t *testing.T) {
	t.Parallel()

	op := ot.Retain{Length: 4}
	inv, err := op.Invert("HELLO", 0)
	require.NoError(t, err)

	ret, ok := inv.(ot.Retain)
	require.True(t, ok)
	assert.Equal(t, 4, ret.Length)
}

func TestApplyThenInvert_RoundTrips(t *testing.T) {
	t.Parallel()

	doc := "HELLO"
	op := ot.Delete{Length: 2, ClientID: "alice"}

	edited, err := ot.Apply(doc, op, 1)
	require.NoError(t, err)
	assert.Equal(t, "HLO", edited)

	inv, err := ot.Invert(op, doc, 1)
	require.NoError(t, err)

	restored, err := ot.Apply(edited, inv, 1)
	require.NoError(t, err)
	assert.Equal(t, doc, restored)
}

func TestOpKind_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "insert", ot.KindInsert.String())
	assert.Equal(t, "delete", ot.KindDelete.String())
	assert.Equal(t, "retain", ot.KindRetain.String())
	assert.Equal(t, "sequence", ot.KindSequence.String())
}
