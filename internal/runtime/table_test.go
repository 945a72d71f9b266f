package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTableInitialAllNull(t *testing.T) {
	tbl := NewTable(3)
	require.EqualValues(t, 3, tbl.Size())
	for i := uint32(0); i < 3; i++ {
		require.True(t, tbl.IsNull(i))
	}
}

func TestTableSetAndCheckType(t *testing.T) {
	tbl := NewTable(2)
	tbl.Set(0, 0xAAAA, 0xBBBB, "I:I")

	require.False(t, tbl.IsNull(0))
	require.NoError(t, tbl.Guard(0))
	require.NoError(t, tbl.CheckType(0, "I:I"))
	require.EqualValues(t, 0xAAAA, tbl.InstanceClosure(0))
	require.EqualValues(t, 0xBBBB, tbl.FunctionPointer(0))
}

func TestTableCheckTypeRejectsMismatch(t *testing.T) {
	tbl := NewTable(1)
	tbl.Set(0, 1, 1, "I:I")

	err := tbl.CheckType(0, "J:J")
	require.Error(t, err)
	var mismatch *TableTypeMismatch
	require.ErrorAs(t, err, &mismatch)
}

func TestTableCheckTypeRejectsNull(t *testing.T) {
	tbl := NewTable(1)
	err := tbl.CheckType(0, "I:I")
	require.Error(t, err)
	var bad *BadTableEntry
	require.ErrorAs(t, err, &bad)
}

func TestTableGuardOutOfRange(t *testing.T) {
	tbl := NewTable(1)
	err := tbl.Guard(5)
	require.Error(t, err)
	var oob *TableAccessOutOfBound
	require.ErrorAs(t, err, &oob)
}

func TestTableGrow(t *testing.T) {
	tbl := NewTable(1)
	before := tbl.Grow(2)
	require.EqualValues(t, 1, before)
	require.EqualValues(t, 3, tbl.Size())
}

func TestTableGrowFailsPastMax(t *testing.T) {
	tbl := NewTableWithMax(1, 1)
	require.Equal(t, GrowFailed, tbl.Grow(1))
}

func TestTableClear(t *testing.T) {
	tbl := NewTable(1)
	tbl.Set(0, 1, 1, "I:I")
	tbl.Clear(0)
	require.True(t, tbl.IsNull(0))
}

func TestTableSetOutOfRangePanics(t *testing.T) {
	tbl := NewTable(1)
	require.Panics(t, func() { tbl.Set(9, 1, 1, "I:I") })
}
