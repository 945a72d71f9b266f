package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCalleeInvokeTypeChecked(t *testing.T) {
	slot := FunctionSlot{
		Signature: "I:I",
		Invoke: func(args []uint64) ([]uint64, error) {
			return []uint64{args[0] + 1}, nil
		},
	}
	c := NewCallee(slot, InstanceHandle{})
	results, err := c.Invoke(I32Value(41))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.EqualValues(t, 42, results[0].I32())
}

func TestCalleeInvokeRejectsWrongArgType(t *testing.T) {
	slot := FunctionSlot{Signature: "I:I", Invoke: func(args []uint64) ([]uint64, error) { return args, nil }}
	c := NewCallee(slot, InstanceHandle{})
	_, err := c.Invoke(F64Value(1.0))
	require.Error(t, err)
}

func TestCalleeInvokeRejectsWrongArgCount(t *testing.T) {
	slot := FunctionSlot{Signature: "II:I", Invoke: func(args []uint64) ([]uint64, error) { return nil, nil }}
	c := NewCallee(slot, InstanceHandle{})
	_, err := c.Invoke(I32Value(1))
	require.Error(t, err)
}

func TestCalleeInvokeRecoversPanicAsError(t *testing.T) {
	slot := FunctionSlot{
		Signature: ":",
		Invoke: func(args []uint64) ([]uint64, error) {
			panic(ErrUnreachable)
		},
	}
	c := NewCallee(slot, InstanceHandle{})
	_, err := c.Invoke()
	require.ErrorIs(t, err, ErrUnreachable)
}

func TestCalleeInvokeNoResult(t *testing.T) {
	slot := FunctionSlot{
		Signature: "I:",
		Invoke: func(args []uint64) ([]uint64, error) { return nil, nil },
	}
	c := NewCallee(slot, InstanceHandle{})
	results, err := c.Invoke(I32Value(7))
	require.NoError(t, err)
	require.Nil(t, results)
}
