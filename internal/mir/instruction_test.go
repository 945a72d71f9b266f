package mir

import (
	"testing"

	"github.com/nineka/sablewasm/internal/bytecode"
	"github.com/stretchr/testify/require"
)

func TestReplaceAllUsesWithRewritesReturnOperand(t *testing.T) {
	fn := NewFunction("f", bytecode.FunctionType{})
	entry := fn.Entry()
	oldVal := &Constant{Type: bytecode.I32, Bits: 1}
	newVal := &Constant{Type: bytecode.I32, Bits: 2}
	ret := &Return{Value: oldVal}
	entry.Append(oldVal)
	entry.Append(newVal)
	entry.Append(ret)

	ReplaceAllUsesWith(fn, oldVal, newVal)

	require.Same(t, Instruction(newVal), ret.Value)
}

func TestReplaceAllUsesWithRewritesPhiIncoming(t *testing.T) {
	fn := NewFunction("f", bytecode.FunctionType{})
	entry := fn.Entry()
	oldVal := &Constant{Type: bytecode.I32, Bits: 1}
	newVal := &Constant{Type: bytecode.I32, Bits: 2}
	phi := &Phi{Type: bytecode.I32, Incoming: []PhiIncoming{{Block: entry, Value: oldVal}}}
	entry.Append(phi)

	ReplaceAllUsesWith(fn, oldVal, newVal)

	require.Same(t, Instruction(newVal), phi.Incoming[0].Value)
}

func TestReplaceAllUsesWithRewritesCallArgs(t *testing.T) {
	fn := NewFunction("f", bytecode.FunctionType{})
	entry := fn.Entry()
	oldVal := &Constant{Type: bytecode.I32, Bits: 1}
	newVal := &Constant{Type: bytecode.I32, Bits: 2}
	call := &Call{Callee: "f", Args: []Instruction{oldVal}}
	entry.Append(call)

	ReplaceAllUsesWith(fn, oldVal, newVal)

	require.Same(t, Instruction(newVal), call.Args[0])
}

func TestConstantOperandsIsEmpty(t *testing.T) {
	c := &Constant{Type: bytecode.I32, Bits: 1}
	require.Empty(t, c.Operands())
}

func TestIntBinaryOpOperandsReturnsBothSides(t *testing.T) {
	lhs := &Constant{Type: bytecode.I32, Bits: 1}
	rhs := &Constant{Type: bytecode.I32, Bits: 2}
	op := &IntBinaryOp{LHS: lhs, RHS: rhs, Type: bytecode.I32}

	require.Equal(t, []Instruction{lhs, rhs}, op.Operands())
}

func TestPhiValueForReturnsNilForUnknownPredecessor(t *testing.T) {
	known := NewBasicBlock(0)
	unknown := NewBasicBlock(1)
	value := &Constant{Type: bytecode.I32, Bits: 1}
	phi := &Phi{Incoming: []PhiIncoming{{Block: known, Value: value}}}

	require.Same(t, Instruction(value), phi.ValueFor(known))
	require.Nil(t, phi.ValueFor(unknown))
}

func TestPhiIsPhiOverridesBaseDefault(t *testing.T) {
	phi := &Phi{}
	c := &Constant{}
	require.True(t, phi.IsPhi())
	require.False(t, c.IsPhi())
}
