package runtime

import (
	"testing"

	"github.com/nineka/sablewasm/internal/bytecode"
	"github.com/stretchr/testify/require"
)

func TestGlobalI32RoundTrip(t *testing.T) {
	g := NewGlobal(bytecode.I32, true)
	g.SetI32(-7)
	require.EqualValues(t, -7, g.AsI32())
	require.True(t, g.IsMutable())
	require.Equal(t, bytecode.I32, g.Type())
}

func TestGlobalI64RoundTrip(t *testing.T) {
	g := NewGlobal(bytecode.I64, false)
	g.SetI64(1 << 40)
	require.EqualValues(t, 1<<40, g.AsI64())
	require.False(t, g.IsMutable())
}

func TestGlobalF32RoundTrip(t *testing.T) {
	g := NewGlobal(bytecode.F32, true)
	g.SetF32(3.5)
	require.Equal(t, float32(3.5), g.AsF32())
}

func TestGlobalF64RoundTrip(t *testing.T) {
	g := NewGlobal(bytecode.F64, true)
	g.SetF64(2.718281828)
	require.Equal(t, 2.718281828, g.AsF64())
}

func TestGlobalWrongAccessorPanics(t *testing.T) {
	g := NewGlobal(bytecode.I32, true)
	require.Panics(t, func() { g.AsI64() })
}
