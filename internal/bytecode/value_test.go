package bytecode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignatureRoundTrip(t *testing.T) {
	i32, i64, f32, f64 := I32, I64, F32, F64
	tests := []struct {
		name string
		ft   FunctionType
		want string
	}{
		{"no params no result", FunctionType{}, ":"},
		{"one param no result", FunctionType{Params: []ValueType{I32}}, "I:"},
		{"params and result", FunctionType{Params: []ValueType{I32, I64, F32, F64}, Result: &f64}, "IJFD:D"},
		{"only result", FunctionType{Result: &i32}, ":I"},
		{"two params", FunctionType{Params: []ValueType{F32, F64}, Result: &i64}, "FD:J"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.ft.Signature())
			parsed, ok := ParseSignature(tt.want)
			require.True(t, ok)
			require.True(t, tt.ft.Equal(parsed))
		})
	}
	_ = f32
}

func TestParseSignatureRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "IJK:", "I:DD", "noop"} {
		_, ok := ParseSignature(s)
		require.False(t, ok, "expected %q to be rejected", s)
	}
}

func TestSignatureEqualityIsTypeEquality(t *testing.T) {
	f64 := F64
	a := FunctionType{Params: []ValueType{I32, I32}, Result: &f64}
	b := FunctionType{Params: []ValueType{I32, I32}, Result: &f64}
	require.True(t, a.Equal(b))

	c := FunctionType{Params: []ValueType{I32}, Result: &f64}
	require.False(t, a.Equal(c))
}

func TestValueTypeCharset(t *testing.T) {
	for _, vt := range []ValueType{I32, I64, F32, F64} {
		ft := FunctionType{Params: []ValueType{vt}}
		sig := ft.Signature()
		require.Len(t, sig, 2)
		require.Contains(t, "IJFD", string(sig[0]))
		require.Equal(t, byte(':'), sig[1])
	}
}
