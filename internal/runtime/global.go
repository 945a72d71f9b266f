package runtime

import (
	"math"

	"github.com/nineka/sablewasm/internal/bytecode"
)

// Global is a single mutable or immutable WebAssembly global variable: a
// tagged 64-bit cell plus the four typed accessors that reinterpret it.
// There is no separate "immutable global" type — Mutable is a flag the
// builder and validator consult, the storage is identical either way.
type Global struct {
	valueType bytecode.ValueType
	mutable   bool
	bits      uint64 // raw storage; interpreted per valueType by the accessors
}

// NewGlobal constructs a global of the given type and mutability, holding
// the zero value until explicitly set.
func NewGlobal(vt bytecode.ValueType, mutable bool) *Global {
	return &Global{valueType: vt, mutable: mutable}
}

// Type reports the global's declared value type.
func (g *Global) Type() bytecode.ValueType { return g.valueType }

// IsMutable reports whether this global may be written after construction.
func (g *Global) IsMutable() bool { return g.mutable }

// AsI32 reinterprets the cell's low 32 bits as a signed 32-bit integer. It
// panics with *GlobalTypeMismatch if the global does not hold an I32 — the
// same "caller already validated this statically" contract as the other
// typed accessors.
func (g *Global) AsI32() int32 {
	g.requireType(bytecode.I32)
	return int32(uint32(g.bits))
}

// SetI32 overwrites the cell with v, reinterpreted as I32 bits.
func (g *Global) SetI32(v int32) {
	g.requireType(bytecode.I32)
	g.bits = uint64(uint32(v))
}

// AsI64 reinterprets the cell as a signed 64-bit integer.
func (g *Global) AsI64() int64 {
	g.requireType(bytecode.I64)
	return int64(g.bits)
}

// SetI64 overwrites the cell with v, reinterpreted as I64 bits.
func (g *Global) SetI64(v int64) {
	g.requireType(bytecode.I64)
	g.bits = uint64(v)
}

// AsF32 reinterprets the cell's low 32 bits as an IEEE-754 single.
func (g *Global) AsF32() float32 {
	g.requireType(bytecode.F32)
	return math.Float32frombits(uint32(g.bits))
}

// SetF32 overwrites the cell with v, reinterpreted as F32 bits.
func (g *Global) SetF32(v float32) {
	g.requireType(bytecode.F32)
	g.bits = uint64(math.Float32bits(v))
}

// AsF64 reinterprets the cell as an IEEE-754 double.
func (g *Global) AsF64() float64 {
	g.requireType(bytecode.F64)
	return math.Float64frombits(g.bits)
}

// SetF64 overwrites the cell with v, reinterpreted as F64 bits.
func (g *Global) SetF64(v float64) {
	g.requireType(bytecode.F64)
	g.bits = math.Float64bits(v)
}

func (g *Global) requireType(want bytecode.ValueType) {
	if g.valueType != want {
		panic(&GlobalTypeMismatch{Global: g, Expected: want.String()})
	}
}
