package runtime

import (
	"math"

	"github.com/nineka/sablewasm/internal/bytecode"
	"github.com/pkg/errors"
)

// Value is a single typed argument or result word, the marshalled form of
// one of the four WebAssembly numeric types. It is how Callee.Invoke's
// caller and the underlying NativeFunction's flat []uint64 convention
// agree on what a word means.
type Value struct {
	vt   bytecode.ValueType
	bits uint64
}

func I32Value(v int32) Value { return Value{bytecode.I32, uint64(uint32(v))} }
func I64Value(v int64) Value { return Value{bytecode.I64, uint64(v)} }
func F32Value(v float32) Value {
	return Value{bytecode.F32, uint64(math.Float32bits(v))}
}
func F64Value(v float64) Value { return Value{bytecode.F64, math.Float64bits(v)} }

func (v Value) Type() bytecode.ValueType { return v.vt }
func (v Value) I32() int32               { return int32(uint32(v.bits)) }
func (v Value) I64() int64               { return int64(v.bits) }
func (v Value) F32() float32             { return math.Float32frombits(uint32(v.bits)) }
func (v Value) F64() float64             { return math.Float64frombits(v.bits) }

// Callee is a type-erased, type-checked handle to one callable function
// slot, bound to the instance it was exported from or imported into.
// Callers never see a raw function pointer, only a signature-checked
// Invoke.
type Callee struct {
	slot FunctionSlot
	inst InstanceHandle
}

// NewCallee binds a function slot to the instance that owns it.
func NewCallee(slot FunctionSlot, inst InstanceHandle) *Callee {
	return &Callee{slot: slot, inst: inst}
}

// Signature returns the callee's canonical signature string.
func (c *Callee) Signature() string { return c.slot.Signature }

// Instance returns a handle to the instance this callee was bound against.
func (c *Callee) Instance() InstanceHandle { return c.inst }

// Invoke calls the underlying function with args, type-checking both the
// argument count/types and the result against the callee's signature. Any
// runtime fault raised deeper in the call (an out-of-bound memory or table
// access, an `unreachable` instruction, a WASI proc_exit) surfaces here as
// a returned error rather than as a panic — Invoke is the single recovery
// boundary every guest call passes through, matching proc_exit's own
// panic-based unwind.
func (c *Callee) Invoke(args ...Value) (results []Value, err error) {
	ft, ok := bytecode.ParseSignature(c.slot.Signature)
	if !ok {
		return nil, errors.Errorf("callee has malformed signature %q", c.slot.Signature)
	}
	if len(args) != len(ft.Params) {
		return nil, errors.Errorf("callee expects %d arguments, got %d", len(ft.Params), len(args))
	}
	words := make([]uint64, len(args))
	for i, a := range args {
		if a.Type() != ft.Params[i] {
			return nil, &TypeMismatch{Expected: ft.Params[i].String(), Actual: a.Type().String()}
		}
		words[i] = a.bits
	}

	defer func() {
		if r := recover(); r != nil {
			if asErr, isErr := r.(error); isErr {
				err = asErr
				return
			}
			err = errors.Errorf("callee panicked: %v", r)
		}
	}()

	if c.slot.Invoke == nil {
		return nil, errors.New("callee has no native entry point bound")
	}
	out, invokeErr := c.slot.Invoke(words)
	if invokeErr != nil {
		return nil, invokeErr
	}
	if ft.Result == nil {
		return nil, nil
	}
	if len(out) != 1 {
		return nil, errors.Errorf("callee declared result type %s but returned %d words", ft.Result, len(out))
	}
	return []Value{{vt: *ft.Result, bits: out[0]}}, nil
}
