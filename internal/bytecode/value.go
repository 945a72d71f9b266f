// Package bytecode holds the value-type and function-type model shared by
// the MIR analyses and the instance runtime. It does not parse or validate
// WebAssembly bytecode — that lives outside this module's scope — it only
// fixes the vocabulary both subsystems agree on.
package bytecode

import "fmt"

// ValueType is one of the four WebAssembly numeric types this engine
// supports. There is deliberately no externref/funcref here: the reference
// type extensions are out of scope.
type ValueType byte

const (
	I32 ValueType = iota
	I64
	F32
	F64
)

// typeChar is the canonical single-character encoding used by signature
// strings: 'I','J','F','D' for I32,I64,F32,F64 respectively.
func (v ValueType) typeChar() byte {
	switch v {
	case I32:
		return 'I'
	case I64:
		return 'J'
	case F32:
		return 'F'
	case F64:
		return 'D'
	default:
		panic(fmt.Sprintf("bytecode: invalid ValueType %d", byte(v)))
	}
}

// String renders the value type the way WebAssembly text format does.
func (v ValueType) String() string {
	switch v {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	default:
		return fmt.Sprintf("valuetype(%d)", byte(v))
	}
}

// fromTypeChar is the inverse of ValueType.typeChar, case-insensitive so a
// signature string surviving a lossy round-trip through upper/lowercase
// text still parses.
func fromTypeChar(c byte) (ValueType, bool) {
	switch c {
	case 'I', 'i':
		return I32, true
	case 'J', 'j':
		return I64, true
	case 'F', 'f':
		return F32, true
	case 'D', 'd':
		return F64, true
	default:
		return 0, false
	}
}

// FunctionType is a WebAssembly function signature: zero or more parameter
// types and at most one result type.
type FunctionType struct {
	Params []ValueType
	Result *ValueType // nil means no return value
}

// Signature renders the canonical signature string for this function type:
// one character per parameter, then ':', then the optional result
// character. This string is what the runtime compares for type equality
// across the dlopen-style ABI boundary, so two FunctionTypes with the same
// Params/Result always render identically regardless of how they were
// constructed.
func (f FunctionType) Signature() string {
	buf := make([]byte, 0, len(f.Params)+2)
	for _, p := range f.Params {
		buf = append(buf, p.typeChar())
	}
	buf = append(buf, ':')
	if f.Result != nil {
		buf = append(buf, f.Result.typeChar())
	}
	return string(buf)
}

// ParseSignature is the inverse of FunctionType.Signature. It returns false
// if the string is not of the form `{IJFD}* ':' {IJFD}?`, where the type
// letters are matched case-insensitively (see fromTypeChar).
func ParseSignature(sig string) (FunctionType, bool) {
	colon := -1
	for i := 0; i < len(sig); i++ {
		if sig[i] == ':' {
			colon = i
			break
		}
	}
	if colon < 0 {
		return FunctionType{}, false
	}
	params := make([]ValueType, 0, colon)
	for i := 0; i < colon; i++ {
		vt, ok := fromTypeChar(sig[i])
		if !ok {
			return FunctionType{}, false
		}
		params = append(params, vt)
	}
	var result *ValueType
	switch rest := sig[colon+1:]; len(rest) {
	case 0:
		// no return value
	case 1:
		vt, ok := fromTypeChar(rest[0])
		if !ok {
			return FunctionType{}, false
		}
		result = &vt
	default:
		return FunctionType{}, false
	}
	return FunctionType{Params: params, Result: result}, true
}

// Equal reports whether two function types are the same type, i.e. have
// equal canonical signature strings.
func (f FunctionType) Equal(other FunctionType) bool {
	return f.Signature() == other.Signature()
}

// String implements fmt.Stringer with a WAT-ish rendering, for diagnostics.
func (f FunctionType) String() string {
	s := "("
	for i, p := range f.Params {
		if i > 0 {
			s += ", "
		}
		s += p.String()
	}
	s += ")"
	if f.Result != nil {
		s += " -> " + f.Result.String()
	}
	return s
}
