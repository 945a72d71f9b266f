package runtime

import (
	"fmt"

	"github.com/pkg/errors"
)

// Runtime faults raised from guest code. The checks compiled code runs
// (LinearMemory.Guard/Get/GetRange, Table.Guard/CheckType) return them as
// error values; the typed Global accessors and Table.Set/Clear panic with
// them instead. Callee.Invoke, the top-level invocation boundary, recovers
// any panic carrying an error and returns it as that call's error — the
// same path the host's proc_exit takes, which panics to unwind guest frames
// rather than threading an error return through every generated call site.

// ErrUnreachable is raised by an `unreachable` MIR instruction.
var ErrUnreachable = errors.New("unreachable instruction executed")

// MemoryAccessOutOfBound reports a guarded or bounds-checked linear memory
// access that fell outside the memory's current size.
type MemoryAccessOutOfBound struct {
	Site          *LinearMemory
	AttemptOffset uint64
}

func (e *MemoryAccessOutOfBound) Error() string {
	return fmt.Sprintf("linear memory access out of bound: offset %d exceeds size %d bytes",
		e.AttemptOffset, e.Site.SizeInBytes())
}

// TableAccessOutOfBound reports an index at or beyond a table's size.
type TableAccessOutOfBound struct {
	Table *Table
	Index uint32
}

func (e *TableAccessOutOfBound) Error() string {
	return fmt.Sprintf("table access out of bound: index %d, size %d", e.Index, e.Table.Size())
}

// BadTableEntry reports an indirect call through a null table slot.
type BadTableEntry struct {
	Table *Table
	Index uint32
}

func (e *BadTableEntry) Error() string {
	return fmt.Sprintf("table entry %d is null", e.Index)
}

// TableTypeMismatch reports an indirect call whose requested signature does
// not match the slot's signature.
type TableTypeMismatch struct {
	Table            *Table
	Index            uint32
	Expected, Actual string // canonical signature strings
}

func (e *TableTypeMismatch) Error() string {
	return fmt.Sprintf("table entry %d has type %q, expected %q", e.Index, e.Actual, e.Expected)
}

// GlobalTypeMismatch reports a typed accessor used against a global of a
// different value type.
type GlobalTypeMismatch struct {
	Global   *Global
	Expected string // value type name, e.g. "i32"
}

func (e *GlobalTypeMismatch) Error() string {
	return fmt.Sprintf("global accessed as %s, but holds %s", e.Expected, e.Global.Type())
}

// TypeMismatch is raised by Callee.Invoke when the caller's compile-time
// signature does not match the signature the callee was bound with.
type TypeMismatch struct {
	Expected, Actual string
}

func (e *TypeMismatch) Error() string {
	return fmt.Sprintf("callee type mismatch: expected %q, got %q", e.Expected, e.Actual)
}

// ErrInvalidArgument is the error kind InstanceBuilder.Build returns when
// no Exporter registered under an import's module name exports that name.
// Builder code always wraps it with errors.Wrapf from github.com/pkg/errors
// so the caller sees which (module, entity) pair could not be resolved.
var ErrInvalidArgument = errors.New("invalid argument")

// errorsNewf and errorsWrap are thin github.com/pkg/errors helpers used by
// memory.go: errors get a stack trace at the point they're first observed,
// not at the point they're logged.
func errorsNewf(format string, args ...interface{}) error {
	return errors.Errorf(format, args...)
}

func errorsWrap(err error, message string) error {
	return errors.Wrap(err, message)
}
