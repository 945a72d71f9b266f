package mir

import "github.com/nineka/sablewasm/internal/bytecode"

// ImportKind distinguishes the four entity kinds a module can import.
type ImportKind int

const (
	ImportMemory ImportKind = iota
	ImportGlobal
	ImportTable
	ImportFunction
)

// Import names one entity this module expects its builder to supply.
type Import struct {
	Module string
	Name   string
	Kind   ImportKind
	// Type holds the expected function signature for ImportFunction, or
	// the value type for ImportGlobal; unused for memory/table imports
	// (their limits live on the corresponding Memory/Table descriptor).
	Type bytecode.FunctionType
}

// ExportKind mirrors ImportKind for the four kinds of exportable entity.
type ExportKind int

const (
	ExportMemory ExportKind = iota
	ExportGlobal
	ExportTable
	ExportFunction
)

// Export names one entity this module makes visible to its linker under
// Name, referring to Index within the corresponding entity array.
type Export struct {
	Name  string
	Kind  ExportKind
	Index int
}

// MemoryDecl, GlobalDecl and TableDecl are a module's memory/global/table
// declarations: either an import (Import != nil) or a definition with the
// given limits/type.
type MemoryDecl struct {
	Import     *Import
	Initial    uint32
	Max        uint32 // mir.Unbounded if none
	HasMaxFlag bool   // see Module's HasMax well-formedness check
}

type GlobalDecl struct {
	Import  *Import
	Type    bytecode.ValueType
	Mutable bool
	// Initializer is the constant-expression value for a defined global;
	// unused (must be nil) for an imported one.
	Initializer Instruction
}

type TableDecl struct {
	Import  *Import
	Initial uint32
	Max     uint32
	HasMaxFlag bool
}

// ElementSegment initializes a range of Table starting at Offset with the
// listed function indices.
type ElementSegment struct {
	Table     int
	Offset    Instruction
	Functions []int
}

// Unbounded marks a declaration with no maximum — mirrored from the
// runtime package's constant so mir has no dependency on internal/runtime.
const Unbounded uint32 = 0xFFFFFFFF

// Module is a whole MIR module: its declared memories, globals, tables and
// functions, plus the import/export tables and element segments the
// well-formedness checker validates.
type Module struct {
	Memories []MemoryDecl
	Globals  []GlobalDecl
	Tables   []TableDecl
	Elements []ElementSegment

	Functions []*Function
	// FunctionTypes holds the declared signature for every function,
	// imported or defined, indexed the same way Functions is — defined
	// functions' entries equal Functions[i].Type, but keeping this as a
	// separate slice lets the well-formedness pass validate imported
	// function types without requiring an *mir.Function body.
	FunctionTypes []bytecode.FunctionType
	FunctionImports []*Import // nil for a defined function at that index

	Imports []Import
	Exports []Export
}
