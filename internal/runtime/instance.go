package runtime

import "github.com/nineka/sablewasm/internal/bytecode"

// FunctionSlot is a single entry of an instance's function table: an
// instance-closure/function-pointer pair plus the function's canonical
// signature, exactly as a Table slot, but addressed by index within one
// instance rather than by table index. Every function an instance defines
// or imports has exactly one FunctionSlot.
type FunctionSlot struct {
	InstanceClosure uintptr
	FunctionPointer uintptr
	Signature       string

	// Invoke is the Go-callable entry point for this slot. Raw machine
	// invocation through FunctionPointer is the (out-of-scope) codegen
	// stage's concern; Invoke is the seam this runtime actually calls
	// through, populated by the artifact loader for defined functions and
	// by a host module (e.g. the WASI shim) for imported ones.
	Invoke NativeFunction
}

// NativeFunction is the calling convention every FunctionSlot is ultimately
// invoked through: a flat slice of 64-bit argument words in and result
// words out, matching the canonical signature string. Typed callers go
// through Callee.Invoke rather than calling this directly.
type NativeFunction func(args []uint64) ([]uint64, error)

// ImportDescriptor names one entity an artifact expects to be supplied at
// link time, read out of the artifact's import metadata section.
type ImportDescriptor struct {
	Module string
	Name   string
}

// MemoryMetadata, GlobalMetadata, TableMetadata and FunctionMetadata
// describe one slot of an instance's memory/global/table/function arrays as
// read from the artifact: whether it is imported (and if so from where),
// and the declared type needed to validate a supplied import or to
// construct a defined entity.
type MemoryMetadata struct {
	Import  *ImportDescriptor // nil if this slot is defined, not imported
	Initial uint32
	Max     uint32 // Unbounded if none
}

type GlobalMetadata struct {
	Import    *ImportDescriptor
	ValueType bytecode.ValueType
	Mutable   bool
}

type TableMetadata struct {
	Import  *ImportDescriptor
	Initial uint32
	Max     uint32
}

type FunctionMetadata struct {
	Import    *ImportDescriptor
	Signature string
	// DefinedPointer is the artifact-resident function pointer for a
	// defined (non-imported) function; unused for imported slots.
	DefinedPointer uintptr
}

// InstanceMetadata is the artifact-wide description an InstanceBuilder
// reads via the four dlopen'd metadata symbols before constructing an
// Instance: one descriptor array per entity kind, each ordered
// imported-prefix-then-defined-suffix, so that the *ImportSize methods
// below give the count of imports for that kind.
type InstanceMetadata struct {
	Memories  []MemoryMetadata
	Globals   []GlobalMetadata
	Tables    []TableMetadata
	Functions []FunctionMetadata

	MemoryExports   map[string]int
	GlobalExports   map[string]int
	TableExports    map[string]int
	FunctionExports map[string]int
}

// MemoryImportSize, GlobalImportSize, TableImportSize and
// FunctionImportSize report how many leading slots of each array are
// imports rather than definitions — the split InstanceBuilder uses to know
// which slots to resolve against supplied imports and which to construct
// itself.
func (m InstanceMetadata) MemoryImportSize() int   { return importPrefixLen(len(m.Memories), memImported(m)) }
func (m InstanceMetadata) GlobalImportSize() int   { return importPrefixLen(len(m.Globals), globalImported(m)) }
func (m InstanceMetadata) TableImportSize() int    { return importPrefixLen(len(m.Tables), tableImported(m)) }
func (m InstanceMetadata) FunctionImportSize() int { return importPrefixLen(len(m.Functions), funcImported(m)) }

func memImported(m InstanceMetadata) func(int) bool {
	return func(i int) bool { return m.Memories[i].Import != nil }
}
func globalImported(m InstanceMetadata) func(int) bool {
	return func(i int) bool { return m.Globals[i].Import != nil }
}
func tableImported(m InstanceMetadata) func(int) bool {
	return func(i int) bool { return m.Tables[i].Import != nil }
}
func funcImported(m InstanceMetadata) func(int) bool {
	return func(i int) bool { return m.Functions[i].Import != nil }
}

// importPrefixLen counts the leading imported entries; metadata arrays are
// required to be ordered imports-then-definitions, so the first index for
// which imported(i) is false marks the end of the prefix.
func importPrefixLen(n int, imported func(int) bool) int {
	for i := 0; i < n; i++ {
		if !imported(i) {
			return i
		}
	}
	return n
}

// Instance is one linked, runnable instantiation of an artifact: its own
// memory/global/table/function slot arrays (the imported prefix populated
// by the builder from caller-supplied entities, the defined suffix
// constructed fresh) and the four export name->pointer maps a host uses to
// look up what it asked for by name.
//
// An Instance does not own the memories and tables it merely imports — it
// only owns (and is responsible for closing) the ones its own metadata
// describes as defined. Destroy reflects that split.
type Instance struct {
	metadata InstanceMetadata

	// artifact is the compiled module this instance was linked from. The
	// instance is the last thing holding a reference to it once Build
	// returns, so Destroy closes it after every memory/global/table/
	// function slot has been torn down.
	artifact Artifact

	memories  []*LinearMemory
	globals   []*Global
	tables    []*Table
	functions []FunctionSlot

	memoryExports   map[string]*LinearMemory
	globalExports   map[string]*Global
	tableExports    map[string]*Table
	functionExports map[string]FunctionSlot
}

// InstanceHandle is an opaque, copyable reference to an Instance, handed to
// host-import shims (e.g. the WASI functions) in place of a raw *Instance
// so that package boundaries stay explicit: holders of a handle must call
// ResolveInstance to get back a usable pointer rather than relying on
// struct-layout tricks the way the artifact ABI does internally.
type InstanceHandle struct {
	inst *Instance
}

// ResolveInstance recovers the Instance a handle refers to. It is the only
// sanctioned way to turn a handle back into a pointer.
func ResolveInstance(h InstanceHandle) *Instance { return h.inst }

// Handle returns an opaque handle to this instance, suitable for passing to
// host-import functions that must be able to resolve it without being
// handed package-internal pointer access by default.
func (inst *Instance) Handle() InstanceHandle { return InstanceHandle{inst: inst} }

// Memory returns the memory at the given slot index (imports first, then
// definitions — see InstanceMetadata).
func (inst *Instance) Memory(index int) *LinearMemory { return inst.memories[index] }

// Global returns the global at the given slot index.
func (inst *Instance) Global(index int) *Global { return inst.globals[index] }

// Table returns the table at the given slot index.
func (inst *Instance) Table(index int) *Table { return inst.tables[index] }

// Function returns the function slot at the given index.
func (inst *Instance) Function(index int) FunctionSlot { return inst.functions[index] }

// ExportedMemory looks up a memory export by name.
func (inst *Instance) ExportedMemory(name string) (*LinearMemory, bool) {
	m, ok := inst.memoryExports[name]
	return m, ok
}

// ExportedGlobal looks up a global export by name.
func (inst *Instance) ExportedGlobal(name string) (*Global, bool) {
	g, ok := inst.globalExports[name]
	return g, ok
}

// ExportedTable looks up a table export by name.
func (inst *Instance) ExportedTable(name string) (*Table, bool) {
	tb, ok := inst.tableExports[name]
	return tb, ok
}

// ExportedFunction looks up a function export by name.
func (inst *Instance) ExportedFunction(name string) (FunctionSlot, bool) {
	f, ok := inst.functionExports[name]
	return f, ok
}

// replaceMemorySlot finds the slot holding mem (if any — an imported
// memory may not be in this instance's own defined set at all, but it will
// still be in the slot array and on mem's use-site list if this instance
// referenced it) and is a no-op past that; the slice element is the pointer
// itself so there is nothing further to rewrite once mem has mutated
// in place. A pointer-unstable ABI would need a Grow callback here to
// patch every referencing slot; Go's *LinearMemory is already stable
// across Grow (only its internal mapping field moves), so this is kept
// only as the named hook InstanceBuilder wires into the memory's
// use-site list, for symmetry with the table/global slot model and as the
// extension point a future multi-memory redesign would need.
func (inst *Instance) replaceMemorySlot(mem *LinearMemory) {
	_ = mem
}

// Destroy releases every memory this instance defines (not ones it merely
// imports) and removes this instance from the use-site list of every
// memory it references, imported or defined — linkMemories registers a
// use-site for both, so Destroy must strip both, even though it only
// closes the ones this instance owns. Imported memories are otherwise left
// alone; they are owned by whichever instance defined them. The artifact
// is closed last, once every slot it backs has been torn down.
func (inst *Instance) Destroy() error {
	var firstErr error
	recordErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	importN := inst.metadata.MemoryImportSize()
	for i := 0; i < len(inst.memories); i++ {
		mem := inst.memories[i]
		mem.removeUseSite(inst)
		if i < importN {
			continue
		}
		recordErr(mem.Close())
	}
	if inst.artifact != nil {
		recordErr(inst.artifact.Close())
	}
	return firstErr
}
