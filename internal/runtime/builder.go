package runtime

import (
	"github.com/nineka/sablewasm/internal/bytecode"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Exporter is anything an InstanceBuilder can resolve imports against: a
// previously built Instance, or a host module (the WASI shim, for
// instance) that exposes its functions the same way a guest instance
// exposes its own.
type Exporter interface {
	ExportedMemory(name string) (*LinearMemory, bool)
	ExportedGlobal(name string) (*Global, bool)
	ExportedTable(name string) (*Table, bool)
	ExportedFunction(name string) (FunctionSlot, bool)
}

// InstanceAwareExporter is an optional refinement of Exporter for host
// modules whose functions need to reach back into the *consuming*
// instance — the WASI shim's fd_write needs the calling instance's
// "memory" export, much like a host function taking an implicit instance
// argument in addition to its declared parameters. InstanceBuilder checks
// for this interface the same way io.Copy checks for io.WriterTo: a plain
// Exporter still works for callers that only export static functions.
type InstanceAwareExporter interface {
	ExportedFunctionFor(name string, consumer InstanceHandle) (FunctionSlot, bool)
}

// Artifact is the built output of the (out-of-scope) codegen stage: a
// compiled module ready to be linked into a running Instance, already
// located and loaded by whatever produced it.
type Artifact interface {
	// Metadata returns the import/export/type descriptors this artifact
	// was compiled with.
	Metadata() InstanceMetadata
	// Initialize runs the artifact's module-level initializer exactly
	// once, after every slot has been populated but before any export is
	// handed to a caller.
	Initialize(inst *Instance) error
	// Close releases whatever backs the artifact (a loaded codegen image,
	// an open file). The built Instance retains the artifact and closes
	// it last, in Destroy, so nothing in the instance is still reading
	// from it when it goes.
	Close() error
}

// InstanceBuilder links one Artifact into a running Instance: it resolves
// every import against the Exporters registered with Import, constructs
// every defined memory/global/table/function, invokes the artifact's
// initializer, and populates the four export maps.
//
// InstanceBuilder follows the functional-options-adjacent chained-builder
// pattern: Import returns the receiver so callers compose
// `NewInstanceBuilder(a, log).Import("wasi_snapshot_preview1", wasi).Build()`.
type InstanceBuilder struct {
	artifact Artifact
	imports  map[string][]Exporter
	log      *logrus.Entry
}

// NewInstanceBuilder starts building an instance of artifact. log may be
// nil, in which case the builder logs nothing.
func NewInstanceBuilder(artifact Artifact, log *logrus.Entry) *InstanceBuilder {
	return &InstanceBuilder{artifact: artifact, imports: make(map[string][]Exporter), log: log}
}

// Import registers exporter as a source of imports under the given module
// name. Multiple exporters may be registered under the same name; they are
// searched in registration order.
func (b *InstanceBuilder) Import(moduleName string, exporter Exporter) *InstanceBuilder {
	b.imports[moduleName] = append(b.imports[moduleName], exporter)
	return b
}

// Build performs the full link: resolve imports, construct definitions,
// run the initializer, populate exports.
func (b *InstanceBuilder) Build() (*Instance, error) {
	md := b.artifact.Metadata()
	inst := &Instance{
		metadata:        md,
		artifact:        b.artifact,
		memories:        make([]*LinearMemory, len(md.Memories)),
		globals:         make([]*Global, len(md.Globals)),
		tables:          make([]*Table, len(md.Tables)),
		functions:       make([]FunctionSlot, len(md.Functions)),
		memoryExports:   make(map[string]*LinearMemory, len(md.MemoryExports)),
		globalExports:   make(map[string]*Global, len(md.GlobalExports)),
		tableExports:    make(map[string]*Table, len(md.TableExports)),
		functionExports: make(map[string]FunctionSlot, len(md.FunctionExports)),
	}

	if err := b.linkMemories(inst); err != nil {
		return nil, err
	}
	if err := b.linkGlobals(inst); err != nil {
		return nil, err
	}
	if err := b.linkTables(inst); err != nil {
		return nil, err
	}
	if err := b.linkFunctions(inst); err != nil {
		return nil, err
	}

	if err := b.artifact.Initialize(inst); err != nil {
		return nil, errors.Wrap(err, "instance initializer failed")
	}

	for name, idx := range md.MemoryExports {
		inst.memoryExports[name] = inst.memories[idx]
	}
	for name, idx := range md.GlobalExports {
		inst.globalExports[name] = inst.globals[idx]
	}
	for name, idx := range md.TableExports {
		inst.tableExports[name] = inst.tables[idx]
	}
	for name, idx := range md.FunctionExports {
		inst.functionExports[name] = inst.functions[idx]
	}

	if b.log != nil {
		b.log.WithFields(logrus.Fields{
			"memories": len(inst.memories), "globals": len(inst.globals),
			"tables": len(inst.tables), "functions": len(inst.functions),
		}).Debug("instance linked")
	}
	return inst, nil
}

func (b *InstanceBuilder) linkMemories(inst *Instance) error {
	md := inst.metadata
	importN := md.MemoryImportSize()
	for i := 0; i < importN; i++ {
		desc := md.Memories[i].Import
		mem, err := b.tryImportMemory(*desc, md.Memories[i])
		if err != nil {
			return errors.Wrapf(err, "import memory %s.%s", desc.Module, desc.Name)
		}
		mem.addUseSite(inst)
		inst.memories[i] = mem
	}
	for i := importN; i < len(md.Memories); i++ {
		m := md.Memories[i]
		max := m.Max
		var mem *LinearMemory
		var err error
		if max == Unbounded {
			mem, err = NewLinearMemory(m.Initial)
		} else {
			mem, err = NewLinearMemoryWithMax(m.Initial, max)
		}
		if err != nil {
			return errors.Wrapf(err, "construct defined memory %d", i)
		}
		mem.addUseSite(inst)
		inst.memories[i] = mem
	}
	return nil
}

// tryImportMemory searches every Exporter registered under desc.Module for
// an export named desc.Name. A candidate that doesn't have the name is
// skipped in favor of the next one; a candidate that has the name but the
// wrong type is a hard failure, not a fall-through to the next candidate —
// a type mismatch means the host wired up the wrong module, and silently
// trying another candidate risks linking against an unrelated same-named
// export instead of reporting the real problem.
func (b *InstanceBuilder) tryImportMemory(desc ImportDescriptor, want MemoryMetadata) (*LinearMemory, error) {
	for _, exp := range b.imports[desc.Module] {
		mem, ok := exp.ExportedMemory(desc.Name)
		if !ok {
			continue
		}
		if mem.PageSize() < want.Initial {
			return nil, errors.Errorf("memory size mismatch: import requires at least %d pages, export has %d",
				want.Initial, mem.PageSize())
		}
		if mem.MaxPageSize() > want.Max {
			return nil, errors.Errorf("memory limits mismatch: import allows max %d pages, export has max %d",
				want.Max, mem.MaxPageSize())
		}
		return mem, nil
	}
	return nil, errors.Wrapf(ErrInvalidArgument, "no export named %q in module %q", desc.Name, desc.Module)
}

func (b *InstanceBuilder) linkGlobals(inst *Instance) error {
	md := inst.metadata
	importN := md.GlobalImportSize()
	for i := 0; i < importN; i++ {
		desc := md.Globals[i].Import
		g, err := b.tryImportGlobal(*desc, md.Globals[i])
		if err != nil {
			return errors.Wrapf(err, "import global %s.%s", desc.Module, desc.Name)
		}
		inst.globals[i] = g
	}
	for i := importN; i < len(md.Globals); i++ {
		g := md.Globals[i]
		inst.globals[i] = NewGlobal(g.ValueType, g.Mutable)
	}
	return nil
}

func (b *InstanceBuilder) tryImportGlobal(desc ImportDescriptor, want GlobalMetadata) (*Global, error) {
	for _, exp := range b.imports[desc.Module] {
		g, ok := exp.ExportedGlobal(desc.Name)
		if !ok {
			continue
		}
		if g.Type() != want.ValueType {
			return nil, errors.Errorf("global type mismatch: want %s, got %s", want.ValueType, g.Type())
		}
		if want.Mutable && !g.IsMutable() {
			return nil, errors.New("global import declared mutable but export is immutable")
		}
		return g, nil
	}
	return nil, errors.Wrapf(ErrInvalidArgument, "no export named %q in module %q", desc.Name, desc.Module)
}

func (b *InstanceBuilder) linkTables(inst *Instance) error {
	md := inst.metadata
	importN := md.TableImportSize()
	for i := 0; i < importN; i++ {
		desc := md.Tables[i].Import
		tb, err := b.tryImportTable(*desc, md.Tables[i])
		if err != nil {
			return errors.Wrapf(err, "import table %s.%s", desc.Module, desc.Name)
		}
		inst.tables[i] = tb
	}
	for i := importN; i < len(md.Tables); i++ {
		tdesc := md.Tables[i]
		if tdesc.Max == Unbounded {
			inst.tables[i] = NewTable(tdesc.Initial)
		} else {
			inst.tables[i] = NewTableWithMax(tdesc.Initial, tdesc.Max)
		}
	}
	return nil
}

func (b *InstanceBuilder) tryImportTable(desc ImportDescriptor, want TableMetadata) (*Table, error) {
	for _, exp := range b.imports[desc.Module] {
		tb, ok := exp.ExportedTable(desc.Name)
		if !ok {
			continue
		}
		if tb.Size() < want.Initial {
			return nil, errors.Errorf("table size mismatch: want at least %d, got %d", want.Initial, tb.Size())
		}
		return tb, nil
	}
	return nil, errors.Wrapf(ErrInvalidArgument, "no export named %q in module %q", desc.Name, desc.Module)
}

func (b *InstanceBuilder) linkFunctions(inst *Instance) error {
	md := inst.metadata
	importN := md.FunctionImportSize()
	for i := 0; i < importN; i++ {
		desc := md.Functions[i].Import
		fn, err := b.tryImportFunction(*desc, md.Functions[i], inst.Handle())
		if err != nil {
			return errors.Wrapf(err, "import function %s.%s", desc.Module, desc.Name)
		}
		inst.functions[i] = fn
	}
	for i := importN; i < len(md.Functions); i++ {
		fm := md.Functions[i]
		inst.functions[i] = FunctionSlot{
			FunctionPointer: fm.DefinedPointer,
			Signature:       fm.Signature,
		}
	}
	return nil
}

func (b *InstanceBuilder) tryImportFunction(desc ImportDescriptor, want FunctionMetadata, consumer InstanceHandle) (FunctionSlot, error) {
	for _, exp := range b.imports[desc.Module] {
		var fn FunctionSlot
		var ok bool
		if aware, isAware := exp.(InstanceAwareExporter); isAware {
			fn, ok = aware.ExportedFunctionFor(desc.Name, consumer)
		} else {
			fn, ok = exp.ExportedFunction(desc.Name)
		}
		if !ok {
			continue
		}
		if fn.Signature != want.Signature {
			return FunctionSlot{}, errors.Errorf("function type mismatch: want %s, got %s", want.Signature, fn.Signature)
		}
		return fn, nil
	}
	return FunctionSlot{}, errors.Wrapf(ErrInvalidArgument, "no export named %q in module %q", desc.Name, desc.Module)
}

// signatureOf is a small helper used by callers constructing metadata by
// hand (tests, the WASI shim) rather than reading it off a real artifact.
func signatureOf(ft bytecode.FunctionType) string { return ft.Signature() }
