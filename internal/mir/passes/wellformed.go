package passes

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/nineka/sablewasm/internal/mir"
)

// ErrorKind classifies why a site failed well-formedness checking.
type ErrorKind int

const (
	// NullOperand: an instruction reads an operand that has been erased
	// (Parent() == nil) or a Phi is missing an incoming value for one of
	// its block's actual predecessors.
	NullOperand ErrorKind = iota
	// InvalidExport: an export has an empty name, an unknown Kind, or an
	// index out of range for its Kind's entity array.
	InvalidExport
	// InvalidImport: an import has an empty module/name, or an imported
	// global also carries an initializer. Import types are not checked
	// against how the imported entity is used.
	InvalidImport
	// InvalidType: a declared limit/type is internally inconsistent (e.g.
	// a memory's HasMaxFlag disagrees with whether Max is set), a Phi's
	// incoming-value count differs from its block's predecessor count, or
	// a non-phi instruction precedes a Phi within the same block.
	InvalidType
	// UnavailableOperand: an instruction reads an operand whose
	// definition does not dominate the use (cross-block) or does not
	// precede it (same-block).
	UnavailableOperand
)

func (k ErrorKind) String() string {
	switch k {
	case NullOperand:
		return "null operand"
	case InvalidExport:
		return "invalid export"
	case InvalidImport:
		return "invalid import"
	case InvalidType:
		return "invalid type"
	case UnavailableOperand:
		return "unavailable operand"
	default:
		return "unknown error"
	}
}

// Site is one well-formedness violation: the AST node it was found at
// (an mir.Instruction for function-body failures; an *mir.Import,
// *mir.Export, *mir.ElementSegment, *mir.MemoryDecl, *mir.GlobalDecl,
// *mir.TableDecl or *mir.Function for module-level failures) paired with
// the kind of failure. This flat list is the canonical form: rather than
// returning at the first failure (and rather than a callback invoked once
// per check the way an earlier, now-superseded variant of this pass
// worked), every independent violation in the module is collected and
// reported together.
type Site struct {
	Node interface{}
	Kind ErrorKind
}

// WellformedResult is the accumulated, deduplicated site list.
type WellformedResult struct {
	Sites []Site
	seen  map[Site]bool
}

// IsWellformed reports whether no violation was found.
func (r *WellformedResult) IsWellformed() bool { return len(r.Sites) == 0 }

// Err folds every site into a single error, one line per violation, so a
// caller sees the whole batch of independent failures rather than only the
// first one encountered. Returns nil when the result is well-formed.
func (r *WellformedResult) Err() error {
	if r.IsWellformed() {
		return nil
	}
	var merr *multierror.Error
	for _, site := range r.Sites {
		merr = multierror.Append(merr, fmt.Errorf("%s at %v", site.Kind, site.Node))
	}
	return merr.ErrorOrNil()
}

func (r *WellformedResult) addSite(node interface{}, kind ErrorKind) {
	site := Site{Node: node, Kind: kind}
	if r.seen == nil {
		r.seen = map[Site]bool{}
	}
	if r.seen[site] {
		return
	}
	r.seen[site] = true
	r.Sites = append(r.Sites, site)
}

// WellformedFunctionPass checks one function's instructions: every operand
// must be available at its use (same-block: defined earlier in the block;
// cross-block: defined in a block that dominates the use), and every Phi
// must precede every non-phi instruction in its block and have exactly one
// incoming value per actual predecessor.
//
// It is a constant, single-run pass: Run needs DominatorPass's result,
// which Prepare computes by driving DominatorPass to its own fixpoint —
// WellformedFunctionPass's own Run then does all its checking in one call
// and reports Converged.
type WellformedFunctionPass struct {
	dom    *DominatorResult
	result *WellformedResult
	done   bool
}

func (p *WellformedFunctionPass) IsSkipped(fn *mir.Function) bool { return false }
func (p *WellformedFunctionPass) IsConstantPass() bool            { return true }
func (p *WellformedFunctionPass) IsSingleRunPass() bool           { return true }

func (p *WellformedFunctionPass) Prepare(fn *mir.Function) {
	p.dom = RunFunctionPass[*DominatorResult](&DominatorPass{}, fn)
	p.result = &WellformedResult{}
	p.done = false
}

func (p *WellformedFunctionPass) Run(fn *mir.Function) PassStatus {
	for _, bb := range fn.Blocks {
		p.checkPhiOrdering(bb)
		for idx, inst := range bb.Instructions {
			if phi, ok := inst.(*mir.Phi); ok {
				p.checkPhi(bb, phi)
				continue
			}
			p.checkOperands(bb, idx, inst)
		}
		p.checkTerminator(bb)
	}
	p.done = true
	return Converged
}

// checkTerminator flags a block whose last instruction isn't a terminator,
// or whose terminator isn't last — a terminator in the middle of a block
// makes every instruction after it unreachable within that block.
func (p *WellformedFunctionPass) checkTerminator(bb *mir.BasicBlock) {
	for idx, inst := range bb.Instructions {
		last := idx == len(bb.Instructions)-1
		if mir.IsTerminator(inst) && !last {
			p.result.addSite(inst, InvalidType)
		}
	}
	if len(bb.Instructions) == 0 || bb.Terminator() == nil {
		p.result.addSite(bb, InvalidType)
	}
}

func (p *WellformedFunctionPass) Finalize(fn *mir.Function) {}

func (p *WellformedFunctionPass) Result(fn *mir.Function) *WellformedResult { return p.result }

// checkPhiOrdering flags any Phi instruction preceded by a non-phi
// instruction in the same block. The implementation this check is
// grounded on tracked this with a boolean that was set backwards from its
// own name (effectively never firing); here a non-phi instruction simply
// ends the legal region for phis in the block; every Phi seen after that
// point is flagged.
func (p *WellformedFunctionPass) checkPhiOrdering(bb *mir.BasicBlock) {
	seenNonPhi := false
	for _, inst := range bb.Instructions {
		if inst.IsPhi() {
			if seenNonPhi {
				p.result.addSite(inst, InvalidType)
			}
			continue
		}
		seenNonPhi = true
	}
}

func (p *WellformedFunctionPass) checkPhi(bb *mir.BasicBlock, phi *mir.Phi) {
	if len(phi.Incoming) != len(bb.Predecessors) {
		p.result.addSite(phi, InvalidType)
	}
	for _, pred := range bb.Predecessors {
		value := phi.ValueFor(pred)
		if value == nil {
			p.result.addSite(phi, NullOperand)
			continue
		}
		if value.Parent() == nil {
			p.result.addSite(phi, NullOperand)
			continue
		}
		if !p.dom.Dominates(value.Parent(), pred) && value.Parent() != pred {
			p.result.addSite(phi, UnavailableOperand)
		}
	}
}

func (p *WellformedFunctionPass) checkOperands(bb *mir.BasicBlock, index int, inst mir.Instruction) {
	p.checkOperator(inst)
	for _, operand := range inst.Operands() {
		if operand == nil {
			p.result.addSite(inst, NullOperand)
			continue
		}
		if operand.Parent() == nil {
			p.result.addSite(inst, NullOperand)
			continue
		}
		if operand.Parent() == bb {
			if !precedesInBlock(bb, operand, inst, index) {
				p.result.addSite(inst, UnavailableOperand)
			}
			continue
		}
		if !p.dom.Dominates(operand.Parent(), bb) {
			p.result.addSite(inst, UnavailableOperand)
		}
	}
}

// checkOperator validates the operator enum carried by an instruction, for
// the instruction kinds that have one. An out-of-range operator can only
// reach here through direct MIR construction (the well-formedness pass is
// the one place that would otherwise let it through uncaught).
func (p *WellformedFunctionPass) checkOperator(inst mir.Instruction) {
	switch v := inst.(type) {
	case *mir.IntUnaryOp:
		if !v.Op.Validate() {
			p.result.addSite(inst, InvalidType)
		}
	case *mir.IntBinaryOp:
		if !v.Op.Validate() {
			p.result.addSite(inst, InvalidType)
		}
	case *mir.FPUnaryOp:
		if !v.Op.Validate() {
			p.result.addSite(inst, InvalidType)
		}
	case *mir.FPBinaryOp:
		if !v.Op.Validate() {
			p.result.addSite(inst, InvalidType)
		}
	}
}

// precedesInBlock reports whether def appears before use in bb's
// instruction list, where use is known to be at instructions[useIndex].
func precedesInBlock(bb *mir.BasicBlock, def, use mir.Instruction, useIndex int) bool {
	for i := 0; i < useIndex; i++ {
		if bb.Instructions[i] == def {
			return true
		}
	}
	return false
}

// WellformedModulePass checks module-level invariants, then delegates to
// WellformedFunctionPass for every function body, merging the per-function
// sites into one module-wide result.
type WellformedModulePass struct {
	result *WellformedResult
}

func (p *WellformedModulePass) IsSkipped(mod *mir.Module) bool { return false }
func (p *WellformedModulePass) IsConstantPass() bool           { return true }
func (p *WellformedModulePass) IsSingleRunPass() bool          { return true }

func (p *WellformedModulePass) Prepare(mod *mir.Module) { p.result = &WellformedResult{} }

func (p *WellformedModulePass) Run(mod *mir.Module) PassStatus {
	p.checkImports(mod)
	p.checkExports(mod)
	p.checkMemories(mod)
	p.checkGlobals(mod)
	p.checkTables(mod)
	p.checkElements(mod)

	for _, fn := range mod.Functions {
		if fn == nil {
			continue
		}
		sub := RunFunctionPass[*WellformedResult](&WellformedFunctionPass{}, fn)
		for _, site := range sub.Sites {
			p.result.addSite(site.Node, site.Kind)
		}
	}
	return Converged
}

func (p *WellformedModulePass) Finalize(mod *mir.Module) {}

func (p *WellformedModulePass) Result(mod *mir.Module) *WellformedResult { return p.result }

func (p *WellformedModulePass) checkImports(mod *mir.Module) {
	for i := range mod.Imports {
		imp := &mod.Imports[i]
		if imp.Module == "" || imp.Name == "" {
			p.result.addSite(imp, InvalidImport)
		}
	}
}

func (p *WellformedModulePass) checkExports(mod *mir.Module) {
	for i := range mod.Exports {
		exp := &mod.Exports[i]
		var size int
		switch exp.Kind {
		case mir.ExportMemory:
			size = len(mod.Memories)
		case mir.ExportGlobal:
			size = len(mod.Globals)
		case mir.ExportTable:
			size = len(mod.Tables)
		case mir.ExportFunction:
			size = len(mod.Functions)
		default:
			p.result.addSite(exp, InvalidExport)
			continue
		}
		if exp.Name == "" || exp.Index < 0 || exp.Index >= size {
			p.result.addSite(exp, InvalidExport)
		}
	}
}

func (p *WellformedModulePass) checkMemories(mod *mir.Module) {
	for i := range mod.Memories {
		m := &mod.Memories[i]
		if m.Import != nil && (m.Import.Module == "" || m.Import.Name == "") {
			p.result.addSite(m, InvalidImport)
		}
		if m.HasMaxFlag && m.Max == mir.Unbounded {
			p.result.addSite(m, InvalidType)
		}
		if !m.HasMaxFlag && m.Max != mir.Unbounded {
			p.result.addSite(m, InvalidType)
		}
	}
}

func (p *WellformedModulePass) checkGlobals(mod *mir.Module) {
	for i := range mod.Globals {
		g := &mod.Globals[i]
		if g.Import != nil {
			if g.Import.Module == "" || g.Import.Name == "" {
				p.result.addSite(g, InvalidImport)
			}
			if g.Initializer != nil {
				p.result.addSite(g, InvalidImport)
			}
			continue
		}
		if _, ok := g.Initializer.(*mir.Constant); g.Initializer != nil && !ok {
			p.result.addSite(g, InvalidType)
		}
	}
}

func (p *WellformedModulePass) checkTables(mod *mir.Module) {
	for i := range mod.Tables {
		t := &mod.Tables[i]
		if t.Import != nil && (t.Import.Module == "" || t.Import.Name == "") {
			p.result.addSite(t, InvalidImport)
		}
		if t.HasMaxFlag && t.Max == mir.Unbounded {
			p.result.addSite(t, InvalidType)
		}
		if !t.HasMaxFlag && t.Max != mir.Unbounded {
			p.result.addSite(t, InvalidType)
		}
	}
}

func (p *WellformedModulePass) checkElements(mod *mir.Module) {
	for i := range mod.Elements {
		e := &mod.Elements[i]
		if e.Table < 0 || e.Table >= len(mod.Tables) {
			p.result.addSite(e, InvalidType)
			continue
		}
		for _, fnIdx := range e.Functions {
			if fnIdx < 0 || fnIdx >= len(mod.Functions) {
				p.result.addSite(e, InvalidType)
			}
		}
	}
}
