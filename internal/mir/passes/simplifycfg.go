package passes

import "github.com/nineka/sablewasm/internal/mir"

// SimplifyCFGPass applies two local rewrites to a function until neither
// finds anything left to do:
//
//   - trivial phi elimination: a Phi whose incoming values are all either
//     itself or one single other instruction is redundant — replace every
//     use of it with that instruction and erase it.
//   - straight-line block merging: a block with exactly one predecessor,
//     which in turn has exactly one successor (this block), can be spliced
//     onto the end of its predecessor and erased.
//
// Phis are always fully scanned for triviality before any block merge is
// attempted in a given Run call, matching the ordering the implementation
// this pass is grounded on uses — merging first could feed a
// newly-enlarged block's phis stale predecessor lists.
//
// SimplifyCFGPass is not a constant pass (it mutates fn) and is not
// single-run: each Run call performs at most one rewrite and reports
// InProgress, so the driver keeps calling it until a full scan finds
// nothing left to simplify.
type SimplifyCFGPass struct{}

func (p *SimplifyCFGPass) IsSkipped(fn *mir.Function) bool { return false }
func (p *SimplifyCFGPass) IsConstantPass() bool            { return false }
func (p *SimplifyCFGPass) IsSingleRunPass() bool            { return false }
func (p *SimplifyCFGPass) Prepare(fn *mir.Function)          {}
func (p *SimplifyCFGPass) Finalize(fn *mir.Function)         {}
func (p *SimplifyCFGPass) Result(fn *mir.Function) struct{}  { return struct{}{} }

func (p *SimplifyCFGPass) Run(fn *mir.Function) PassStatus {
	if simplifyTrivialPhi(fn) {
		return InProgress
	}
	if simplifyTrivialBranch(fn) {
		return InProgress
	}
	return Converged
}

// simplifyTrivialPhi finds the first Phi whose incoming values all reduce
// to a single non-self value and eliminates it, returning true if it found
// one.
func simplifyTrivialPhi(fn *mir.Function) bool {
	for _, bb := range fn.Blocks {
		for _, inst := range bb.Instructions {
			phi, ok := inst.(*mir.Phi)
			if !ok {
				continue
			}
			if candidate, trivial := trivialPhiValue(phi); trivial {
				mir.ReplaceAllUsesWith(fn, phi, candidate)
				fn.EraseInstruction(phi)
				return true
			}
		}
	}
	return false
}

// trivialPhiValue reports the single distinct non-self incoming value of
// phi, if every incoming value is either phi itself or that one value.
func trivialPhiValue(phi *mir.Phi) (mir.Instruction, bool) {
	var candidate mir.Instruction
	for _, in := range phi.Incoming {
		if in.Value == nil || in.Value == phi {
			continue
		}
		if candidate == nil {
			candidate = in.Value
			continue
		}
		if candidate != in.Value {
			return nil, false
		}
	}
	if candidate == nil {
		return nil, false
	}
	return candidate, true
}

// simplifyTrivialBranch finds the first block with exactly one predecessor
// whose own sole successor is that block, splices it onto the
// predecessor, and erases it.
func simplifyTrivialBranch(fn *mir.Function) bool {
	entry := fn.Entry()
	for _, bb := range fn.Blocks {
		if bb == entry {
			continue
		}
		if len(bb.Predecessors) != 1 {
			continue
		}
		pred := bb.Predecessors[0]
		if len(pred.Successors) != 1 || pred.Successors[0] != bb {
			continue
		}
		mergeBlocks(fn, pred, bb)
		return true
	}
	return false
}

// mergeBlocks erases pred's terminator (a Branch to bb, necessarily),
// appends bb's instructions onto pred, rewires bb's successors to now
// point from pred, and erases bb.
func mergeBlocks(fn *mir.Function, pred, bb *mir.BasicBlock) {
	if term := pred.Terminator(); term != nil {
		fn.EraseInstruction(term)
	}
	instructions := append([]mir.Instruction(nil), bb.Instructions...)
	bb.Instructions = nil
	for _, inst := range instructions {
		pred.Append(inst)
	}
	for _, succ := range append([]*mir.BasicBlock(nil), bb.Successors...) {
		succ.Predecessors = replacePred(succ.Predecessors, bb, pred)
		pred.Successors = appendUnique(pred.Successors, succ)
	}
	bb.Successors = nil
	fn.EraseBlock(bb)
}

func replacePred(list []*mir.BasicBlock, old, with *mir.BasicBlock) []*mir.BasicBlock {
	out := make([]*mir.BasicBlock, len(list))
	for i, b := range list {
		if b == old {
			out[i] = with
		} else {
			out[i] = b
		}
	}
	return out
}

func appendUnique(list []*mir.BasicBlock, b *mir.BasicBlock) []*mir.BasicBlock {
	for _, existing := range list {
		if existing == b {
			return list
		}
	}
	return append(list, b)
}
