package passes

import "github.com/nineka/sablewasm/internal/mir"

// ReachingDefResult holds, for every block, the set of instruction
// definitions that reach its entry (In) and exit (Out).
type ReachingDefResult struct {
	in, out map[*mir.BasicBlock]map[mir.Instruction]bool
}

// In returns the definitions reaching the entry of bb.
func (r *ReachingDefResult) In(bb *mir.BasicBlock) map[mir.Instruction]bool { return r.in[bb] }

// Out returns the definitions reaching the exit of bb.
func (r *ReachingDefResult) Out(bb *mir.BasicBlock) map[mir.Instruction]bool { return r.out[bb] }

// Reaches reports whether def reaches the entry of bb.
func (r *ReachingDefResult) Reaches(def mir.Instruction, bb *mir.BasicBlock) bool {
	return r.in[bb][def]
}

// ReachingDefPass computes, for each block, which instruction definitions
// from anywhere in the function can reach it along some control-flow path:
// a block's own instructions are always in its Out set (Out0 in the
// implementation this pass is grounded on), and In(B) is the union of
// Out(pred) over every predecessor, iterated to a fixpoint.
//
// This pass is never required for well-formedness — WellformedFunctionPass
// uses dominance, which is strictly stronger for an SSA-form function (every
// definition that dominates a use also reaches it, but not every reaching
// definition dominates the use). ReachingDefPass exists as an
// optional cross-check: CrossCheckReachingDef flags any operand that
// dominance accepted but that reaching-definition analysis says cannot
// actually reach the use, which would indicate a bug in how the CFG was
// built rather than a legitimate well-formedness violation.
type ReachingDefPass struct {
	result *ReachingDefResult
}

func (p *ReachingDefPass) IsSkipped(fn *mir.Function) bool { return len(fn.Blocks) == 0 }
func (p *ReachingDefPass) IsConstantPass() bool            { return true }
func (p *ReachingDefPass) IsSingleRunPass() bool           { return false }

func (p *ReachingDefPass) Prepare(fn *mir.Function) {
	in := make(map[*mir.BasicBlock]map[mir.Instruction]bool, len(fn.Blocks))
	out := make(map[*mir.BasicBlock]map[mir.Instruction]bool, len(fn.Blocks))
	for _, bb := range fn.Blocks {
		in[bb] = map[mir.Instruction]bool{}
		defs := map[mir.Instruction]bool{}
		for _, inst := range bb.Instructions {
			defs[inst] = true
		}
		out[bb] = defs
	}
	p.result = &ReachingDefResult{in: in, out: out}
}

func (p *ReachingDefPass) Run(fn *mir.Function) PassStatus {
	changed := false
	for _, bb := range fn.Blocks {
		newIn := map[mir.Instruction]bool{}
		for _, pred := range bb.Predecessors {
			for def := range p.result.out[pred] {
				newIn[def] = true
			}
		}
		if !instSetsEqual(newIn, p.result.in[bb]) {
			p.result.in[bb] = newIn
			changed = true
		}
		newOut := map[mir.Instruction]bool{}
		for _, inst := range bb.Instructions {
			newOut[inst] = true
		}
		for def := range p.result.in[bb] {
			newOut[def] = true
		}
		if !instSetsEqual(newOut, p.result.out[bb]) {
			p.result.out[bb] = newOut
			changed = true
		}
	}
	if changed {
		return InProgress
	}
	return Converged
}

func (p *ReachingDefPass) Finalize(fn *mir.Function) {}

func (p *ReachingDefPass) Result(fn *mir.Function) *ReachingDefResult { return p.result }

func instSetsEqual(a, b map[mir.Instruction]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// CrossCheckReachingDef re-validates every cross-block operand that
// dominance accepts against reaching-definition facts, returning the using
// instructions (one entry per disagreeing operand) where the two analyses
// disagree.
// Never called as part of ordinary validation — it is a debug tool for
// bugs in CFG construction, not a correctness requirement of
// well-formedness itself.
func CrossCheckReachingDef(fn *mir.Function, dom *DominatorResult) []mir.Instruction {
	rd := RunFunctionPass[*ReachingDefResult](&ReachingDefPass{}, fn)
	var disagreements []mir.Instruction
	for _, bb := range fn.Blocks {
		for _, inst := range bb.Instructions {
			for _, operand := range inst.Operands() {
				if operand == nil || operand.Parent() == nil {
					continue
				}
				if operand.Parent() == bb {
					continue // same-block availability isn't reaching-def's concern
				}
				dominatesUse := dom.Dominates(operand.Parent(), bb)
				reachesUse := rd.Reaches(operand, bb)
				if dominatesUse && !reachesUse {
					disagreements = append(disagreements, inst)
				}
			}
		}
	}
	return disagreements
}
