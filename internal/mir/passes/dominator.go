package passes

import (
	"sort"

	"github.com/nineka/sablewasm/internal/mir"
)

// DominatorResult is a DominatorPass's output: for every block, the set of
// blocks that dominate it (including itself).
type DominatorResult struct {
	sets map[*mir.BasicBlock]map[*mir.BasicBlock]bool
}

// Dominators returns the set of blocks that dominate bb, including bb
// itself, ordered by ID — map iteration order is unspecified, so callers
// that need a stable, reproducible listing (diagnostics, tests) rely on
// this sort rather than Go's randomized map order.
func (r *DominatorResult) Dominators(bb *mir.BasicBlock) []*mir.BasicBlock {
	set := r.sets[bb]
	out := make([]*mir.BasicBlock, 0, len(set))
	for b := range set {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Dominates reports whether a dominates b (a == b counts as dominating).
func (r *DominatorResult) Dominates(a, b *mir.BasicBlock) bool {
	set := r.sets[b]
	return set != nil && set[a]
}

// DominatorPass computes, for every reachable block in a function, the set
// of blocks that dominate it via the standard iterative
// intersect-of-predecessors dataflow: the entry block is dominated only by
// itself, every other block starts as "dominated by everything" and
// narrows each round to {self} ∪ ⋂(Dominators(pred) for pred in
// Predecessors), until a round changes nothing.
//
// DominatorPass is a constant pass (it only ever computes facts) and is
// not single-run — Run must be called repeatedly until it reports
// Converged.
type DominatorPass struct {
	result *DominatorResult
}

func (p *DominatorPass) IsSkipped(fn *mir.Function) bool { return len(fn.Blocks) == 0 }
func (p *DominatorPass) IsConstantPass() bool            { return true }
func (p *DominatorPass) IsSingleRunPass() bool            { return false }

func (p *DominatorPass) Prepare(fn *mir.Function) {
	all := make(map[*mir.BasicBlock]bool, len(fn.Blocks))
	for _, bb := range fn.Blocks {
		all[bb] = true
	}
	sets := make(map[*mir.BasicBlock]map[*mir.BasicBlock]bool, len(fn.Blocks))
	entry := fn.Entry()
	for _, bb := range fn.Blocks {
		if bb == entry {
			sets[bb] = map[*mir.BasicBlock]bool{entry: true}
		} else {
			sets[bb] = cloneSet(all)
		}
	}
	p.result = &DominatorResult{sets: sets}
}

func (p *DominatorPass) Run(fn *mir.Function) PassStatus {
	changed := false
	entry := fn.Entry()
	for _, bb := range fn.Blocks {
		if bb == entry {
			continue
		}
		var intersection map[*mir.BasicBlock]bool
		for _, pred := range bb.Predecessors {
			if intersection == nil {
				intersection = cloneSet(p.result.sets[pred])
				continue
			}
			intersection = intersectSets(intersection, p.result.sets[pred])
		}
		if intersection == nil {
			intersection = map[*mir.BasicBlock]bool{}
		}
		intersection[bb] = true
		if !setsEqual(intersection, p.result.sets[bb]) {
			p.result.sets[bb] = intersection
			changed = true
		}
	}
	if changed {
		return InProgress
	}
	return Converged
}

func (p *DominatorPass) Finalize(fn *mir.Function) {}

func (p *DominatorPass) Result(fn *mir.Function) *DominatorResult { return p.result }

func cloneSet(s map[*mir.BasicBlock]bool) map[*mir.BasicBlock]bool {
	out := make(map[*mir.BasicBlock]bool, len(s))
	for k, v := range s {
		if v {
			out[k] = true
		}
	}
	return out
}

func intersectSets(a, b map[*mir.BasicBlock]bool) map[*mir.BasicBlock]bool {
	out := make(map[*mir.BasicBlock]bool)
	for k := range a {
		if b[k] {
			out[k] = true
		}
	}
	return out
}

func setsEqual(a, b map[*mir.BasicBlock]bool) bool {
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
