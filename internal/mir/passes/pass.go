// Package passes implements the MIR analysis and transformation framework:
// a small pass-driver contract (FunctionPass/ModulePass, run to a
// dataflow fixpoint or once for single-run passes) plus the four concrete
// passes this engine ships — dominator analysis, reaching-definition
// analysis, a well-formedness checker and a CFG simplifier.
package passes

import "github.com/nineka/sablewasm/internal/mir"

// PassStatus is what a pass's Run returns after one iteration: Converged
// means the driver should stop, InProgress means Run should be called
// again (the dataflow fact set is still changing, or — for a
// transformation pass like SimplifyCFG — there is more work available to
// attempt in the next iteration).
type PassStatus int

const (
	Converged PassStatus = iota
	InProgress
)

// FunctionPass is the contract every per-function analysis or
// transformation in this package implements. R is the pass's result type
// (e.g. *DominatorResult) — generic rather than an empty-interface
// GetResult so callers get a typed result back without a cast.
//
// A driver calls Prepare once, then Run repeatedly until it returns
// Converged (or once, for a single-run pass regardless of what Run
// returns), then Finalize once, then reads Result.
type FunctionPass[R any] interface {
	Prepare(fn *mir.Function)
	Run(fn *mir.Function) PassStatus
	Finalize(fn *mir.Function)
	// IsSkipped lets a pass opt out of running entirely for a given
	// function (e.g. an empty function needs no dominator analysis).
	IsSkipped(fn *mir.Function) bool
	// IsConstantPass reports whether Run only computes facts, never
	// mutates fn. SimplifyCFG returns false; the analyses return true.
	IsConstantPass() bool
	// IsSingleRunPass reports whether Run reaches its final state after
	// exactly one call, regardless of the PassStatus it returns.
	IsSingleRunPass() bool
	Result(fn *mir.Function) R
}

// ModulePass is FunctionPass's module-level counterpart.
type ModulePass[R any] interface {
	Prepare(mod *mir.Module)
	Run(mod *mir.Module) PassStatus
	Finalize(mod *mir.Module)
	IsSkipped(mod *mir.Module) bool
	IsConstantPass() bool
	IsSingleRunPass() bool
	Result(mod *mir.Module) R
}

// RunFunctionPass drives p over fn to a fixpoint (SimpleFunctionPassDriver
// in the implementation this framework is grounded on) and returns its
// result.
func RunFunctionPass[R any](p FunctionPass[R], fn *mir.Function) R {
	if p.IsSkipped(fn) {
		return p.Result(fn)
	}
	p.Prepare(fn)
	for {
		status := p.Run(fn)
		if p.IsSingleRunPass() || status == Converged {
			break
		}
	}
	p.Finalize(fn)
	return p.Result(fn)
}

// RunModulePass drives p over mod to a fixpoint (SimpleModulePassDriver).
func RunModulePass[R any](p ModulePass[R], mod *mir.Module) R {
	if p.IsSkipped(mod) {
		return p.Result(mod)
	}
	p.Prepare(mod)
	for {
		status := p.Run(mod)
		if p.IsSingleRunPass() || status == Converged {
			break
		}
	}
	p.Finalize(mod)
	return p.Result(mod)
}
