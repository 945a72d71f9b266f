package mir

import "github.com/nineka/sablewasm/internal/bytecode"

// Function is one MIR function: a type, a local-variable layout and a
// control-flow graph of basic blocks in reverse-postorder-friendly
// construction order (Blocks[0] is always the entry block).
type Function struct {
	Name   string
	Type   bytecode.FunctionType
	Locals []bytecode.ValueType // includes the Type.Params prefix
	Blocks []*BasicBlock

	nextInstID int
}

// NewFunction constructs an empty function with a single empty entry
// block.
func NewFunction(name string, ft bytecode.FunctionType) *Function {
	fn := &Function{Name: name, Type: ft, Locals: append([]bytecode.ValueType(nil), ft.Params...)}
	fn.Blocks = []*BasicBlock{NewBasicBlock(0)}
	return fn
}

// Entry returns the function's entry block (always Blocks[0]).
func (fn *Function) Entry() *BasicBlock { return fn.Blocks[0] }

// NewBlock appends a fresh, disconnected block to the function and returns
// it; the caller is responsible for wiring it into the CFG with Connect.
func (fn *Function) NewBlock() *BasicBlock {
	bb := NewBasicBlock(len(fn.Blocks))
	fn.Blocks = append(fn.Blocks, bb)
	return bb
}

// NextInstID returns a fresh instruction ID, unique within this function.
func (fn *Function) NextInstID() int {
	id := fn.nextInstID
	fn.nextInstID++
	return id
}

// Connect records a control-flow edge from -> to, used while building a
// function's CFG (e.g. immediately after appending a Branch/BranchTable
// terminator naming its targets).
func (fn *Function) Connect(from, to *BasicBlock) { from.addSuccessor(to) }

// EraseBlock removes bb from the function entirely: it is unlinked from
// every remaining predecessor/successor and dropped from Blocks. Block IDs
// are not renumbered — gaps are expected after CFG simplification, the
// same way the pass this package's simplifier is grounded on leaves holes
// in its block list rather than compacting it.
func (fn *Function) EraseBlock(bb *BasicBlock) {
	for _, succ := range append([]*BasicBlock(nil), bb.Successors...) {
		succ.removePredecessor(bb)
	}
	for _, pred := range append([]*BasicBlock(nil), bb.Predecessors...) {
		bb.removePredecessor(pred)
	}
	out := fn.Blocks[:0]
	for _, b := range fn.Blocks {
		if b != bb {
			out = append(out, b)
		}
	}
	fn.Blocks = out
}

// EraseInstruction removes inst from its parent block's instruction list.
func (fn *Function) EraseInstruction(inst Instruction) {
	bb := inst.Parent()
	if bb == nil {
		return
	}
	out := bb.Instructions[:0]
	for _, i := range bb.Instructions {
		if i != inst {
			out = append(out, i)
		}
	}
	bb.Instructions = out
	inst.setParent(nil)
}
