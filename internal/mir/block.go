package mir

// BasicBlock is a maximal straight-line sequence of Instructions: zero or
// more leading Phis followed by zero or more ordinary instructions,
// optionally ending in a terminator (Branch, CondBranch, BranchTable or
// Return). A block with no terminator falls through to the next block in
// Function's block order — used only transiently during construction;
// every block reachable by the time a pass runs is expected to end in a
// terminator.
type BasicBlock struct {
	ID           int
	Instructions []Instruction
	Predecessors []*BasicBlock
	Successors   []*BasicBlock
}

// NewBasicBlock constructs an empty block with the given ID. Functions are
// responsible for wiring Predecessors/Successors as instructions are
// appended.
func NewBasicBlock(id int) *BasicBlock {
	return &BasicBlock{ID: id}
}

// Append adds inst to the end of the block's instruction list and sets
// inst's parent. Phis must be appended before any non-phi instruction —
// callers that violate this produce a block the well-formedness pass will
// reject, not one Append itself refuses to build (the invariant is a
// property of the finished function, not of incremental construction).
func (bb *BasicBlock) Append(inst Instruction) {
	inst.setParent(bb)
	bb.Instructions = append(bb.Instructions, inst)
}

// Terminator returns the block's last instruction if it is a control-flow
// terminator (Branch, CondBranch, BranchTable or Return), else nil.
func (bb *BasicBlock) Terminator() Instruction {
	if len(bb.Instructions) == 0 {
		return nil
	}
	last := bb.Instructions[len(bb.Instructions)-1]
	switch last.(type) {
	case *Branch, *CondBranch, *BranchTable, *Return:
		return last
	default:
		return nil
	}
}

// IsTerminator reports whether inst is one of the control-flow terminator
// types, regardless of its position in a block — used by the
// well-formedness checker to flag a terminator that isn't last, or a
// non-terminator that is.
func IsTerminator(inst Instruction) bool {
	switch inst.(type) {
	case *Branch, *CondBranch, *BranchTable, *Return:
		return true
	default:
		return false
	}
}

// Phis returns the block's leading Phi instructions.
func (bb *BasicBlock) Phis() []*Phi {
	var phis []*Phi
	for _, inst := range bb.Instructions {
		p, ok := inst.(*Phi)
		if !ok {
			break
		}
		phis = append(phis, p)
	}
	return phis
}

// addSuccessor links bb -> succ in both directions, skipping duplicates
// (a block can branch to the same target more than once, e.g. via
// BranchTable, without appearing twice in Successors).
func (bb *BasicBlock) addSuccessor(succ *BasicBlock) {
	for _, s := range bb.Successors {
		if s == succ {
			return
		}
	}
	bb.Successors = append(bb.Successors, succ)
	for _, p := range succ.Predecessors {
		if p == bb {
			return
		}
	}
	succ.Predecessors = append(succ.Predecessors, bb)
}

// removePredecessor removes pred from bb's predecessor list and bb from
// pred's successor list, used by SimplifyCFG when erasing a block.
func (bb *BasicBlock) removePredecessor(pred *BasicBlock) {
	bb.Predecessors = removeBlock(bb.Predecessors, pred)
	pred.Successors = removeBlock(pred.Successors, bb)
}

func removeBlock(list []*BasicBlock, target *BasicBlock) []*BasicBlock {
	out := list[:0]
	for _, b := range list {
		if b != target {
			out = append(out, b)
		}
	}
	return out
}
