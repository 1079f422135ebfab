package emu

import "github.com/sarchlab/diibridge/insts"

// BranchUnit resolves jumps and conditional branches.
type BranchUnit struct {
	regFile *RegFile
}

// NewBranchUnit creates a new BranchUnit connected to the given register file.
func NewBranchUnit(regFile *RegFile) *BranchUnit {
	return &BranchUnit{regFile: regFile}
}

// Resolve returns whether the control-flow instruction at pc redirects the
// PC and, if so, to where. Non-control-flow instructions never redirect.
func (b *BranchUnit) Resolve(inst *insts.Instruction, pc uint32) (taken bool, target uint32) {
	switch {
	case inst.Op == insts.OpJAL:
		return true, pc + uint32(inst.Imm)
	case inst.Op == insts.OpJALR:
		// The lowest bit of the computed address is cleared.
		return true, (b.regFile.ReadReg(inst.Rs1) + uint32(inst.Imm)) &^ 1
	case inst.IsBranch():
		if b.CheckCondition(inst) {
			return true, pc + uint32(inst.Imm)
		}
		return false, 0
	default:
		return false, 0
	}
}

// CheckCondition evaluates the condition of a conditional branch.
func (b *BranchUnit) CheckCondition(inst *insts.Instruction) bool {
	op1 := b.regFile.ReadReg(inst.Rs1)
	op2 := b.regFile.ReadReg(inst.Rs2)

	switch inst.Op {
	case insts.OpBEQ:
		return op1 == op2
	case insts.OpBNE:
		return op1 != op2
	case insts.OpBLT:
		return int32(op1) < int32(op2)
	case insts.OpBGE:
		return int32(op1) >= int32(op2)
	case insts.OpBLTU:
		return op1 < op2
	case insts.OpBGEU:
		return op1 >= op2
	default:
		return false
	}
}
