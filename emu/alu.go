package emu

import "github.com/sarchlab/diibridge/insts"

// ALU implements RV32I integer computation.
type ALU struct {
	regFile *RegFile
}

// NewALU creates a new ALU connected to the given register file.
func NewALU(regFile *RegFile) *ALU {
	return &ALU{regFile: regFile}
}

// Execute computes the result of an OP, OP-IMM, LUI or AUIPC instruction
// located at pc. The second operand is rs2 for OP and the immediate
// otherwise.
func (a *ALU) Execute(inst *insts.Instruction, pc uint32) uint32 {
	op1 := a.regFile.ReadReg(inst.Rs1)
	op2 := uint32(inst.Imm)
	if inst.Format == insts.FormatR {
		op2 = a.regFile.ReadReg(inst.Rs2)
	}

	switch inst.Op {
	case insts.OpLUI:
		return uint32(inst.Imm)
	case insts.OpAUIPC:
		return pc + uint32(inst.Imm)
	case insts.OpADD, insts.OpADDI:
		return op1 + op2
	case insts.OpSUB:
		return op1 - op2
	case insts.OpSLL, insts.OpSLLI:
		return op1 << (op2 & 0x1F)
	case insts.OpSRL, insts.OpSRLI:
		return op1 >> (op2 & 0x1F)
	case insts.OpSRA, insts.OpSRAI:
		return uint32(int32(op1) >> (op2 & 0x1F))
	case insts.OpSLT, insts.OpSLTI:
		return boolToWord(int32(op1) < int32(op2))
	case insts.OpSLTU, insts.OpSLTIU:
		return boolToWord(op1 < op2)
	case insts.OpXOR, insts.OpXORI:
		return op1 ^ op2
	case insts.OpOR, insts.OpORI:
		return op1 | op2
	case insts.OpAND, insts.OpANDI:
		return op1 & op2
	default:
		return 0
	}
}

func boolToWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
