package insts

// Major opcodes, bits [6:0].
const (
	opcodeLoad   = 0b0000011
	opcodeMisc   = 0b0001111
	opcodeOpImm  = 0b0010011
	opcodeAUIPC  = 0b0010111
	opcodeStore  = 0b0100011
	opcodeOp     = 0b0110011
	opcodeLUI    = 0b0110111
	opcodeBranch = 0b1100011
	opcodeJALR   = 0b1100111
	opcodeJAL    = 0b1101111
)

// Decoder decodes RV32I machine code into instructions.
type Decoder struct{}

// NewDecoder creates a new RV32I instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes a 32-bit instruction word. Words that are not part of the
// supported subset, including every compressed encoding, decode as
// OpUnknown.
func (d *Decoder) Decode(word uint32) *Instruction {
	inst := &Instruction{Op: OpUnknown, Format: FormatUnknown}

	// Bits [1:0] != 0b11 mark a 16-bit compressed instruction.
	if word&0b11 != 0b11 {
		return inst
	}

	inst.Rd = uint8((word >> 7) & 0x1F)
	inst.Funct3 = uint8((word >> 12) & 0x7)
	inst.Rs1 = uint8((word >> 15) & 0x1F)
	inst.Rs2 = uint8((word >> 20) & 0x1F)

	switch word & 0x7F {
	case opcodeLUI:
		d.decodeUpper(word, inst, OpLUI)
	case opcodeAUIPC:
		d.decodeUpper(word, inst, OpAUIPC)
	case opcodeJAL:
		d.decodeJAL(word, inst)
	case opcodeJALR:
		d.decodeJALR(word, inst)
	case opcodeBranch:
		d.decodeBranch(word, inst)
	case opcodeLoad:
		d.decodeLoad(word, inst)
	case opcodeStore:
		d.decodeStore(word, inst)
	case opcodeOpImm:
		d.decodeOpImm(word, inst)
	case opcodeOp:
		d.decodeOp(word, inst)
	case opcodeMisc:
		d.decodeMisc(word, inst)
	}

	if inst.Op == OpUnknown {
		*inst = Instruction{}
	}

	return inst
}

func (d *Decoder) decodeUpper(word uint32, inst *Instruction, op Op) {
	inst.Op = op
	inst.Format = FormatU
	inst.Rs1, inst.Rs2, inst.Funct3 = 0, 0, 0
	inst.Imm = int32(word & 0xFFFFF000)
}

// decodeJAL decodes JAL.
// Format: imm[20|10:1|11|19:12] | rd | 1101111
func (d *Decoder) decodeJAL(word uint32, inst *Instruction) {
	inst.Op = OpJAL
	inst.Format = FormatJ
	inst.Rs1, inst.Rs2, inst.Funct3 = 0, 0, 0

	imm := (word>>31)&0x1<<20 |
		(word>>12)&0xFF<<12 |
		(word>>20)&0x1<<11 |
		(word>>21)&0x3FF<<1
	inst.Imm = signExtend(imm, 21)
}

func (d *Decoder) decodeJALR(word uint32, inst *Instruction) {
	if inst.Funct3 != 0 {
		return
	}

	inst.Op = OpJALR
	inst.Format = FormatI
	inst.Rs2 = 0
	inst.Imm = immI(word)
}

// decodeBranch decodes conditional branches.
// Format: imm[12|10:5] | rs2 | rs1 | funct3 | imm[4:1|11] | 1100011
func (d *Decoder) decodeBranch(word uint32, inst *Instruction) {
	ops := [8]Op{OpBEQ, OpBNE, OpUnknown, OpUnknown, OpBLT, OpBGE, OpBLTU, OpBGEU}
	inst.Op = ops[inst.Funct3]
	inst.Format = FormatB
	inst.Rd = 0

	imm := (word>>31)&0x1<<12 |
		(word>>7)&0x1<<11 |
		(word>>25)&0x3F<<5 |
		(word>>8)&0xF<<1
	inst.Imm = signExtend(imm, 13)
}

func (d *Decoder) decodeLoad(word uint32, inst *Instruction) {
	ops := [8]Op{OpLB, OpLH, OpLW, OpUnknown, OpLBU, OpLHU, OpUnknown, OpUnknown}
	inst.Op = ops[inst.Funct3]
	inst.Format = FormatI
	inst.Rs2 = 0
	inst.Imm = immI(word)
}

// decodeStore decodes stores.
// Format: imm[11:5] | rs2 | rs1 | funct3 | imm[4:0] | 0100011
func (d *Decoder) decodeStore(word uint32, inst *Instruction) {
	ops := [8]Op{OpSB, OpSH, OpSW}
	inst.Op = ops[inst.Funct3]
	inst.Format = FormatS
	inst.Rd = 0

	imm := (word>>25)&0x7F<<5 | (word>>7)&0x1F
	inst.Imm = signExtend(imm, 12)
}

func (d *Decoder) decodeOpImm(word uint32, inst *Instruction) {
	inst.Format = FormatI
	inst.Rs2 = 0
	inst.Imm = immI(word)

	funct7 := word >> 25

	switch inst.Funct3 {
	case 0b000:
		inst.Op = OpADDI
	case 0b010:
		inst.Op = OpSLTI
	case 0b011:
		inst.Op = OpSLTIU
	case 0b100:
		inst.Op = OpXORI
	case 0b110:
		inst.Op = OpORI
	case 0b111:
		inst.Op = OpANDI
	case 0b001:
		if funct7 == 0 {
			inst.Op = OpSLLI
			inst.Imm &= 0x1F
		}
	case 0b101:
		switch funct7 {
		case 0b0000000:
			inst.Op = OpSRLI
			inst.Imm &= 0x1F
		case 0b0100000:
			inst.Op = OpSRAI
			inst.Imm &= 0x1F
		}
	}
}

func (d *Decoder) decodeOp(word uint32, inst *Instruction) {
	inst.Format = FormatR

	switch word >> 25 {
	case 0b0000000:
		ops := [8]Op{OpADD, OpSLL, OpSLT, OpSLTU, OpXOR, OpSRL, OpOR, OpAND}
		inst.Op = ops[inst.Funct3]
	case 0b0100000:
		switch inst.Funct3 {
		case 0b000:
			inst.Op = OpSUB
		case 0b101:
			inst.Op = OpSRA
		}
	}
}

func (d *Decoder) decodeMisc(word uint32, inst *Instruction) {
	if inst.Funct3 != 0 {
		return
	}

	inst.Op = OpFENCE
	inst.Format = FormatI
	inst.Rd, inst.Rs1, inst.Rs2 = 0, 0, 0
	inst.Imm = immI(word)
}

func immI(word uint32) int32 {
	return int32(word) >> 20
}

// signExtend sign-extends the low bits of v.
func signExtend(v uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}
