package emu

import "github.com/sarchlab/diibridge/insts"

// MemAccess is a data-bus transaction issued by a load or store. The bus
// is word-wide: Addr is word aligned and BE selects the bytes involved.
type MemAccess struct {
	Addr  uint32
	BE    uint8
	WData uint32
	Write bool

	// offset is the byte offset of the access within the word.
	offset uint32
}

// LoadStoreUnit turns loads and stores into bus transactions and extracts
// load results from bus data.
type LoadStoreUnit struct {
	regFile *RegFile
}

// NewLoadStoreUnit creates a new LoadStoreUnit connected to the given
// register file.
func NewLoadStoreUnit(regFile *RegFile) *LoadStoreUnit {
	return &LoadStoreUnit{regFile: regFile}
}

// Request builds the bus transaction for a load or store. It returns false
// when the effective address is not naturally aligned for the access size.
func (lsu *LoadStoreUnit) Request(inst *insts.Instruction) (MemAccess, bool) {
	addr := lsu.regFile.ReadReg(inst.Rs1) + uint32(inst.Imm)
	size := uint32(inst.AccessSize())
	offset := addr & 3

	if addr%size != 0 {
		return MemAccess{}, false
	}

	access := MemAccess{
		Addr:   addr &^ 3,
		BE:     uint8((1<<size)-1) << offset,
		Write:  inst.IsStore(),
		offset: offset,
	}

	if access.Write {
		access.WData = lsu.regFile.ReadReg(inst.Rs2) << (8 * offset)
	}

	return access, true
}

// Extract returns the value a load writes to its destination register,
// given the word returned by the bus.
func (lsu *LoadStoreUnit) Extract(inst *insts.Instruction, access MemAccess, rdata uint32) uint32 {
	v := rdata >> (8 * access.offset)

	switch inst.Op {
	case insts.OpLB:
		return uint32(int32(int8(v)))
	case insts.OpLBU:
		return v & 0xFF
	case insts.OpLH:
		return uint32(int32(int16(v)))
	case insts.OpLHU:
		return v & 0xFFFF
	default:
		return v
	}
}
