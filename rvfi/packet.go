// Package rvfi defines the RVFI-DII wire records exchanged with the remote
// test generator and their bit-exact encoding.
package rvfi

// Sizes of the fixed-layout records on the wire.
const (
	// InstructionPacketSize is the encoded size of an InstructionPacket.
	InstructionPacketSize = 8
	// ExecutionPacketSize is the encoded size of an ExecutionPacket.
	ExecutionPacketSize = 88
)

// Command values carried in InstructionPacket.Cmd.
const (
	// CmdReset marks the end of a trace and requests a core reset.
	CmdReset uint8 = 0
	// CmdInstruction marks a normal instruction to be injected.
	CmdInstruction uint8 = 1
)

// InstructionPacket is one instruction injected by the remote side.
type InstructionPacket struct {
	// Insn is the instruction word. The lower 16 bits may hold a
	// compressed instruction.
	Insn uint32

	// Time is the relative injection delay. Informational only.
	Time uint16

	// Cmd is CmdReset for a reset marker, nonzero for an instruction.
	Cmd uint8

	// Padding is unused.
	Padding uint8
}

// IsReset reports whether the packet is a reset marker.
func (p InstructionPacket) IsReset() bool {
	return p.Cmd == CmdReset
}

// NewInstruction returns a normal instruction packet for insn.
func NewInstruction(insn uint32) InstructionPacket {
	return InstructionPacket{Insn: insn, Cmd: CmdInstruction}
}

// NewResetMarker returns a reset marker packet.
func NewResetMarker() InstructionPacket {
	return InstructionPacket{Cmd: CmdReset}
}

// ExecutionPacket is the RVFI record of one retired instruction. Fields that
// come from a 32-bit core are widened with Extend32.
type ExecutionPacket struct {
	// Order is the retirement sequence number.
	Order uint64

	// PCRData is the PC of the retired instruction.
	PCRData uint64
	// PCWData is the PC of the next instruction.
	PCWData uint64

	// Insn is the retired instruction word.
	Insn uint64

	// Source operand values.
	RS1Data uint64
	RS2Data uint64

	// RDWData is the value written to RDAddr. Zero when RDAddr is zero.
	RDWData uint64

	// Memory access. All zero when the instruction does not access memory.
	MemAddr  uint64
	MemRData uint64
	MemWData uint64
	MemRMask uint8
	MemWMask uint8

	// Register ids. RDAddr is zero when no register is written.
	RS1Addr uint8
	RS2Addr uint8
	RDAddr  uint8

	// Trap is set for an invalid decode, misaligned access or misaligned
	// jump.
	Trap uint8
	// Halt is set on the synthetic packet that closes a trace.
	Halt uint8
	// Intr is set on the first instruction of a trap handler.
	Intr uint8
}

// HaltPacket returns the boundary marker sent after a reset sequence.
func HaltPacket() ExecutionPacket {
	return ExecutionPacket{Halt: 1}
}
