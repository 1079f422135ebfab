package rvfi

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortPacket is returned when a buffer does not hold exactly one record.
var ErrShortPacket = errors.New("rvfi: packet length mismatch")

// DecodeInstruction decodes one InstructionPacket from b.
func DecodeInstruction(b []byte) (InstructionPacket, error) {
	if len(b) != InstructionPacketSize {
		return InstructionPacket{}, fmt.Errorf(
			"%w: instruction packet needs %d bytes, got %d",
			ErrShortPacket, InstructionPacketSize, len(b))
	}

	return InstructionPacket{
		Insn:    binary.LittleEndian.Uint32(b[0:4]),
		Time:    binary.LittleEndian.Uint16(b[4:6]),
		Cmd:     b[6],
		Padding: b[7],
	}, nil
}

// EncodeInstruction encodes p. The bridge never sends instruction packets;
// this is the generator side of the protocol.
func EncodeInstruction(p InstructionPacket) []byte {
	b := make([]byte, InstructionPacketSize)
	binary.LittleEndian.PutUint32(b[0:4], p.Insn)
	binary.LittleEndian.PutUint16(b[4:6], p.Time)
	b[6] = p.Cmd
	b[7] = p.Padding

	return b
}

// EncodeExecution encodes p into a new 88-byte buffer.
func EncodeExecution(p ExecutionPacket) []byte {
	return AppendExecution(make([]byte, 0, ExecutionPacketSize), p)
}

// AppendExecution appends the encoding of p to dst.
func AppendExecution(dst []byte, p ExecutionPacket) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, p.Order)
	dst = binary.LittleEndian.AppendUint64(dst, p.PCRData)
	dst = binary.LittleEndian.AppendUint64(dst, p.PCWData)
	dst = binary.LittleEndian.AppendUint64(dst, p.Insn)
	dst = binary.LittleEndian.AppendUint64(dst, p.RS1Data)
	dst = binary.LittleEndian.AppendUint64(dst, p.RS2Data)
	dst = binary.LittleEndian.AppendUint64(dst, p.RDWData)
	dst = binary.LittleEndian.AppendUint64(dst, p.MemAddr)
	dst = binary.LittleEndian.AppendUint64(dst, p.MemRData)
	dst = binary.LittleEndian.AppendUint64(dst, p.MemWData)

	return append(dst,
		p.MemRMask,
		p.MemWMask,
		p.RS1Addr,
		p.RS2Addr,
		p.RDAddr,
		p.Trap,
		p.Halt,
		p.Intr,
	)
}

// DecodeExecution decodes one ExecutionPacket from b.
func DecodeExecution(b []byte) (ExecutionPacket, error) {
	if len(b) != ExecutionPacketSize {
		return ExecutionPacket{}, fmt.Errorf(
			"%w: execution packet needs %d bytes, got %d",
			ErrShortPacket, ExecutionPacketSize, len(b))
	}

	u64 := func(off int) uint64 {
		return binary.LittleEndian.Uint64(b[off : off+8])
	}

	return ExecutionPacket{
		Order:    u64(0),
		PCRData:  u64(8),
		PCWData:  u64(16),
		Insn:     u64(24),
		RS1Data:  u64(32),
		RS2Data:  u64(40),
		RDWData:  u64(48),
		MemAddr:  u64(56),
		MemRData: u64(64),
		MemWData: u64(72),
		MemRMask: b[80],
		MemWMask: b[81],
		RS1Addr:  b[82],
		RS2Addr:  b[83],
		RDAddr:   b[84],
		Trap:     b[85],
		Halt:     b[86],
		Intr:     b[87],
	}, nil
}

// DecodeExecutionStream splits b into consecutive execution packets. Trailing
// bytes that do not form a whole packet are an error.
func DecodeExecutionStream(b []byte) ([]ExecutionPacket, error) {
	if len(b)%ExecutionPacketSize != 0 {
		return nil, fmt.Errorf(
			"%w: stream of %d bytes is not a multiple of %d",
			ErrShortPacket, len(b), ExecutionPacketSize)
	}

	packets := make([]ExecutionPacket, 0, len(b)/ExecutionPacketSize)
	for off := 0; off < len(b); off += ExecutionPacketSize {
		p, err := DecodeExecution(b[off : off+ExecutionPacketSize])
		if err != nil {
			return nil, err
		}

		packets = append(packets, p)
	}

	return packets, nil
}
