// Package emu provides a behavioural RV32I core that speaks the Ibex port
// protocol, so the bridge can run without an external simulator.
package emu

// RegFile represents the RV32I register file.
type RegFile struct {
	// X holds general-purpose registers x0-x31.
	// X[0] is hardwired to zero.
	X [32]uint32

	// PC is the address of the next instruction to execute.
	PC uint32
}

// ReadReg reads a register value. Register 0 always returns 0.
func (r *RegFile) ReadReg(reg uint8) uint32 {
	if reg == 0 || reg >= 32 {
		return 0
	}
	return r.X[reg]
}

// WriteReg writes a value to a register. Writes to x0 are ignored.
func (r *RegFile) WriteReg(reg uint8, value uint32) {
	if reg == 0 || reg >= 32 {
		return
	}
	r.X[reg] = value
}

// Reset clears every register and sets the PC.
func (r *RegFile) Reset(pc uint32) {
	*r = RegFile{PC: pc}
}
