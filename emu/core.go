package emu

import (
	"github.com/go-logr/logr"

	"github.com/sarchlab/diibridge/dut"
	"github.com/sarchlab/diibridge/insts"
)

var _ dut.Model = (*Core)(nil)

// Statistics holds core event counts.
type Statistics struct {
	Retired       uint64
	Traps         uint64
	Jumps         uint64
	TakenBranches uint64
	Loads         uint64
	Stores        uint64
	// Dropped counts fetch responses discarded after a redirect or trap.
	Dropped uint64
	Resets  uint64
}

// record is one RVFI retirement.
type record struct {
	valid bool
	order uint64
	insn  uint32
	trap  bool
	intr  bool

	rs1Addr, rs2Addr, rdAddr    uint8
	rs1RData, rs2RData, rdWData uint32

	pcRData, pcWData uint32

	memAddr            uint32
	memRMask, memWMask uint8
	memRData, memWData uint32
}

// outputs are the registered output ports. They change only on a rising
// clock edge or during reset.
type outputs struct {
	instrGnt  bool
	instrAddr uint32

	dataGnt   bool
	dataAddr  uint32
	dataWE    bool
	dataBE    uint8
	dataWData uint32

	jump    bool
	tbranch bool

	rvfi record
}

// memOp is a load or store waiting for its bus response.
type memOp struct {
	inst   *insts.Instruction
	access MemAccess
	rec    record
}

// CoreOption is a functional option for configuring the Core.
type CoreOption func(*Core)

// WithLogger sets the logger.
func WithLogger(log logr.Logger) CoreOption {
	return func(c *Core) {
		c.log = log
	}
}

// Core is a two-stage in-order RV32I core. Instructions arrive through the
// fetch port into a one-entry buffer, execute on the next rising edge and
// are reported on the RVFI ports one edge after execution. Loads and
// stores stall execution until their bus response arrives.
//
// A taken branch or jump discards the fetch response latched on the edge
// it executes. A trap discards the buffered instruction and every fetch
// response up to and including the edge its record is published.
type Core struct {
	regFile    *RegFile
	decoder    *insts.Decoder
	alu        *ALU
	lsu        *LoadStoreUnit
	branchUnit *BranchUnit

	inputs  map[dut.Port]uint64
	prevClk uint64
	inReset bool

	edge       uint64
	trapVector uint32

	fetchOutstanding bool
	buffered         bool
	bufferedWord     uint32
	redirected       bool
	flushUntil       uint64

	memWait *memOp
	pending record
	order   uint64

	intrNext bool

	out   outputs
	stats Statistics
	log   logr.Logger
}

// NewCore creates a core held in reset until rst_ni is driven high.
func NewCore(opts ...CoreOption) *Core {
	regFile := &RegFile{}

	c := &Core{
		regFile:    regFile,
		decoder:    insts.NewDecoder(),
		alu:        NewALU(regFile),
		lsu:        NewLoadStoreUnit(regFile),
		branchUnit: NewBranchUnit(regFile),
		inputs:     make(map[dut.Port]uint64),
		log:        logr.Discard(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// RegFile returns the core's register file.
func (c *Core) RegFile() *RegFile {
	return c.regFile
}

// Stats returns the event counts since creation.
func (c *Core) Stats() Statistics {
	return c.stats
}

// SetInput drives an input port.
func (c *Core) SetInput(port dut.Port, value uint64) {
	c.inputs[port] = value
}

// Eval settles the core against the current inputs. State advances only on
// a rising clock edge. While rst_ni is low the core is held in reset.
func (c *Core) Eval() {
	clk := c.inputs[dut.Clk] & 1
	rising := c.prevClk == 0 && clk == 1
	c.prevClk = clk

	if c.inputs[dut.RstN]&1 == 0 {
		c.reset()
		return
	}

	c.inReset = false

	if rising {
		c.posedge()
	}
}

// Output reads an output port. Unknown ports read as zero.
func (c *Core) Output(port dut.Port) uint64 {
	o := &c.out
	r := &o.rvfi

	switch port {
	case dut.InstrGnt:
		return b2u(o.instrGnt)
	case dut.InstrAddr:
		return uint64(o.instrAddr)
	case dut.DataGnt:
		return b2u(o.dataGnt)
	case dut.DataAddr:
		return uint64(o.dataAddr)
	case dut.DataWE:
		return b2u(o.dataWE)
	case dut.DataBE:
		return uint64(o.dataBE)
	case dut.DataWData:
		return uint64(o.dataWData)
	case dut.PerfJump:
		return b2u(o.jump)
	case dut.PerfTBranch:
		return b2u(o.tbranch)
	case dut.RVFIValid:
		return b2u(r.valid)
	case dut.RVFIOrder:
		return r.order
	case dut.RVFIInsn:
		return uint64(r.insn)
	case dut.RVFITrap:
		return b2u(r.trap)
	case dut.RVFIIntr:
		return b2u(r.intr)
	case dut.RVFIRS1Addr:
		return uint64(r.rs1Addr)
	case dut.RVFIRS2Addr:
		return uint64(r.rs2Addr)
	case dut.RVFIRS1RData:
		return uint64(r.rs1RData)
	case dut.RVFIRS2RData:
		return uint64(r.rs2RData)
	case dut.RVFIRDAddr:
		return uint64(r.rdAddr)
	case dut.RVFIRDWData:
		return uint64(r.rdWData)
	case dut.RVFIPCRData:
		return uint64(r.pcRData)
	case dut.RVFIPCWData:
		return uint64(r.pcWData)
	case dut.RVFIMemAddr:
		return uint64(r.memAddr)
	case dut.RVFIMemRMask:
		return uint64(r.memRMask)
	case dut.RVFIMemWMask:
		return uint64(r.memWMask)
	case dut.RVFIMemRData:
		return uint64(r.memRData)
	case dut.RVFIMemWData:
		return uint64(r.memWData)
	default:
		return 0
	}
}

func (c *Core) reset() {
	if !c.inReset {
		c.stats.Resets++
		c.log.V(1).Info("core reset", "boot_addr", c.inputs[dut.BootAddr])
	}

	c.inReset = true

	bootAddr := uint32(c.inputs[dut.BootAddr])
	c.regFile.Reset(bootAddr)
	c.trapVector = bootAddr
	c.edge = 0
	c.fetchOutstanding = false
	c.buffered = false
	c.bufferedWord = 0
	c.redirected = false
	c.flushUntil = 0
	c.memWait = nil
	c.pending = record{}
	c.order = 0
	c.intrNext = false
	c.out = outputs{}
}

func (c *Core) posedge() {
	c.edge++
	c.redirected = false

	// Everything registered on the previous edge expires; the record
	// produced then becomes visible now.
	c.out = outputs{rvfi: c.pending}
	c.pending = record{}

	if c.out.rvfi.valid {
		c.stats.Retired++
		c.log.V(2).Info("retire",
			"order", c.out.rvfi.order,
			"pc", c.out.rvfi.pcRData,
			"insn", c.out.rvfi.insn,
			"trap", c.out.rvfi.trap)
	}

	busy := c.completeMemory()

	if !busy && c.memWait == nil && c.buffered {
		c.buffered = false
		c.execute(c.bufferedWord)
	}

	c.acceptFetch()

	c.out.instrAddr = c.regFile.PC
	if c.canFetch() {
		c.fetchOutstanding = true
		c.out.instrGnt = true
	}
}

// completeMemory consumes the bus response for an outstanding load or
// store. It reports whether a response was consumed on this edge.
func (c *Core) completeMemory() bool {
	if c.memWait == nil || c.inputs[dut.DataRValid]&1 == 0 {
		return false
	}

	op := c.memWait
	c.memWait = nil

	if c.inputs[dut.DataErr]&1 != 0 {
		c.trap(op.rec)
		return true
	}

	rec := op.rec
	if op.access.Write {
		rec.memWMask = op.access.BE
		rec.memWData = op.access.WData
		c.stats.Stores++
	} else {
		rdata := uint32(c.inputs[dut.DataRData])
		rec.memRMask = op.access.BE
		rec.memRData = rdata
		c.writeRd(&rec, op.inst, c.lsu.Extract(op.inst, op.access, rdata))
		c.stats.Loads++
	}

	rec.memAddr = op.access.Addr
	c.commit(rec)

	return true
}

func (c *Core) acceptFetch() {
	if c.inputs[dut.InstrRValid]&1 == 0 {
		return
	}

	c.fetchOutstanding = false

	if c.redirected || c.edge <= c.flushUntil || c.buffered {
		c.stats.Dropped++
		return
	}

	c.buffered = true
	c.bufferedWord = uint32(c.inputs[dut.InstrRData])
}

// canFetch reports whether a new fetch can be accepted: the buffered
// instruction, if any, must be able to execute on the next edge.
func (c *Core) canFetch() bool {
	if c.inputs[dut.FetchEnable]&1 == 0 || c.fetchOutstanding {
		return false
	}

	return !c.buffered || c.memWait == nil
}

func (c *Core) execute(word uint32) {
	inst := c.decoder.Decode(word)
	pc := c.regFile.PC

	rec := record{
		valid:   true,
		insn:    word,
		pcRData: pc,
		pcWData: pc + 4,
	}

	if inst.Op == insts.OpUnknown {
		c.log.V(1).Info("illegal instruction", "pc", pc, "insn", word)
		c.trap(rec)

		return
	}

	c.readSources(&rec, inst)

	switch {
	case inst.IsLoad() || inst.IsStore():
		c.issueMemory(rec, inst)
	case inst.IsJump() || inst.IsBranch():
		c.executeControl(rec, inst, pc)
	case inst.Op == insts.OpFENCE:
		c.regFile.PC = pc + 4
		c.commit(rec)
	default:
		c.writeRd(&rec, inst, c.alu.Execute(inst, pc))
		c.regFile.PC = pc + 4
		c.commit(rec)
	}
}

func (c *Core) executeControl(rec record, inst *insts.Instruction, pc uint32) {
	link := pc + 4
	taken, target := c.branchUnit.Resolve(inst, pc)

	if !taken {
		c.regFile.PC = pc + 4
		c.commit(rec)

		return
	}

	if target&3 != 0 {
		c.log.V(1).Info("misaligned jump target", "pc", pc, "target", target)
		c.trap(rec)

		return
	}

	if inst.IsJump() {
		c.writeRd(&rec, inst, link)
		c.out.jump = true
		c.stats.Jumps++
	} else {
		c.out.tbranch = true
		c.stats.TakenBranches++
	}

	rec.pcWData = target
	c.regFile.PC = target
	c.redirected = true
	c.commit(rec)
}

func (c *Core) issueMemory(rec record, inst *insts.Instruction) {
	access, ok := c.lsu.Request(inst)
	if !ok {
		c.log.V(1).Info("misaligned access", "pc", rec.pcRData, "insn", rec.insn)
		c.trap(rec)

		return
	}

	c.regFile.PC = rec.pcRData + 4
	c.memWait = &memOp{inst: inst, access: access, rec: rec}

	c.out.dataGnt = true
	c.out.dataAddr = access.Addr
	c.out.dataWE = access.Write
	c.out.dataBE = access.BE
	c.out.dataWData = access.WData
}

func (c *Core) readSources(rec *record, inst *insts.Instruction) {
	switch inst.Format {
	case insts.FormatR, insts.FormatS, insts.FormatB:
		rec.rs1Addr = inst.Rs1
		rec.rs2Addr = inst.Rs2
	case insts.FormatI:
		if inst.Op != insts.OpFENCE {
			rec.rs1Addr = inst.Rs1
		}
	}

	rec.rs1RData = c.regFile.ReadReg(rec.rs1Addr)
	rec.rs2RData = c.regFile.ReadReg(rec.rs2Addr)
}

func (c *Core) writeRd(rec *record, inst *insts.Instruction, value uint32) {
	if !inst.WritesRd() || inst.Rd == 0 {
		return
	}

	c.regFile.WriteReg(inst.Rd, value)
	rec.rdAddr = inst.Rd
	rec.rdWData = value
}

// trap turns rec into a trap record, redirects to the trap vector and
// discards everything fetched until the record is published.
func (c *Core) trap(rec record) {
	rec.trap = true
	rec.rdAddr = 0
	rec.rdWData = 0
	rec.pcWData = c.trapVector

	c.regFile.PC = c.trapVector
	c.buffered = false
	c.flushUntil = c.edge + 1
	c.stats.Traps++

	c.commit(rec)
	c.intrNext = true
}

// commit schedules rec for publication on the next edge.
func (c *Core) commit(rec record) {
	rec.valid = true
	rec.order = c.order
	rec.intr = c.intrNext

	c.order++
	c.intrNext = false
	c.pending = rec
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}

	return 0
}
