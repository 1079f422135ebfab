package dut

import (
	"github.com/go-logr/logr"
	"github.com/sarchlab/akita/v4/sim"
)

// HookPosClockEdge is triggered after every evaluated sub-phase. The hook
// item is a ClockEdge.
var HookPosClockEdge = &sim.HookPos{Name: "ClockEdge"}

// SubPhase identifies one of the four evaluations that make up a cycle.
type SubPhase uint8

// Sub-phases of one clock cycle, in order.
const (
	PhaseLowSettle SubPhase = iota
	PhaseRise
	PhaseHighSettle
	PhaseFall
	// PhaseReset marks the edges of a reset pulse.
	PhaseReset
)

// PhasesPerCycle is the number of sub-phases in one clock cycle.
const PhasesPerCycle = 4

// ClockEdge describes one evaluated sub-phase.
type ClockEdge struct {
	// Tick is the number of sub-phases evaluated so far, including this
	// one.
	Tick uint64
	// Phase is the sub-phase just evaluated.
	Phase SubPhase
	// Clk is the clock level during the evaluation.
	Clk uint64
	// Time is the simulated time of the evaluation.
	Time sim.VTimeInSec
}

// Requests is what the model asked of the bridge in the current cycle.
type Requests struct {
	// InstrGnt is set when the model accepted an instruction fetch.
	InstrGnt bool

	// DataGnt is set when the model issued a data access. The other data
	// fields are only meaningful when it is set.
	DataGnt   bool
	DataAddr  uint64
	DataWData uint32
	DataBE    uint8
	DataWE    bool

	// Jump and TakenBranch report committed control-flow changes.
	Jump        bool
	TakenBranch bool

	// Retired is set when an RVFI record is valid this cycle.
	Retired bool
	// Trap is the trap flag of the retired record.
	Trap bool
}

// AdapterOption is a functional option for configuring the Adapter.
type AdapterOption func(*Adapter)

// WithFreq sets the clock frequency used to convert ticks to time.
func WithFreq(freq sim.Freq) AdapterOption {
	return func(a *Adapter) {
		a.freq = freq
	}
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) AdapterOption {
	return func(a *Adapter) {
		a.log = log
	}
}

// Adapter drives a Model: it owns the clock, the simulated time and the
// input values, and translates bridge decisions into port writes.
type Adapter struct {
	*sim.HookableBase

	model  Model
	inputs map[Port]uint64
	freq   sim.Freq
	log    logr.Logger

	// ticks counts evaluated sub-phases and reset edges. It is the only
	// notion of simulated time.
	ticks uint64
}

// NewAdapter wraps model. The clock starts low and reset is deasserted.
func NewAdapter(model Model, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		HookableBase: sim.NewHookableBase(),
		model:        model,
		inputs:       make(map[Port]uint64),
		freq:         100 * sim.MHz,
		log:          logr.Discard(),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Model returns the wrapped model.
func (a *Adapter) Model() Model {
	return a.model
}

// SetInput drives an input port and remembers the value.
func (a *Adapter) SetInput(port Port, value uint64) {
	a.inputs[port] = value
	a.model.SetInput(port, value)
}

// Input returns the value last driven on port.
func (a *Adapter) Input(port Port) uint64 {
	return a.inputs[port]
}

// Output reads an output port.
func (a *Adapter) Output(port Port) uint64 {
	return a.model.Output(port)
}

// Ticks returns the number of sub-phases evaluated so far.
func (a *Adapter) Ticks() uint64 {
	return a.ticks
}

// Cycles returns the number of complete clock cycles.
func (a *Adapter) Cycles() uint64 {
	return a.ticks / PhasesPerCycle
}

// CurrentTime returns the simulated time.
func (a *Adapter) CurrentTime() sim.VTimeInSec {
	return sim.VTimeInSec(float64(a.ticks) / PhasesPerCycle / float64(a.freq))
}

// Boot drives the power-on input values: clock low, reset released, fetch
// enabled, boot address set and no pending responses.
func (a *Adapter) Boot(bootAddr uint64) {
	a.SetInput(Clk, 0)
	a.SetInput(RstN, 1)
	a.SetInput(TestEn, 1)
	a.SetInput(FetchEnable, 1)
	a.SetInput(BootAddr, bootAddr)
	a.ClearResponses()
	a.model.Eval()
}

// ClearResponses deasserts every response input.
func (a *Adapter) ClearResponses() {
	a.NoInstruction()
	a.SetInput(InstrErr, 0)
	a.NoData()
}

// PresentInstruction drives an instruction onto the fetch-data port for the
// coming cycle.
func (a *Adapter) PresentInstruction(insn uint32) {
	a.SetInput(InstrRValid, 1)
	a.SetInput(InstrRData, uint64(insn))
}

// NoInstruction deasserts the fetch-data port.
func (a *Adapter) NoInstruction() {
	a.SetInput(InstrRValid, 0)
	a.SetInput(InstrRData, 0)
}

// PresentData drives a data response for the coming cycle. A set errFlag
// reports an access error to the model.
func (a *Adapter) PresentData(rdata uint32, errFlag bool) {
	a.SetInput(DataRValid, 1)
	a.SetInput(DataRData, uint64(rdata))
	a.SetInput(DataErr, boolToPort(errFlag))
}

// NoData deasserts the data response port.
func (a *Adapter) NoData() {
	a.SetInput(DataRValid, 0)
	a.SetInput(DataRData, 0)
	a.SetInput(DataErr, 0)
}

// Requests samples the request side of the model after the last Eval.
func (a *Adapter) Requests() Requests {
	return Requests{
		InstrGnt:    a.Output(InstrGnt) != 0,
		DataGnt:     a.Output(DataGnt) != 0,
		DataAddr:    a.Output(DataAddr),
		DataWData:   uint32(a.Output(DataWData)),
		DataBE:      uint8(a.Output(DataBE) & 0xF),
		DataWE:      a.Output(DataWE) != 0,
		Jump:        a.Output(PerfJump) != 0,
		TakenBranch: a.Output(PerfTBranch) != 0,
		Retired:     a.Output(RVFIValid) != 0,
		Trap:        a.Output(RVFITrap) != 0,
	}
}

// Cycle advances the model by one clock cycle: settle low, rising edge,
// settle high, falling edge.
func (a *Adapter) Cycle() {
	a.evalPhase(PhaseLowSettle, 0)
	a.evalPhase(PhaseRise, 1)
	a.evalPhase(PhaseHighSettle, 1)
	a.evalPhase(PhaseFall, 0)
}

// PulseReset asserts the active-low reset, toggles the clock for the given
// number of edges while evaluating the model, then releases reset.
func (a *Adapter) PulseReset(edges int) {
	a.log.V(2).Info("reset pulse", "edges", edges)

	a.SetInput(RstN, 0)

	clk := a.inputs[Clk]
	for i := 0; i < edges; i++ {
		clk ^= 1
		a.evalPhase(PhaseReset, clk)
	}

	a.SetInput(RstN, 1)
	a.model.Eval()
}

func (a *Adapter) evalPhase(phase SubPhase, clk uint64) {
	a.SetInput(Clk, clk)
	a.model.Eval()
	a.ticks++

	a.InvokeHook(sim.HookCtx{
		Domain: a,
		Pos:    HookPosClockEdge,
		Item: ClockEdge{
			Tick:  a.ticks,
			Phase: phase,
			Clk:   clk,
			Time:  a.CurrentTime(),
		},
	})
}

func boolToPort(b bool) uint64 {
	if b {
		return 1
	}

	return 0
}
