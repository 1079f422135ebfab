package pipeline

import (
	"github.com/go-logr/logr"

	"github.com/sarchlab/diibridge/dut"
	"github.com/sarchlab/diibridge/rvfi"
)

// State is the coarse state of the instruction pipeline.
type State int

// Pipeline states.
const (
	// StateIdle means no instruction is waiting to be fed.
	StateIdle State = iota
	// StateFeeding means at least one received instruction has not been
	// presented yet.
	StateFeeding
	// StateDraining means instructions are in flight but none is left to
	// feed.
	StateDraining
	// StateResetting means a reset sequence is in progress.
	StateResetting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFeeding:
		return "feeding"
	case StateDraining:
		return "draining"
	case StateResetting:
		return "resetting"
	default:
		return "unknown"
	}
}

// Rollback tells why the feed position was moved back.
type Rollback uint8

// Rollback kinds.
const (
	RollbackNone Rollback = iota
	// RollbackTrap discards every instruction after the trapped one.
	RollbackTrap
	// RollbackBranch keeps only the instruction after the branch in
	// flight.
	RollbackBranch
)

func (r Rollback) String() string {
	switch r {
	case RollbackNone:
		return "none"
	case RollbackTrap:
		return "trap"
	case RollbackBranch:
		return "branch"
	default:
		return "unknown"
	}
}

// Counters is a snapshot of the pipeline counters. Between steps
// 0 <= Out <= In <= Received holds.
type Counters struct {
	// Received is the number of packets ingested in this trace.
	Received int
	// In is the number of instructions presented to the fetch port, minus
	// those discarded by rollback.
	In int
	// Out is the number of retirements observed.
	Out int
}

// MemRequest is a data access latched from the model.
type MemRequest struct {
	Addr  uint64
	WData uint32
	BE    uint8
	Write bool
}

// Decision is what the bridge must drive before the next cycle.
type Decision struct {
	// Reset is set when the trace is complete and the pipeline is empty.
	// No other field is meaningful when it is set.
	Reset bool

	// Fetch is set when Insn must be presented on the fetch-data port.
	Fetch bool
	Insn  rvfi.InstructionPacket

	// Stall is set when a fetch is pending but only the reset marker is
	// left. The model keeps cycling so the pipeline can drain.
	Stall bool

	// Underflow is set when a fetch is pending and more packets are still
	// expected. The model must not be cycled until more arrive.
	Underflow bool

	// Mem is set when MemRequest must be serviced this cycle.
	Mem        bool
	MemRequest MemRequest
}

// Statistics holds tracker event counts.
type Statistics struct {
	Fetched         uint64
	Retired         uint64
	TrapRollbacks   uint64
	BranchRollbacks uint64
	Stalls          uint64
	Underflows      uint64
	MemRequests     uint64
}

// TrackerOption is a functional option for configuring the Tracker.
type TrackerOption func(*Tracker)

// WithLogger sets the logger.
func WithLogger(log logr.Logger) TrackerOption {
	return func(t *Tracker) {
		t.log = log
	}
}

// Tracker decides, once per cycle, which instruction to feed, whether
// speculatively fed instructions must be replayed, and when to reset.
//
// Grants are sampled one cycle late: a grant observed after cycle N is
// serviced by the inputs driven for cycle N+1.
type Tracker struct {
	queue *Queue
	in    int
	out   int

	resetting bool

	fetchPending bool
	memPending   bool
	memRequest   MemRequest

	stats Statistics
	log   logr.Logger
}

// NewTracker creates an empty tracker.
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		queue: NewQueue(),
		log:   logr.Discard(),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Queue returns the instruction queue.
func (t *Tracker) Queue() *Queue {
	return t.queue
}

// Push ingests a received packet.
func (t *Tracker) Push(p rvfi.InstructionPacket) {
	t.queue.Push(p)
	t.log.V(2).Info("instruction received",
		"index", t.queue.Len()-1, "insn", p.Insn, "cmd", p.Cmd)
}

// Counters returns the current counters.
func (t *Tracker) Counters() Counters {
	return Counters{
		Received: t.queue.Len(),
		In:       t.in,
		Out:      t.out,
	}
}

// Stats returns the event counts since creation.
func (t *Tracker) Stats() Statistics {
	return t.stats
}

// State derives the pipeline state from the counters.
func (t *Tracker) State() State {
	switch {
	case t.resetting:
		return StateResetting
	case t.hasInstruction():
		return StateFeeding
	case t.out < t.in:
		return StateDraining
	default:
		return StateIdle
	}
}

// FetchPending reports whether a fetch grant is waiting for an instruction.
func (t *Tracker) FetchPending() bool {
	return t.fetchPending
}

// Observe records what the model did in the cycle just evaluated: a
// retirement, a trap or a committed control-flow change, and the requests to
// service next cycle. It must be called exactly once per model cycle.
func (t *Tracker) Observe(req dut.Requests) Rollback {
	if req.Retired {
		t.out++
		t.stats.Retired++

		if t.out > t.in {
			t.log.Info("retirement without a matching fetch",
				"in", t.in, "out", t.out)
			t.in = t.out
		}
	}

	rollback := t.rollback(req)

	if req.InstrGnt {
		t.fetchPending = true
	}

	if req.DataGnt {
		t.memPending = true
		t.memRequest = MemRequest{
			Addr:  req.DataAddr,
			WData: req.DataWData,
			BE:    req.DataBE,
			Write: req.DataWE,
		}
	}

	return rollback
}

func (t *Tracker) rollback(req dut.Requests) Rollback {
	switch {
	case req.Retired && req.Trap:
		t.in = t.out
		t.stats.TrapRollbacks++
		t.log.V(1).Info("rollback on trap", "in", t.in, "out", t.out)

		return RollbackTrap
	case req.Jump || req.TakenBranch:
		t.in = min(t.out+1, t.queue.Len())
		t.stats.BranchRollbacks++
		t.log.V(1).Info("rollback on control flow", "in", t.in, "out", t.out)

		return RollbackBranch
	default:
		return RollbackNone
	}
}

// Next decides what to drive for the coming cycle. It may be called again
// after an underflow without a model cycle in between; nothing is consumed
// when Underflow is returned.
func (t *Tracker) Next() Decision {
	if t.resetDue() {
		t.resetting = true
		t.log.V(1).Info("reset marker reached", "received", t.queue.Len())

		return Decision{Reset: true}
	}

	var d Decision

	if t.fetchPending {
		switch {
		case t.hasInstruction():
			d.Fetch = true
			d.Insn = t.queue.At(t.in)
			t.in++
			t.fetchPending = false
			t.stats.Fetched++
		case t.queue.EndsWithReset():
			d.Stall = true
			t.stats.Stalls++
		default:
			t.stats.Underflows++
			t.log.V(1).Info("fetch underflow", "in", t.in, "received", t.queue.Len())

			return Decision{Underflow: true}
		}
	}

	if t.memPending {
		d.Mem = true
		d.MemRequest = t.memRequest
		t.memPending = false
		t.stats.MemRequests++
	}

	return d
}

// Reset clears the queue, the counters and every latched request.
func (t *Tracker) Reset() {
	t.queue.Clear()
	t.in = 0
	t.out = 0
	t.resetting = false
	t.fetchPending = false
	t.memPending = false
	t.memRequest = MemRequest{}
}

func (t *Tracker) resetDue() bool {
	n := t.queue.Len()
	return n > 0 &&
		t.out == t.in &&
		t.in == n-1 &&
		t.queue.At(t.in).IsReset()
}

func (t *Tracker) hasInstruction() bool {
	return t.in < t.queue.Len() && !t.queue.At(t.in).IsReset()
}
