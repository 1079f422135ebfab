// Package bridge connects a remote RVFI-DII test generator to a core model.
//
// The bridge receives instruction packets, feeds them to the model's fetch
// port, services the model's data accesses from an in-process memory,
// captures every retirement and returns the resulting execution trace once
// the generator asks for a reset.
//
// Usage:
//
//	b := bridge.New(conn, dut.NewAdapter(emu.NewCore()), memory)
//	err := b.Serve(ctx)
package bridge

import (
	"errors"
	"time"

	"github.com/go-logr/logr"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/diibridge/dut"
	"github.com/sarchlab/diibridge/mem"
	"github.com/sarchlab/diibridge/pipeline"
	"github.com/sarchlab/diibridge/rvfi"
	"github.com/sarchlab/diibridge/trace"
	"github.com/sarchlab/diibridge/transport"
)

// Hook positions triggered by the bridge.
var (
	// HookPosRetire is triggered for every captured retirement. The item is
	// the rvfi.ExecutionPacket.
	HookPosRetire = &sim.HookPos{Name: "Retire"}
	// HookPosReset is triggered after a reset sequence. The item is the
	// number of resets so far.
	HookPosReset = &sim.HookPos{Name: "Reset"}
	// HookPosRollback is triggered when fed instructions are discarded. The
	// item is the pipeline.Counters after the rollback and the detail is the
	// pipeline.Rollback kind.
	HookPosRollback = &sim.HookPos{Name: "Rollback"}
)

// ErrUnderflow is returned by Run when the model wants an instruction that
// has not been received yet.
var ErrUnderflow = errors.New("bridge: fetch underflow")

// Defaults.
const (
	DefaultBootAddr     = 0x80000000
	DefaultResetEdges   = 10
	DefaultPollInterval = 100 * time.Microsecond
)

// Stats holds bridge event counts.
type Stats struct {
	// Cycles is the number of clock cycles the model was advanced.
	Cycles uint64 `json:"cycles"`
	// Retired is the number of retirements captured.
	Retired uint64 `json:"retired"`
	// Flushed is the number of packets delivered, halt packets included.
	Flushed uint64 `json:"flushed"`
	// Resets is the number of completed reset sequences.
	Resets          uint64 `json:"resets"`
	TrapRollbacks   uint64 `json:"trap_rollbacks"`
	BranchRollbacks uint64 `json:"branch_rollbacks"`
	Underflows      uint64 `json:"underflows"`
	// MemFaults is the number of data accesses outside the memory window.
	MemFaults uint64 `json:"mem_faults"`
	// Received is the number of instruction packets received.
	Received uint64 `json:"received"`
}

// Snapshot is a consistent view of the bridge between two cycles.
type Snapshot struct {
	Counters pipeline.Counters `json:"counters"`
	State    string            `json:"state"`
	Stats    Stats             `json:"stats"`
	Now      sim.VTimeInSec    `json:"now"`
}

// Publisher receives a snapshot after every cycle and every reset.
type Publisher interface {
	Publish(s Snapshot)
}

// Option is a functional option for configuring the Bridge.
type Option func(*Bridge)

// WithLogger sets the logger. It is shared with the tracker and collector.
func WithLogger(log logr.Logger) Option {
	return func(b *Bridge) {
		b.log = log
	}
}

// WithBootAddr sets the address the model starts fetching from after reset.
func WithBootAddr(addr uint64) Option {
	return func(b *Bridge) {
		b.bootAddr = addr
	}
}

// WithResetEdges sets the number of clock edges in a reset pulse.
func WithResetEdges(n int) Option {
	return func(b *Bridge) {
		b.resetEdges = n
	}
}

// WithExtendMode selects how 32-bit RVFI values are widened.
func WithExtendMode(mode rvfi.ExtendMode) Option {
	return func(b *Bridge) {
		b.extend = mode
	}
}

// WithChunkSize sets the number of packets per trace send.
func WithChunkSize(n int) Option {
	return func(b *Bridge) {
		b.chunkSize = n
	}
}

// WithPollInterval sets the wait between receive attempts. Non-positive
// values keep the default.
func WithPollInterval(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.pollInterval = d
		}
	}
}

// WithStreaming starts stepping as soon as packets are available instead
// of waiting for a complete trace.
func WithStreaming(streaming bool) Option {
	return func(b *Bridge) {
		b.streaming = streaming
	}
}

// WithPublisher sets where snapshots are published.
func WithPublisher(p Publisher) Option {
	return func(b *Bridge) {
		b.publisher = p
	}
}

// Bridge owns the model adapter, the memory, the pipeline tracker and the
// trace collector. It is not safe for concurrent use.
type Bridge struct {
	*sim.HookableBase

	conn      transport.Conn
	adapter   *dut.Adapter
	memory    *mem.Memory
	tracker   *pipeline.Tracker
	collector *trace.Collector

	bootAddr     uint64
	resetEdges   int
	extend       rvfi.ExtendMode
	chunkSize    int
	pollInterval time.Duration
	streaming    bool
	publisher    Publisher

	// observed is set once the current cycle's outputs were consumed by
	// the tracker, so a retried Step does not count them twice.
	observed bool
	frame    []byte

	stats Stats
	log   logr.Logger
}

// New creates a bridge and brings the model out of power-on reset.
func New(
	conn transport.Conn,
	adapter *dut.Adapter,
	memory *mem.Memory,
	opts ...Option,
) *Bridge {
	b := &Bridge{
		HookableBase: sim.NewHookableBase(),
		conn:         conn,
		adapter:      adapter,
		memory:       memory,
		bootAddr:     DefaultBootAddr,
		resetEdges:   DefaultResetEdges,
		extend:       rvfi.ExtendSign,
		chunkSize:    trace.DefaultChunkSize,
		pollInterval: DefaultPollInterval,
		frame:        make([]byte, rvfi.InstructionPacketSize+1),
		log:          logr.Discard(),
	}

	for _, opt := range opts {
		opt(b)
	}

	b.tracker = pipeline.NewTracker(pipeline.WithLogger(b.log))
	b.collector = trace.NewCollector(
		trace.WithChunkSize(b.chunkSize),
		trace.WithLogger(b.log),
	)

	b.adapter.Boot(b.bootAddr)
	b.adapter.PulseReset(b.resetEdges)

	return b
}

// Adapter returns the model adapter.
func (b *Bridge) Adapter() *dut.Adapter {
	return b.adapter
}

// Memory returns the data memory.
func (b *Bridge) Memory() *mem.Memory {
	return b.memory
}

// Tracker returns the pipeline tracker.
func (b *Bridge) Tracker() *pipeline.Tracker {
	return b.tracker
}

// Collector returns the trace collector.
func (b *Bridge) Collector() *trace.Collector {
	return b.collector
}

// CurrentTime returns the simulated time of the model.
func (b *Bridge) CurrentTime() sim.VTimeInSec {
	return b.adapter.CurrentTime()
}

// Stats returns the event counts since creation.
func (b *Bridge) Stats() Stats {
	return b.stats
}

// Snapshot returns the current counters, state and statistics.
func (b *Bridge) Snapshot() Snapshot {
	return Snapshot{
		Counters: b.tracker.Counters(),
		State:    b.tracker.State().String(),
		Stats:    b.stats,
		Now:      b.adapter.CurrentTime(),
	}
}

func (b *Bridge) publish() {
	if b.publisher != nil {
		b.publisher.Publish(b.Snapshot())
	}
}
