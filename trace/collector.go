// Package trace turns RVFI retirement outputs into execution packets and
// delivers them to the remote side in order.
package trace

import (
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/sarchlab/diibridge/dut"
	"github.com/sarchlab/diibridge/rvfi"
)

// DefaultChunkSize is the number of packets sent per transport call.
const DefaultChunkSize = 50

// Sender is the send half of a transport.
type Sender interface {
	// Send transmits all of buf or returns false.
	Send(buf []byte) bool
	// Err returns the error that makes further sends pointless, or nil.
	Err() error
}

// Capture builds an execution packet from the RVFI outputs of r. Halt
// reflects whether the active-low reset input is asserted.
func Capture(r dut.Reader, mode rvfi.ExtendMode) rvfi.ExecutionPacket {
	ext := func(p dut.Port) uint64 {
		return rvfi.Extend32(uint32(r.Output(p)), mode)
	}
	u8 := func(p dut.Port) uint8 {
		return uint8(r.Output(p))
	}

	p := rvfi.ExecutionPacket{
		Order:    r.Output(dut.RVFIOrder),
		PCRData:  ext(dut.RVFIPCRData),
		PCWData:  ext(dut.RVFIPCWData),
		Insn:     ext(dut.RVFIInsn),
		RS1Data:  ext(dut.RVFIRS1RData),
		RS2Data:  ext(dut.RVFIRS2RData),
		RDWData:  ext(dut.RVFIRDWData),
		MemAddr:  ext(dut.RVFIMemAddr),
		MemRData: ext(dut.RVFIMemRData),
		MemWData: ext(dut.RVFIMemWData),
		MemRMask: u8(dut.RVFIMemRMask),
		MemWMask: u8(dut.RVFIMemWMask),
		RS1Addr:  u8(dut.RVFIRS1Addr),
		RS2Addr:  u8(dut.RVFIRS2Addr),
		RDAddr:   u8(dut.RVFIRDAddr),
		Trap:     u8(dut.RVFITrap),
		Intr:     u8(dut.RVFIIntr),
		Halt:     uint8(^r.Input(dut.RstN) & 1),
	}

	if p.RDAddr == 0 {
		p.RDWData = 0
	}

	return p
}

// CollectorOption is a functional option for configuring the Collector.
type CollectorOption func(*Collector)

// WithChunkSize sets the maximum number of packets per transport call.
func WithChunkSize(n int) CollectorOption {
	return func(c *Collector) {
		if n <= 0 {
			panic(fmt.Sprintf("invalid chunk size %d", n))
		}

		c.chunkSize = n
	}
}

// WithRetryDelay sets the pause between refused sends.
func WithRetryDelay(d time.Duration) CollectorOption {
	return func(c *Collector) {
		c.retryDelay = d
	}
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) CollectorOption {
	return func(c *Collector) {
		c.log = log
	}
}

// Statistics holds delivery counts.
type Statistics struct {
	// Captured counts packets appended.
	Captured uint64
	// Sent counts packets delivered.
	Sent uint64
	// Chunks counts successful transport calls.
	Chunks uint64
	// Retries counts refused transport calls.
	Retries uint64
}

// Collector buffers execution packets in retirement order and flushes them
// in chunks.
type Collector struct {
	buffer     []rvfi.ExecutionPacket
	encoded    []byte
	chunkSize  int
	retryDelay time.Duration
	stats      Statistics
	log        logr.Logger
}

// NewCollector creates an empty collector.
func NewCollector(opts ...CollectorOption) *Collector {
	c := &Collector{
		chunkSize: DefaultChunkSize,
		log:       logr.Discard(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.encoded = make([]byte, 0, c.chunkSize*rvfi.ExecutionPacketSize)

	return c
}

// Append buffers p behind every packet appended before it.
func (c *Collector) Append(p rvfi.ExecutionPacket) {
	c.buffer = append(c.buffer, p)
	c.stats.Captured++
}

// Len returns the number of buffered packets.
func (c *Collector) Len() int {
	return len(c.buffer)
}

// Pending returns a copy of the buffered packets.
func (c *Collector) Pending() []rvfi.ExecutionPacket {
	return append([]rvfi.ExecutionPacket(nil), c.buffer...)
}

// Stats returns the delivery counts.
func (c *Collector) Stats() Statistics {
	return c.stats
}

// Flush sends every buffered packet in order, at most chunkSize packets per
// Send. A refused chunk is retried until accepted. If the sender reports a
// fatal error, the packets not yet delivered stay buffered and the error is
// returned.
func (c *Collector) Flush(s Sender) error {
	sent := 0
	defer func() {
		c.buffer = c.buffer[:copy(c.buffer, c.buffer[sent:])]
	}()

	for sent < len(c.buffer) {
		end := min(sent+c.chunkSize, len(c.buffer))

		c.encoded = c.encoded[:0]
		for _, p := range c.buffer[sent:end] {
			c.encoded = rvfi.AppendExecution(c.encoded, p)
		}

		if err := c.send(s, c.encoded); err != nil {
			return fmt.Errorf("failed to flush %d trace packets: %w",
				len(c.buffer)-sent, err)
		}

		c.stats.Chunks++
		c.stats.Sent += uint64(end - sent)
		sent = end
	}

	if sent > 0 {
		c.log.V(1).Info("trace flushed", "packets", sent)
	}

	return nil
}

func (c *Collector) send(s Sender, buf []byte) error {
	for !s.Send(buf) {
		if err := s.Err(); err != nil {
			return err
		}

		c.stats.Retries++
		if c.retryDelay > 0 {
			time.Sleep(c.retryDelay)
		}
	}

	return nil
}
