package bridge

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/diibridge/rvfi"
)

// reset ends the current trace. The model is pulsed into reset, the trace
// is closed with a halt packet and delivered, and every piece of per-trace
// state returns to its power-on value.
func (b *Bridge) reset() error {
	b.adapter.PulseReset(b.resetEdges)

	b.collector.Append(rvfi.HaltPacket())
	err := b.collector.Flush(b.conn)
	b.stats.Flushed = b.collector.Stats().Sent

	b.tracker.Reset()
	b.memory.Reset()
	b.adapter.Boot(b.bootAddr)

	b.stats.Resets++
	b.log.V(1).Info("reset",
		"count", b.stats.Resets,
		"flushed", b.stats.Flushed,
		"time", b.adapter.CurrentTime())

	b.InvokeHook(sim.HookCtx{
		Domain: b,
		Pos:    HookPosReset,
		Item:   b.stats.Resets,
	})
	b.publish()

	if err != nil {
		return fmt.Errorf("failed to deliver trace: %w", err)
	}

	return nil
}
