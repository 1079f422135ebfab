package bridge

import (
	"context"
	"errors"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/diibridge/pipeline"
	"github.com/sarchlab/diibridge/trace"
)

// StepResult represents the result of a single step.
type StepResult struct {
	// Reset is true if the trace completed and the reset sequence ran.
	Reset bool

	// Underflow is true if the model wants an instruction that has not
	// been received. The model was not advanced.
	Underflow bool

	// Err is set if the trace could not be delivered.
	Err error
}

// Step runs one bridge cycle: capture the retirement of the last cycle,
// roll back if needed, decide what to present, service the pending data
// access and advance the model by one clock cycle.
//
// After an underflow Step may be retried once more packets are queued; the
// outputs of the last cycle are not consumed twice.
func (b *Bridge) Step() StepResult {
	if !b.observed {
		b.observe()
		b.observed = true
	}

	d := b.tracker.Next()

	switch {
	case d.Reset:
		b.observed = false
		return StepResult{Reset: true, Err: b.reset()}
	case d.Underflow:
		b.stats.Underflows++
		return StepResult{Underflow: true}
	}

	if d.Fetch {
		b.adapter.PresentInstruction(d.Insn.Insn)
	} else {
		b.adapter.NoInstruction()
	}

	if d.Mem {
		b.serviceMemory(d.MemRequest)
	} else {
		b.adapter.NoData()
	}

	b.adapter.Cycle()
	b.observed = false
	b.stats.Cycles++
	b.publish()

	return StepResult{}
}

func (b *Bridge) observe() {
	req := b.adapter.Requests()

	if req.Retired {
		p := trace.Capture(b.adapter, b.extend)
		b.collector.Append(p)
		b.stats.Retired++

		b.InvokeHook(sim.HookCtx{
			Domain: b,
			Pos:    HookPosRetire,
			Item:   p,
		})
	}

	rollback := b.tracker.Observe(req)

	switch rollback {
	case pipeline.RollbackNone:
		return
	case pipeline.RollbackTrap:
		b.stats.TrapRollbacks++
	case pipeline.RollbackBranch:
		b.stats.BranchRollbacks++
	}

	b.InvokeHook(sim.HookCtx{
		Domain: b,
		Pos:    HookPosRollback,
		Item:   b.tracker.Counters(),
		Detail: rollback,
	})
}

// serviceMemory answers the data access latched on the previous cycle. An
// access outside the memory window is answered with the error flag and
// touches nothing.
func (b *Bridge) serviceMemory(r pipeline.MemRequest) {
	var (
		rdata uint32
		ok    bool
	)

	if r.Write {
		ok = b.memory.WriteWord(r.Addr, r.WData, r.BE)
	} else {
		rdata, ok = b.memory.ReadWord(r.Addr)
	}

	if !ok {
		b.stats.MemFaults++
		b.log.V(1).Info("data access out of range",
			"addr", r.Addr, "write", r.Write)
	}

	b.adapter.PresentData(rdata, !ok)
}

// Run steps the model until the current trace completes with a reset. It
// returns ErrUnderflow if the model needs an instruction that has not been
// received yet; Run may be called again after more packets arrive.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		r := b.Step()

		switch {
		case r.Err != nil:
			return r.Err
		case r.Underflow:
			return ErrUnderflow
		case r.Reset:
			return nil
		}
	}
}

// Serve processes traces until ctx is done or the transport fails. It
// never returns nil.
func (b *Bridge) Serve(ctx context.Context) error {
	for {
		if err := b.receive(ctx); err != nil {
			return err
		}

		err := b.Run(ctx)
		for errors.Is(err, ErrUnderflow) {
			if err = b.ReceiveAvailable(ctx); err != nil {
				return err
			}

			err = b.Run(ctx)
		}

		if err != nil {
			return err
		}
	}
}

func (b *Bridge) receive(ctx context.Context) error {
	if b.streaming {
		return b.ReceiveAvailable(ctx)
	}

	return b.ReceiveTrace(ctx)
}
