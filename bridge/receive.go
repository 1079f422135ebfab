package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/sarchlab/diibridge/rvfi"
)

// ReceiveTrace receives instruction packets until the queue ends with a
// reset marker. Between unsuccessful attempts it waits for the poll
// interval. It returns early only when ctx is done or the transport fails.
func (b *Bridge) ReceiveTrace(ctx context.Context) error {
	q := b.tracker.Queue()

	for q.Len() == 0 || !q.EndsWithReset() {
		ok, err := b.receiveOne()
		if err != nil {
			return err
		}

		if !ok {
			if err := b.wait(ctx); err != nil {
				return err
			}
		}
	}

	b.log.V(1).Info("trace received", "packets", q.Len())

	return nil
}

// ReceiveAvailable waits for at least one instruction packet and then
// takes every packet that is immediately available, stopping after a reset
// marker.
func (b *Bridge) ReceiveAvailable(ctx context.Context) error {
	got := 0

	for {
		if b.tracker.Queue().EndsWithReset() && got > 0 {
			return nil
		}

		ok, err := b.receiveOne()
		if err != nil {
			return err
		}

		switch {
		case ok:
			got++
		case got > 0:
			return nil
		default:
			if err := b.wait(ctx); err != nil {
				return err
			}
		}
	}
}

// receiveOne makes a single receive attempt. The frame carries a trailing
// status byte: 0 when a whole packet arrived, nonzero otherwise.
func (b *Bridge) receiveOne() (bool, error) {
	n := rvfi.InstructionPacketSize

	b.frame[n] = 1
	if b.conn.TryReceive(b.frame[:n]) {
		b.frame[n] = 0
	}

	if b.frame[n] != 0 {
		if err := b.conn.Err(); err != nil {
			return false, fmt.Errorf("failed to receive instruction: %w", err)
		}

		return false, nil
	}

	p, err := rvfi.DecodeInstruction(b.frame[:n])
	if err != nil {
		return false, err
	}

	b.tracker.Push(p)
	b.stats.Received++

	return true, nil
}

func (b *Bridge) wait(ctx context.Context) error {
	t := time.NewTimer(b.pollInterval)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
