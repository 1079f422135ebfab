// Package pipeline tracks the instructions in flight between the bridge and
// the core and decides when to feed, roll back and reset.
package pipeline

import "github.com/sarchlab/diibridge/rvfi"

// Queue holds every instruction packet received for the current trace, in
// receipt order. It only grows until Clear.
type Queue struct {
	packets []rvfi.InstructionPacket
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{packets: make([]rvfi.InstructionPacket, 0, 64)}
}

// Push appends a packet.
func (q *Queue) Push(p rvfi.InstructionPacket) {
	q.packets = append(q.packets, p)
}

// Len returns the number of packets received.
func (q *Queue) Len() int {
	return len(q.packets)
}

// At returns the i-th packet in receipt order.
func (q *Queue) At(i int) rvfi.InstructionPacket {
	return q.packets[i]
}

// Last returns the most recently received packet. ok is false when the queue
// is empty.
func (q *Queue) Last() (p rvfi.InstructionPacket, ok bool) {
	if len(q.packets) == 0 {
		return rvfi.InstructionPacket{}, false
	}

	return q.packets[len(q.packets)-1], true
}

// EndsWithReset reports whether the last packet is a reset marker.
func (q *Queue) EndsWithReset() bool {
	p, ok := q.Last()
	return ok && p.IsReset()
}

// Clear drops every packet but keeps the storage.
func (q *Queue) Clear() {
	q.packets = q.packets[:0]
}
