// Package mem provides the bounded data memory that answers the core's
// load/store requests.
package mem

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// WordSize is the access width of the data port in bytes.
const WordSize = 4

// ErrInvalidWindow is returned when a memory window cannot be created.
var ErrInvalidWindow = errors.New("mem: invalid memory window")

// Statistics holds simple access counts.
type Statistics struct {
	Reads  uint64
	Writes uint64
	// Faults counts accesses rejected for falling outside the window.
	Faults uint64
}

// Memory is a byte-addressable store covering [base, base+size).
//
// Reads always return all four bytes of the word; the byte mask only
// applies to writes.
type Memory struct {
	base  uint64
	data  []byte
	stats Statistics
}

// New allocates a zeroed memory window. The size must be a nonzero multiple
// of WordSize and the window must not wrap the address space.
func New(base, size uint64) (m *Memory, err error) {
	if size == 0 || size%WordSize != 0 {
		return nil, fmt.Errorf("%w: size 0x%X is not a nonzero multiple of %d",
			ErrInvalidWindow, size, WordSize)
	}
	if base+size < base {
		return nil, fmt.Errorf("%w: base 0x%X + size 0x%X overflows",
			ErrInvalidWindow, base, size)
	}

	defer func() {
		if r := recover(); r != nil {
			m = nil
			err = fmt.Errorf("failed to allocate %d bytes of memory: %v", size, r)
		}
	}()

	return &Memory{
		base: base,
		data: make([]byte, size),
	}, nil
}

// Base returns the first valid address.
func (m *Memory) Base() uint64 {
	return m.base
}

// Size returns the window size in bytes.
func (m *Memory) Size() uint64 {
	return uint64(len(m.data))
}

// Contains reports whether [addr, addr+n) lies inside the window.
func (m *Memory) Contains(addr, n uint64) bool {
	if addr < m.base {
		return false
	}

	offset := addr - m.base
	return offset <= m.Size() && n <= m.Size()-offset
}

// ReadWord returns the little-endian word at addr. ok is false when the word
// is not fully inside the window.
func (m *Memory) ReadWord(addr uint64) (value uint32, ok bool) {
	if !m.Contains(addr, WordSize) {
		m.stats.Faults++
		return 0, false
	}

	m.stats.Reads++
	offset := addr - m.base

	return binary.LittleEndian.Uint32(m.data[offset : offset+WordSize]), true
}

// WriteWord stores the bytes of value selected by mask at addr. Bit i of the
// mask enables byte i. Nothing is written when the word is not fully inside
// the window.
func (m *Memory) WriteWord(addr uint64, value uint32, mask uint8) bool {
	if !m.Contains(addr, WordSize) {
		m.stats.Faults++
		return false
	}

	m.stats.Writes++
	offset := addr - m.base

	for i := uint64(0); i < WordSize; i++ {
		if mask&(1<<i) == 0 {
			continue
		}

		m.data[offset+i] = byte(value >> (8 * i))
	}

	return true
}

// Reset zeroes every byte.
func (m *Memory) Reset() {
	clear(m.data)
}

// Stats returns the access counts since creation.
func (m *Memory) Stats() Statistics {
	return m.stats
}
