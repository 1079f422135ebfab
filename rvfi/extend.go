package rvfi

// ExtendMode selects how 32-bit core values are widened to the 64-bit RVFI
// fields.
type ExtendMode uint8

// Extension modes.
const (
	// ExtendZero zero-extends every value.
	ExtendZero ExtendMode = iota
	// ExtendSign copies bit 31 into the upper word.
	ExtendSign
)

const upperWord = uint64(0xFFFFFFFF00000000)

// Extend32 widens v according to mode.
func Extend32(v uint32, mode ExtendMode) uint64 {
	if mode == ExtendSign && v&0x80000000 != 0 {
		return uint64(v) | upperWord
	}

	return uint64(v)
}

// String returns the mode name.
func (m ExtendMode) String() string {
	switch m {
	case ExtendZero:
		return "zero"
	case ExtendSign:
		return "sign"
	default:
		return "unknown"
	}
}
