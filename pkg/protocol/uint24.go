package protocol

import "fmt"

// MaxUint24 is the largest value representable by Uint24.
const MaxUint24 = 0x00FFFFFF

// Uint24 is a 24-bit unsigned counter as used for sequence numbers and message indices.
type Uint24 uint32

// Valid reports whether u fits in 24 bits.
func (u Uint24) Valid() bool {
	return u <= MaxUint24
}

// Next returns the successor of u, wrapping from MaxUint24 to zero.
func (u Uint24) Next() Uint24 {
	return (u + 1) & MaxUint24
}

// Before reports whether u precedes v in 24-bit serial number arithmetic.
// Values less than half the number space ahead of u are considered to follow it.
func (u Uint24) Before(v Uint24) bool {
	d := (v - u) & MaxUint24
	return d != 0 && d < (MaxUint24+1)/2
}

func (u Uint24) String() string {
	return fmt.Sprintf("%d", uint32(u))
}

func checkUint24(field string, u Uint24) error {
	if !u.Valid() {
		return fmt.Errorf("%w: %s %#x exceeds 24 bits", ErrIndexOverflow, field, uint32(u))
	}
	return nil
}
