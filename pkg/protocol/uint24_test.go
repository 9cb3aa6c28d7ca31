package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUint24(t *testing.T) {
	assert.Equal(t, Uint24(1), Uint24(0).Next())
	assert.Equal(t, Uint24(0), Uint24(MaxUint24).Next())
	assert.True(t, Uint24(MaxUint24).Valid())
	assert.False(t, Uint24(MaxUint24+1).Valid())

	cases := []struct {
		name string
		u, v Uint24
		want bool
	}{
		{"equal", 5, 5, false},
		{"successor", 5, 6, true},
		{"predecessor", 6, 5, false},
		{"across wrap", MaxUint24, 0, true},
		{"across wrap backwards", 0, MaxUint24, false},
		{"half range", 0, 0x800000, false},
		{"just under half range", 0, 0x7fffff, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.u.Before(tc.v))
		})
	}

	assert.True(t, errors.Is(checkUint24("x", 0x01000000), ErrIndexOverflow))
}
