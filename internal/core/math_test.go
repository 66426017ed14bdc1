package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckedMul(t *testing.T) {
	got, err := CheckedMul(1000, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), got)

	_, err = CheckedMul(math.MaxUint64, 2)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestCheckedAdd(t *testing.T) {
	got, err := CheckedAdd(math.MaxUint64-1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), got)

	_, err = CheckedAdd(math.MaxUint64, 1)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestWithinBand(t *testing.T) {
	for _, tc := range []struct {
		name             string
		value, reference uint64
		ok               bool
	}{
		{"exact", 100, 100, true},
		{"floor", 95, 100, true},
		{"ceiling", 105, 100, true},
		{"below", 94, 100, false},
		{"above", 106, 100, false},
		{"zero reference zero value", 0, 0, true},
		{"zero reference nonzero value", 1, 0, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.ok, WithinBand(tc.value, tc.reference, 95, 105))
		})
	}
}

func TestWithinBand_LargeQuantities(t *testing.T) {
	// Quantities whose percent products exceed 64 bits must still compare
	// correctly.
	large := uint64(math.MaxUint64 / 2)
	assert.True(t, WithinBand(large, large, 95, 105))
	assert.False(t, WithinBand(large/2, large, 95, 105))
}
