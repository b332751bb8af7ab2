package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicFromDecimal(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"10.00", 10000000},
		{"10", 10000000},
		{"0.01", 10000},
		{"0.000001", 1},
		{"0.0000019", 1}, // beyond precision, truncated
		{"1234.567890", 1234567890},
		{"0", 0},
	}
	for _, c := range cases {
		got, err := AtomicFromDecimal(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestAtomicFromDecimalRejects(t *testing.T) {
	_, err := AtomicFromDecimal("-1")
	assert.ErrorIs(t, err, ErrNegativeAmount)

	_, err = AtomicFromDecimal("10000000000000000000")
	assert.ErrorIs(t, err, ErrAmountOverflow)

	_, err = AtomicFromDecimal("ten")
	assert.Error(t, err)

	_, err = AtomicFromDecimal("")
	assert.Error(t, err)
}

func TestFormatAtomic(t *testing.T) {
	assert.Equal(t, "10", FormatAtomic(10000000))
	assert.Equal(t, "0.01", FormatAtomic(10000))
	assert.Equal(t, "0.000001", FormatAtomic(1))
	assert.Equal(t, "1234.56789", FormatAtomic(1234567890))
}
