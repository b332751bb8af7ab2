package authz

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Decimals is the token's fixed-point precision (USDC-style, 6 places).
const Decimals = 6

var (
	ErrNegativeAmount = errors.New("amount must be positive")
	ErrAmountOverflow = errors.New("amount out of range")
)

// AtomicFromDecimal converts a human decimal amount ("10.00") to atomic units
// (10000000). Fractional digits beyond the token precision are truncated,
// missing ones are zero-padded. Negative and overflowing inputs are rejected.
func AtomicFromDecimal(amount string) (int64, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, fmt.Errorf("malformed amount %q: %w", amount, err)
	}

	if d.Sign() < 0 {
		return 0, ErrNegativeAmount
	}

	atomic := d.Shift(Decimals).Truncate(0)
	big := atomic.BigInt()
	if !big.IsInt64() {
		return 0, ErrAmountOverflow
	}

	return big.Int64(), nil
}

// FormatAtomic renders atomic units back to a decimal string for display.
func FormatAtomic(v int64) string {
	return decimal.New(v, -Decimals).String()
}
