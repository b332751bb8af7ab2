package services

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrLedgerRejected is terminal: the authorization is invalid or its
	// nonce is consumed. Never retried.
	ErrLedgerRejected = errors.New("ledger rejected authorization")
	// ErrLedgerTimeout is ambiguous but safe to retry with the same
	// idempotency key; nonce uniqueness precludes a duplicate effect.
	ErrLedgerTimeout = errors.New("settlement confirmation timed out")

	ErrAlreadyClaimed = errors.New("already claimed")
	ErrClaimExpired   = errors.New("claim expired")
	ErrClaimNotFound  = errors.New("claim not found")
)

// RateLimitedError carries the retry-after hint to the HTTP edge.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}
