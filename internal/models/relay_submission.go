package models

import (
	"time"

	"github.com/uptrace/bun"
)

type SubmissionStatus string

const (
	SubmissionStatusPending   SubmissionStatus = "pending"
	SubmissionStatusSubmitted SubmissionStatus = "submitted"
	SubmissionStatusConfirmed SubmissionStatus = "confirmed"
	SubmissionStatusFailed    SubmissionStatus = "failed"
)

// RelaySubmission is the durable record of one logical relay attempt. At most
// one ledger-confirmed effect exists per idempotency key no matter how often
// the caller retries; the ledger's nonce uniqueness enforces that, this row
// just remembers the outcome.
type RelaySubmission struct {
	bun.BaseModel  `bun:"table:relay_submission"`
	ID             int              `bun:"id,pk,autoincrement" json:"id"`
	IdempotencyKey string           `bun:"idempotency_key" json:"idempotency_key"`
	Nonce          string           `bun:"nonce" json:"nonce"`
	Sender         string           `bun:"sender" json:"sender"`
	Recipient      string           `bun:"recipient" json:"recipient"`
	AmountAtomic   int64            `bun:"amount_atomic" json:"amount_atomic"`
	Status         SubmissionStatus `bun:"status" json:"status"`
	Attempts       int              `bun:"attempts" json:"attempts"`
	SettlementRef  *string          `bun:"settlement_ref" json:"settlement_ref,omitempty"`
	FailReason     *string          `bun:"fail_reason" json:"fail_reason,omitempty"`
	CreatedAt      time.Time        `bun:"created_at,default:current_timestamp" json:"created_at"`
	UpdatedAt      time.Time        `bun:"updated_at" json:"updated_at"`
}

func (s *RelaySubmission) Terminal() bool {
	return s.Status == SubmissionStatusConfirmed || s.Status == SubmissionStatusFailed
}

// SubmissionOutcome is the compact, cacheable projection of a terminal
// submission used for idempotent replay.
type SubmissionOutcome struct {
	Status        SubmissionStatus `msgpack:"status" json:"status"`
	SettlementRef string           `msgpack:"settlement_ref" json:"settlement_ref"`
	FailReason    string           `msgpack:"fail_reason" json:"fail_reason"`
}
