package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ClaimStatus string

const (
	ClaimStatusPending ClaimStatus = "pending"
	ClaimStatusClaimed ClaimStatus = "claimed"
	ClaimStatusExpired ClaimStatus = "expired"
)

// Claim entitles whoever presents its token and a receiving address to funds
// held in the escrow account, until expiry. Status only moves pending->claimed
// or pending->expired; both are terminal.
type Claim struct {
	bun.BaseModel `bun:"table:claim"`
	ID            int         `bun:"id,pk,autoincrement" json:"id"`
	Token         string      `bun:"token" json:"token"`
	Sender        string      `bun:"sender" json:"sender"`
	RecipientID   string      `bun:"recipient_identifier" json:"recipient_identifier"`
	AmountAtomic  int64       `bun:"amount_atomic" json:"amount_atomic"`
	Memo          string      `bun:"memo" json:"memo"`
	EscrowRef     string      `bun:"escrow_ref" json:"escrow_ref"`
	Status        ClaimStatus `bun:"status" json:"status"`
	ClaimedBy     *string     `bun:"claimed_by" json:"claimed_by,omitempty"`
	PayoutRef     *string     `bun:"payout_ref" json:"payout_ref,omitempty"`
	RefundRef     *string     `bun:"refund_ref" json:"refund_ref,omitempty"`
	RefundedAt    *time.Time  `bun:"refunded_at" json:"refunded_at,omitempty"`
	ExpiresAt     time.Time   `bun:"expires_at" json:"expires_at"`
	CreatedAt     time.Time   `bun:"created_at,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time   `bun:"updated_at" json:"updated_at"`
}

func (c *Claim) ExpiredAt(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
