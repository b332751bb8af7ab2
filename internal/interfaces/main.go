// Package interfaces declares the external collaborators the services are
// written against: the shared rate-limit counter, the persistence operations
// (including the one atomic conditional transition claims depend on), the
// idempotency outcome cache, and the best-effort notification channel.
package interfaces

import (
	"context"
	"time"

	"github.com/go-redis/redis_rate/v10"

	"paylink/internal/models"
	"paylink/internal/pkg/limiter"
)

type Limiter interface {
	Allow(ctx context.Context, key string, limit redis_rate.Limit) (*limiter.Result, error)
}

// SubmissionStore persists RelaySubmission rows. Lookups return (nil, nil)
// when no row exists.
type SubmissionStore interface {
	Create(ctx context.Context, sub *models.RelaySubmission) error
	Update(ctx context.Context, sub *models.RelaySubmission) error
	FindByIdempotencyKey(ctx context.Context, key string) (*models.RelaySubmission, error)
}

// ClaimStore persists Claim rows. MarkClaimed and MarkExpired are conditional
// single-row transitions out of pending; they report whether this caller won
// the transition.
type ClaimStore interface {
	Create(ctx context.Context, claim *models.Claim) error
	FindByToken(ctx context.Context, token string) (*models.Claim, error)
	MarkClaimed(ctx context.Context, token, claimerAddress string, now time.Time) (bool, error)
	MarkExpired(ctx context.Context, token string, now time.Time) (bool, error)
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*models.Claim, error)
	ListExpiredUnrefunded(ctx context.Context, limit int) ([]*models.Claim, error)
	SetPayoutRef(ctx context.Context, token, ref string) error
	SetRefunded(ctx context.Context, token, ref string, at time.Time) error
}

// WalletStore resolves registered identifiers to receiving addresses.
type WalletStore interface {
	FindByIdentifier(ctx context.Context, identifier string) (*models.LinkedWallet, error)
}

// OutcomeCache remembers terminal submission outcomes per idempotency key so
// a retried request can re-observe its result without touching the ledger.
type OutcomeCache interface {
	GetOutcome(ctx context.Context, key string) (*models.SubmissionOutcome, error)
	SetOutcome(ctx context.Context, key string, outcome *models.SubmissionOutcome) error
}

// Notifier dispatch is fire and forget with its own timeout; implementations
// must never block the settlement path.
type Notifier interface {
	NotifyClaim(claim *models.Claim)
}
