package services

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-redsync/redsync/v4"
	"github.com/google/uuid"
	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/samber/do"

	"paylink/internal/interfaces"
	"paylink/internal/models"
	"paylink/internal/pkg/authz"
)

// ClaimsConfig holds the escrow authority: redemptions and refunds are
// authorized under this key, not the original sender's.
type ClaimsConfig struct {
	EscrowKey *ecdsa.PrivateKey
	ClaimTTL  time.Duration
}

// ServiceClaims owns the claim lifecycle: create after a successful
// escrow-bound relay, notify best-effort, redeem exactly once, expire lazily
// and by sweep.
type ServiceClaims struct {
	container *do.Injector
	claims    interfaces.ClaimStore
	relayer   *ServiceRelayer
	notifier  interfaces.Notifier
	rs        *redsync.Redsync
	cfg       ClaimsConfig
	escrow    common.Address
}

func NewServiceClaims(container *do.Injector) (*ServiceClaims, error) {
	claims, err := do.Invoke[interfaces.ClaimStore](container)
	if err != nil {
		return nil, err
	}

	relayer, err := do.Invoke[*ServiceRelayer](container)
	if err != nil {
		return nil, err
	}

	notifier, err := do.Invoke[interfaces.Notifier](container)
	if err != nil {
		return nil, err
	}

	cfg, err := do.Invoke[ClaimsConfig](container)
	if err != nil {
		return nil, err
	}
	if cfg.EscrowKey == nil {
		return nil, errors.New("escrow key not configured")
	}
	if cfg.ClaimTTL == 0 {
		cfg.ClaimTTL = CLAIM_TTL_DEFAULT
	}

	// The sweep lock is only wired in the cron binary.
	rs, _ := do.Invoke[*redsync.Redsync](container)

	escrow := crypto.PubkeyToAddress(cfg.EscrowKey.PublicKey)

	return &ServiceClaims{container, claims, relayer, notifier, rs, cfg, escrow}, nil
}

func (service *ServiceClaims) EscrowAddress() common.Address {
	return service.escrow
}

// Create relays the sender-signed, escrow-bound authorization and only then
// records the claim. The escrow transfer and the claim record are two halves
// of one logical operation: a failed relay means no claim, and a claim-insert
// failure still leaves the confirmed submission row for reconciliation.
func (service *ServiceClaims) Create(ctx context.Context, auth *models.TransferAuthorization, idempotencyKey, recipientIdentifier, amount, memo string) (*models.Claim, *SubmitResult, error) {
	if !common.IsHexAddress(auth.To) || common.HexToAddress(auth.To) != service.escrow {
		return nil, nil, errorx.Wrap(errors.New("authorization must target the escrow account"), errorx.Validation)
	}

	res, err := service.relayer.Submit(ctx, &SubmitRequest{
		Authorization:  auth,
		IdempotencyKey: idempotencyKey,
		Actor:          auth.From,
		ExpectedAmount: amount,
	})
	if err != nil {
		return nil, res, err
	}

	atomic, err := authz.AtomicFromDecimal(amount)
	if err != nil {
		return nil, res, errorx.Wrap(err, errorx.Validation)
	}

	now := time.Now()
	claim := &models.Claim{
		Token:        uuid.NewString(),
		Sender:       auth.From,
		RecipientID:  recipientIdentifier,
		AmountAtomic: atomic,
		Memo:         memo,
		EscrowRef:    res.SettlementRef,
		Status:       models.ClaimStatusPending,
		ExpiresAt:    now.Add(service.cfg.ClaimTTL),
		CreatedAt:    now,
	}
	if err := service.claims.Create(ctx, claim); err != nil {
		log.Printf("claims: escrow transfer %s settled but claim insert failed: %v", res.SettlementRef, err)
		return nil, res, errorx.Wrap(err, errorx.Service)
	}

	// Best effort; a notification failure never fails creation. The claim
	// stays discoverable via its direct link.
	go service.notifier.NotifyClaim(claim)

	return claim, res, nil
}

// Get returns the claim, applying lazy expiry: a claim past its deadline
// reads as EXPIRED even before any sweep runs.
func (service *ServiceClaims) Get(ctx context.Context, token string) (*models.Claim, error) {
	claim, err := service.claims.FindByToken(ctx, token)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.Service)
	}
	if claim == nil {
		return nil, errorx.Wrap(ErrClaimNotFound, errorx.NotExist)
	}

	now := time.Now()
	if claim.Status == models.ClaimStatusPending && claim.ExpiredAt(now) {
		//nolint:errcheck
		service.claims.MarkExpired(ctx, token, now)
		claim.Status = models.ClaimStatusExpired
	}

	return claim, nil
}

// Redeem transitions the claim to CLAIMED through the single authoritative
// conditional update, then relays an escrow-signed payout to the claimer.
// Concurrent redeemers resolve at the database: one wins, the rest observe
// "already claimed".
func (service *ServiceClaims) Redeem(ctx context.Context, token, claimerAddress string) (*SubmitResult, error) {
	if !common.IsHexAddress(claimerAddress) {
		return nil, errorx.Wrap(errors.New("malformed claimer address"), errorx.Validation)
	}

	claim, err := service.claims.FindByToken(ctx, token)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.Service)
	}
	if claim == nil {
		return nil, errorx.Wrap(ErrClaimNotFound, errorx.NotExist)
	}

	now := time.Now()
	switch {
	case claim.Status == models.ClaimStatusClaimed:
		return nil, errorx.Wrap(ErrAlreadyClaimed, errorx.Invalid)
	case claim.Status == models.ClaimStatusExpired:
		return nil, errorx.Wrap(ErrClaimExpired, errorx.Invalid)
	case claim.ExpiredAt(now):
		//nolint:errcheck
		service.claims.MarkExpired(ctx, token, now)
		return nil, errorx.Wrap(ErrClaimExpired, errorx.Invalid)
	}

	won, err := service.claims.MarkClaimed(ctx, token, claimerAddress, now)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.Service)
	}
	if !won {
		// Lost the race; report which terminal state beat us.
		current, err := service.claims.FindByToken(ctx, token)
		if err == nil && current != nil && current.Status == models.ClaimStatusExpired {
			return nil, errorx.Wrap(ErrClaimExpired, errorx.Invalid)
		}
		return nil, errorx.Wrap(ErrAlreadyClaimed, errorx.Invalid)
	}

	res, err := service.payout(ctx, claim, common.HexToAddress(claimerAddress), "claim:"+token)
	if err != nil {
		// The claim is CLAIMED with a null payout_ref: a durable record the
		// reconciler can finish. Funds never silently disappear.
		log.Printf("claims: payout for %s failed after claim transition: %v", token, err)
		return nil, err
	}

	if err := service.claims.SetPayoutRef(ctx, token, res.SettlementRef); err != nil {
		log.Printf("claims: recording payout ref for %s: %v", token, err)
	}

	return res, nil
}

// SweepExpired marks overdue claims EXPIRED and returns their escrowed funds
// to the original senders. A redsync mutex keeps concurrent instances from
// double-sweeping; refund relays are idempotent per claim token regardless.
func (service *ServiceClaims) SweepExpired(ctx context.Context) error {
	if service.rs != nil {
		mutex := service.rs.NewMutex("claims:sweep", redsync.WithExpiry(SWEEP_LOCK_EXPIRY))
		if err := mutex.Lock(); err != nil {
			// Another instance holds the sweep.
			return nil
		}
		//nolint:errcheck
		defer mutex.Unlock()
	}

	now := time.Now()
	overdue, err := service.claims.ListExpiredPending(ctx, now, CLAIM_SWEEP_BATCH)
	if err != nil {
		return err
	}
	for _, claim := range overdue {
		if _, err := service.claims.MarkExpired(ctx, claim.Token, now); err != nil {
			log.Printf("claims: sweep expire %s: %v", claim.Token, err)
		}
	}

	unrefunded, err := service.claims.ListExpiredUnrefunded(ctx, CLAIM_SWEEP_BATCH)
	if err != nil {
		return err
	}
	for _, claim := range unrefunded {
		res, err := service.payout(ctx, claim, common.HexToAddress(claim.Sender), "refund:"+claim.Token)
		if err != nil {
			// Left for the next pass; the claim row keeps refunded_at null.
			log.Printf("claims: refund %s: %v", claim.Token, err)
			continue
		}
		if err := service.claims.SetRefunded(ctx, claim.Token, res.SettlementRef, time.Now()); err != nil {
			log.Printf("claims: recording refund for %s: %v", claim.Token, err)
		}
	}

	return nil
}

// payout builds, signs, and relays an outbound transfer under the escrow's
// own signing authority.
func (service *ServiceClaims) payout(ctx context.Context, claim *models.Claim, to common.Address, idempotencyKey string) (*SubmitResult, error) {
	auth, _, err := authz.Build(service.relayer.cfg.Domain, service.escrow, to, claim.AmountAtomic, time.Now())
	if err != nil {
		return nil, errorx.Wrap(err, errorx.Service)
	}

	if err := authz.Sign(service.relayer.cfg.Domain, auth, service.cfg.EscrowKey); err != nil {
		return nil, errorx.Wrap(err, errorx.Service)
	}

	return service.relayer.Submit(ctx, &SubmitRequest{
		Authorization:  auth,
		IdempotencyKey: idempotencyKey,
		Actor:          service.escrow.Hex(),
	})
}
