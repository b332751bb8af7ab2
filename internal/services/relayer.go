package services

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/samber/do"

	"paylink/internal/interfaces"
	"paylink/internal/ledger"
	"paylink/internal/models"
	"paylink/internal/pkg/authz"
)

// RelayerConfig is the submission policy: the signing domain the service
// validates against and the [min, max] atomic value bounds.
type RelayerConfig struct {
	Domain     authz.Domain
	MinAtomic  int64
	MaxAtomic  int64
	SettleWait time.Duration
}

// ServiceRelayer runs the submission saga: validate, rate-check, submit,
// bounded confirmation wait. It is an at-least-once dispatcher in front of a
// ledger that provides exactly-once via nonce uniqueness; no in-process state
// survives a request.
type ServiceRelayer struct {
	container *do.Injector
	limiter   interfaces.Limiter
	ledger    ledger.Ledger
	subs      interfaces.SubmissionStore
	outcomes  interfaces.OutcomeCache
	cfg       RelayerConfig
}

func NewServiceRelayer(container *do.Injector) (*ServiceRelayer, error) {
	limiter, err := do.Invoke[interfaces.Limiter](container)
	if err != nil {
		return nil, err
	}

	ledgerClient, err := do.Invoke[ledger.Ledger](container)
	if err != nil {
		return nil, err
	}

	subs, err := do.Invoke[interfaces.SubmissionStore](container)
	if err != nil {
		return nil, err
	}

	outcomes, err := do.Invoke[interfaces.OutcomeCache](container)
	if err != nil {
		return nil, err
	}

	cfg, err := do.Invoke[RelayerConfig](container)
	if err != nil {
		return nil, err
	}

	if cfg.SettleWait == 0 {
		cfg.SettleWait = SETTLEMENT_WAIT
	}

	return &ServiceRelayer{container, limiter, ledgerClient, subs, outcomes, cfg}, nil
}

type SubmitRequest struct {
	Authorization  *models.TransferAuthorization
	IdempotencyKey string
	// Actor is the rate-limit identity, normally the sender address.
	Actor string
	// ExpectedAmount, when set, is the decimal amount the caller declared;
	// the signed value must match it exactly. The server never trusts a
	// client-declared total without revalidation.
	ExpectedAmount string
}

type SubmitResult struct {
	SettlementRef string                  `json:"settlement_ref"`
	Status        models.SubmissionStatus `json:"status"`
	RetryAfter    time.Duration           `json:"-"`
}

// Submit accepts a signed authorization and drives it to settlement.
//
// Validation failures are rejected before the limiter or the ledger is
// touched. A confirmation timeout is retryable with the same idempotency
// key; a ledger revert is terminal because the nonce is consumed either way.
func (service *ServiceRelayer) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResult, error) {
	auth := req.Authorization

	if err := authz.Verify(service.cfg.Domain, auth); err != nil {
		return nil, errorx.Wrap(err, errorx.Validation)
	}

	now := time.Now().Unix()
	if now < auth.ValidAfter || now > auth.ValidBefore {
		return nil, errorx.Wrap(errors.New("authorization outside validity window"), errorx.Validation)
	}

	atomic, err := strconv.ParseInt(auth.Value, 10, 64)
	if err != nil {
		return nil, errorx.Wrap(errors.New("malformed value"), errorx.Validation)
	}
	if atomic < service.cfg.MinAtomic || atomic > service.cfg.MaxAtomic {
		return nil, errorx.Wrap(errors.New("value outside policy bounds"), errorx.Validation)
	}
	if req.ExpectedAmount != "" {
		expected, err := authz.AtomicFromDecimal(req.ExpectedAmount)
		if err != nil || expected != atomic {
			return nil, errorx.Wrap(errors.New("signed value does not match declared amount"), errorx.Validation)
		}
	}

	key := req.IdempotencyKey
	if key == "" {
		key = auth.Nonce
	}

	// A retry of an already-settled submission re-observes the recorded
	// outcome without spending quota or touching the ledger.
	if outcome, err := service.outcomes.GetOutcome(ctx, key); err == nil && outcome != nil {
		return service.replay(outcome)
	}

	sub, err := service.subs.FindByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.Service)
	}
	if sub != nil && sub.Terminal() {
		return service.replay(outcomeOf(sub))
	}
	if sub != nil && sub.Status == models.SubmissionStatusSubmitted && sub.SettlementRef != nil {
		// An earlier attempt already reached the ledger; re-observe its
		// settlement rather than dispatching again.
		return service.awaitSettlement(context.WithoutCancel(ctx), sub, *sub.SettlementRef)
	}

	res, err := service.limiter.Allow(ctx, LimitKeyRoute(req.Actor, RouteClassTransfer), RouteLimits[RouteClassTransfer])
	if err != nil {
		var retryAfter time.Duration
		if res != nil {
			retryAfter = res.RetryAfter
		}
		return &SubmitResult{RetryAfter: retryAfter},
			errorx.Wrap(&RateLimitedError{RetryAfter: retryAfter}, errorx.RateLimiting)
	}

	if sub == nil {
		sub = &models.RelaySubmission{
			IdempotencyKey: key,
			Nonce:          auth.Nonce,
			Sender:         auth.From,
			Recipient:      auth.To,
			AmountAtomic:   atomic,
			Status:         models.SubmissionStatusPending,
			Attempts:       1,
			CreatedAt:      time.Now(),
		}
		if err := service.subs.Create(ctx, sub); err != nil {
			return nil, errorx.Wrap(err, errorx.Service)
		}
	} else {
		sub.Attempts++
		if err := service.subs.Update(ctx, sub); err != nil {
			return nil, errorx.Wrap(err, errorx.Service)
		}
	}

	// From here on the operation must run to its natural settlement even if
	// the caller disconnects; an abandoned client must never leave an
	// ambiguous on-ledger state.
	lctx := context.WithoutCancel(ctx)

	txRef, err := service.ledger.Submit(lctx, &ledger.AuthorizedCall{
		From:        auth.From,
		To:          auth.To,
		Value:       auth.Value,
		ValidAfter:  auth.ValidAfter,
		ValidBefore: auth.ValidBefore,
		Nonce:       auth.Nonce,
		Signature:   auth.Signature,
	})
	switch {
	case errors.Is(err, ledger.ErrNonceUsed):
		// An earlier attempt landed. The ledger's replay protection is the
		// true idempotency mechanism; re-observe that attempt's outcome.
		return service.resolvePriorAttempt(lctx, sub)
	case errors.Is(err, ledger.ErrReverted):
		return nil, service.fail(lctx, sub, err)
	case err != nil:
		// Never reached the ledger; the row stays pending and the same key
		// is safe to retry.
		return nil, errorx.Wrap(err, errorx.Service)
	}

	sub.Status = models.SubmissionStatusSubmitted
	sub.SettlementRef = &txRef
	if err := service.subs.Update(lctx, sub); err != nil {
		log.Printf("relayer: recording submission %s: %v", key, err)
	}

	return service.awaitSettlement(lctx, sub, txRef)
}

func (service *ServiceRelayer) awaitSettlement(ctx context.Context, sub *models.RelaySubmission, txRef string) (*SubmitResult, error) {
	settlement, err := service.ledger.WaitForSettlement(ctx, txRef, service.cfg.SettleWait)
	if err != nil {
		// Ambiguous: the transfer may still confirm. The row stays
		// submitted; a retry with the same key resolves it.
		return nil, errorx.Wrap(ErrLedgerTimeout, errorx.Service)
	}

	if settlement.Status == ledger.SettlementReverted {
		return nil, service.fail(ctx, sub, errors.New(settlement.Reason))
	}

	sub.Status = models.SubmissionStatusConfirmed
	sub.SettlementRef = &txRef
	if err := service.subs.Update(ctx, sub); err != nil {
		log.Printf("relayer: recording confirmation %s: %v", sub.IdempotencyKey, err)
	}

	//nolint:errcheck
	service.outcomes.SetOutcome(ctx, sub.IdempotencyKey, outcomeOf(sub))

	return &SubmitResult{SettlementRef: txRef, Status: models.SubmissionStatusConfirmed}, nil
}

// resolvePriorAttempt handles a nonce-used response: if our records show the
// earlier attempt's settlement reference, finish observing it; otherwise the
// nonce was consumed by a submission we have no record of, which is terminal.
func (service *ServiceRelayer) resolvePriorAttempt(ctx context.Context, sub *models.RelaySubmission) (*SubmitResult, error) {
	if sub.Status == models.SubmissionStatusConfirmed && sub.SettlementRef != nil {
		return &SubmitResult{SettlementRef: *sub.SettlementRef, Status: sub.Status}, nil
	}
	if sub.SettlementRef != nil {
		return service.awaitSettlement(ctx, sub, *sub.SettlementRef)
	}
	return nil, service.fail(ctx, sub, ErrLedgerRejected)
}

func (service *ServiceRelayer) fail(ctx context.Context, sub *models.RelaySubmission, cause error) error {
	reason := cause.Error()
	sub.Status = models.SubmissionStatusFailed
	sub.FailReason = &reason
	if err := service.subs.Update(ctx, sub); err != nil {
		log.Printf("relayer: recording failure %s: %v", sub.IdempotencyKey, err)
	}

	//nolint:errcheck
	service.outcomes.SetOutcome(ctx, sub.IdempotencyKey, outcomeOf(sub))

	return errorx.Wrap(ErrLedgerRejected, errorx.Invalid)
}

func (service *ServiceRelayer) replay(outcome *models.SubmissionOutcome) (*SubmitResult, error) {
	if outcome.Status == models.SubmissionStatusConfirmed {
		return &SubmitResult{SettlementRef: outcome.SettlementRef, Status: outcome.Status}, nil
	}
	return nil, errorx.Wrap(ErrLedgerRejected, errorx.Invalid)
}

func outcomeOf(sub *models.RelaySubmission) *models.SubmissionOutcome {
	outcome := &models.SubmissionOutcome{Status: sub.Status}
	if sub.SettlementRef != nil {
		outcome.SettlementRef = *sub.SettlementRef
	}
	if sub.FailReason != nil {
		outcome.FailReason = *sub.FailReason
	}
	return outcome
}
