package services

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/go-redis/redis_rate/v10"

	"paylink/internal/ledger"
	"paylink/internal/models"
	"paylink/internal/pkg/limiter"
)

type fakeLimiter struct {
	mu         sync.Mutex
	deny       bool
	retryAfter time.Duration
	calls      int
}

func (f *fakeLimiter) Allow(ctx context.Context, key string, limit redis_rate.Limit) (*limiter.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.deny {
		return &limiter.Result{RetryAfter: f.retryAfter}, limiter.ErrRateLimited
	}
	return &limiter.Result{Remaining: limit.Rate - f.calls}, nil
}

type fakeLedger struct {
	mu          sync.Mutex
	txRef       string
	submitErr   error
	settlement  *ledger.Settlement
	waitErr     error
	submitCalls int
	waitCalls   int
	lastCall    *ledger.AuthorizedCall
}

func (f *fakeLedger) Submit(ctx context.Context, call *ledger.AuthorizedCall) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	f.lastCall = call
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.txRef, nil
}

func (f *fakeLedger) WaitForSettlement(ctx context.Context, txRef string, timeout time.Duration) (*ledger.Settlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waitCalls++
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	return f.settlement, nil
}

type memSubs struct {
	mu   sync.Mutex
	rows map[string]*models.RelaySubmission
}

func newMemSubs() *memSubs {
	return &memSubs{rows: map[string]*models.RelaySubmission{}}
}

func (m *memSubs) Create(ctx context.Context, sub *models.RelaySubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub.ID = len(m.rows) + 1
	m.rows[sub.IdempotencyKey] = sub
	return nil
}

func (m *memSubs) Update(ctx context.Context, sub *models.RelaySubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[sub.IdempotencyKey] = sub
	return nil
}

func (m *memSubs) FindByIdempotencyKey(ctx context.Context, key string) (*models.RelaySubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[key], nil
}

type memOutcomes struct {
	mu   sync.Mutex
	rows map[string]*models.SubmissionOutcome
}

func newMemOutcomes() *memOutcomes {
	return &memOutcomes{rows: map[string]*models.SubmissionOutcome{}}
}

func (m *memOutcomes) GetOutcome(ctx context.Context, key string) (*models.SubmissionOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[key], nil
}

func (m *memOutcomes) SetOutcome(ctx context.Context, key string, outcome *models.SubmissionOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[key] = outcome
	return nil
}

type memClaims struct {
	mu   sync.Mutex
	rows map[string]*models.Claim
}

func newMemClaims() *memClaims {
	return &memClaims{rows: map[string]*models.Claim{}}
}

func (m *memClaims) Create(ctx context.Context, claim *models.Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	claim.ID = len(m.rows) + 1
	m.rows[claim.Token] = claim
	return nil
}

func (m *memClaims) FindByToken(ctx context.Context, token string) (*models.Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	claim, ok := m.rows[token]
	if !ok {
		return nil, nil
	}
	copied := *claim
	return &copied, nil
}

func (m *memClaims) MarkClaimed(ctx context.Context, token, claimerAddress string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	claim, ok := m.rows[token]
	if !ok || claim.Status != models.ClaimStatusPending || !claim.ExpiresAt.After(now) {
		return false, nil
	}
	claim.Status = models.ClaimStatusClaimed
	claim.ClaimedBy = &claimerAddress
	claim.UpdatedAt = now
	return true, nil
}

func (m *memClaims) MarkExpired(ctx context.Context, token string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	claim, ok := m.rows[token]
	if !ok || claim.Status != models.ClaimStatusPending {
		return false, nil
	}
	claim.Status = models.ClaimStatusExpired
	claim.UpdatedAt = now
	return true, nil
}

func (m *memClaims) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*models.Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Claim
	for _, claim := range m.rows {
		if claim.Status == models.ClaimStatusPending && now.After(claim.ExpiresAt) {
			out = append(out, claim)
		}
	}
	return out, nil
}

func (m *memClaims) ListExpiredUnrefunded(ctx context.Context, limit int) ([]*models.Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Claim
	for _, claim := range m.rows {
		if claim.Status == models.ClaimStatusExpired && claim.RefundedAt == nil {
			out = append(out, claim)
		}
	}
	return out, nil
}

func (m *memClaims) SetPayoutRef(ctx context.Context, token, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if claim, ok := m.rows[token]; ok {
		claim.PayoutRef = &ref
	}
	return nil
}

func (m *memClaims) SetRefunded(ctx context.Context, token, ref string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if claim, ok := m.rows[token]; ok {
		claim.RefundRef = &ref
		claim.RefundedAt = &at
	}
	return nil
}

type fakeNotifier struct {
	notified chan *models.Claim
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{notified: make(chan *models.Claim, 8)}
}

func (f *fakeNotifier) NotifyClaim(claim *models.Claim) {
	f.notified <- claim
}

type memWallets struct {
	rows map[string]*models.LinkedWallet
}

func (m *memWallets) FindByIdentifier(ctx context.Context, identifier string) (*models.LinkedWallet, error) {
	return m.rows[identifier], nil
}

// missCache never holds anything; every read goes to the callback.
type missCache struct{}

func (missCache) Get(ctx context.Context, key string, target any) error { return cache.ErrCacheMiss }
func (missCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return nil
}
func (missCache) Delete(ctx context.Context, key string) error { return nil }
