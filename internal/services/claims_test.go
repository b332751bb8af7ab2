package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paylink/internal/ledger"
	"paylink/internal/models"
	"paylink/internal/pkg/authz"
)

func newTestClaims(t *testing.T, led *fakeLedger) (*ServiceClaims, *memClaims, *fakeNotifier) {
	t.Helper()
	escrowKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	relayer, _, _ := newTestRelayer(led, &fakeLimiter{})
	claims := newMemClaims()
	notifier := newFakeNotifier()

	service := &ServiceClaims{
		claims:   claims,
		relayer:  relayer,
		notifier: notifier,
		cfg: ClaimsConfig{
			EscrowKey: escrowKey,
			ClaimTTL:  time.Hour,
		},
		escrow: crypto.PubkeyToAddress(escrowKey.PublicKey),
	}
	return service, claims, notifier
}

func escrowBoundAuth(t *testing.T, escrow common.Address, atomic int64) *models.TransferAuthorization {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)

	auth, _, err := authz.Build(testDomain, from, escrow, atomic, time.Now())
	require.NoError(t, err)
	require.NoError(t, authz.Sign(testDomain, auth, key))
	return auth
}

func TestCreateRejectsNonEscrowTarget(t *testing.T) {
	led := &fakeLedger{}
	service, claims, _ := newTestClaims(t, led)

	auth := escrowBoundAuth(t, common.HexToAddress("0xdead"), 10_000_000)
	_, _, err := service.Create(context.Background(), auth, "", "alice@example.com", "10", "")
	require.Error(t, err)
	assert.Equal(t, 0, led.submitCalls)
	assert.Empty(t, claims.rows)
}

func TestCreateRelaysThenRecordsClaim(t *testing.T) {
	led := &fakeLedger{txRef: "tx-escrow", settlement: &ledger.Settlement{Status: ledger.SettlementSuccess}}
	service, claims, notifier := newTestClaims(t, led)

	auth := escrowBoundAuth(t, service.EscrowAddress(), 10_000_000)
	claim, res, err := service.Create(context.Background(), auth, "", "alice@example.com", "10", "lunch")
	require.NoError(t, err)
	require.NotNil(t, claim)
	assert.Equal(t, "tx-escrow", res.SettlementRef)

	assert.NotEmpty(t, claim.Token)
	assert.Equal(t, models.ClaimStatusPending, claim.Status)
	assert.Equal(t, int64(10_000_000), claim.AmountAtomic)
	assert.Equal(t, "tx-escrow", claim.EscrowRef)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claim.ExpiresAt, time.Minute)

	stored, _ := claims.FindByToken(context.Background(), claim.Token)
	require.NotNil(t, stored)

	select {
	case notified := <-notifier.notified:
		assert.Equal(t, claim.Token, notified.Token)
	case <-time.After(2 * time.Second):
		t.Fatal("notification never dispatched")
	}
}

func TestCreateNoClaimWhenRelayFails(t *testing.T) {
	led := &fakeLedger{submitErr: ledger.ErrReverted}
	service, claims, _ := newTestClaims(t, led)

	auth := escrowBoundAuth(t, service.EscrowAddress(), 10_000_000)
	claim, _, err := service.Create(context.Background(), auth, "", "alice@example.com", "10", "")
	require.Error(t, err)
	assert.Nil(t, claim)
	assert.Empty(t, claims.rows)
}

func TestGetAppliesLazyExpiry(t *testing.T) {
	led := &fakeLedger{}
	service, claims, _ := newTestClaims(t, led)

	require.NoError(t, claims.Create(context.Background(), &models.Claim{
		Token:     "tok-1",
		Status:    models.ClaimStatusPending,
		ExpiresAt: time.Now().Add(-time.Minute),
	}))

	claim, err := service.Get(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, models.ClaimStatusExpired, claim.Status)

	stored, _ := claims.FindByToken(context.Background(), "tok-1")
	assert.Equal(t, models.ClaimStatusExpired, stored.Status)
}

func TestGetUnknownToken(t *testing.T) {
	led := &fakeLedger{}
	service, _, _ := newTestClaims(t, led)

	_, err := service.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrClaimNotFound)
}

func TestRedeemSingleWinner(t *testing.T) {
	led := &fakeLedger{txRef: "tx-payout", settlement: &ledger.Settlement{Status: ledger.SettlementSuccess}}
	service, claims, _ := newTestClaims(t, led)

	require.NoError(t, claims.Create(context.Background(), &models.Claim{
		Token:        "tok-1",
		Sender:       "0x00000000000000000000000000000000000000aa",
		AmountAtomic: 10_000_000,
		Status:       models.ClaimStatusPending,
		ExpiresAt:    time.Now().Add(time.Hour),
	}))

	claimer := "0x00000000000000000000000000000000000000bb"
	res, err := service.Redeem(context.Background(), "tok-1", claimer)
	require.NoError(t, err)
	assert.Equal(t, "tx-payout", res.SettlementRef)

	stored, _ := claims.FindByToken(context.Background(), "tok-1")
	assert.Equal(t, models.ClaimStatusClaimed, stored.Status)
	require.NotNil(t, stored.PayoutRef)
	assert.Equal(t, "tx-payout", *stored.PayoutRef)

	// The payout goes out under the escrow's signing authority.
	require.NotNil(t, led.lastCall)
	assert.Equal(t, service.EscrowAddress().Hex(), led.lastCall.From)
	assert.Equal(t, common.HexToAddress(claimer).Hex(), led.lastCall.To)

	// The loser observes the terminal state, not a second payout.
	_, err = service.Redeem(context.Background(), "tok-1", claimer)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
	assert.Equal(t, 1, led.submitCalls)
}

func TestRedeemConcurrentSingleWinner(t *testing.T) {
	led := &fakeLedger{txRef: "tx-payout", settlement: &ledger.Settlement{Status: ledger.SettlementSuccess}}
	service, claims, _ := newTestClaims(t, led)

	require.NoError(t, claims.Create(context.Background(), &models.Claim{
		Token:        "tok-1",
		Sender:       "0x00000000000000000000000000000000000000aa",
		AmountAtomic: 10_000_000,
		Status:       models.ClaimStatusPending,
		ExpiresAt:    time.Now().Add(time.Hour),
	}))

	const racers = 8
	results := make(chan error, racers)
	for i := 0; i < racers; i++ {
		go func() {
			_, err := service.Redeem(context.Background(), "tok-1", "0x00000000000000000000000000000000000000bb")
			results <- err
		}()
	}

	var wins int
	for i := 0; i < racers; i++ {
		if err := <-results; err == nil {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, led.submitCalls)
}

func TestRedeemExpiredClaim(t *testing.T) {
	led := &fakeLedger{}
	service, claims, _ := newTestClaims(t, led)

	require.NoError(t, claims.Create(context.Background(), &models.Claim{
		Token:        "tok-1",
		AmountAtomic: 10_000_000,
		Status:       models.ClaimStatusPending,
		ExpiresAt:    time.Now().Add(-time.Minute),
	}))

	_, err := service.Redeem(context.Background(), "tok-1", "0x00000000000000000000000000000000000000bb")
	assert.ErrorIs(t, err, ErrClaimExpired)
	assert.Equal(t, 0, led.submitCalls)
}

func TestRedeemRejectsMalformedAddress(t *testing.T) {
	led := &fakeLedger{}
	service, _, _ := newTestClaims(t, led)

	_, err := service.Redeem(context.Background(), "tok-1", "not-an-address")
	require.Error(t, err)
	assert.Equal(t, 0, led.submitCalls)
}

func TestRedeemUnknownToken(t *testing.T) {
	led := &fakeLedger{}
	service, _, _ := newTestClaims(t, led)

	_, err := service.Redeem(context.Background(), "missing", "0x00000000000000000000000000000000000000bb")
	assert.ErrorIs(t, err, ErrClaimNotFound)
}

func TestSweepExpiresAndRefunds(t *testing.T) {
	led := &fakeLedger{txRef: "tx-refund", settlement: &ledger.Settlement{Status: ledger.SettlementSuccess}}
	service, claims, _ := newTestClaims(t, led)

	sender := "0x00000000000000000000000000000000000000aa"
	require.NoError(t, claims.Create(context.Background(), &models.Claim{
		Token:        "tok-1",
		Sender:       sender,
		AmountAtomic: 10_000_000,
		Status:       models.ClaimStatusPending,
		ExpiresAt:    time.Now().Add(-time.Minute),
	}))

	require.NoError(t, service.SweepExpired(context.Background()))

	stored, _ := claims.FindByToken(context.Background(), "tok-1")
	assert.Equal(t, models.ClaimStatusExpired, stored.Status)
	require.NotNil(t, stored.RefundRef)
	assert.Equal(t, "tx-refund", *stored.RefundRef)
	assert.NotNil(t, stored.RefundedAt)

	// The refund flows back to the original sender from the escrow.
	require.NotNil(t, led.lastCall)
	assert.Equal(t, common.HexToAddress(sender).Hex(), led.lastCall.To)

	// A second sweep finds nothing left to refund.
	require.NoError(t, service.SweepExpired(context.Background()))
	assert.Equal(t, 1, led.submitCalls)
}

func TestRedeemPayoutFailureKeepsClaimForReconciliation(t *testing.T) {
	led := &fakeLedger{submitErr: errors.New("gateway down")}
	service, claims, _ := newTestClaims(t, led)

	require.NoError(t, claims.Create(context.Background(), &models.Claim{
		Token:        "tok-1",
		AmountAtomic: 10_000_000,
		Status:       models.ClaimStatusPending,
		ExpiresAt:    time.Now().Add(time.Hour),
	}))

	_, err := service.Redeem(context.Background(), "tok-1", "0x00000000000000000000000000000000000000bb")
	require.Error(t, err)

	// CLAIMED with no payout_ref: a durable marker for the reconciler.
	stored, _ := claims.FindByToken(context.Background(), "tok-1")
	assert.Equal(t, models.ClaimStatusClaimed, stored.Status)
	assert.Nil(t, stored.PayoutRef)
}
