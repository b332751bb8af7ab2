package datastore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"paylink/internal/models"
)

func CreateTableClaim(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*models.Claim)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.Claim)(nil)).Index("index_claim_token").Unique().IfNotExists().Column("token").Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.Claim)(nil)).Index("index_claim_status_expires").IfNotExists().Column("status", "expires_at").Exec(ctx)
	return err
}

func CreateClaim(ctx context.Context, db *bun.DB, claim *models.Claim) error {
	claim.UpdatedAt = time.Now()
	_, err := db.NewInsert().Model(claim).Exec(ctx)
	return err
}

func FindClaimByToken(ctx context.Context, db *bun.DB, token string) (*models.Claim, error) {
	var claim models.Claim
	err := db.NewSelect().Model(&claim).Where("token = ?", token).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

// MarkClaimClaimed is the single authoritative pending->claimed transition.
// Exactly one concurrent caller observes true; everyone else loses the race
// at the database, not in this process.
func MarkClaimClaimed(ctx context.Context, db *bun.DB, token, claimerAddress string, now time.Time) (bool, error) {
	res, err := db.NewUpdate().Model((*models.Claim)(nil)).
		Set("status = ?", models.ClaimStatusClaimed).
		Set("claimed_by = ?", claimerAddress).
		Set("updated_at = ?", now).
		Where("token = ?", token).
		Where("status = ?", models.ClaimStatusPending).
		Where("expires_at > ?", now).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func MarkClaimExpired(ctx context.Context, db *bun.DB, token string, now time.Time) (bool, error) {
	res, err := db.NewUpdate().Model((*models.Claim)(nil)).
		Set("status = ?", models.ClaimStatusExpired).
		Set("updated_at = ?", now).
		Where("token = ?", token).
		Where("status = ?", models.ClaimStatusPending).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func ListExpiredPendingClaims(ctx context.Context, db *bun.DB, now time.Time, limit int) ([]*models.Claim, error) {
	var claims []*models.Claim
	err := db.NewSelect().Model(&claims).
		Where("status = ?", models.ClaimStatusPending).
		Where("expires_at <= ?", now).
		Order("expires_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func ListExpiredUnrefundedClaims(ctx context.Context, db *bun.DB, limit int) ([]*models.Claim, error) {
	var claims []*models.Claim
	err := db.NewSelect().Model(&claims).
		Where("status = ?", models.ClaimStatusExpired).
		Where("refunded_at IS NULL").
		Order("expires_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func SetClaimPayoutRef(ctx context.Context, db *bun.DB, token, ref string) error {
	_, err := db.NewUpdate().Model((*models.Claim)(nil)).
		Set("payout_ref = ?", ref).
		Set("updated_at = ?", time.Now()).
		Where("token = ?", token).
		Exec(ctx)
	return err
}

func SetClaimRefunded(ctx context.Context, db *bun.DB, token, ref string, at time.Time) error {
	_, err := db.NewUpdate().Model((*models.Claim)(nil)).
		Set("refund_ref = ?", ref).
		Set("refunded_at = ?", at).
		Set("updated_at = ?", at).
		Where("token = ?", token).
		Exec(ctx)
	return err
}

// ClaimStorePG adapts the package functions to interfaces.ClaimStore.
type ClaimStorePG struct {
	DB *bun.DB
}

func (s *ClaimStorePG) Create(ctx context.Context, claim *models.Claim) error {
	return CreateClaim(ctx, s.DB, claim)
}

func (s *ClaimStorePG) FindByToken(ctx context.Context, token string) (*models.Claim, error) {
	claim, err := FindClaimByToken(ctx, s.DB, token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return claim, err
}

func (s *ClaimStorePG) MarkClaimed(ctx context.Context, token, claimerAddress string, now time.Time) (bool, error) {
	return MarkClaimClaimed(ctx, s.DB, token, claimerAddress, now)
}

func (s *ClaimStorePG) MarkExpired(ctx context.Context, token string, now time.Time) (bool, error) {
	return MarkClaimExpired(ctx, s.DB, token, now)
}

func (s *ClaimStorePG) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*models.Claim, error) {
	return ListExpiredPendingClaims(ctx, s.DB, now, limit)
}

func (s *ClaimStorePG) ListExpiredUnrefunded(ctx context.Context, limit int) ([]*models.Claim, error) {
	return ListExpiredUnrefundedClaims(ctx, s.DB, limit)
}

func (s *ClaimStorePG) SetPayoutRef(ctx context.Context, token, ref string) error {
	return SetClaimPayoutRef(ctx, s.DB, token, ref)
}

func (s *ClaimStorePG) SetRefunded(ctx context.Context, token, ref string, at time.Time) error {
	return SetClaimRefunded(ctx, s.DB, token, ref, at)
}
