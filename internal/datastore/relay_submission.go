package datastore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"paylink/internal/models"
)

func CreateTableRelaySubmission(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*models.RelaySubmission)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.RelaySubmission)(nil)).Index("index_relay_submission_idempotency_key").Unique().IfNotExists().Column("idempotency_key").Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.RelaySubmission)(nil)).Index("index_relay_submission_nonce").IfNotExists().Column("nonce").Exec(ctx)
	return err
}

func CreateRelaySubmission(ctx context.Context, db *bun.DB, sub *models.RelaySubmission) error {
	sub.UpdatedAt = time.Now()
	_, err := db.NewInsert().Model(sub).Exec(ctx)
	return err
}

func UpdateRelaySubmission(ctx context.Context, db *bun.DB, sub *models.RelaySubmission) error {
	sub.UpdatedAt = time.Now()
	_, err := db.NewUpdate().Model(sub).WherePK().Exec(ctx)
	return err
}

func FindSubmissionByIdempotencyKey(ctx context.Context, db *bun.DB, key string) (*models.RelaySubmission, error) {
	var sub models.RelaySubmission
	err := db.NewSelect().Model(&sub).Where("idempotency_key = ?", key).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// SubmissionStorePG adapts the package functions to interfaces.SubmissionStore.
type SubmissionStorePG struct {
	DB *bun.DB
}

func (s *SubmissionStorePG) Create(ctx context.Context, sub *models.RelaySubmission) error {
	return CreateRelaySubmission(ctx, s.DB, sub)
}

func (s *SubmissionStorePG) Update(ctx context.Context, sub *models.RelaySubmission) error {
	return UpdateRelaySubmission(ctx, s.DB, sub)
}

func (s *SubmissionStorePG) FindByIdempotencyKey(ctx context.Context, key string) (*models.RelaySubmission, error) {
	sub, err := FindSubmissionByIdempotencyKey(ctx, s.DB, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sub, err
}
