package datastore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"paylink/internal/models"
)

func CreateTableLinkedWallet(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*models.LinkedWallet)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.LinkedWallet)(nil)).Index("index_linked_wallet_identifier").Unique().IfNotExists().Column("identifier").Exec(ctx)
	return err
}

func FindLinkedWalletByIdentifier(ctx context.Context, db *bun.DB, identifier string) (*models.LinkedWallet, error) {
	var wallet models.LinkedWallet
	err := db.NewSelect().Model(&wallet).Where("identifier = ?", strings.ToLower(identifier)).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func UpsertLinkedWallet(ctx context.Context, db *bun.DB, wallet *models.LinkedWallet) error {
	wallet.Identifier = strings.ToLower(wallet.Identifier)
	wallet.UpdatedAt = time.Now()
	_, err := db.NewInsert().Model(wallet).
		On("CONFLICT (identifier) DO UPDATE").
		Set("address = EXCLUDED.address").
		Set("telegram_chat_id = EXCLUDED.telegram_chat_id").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// WalletStorePG adapts the package functions to interfaces.WalletStore.
type WalletStorePG struct {
	DB *bun.DB
}

func (s *WalletStorePG) FindByIdentifier(ctx context.Context, identifier string) (*models.LinkedWallet, error) {
	wallet, err := FindLinkedWalletByIdentifier(ctx, s.DB, identifier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return wallet, err
}
