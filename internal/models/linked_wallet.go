package models

import (
	"time"

	"github.com/uptrace/bun"
)

// LinkedWallet maps a human-facing identifier (email, phone, telegram chat) to
// a receiving address. Identifiers are stored lowercased.
type LinkedWallet struct {
	bun.BaseModel  `bun:"table:linked_wallet"`
	ID             int       `bun:"id,pk,autoincrement" json:"id"`
	Identifier     string    `bun:"identifier" json:"identifier"`
	Address        string    `bun:"address" json:"address"`
	TelegramChatID *int64    `bun:"telegram_chat_id" json:"telegram_chat_id,omitempty"`
	CreatedAt      time.Time `bun:"created_at,default:current_timestamp" json:"created_at"`
	UpdatedAt      time.Time `bun:"updated_at" json:"updated_at"`
}
