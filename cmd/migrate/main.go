package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"strconv"
	"strings"

	"paylink/internal/datastore"
	"paylink/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/urfave/cli/v2"
)

func init() {
	// for development
	//nolint:errcheck
	godotenv.Load("../../.env")

	// for production
	//nolint:errcheck
	godotenv.Load("./.env")
}

func main() {
	app := &cli.App{
		Name: "migrate",
		Commands: []*cli.Command{
			commandMigration(),
			commandLinkWallet(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func commandMigration() *cli.Command {
	return &cli.Command{
		Name: "migrate",
		Action: func(c *cli.Context) error {
			ctx := context.Background()
			db, err := getDb()
			if err != nil {
				log.Fatal(err)
			}

			err = datastore.CreateTableRelaySubmission(ctx, db)
			if err != nil {
				log.Fatal(err)
			}

			err = datastore.CreateTableClaim(ctx, db)
			if err != nil {
				log.Fatal(err)
			}

			err = datastore.CreateTableLinkedWallet(ctx, db)
			if err != nil {
				log.Fatal(err)
			}

			log.Println("migration done")
			return nil
		},
	}
}

// commandLinkWallet seeds or repairs a directory row from the command line:
// migrate link-wallet <identifier> <address> [telegram-chat-id]
func commandLinkWallet() *cli.Command {
	return &cli.Command{
		Name: "link-wallet",
		Action: func(c *cli.Context) error {
			identifier := c.Args().Get(0)
			address := c.Args().Get(1)
			if identifier == "" || !common.IsHexAddress(address) {
				log.Fatal("usage: link-wallet <identifier> <address> [telegram-chat-id]")
			}

			var chatID *int64
			if raw := c.Args().Get(2); raw != "" {
				parsed, err := strconv.ParseInt(raw, 10, 64)
				if err != nil {
					log.Fatal(err)
				}
				chatID = &parsed
			}

			ctx := context.Background()
			db, err := getDb()
			if err != nil {
				log.Fatal(err)
			}

			err = datastore.UpsertLinkedWallet(ctx, db, &models.LinkedWallet{
				Identifier:     strings.ToLower(identifier),
				Address:        common.HexToAddress(address).Hex(),
				TelegramChatID: chatID,
			})
			if err != nil {
				log.Fatal(err)
			}

			log.Println("linked", identifier, "->", address)
			return nil
		},
	}
}

func getDb() (*bun.DB, error) {
	//nolint:errcheck
	godotenv.Load()
	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(os.Getenv("DB_DSN")),
		pgdriver.WithPassword(os.Getenv("DB_PASSWORD")),
	))

	db := bun.NewDB(sqldb, pgdialect.New())
	return db, nil
}
