package main

import (
	"database/sql"
	"log"
	"os"
	"strconv"
	"strings"

	"paylink/internal/datastore"
	"paylink/internal/datastore/redis_store"
	"paylink/internal/interfaces"
	"paylink/internal/ledger"
	"paylink/internal/pkg/authz"
	"paylink/internal/pkg/limiter"
	"paylink/internal/services"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/hiendaovinh/toolkit/pkg/db"
	"github.com/hiendaovinh/toolkit/pkg/env"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/samber/do"
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
		Name: "cronjob",
		Commands: []*cli.Command{
			commandCronjob(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func commandCronjob() *cli.Command {
	return &cli.Command{
		Name: "cron",
		Action: func(c *cli.Context) error {
			vs, err := env.EnvsRequired(
				"DB_DSN",
				"LEDGER_GATEWAY_URLS",
				"TOKEN_CONTRACT",
				"CHAIN_ID",
				"ESCROW_PRIVATE_KEY",
			)
			if err != nil {
				return err
			}

			container, err := newContainer(vs)
			if err != nil {
				return err
			}

			claims, err := do.Invoke[*services.ServiceClaims](container)
			if err != nil {
				return err
			}

			cronRunner := cron.New()

			sweepJob := NewSweepJob(claims)
			if err := sweepJob.Start(cronRunner); err != nil {
				return err
			}
			log.Println("Start cronjob")
			cronRunner.Run()
			return nil
		},
	}
}

func newContainer(vs map[string]string) (*do.Injector, error) {
	injector := do.New()

	do.Provide(injector, func(i *do.Injector) (*bun.DB, error) {
		sqldb := sql.OpenDB(pgdriver.NewConnector(
			pgdriver.WithDSN(os.Getenv("DB_DSN")),
			pgdriver.WithPassword(os.Getenv("DB_PASSWORD")),
		))

		return bun.NewDB(sqldb, pgdialect.New()), nil
	})

	do.ProvideNamed(injector, "redis-cache", func(i *do.Injector) (redis.UniversalClient, error) {
		return db.InitRedis(&db.RedisConfig{
			URL: os.Getenv("REDIS_CACHE"),
		})
	})

	do.ProvideNamed(injector, "redis-limiter", func(i *do.Injector) (redis.UniversalClient, error) {
		return db.InitRedis(&db.RedisConfig{
			URL: os.Getenv("REDIS_LIMITER"),
		})
	})

	do.ProvideNamed(injector, "redis-mutex", func(i *do.Injector) (redis.UniversalClient, error) {
		return db.InitRedis(&db.RedisConfig{
			URL: os.Getenv("REDIS_MUTEX"),
		})
	})

	do.Provide(injector, func(i *do.Injector) (interfaces.Limiter, error) {
		dbRedis, err := do.InvokeNamed[redis.UniversalClient](i, "redis-limiter")
		if err != nil {
			return nil, err
		}

		return limiter.NewLimiter(dbRedis)
	})

	do.Provide(injector, func(i *do.Injector) (*redsync.Redsync, error) {
		dbRedis, err := do.InvokeNamed[redis.UniversalClient](i, "redis-mutex")
		if err != nil {
			return nil, err
		}

		pool := goredis.NewPool(dbRedis)
		return redsync.New(pool), nil
	})

	do.Provide(injector, func(i *do.Injector) (ledger.Ledger, error) {
		return ledger.NewClient(parseEndpoints(os.Getenv("LEDGER_GATEWAY_URLS")), os.Getenv("LEDGER_API_KEY"))
	})

	do.Provide(injector, func(i *do.Injector) (interfaces.SubmissionStore, error) {
		postgresDB, err := do.Invoke[*bun.DB](i)
		if err != nil {
			return nil, err
		}
		return &datastore.SubmissionStorePG{DB: postgresDB}, nil
	})

	do.Provide(injector, func(i *do.Injector) (interfaces.ClaimStore, error) {
		postgresDB, err := do.Invoke[*bun.DB](i)
		if err != nil {
			return nil, err
		}
		return &datastore.ClaimStorePG{DB: postgresDB}, nil
	})

	do.Provide(injector, func(i *do.Injector) (interfaces.OutcomeCache, error) {
		dbRedis, err := do.InvokeNamed[redis.UniversalClient](i, "redis-cache")
		if err != nil {
			return nil, err
		}
		return &redis_store.OutcomeCacheRedis{Redis: dbRedis}, nil
	})

	chainID, err := strconv.ParseInt(vs["CHAIN_ID"], 10, 64)
	if err != nil {
		return nil, err
	}

	name := os.Getenv("TOKEN_NAME")
	if name == "" {
		name = "USD Coin"
	}
	version := os.Getenv("TOKEN_VERSION")
	if version == "" {
		version = "2"
	}

	minAtomic, err := authz.AtomicFromDecimal(envOr("TRANSFER_MIN", "0.01"))
	if err != nil {
		return nil, err
	}
	maxAtomic, err := authz.AtomicFromDecimal(envOr("TRANSFER_MAX", "10000"))
	if err != nil {
		return nil, err
	}

	do.ProvideValue(injector, services.RelayerConfig{
		Domain: authz.Domain{
			Name:     name,
			Version:  version,
			ChainID:  chainID,
			Contract: common.HexToAddress(vs["TOKEN_CONTRACT"]),
		},
		MinAtomic:  minAtomic,
		MaxAtomic:  maxAtomic,
		SettleWait: services.SETTLEMENT_WAIT,
	})

	escrowKey, err := crypto.HexToECDSA(strings.TrimPrefix(vs["ESCROW_PRIVATE_KEY"], "0x"))
	if err != nil {
		return nil, err
	}
	do.ProvideValue(injector, services.ClaimsConfig{
		EscrowKey: escrowKey,
		ClaimTTL:  services.CLAIM_TTL_DEFAULT,
	})

	do.ProvideValue(injector, services.NotifierConfig{
		WebhookURL:   os.Getenv("NOTIFY_WEBHOOK_URL"),
		ClaimBaseURL: os.Getenv("CLAIM_BASE_URL"),
	})

	do.Provide(injector, func(i *do.Injector) (*services.Bot, error) {
		return services.NewBot(os.Getenv("BOT_TOKEN"))
	})

	do.Provide(injector, func(i *do.Injector) (*services.ServiceNotifier, error) {
		return services.NewServiceNotifier(injector)
	})

	do.Provide(injector, func(i *do.Injector) (interfaces.Notifier, error) {
		return do.Invoke[*services.ServiceNotifier](i)
	})

	do.Provide(injector, func(i *do.Injector) (*services.ServiceRelayer, error) {
		return services.NewServiceRelayer(injector)
	})

	do.Provide(injector, func(i *do.Injector) (*services.ServiceClaims, error) {
		return services.NewServiceClaims(injector)
	})

	return injector, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseEndpoints(raw string) []ledger.Endpoint {
	var endpoints []ledger.Endpoint
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		url, weightStr, found := strings.Cut(part, "=")
		weight := 1
		if found {
			if w, err := strconv.Atoi(weightStr); err == nil {
				weight = w
			}
		}
		endpoints = append(endpoints, ledger.Endpoint{URL: url, Weight: weight})
	}
	return endpoints
}
