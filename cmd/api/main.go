package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"paylink/internal/api/handler"
	"paylink/internal/datastore"
	"paylink/internal/datastore/redis_store"
	"paylink/internal/interfaces"
	"paylink/internal/ledger"
	"paylink/internal/pkg/authz"
	"paylink/internal/pkg/caching"
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
	"github.com/samber/do"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
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
	vs, err := env.EnvsRequired(
		"DB_DSN",
		"JWT_SECRET",
		"LEDGER_GATEWAY_URLS",
		"TOKEN_CONTRACT",
		"CHAIN_ID",
		"ESCROW_PRIVATE_KEY",
	)
	if err != nil {
		log.Fatal(err)
	}

	container, err := NewContainer(vs)
	if err != nil {
		log.Fatal(err)
	}

	app := &cli.App{
		Name: "api",
		Commands: []*cli.Command{
			commandServer(container),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func commandServer(container *do.Injector) *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "start the relay API server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Value: "0.0.0.0:8080",
				Usage: "serve address",
			},
		},
		Action: func(c *cli.Context) error {
			vs := do.MustInvokeNamed[map[string]string](container, "envs")
			router, err := handler.New(&handler.Config{
				Container: container,
				Mode:      vs["API_MODE"],
				Origins:   strings.Split(vs["API_ORIGINS"], ","),
			})
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:    c.String("addr"),
				Handler: router,
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errWg, errCtx := errgroup.WithContext(ctx)

			errWg.Go(func() error {
				log.Printf("ListenAndServe: %s (%s)\n", c.String("addr"), vs["API_MODE"])
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					return err
				}
				return nil
			})

			errWg.Go(func() error {
				<-errCtx.Done()
				return srv.Shutdown(context.TODO())
			})

			return errWg.Wait()
		},
	}
}

func NewContainer(vs map[string]string) (*do.Injector, error) {
	injector := do.New()
	vs["API_MODE"] = os.Getenv("API_MODE")
	vs["API_ORIGINS"] = os.Getenv("API_ORIGINS")

	if vs["API_MODE"] == "" {
		vs["API_MODE"] = "production"
	}
	if vs["API_ORIGINS"] == "" {
		vs["API_ORIGINS"] = "*"
	}

	do.ProvideNamedValue(injector, "envs", vs)

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

	do.Provide(injector, func(i *do.Injector) (caching.Cache, error) {
		dbRedis, err := do.InvokeNamed[redis.UniversalClient](i, "redis-cache")
		if err != nil {
			return nil, err
		}

		return caching.NewCacheRedis(dbRedis, false)
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

	do.Provide(injector, func(i *do.Injector) (interfaces.WalletStore, error) {
		postgresDB, err := do.Invoke[*bun.DB](i)
		if err != nil {
			return nil, err
		}
		return &datastore.WalletStorePG{DB: postgresDB}, nil
	})

	do.Provide(injector, func(i *do.Injector) (interfaces.OutcomeCache, error) {
		dbRedis, err := do.InvokeNamed[redis.UniversalClient](i, "redis-cache")
		if err != nil {
			return nil, err
		}
		return &redis_store.OutcomeCacheRedis{Redis: dbRedis}, nil
	})

	relayerCfg, err := relayerConfig(vs)
	if err != nil {
		return nil, err
	}
	do.ProvideValue(injector, relayerCfg)

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

	do.Provide(injector, func(i *do.Injector) (*services.Authentication, error) {
		return services.NewAuthentication(vs["JWT_SECRET"])
	})

	do.Provide(injector, func(i *do.Injector) (*services.ServiceNotifier, error) {
		return services.NewServiceNotifier(injector)
	})

	do.Provide(injector, func(i *do.Injector) (interfaces.Notifier, error) {
		return do.Invoke[*services.ServiceNotifier](i)
	})

	do.Provide(injector, func(i *do.Injector) (*services.ServiceResolver, error) {
		return services.NewServiceResolver(injector)
	})

	do.Provide(injector, func(i *do.Injector) (*services.ServiceRelayer, error) {
		return services.NewServiceRelayer(injector)
	})

	do.Provide(injector, func(i *do.Injector) (*services.ServiceClaims, error) {
		return services.NewServiceClaims(injector)
	})

	return injector, nil
}

func relayerConfig(vs map[string]string) (services.RelayerConfig, error) {
	chainID, err := strconv.ParseInt(vs["CHAIN_ID"], 10, 64)
	if err != nil {
		return services.RelayerConfig{}, err
	}

	name := os.Getenv("TOKEN_NAME")
	if name == "" {
		name = "USD Coin"
	}
	version := os.Getenv("TOKEN_VERSION")
	if version == "" {
		version = "2"
	}

	minAtomic, err := boundAtomic(os.Getenv("TRANSFER_MIN"), "0.01")
	if err != nil {
		return services.RelayerConfig{}, err
	}
	maxAtomic, err := boundAtomic(os.Getenv("TRANSFER_MAX"), "10000")
	if err != nil {
		return services.RelayerConfig{}, err
	}

	return services.RelayerConfig{
		Domain: authz.Domain{
			Name:     name,
			Version:  version,
			ChainID:  chainID,
			Contract: common.HexToAddress(vs["TOKEN_CONTRACT"]),
		},
		MinAtomic:  minAtomic,
		MaxAtomic:  maxAtomic,
		SettleWait: services.SETTLEMENT_WAIT,
	}, nil
}

func boundAtomic(v, fallback string) (int64, error) {
	if v == "" {
		v = fallback
	}
	return authz.AtomicFromDecimal(v)
}

// parseEndpoints reads "https://a=3,https://b=1"; a missing weight means 1.
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
