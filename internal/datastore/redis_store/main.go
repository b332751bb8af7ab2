package redis_store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"paylink/internal/models"
)

const (
	OUTCOME_TTL       = 24 * time.Hour
	NOTIFY_DEDUPE_TTL = 24 * time.Hour
)

func dbKeySubmissionOutcome(idempotencyKey string) string {
	return fmt.Sprintf("relay:outcome:%s", strings.ToLower(idempotencyKey))
}

func dbKeyClaimNotified(token string) string {
	return fmt.Sprintf("claim:notified:%s", strings.ToLower(token))
}

// SetSubmissionOutcome records a terminal outcome for idempotent replay.
func SetSubmissionOutcome(ctx context.Context, cmd redis.Cmdable, idempotencyKey string, outcome *models.SubmissionOutcome) error {
	b, err := msgpack.Marshal(outcome)
	if err != nil {
		return err
	}
	return cmd.Set(ctx, dbKeySubmissionOutcome(idempotencyKey), b, OUTCOME_TTL).Err()
}

func GetSubmissionOutcome(ctx context.Context, cmd redis.Cmdable, idempotencyKey string) (*models.SubmissionOutcome, error) {
	b, err := cmd.Get(ctx, dbKeySubmissionOutcome(idempotencyKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var outcome models.SubmissionOutcome
	if err := msgpack.Unmarshal(b, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}

// MarkClaimNotified returns true the first time a claim's notification goes
// out; later calls are duplicates.
func MarkClaimNotified(ctx context.Context, cmd redis.Cmdable, token string) (bool, error) {
	return cmd.SetNX(ctx, dbKeyClaimNotified(token), time.Now().Unix(), NOTIFY_DEDUPE_TTL).Result()
}

// OutcomeCacheRedis adapts the package functions to interfaces.OutcomeCache.
type OutcomeCacheRedis struct {
	Redis redis.UniversalClient
}

func (c *OutcomeCacheRedis) GetOutcome(ctx context.Context, key string) (*models.SubmissionOutcome, error) {
	return GetSubmissionOutcome(ctx, c.Redis, key)
}

func (c *OutcomeCacheRedis) SetOutcome(ctx context.Context, key string, outcome *models.SubmissionOutcome) error {
	return SetSubmissionOutcome(ctx, c.Redis, key, outcome)
}
