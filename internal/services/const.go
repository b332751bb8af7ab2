package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis_rate/v10"
)

const (
	RouteClassTransfer = "transfer"
	RouteClassRead     = "read"

	// Fund-moving routes get much stricter quotas than read routes.
	TRANSFER_RATE_LIMIT_PER_MINUTE = 6
	READ_RATE_LIMIT_PER_MINUTE     = 120

	CACHE_TTL_5_MINS = 5 * time.Minute

	CLAIM_TTL_DEFAULT    = 14 * 24 * time.Hour
	CLAIM_SWEEP_BATCH    = 100
	SETTLEMENT_WAIT      = 30 * time.Second
	NOTIFY_TIMEOUT       = 5 * time.Second
	SWEEP_LOCK_EXPIRY    = 5 * time.Minute
)

// RouteLimits is the static per-route-class configuration table.
var RouteLimits = map[string]redis_rate.Limit{
	RouteClassTransfer: redis_rate.PerMinute(TRANSFER_RATE_LIMIT_PER_MINUTE),
	RouteClassRead:     redis_rate.PerMinute(READ_RATE_LIMIT_PER_MINUTE),
}

func LimitKeyRoute(actor, routeClass string) string {
	return fmt.Sprintf("limit:%s:%s", routeClass, strings.ToLower(actor))
}

func DBKeyLinkedWallet(identifier string) string {
	return fmt.Sprintf("wallet:%s", strings.ToLower(identifier))
}
