package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gojek/heimdall/v7/httpclient"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"

	"paylink/internal/datastore/redis_store"
	"paylink/internal/models"
	"paylink/internal/pkg/authz"
)

// NotifierConfig points at the delivery backends: the provider webhook for
// email/phone identifiers, the bot for telegram-linked senders, and the base
// URL claim links hang off.
type NotifierConfig struct {
	WebhookURL   string
	ClaimBaseURL string
}

// ServiceNotifier dispatches claim notifications. Everything here is fire
// and forget on its own short deadline; a delivery failure is logged and
// never reaches the settlement path.
type ServiceNotifier struct {
	container *do.Injector
	redisDB   redis.UniversalClient
	bot       *Bot
	http      *httpclient.Client
	cfg       NotifierConfig
}

func NewServiceNotifier(container *do.Injector) (*ServiceNotifier, error) {
	redisDB, err := do.InvokeNamed[redis.UniversalClient](container, "redis-cache")
	if err != nil {
		return nil, err
	}

	bot, err := do.Invoke[*Bot](container)
	if err != nil {
		return nil, err
	}

	cfg, err := do.Invoke[NotifierConfig](container)
	if err != nil {
		return nil, err
	}

	client := httpclient.NewClient(httpclient.WithHTTPTimeout(NOTIFY_TIMEOUT))

	return &ServiceNotifier{container, redisDB, bot, client, cfg}, nil
}

type claimTemplateData struct {
	To        string `json:"to"`
	Template  string `json:"template"`
	Amount    string `json:"amount"`
	Memo      string `json:"memo,omitempty"`
	Link      string `json:"link"`
	ExpiresAt string `json:"expires_at"`
}

// NotifyClaim tells the recipient identifier that funds are waiting. Runs on
// its own context so it can never delay or fail the settlement result it
// reports on.
func (service *ServiceNotifier) NotifyClaim(claim *models.Claim) {
	ctx, cancel := context.WithTimeout(context.Background(), NOTIFY_TIMEOUT)
	defer cancel()

	first, err := redis_store.MarkClaimNotified(ctx, service.redisDB, claim.Token)
	if err == nil && !first {
		return
	}

	data := claimTemplateData{
		To:        claim.RecipientID,
		Template:  "claim_created",
		Amount:    authz.FormatAtomic(claim.AmountAtomic),
		Memo:      claim.Memo,
		Link:      service.cfg.ClaimBaseURL + "/claim/" + claim.Token,
		ExpiresAt: claim.ExpiresAt.Format(time.RFC3339),
	}

	if err := service.sendWebhook(ctx, data); err != nil {
		log.Printf("notifier: claim %s: %v", claim.Token, err)
	}
}

// NotifyTransferReceipt pings the recipient's linked telegram chat after a
// settled direct transfer. Best effort like everything else here.
func (service *ServiceNotifier) NotifyTransferReceipt(chatID int64, amountAtomic int64, from string) {
	text := fmt.Sprintf("💸 Received <b>%s USDC</b> from %s", authz.FormatAtomic(amountAtomic), from)
	if err := service.bot.SendMsg(chatID, text); err != nil {
		log.Printf("notifier: telegram receipt: %v", err)
	}
}

func (service *ServiceNotifier) sendWebhook(ctx context.Context, data claimTemplateData) error {
	if service.cfg.WebhookURL == "" {
		return nil
	}

	body, err := json.Marshal(data)
	if err != nil {
		return err
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")

	resp, err := service.http.Post(service.cfg.WebhookURL, bytes.NewReader(body), headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}
