package handler

import (
	"errors"
	"strconv"
	"time"

	"paylink/internal/models"
	"paylink/internal/pkg/authz"
	"paylink/internal/services"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/hiendaovinh/toolkit/pkg/httpx-echo"
	"github.com/labstack/echo/v4"
	"github.com/samber/do"
)

type groupTransfer struct {
	container *do.Injector
}

func (gr *groupTransfer) Resolve(c echo.Context) error {
	ctx := c.Request().Context()

	identifier := c.QueryParam("identifier")
	if identifier == "" {
		return httpx.RestAbort(c, nil, errorx.Wrap(errors.New("identifier required"), errorx.Invalid))
	}

	resolver, err := do.Invoke[*services.ServiceResolver](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	resolution, err := resolver.Resolve(ctx, identifier)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	return httpx.RestAbort(c, resolution, nil)
}

type prepareRequest struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

// Prepare resolves the recipient and hands back the unsigned authorization
// plus the typed-data envelope the client's signer consumes. Nothing is
// persisted; the client comes back through Submit with the signature.
func (gr *groupTransfer) Prepare(c echo.Context) error {
	ctx := c.Request().Context()

	sender, err := ResolveSender(ctx)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	var payload prepareRequest
	if err := c.Bind(&payload); err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Invalid))
	}

	atomic, err := authz.AtomicFromDecimal(payload.Amount)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Validation))
	}

	resolver, err := do.Invoke[*services.ServiceResolver](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	resolution, err := resolver.Resolve(ctx, payload.Recipient)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	target := resolution.Address
	if resolution.NeedsClaim {
		claims, err := do.Invoke[*services.ServiceClaims](gr.container)
		if err != nil {
			return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
		}
		target = claims.EscrowAddress().Hex()
	}

	cfg, err := do.Invoke[services.RelayerConfig](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	auth, signPayload, err := authz.Build(cfg.Domain, common.HexToAddress(sender), common.HexToAddress(target), atomic, time.Now())
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	return httpx.RestAbort(c, map[string]interface{}{
		"authorization": auth,
		"sign_payload":  signPayload,
		"needs_claim":   resolution.NeedsClaim,
	}, nil)
}

type transferRequest struct {
	models.TransferAuthorization
	Recipient      string `json:"recipient"`
	Amount         string `json:"amount"`
	Memo           string `json:"memo"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// Submit relays a signed authorization: direct to a resolved address, or
// into escrow with a claim when the recipient has no linked wallet.
func (gr *groupTransfer) Submit(c echo.Context) error {
	ctx := c.Request().Context()

	sender, err := ResolveSender(ctx)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	var payload transferRequest
	if err := c.Bind(&payload); err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Invalid))
	}

	auth := payload.TransferAuthorization
	if !common.IsHexAddress(auth.From) || common.HexToAddress(auth.From) != common.HexToAddress(sender) {
		return httpx.RestAbort(c, nil, errorx.Wrap(errors.New("authorization sender does not match session"), errorx.Authn))
	}

	resolver, err := do.Invoke[*services.ServiceResolver](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	relayer, err := do.Invoke[*services.ServiceRelayer](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	req := &services.SubmitRequest{
		Authorization:  &auth,
		IdempotencyKey: payload.IdempotencyKey,
		Actor:          sender,
		ExpectedAmount: payload.Amount,
	}

	// No recipient identifier means a plain relay to the signed address.
	if payload.Recipient == "" {
		res, err := relayer.Submit(ctx, req)
		return abortSubmit(c, res, nil, err)
	}

	resolution, err := resolver.Resolve(ctx, payload.Recipient)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	if resolution.Resolved {
		if common.HexToAddress(auth.To) != common.HexToAddress(resolution.Address) {
			return httpx.RestAbort(c, nil, errorx.Wrap(errors.New("authorization target does not match recipient"), errorx.Validation))
		}
		res, err := relayer.Submit(ctx, req)
		if err == nil && resolution.TelegramChatID != 0 {
			if notifier, invokeErr := do.Invoke[*services.ServiceNotifier](gr.container); invokeErr == nil {
				if atomic, parseErr := strconv.ParseInt(auth.Value, 10, 64); parseErr == nil {
					go notifier.NotifyTransferReceipt(resolution.TelegramChatID, atomic, auth.From)
				}
			}
		}
		return abortSubmit(c, res, nil, err)
	}

	claims, err := do.Invoke[*services.ServiceClaims](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	claim, res, err := claims.Create(ctx, &auth, payload.IdempotencyKey, payload.Recipient, payload.Amount, payload.Memo)
	return abortSubmit(c, res, claim, err)
}

func abortSubmit(c echo.Context, res *services.SubmitResult, claim *models.Claim, err error) error {
	if res != nil && res.RetryAfter > 0 {
		c.Response().Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())+1))
	}
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	body := map[string]interface{}{
		"settlement_ref": res.SettlementRef,
		"status":         res.Status,
	}
	if claim != nil {
		body["claim"] = claim
	}
	return httpx.RestAbort(c, body, nil)
}
