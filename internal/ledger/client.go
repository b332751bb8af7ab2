// Package ledger talks to the settlement gateway: the append-only,
// eventually-consistent authority that executes authorized transfers and
// enforces nonce uniqueness. Everything here is transport; replay protection
// lives on the other side of the wire.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gojek/heimdall/v7"
	"github.com/gojek/heimdall/v7/httpclient"
	"github.com/mroth/weightedrand/v2"
)

type SettlementStatus string

const (
	SettlementPending  SettlementStatus = "pending"
	SettlementSuccess  SettlementStatus = "success"
	SettlementReverted SettlementStatus = "reverted"
)

var (
	// ErrNonceUsed means an earlier attempt with this authorization already
	// landed; the caller should replay its recorded outcome.
	ErrNonceUsed = errors.New("ledger: authorization nonce already used")
	// ErrReverted is terminal; the authorization is consumed and must never
	// be retried.
	ErrReverted = errors.New("ledger: authorization rejected")
)

type AuthorizedCall struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  int64  `json:"validAfter"`
	ValidBefore int64  `json:"validBefore"`
	Nonce       string `json:"nonce"`
	Signature   string `json:"signature"`
}

type Settlement struct {
	Status      SettlementStatus `json:"status"`
	TxRef       string           `json:"txRef"`
	ConfirmedAt time.Time        `json:"confirmedAt"`
	Reason      string           `json:"reason,omitempty"`
}

type Ledger interface {
	Submit(ctx context.Context, call *AuthorizedCall) (string, error)
	WaitForSettlement(ctx context.Context, txRef string, timeout time.Duration) (*Settlement, error)
}

type Endpoint struct {
	URL    string
	Weight int
}

// Client submits over HTTP against one of several gateway endpoints, chosen
// by weight per request.
type Client struct {
	http     *httpclient.Client
	chooser  *weightedrand.Chooser[string, int]
	apiKey   string
	pollTick time.Duration
}

func NewClient(endpoints []Endpoint, apiKey string) (*Client, error) {
	if len(endpoints) == 0 {
		return nil, errors.New("ledger: no gateway endpoints configured")
	}

	choices := make([]weightedrand.Choice[string, int], 0, len(endpoints))
	for _, ep := range endpoints {
		weight := ep.Weight
		if weight <= 0 {
			weight = 1
		}
		choices = append(choices, weightedrand.NewChoice(ep.URL, weight))
	}

	chooser, err := weightedrand.NewChooser(choices...)
	if err != nil {
		return nil, err
	}

	client := httpclient.NewClient(
		httpclient.WithHTTPTimeout(10*time.Second),
		httpclient.WithRetryCount(2),
		httpclient.WithRetrier(heimdall.NewRetrier(heimdall.NewConstantBackoff(500*time.Millisecond, 100*time.Millisecond))),
	)

	return &Client{http: client, chooser: chooser, apiKey: apiKey, pollTick: 2 * time.Second}, nil
}

func (c *Client) headers() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		h.Set("X-Api-Key", c.apiKey)
	}
	return h
}

type submitResponse struct {
	TxRef string `json:"txRef"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// Submit pushes the authorized transfer through the relayer's service
// account. This is the single non-idempotent step of the whole saga.
func (c *Client) Submit(ctx context.Context, call *AuthorizedCall) (string, error) {
	body, err := json.Marshal(call)
	if err != nil {
		return "", err
	}

	base := c.chooser.Pick()
	resp, err := c.http.Post(base+"/v1/authorizations", bytes.NewReader(body), c.headers())
	if err != nil {
		return "", fmt.Errorf("ledger: submit: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ledger: submit: %w", err)
	}

	var out submitResponse
	//nolint:errcheck
	json.Unmarshal(raw, &out)

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted:
		if out.TxRef == "" {
			return "", fmt.Errorf("ledger: submit: empty txRef")
		}
		return out.TxRef, nil
	case resp.StatusCode == http.StatusConflict || out.Code == "authorization_used":
		return "", ErrNonceUsed
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", fmt.Errorf("%w: %s", ErrReverted, out.Error)
	default:
		return "", fmt.Errorf("ledger: submit: gateway status %d", resp.StatusCode)
	}
}

// WaitForSettlement polls the gateway until the transfer confirms, reverts,
// or the bounded wait elapses. A deadline here is ambiguous but retry-safe
// for the caller: the nonce cannot land twice.
func (c *Client) WaitForSettlement(ctx context.Context, txRef string, timeout time.Duration) (*Settlement, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(c.pollTick)
	defer ticker.Stop()

	for {
		settlement, err := c.settlement(ctx, txRef)
		if err == nil && settlement.Status != SettlementPending {
			return settlement, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) settlement(ctx context.Context, txRef string) (*Settlement, error) {
	base := c.chooser.Pick()
	resp, err := c.http.Get(base+"/v1/settlements/"+txRef, c.headers())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ledger: settlement: gateway status %d", resp.StatusCode)
	}

	var settlement Settlement
	if err := json.NewDecoder(resp.Body).Decode(&settlement); err != nil {
		return nil, err
	}
	settlement.TxRef = txRef
	return &settlement, nil
}
