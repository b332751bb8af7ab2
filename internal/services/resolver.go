package services

import (
	"context"
	"errors"
	"net/mail"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/samber/do"

	"paylink/internal/interfaces"
	"paylink/internal/models"
	"paylink/internal/pkg/caching"
)

type IdentifierKind string

const (
	IdentifierAddress IdentifierKind = "address"
	IdentifierEmail   IdentifierKind = "email"
	IdentifierPhone   IdentifierKind = "phone"
	IdentifierUnknown IdentifierKind = "unknown"
)

var rePhone = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

var errWalletNotLinked = errors.New("no wallet linked to identifier")

// Resolution is the resolver's verdict: a direct receiving address, or a
// signal that funds must go through an escrow claim.
type Resolution struct {
	Resolved   bool           `json:"resolved"`
	Address    string         `json:"address,omitempty"`
	NeedsClaim bool           `json:"needs_claim,omitempty"`
	Kind       IdentifierKind `json:"kind"`
	// TelegramChatID is carried for receipt delivery, never serialized.
	TelegramChatID int64 `json:"-"`
}

// ServiceResolver maps human-facing identifiers to receiving addresses. Pure
// lookup, no side effects; upstream lookup failures surface to the caller
// rather than being retried here.
type ServiceResolver struct {
	container *do.Injector
	wallets   interfaces.WalletStore
	cache     caching.Cache
}

func NewServiceResolver(container *do.Injector) (*ServiceResolver, error) {
	wallets, err := do.Invoke[interfaces.WalletStore](container)
	if err != nil {
		return nil, err
	}

	cache, err := do.Invoke[caching.Cache](container)
	if err != nil {
		return nil, err
	}

	return &ServiceResolver{container, wallets, cache}, nil
}

func ClassifyIdentifier(identifier string) IdentifierKind {
	identifier = strings.TrimSpace(identifier)
	switch {
	case common.IsHexAddress(identifier):
		return IdentifierAddress
	case rePhone.MatchString(identifier):
		return IdentifierPhone
	}

	if addr, err := mail.ParseAddress(identifier); err == nil && addr.Address == identifier {
		return IdentifierEmail
	}

	return IdentifierUnknown
}

func (service *ServiceResolver) Resolve(ctx context.Context, identifier string) (*Resolution, error) {
	identifier = strings.TrimSpace(identifier)
	kind := ClassifyIdentifier(identifier)

	switch kind {
	case IdentifierAddress:
		return &Resolution{Resolved: true, Address: common.HexToAddress(identifier).Hex(), Kind: kind}, nil
	case IdentifierUnknown:
		return nil, errorx.Wrap(errors.New("unrecognized identifier"), errorx.NotExist)
	}

	normalized := strings.ToLower(identifier)
	callback := func() (*models.LinkedWallet, error) {
		wallet, err := service.wallets.FindByIdentifier(ctx, normalized)
		if err != nil {
			return nil, err
		}
		if wallet == nil {
			return nil, errWalletNotLinked
		}
		return wallet, nil
	}

	wallet, err := caching.UseCache(ctx, service.cache, DBKeyLinkedWallet(normalized), CACHE_TTL_5_MINS, callback)
	if errors.Is(err, errWalletNotLinked) {
		return &Resolution{NeedsClaim: true, Kind: kind}, nil
	}
	if err != nil {
		return nil, err
	}

	resolution := &Resolution{Resolved: true, Address: wallet.Address, Kind: kind}
	if wallet.TelegramChatID != nil {
		resolution.TelegramChatID = *wallet.TelegramChatID
	}
	return resolution, nil
}
