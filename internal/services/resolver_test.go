package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paylink/internal/models"
)

func newTestResolver(wallets map[string]*models.LinkedWallet) *ServiceResolver {
	return &ServiceResolver{
		wallets: &memWallets{rows: wallets},
		cache:   missCache{},
	}
}

func TestClassifyIdentifier(t *testing.T) {
	cases := []struct {
		in   string
		want IdentifierKind
	}{
		{"0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", IdentifierAddress},
		{"alice@example.com", IdentifierEmail},
		{"+14155550100", IdentifierPhone},
		{"14155550100", IdentifierPhone},
		{"  alice@example.com  ", IdentifierEmail},
		{"not an identifier", IdentifierUnknown},
		{"0x1234", IdentifierUnknown},
		{"+123", IdentifierUnknown}, // too short for a phone number
		{"", IdentifierUnknown},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ClassifyIdentifier(c.in), c.in)
	}
}

func TestResolveAddressPassesThrough(t *testing.T) {
	resolver := newTestResolver(nil)

	res, err := resolver.Resolve(context.Background(), "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913")
	require.NoError(t, err)
	assert.True(t, res.Resolved)
	assert.False(t, res.NeedsClaim)
	// Normalized to the checksummed form.
	assert.Equal(t, "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", res.Address)
	assert.Equal(t, IdentifierAddress, res.Kind)
}

func TestResolveLinkedEmail(t *testing.T) {
	resolver := newTestResolver(map[string]*models.LinkedWallet{
		"alice@example.com": {Identifier: "alice@example.com", Address: "0x00000000000000000000000000000000000000aa"},
	})

	res, err := resolver.Resolve(context.Background(), "Alice@Example.com")
	require.NoError(t, err)
	assert.True(t, res.Resolved)
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", res.Address)
	assert.Equal(t, IdentifierEmail, res.Kind)
}

func TestResolveUnlinkedPhoneNeedsClaim(t *testing.T) {
	resolver := newTestResolver(nil)

	res, err := resolver.Resolve(context.Background(), "+14155550100")
	require.NoError(t, err)
	assert.False(t, res.Resolved)
	assert.True(t, res.NeedsClaim)
	assert.Equal(t, IdentifierPhone, res.Kind)
}

func TestResolveUnknownIdentifier(t *testing.T) {
	resolver := newTestResolver(nil)

	_, err := resolver.Resolve(context.Background(), "???")
	require.Error(t, err)
}
