package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticationRoundtrip(t *testing.T) {
	authentication, err := NewAuthentication("test-secret")
	require.NoError(t, err)

	token, err := authentication.CreateToken("0x833589fcd6edb6e08f4c7c32d4f71b54bda02913")
	require.NoError(t, err)

	address, err := authentication.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", address)
}

func TestAuthenticationRejects(t *testing.T) {
	authentication, err := NewAuthentication("test-secret")
	require.NoError(t, err)

	_, err = authentication.CreateToken("not-an-address")
	assert.Error(t, err)

	_, err = authentication.Validate("garbage")
	assert.Error(t, err)

	// Signed under a different secret.
	other, err := NewAuthentication("other-secret")
	require.NoError(t, err)
	token, err := other.CreateToken("0x833589fcd6edb6e08f4c7c32d4f71b54bda02913")
	require.NoError(t, err)

	_, err = authentication.Validate(token)
	assert.Error(t, err)
}
