package services

import (
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
)

type CustomClaims struct {
	Address string `json:"address"`
	jwt.RegisteredClaims
}

// Authentication issues and validates bearer sessions bound to a sender
// address. Wallet-connection and signing UI live client-side; by the time a
// request reaches this service the session token is all that matters.
type Authentication struct {
	secret string
}

func NewAuthentication(secret string) (*Authentication, error) {
	return &Authentication{secret}, nil
}

func (authentication *Authentication) CreateToken(address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", errors.New("malformed address")
	}

	claims := &CustomClaims{
		Address: common.HexToAddress(address).Hex(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(authentication.secret))
}

func (authentication *Authentication) Validate(token string) (string, error) {
	keyFunc := func(token *jwt.Token) (interface{}, error) {
		return []byte(authentication.secret), nil
	}

	jwtToken, err := jwt.ParseWithClaims(token, &CustomClaims{}, keyFunc)
	if err != nil {
		return "", err
	}

	claims, ok := jwtToken.Claims.(*CustomClaims)
	if !ok || !jwtToken.Valid {
		return "", errors.New("invalid token claims")
	}

	if !common.IsHexAddress(strings.TrimSpace(claims.Address)) {
		return "", errors.New("invalid session address")
	}

	return common.HexToAddress(claims.Address).Hex(), nil
}
