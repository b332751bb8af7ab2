package authz

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"paylink/internal/models"
)

// Domain carries the EIP-712 domain parameters of the token contract the
// relay submits against.
type Domain struct {
	Name     string
	Version  string
	ChainID  int64
	Contract common.Address
}

const (
	// Default validity window: tolerate modest clock skew behind us, bound
	// signature-replay exposure ahead of us.
	DefaultGrace  = time.Minute
	DefaultWindow = 10 * time.Minute

	primaryType = "TransferWithAuthorization"
)

var (
	domainTypehash = crypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	structTypehash = crypto.Keccak256([]byte("TransferWithAuthorization(address from,address to,uint256 value,uint256 validAfter,uint256 validBefore,bytes32 nonce)"))

	ErrBadSignature = errors.New("malformed signature")
	ErrWrongSigner  = errors.New("signature does not match sender")
)

// NewNonce returns a cryptographically random 32-byte nonce, hex-encoded.
func NewNonce() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hexutil.Encode(b[:]), nil
}

// Build constructs the unsigned authorization plus the typed-data envelope an
// external signer consumes. Deterministic apart from nonce and timestamps.
func Build(domain Domain, from, to common.Address, atomic int64, now time.Time) (*models.TransferAuthorization, *models.SignPayload, error) {
	nonce, err := NewNonce()
	if err != nil {
		return nil, nil, err
	}

	auth := &models.TransferAuthorization{
		From:        from.Hex(),
		To:          to.Hex(),
		Value:       strconv.FormatInt(atomic, 10),
		ValidAfter:  now.Add(-DefaultGrace).Unix(),
		ValidBefore: now.Add(DefaultWindow).Unix(),
		Nonce:       nonce,
	}

	payload := &models.SignPayload{
		Types: map[string][]models.TypedField{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			primaryType: {
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: primaryType,
		Domain: models.TypedDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainID:           domain.ChainID,
			VerifyingContract: domain.Contract.Hex(),
		},
		Message: map[string]any{
			"from":        auth.From,
			"to":          auth.To,
			"value":       auth.Value,
			"validAfter":  auth.ValidAfter,
			"validBefore": auth.ValidBefore,
			"nonce":       auth.Nonce,
		},
	}

	return auth, payload, nil
}

func domainSeparator(domain Domain) []byte {
	return crypto.Keccak256(
		domainTypehash,
		crypto.Keccak256([]byte(domain.Name)),
		crypto.Keccak256([]byte(domain.Version)),
		uint256Bytes(big.NewInt(domain.ChainID)),
		common.LeftPadBytes(domain.Contract.Bytes(), 32),
	)
}

// Digest computes the EIP-712 signing digest for an authorization.
func Digest(domain Domain, auth *models.TransferAuthorization) ([]byte, error) {
	if !common.IsHexAddress(auth.From) || !common.IsHexAddress(auth.To) {
		return nil, fmt.Errorf("malformed address in authorization")
	}

	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("malformed value %q", auth.Value)
	}

	nonce, err := hexutil.Decode(auth.Nonce)
	if err != nil || len(nonce) != 32 {
		return nil, fmt.Errorf("nonce must be 32 bytes")
	}

	structHash := crypto.Keccak256(
		structTypehash,
		common.LeftPadBytes(common.HexToAddress(auth.From).Bytes(), 32),
		common.LeftPadBytes(common.HexToAddress(auth.To).Bytes(), 32),
		uint256Bytes(value),
		uint256Bytes(big.NewInt(auth.ValidAfter)),
		uint256Bytes(big.NewInt(auth.ValidBefore)),
		nonce,
	)

	return crypto.Keccak256([]byte("\x19\x01"), domainSeparator(domain), structHash), nil
}

// DecodeSignature checks structure only: 65 bytes, recovery byte in
// {0,1,27,28}. The returned signature is normalized to v in {0,1} as the
// recovery code expects. This runs before any rate-limit or ledger work.
func DecodeSignature(sig string) ([]byte, error) {
	raw, err := hexutil.Decode(sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if len(raw) != crypto.SignatureLength {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrBadSignature, crypto.SignatureLength, len(raw))
	}

	v := raw[64]
	if v == 27 || v == 28 {
		v -= 27
	}
	if v > 1 {
		return nil, fmt.Errorf("%w: recovery byte out of range", ErrBadSignature)
	}

	out := make([]byte, crypto.SignatureLength)
	copy(out, raw)
	out[64] = v
	return out, nil
}

// Verify validates the authorization's signature end to end: structure,
// digest, and that the recovered signer equals From.
func Verify(domain Domain, auth *models.TransferAuthorization) error {
	sig, err := DecodeSignature(auth.Signature)
	if err != nil {
		return err
	}

	digest, err := Digest(domain, auth)
	if err != nil {
		return err
	}

	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	if crypto.PubkeyToAddress(*pub) != common.HexToAddress(auth.From) {
		return ErrWrongSigner
	}

	return nil
}

// Sign signs the authorization with a service-held key (escrow payouts and
// refunds). End-user authorizations are signed client-side.
func Sign(domain Domain, auth *models.TransferAuthorization, key *ecdsa.PrivateKey) error {
	digest, err := Digest(domain, auth)
	if err != nil {
		return err
	}

	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return err
	}

	sig[64] += 27
	auth.Signature = hexutil.Encode(sig)
	return nil
}

func uint256Bytes(v *big.Int) []byte {
	return common.LeftPadBytes(v.Bytes(), 32)
}
