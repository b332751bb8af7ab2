package models

// TransferAuthorization is the signed, off-chain-constructed instruction that
// permits the token contract to move Value atomic units from From to To inside
// [ValidAfter, ValidBefore]. The nonce is single-use per sender; the ledger
// rejects replays, so the record is consumed exactly once.
type TransferAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  int64  `json:"validAfter"`
	ValidBefore int64  `json:"validBefore"`
	Nonce       string `json:"nonce"`
	Signature   string `json:"signature,omitempty"`
}

// TypedField and friends describe the EIP-712 envelope handed to an external
// signer. The service never signs on behalf of end users; it only produces
// this payload.
type TypedField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type TypedDomain struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	ChainID           int64  `json:"chainId"`
	VerifyingContract string `json:"verifyingContract"`
}

type SignPayload struct {
	Types       map[string][]TypedField `json:"types"`
	PrimaryType string                  `json:"primaryType"`
	Domain      TypedDomain             `json:"domain"`
	Message     map[string]any          `json:"message"`
}
