// Package auth builds and signs off-chain payment authorizations: typed
// EIP-712 TransferWithAuthorization messages bound to the payment
// protocol's relay domain.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	tokenmint "github.com/b402-foundation/tokenmint"
)

const (
	// DomainName and DomainVersion identify the relay protocol in the
	// EIP-712 domain separator.
	DomainName    = "B402"
	DomainVersion = "1"

	// DefaultValidityPeriod is how long a fresh authorization stays
	// valid, in seconds.
	DefaultValidityPeriod = 3600
)

// transferWithAuthorizationTypes is the EIP-712 type set for the
// authorization message.
var transferWithAuthorizationTypes = map[string][]tokenmint.TypedDataField{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"TransferWithAuthorization": {
		{Name: "from", Type: "address"},
		{Name: "to", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "validAfter", Type: "uint256"},
		{Name: "validBefore", Type: "uint256"},
		{Name: "nonce", Type: "bytes32"},
	},
}

// Config configures the authorization signer.
type Config struct {
	// Signer is the payer's typed-data signing capability. May be nil,
	// in which case CreateAuthorization fails with signing_unavailable.
	Signer tokenmint.TypedDataSigner

	// ChainID of the network the authorization is bound to.
	ChainID *big.Int

	// RelayerAddress is the verifying contract of the EIP-712 domain.
	RelayerAddress string

	// MerchantAddress receives the authorized payment.
	MerchantAddress string

	// ValidityPeriod overrides the 1h default (optional).
	ValidityPeriod time.Duration
}

// Signer creates signed payment authorizations. The nonce and validity
// window are request-scoped and never persisted.
type Signer struct {
	cfg      Config
	validity time.Duration
}

// New validates the configuration and returns an authorization signer.
func New(cfg Config) (*Signer, error) {
	if cfg.ChainID == nil {
		return nil, tokenmint.NewConfigurationError("chain ID is required")
	}
	if !tokenmint.ValidAddress(cfg.RelayerAddress) {
		return nil, tokenmint.NewConfigurationError("invalid relayer address")
	}
	if !tokenmint.ValidAddress(cfg.MerchantAddress) {
		return nil, tokenmint.NewConfigurationError("invalid merchant address")
	}
	validity := cfg.ValidityPeriod
	if validity == 0 {
		validity = DefaultValidityPeriod * time.Second
	}
	return &Signer{cfg: cfg, validity: validity}, nil
}

// CreateAuthorization builds a fresh authorization for amount base units
// of the given stablecoin and asks the payer's key to sign it.
func (s *Signer) CreateAuthorization(ctx context.Context, tokenAddress string, amount *big.Int) (*tokenmint.SignedAuthorization, error) {
	if s.cfg.Signer == nil {
		return nil, tokenmint.NewError(tokenmint.ErrCodeSigningUnavailable,
			"no signing capability configured", false)
	}
	if !tokenmint.ValidAddress(tokenAddress) {
		return nil, tokenmint.NewValidationError("invalid payment token address")
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, tokenmint.NewValidationError("authorization amount must be greater than 0")
	}

	nonce, err := createNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	now := time.Now().Unix()
	validAfter := now
	validBefore := now + int64(s.validity/time.Second)

	authorization := tokenmint.PaymentAuthorization{
		From:        s.cfg.Signer.Address(),
		To:          s.cfg.MerchantAddress,
		Value:       amount.String(),
		ValidAfter:  validAfter,
		ValidBefore: validBefore,
		Nonce:       nonce,
	}

	domain := tokenmint.TypedDataDomain{
		Name:              DomainName,
		Version:           DomainVersion,
		ChainID:           s.cfg.ChainID,
		VerifyingContract: s.cfg.RelayerAddress,
	}

	nonceBytes, err := hex.DecodeString(nonce[2:])
	if err != nil {
		return nil, fmt.Errorf("invalid nonce: %w", err)
	}

	message := map[string]interface{}{
		"from":        authorization.From,
		"to":          authorization.To,
		"value":       new(big.Int).Set(amount),
		"validAfter":  big.NewInt(validAfter),
		"validBefore": big.NewInt(validBefore),
		"nonce":       nonceBytes,
	}

	signature, err := s.cfg.Signer.SignTypedData(ctx, domain, transferWithAuthorizationTypes,
		"TransferWithAuthorization", message)
	if err != nil {
		return nil, &tokenmint.Error{
			Code:    tokenmint.ErrCodeSigningRejected,
			Message: fmt.Sprintf("payer declined to sign authorization: %v", err),
		}
	}

	return &tokenmint.SignedAuthorization{
		Authorization: authorization,
		Signature:     "0x" + hex.EncodeToString(signature),
		TokenAddress:  tokenAddress,
	}, nil
}

// createNonce returns a fresh random 32-byte nonce as a 0x-prefixed hex
// string. Collisions within a payer's authorization space are ruled out
// by the 256-bit entropy.
func createNonce() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(b[:]), nil
}
