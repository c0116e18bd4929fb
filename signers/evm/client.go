// Package evm provides an ECDSA private-key implementation of
// tokenmint.TypedDataSigner for client-side EIP-712 signing.
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	tokenmint "github.com/b402-foundation/tokenmint"
)

// KeySigner signs EIP-712 typed data with a raw ECDSA private key. It is
// the payer-side signing identity, separate from the service wallet.
type KeySigner struct {
	privateKey *ecdsa.PrivateKey
	address    string
}

// NewKeySigner creates a signer from a hex-encoded private key, with or
// without a "0x" prefix.
func NewKeySigner(privateKeyHex string) (*KeySigner, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &KeySigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey).Hex(),
	}, nil
}

// Address returns the payer's address.
func (s *KeySigner) Address() string {
	return s.address
}

// SignTypedData signs EIP-712 typed data and returns a 65-byte (r, s, v)
// signature with v adjusted to 27/28.
func (s *KeySigner) SignTypedData(
	ctx context.Context,
	domain tokenmint.TypedDataDomain,
	types map[string][]tokenmint.TypedDataField,
	primaryType string,
	message map[string]interface{},
) ([]byte, error) {
	digest, err := HashTypedData(domain, types, primaryType, message)
	if err != nil {
		return nil, err
	}

	signature, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	// Recovery ID 0/1 becomes Ethereum's 27/28.
	signature[64] += 27
	return signature, nil
}

// HashTypedData computes the EIP-712 digest
// keccak256("\x19\x01" + domainSeparator + structHash).
func HashTypedData(
	domain tokenmint.TypedDataDomain,
	types map[string][]tokenmint.TypedDataField,
	primaryType string,
	message map[string]interface{},
) ([]byte, error) {
	typedData := apitypes.TypedData{
		Types:       make(apitypes.Types),
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(domain.ChainID),
			VerifyingContract: domain.VerifyingContract,
		},
		Message: message,
	}

	for typeName, fields := range types {
		typedFields := make([]apitypes.Type, len(fields))
		for i, field := range fields {
			typedFields[i] = apitypes.Type{Name: field.Name, Type: field.Type}
		}
		typedData.Types[typeName] = typedFields
	}

	if _, exists := typedData.Types["EIP712Domain"]; !exists {
		typedData.Types["EIP712Domain"] = []apitypes.Type{
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		}
	}

	dataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash struct: %w", err)
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	rawData := []byte{0x19, 0x01}
	rawData = append(rawData, domainSeparator...)
	rawData = append(rawData, dataHash...)
	return crypto.Keccak256(rawData), nil
}

// Compile-time interface check.
var _ tokenmint.TypedDataSigner = (*KeySigner)(nil)
