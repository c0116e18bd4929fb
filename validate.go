package tokenmint

import (
	"regexp"
	"time"
)

var (
	addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	txHashPattern  = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)
	noncePattern   = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)
)

// ValidAddress reports whether s is a well-formed EVM address.
func ValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// ValidTxHash reports whether s is a well-formed transaction hash.
func ValidTxHash(s string) bool {
	return txHashPattern.MatchString(s)
}

// ValidateAuthorization performs structural validation on a signed payment
// authorization before it is sent anywhere.
func ValidateAuthorization(auth *SignedAuthorization) error {
	if auth == nil {
		return NewValidationError("authorization is required")
	}
	a := auth.Authorization
	if !ValidAddress(a.From) {
		return NewValidationError("invalid payer address")
	}
	if !ValidAddress(a.To) {
		return NewValidationError("invalid payee address")
	}
	if a.Value == "" {
		return NewValidationError("authorization value is required")
	}
	if a.ValidBefore <= a.ValidAfter {
		return NewValidationError("authorization validity window is empty")
	}
	if a.ValidBefore <= time.Now().Unix() {
		return NewValidationError("authorization has expired")
	}
	if !noncePattern.MatchString(a.Nonce) {
		return NewValidationError("authorization nonce must be 32 bytes of hex")
	}
	if auth.Signature == "" {
		return NewValidationError("authorization signature is required")
	}
	if !ValidAddress(auth.TokenAddress) {
		return NewValidationError("invalid payment token address")
	}
	return nil
}
