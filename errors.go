package tokenmint

import (
	"errors"
	"fmt"
)

// Error is the structured error carried across component boundaries.
// Code is machine-checkable, Message human-readable, Retryable tells the
// caller whether trying again without changing the input can ever succeed.
type Error struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Retryable bool                   `json:"retryable"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Common error codes
const (
	ErrCodeConfiguration           = "configuration_error"
	ErrCodeConnectivity            = "connectivity_error"
	ErrCodeAllEndpointsUnreachable = "all_endpoints_unreachable"
	ErrCodeValidation              = "validation_error"
	ErrCodeAllowanceInsufficient   = "allowance_insufficient"
	ErrCodeApprovalNotReflected    = "approval_not_reflected"
	ErrCodeReplayRejected          = "replay_rejected"
	ErrCodeVerificationRejected    = "verification_rejected"
	ErrCodeSettlementFailed        = "settlement_failed"
	ErrCodeOnChainRevert           = "on_chain_revert"
	ErrCodeSigningRejected         = "signing_rejected"
	ErrCodeSigningUnavailable      = "signing_unavailable"
	ErrCodeMintingDisabled         = "minting_disabled"
)

// NewError creates a structured error.
func NewError(code, message string, retryable bool) *Error {
	return &Error{Code: code, Message: message, Retryable: retryable}
}

// WithDetails attaches extra context to the error and returns it.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// NewValidationError creates a non-retryable validation error.
func NewValidationError(message string) *Error {
	return NewError(ErrCodeValidation, message, false)
}

// NewConfigurationError creates a fatal configuration error.
func NewConfigurationError(message string) *Error {
	return NewError(ErrCodeConfiguration, message, false)
}

// ErrorCode extracts the code from an error, or "" if it carries none.
func ErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return ErrorCode(err) == code
}

// IsRetryable reports whether the caller may retry the failed operation
// without changing the input. Errors without a code are treated as
// retryable transport failures.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return true
}
