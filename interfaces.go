package tokenmint

import (
	"context"
	"math/big"
)

// ChainBackend abstracts the blockchain connection used by all components
// that read from or write to contracts. The chain package provides the
// production implementation; tests substitute mocks.
//
// All transactions originated through WriteContract come from the single
// service wallet and implementations must serialize them to keep nonce
// ordering intact.
type ChainBackend interface {
	// ReadContract executes a constant call and returns the unpacked
	// outputs (a single value, or []interface{} for multi-output calls).
	ReadContract(ctx context.Context, address string, abiJSON []byte, functionName string, args ...interface{}) (interface{}, error)

	// WriteContract submits a state-changing transaction signed by the
	// service wallet and returns its hash without waiting for inclusion.
	WriteContract(ctx context.Context, address string, abiJSON []byte, functionName string, args ...interface{}) (string, error)

	// WaitForTransactionReceipt blocks until the transaction is mined or
	// the context expires. A context expiry means the outcome is unknown,
	// not failed; the transaction may still confirm later.
	WaitForTransactionReceipt(ctx context.Context, txHash string) (*TransactionReceipt, error)

	// GetBalance returns the native-currency balance of an address.
	GetBalance(ctx context.Context, address string) (*big.Int, error)

	// BlockNumber returns the current head block number.
	BlockNumber(ctx context.Context) (uint64, error)

	// ChainID returns the chain ID of the bound endpoint.
	ChainID(ctx context.Context) (*big.Int, error)

	// SignerAddress returns the address of the service wallet.
	SignerAddress() string
}

// TypedDataDomain is the EIP-712 domain separator.
type TypedDataDomain struct {
	Name              string   `json:"name"`
	Version           string   `json:"version"`
	ChainID           *big.Int `json:"chainId"`
	VerifyingContract string   `json:"verifyingContract"`
}

// TypedDataField is one field of an EIP-712 struct type.
type TypedDataField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TypedDataSigner signs EIP-712 typed data on behalf of a payer.
type TypedDataSigner interface {
	// Address returns the payer's address.
	Address() string

	// SignTypedData signs the typed data and returns a 65-byte signature.
	SignTypedData(ctx context.Context, domain TypedDataDomain, types map[string][]TypedDataField, primaryType string, message map[string]interface{}) ([]byte, error)
}

// Facilitator verifies and settles signed payment authorizations.
type Facilitator interface {
	Verify(ctx context.Context, auth *SignedAuthorization) (*VerifyResponse, error)
	Settle(ctx context.Context, auth *SignedAuthorization) (*SettleResponse, error)
}

// ReplayStore enforces at-most-once consumption of payment references.
//
// A reference is reserved before the mint is attempted, committed once the
// mint confirms, and released if the mint fails so a legitimate retry is
// not permanently blocked. The mint package ships an in-memory store; the
// Postgres store survives restarts and multiple instances.
type ReplayStore interface {
	// Reserve marks the reference as in use. Returns a replay_rejected
	// error if it was already reserved or committed.
	Reserve(ctx context.Context, ref string) error

	// Commit records the successful mint for the reference. A committed
	// reference can never be reserved again.
	Commit(ctx context.Context, ref string, mintTxHash string) error

	// Release undoes a reservation that did not lead to a successful mint.
	// Releasing a committed reference is a no-op.
	Release(ctx context.Context, ref string) error
}
