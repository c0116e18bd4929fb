package tokenmint

import (
	"fmt"
	"math/big"
	"strings"
)

// Pool identifies one of the four independently capped distribution pools.
type Pool string

const (
	PoolAirdrop   Pool = "airdrop"
	PoolBayc      Pool = "bayc"
	PoolLiquidity Pool = "liquidity"
	PoolPublic    Pool = "public"
)

// Pools lists all distribution pools in a stable order.
var Pools = []Pool{PoolAirdrop, PoolBayc, PoolLiquidity, PoolPublic}

// ParsePool converts a string to a Pool, case-insensitively.
func ParsePool(s string) (Pool, error) {
	switch Pool(strings.ToLower(s)) {
	case PoolAirdrop:
		return PoolAirdrop, nil
	case PoolBayc:
		return PoolBayc, nil
	case PoolLiquidity:
		return PoolLiquidity, nil
	case PoolPublic:
		return PoolPublic, nil
	}
	return "", fmt.Errorf("unknown pool: %s", s)
}

// PoolLimits describes the fixed total cap and per-call bound of a pool,
// in whole tokens. Remaining balances are always read live from the
// distribution contract, never from these constants.
type PoolLimits struct {
	TotalCap   int64
	PerCallMax int64
}

// Limits returns the fixed limits for each pool.
// The liquidity pool has no separate per-call bound beyond its total cap.
func (p Pool) Limits() PoolLimits {
	switch p {
	case PoolAirdrop:
		return PoolLimits{TotalCap: 50_000, PerCallMax: 1_000}
	case PoolBayc:
		return PoolLimits{TotalCap: 50_000, PerCallMax: 5_000}
	case PoolLiquidity:
		return PoolLimits{TotalCap: 200_000, PerCallMax: 200_000}
	case PoolPublic:
		return PoolLimits{TotalCap: 700_000, PerCallMax: 10_000}
	}
	return PoolLimits{}
}

// PaymentAuthorization is the EIP-3009 style TransferWithAuthorization
// message a payer signs off-chain. Value is a decimal string in the
// token's base unit; Nonce is a 32-byte hex string.
type PaymentAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  int64  `json:"validAfter"`
	ValidBefore int64  `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// SignedAuthorization bundles a payment authorization with its EIP-712
// signature and the stablecoin contract it draws from. It is created
// client-side at purchase time and consumed exactly once by settlement.
type SignedAuthorization struct {
	Authorization PaymentAuthorization `json:"authorization"`
	Signature     string               `json:"signature"`
	TokenAddress  string               `json:"tokenAddress"`
}

// VerifyResponse is the facilitator's answer to a verify call.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
}

// SettleResponse is the facilitator's answer to a settle call.
type SettleResponse struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Transaction string `json:"transaction,omitempty"`
}

// TransactionReceipt reports the outcome of a mined transaction.
type TransactionReceipt struct {
	TxHash      string `json:"transactionHash"`
	Status      uint64 `json:"status"`
	BlockNumber uint64 `json:"blockNumber"`
	GasUsed     uint64 `json:"gasUsed"`
}

// TxStatusSuccess is the receipt status of an included, non-reverted
// transaction.
const TxStatusSuccess = 1

// MintResult reports a confirmed mint.
type MintResult struct {
	Pool        Pool   `json:"pool"`
	Recipient   string `json:"recipient"`
	Amount      int64  `json:"amount"`
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	GasUsed     uint64 `json:"gasUsed"`
	PaymentRef  string `json:"paymentRef,omitempty"`
}

// BatchRecipient is one entry of a batch mint request.
type BatchRecipient struct {
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

// BatchEntryResult records the outcome of a single batch entry.
type BatchEntryResult struct {
	To     string `json:"to"`
	Amount int64  `json:"amount"`
	TxHash string `json:"txHash,omitempty"`
	Error  string `json:"error,omitempty"`
}

// BatchSummary reports a completed batch, successes and failures included.
type BatchSummary struct {
	BatchID                string             `json:"batchId"`
	Pool                   Pool               `json:"pool"`
	Total                  int                `json:"total"`
	SuccessCount           int                `json:"successful"`
	FailureCount           int                `json:"failed"`
	TotalTokensDistributed int64              `json:"totalTokensDistributed"`
	RemainingAllocation    int64              `json:"remainingAllocation"`
	Successful             []BatchEntryResult `json:"successfulEntries"`
	Failed                 []BatchEntryResult `json:"failedEntries"`
}

// Allocations holds the live remaining balance of every pool, in base units.
type Allocations struct {
	Airdrop   *big.Int
	Bayc      *big.Int
	Liquidity *big.Int
	Public    *big.Int
}

// ForPool returns the remaining balance of a single pool.
func (a Allocations) ForPool(p Pool) *big.Int {
	switch p {
	case PoolAirdrop:
		return a.Airdrop
	case PoolBayc:
		return a.Bayc
	case PoolLiquidity:
		return a.Liquidity
	case PoolPublic:
		return a.Public
	}
	return nil
}

// AllocationStatus is the caller-facing snapshot of all pools.
type AllocationStatus struct {
	Remaining   map[Pool]string `json:"remaining"`
	TotalMinted string          `json:"totalMinted"`
}

// ApprovalDetails tells a caller exactly what allowance is missing before a
// gasless purchase can proceed. RequiredAmount is in the payment token's
// base unit.
type ApprovalDetails struct {
	Token          string   `json:"token"`
	TokenSymbol    string   `json:"tokenSymbol"`
	Spender        string   `json:"spender"`
	RequiredAmount *big.Int `json:"requiredAmount"`
}

// HealthStatus reports connectivity of the service's external collaborators.
type HealthStatus struct {
	RPCConnected      bool   `json:"rpcConnected"`
	ContractConnected bool   `json:"contractConnected"`
	WalletConnected   bool   `json:"walletConnected"`
	BlockNumber       uint64 `json:"blockNumber,omitempty"`
}
