// Package purchase implements the allowance workflow and the resumable
// gasless purchase orchestrator.
package purchase

import (
	"context"
	"fmt"
	"math/big"

	tokenmint "github.com/b402-foundation/tokenmint"
)

// ERC20 is the slice of a stablecoin contract the purchase flow needs.
// chain.ERC20 satisfies it; tests substitute mocks.
type ERC20 interface {
	Address() string
	Allowance(ctx context.Context, owner, spender string) (*big.Int, error)
	Approve(ctx context.Context, spender string, amount *big.Int) (string, error)
	TransferFrom(ctx context.Context, owner, to string, amount *big.Int) (string, error)
	WaitForReceipt(ctx context.Context, txHash string) (*tokenmint.TransactionReceipt, error)
}

// ApprovalResult reports the outcome of CheckAndApprove.
type ApprovalResult struct {
	Approved          bool   `json:"approved"`
	AlreadySufficient bool   `json:"alreadySufficient"`
	TxHash            string `json:"txHash,omitempty"`
}

// AllowanceManager reads and establishes spending allowances. Allowance
// state is derived, never stored: every decision starts from a live read.
type AllowanceManager struct {
	token ERC20
}

// NewAllowanceManager creates a manager for one stablecoin.
func NewAllowanceManager(token ERC20) *AllowanceManager {
	return &AllowanceManager{token: token}
}

// Allowance reads the live (owner, spender) allowance.
func (m *AllowanceManager) Allowance(ctx context.Context, owner, spender string) (*big.Int, error) {
	return m.token.Allowance(ctx, owner, spender)
}

// CheckAndApprove ensures spender may move at least requiredAmount of the
// owner's tokens. If the current allowance already suffices, no
// transaction is issued. Otherwise an approval for exactly requiredAmount
// is submitted (never unlimited, to bound exposure), confirmed, and the
// allowance re-read: submission alone is never trusted.
func (m *AllowanceManager) CheckAndApprove(ctx context.Context, owner, spender string, requiredAmount *big.Int) (*ApprovalResult, error) {
	if requiredAmount == nil || requiredAmount.Sign() <= 0 {
		return nil, tokenmint.NewValidationError("required amount must be greater than 0")
	}

	current, err := m.token.Allowance(ctx, owner, spender)
	if err != nil {
		return nil, err
	}
	if current.Cmp(requiredAmount) >= 0 {
		return &ApprovalResult{Approved: true, AlreadySufficient: true}, nil
	}

	txHash, err := m.token.Approve(ctx, spender, requiredAmount)
	if err != nil {
		return nil, err
	}

	receipt, err := m.token.WaitForReceipt(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if receipt.Status != tokenmint.TxStatusSuccess {
		return nil, &tokenmint.Error{
			Code:    tokenmint.ErrCodeOnChainRevert,
			Message: fmt.Sprintf("approval transaction %s reverted", txHash),
		}
	}

	// Guard against silent failures and reorg edge cases.
	after, err := m.token.Allowance(ctx, owner, spender)
	if err != nil {
		return nil, err
	}
	if after.Cmp(requiredAmount) < 0 {
		return nil, &tokenmint.Error{
			Code: tokenmint.ErrCodeApprovalNotReflected,
			Message: fmt.Sprintf("allowance is %s after approval %s, need %s",
				after, txHash, requiredAmount),
		}
	}

	return &ApprovalResult{Approved: true, TxHash: txHash}, nil
}
