// Package mint implements the allocation-constrained mint engine and the
// sequential batch processor on top of it.
package mint

import (
	"context"
	"fmt"
	"math/big"

	tokenmint "github.com/b402-foundation/tokenmint"
)

// TokenContract is the slice of the distribution contract the engine
// needs. chain.TokenContract satisfies it; tests substitute mocks.
type TokenContract interface {
	RemainingAllocations(ctx context.Context) (tokenmint.Allocations, error)
	DistributionStatus(ctx context.Context) (*big.Int, map[tokenmint.Pool]int64, error)
	MintingEnabled(ctx context.Context) (bool, error)
	Mint(ctx context.Context, pool tokenmint.Pool, to string, amount *big.Int) (string, error)
	WaitForReceipt(ctx context.Context, txHash string) (*tokenmint.TransactionReceipt, error)
}

// Engine validates mint requests against pool bounds, the replay guard,
// and the live remaining balance, then submits and confirms the mint.
type Engine struct {
	contract TokenContract
	replay   tokenmint.ReplayStore
}

// NewEngine creates a mint engine. A nil replay store defaults to the
// in-memory guard.
func NewEngine(contract TokenContract, replay tokenmint.ReplayStore) *Engine {
	if replay == nil {
		replay = NewMemoryStore()
	}
	return &Engine{contract: contract, replay: replay}
}

// Mint validates and executes a mint of whole tokens from a pool.
// Validation is fail-fast, in order: positive amount, per-call bound,
// replay reservation (when a payment reference is given), then the live
// remaining balance. No validation step issues a network call before the
// replay reservation is taken.
func (e *Engine) Mint(ctx context.Context, pool tokenmint.Pool, recipient string, amount int64) (*tokenmint.MintResult, error) {
	return e.mint(ctx, pool, recipient, amount, "")
}

// MintPublicWithPayment mints from the public pool, consuming a payment
// transaction hash as its replay-guard key. A reference authorizes at
// most one successful mint; it is released if this attempt fails so a
// legitimate retry is not permanently blocked.
func (e *Engine) MintPublicWithPayment(ctx context.Context, recipient string, amount int64, paymentRef string) (*tokenmint.MintResult, error) {
	if !tokenmint.ValidTxHash(paymentRef) {
		return nil, tokenmint.NewValidationError("invalid payment transaction hash format").
			WithDetails(map[string]interface{}{
				"expected": "0x followed by 64 hexadecimal characters",
				"provided": paymentRef,
			})
	}
	return e.mint(ctx, tokenmint.PoolPublic, recipient, amount, paymentRef)
}

func (e *Engine) mint(ctx context.Context, pool tokenmint.Pool, recipient string, amount int64, paymentRef string) (*tokenmint.MintResult, error) {
	if err := validateRequest(pool, recipient, amount); err != nil {
		return nil, err
	}

	if paymentRef != "" {
		if err := e.replay.Reserve(ctx, paymentRef); err != nil {
			return nil, err
		}
	}

	result, err := e.execute(ctx, pool, recipient, amount)
	if err != nil {
		if paymentRef != "" {
			_ = e.replay.Release(ctx, paymentRef)
		}
		return nil, err
	}

	if paymentRef != "" {
		if err := e.replay.Commit(ctx, paymentRef, result.TxHash); err != nil {
			return nil, fmt.Errorf("mint %s confirmed but commit of payment reference failed: %w", result.TxHash, err)
		}
		result.PaymentRef = paymentRef
	}
	return result, nil
}

func (e *Engine) execute(ctx context.Context, pool tokenmint.Pool, recipient string, amount int64) (*tokenmint.MintResult, error) {
	enabled, err := e.contract.MintingEnabled(ctx)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, tokenmint.NewError(tokenmint.ErrCodeMintingDisabled,
			"minting has been permanently disabled", false)
	}

	// Remaining balance is read live immediately before submission; the
	// contract is the only consistent ledger.
	allocations, err := e.contract.RemainingAllocations(ctx)
	if err != nil {
		return nil, err
	}
	remaining := allocations.ForPool(pool)
	amountBase := tokenmint.TokensToBase(amount)
	if remaining == nil || amountBase.Cmp(remaining) > 0 {
		return nil, tokenmint.NewValidationError(
			fmt.Sprintf("insufficient %s allocation: requested %d, available %s",
				pool, amount, tokenmint.FormatUnits(remaining, tokenmint.TokenDecimals))).
			WithDetails(map[string]interface{}{
				"pool":      string(pool),
				"requested": amount,
				"available": tokenmint.FormatUnits(remaining, tokenmint.TokenDecimals),
			})
	}

	txHash, err := e.contract.Mint(ctx, pool, recipient, amountBase)
	if err != nil {
		return nil, err
	}

	receipt, err := e.contract.WaitForReceipt(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if receipt.Status != tokenmint.TxStatusSuccess {
		return nil, &tokenmint.Error{
			Code:    tokenmint.ErrCodeOnChainRevert,
			Message: fmt.Sprintf("mint transaction %s reverted", txHash),
			Details: map[string]interface{}{"txHash": txHash},
		}
	}

	return &tokenmint.MintResult{
		Pool:        pool,
		Recipient:   recipient,
		Amount:      amount,
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber,
		GasUsed:     receipt.GasUsed,
	}, nil
}

// AllocationStatus returns the live remaining balance of every pool plus
// the total minted so far. Two calls with no intervening mint return
// identical values.
func (e *Engine) AllocationStatus(ctx context.Context) (*tokenmint.AllocationStatus, error) {
	allocations, err := e.contract.RemainingAllocations(ctx)
	if err != nil {
		return nil, err
	}
	totalMinted, _, err := e.contract.DistributionStatus(ctx)
	if err != nil {
		return nil, err
	}

	remaining := make(map[tokenmint.Pool]string, len(tokenmint.Pools))
	for _, pool := range tokenmint.Pools {
		remaining[pool] = tokenmint.FormatUnits(allocations.ForPool(pool), tokenmint.TokenDecimals)
	}

	return &tokenmint.AllocationStatus{
		Remaining:   remaining,
		TotalMinted: tokenmint.FormatUnits(totalMinted, tokenmint.TokenDecimals),
	}, nil
}

func validateRequest(pool tokenmint.Pool, recipient string, amount int64) error {
	if !tokenmint.ValidAddress(recipient) {
		return tokenmint.NewValidationError("invalid recipient address format")
	}
	if amount <= 0 {
		return tokenmint.NewValidationError("amount must be greater than 0")
	}

	limits := pool.Limits()
	if limits.PerCallMax == 0 {
		return tokenmint.NewValidationError(fmt.Sprintf("unknown pool: %s", pool))
	}
	if amount > limits.PerCallMax {
		if pool == tokenmint.PoolPublic {
			return tokenmint.NewValidationError(
				fmt.Sprintf("amount must be between 1 and %d tokens for public mint", limits.PerCallMax))
		}
		return tokenmint.NewValidationError(
			fmt.Sprintf("amount exceeds per-call limit of %d tokens for %s pool", limits.PerCallMax, pool))
	}
	return nil
}
