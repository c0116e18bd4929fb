package mint

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	tokenmint "github.com/b402-foundation/tokenmint"
)

const (
	// MaxBatchSize caps the number of recipients per batch.
	MaxBatchSize = 100

	// Inter-entry delays reduce nonce contention on the shared service
	// wallet. The delay grows per entry and is capped.
	batchBaseDelay      = 2 * time.Second
	batchDelayIncrement = 500 * time.Millisecond
	batchMaxDelay       = 5 * time.Second
	batchFailureDelay   = 1 * time.Second
)

// BatchProcessor mints to many recipients from one pool, strictly
// sequentially. All transactions come from the single service wallet, so
// entries are never submitted concurrently.
type BatchProcessor struct {
	engine *Engine

	// sleep is injectable for tests.
	sleep func(time.Duration)
}

// NewBatchProcessor creates a batch processor over the given engine.
func NewBatchProcessor(engine *Engine) *BatchProcessor {
	return &BatchProcessor{engine: engine, sleep: time.Sleep}
}

// MintBatch processes the recipients in order, accumulating successes and
// failures independently: one failed entry does not abort the rest. The
// whole batch is rejected up front if the summed amount exceeds the
// pool's current remaining balance.
func (p *BatchProcessor) MintBatch(ctx context.Context, pool tokenmint.Pool, recipients []tokenmint.BatchRecipient) (*tokenmint.BatchSummary, error) {
	if len(recipients) == 0 {
		return nil, tokenmint.NewValidationError("recipients array cannot be empty")
	}
	if len(recipients) > MaxBatchSize {
		return nil, tokenmint.NewValidationError(
			fmt.Sprintf("maximum %d recipients per batch", MaxBatchSize))
	}

	limits := pool.Limits()
	var totalAmount int64
	for i, r := range recipients {
		if !tokenmint.ValidAddress(r.To) {
			return nil, tokenmint.NewValidationError(
				fmt.Sprintf("recipients[%d]: invalid recipient address format", i))
		}
		if r.Amount <= 0 || r.Amount > limits.PerCallMax {
			return nil, tokenmint.NewValidationError(
				fmt.Sprintf("recipients[%d]: amount must be between 1 and %d tokens", i, limits.PerCallMax))
		}
		totalAmount += r.Amount
	}

	allocations, err := p.engine.contract.RemainingAllocations(ctx)
	if err != nil {
		return nil, err
	}
	remaining := tokenmint.BaseToTokens(allocations.ForPool(pool))
	if totalAmount > remaining {
		return nil, tokenmint.NewValidationError(
			fmt.Sprintf("insufficient %s allocation for batch: total requested %d, available %d",
				pool, totalAmount, remaining)).
			WithDetails(map[string]interface{}{
				"totalRequested": totalAmount,
				"available":      remaining,
				"recipients":     len(recipients),
			})
	}

	summary := &tokenmint.BatchSummary{
		BatchID: fmt.Sprintf("batch_%s", uuid.NewString()),
		Pool:    pool,
		Total:   len(recipients),
	}

	for i, r := range recipients {
		result, err := p.engine.Mint(ctx, pool, r.To, r.Amount)
		if err != nil {
			summary.Failed = append(summary.Failed, tokenmint.BatchEntryResult{
				To:     r.To,
				Amount: r.Amount,
				Error:  err.Error(),
			})
			if i < len(recipients)-1 {
				p.sleep(batchFailureDelay)
			}
			continue
		}

		summary.Successful = append(summary.Successful, tokenmint.BatchEntryResult{
			To:     r.To,
			Amount: r.Amount,
			TxHash: result.TxHash,
		})
		summary.TotalTokensDistributed += r.Amount

		if i < len(recipients)-1 {
			delay := batchBaseDelay + time.Duration(i)*batchDelayIncrement
			if delay > batchMaxDelay {
				delay = batchMaxDelay
			}
			p.sleep(delay)
		}
	}

	summary.SuccessCount = len(summary.Successful)
	summary.FailureCount = len(summary.Failed)
	summary.RemainingAllocation = remaining - summary.TotalTokensDistributed
	return summary, nil
}
