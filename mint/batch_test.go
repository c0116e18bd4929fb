package mint

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tokenmint "github.com/b402-foundation/tokenmint"
)

// newTestBatch returns a processor whose sleeps are recorded, not taken.
func newTestBatch(contract *fakeContract) (*BatchProcessor, *[]time.Duration) {
	processor := NewBatchProcessor(NewEngine(contract, nil))
	var delays []time.Duration
	processor.sleep = func(d time.Duration) { delays = append(delays, d) }
	return processor, &delays
}

func batchRecipients(n int, amount int64) []tokenmint.BatchRecipient {
	recipients := make([]tokenmint.BatchRecipient, n)
	for i := range recipients {
		recipients[i] = tokenmint.BatchRecipient{
			To:     fmt.Sprintf("0x%040x", i+1),
			Amount: amount,
		}
	}
	return recipients
}

func TestMintBatchAllSucceed(t *testing.T) {
	contract := newFakeContract()
	processor, _ := newTestBatch(contract)

	summary, err := processor.MintBatch(context.Background(), tokenmint.PoolAirdrop, batchRecipients(3, 100))
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 3, summary.SuccessCount)
	assert.Equal(t, 0, summary.FailureCount)
	assert.Equal(t, int64(300), summary.TotalTokensDistributed)
	assert.Equal(t, int64(49_700), summary.RemainingAllocation)
	assert.Contains(t, summary.BatchID, "batch_")
	for _, entry := range summary.Successful {
		assert.True(t, tokenmint.ValidTxHash(entry.TxHash))
	}
}

func TestMintBatchContinuesPastFailures(t *testing.T) {
	contract := newFakeContract()
	contract.failMintCall = 3
	processor, _ := newTestBatch(contract)

	summary, err := processor.MintBatch(context.Background(), tokenmint.PoolAirdrop, batchRecipients(5, 100))
	require.NoError(t, err)

	assert.Equal(t, 4, summary.SuccessCount)
	assert.Equal(t, 1, summary.FailureCount)

	// Only confirmed mints count toward the distributed total.
	assert.Equal(t, int64(400), summary.TotalTokensDistributed)

	failed := summary.Failed[0]
	assert.Equal(t, batchRecipients(5, 100)[2].To, failed.To)
	assert.Contains(t, failed.Error, "on_chain_revert")
}

func TestMintBatchUpfrontAllocationCheck(t *testing.T) {
	contract := newFakeContract()
	contract.remaining.Airdrop = tokenmint.TokensToBase(250)
	processor, _ := newTestBatch(contract)

	_, err := processor.MintBatch(context.Background(), tokenmint.PoolAirdrop, batchRecipients(3, 100))
	require.Error(t, err)
	assert.True(t, tokenmint.IsCode(err, tokenmint.ErrCodeValidation))
	assert.Contains(t, err.Error(), "insufficient airdrop allocation for batch")
	assert.Zero(t, contract.mintCalls, "no entry may be attempted after upfront rejection")
}

func TestMintBatchEntryValidation(t *testing.T) {
	contract := newFakeContract()
	processor, _ := newTestBatch(contract)
	ctx := context.Background()

	_, err := processor.MintBatch(ctx, tokenmint.PoolAirdrop, nil)
	assert.Contains(t, err.Error(), "recipients array cannot be empty")

	_, err = processor.MintBatch(ctx, tokenmint.PoolAirdrop, batchRecipients(101, 1))
	assert.Contains(t, err.Error(), "maximum 100 recipients")

	bad := batchRecipients(2, 100)
	bad[1].To = "nope"
	_, err = processor.MintBatch(ctx, tokenmint.PoolAirdrop, bad)
	assert.Contains(t, err.Error(), "recipients[1]")

	over := batchRecipients(1, 1_001)
	_, err = processor.MintBatch(ctx, tokenmint.PoolAirdrop, over)
	assert.Contains(t, err.Error(), "between 1 and 1000")
	assert.Zero(t, contract.networkCalls())
}

func TestMintBatchProgressiveDelays(t *testing.T) {
	contract := newFakeContract()
	processor, delays := newTestBatch(contract)

	_, err := processor.MintBatch(context.Background(), tokenmint.PoolAirdrop, batchRecipients(9, 10))
	require.NoError(t, err)

	// Delay grows by 500ms per entry from 2s, capped at 5s, and no delay
	// follows the final entry.
	want := []time.Duration{
		2000 * time.Millisecond,
		2500 * time.Millisecond,
		3000 * time.Millisecond,
		3500 * time.Millisecond,
		4000 * time.Millisecond,
		4500 * time.Millisecond,
		5000 * time.Millisecond,
		5000 * time.Millisecond,
	}
	assert.Equal(t, want, *delays)
}

func TestMintBatchShortDelayAfterFailure(t *testing.T) {
	contract := newFakeContract()
	contract.failMintCall = 1
	processor, delays := newTestBatch(contract)

	_, err := processor.MintBatch(context.Background(), tokenmint.PoolAirdrop, batchRecipients(2, 10))
	require.NoError(t, err)

	require.Len(t, *delays, 1)
	assert.Equal(t, time.Second, (*delays)[0])
}
