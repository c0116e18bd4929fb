package purchase

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tokenmint "github.com/b402-foundation/tokenmint"
	"github.com/b402-foundation/tokenmint/mint"
)

const buyer = "0x4444444444444444444444444444444444444444"

// pricePerToken is the fake's quote: 0.01 payment units per token,
// expressed in 18-decimal base units.
var pricePerToken = big.NewInt(10_000_000_000_000_000)

// fakeSale is a scriptable sale-side contract view.
type fakeSale struct {
	saleEnabled   bool
	tokenAccepted bool

	quoteCalls int
}

func (f *fakeSale) CalculatePayment(ctx context.Context, tokenAmount *big.Int, paymentToken string) (*big.Int, error) {
	f.quoteCalls++
	tokens := tokenmint.BaseToTokens(tokenAmount)
	return new(big.Int).Mul(pricePerToken, big.NewInt(tokens)), nil
}

func (f *fakeSale) PublicSaleEnabled(ctx context.Context) (bool, error) {
	return f.saleEnabled, nil
}

func (f *fakeSale) IsPaymentTokenAccepted(ctx context.Context, token string) (bool, error) {
	return f.tokenAccepted, nil
}

// fakeMintContract backs the engine for purchase tests.
type fakeMintContract struct {
	remaining tokenmint.Allocations
	mintCalls int
}

func newFakeMintContract() *fakeMintContract {
	return &fakeMintContract{
		remaining: tokenmint.Allocations{
			Airdrop:   tokenmint.TokensToBase(50_000),
			Bayc:      tokenmint.TokensToBase(50_000),
			Liquidity: tokenmint.TokensToBase(200_000),
			Public:    tokenmint.TokensToBase(700_000),
		},
	}
}

func (f *fakeMintContract) RemainingAllocations(ctx context.Context) (tokenmint.Allocations, error) {
	return f.remaining, nil
}

func (f *fakeMintContract) DistributionStatus(ctx context.Context) (*big.Int, map[tokenmint.Pool]int64, error) {
	return big.NewInt(0), map[tokenmint.Pool]int64{}, nil
}

func (f *fakeMintContract) MintingEnabled(ctx context.Context) (bool, error) {
	return true, nil
}

func (f *fakeMintContract) Mint(ctx context.Context, pool tokenmint.Pool, to string, amount *big.Int) (string, error) {
	f.mintCalls++
	return "0x" + strings.Repeat("9", 64), nil
}

func (f *fakeMintContract) WaitForReceipt(ctx context.Context, txHash string) (*tokenmint.TransactionReceipt, error) {
	return &tokenmint.TransactionReceipt{TxHash: txHash, Status: tokenmint.TxStatusSuccess}, nil
}

type testRig struct {
	orchestrator *Orchestrator
	token        *fakeERC20
	sale         *fakeSale
	contract     *fakeMintContract
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	token := newFakeERC20()
	sale := &fakeSale{saleEnabled: true, tokenAccepted: true}
	contract := newFakeMintContract()

	orchestrator, err := New(Config{
		Contract:           sale,
		Engine:             mint.NewEngine(contract, nil),
		PaymentTokens:      map[string]ERC20{"USDT": token},
		FacilitatorAddress: spender,
	})
	require.NoError(t, err)
	return &testRig{orchestrator: orchestrator, token: token, sale: sale, contract: contract}
}

func TestPurchaseSuspendsWhenAllowanceMissing(t *testing.T) {
	rig := newTestRig(t)

	p, err := rig.orchestrator.Start(context.Background(), buyer, "USDT", 100)
	require.NoError(t, err)

	assert.Equal(t, StateAwaitingApproval, p.State)
	require.NotNil(t, p.Approval)
	assert.Equal(t, spender, p.Approval.Spender)
	assert.Equal(t, rig.token.Address(), p.Approval.Token)

	// The required amount comes from the contract quote, not a local
	// price table.
	want := new(big.Int).Mul(pricePerToken, big.NewInt(100))
	assert.Equal(t, want, p.Approval.RequiredAmount)
	assert.Equal(t, 1, rig.sale.quoteCalls)

	assert.Zero(t, rig.token.transferCalls, "no transfer before approval")
	assert.Zero(t, rig.contract.mintCalls, "no mint before approval")
}

func TestPurchaseRunsToCompletionWithAllowance(t *testing.T) {
	rig := newTestRig(t)
	rig.token.setAllowance(buyer, spender, tokenmint.TokensToBase(1_000_000))

	p, err := rig.orchestrator.Start(context.Background(), buyer, "USDT", 100)
	require.NoError(t, err)

	assert.Equal(t, StateSuccess, p.State)
	assert.True(t, tokenmint.ValidTxHash(p.TransferTxHash))
	assert.True(t, tokenmint.ValidTxHash(p.MintTxHash))
	assert.Equal(t, 1, rig.token.transferCalls)
	assert.Equal(t, 1, rig.contract.mintCalls)

	got, ok := rig.orchestrator.Get(p.ID)
	require.True(t, ok)
	assert.Equal(t, p, got)
}

func TestResumeAfterApproval(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	p, err := rig.orchestrator.Start(ctx, buyer, "USDT", 50)
	require.NoError(t, err)
	require.Equal(t, StateAwaitingApproval, p.State)

	rig.token.setAllowance(buyer, spender, p.Approval.RequiredAmount)

	resumed, err := rig.orchestrator.Resume(ctx, p.ID, "0x"+strings.Repeat("aa", 32))
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, resumed.State)
	assert.Equal(t, 1, rig.contract.mintCalls)
}

func TestResumeWithUnreflectedApprovalStaysSuspended(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	p, err := rig.orchestrator.Start(ctx, buyer, "USDT", 50)
	require.NoError(t, err)

	_, err = rig.orchestrator.Resume(ctx, p.ID, "0x"+strings.Repeat("aa", 32))
	require.Error(t, err)
	assert.True(t, tokenmint.IsCode(err, tokenmint.ErrCodeAllowanceInsufficient))
	assert.True(t, tokenmint.IsRetryable(err))

	// The purchase stays resumable rather than failing terminally.
	live, ok := rig.orchestrator.Get(p.ID)
	require.True(t, ok)
	assert.Equal(t, StateAwaitingApproval, live.State)
}

func TestPurchaseWhenSaleClosed(t *testing.T) {
	rig := newTestRig(t)
	rig.sale.saleEnabled = false

	p, err := rig.orchestrator.Start(context.Background(), buyer, "USDT", 10)
	require.Error(t, err)
	assert.True(t, tokenmint.IsCode(err, tokenmint.ErrCodeMintingDisabled))
	assert.Equal(t, StateError, p.State)
	assert.False(t, p.CanRetry)
}

func TestPurchaseWithUnacceptedToken(t *testing.T) {
	rig := newTestRig(t)
	rig.sale.tokenAccepted = false

	p, err := rig.orchestrator.Start(context.Background(), buyer, "USDT", 10)
	require.Error(t, err)
	assert.True(t, tokenmint.IsCode(err, tokenmint.ErrCodeValidation))
	assert.Equal(t, StateError, p.State)
}

func TestPurchaseInputValidation(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	_, err := rig.orchestrator.Start(ctx, "bad", "USDT", 10)
	assert.True(t, tokenmint.IsCode(err, tokenmint.ErrCodeValidation))

	_, err = rig.orchestrator.Start(ctx, buyer, "USDT", 0)
	assert.True(t, tokenmint.IsCode(err, tokenmint.ErrCodeValidation))

	_, err = rig.orchestrator.Start(ctx, buyer, "USDT", 10_001)
	assert.Contains(t, err.Error(), "between 1 and 10000")

	_, err = rig.orchestrator.Start(ctx, buyer, "DOGE", 10)
	assert.Contains(t, err.Error(), "unsupported payment token")
}

func TestPurchaseTransferRevertFailsTerminally(t *testing.T) {
	rig := newTestRig(t)
	rig.token.setAllowance(buyer, spender, tokenmint.TokensToBase(1_000_000))
	rig.token.receiptStatus = 0

	p, err := rig.orchestrator.Start(context.Background(), buyer, "USDT", 10)
	require.Error(t, err)
	assert.True(t, tokenmint.IsCode(err, tokenmint.ErrCodeOnChainRevert))
	assert.Equal(t, StateError, p.State)
	assert.Zero(t, rig.contract.mintCalls, "no mint after a failed payment")
}

func TestGetReturnsIsolatedCopy(t *testing.T) {
	rig := newTestRig(t)
	rig.token.setAllowance(buyer, spender, tokenmint.TokensToBase(1_000_000))

	p, err := rig.orchestrator.Start(context.Background(), buyer, "USDT", 10)
	require.NoError(t, err)

	got, ok := rig.orchestrator.Get(p.ID)
	require.True(t, ok)
	got.State = StateError
	got.MintTxHash = ""

	again, ok := rig.orchestrator.Get(p.ID)
	require.True(t, ok)
	assert.Equal(t, StateSuccess, again.State)
	assert.Equal(t, p.MintTxHash, again.MintTxHash)
}

func TestConcurrentReadsDuringResume(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	p, err := rig.orchestrator.Start(ctx, buyer, "USDT", 50)
	require.NoError(t, err)
	require.Equal(t, StateAwaitingApproval, p.State)
	rig.token.setAllowance(buyer, spender, p.Approval.RequiredAmount)

	stop := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			select {
			case <-stop:
				return
			default:
				if got, ok := rig.orchestrator.Get(p.ID); ok {
					_ = got.State
					_ = got.TransferTxHash
					_ = got.MintTxHash
				}
			}
		}
	}()

	resumed, err := rig.orchestrator.Resume(ctx, p.ID, "0x"+strings.Repeat("aa", 32))
	close(stop)
	<-readerDone

	require.NoError(t, err)
	assert.Equal(t, StateSuccess, resumed.State)
}

func TestFinishedPurchasesAreEvictedPastCap(t *testing.T) {
	token := newFakeERC20()
	token.setAllowance(buyer, spender, tokenmint.TokensToBase(1_000_000))
	orchestrator, err := New(Config{
		Contract:           &fakeSale{saleEnabled: true, tokenAccepted: true},
		Engine:             mint.NewEngine(newFakeMintContract(), nil),
		PaymentTokens:      map[string]ERC20{"USDT": token},
		FacilitatorAddress: spender,
		MaxRetained:        2,
	})
	require.NoError(t, err)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		p, err := orchestrator.Start(ctx, buyer, "USDT", 10)
		require.NoError(t, err)
		require.Equal(t, StateSuccess, p.State)
		ids = append(ids, p.ID)
	}

	// The oldest finished record gives way; the newer ones survive.
	_, ok := orchestrator.Get(ids[0])
	assert.False(t, ok)
	_, ok = orchestrator.Get(ids[1])
	assert.True(t, ok)
	_, ok = orchestrator.Get(ids[2])
	assert.True(t, ok)
}

func TestSuspendedPurchasesAreNeverEvicted(t *testing.T) {
	token := newFakeERC20()
	orchestrator, err := New(Config{
		Contract:           &fakeSale{saleEnabled: true, tokenAccepted: true},
		Engine:             mint.NewEngine(newFakeMintContract(), nil),
		PaymentTokens:      map[string]ERC20{"USDT": token},
		FacilitatorAddress: spender,
		MaxRetained:        2,
	})
	require.NoError(t, err)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		p, err := orchestrator.Start(ctx, buyer, "USDT", 10)
		require.NoError(t, err)
		require.Equal(t, StateAwaitingApproval, p.State)
		ids = append(ids, p.ID)
	}

	for _, id := range ids {
		_, ok := orchestrator.Get(id)
		assert.True(t, ok, "suspended purchase %s must not be evicted", id)
	}
}

func TestResumeUnknownOrWrongState(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	_, err := rig.orchestrator.Resume(ctx, "gasless_missing", "")
	assert.Contains(t, err.Error(), "unknown purchase")

	rig.token.setAllowance(buyer, spender, tokenmint.TokensToBase(1_000_000))
	p, err := rig.orchestrator.Start(ctx, buyer, "USDT", 10)
	require.NoError(t, err)
	require.Equal(t, StateSuccess, p.State)

	_, err = rig.orchestrator.Resume(ctx, p.ID, "")
	assert.Contains(t, err.Error(), "not awaiting approval")
}
