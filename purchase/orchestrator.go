package purchase

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	tokenmint "github.com/b402-foundation/tokenmint"
	"github.com/b402-foundation/tokenmint/mint"
)

// State is a step of the gasless purchase state machine.
type State string

const (
	StateIdle             State = "idle"
	StateCheckingApproval State = "checking_approval"
	StateAwaitingApproval State = "awaiting_approval"
	StateTransferring     State = "transferring"
	StateMinting          State = "minting"
	StateSuccess          State = "success"
	StateError            State = "error"
)

// DefaultMaxRetained bounds the purchase records kept in memory.
const DefaultMaxRetained = 1024

// SaleContract is the slice of the distribution contract the orchestrator
// needs for the public sale path.
type SaleContract interface {
	CalculatePayment(ctx context.Context, tokenAmount *big.Int, paymentToken string) (*big.Int, error)
	PublicSaleEnabled(ctx context.Context) (bool, error)
	IsPaymentTokenAccepted(ctx context.Context, token string) (bool, error)
}

// Purchase is one in-flight or finished gasless purchase. AwaitingApproval
// is the single externally visible suspension point: the purchase stays
// resumable until the caller reports the wallet approval.
//
// Values handed out by Start, Resume, and Get are point-in-time copies;
// the orchestrator keeps the live record internally.
type Purchase struct {
	ID              string                     `json:"id"`
	State           State                      `json:"state"`
	Recipient       string                     `json:"recipient"`
	TokenSymbol     string                     `json:"tokenSymbol"`
	TokenAmount     int64                      `json:"tokenAmount"`
	RequiredPayment *big.Int                   `json:"requiredPayment,omitempty"`
	Approval        *tokenmint.ApprovalDetails `json:"approval,omitempty"`
	TransferTxHash  string                     `json:"transferTxHash,omitempty"`
	MintTxHash      string                     `json:"mintTxHash,omitempty"`
	Reason          string                     `json:"reason,omitempty"`
	CanRetry        bool                       `json:"canRetry,omitempty"`
	UpdatedAt       time.Time                  `json:"updatedAt"`
}

func (p *Purchase) finished() bool {
	return p.State == StateSuccess || p.State == StateError
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Contract SaleContract
	Engine   *mint.Engine

	// PaymentTokens maps an accepted stablecoin symbol to its contract.
	PaymentTokens map[string]ERC20

	// FacilitatorAddress is the service wallet: spender of the user's
	// allowance and recipient of the payment.
	FacilitatorAddress string

	// MaxRetained caps the purchase records held in memory; the oldest
	// finished records are evicted past the cap, suspended and running
	// purchases never are (optional, defaults to DefaultMaxRetained).
	MaxRetained int
}

// Orchestrator drives purchases through Idle, CheckingApproval, optionally
// AwaitingApproval, then Transferring and Minting to Success or Error.
// No step is retried automatically: each one succeeds,
// suspends for external input, or terminates in Error, and the caller
// decides whether to restart from Idle.
type Orchestrator struct {
	cfg         Config
	allowances  map[string]*AllowanceManager
	maxRetained int

	// mu guards the purchases map and every field of the records in it.
	mu        sync.Mutex
	purchases map[string]*Purchase
}

// New validates the configuration and creates an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Contract == nil || cfg.Engine == nil {
		return nil, tokenmint.NewConfigurationError("contract and engine are required")
	}
	if !tokenmint.ValidAddress(cfg.FacilitatorAddress) {
		return nil, tokenmint.NewConfigurationError("invalid facilitator address")
	}
	if len(cfg.PaymentTokens) == 0 {
		return nil, tokenmint.NewConfigurationError("at least one payment token is required")
	}

	allowances := make(map[string]*AllowanceManager, len(cfg.PaymentTokens))
	for symbol, token := range cfg.PaymentTokens {
		allowances[symbol] = NewAllowanceManager(token)
	}

	maxRetained := cfg.MaxRetained
	if maxRetained <= 0 {
		maxRetained = DefaultMaxRetained
	}

	return &Orchestrator{
		cfg:         cfg,
		allowances:  allowances,
		maxRetained: maxRetained,
		purchases:   make(map[string]*Purchase),
	}, nil
}

// Get returns a point-in-time copy of a purchase by ID.
func (o *Orchestrator) Get(id string) (*Purchase, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.purchases[id]
	if !ok {
		return nil, false
	}
	snapshot := *p
	return &snapshot, true
}

// snapshot copies the live record under the lock.
func (o *Orchestrator) snapshot(p *Purchase) *Purchase {
	o.mu.Lock()
	defer o.mu.Unlock()
	snapshot := *p
	return &snapshot
}

// update applies fn to the live record under the lock.
func (o *Orchestrator) update(p *Purchase, fn func(*Purchase)) {
	o.mu.Lock()
	fn(p)
	p.UpdatedAt = time.Now()
	o.mu.Unlock()
}

// Start begins a purchase of tokenAmount tokens paid in the stablecoin
// identified by tokenSymbol. If the facilitator's allowance is
// insufficient, the purchase suspends in AwaitingApproval carrying the
// exact amount and spender the wallet must approve, and no transfer or
// mint is issued.
func (o *Orchestrator) Start(ctx context.Context, recipient, tokenSymbol string, tokenAmount int64) (*Purchase, error) {
	if !tokenmint.ValidAddress(recipient) {
		return nil, tokenmint.NewValidationError("invalid recipient address format")
	}
	if tokenAmount <= 0 {
		return nil, tokenmint.NewValidationError("amount must be greater than 0")
	}
	if max := tokenmint.PoolPublic.Limits().PerCallMax; tokenAmount > max {
		return nil, tokenmint.NewValidationError(
			fmt.Sprintf("amount must be between 1 and %d tokens for public mint", max))
	}
	token, ok := o.cfg.PaymentTokens[tokenSymbol]
	if !ok {
		return nil, tokenmint.NewValidationError(fmt.Sprintf("unsupported payment token: %s", tokenSymbol))
	}

	p := &Purchase{
		ID:          fmt.Sprintf("gasless_%s", uuid.NewString()),
		State:       StateIdle,
		Recipient:   recipient,
		TokenSymbol: tokenSymbol,
		TokenAmount: tokenAmount,
		UpdatedAt:   time.Now(),
	}
	o.mu.Lock()
	o.purchases[p.ID] = p
	o.pruneLocked()
	o.mu.Unlock()

	o.update(p, func(p *Purchase) { p.State = StateCheckingApproval })

	saleOpen, err := o.cfg.Contract.PublicSaleEnabled(ctx)
	if err != nil {
		return o.failed(p, err)
	}
	if !saleOpen {
		return o.failed(p, tokenmint.NewError(tokenmint.ErrCodeMintingDisabled,
			"public sale is currently disabled", false))
	}
	accepted, err := o.cfg.Contract.IsPaymentTokenAccepted(ctx, token.Address())
	if err != nil {
		return o.failed(p, err)
	}
	if !accepted {
		return o.failed(p, tokenmint.NewValidationError(
			fmt.Sprintf("%s is not accepted as payment", tokenSymbol)))
	}

	required, err := o.cfg.Contract.CalculatePayment(ctx, tokenmint.TokensToBase(tokenAmount), token.Address())
	if err != nil {
		return o.failed(p, err)
	}
	o.update(p, func(p *Purchase) { p.RequiredPayment = required })

	allowance, err := o.allowances[tokenSymbol].Allowance(ctx, recipient, o.cfg.FacilitatorAddress)
	if err != nil {
		return o.failed(p, err)
	}
	if allowance.Cmp(required) < 0 {
		o.update(p, func(p *Purchase) {
			p.Approval = &tokenmint.ApprovalDetails{
				Token:          token.Address(),
				TokenSymbol:    tokenSymbol,
				Spender:        o.cfg.FacilitatorAddress,
				RequiredAmount: required,
			}
			p.State = StateAwaitingApproval
		})
		return o.snapshot(p), nil
	}

	if err := o.proceed(ctx, p, token); err != nil {
		return o.snapshot(p), err
	}
	return o.snapshot(p), nil
}

// Resume continues a purchase suspended in AwaitingApproval after the
// caller observed the wallet's approval transaction. The allowance is
// re-read before proceeding; the reported hash is informational only.
func (o *Orchestrator) Resume(ctx context.Context, id string, approvalTxHash string) (*Purchase, error) {
	o.mu.Lock()
	p, ok := o.purchases[id]
	if !ok {
		o.mu.Unlock()
		return nil, tokenmint.NewValidationError(fmt.Sprintf("unknown purchase: %s", id))
	}
	if p.State != StateAwaitingApproval {
		state := p.State
		o.mu.Unlock()
		return o.snapshot(p), tokenmint.NewValidationError(
			fmt.Sprintf("purchase %s is %s, not awaiting approval", id, state))
	}
	// Claim the purchase while still holding the lock so a concurrent
	// Resume cannot pass the state check as well.
	p.State = StateCheckingApproval
	p.UpdatedAt = time.Now()
	recipient := p.Recipient
	tokenSymbol := p.TokenSymbol
	required := p.RequiredPayment
	o.mu.Unlock()

	token := o.cfg.PaymentTokens[tokenSymbol]

	allowance, err := o.allowances[tokenSymbol].Allowance(ctx, recipient, o.cfg.FacilitatorAddress)
	if err != nil {
		return o.failed(p, err)
	}
	if allowance.Cmp(required) < 0 {
		// Approval not visible yet; re-suspend rather than fail.
		o.update(p, func(p *Purchase) { p.State = StateAwaitingApproval })
		return o.snapshot(p), tokenmint.NewError(tokenmint.ErrCodeAllowanceInsufficient,
			fmt.Sprintf("allowance is %s, need %s; approval %s not reflected yet",
				allowance, required, approvalTxHash), true)
	}

	if err := o.proceed(ctx, p, token); err != nil {
		return o.snapshot(p), err
	}
	return o.snapshot(p), nil
}

// proceed runs the transfer and mint steps to completion.
func (o *Orchestrator) proceed(ctx context.Context, p *Purchase, token ERC20) error {
	o.mu.Lock()
	p.State = StateTransferring
	p.UpdatedAt = time.Now()
	recipient := p.Recipient
	required := p.RequiredPayment
	tokenAmount := p.TokenAmount
	o.mu.Unlock()

	txHash, err := token.TransferFrom(ctx, recipient, o.cfg.FacilitatorAddress, required)
	if err != nil {
		return o.fail(p, err)
	}
	receipt, err := token.WaitForReceipt(ctx, txHash)
	if err != nil {
		return o.fail(p, err)
	}
	if receipt.Status != tokenmint.TxStatusSuccess {
		return o.fail(p, &tokenmint.Error{
			Code:    tokenmint.ErrCodeOnChainRevert,
			Message: fmt.Sprintf("payment transfer %s reverted", txHash),
		})
	}

	o.update(p, func(p *Purchase) {
		p.TransferTxHash = receipt.TxHash
		p.State = StateMinting
	})

	// The confirmed payment transfer is the replay-guard key: one
	// payment credits at most one mint.
	result, err := o.cfg.Engine.MintPublicWithPayment(ctx, recipient, tokenAmount, receipt.TxHash)
	if err != nil {
		return o.fail(p, err)
	}

	o.update(p, func(p *Purchase) {
		p.MintTxHash = result.TxHash
		p.State = StateSuccess
	})
	return nil
}

// fail moves the purchase to Error, recording a human-readable reason and
// whether restarting from Idle can succeed.
func (o *Orchestrator) fail(p *Purchase, err error) error {
	o.update(p, func(p *Purchase) {
		p.State = StateError
		p.Reason = err.Error()
		p.CanRetry = tokenmint.IsRetryable(err)
	})
	return err
}

// failed is fail plus the snapshot the caller returns.
func (o *Orchestrator) failed(p *Purchase, err error) (*Purchase, error) {
	o.fail(p, err)
	return o.snapshot(p), err
}

// pruneLocked evicts the oldest finished purchases while the map exceeds
// the retention cap. Suspended and running purchases are never evicted.
// Callers must hold o.mu.
func (o *Orchestrator) pruneLocked() {
	for len(o.purchases) > o.maxRetained {
		var oldest *Purchase
		for _, p := range o.purchases {
			if !p.finished() {
				continue
			}
			if oldest == nil || p.UpdatedAt.Before(oldest.UpdatedAt) {
				oldest = p
			}
		}
		if oldest == nil {
			return
		}
		delete(o.purchases, oldest.ID)
	}
}
