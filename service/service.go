// Package service composes the chain backend, mint engine, purchase
// orchestrator, authorization signer, and facilitator client into the
// single entry point applications use.
package service

import (
	"context"
	"fmt"
	"math/big"

	tokenmint "github.com/b402-foundation/tokenmint"
	"github.com/b402-foundation/tokenmint/auth"
	"github.com/b402-foundation/tokenmint/chain"
	"github.com/b402-foundation/tokenmint/mint"
	"github.com/b402-foundation/tokenmint/purchase"
)

// minGasBalanceWei is the native-currency floor below which the service
// wallet cannot reliably pay for settlement and mint transactions.
// 0.01 in 18-decimal native units.
var minGasBalanceWei = new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil)

// Config configures the service.
type Config struct {
	// Endpoints are candidate RPC URLs, tried in priority order.
	Endpoints []string

	// PrivateKey is the hex-encoded service wallet key. Every on-chain
	// write the service issues is signed with it.
	PrivateKey string

	// ContractAddress is the token distribution contract.
	ContractAddress string

	// PaymentTokens maps accepted stablecoin symbols to their contract
	// addresses. Nil falls back to DefaultPaymentTokens; an empty map
	// disables the purchase paths.
	PaymentTokens map[string]string

	// Facilitator settles signed payment authorizations (optional; the
	// authorized purchase path fails with signing_unavailable without it).
	Facilitator tokenmint.Facilitator

	// AuthSigner creates signed payment authorizations on behalf of a
	// payer key (optional, same caveat as Facilitator).
	AuthSigner *auth.Signer

	// ReplayStore guards payment references (optional, defaults to the
	// in-memory store).
	ReplayStore tokenmint.ReplayStore
}

// Service is the orchestration layer over the distribution contract.
type Service struct {
	cfg Config

	conn     *chain.Connection
	backend  *chain.Backend
	contract *chain.TokenContract
	tokens   map[string]*chain.ERC20

	engine       *mint.Engine
	batch        *mint.BatchProcessor
	orchestrator *purchase.Orchestrator
}

// New dials the chain, binds the contract wrappers, and wires the engines.
func New(ctx context.Context, cfg Config) (*Service, error) {
	conn, err := chain.Dial(ctx, chain.ConnectionConfig{Endpoints: cfg.Endpoints})
	if err != nil {
		return nil, err
	}

	backend, err := chain.NewBackend(conn, cfg.PrivateKey)
	if err != nil {
		conn.Close()
		return nil, err
	}

	contract, err := chain.NewTokenContract(backend, cfg.ContractAddress)
	if err != nil {
		conn.Close()
		return nil, err
	}

	if cfg.PaymentTokens == nil {
		cfg.PaymentTokens = DefaultPaymentTokens
	}

	tokens := make(map[string]*chain.ERC20, len(cfg.PaymentTokens))
	purchaseTokens := make(map[string]purchase.ERC20, len(cfg.PaymentTokens))
	for symbol, address := range cfg.PaymentTokens {
		token, err := chain.NewERC20(backend, address)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("payment token %s: %w", symbol, err)
		}
		tokens[symbol] = token
		purchaseTokens[symbol] = token
	}

	engine := mint.NewEngine(contract, cfg.ReplayStore)

	var orchestrator *purchase.Orchestrator
	if len(purchaseTokens) > 0 {
		orchestrator, err = purchase.New(purchase.Config{
			Contract:           contract,
			Engine:             engine,
			PaymentTokens:      purchaseTokens,
			FacilitatorAddress: backend.SignerAddress(),
		})
		if err != nil {
			conn.Close()
			return nil, err
		}
	}

	return &Service{
		cfg:          cfg,
		conn:         conn,
		backend:      backend,
		contract:     contract,
		tokens:       tokens,
		engine:       engine,
		batch:        mint.NewBatchProcessor(engine),
		orchestrator: orchestrator,
	}, nil
}

// Close releases the RPC connection.
func (s *Service) Close() {
	s.conn.Close()
}

// Backend exposes the chain backend, mainly for health checks and tooling.
func (s *Service) Backend() tokenmint.ChainBackend {
	return s.backend
}

// MintAirdrop mints whole tokens from the airdrop pool.
func (s *Service) MintAirdrop(ctx context.Context, to string, amount int64) (*tokenmint.MintResult, error) {
	return s.engine.Mint(ctx, tokenmint.PoolAirdrop, to, amount)
}

// MintBayc mints whole tokens from the NFT-holder pool.
func (s *Service) MintBayc(ctx context.Context, to string, amount int64) (*tokenmint.MintResult, error) {
	return s.engine.Mint(ctx, tokenmint.PoolBayc, to, amount)
}

// MintLiquidity mints whole tokens from the liquidity pool.
func (s *Service) MintLiquidity(ctx context.Context, to string, amount int64) (*tokenmint.MintResult, error) {
	return s.engine.Mint(ctx, tokenmint.PoolLiquidity, to, amount)
}

// MintPublicWithPayment mints from the public pool against an already
// confirmed payment transaction. The payment hash is the replay-guard key.
func (s *Service) MintPublicWithPayment(ctx context.Context, to string, amount int64, paymentTxHash string) (*tokenmint.MintResult, error) {
	return s.engine.MintPublicWithPayment(ctx, to, amount, paymentTxHash)
}

// MintBatch mints to many recipients from one pool, sequentially.
func (s *Service) MintBatch(ctx context.Context, pool tokenmint.Pool, recipients []tokenmint.BatchRecipient) (*tokenmint.BatchSummary, error) {
	return s.batch.MintBatch(ctx, pool, recipients)
}

// Purchase starts a gasless purchase. It either runs to completion or
// suspends awaiting a wallet approval; see purchase.Orchestrator.
func (s *Service) Purchase(ctx context.Context, recipient, tokenSymbol string, amount int64) (*purchase.Purchase, error) {
	if s.orchestrator == nil {
		return nil, tokenmint.NewConfigurationError("no payment tokens configured")
	}
	return s.orchestrator.Start(ctx, recipient, tokenSymbol, amount)
}

// ResumePurchase continues a purchase suspended on a wallet approval.
func (s *Service) ResumePurchase(ctx context.Context, id, approvalTxHash string) (*purchase.Purchase, error) {
	if s.orchestrator == nil {
		return nil, tokenmint.NewConfigurationError("no payment tokens configured")
	}
	return s.orchestrator.Resume(ctx, id, approvalTxHash)
}

// GetPurchase returns a purchase by ID.
func (s *Service) GetPurchase(id string) (*purchase.Purchase, bool) {
	if s.orchestrator == nil {
		return nil, false
	}
	return s.orchestrator.Get(id)
}

// PurchaseWithAuthorization runs the fully gasless path: a signed
// off-chain payment authorization is verified and settled through the
// facilitator, then the settlement transaction hash authorizes exactly one
// public mint. The payer never submits a transaction or holds gas.
func (s *Service) PurchaseWithAuthorization(ctx context.Context, recipient, tokenSymbol string, amount int64) (*tokenmint.MintResult, error) {
	if s.cfg.AuthSigner == nil || s.cfg.Facilitator == nil {
		return nil, tokenmint.NewError(tokenmint.ErrCodeSigningUnavailable,
			"authorized purchases require a configured signer and facilitator", false)
	}

	// The payment is irrevocable once settled. Everything the mint engine
	// would reject must be rejected here first, before an authorization
	// is even signed.
	if !tokenmint.ValidAddress(recipient) {
		return nil, tokenmint.NewValidationError("invalid recipient address format")
	}
	if amount <= 0 {
		return nil, tokenmint.NewValidationError("amount must be greater than 0")
	}
	if max := tokenmint.PoolPublic.Limits().PerCallMax; amount > max {
		return nil, tokenmint.NewValidationError(
			fmt.Sprintf("amount must be between 1 and %d tokens for public mint", max))
	}
	tokenAddress, ok := s.cfg.PaymentTokens[tokenSymbol]
	if !ok {
		return nil, tokenmint.NewValidationError(fmt.Sprintf("unsupported payment token: %s", tokenSymbol))
	}

	// The service wallet fronts the gas for settlement and mint; refuse
	// up front if it cannot afford to.
	balance, err := s.backend.GetBalance(ctx, s.backend.SignerAddress())
	if err != nil {
		return nil, err
	}
	if balance.Cmp(minGasBalanceWei) < 0 {
		return nil, tokenmint.NewError(tokenmint.ErrCodeConfiguration,
			fmt.Sprintf("service wallet balance %s below minimum %s wei", balance, minGasBalanceWei), false)
	}

	enabled, err := s.contract.MintingEnabled(ctx)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, tokenmint.NewError(tokenmint.ErrCodeMintingDisabled,
			"minting has been permanently disabled", false)
	}
	allocations, err := s.contract.RemainingAllocations(ctx)
	if err != nil {
		return nil, err
	}
	if remaining := allocations.Public; remaining == nil || tokenmint.TokensToBase(amount).Cmp(remaining) > 0 {
		return nil, tokenmint.NewValidationError(
			fmt.Sprintf("insufficient public allocation: requested %d, available %s",
				amount, tokenmint.FormatUnits(allocations.Public, tokenmint.TokenDecimals)))
	}

	required, err := s.contract.CalculatePayment(ctx, tokenmint.TokensToBase(amount), tokenAddress)
	if err != nil {
		return nil, err
	}

	authz, err := s.cfg.AuthSigner.CreateAuthorization(ctx, tokenAddress, required)
	if err != nil {
		return nil, err
	}

	if _, err := s.cfg.Facilitator.Verify(ctx, authz); err != nil {
		return nil, err
	}

	settlement, err := s.cfg.Facilitator.Settle(ctx, authz)
	if err != nil {
		return nil, err
	}

	return s.engine.MintPublicWithPayment(ctx, recipient, amount, settlement.Transaction)
}

// GetAllocationStatus returns the live remaining balance of every pool.
func (s *Service) GetAllocationStatus(ctx context.Context) (*tokenmint.AllocationStatus, error) {
	return s.engine.AllocationStatus(ctx)
}

// GetDistributionStatus returns total minted plus per-pool progress
// percentages, straight from the contract.
func (s *Service) GetDistributionStatus(ctx context.Context) (string, map[tokenmint.Pool]int64, error) {
	totalMinted, progress, err := s.contract.DistributionStatus(ctx)
	if err != nil {
		return "", nil, err
	}
	return tokenmint.FormatUnits(totalMinted, tokenmint.TokenDecimals), progress, nil
}

// VerifyPaymentTransaction checks that a payment transaction is mined and
// did not revert. It does not consume the reference; only a mint does.
func (s *Service) VerifyPaymentTransaction(ctx context.Context, txHash string) (*tokenmint.TransactionReceipt, error) {
	if !tokenmint.ValidTxHash(txHash) {
		return nil, tokenmint.NewValidationError("invalid payment transaction hash format")
	}
	receipt, err := s.backend.WaitForTransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if receipt.Status != tokenmint.TxStatusSuccess {
		return nil, &tokenmint.Error{
			Code:    tokenmint.ErrCodeOnChainRevert,
			Message: fmt.Sprintf("payment transaction %s reverted", txHash),
		}
	}
	return receipt, nil
}

// DisableMinting permanently disables all minting on the contract. There
// is no enable counterpart; treat this as strictly terminal.
func (s *Service) DisableMinting(ctx context.Context) (*tokenmint.TransactionReceipt, error) {
	txHash, err := s.contract.DisableMinting(ctx)
	if err != nil {
		return nil, err
	}
	receipt, err := s.contract.WaitForReceipt(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if receipt.Status != tokenmint.TxStatusSuccess {
		return nil, &tokenmint.Error{
			Code:    tokenmint.ErrCodeOnChainRevert,
			Message: fmt.Sprintf("disableMinting transaction %s reverted", txHash),
		}
	}
	return receipt, nil
}

// Health probes the RPC connection, the contract, and the service wallet.
func (s *Service) Health(ctx context.Context) *tokenmint.HealthStatus {
	status := &tokenmint.HealthStatus{}

	blockNumber, err := s.backend.BlockNumber(ctx)
	if err == nil {
		status.RPCConnected = true
		status.BlockNumber = blockNumber
	}

	if _, err := s.contract.MintingEnabled(ctx); err == nil {
		status.ContractConnected = true
	}

	if balance, err := s.backend.GetBalance(ctx, s.backend.SignerAddress()); err == nil {
		status.WalletConnected = balance.Cmp(minGasBalanceWei) >= 0
	}

	return status
}
