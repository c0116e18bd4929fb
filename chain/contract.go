package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	tokenmint "github.com/b402-foundation/tokenmint"
)

// tokenABI covers the distribution contract functions this service calls.
var tokenABI = []byte(`[
  {"type":"function","name":"mintAirdrop","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"mintBayc","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"mintLiquidity","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"mintPublic","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"purchaseTokensGasless","stateMutability":"nonpayable","inputs":[{"name":"buyer","type":"address"},{"name":"tokenAmount","type":"uint256"},{"name":"paymentToken","type":"address"},{"name":"paymentAmount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"disableMinting","stateMutability":"nonpayable","inputs":[],"outputs":[]},
  {"type":"function","name":"calculatePayment","stateMutability":"view","inputs":[{"name":"tokenAmount","type":"uint256"},{"name":"paymentToken","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"isPaymentTokenAccepted","stateMutability":"view","inputs":[{"name":"token","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"mintingEnabled","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"publicSaleEnabled","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getRemainingAllocations","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"},{"name":"","type":"uint256"},{"name":"","type":"uint256"},{"name":"","type":"uint256"}]},
  {"type":"function","name":"getDistributionStatus","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"},{"name":"","type":"uint256"},{"name":"","type":"uint256"},{"name":"","type":"uint256"},{"name":"","type":"uint256"}]},
  {"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
]`)

// erc20ABI covers the stablecoin functions used by the allowance workflow.
var erc20ABI = []byte(`[
  {"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"transferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`)

// mintFunctions maps each pool to its contract entry point.
var mintFunctions = map[tokenmint.Pool]string{
	tokenmint.PoolAirdrop:   "mintAirdrop",
	tokenmint.PoolBayc:      "mintBayc",
	tokenmint.PoolLiquidity: "mintLiquidity",
	tokenmint.PoolPublic:    "mintPublic",
}

// TokenContract is a typed wrapper around the distribution contract.
type TokenContract struct {
	backend tokenmint.ChainBackend
	address string
}

// NewTokenContract creates a wrapper for the distribution contract at the
// given address.
func NewTokenContract(backend tokenmint.ChainBackend, address string) (*TokenContract, error) {
	if !tokenmint.ValidAddress(address) {
		return nil, tokenmint.NewConfigurationError(fmt.Sprintf("invalid contract address: %s", address))
	}
	return &TokenContract{backend: backend, address: address}, nil
}

// Address returns the contract address.
func (c *TokenContract) Address() string {
	return c.address
}

// RemainingAllocations reads the live remaining balance of all four pools.
func (c *TokenContract) RemainingAllocations(ctx context.Context) (tokenmint.Allocations, error) {
	out, err := c.backend.ReadContract(ctx, c.address, tokenABI, "getRemainingAllocations")
	if err != nil {
		return tokenmint.Allocations{}, err
	}
	vals, err := asBigInts(out, 4)
	if err != nil {
		return tokenmint.Allocations{}, fmt.Errorf("getRemainingAllocations: %w", err)
	}
	return tokenmint.Allocations{
		Airdrop:   vals[0],
		Bayc:      vals[1],
		Liquidity: vals[2],
		Public:    vals[3],
	}, nil
}

// DistributionStatus reads total minted plus per-pool progress percentages.
func (c *TokenContract) DistributionStatus(ctx context.Context) (totalMinted *big.Int, progress map[tokenmint.Pool]int64, err error) {
	out, err := c.backend.ReadContract(ctx, c.address, tokenABI, "getDistributionStatus")
	if err != nil {
		return nil, nil, err
	}
	vals, err := asBigInts(out, 5)
	if err != nil {
		return nil, nil, fmt.Errorf("getDistributionStatus: %w", err)
	}
	progress = map[tokenmint.Pool]int64{
		tokenmint.PoolAirdrop:   vals[1].Int64(),
		tokenmint.PoolBayc:      vals[2].Int64(),
		tokenmint.PoolLiquidity: vals[3].Int64(),
		tokenmint.PoolPublic:    vals[4].Int64(),
	}
	return vals[0], progress, nil
}

// Mint submits the pool-specific mint call and returns the transaction hash.
func (c *TokenContract) Mint(ctx context.Context, pool tokenmint.Pool, to string, amount *big.Int) (string, error) {
	fn, ok := mintFunctions[pool]
	if !ok {
		return "", tokenmint.NewValidationError(fmt.Sprintf("unknown pool: %s", pool))
	}
	return c.backend.WriteContract(ctx, c.address, tokenABI, fn, common.HexToAddress(to), amount)
}

// PurchaseTokensGasless submits a facilitator-paid purchase that credits
// tokens to the buyer in one contract call.
func (c *TokenContract) PurchaseTokensGasless(ctx context.Context, buyer string, tokenAmount *big.Int, paymentToken string, paymentAmount *big.Int) (string, error) {
	return c.backend.WriteContract(ctx, c.address, tokenABI, "purchaseTokensGasless",
		common.HexToAddress(buyer), tokenAmount, common.HexToAddress(paymentToken), paymentAmount)
}

// CalculatePayment quotes the stablecoin cost of a token amount.
func (c *TokenContract) CalculatePayment(ctx context.Context, tokenAmount *big.Int, paymentToken string) (*big.Int, error) {
	out, err := c.backend.ReadContract(ctx, c.address, tokenABI, "calculatePayment", tokenAmount, common.HexToAddress(paymentToken))
	if err != nil {
		return nil, err
	}
	return asBigInt(out)
}

// IsPaymentTokenAccepted reports whether the contract accepts the token.
func (c *TokenContract) IsPaymentTokenAccepted(ctx context.Context, token string) (bool, error) {
	out, err := c.backend.ReadContract(ctx, c.address, tokenABI, "isPaymentTokenAccepted", common.HexToAddress(token))
	if err != nil {
		return false, err
	}
	return asBool(out)
}

// MintingEnabled reports whether minting is globally enabled.
func (c *TokenContract) MintingEnabled(ctx context.Context) (bool, error) {
	out, err := c.backend.ReadContract(ctx, c.address, tokenABI, "mintingEnabled")
	if err != nil {
		return false, err
	}
	return asBool(out)
}

// PublicSaleEnabled reports whether the public sale is open.
func (c *TokenContract) PublicSaleEnabled(ctx context.Context) (bool, error) {
	out, err := c.backend.ReadContract(ctx, c.address, tokenABI, "publicSaleEnabled")
	if err != nil {
		return false, err
	}
	return asBool(out)
}

// Owner reads the contract owner.
func (c *TokenContract) Owner(ctx context.Context) (string, error) {
	out, err := c.backend.ReadContract(ctx, c.address, tokenABI, "owner")
	if err != nil {
		return "", err
	}
	if addr, ok := out.(common.Address); ok {
		return addr.Hex(), nil
	}
	return "", fmt.Errorf("owner: unexpected output %T", out)
}

// DisableMinting permanently disables minting. The contract treats this as
// one-way; callers must treat it as strictly terminal.
func (c *TokenContract) DisableMinting(ctx context.Context) (string, error) {
	return c.backend.WriteContract(ctx, c.address, tokenABI, "disableMinting")
}

// WaitForReceipt forwards to the backend.
func (c *TokenContract) WaitForReceipt(ctx context.Context, txHash string) (*tokenmint.TransactionReceipt, error) {
	return c.backend.WaitForTransactionReceipt(ctx, txHash)
}

// ERC20 is a typed wrapper around a stablecoin contract.
type ERC20 struct {
	backend tokenmint.ChainBackend
	address string
}

// NewERC20 creates a wrapper for the token at the given address.
func NewERC20(backend tokenmint.ChainBackend, address string) (*ERC20, error) {
	if !tokenmint.ValidAddress(address) {
		return nil, tokenmint.NewConfigurationError(fmt.Sprintf("invalid token address: %s", address))
	}
	return &ERC20{backend: backend, address: address}, nil
}

// Address returns the token contract address.
func (e *ERC20) Address() string {
	return e.address
}

// Allowance reads the live (owner, spender) allowance.
func (e *ERC20) Allowance(ctx context.Context, owner, spender string) (*big.Int, error) {
	out, err := e.backend.ReadContract(ctx, e.address, erc20ABI, "allowance",
		common.HexToAddress(owner), common.HexToAddress(spender))
	if err != nil {
		return nil, err
	}
	return asBigInt(out)
}

// Approve submits an approval for exactly amount and returns the tx hash.
func (e *ERC20) Approve(ctx context.Context, spender string, amount *big.Int) (string, error) {
	return e.backend.WriteContract(ctx, e.address, erc20ABI, "approve",
		common.HexToAddress(spender), amount)
}

// TransferFrom moves amount from owner to recipient using the service
// wallet's allowance, and returns the tx hash.
func (e *ERC20) TransferFrom(ctx context.Context, owner, to string, amount *big.Int) (string, error) {
	return e.backend.WriteContract(ctx, e.address, erc20ABI, "transferFrom",
		common.HexToAddress(owner), common.HexToAddress(to), amount)
}

// BalanceOf reads the token balance of an account.
func (e *ERC20) BalanceOf(ctx context.Context, account string) (*big.Int, error) {
	out, err := e.backend.ReadContract(ctx, e.address, erc20ABI, "balanceOf", common.HexToAddress(account))
	if err != nil {
		return nil, err
	}
	return asBigInt(out)
}

// WaitForReceipt forwards to the backend.
func (e *ERC20) WaitForReceipt(ctx context.Context, txHash string) (*tokenmint.TransactionReceipt, error) {
	return e.backend.WaitForTransactionReceipt(ctx, txHash)
}

func asBigInt(out interface{}) (*big.Int, error) {
	v, ok := out.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected contract output %T, want *big.Int", out)
	}
	return v, nil
}

func asBool(out interface{}) (bool, error) {
	v, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("unexpected contract output %T, want bool", out)
	}
	return v, nil
}

func asBigInts(out interface{}, n int) ([]*big.Int, error) {
	raw, ok := out.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected contract output %T, want %d values", out, n)
	}
	if len(raw) != n {
		return nil, fmt.Errorf("unexpected output arity %d, want %d", len(raw), n)
	}
	vals := make([]*big.Int, n)
	for i, r := range raw {
		v, ok := r.(*big.Int)
		if !ok {
			return nil, fmt.Errorf("unexpected output %d type %T, want *big.Int", i, r)
		}
		vals[i] = v
	}
	return vals, nil
}
