package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	tokenmint "github.com/b402-foundation/tokenmint"
)

// gasBufferPercent is added on top of the node's gas estimate for every
// state-changing transaction.
const gasBufferPercent = 20

// receiptPollInterval is how often WaitForTransactionReceipt re-checks a
// pending transaction.
const receiptPollInterval = 2 * time.Second

// Backend implements tokenmint.ChainBackend on a bound Connection, signing
// all writes with the single service-wallet key. Writes are serialized
// behind a mutex so nonces from the service wallet never collide.
type Backend struct {
	conn       *Connection
	privateKey *ecdsa.PrivateKey
	address    common.Address
	retry      RetryPolicy

	// writeMu serializes nonce assignment and submission for the
	// service wallet.
	writeMu sync.Mutex
}

// NewBackend creates a backend from a bound connection and a hex-encoded
// service-wallet private key.
func NewBackend(conn *Connection, privateKeyHex string) (*Backend, error) {
	if conn == nil {
		return nil, tokenmint.NewConfigurationError("connection is required")
	}
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, tokenmint.NewConfigurationError(fmt.Sprintf("invalid service wallet key: %v", err))
	}

	return &Backend{
		conn:       conn,
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		retry:      DefaultRetryPolicy(),
	}, nil
}

// SignerAddress returns the service wallet address.
func (b *Backend) SignerAddress() string {
	return b.address.Hex()
}

// ChainID returns the chain ID of the bound endpoint.
func (b *Backend) ChainID(ctx context.Context) (*big.Int, error) {
	return b.conn.ChainID, nil
}

// BlockNumber returns the current head block number.
func (b *Backend) BlockNumber(ctx context.Context) (uint64, error) {
	var n uint64
	err := Retry(ctx, b.retry, func(ctx context.Context) error {
		var err error
		n, err = b.conn.Client.BlockNumber(ctx)
		return err
	})
	return n, err
}

// GetBalance returns the native-currency balance of an address.
func (b *Backend) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	var balance *big.Int
	err := Retry(ctx, b.retry, func(ctx context.Context) error {
		var err error
		balance, err = b.conn.Client.BalanceAt(ctx, common.HexToAddress(address), nil)
		return err
	})
	return balance, err
}

// ReadContract executes a constant call and unpacks the outputs. Reads are
// retried within the connectivity budget since they are side-effect free.
func (b *Backend) ReadContract(ctx context.Context, address string, abiJSON []byte, functionName string, args ...interface{}) (interface{}, error) {
	contractABI, err := abi.JSON(strings.NewReader(string(abiJSON)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	data, err := contractABI.Pack(functionName, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", functionName, err)
	}

	addr := common.HexToAddress(address)
	msg := ethereum.CallMsg{To: &addr, Data: data}

	var raw []byte
	err = Retry(ctx, b.retry, func(ctx context.Context) error {
		var err error
		raw, err = b.conn.Client.CallContract(ctx, msg, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	outputs, err := contractABI.Unpack(functionName, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", functionName, err)
	}

	switch len(outputs) {
	case 0:
		return nil, nil
	case 1:
		return outputs[0], nil
	default:
		return outputs, nil
	}
}

// WriteContract submits a state-changing transaction from the service
// wallet. The gas limit is the node's estimate plus a 20% buffer.
// Submission is not retried automatically: a resubmitted write could
// double-spend against the allocation if the first attempt actually landed.
func (b *Backend) WriteContract(ctx context.Context, address string, abiJSON []byte, functionName string, args ...interface{}) (string, error) {
	contractABI, err := abi.JSON(strings.NewReader(string(abiJSON)))
	if err != nil {
		return "", fmt.Errorf("failed to parse ABI: %w", err)
	}

	data, err := contractABI.Pack(functionName, args...)
	if err != nil {
		return "", fmt.Errorf("failed to pack %s call: %w", functionName, err)
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	addr := common.HexToAddress(address)
	client := b.conn.Client

	nonce, err := client.PendingNonceAt(ctx, b.address)
	if err != nil {
		return "", fmt.Errorf("failed to fetch nonce: %w", err)
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch gas price: %w", err)
	}

	gasEstimate, err := client.EstimateGas(ctx, ethereum.CallMsg{
		From: b.address,
		To:   &addr,
		Data: data,
	})
	if err != nil {
		// Estimation runs the call; a failure here is the contract
		// rejecting the transaction before any gas is spent.
		return "", &tokenmint.Error{
			Code:    tokenmint.ErrCodeOnChainRevert,
			Message: fmt.Sprintf("%s would revert: %v", functionName, err),
		}
	}
	gasLimit := gasEstimate + gasEstimate*gasBufferPercent/100

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &addr,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(b.conn.ChainID), b.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := client.SendTransaction(ctx, signedTx); err != nil {
		return "", &tokenmint.Error{
			Code:      tokenmint.ErrCodeConnectivity,
			Message:   fmt.Sprintf("failed to submit %s: %v", functionName, err),
			Retryable: true,
		}
	}

	return signedTx.Hash().Hex(), nil
}

// WaitForTransactionReceipt polls for the receipt until the transaction is
// mined or the context expires. Context expiry means the outcome is
// unknown: the transaction may still confirm later.
func (b *Backend) WaitForTransactionReceipt(ctx context.Context, txHash string) (*tokenmint.TransactionReceipt, error) {
	hash := common.HexToHash(txHash)
	for {
		receipt, err := b.conn.Client.TransactionReceipt(ctx, hash)
		if err == nil {
			return &tokenmint.TransactionReceipt{
				TxHash:      receipt.TxHash.Hex(),
				Status:      receipt.Status,
				BlockNumber: receipt.BlockNumber.Uint64(),
				GasUsed:     receipt.GasUsed,
			}, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("failed to fetch receipt for %s: %w", txHash, err)
		}

		select {
		case <-time.After(receiptPollInterval):
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for %s (outcome unknown): %w", txHash, ctx.Err())
		}
	}
}

// Compile-time interface check.
var _ tokenmint.ChainBackend = (*Backend)(nil)
