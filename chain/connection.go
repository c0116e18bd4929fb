// Package chain provides the blockchain connection layer: ordered endpoint
// failover, bounded retry, and an ethclient-backed implementation of
// tokenmint.ChainBackend.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	tokenmint "github.com/b402-foundation/tokenmint"
)

const (
	// DefaultProbeTimeout bounds the liveness probe of a single endpoint.
	DefaultProbeTimeout = 5 * time.Second

	// DefaultRetryAttempts is the per-operation retry ceiling.
	DefaultRetryAttempts = 3

	// DefaultRetryBaseDelay is the first backoff delay; subsequent delays
	// double.
	DefaultRetryBaseDelay = 2 * time.Second
)

// ConnectionConfig configures endpoint selection.
type ConnectionConfig struct {
	// Endpoints are candidate RPC URLs, tried in priority order.
	Endpoints []string

	// ProbeTimeout bounds each liveness probe (optional, defaults to 5s).
	ProbeTimeout time.Duration
}

// Connection is a bound RPC endpoint. Once bound it is used for the
// process lifetime; there is no automatic re-failover mid-session, which
// keeps nonce ordering for the service wallet trivial.
type Connection struct {
	Client   *ethclient.Client
	Endpoint string
	ChainID  *big.Int
}

// Dial probes the configured endpoints in order and binds the first one
// that answers a chain-ID call within the probe timeout.
func Dial(ctx context.Context, cfg ConnectionConfig) (*Connection, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, tokenmint.NewConfigurationError("no RPC endpoints configured")
	}
	probeTimeout := cfg.ProbeTimeout
	if probeTimeout == 0 {
		probeTimeout = DefaultProbeTimeout
	}

	var lastErr error
	for _, endpoint := range cfg.Endpoints {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		client, err := ethclient.DialContext(probeCtx, endpoint)
		if err != nil {
			cancel()
			lastErr = err
			continue
		}

		chainID, err := client.ChainID(probeCtx)
		cancel()
		if err != nil {
			client.Close()
			lastErr = err
			continue
		}

		return &Connection{Client: client, Endpoint: endpoint, ChainID: chainID}, nil
	}

	msg := fmt.Sprintf("no reachable RPC endpoint among %d candidates", len(cfg.Endpoints))
	if lastErr != nil {
		msg = fmt.Sprintf("%s (last error: %v)", msg, lastErr)
	}
	return nil, tokenmint.NewError(tokenmint.ErrCodeAllEndpointsUnreachable, msg, true)
}

// Close releases the underlying RPC client.
func (c *Connection) Close() {
	if c.Client != nil {
		c.Client.Close()
	}
}

// RetryPolicy bounds retried network operations.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy returns the standard 3-attempt exponential policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultRetryAttempts, BaseDelay: DefaultRetryBaseDelay}
}

// Retry runs op up to p.MaxAttempts times with exponential backoff,
// propagating the last error once the budget is exhausted. Validation and
// other non-retryable errors abort immediately.
func Retry(ctx context.Context, p RetryPolicy, op func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRetryAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultRetryBaseDelay
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := op(ctx); err != nil {
			lastErr = err
			if !tokenmint.IsRetryable(err) {
				return err
			}
			if attempt == p.MaxAttempts-1 {
				break
			}
			delay := p.BaseDelay * time.Duration(1<<uint(attempt))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		return nil
	}

	return &tokenmint.Error{
		Code:      tokenmint.ErrCodeConnectivity,
		Message:   fmt.Sprintf("operation failed after %d attempts: %v", p.MaxAttempts, lastErr),
		Retryable: true,
	}
}
