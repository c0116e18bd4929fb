// Package facilitator is the HTTP client for the external payment
// facilitator's two-phase verify/settle protocol. The two calls are not
// atomic from this system's perspective: a verify success followed by a
// settle failure is surfaced distinctly so the caller can decide whether
// to restart from a fresh authorization.
package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	tokenmint "github.com/b402-foundation/tokenmint"
)

// DefaultURL is the public facilitator.
const DefaultURL = "https://facilitator.b402.ai"

// Config configures the facilitator client.
type Config struct {
	// URL is the base URL of the facilitator service (optional,
	// defaults to DefaultURL).
	URL string

	// HTTPClient overrides the default 30s-timeout client (optional).
	HTTPClient *http.Client

	// Timeout for requests when no HTTPClient is given (optional).
	Timeout time.Duration

	// RelayerContract and Network are routing metadata sent with every
	// request.
	RelayerContract string
	Network         string
}

// Client talks to the facilitator over HTTP.
type Client struct {
	url             string
	httpClient      *http.Client
	relayerContract string
	network         string
}

// New creates a facilitator client.
func New(cfg Config) (*Client, error) {
	if !tokenmint.ValidAddress(cfg.RelayerContract) {
		return nil, tokenmint.NewConfigurationError("invalid relayer contract address")
	}
	if cfg.Network == "" {
		return nil, tokenmint.NewConfigurationError("facilitator network is required")
	}

	url := cfg.URL
	if url == "" {
		url = DefaultURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		url:             url,
		httpClient:      httpClient,
		relayerContract: cfg.RelayerContract,
		network:         cfg.Network,
	}, nil
}

// requestBody is the wire format shared by /verify and /settle.
type requestBody struct {
	PaymentPayload      paymentPayload      `json:"paymentPayload"`
	PaymentRequirements paymentRequirements `json:"paymentRequirements"`
}

type paymentPayload struct {
	Token   string         `json:"token"`
	Payload paymentDetails `json:"payload"`
}

type paymentDetails struct {
	Authorization tokenmint.PaymentAuthorization `json:"authorization"`
	Signature     string                         `json:"signature"`
}

type paymentRequirements struct {
	RelayerContract string `json:"relayerContract"`
	Network         string `json:"network"`
}

func (c *Client) buildRequest(auth *tokenmint.SignedAuthorization) requestBody {
	return requestBody{
		PaymentPayload: paymentPayload{
			Token: auth.TokenAddress,
			Payload: paymentDetails{
				Authorization: auth.Authorization,
				Signature:     auth.Signature,
			},
		},
		PaymentRequirements: paymentRequirements{
			RelayerContract: c.relayerContract,
			Network:         c.network,
		},
	}
}

// Verify asks the facilitator whether the authorization is valid. An
// invalid authorization is returned as a verification_rejected error
// carrying the facilitator's reason.
func (c *Client) Verify(ctx context.Context, auth *tokenmint.SignedAuthorization) (*tokenmint.VerifyResponse, error) {
	if err := tokenmint.ValidateAuthorization(auth); err != nil {
		return nil, err
	}

	var verifyResponse tokenmint.VerifyResponse
	status, err := c.post(ctx, "/verify", c.buildRequest(auth), &verifyResponse)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK || !verifyResponse.IsValid {
		reason := verifyResponse.InvalidReason
		if reason == "" {
			reason = fmt.Sprintf("facilitator returned %d", status)
		}
		return nil, &tokenmint.Error{
			Code:    tokenmint.ErrCodeVerificationRejected,
			Message: fmt.Sprintf("payment verification failed: %s", reason),
		}
	}

	return &verifyResponse, nil
}

// Settle asks the facilitator to execute a previously verified
// authorization on-chain. A failure after a valid verify is surfaced as
// settlement_failed; the nonce is single-use, so callers retry by
// restarting from a fresh authorization.
func (c *Client) Settle(ctx context.Context, auth *tokenmint.SignedAuthorization) (*tokenmint.SettleResponse, error) {
	if err := tokenmint.ValidateAuthorization(auth); err != nil {
		return nil, err
	}

	var settleResponse tokenmint.SettleResponse
	status, err := c.post(ctx, "/settle", c.buildRequest(auth), &settleResponse)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK || !settleResponse.Success {
		reason := settleResponse.ErrorReason
		if reason == "" {
			reason = fmt.Sprintf("facilitator returned %d", status)
		}
		return nil, &tokenmint.Error{
			Code:    tokenmint.ErrCodeSettlementFailed,
			Message: fmt.Sprintf("payment settlement failed: %s", reason),
		}
	}

	return &settleResponse, nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+path, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &tokenmint.Error{
			Code:      tokenmint.ErrCodeConnectivity,
			Message:   fmt.Sprintf("facilitator %s request failed: %v", path, err),
			Retryable: true,
		}
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s response: %w", path, err)
	}

	if err := json.Unmarshal(responseBody, out); err != nil {
		return 0, fmt.Errorf("facilitator %s returned malformed response (%d): %s", path, resp.StatusCode, string(responseBody))
	}

	return resp.StatusCode, nil
}

// Compile-time interface check.
var _ tokenmint.Facilitator = (*Client)(nil)
