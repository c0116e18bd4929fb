package chain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tokenmint "github.com/b402-foundation/tokenmint"
)

// fakeRPC answers eth_chainId so Dial's liveness probe succeeds.
func fakeRPC(t *testing.T, chainID string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  chainID,
		})
	}))
}

func TestDialBindsFirstLiveEndpoint(t *testing.T) {
	live := fakeRPC(t, "0x38")
	defer live.Close()

	conn, err := Dial(context.Background(), ConnectionConfig{
		Endpoints:    []string{"http://127.0.0.1:1", live.URL},
		ProbeTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, live.URL, conn.Endpoint)
	assert.Equal(t, int64(0x38), conn.ChainID.Int64())
}

func TestDialPrefersEarlierEndpoint(t *testing.T) {
	primary := fakeRPC(t, "0x38")
	defer primary.Close()
	secondary := fakeRPC(t, "0x38")
	defer secondary.Close()

	conn, err := Dial(context.Background(), ConnectionConfig{
		Endpoints: []string{primary.URL, secondary.URL},
	})
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, primary.URL, conn.Endpoint)
}

func TestDialAllEndpointsUnreachable(t *testing.T) {
	_, err := Dial(context.Background(), ConnectionConfig{
		Endpoints:    []string{"http://127.0.0.1:1", "http://127.0.0.1:2"},
		ProbeTimeout: time.Second,
	})
	require.Error(t, err)
	assert.True(t, tokenmint.IsCode(err, tokenmint.ErrCodeAllEndpointsUnreachable))
	assert.True(t, tokenmint.IsRetryable(err))
}

func TestDialRequiresEndpoints(t *testing.T) {
	_, err := Dial(context.Background(), ConnectionConfig{})
	assert.True(t, tokenmint.IsCode(err, tokenmint.ErrCodeConfiguration))
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	calls := 0
	err := Retry(context.Background(), policy, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryAbortsOnNonRetryableError(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	calls := 0
	err := Retry(context.Background(), policy, func(ctx context.Context) error {
		calls++
		return tokenmint.NewValidationError("bad input")
	})
	assert.True(t, tokenmint.IsCode(err, tokenmint.ErrCodeValidation))
	assert.Equal(t, 1, calls)
}

func TestRetryExhaustionIsConnectivityError(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	calls := 0
	err := Retry(context.Background(), policy, func(ctx context.Context) error {
		calls++
		return errors.New("still down")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, tokenmint.IsCode(err, tokenmint.ErrCodeConnectivity))
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Retry(ctx, policy, func(ctx context.Context) error {
			return errors.New("transient")
		})
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}
