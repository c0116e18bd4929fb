package auth

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tokenmint "github.com/b402-foundation/tokenmint"
	"github.com/b402-foundation/tokenmint/signers/evm"
)

const (
	// Throwaway key, never funded.
	testPrivateKey = "1111111111111111111111111111111111111111111111111111111111111111"

	relayerAddress  = "0x1234567890abcdef1234567890abcdef12345678"
	merchantAddress = "0xfedcba0987654321fedcba0987654321fedcba09"
	tokenAddress    = "0xcccccccccccccccccccccccccccccccccccccccc"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	key, err := evm.NewKeySigner(testPrivateKey)
	require.NoError(t, err)

	signer, err := New(Config{
		Signer:          key,
		ChainID:         big.NewInt(56),
		RelayerAddress:  relayerAddress,
		MerchantAddress: merchantAddress,
	})
	require.NoError(t, err)
	return signer
}

func TestCreateAuthorization(t *testing.T) {
	signer := newTestSigner(t)

	before := time.Now().Unix()
	auth, err := signer.CreateAuthorization(context.Background(), tokenAddress, big.NewInt(1_000_000))
	require.NoError(t, err)

	require.NoError(t, tokenmint.ValidateAuthorization(auth))
	assert.Equal(t, merchantAddress, auth.Authorization.To)
	assert.Equal(t, "1000000", auth.Authorization.Value)
	assert.Equal(t, tokenAddress, auth.TokenAddress)

	// 65-byte signature, 0x-hex encoded.
	assert.Len(t, auth.Signature, 2+65*2)

	// Validity window opens now and spans the default hour.
	assert.GreaterOrEqual(t, auth.Authorization.ValidAfter, before)
	assert.Equal(t, auth.Authorization.ValidAfter+DefaultValidityPeriod, auth.Authorization.ValidBefore)
}

func TestCreateAuthorizationNoncesAreUnique(t *testing.T) {
	signer := newTestSigner(t)

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		auth, err := signer.CreateAuthorization(context.Background(), tokenAddress, big.NewInt(1))
		require.NoError(t, err)
		assert.False(t, seen[auth.Authorization.Nonce], "nonce reused")
		seen[auth.Authorization.Nonce] = true
	}
}

func TestCreateAuthorizationWithoutSigner(t *testing.T) {
	signer, err := New(Config{
		ChainID:         big.NewInt(56),
		RelayerAddress:  relayerAddress,
		MerchantAddress: merchantAddress,
	})
	require.NoError(t, err)

	_, err = signer.CreateAuthorization(context.Background(), tokenAddress, big.NewInt(1))
	assert.True(t, tokenmint.IsCode(err, tokenmint.ErrCodeSigningUnavailable))
}

func TestCreateAuthorizationValidation(t *testing.T) {
	signer := newTestSigner(t)

	_, err := signer.CreateAuthorization(context.Background(), "not-an-address", big.NewInt(1))
	assert.True(t, tokenmint.IsCode(err, tokenmint.ErrCodeValidation))

	_, err = signer.CreateAuthorization(context.Background(), tokenAddress, big.NewInt(0))
	assert.True(t, tokenmint.IsCode(err, tokenmint.ErrCodeValidation))

	_, err = signer.CreateAuthorization(context.Background(), tokenAddress, nil)
	assert.True(t, tokenmint.IsCode(err, tokenmint.ErrCodeValidation))
}

func TestNewConfigValidation(t *testing.T) {
	_, err := New(Config{RelayerAddress: relayerAddress, MerchantAddress: merchantAddress})
	assert.True(t, tokenmint.IsCode(err, tokenmint.ErrCodeConfiguration))

	_, err = New(Config{ChainID: big.NewInt(56), RelayerAddress: "bad", MerchantAddress: merchantAddress})
	assert.True(t, tokenmint.IsCode(err, tokenmint.ErrCodeConfiguration))
}

func TestCustomValidityPeriod(t *testing.T) {
	key, err := evm.NewKeySigner(testPrivateKey)
	require.NoError(t, err)

	signer, err := New(Config{
		Signer:          key,
		ChainID:         big.NewInt(56),
		RelayerAddress:  relayerAddress,
		MerchantAddress: merchantAddress,
		ValidityPeriod:  5 * time.Minute,
	})
	require.NoError(t, err)

	auth, err := signer.CreateAuthorization(context.Background(), tokenAddress, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, int64(300), auth.Authorization.ValidBefore-auth.Authorization.ValidAfter)
}
