package service

// DefaultPaymentTokens maps the accepted stablecoin symbols to their BSC
// mainnet contracts. Service.New falls back to this registry when no
// payment tokens are configured.
var DefaultPaymentTokens = map[string]string{
	"USDT": "0x55d398326f99059fF775485246999027B3197955",
	"USDC": "0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d",
	"USD1": "0x8d0D000Ee44948FC98c9B98A4FA4921476f08B0d",
}

// PaymentTokenAddress looks a symbol up in the default registry.
func PaymentTokenAddress(symbol string) (string, bool) {
	address, ok := DefaultPaymentTokens[symbol]
	return address, ok
}
