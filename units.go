package tokenmint

import (
	"fmt"
	"math/big"
	"strings"
)

// TokenDecimals is the base-unit scale of the mint token and of every
// accepted payment stablecoin on BSC.
const TokenDecimals = 18

// ParseUnits converts a human-readable decimal amount to base units,
// exactly and without floating point. "1.5" with 18 decimals becomes
// 1500000000000000000.
func ParseUnits(amount string, decimals int) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("empty amount")
	}

	neg := false
	if strings.HasPrefix(amount, "-") {
		neg = true
		amount = amount[1:]
	}

	whole, frac := amount, ""
	if i := strings.IndexByte(amount, '.'); i >= 0 {
		whole, frac = amount[:i], amount[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", amount, decimals)
	}
	frac += strings.Repeat("0", decimals-len(frac))

	v, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal amount: %s", amount)
	}
	if neg {
		v.Neg(v)
	}
	return v, nil
}

// FormatUnits converts a base-unit amount back to a decimal string,
// trimming trailing zeros from the fractional part.
func FormatUnits(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}
	sign := ""
	v := new(big.Int).Set(amount)
	if v.Sign() < 0 {
		sign = "-"
		v.Neg(v)
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(v, scale, new(big.Int))
	if frac.Sign() == 0 {
		return sign + whole.String()
	}

	fracStr := strings.TrimRight(fmt.Sprintf("%0*s", decimals, frac.String()), "0")
	return sign + whole.String() + "." + fracStr
}

// TokensToBase converts a whole-token count to base units.
func TokensToBase(tokens int64) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(TokenDecimals), nil)
	return new(big.Int).Mul(big.NewInt(tokens), scale)
}

// BaseToTokens converts a base-unit amount to whole tokens, rounding down.
func BaseToTokens(base *big.Int) int64 {
	if base == nil {
		return 0
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(TokenDecimals), nil)
	return new(big.Int).Quo(base, scale).Int64()
}
