package stable

import "math/big"

const stableDecimals = 18

var (
	basisPoints = big.NewInt(10_000)
	scaleOne    = mustBigInt("1000000000000000000") // 1e18, ratio of scaleOne == 100%
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

func pow10(exp int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil)
}

// normalize rescales an amount from its native decimals to the canonical
// 18-decimal representation. Amounts already at 18 decimals pass through;
// amounts above 18 decimals are scaled down with truncation.
func normalize(amount *big.Int, decimals uint8) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	switch {
	case decimals == stableDecimals:
		return new(big.Int).Set(amount)
	case decimals < stableDecimals:
		return new(big.Int).Mul(amount, pow10(int64(stableDecimals-decimals)))
	default:
		return new(big.Int).Quo(amount, pow10(int64(decimals)-stableDecimals))
	}
}

// denormalize rescales an 18-decimal value back to the asset's native
// decimals, truncating any dust below the asset's precision.
func denormalize(value *big.Int, decimals uint8) *big.Int {
	if value == nil {
		return big.NewInt(0)
	}
	switch {
	case decimals == stableDecimals:
		return new(big.Int).Set(value)
	case decimals < stableDecimals:
		return new(big.Int).Quo(value, pow10(int64(stableDecimals-decimals)))
	default:
		return new(big.Int).Mul(value, pow10(int64(decimals)-stableDecimals))
	}
}

// mulDiv computes a*b/den with full intermediate precision. A zero or nil
// denominator yields zero rather than a division fault; callers validate
// divisors before relying on the quotient.
func mulDiv(a, b, den *big.Int) *big.Int {
	if a == nil || b == nil || den == nil || den.Sign() == 0 {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, den)
}

// applyBps returns amount*bps/10000.
func applyBps(amount *big.Int, bps uint64) *big.Int {
	if amount == nil || bps == 0 {
		return big.NewInt(0)
	}
	return mulDiv(amount, new(big.Int).SetUint64(bps), basisPoints)
}

func maxBig(a, b *big.Int) *big.Int {
	if a == nil {
		a = big.NewInt(0)
	}
	if b == nil {
		b = big.NewInt(0)
	}
	if a.Cmp(b) >= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

func minBig(a, b *big.Int) *big.Int {
	if a == nil {
		a = big.NewInt(0)
	}
	if b == nil {
		b = big.NewInt(0)
	}
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
