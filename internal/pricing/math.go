// Package pricing converts protocol-specific pool state into price ratios
// and aggregates per-pool prices with outlier control. All multiply-before-
// divide paths run on big.Int so 256-bit chain values never overflow.
package pricing

import (
	"math/big"
)

var (
	q96   = new(big.Int).Lsh(big.NewInt(1), 96)
	q96Sq = new(big.Int).Mul(q96, q96)
	wad   = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// V2Price derives the 18-decimal-scaled prices of a constant-product pair.
// token0Price is the price of token0 in token1 units; token1Price the
// inverse. Zero reserves yield zeros.
func V2Price(reserve0, reserve1 *big.Int, dec0, dec1 uint8) (token0Price, token1Price float64) {
	if reserve0 == nil || reserve1 == nil || reserve0.Sign() <= 0 || reserve1.Sign() <= 0 {
		return 0, 0
	}

	num := new(big.Int).Mul(reserve1, wad)
	var scaled *big.Int
	if dec0 >= dec1 {
		num.Mul(num, pow10(dec0-dec1))
		scaled = new(big.Int).Quo(num, reserve0)
	} else {
		den := new(big.Int).Mul(reserve0, pow10(dec1-dec0))
		scaled = new(big.Int).Quo(num, den)
	}

	p0, _ := new(big.Float).SetInt(scaled).Float64()
	token0Price = p0 / 1e18
	if token0Price > 0 {
		token1Price = 1 / token0Price
	}
	return token0Price, token1Price
}

// SqrtPriceToPrice converts a Q64.96 square-root price into the price of
// token0 in token1 units. The multiply chain stays in integers; only the
// final 1e18 division is floating-point. Zero input yields zero.
func SqrtPriceToPrice(sqrtPriceX96 *big.Int, dec0, dec1 uint8) float64 {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return 0
	}

	num := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	num.Mul(num, wad)
	if dec0 > dec1 {
		num.Mul(num, pow10(dec0-dec1))
	}

	den := new(big.Int).Set(q96Sq)
	if dec1 > dec0 {
		den.Mul(den, pow10(dec1-dec0))
	}

	scaled := new(big.Int).Quo(num, den)
	f, _ := new(big.Float).SetInt(scaled).Float64()
	return f / 1e18
}

// TokenAmount converts a raw token quantity to a decimal-adjusted float.
func TokenAmount(raw *big.Int, decimals uint8) float64 {
	if raw == nil || raw.Sign() == 0 {
		return 0
	}
	amount := new(big.Float).SetInt(raw)
	amount.Quo(amount, new(big.Float).SetInt(pow10(decimals)))
	f, _ := amount.Float64()
	return f
}
