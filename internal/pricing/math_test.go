package pricing

import (
	"math"
	"math/big"
	"testing"
)

func bigPow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

func almostEqual(a, b, tolerance float64) bool {
	if b == 0 {
		return math.Abs(a) < tolerance
	}
	return math.Abs(a-b)/math.Abs(b) < tolerance
}

func TestV2PriceEqualDecimals(t *testing.T) {
	// 1000 target tokens vs 2 WBNB, both 18 decimals: 0.002 WBNB per token.
	reserve0 := new(big.Int).Mul(big.NewInt(1000), bigPow10(18))
	reserve1 := new(big.Int).Mul(big.NewInt(2), bigPow10(18))

	p0, p1 := V2Price(reserve0, reserve1, 18, 18)
	if !almostEqual(p0, 0.002, 1e-9) {
		t.Fatalf("token0 price = %v, want 0.002", p0)
	}
	if !almostEqual(p1, 500, 1e-9) {
		t.Fatalf("token1 price = %v, want 500", p1)
	}
}

func TestV2PriceMixedDecimals(t *testing.T) {
	// 500 tokens with 6 decimals vs 1000 tokens with 18 decimals: price 2.
	reserve0 := new(big.Int).Mul(big.NewInt(500), bigPow10(6))
	reserve1 := new(big.Int).Mul(big.NewInt(1000), bigPow10(18))

	p0, p1 := V2Price(reserve0, reserve1, 6, 18)
	if !almostEqual(p0, 2, 1e-9) {
		t.Fatalf("token0 price = %v, want 2", p0)
	}
	if !almostEqual(p1, 0.5, 1e-9) {
		t.Fatalf("token1 price = %v, want 0.5", p1)
	}
}

func TestV2PriceZeroReserves(t *testing.T) {
	p0, p1 := V2Price(big.NewInt(0), bigPow10(18), 18, 18)
	if p0 != 0 || p1 != 0 {
		t.Fatalf("expected zero prices, got %v %v", p0, p1)
	}
	p0, p1 = V2Price(nil, nil, 18, 18)
	if p0 != 0 || p1 != 0 {
		t.Fatalf("expected zero prices for nil reserves, got %v %v", p0, p1)
	}
}

func TestSqrtPriceToPriceUnity(t *testing.T) {
	// sqrtPriceX96 == Q96 encodes a 1:1 price.
	q96 := new(big.Int).Lsh(big.NewInt(1), 96)
	if got := SqrtPriceToPrice(q96, 18, 18); !almostEqual(got, 1, 1e-12) {
		t.Fatalf("unity sqrt price = %v, want 1", got)
	}
}

func TestSqrtPriceToPriceDoubled(t *testing.T) {
	// sqrt(4) * Q96 encodes a price of 4.
	q96 := new(big.Int).Lsh(big.NewInt(1), 96)
	sqrt := new(big.Int).Mul(q96, big.NewInt(2))
	if got := SqrtPriceToPrice(sqrt, 18, 18); !almostEqual(got, 4, 1e-12) {
		t.Fatalf("sqrt price = %v, want 4", got)
	}
}

func TestSqrtPriceToPriceDecimalAdjustment(t *testing.T) {
	// 1:1 raw price between a 6-decimal token0 and an 18-decimal token1
	// means one whole token0 buys 1e-12 whole token1.
	q96 := new(big.Int).Lsh(big.NewInt(1), 96)
	got := SqrtPriceToPrice(q96, 6, 18)
	if !almostEqual(got, 1e-12, 1e-6) {
		t.Fatalf("adjusted price = %v, want 1e-12", got)
	}
}

func TestSqrtPriceToPriceZero(t *testing.T) {
	if got := SqrtPriceToPrice(nil, 18, 18); got != 0 {
		t.Fatalf("nil sqrt price = %v, want 0", got)
	}
	if got := SqrtPriceToPrice(big.NewInt(0), 18, 18); got != 0 {
		t.Fatalf("zero sqrt price = %v, want 0", got)
	}
}

func TestTokenAmount(t *testing.T) {
	raw := new(big.Int).Mul(big.NewInt(1500), bigPow10(18))
	if got := TokenAmount(raw, 18); !almostEqual(got, 1500, 1e-12) {
		t.Fatalf("amount = %v, want 1500", got)
	}
	if got := TokenAmount(nil, 18); got != 0 {
		t.Fatalf("nil amount = %v, want 0", got)
	}
}
