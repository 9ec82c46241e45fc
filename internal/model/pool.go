package model

import (
	"math/big"
	"time"
)

// ProtocolKind discriminates the two AMM families.
type ProtocolKind string

const (
	KindV2 ProtocolKind = "v2"
	KindV3 ProtocolKind = "v3"
)

// LiquidityStatus classifies a pool by its locked value.
type LiquidityStatus string

const (
	StatusActive           LiquidityStatus = "ACTIVE"
	StatusWarningLiquidity LiquidityStatus = "WARNING_LIQUIDITY"
	StatusLowLiquidity     LiquidityStatus = "LOW_LIQUIDITY"
	StatusEmpty            LiquidityStatus = "EMPTY"
	StatusRugged           LiquidityStatus = "RUGGED"
)

// V2State is the on-chain state of a constant-product pair.
type V2State struct {
	Reserve0       *big.Int `json:"reserve0"`
	Reserve1       *big.Int `json:"reserve1"`
	BlockTimestamp uint32   `json:"block_timestamp"`
}

// V3State is the on-chain state of a concentrated-liquidity pool.
// ActualBalance0/1 come from separate balanceOf reads on the pool address.
type V3State struct {
	SqrtPriceX96   *big.Int `json:"sqrt_price_x96"`
	Tick           int32    `json:"tick"`
	Liquidity      *big.Int `json:"liquidity"`
	ActualBalance0 *big.Int `json:"actual_balance0"`
	ActualBalance1 *big.Int `json:"actual_balance1"`
}

// LiquidityInfo is the derived value locked in a pool.
type LiquidityInfo struct {
	TotalUSD     float64         `json:"total_usd"`
	TotalNative  float64         `json:"total_native"`
	Token0Amount float64         `json:"token0_amount"`
	Token1Amount float64         `json:"token1_amount"`
	Status       LiquidityStatus `json:"status"`
	RuggedReason string          `json:"rugged_reason,omitempty"`
}

// PriceInfo is the derived price view of a pool for the analyzed token.
type PriceInfo struct {
	Token0Price     float64 `json:"token0_price"`
	Token1Price     float64 `json:"token1_price"`
	PriceRatio      float64 `json:"price_ratio"`
	InUSD           float64 `json:"in_usd"`
	InNative        float64 `json:"in_native"`
	PairTokenSymbol string  `json:"pair_token_symbol"`
	DisplayPrice    string  `json:"display_price"`
	Source          string  `json:"source"`
}

// Pool is a fully reconstructed pool: identity, raw state, and derived data.
// Exactly one of V2 / V3 is set, matching Kind.
type Pool struct {
	Address     string        `json:"address"`
	Kind        ProtocolKind  `json:"kind"`
	Protocol    string        `json:"protocol"`
	Token0      TokenInfo     `json:"token0"`
	Token1      TokenInfo     `json:"token1"`
	FeeBps      uint32        `json:"fee_bps"`
	V2          *V2State      `json:"v2,omitempty"`
	V3          *V3State      `json:"v3,omitempty"`
	Liquidity   LiquidityInfo `json:"liquidity"`
	Price       PriceInfo     `json:"price"`
	LastUpdated time.Time     `json:"last_updated"`
}

// PairToken returns the non-target side of the pool, and whether the target
// token is token0.
func (p *Pool) PairToken(target string) (TokenInfo, bool) {
	if equalAddress(p.Token0.Address, target) {
		return p.Token1, true
	}
	return p.Token0, false
}

// TargetAmount returns the decimal-adjusted reserve of the target token and
// of the pair token.
func (p *Pool) TargetAmount(target string) (targetAmt, pairAmt float64) {
	if equalAddress(p.Token0.Address, target) {
		return p.Liquidity.Token0Amount, p.Liquidity.Token1Amount
	}
	return p.Liquidity.Token1Amount, p.Liquidity.Token0Amount
}

func equalAddress(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// EqualAddress compares two hex addresses case-insensitively.
func EqualAddress(a, b string) bool { return equalAddress(a, b) }
