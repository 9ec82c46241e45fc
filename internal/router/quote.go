package router

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/0xprotovox/bscradar/internal/analyzer"
	"github.com/0xprotovox/bscradar/internal/model"
)

// QuoteDirect quotes a single-pool swap of amountIn (whole-token units, any
// decimal string) of from into to, applying the pool fee, a constant-product
// impact estimate, and the caller's slippage tolerance for the minimum
// output.
func (r *Router) QuoteDirect(ctx context.Context, from, to, amountIn string, slippageTolerancePct float64) (*model.Quote, error) {
	amount, err := decimal.NewFromString(amountIn)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amountIn, err)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	if slippageTolerancePct < 0 || slippageTolerancePct > 50 {
		return nil, fmt.Errorf("slippage tolerance %.2f%% out of range", slippageTolerancePct)
	}

	from = strings.ToLower(from)
	to = strings.ToLower(to)

	amtIn, _ := amount.Float64()
	res, err := r.analyzer.AnalyzeToken(ctx, from, analyzer.Options{})
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", from, err)
	}

	pool := bestPoolBetween(res.Pools, from, to, false)
	if pool == nil {
		return nil, fmt.Errorf("%w: no direct pool %s -> %s", ErrNoPools, from, to)
	}

	// Price of the input token in output-token units. The pool's PriceRatio
	// was oriented toward the analyzed (input) token by the fetcher.
	ratio := pool.Price.PriceRatio
	if ratio <= 0 {
		return nil, fmt.Errorf("pool %s has no usable price", pool.Address)
	}

	valueUSD := amtIn * pool.Price.InUSD
	impact := maxLegImpact
	if liq := pool.Liquidity.TotalUSD; liq > 0 {
		impact = math.Min(maxLegImpact, valueUSD/liq)
	}

	feePct := float64(pool.FeeBps) / 10000
	amountOut := amtIn * ratio * (1 - feePct/100) * (1 - impact)
	minOut := amountOut * (1 - slippageTolerancePct/100)

	return &model.Quote{
		Pool:         pool,
		AmountIn:     amtIn,
		AmountOut:    amountOut,
		MinAmountOut: minOut,
		SlippagePct:  impact * 100,
	}, nil
}
