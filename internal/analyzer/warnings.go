package analyzer

import (
	"fmt"
	"sort"

	"github.com/0xprotovox/bscradar/internal/model"
	"github.com/0xprotovox/bscradar/internal/scorer"
)

// Best-pool liquidity warning thresholds in USD.
const (
	liquidityExtremeUSD  = 1000.0
	liquidityLowUSD      = 10000.0
	liquidityModerateUSD = 50000.0
)

var severityRank = map[string]int{
	model.SeverityCritical: 0,
	model.SeverityHigh:     1,
	model.SeverityMedium:   2,
	model.SeverityLow:      3,
}

// buildWarnings derives the user-facing warning list from a finished result,
// most severe first.
func buildWarnings(result *model.AnalysisResult) []model.Warning {
	var out []model.Warning
	add := func(code, severity, message string) {
		out = append(out, model.Warning{Code: code, Severity: severity, Message: message})
	}

	if result.Meta.PartialResults {
		add("PARTIAL_RESULTS", model.SeverityMedium,
			"one protocol failed to respond; results cover the remaining pools only")
	}
	if result.Meta.PricesStale {
		add("STALE_PRICES", model.SeverityMedium,
			"base token prices could not be refreshed; USD figures use cached values")
	}
	if result.Performance.TotalMs > gradeBMs {
		add("SLOW_RESPONSE", model.SeverityLow,
			fmt.Sprintf("analysis took %d ms", result.Performance.TotalMs))
	}

	// WARNING_LIQUIDITY pools are thin but still tradeable, so they count
	// against the no-active-pools check.
	byStatus := result.Analysis.Distribution.ByStatus
	tradeablePools := byStatus[string(model.StatusActive)] + byStatus[string(model.StatusWarningLiquidity)]
	if tradeablePools == 0 {
		add("NO_ACTIVE_POOLS", model.SeverityCritical,
			"no active pools found; the token may be untradeable")
	}
	if n := byStatus[string(model.StatusRugged)]; n > 0 {
		add("V3_RUGGED_POOLS", model.SeverityCritical,
			fmt.Sprintf("%d pool(s) show rug-pull patterns and were excluded from pricing", n))
	}
	for _, p := range result.Pools {
		if scorer.HasRugPattern(p, result.Token.Address) {
			add("RUG_PULL_DETECTED", model.SeverityCritical,
				fmt.Sprintf("pool %s has drained pair-side reserves", p.Address))
			break
		}
	}

	if best := result.BestPools.ByLiquidity; best != nil {
		switch liq := best.Liquidity.TotalUSD; {
		case liq < liquidityExtremeUSD:
			add("EXTREMELY_LOW_LIQUIDITY", model.SeverityCritical,
				fmt.Sprintf("the deepest pool holds only $%.0f", liq))
		case liq < liquidityLowUSD:
			add("LOW_LIQUIDITY", model.SeverityHigh,
				fmt.Sprintf("the deepest pool holds only $%.0f", liq))
		case liq < liquidityModerateUSD:
			add("MODERATE_LIQUIDITY", model.SeverityMedium,
				fmt.Sprintf("the deepest pool holds $%.0f", liq))
		}
	}

	if rec := result.BestPools.Recommended; rec != nil && rec.Tradeable {
		switch slip := rec.Costs.SlippagePct; {
		case slip > 5:
			add("HIGH_SLIPPAGE", model.SeverityCritical,
				fmt.Sprintf("estimated slippage %.2f%% in the best pool", slip))
		case slip > 2:
			add("ELEVATED_SLIPPAGE", model.SeverityHigh,
				fmt.Sprintf("estimated slippage %.2f%% in the best pool", slip))
		case slip > 1:
			add("NOTABLE_SLIPPAGE", model.SeverityMedium,
				fmt.Sprintf("estimated slippage %.2f%% in the best pool", slip))
		}
	}

	if agg := result.Analysis.PriceAnalysis; agg != nil && agg.AvgPriceUSD > 0 && agg.PoolsConsidered > 1 {
		spread := (agg.MaxPriceUSD - agg.MinPriceUSD) / agg.AvgPriceUSD * 100
		switch {
		case spread > 10:
			add("HIGH_PRICE_SPREAD", model.SeverityHigh,
				fmt.Sprintf("prices differ by %.1f%% across pools", spread))
		case spread > 5:
			add("PRICE_SPREAD", model.SeverityMedium,
				fmt.Sprintf("prices differ by %.1f%% across pools", spread))
		}
	}

	if result.Analysis.Distribution.TotalPools == 1 {
		add("SINGLE_POOL", model.SeverityMedium,
			"all liquidity sits in a single pool")
	}

	sort.SliceStable(out, func(i, j int) bool {
		return severityRank[out[i].Severity] < severityRank[out[j].Severity]
	})
	return out
}
