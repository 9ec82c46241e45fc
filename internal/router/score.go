package router

import "github.com/0xprotovox/bscradar/internal/model"

// Route scoring. Shallower routes start higher and direct pools get a flat
// bonus; liquidity and fee bonuses reward depth and cheap tiers; price
// impact is penalized per percentage point, harder on three-hop routes
// because their estimates compound more error.
const (
	baseScore     = 100.0
	base3HopScore = 70.0

	directBonus = 40.0

	impactPenaltyPerPct     = 5.0
	impactPenaltyPerPct3Hop = 7.0
)

func scoreRoute(route *model.Route) float64 {
	minLiq := minLegLiquidity(route)

	score := baseScore + liquidityBonus(minLiq) + feeBonus(route.TotalFeePct)
	impactPenalty := impactPenaltyPerPct
	if route.Kind == model.Route3Hop {
		score = base3HopScore + liquidityBonus3Hop(minLiq) + feeBonus3Hop(route.TotalFeePct)
		impactPenalty = impactPenaltyPerPct3Hop
	}
	if route.Kind == model.RouteDirect {
		score += directBonus
	}

	score -= route.PriceImpactPct * impactPenalty

	if score < 0 {
		score = 0
	}
	return score
}

func minLegLiquidity(route *model.Route) float64 {
	min := -1.0
	for _, l := range route.Legs {
		if min < 0 || l.Pool.Liquidity.TotalUSD < min {
			min = l.Pool.Liquidity.TotalUSD
		}
	}
	if min < 0 {
		return 0
	}
	return min
}

// liquidityBonus rewards the route's weakest leg: a route is only as deep
// as its thinnest pool.
func liquidityBonus(minLiqUSD float64) float64 {
	switch {
	case minLiqUSD >= 1_000_000:
		return 50
	case minLiqUSD >= 100_000:
		return 30
	case minLiqUSD >= 10_000:
		return 10
	default:
		return 0
	}
}

func feeBonus(totalFeePct float64) float64 {
	switch {
	case totalFeePct <= 0.3:
		return 20
	case totalFeePct <= 0.6:
		return 10
	case totalFeePct <= 1.0:
		return 5
	default:
		return 0
	}
}

// Three-hop routes earn reduced bonuses: their estimates carry the most
// compounded error, so depth and cheap tiers count for less.
func liquidityBonus3Hop(minLiqUSD float64) float64 {
	switch {
	case minLiqUSD >= 1_000_000:
		return 25
	case minLiqUSD >= 100_000:
		return 15
	case minLiqUSD >= 10_000:
		return 5
	default:
		return 0
	}
}

func feeBonus3Hop(totalFeePct float64) float64 {
	switch {
	case totalFeePct <= 0.3:
		return 15
	case totalFeePct <= 0.6:
		return 10
	case totalFeePct <= 1.0:
		return 5
	default:
		return 0
	}
}
