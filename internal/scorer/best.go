package scorer

import (
	"fmt"
	"sort"

	"github.com/0xprotovox/bscradar/internal/model"
)

// SplitAllocation is one slice of a split trade.
type SplitAllocation struct {
	Score     *model.PoolScore `json:"score"`
	AmountUSD float64          `json:"amount_usd"`
	Pct       float64          `json:"pct"`
}

// Per-pool caps for split trades: no slice above half the total, and no
// slice above 5% of the pool's liquidity.
const (
	splitMaxShareOfTrade = 0.5
	splitMaxShareOfPool  = 0.05
)

// BestPools picks the per-criterion winners among non-rugged pools and
// attaches the trade recommendation.
func (s *Scorer) BestPools(pools []*model.Pool, target string, tradeUSD, aggregateUSD float64) model.BestPools {
	best := model.BestPools{ByProtocol: make(map[string]*model.Pool)}

	for _, p := range pools {
		if p.Liquidity.Status == model.StatusRugged {
			continue
		}
		if best.ByLiquidity == nil || deeper(p, best.ByLiquidity) {
			best.ByLiquidity = p
		}
		if p.Price.InUSD > 0 && (best.ByPriceUSD == nil || p.Price.InUSD > best.ByPriceUSD.Price.InUSD) {
			best.ByPriceUSD = p
		}
		if p.Price.InNative > 0 && (best.ByPriceNative == nil || p.Price.InNative > best.ByPriceNative.Price.InNative) {
			best.ByPriceNative = p
		}
		if best.ByFee == nil || p.FeeBps < best.ByFee.FeeBps {
			best.ByFee = p
		}
		if cur, ok := best.ByProtocol[p.Protocol]; !ok || deeper(p, cur) {
			best.ByProtocol[p.Protocol] = p
		}
	}

	best.Recommended = s.Recommend(pools, target, tradeUSD, aggregateUSD)
	return best
}

// deeper compares pools by USD liquidity, falling back to raw token amounts
// when neither side could be valued.
func deeper(a, b *model.Pool) bool {
	if a.Liquidity.TotalUSD != b.Liquidity.TotalUSD {
		return a.Liquidity.TotalUSD > b.Liquidity.TotalUSD
	}
	return a.Liquidity.Token0Amount+a.Liquidity.Token1Amount >
		b.Liquidity.Token0Amount+b.Liquidity.Token1Amount
}

// SplitTrade greedily allocates totalUSD across tradeable pools, cheapest
// first, capping each slice at half the trade and 5% of the pool's depth.
// The returned allocations may not cover the full amount when liquidity is
// thin.
func (s *Scorer) SplitTrade(pools []*model.Pool, target string, totalUSD, aggregateUSD float64) []SplitAllocation {
	if totalUSD <= 0 {
		return nil
	}

	var candidates []*model.PoolScore
	for _, p := range pools {
		if p.Liquidity.Status == model.StatusRugged {
			continue
		}
		sc := s.Score(p, target, totalUSD, aggregateUSD)
		if sc.Tradeable {
			candidates = append(candidates, sc)
		}
	}
	sortByCost(candidates)

	remaining := totalUSD
	var out []SplitAllocation
	for _, sc := range candidates {
		if remaining <= 0 {
			break
		}
		slice := remaining
		if limit := totalUSD * splitMaxShareOfTrade; slice > limit {
			slice = limit
		}
		if limit := sc.Pool.Liquidity.TotalUSD * splitMaxShareOfPool; slice > limit {
			slice = limit
		}
		if slice <= 0 {
			continue
		}
		out = append(out, SplitAllocation{
			Score:     sc,
			AmountUSD: slice,
			Pct:       slice / totalUSD * 100,
		})
		remaining -= slice
	}
	return out
}

// Scenarios scores the recommendation at several trade sizes, keyed by a
// "$<size>" label.
func (s *Scorer) Scenarios(pools []*model.Pool, target string, sizes []float64, aggregateUSD float64) map[string]*model.PoolScore {
	out := make(map[string]*model.PoolScore, len(sizes))
	for _, size := range sizes {
		out[fmt.Sprintf("$%.0f", size)] = s.Recommend(pools, target, size, aggregateUSD)
	}
	return out
}

func sortByCost(scores []*model.PoolScore) {
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Costs.TotalCostPct != scores[j].Costs.TotalCostPct {
			return scores[i].Costs.TotalCostPct < scores[j].Costs.TotalCostPct
		}
		return scores[i].Pool.Liquidity.TotalUSD > scores[j].Pool.Liquidity.TotalUSD
	})
}
