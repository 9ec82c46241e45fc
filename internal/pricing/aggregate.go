package pricing

import (
	"sort"

	"github.com/0xprotovox/bscradar/internal/model"
)

// Outlier band around the median: pools priced outside
// [median*bandLow, median*bandHigh] are excluded from the weighted average.
const (
	bandLow  = 0.1
	bandHigh = 10.0
)

// CalcAggregatePrice computes the liquidity-weighted average price of the
// target token over its pools, filtering pools whose USD price falls outside
// the median band. Min/max are left as observed, pre-filter.
func CalcAggregatePrice(pools []*model.Pool) *model.AggregatePrice {
	agg := &model.AggregatePrice{
		ByPairSymbol: make(map[string][]model.PairPrice),
	}

	// Pass 1: collect per-pool observations.
	type observation struct {
		priceUSD    float64
		priceNative float64
		liqUSD      float64
		liqNative   float64
	}
	obs := make([]observation, 0, len(pools))
	usdPrices := make([]float64, 0, len(pools))
	nativePrices := make([]float64, 0, len(pools))

	for _, p := range pools {
		if p.Liquidity.Status == model.StatusRugged {
			continue
		}
		if p.Price.InUSD <= 0 && p.Price.InNative <= 0 {
			continue
		}
		o := observation{
			priceUSD:    p.Price.InUSD,
			priceNative: p.Price.InNative,
			liqUSD:      p.Liquidity.TotalUSD,
			liqNative:   p.Liquidity.TotalNative,
		}
		obs = append(obs, o)

		if o.priceUSD > 0 {
			usdPrices = append(usdPrices, o.priceUSD)
			if agg.MinPriceUSD == 0 || o.priceUSD < agg.MinPriceUSD {
				agg.MinPriceUSD = o.priceUSD
			}
			if o.priceUSD > agg.MaxPriceUSD {
				agg.MaxPriceUSD = o.priceUSD
			}
		}
		if o.priceNative > 0 {
			nativePrices = append(nativePrices, o.priceNative)
		}

		symbol := p.Price.PairTokenSymbol
		agg.ByPairSymbol[symbol] = append(agg.ByPairSymbol[symbol], model.PairPrice{
			PoolAddress:  p.Address,
			PriceUSD:     o.priceUSD,
			PriceNative:  o.priceNative,
			LiquidityUSD: o.liqUSD,
		})
	}

	agg.PoolsConsidered = len(obs)
	if len(obs) == 0 {
		return agg
	}

	agg.MedianUSD = median(usdPrices)
	agg.MedianNative = median(nativePrices)

	// Pass 2: liquidity-weighted sums inside the median band.
	var sumUSD, weightUSD, sumNative, weightNative float64
	for _, o := range obs {
		if o.priceUSD > 0 && inBand(o.priceUSD, agg.MedianUSD) && o.liqUSD > 0 {
			sumUSD += o.priceUSD * o.liqUSD
			weightUSD += o.liqUSD
		} else if o.priceUSD > 0 {
			agg.PoolsFiltered++
		}
		if o.priceNative > 0 && inBand(o.priceNative, agg.MedianNative) && o.liqNative > 0 {
			sumNative += o.priceNative * o.liqNative
			weightNative += o.liqNative
		}
	}

	if weightUSD > 0 {
		agg.AvgPriceUSD = sumUSD / weightUSD
	}
	if weightNative > 0 {
		agg.AvgPriceNative = sumNative / weightNative
	}
	return agg
}

func inBand(price, med float64) bool {
	if med <= 0 {
		return true
	}
	return price >= med*bandLow && price <= med*bandHigh
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
