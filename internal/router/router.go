// Package router plans swap routes between two tokens over the analyzed
// pool graph: direct, two-hop through a base token, and three-hop through a
// primary base plus an ecosystem token when nothing shallower works.
package router

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/0xprotovox/bscradar/internal/analyzer"
	"github.com/0xprotovox/bscradar/internal/model"
	"github.com/0xprotovox/bscradar/internal/token"
)

// Intermediate hop sets. Primary bases carry most BSC liquidity; the
// secondary set is tried only for three-hop fallbacks.
var (
	primaryBases   = []string{token.WBNB, token.USDT, token.BUSD}
	secondaryBases = []string{token.CAKE}
)

// ErrNoPools is returned when no usable pool connects the requested tokens.
var ErrNoPools = errors.New("no pools connect the tokens")

const (
	// A route scoring below this triggers the three-hop search.
	acceptableRouteScore = 50.0

	// Price impact per leg is capped here; beyond it the estimate is
	// meaningless anyway.
	maxLegImpact = 0.5

	// Legs within this much liquidity of each other tie-break on fee.
	legLiquidityTieUSD = 1000.0

	maxAlternatives = 3
)

// AnalysisSource produces token analyses for route planning.
type AnalysisSource interface {
	AnalyzeToken(ctx context.Context, addr string, opts analyzer.Options) (*model.AnalysisResult, error)
}

// Router plans routes on top of the analyzer.
type Router struct {
	analyzer AnalysisSource
	logger   *zap.Logger
}

// New builds a router.
func New(a AnalysisSource, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{analyzer: a, logger: logger}
}

// FindBestRoute plans a swap of amountUSD worth of from into to, returning
// the best route and up to three alternatives. Base tokens whose analysis
// fails are skipped rather than failing the whole search.
func (r *Router) FindBestRoute(ctx context.Context, from, to string, amountUSD float64) (*model.RouteResult, error) {
	from = strings.ToLower(from)
	to = strings.ToLower(to)
	if from == to {
		return nil, fmt.Errorf("route endpoints are the same token")
	}
	if amountUSD <= 0 {
		amountUSD = 1000
	}

	var fromRes, toRes *model.AnalysisResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := r.analyzer.AnalyzeToken(gctx, from, analyzer.Options{TradeUSD: amountUSD})
		if err != nil {
			return fmt.Errorf("analyze %s: %w", from, err)
		}
		fromRes = res
		return nil
	})
	g.Go(func() error {
		res, err := r.analyzer.AnalyzeToken(gctx, to, analyzer.Options{TradeUSD: amountUSD})
		if err != nil {
			return fmt.Errorf("analyze %s: %w", to, err)
		}
		toRes = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var routes []*model.Route

	if pool := bestPoolBetween(fromRes.Pools, from, to, false); pool != nil {
		routes = append(routes, r.buildRoute(model.RouteDirect, amountUSD, toRes,
			leg{from: fromRes.Token, to: toRes.Token, pool: pool}))
	}

	for _, base := range append(append([]string{}, primaryBases...), secondaryBases...) {
		if base == from || base == to {
			continue
		}
		first := bestPoolBetween(fromRes.Pools, from, base, true)
		second := bestPoolBetween(toRes.Pools, to, base, true)
		if first == nil || second == nil {
			continue
		}
		baseInfo := knownInfo(base)
		routes = append(routes, r.buildRoute(model.Route2Hop, amountUSD, toRes,
			leg{from: fromRes.Token, to: baseInfo, pool: first},
			leg{from: baseInfo, to: toRes.Token, pool: second},
		))
	}

	if needsDeepSearch(routes) {
		routes = append(routes, r.threeHopRoutes(ctx, fromRes, toRes, amountUSD)...)
	}

	if len(routes) == 0 {
		return nil, fmt.Errorf("%w: %s -> %s", ErrNoPools, from, to)
	}

	sort.SliceStable(routes, func(i, j int) bool { return routes[i].Score > routes[j].Score })
	result := &model.RouteResult{Best: routes[0]}
	for _, alt := range routes[1:] {
		if len(result.Alternatives) == maxAlternatives {
			break
		}
		result.Alternatives = append(result.Alternatives, alt)
	}

	r.logger.Debug("route planned",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("kind", string(result.Best.Kind)),
		zap.Float64("score", result.Best.Score),
	)
	return result, nil
}

func needsDeepSearch(routes []*model.Route) bool {
	for _, rt := range routes {
		if rt.Score >= acceptableRouteScore {
			return false
		}
	}
	return true
}

// threeHopRoutes tries from -> primary -> secondary -> to. The secondary
// token's own analysis supplies the middle leg; its failure just skips the
// fallback.
func (r *Router) threeHopRoutes(ctx context.Context, fromRes, toRes *model.AnalysisResult, amountUSD float64) []*model.Route {
	from := strings.ToLower(fromRes.Token.Address)
	to := strings.ToLower(toRes.Token.Address)

	var routes []*model.Route
	for _, secondary := range secondaryBases {
		if secondary == from || secondary == to {
			continue
		}
		secRes, err := r.analyzer.AnalyzeToken(ctx, secondary, analyzer.Options{TradeUSD: amountUSD, Fast: true})
		if err != nil {
			r.logger.Warn("secondary base analysis failed", zap.String("token", secondary), zap.Error(err))
			continue
		}
		last := bestPoolBetween(toRes.Pools, to, secondary, true)
		if last == nil {
			continue
		}
		secInfo := knownInfo(secondary)

		for _, primary := range primaryBases {
			if primary == from || primary == to {
				continue
			}
			first := bestPoolBetween(fromRes.Pools, from, primary, true)
			mid := bestPoolBetween(secRes.Pools, secondary, primary, true)
			if first == nil || mid == nil {
				continue
			}
			priInfo := knownInfo(primary)
			routes = append(routes, r.buildRoute(model.Route3Hop, amountUSD, toRes,
				leg{from: fromRes.Token, to: priInfo, pool: first},
				leg{from: priInfo, to: secInfo, pool: mid},
				leg{from: secInfo, to: toRes.Token, pool: last},
			))
		}
	}
	return routes
}

type leg struct {
	from model.TokenInfo
	to   model.TokenInfo
	pool *model.Pool
}

// buildRoute walks the legs tracking the trade's USD value: each hop loses
// its fee and its price impact. The final token amount comes from the
// destination token's aggregate USD price when one is known.
func (r *Router) buildRoute(kind model.RouteKind, amountUSD float64, toRes *model.AnalysisResult, legs ...leg) *model.Route {
	route := &model.Route{Kind: kind, Path: []model.TokenInfo{legs[0].from}}

	valueUSD := amountUSD
	impactRemainder := 1.0
	for _, l := range legs {
		feePct := float64(l.pool.FeeBps) / 10000
		impact := 0.0
		if liq := l.pool.Liquidity.TotalUSD; liq > 0 {
			impact = math.Min(maxLegImpact, valueUSD/liq)
		} else {
			impact = maxLegImpact
		}

		valueUSD *= (1 - feePct/100) * (1 - impact)
		impactRemainder *= 1 - impact
		route.TotalFeePct += feePct

		out := valueUSD
		if px := toRes.Analysis.PriceAnalysis; model.EqualAddress(l.to.Address, toRes.Token.Address) && px != nil && px.AvgPriceUSD > 0 {
			out = valueUSD / px.AvgPriceUSD
		}
		route.Legs = append(route.Legs, model.RouteLeg{
			TokenIn:         l.from,
			TokenOut:        l.to,
			Pool:            l.pool,
			EstimatedOutput: out,
			PriceImpactPct:  impact * 100,
		})
		route.Path = append(route.Path, l.to)
	}

	route.EstimatedOutput = route.Legs[len(route.Legs)-1].EstimatedOutput
	route.PriceImpactPct = (1 - impactRemainder) * 100
	route.Score = scoreRoute(route)
	return route
}

// bestPoolBetween picks the deepest usable pool pairing target with pair.
// Hop legs demand ACTIVE pools; the direct route only rules out rugged and
// empty ones. Pools within the liquidity tie band prefer the lower fee.
func bestPoolBetween(pools []*model.Pool, target, pair string, activeOnly bool) *model.Pool {
	var best *model.Pool
	for _, p := range pools {
		other, _ := p.PairToken(target)
		if !model.EqualAddress(other.Address, pair) {
			continue
		}
		if activeOnly {
			if p.Liquidity.Status != model.StatusActive {
				continue
			}
		} else if p.Liquidity.Status == model.StatusRugged || p.Liquidity.Status == model.StatusEmpty {
			continue
		}
		if best == nil {
			best = p
			continue
		}
		diff := p.Liquidity.TotalUSD - best.Liquidity.TotalUSD
		switch {
		case diff > legLiquidityTieUSD:
			best = p
		case math.Abs(diff) <= legLiquidityTieUSD && p.FeeBps < best.FeeBps:
			best = p
		}
	}
	return best
}

func knownInfo(addr string) model.TokenInfo {
	if info, ok := token.Known(addr); ok {
		return info
	}
	return model.UnknownToken(addr)
}
