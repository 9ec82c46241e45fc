// Package analyzer orchestrates a full token analysis: discovery, state
// fetch, pricing, scoring, and warning generation, with result caching and
// request deduplication on top.
package analyzer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/0xprotovox/bscradar/internal/cache"
	"github.com/0xprotovox/bscradar/internal/dex"
	"github.com/0xprotovox/bscradar/internal/metrics"
	"github.com/0xprotovox/bscradar/internal/model"
	"github.com/0xprotovox/bscradar/internal/pricing"
	"github.com/0xprotovox/bscradar/internal/scorer"
	"github.com/0xprotovox/bscradar/internal/token"
)

// Performance grade boundaries in milliseconds.
const (
	gradeAPlusMs = 500
	gradeAMs     = 1000
	gradeBMs     = 2000
)

// Discoverer enumerates candidate pools for a token.
type Discoverer interface {
	Discover(ctx context.Context, target common.Address, fast bool) ([]dex.Candidate, error)
}

// PoolFetcher loads and enriches pool state for candidates.
type PoolFetcher interface {
	Fetch(ctx context.Context, target common.Address, candidates []dex.Candidate) (*dex.FetchResult, error)
}

// TokenSource resolves token metadata.
type TokenSource interface {
	Get(ctx context.Context, addr common.Address) (model.TokenInfo, error)
	GetMany(ctx context.Context, addrs []common.Address) (map[common.Address]model.TokenInfo, error)
}

// PriceSource is the oracle surface the analyzer needs.
type PriceSource interface {
	AreStale() bool
	RefreshFromChain(ctx context.Context) error
}

// Options tune one analysis request.
type Options struct {
	TradeUSD     float64 // assumed trade size; 0 selects the default
	Fast         bool    // restrict discovery to the deep base tokens
	ForceRefresh bool    // invalidate cached state for the token first
}

// Analyzer runs token analyses.
type Analyzer struct {
	discovery Discoverer
	fetcher   PoolFetcher
	registry  TokenSource
	oracle    PriceSource
	scorer    *scorer.Scorer
	cache     *cache.Cache
	metrics   *metrics.Metrics
	logger    *zap.Logger

	flight singleflight.Group
}

// New wires an analyzer.
func New(d Discoverer, f PoolFetcher, r TokenSource, o PriceSource, sc *scorer.Scorer, c *cache.Cache, m *metrics.Metrics, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		discovery: d,
		fetcher:   f,
		registry:  r,
		oracle:    o,
		scorer:    sc,
		cache:     c,
		metrics:   m,
		logger:    logger,
	}
}

// AnalyzeToken analyzes one token. Cached results short-circuit; concurrent
// identical requests share one upstream pass, and the ones that joined it
// are flagged as deduplicated.
func (a *Analyzer) AnalyzeToken(ctx context.Context, addr string, opts Options) (*model.AnalysisResult, error) {
	if !common.IsHexAddress(addr) {
		a.metrics.ObserveAnalysis("invalid")
		return nil, fmt.Errorf("invalid token address %q", addr)
	}
	target := common.HexToAddress(addr)
	lower := strings.ToLower(target.Hex())

	if opts.ForceRefresh {
		removed := a.cache.ClearTokenAnalysis(lower)
		a.logger.Debug("cache invalidated", zap.String("token", lower), zap.Int("removed", removed))
	} else if v, age, ok := a.cache.GetWithAge(cache.PoolStore, cache.AnalysisKey(lower)); ok {
		if cached, ok := v.(*model.AnalysisResult); ok {
			out := *cached
			out.Meta.Cached = true
			out.Meta.CacheAgeMs = age.Milliseconds()
			a.metrics.ObserveAnalysis("cached")
			return &out, nil
		}
	}

	// The closure runs for exactly one caller per flight; everyone else
	// joins that pass and is flagged as deduplicated.
	key := lower + "_" + strconv.FormatBool(opts.ForceRefresh)
	mine := false
	v, err, _ := a.flight.Do(key, func() (interface{}, error) {
		mine = true
		return a.analyze(ctx, target, opts)
	})
	if err != nil {
		a.metrics.ObserveAnalysis("error")
		return nil, err
	}
	a.metrics.ObserveAnalysis("success")

	out := *(v.(*model.AnalysisResult))
	out.Meta.Deduplicated = !mine
	return &out, nil
}

func (a *Analyzer) analyze(ctx context.Context, target common.Address, opts Options) (*model.AnalysisResult, error) {
	start := time.Now()
	lower := strings.ToLower(target.Hex())

	// Refresh stale oracle prices alongside discovery. Failure keeps the
	// cached prices and only flags the result as stale.
	var refreshWG sync.WaitGroup
	if a.oracle.AreStale() {
		refreshWG.Add(1)
		go func() {
			defer refreshWG.Done()
			if err := a.oracle.RefreshFromChain(ctx); err != nil {
				a.logger.Warn("oracle refresh failed", zap.Error(err))
			}
		}()
	}

	info, err := a.registry.Get(ctx, target)
	if err != nil {
		a.logger.Warn("token metadata incomplete", zap.String("token", lower), zap.Error(err))
	}

	candidates, err := a.discovery.Discover(ctx, target, opts.Fast)
	if err != nil {
		refreshWG.Wait()
		return nil, fmt.Errorf("discover pools for %s: %w", lower, err)
	}
	refreshWG.Wait()

	tradeUSD := opts.TradeUSD
	if tradeUSD <= 0 {
		tradeUSD = scorer.DefaultTradeUSD
	}

	result := &model.AnalysisResult{
		Token: info,
		Meta: model.Meta{
			Timestamp:   time.Now().UTC(),
			PricesStale: a.oracle.AreStale(),
		},
	}

	if len(candidates) > 0 {
		fres, err := a.fetcher.Fetch(ctx, target, candidates)
		if err != nil {
			return nil, fmt.Errorf("fetch pools for %s: %w", lower, err)
		}
		result.Pools = fres.Pools
		result.Meta.PartialResults = fres.Partial
		result.Meta.ProtocolStatus = fres.ProtocolStatus

		agg := pricing.CalcAggregatePrice(fres.Pools)
		result.Analysis.PriceAnalysis = agg
		result.BestPools = a.scorer.BestPools(fres.Pools, lower, tradeUSD, agg.AvgPriceUSD)
	}

	result.Analysis.TotalLiquidityUSD, result.Analysis.TotalLiquidityNative = totals(result.Pools)
	result.Analysis.Distribution = distribution(result.Pools)

	elapsed := time.Since(start)
	result.Performance = model.Performance{
		TotalMs: elapsed.Milliseconds(),
		Grade:   grade(elapsed.Milliseconds()),
	}
	result.Warnings = buildWarnings(result)

	if err := a.cache.Set(cache.PoolStore, cache.AnalysisKey(lower), result); err != nil {
		a.logger.Warn("analysis cache write failed", zap.String("token", lower), zap.Error(err))
	}

	a.metrics.ObserveAnalysisDuration(elapsed)
	a.logger.Info("analysis complete",
		zap.String("token", lower),
		zap.Int("pools", len(result.Pools)),
		zap.Int64("total_ms", result.Performance.TotalMs),
		zap.Bool("partial", result.Meta.PartialResults),
	)
	return result, nil
}

// Warm pre-resolves the base-token set and refreshes the oracle so the first
// real analysis does not pay those round trips.
func (a *Analyzer) Warm(ctx context.Context) error {
	if _, err := a.registry.GetMany(ctx, token.BaseTokens()); err != nil {
		return fmt.Errorf("warm base tokens: %w", err)
	}
	if err := a.oracle.RefreshFromChain(ctx); err != nil {
		return fmt.Errorf("warm oracle: %w", err)
	}
	return nil
}

func totals(pools []*model.Pool) (usd, native float64) {
	for _, p := range pools {
		if p.Liquidity.Status == model.StatusRugged {
			continue
		}
		usd += p.Liquidity.TotalUSD
		native += p.Liquidity.TotalNative
	}
	return usd, native
}

func distribution(pools []*model.Pool) model.Distribution {
	d := model.Distribution{
		TotalPools: len(pools),
		ByProtocol: make(map[string]int),
		ByStatus:   make(map[string]int),
	}
	var totalUSD, topUSD float64
	for _, p := range pools {
		d.ByProtocol[p.Protocol]++
		d.ByStatus[string(p.Liquidity.Status)]++
		if p.Liquidity.Status == model.StatusActive {
			d.ActivePools++
		}
		if p.Liquidity.Status != model.StatusRugged {
			totalUSD += p.Liquidity.TotalUSD
			if p.Liquidity.TotalUSD > topUSD {
				topUSD = p.Liquidity.TotalUSD
			}
		}
	}
	if totalUSD > 0 {
		d.TopPoolShare = topUSD / totalUSD * 100
	}
	return d
}

func grade(totalMs int64) string {
	switch {
	case totalMs < gradeAPlusMs:
		return "A+"
	case totalMs < gradeAMs:
		return "A"
	case totalMs < gradeBMs:
		return "B"
	default:
		return "C"
	}
}
