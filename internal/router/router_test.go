package router

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/0xprotovox/bscradar/internal/analyzer"
	"github.com/0xprotovox/bscradar/internal/model"
	"github.com/0xprotovox/bscradar/internal/token"
)

const (
	tokenA = "0x1111111111111111111111111111111111111111"
	tokenB = "0x2222222222222222222222222222222222222222"
)

var (
	infoA = model.TokenInfo{Address: tokenA, Symbol: "AAA", Decimals: 18}
	infoB = model.TokenInfo{Address: tokenB, Symbol: "BBB", Decimals: 18}
)

type fakeAnalysis struct {
	mu      sync.Mutex
	results map[string]*model.AnalysisResult
	errs    map[string]error
	opts    map[string]analyzer.Options
	calls   int
}

func newFakeAnalysis() *fakeAnalysis {
	return &fakeAnalysis{
		results: make(map[string]*model.AnalysisResult),
		errs:    make(map[string]error),
		opts:    make(map[string]analyzer.Options),
	}
}

func (f *fakeAnalysis) AnalyzeToken(ctx context.Context, addr string, opts analyzer.Options) (*model.AnalysisResult, error) {
	lower := strings.ToLower(addr)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.opts[lower] = opts
	if err := f.errs[lower]; err != nil {
		return nil, err
	}
	res, ok := f.results[lower]
	if !ok {
		return nil, errors.New("no analysis for " + lower)
	}
	return res, nil
}

func mkPool(addr string, t0, t1 model.TokenInfo, feeBps uint32, liqUSD float64) *model.Pool {
	return &model.Pool{
		Address:  addr,
		Kind:     model.KindV2,
		Protocol: "pancakeswap-v2",
		Token0:   t0,
		Token1:   t1,
		FeeBps:   feeBps,
		Liquidity: model.LiquidityInfo{
			TotalUSD:    liqUSD,
			TotalNative: liqUSD / 600,
			Status:      model.StatusActive,
		},
		Price: model.PriceInfo{
			InUSD:           2.0,
			InNative:        2.0 / 600,
			PriceRatio:      2.0,
			PairTokenSymbol: t1.Symbol,
		},
	}
}

func analysisFor(info model.TokenInfo, avgUSD float64, pools ...*model.Pool) *model.AnalysisResult {
	res := &model.AnalysisResult{Token: info, Pools: pools}
	res.Analysis.PriceAnalysis = &model.AggregatePrice{AvgPriceUSD: avgUSD, PoolsConsidered: len(pools)}
	return res
}

func wbnbInfo() model.TokenInfo {
	info, _ := token.Known(token.WBNB)
	return info
}

func TestFindBestRouteRejectsSameToken(t *testing.T) {
	r := New(newFakeAnalysis(), nil)
	if _, err := r.FindBestRoute(context.Background(), tokenA, tokenA, 1000); err == nil {
		t.Fatal("expected an error for identical endpoints")
	}
}

func TestFindBestRouteSurfacesAnalysisError(t *testing.T) {
	fa := newFakeAnalysis()
	fa.results[tokenA] = analysisFor(infoA, 2.0)
	fa.errs[tokenB] = errors.New("rpc down")

	r := New(fa, nil)
	if _, err := r.FindBestRoute(context.Background(), tokenA, tokenB, 1000); err == nil {
		t.Fatal("expected endpoint analysis failure to surface")
	}
}

func TestFindBestRoutePrefersDirect(t *testing.T) {
	direct := mkPool("0xd000000000000000000000000000000000000001", infoA, infoB, 2500, 200000)
	aWBNB := mkPool("0xd000000000000000000000000000000000000002", infoA, wbnbInfo(), 2500, 500000)
	bWBNB := mkPool("0xd000000000000000000000000000000000000003", infoB, wbnbInfo(), 2500, 500000)

	fa := newFakeAnalysis()
	fa.results[tokenA] = analysisFor(infoA, 2.0, direct, aWBNB)
	fa.results[tokenB] = analysisFor(infoB, 2.0, bWBNB)

	r := New(fa, nil)
	res, err := r.FindBestRoute(context.Background(), tokenA, tokenB, 1000)
	if err != nil {
		t.Fatalf("route failed: %v", err)
	}
	if res.Best.Kind != model.RouteDirect {
		t.Fatalf("best kind = %s, want direct", res.Best.Kind)
	}
	if len(res.Best.Legs) != 1 || len(res.Best.Path) != 2 {
		t.Fatalf("direct route shape wrong: %+v", res.Best)
	}
	if len(res.Alternatives) == 0 {
		t.Fatal("expected the two-hop fallback among alternatives")
	}
	for _, alt := range res.Alternatives {
		if alt.Score > res.Best.Score {
			t.Fatalf("alternative %s outscores best", alt.Kind)
		}
	}
}

func TestFindBestRouteBuildsTwoHopWithoutDirectPool(t *testing.T) {
	aWBNB := mkPool("0xd000000000000000000000000000000000000002", infoA, wbnbInfo(), 2500, 500000)
	bWBNB := mkPool("0xd000000000000000000000000000000000000003", infoB, wbnbInfo(), 2500, 500000)

	fa := newFakeAnalysis()
	fa.results[tokenA] = analysisFor(infoA, 2.0, aWBNB)
	fa.results[tokenB] = analysisFor(infoB, 2.0, bWBNB)

	r := New(fa, nil)
	res, err := r.FindBestRoute(context.Background(), tokenA, tokenB, 1000)
	if err != nil {
		t.Fatalf("route failed: %v", err)
	}
	if res.Best.Kind != model.Route2Hop {
		t.Fatalf("best kind = %s, want 2hop", res.Best.Kind)
	}
	if len(res.Best.Path) != 3 {
		t.Fatalf("path length = %d, want 3", len(res.Best.Path))
	}
	if !model.EqualAddress(res.Best.Path[1].Address, token.WBNB) {
		t.Fatalf("intermediate hop = %s, want WBNB", res.Best.Path[1].Address)
	}
}

func TestFindBestRouteFallsBackToThreeHops(t *testing.T) {
	cakeInfo, _ := token.Known(token.CAKE)
	aWBNB := mkPool("0xd000000000000000000000000000000000000002", infoA, wbnbInfo(), 2500, 500000)
	bCake := mkPool("0xd000000000000000000000000000000000000004", infoB, cakeInfo, 2500, 300000)
	cakeWBNB := mkPool("0xd000000000000000000000000000000000000005", cakeInfo, wbnbInfo(), 2500, 2000000)

	fa := newFakeAnalysis()
	fa.results[tokenA] = analysisFor(infoA, 2.0, aWBNB)
	fa.results[tokenB] = analysisFor(infoB, 2.0, bCake)
	fa.results[token.CAKE] = analysisFor(cakeInfo, 2.5, cakeWBNB)

	r := New(fa, nil)
	res, err := r.FindBestRoute(context.Background(), tokenA, tokenB, 1000)
	if err != nil {
		t.Fatalf("route failed: %v", err)
	}
	if res.Best.Kind != model.Route3Hop {
		t.Fatalf("best kind = %s, want 3hop", res.Best.Kind)
	}
	if len(res.Best.Path) != 4 || len(res.Best.Legs) != 3 {
		t.Fatalf("three-hop shape wrong: path %d legs %d", len(res.Best.Path), len(res.Best.Legs))
	}
	if opts := fa.opts[token.CAKE]; !opts.Fast {
		t.Fatal("secondary base analysis must run in fast mode")
	}
}

func TestFindBestRouteNoRoute(t *testing.T) {
	fa := newFakeAnalysis()
	fa.results[tokenA] = analysisFor(infoA, 2.0)
	fa.results[tokenB] = analysisFor(infoB, 2.0)
	fa.errs[token.CAKE] = errors.New("rpc down")

	r := New(fa, nil)
	_, err := r.FindBestRoute(context.Background(), tokenA, tokenB, 1000)
	if !errors.Is(err, ErrNoPools) {
		t.Fatalf("expected ErrNoPools, got %v", err)
	}
}

func TestBuildRouteEstimatesOutput(t *testing.T) {
	direct := mkPool("0xd000000000000000000000000000000000000001", infoA, infoB, 2500, 200000)

	fa := newFakeAnalysis()
	fa.results[tokenA] = analysisFor(infoA, 2.0, direct)
	fa.results[tokenB] = analysisFor(infoB, 2.0)

	r := New(fa, nil)
	res, err := r.FindBestRoute(context.Background(), tokenA, tokenB, 1000)
	if err != nil {
		t.Fatalf("route failed: %v", err)
	}
	// $1000 in, 0.25% fee, 0.5% impact, then converted at the destination's
	// $2 aggregate price.
	wantUSD := 1000 * (1 - 0.0025) * (1 - 0.005)
	want := wantUSD / 2.0
	if got := res.Best.EstimatedOutput; math.Abs(got-want) > 1e-9 {
		t.Fatalf("estimated output = %v, want %v", got, want)
	}
	if got := res.Best.PriceImpactPct; math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("impact = %v, want 0.5", got)
	}
	if got := res.Best.TotalFeePct; math.Abs(got-0.25) > 1e-9 {
		t.Fatalf("total fee = %v, want 0.25", got)
	}
}

func TestBestPoolBetweenTieBreaksOnFee(t *testing.T) {
	deepPricey := mkPool("0xd000000000000000000000000000000000000001", infoA, infoB, 2500, 100500)
	shallowCheap := mkPool("0xd000000000000000000000000000000000000002", infoA, infoB, 500, 100000)

	// Within the tie band the lower fee wins.
	if got := bestPoolBetween([]*model.Pool{deepPricey, shallowCheap}, tokenA, tokenB, true); got != shallowCheap {
		t.Fatalf("tie-break picked %s", got.Address)
	}

	// Beyond the band depth wins regardless of fee.
	muchDeeper := mkPool("0xd000000000000000000000000000000000000003", infoA, infoB, 10000, 150000)
	if got := bestPoolBetween([]*model.Pool{shallowCheap, muchDeeper}, tokenA, tokenB, true); got != muchDeeper {
		t.Fatalf("depth rule picked %s", got.Address)
	}
}

func TestBestPoolBetweenSkipsDeadPools(t *testing.T) {
	rugged := mkPool("0xd000000000000000000000000000000000000001", infoA, infoB, 2500, 900000)
	rugged.Liquidity.Status = model.StatusRugged
	empty := mkPool("0xd000000000000000000000000000000000000002", infoA, infoB, 2500, 0)
	empty.Liquidity.Status = model.StatusEmpty

	if got := bestPoolBetween([]*model.Pool{rugged, empty}, tokenA, tokenB, false); got != nil {
		t.Fatalf("picked a dead pool %s", got.Address)
	}
}

func TestBestPoolBetweenHopLegsRequireActive(t *testing.T) {
	thin := mkPool("0xd000000000000000000000000000000000000001", infoA, infoB, 2500, 500)
	thin.Liquidity.Status = model.StatusLowLiquidity

	if got := bestPoolBetween([]*model.Pool{thin}, tokenA, tokenB, true); got != nil {
		t.Fatalf("hop leg accepted a non-active pool %s", got.Address)
	}
	// The direct route tolerates it.
	if got := bestPoolBetween([]*model.Pool{thin}, tokenA, tokenB, false); got != thin {
		t.Fatal("direct selection must keep the looser filter")
	}
}

func TestFindBestRouteSkipsInactiveHopLegs(t *testing.T) {
	aWBNB := mkPool("0xd000000000000000000000000000000000000002", infoA, wbnbInfo(), 2500, 500000)
	bWBNB := mkPool("0xd000000000000000000000000000000000000003", infoB, wbnbInfo(), 2500, 800)
	bWBNB.Liquidity.Status = model.StatusWarningLiquidity

	fa := newFakeAnalysis()
	fa.results[tokenA] = analysisFor(infoA, 2.0, aWBNB)
	fa.results[tokenB] = analysisFor(infoB, 2.0, bWBNB)
	fa.errs[token.CAKE] = errors.New("rpc down")

	r := New(fa, nil)
	_, err := r.FindBestRoute(context.Background(), tokenA, tokenB, 1000)
	if !errors.Is(err, ErrNoPools) {
		t.Fatalf("thin second leg must not form a two-hop route, got %v", err)
	}
}

func TestQuoteDirect(t *testing.T) {
	pool := mkPool("0xd000000000000000000000000000000000000001", infoA, infoB, 2500, 100000)

	fa := newFakeAnalysis()
	fa.results[tokenA] = analysisFor(infoA, 2.0, pool)

	r := New(fa, nil)
	q, err := r.QuoteDirect(context.Background(), tokenA, tokenB, "10", 1)
	if err != nil {
		t.Fatalf("quote failed: %v", err)
	}
	// 10 tokens at ratio 2, $20 value against $100k depth: 0.04% impact.
	impact := 20.0 / 100000
	want := 10 * 2.0 * (1 - 0.0025) * (1 - impact)
	if math.Abs(q.AmountOut-want) > 1e-9 {
		t.Fatalf("amount out = %v, want %v", q.AmountOut, want)
	}
	if math.Abs(q.MinAmountOut-want*0.99) > 1e-9 {
		t.Fatalf("min out = %v, want %v", q.MinAmountOut, want*0.99)
	}
	if math.Abs(q.SlippagePct-impact*100) > 1e-12 {
		t.Fatalf("slippage = %v, want %v", q.SlippagePct, impact*100)
	}
}

func TestQuoteDirectRejectsBadInput(t *testing.T) {
	fa := newFakeAnalysis()
	fa.results[tokenA] = analysisFor(infoA, 2.0)
	r := New(fa, nil)

	if _, err := r.QuoteDirect(context.Background(), tokenA, tokenB, "abc", 1); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := r.QuoteDirect(context.Background(), tokenA, tokenB, "-5", 1); err == nil {
		t.Fatal("expected sign error")
	}
	if _, err := r.QuoteDirect(context.Background(), tokenA, tokenB, "10", 75); err == nil {
		t.Fatal("expected tolerance error")
	}
	if _, err := r.QuoteDirect(context.Background(), tokenA, tokenB, "10", 1); err == nil {
		t.Fatal("expected no-pool error")
	}
}

func TestScoreRouteShape(t *testing.T) {
	pool := mkPool("0xd000000000000000000000000000000000000001", infoA, infoB, 2500, 2000000)
	direct := &model.Route{
		Kind:           model.RouteDirect,
		Legs:           []model.RouteLeg{{Pool: pool}},
		TotalFeePct:    0.25,
		PriceImpactPct: 0.05,
	}
	// 100 base + 40 direct + 50 deep liquidity + 20 cheap fee - 0.25 impact.
	if got := scoreRoute(direct); math.Abs(got-209.75) > 1e-9 {
		t.Fatalf("direct score = %v, want 209.75", got)
	}

	midPool := mkPool("0xd000000000000000000000000000000000000002", infoA, infoB, 2500, 150000)
	twoHop := &model.Route{
		Kind:           model.Route2Hop,
		Legs:           []model.RouteLeg{{Pool: pool}, {Pool: midPool}},
		TotalFeePct:    0.5,
		PriceImpactPct: 1,
	}
	// 100 base + 30 liquidity on the thinner leg + 10 fee - 5 impact.
	if got := scoreRoute(twoHop); got != 135 {
		t.Fatalf("two-hop score = %v, want 135", got)
	}

	threeHop := &model.Route{
		Kind:           model.Route3Hop,
		Legs:           []model.RouteLeg{{Pool: pool}, {Pool: pool}, {Pool: pool}},
		TotalFeePct:    0.75,
		PriceImpactPct: 10,
	}
	// 70 base + 25 liquidity + 5 fee - 70 impact penalty: the reduced
	// three-hop tables apply.
	if got := scoreRoute(threeHop); got != 30 {
		t.Fatalf("three-hop score = %v, want 30", got)
	}
}

func TestRouteKey(t *testing.T) {
	got := RouteKey("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", token.WBNB)
	want := "route_0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa_" + token.WBNB
	if got != want {
		t.Fatalf("route key = %s, want %s", got, want)
	}
}
