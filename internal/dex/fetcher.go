package dex

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/0xprotovox/bscradar/internal/model"
	"github.com/0xprotovox/bscradar/internal/multicall"
	"github.com/0xprotovox/bscradar/internal/pricing"
)

const (
	// Ticks this close to the usable boundary mark an abandoned pool.
	maxTick          = 887272
	tickBoundarySlop = 100

	// Chunk size for the sequential fallback when a full batch fails.
	fallbackChunkSize = 8
)

// Liquidity status thresholds in USD.
const (
	activeThresholdUSD  = 1000.0
	warningThresholdUSD = 100.0
)

// TokenSource resolves token metadata in bulk.
type TokenSource interface {
	GetMany(ctx context.Context, addrs []common.Address) (map[common.Address]model.TokenInfo, error)
}

// Valuer prices tokens and pool reserves.
type Valuer interface {
	PriceUSD(addr string) (float64, bool)
	NativePriceUSD() float64
	PoolValueUSD(token0, token1 string, amt0, amt1 *big.Int, dec0, dec1 uint8, poolPriceRatio float64) float64
	PoolValueNative(valueUSD float64) float64
}

// FetchResult is the fetcher's partial-failure-tolerant output.
type FetchResult struct {
	Pools          []*model.Pool
	ProtocolStatus map[string]model.ProtocolStatus
	Partial        bool
}

// Fetcher reconstructs pool state for discovered candidates, batched per
// protocol, tolerant of one protocol failing.
type Fetcher struct {
	caller BatchCaller
	tokens TokenSource
	valuer Valuer
	logger *zap.Logger
}

// NewFetcher builds a fetcher.
func NewFetcher(caller BatchCaller, tokens TokenSource, valuer Valuer, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{caller: caller, tokens: tokens, valuer: valuer, logger: logger}
}

// rawV2 is the undecorated chain state of a V2 pair.
type rawV2 struct {
	cand     Candidate
	token0   common.Address
	token1   common.Address
	reserve0 *big.Int
	reserve1 *big.Int
	blockTS  uint32
}

// rawV3 is the undecorated chain state of a V3 pool.
type rawV3 struct {
	cand      Candidate
	token0    common.Address
	token1    common.Address
	feeBps    uint32
	liquidity *big.Int
	sqrtPrice *big.Int
	tick      int32
	balance0  *big.Int
	balance1  *big.Int
}

// Fetch loads state for all candidates. V2 and V3 batches run concurrently;
// a failed protocol is reported in ProtocolStatus and sets Partial instead
// of failing the fetch.
func (f *Fetcher) Fetch(ctx context.Context, target common.Address, candidates []Candidate) (*FetchResult, error) {
	var v2Cands, v3Cands []Candidate
	for _, c := range candidates {
		if c.Kind == model.KindV2 {
			v2Cands = append(v2Cands, c)
		} else {
			v3Cands = append(v3Cands, c)
		}
	}

	var (
		mu       sync.Mutex
		rawV2s   []rawV2
		rawV3s   []rawV3
		statuses = map[string]model.ProtocolStatus{
			ProtocolV2: {Status: model.FetchSkipped},
			ProtocolV3: {Status: model.FetchSkipped},
		}
	)

	g, gctx := errgroup.WithContext(ctx)
	if len(v2Cands) > 0 {
		g.Go(func() error {
			raws, err := f.fetchV2WithFallback(gctx, v2Cands)
			mu.Lock()
			defer mu.Unlock()
			status := model.ProtocolStatus{Status: model.FetchSuccess, Pools: len(v2Cands), Returned: len(raws)}
			if err != nil {
				status.Status = model.FetchFailed
				status.Error = err.Error()
			}
			statuses[ProtocolV2] = status
			rawV2s = raws
			return nil
		})
	}
	if len(v3Cands) > 0 {
		g.Go(func() error {
			raws, err := f.fetchV3WithFallback(gctx, v3Cands)
			mu.Lock()
			defer mu.Unlock()
			status := model.ProtocolStatus{Status: model.FetchSuccess, Pools: len(v3Cands), Returned: len(raws)}
			if err != nil {
				status.Status = model.FetchFailed
				status.Error = err.Error()
			}
			statuses[ProtocolV3] = status
			rawV3s = raws
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	partial := statuses[ProtocolV2].Status == model.FetchFailed || statuses[ProtocolV3].Status == model.FetchFailed

	// One registry batch for every token the pools reference.
	tokenSet := make(map[common.Address]bool)
	for _, raw := range rawV2s {
		tokenSet[raw.token0] = true
		tokenSet[raw.token1] = true
	}
	for _, raw := range rawV3s {
		tokenSet[raw.token0] = true
		tokenSet[raw.token1] = true
	}
	tokenAddrs := make([]common.Address, 0, len(tokenSet))
	for addr := range tokenSet {
		tokenAddrs = append(tokenAddrs, addr)
	}
	tokenInfos, err := f.tokens.GetMany(ctx, tokenAddrs)
	if err != nil {
		f.logger.Warn("token metadata batch failed, using defaults", zap.Error(err))
		if tokenInfos == nil {
			tokenInfos = make(map[common.Address]model.TokenInfo)
		}
	}
	infoFor := func(addr common.Address) model.TokenInfo {
		if info, ok := tokenInfos[addr]; ok {
			return info
		}
		return model.UnknownToken(addr.Hex())
	}

	now := time.Now()
	pools := make([]*model.Pool, 0, len(rawV2s)+len(rawV3s))
	for _, raw := range rawV2s {
		pools = append(pools, f.enrichV2(target, raw, infoFor(raw.token0), infoFor(raw.token1), now))
	}
	for _, raw := range rawV3s {
		pools = append(pools, f.enrichV3(target, raw, infoFor(raw.token0), infoFor(raw.token1), now))
	}

	sort.SliceStable(pools, func(i, j int) bool {
		return pools[i].Liquidity.TotalUSD > pools[j].Liquidity.TotalUSD
	})

	return &FetchResult{Pools: pools, ProtocolStatus: statuses, Partial: partial}, nil
}

func (f *Fetcher) fetchV2WithFallback(ctx context.Context, cands []Candidate) ([]rawV2, error) {
	raws, err := f.fetchV2Batch(ctx, cands)
	if err == nil {
		return raws, nil
	}
	f.logger.Warn("v2 batch failed, falling back to chunks", zap.Error(err))

	var out []rawV2
	ok := false
	for start := 0; start < len(cands); start += fallbackChunkSize {
		end := start + fallbackChunkSize
		if end > len(cands) {
			end = len(cands)
		}
		chunk, chunkErr := f.fetchV2Batch(ctx, cands[start:end])
		if chunkErr != nil {
			f.logger.Warn("v2 fallback chunk failed", zap.Error(chunkErr))
			continue
		}
		ok = true
		out = append(out, chunk...)
	}
	if !ok {
		return nil, err
	}
	return out, nil
}

func (f *Fetcher) fetchV2Batch(ctx context.Context, cands []Candidate) ([]rawV2, error) {
	pairABI, err := V2PairABI()
	if err != nil {
		return nil, fmt.Errorf("parse pair abi: %w", err)
	}

	calls := make([]multicall.Call, 0, len(cands)*3)
	for _, cand := range cands {
		calls = append(calls,
			multicall.Call{Target: cand.Address, AllowFailure: true, CallData: MustPack(pairABI, "token0")},
			multicall.Call{Target: cand.Address, AllowFailure: true, CallData: MustPack(pairABI, "token1")},
			multicall.Call{Target: cand.Address, AllowFailure: true, CallData: MustPack(pairABI, "getReserves")},
		)
	}

	results, err := f.caller.Aggregate(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("v2 state batch: %w", err)
	}
	if len(results) != len(calls) {
		return nil, fmt.Errorf("v2 state batch returned %d of %d results", len(results), len(calls))
	}

	raws := make([]rawV2, 0, len(cands))
	for i, cand := range cands {
		raw := rawV2{cand: cand}
		var ok bool
		if raw.token0, ok = decodeAddress(pairABI, "token0", results[i*3]); !ok {
			continue
		}
		if raw.token1, ok = decodeAddress(pairABI, "token1", results[i*3+1]); !ok {
			continue
		}
		if !decodeReserves(pairABI, results[i*3+2], &raw) {
			continue
		}
		raws = append(raws, raw)
	}
	return raws, nil
}

func (f *Fetcher) fetchV3WithFallback(ctx context.Context, cands []Candidate) ([]rawV3, error) {
	raws, err := f.fetchV3Batch(ctx, cands)
	if err == nil {
		return raws, nil
	}
	f.logger.Warn("v3 batch failed, falling back to chunks", zap.Error(err))

	var out []rawV3
	ok := false
	for start := 0; start < len(cands); start += fallbackChunkSize {
		end := start + fallbackChunkSize
		if end > len(cands) {
			end = len(cands)
		}
		chunk, chunkErr := f.fetchV3Batch(ctx, cands[start:end])
		if chunkErr != nil {
			f.logger.Warn("v3 fallback chunk failed", zap.Error(chunkErr))
			continue
		}
		ok = true
		out = append(out, chunk...)
	}
	if !ok {
		return nil, err
	}
	return out, nil
}

func (f *Fetcher) fetchV3Batch(ctx context.Context, cands []Candidate) ([]rawV3, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	erc20, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}

	calls := make([]multicall.Call, 0, len(cands)*5)
	for _, cand := range cands {
		calls = append(calls,
			multicall.Call{Target: cand.Address, AllowFailure: true, CallData: MustPack(poolABI, "token0")},
			multicall.Call{Target: cand.Address, AllowFailure: true, CallData: MustPack(poolABI, "token1")},
			multicall.Call{Target: cand.Address, AllowFailure: true, CallData: MustPack(poolABI, "fee")},
			multicall.Call{Target: cand.Address, AllowFailure: true, CallData: MustPack(poolABI, "liquidity")},
			multicall.Call{Target: cand.Address, AllowFailure: true, CallData: MustPack(poolABI, "slot0")},
		)
	}

	results, err := f.caller.Aggregate(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("v3 state batch: %w", err)
	}
	if len(results) != len(calls) {
		return nil, fmt.Errorf("v3 state batch returned %d of %d results", len(results), len(calls))
	}

	raws := make([]rawV3, 0, len(cands))
	for i, cand := range cands {
		raw := rawV3{cand: cand}
		var ok bool
		if raw.token0, ok = decodeAddress(poolABI, "token0", results[i*5]); !ok {
			continue
		}
		if raw.token1, ok = decodeAddress(poolABI, "token1", results[i*5+1]); !ok {
			continue
		}
		if raw.feeBps, ok = decodeUint32(poolABI, "fee", results[i*5+2]); !ok {
			raw.feeBps = cand.FeeBps
		}
		if raw.liquidity, ok = decodeBigInt(poolABI, "liquidity", results[i*5+3]); !ok {
			continue
		}
		if !decodeSlot0(poolABI, results[i*5+4], &raw) {
			continue
		}
		raws = append(raws, raw)
	}

	// Second batch: the pools' actual token balances.
	balanceCalls := make([]multicall.Call, 0, len(raws)*2)
	for _, raw := range raws {
		balanceCalls = append(balanceCalls,
			multicall.Call{Target: raw.token0, AllowFailure: true, CallData: MustPack(erc20, "balanceOf", raw.cand.Address)},
			multicall.Call{Target: raw.token1, AllowFailure: true, CallData: MustPack(erc20, "balanceOf", raw.cand.Address)},
		)
	}
	balances, err := f.caller.Aggregate(ctx, balanceCalls)
	if err != nil {
		return nil, fmt.Errorf("v3 balance batch: %w", err)
	}
	if len(balances) != len(balanceCalls) {
		return nil, fmt.Errorf("v3 balance batch returned %d of %d results", len(balances), len(balanceCalls))
	}
	for i := range raws {
		if bal, ok := decodeBigInt(erc20, "balanceOf", balances[i*2]); ok {
			raws[i].balance0 = bal
		} else {
			raws[i].balance0 = new(big.Int)
		}
		if bal, ok := decodeBigInt(erc20, "balanceOf", balances[i*2+1]); ok {
			raws[i].balance1 = bal
		} else {
			raws[i].balance1 = new(big.Int)
		}
	}
	return raws, nil
}

func (f *Fetcher) enrichV2(target common.Address, raw rawV2, info0, info1 model.TokenInfo, now time.Time) *model.Pool {
	pool := &model.Pool{
		Address:  strings.ToLower(raw.cand.Address.Hex()),
		Kind:     model.KindV2,
		Protocol: ProtocolV2,
		Token0:   info0,
		Token1:   info1,
		FeeBps:   V2DefaultFeeBps,
		V2: &model.V2State{
			Reserve0:       raw.reserve0,
			Reserve1:       raw.reserve1,
			BlockTimestamp: raw.blockTS,
		},
		LastUpdated: now,
	}

	token0Price, token1Price := pricing.V2Price(raw.reserve0, raw.reserve1, info0.Decimals, info1.Decimals)
	totalUSD := f.valuer.PoolValueUSD(info0.Address, info1.Address, raw.reserve0, raw.reserve1, info0.Decimals, info1.Decimals, token0Price)

	pool.Liquidity = model.LiquidityInfo{
		TotalUSD:     totalUSD,
		TotalNative:  f.valuer.PoolValueNative(totalUSD),
		Token0Amount: pricing.TokenAmount(raw.reserve0, info0.Decimals),
		Token1Amount: pricing.TokenAmount(raw.reserve1, info1.Decimals),
		Status:       liquidityStatus(totalUSD, raw.reserve0.Sign() == 0 && raw.reserve1.Sign() == 0),
	}
	pool.Price = f.priceInfo(pool, target, token0Price, token1Price, "v2_reserves")
	return pool
}

func (f *Fetcher) enrichV3(target common.Address, raw rawV3, info0, info1 model.TokenInfo, now time.Time) *model.Pool {
	pool := &model.Pool{
		Address:  strings.ToLower(raw.cand.Address.Hex()),
		Kind:     model.KindV3,
		Protocol: ProtocolV3,
		Token0:   info0,
		Token1:   info1,
		FeeBps:   raw.feeBps,
		V3: &model.V3State{
			SqrtPriceX96:   raw.sqrtPrice,
			Tick:           raw.tick,
			Liquidity:      raw.liquidity,
			ActualBalance0: raw.balance0,
			ActualBalance1: raw.balance1,
		},
		LastUpdated: now,
	}

	if reason, rugged := v3RugCheck(raw); rugged {
		pool.Liquidity = model.LiquidityInfo{Status: model.StatusRugged, RuggedReason: reason}
		return pool
	}

	token0Price := pricing.SqrtPriceToPrice(raw.sqrtPrice, info0.Decimals, info1.Decimals)
	var token1Price float64
	if token0Price > 0 {
		token1Price = 1 / token0Price
	}
	totalUSD := f.valuer.PoolValueUSD(info0.Address, info1.Address, raw.balance0, raw.balance1, info0.Decimals, info1.Decimals, token0Price)

	empty := (raw.balance0 == nil || raw.balance0.Sign() == 0) && (raw.balance1 == nil || raw.balance1.Sign() == 0)
	pool.Liquidity = model.LiquidityInfo{
		TotalUSD:     totalUSD,
		TotalNative:  f.valuer.PoolValueNative(totalUSD),
		Token0Amount: pricing.TokenAmount(raw.balance0, info0.Decimals),
		Token1Amount: pricing.TokenAmount(raw.balance1, info1.Decimals),
		Status:       liquidityStatus(totalUSD, empty),
	}
	pool.Price = f.priceInfo(pool, target, token0Price, token1Price, "v3_sqrt_price")
	return pool
}

// v3RugCheck flags abandoned pools: no active-range liquidity, or the price
// parked against a tick boundary.
func v3RugCheck(raw rawV3) (string, bool) {
	if raw.liquidity == nil || raw.liquidity.Sign() == 0 {
		return "no active liquidity in range", true
	}
	if raw.tick >= maxTick-tickBoundarySlop || raw.tick <= -maxTick+tickBoundarySlop {
		return "tick pinned at range boundary", true
	}
	return "", false
}

func liquidityStatus(totalUSD float64, empty bool) model.LiquidityStatus {
	switch {
	case totalUSD >= activeThresholdUSD:
		return model.StatusActive
	case totalUSD >= warningThresholdUSD:
		return model.StatusWarningLiquidity
	case empty && totalUSD <= 0:
		return model.StatusEmpty
	default:
		return model.StatusLowLiquidity
	}
}

// priceInfo orients the pool's raw ratio toward the analyzed token and
// derives its USD and native prices through the pair side.
func (f *Fetcher) priceInfo(pool *model.Pool, target common.Address, token0Price, token1Price float64, source string) model.PriceInfo {
	pair, targetIsToken0 := pool.PairToken(target.Hex())
	ratio := token0Price
	if !targetIsToken0 {
		ratio = token1Price
	}

	info := model.PriceInfo{
		Token0Price:     token0Price,
		Token1Price:     token1Price,
		PriceRatio:      ratio,
		PairTokenSymbol: pair.Symbol,
		Source:          source,
	}

	if ratio > 0 {
		if pairUSD, ok := f.valuer.PriceUSD(pair.Address); ok {
			info.InUSD = ratio * pairUSD
		}
		if native := f.valuer.NativePriceUSD(); native > 0 && info.InUSD > 0 {
			info.InNative = info.InUSD / native
		}
		info.DisplayPrice = fmt.Sprintf("%.8g %s", ratio, pair.Symbol)
	}
	return info
}

func decodeAddress(parsed abi.ABI, method string, res multicall.Result) (common.Address, bool) {
	if !res.Success || len(res.ReturnData) == 0 {
		return common.Address{}, false
	}
	values, err := parsed.Unpack(method, res.ReturnData)
	if err != nil || len(values) != 1 {
		return common.Address{}, false
	}
	addr, err := AsAddress(values[0])
	if err != nil {
		return common.Address{}, false
	}
	return addr, true
}

func decodeBigInt(parsed abi.ABI, method string, res multicall.Result) (*big.Int, bool) {
	if !res.Success || len(res.ReturnData) == 0 {
		return nil, false
	}
	values, err := parsed.Unpack(method, res.ReturnData)
	if err != nil || len(values) != 1 {
		return nil, false
	}
	v, err := AsBigInt(values[0])
	if err != nil {
		return nil, false
	}
	return v, true
}

func decodeUint32(parsed abi.ABI, method string, res multicall.Result) (uint32, bool) {
	v, ok := decodeBigInt(parsed, method, res)
	if !ok {
		return 0, false
	}
	return uint32(v.Uint64()), true
}

func decodeReserves(parsed abi.ABI, res multicall.Result, raw *rawV2) bool {
	if !res.Success || len(res.ReturnData) == 0 {
		return false
	}
	values, err := parsed.Unpack("getReserves", res.ReturnData)
	if err != nil || len(values) < 3 {
		return false
	}
	r0, err0 := AsBigInt(values[0])
	r1, err1 := AsBigInt(values[1])
	ts, err2 := AsBigInt(values[2])
	if err0 != nil || err1 != nil || err2 != nil {
		return false
	}
	raw.reserve0 = r0
	raw.reserve1 = r1
	raw.blockTS = uint32(ts.Uint64())
	return true
}

func decodeSlot0(parsed abi.ABI, res multicall.Result, raw *rawV3) bool {
	if !res.Success || len(res.ReturnData) == 0 {
		return false
	}
	values, err := parsed.Unpack("slot0", res.ReturnData)
	if err != nil || len(values) < 2 {
		return false
	}
	sqrtPrice, err := AsBigInt(values[0])
	if err != nil {
		return false
	}
	tickBig, err := AsBigInt(values[1])
	if err != nil {
		return false
	}
	tick, err := Int24FromBig(tickBig)
	if err != nil {
		return false
	}
	raw.sqrtPrice = sqrtPrice
	raw.tick = tick
	return true
}
