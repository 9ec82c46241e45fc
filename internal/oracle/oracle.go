// Package oracle maintains USD prices for the base-token set and values
// pool reserves. WBNB and CAKE are refreshed from two reference V3 pools;
// stablecoins are pinned at $1.
package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/0xprotovox/bscradar/internal/dex"
	"github.com/0xprotovox/bscradar/internal/model"
	"github.com/0xprotovox/bscradar/internal/multicall"
	"github.com/0xprotovox/bscradar/internal/pricing"
	"github.com/0xprotovox/bscradar/internal/token"
)

// Reference pools for the oracle refresh.
var (
	WBNBUSDTPool = common.HexToAddress("0x36696169c63e42cd08ce11f5deebbcebae652050")
	CAKEWBNBPool = common.HexToAddress("0x133b3d95bad5405d14d53473671200e9342896bf")
)

const (
	staleThreshold = 30 * time.Second

	defaultWBNBPrice = 600.0
	defaultCAKEPrice = 2.50

	// Sanity bands: refreshed values outside these are discarded.
	wbnbMinUSD = 100.0
	wbnbMaxUSD = 2000.0
	cakeMinUSD = 0.1
	cakeMaxUSD = 100.0
)

// BatchCaller is the aggregated-read primitive the oracle needs.
type BatchCaller interface {
	Aggregate(ctx context.Context, calls []multicall.Call) ([]multicall.Result, error)
}

// Oracle holds USD prices for base tokens and derives pool valuations.
type Oracle struct {
	caller BatchCaller
	logger *zap.Logger

	mu         sync.RWMutex
	prices     map[string]float64 // lowercased address -> USD
	lastUpdate time.Time

	refresh singleflight.Group
}

// New seeds the oracle with defaults: WBNB and CAKE at their fallback
// prices, stablecoins pinned at 1.00.
func New(caller BatchCaller, logger *zap.Logger) *Oracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Oracle{
		caller: caller,
		logger: logger,
		prices: map[string]float64{
			token.WBNB: defaultWBNBPrice,
			token.USDT: 1.0,
			token.BUSD: 1.0,
			token.USDC: 1.0,
			token.DAI:  1.0,
			token.CAKE: defaultCAKEPrice,
		},
	}
}

// PriceUSD returns the known USD price of a token, if any.
func (o *Oracle) PriceUSD(addr string) (float64, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	price, ok := o.prices[strings.ToLower(addr)]
	return price, ok
}

// SetPriceUSD overrides a token price (manual pin).
func (o *Oracle) SetPriceUSD(addr string, price float64) {
	o.mu.Lock()
	o.prices[strings.ToLower(addr)] = price
	o.mu.Unlock()
}

// NativePriceUSD returns the wrapper (WBNB) price.
func (o *Oracle) NativePriceUSD() float64 {
	price, _ := o.PriceUSD(token.WBNB)
	return price
}

// AreStale reports whether the last successful refresh is older than the
// stale threshold. A never-refreshed oracle is stale.
func (o *Oracle) AreStale() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return time.Since(o.lastUpdate) > staleThreshold
}

// RefreshFromChain re-derives WBNB and CAKE prices from the reference pools.
// Concurrent callers share a single in-flight refresh. Values outside the
// sanity bands are discarded in favor of the cached price, but a successful
// decode still advances the staleness clock.
func (o *Oracle) RefreshFromChain(ctx context.Context) error {
	_, err, _ := o.refresh.Do("refresh", func() (interface{}, error) {
		return nil, o.doRefresh(ctx)
	})
	return err
}

func (o *Oracle) doRefresh(ctx context.Context) error {
	poolABI, err := dex.V3PoolABI()
	if err != nil {
		return fmt.Errorf("parse pool abi: %w", err)
	}

	slot0Data := dex.MustPack(poolABI, "slot0")
	token0Data := dex.MustPack(poolABI, "token0")
	calls := []multicall.Call{
		{Target: WBNBUSDTPool, AllowFailure: true, CallData: slot0Data},
		{Target: WBNBUSDTPool, AllowFailure: true, CallData: token0Data},
		{Target: CAKEWBNBPool, AllowFailure: true, CallData: slot0Data},
		{Target: CAKEWBNBPool, AllowFailure: true, CallData: token0Data},
	}

	results, err := o.caller.Aggregate(ctx, calls)
	if err != nil {
		return fmt.Errorf("oracle refresh batch: %w", err)
	}
	if len(results) != len(calls) {
		return fmt.Errorf("oracle refresh returned %d of %d results", len(results), len(calls))
	}

	wbnbUSD, wbnbDecoded, wbnbOK := o.deriveWBNB(poolABI, results[0], results[1])
	if wbnbOK {
		o.mu.Lock()
		o.prices[token.WBNB] = wbnbUSD
		o.mu.Unlock()
	} else {
		wbnbUSD = o.NativePriceUSD()
	}

	cakeUSD, cakeDecoded, cakeOK := o.deriveCAKE(poolABI, results[2], results[3], wbnbUSD)
	if cakeOK {
		o.mu.Lock()
		o.prices[token.CAKE] = cakeUSD
		o.mu.Unlock()
	}

	if !wbnbDecoded && !cakeDecoded {
		return fmt.Errorf("oracle refresh decoded no usable prices")
	}

	// Any successful decode counts as a refresh, even when the sanity clamp
	// kept the cached value.
	o.mu.Lock()
	o.lastUpdate = time.Now()
	o.mu.Unlock()
	o.logger.Debug("oracle refreshed",
		zap.Float64("wbnb_usd", o.NativePriceUSD()),
	)
	return nil
}

// deriveWBNB decodes the wrapper/stable pool. decoded reports that the pool
// state itself was readable; accepted additionally requires the price to sit
// inside the sanity band.
func (o *Oracle) deriveWBNB(poolABI abi.ABI, slot0, token0 multicall.Result) (price float64, decoded, accepted bool) {
	sqrtPrice, t0, ok := decodePool(poolABI, slot0, token0)
	if !ok {
		return 0, false, false
	}

	// Both sides 18 decimals; ratio is token1 per token0.
	ratio := pricing.SqrtPriceToPrice(sqrtPrice, 18, 18)
	if ratio <= 0 {
		return 0, false, false
	}

	price = ratio
	if !model.EqualAddress(t0.Hex(), token.WBNB) {
		// token0 is the stable: invert to get USDT per WBNB.
		price = 1 / ratio
	}
	if price <= wbnbMinUSD || price >= wbnbMaxUSD {
		o.logger.Warn("wbnb price outside sanity band", zap.Float64("price", price))
		return 0, true, false
	}
	return price, true, true
}

func (o *Oracle) deriveCAKE(poolABI abi.ABI, slot0, token0 multicall.Result, wbnbUSD float64) (price float64, decoded, accepted bool) {
	sqrtPrice, t0, ok := decodePool(poolABI, slot0, token0)
	if !ok || wbnbUSD <= 0 {
		return 0, false, false
	}

	ratio := pricing.SqrtPriceToPrice(sqrtPrice, 18, 18)
	if ratio <= 0 {
		return 0, false, false
	}

	cakeInBNB := ratio
	if !model.EqualAddress(t0.Hex(), token.CAKE) {
		cakeInBNB = 1 / ratio
	}
	price = cakeInBNB * wbnbUSD
	if price <= cakeMinUSD || price >= cakeMaxUSD {
		o.logger.Warn("cake price outside sanity band", zap.Float64("price", price))
		return 0, true, false
	}
	return price, true, true
}

func decodePool(poolABI abi.ABI, slot0, token0 multicall.Result) (*big.Int, common.Address, bool) {
	if !slot0.Success || !token0.Success {
		return nil, common.Address{}, false
	}

	values, err := poolABI.Unpack("slot0", slot0.ReturnData)
	if err != nil || len(values) < 1 {
		return nil, common.Address{}, false
	}
	sqrtPrice, err := dex.AsBigInt(values[0])
	if err != nil {
		return nil, common.Address{}, false
	}

	values, err = poolABI.Unpack("token0", token0.ReturnData)
	if err != nil || len(values) != 1 {
		return nil, common.Address{}, false
	}
	t0, err := dex.AsAddress(values[0])
	if err != nil {
		return nil, common.Address{}, false
	}
	return sqrtPrice, t0, true
}

// PoolValueUSD values a pool's two reserves in USD. If only one side's price
// is known, the other is derived through the pool's own price ratio (token1
// per token0); with no ratio, the known side is mirrored (balanced-pool
// assumption). Returns 0 when neither side is priceable.
func (o *Oracle) PoolValueUSD(token0Addr, token1Addr string, amt0Raw, amt1Raw *big.Int, dec0, dec1 uint8, poolPriceRatio float64) float64 {
	amt0 := pricing.TokenAmount(amt0Raw, dec0)
	amt1 := pricing.TokenAmount(amt1Raw, dec1)

	p0, ok0 := o.PriceUSD(token0Addr)
	p1, ok1 := o.PriceUSD(token1Addr)

	switch {
	case ok0 && ok1:
		return amt0*p0 + amt1*p1
	case ok0:
		v0 := amt0 * p0
		if poolPriceRatio > 0 {
			return v0 + amt1*(p0/poolPriceRatio)
		}
		return v0 * 2
	case ok1:
		v1 := amt1 * p1
		if poolPriceRatio > 0 {
			return v1 + amt0*(p1*poolPriceRatio)
		}
		return v1 * 2
	default:
		return 0
	}
}

// PoolValueNative converts a USD valuation into wrapper units.
func (o *Oracle) PoolValueNative(valueUSD float64) float64 {
	native := o.NativePriceUSD()
	if native <= 0 {
		return 0
	}
	return valueUSD / native
}
