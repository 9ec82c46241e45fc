// Package scorer evaluates pools against a trade intent: estimated cost
// (fee plus slippage), safety checks, and a final ranked recommendation.
package scorer

import (
	"math"

	"go.uber.org/zap"

	"github.com/0xprotovox/bscradar/internal/model"
	"github.com/0xprotovox/bscradar/internal/token"
)

// DefaultTradeUSD is assumed when the caller gives no trade size.
const DefaultTradeUSD = 1000.0

// Trade size classes.
const (
	TradeMicro  = "MICRO"
	TradeSmall  = "SMALL"
	TradeMedium = "MEDIUM"
	TradeLarge  = "LARGE"
	TradeWhale  = "WHALE"
)

// Safety warning codes.
const (
	WarnV3NoLiquidity      = "V3_NO_LIQUIDITY_IN_RANGE"
	WarnPriceManipulation  = "PRICE_MANIPULATION_RISK"
	WarnPriceDeviationHigh = "PRICE_DEVIATION_HIGH"
	WarnPriceDeviationMod  = "PRICE_DEVIATION_MODERATE"
	WarnLiquidityExtreme   = "LIQUIDITY_EXTREMELY_LOW"
	WarnLiquidityLow       = "LIQUIDITY_LOW"
	WarnRugPull            = "RUG_PULL_DETECTED"
	WarnPoolInactive       = "POOL_INACTIVE"
	WarnVolatilePair       = "VOLATILE_PAIR_FOR_LARGE_TRADE"
	WarnHighFee            = "UNUSUALLY_HIGH_FEE"
)

// Sandwich risk tiers.
const (
	SandwichNone     = "NONE"
	SandwichMedium   = "MEDIUM"
	SandwichHigh     = "HIGH"
	SandwichCritical = "CRITICAL"
)

// Minimum pair-side reserves below which, with target-side reserves still
// present, the pool is treated as rugged. Keyed by pair class.
const (
	minReserveWrapper   = 0.001
	minReserveStable    = 10.0
	minReserveEcosystem = 5.0
	minReserveOther     = 10.0
)

// v3EfficiencyFactor divides the constant-product slippage estimate:
// concentrated liquidity is conservatively ~5x more capital efficient.
const v3EfficiencyFactor = 5.0

// outOfRangeSlippagePct makes an out-of-range V3 pool effectively
// untradeable in cost terms.
const outOfRangeSlippagePct = 50.0

// Scorer scores pools for a trade intent.
type Scorer struct {
	logger *zap.Logger
}

// New builds a scorer.
func New(logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{logger: logger}
}

// TradeClass buckets a USD trade size.
func TradeClass(tradeUSD float64) string {
	switch {
	case tradeUSD < 100:
		return TradeMicro
	case tradeUSD < 1000:
		return TradeSmall
	case tradeUSD < 10000:
		return TradeMedium
	case tradeUSD < 100000:
		return TradeLarge
	default:
		return TradeWhale
	}
}

// Score evaluates one pool for a trade of tradeUSD. aggregateUSD is the
// analysis-wide average USD price used for deviation checks; pass 0 to skip
// them.
func (s *Scorer) Score(pool *model.Pool, target string, tradeUSD, aggregateUSD float64) *model.PoolScore {
	if tradeUSD <= 0 {
		tradeUSD = DefaultTradeUSD
	}

	safety := s.safetyChecks(pool, target, tradeUSD, aggregateUSD)
	costs := s.estimateCosts(pool, tradeUSD, safety.OutOfRange)

	liqUSD := pool.Liquidity.TotalUSD
	liquidityRatio := 0.0
	if tradeUSD > 0 {
		liquidityRatio = liqUSD / tradeUSD
	}

	tradeable := !safety.IsUntradeable && liqUSD >= 0.1*tradeUSD && safety.Score >= 30

	base := 100 - costs.TotalCostPct*10
	if liquidityRatio > 50 {
		base += 10
	}
	if base < 0 {
		base = 0
	}
	score := base * safety.Score / 100

	return &model.PoolScore{
		Pool:       pool,
		Score:      score,
		Costs:      costs,
		Tradeable:  tradeable,
		RiskLevel:  riskLevel(liquidityRatio, safety, tradeUSD),
		Safety:     safety,
		Protection: protections(safety),
		TradeClass: TradeClass(tradeUSD),
	}
}

func (s *Scorer) estimateCosts(pool *model.Pool, tradeUSD float64, outOfRange bool) model.Costs {
	liqUSD := pool.Liquidity.TotalUSD

	var slippagePct float64
	switch {
	case outOfRange:
		slippagePct = outOfRangeSlippagePct
	case liqUSD <= 0:
		slippagePct = outOfRangeSlippagePct
	default:
		slippagePct = (tradeUSD / liqUSD) * 50
		if pool.Kind == model.KindV3 {
			slippagePct /= v3EfficiencyFactor
		}
	}

	feePct := float64(pool.FeeBps) / 10000
	totalPct := feePct + slippagePct
	return model.Costs{
		FeePct:       feePct,
		SlippagePct:  slippagePct,
		TotalCostPct: totalPct,
		FeeUSD:       tradeUSD * feePct / 100,
		SlippageUSD:  tradeUSD * slippagePct / 100,
		TotalCostUSD: tradeUSD * totalPct / 100,
	}
}

func (s *Scorer) safetyChecks(pool *model.Pool, target string, tradeUSD, aggregateUSD float64) model.SafetyReport {
	report := model.SafetyReport{Score: 100, SandwichRisk: SandwichNone}
	deduct := func(code string, points float64) {
		report.Warnings = append(report.Warnings, code)
		report.Score -= points
	}

	// 1. V3 with no active-range liquidity cannot fill anything.
	if pool.Kind == model.KindV3 && pool.V3 != nil && (pool.V3.Liquidity == nil || pool.V3.Liquidity.Sign() == 0) {
		deduct(WarnV3NoLiquidity, 50)
		report.IsUntradeable = true
		report.OutOfRange = true
	}

	// 2. Price deviation against the aggregate.
	if aggregateUSD > 0 && pool.Price.InUSD > 0 {
		deviation := math.Abs(pool.Price.InUSD-aggregateUSD) / aggregateUSD * 100
		switch {
		case deviation > 10:
			deduct(WarnPriceManipulation, 40)
		case deviation > 5:
			deduct(WarnPriceDeviationHigh, 20)
		case deviation > 2:
			deduct(WarnPriceDeviationMod, 5)
		}
	}

	// 3. Sandwich exposure scales with trade / liquidity.
	liqUSD := pool.Liquidity.TotalUSD
	if liqUSD > 0 {
		ratio := tradeUSD / liqUSD
		switch {
		case ratio > 0.10:
			report.SandwichRisk = SandwichCritical
			report.Score -= 30
		case ratio > 0.05:
			report.SandwichRisk = SandwichHigh
			report.Score -= 15
		case ratio > 0.01:
			report.SandwichRisk = SandwichMedium
		}
	}

	// 4. Liquidity depth.
	switch {
	case liqUSD < 1000:
		deduct(WarnLiquidityExtreme, 30)
	case liqUSD < 10000:
		deduct(WarnLiquidityLow, 15)
	}

	// 5. Rug-pull pattern.
	pair, _ := pool.PairToken(target)
	if HasRugPattern(pool, target) {
		report.Warnings = append(report.Warnings, WarnRugPull)
		report.Score = 0
		report.IsUntradeable = true
	}

	// 6. Non-active pools.
	if pool.Liquidity.Status != model.StatusActive {
		deduct(WarnPoolInactive, 20)
	}

	// 7. Large trades against volatile pairs.
	if tradeUSD > 10000 && !token.IsStableSymbol(pair.Symbol) && !token.IsWrapperSymbol(pair.Symbol) {
		deduct(WarnVolatilePair, 10)
	}

	// 8. Fee outside the protocol's tier set.
	if pool.FeeBps > 10000 {
		deduct(WarnHighFee, 15)
	}

	if report.Score < 0 {
		report.Score = 0
	}
	return report
}

// HasRugPattern reports whether the pool's pair-side reserves sit below the
// minimum plausible for the pair class while the target side still holds
// tokens.
func HasRugPattern(pool *model.Pool, target string) bool {
	targetAmt, pairAmt := pool.TargetAmount(target)
	pair, _ := pool.PairToken(target)
	return pairAmt < minPairReserve(pair.Symbol) && targetAmt > 0
}

// minPairReserve returns the minimum plausible pair-side reserve for the
// pair class, in whole-token units.
func minPairReserve(pairSymbol string) float64 {
	switch {
	case token.IsWrapperSymbol(pairSymbol):
		return minReserveWrapper
	case token.IsStableSymbol(pairSymbol):
		return minReserveStable
	case token.IsEcosystemSymbol(pairSymbol):
		return minReserveEcosystem
	default:
		return minReserveOther
	}
}

func riskLevel(liquidityRatio float64, safety model.SafetyReport, tradeUSD float64) string {
	level := model.RiskLow
	switch {
	case liquidityRatio < 5:
		level = model.RiskHigh
	case liquidityRatio < 20:
		level = model.RiskMedium
	}

	switch {
	case safety.Score < 50 || safety.SandwichRisk == SandwichCritical:
		level = model.RiskCritical
	case safety.Score < 70 || safety.SandwichRisk == SandwichHigh:
		if level != model.RiskCritical {
			level = model.RiskHigh
		}
	case safety.Score < 85 && level == model.RiskLow:
		level = model.RiskMedium
	}
	if tradeUSD > 50000 && level == model.RiskLow {
		level = model.RiskMedium
	}
	return level
}

func protections(safety model.SafetyReport) []string {
	var out []string
	if safety.SandwichRisk == SandwichHigh || safety.SandwichRisk == SandwichCritical {
		out = append(out, "split the trade into smaller chunks")
	}
	for _, code := range safety.Warnings {
		if code == WarnPriceManipulation || code == WarnPriceDeviationHigh {
			out = append(out, "verify the execution price against the aggregate before trading")
			break
		}
	}
	return out
}

// Recommend scores every non-rugged pool and picks the cheapest tradeable
// one: ascending total cost, ties broken by deeper liquidity. With no
// tradeable pool it returns the first candidate zero-scored.
func (s *Scorer) Recommend(pools []*model.Pool, target string, tradeUSD, aggregateUSD float64) *model.PoolScore {
	var scored []*model.PoolScore
	for _, p := range pools {
		if p.Liquidity.Status == model.StatusRugged {
			continue
		}
		scored = append(scored, s.Score(p, target, tradeUSD, aggregateUSD))
	}
	if len(scored) == 0 {
		return nil
	}

	var tradeable []*model.PoolScore
	for _, sc := range scored {
		if sc.Tradeable {
			tradeable = append(tradeable, sc)
		}
	}
	if len(tradeable) == 0 {
		first := scored[0]
		first.Score = 0
		first.Reason = "No optimal pool found"
		return first
	}

	sortByCost(tradeable)
	return tradeable[0]
}
