package model

import "time"

// ProtocolStatus records the outcome of one protocol's fetch batch.
type ProtocolStatus struct {
	Status   string `json:"status"` // success | failed | skipped
	Pools    int    `json:"pools"`
	Returned int    `json:"returned"`
	Error    string `json:"error,omitempty"`
}

const (
	FetchSuccess = "success"
	FetchFailed  = "failed"
	FetchSkipped = "skipped"
)

// Costs breaks down the estimated cost of a trade in a pool.
type Costs struct {
	FeePct       float64 `json:"fee_pct"`
	SlippagePct  float64 `json:"slippage_pct"`
	TotalCostPct float64 `json:"total_cost_pct"`
	FeeUSD       float64 `json:"fee_usd"`
	SlippageUSD  float64 `json:"slippage_usd"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

// SafetyReport accumulates warnings and the remaining safety score.
type SafetyReport struct {
	Score         float64  `json:"score"`
	Warnings      []string `json:"warnings,omitempty"`
	SandwichRisk  string   `json:"sandwich_risk,omitempty"`
	IsUntradeable bool     `json:"is_untradeable"`
	OutOfRange    bool     `json:"out_of_range,omitempty"`
}

// PoolScore is a single pool's trade-aware evaluation.
type PoolScore struct {
	Pool       *Pool        `json:"pool"`
	Score      float64      `json:"score"`
	Costs      Costs        `json:"costs"`
	Tradeable  bool         `json:"tradeable"`
	RiskLevel  string       `json:"risk_level"`
	Safety     SafetyReport `json:"safety"`
	Protection []string     `json:"protection,omitempty"`
	Reason     string       `json:"reason,omitempty"`
	TradeClass string       `json:"trade_class"`
}

// Risk levels, ordered.
const (
	RiskLow      = "LOW"
	RiskMedium   = "MEDIUM"
	RiskHigh     = "HIGH"
	RiskCritical = "CRITICAL"
)

// BestPools holds the per-criterion winners for an analysis.
type BestPools struct {
	ByLiquidity   *Pool            `json:"by_liquidity,omitempty"`
	ByPriceUSD    *Pool            `json:"by_price_usd,omitempty"`
	ByPriceNative *Pool            `json:"by_price_native,omitempty"`
	ByFee         *Pool            `json:"by_fee,omitempty"`
	ByProtocol    map[string]*Pool `json:"by_protocol,omitempty"`
	Recommended   *PoolScore       `json:"recommended,omitempty"`
}

// PairPrice is one pool's price grouped under its pair-token symbol.
type PairPrice struct {
	PoolAddress  string  `json:"pool_address"`
	PriceUSD     float64 `json:"price_usd"`
	PriceNative  float64 `json:"price_native"`
	LiquidityUSD float64 `json:"liquidity_usd"`
}

// AggregatePrice is the outlier-filtered liquidity-weighted price view.
type AggregatePrice struct {
	AvgPriceUSD     float64                `json:"avg_price_usd"`
	AvgPriceNative  float64                `json:"avg_price_native"`
	MedianUSD       float64                `json:"median_usd"`
	MedianNative    float64                `json:"median_native"`
	MinPriceUSD     float64                `json:"min_price_usd"`
	MaxPriceUSD     float64                `json:"max_price_usd"`
	PoolsConsidered int                    `json:"pools_considered"`
	PoolsFiltered   int                    `json:"pools_filtered"`
	ByPairSymbol    map[string][]PairPrice `json:"by_pair_symbol,omitempty"`
}

// Distribution summarizes how liquidity spreads across pools.
type Distribution struct {
	TotalPools   int            `json:"total_pools"`
	ActivePools  int            `json:"active_pools"`
	ByProtocol   map[string]int `json:"by_protocol"`
	ByStatus     map[string]int `json:"by_status"`
	TopPoolShare float64        `json:"top_pool_share"`
}

// Warning severities, ordered most severe first.
const (
	SeverityCritical = "CRITICAL"
	SeverityHigh     = "HIGH"
	SeverityMedium   = "MEDIUM"
	SeverityLow      = "LOW"
)

// Warning is a user-visible safety or quality flag.
type Warning struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// Performance records analysis latency and its grade.
type Performance struct {
	TotalMs int64  `json:"total_ms"`
	Grade   string `json:"grade"`
}

// Meta carries freshness and completeness flags for a result.
type Meta struct {
	Timestamp      time.Time                 `json:"timestamp"`
	Cached         bool                      `json:"cached"`
	CacheAgeMs     int64                     `json:"cache_age_ms,omitempty"`
	Deduplicated   bool                      `json:"deduplicated,omitempty"`
	PricesStale    bool                      `json:"prices_stale,omitempty"`
	PartialResults bool                      `json:"partial_results,omitempty"`
	ProtocolStatus map[string]ProtocolStatus `json:"protocol_status,omitempty"`
}

// Analysis aggregates the per-pool derived numbers.
type Analysis struct {
	TotalLiquidityUSD    float64         `json:"total_liquidity_usd"`
	TotalLiquidityNative float64         `json:"total_liquidity_native"`
	PriceAnalysis        *AggregatePrice `json:"price_analysis,omitempty"`
	Distribution         Distribution    `json:"distribution"`
}

// AnalysisResult is the full output of AnalyzeToken.
type AnalysisResult struct {
	Token       TokenInfo   `json:"token"`
	BestPools   BestPools   `json:"best_pools"`
	Pools       []*Pool     `json:"pools"`
	Analysis    Analysis    `json:"analysis"`
	Performance Performance `json:"performance"`
	Meta        Meta        `json:"meta"`
	Warnings    []Warning   `json:"warnings,omitempty"`
}
