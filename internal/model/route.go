package model

// RouteKind discriminates route shapes.
type RouteKind string

const (
	RouteDirect RouteKind = "direct"
	Route2Hop   RouteKind = "2hop"
	Route3Hop   RouteKind = "3hop"
)

// RouteLeg is one swap in a route.
type RouteLeg struct {
	TokenIn         TokenInfo `json:"token_in"`
	TokenOut        TokenInfo `json:"token_out"`
	Pool            *Pool     `json:"pool"`
	EstimatedOutput float64   `json:"estimated_output"`
	PriceImpactPct  float64   `json:"price_impact_pct"`
}

// Route is a full swap plan between two tokens.
type Route struct {
	Kind            RouteKind   `json:"kind"`
	Path            []TokenInfo `json:"path"`
	Legs            []RouteLeg  `json:"legs"`
	EstimatedOutput float64     `json:"estimated_output"`
	PriceImpactPct  float64     `json:"price_impact_pct"`
	TotalFeePct     float64     `json:"total_fee_pct"`
	Score           float64     `json:"score"`
}

// RouteResult is the router's answer: the best route plus alternatives.
type RouteResult struct {
	Best         *Route   `json:"best"`
	Alternatives []*Route `json:"alternatives,omitempty"`
}

// Quote is a direct-pool quote with a slippage-adjusted minimum output.
type Quote struct {
	Pool         *Pool   `json:"pool"`
	AmountIn     float64 `json:"amount_in"`
	AmountOut    float64 `json:"amount_out"`
	MinAmountOut float64 `json:"min_amount_out"`
	SlippagePct  float64 `json:"slippage_pct"`
}
