package token

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0xprotovox/bscradar/internal/model"
)

// Well-known BSC token addresses, lowercased. The canonical list lives in
// model so packages below this one can reach it.
const (
	WBNB = model.WBNB
	USDT = model.USDT
	BUSD = model.BUSD
	USDC = model.USDC
	DAI  = model.DAI
	CAKE = model.CAKE
)

// knownTokens is the compile-time table for the base-token set. Resolution
// of these never touches the chain.
var knownTokens = map[string]model.TokenInfo{
	WBNB: {Address: WBNB, Symbol: "WBNB", Name: "Wrapped BNB", Decimals: 18},
	USDT: {Address: USDT, Symbol: "USDT", Name: "Tether USD", Decimals: 18},
	BUSD: {Address: BUSD, Symbol: "BUSD", Name: "BUSD Token", Decimals: 18},
	USDC: {Address: USDC, Symbol: "USDC", Name: "USD Coin", Decimals: 18},
	DAI:  {Address: DAI, Symbol: "DAI", Name: "Dai Token", Decimals: 18},
	CAKE: {Address: CAKE, Symbol: "CAKE", Name: "PancakeSwap Token", Decimals: 18},
}

var stableSymbols = map[string]bool{
	"USDT": true,
	"BUSD": true,
	"USDC": true,
	"DAI":  true,
}

// Known returns the hardcoded metadata for addr, if present.
func Known(addr string) (model.TokenInfo, bool) {
	info, ok := knownTokens[strings.ToLower(addr)]
	return info, ok
}

// BaseTokens returns the full discovery base set, highest-liquidity first.
func BaseTokens() []common.Address {
	return model.BaseTokens()
}

// FastBaseTokens returns the three highest-liquidity bases used in fast mode.
func FastBaseTokens() []common.Address {
	return model.FastBaseTokens()
}

// IsStableSymbol reports whether symbol is a USD stablecoin.
func IsStableSymbol(symbol string) bool {
	return stableSymbols[strings.ToUpper(symbol)]
}

// IsWrapperSymbol reports whether symbol is the native wrapper.
func IsWrapperSymbol(symbol string) bool {
	return strings.ToUpper(symbol) == "WBNB"
}

// IsEcosystemSymbol reports whether symbol is the ecosystem token.
func IsEcosystemSymbol(symbol string) bool {
	return strings.ToUpper(symbol) == "CAKE"
}

// IsStableAddress reports whether addr is one of the known stablecoins.
func IsStableAddress(addr string) bool {
	info, ok := knownTokens[strings.ToLower(addr)]
	return ok && stableSymbols[info.Symbol]
}
