package model

import "github.com/ethereum/go-ethereum/common"

// Well-known BSC token addresses, lowercased.
const (
	WBNB = "0xbb4cdb9cbd36b01bd1cbaebf2de08d9173bc095c"
	USDT = "0x55d398326f99059ff775485246999027b3197955"
	BUSD = "0xe9e7cea3dedca5984780bafc599bd69add087d56"
	USDC = "0x8ac76a51cc950d9822d68b83fe1ad97b32cd580d"
	DAI  = "0x1af3f329e8be154074d8769d1ffa4ee058b1dbc3"
	CAKE = "0x0e09fabb73bd3ade0a17ecc321fd13a19e81ce82"
)

// BaseTokens returns the full discovery base set, highest-liquidity first.
func BaseTokens() []common.Address {
	return []common.Address{
		common.HexToAddress(WBNB),
		common.HexToAddress(USDT),
		common.HexToAddress(BUSD),
		common.HexToAddress(USDC),
		common.HexToAddress(DAI),
		common.HexToAddress(CAKE),
	}
}

// FastBaseTokens returns the three highest-liquidity bases used in fast mode.
func FastBaseTokens() []common.Address {
	return BaseTokens()[:3]
}
