package model

// TokenInfo captures ERC20 metadata. Immutable once resolved.
type TokenInfo struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
}

// UnknownToken returns the default metadata used when resolution fails.
func UnknownToken(address string) TokenInfo {
	return TokenInfo{
		Address:  address,
		Symbol:   "UNKNOWN",
		Name:     "Unknown",
		Decimals: 18,
	}
}
