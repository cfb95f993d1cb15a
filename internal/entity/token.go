package entity

import "strings"

// NativeTokenAddress is the sentinel address used for the chain's native coin
// in token lists and cache keys.
const NativeTokenAddress = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"

// ZeroAddress is the canonical zero address.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// Token is a single fungible asset position inside a wallet.
// Balance carries the raw on-chain integer as a decimal string; all value
// math parses it back into a big.Int. BalanceFormatted is for display only.
type Token struct {
	Address          string  `json:"address"`
	Symbol           string  `json:"symbol"`
	Name             string  `json:"name"`
	Decimals         uint8   `json:"decimals"`
	Balance          string  `json:"balance"`
	BalanceFormatted string  `json:"balanceFormatted"`
	Price            float64 `json:"price,omitempty"`
	Value            float64 `json:"value,omitempty"`
	PriceChange24h   float64 `json:"priceChange24h,omitempty"`
	Logo             string  `json:"logo,omitempty"`
	IsNative         bool    `json:"isNative,omitempty"`
	IsLp             bool    `json:"isLp,omitempty"`
	Verified         bool    `json:"verified,omitempty"`
}

// WalletSnapshot is the aggregated view of one wallet. Token order is
// discovery order and carries no meaning. TotalValue is recomputed from the
// token list on every enrichment pass, never adjusted incrementally.
type WalletSnapshot struct {
	Address       string  `json:"address"`
	Tokens        []Token `json:"tokens"`
	TotalValue    float64 `json:"totalValue"`
	TokenCount    int     `json:"tokenCount"`
	PlsBalance    string  `json:"plsBalance"`
	NetworkCount  int     `json:"networkCount"`
	StakingValue  float64 `json:"stakingValue,omitempty"`
	PartialErrors int     `json:"partialErrors,omitempty"`
}

// RecomputeTotal recalculates TotalValue and TokenCount from the token list.
func (s *WalletSnapshot) RecomputeTotal() {
	total := 0.0
	for i := range s.Tokens {
		total += s.Tokens[i].Value
	}
	s.TotalValue = total + s.StakingValue
	s.TokenCount = len(s.Tokens)
}

// lpNameMarkers are substrings that flag a token as a liquidity-pool share.
var lpNameMarkers = []string{"pulsex lp", " lp token", "-lp", "plp "}

// IsLpToken applies the name/symbol heuristic used to flag LP share tokens.
func IsLpToken(symbol, name string) bool {
	sym := strings.ToLower(symbol)
	if sym == "plp" || strings.HasSuffix(sym, "-lp") {
		return true
	}
	lowName := strings.ToLower(name)
	for _, marker := range lpNameMarkers {
		if strings.Contains(lowName, marker) {
			return true
		}
	}
	return false
}
