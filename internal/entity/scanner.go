package entity

// ScannerAddress is the response shape of the block explorer's
// /addresses/{address} endpoint. Only the fields we consume are mapped.
type ScannerAddress struct {
	Hash        string `json:"hash"`
	CoinBalance string `json:"coin_balance"`
	IsContract  bool   `json:"is_contract"`
}

// ScannerToken is the token descriptor embedded in explorer balance entries.
// The explorer serializes decimals as a string.
type ScannerToken struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals string `json:"decimals"`
	IconURL  string `json:"icon_url"`
	Type     string `json:"type"`
	Verified bool   `json:"is_verified"`
}

// ScannerTokenBalance is one entry of /addresses/{address}/erc-20.
type ScannerTokenBalance struct {
	Token ScannerToken `json:"token"`
	Value string       `json:"value"`
}

// ScannerTokensPage is the paged response of /addresses/{address}/tokens.
// The entries carry the same token/value shape as the erc-20 listing.
type ScannerTokensPage struct {
	Items []ScannerTokenBalance `json:"items"`
}
