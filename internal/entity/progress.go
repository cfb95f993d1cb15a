package entity

import "time"

// LoadingStatus is the aggregation status reported to clients.
type LoadingStatus string

const (
	StatusIdle     LoadingStatus = "idle"
	StatusLoading  LoadingStatus = "loading"
	StatusComplete LoadingStatus = "complete"
	StatusError    LoadingStatus = "error"
)

// LoadingProgress is emitted by the aggregator after discovery and after each
// enrichment phase. Status moves strictly forward within one aggregation and
// only resets when the tracked address changes.
type LoadingProgress struct {
	Address      string        `json:"address"`
	CurrentBatch int           `json:"currentBatch"`
	TotalBatches int           `json:"totalBatches"`
	Status       LoadingStatus `json:"status"`
	Message      string        `json:"message"`
}

// BackgroundBatchProgress reports server-side enrichment completion for one
// wallet. CompletedTokens never decreases within one polling session.
type BackgroundBatchProgress struct {
	IsActive        bool      `json:"isActive"`
	TotalTokens     int       `json:"totalTokens"`
	CompletedTokens int       `json:"completedTokens"`
	LastUpdate      time.Time `json:"lastUpdate"`
}

// SwapEvent describes a transaction that produced at least two transfer logs
// touching the watched wallet, which is how we spot probable swaps.
type SwapEvent struct {
	TransactionHash string    `json:"transactionHash"`
	Timestamp       time.Time `json:"timestamp"`
	TokenIn         string    `json:"tokenIn,omitempty"`
	TokenOut        string    `json:"tokenOut,omitempty"`
}
