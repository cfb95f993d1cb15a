package service

import (
	"sync"

	"github.com/proestever/FRENKABALv1-sub005/internal/entity"
)

// ProgressTracker holds per-address aggregation progress. Status moves only
// forward (idle -> loading -> complete|error) within one aggregation; Begin
// is the single reset point, invoked when an address is (re)aggregated.
type ProgressTracker struct {
	mu       sync.RWMutex
	progress map[string]entity.LoadingProgress
}

// NewProgressTracker creates an empty tracker.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{progress: make(map[string]entity.LoadingProgress)}
}

// Begin resets progress for address and marks it loading.
func (t *ProgressTracker) Begin(address string, totalBatches int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress[address] = entity.LoadingProgress{
		Address:      address,
		CurrentBatch: 1,
		TotalBatches: totalBatches,
		Status:       entity.StatusLoading,
		Message:      message,
	}
}

// Advance moves the loading progress to the given batch. Terminal states are
// never left by Advance; a stale call after Complete or Fail is dropped.
func (t *ProgressTracker) Advance(address string, batch int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.progress[address]
	if !ok || p.Status != entity.StatusLoading {
		return
	}
	if batch > p.CurrentBatch {
		p.CurrentBatch = batch
	}
	p.Message = message
	t.progress[address] = p
}

// Complete marks the aggregation finished.
func (t *ProgressTracker) Complete(address, message string) {
	t.setTerminal(address, entity.StatusComplete, message)
}

// Fail marks the aggregation failed.
func (t *ProgressTracker) Fail(address, message string) {
	t.setTerminal(address, entity.StatusError, message)
}

func (t *ProgressTracker) setTerminal(address string, status entity.LoadingStatus, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.progress[address]
	if !ok {
		p = entity.LoadingProgress{Address: address, TotalBatches: 1, CurrentBatch: 1}
	}
	if p.Status == entity.StatusComplete || p.Status == entity.StatusError {
		return
	}
	p.Status = status
	p.Message = message
	p.CurrentBatch = p.TotalBatches
	t.progress[address] = p
}

// Get returns the progress for address, or an idle record when unknown.
func (t *ProgressTracker) Get(address string) entity.LoadingProgress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if p, ok := t.progress[address]; ok {
		return p
	}
	return entity.LoadingProgress{Address: address, Status: entity.StatusIdle}
}
