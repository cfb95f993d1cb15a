package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/proestever/FRENKABALv1-sub005/internal/entity"
)

// CompletionFunc reports how many of a wallet's tokens have resolved prices.
type CompletionFunc func(ctx context.Context, address string) (completed, total int, err error)

// ProgressFunc receives poller progress updates.
type ProgressFunc func(address string, progress entity.BackgroundBatchProgress)

// pollSession is one active polling loop. The id is checked by the loop's
// callbacks so results from a superseded session are silently discarded.
type pollSession struct {
	id     uint64
	cancel context.CancelFunc
}

// BackgroundPoller repeatedly asks the completion source how far enrichment
// for a wallet has progressed, until done or the poll budget runs out.
// At most one poll runs per address; starting again replaces the prior poll.
type BackgroundPoller struct {
	completion CompletionFunc
	interval   time.Duration
	maxPolls   int
	logger     *zap.Logger

	mu       sync.Mutex
	sessions map[string]*pollSession
	nextID   uint64
}

// NewBackgroundPoller builds a poller. The default budget is 24 polls at a
// 5 second interval, a 120s wall-clock ceiling.
func NewBackgroundPoller(completion CompletionFunc, interval time.Duration, maxPolls int, logger *zap.Logger) *BackgroundPoller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if maxPolls <= 0 {
		maxPolls = 24
	}
	return &BackgroundPoller{
		completion: completion,
		interval:   interval,
		maxPolls:   maxPolls,
		logger:     logger.Named("BackgroundPoller"),
		sessions:   make(map[string]*pollSession),
	}
}

// Start begins polling for address, cancelling any prior poll for the same
// address first. onProgress receives every update including the terminal one
// with IsActive false.
func (p *BackgroundPoller) Start(address string, expectedTotal int, onProgress ProgressFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	p.mu.Lock()
	if prior, ok := p.sessions[address]; ok {
		prior.cancel()
	}
	p.nextID++
	session := &pollSession{id: p.nextID, cancel: cancel}
	p.sessions[address] = session
	p.mu.Unlock()

	p.logger.Debug("poll session started",
		zap.String("address", address),
		zap.Uint64("session", session.id),
		zap.Int("expectedTotal", expectedTotal))

	go p.run(ctx, address, session.id, expectedTotal, onProgress)
}

// Stop cancels the active poll for address. Calling it with no active poll
// is a no-op.
func (p *BackgroundPoller) Stop(address string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if session, ok := p.sessions[address]; ok {
		session.cancel()
		delete(p.sessions, address)
	}
}

// StopAll cancels every active poll. Used on server shutdown.
func (p *BackgroundPoller) StopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for address, session := range p.sessions {
		session.cancel()
		delete(p.sessions, address)
	}
}

// Active reports whether a poll is currently running for address.
func (p *BackgroundPoller) Active(address string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.sessions[address]
	return ok
}

func (p *BackgroundPoller) run(ctx context.Context, address string, sessionID uint64, expectedTotal int, onProgress ProgressFunc) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	highWater := 0
	total := expectedTotal

	for poll := 1; poll <= p.maxPolls; poll++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		completed, reportedTotal, err := p.completion(ctx, address)
		if !p.isCurrent(address, sessionID) {
			return
		}
		if err != nil {
			p.logger.Warn("completion check failed",
				zap.String("address", address), zap.Int("poll", poll), zap.Error(err))
			continue
		}

		if reportedTotal > 0 {
			total = reportedTotal
		}
		// completedTokens never moves backwards within a session.
		if completed > highWater {
			highWater = completed
		}

		done := total > 0 && highWater >= total
		p.emit(address, sessionID, onProgress, entity.BackgroundBatchProgress{
			IsActive:        !done,
			TotalTokens:     total,
			CompletedTokens: highWater,
			LastUpdate:      time.Now(),
		})

		if done {
			p.finish(address, sessionID)
			p.logger.Debug("poll session completed",
				zap.String("address", address), zap.Int("polls", poll))
			return
		}
	}

	// Budget exhausted: surface as completed-but-partial, not a failure.
	p.emit(address, sessionID, onProgress, entity.BackgroundBatchProgress{
		IsActive:        false,
		TotalTokens:     total,
		CompletedTokens: highWater,
		LastUpdate:      time.Now(),
	})
	p.finish(address, sessionID)
	p.logger.Info("poll session timed out",
		zap.String("address", address),
		zap.Int("completed", highWater),
		zap.Int("total", total),
		zap.Error(&entity.TimeoutError{Op: "background batch poll", Budget: time.Duration(p.maxPolls) * p.interval}))
}

func (p *BackgroundPoller) emit(address string, sessionID uint64, onProgress ProgressFunc, progress entity.BackgroundBatchProgress) {
	if onProgress == nil || !p.isCurrent(address, sessionID) {
		return
	}
	onProgress(address, progress)
}

func (p *BackgroundPoller) isCurrent(address string, sessionID uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	session, ok := p.sessions[address]
	return ok && session.id == sessionID
}

func (p *BackgroundPoller) finish(address string, sessionID uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if session, ok := p.sessions[address]; ok && session.id == sessionID {
		session.cancel()
		delete(p.sessions, address)
	}
}
