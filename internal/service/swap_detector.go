package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/proestever/FRENKABALv1-sub005/internal/entity"
	"github.com/proestever/FRENKABALv1-sub005/internal/pkg/metrics"
)

// LogSource feeds the detector with chain head and transfer logs.
type LogSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	TransferLogs(ctx context.Context, fromBlock, toBlock uint64, wallet string) ([]types.Log, error)
}

// SwapFunc receives detected swap events.
type SwapFunc func(event entity.SwapEvent)

// SwapDetector periodically scans recent blocks for transfer logs touching a
// wallet and reports transactions with two or more such logs as probable
// swaps. Each transaction hash is reported at most once per session.
type SwapDetector struct {
	source   LogSource
	wallet   string
	interval time.Duration
	maxFirst uint64
	onSwap   SwapFunc
	logger   *zap.Logger

	mu          sync.Mutex
	running     bool
	cancel      context.CancelFunc
	lastScanned uint64
	seen        map[string]struct{}
}

// NewSwapDetector builds a detector for one wallet address. maxFirstScan
// bounds the very first scan window; later scans resume from lastScanned+1.
func NewSwapDetector(source LogSource, wallet string, interval time.Duration, maxFirstScan uint64, onSwap SwapFunc, logger *zap.Logger) *SwapDetector {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if maxFirstScan == 0 {
		maxFirstScan = 100
	}
	return &SwapDetector{
		source:   source,
		wallet:   strings.ToLower(wallet),
		interval: interval,
		maxFirst: maxFirstScan,
		onSwap:   onSwap,
		logger:   logger.Named("SwapDetector"),
		seen:     make(map[string]struct{}),
	}
}

// Start launches the scan loop. Starting an already-running detector is a
// no-op.
func (d *SwapDetector) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.running = true
	d.cancel = cancel

	go d.loop(ctx)
	d.logger.Info("swap detector started", zap.String("wallet", d.wallet))
}

// Stop halts the scan loop. Idempotent.
func (d *SwapDetector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}
	d.cancel()
	d.running = false
	d.logger.Info("swap detector stopped", zap.String("wallet", d.wallet))
}

// Running reports whether the loop is active.
func (d *SwapDetector) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *SwapDetector) loop(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A failed scan never kills the loop; the next tick retries.
			if err := d.ScanOnce(ctx); err != nil && ctx.Err() == nil {
				d.logger.Warn("scan failed", zap.String("wallet", d.wallet), zap.Error(err))
			}
		}
	}
}

// ScanOnce performs one scan tick: it reads the chain head, scans the next
// block window for transfer logs referencing the wallet, and emits swap
// events for unseen multi-transfer transactions.
func (d *SwapDetector) ScanOnce(ctx context.Context) error {
	current, err := d.source.BlockNumber(ctx)
	if err != nil {
		return err
	}

	fromBlock := d.nextFrom(current)
	if fromBlock > current {
		// No new blocks; nothing to do this tick. The guard is strict:
		// fromBlock == current means block `current` is still unscanned, so
		// an >= comparison here would skip it.
		return nil
	}

	logs, err := d.source.TransferLogs(ctx, fromBlock, current, d.wallet)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.lastScanned = current
	d.mu.Unlock()

	for _, event := range d.groupSwaps(logs) {
		metrics.SwapEventsTotal.Inc()
		if d.onSwap != nil {
			d.onSwap(event)
		}
	}
	return nil
}

// nextFrom computes the inclusive start of this scan window.
func (d *SwapDetector) nextFrom(current uint64) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastScanned > 0 {
		return d.lastScanned + 1
	}
	if current > d.maxFirst {
		return current - d.maxFirst + 1
	}
	return 1
}

// groupSwaps buckets transfer logs by transaction and returns events for
// transactions with at least two logs that have not been reported before.
func (d *SwapDetector) groupSwaps(logs []types.Log) []entity.SwapEvent {
	byTx := make(map[common.Hash][]types.Log)
	for _, log := range logs {
		byTx[log.TxHash] = append(byTx[log.TxHash], log)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var events []entity.SwapEvent
	for txHash, txLogs := range byTx {
		if len(txLogs) < 2 {
			continue
		}
		hash := strings.ToLower(txHash.Hex())
		if _, ok := d.seen[hash]; ok {
			continue
		}
		d.seen[hash] = struct{}{}

		event := entity.SwapEvent{
			TransactionHash: hash,
			Timestamp:       time.Now(),
		}
		walletTopic := common.BytesToHash(common.LeftPadBytes(common.HexToAddress(d.wallet).Bytes(), 32))
		for _, log := range txLogs {
			if len(log.Topics) < 3 {
				continue
			}
			switch {
			case log.Topics[2] == walletTopic && event.TokenIn == "":
				event.TokenIn = strings.ToLower(log.Address.Hex())
			case log.Topics[1] == walletTopic && event.TokenOut == "":
				event.TokenOut = strings.ToLower(log.Address.Hex())
			}
		}
		events = append(events, event)

		d.logger.Debug("swap detected",
			zap.String("tx", hash),
			zap.String("tokenIn", event.TokenIn),
			zap.String("tokenOut", event.TokenOut),
			zap.Int("transferLogs", len(txLogs)))
	}
	return events
}
