// Package restapi exposes the aggregator over HTTP.
package restapi

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/proestever/FRENKABALv1-sub005/internal/bookmark"
	"github.com/proestever/FRENKABALv1-sub005/internal/entity"
	"github.com/proestever/FRENKABALv1-sub005/internal/service"
	"github.com/proestever/FRENKABALv1-sub005/internal/sharecard"
)

// maxRecentSwaps bounds the per-wallet swap event buffer.
const maxRecentSwaps = 50

// DetectorFactory builds a swap detector for a wallet, reporting events
// through onSwap.
type DetectorFactory func(wallet string, onSwap service.SwapFunc) *service.SwapDetector

// Handler carries the service dependencies for all HTTP endpoints.
type Handler struct {
	agg         *service.Aggregator
	poller      *service.BackgroundPoller
	bookmarks   *bookmark.Store
	card        *sharecard.Renderer
	snapshots   *gocache.Cache
	newDetector DetectorFactory
	logger      *zap.Logger

	mu        sync.RWMutex
	batch     map[string]entity.BackgroundBatchProgress
	detectors map[string]*service.SwapDetector
	swaps     map[string][]entity.SwapEvent
}

// NewHandler creates a Handler. The snapshot cache is shared with the
// background poller's completion check, so the caller owns it.
func NewHandler(
	agg *service.Aggregator,
	poller *service.BackgroundPoller,
	bookmarks *bookmark.Store,
	card *sharecard.Renderer,
	newDetector DetectorFactory,
	snapshots *gocache.Cache,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		agg:         agg,
		poller:      poller,
		bookmarks:   bookmarks,
		card:        card,
		snapshots:   snapshots,
		newDetector: newDetector,
		logger:      logger.Named("RestAPI"),
		batch:       make(map[string]entity.BackgroundBatchProgress),
		detectors:   make(map[string]*service.SwapDetector),
		swaps:       make(map[string][]entity.SwapEvent),
	}
}

// GetWallet returns the wallet snapshot, serving from the snapshot cache
// when a fresh copy exists.
func (h *Handler) GetWallet(c *gin.Context) {
	address, err := service.NormalizeAddress(c.Param("address"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	if cached, found := h.snapshots.Get(address); found {
		c.JSON(http.StatusOK, gin.H{"data": cached, "cached": true})
		return
	}
	h.aggregateAndServe(c, address)
}

// GetWalletAll forces a full re-aggregation, bypassing the snapshot cache.
func (h *Handler) GetWalletAll(c *gin.Context) {
	address, err := service.NormalizeAddress(c.Param("address"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.snapshots.Delete(address)
	h.aggregateAndServe(c, address)
}

func (h *Handler) aggregateAndServe(c *gin.Context, address string) {
	snapshot, err := h.agg.Aggregate(c.Request.Context(), address)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.snapshots.SetDefault(address, snapshot)

	// Prices that missed the first pass fill in from the background poller.
	h.poller.Start(address, snapshot.TokenCount, h.recordBatchProgress)

	c.JSON(http.StatusOK, gin.H{"data": snapshot, "cached": false})
}

func (h *Handler) recordBatchProgress(address string, progress entity.BackgroundBatchProgress) {
	h.mu.Lock()
	h.batch[address] = progress
	h.mu.Unlock()
}

// LoadingProgress reports aggregation progress for ?address=0x...
func (h *Handler) LoadingProgress(c *gin.Context) {
	address, err := service.NormalizeAddress(c.Query("address"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.mu.RLock()
	background := h.batch[address]
	h.mu.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"progress":   h.agg.Progress().Get(address),
		"background": background,
	})
}

type logoBatchRequest struct {
	Addresses []string `json:"addresses" binding:"required"`
}

// TokenLogosBatch resolves logos for a list of token addresses.
func (h *Handler) TokenLogosBatch(c *gin.Context) {
	var req logoBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	logos := h.agg.LogoBatch(c.Request.Context(), req.Addresses)
	c.JSON(http.StatusOK, gin.H{"logos": logos})
}

// TokenPrice returns the USD price for a single token address.
func (h *Handler) TokenPrice(c *gin.Context) {
	address := strings.ToLower(strings.TrimSpace(c.Param("address")))
	price, err := h.agg.TokenPrice(c.Request.Context(), address)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": address, "price": price})
}

type enrichRequest struct {
	Tokens []entity.Token `json:"tokens" binding:"required"`
}

// EnrichTokens fills prices, values and logos for a caller-supplied token
// list and reports how many tokens could not be enriched.
func (h *Handler) EnrichTokens(c *gin.Context) {
	var req enrichRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	failed := h.agg.EnrichTokens(c.Request.Context(), req.Tokens)
	c.JSON(http.StatusOK, gin.H{"tokens": req.Tokens, "failed": failed})
}

// WalletCard renders the wallet snapshot as a PNG share card.
func (h *Handler) WalletCard(c *gin.Context) {
	address, err := service.NormalizeAddress(c.Param("address"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	var snapshot *entity.WalletSnapshot
	if cached, found := h.snapshots.Get(address); found {
		snapshot = cached.(*entity.WalletSnapshot)
	} else {
		snapshot, err = h.agg.Aggregate(c.Request.Context(), address)
		if err != nil {
			h.writeError(c, err)
			return
		}
		h.snapshots.SetDefault(address, snapshot)
	}

	png, err := h.card.Render(snapshot)
	if err != nil {
		h.logger.Error("share card rendering failed", zap.String("address", address), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "card rendering failed"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// ListBookmarks returns all saved bookmarks.
func (h *Handler) ListBookmarks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"bookmarks": h.bookmarks.List()})
}

// PutBookmark creates or updates a bookmark.
func (h *Handler) PutBookmark(c *gin.Context) {
	var bm bookmark.Bookmark
	if err := c.ShouldBindJSON(&bm); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if err := h.bookmarks.Put(bm); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved": bm.Address})
}

// DeleteBookmark removes a bookmark; unknown addresses are a no-op.
func (h *Handler) DeleteBookmark(c *gin.Context) {
	if err := h.bookmarks.Delete(c.Param("address")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ExportBookmarks streams all bookmarks as a CSV attachment.
func (h *Handler) ExportBookmarks(c *gin.Context) {
	csvData, err := bookmark.ToCSV(h.bookmarks.List())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="bookmarks.csv"`)
	c.Data(http.StatusOK, "text/csv", []byte(csvData))
}

// ImportBookmarks parses a CSV request body and stores the valid rows.
// Rows with malformed addresses are dropped without failing the import.
func (h *Handler) ImportBookmarks(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reading request body: " + err.Error()})
		return
	}
	imported, err := bookmark.FromCSV(string(body))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid CSV: " + err.Error()})
		return
	}
	if err := h.bookmarks.Put(imported...); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": len(imported)})
}

// WatchSwaps starts a swap detector for the wallet. Starting an already
// watched wallet is a no-op.
func (h *Handler) WatchSwaps(c *gin.Context) {
	address, err := service.NormalizeAddress(c.Param("address"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.mu.Lock()
	if _, running := h.detectors[address]; !running {
		detector := h.newDetector(address, func(event entity.SwapEvent) {
			h.recordSwap(address, event)
		})
		h.detectors[address] = detector
		detector.Start()
	}
	h.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"watching": address})
}

// UnwatchSwaps stops the detector for the wallet, if one is running.
func (h *Handler) UnwatchSwaps(c *gin.Context) {
	address, err := service.NormalizeAddress(c.Param("address"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.mu.Lock()
	if detector, running := h.detectors[address]; running {
		detector.Stop()
		delete(h.detectors, address)
	}
	h.mu.Unlock()

	c.Status(http.StatusNoContent)
}

// RecentSwaps returns buffered swap events for a watched wallet.
func (h *Handler) RecentSwaps(c *gin.Context) {
	address, err := service.NormalizeAddress(c.Param("address"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.mu.RLock()
	_, watching := h.detectors[address]
	events := make([]entity.SwapEvent, len(h.swaps[address]))
	copy(events, h.swaps[address])
	h.mu.RUnlock()

	c.JSON(http.StatusOK, gin.H{"watching": watching, "swaps": events})
}

func (h *Handler) recordSwap(address string, event entity.SwapEvent) {
	h.mu.Lock()
	buffer := append(h.swaps[address], event)
	if len(buffer) > maxRecentSwaps {
		buffer = buffer[len(buffer)-maxRecentSwaps:]
	}
	h.swaps[address] = buffer
	h.mu.Unlock()
}

// Health is the liveness endpoint.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// StopAll shuts down background pollers and detectors and drops buffered
// batch progress. Used on server shutdown.
func (h *Handler) StopAll() {
	h.poller.StopAll()

	h.mu.Lock()
	defer h.mu.Unlock()
	for address, detector := range h.detectors {
		detector.Stop()
		delete(h.detectors, address)
	}
	h.batch = make(map[string]entity.BackgroundBatchProgress)
}

// writeError maps domain errors onto HTTP status codes.
func (h *Handler) writeError(c *gin.Context, err error) {
	var (
		validationErr *entity.ValidationError
		rateLimitErr  *entity.RateLimitError
		timeoutErr    *entity.TimeoutError
		fetchErr      *entity.FetchError
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
	case errors.As(err, &rateLimitErr):
		if rateLimitErr.RetryAfter > 0 {
			c.Header("Retry-After", rateLimitErr.RetryAfter.String())
		}
		c.JSON(http.StatusTooManyRequests, gin.H{"error": rateLimitErr.Error()})
	case errors.As(err, &timeoutErr):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": timeoutErr.Error()})
	case errors.As(err, &fetchErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": fetchErr.Error()})
	default:
		h.logger.Error("unhandled request error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
