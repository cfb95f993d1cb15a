package restapi

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gin-gonic/gin"

	"github.com/proestever/FRENKABALv1-sub005/internal/bookmark"
	"github.com/proestever/FRENKABALv1-sub005/internal/cache"
	"github.com/proestever/FRENKABALv1-sub005/internal/config"
	"github.com/proestever/FRENKABALv1-sub005/internal/entity"
	"github.com/proestever/FRENKABALv1-sub005/internal/service"
	"github.com/proestever/FRENKABALv1-sub005/internal/sharecard"
)

const (
	testWallet = "0xabc0000000000000000000000000000000000001"
	testToken  = "0x00000000000000000000000000000000000000aa"
	testWPLS   = "0xa1077a294dde1b09bb078844df40758a5d0f9a27"
)

type stubBalances struct{}

func (stubBalances) GetAddress(_ context.Context, _ string) (*entity.ScannerAddress, error) {
	return &entity.ScannerAddress{Hash: testWallet, CoinBalance: "1000000000000000000"}, nil
}

func (stubBalances) GetTokenBalances(_ context.Context, _ string) ([]entity.ScannerTokenBalance, error) {
	return []entity.ScannerTokenBalance{{
		Token: entity.ScannerToken{Address: testToken, Symbol: "TKN", Name: "Test Token", Decimals: "18"},
		Value: "2000000000000000000",
	}}, nil
}

func (stubBalances) GetAddressTokens(_ context.Context, _ string) ([]entity.ScannerTokenBalance, error) {
	return nil, nil
}

type stubTokenReader struct{}

func (stubTokenReader) TokenBalance(_ context.Context, _, _ string) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (stubTokenReader) NativeBalance(_ context.Context, _ string) (*big.Int, error) {
	return big.NewInt(1e18), nil
}

type stubPrices struct{}

func (stubPrices) GetTokenQuotes(_ context.Context, addresses []string) (map[string]entity.Quote, error) {
	out := make(map[string]entity.Quote, len(addresses))
	for _, addr := range addresses {
		out[strings.ToLower(addr)] = entity.Quote{
			Address:  strings.ToLower(addr),
			PriceUsd: 2.0,
			LogoURL:  "https://cdn.example/" + strings.ToLower(addr) + ".png",
		}
	}
	return out, nil
}

type stubLogSource struct{}

func (stubLogSource) BlockNumber(_ context.Context) (uint64, error) { return 100, nil }

func (stubLogSource) TransferLogs(_ context.Context, _, _ uint64, _ string) ([]types.Log, error) {
	return nil, nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	handler := newTestHandler(t)
	return SetupRouter(handler, zaptest.NewLogger(t))
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t)

	agg := service.NewAggregator(
		stubBalances{},
		stubTokenReader{},
		stubPrices{},
		cache.NewStore[string](cache.LogoTTL, nil, nil),
		cache.NewStore[entity.PricePoint](cache.PriceTTL, nil, nil),
		config.AggregatorConfig{MaxConcurrentEnrichments: 2, WrappedNativeAddress: testWPLS},
		config.StakingConfig{},
		30,
		service.NewProgressTracker(),
		logger,
	)

	snapshots := gocache.New(time.Minute, time.Minute)
	poller := service.NewBackgroundPoller(
		func(_ context.Context, _ string) (int, int, error) { return 1, 1, nil },
		time.Millisecond, 2, logger,
	)

	bookmarks, err := bookmark.NewStore(filepath.Join(t.TempDir(), "bookmarks.json"))
	require.NoError(t, err)

	card := sharecard.NewRenderer("", "", logger)

	newDetector := func(wallet string, onSwap service.SwapFunc) *service.SwapDetector {
		return service.NewSwapDetector(stubLogSource{}, wallet, time.Second, 100, onSwap, logger)
	}

	handler := NewHandler(agg, poller, bookmarks, card, newDetector, snapshots, logger)
	t.Cleanup(handler.StopAll)
	return handler
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)
	w := doRequest(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestGetWallet_InvalidAddress(t *testing.T) {
	router := newTestRouter(t)
	w := doRequest(router, http.MethodGet, "/api/wallet/not-an-address", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "validation failed")
}

func TestGetWallet_AggregatesThenServesFromCache(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/api/wallet/"+testWallet, "")
	require.Equal(t, http.StatusOK, w.Code)

	var first struct {
		Data   entity.WalletSnapshot `json:"data"`
		Cached bool                  `json:"cached"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.False(t, first.Cached)
	assert.Equal(t, testWallet, first.Data.Address)
	assert.Equal(t, 2, first.Data.TokenCount)
	assert.InDelta(t, 6.0, first.Data.TotalValue, 1e-9, "1 PLS + 2 TKN at $2 each")

	w = doRequest(router, http.MethodGet, "/api/wallet/"+testWallet, "")
	require.Equal(t, http.StatusOK, w.Code)

	var second struct {
		Cached bool `json:"cached"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.True(t, second.Cached)
}

func TestGetWalletAll_ForcesRefresh(t *testing.T) {
	router := newTestRouter(t)

	doRequest(router, http.MethodGet, "/api/wallet/"+testWallet, "")
	w := doRequest(router, http.MethodGet, "/api/wallet/"+testWallet+"/all", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Cached bool `json:"cached"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Cached, "/all bypasses the snapshot cache")
}

func TestLoadingProgress(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/api/loading-progress?address="+testWallet, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Progress entity.LoadingProgress `json:"progress"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, entity.StatusIdle, resp.Progress.Status)

	doRequest(router, http.MethodGet, "/api/wallet/"+testWallet, "")
	w = doRequest(router, http.MethodGet, "/api/loading-progress?address="+testWallet, "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, entity.StatusComplete, resp.Progress.Status)
}

func TestTokenLogosBatch(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/token-logos/batch", `{"addresses":["`+testToken+`"]}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Logos map[string]string `json:"logos"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "https://cdn.example/"+testToken+".png", resp.Logos[testToken])

	w = doRequest(router, http.MethodPost, "/api/token-logos/batch", `{"nope":true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTokenPrice(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/api/token-price/"+testToken, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Address string  `json:"address"`
		Price   float64 `json:"price"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, testToken, resp.Address)
	assert.InDelta(t, 2.0, resp.Price, 1e-9)
}

func TestEnrichTokens(t *testing.T) {
	router := newTestRouter(t)

	body := `{"tokens":[{"address":"` + testToken + `","decimals":18,"balance":"1000000000000000000"}]}`
	w := doRequest(router, http.MethodPost, "/api/token/enrich", body)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Tokens []entity.Token `json:"tokens"`
		Failed int            `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Tokens, 1)
	assert.Zero(t, resp.Failed)
	assert.InDelta(t, 2.0, resp.Tokens[0].Price, 1e-9)
	assert.InDelta(t, 2.0, resp.Tokens[0].Value, 1e-9)
}

func TestBookmarksLifecycle(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/bookmarks",
		`{"address":"0x1111111111111111111111111111111111111111","label":"main","isFavorite":true}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/api/bookmarks", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Bookmarks []bookmark.Bookmark `json:"bookmarks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Bookmarks, 1)
	assert.Equal(t, "main", list.Bookmarks[0].Label)

	w = doRequest(router, http.MethodGet, "/api/bookmarks/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "bookmarks.csv")
	assert.True(t, strings.HasPrefix(w.Body.String(), "Wallet Address,Label,Notes,Is Favorite"))

	w = doRequest(router, http.MethodDelete, "/api/bookmarks/0x1111111111111111111111111111111111111111", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestImportBookmarks_DropsInvalidRows(t *testing.T) {
	router := newTestRouter(t)

	csvBody := "Wallet Address,Label,Notes,Is Favorite\n" +
		"0x1111111111111111111111111111111111111111,ok,,true\n" +
		"0xbad,dropped,,false\n"

	req := httptest.NewRequest(http.MethodPost, "/api/bookmarks/import", strings.NewReader(csvBody))
	req.Header.Set("Content-Type", "text/csv")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"imported":1}`, w.Body.String())
}

func TestSwapWatchLifecycle(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/swap-watch/"+testWallet, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/api/swap-watch/"+testWallet+"/events", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Watching bool               `json:"watching"`
		Swaps    []entity.SwapEvent `json:"swaps"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Watching)
	assert.Empty(t, resp.Swaps)

	w = doRequest(router, http.MethodDelete, "/api/swap-watch/"+testWallet, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(router, http.MethodGet, "/api/swap-watch/"+testWallet+"/events", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Watching)
}

func TestStopAll_ShutsDownBackgroundWork(t *testing.T) {
	handler := newTestHandler(t)
	router := SetupRouter(handler, zaptest.NewLogger(t))

	w := doRequest(router, http.MethodGet, "/api/wallet/"+testWallet, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodPost, "/api/swap-watch/"+testWallet, "")
	require.Equal(t, http.StatusOK, w.Code)

	require.Eventually(t, func() bool {
		handler.mu.RLock()
		defer handler.mu.RUnlock()
		return len(handler.batch) > 0
	}, time.Second, 2*time.Millisecond, "poller reports batch progress")

	handler.StopAll()

	assert.False(t, handler.poller.Active(testWallet))
	handler.mu.RLock()
	assert.Empty(t, handler.batch)
	assert.Empty(t, handler.detectors)
	handler.mu.RUnlock()
}
