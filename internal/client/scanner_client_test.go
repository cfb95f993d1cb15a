package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/proestever/FRENKABALv1-sub005/internal/entity"
)

func newTestScannerClient(t *testing.T, baseURL string, maxRetries int) ScannerClient {
	t.Helper()
	return NewScannerClient(ScannerOptions{
		BaseURL:        baseURL,
		RequestTimeout: 2 * time.Second,
		MaxRetries:     maxRetries,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  5 * time.Millisecond,
		RatePerSecond:  1000,
		RateBurst:      1000,
	}, zaptest.NewLogger(t))
}

func TestScannerClient_GetAddress(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/addresses/0xabc0000000000000000000000000000000000001", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hash":"0xAbC0000000000000000000000000000000000001","coin_balance":"12345","is_contract":false}`))
	}))
	defer server.Close()

	c := newTestScannerClient(t, server.URL, 0)
	addr, err := c.GetAddress(context.Background(), "0xAbC0000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, "12345", addr.CoinBalance)
	assert.False(t, addr.IsContract)
}

func TestScannerClient_GetTokenBalances(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/addresses/0xabc0000000000000000000000000000000000001/erc-20", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"token":{"address":"0xToken1","symbol":"ONE","name":"Token One","decimals":"18","icon_url":"","type":"ERC-20"},"value":"1000"},
			{"token":{"address":"0xToken2","symbol":"TWO","name":"Token Two","decimals":"8"},"value":"2000"}
		]`))
	}))
	defer server.Close()

	c := newTestScannerClient(t, server.URL, 0)
	balances, err := c.GetTokenBalances(context.Background(), "0xABC0000000000000000000000000000000000001")
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, "ONE", balances[0].Token.Symbol)
	assert.Equal(t, "2000", balances[1].Value)
}

func TestScannerClient_GetAddressTokens(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/addresses/0xabc0000000000000000000000000000000000001/tokens", r.URL.Path)
		assert.Equal(t, "ERC-20", r.URL.Query().Get("type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"token":{"address":"0xToken1","symbol":"ONE","name":"Token One","decimals":"18"},"value":"1000"}
		],"next_page_params":null}`))
	}))
	defer server.Close()

	c := newTestScannerClient(t, server.URL, 0)
	balances, err := c.GetAddressTokens(context.Background(), "0xABC0000000000000000000000000000000000001")
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.Equal(t, "ONE", balances[0].Token.Symbol)
	assert.Equal(t, "1000", balances[0].Value)
}

func TestScannerClient_MalformedBodyIsFetchError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"hash": "0xabc", "coin_balance"`))
	}))
	defer server.Close()

	c := newTestScannerClient(t, server.URL, 0)
	_, err := c.GetAddress(context.Background(), "0xabc0000000000000000000000000000000000001")

	var fe *entity.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "scanner", fe.Source)
}

func TestScannerClient_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"hash":"0xabc","coin_balance":"1"}`))
	}))
	defer server.Close()

	c := newTestScannerClient(t, server.URL, 3)
	addr, err := c.GetAddress(context.Background(), "0xabc0000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, "1", addr.CoinBalance)
	assert.Equal(t, int32(3), hits.Load())
}

func TestScannerClient_RateLimitSurfacesRetryAfter(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := newTestScannerClient(t, server.URL, 1)
	_, err := c.GetAddress(context.Background(), "0xabc0000000000000000000000000000000000001")

	var rl *entity.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, "scanner", rl.Source)
	assert.Equal(t, time.Second, rl.RetryAfter)
}

func TestScannerClient_ClientErrorNotRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not found"}`))
	}))
	defer server.Close()

	c := newTestScannerClient(t, server.URL, 5)
	_, err := c.GetAddress(context.Background(), "0xabc0000000000000000000000000000000000001")

	var fe *entity.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
	assert.Equal(t, int32(1), hits.Load(), "4xx responses are terminal")
}
