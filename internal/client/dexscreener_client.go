package client

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/proestever/FRENKABALv1-sub005/internal/entity"
	"github.com/proestever/FRENKABALv1-sub005/internal/pkg/metrics"
	"github.com/proestever/FRENKABALv1-sub005/internal/pkg/retry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	stablecoinUSDCSymbol = "USDC"
	stablecoinUSDTSymbol = "USDT"
	stablecoinDAISymbol  = "DAI"
)

var stablecoinSymbols = map[string]struct{}{
	stablecoinUSDCSymbol: {},
	stablecoinUSDTSymbol: {},
	stablecoinDAISymbol:  {},
}

// DEXScreenerClient defines the interface for interacting with the DEX Screener API.
type DEXScreenerClient interface {
	GetTokenQuotes(ctx context.Context, tokenAddresses []string) (map[string]entity.Quote, error)
}

type dexScreenerClientImpl struct {
	client              *fasthttp.Client
	baseURL             string
	timeout             time.Duration
	retryOpts           retry.Options
	logger              *zap.Logger
	maxTokensPerRequest int
}

// NewDEXScreenerClient creates a new instance of dexScreenerClientImpl.
func NewDEXScreenerClient(baseURL string, timeout time.Duration, maxTokensPerRequest, maxRetries int, retryBaseDelay time.Duration, logger *zap.Logger) DEXScreenerClient {
	return &dexScreenerClientImpl{
		client:              &fasthttp.Client{},
		baseURL:             strings.TrimRight(baseURL, "/"),
		timeout:             timeout,
		retryOpts:           retry.Options{MaxRetries: maxRetries, BaseDelay: retryBaseDelay, MaxDelay: 5 * time.Second},
		logger:              logger.Named("DEXScreenerClient"),
		maxTokensPerRequest: maxTokensPerRequest,
	}
}

// GetTokenQuotes fetches pairs for the given token addresses and distills the
// best USD quote per token. Result keys are lowercased addresses; tokens with
// no usable pair are simply absent from the map.
func (c *dexScreenerClientImpl) GetTokenQuotes(ctx context.Context, tokenAddresses []string) (map[string]entity.Quote, error) {
	if len(tokenAddresses) == 0 {
		return nil, fmt.Errorf("tokenAddresses cannot be empty")
	}
	if len(tokenAddresses) > c.maxTokensPerRequest {
		c.logger.Warn("Number of token addresses exceeds maxTokensPerRequest",
			zap.Int("requestedCount", len(tokenAddresses)),
			zap.Int("maxAllowed", c.maxTokensPerRequest))
		return nil, fmt.Errorf("number of token addresses (%d) exceeds max tokens per request (%d)", len(tokenAddresses), c.maxTokensPerRequest)
	}

	requestURL := fmt.Sprintf("%s/latest/dex/tokens/%s", c.baseURL, strings.Join(tokenAddresses, ","))
	c.logger.Debug("Requesting token pairs from DEX Screener", zap.String("url", requestURL))

	var pairs []entity.PairData
	err := retry.Do(ctx, c.retryOpts, func() error {
		var fetchErr error
		pairs, fetchErr = c.fetchPairs(ctx, requestURL)
		return fetchErr
	})
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues("dexscreener", "error").Inc()
		return nil, err
	}
	metrics.UpstreamRequestsTotal.WithLabelValues("dexscreener", "ok").Inc()

	quotes := make(map[string]entity.Quote, len(tokenAddresses))
	for _, address := range tokenAddresses {
		if quote, ok := c.selectBestQuote(pairs, address); ok {
			quotes[strings.ToLower(address)] = quote
		} else {
			c.logger.Debug("No usable pair for token", zap.String("tokenAddress", address))
		}
	}
	return quotes, nil
}

func (c *dexScreenerClientImpl) fetchPairs(ctx context.Context, requestURL string) ([]entity.PairData, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(requestURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.SetContentTypeBytes([]byte("application/json"))

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	if deadline, ok := ctx.Deadline(); ok {
		if err := c.client.DoDeadline(req, resp, deadline); err != nil {
			return nil, &entity.FetchError{Source: "dexscreener", Err: err}
		}
	} else {
		if err := c.client.DoTimeout(req, resp, c.timeout); err != nil {
			return nil, &entity.FetchError{Source: "dexscreener", Err: err}
		}
	}

	rawBody := resp.Body()

	switch {
	case resp.StatusCode() == fasthttp.StatusTooManyRequests:
		c.logger.Warn("DEX Screener rate limited", zap.String("url", requestURL))
		return nil, &entity.RateLimitError{
			Source:     "dexscreener",
			RetryAfter: retry.ParseRetryAfter(string(resp.Header.Peek("Retry-After"))),
		}
	case resp.StatusCode() != fasthttp.StatusOK:
		c.logger.Error("DEX Screener API request failed",
			zap.String("url", requestURL),
			zap.Int("statusCode", resp.StatusCode()),
			zap.ByteString("responseBody", rawBody))
		return nil, &entity.FetchError{Source: "dexscreener", StatusCode: resp.StatusCode(), Body: append([]byte(nil), rawBody...)}
	}

	var wrapper entity.DEXTokenResponse
	if err := json.Unmarshal(rawBody, &wrapper); err == nil && wrapper.Pairs != nil {
		return wrapper.Pairs, nil
	}

	// Some endpoints return the pair array directly.
	var directPairs []entity.PairData
	if err := json.Unmarshal(rawBody, &directPairs); err != nil {
		c.logger.Error("Failed to unmarshal DEX Screener response",
			zap.String("url", requestURL),
			zap.ByteString("responseBody", rawBody),
			zap.Error(err))
		return nil, &entity.FetchError{Source: "dexscreener", Err: fmt.Errorf("unmarshal response from %s: %w", requestURL, err)}
	}
	return directPairs, nil
}

// selectBestQuote picks the pair to price a token from: a stablecoin-quoted
// pair with the deepest liquidity wins, otherwise the deepest pair overall.
func (c *dexScreenerClientImpl) selectBestQuote(pairs []entity.PairData, baseTokenAddress string) (entity.Quote, bool) {
	var bestOverall *entity.PairData
	var bestStablecoin *entity.PairData

	for i := range pairs {
		pair := &pairs[i]
		if !strings.EqualFold(pair.BaseToken.Address, baseTokenAddress) {
			continue
		}
		if pair.PriceUsd == "" || pair.PriceUsd == "0" {
			continue
		}

		_, isStablecoin := stablecoinSymbols[strings.ToUpper(pair.QuoteToken.Symbol)]
		if isStablecoin {
			if bestStablecoin == nil || liquidityUsd(pair) > liquidityUsd(bestStablecoin) {
				bestStablecoin = pair
			}
		}
		if bestOverall == nil || liquidityUsd(pair) > liquidityUsd(bestOverall) {
			bestOverall = pair
		}
	}

	chosen := bestStablecoin
	if chosen == nil {
		chosen = bestOverall
	}
	if chosen == nil {
		return entity.Quote{}, false
	}

	price, err := strconv.ParseFloat(chosen.PriceUsd, 64)
	if err != nil {
		c.logger.Warn("Failed to parse token price from DEXScreener",
			zap.String("tokenAddress", baseTokenAddress),
			zap.String("price_string", chosen.PriceUsd),
			zap.Error(err))
		return entity.Quote{}, false
	}

	quote := entity.Quote{
		Address:        strings.ToLower(baseTokenAddress),
		PriceUsd:       price,
		PriceChange24h: chosen.PriceChange.H24,
		LiquidityUsd:   liquidityUsd(chosen),
	}
	if chosen.Info != nil {
		quote.LogoURL = chosen.Info.ImageURL
	}
	return quote, true
}

func liquidityUsd(pair *entity.PairData) float64 {
	if pair.Liquidity == nil {
		return 0
	}
	return pair.Liquidity.Usd
}
