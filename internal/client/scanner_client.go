package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/proestever/FRENKABALv1-sub005/internal/entity"
	"github.com/proestever/FRENKABALv1-sub005/internal/pkg/metrics"
	"github.com/proestever/FRENKABALv1-sub005/internal/pkg/retry"
)

// ScannerClient reads wallet state from the PulseChain block explorer API.
type ScannerClient interface {
	GetAddress(ctx context.Context, address string) (*entity.ScannerAddress, error)
	GetTokenBalances(ctx context.Context, address string) ([]entity.ScannerTokenBalance, error)
	GetAddressTokens(ctx context.Context, address string) ([]entity.ScannerTokenBalance, error)
}

type scannerClientImpl struct {
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
	retryOpts  retry.Options
	logger     *zap.Logger
}

// ScannerOptions configures a scanner client.
type ScannerOptions struct {
	BaseURL        string
	RequestTimeout time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RatePerSecond  float64
	RateBurst      int
}

// NewScannerClient creates a block-explorer client with rate limiting,
// bounded retry and a circuit breaker around the upstream.
func NewScannerClient(opts ScannerOptions, logger *zap.Logger) ScannerClient {
	log := logger.Named("ScannerClient")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "pulsechain-scan",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &scannerClientImpl{
		httpClient: &http.Client{Timeout: opts.RequestTimeout},
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		breaker:    breaker,
		limiter:    rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.RateBurst),
		retryOpts: retry.Options{
			MaxRetries: opts.MaxRetries,
			BaseDelay:  opts.RetryBaseDelay,
			MaxDelay:   opts.RetryMaxDelay,
		},
		logger: log,
	}
}

// GetAddress fetches the base address record, including the native coin balance.
func (c *scannerClientImpl) GetAddress(ctx context.Context, address string) (*entity.ScannerAddress, error) {
	var result entity.ScannerAddress
	url := fmt.Sprintf("%s/addresses/%s", c.baseURL, strings.ToLower(address))
	if err := c.getJSON(ctx, url, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetTokenBalances fetches the ERC-20 balance list for an address.
func (c *scannerClientImpl) GetTokenBalances(ctx context.Context, address string) ([]entity.ScannerTokenBalance, error) {
	var result []entity.ScannerTokenBalance
	url := fmt.Sprintf("%s/addresses/%s/erc-20", c.baseURL, strings.ToLower(address))
	if err := c.getJSON(ctx, url, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetAddressTokens fetches the paged token listing for an address. The
// entries overlap GetTokenBalances but come from the explorer's newer token
// index, so fungible holdings stay reachable when the erc-20 view errors.
func (c *scannerClientImpl) GetAddressTokens(ctx context.Context, address string) ([]entity.ScannerTokenBalance, error) {
	var page entity.ScannerTokensPage
	url := fmt.Sprintf("%s/addresses/%s/tokens?type=ERC-20", c.baseURL, strings.ToLower(address))
	if err := c.getJSON(ctx, url, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

func (c *scannerClientImpl) getJSON(ctx context.Context, url string, out interface{}) error {
	err := retry.Do(ctx, c.retryOpts, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, c.doRequest(ctx, url, out)
		})
		return err
	})
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues("scanner", "error").Inc()
		return err
	}
	metrics.UpstreamRequestsTotal.WithLabelValues("scanner", "ok").Inc()
	return nil
}

func (c *scannerClientImpl) doRequest(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &entity.FetchError{Source: "scanner", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &entity.FetchError{Source: "scanner", Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.logger.Warn("scanner rate limited", zap.String("url", url))
		return &entity.RateLimitError{
			Source:     "scanner",
			RetryAfter: retry.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &entity.FetchError{Source: "scanner", StatusCode: resp.StatusCode, Body: body}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &entity.FetchError{Source: "scanner", Err: fmt.Errorf("decoding response from %s: %w", url, err)}
	}
	return nil
}
