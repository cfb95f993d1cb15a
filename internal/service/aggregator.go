package service

import (
	"context"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/proestever/FRENKABALv1-sub005/internal/cache"
	"github.com/proestever/FRENKABALv1-sub005/internal/config"
	"github.com/proestever/FRENKABALv1-sub005/internal/entity"
	"github.com/proestever/FRENKABALv1-sub005/internal/pkg/metrics"
	"github.com/proestever/FRENKABALv1-sub005/internal/pkg/utils"
)

const totalAggregationBatches = 3

var addressPattern = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{40}$`)

// NormalizeAddress validates a wallet address and returns its canonical
// lowercased 0x-prefixed form.
func NormalizeAddress(address string) (string, error) {
	trimmed := strings.TrimSpace(address)
	if !addressPattern.MatchString(trimmed) {
		return "", entity.NewAddressValidationError(address)
	}
	lowered := strings.ToLower(trimmed)
	if !strings.HasPrefix(lowered, "0x") {
		lowered = "0x" + lowered
	}
	return lowered, nil
}

// BalanceSource discovers a wallet's balances (block explorer API).
// GetAddressTokens is the explorer's paged token index, consulted when the
// erc-20 listing errors.
type BalanceSource interface {
	GetAddress(ctx context.Context, address string) (*entity.ScannerAddress, error)
	GetTokenBalances(ctx context.Context, address string) ([]entity.ScannerTokenBalance, error)
	GetAddressTokens(ctx context.Context, address string) ([]entity.ScannerTokenBalance, error)
}

// TokenReader reads balances directly from the chain. Used for the
// known-missing-token follow-up checks and as the native-balance fallback
// when the scanner is down.
type TokenReader interface {
	TokenBalance(ctx context.Context, walletAddress, tokenAddress string) (*big.Int, error)
	NativeBalance(ctx context.Context, walletAddress string) (*big.Int, error)
}

// PriceSource resolves USD quotes for a batch of token addresses.
type PriceSource interface {
	GetTokenQuotes(ctx context.Context, tokenAddresses []string) (map[string]entity.Quote, error)
}

// Aggregator builds wallet snapshots: balance discovery, the
// known-missing-token patch, then incremental price/logo enrichment.
type Aggregator struct {
	balances BalanceSource
	tokens   TokenReader
	prices   PriceSource

	logoCache   *cache.Store[string]
	priceCache  *cache.Store[entity.PricePoint]
	quoteFlight *cache.Flight[map[string]entity.Quote]

	cfg       config.AggregatorConfig
	staking   config.StakingConfig
	batchSize int

	progress *ProgressTracker
	logger   *zap.Logger
}

// NewAggregator wires an Aggregator from its collaborators.
func NewAggregator(
	balances BalanceSource,
	tokens TokenReader,
	prices PriceSource,
	logoCache *cache.Store[string],
	priceCache *cache.Store[entity.PricePoint],
	cfg config.AggregatorConfig,
	staking config.StakingConfig,
	priceBatchSize int,
	progress *ProgressTracker,
	logger *zap.Logger,
) *Aggregator {
	if priceBatchSize <= 0 {
		priceBatchSize = 30
	}
	return &Aggregator{
		balances:    balances,
		tokens:      tokens,
		prices:      prices,
		logoCache:   logoCache,
		priceCache:  priceCache,
		quoteFlight: cache.NewFlight[map[string]entity.Quote](),
		cfg:         cfg,
		staking:     staking,
		batchSize:   priceBatchSize,
		progress:    progress,
		logger:      logger.Named("Aggregator"),
	}
}

// Progress returns the tracker so the API layer can serve progress reads.
func (a *Aggregator) Progress() *ProgressTracker {
	return a.progress
}

// Aggregate produces a snapshot for address. Discovery failures are fatal;
// enrichment failures degrade to tokens with zero price.
func (a *Aggregator) Aggregate(ctx context.Context, address string) (*entity.WalletSnapshot, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	a.progress.Begin(addr, totalAggregationBatches, "fetching token balances")

	snapshot, err := a.discover(ctx, addr)
	if err != nil {
		a.progress.Fail(addr, err.Error())
		metrics.AggregationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	a.progress.Advance(addr, 2, "checking known missing tokens")
	a.patchKnownMissing(ctx, snapshot)

	a.progress.Advance(addr, 3, "enriching prices and logos")
	partialErrors := a.EnrichTokens(ctx, snapshot.Tokens)
	snapshot.PartialErrors = partialErrors

	a.applyStakingEstimate(snapshot)
	snapshot.RecomputeTotal()

	a.progress.Complete(addr, fmt.Sprintf("loaded %d tokens", snapshot.TokenCount))
	metrics.AggregationsTotal.WithLabelValues("ok").Inc()
	metrics.AggregationDuration.Observe(time.Since(started).Seconds())

	a.logger.Info("aggregation complete",
		zap.String("address", addr),
		zap.Int("tokens", snapshot.TokenCount),
		zap.Float64("totalValue", snapshot.TotalValue),
		zap.Int("partialErrors", partialErrors),
		zap.Duration("elapsed", time.Since(started)))
	return snapshot, nil
}

// discover fetches native and ERC-20 balances from the balance source. Any
// failure here aborts the aggregation.
func (a *Aggregator) discover(ctx context.Context, addr string) (*entity.WalletSnapshot, error) {
	var nativeBalance *big.Int
	addressInfo, err := a.balances.GetAddress(ctx, addr)
	if err == nil {
		nativeBalance, err = utils.ParseBigInt(addressInfo.CoinBalance)
		if err != nil {
			return nil, &entity.FetchError{Source: "scanner", Err: fmt.Errorf("native balance for %s: %w", addr, err)}
		}
	} else if a.tokens != nil {
		// Scanner down: read the native balance straight from the chain.
		a.logger.Warn("scanner address lookup failed, falling back to RPC",
			zap.String("address", addr), zap.Error(err))
		nativeBalance, err = a.tokens.NativeBalance(ctx, addr)
		if err != nil {
			a.logger.Error("native balance discovery failed", zap.String("address", addr), zap.Error(err))
			return nil, err
		}
	} else {
		a.logger.Error("native balance discovery failed", zap.String("address", addr), zap.Error(err))
		return nil, err
	}

	tokenBalances, err := a.balances.GetTokenBalances(ctx, addr)
	if err != nil {
		a.logger.Warn("erc-20 listing failed, falling back to token index",
			zap.String("address", addr), zap.Error(err))
		tokenBalances, err = a.balances.GetAddressTokens(ctx, addr)
		if err != nil {
			a.logger.Error("token balance discovery failed", zap.String("address", addr), zap.Error(err))
			return nil, err
		}
	}

	nativeFormatted := utils.FormatBigInt(nativeBalance, 18)
	snapshot := &entity.WalletSnapshot{
		Address:      addr,
		NetworkCount: 1,
		PlsBalance:   nativeFormatted,
		Tokens: []entity.Token{{
			Address:          entity.NativeTokenAddress,
			Symbol:           "PLS",
			Name:             "PulseChain",
			Decimals:         18,
			Balance:          nativeBalance.String(),
			BalanceFormatted: nativeFormatted,
			IsNative:         true,
			Verified:         true,
		}},
	}

	for _, tb := range tokenBalances {
		raw, err := utils.ParseBigInt(tb.Value)
		if err != nil {
			a.logger.Warn("skipping token with malformed balance",
				zap.String("token", tb.Token.Address), zap.String("value", tb.Value), zap.Error(err))
			continue
		}
		if raw.Sign() == 0 {
			continue
		}

		decimals := parseDecimals(tb.Token.Decimals)
		snapshot.Tokens = append(snapshot.Tokens, entity.Token{
			Address:          strings.ToLower(tb.Token.Address),
			Symbol:           tb.Token.Symbol,
			Name:             tb.Token.Name,
			Decimals:         decimals,
			Balance:          raw.String(),
			BalanceFormatted: utils.FormatBigInt(raw, decimals),
			Logo:             tb.Token.IconURL,
			IsLp:             entity.IsLpToken(tb.Token.Symbol, tb.Token.Name),
			Verified:         tb.Token.Verified,
		})
	}

	return snapshot, nil
}

// patchKnownMissing issues a per-token balance check for the configured
// allow-list of tokens the scanner under-reports due to indexing lag. The
// list is a workaround for a specific upstream defect, not reconciliation.
func (a *Aggregator) patchKnownMissing(ctx context.Context, snapshot *entity.WalletSnapshot) {
	if len(a.cfg.KnownMissingTokens) == 0 || a.tokens == nil {
		return
	}

	present := make(map[string]struct{}, len(snapshot.Tokens))
	for _, token := range snapshot.Tokens {
		present[strings.ToLower(token.Address)] = struct{}{}
	}

	for _, known := range a.cfg.KnownMissingTokens {
		addr := strings.ToLower(known.Address)
		if _, ok := present[addr]; ok {
			continue
		}

		balance, err := a.tokens.TokenBalance(ctx, snapshot.Address, addr)
		if err != nil {
			a.logger.Warn("known-missing-token check failed",
				zap.String("token", addr), zap.String("wallet", snapshot.Address), zap.Error(err))
			continue
		}
		if balance == nil || balance.Sign() == 0 {
			continue
		}

		snapshot.Tokens = append(snapshot.Tokens, entity.Token{
			Address:          addr,
			Symbol:           known.Symbol,
			Name:             known.Name,
			Decimals:         known.Decimals,
			Balance:          balance.String(),
			BalanceFormatted: utils.FormatBigInt(balance, known.Decimals),
			IsLp:             entity.IsLpToken(known.Symbol, known.Name),
		})
		a.logger.Info("patched under-reported token",
			zap.String("token", addr), zap.String("wallet", snapshot.Address))
	}
}

// EnrichTokens attaches prices, values and logos to tokens in place, using
// the caches first and the price source for the remainder. It returns how
// many tokens could not be enriched; those keep a zero price.
func (a *Aggregator) EnrichTokens(ctx context.Context, tokens []entity.Token) int {
	missing := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for i := range tokens {
		priceAddr := a.priceAddress(&tokens[i])
		if _, ok := a.priceCache.Get(priceAddr); ok {
			metrics.CacheLookupsTotal.WithLabelValues("price", "hit").Inc()
			continue
		}
		metrics.CacheLookupsTotal.WithLabelValues("price", "miss").Inc()
		if _, dup := seen[priceAddr]; dup {
			continue
		}
		seen[priceAddr] = struct{}{}
		missing = append(missing, priceAddr)
	}

	if len(missing) > 0 {
		a.fetchQuotes(ctx, missing)
	}

	failures := 0
	for i := range tokens {
		if !a.applyEnrichment(&tokens[i]) {
			failures++
		}
	}
	return failures
}

// fetchQuotes resolves quotes for the missing addresses in bounded-size
// batches with limited concurrency. A failed batch is logged and skipped;
// its tokens stay unpriced.
func (a *Aggregator) fetchQuotes(ctx context.Context, missing []string) {
	eg, childCtx := errgroup.WithContext(ctx)
	eg.SetLimit(a.cfg.MaxConcurrentEnrichments)

	for start := 0; start < len(missing); start += a.batchSize {
		end := start + a.batchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]

		eg.Go(func() error {
			flightKey := strings.Join(batch, ",")
			quotes, err := a.quoteFlight.Do(flightKey, func() (map[string]entity.Quote, error) {
				return a.prices.GetTokenQuotes(childCtx, batch)
			})
			if err != nil {
				a.logger.Warn("price batch fetch failed",
					zap.Int("batchSize", len(batch)), zap.Error(err))
				return nil
			}

			priceUpdates := make(map[string]entity.PricePoint, len(quotes))
			logoUpdates := make(map[string]string)
			for addr, quote := range quotes {
				priceUpdates[addr] = entity.PricePoint{PriceUsd: quote.PriceUsd, PriceChange24h: quote.PriceChange24h}
				if quote.LogoURL != "" {
					logoUpdates[addr] = quote.LogoURL
				}
			}
			if err := a.priceCache.SetBatch(priceUpdates); err != nil {
				a.logger.Warn("price cache persist failed", zap.Error(err))
			}
			if err := a.logoCache.SetBatch(logoUpdates); err != nil {
				a.logger.Warn("logo cache persist failed", zap.Error(err))
			}
			return nil
		})
	}

	// Workers never return errors; Wait is for completion only.
	_ = eg.Wait()
}

// applyEnrichment fills price, value and logo for one token from the caches.
// Returns false when no price was available.
func (a *Aggregator) applyEnrichment(token *entity.Token) bool {
	priceAddr := a.priceAddress(token)

	if token.Logo == "" {
		if logo, ok := a.logoCache.Get(token.Address); ok {
			token.Logo = logo
		} else if logo, ok := a.logoCache.Get(priceAddr); ok && token.IsNative {
			token.Logo = logo
		}
	}

	point, ok := a.priceCache.Get(priceAddr)
	if !ok {
		token.Price = 0
		token.Value = 0
		return false
	}

	raw, err := utils.ParseBigInt(token.Balance)
	if err != nil {
		a.logger.Warn("token with unparseable balance during enrichment",
			zap.String("token", token.Address), zap.Error(err))
		return false
	}

	value, err := utils.CalculateValueUSD(raw, token.Decimals, point.PriceUsd)
	if err != nil {
		a.logger.Warn("value calculation failed",
			zap.String("token", token.Address), zap.Float64("price", point.PriceUsd), zap.Error(err))
		return false
	}

	token.Price = point.PriceUsd
	token.PriceChange24h = point.PriceChange24h
	token.Value = value
	return true
}

// priceAddress maps a token to the address used for pricing: the native coin
// is priced through its wrapped contract.
func (a *Aggregator) priceAddress(token *entity.Token) string {
	if token.IsNative && a.cfg.WrappedNativeAddress != "" {
		return strings.ToLower(a.cfg.WrappedNativeAddress)
	}
	return strings.ToLower(token.Address)
}

// TokenPrice returns the cached USD price for a token, fetching on miss.
func (a *Aggregator) TokenPrice(ctx context.Context, address string) (float64, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return 0, err
	}

	if point, ok := a.priceCache.Get(addr); ok {
		metrics.CacheLookupsTotal.WithLabelValues("price", "hit").Inc()
		return point.PriceUsd, nil
	}
	metrics.CacheLookupsTotal.WithLabelValues("price", "miss").Inc()

	quotes, err := a.quoteFlight.Do(addr, func() (map[string]entity.Quote, error) {
		return a.prices.GetTokenQuotes(ctx, []string{addr})
	})
	if err != nil {
		return 0, err
	}
	quote, ok := quotes[addr]
	if !ok {
		return 0, nil
	}
	a.priceCache.Set(addr, entity.PricePoint{PriceUsd: quote.PriceUsd, PriceChange24h: quote.PriceChange24h})
	if quote.LogoURL != "" {
		a.logoCache.Set(addr, quote.LogoURL)
	}
	return quote.PriceUsd, nil
}

// LogoBatch returns logo URLs for the given addresses from cache, fetching
// quotes for the addresses that miss. Unknown logos are absent from the map.
func (a *Aggregator) LogoBatch(ctx context.Context, addresses []string) map[string]string {
	result := make(map[string]string, len(addresses))
	missing := make([]string, 0, len(addresses))

	for _, address := range addresses {
		key := cache.Key(address)
		if logo, ok := a.logoCache.Get(key); ok {
			metrics.CacheLookupsTotal.WithLabelValues("logo", "hit").Inc()
			result[key] = logo
			continue
		}
		metrics.CacheLookupsTotal.WithLabelValues("logo", "miss").Inc()
		missing = append(missing, key)
	}

	for start := 0; start < len(missing); start += a.batchSize {
		end := start + a.batchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]

		quotes, err := a.quoteFlight.Do(strings.Join(batch, ","), func() (map[string]entity.Quote, error) {
			return a.prices.GetTokenQuotes(ctx, batch)
		})
		if err != nil {
			a.logger.Warn("logo batch fetch failed", zap.Int("batchSize", len(batch)), zap.Error(err))
			continue
		}

		logoUpdates := make(map[string]string)
		for addr, quote := range quotes {
			if quote.LogoURL == "" {
				continue
			}
			logoUpdates[addr] = quote.LogoURL
			result[addr] = quote.LogoURL
		}
		if err := a.logoCache.SetBatch(logoUpdates); err != nil {
			a.logger.Warn("logo cache persist failed", zap.Error(err))
		}
	}
	return result
}

// PriceCached reports whether a usable price is cached for the address.
func (a *Aggregator) PriceCached(address string) bool {
	_, ok := a.priceCache.Get(address)
	return ok
}

// applyStakingEstimate adds the configured staking-value approximation.
// Stake count and average size are fixed placeholder assumptions rather than
// on-chain stake enumeration; this is a documented estimate, not a balance.
func (a *Aggregator) applyStakingEstimate(snapshot *entity.WalletSnapshot) {
	if !a.staking.Enabled || a.staking.TokenAddress == "" {
		return
	}
	point, ok := a.priceCache.Get(a.staking.TokenAddress)
	if !ok || point.PriceUsd <= 0 {
		return
	}
	principal := float64(a.staking.EstimatedStakes) * a.staking.AverageStakeSize
	snapshot.StakingValue = principal * (1 + a.staking.AnnualYieldRate) * point.PriceUsd
}

func parseDecimals(s string) uint8 {
	if s == "" {
		return 18
	}
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 18
	}
	return uint8(v)
}
