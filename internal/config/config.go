package config

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds the overall configuration for the application.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Chain        ChainConfig        `yaml:"chain"`
	Scanner      ScannerConfig      `yaml:"scanner"`
	DEXScreener  DEXScreenerConfig  `yaml:"dexScreener"`
	Aggregator   AggregatorConfig   `yaml:"aggregator"`
	Cache        CacheConfig        `yaml:"cache"`
	Poller       PollerConfig       `yaml:"poller"`
	SwapDetector SwapDetectorConfig `yaml:"swapDetector"`
	Staking      StakingConfig      `yaml:"staking"`
	Bookmarks    BookmarksConfig    `yaml:"bookmarks"`
	ShareCard    ShareCardConfig    `yaml:"shareCard"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port         string `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`
	WriteTimeout int    `yaml:"writeTimeout"`
	IdleTimeout  int    `yaml:"idleTimeout"`
}

// ChainConfig holds RPC endpoints and call timeouts for PulseChain.
type ChainConfig struct {
	PrimaryRPCURL       string   `yaml:"primaryRpcUrl"`
	FallbackRPCURLs     []string `yaml:"fallbackRpcUrls"`
	ConnectionTimeoutMs int64    `yaml:"connectionTimeoutMs"`
	RPCCallTimeoutMs    int64    `yaml:"rpcCallTimeoutMs"`
}

// ScannerConfig holds the block-explorer API configuration.
type ScannerConfig struct {
	BaseURL              string  `yaml:"baseURL"`
	RequestTimeoutMillis int64   `yaml:"requestTimeoutMillis"`
	MaxRetries           int     `yaml:"maxRetries"`
	RetryBaseDelayMs     int64   `yaml:"retryBaseDelayMs"`
	RetryMaxDelayMs      int64   `yaml:"retryMaxDelayMs"`
	RateLimitPerSecond   float64 `yaml:"rateLimitPerSecond"`
	RateLimitBurst       int     `yaml:"rateLimitBurst"`
}

// DEXScreenerConfig holds the configuration for the DEX Screener client.
type DEXScreenerConfig struct {
	BaseURL                  string `yaml:"baseURL"`
	RequestTimeoutMillis     int64  `yaml:"requestTimeoutMillis"`
	MaxTokensPerBatchRequest int    `yaml:"maxTokensPerBatchRequest"`
	MaxRetries               int    `yaml:"maxRetries"`
	RetryBaseDelayMs         int64  `yaml:"retryBaseDelayMs"`
}

// KnownToken is a token the balance source is known to under-report.
// The entries are a patch over a specific upstream indexing gap, kept as
// configuration data rather than logic.
type KnownToken struct {
	Address  string `yaml:"address"`
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name"`
	Decimals uint8  `yaml:"decimals"`
}

// AggregatorConfig holds aggregation pipeline settings.
type AggregatorConfig struct {
	MaxConcurrentEnrichments int          `yaml:"maxConcurrentEnrichments"`
	WrappedNativeAddress     string       `yaml:"wrappedNativeAddress"`
	KnownMissingTokens       []KnownToken `yaml:"knownMissingTokens"`
}

// CacheConfig holds cache persistence settings.
type CacheConfig struct {
	Dir                    string `yaml:"dir"`
	SnapshotTTLSeconds     int    `yaml:"snapshotTTLSeconds"`
	SnapshotCleanupSeconds int    `yaml:"snapshotCleanupSeconds"`
}

// PollerConfig holds background batch poller settings.
type PollerConfig struct {
	IntervalSeconds int `yaml:"intervalSeconds"`
	MaxPolls        int `yaml:"maxPolls"`
}

// SwapDetectorConfig holds swap detector settings.
type SwapDetectorConfig struct {
	IntervalSeconds    int    `yaml:"intervalSeconds"`
	FirstScanMaxBlocks uint64 `yaml:"firstScanMaxBlocks"`
}

// StakingConfig holds the fixed placeholder assumptions used to estimate
// staking value. The estimate is a documented approximation: stake count and
// average size are configured constants, not on-chain stake enumeration.
type StakingConfig struct {
	Enabled          bool    `yaml:"enabled"`
	TokenAddress     string  `yaml:"tokenAddress"`
	EstimatedStakes  int     `yaml:"estimatedStakes"`
	AverageStakeSize float64 `yaml:"averageStakeSize"`
	AnnualYieldRate  float64 `yaml:"annualYieldRate"`
}

// BookmarksConfig holds the bookmark store location.
type BookmarksConfig struct {
	FilePath string `yaml:"filePath"`
}

// ShareCardConfig holds share card rendering settings.
type ShareCardConfig struct {
	FontPath     string `yaml:"fontPath"`
	BoldFontPath string `yaml:"boldFontPath"`
}

// LoggingConfig holds the configuration for logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // e.g., "debug", "info", "warn", "error"
	File  string `yaml:"file"`
}

// LoadConfig loads configuration from a YAML file and fills defaults.
func LoadConfig(path string) (*Config, error) {
	logrus.Infof("Loading configuration from path: %s", path)
	data, err := os.ReadFile(path)
	if err != nil {
		logrus.Errorf("Failed to read config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logrus.Errorf("Failed to unmarshal config data from %s: %v", path, err)
		return nil, fmt.Errorf("failed to unmarshal config data: %w", err)
	}

	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}

	if cfg.Scanner.BaseURL == "" {
		cfg.Scanner.BaseURL = "https://api.scan.pulsechain.com/api/v2"
		logrus.Infof("Scanner.BaseURL not set, defaulting to %s", cfg.Scanner.BaseURL)
	}
	if cfg.Scanner.RequestTimeoutMillis <= 0 {
		cfg.Scanner.RequestTimeoutMillis = 10000
	}
	if cfg.Scanner.MaxRetries <= 0 {
		cfg.Scanner.MaxRetries = 3
	}
	if cfg.Scanner.RetryBaseDelayMs <= 0 {
		cfg.Scanner.RetryBaseDelayMs = 300
	}
	if cfg.Scanner.RetryMaxDelayMs <= 0 {
		cfg.Scanner.RetryMaxDelayMs = 5000
	}
	if cfg.Scanner.RateLimitPerSecond <= 0 {
		cfg.Scanner.RateLimitPerSecond = 5
	}
	if cfg.Scanner.RateLimitBurst <= 0 {
		cfg.Scanner.RateLimitBurst = 10
	}

	if cfg.DEXScreener.BaseURL == "" {
		cfg.DEXScreener.BaseURL = "https://api.dexscreener.com"
		logrus.Infof("DEXScreener.BaseURL not set, defaulting to %s", cfg.DEXScreener.BaseURL)
	}
	if cfg.DEXScreener.RequestTimeoutMillis <= 0 {
		cfg.DEXScreener.RequestTimeoutMillis = 10000
	}
	if cfg.DEXScreener.MaxTokensPerBatchRequest <= 0 {
		cfg.DEXScreener.MaxTokensPerBatchRequest = 30
		logrus.Infof("DEXScreener.MaxTokensPerBatchRequest not set, defaulting to %d", cfg.DEXScreener.MaxTokensPerBatchRequest)
	}
	if cfg.DEXScreener.MaxRetries <= 0 {
		cfg.DEXScreener.MaxRetries = 3
	}
	if cfg.DEXScreener.RetryBaseDelayMs <= 0 {
		cfg.DEXScreener.RetryBaseDelayMs = 300
	}

	if cfg.Aggregator.MaxConcurrentEnrichments <= 0 {
		cfg.Aggregator.MaxConcurrentEnrichments = 10
	}

	if cfg.Chain.ConnectionTimeoutMs <= 0 {
		cfg.Chain.ConnectionTimeoutMs = 10000
	}
	if cfg.Chain.RPCCallTimeoutMs <= 0 {
		cfg.Chain.RPCCallTimeoutMs = 15000
	}

	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = "data/cache"
	}
	if cfg.Cache.SnapshotTTLSeconds <= 0 {
		cfg.Cache.SnapshotTTLSeconds = 120
	}
	if cfg.Cache.SnapshotCleanupSeconds <= 0 {
		cfg.Cache.SnapshotCleanupSeconds = 600
	}

	if cfg.Poller.IntervalSeconds <= 0 {
		cfg.Poller.IntervalSeconds = 5
	}
	if cfg.Poller.MaxPolls <= 0 {
		cfg.Poller.MaxPolls = 24
	}

	if cfg.SwapDetector.IntervalSeconds <= 0 {
		cfg.SwapDetector.IntervalSeconds = 5
	}
	if cfg.SwapDetector.FirstScanMaxBlocks <= 0 {
		cfg.SwapDetector.FirstScanMaxBlocks = 100
	}

	if cfg.Bookmarks.FilePath == "" {
		cfg.Bookmarks.FilePath = "data/bookmarks.json"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	logrus.Info("Configuration loaded successfully.")
	return &cfg, nil
}
