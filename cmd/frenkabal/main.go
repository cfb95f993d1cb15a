package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/proestever/FRENKABALv1-sub005/internal/bookmark"
	"github.com/proestever/FRENKABALv1-sub005/internal/cache"
	"github.com/proestever/FRENKABALv1-sub005/internal/chain"
	"github.com/proestever/FRENKABALv1-sub005/internal/client"
	"github.com/proestever/FRENKABALv1-sub005/internal/config"
	"github.com/proestever/FRENKABALv1-sub005/internal/entity"
	"github.com/proestever/FRENKABALv1-sub005/internal/pkg/logger"
	"github.com/proestever/FRENKABALv1-sub005/internal/pkg/metrics"
	"github.com/proestever/FRENKABALv1-sub005/internal/pkg/utils"
	"github.com/proestever/FRENKABALv1-sub005/internal/restapi"
	"github.com/proestever/FRENKABALv1-sub005/internal/service"
	"github.com/proestever/FRENKABALv1-sub005/internal/sharecard"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(logrus.InfoLevel)

	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize zap logger: %v", err)
	}
	defer zapLogger.Sync()

	cfgPath := utils.GetEnv("CONFIG_PATH", "config/config.yaml")
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Warnf("Invalid log level in config: %s. Defaulting to Info.", cfg.Logging.Level)
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	logger.InitSlog(cfg.Logging.Level)

	zapLogger.Info("Configuration loaded", zap.String("path", cfgPath))

	metrics.MustRegisterMetrics()

	chainClient, err := chain.NewClient(
		cfg.Chain.PrimaryRPCURL,
		cfg.Chain.FallbackRPCURLs,
		time.Duration(cfg.Chain.ConnectionTimeoutMs)*time.Millisecond,
		time.Duration(cfg.Chain.RPCCallTimeoutMs)*time.Millisecond,
		zapLogger,
	)
	if err != nil {
		zapLogger.Fatal("Failed to connect to RPC", zap.Error(err))
	}
	defer chainClient.Close()
	zapLogger.Info("Chain client initialized", zap.String("rpc", cfg.Chain.PrimaryRPCURL))

	scannerClient := client.NewScannerClient(client.ScannerOptions{
		BaseURL:        cfg.Scanner.BaseURL,
		RequestTimeout: time.Duration(cfg.Scanner.RequestTimeoutMillis) * time.Millisecond,
		MaxRetries:     cfg.Scanner.MaxRetries,
		RetryBaseDelay: time.Duration(cfg.Scanner.RetryBaseDelayMs) * time.Millisecond,
		RetryMaxDelay:  time.Duration(cfg.Scanner.RetryMaxDelayMs) * time.Millisecond,
		RatePerSecond:  cfg.Scanner.RateLimitPerSecond,
		RateBurst:      cfg.Scanner.RateLimitBurst,
	}, zapLogger)
	zapLogger.Info("Scanner client initialized", zap.String("baseURL", cfg.Scanner.BaseURL))

	dexScreenerClient := client.NewDEXScreenerClient(
		cfg.DEXScreener.BaseURL,
		time.Duration(cfg.DEXScreener.RequestTimeoutMillis)*time.Millisecond,
		cfg.DEXScreener.MaxTokensPerBatchRequest,
		cfg.DEXScreener.MaxRetries,
		time.Duration(cfg.DEXScreener.RetryBaseDelayMs)*time.Millisecond,
		zapLogger,
	)
	zapLogger.Info("DEXScreener client initialized")

	logoCache := cache.NewStore[string](cache.LogoTTL, time.Now,
		cache.NewFileStorage[string](filepath.Join(cfg.Cache.Dir, "logos.json")))
	priceCache := cache.NewStore[entity.PricePoint](cache.PriceTTL, time.Now,
		cache.NewFileStorage[entity.PricePoint](filepath.Join(cfg.Cache.Dir, "prices.json")))
	if err := logoCache.LoadPersisted(); err != nil {
		zapLogger.Warn("Logo cache restore failed, starting empty", zap.Error(err))
	}
	if err := priceCache.LoadPersisted(); err != nil {
		zapLogger.Warn("Price cache restore failed, starting empty", zap.Error(err))
	}
	zapLogger.Info("Caches restored",
		zap.Int("logos", logoCache.Len()),
		zap.Int("prices", priceCache.Len()))

	aggregator := service.NewAggregator(
		scannerClient,
		chainClient,
		dexScreenerClient,
		logoCache,
		priceCache,
		cfg.Aggregator,
		cfg.Staking,
		cfg.DEXScreener.MaxTokensPerBatchRequest,
		service.NewProgressTracker(),
		zapLogger,
	)
	zapLogger.Info("Aggregator initialized")

	snapshots := gocache.New(
		time.Duration(cfg.Cache.SnapshotTTLSeconds)*time.Second,
		time.Duration(cfg.Cache.SnapshotCleanupSeconds)*time.Second,
	)

	// Completion probe: retry enrichment over the cached snapshot and report
	// how many tokens now carry a price. The poller stops the session once
	// completed covers the full token count.
	completion := func(ctx context.Context, address string) (int, int, error) {
		cached, found := snapshots.Get(address)
		if !found {
			return 0, 0, nil
		}
		snapshot := cached.(*entity.WalletSnapshot)

		tokens := make([]entity.Token, len(snapshot.Tokens))
		copy(tokens, snapshot.Tokens)
		failed := aggregator.EnrichTokens(ctx, tokens)

		updated := *snapshot
		updated.Tokens = tokens
		updated.RecomputeTotal()
		snapshots.SetDefault(address, &updated)

		return len(tokens) - failed, len(tokens), nil
	}

	poller := service.NewBackgroundPoller(
		completion,
		time.Duration(cfg.Poller.IntervalSeconds)*time.Second,
		cfg.Poller.MaxPolls,
		zapLogger,
	)

	bookmarkStore, err := bookmark.NewStore(cfg.Bookmarks.FilePath)
	if err != nil {
		zapLogger.Fatal("Failed to open bookmark store", zap.Error(err))
	}
	zapLogger.Info("Bookmark store opened", zap.String("path", cfg.Bookmarks.FilePath))

	cardRenderer := sharecard.NewRenderer(cfg.ShareCard.FontPath, cfg.ShareCard.BoldFontPath, zapLogger)

	newDetector := func(wallet string, onSwap service.SwapFunc) *service.SwapDetector {
		return service.NewSwapDetector(
			chainClient,
			wallet,
			time.Duration(cfg.SwapDetector.IntervalSeconds)*time.Second,
			cfg.SwapDetector.FirstScanMaxBlocks,
			onSwap,
			zapLogger,
		)
	}

	handler := restapi.NewHandler(
		aggregator,
		poller,
		bookmarkStore,
		cardRenderer,
		newDetector,
		snapshots,
		zapLogger,
	)

	router := restapi.SetupRouter(handler, zapLogger)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	zapLogger.Info("Prometheus metrics endpoint enabled", zap.String("path", "/metrics"))

	pprofRouter := router.Group("/debug/pprof")
	{
		pprofRouter.GET("/", gin.WrapF(pprof.Index))
		pprofRouter.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		pprofRouter.GET("/profile", gin.WrapF(pprof.Profile))
		pprofRouter.POST("/symbol", gin.WrapF(pprof.Symbol))
		pprofRouter.GET("/symbol", gin.WrapF(pprof.Symbol))
		pprofRouter.GET("/trace", gin.WrapF(pprof.Trace))
		pprofRouter.GET("/allocs", gin.WrapH(pprof.Handler("allocs")))
		pprofRouter.GET("/block", gin.WrapH(pprof.Handler("block")))
		pprofRouter.GET("/goroutine", gin.WrapH(pprof.Handler("goroutine")))
		pprofRouter.GET("/heap", gin.WrapH(pprof.Handler("heap")))
		pprofRouter.GET("/mutex", gin.WrapH(pprof.Handler("mutex")))
		pprofRouter.GET("/threadcreate", gin.WrapH(pprof.Handler("threadcreate")))
	}
	zapLogger.Info("Pprof endpoints enabled under /debug/pprof")

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		zapLogger.Info(fmt.Sprintf("Server starting on port %s", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	handler.StopAll()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		zapLogger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exiting")
}
