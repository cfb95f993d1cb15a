package restapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ZapLoggerMiddleware logs each request through the shared zap logger.
func ZapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// SetupRouter wires all API routes onto a gin engine.
func SetupRouter(handler *Handler, logger *zap.Logger) *gin.Engine {
	router := gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(corsConfig))

	router.Use(ZapLoggerMiddleware(logger))
	router.Use(gin.Recovery())

	api := router.Group("/api")
	{
		api.GET("/wallet/:address", handler.GetWallet)
		api.GET("/wallet/:address/all", handler.GetWalletAll)
		api.GET("/wallet/:address/card", handler.WalletCard)
		api.GET("/loading-progress", handler.LoadingProgress)

		api.POST("/token-logos/batch", handler.TokenLogosBatch)
		api.GET("/token-price/:address", handler.TokenPrice)
		api.POST("/token/enrich", handler.EnrichTokens)

		api.GET("/bookmarks", handler.ListBookmarks)
		api.POST("/bookmarks", handler.PutBookmark)
		api.DELETE("/bookmarks/:address", handler.DeleteBookmark)
		api.GET("/bookmarks/export", handler.ExportBookmarks)
		api.POST("/bookmarks/import", handler.ImportBookmarks)

		api.POST("/swap-watch/:address", handler.WatchSwaps)
		api.DELETE("/swap-watch/:address", handler.UnwatchSwaps)
		api.GET("/swap-watch/:address/events", handler.RecentSwaps)
	}

	router.GET("/health", handler.Health)

	return router
}
