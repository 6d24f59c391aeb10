// Package api wires together all HTTP routes for the tunecrate backend.
//
// Route grouping philosophy:
//   - /health and /version are unauthenticated so load balancers and uptime
//     probes can reach them without holding the API key.
//   - Everything under /api requires the shared API key, including the
//     streaming endpoint. Stream URLs carry the key as a query parameter
//     because <audio> elements cannot set request headers.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/tunecrate/tunecrate/internal/api/songs"
	"github.com/tunecrate/tunecrate/internal/api/stream"
	"github.com/tunecrate/tunecrate/internal/config"
	"github.com/tunecrate/tunecrate/internal/middleware"
)

// Store is the full gateway surface the router hands to its handlers.
type Store interface {
	songs.Store
	stream.Downloader
}

// Version is the build version reported by /version. Overridden at build time:
//
//	go build -ldflags "-X github.com/tunecrate/tunecrate/internal/api.Version=v1.2.3"
var Version = "dev"

// BackgroundServices holds references to background resources that must be
// stopped during graceful shutdown. The caller (cmd/server) is responsible
// for calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	rateLimiters []*middleware.RateLimiter
}

// Shutdown stops all background goroutines. It should be called after the
// HTTP server has been shut down so that in-flight requests drain first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg *config.Config, store Store) (*gin.Engine, *BackgroundServices) {
	router := gin.New()
	bg := &BackgroundServices{}

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(corsMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	// Liveness probe; intentionally outside the API key gate.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": cfg.Telemetry.ServiceName,
		})
	})

	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": cfg.Telemetry.ServiceName,
			"version": Version,
		})
	})

	songsHandler := songs.NewHandler(store, cfg.Upload)
	streamHandler := stream.NewHandler(store)

	protected := router.Group("/api")
	protected.Use(middleware.APIKeyMiddleware(cfg.Auth.APIKey))

	var uploadLimiter gin.HandlerFunc
	if cfg.Security.RateLimiting.Enabled {
		general := middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerMinute: cfg.Security.RateLimiting.RequestsPerMinute,
			BurstSize:         cfg.Security.RateLimiting.Burst,
			CleanupInterval:   5 * time.Minute,
		})
		upload := middleware.NewRateLimiter(middleware.UploadRateLimitConfig())
		bg.rateLimiters = append(bg.rateLimiters, general, upload)

		protected.Use(middleware.RateLimitMiddleware(general))
		uploadLimiter = middleware.RateLimitMiddleware(upload)
	}

	protected.GET("/songs", songsHandler.List)
	protected.DELETE("/songs/*fileName", songsHandler.Delete)
	protected.GET("/stream/*fileName", streamHandler.Stream)

	if uploadLimiter != nil {
		protected.POST("/upload", uploadLimiter, songsHandler.Upload)
	} else {
		protected.POST("/upload", songsHandler.Upload)
	}

	return router, bg
}

// corsMiddleware builds the CORS policy from configuration. Range and
// X-API-Key must be allowed for seeking audio playback from a browser, and
// the range response headers must be exposed or browsers hide them from
// script.
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods: cfg.Security.CORS.AllowedMethods,
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Range", "X-API-Key", "X-Request-ID"},
		ExposeHeaders: []string{
			"Content-Length", "Content-Range", "Accept-Ranges", "X-Request-ID",
		},
		MaxAge: time.Hour,
	}
	for _, origin := range cfg.Security.CORS.AllowedOrigins {
		if origin == "*" {
			cc.AllowAllOrigins = true
			cc.AllowOrigins = nil
			break
		}
		cc.AllowOrigins = append(cc.AllowOrigins, origin)
	}
	return cors.New(cc)
}

// LoggerMiddleware logs one structured record per request through the global
// slog logger configured in telemetry.SetupLogger.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := redactQuery(c.Request.URL.Query())

		c.Next()

		requestID, _ := c.Get(middleware.RequestIDKey)
		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", fmt.Sprintf("%v", requestID)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// redactQuery masks the apiKey query parameter so stream URLs never put the
// shared secret into log storage.
func redactQuery(q url.Values) string {
	if _, ok := q["apiKey"]; ok {
		q.Set("apiKey", "REDACTED")
	}
	return q.Encode()
}
