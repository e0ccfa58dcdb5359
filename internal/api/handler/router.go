// Package handler implements the chaind HTTP API on gin.
package handler

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/captals/primechain/internal/auth"
	"github.com/captals/primechain/internal/chain"
	"github.com/captals/primechain/internal/health"
	"github.com/captals/primechain/internal/notify"
)

// RouterConfig holds everything NewRouter wires together.
type RouterConfig struct {
	Ledger      chain.Ledger
	Tokens      *auth.TokenIssuer  // nil disables submitter auth
	Dispatcher  *notify.Dispatcher // nil hides /subscribers
	Health      *health.Checker    // nil reports always ok
	CORSOrigins []string
	RateLimit   float64 // requests per second per IP; 0 disables
	SubmitRate  float64 // appends per second per submitter; 0 disables
	MaxRecords  int
	MaxBodySize int64
	Logger      *zap.Logger
}

// NewRouter builds the chaind gin engine. ctx bounds background work such as
// rate-limiter cleanup.
func NewRouter(ctx context.Context, cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(PrometheusMiddleware())

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if containsWildcard(origins) {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}
	router.Use(cors.New(corsConfig))

	router.Use(func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Next()
	})

	maxBody := cfg.MaxBodySize
	if maxBody <= 0 {
		maxBody = 8 << 20
	}
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)
		c.Next()
	})

	if cfg.RateLimit > 0 {
		router.Use(RateLimiter(ctx, cfg.RateLimit, int(cfg.RateLimit*2)+1))
	}
	router.Use(requestLogger(cfg.Logger))

	router.GET("/healthz", func(c *gin.Context) {
		if cfg.Health == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		st := cfg.Health.Status()
		if !st.Healthy {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "integrity": st})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "integrity": st})
	})
	router.GET("/metrics", MetricsHandler())

	v1 := router.Group("/api/v1")
	chainHandler := NewChainHandler(cfg.Ledger, cfg.Tokens, cfg.Logger)
	if cfg.SubmitRate > 0 {
		chainHandler.LimitSubmissions(SubmitterRateLimiter(ctx, cfg.SubmitRate, int(math.Ceil(cfg.SubmitRate))))
	}
	chainHandler.Register(v1)
	NewCommitmentHandler(cfg.MaxRecords, cfg.Logger).Register(v1)
	if cfg.Dispatcher != nil {
		v1.GET("/subscribers", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"subscribers": cfg.Dispatcher.Status()})
		})
	}
	return router
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
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
