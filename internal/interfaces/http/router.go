// Package http serves the anonymization API over gin.
package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/PII-Anonymizer/internal/bootstrap"
	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/PII-Anonymizer/internal/interfaces/http/handlers"
	"github.com/turtacn/PII-Anonymizer/internal/interfaces/http/middleware"
)

const rateLimitIdle = 10 * time.Minute

// RouterConfig aggregates the handlers and middleware settings of the
// route tree.
type RouterConfig struct {
	// Mode is the gin mode; empty keeps the process-wide setting.
	Mode string

	AnonymizationHandler *handlers.AnonymizationHandler
	HealthHandler        *handlers.HealthHandler

	Logger           logging.Logger
	Metrics          *prometheus.AppMetrics
	MetricsCollector prometheus.MetricsCollector
	MetricsPath      string

	CORS        middleware.CORSConfig
	Logging     middleware.LoggingConfig
	MaxBodySize int64

	// RateLimiter throttles the API routes; nil disables throttling.
	RateLimiter middleware.RateLimiter
}

// RouterConfigFromRuntime builds the router configuration from wired
// components.
func RouterConfigFromRuntime(rt *bootstrap.Runtime, version string) RouterConfig {
	httpCfg := rt.Config.Server.HTTP

	var artifacts handlers.ArtifactReader
	if rt.Artifacts != nil {
		artifacts = rt.Artifacts
	}

	checkers := make([]handlers.HealthChecker, 0, len(rt.Checkers()))
	for _, c := range rt.Checkers() {
		checkers = append(checkers, c)
	}
	health := handlers.NewHealthHandler(version, checkers...)
	if rt.Metrics != nil {
		health.WithMetrics(rt.Metrics)
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = httpCfg.CORSAllowedOrigins
	cors.AllowWildcard = true

	logCfg := middleware.DefaultLoggingConfig()
	logCfg.SlowThreshold = httpCfg.SlowRequest
	metricsPath := rt.Config.Metrics.Path
	if metricsPath != "" {
		logCfg.SkipPaths = append(logCfg.SkipPaths, metricsPath)
	}

	var limiter middleware.RateLimiter
	if rl := httpCfg.RateLimit; rl.RequestsPerSecond > 0 {
		limiter = middleware.NewTokenBucketLimiter(rl.RequestsPerSecond, rl.Burst, rateLimitIdle)
	}

	return RouterConfig{
		Mode:                 httpCfg.Mode,
		AnonymizationHandler: handlers.NewAnonymizationHandler(rt.Service, artifacts, rt.Logger),
		HealthHandler:        health,
		Logger:               rt.Logger,
		Metrics:              rt.Metrics,
		MetricsCollector:     rt.Collector,
		MetricsPath:          metricsPath,
		CORS:                 cors,
		Logging:              logCfg,
		MaxBodySize:          httpCfg.MaxBodySize,
		RateLimiter:          limiter,
	}
}

// NewRouter constructs the route tree: health checks and metrics at the root, the
// API under /api/v1.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID(), middleware.Recovery(logger))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	r.Use(middleware.RequestLogging(logger, cfg.Logging), middleware.CORS(cfg.CORS))

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterRoutes(r)
	}
	if cfg.MetricsCollector != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(cfg.MetricsCollector.Handler()))
	}

	api := r.Group("/api/v1")
	if cfg.RateLimiter != nil {
		api.Use(middleware.RateLimit(cfg.RateLimiter))
	}
	api.Use(middleware.BodyLimit(cfg.MaxBodySize))
	if cfg.AnonymizationHandler != nil {
		cfg.AnonymizationHandler.RegisterRoutes(api)
	}
	return r
}

//Personal.AI order the ending
