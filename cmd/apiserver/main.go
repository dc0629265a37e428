// Command apiserver serves the anonymization API over HTTP and the gRPC
// health service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/turtacn/PII-Anonymizer/internal/bootstrap"
	"github.com/turtacn/PII-Anonymizer/internal/config"
	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/monitoring/logging"
	grpcserver "github.com/turtacn/PII-Anonymizer/internal/interfaces/grpc"
	httpserver "github.com/turtacn/PII-Anonymizer/internal/interfaces/http"
)

const (
	defaultConfigPath   = "configs/config.yaml"
	healthCheckInterval = 15 * time.Second
)

// Build-time variables injected via ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	httpPort := flag.Int("http-port", 0, "HTTP server port (overrides config)")
	grpcPort := flag.Int("grpc-port", 0, "gRPC server port (overrides config)")
	flag.Parse()

	if _, err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}

	if err := run(*configPath, *httpPort, *grpcPort); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, httpPort, grpcPort int) error {
	cfg, watchPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if httpPort > 0 {
		cfg.Server.HTTP.Port = httpPort
	}
	if grpcPort > 0 {
		cfg.Server.GRPC.Port = grpcPort
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	logging.SetDefault(logger)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()
	rt.WatchFalsePositives(ctx)

	if watchPath != "" {
		err := config.Watch(watchPath, func(next *config.Config) {
			if err := rt.ReloadPipeline(next.Pipeline); err != nil {
				logger.Error("pipeline reload rejected", logging.Err(err))
			}
		}, func(err error) {
			logger.Warn("ignoring invalid configuration change", logging.Err(err))
		})
		if err != nil {
			logger.Warn("configuration watch disabled", logging.Err(err))
		}
	}

	logger.Info("starting PII-Anonymizer API server",
		logging.String("version", version),
		logging.Int("http_port", cfg.Server.HTTP.Port),
		logging.Bool("grpc", cfg.Server.GRPC.Enabled),
	)

	router := httpserver.NewRouter(httpserver.RouterConfigFromRuntime(rt, version))
	httpSrv := httpserver.NewServer(cfg.Server.HTTP, router, logger)

	errCh := make(chan error, 2)
	go func() { errCh <- httpSrv.Start() }()

	var grpcSrv *grpcserver.Server
	if cfg.Server.GRPC.Enabled {
		opts := []grpcserver.Option{
			grpcserver.WithLogger(logger),
			grpcserver.WithGracefulTimeout(cfg.Server.HTTP.ShutdownTimeout),
		}
		if rt.Metrics != nil {
			opts = append(opts, grpcserver.WithMetrics(rt.Metrics))
		}
		grpcSrv, err = grpcserver.NewServer(cfg.Server.GRPC, opts...)
		if err != nil {
			_ = httpSrv.Stop(context.Background())
			return err
		}
		checkers := make([]grpcserver.HealthChecker, 0)
		for _, c := range rt.Checkers() {
			checkers = append(checkers, c)
		}
		go grpcSrv.WatchHealth(ctx, healthCheckInterval, checkers...)
		go func() { errCh <- grpcSrv.Start() }()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err = <-errCh:
		if err != nil {
			logger.Error("server failed", logging.Err(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.HTTP.ShutdownTimeout)
	defer cancel()
	if stopErr := httpSrv.Stop(shutdownCtx); stopErr != nil {
		logger.Error("HTTP server shutdown error", logging.Err(stopErr))
	}
	if grpcSrv != nil {
		_ = grpcSrv.Stop(shutdownCtx)
	}
	logger.Info("servers stopped")
	return err
}

// loadConfig loads path when it exists and falls back to defaults plus
// environment otherwise.  The returned watch path is empty in the fallback
// case.
func loadConfig(path string) (*config.Config, string, error) {
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %s not found, using defaults and environment\n", path)
		cfg, err := config.LoadFromEnv()
		return cfg, "", err
	}
	cfg, err := config.Load(path)
	return cfg, path, err
}

//Personal.AI order the ending
