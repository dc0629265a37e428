// Command worker consumes DocumentSubmitted events from Kafka, runs each
// document through the anonymization service and publishes a
// DocumentAnonymized event.  Failed messages are retried with backoff and
// dead-lettered once retries are exhausted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/turtacn/PII-Anonymizer/internal/application/worker"
	"github.com/turtacn/PII-Anonymizer/internal/bootstrap"
	"github.com/turtacn/PII-Anonymizer/internal/config"
	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/PII-Anonymizer/internal/interfaces/http"
)

const defaultWorkerConfigPath = "configs/config.yaml"

var version = "dev"

func main() {
	configPath := flag.String("config", defaultWorkerConfigPath, "path to configuration file")
	workerCount := flag.Int("workers", 0, "number of group consumers (overrides worker.concurrency)")
	healthPort := flag.Int("health-port", 0, "health server port (overrides worker.health_port, 0 keeps config)")
	flag.Parse()

	if _, err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}

	if err := run(*configPath, *workerCount, *healthPort); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, workerCount, healthPort int) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	cfg.Kafka.Enabled = true
	if workerCount > 0 {
		cfg.Worker.Concurrency = workerCount
	}
	if healthPort > 0 {
		cfg.Worker.HealthPort = healthPort
	}
	if err := cfg.Validate(); err != nil {
		return err
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

	if cfg.Kafka.AutoCreateTopics {
		if err := ensureTopics(ctx, cfg.Kafka, logger); err != nil {
			return err
		}
	}

	producer, err := kafka.NewProducer(cfg.Kafka.Producer(), logger.Named("producer"))
	if err != nil {
		return err
	}
	defer producer.Close()

	opts := []worker.Option{}
	if rt.Locks != nil {
		opts = append(opts, worker.WithLocks(rt.Locks))
	}
	if rt.Metrics != nil {
		opts = append(opts, worker.WithMetrics(rt.Metrics))
	}
	handler, err := worker.NewHandler(rt.Service, producer, worker.Config{
		OutputTopic: cfg.Kafka.OutputTopic,
		Source:      cfg.Worker.Source,
		LockTTL:     cfg.Worker.LockTTL,
		Persist:     cfg.Storage.Enabled,
	}, logger.Named("worker"), opts...)
	if err != nil {
		return err
	}

	// Consumers of one group split the input partitions between them.
	consumers := make([]*kafka.Consumer, 0, cfg.Worker.Concurrency)
	defer func() {
		for _, c := range consumers {
			_ = c.Close()
		}
	}()
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		c, err := kafka.NewConsumer(cfg.Kafka.Consumer(), producer, logger.Named("consumer").With(logging.Int("consumer", i)))
		if err != nil {
			return err
		}
		c.Subscribe(cfg.Kafka.InputTopic, handler.Handle)
		if err := c.Start(ctx); err != nil {
			return err
		}
		consumers = append(consumers, c)
	}

	// The health listener serves only health checks and metrics.
	routerCfg := httpserver.RouterConfigFromRuntime(rt, version)
	routerCfg.AnonymizationHandler = nil
	healthCfg := cfg.Server.HTTP
	healthCfg.Port = cfg.Worker.HealthPort
	healthSrv := httpserver.NewServer(healthCfg, httpserver.NewRouter(routerCfg), logger)

	errCh := make(chan error, 1)
	go func() { errCh <- healthSrv.Start() }()

	logger.Info("starting PII-Anonymizer worker",
		logging.String("version", version),
		logging.Int("consumers", len(consumers)),
		logging.String("input_topic", cfg.Kafka.InputTopic),
		logging.String("output_topic", cfg.Kafka.OutputTopic),
		logging.Int("health_port", cfg.Worker.HealthPort),
	)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err = <-errCh:
		if err != nil {
			logger.Error("health server failed", logging.Err(err))
		}
	}

	// Close waits for in-flight messages; uncommitted offsets are redelivered.
	for _, c := range consumers {
		if cerr := c.Close(); cerr != nil {
			logger.Warn("consumer close failed", logging.Err(cerr))
		}
		consumed, processed, failed, dead := c.Stats()
		logger.Info("consumer stopped",
			logging.Int64("consumed", consumed),
			logging.Int64("processed", processed),
			logging.Int64("failed", failed),
			logging.Int64("dead_lettered", dead))
	}
	consumers = nil

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.HTTP.ShutdownTimeout)
	defer cancel()
	if stopErr := healthSrv.Stop(shutdownCtx); stopErr != nil {
		logger.Error("health server shutdown error", logging.Err(stopErr))
	}
	logger.Info("worker stopped", logging.Int64("published", producer.Sent()))
	return err
}

func ensureTopics(ctx context.Context, k config.KafkaConfig, logger logging.Logger) error {
	tm, err := kafka.NewTopicManager(k.Brokers, logger.Named("topics"))
	if err != nil {
		return err
	}
	defer tm.Close()

	names := map[string]string{
		kafka.TopicDocumentSubmitted:  k.InputTopic,
		kafka.TopicDocumentAnonymized: k.OutputTopic,
		kafka.TopicDeadLetter:         k.DeadLetterTopic,
	}
	for _, t := range kafka.DefaultTopics() {
		t.Name = names[t.Name]
		if t.Name == "" {
			continue
		}
		if err := tm.CreateTopic(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %s not found, using defaults and environment\n", path)
		return config.LoadFromEnv()
	}
	return config.Load(path)
}

//Personal.AI order the ending
