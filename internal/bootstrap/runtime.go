// Package bootstrap assembles the long-lived components shared by the CLI,
// the API server and the queue worker from a loaded configuration.
package bootstrap

import (
	"context"
	"os"

	"github.com/turtacn/PII-Anonymizer/internal/application/anonymization"
	"github.com/turtacn/PII-Anonymizer/internal/config"
	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/database/redis"
	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/storage/minio"
	"github.com/turtacn/PII-Anonymizer/internal/intelligence/detector"
	"github.com/turtacn/PII-Anonymizer/internal/intelligence/pii"
)

// Checker is a named health check.  It satisfies the HTTP health handler's
// checker interface.
type Checker struct {
	name  string
	check func(ctx context.Context) error
}

// NewChecker builds a Checker.
func NewChecker(name string, check func(ctx context.Context) error) Checker {
	return Checker{name: name, check: check}
}

func (c Checker) Name() string                    { return c.name }
func (c Checker) Check(ctx context.Context) error { return c.check(ctx) }

// Runtime holds the wired components.  Optional components are nil when
// disabled in the configuration.
type Runtime struct {
	Config *config.Config
	Logger logging.Logger

	Collector prometheus.MetricsCollector
	Metrics   *prometheus.AppMetrics

	Redis *redis.Client
	Locks redis.LockFactory

	Artifacts      *minio.ArtifactRepository
	FalsePositives *config.FalsePositiveReloader

	Detector pii.Detector
	Service  anonymization.Service

	reloadable *anonymization.Reloadable
	svcOpts    []anonymization.Option
	checkers   []Checker
	closers    []func() error
}

// New wires every component enabled in cfg.  On error, whatever was already
// opened is closed.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger) (_ *Runtime, err error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	rt := &Runtime{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	var pipelineMetrics *prometheus.PipelineMetrics
	if cfg.Metrics.Enabled {
		rt.Collector, err = prometheus.NewMetricsCollector(cfg.Metrics.Collector, logger.Named("metrics"))
		if err != nil {
			return nil, err
		}
		rt.Metrics = prometheus.NewAppMetrics(rt.Collector)
		pipelineMetrics = prometheus.NewPipelineMetrics(rt.Metrics)
	}

	rt.Detector, err = detector.New(cfg.Detector, logger.Named("detector"))
	if err != nil {
		return nil, err
	}

	if cfg.Cache.Enabled {
		rt.Redis, err = redis.NewClient(&cfg.Cache.Redis, logger.Named("redis"))
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, rt.Redis.Close)
		rt.Locks = redis.NewLockFactory(rt.Redis, logger.Named("lock"))
		rt.checkers = append(rt.checkers, NewChecker("redis", rt.Redis.Ping))

		cache := redis.NewRedisCache(rt.Redis, logger.Named("cache"),
			redis.WithPrefix(cfg.Cache.Prefix),
			redis.WithDefaultTTL(cfg.Cache.TTL),
		)
		opts := []detector.CachingOption{detector.WithNamespace(cfg.Detector.Kind)}
		if pipelineMetrics != nil {
			opts = append(opts, detector.WithCacheObserver(pipelineMetrics))
		}
		rt.Detector = detector.NewCachingDetector(rt.Detector, cache, cfg.Cache.TTL, logger.Named("detector"), opts...)
	}

	if cfg.Storage.Enabled {
		api, err := minio.NewAPI(cfg.Storage.MinIO)
		if err != nil {
			return nil, err
		}
		if err := minio.EnsureBucket(ctx, api, cfg.Storage.MinIO, logger.Named("minio")); err != nil {
			return nil, err
		}
		rt.Artifacts = minio.NewArtifactRepository(api, cfg.Storage.MinIO, logger.Named("artifacts"))
		rt.checkers = append(rt.checkers, NewChecker("minio", rt.Artifacts.HealthCheck))
	}

	if cfg.Pipeline.FilterEnabled || fileExists(cfg.Pipeline.FilterFile) {
		rt.FalsePositives = config.NewFalsePositiveReloader(cfg.Pipeline.FilterFile, logger)
	}

	svcOpts := []anonymization.Option{anonymization.WithLanguage(cfg.Pipeline.Language)}
	if pipelineMetrics != nil {
		svcOpts = append(svcOpts, anonymization.WithMetrics(pipelineMetrics))
	}
	if rt.FalsePositives != nil {
		svcOpts = append(svcOpts, anonymization.WithFalsePositives(rt.FalsePositives))
	}
	if rt.Artifacts != nil {
		svcOpts = append(svcOpts, anonymization.WithArtifactStore(rt.Artifacts))
	}
	svc, err := anonymization.NewService(cfg.Pipeline.ToPipeline(), rt.Detector, logger.Named("anonymization"), svcOpts...)
	if err != nil {
		return nil, err
	}
	rt.svcOpts = svcOpts
	rt.reloadable = anonymization.NewReloadable(svc)
	rt.Service = rt.reloadable

	logger.Info("runtime initialized",
		logging.String("detector", cfg.Detector.Kind),
		logging.Bool("cache", cfg.Cache.Enabled),
		logging.Bool("storage", cfg.Storage.Enabled),
		logging.Bool("metrics", cfg.Metrics.Enabled),
	)
	return rt, nil
}

// ReloadPipeline rebuilds the service from p and swaps it in.  Detector,
// cache, storage and metrics wiring are kept; changing those needs a
// restart.  On error the running service stays in place.
func (r *Runtime) ReloadPipeline(p config.PipelineConfig) error {
	opts := append(append([]anonymization.Option(nil), r.svcOpts...), anonymization.WithLanguage(p.Language))
	svc, err := anonymization.NewService(p.ToPipeline(), r.Detector, r.Logger.Named("anonymization"), opts...)
	if err != nil {
		return err
	}
	r.reloadable.Swap(svc)
	r.Logger.Info("pipeline configuration reloaded",
		logging.Strings("labels", p.Labels),
		logging.Float64("threshold", p.Threshold),
		logging.String("placeholder_format", p.PlaceholderFormat))
	return nil
}

// AddChecker registers an extra health check, e.g. for a Kafka connection
// owned by the caller.
func (r *Runtime) AddChecker(c Checker) { r.checkers = append(r.checkers, c) }

// AddCloser registers a cleanup function run by Close.
func (r *Runtime) AddCloser(fn func() error) { r.closers = append(r.closers, fn) }

// Checkers returns the health checks of the enabled components.
func (r *Runtime) Checkers() []Checker {
	out := make([]Checker, len(r.checkers))
	copy(out, r.checkers)
	return out
}

// WatchFalsePositives reloads the false-positive table on file changes until
// ctx is done.  It is a no-op when no table is configured.
func (r *Runtime) WatchFalsePositives(ctx context.Context) {
	if r.FalsePositives == nil {
		return
	}
	go func() {
		if err := r.FalsePositives.Watch(ctx); err != nil {
			r.Logger.Warn("false-positive watch stopped", logging.Err(err))
		}
	}()
}

// Close releases resources in reverse order of acquisition.
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			r.Logger.Warn("close failed", logging.Err(err))
		}
	}
	r.closers = nil
	_ = r.Logger.Sync()
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

//Personal.AI order the ending
