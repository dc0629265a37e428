// Package config defines the configuration of the PII-Anonymizer binaries.
// Component packages own their connection structs; this package composes
// them, fills defaults and validates the result.
package config

import (
	"time"

	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/database/redis"
	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/storage/minio"
	"github.com/turtacn/PII-Anonymizer/internal/intelligence/detector"
	"github.com/turtacn/PII-Anonymizer/internal/intelligence/pii"
	"github.com/turtacn/PII-Anonymizer/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// HTTPConfig holds HTTP server tunables.
type HTTPConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// CORSAllowedOrigins is empty by default: no browser origin may call
	// the API.
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
	SlowRequest        time.Duration `mapstructure:"slow_request"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig throttles the API per client IP.  A zero rate disables
// throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// GRPCConfig holds the health/reflection gRPC listener.
type GRPCConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Reflection bool   `mapstructure:"reflection"`
}

// ServerConfig groups the API listeners.
type ServerConfig struct {
	HTTP HTTPConfig `mapstructure:"http"`
	GRPC GRPCConfig `mapstructure:"grpc"`
}

// PipelineConfig mirrors pii.Config with file-friendly keys.
type PipelineConfig struct {
	Language           string            `mapstructure:"language"`
	Labels             []string          `mapstructure:"labels"`
	Threshold          float64           `mapstructure:"threshold"`
	ChunkSize          int               `mapstructure:"chunk_size"`
	ChunkOverlap       int               `mapstructure:"chunk_overlap"`
	ProximityThreshold int               `mapstructure:"proximity_threshold"`
	MaxConcurrency     int               `mapstructure:"max_concurrency"`
	FilterEnabled      bool              `mapstructure:"filter_enabled"`
	FilterFile         string            `mapstructure:"filter_file"`
	ResolveEntities    bool              `mapstructure:"resolve_entities"`
	FuzzyMatching      bool              `mapstructure:"fuzzy_matching"`
	IncludeScores      bool              `mapstructure:"include_scores"`
	PlaceholderFormat  string            `mapstructure:"placeholder_format"`
	LabelMapping       map[string]string `mapstructure:"label_mapping"`
	ClusterSimilarity  float64           `mapstructure:"cluster_similarity"`
	FuzzySimilarity    float64           `mapstructure:"fuzzy_similarity"`
}

// ToPipeline converts to the pipeline's own configuration.
func (p PipelineConfig) ToPipeline() pii.Config {
	labels := make([]string, len(p.Labels))
	copy(labels, p.Labels)
	return pii.Config{
		Labels:               labels,
		Threshold:            p.Threshold,
		ChunkSize:            p.ChunkSize,
		ChunkOverlap:         p.ChunkOverlap,
		ProximityThreshold:   p.ProximityThreshold,
		MaxConcurrency:       p.MaxConcurrency,
		FilterFalsePositives: p.FilterEnabled,
		Anonymizer: pii.AnonymizerConfig{
			ResolveEntities:   p.ResolveEntities,
			FuzzyMatching:     p.FuzzyMatching,
			IncludeScores:     p.IncludeScores,
			Format:            pii.PlaceholderFormat(p.PlaceholderFormat),
			LabelMapping:      p.LabelMapping,
			ClusterSimilarity: p.ClusterSimilarity,
			FuzzySimilarity:   p.FuzzySimilarity,
		},
	}
}

// CacheConfig controls the redis detection cache.
type CacheConfig struct {
	Enabled bool              `mapstructure:"enabled"`
	TTL     time.Duration     `mapstructure:"ttl"`
	Prefix  string            `mapstructure:"prefix"`
	Redis   redis.RedisConfig `mapstructure:"redis"`
}

// KafkaConfig configures the document queue used by the worker.
type KafkaConfig struct {
	Enabled          bool                 `mapstructure:"enabled"`
	Brokers          []string             `mapstructure:"brokers"`
	GroupID          string               `mapstructure:"group_id"`
	AutoOffsetReset  string               `mapstructure:"auto_offset_reset"`
	InputTopic       string               `mapstructure:"input_topic"`
	OutputTopic      string               `mapstructure:"output_topic"`
	DeadLetterTopic  string               `mapstructure:"dead_letter_topic"`
	MaxRetries       int                  `mapstructure:"max_retries"`
	RetryBackoff     time.Duration        `mapstructure:"retry_backoff"`
	AutoCreateTopics bool                 `mapstructure:"auto_create_topics"`
	Security         kafka.SecurityConfig `mapstructure:",squash"`
}

// Producer returns the producer settings.
func (k KafkaConfig) Producer() kafka.ProducerConfig {
	return kafka.ProducerConfig{Brokers: k.Brokers, Security: k.Security}
}

// Consumer returns the consumer settings.
func (k KafkaConfig) Consumer() kafka.ConsumerConfig {
	return kafka.ConsumerConfig{
		Brokers:         k.Brokers,
		GroupID:         k.GroupID,
		Topics:          []string{k.InputTopic},
		AutoOffsetReset: k.AutoOffsetReset,
		Retry: kafka.RetryConfig{
			MaxRetries:      k.MaxRetries,
			RetryBackoff:    k.RetryBackoff,
			DeadLetterTopic: k.DeadLetterTopic,
		},
		Security: k.Security,
	}
}

// StorageConfig controls artifact persistence.
type StorageConfig struct {
	Enabled bool         `mapstructure:"enabled"`
	MinIO   minio.Config `mapstructure:"minio"`
}

// MetricsConfig controls the Prometheus registry.
type MetricsConfig struct {
	Enabled   bool                       `mapstructure:"enabled"`
	Path      string                     `mapstructure:"path"`
	Collector prometheus.CollectorConfig `mapstructure:",squash"`
}

// WorkerConfig holds queue-worker parameters.
type WorkerConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	LockTTL     time.Duration `mapstructure:"lock_ttl"`
	Source      string        `mapstructure:"source"`
	HealthPort  int           `mapstructure:"health_port"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration shared by the CLI, API server and worker.
type Config struct {
	Server   ServerConfig      `mapstructure:"server"`
	Log      logging.LogConfig `mapstructure:"log"`
	Pipeline PipelineConfig    `mapstructure:"pipeline"`
	Detector detector.Config   `mapstructure:"detector"`
	Cache    CacheConfig       `mapstructure:"cache"`
	Kafka    KafkaConfig       `mapstructure:"kafka"`
	Storage  StorageConfig     `mapstructure:"storage"`
	Metrics  MetricsConfig     `mapstructure:"metrics"`
	Worker   WorkerConfig      `mapstructure:"worker"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

func invalid(format string, args ...interface{}) error {
	return errors.Newf(errors.CodeConfigInvalid, "config: "+format, args...)
}

// Validate checks the defaulted Config and returns the first problem found.
func (c *Config) Validate() error {
	if c.Server.HTTP.Port < 1 || c.Server.HTTP.Port > 65535 {
		return invalid("server.http.port %d is out of range [1, 65535]", c.Server.HTTP.Port)
	}
	switch c.Server.HTTP.Mode {
	case "debug", "release", "test":
	default:
		return invalid("server.http.mode %q is invalid; expected debug|release|test", c.Server.HTTP.Mode)
	}
	if rl := c.Server.HTTP.RateLimit; rl.RequestsPerSecond < 0 || (rl.RequestsPerSecond > 0 && rl.Burst < 1) {
		return invalid("server.http.rate_limit needs requests_per_second >= 0 and burst >= 1")
	}
	if c.Server.GRPC.Enabled && (c.Server.GRPC.Port < 1 || c.Server.GRPC.Port > 65535) {
		return invalid("server.grpc.port %d is out of range [1, 65535]", c.Server.GRPC.Port)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}

	if err := c.Pipeline.ToPipeline().Validate(); err != nil {
		return errors.Wrap(err, errors.CodeConfigInvalid, "config: pipeline")
	}

	switch c.Detector.Kind {
	case detector.KindPattern:
	case detector.KindHTTP:
		if c.Detector.Endpoint == "" {
			return invalid("detector.endpoint is required for kind %q", detector.KindHTTP)
		}
	default:
		return invalid("detector.kind %q is invalid; expected pattern|http", c.Detector.Kind)
	}

	if c.Cache.Enabled && c.Cache.Redis.Addr == "" && len(c.Cache.Redis.ClusterAddrs) == 0 && len(c.Cache.Redis.SentinelAddrs) == 0 {
		return invalid("cache.redis needs an address when the cache is enabled")
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return invalid("kafka.brokers must not be empty")
		}
		if c.Kafka.InputTopic == "" || c.Kafka.OutputTopic == "" {
			return invalid("kafka.input_topic and kafka.output_topic are required")
		}
	}

	if c.Storage.Enabled && c.Storage.MinIO.Endpoint == "" {
		return invalid("storage.minio.endpoint is required when storage is enabled")
	}

	if c.Metrics.Enabled && c.Metrics.Collector.Namespace == "" {
		return invalid("metrics.namespace is required when metrics are enabled")
	}

	if c.Worker.HealthPort < 0 || c.Worker.HealthPort > 65535 {
		return invalid("worker.health_port %d is out of range", c.Worker.HealthPort)
	}
	if c.Worker.Concurrency < 1 {
		return invalid("worker.concurrency must be >= 1")
	}
	return nil
}

//Personal.AI order the ending
