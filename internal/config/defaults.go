package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/PII-Anonymizer/internal/intelligence/detector"
	"github.com/turtacn/PII-Anonymizer/internal/intelligence/pii"
)

// ─────────────────────────────────────────────────────────────────────────────
// Default values
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultHTTPHost            = "0.0.0.0"
	DefaultHTTPPort            = 8080
	DefaultHTTPMode            = "release"
	DefaultHTTPReadTimeout     = 30 * time.Second
	DefaultHTTPWriteTimeout    = 120 * time.Second
	DefaultHTTPMaxBodySize     = 10 << 20
	DefaultHTTPShutdownTimeout = 15 * time.Second
	DefaultHTTPSlowRequest     = 30 * time.Second
	DefaultRateLimitBurst      = 20
	DefaultGRPCPort            = 9090

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultCacheTTL    = 24 * time.Hour
	DefaultCachePrefix = "piianon:"
	DefaultRedisAddr   = "localhost:6379"

	DefaultKafkaGroupID      = "piianon-worker"
	DefaultKafkaOffsetReset  = "earliest"
	DefaultKafkaMaxRetries   = 3
	DefaultKafkaRetryBackoff = time.Second

	DefaultMetricsNamespace = "piianon"
	DefaultMetricsPath      = "/metrics"

	DefaultWorkerConcurrency = 4
	DefaultWorkerLockTTL     = 5 * time.Minute
	DefaultWorkerSource      = "piianon-worker"
	DefaultWorkerHealthPort  = 8081
)

// setViperDefaults registers every scalar key so that environment variables
// are picked up by Unmarshal even when the file omits the key.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("server.http.host", DefaultHTTPHost)
	v.SetDefault("server.http.port", DefaultHTTPPort)
	v.SetDefault("server.http.mode", DefaultHTTPMode)
	v.SetDefault("server.http.read_timeout", DefaultHTTPReadTimeout)
	v.SetDefault("server.http.write_timeout", DefaultHTTPWriteTimeout)
	v.SetDefault("server.http.max_body_size", DefaultHTTPMaxBodySize)
	v.SetDefault("server.http.shutdown_timeout", DefaultHTTPShutdownTimeout)
	v.SetDefault("server.http.cors_allowed_origins", []string{})
	v.SetDefault("server.http.slow_request", DefaultHTTPSlowRequest)
	v.SetDefault("server.http.rate_limit.requests_per_second", 0.0)
	v.SetDefault("server.http.rate_limit.burst", 0)
	v.SetDefault("server.grpc.enabled", false)
	v.SetDefault("server.grpc.host", DefaultHTTPHost)
	v.SetDefault("server.grpc.port", DefaultGRPCPort)
	v.SetDefault("server.grpc.reflection", false)

	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)

	v.SetDefault("pipeline.language", pii.DefaultLanguage)
	v.SetDefault("pipeline.labels", pii.DefaultLabels)
	v.SetDefault("pipeline.threshold", pii.DefaultThreshold)
	v.SetDefault("pipeline.chunk_size", pii.DefaultChunkSize)
	v.SetDefault("pipeline.chunk_overlap", pii.DefaultChunkOverlap)
	v.SetDefault("pipeline.proximity_threshold", pii.DefaultProximityThreshold)
	v.SetDefault("pipeline.max_concurrency", pii.DefaultMaxConcurrency)
	v.SetDefault("pipeline.filter_enabled", false)
	v.SetDefault("pipeline.filter_file", pii.DefaultFalsePositivesFile)
	v.SetDefault("pipeline.resolve_entities", true)
	v.SetDefault("pipeline.fuzzy_matching", true)
	v.SetDefault("pipeline.include_scores", false)
	v.SetDefault("pipeline.placeholder_format", string(pii.FormatBrackets))
	v.SetDefault("pipeline.label_mapping", pii.DefaultLabelMapping)
	v.SetDefault("pipeline.cluster_similarity", pii.DefaultClusterSimilarity)
	v.SetDefault("pipeline.fuzzy_similarity", pii.DefaultFuzzySimilarity)

	d := detector.DefaultConfig()
	v.SetDefault("detector.kind", d.Kind)
	v.SetDefault("detector.endpoint", "")
	v.SetDefault("detector.timeout", d.Timeout)
	v.SetDefault("detector.max_retries", d.MaxRetries)
	v.SetDefault("detector.initial_backoff", d.InitialBackoff)
	v.SetDefault("detector.max_backoff", d.MaxBackoff)
	v.SetDefault("detector.breaker_threshold", d.BreakerThreshold)
	v.SetDefault("detector.breaker_reset", d.BreakerReset)
	v.SetDefault("detector.cache_ttl", d.CacheTTL)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", DefaultCacheTTL)
	v.SetDefault("cache.prefix", DefaultCachePrefix)
	v.SetDefault("cache.redis.mode", "standalone")
	v.SetDefault("cache.redis.addr", DefaultRedisAddr)
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.group_id", DefaultKafkaGroupID)
	v.SetDefault("kafka.auto_offset_reset", DefaultKafkaOffsetReset)
	v.SetDefault("kafka.input_topic", kafka.TopicDocumentSubmitted)
	v.SetDefault("kafka.output_topic", kafka.TopicDocumentAnonymized)
	v.SetDefault("kafka.dead_letter_topic", kafka.TopicDeadLetter)
	v.SetDefault("kafka.max_retries", DefaultKafkaMaxRetries)
	v.SetDefault("kafka.retry_backoff", DefaultKafkaRetryBackoff)
	v.SetDefault("kafka.auto_create_topics", false)

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.minio.endpoint", "")
	v.SetDefault("storage.minio.access_key_id", "")
	v.SetDefault("storage.minio.secret_access_key", "")
	v.SetDefault("storage.minio.use_ssl", false)
	v.SetDefault("storage.minio.bucket", "piianon-artifacts")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", DefaultMetricsPath)
	v.SetDefault("metrics.namespace", DefaultMetricsNamespace)
	v.SetDefault("metrics.enable_go_metrics", true)
	v.SetDefault("metrics.enable_process_metrics", true)

	v.SetDefault("worker.concurrency", DefaultWorkerConcurrency)
	v.SetDefault("worker.lock_ttl", DefaultWorkerLockTTL)
	v.SetDefault("worker.source", DefaultWorkerSource)
	v.SetDefault("worker.health_port", DefaultWorkerHealthPort)
}

// ApplyDefaults fills zero-valued fields of a programmatically built Config.
// Booleans are left as given.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// Server
	if cfg.Server.HTTP.Host == "" {
		cfg.Server.HTTP.Host = DefaultHTTPHost
	}
	if cfg.Server.HTTP.Port == 0 {
		cfg.Server.HTTP.Port = DefaultHTTPPort
	}
	if cfg.Server.HTTP.Mode == "" {
		cfg.Server.HTTP.Mode = DefaultHTTPMode
	}
	if cfg.Server.HTTP.ReadTimeout == 0 {
		cfg.Server.HTTP.ReadTimeout = DefaultHTTPReadTimeout
	}
	if cfg.Server.HTTP.WriteTimeout == 0 {
		cfg.Server.HTTP.WriteTimeout = DefaultHTTPWriteTimeout
	}
	if cfg.Server.HTTP.MaxBodySize == 0 {
		cfg.Server.HTTP.MaxBodySize = DefaultHTTPMaxBodySize
	}
	if cfg.Server.HTTP.ShutdownTimeout == 0 {
		cfg.Server.HTTP.ShutdownTimeout = DefaultHTTPShutdownTimeout
	}
	if cfg.Server.HTTP.SlowRequest == 0 {
		cfg.Server.HTTP.SlowRequest = DefaultHTTPSlowRequest
	}
	if cfg.Server.HTTP.RateLimit.RequestsPerSecond > 0 && cfg.Server.HTTP.RateLimit.Burst == 0 {
		cfg.Server.HTTP.RateLimit.Burst = DefaultRateLimitBurst
	}
	if cfg.Server.GRPC.Host == "" {
		cfg.Server.GRPC.Host = DefaultHTTPHost
	}
	if cfg.Server.GRPC.Port == 0 {
		cfg.Server.GRPC.Port = DefaultGRPCPort
	}

	// Log
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// Pipeline
	p := &cfg.Pipeline
	if p.Language == "" {
		p.Language = pii.DefaultLanguage
	}
	if len(p.Labels) == 0 {
		p.Labels = append([]string(nil), pii.DefaultLabels...)
	}
	if p.ChunkSize == 0 {
		p.ChunkSize = pii.DefaultChunkSize
	}
	if p.ChunkOverlap == 0 {
		p.ChunkOverlap = pii.DefaultChunkOverlap
	}
	if p.ProximityThreshold == 0 {
		p.ProximityThreshold = pii.DefaultProximityThreshold
	}
	if p.MaxConcurrency == 0 {
		p.MaxConcurrency = pii.DefaultMaxConcurrency
	}
	if p.FilterFile == "" {
		p.FilterFile = pii.DefaultFalsePositivesFile
	}
	if p.PlaceholderFormat == "" {
		p.PlaceholderFormat = string(pii.FormatBrackets)
	}
	if p.LabelMapping == nil {
		p.LabelMapping = make(map[string]string, len(pii.DefaultLabelMapping))
		for k, v := range pii.DefaultLabelMapping {
			p.LabelMapping[k] = v
		}
	}
	if p.ClusterSimilarity == 0 {
		p.ClusterSimilarity = pii.DefaultClusterSimilarity
	}
	if p.FuzzySimilarity == 0 {
		p.FuzzySimilarity = pii.DefaultFuzzySimilarity
	}

	// Detector
	d := detector.DefaultConfig()
	if cfg.Detector.Kind == "" {
		cfg.Detector.Kind = d.Kind
	}
	if cfg.Detector.Timeout == 0 {
		cfg.Detector.Timeout = d.Timeout
	}
	if cfg.Detector.MaxRetries == 0 {
		cfg.Detector.MaxRetries = d.MaxRetries
	}
	if cfg.Detector.InitialBackoff == 0 {
		cfg.Detector.InitialBackoff = d.InitialBackoff
	}
	if cfg.Detector.MaxBackoff == 0 {
		cfg.Detector.MaxBackoff = d.MaxBackoff
	}

	// Cache
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = DefaultCacheTTL
	}
	if cfg.Cache.Prefix == "" {
		cfg.Cache.Prefix = DefaultCachePrefix
	}

	// Kafka
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.AutoOffsetReset == "" {
		cfg.Kafka.AutoOffsetReset = DefaultKafkaOffsetReset
	}
	if cfg.Kafka.InputTopic == "" {
		cfg.Kafka.InputTopic = kafka.TopicDocumentSubmitted
	}
	if cfg.Kafka.OutputTopic == "" {
		cfg.Kafka.OutputTopic = kafka.TopicDocumentAnonymized
	}
	if cfg.Kafka.MaxRetries == 0 {
		cfg.Kafka.MaxRetries = DefaultKafkaMaxRetries
	}
	if cfg.Kafka.RetryBackoff == 0 {
		cfg.Kafka.RetryBackoff = DefaultKafkaRetryBackoff
	}

	// Storage
	cfg.Storage.MinIO.ApplyDefaults()

	// Metrics
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Metrics.Collector.Namespace == "" {
		cfg.Metrics.Collector.Namespace = DefaultMetricsNamespace
	}

	// Worker
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = DefaultWorkerConcurrency
	}
	if cfg.Worker.LockTTL == 0 {
		cfg.Worker.LockTTL = DefaultWorkerLockTTL
	}
	if cfg.Worker.Source == "" {
		cfg.Worker.Source = DefaultWorkerSource
	}
	if cfg.Worker.HealthPort == 0 {
		cfg.Worker.HealthPort = DefaultWorkerHealthPort
	}
}

//Personal.AI order the ending
