package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PII-Anonymizer/internal/intelligence/pii"
	"github.com/turtacn/PII-Anonymizer/pkg/errors"
)

func defaultedConfig() *Config {
	cfg := &Config{Worker: WorkerConfig{}}
	ApplyDefaults(cfg)
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := defaultedConfig()

	assert.Equal(t, DefaultHTTPPort, cfg.Server.HTTP.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, pii.DefaultLabels, cfg.Pipeline.Labels)
	assert.Equal(t, pii.DefaultChunkOverlap, cfg.Pipeline.ChunkOverlap)
	assert.Equal(t, "brackets", cfg.Pipeline.PlaceholderFormat)
	assert.Equal(t, pii.DefaultLabelMapping, cfg.Pipeline.LabelMapping)
	assert.Equal(t, "pattern", cfg.Detector.Kind)
	assert.Equal(t, "piianon-artifacts", cfg.Storage.MinIO.Bucket)
	assert.Equal(t, DefaultWorkerConcurrency, cfg.Worker.Concurrency)

	ApplyDefaults(nil)
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Pipeline.ChunkSize = 500
	cfg.Pipeline.Labels = []string{"email"}
	ApplyDefaults(cfg)

	assert.Equal(t, 500, cfg.Pipeline.ChunkSize)
	assert.Equal(t, []string{"email"}, cfg.Pipeline.Labels)
}

func TestApplyDefaults_RateLimitBurst(t *testing.T) {
	cfg := defaultedConfig()
	assert.Zero(t, cfg.Server.HTTP.RateLimit.Burst)

	cfg = &Config{}
	cfg.Server.HTTP.RateLimit.RequestsPerSecond = 5
	ApplyDefaults(cfg)
	assert.Equal(t, DefaultRateLimitBurst, cfg.Server.HTTP.RateLimit.Burst)
}

func TestApplyDefaults_LabelMappingIsCopied(t *testing.T) {
	cfg := defaultedConfig()
	cfg.Pipeline.LabelMapping["person"] = "X"
	assert.NotEqual(t, "X", pii.DefaultLabelMapping["person"])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.HTTP.Port = 70000 }},
		{"bad gin mode", func(c *Config) { c.Server.HTTP.Mode = "loud" }},
		{"negative rate limit", func(c *Config) { c.Server.HTTP.RateLimit.RequestsPerSecond = -1 }},
		{"rate limit without burst", func(c *Config) { c.Server.HTTP.RateLimit = RateLimitConfig{RequestsPerSecond: 5} }},
		{"grpc port", func(c *Config) { c.Server.GRPC.Enabled = true; c.Server.GRPC.Port = -1 }},
		{"log level", func(c *Config) { c.Log.Level = "trace" }},
		{"threshold", func(c *Config) { c.Pipeline.Threshold = 1.5 }},
		{"overlap too large", func(c *Config) { c.Pipeline.ChunkOverlap = c.Pipeline.ChunkSize }},
		{"placeholder format", func(c *Config) { c.Pipeline.PlaceholderFormat = "square" }},
		{"http detector without endpoint", func(c *Config) { c.Detector.Kind = "http" }},
		{"unknown detector", func(c *Config) { c.Detector.Kind = "onnx" }},
		{"cache without address", func(c *Config) { c.Cache.Enabled = true }},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }},
		{"storage without endpoint", func(c *Config) { c.Storage.Enabled = true }},
		{"metrics without namespace", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Collector.Namespace = "" }},
		{"worker concurrency", func(c *Config) { c.Worker.Concurrency = -2 }},
	}

	require.NoError(t, defaultedConfig().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultedConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.CodeConfigInvalid), "got %v", err)
		})
	}
}

func TestPipelineConfig_ToPipeline(t *testing.T) {
	cfg := defaultedConfig()
	cfg.Pipeline.FilterEnabled = true
	cfg.Pipeline.ResolveEntities = true
	cfg.Pipeline.PlaceholderFormat = "curly"

	pc := cfg.Pipeline.ToPipeline()
	require.NoError(t, pc.Validate())
	assert.True(t, pc.FilterFalsePositives)
	assert.True(t, pc.Anonymizer.ResolveEntities)
	assert.Equal(t, pii.FormatCurly, pc.Anonymizer.Format)
	assert.Equal(t, cfg.Pipeline.Threshold, pc.Threshold)

	pc.Labels[0] = "changed"
	assert.NotEqual(t, "changed", cfg.Pipeline.Labels[0])
}

func TestKafkaConfig_Producer(t *testing.T) {
	k := KafkaConfig{Brokers: []string{"b:9092"}}
	k.Security.SASLMechanism = "PLAIN"
	p := k.Producer()
	assert.Equal(t, []string{"b:9092"}, p.Brokers)
	assert.Equal(t, "PLAIN", p.Security.SASLMechanism)
}

//Personal.AI order the ending
