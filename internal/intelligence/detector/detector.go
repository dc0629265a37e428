// Package detector provides pii.Detector implementations: a client for an
// external span-prediction server, an offline regex and gazetteer recognizer,
// and a redis-backed caching decorator.
package detector

import (
	"strings"
	"time"

	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PII-Anonymizer/internal/intelligence/pii"
	"github.com/turtacn/PII-Anonymizer/pkg/errors"
)

// Detector kinds accepted by New.
const (
	KindHTTP    = "http"
	KindPattern = "pattern"
)

// Config selects and tunes a detector.
type Config struct {
	Kind     string        `mapstructure:"kind" yaml:"kind"`
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`

	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`

	// BreakerThreshold consecutive failures open the circuit for
	// BreakerReset.  0 disables the breaker.
	BreakerThreshold int           `mapstructure:"breaker_threshold" yaml:"breaker_threshold"`
	BreakerReset     time.Duration `mapstructure:"breaker_reset" yaml:"breaker_reset"`

	// CacheTTL enables the detection cache when positive and a cache is
	// configured.
	CacheTTL time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`

	// Gazetteer lists known entity texts per label for the pattern detector.
	Gazetteer map[string][]string `mapstructure:"gazetteer" yaml:"gazetteer"`
}

// DefaultConfig returns the offline pattern detector.
func DefaultConfig() Config {
	return Config{
		Kind:             KindPattern,
		Timeout:          30 * time.Second,
		MaxRetries:       3,
		InitialBackoff:   200 * time.Millisecond,
		MaxBackoff:       5 * time.Second,
		BreakerThreshold: 5,
		BreakerReset:     30 * time.Second,
		CacheTTL:         24 * time.Hour,
	}
}

// New builds the detector named by cfg.Kind.
func New(cfg Config, logger logging.Logger) (pii.Detector, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	switch strings.ToLower(cfg.Kind) {
	case KindHTTP:
		return NewHTTPDetector(cfg, logger)
	case KindPattern, "":
		opts := make([]PatternOption, 0, len(cfg.Gazetteer))
		for label, entries := range cfg.Gazetteer {
			opts = append(opts, WithGazetteer(label, entries...))
		}
		return NewPatternDetector(opts...), nil
	default:
		return nil, errors.Newf(errors.CodeDetectorUnknownKind, "unknown detector kind %q", cfg.Kind)
	}
}

//Personal.AI order the ending
