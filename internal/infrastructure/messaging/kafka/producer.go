package kafka

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PII-Anonymizer/pkg/errors"
)

var ErrProducerClosed = errors.New(errors.CodeMessagePublish, "producer closed")

// ProducerConfig configures the writer.
type ProducerConfig struct {
	Brokers          []string       `mapstructure:"brokers"`
	Acks             string         `mapstructure:"acks"`
	MaxRetries       int            `mapstructure:"max_retries"`
	BatchSize        int            `mapstructure:"batch_size"`
	BatchTimeout     time.Duration  `mapstructure:"batch_timeout"`
	MaxMessageBytes  int            `mapstructure:"max_message_bytes"`
	CompressionCodec string         `mapstructure:"compression"`
	WriteTimeout     time.Duration  `mapstructure:"write_timeout"`
	Security         SecurityConfig `mapstructure:",squash"`
}

// ProducerMetrics are running totals.
type ProducerMetrics struct {
	MessagesSent   atomic.Int64
	MessagesFailed atomic.Int64
	BytesSent      atomic.Int64
}

// Writer abstracts kafka.Writer for tests.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes messages synchronously.
type Producer struct {
	writer  Writer
	config  ProducerConfig
	logger  logging.Logger
	closed  atomic.Bool
	metrics *ProducerMetrics
}

// NewProducer builds a hash-balanced writer so all events of one document
// land on one partition.
func NewProducer(cfg ProducerConfig, logger logging.Logger) (*Producer, error) {
	if err := ValidateProducerConfig(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	cfg = producerDefaults(cfg)

	tlsCfg, err := cfg.Security.tlsConfig()
	if err != nil {
		return nil, err
	}
	mech, err := cfg.Security.mechanism()
	if err != nil {
		return nil, err
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		MaxAttempts:  cfg.MaxRetries + 1,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		BatchBytes:   int64(cfg.MaxMessageBytes),
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: requiredAcks(cfg.Acks),
		Compression:  compression(cfg.CompressionCodec),
		Transport:    &kafka.Transport{DialTimeout: 10 * time.Second, TLS: tlsCfg, SASL: mech},
	}
	return newProducer(writer, cfg, logger), nil
}

func newProducer(w Writer, cfg ProducerConfig, logger logging.Logger) *Producer {
	return &Producer{writer: w, config: producerDefaults(cfg), logger: logger, metrics: &ProducerMetrics{}}
}

func producerDefaults(cfg ProducerConfig) ProducerConfig {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 1
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.MaxMessageBytes == 0 {
		cfg.MaxMessageBytes = 4 << 20
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return cfg
}

func requiredAcks(acks string) kafka.RequiredAcks {
	switch acks {
	case "none":
		return kafka.RequireNone
	case "one":
		return kafka.RequireOne
	default:
		return kafka.RequireAll
	}
}

func compression(codec string) kafka.Compression {
	switch codec {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return 0
	}
}

// Publish writes one message and waits for the broker acknowledgement.
func (p *Producer) Publish(ctx context.Context, msg *ProducerMessage) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if msg.Topic == "" {
		return errors.New(errors.CodeValidation, "topic required")
	}
	if len(msg.Value) == 0 {
		return errors.New(errors.CodeValidation, "message value required")
	}
	if len(msg.Value) > p.config.MaxMessageBytes {
		return errors.Newf(errors.CodeValidation, "message of %d bytes exceeds limit %d", len(msg.Value), p.config.MaxMessageBytes)
	}

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, toKafkaMessage(msg)); err != nil {
		p.metrics.MessagesFailed.Add(1)
		return errors.Wrapf(err, errors.CodeMessagePublish, "publish to %s", msg.Topic)
	}
	p.metrics.MessagesSent.Add(1)
	p.metrics.BytesSent.Add(int64(len(msg.Value)))

	p.logger.Debug("message published",
		logging.String("topic", msg.Topic),
		logging.Duration("latency", time.Since(start)))
	return nil
}

// Sent returns the number of successfully published messages.
func (p *Producer) Sent() int64 { return p.metrics.MessagesSent.Load() }

// Failed returns the number of failed publishes.
func (p *Producer) Failed() int64 { return p.metrics.MessagesFailed.Load() }

// Close flushes and closes the writer.  Further calls are no-ops.
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := p.writer.Close()
	p.logger.Info("kafka producer closed", logging.Int64("sent", p.metrics.MessagesSent.Load()))
	return err
}

func toKafkaMessage(msg *ProducerMessage) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Headers))
	for k, v := range msg.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return kafka.Message{Topic: msg.Topic, Key: msg.Key, Value: msg.Value, Headers: headers, Time: ts}
}

// ValidateProducerConfig checks required fields.
func ValidateProducerConfig(cfg ProducerConfig) error {
	if len(cfg.Brokers) == 0 {
		return errors.New(errors.CodeConfigInvalid, "kafka brokers required")
	}
	if cfg.MaxRetries < 0 {
		return errors.New(errors.CodeConfigInvalid, "kafka max retries must be >= 0")
	}
	return cfg.Security.validate()
}

//Personal.AI order the ending
