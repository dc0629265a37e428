package kafka

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PII-Anonymizer/pkg/errors"
)

var ErrAlreadyRunning = errors.New(errors.CodeMessageConsume, "consumer already running")

// Dead-letter headers.
const (
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderAttempts      = "x-attempts"
)

// RetryConfig controls handler retries before a message is dead-lettered.
type RetryConfig struct {
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
	DeadLetterTopic string        `mapstructure:"dead_letter_topic"`
}

// ConsumerConfig configures the group reader.
type ConsumerConfig struct {
	Brokers         []string       `mapstructure:"brokers"`
	GroupID         string         `mapstructure:"group_id"`
	Topics          []string       `mapstructure:"topics"`
	AutoOffsetReset string         `mapstructure:"auto_offset_reset"`
	SessionTimeout  time.Duration  `mapstructure:"session_timeout"`
	MaxWait         time.Duration  `mapstructure:"max_wait"`
	FetchMaxBytes   int            `mapstructure:"fetch_max_bytes"`
	Retry           RetryConfig    `mapstructure:"retry"`
	Security        SecurityConfig `mapstructure:",squash"`
}

// ConsumerMetrics are running totals.
type ConsumerMetrics struct {
	Consumed     atomic.Int64
	Processed    atomic.Int64
	Failed       atomic.Int64
	Retried      atomic.Int64
	DeadLettered atomic.Int64
}

// Reader abstracts kafka.Reader for tests.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer dispatches messages to per-topic handlers and commits offsets
// after each message is handled or dead-lettered.
type Consumer struct {
	reader     Reader
	config     ConsumerConfig
	logger     logging.Logger
	deadLetter Publisher

	handlers map[string]MessageHandler
	mu       sync.RWMutex

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	metrics *ConsumerMetrics
}

// NewConsumer builds a group reader.  deadLetter may be nil when
// Retry.DeadLetterTopic is empty.
func NewConsumer(cfg ConsumerConfig, deadLetter Publisher, logger logging.Logger) (*Consumer, error) {
	if err := ValidateConsumerConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.Retry.DeadLetterTopic != "" && deadLetter == nil {
		return nil, errors.New(errors.CodeConfigInvalid, "dead letter topic set without a publisher")
	}
	if cfg.SessionTimeout == 0 {
		cfg.SessionTimeout = 30 * time.Second
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = time.Second
	}
	if cfg.FetchMaxBytes == 0 {
		cfg.FetchMaxBytes = 10 << 20
	}

	tlsCfg, err := cfg.Security.tlsConfig()
	if err != nil {
		return nil, err
	}
	mech, err := cfg.Security.mechanism()
	if err != nil {
		return nil, err
	}

	readerCfg := kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		GroupTopics:    cfg.Topics,
		MaxBytes:       cfg.FetchMaxBytes,
		MaxWait:        cfg.MaxWait,
		SessionTimeout: cfg.SessionTimeout,
		StartOffset:    kafka.FirstOffset,
		Dialer:         &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true, TLS: tlsCfg, SASLMechanism: mech},
	}
	if cfg.AutoOffsetReset == "latest" {
		readerCfg.StartOffset = kafka.LastOffset
	}

	return newConsumer(kafka.NewReader(readerCfg), cfg, deadLetter, logger), nil
}

func newConsumer(r Reader, cfg ConsumerConfig, deadLetter Publisher, logger logging.Logger) *Consumer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 3
	}
	if cfg.Retry.RetryBackoff == 0 {
		cfg.Retry.RetryBackoff = time.Second
	}
	if cfg.Retry.MaxRetryBackoff == 0 {
		cfg.Retry.MaxRetryBackoff = 30 * time.Second
	}
	return &Consumer{
		reader:     r,
		config:     cfg,
		logger:     logger,
		deadLetter: deadLetter,
		handlers:   make(map[string]MessageHandler),
		metrics:    &ConsumerMetrics{},
	}
}

// Subscribe registers handler for topic.
func (c *Consumer) Subscribe(topic string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = handler
	c.logger.Info("subscribed to topic", logging.String("topic", topic))
}

// Start runs the consume loop in the background until ctx ends or Close.
func (c *Consumer) Start(ctx context.Context) error {
	if c.running.Swap(true) {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.Info("kafka consumer started", logging.String("group", c.config.GroupID))
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()
	for ctx.Err() == nil {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("fetch message failed", logging.Err(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		c.metrics.Consumed.Add(1)

		msg := fromKafkaMessage(m)
		c.mu.RLock()
		handler, ok := c.handlers[m.Topic]
		c.mu.RUnlock()

		if !ok {
			c.logger.Warn("no handler for topic", logging.String("topic", m.Topic))
		} else if err := c.processMessage(ctx, msg, handler); err != nil {
			// Cancelled mid-retry: leave the offset uncommitted for redelivery.
			return
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Error("commit failed", logging.Err(err), logging.Int64("offset", m.Offset))
		}
	}
}

// processMessage runs handler with exponential backoff.  Once retries are
// exhausted the message is dead-lettered (or dropped) and nil is returned;
// only cancellation yields an error.
func (c *Consumer) processMessage(ctx context.Context, msg *Message, handler MessageHandler) error {
	err := handler(ctx, msg)
	if err == nil {
		c.metrics.Processed.Add(1)
		return nil
	}

	backoff := c.config.Retry.RetryBackoff
	attempts := 1
	for i := 0; i < c.config.Retry.MaxRetries && !errors.IsCode(err, errors.CodeValidation); i++ {
		c.metrics.Retried.Add(1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		attempts++
		if err = handler(ctx, msg); err == nil {
			c.metrics.Processed.Add(1)
			return nil
		}
		backoff *= 2
		if backoff > c.config.Retry.MaxRetryBackoff {
			backoff = c.config.Retry.MaxRetryBackoff
		}
	}

	c.metrics.Failed.Add(1)
	c.logger.Error("message processing failed",
		logging.String("topic", msg.Topic),
		logging.Int64("offset", msg.Offset),
		logging.Int("attempts", attempts),
		logging.Err(err))

	if c.deadLetter == nil || c.config.Retry.DeadLetterTopic == "" {
		return nil
	}
	headers := make(map[string]string, len(msg.Headers)+3)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[HeaderOriginalTopic] = msg.Topic
	headers[HeaderErrorMessage] = err.Error()
	headers[HeaderAttempts] = strconv.Itoa(attempts)

	dl := &ProducerMessage{Topic: c.config.Retry.DeadLetterTopic, Key: msg.Key, Value: msg.Value, Headers: headers}
	if dlErr := c.deadLetter.Publish(ctx, dl); dlErr != nil {
		c.logger.Error("dead letter publish failed", logging.Err(dlErr))
		return nil
	}
	c.metrics.DeadLettered.Add(1)
	return nil
}

// Stats returns consumed, processed, failed and dead-lettered totals.
func (c *Consumer) Stats() (consumed, processed, failed, deadLettered int64) {
	return c.metrics.Consumed.Load(), c.metrics.Processed.Load(), c.metrics.Failed.Load(), c.metrics.DeadLettered.Load()
}

// Close stops the loop and closes the reader.
func (c *Consumer) Close() error {
	if !c.running.CompareAndSwap(true, false) {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	err := c.reader.Close()
	c.logger.Info("kafka consumer closed", logging.Int64("consumed", c.metrics.Consumed.Load()))
	return err
}

func fromKafkaMessage(m kafka.Message) *Message {
	msg := &Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Timestamp: m.Time,
		Headers:   make(map[string]string, len(m.Headers)),
	}
	for _, h := range m.Headers {
		msg.Headers[h.Key] = string(h.Value)
	}
	return msg
}

// ValidateConsumerConfig checks required fields.
func ValidateConsumerConfig(cfg ConsumerConfig) error {
	if len(cfg.Brokers) == 0 {
		return errors.New(errors.CodeConfigInvalid, "kafka brokers required")
	}
	if cfg.GroupID == "" {
		return errors.New(errors.CodeConfigInvalid, "kafka group id required")
	}
	if len(cfg.Topics) == 0 {
		return errors.New(errors.CodeConfigInvalid, "kafka topics required")
	}
	if cfg.AutoOffsetReset != "" && cfg.AutoOffsetReset != "earliest" && cfg.AutoOffsetReset != "latest" {
		return errors.Newf(errors.CodeConfigInvalid, "invalid auto offset reset %q", cfg.AutoOffsetReset)
	}
	if cfg.Retry.MaxRetries < 0 {
		return errors.New(errors.CodeConfigInvalid, "kafka max retries must be >= 0")
	}
	return cfg.Security.validate()
}

//Personal.AI order the ending
