package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PII-Anonymizer/pkg/errors"
)

// Topics.
const (
	TopicDocumentSubmitted  = "pii.documents.submitted"
	TopicDocumentAnonymized = "pii.documents.anonymized"
	TopicDeadLetter         = "pii.documents.dead_letter"
)

// Event types.
const (
	EventDocumentSubmitted  = "DocumentSubmitted"
	EventDocumentAnonymized = "DocumentAnonymized"
)

// SchemaVersion of EventEnvelope.
const SchemaVersion = "v1"

// EventEnvelope wraps every event payload.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// DocumentOptions overrides pipeline settings for one document.  Zero
// values keep the worker's configuration.
type DocumentOptions struct {
	Anonymize         bool     `json:"anonymize"`
	Labels            []string `json:"labels,omitempty"`
	Threshold         *float64 `json:"threshold,omitempty"`
	PlaceholderFormat string   `json:"placeholder_format,omitempty"`
	ResolveEntities   *bool    `json:"resolve_entities,omitempty"`
	FuzzyMatching     *bool    `json:"fuzzy_matching,omitempty"`
	IncludeScores     bool     `json:"include_scores,omitempty"`
	Language          string   `json:"language,omitempty"`
}

// DocumentSubmittedPayload asks the worker to process a document.
type DocumentSubmittedPayload struct {
	DocumentID string          `json:"document_id"`
	Text       string          `json:"text"`
	Options    DocumentOptions `json:"options"`
}

// DocumentAnonymizedPayload reports a finished document.  It carries counts
// and artifact keys, never document text.
type DocumentAnonymizedPayload struct {
	DocumentID    string         `json:"document_id"`
	RunID         string         `json:"run_id"`
	Mode          string         `json:"mode"`
	TotalEntities int            `json:"total_entities"`
	Labels        map[string]int `json:"labels"`
	ArtifactKeys  []string       `json:"artifact_keys,omitempty"`
	CompletedAt   time.Time      `json:"completed_at"`
}

// NewEventEnvelope marshals payload into a fresh envelope.
func NewEventEnvelope(eventType, source string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSerialization, "marshal event payload")
	}
	return &EventEnvelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: SchemaVersion,
		Payload:       data,
	}, nil
}

// DecodePayload unmarshals the payload into target.
func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return errors.New(errors.CodeValidation, "event has no payload")
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.CodeValidation, "decode event payload")
	}
	return nil
}

// ToMessage encodes the envelope for topic, keyed by key.
func (e *EventEnvelope) ToMessage(topic, key string) (*ProducerMessage, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSerialization, "marshal event envelope")
	}
	return &ProducerMessage{
		Topic: topic,
		Key:   []byte(key),
		Value: val,
		Headers: map[string]string{
			"event_type":     e.EventType,
			"source_service": e.Source,
			"schema_version": e.SchemaVersion,
		},
		Timestamp: e.Timestamp,
	}, nil
}

// MessageToEventEnvelope decodes a consumed message.  Malformed input is a
// validation error so the consumer dead-letters it without retrying.
func MessageToEventEnvelope(msg *Message) (*EventEnvelope, error) {
	if len(msg.Value) == 0 {
		return nil, errors.New(errors.CodeValidation, "empty message value")
	}
	var env EventEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return nil, errors.Wrap(err, errors.CodeValidation, "decode event envelope")
	}
	return &env, nil
}

// TopicConfig describes a topic to create.
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	RetentionMs       int64
}

// Conn abstracts kafka.Conn for tests.
type Conn interface {
	CreateTopics(topics ...kafka.TopicConfig) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

// TopicManager creates the service topics.
type TopicManager struct {
	conn   Conn
	logger logging.Logger
}

// NewTopicManager dials the first broker.
func NewTopicManager(brokers []string, logger logging.Logger) (*TopicManager, error) {
	if len(brokers) == 0 {
		return nil, errors.New(errors.CodeConfigInvalid, "kafka brokers required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeServiceUnavailable, "dial kafka")
	}
	return &TopicManager{conn: conn, logger: logger}, nil
}

// CreateTopic creates cfg unless a topic of that name exists.
func (m *TopicManager) CreateTopic(ctx context.Context, cfg TopicConfig) error {
	if cfg.Name == "" {
		return errors.New(errors.CodeValidation, "topic name required")
	}
	if cfg.NumPartitions <= 0 || cfg.ReplicationFactor <= 0 {
		return errors.New(errors.CodeValidation, "partitions and replication factor must be > 0")
	}
	if exists, _ := m.TopicExists(ctx, cfg.Name); exists {
		return nil
	}

	kCfg := kafka.TopicConfig{
		Topic:             cfg.Name,
		NumPartitions:     cfg.NumPartitions,
		ReplicationFactor: cfg.ReplicationFactor,
	}
	if cfg.RetentionMs > 0 {
		kCfg.ConfigEntries = append(kCfg.ConfigEntries, kafka.ConfigEntry{ConfigName: "retention.ms", ConfigValue: strconv.FormatInt(cfg.RetentionMs, 10)})
	}
	if err := m.conn.CreateTopics(kCfg); err != nil {
		if errors.Is(err, kafka.TopicAlreadyExists) {
			return nil
		}
		return errors.Wrapf(err, errors.CodeMessagePublish, "create topic %s", cfg.Name)
	}
	m.logger.Info("topic created", logging.String("topic", cfg.Name))
	return nil
}

// TopicExists reports whether name has partitions.
func (m *TopicManager) TopicExists(_ context.Context, name string) (bool, error) {
	partitions, err := m.conn.ReadPartitions(name)
	if err != nil {
		return false, err
	}
	return len(partitions) > 0, nil
}

// EnsureDefaultTopics creates DefaultTopics.
func (m *TopicManager) EnsureDefaultTopics(ctx context.Context) error {
	for _, t := range DefaultTopics() {
		if err := m.CreateTopic(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the connection.
func (m *TopicManager) Close() error { return m.conn.Close() }

// DefaultTopics lists the topics the worker uses.
func DefaultTopics() []TopicConfig {
	const day = int64(24 * 3600 * 1000)
	return []TopicConfig{
		{Name: TopicDocumentSubmitted, NumPartitions: 6, ReplicationFactor: 3, RetentionMs: 3 * day},
		{Name: TopicDocumentAnonymized, NumPartitions: 6, ReplicationFactor: 3, RetentionMs: 7 * day},
		{Name: TopicDeadLetter, NumPartitions: 3, ReplicationFactor: 3, RetentionMs: 30 * day},
	}
}

//Personal.AI order the ending
