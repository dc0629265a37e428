package kafka

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/PII-Anonymizer/pkg/errors"
)

type mockConn struct {
	existing map[string]bool
	created  []kafka.TopicConfig
}

func (m *mockConn) CreateTopics(topics ...kafka.TopicConfig) error {
	m.created = append(m.created, topics...)
	return nil
}

func (m *mockConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	var out []kafka.Partition
	for _, t := range topics {
		if m.existing[t] {
			out = append(out, kafka.Partition{Topic: t})
		}
	}
	return out, nil
}

func (m *mockConn) Close() error { return nil }

func TestEventEnvelope_RoundTrip(t *testing.T) {
	th := 0.5
	env, err := NewEventEnvelope(EventDocumentSubmitted, "apiserver", DocumentSubmittedPayload{
		DocumentID: "doc-1",
		Text:       "Anna Meier wohnt in Berlin.",
		Options:    DocumentOptions{Anonymize: true, Threshold: &th},
	})
	require.NoError(t, err)
	assert.Len(t, env.EventID, 36)
	assert.Equal(t, SchemaVersion, env.SchemaVersion)

	pm, err := env.ToMessage(TopicDocumentSubmitted, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, EventDocumentSubmitted, pm.Headers["event_type"])

	decoded, err := MessageToEventEnvelope(&Message{Topic: pm.Topic, Value: pm.Value})
	require.NoError(t, err)
	var payload DocumentSubmittedPayload
	require.NoError(t, decoded.DecodePayload(&payload))
	assert.Equal(t, "doc-1", payload.DocumentID)
	assert.True(t, payload.Options.Anonymize)
	require.NotNil(t, payload.Options.Threshold)
	assert.Equal(t, 0.5, *payload.Options.Threshold)
}

func TestMessageToEventEnvelope_Malformed(t *testing.T) {
	_, err := MessageToEventEnvelope(&Message{Value: []byte("{")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = MessageToEventEnvelope(&Message{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	env := &EventEnvelope{}
	assert.True(t, pkgerrors.IsCode(env.DecodePayload(&DocumentSubmittedPayload{}), pkgerrors.CodeValidation))
}

func TestTopicManager_EnsureDefaultTopicsSkipsExisting(t *testing.T) {
	conn := &mockConn{existing: map[string]bool{TopicDocumentSubmitted: true}}
	m := &TopicManager{conn: conn, logger: logging.NewNopLogger()}

	require.NoError(t, m.EnsureDefaultTopics(context.Background()))
	require.Len(t, conn.created, 2)
	assert.Equal(t, TopicDocumentAnonymized, conn.created[0].Topic)
	assert.Equal(t, TopicDeadLetter, conn.created[1].Topic)
	assert.Equal(t, "retention.ms", conn.created[1].ConfigEntries[0].ConfigName)
}

func TestTopicManager_CreateTopicValidation(t *testing.T) {
	m := &TopicManager{conn: &mockConn{}, logger: logging.NewNopLogger()}
	assert.Error(t, m.CreateTopic(context.Background(), TopicConfig{}))
	assert.Error(t, m.CreateTopic(context.Background(), TopicConfig{Name: "x"}))
}

//Personal.AI order the ending
