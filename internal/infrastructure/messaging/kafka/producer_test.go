package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/PII-Anonymizer/pkg/errors"
)

type mockWriter struct {
	writeFunc func(ctx context.Context, msgs ...kafka.Message) error
	written   []kafka.Message
	closed    int
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if m.writeFunc != nil {
		if err := m.writeFunc(ctx, msgs...); err != nil {
			return err
		}
	}
	m.written = append(m.written, msgs...)
	return nil
}

func (m *mockWriter) Close() error {
	m.closed++
	return nil
}

func newTestProducer(w Writer) *Producer {
	return newProducer(w, ProducerConfig{Brokers: []string{"localhost:9092"}}, logging.NewNopLogger())
}

func TestValidateProducerConfig(t *testing.T) {
	assert.NoError(t, ValidateProducerConfig(ProducerConfig{Brokers: []string{"b:9092"}}))
	assert.Error(t, ValidateProducerConfig(ProducerConfig{}))
	assert.Error(t, ValidateProducerConfig(ProducerConfig{Brokers: []string{"b:9092"}, MaxRetries: -1}))
	assert.Error(t, ValidateProducerConfig(ProducerConfig{
		Brokers:  []string{"b:9092"},
		Security: SecurityConfig{SASLEnabled: true, SASLMechanism: "PLAIN"},
	}))
}

func TestPublish_Success(t *testing.T) {
	w := &mockWriter{}
	p := newTestProducer(w)

	err := p.Publish(context.Background(), &ProducerMessage{
		Topic:   TopicDocumentAnonymized,
		Key:     []byte("doc-1"),
		Value:   []byte(`{"a":1}`),
		Headers: map[string]string{"event_type": EventDocumentAnonymized},
	})
	require.NoError(t, err)
	require.Len(t, w.written, 1)
	assert.Equal(t, TopicDocumentAnonymized, w.written[0].Topic)
	assert.Equal(t, "doc-1", string(w.written[0].Key))
	assert.False(t, w.written[0].Time.IsZero())
	assert.Equal(t, []kafka.Header{{Key: "event_type", Value: []byte(EventDocumentAnonymized)}}, w.written[0].Headers)
	assert.Equal(t, int64(1), p.Sent())
}

func TestPublish_Validation(t *testing.T) {
	p := newTestProducer(&mockWriter{})
	ctx := context.Background()

	assert.True(t, pkgerrors.IsCode(p.Publish(ctx, &ProducerMessage{Value: []byte("x")}), pkgerrors.CodeValidation))
	assert.True(t, pkgerrors.IsCode(p.Publish(ctx, &ProducerMessage{Topic: "t"}), pkgerrors.CodeValidation))

	p.config.MaxMessageBytes = 2
	assert.True(t, pkgerrors.IsCode(p.Publish(ctx, &ProducerMessage{Topic: "t", Value: []byte("xyz")}), pkgerrors.CodeValidation))
}

func TestPublish_WriterError(t *testing.T) {
	w := &mockWriter{writeFunc: func(context.Context, ...kafka.Message) error { return errors.New("broker down") }}
	p := newTestProducer(w)

	err := p.Publish(context.Background(), &ProducerMessage{Topic: "t", Value: []byte("x")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeMessagePublish))
	assert.Equal(t, int64(1), p.Failed())
}

func TestProducerClose_Idempotent(t *testing.T) {
	w := &mockWriter{}
	p := newTestProducer(w)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, w.closed)
	assert.ErrorIs(t, p.Publish(context.Background(), &ProducerMessage{Topic: "t", Value: []byte("x")}), ErrProducerClosed)
}

//Personal.AI order the ending
