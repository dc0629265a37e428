// Package kafka carries document events between the API and the worker over
// segmentio/kafka-go.
package kafka

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"os"
	"time"

	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"

	"github.com/turtacn/PII-Anonymizer/pkg/errors"
)

// Message is a consumed record.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// ProducerMessage is a record to publish.
type ProducerMessage struct {
	Topic     string
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// MessageHandler processes one message.  A non-nil error triggers retries.
type MessageHandler func(ctx context.Context, msg *Message) error

// Publisher is implemented by Producer.
type Publisher interface {
	Publish(ctx context.Context, msg *ProducerMessage) error
}

// SecurityConfig is shared by producer and consumer.
type SecurityConfig struct {
	SASLEnabled   bool   `mapstructure:"sasl_enabled"`
	SASLMechanism string `mapstructure:"sasl_mechanism"`
	SASLUsername  string `mapstructure:"sasl_username"`
	SASLPassword  string `mapstructure:"sasl_password"`
	TLSEnabled    bool   `mapstructure:"tls_enabled"`
	TLSCAPath     string `mapstructure:"tls_ca_path"`
}

func (s SecurityConfig) validate() error {
	if s.SASLEnabled {
		if s.SASLMechanism == "" {
			return errors.New(errors.CodeConfigInvalid, "kafka sasl mechanism required")
		}
		if s.SASLUsername == "" || s.SASLPassword == "" {
			return errors.New(errors.CodeConfigInvalid, "kafka sasl credentials required")
		}
	}
	return nil
}

func (s SecurityConfig) tlsConfig() (*tls.Config, error) {
	if !s.TLSEnabled {
		return nil, nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if s.TLSCAPath != "" {
		pem, err := os.ReadFile(s.TLSCAPath)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeConfigInvalid, "read kafka ca file")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New(errors.CodeConfigInvalid, "kafka ca file holds no certificates")
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

func (s SecurityConfig) mechanism() (sasl.Mechanism, error) {
	if !s.SASLEnabled {
		return nil, nil
	}
	switch s.SASLMechanism {
	case "PLAIN":
		return plain.Mechanism{Username: s.SASLUsername, Password: s.SASLPassword}, nil
	case "SCRAM-SHA-256":
		m, err := scram.Mechanism(scram.SHA256, s.SASLUsername, s.SASLPassword)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeConfigInvalid, "create sasl mechanism")
		}
		return m, nil
	case "SCRAM-SHA-512":
		m, err := scram.Mechanism(scram.SHA512, s.SASLUsername, s.SASLPassword)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeConfigInvalid, "create sasl mechanism")
		}
		return m, nil
	default:
		return nil, errors.Newf(errors.CodeConfigInvalid, "unsupported sasl mechanism %q", s.SASLMechanism)
	}
}

//Personal.AI order the ending
