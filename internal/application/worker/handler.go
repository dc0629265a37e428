// Package worker turns DocumentSubmitted queue events into anonymization
// runs and publishes a DocumentAnonymized event per finished document.
package worker

import (
	"context"
	"time"

	"github.com/turtacn/PII-Anonymizer/internal/application/anonymization"
	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/database/redis"
	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/PII-Anonymizer/pkg/errors"
)

// Modes reported in DocumentAnonymized events.
const (
	ModeDetect    = "detect"
	ModeAnonymize = "anonymize"
)

// Metadata keys copied onto published events.
const (
	MetaCausationID = "causation_id"
	MetaSourceTopic = "source_topic"
)

var ErrDocumentBusy = errors.New(errors.CodeCacheError, "document is being processed by another worker")

// Config tunes the handler.
type Config struct {
	OutputTopic string
	Source      string
	// LockTTL bounds how long one document lease is held.  The lease is
	// extended while processing runs.
	LockTTL time.Duration
	// Persist stores run artifacts when the service has a store.
	Persist bool
}

// Handler processes one consumed message.  Its Handle method is a
// kafka.MessageHandler.
type Handler struct {
	service   anonymization.Service
	publisher kafka.Publisher
	locks     redis.LockFactory
	metrics   *prometheus.AppMetrics
	cfg       Config
	logger    logging.Logger
	now       func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithLocks serialises processing per document ID.
func WithLocks(f redis.LockFactory) Option {
	return func(h *Handler) { h.locks = f }
}

// WithMetrics records per-message counters.
func WithMetrics(m *prometheus.AppMetrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithClock overrides the completion timestamp source.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// NewHandler builds a handler publishing results to cfg.OutputTopic.
func NewHandler(svc anonymization.Service, pub kafka.Publisher, cfg Config, logger logging.Logger, opts ...Option) (*Handler, error) {
	if svc == nil {
		return nil, errors.New(errors.CodeInvalidParam, "service is required")
	}
	if pub == nil {
		return nil, errors.New(errors.CodeInvalidParam, "publisher is required")
	}
	if cfg.OutputTopic == "" {
		return nil, errors.New(errors.CodeConfigInvalid, "output topic is required")
	}
	if cfg.Source == "" {
		cfg.Source = "piianon-worker"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	h := &Handler{
		service:   svc,
		publisher: pub,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
	for _, o := range opts {
		o(h)
	}
	return h, nil
}

// Handle decodes a DocumentSubmitted event, runs the document through the
// service and publishes the result.  Malformed events return validation
// errors, which the consumer dead-letters without retrying.
func (h *Handler) Handle(ctx context.Context, msg *kafka.Message) (err error) {
	start := time.Now()
	defer func() {
		if h.metrics != nil {
			prometheus.RecordMessage(h.metrics, msg.Topic, time.Since(start), err)
		}
	}()

	env, payload, err := decode(msg)
	if err != nil {
		h.logger.Warn("rejecting malformed event",
			logging.String("topic", msg.Topic),
			logging.Int64("offset", msg.Offset),
			logging.Err(err))
		return err
	}

	log := h.logger.With(
		logging.String("document_id", payload.DocumentID),
		logging.String("event_id", env.EventID))

	if h.locks != nil {
		mu := h.locks.NewMutex("document:"+payload.DocumentID,
			redis.WithLockTTL(h.cfg.LockTTL),
			redis.WithRetryCount(0),
			redis.WithWatchdog(true))
		ok, err := mu.TryLock(ctx)
		if err != nil {
			return err
		}
		if !ok {
			log.Info("document locked elsewhere")
			return ErrDocumentBusy.WithDetail(payload.DocumentID)
		}
		defer func() {
			// The lease must be released even when ctx was cancelled.
			if uerr := mu.Unlock(context.Background()); uerr != nil {
				log.Warn("failed to release document lock", logging.Err(uerr))
			}
		}()
	}

	result, err := h.process(ctx, payload)
	if err != nil {
		log.Error("document processing failed", logging.Err(err))
		return err
	}

	out, err := kafka.NewEventEnvelope(kafka.EventDocumentAnonymized, h.cfg.Source, result)
	if err != nil {
		return err
	}
	out.Metadata = map[string]string{
		MetaCausationID: env.EventID,
		MetaSourceTopic: msg.Topic,
	}
	pm, err := out.ToMessage(h.cfg.OutputTopic, payload.DocumentID)
	if err != nil {
		return err
	}
	if err := h.publisher.Publish(ctx, pm); err != nil {
		return errors.Wrap(err, errors.CodeMessagePublish, "publish result event")
	}

	log.Info("document processed",
		logging.String("run_id", result.RunID),
		logging.String("mode", result.Mode),
		logging.Int("entities", result.TotalEntities))
	return nil
}

func (h *Handler) process(ctx context.Context, p *kafka.DocumentSubmittedPayload) (*kafka.DocumentAnonymizedPayload, error) {
	opts := serviceOptions(p.Options)

	if !p.Options.Anonymize {
		det, err := h.service.Detect(ctx, &anonymization.DetectInput{
			DocumentID: p.DocumentID,
			Text:       p.Text,
			Options:    opts,
		})
		if err != nil {
			return nil, err
		}
		return &kafka.DocumentAnonymizedPayload{
			DocumentID:    p.DocumentID,
			Mode:          ModeDetect,
			TotalEntities: det.Statistics.TotalEntities,
			Labels:        det.Statistics.Labels,
			CompletedAt:   h.now().UTC(),
		}, nil
	}

	an, err := h.service.Anonymize(ctx, &anonymization.AnonymizeInput{
		DocumentID: p.DocumentID,
		Text:       p.Text,
		Options:    opts,
		Persist:    h.cfg.Persist,
	})
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(an.Artifacts))
	for _, a := range an.Artifacts {
		keys = append(keys, a.Key)
	}
	return &kafka.DocumentAnonymizedPayload{
		DocumentID:    p.DocumentID,
		RunID:         an.RunID,
		Mode:          ModeAnonymize,
		TotalEntities: an.Statistics.TotalEntities,
		Labels:        an.Statistics.Labels,
		ArtifactKeys:  keys,
		CompletedAt:   h.now().UTC(),
	}, nil
}

func decode(msg *kafka.Message) (*kafka.EventEnvelope, *kafka.DocumentSubmittedPayload, error) {
	env, err := kafka.MessageToEventEnvelope(msg)
	if err != nil {
		return nil, nil, err
	}
	if env.EventType != kafka.EventDocumentSubmitted {
		return nil, nil, errors.Newf(errors.CodeValidation, "unexpected event type %q", env.EventType)
	}
	var p kafka.DocumentSubmittedPayload
	if err := env.DecodePayload(&p); err != nil {
		return nil, nil, err
	}
	if p.DocumentID == "" {
		p.DocumentID = env.EventID
	}
	if p.Text == "" {
		return nil, nil, errors.New(errors.CodeValidation, "document text is empty")
	}
	return env, &p, nil
}

func serviceOptions(o kafka.DocumentOptions) anonymization.Options {
	opts := anonymization.Options{
		Labels:            o.Labels,
		Threshold:         o.Threshold,
		Language:          o.Language,
		PlaceholderFormat: o.PlaceholderFormat,
		ResolveEntities:   o.ResolveEntities,
		FuzzyMatching:     o.FuzzyMatching,
	}
	if o.IncludeScores {
		v := true
		opts.IncludeScores = &v
	}
	return opts
}

//Personal.AI order the ending
