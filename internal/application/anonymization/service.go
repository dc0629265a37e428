// Package anonymization provides the application service shared by the CLI,
// the HTTP API and the queue worker.  It turns request options into a
// pipeline configuration, runs detection or anonymization and shapes the
// results into the published JSON payloads.
package anonymization

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/storage/minio"
	"github.com/turtacn/PII-Anonymizer/internal/intelligence/pii"
	"github.com/turtacn/PII-Anonymizer/pkg/errors"
)

// Service defines the application operations.
type Service interface {
	Detect(ctx context.Context, input *DetectInput) (*DetectionOutput, error)
	Anonymize(ctx context.Context, input *AnonymizeInput) (*AnonymizationOutput, error)
}

// Options override the service's base pipeline configuration for one call.
// Nil pointers and empty values keep the base setting.
type Options struct {
	Labels               []string
	Threshold            *float64
	Language             string
	PlaceholderFormat    string
	ResolveEntities      *bool
	FuzzyMatching        *bool
	IncludeScores        *bool
	FilterFalsePositives *bool
}

// DetectInput contains input for entity detection.
type DetectInput struct {
	DocumentID string
	Text       string
	Options    Options
}

// AnonymizeInput contains input for anonymization.
type AnonymizeInput struct {
	DocumentID string
	Text       string
	Options    Options

	// Persist stores the anonymized text, the metadata and the detection
	// payload as run artifacts when an ArtifactStore is configured.
	Persist bool
}

// ArtifactStore persists run artifacts.  *minio.ArtifactRepository
// satisfies it.
type ArtifactStore interface {
	SaveRun(ctx context.Context, runID, documentID string, artifacts []minio.Artifact) ([]minio.StoredArtifact, error)
}

// serviceImpl implements the Service interface.
type serviceImpl struct {
	base           pii.Config
	language       string
	detector       pii.Detector
	falsePositives pii.FalsePositiveSource
	metrics        pii.Metrics
	artifacts      ArtifactStore
	logger         logging.Logger
	now            func() time.Time
	newRunID       func() string
}

// Option configures the service.
type Option func(*serviceImpl)

// WithFalsePositives sets the false-positive table source.
func WithFalsePositives(src pii.FalsePositiveSource) Option {
	return func(s *serviceImpl) { s.falsePositives = src }
}

// WithMetrics sets the pipeline metrics sink.
func WithMetrics(m pii.Metrics) Option {
	return func(s *serviceImpl) { s.metrics = m }
}

// WithArtifactStore enables artifact persistence.
func WithArtifactStore(store ArtifactStore) Option {
	return func(s *serviceImpl) { s.artifacts = store }
}

// WithLanguage sets the default document language reported in payloads.
func WithLanguage(lang string) Option {
	return func(s *serviceImpl) {
		if lang != "" {
			s.language = lang
		}
	}
}

// WithClock overrides time and run-id generation.
func WithClock(now func() time.Time, newRunID func() string) Option {
	return func(s *serviceImpl) {
		if now != nil {
			s.now = now
		}
		if newRunID != nil {
			s.newRunID = newRunID
		}
	}
}

// NewService validates base and creates the service.
func NewService(base pii.Config, detector pii.Detector, logger logging.Logger, opts ...Option) (Service, error) {
	if detector == nil {
		return nil, errors.New(errors.CodeInvalidParam, "detector must not be nil")
	}
	if err := base.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &serviceImpl{
		base:     base,
		language: pii.DefaultLanguage,
		detector: detector,
		logger:   logger,
		now:      time.Now,
		newRunID: func() string { return uuid.New().String() },
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *serviceImpl) Detect(ctx context.Context, input *DetectInput) (*DetectionOutput, error) {
	if input == nil || strings.TrimSpace(input.Text) == "" {
		return nil, errors.New(errors.CodeValidation, "text is required")
	}
	p, err := s.pipeline(input.Options)
	if err != nil {
		return nil, err
	}

	det, err := p.Detect(ctx, input.Text)
	if err != nil {
		s.logger.Error("detection failed", logging.String("document_id", input.DocumentID), logging.Err(err))
		return nil, err
	}
	return newDetectionOutput(det, s.lang(input.Options)), nil
}

func (s *serviceImpl) Anonymize(ctx context.Context, input *AnonymizeInput) (*AnonymizationOutput, error) {
	if input == nil || strings.TrimSpace(input.Text) == "" {
		return nil, errors.New(errors.CodeValidation, "text is required")
	}
	p, err := s.pipeline(input.Options)
	if err != nil {
		return nil, err
	}

	res, err := p.Anonymize(ctx, input.Text)
	if err != nil {
		s.logger.Error("anonymization failed", logging.String("document_id", input.DocumentID), logging.Err(err))
		return nil, err
	}

	cfg := p.Config()
	out := newAnonymizationOutput(res, cfg.Anonymizer)
	out.RunID = s.newRunID()
	out.DocumentID = input.DocumentID
	out.Language = s.lang(input.Options)
	out.CreatedAt = s.now().UTC()

	if input.Persist && s.artifacts != nil {
		stored, err := s.persist(ctx, out, res)
		if err != nil {
			return nil, err
		}
		out.Artifacts = stored
	}

	s.logger.Info("document anonymized",
		logging.String("document_id", input.DocumentID),
		logging.String("run_id", out.RunID),
		logging.Int("entities", out.Statistics.TotalEntities),
		logging.Int("fuzzy_matches", len(res.Anonymization.Fuzzy)),
	)
	return out, nil
}

// pipeline builds a per-call pipeline.  Construction only validates and
// copies configuration.
func (s *serviceImpl) pipeline(o Options) (*pii.Pipeline, error) {
	cfg := applyOptions(s.base, o)
	opts := []pii.Option{pii.WithLogger(s.logger)}
	if s.metrics != nil {
		opts = append(opts, pii.WithMetrics(s.metrics))
	}
	if s.falsePositives != nil {
		opts = append(opts, pii.WithFalsePositives(s.falsePositives))
	}
	return pii.NewPipeline(cfg, s.detector, opts...)
}

func (s *serviceImpl) lang(o Options) string {
	if o.Language != "" {
		return o.Language
	}
	return s.language
}

func (s *serviceImpl) persist(ctx context.Context, out *AnonymizationOutput, res *pii.Result) ([]minio.StoredArtifact, error) {
	meta, err := EncodeJSON(out.Metadata())
	if err != nil {
		return nil, err
	}
	det, err := EncodeJSON(newDetectionOutput(res.Detection, out.Language))
	if err != nil {
		return nil, err
	}
	stored, err := s.artifacts.SaveRun(ctx, out.RunID, out.DocumentID, []minio.Artifact{
		{Name: minio.ArtifactAnonymizedText, ContentType: "text/plain; charset=utf-8", Data: []byte(out.AnonymizedText)},
		{Name: minio.ArtifactMetadata, ContentType: "application/json", Data: meta},
		{Name: minio.ArtifactDetection, ContentType: "application/json", Data: det},
	})
	if err != nil {
		s.logger.Error("failed to persist run artifacts", logging.String("run_id", out.RunID), logging.Err(err))
		return nil, err
	}
	return stored, nil
}

// applyOptions overlays o on a copy of base.
func applyOptions(base pii.Config, o Options) pii.Config {
	cfg := base
	cfg.Labels = append([]string(nil), base.Labels...)
	if len(o.Labels) > 0 {
		cfg.Labels = append([]string(nil), o.Labels...)
	}
	if o.Threshold != nil {
		cfg.Threshold = *o.Threshold
	}
	if o.FilterFalsePositives != nil {
		cfg.FilterFalsePositives = *o.FilterFalsePositives
	}
	if o.PlaceholderFormat != "" {
		cfg.Anonymizer.Format = pii.PlaceholderFormat(strings.ToLower(o.PlaceholderFormat))
	}
	if o.ResolveEntities != nil {
		cfg.Anonymizer.ResolveEntities = *o.ResolveEntities
	}
	if o.FuzzyMatching != nil {
		cfg.Anonymizer.FuzzyMatching = *o.FuzzyMatching
	}
	if o.IncludeScores != nil {
		cfg.Anonymizer.IncludeScores = *o.IncludeScores
	}
	return cfg
}

//Personal.AI order the ending
