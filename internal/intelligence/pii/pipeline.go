package pii

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PII-Anonymizer/pkg/errors"
)

// ---------------------------------------------------------------------------
// Dependencies
// ---------------------------------------------------------------------------

// Metrics receives pipeline measurements.  Implementations must be safe for
// concurrent use.
type Metrics interface {
	ObserveChunkDetection(d time.Duration, err error)
	ObserveStageRemoved(stage string, n int)
	ObserveEntities(label string, n int)
	ObserveFuzzyMatches(n int)
	ObserveDocument(mode string, d time.Duration, err error)
}

type noopMetrics struct{}

func (noopMetrics) ObserveChunkDetection(time.Duration, error)   {}
func (noopMetrics) ObserveStageRemoved(string, int)              {}
func (noopMetrics) ObserveEntities(string, int)                  {}
func (noopMetrics) ObserveFuzzyMatches(int)                      {}
func (noopMetrics) ObserveDocument(string, time.Duration, error) {}

// Stage names passed to Metrics.ObserveStageRemoved.
const (
	StageDedupe          = "dedupe"
	StageFalsePositive   = "false_positive"
	StageTokenConversion = "token_conversion"
	StageOverlap         = "overlap"
)

// FalsePositiveSource yields the table to filter with.  *FalsePositiveTable
// is a static source; a reloading source can swap tables between documents.
type FalsePositiveSource interface {
	FalsePositives() *FalsePositiveTable
}

// FalsePositives makes a table its own source.
func (t *FalsePositiveTable) FalsePositives() *FalsePositiveTable { return t }

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

// Config holds every pipeline parameter.
type Config struct {
	Labels               []string         `json:"labels" yaml:"labels"`
	Threshold            float64          `json:"threshold" yaml:"threshold"`
	ChunkSize            int              `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap         int              `json:"chunk_overlap" yaml:"chunk_overlap"`
	ProximityThreshold   int              `json:"proximity_threshold" yaml:"proximity_threshold"`
	MaxConcurrency       int              `json:"max_concurrency" yaml:"max_concurrency"`
	FilterFalsePositives bool             `json:"filter_false_positives" yaml:"filter_false_positives"`
	Anonymizer           AnonymizerConfig `json:"anonymizer" yaml:"anonymizer"`
}

// DefaultConfig returns the defaults used by the CLI.
func DefaultConfig() Config {
	labels := make([]string, len(DefaultLabels))
	copy(labels, DefaultLabels)
	return Config{
		Labels:             labels,
		Threshold:          DefaultThreshold,
		ChunkSize:          DefaultChunkSize,
		ChunkOverlap:       DefaultChunkOverlap,
		ProximityThreshold: DefaultProximityThreshold,
		MaxConcurrency:     DefaultMaxConcurrency,
		Anonymizer:         DefaultAnonymizerConfig(),
	}
}

// Validate checks parameter ranges.
func (c Config) Validate() error {
	if len(c.Labels) == 0 {
		return errors.New(errors.CodeEmptyLabels, "at least one label is required")
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return errors.Newf(errors.CodeThresholdOutOfRange, "threshold %.3f outside [0,1]", c.Threshold)
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap <= 0 || c.ChunkOverlap >= c.ChunkSize {
		return ErrInvalidChunking.WithDetail(fmt.Sprintf("size=%d overlap=%d", c.ChunkSize, c.ChunkOverlap))
	}
	if c.ProximityThreshold < 0 {
		return errors.New(errors.CodeValidation, "proximity threshold must not be negative")
	}
	if _, err := ParsePlaceholderFormat(string(c.Anonymizer.Format)); err != nil {
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Results
// ---------------------------------------------------------------------------

// DetectionResult is the cleaned entity list for one document.
type DetectionResult struct {
	// Text is the NFC-normalised document all offsets refer to.
	Text     string      `json:"text"`
	Entities []TokenSpan `json:"entities"`
	Chunks   []Chunk     `json:"chunks"`

	Filtered                []Span `json:"filtered,omitempty"`
	OverlapRemoved          []Span `json:"overlap_removed,omitempty"`
	DroppedTokenConversions []Span `json:"dropped_token_conversions,omitempty"`

	Counts         AuditCounts `json:"counts"`
	TotalTokens    int         `json:"total_tokens"`
	TotalSentences int         `json:"total_sentences"`
}

// Spans returns the entities without token ranges.
func (d *DetectionResult) Spans() []Span { return SpansOf(d.Entities) }

// LabelCounts returns entities per label.
func (d *DetectionResult) LabelCounts() map[string]int {
	out := make(map[string]int)
	for _, e := range d.Entities {
		out[e.Label]++
	}
	return out
}

// Result bundles a detection with its anonymization and audit.
type Result struct {
	Detection     *DetectionResult `json:"detection"`
	Anonymization *Anonymization   `json:"anonymization"`
	Audit         *AuditReport     `json:"audit"`
}

// ---------------------------------------------------------------------------
// Pipeline
// ---------------------------------------------------------------------------

// Pipeline runs detection post-processing and anonymization for one document
// per call.  It holds no per-document state and is safe for concurrent use
// when its Detector is.
type Pipeline struct {
	cfg            Config
	detector       Detector
	falsePositives FalsePositiveSource
	anonymizer     *Anonymizer
	logger         logging.Logger
	metrics        Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithFalsePositives sets the false-positive source used when
// Config.FilterFalsePositives is on.
func WithFalsePositives(src FalsePositiveSource) Option {
	return func(p *Pipeline) {
		if src != nil {
			p.falsePositives = src
		}
	}
}

// NewPipeline validates cfg and wires the pipeline around detector.
func NewPipeline(cfg Config, detector Detector, opts ...Option) (*Pipeline, error) {
	if detector == nil {
		return nil, errors.New(errors.CodeInvalidParam, "detector must not be nil")
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:            cfg,
		detector:       detector,
		falsePositives: NewFalsePositiveTable(nil),
		logger:         logging.NewNopLogger(),
		metrics:        noopMetrics{},
	}
	for _, o := range opts {
		o(p)
	}

	anon, err := NewAnonymizer(cfg.Anonymizer, p.logger)
	if err != nil {
		return nil, err
	}
	p.anonymizer = anon
	return p, nil
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Detect runs chunked detection and cleans the result: dedupe, false-positive
// filter, token alignment and overlap resolution.
func (p *Pipeline) Detect(ctx context.Context, text string) (res *DetectionResult, err error) {
	start := time.Now()
	defer func() { p.metrics.ObserveDocument("detect", time.Since(start), err) }()
	return p.detect(ctx, text)
}

// Anonymize detects entities and replaces them with placeholders.
func (p *Pipeline) Anonymize(ctx context.Context, text string) (res *Result, err error) {
	start := time.Now()
	defer func() { p.metrics.ObserveDocument("anonymize", time.Since(start), err) }()

	det, err := p.detect(ctx, text)
	if err != nil {
		return nil, err
	}
	anon, err := p.anonymizer.Anonymize(det.Text, det.Spans())
	if err != nil {
		return nil, err
	}
	p.metrics.ObserveFuzzyMatches(len(anon.Fuzzy))

	return &Result{
		Detection:     det,
		Anonymization: anon,
		Audit:         BuildAudit(det, anon),
	}, nil
}

func (p *Pipeline) detect(ctx context.Context, text string) (*DetectionResult, error) {
	text = NormalizeText(text)
	res := &DetectionResult{Text: text}

	chunks, err := ChunkText(text, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	res.Chunks = chunks

	raw, err := p.detectChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}
	res.Counts.RawDetections = len(raw)

	deduped := Dedupe(raw, p.cfg.ProximityThreshold)
	res.Counts.DuplicatesRemoved = len(raw) - len(deduped)
	p.metrics.ObserveStageRemoved(StageDedupe, res.Counts.DuplicatesRemoved)

	kept := deduped
	if p.cfg.FilterFalsePositives {
		kept, res.Filtered = p.falsePositives.FalsePositives().Filter(deduped)
		res.Counts.FalsePositivesFiltered = len(res.Filtered)
		p.metrics.ObserveStageRemoved(StageFalsePositive, len(res.Filtered))
	}

	idx := NewTokenIndex(text)
	res.TotalTokens = idx.Len()
	res.TotalSentences = CountSentences(text)

	aligned, dropped := idx.AlignSpans(kept)
	res.DroppedTokenConversions = dropped
	res.Counts.TokenConversionDropped = len(dropped)
	p.metrics.ObserveStageRemoved(StageTokenConversion, len(dropped))

	resolved, removed := ResolveOverlaps(SpansOf(aligned))
	res.OverlapRemoved = removed
	res.Counts.OverlapRemoved = len(removed)
	p.metrics.ObserveStageRemoved(StageOverlap, len(removed))

	res.Entities = make([]TokenSpan, 0, len(resolved))
	for _, s := range resolved {
		ts, te, _ := idx.Convert(s.Start, s.End)
		res.Entities = append(res.Entities, TokenSpan{Span: s, TokenStart: ts, TokenEnd: te})
	}
	res.Counts.FinalEntities = len(res.Entities)

	for label, n := range res.LabelCounts() {
		p.metrics.ObserveEntities(label, n)
	}

	p.logger.Debug("detection finished",
		logging.Int("chunks", len(chunks)),
		logging.Int("raw", res.Counts.RawDetections),
		logging.Int("entities", res.Counts.FinalEntities),
		logging.Int("filtered", res.Counts.FalsePositivesFiltered),
		logging.Int("dropped_token_conversions", res.Counts.TokenConversionDropped),
	)
	return res, nil
}

// detectChunks calls the detector for every chunk, up to MaxConcurrency at a
// time, and returns all spans in document coordinates ordered by Start.
func (p *Pipeline) detectChunks(ctx context.Context, chunks []Chunk) ([]Span, error) {
	perChunk := make([][]Span, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrency)
	for i, c := range chunks {
		i, c := i, c
		g.Go(func() error {
			started := time.Now()
			hits, err := p.detector.Detect(gctx, c.Text, p.cfg.Labels, p.cfg.Threshold)
			p.metrics.ObserveChunkDetection(time.Since(started), err)
			if err != nil {
				return errors.Wrapf(err, errors.CodeUnknown, "detect chunk %d [%d,%d)", i, c.Start, c.End)
			}
			spans := make([]Span, 0, len(hits))
			for _, h := range hits {
				s, err := toSpan(h, c)
				if err != nil {
					return err
				}
				spans = append(spans, s)
			}
			perChunk[i] = spans
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []Span
	for _, spans := range perChunk {
		all = append(all, spans...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Start < all[j].Start })
	return all, nil
}

//Personal.AI order the ending
