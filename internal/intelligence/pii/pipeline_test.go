package pii

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PII-Anonymizer/pkg/errors"
)

const meetingText = "Gestern traf Anna Meier in Berlin ihren Kollegen. Anna Meier wohnt in Berlin."

// substringDetector reports every occurrence of the configured texts.
func substringDetector(entities map[string]string) Detector {
	return DetectorFunc(func(_ context.Context, text string, _ []string, _ float64) ([]Detection, error) {
		var out []Detection
		for needle, label := range entities {
			for off := 0; ; {
				i := strings.Index(text[off:], needle)
				if i < 0 {
					break
				}
				start := off + i
				out = append(out, Detection{Start: start, End: start + len(needle), Label: label, Text: needle, Score: Score(0.9)})
				off = start + len(needle)
			}
		}
		return out, nil
	})
}

func meetingConfig() Config {
	cfg := DefaultConfig()
	cfg.ChunkSize = 40
	cfg.ChunkOverlap = 20
	return cfg
}

func meetingDetector() Detector {
	return substringDetector(map[string]string{"Anna Meier": LabelPerson, "Berlin": LabelLocation})
}

type countingMetrics struct {
	noopMetrics
	chunks    atomic.Int32
	documents atomic.Int32
}

func (m *countingMetrics) ObserveChunkDetection(time.Duration, error)   { m.chunks.Add(1) }
func (m *countingMetrics) ObserveDocument(string, time.Duration, error) { m.documents.Add(1) }

func TestPipeline_DetectDedupesAcrossChunks(t *testing.T) {
	metrics := &countingMetrics{}
	p, err := NewPipeline(meetingConfig(), meetingDetector(), WithMetrics(metrics))
	require.NoError(t, err)

	res, err := p.Detect(context.Background(), meetingText)
	require.NoError(t, err)

	require.Len(t, res.Chunks, 2)
	assert.Equal(t, 5, res.Counts.RawDetections)
	assert.Equal(t, 1, res.Counts.DuplicatesRemoved)
	assert.Equal(t, 4, res.Counts.FinalEntities)

	starts := make([]int, 0, len(res.Entities))
	for _, e := range res.Entities {
		starts = append(starts, e.Start)
	}
	assert.Equal(t, []int{13, 27, 50, 70}, starts)
	assert.Equal(t, map[string]int{LabelPerson: 2, LabelLocation: 2}, res.LabelCounts())
	assert.Equal(t, int32(2), metrics.chunks.Load())
	assert.Equal(t, int32(1), metrics.documents.Load())
}

func TestPipeline_Anonymize(t *testing.T) {
	p, err := NewPipeline(meetingConfig(), meetingDetector())
	require.NoError(t, err)

	res, err := p.Anonymize(context.Background(), meetingText)
	require.NoError(t, err)

	assert.Equal(t, "Gestern traf [NAME_0] in [PLACE_0] ihren Kollegen. [NAME_0] wohnt in [PLACE_0].", res.Anonymization.Text)
	assert.Equal(t, "Anna Meier", res.Anonymization.Mapping["[NAME_0]"].Text)
	assert.Equal(t, "Berlin", res.Anonymization.Mapping["[PLACE_0]"].Text)

	require.NotNil(t, res.Audit)
	assert.Len(t, res.Audit.Clusters, 2)
	assert.Len(t, res.Audit.ChunkBoundaries, 2)
	assert.Equal(t, 4, res.Audit.Counts.FinalEntities)
}

func TestPipeline_FalsePositiveFilter(t *testing.T) {
	cfg := meetingConfig()
	cfg.FilterFalsePositives = true
	table := NewFalsePositiveTable(map[string][]string{LabelLocation: {"berlin"}})

	p, err := NewPipeline(cfg, meetingDetector(), WithFalsePositives(table))
	require.NoError(t, err)

	res, err := p.Detect(context.Background(), meetingText)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Counts.FalsePositivesFiltered)
	assert.Len(t, res.Filtered, 2)
	assert.Equal(t, map[string]int{LabelPerson: 2}, res.LabelCounts())
}

func TestPipeline_FilterDisabledIgnoresTable(t *testing.T) {
	table := NewFalsePositiveTable(map[string][]string{LabelLocation: {"berlin"}})
	p, err := NewPipeline(meetingConfig(), meetingDetector(), WithFalsePositives(table))
	require.NoError(t, err)

	res, err := p.Detect(context.Background(), meetingText)
	require.NoError(t, err)
	assert.Zero(t, res.Counts.FalsePositivesFiltered)
}

func TestPipeline_DropsMisalignedSpans(t *testing.T) {
	det := DetectorFunc(func(context.Context, string, []string, float64) ([]Detection, error) {
		return []Detection{
			{Start: 13, End: 16, Label: LabelPerson, Score: Score(0.9)},
			{Start: 27, End: 33, Label: LabelLocation, Score: Score(0.8)},
		}, nil
	})
	p, err := NewPipeline(DefaultConfig(), det)
	require.NoError(t, err)

	res, err := p.Detect(context.Background(), meetingText)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Counts.TokenConversionDropped)
	require.Len(t, res.Entities, 1)
	assert.Equal(t, "Berlin", res.Entities[0].Text)
}

func TestPipeline_MissingScoreIsFatal(t *testing.T) {
	det := DetectorFunc(func(context.Context, string, []string, float64) ([]Detection, error) {
		return []Detection{{Start: 13, End: 23, Label: LabelPerson}}, nil
	})
	p, err := NewPipeline(DefaultConfig(), det)
	require.NoError(t, err)

	_, err = p.Anonymize(context.Background(), meetingText)
	assert.ErrorIs(t, err, ErrMissingScore)
}

func TestPipeline_DetectorErrorKeepsCode(t *testing.T) {
	det := DetectorFunc(func(context.Context, string, []string, float64) ([]Detection, error) {
		return nil, errors.New(errors.CodeDetectorUnavailable, "connection refused")
	})
	p, err := NewPipeline(DefaultConfig(), det)
	require.NoError(t, err)

	_, err = p.Detect(context.Background(), meetingText)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeDetectorUnavailable))
}

func TestPipeline_EmptyText(t *testing.T) {
	p, err := NewPipeline(DefaultConfig(), meetingDetector())
	require.NoError(t, err)

	res, err := p.Anonymize(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, res.Detection.Entities)
	assert.Equal(t, "", res.Anonymization.Text)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Labels = nil
	assert.True(t, errors.IsCode(cfg.Validate(), errors.CodeEmptyLabels))

	cfg = DefaultConfig()
	cfg.Threshold = 1.5
	assert.True(t, errors.IsCode(cfg.Validate(), errors.CodeThresholdOutOfRange))

	cfg = DefaultConfig()
	cfg.ChunkOverlap = cfg.ChunkSize
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidChunking)

	cfg = DefaultConfig()
	cfg.ChunkOverlap = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidChunking)

	cfg = DefaultConfig()
	cfg.Anonymizer.Format = "html"
	assert.ErrorIs(t, cfg.Validate(), ErrUnknownFormat)
}

func TestNewPipeline_NilDetector(t *testing.T) {
	_, err := NewPipeline(DefaultConfig(), nil)
	assert.Error(t, err)
}

//Personal.AI order the ending
