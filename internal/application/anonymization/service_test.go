package anonymization

import (
	"context"
	"encoding/json"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/storage/minio"
	"github.com/turtacn/PII-Anonymizer/internal/intelligence/pii"
	"github.com/turtacn/PII-Anonymizer/pkg/errors"
)

// wordDetector reports whole-word occurrences of fixed strings.
type wordDetector struct {
	mu         sync.Mutex
	words      map[string][]string
	err        error
	thresholds []float64
	labels     [][]string
}

func (d *wordDetector) Detect(_ context.Context, text string, labels []string, threshold float64) ([]pii.Detection, error) {
	d.mu.Lock()
	d.thresholds = append(d.thresholds, threshold)
	d.labels = append(d.labels, labels)
	d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	var out []pii.Detection
	for label, words := range d.words {
		for _, w := range words {
			re := regexp.MustCompile(`\b` + regexp.QuoteMeta(w) + `\b`)
			for _, loc := range re.FindAllStringIndex(text, -1) {
				out = append(out, pii.Detection{Start: loc[0], End: loc[1], Label: label, Text: w, Score: pii.Score(0.9)})
			}
		}
	}
	return out, nil
}

type fakeStore struct {
	runID     string
	docID     string
	artifacts []minio.Artifact
	err       error
}

func (s *fakeStore) SaveRun(_ context.Context, runID, documentID string, artifacts []minio.Artifact) ([]minio.StoredArtifact, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.runID, s.docID, s.artifacts = runID, documentID, artifacts
	out := make([]minio.StoredArtifact, 0, len(artifacts))
	for _, a := range artifacts {
		out = append(out, minio.StoredArtifact{Key: "runs/" + runID + "/" + a.Name, Size: int64(len(a.Data))})
	}
	return out, nil
}

type docMetrics struct {
	mu    sync.Mutex
	modes []string
}

func (m *docMetrics) ObserveChunkDetection(time.Duration, error) {}
func (m *docMetrics) ObserveStageRemoved(string, int)            {}
func (m *docMetrics) ObserveEntities(string, int)                {}
func (m *docMetrics) ObserveFuzzyMatches(int)                    {}
func (m *docMetrics) ObserveDocument(mode string, _ time.Duration, _ error) {
	m.mu.Lock()
	m.modes = append(m.modes, mode)
	m.mu.Unlock()
}

const annaText = "Anna Meier rief Anna an. Annas Handy war aus."

func newTestService(t *testing.T, det pii.Detector, opts ...Option) Service {
	t.Helper()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	opts = append([]Option{WithClock(func() time.Time { return fixed }, func() string { return "run-1" })}, opts...)
	svc, err := NewService(pii.DefaultConfig(), det, nil, opts...)
	require.NoError(t, err)
	return svc
}

func personDetector() *wordDetector {
	return &wordDetector{words: map[string][]string{
		"person": {"Anna Meier", "Anna"},
		"email":  {"anna@example.com"},
	}}
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(pii.DefaultConfig(), nil, nil)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))

	cfg := pii.DefaultConfig()
	cfg.Threshold = 2
	_, err = NewService(cfg, personDetector(), nil)
	assert.True(t, errors.IsCode(err, errors.CodeThresholdOutOfRange))
}

func TestDetect(t *testing.T) {
	svc := newTestService(t, personDetector())

	out, err := svc.Detect(context.Background(), &DetectInput{Text: "Schreiben Sie an anna@example.com bitte."})
	require.NoError(t, err)

	assert.Equal(t, "de", out.Language)
	require.Len(t, out.EntitiesWithScores, 1)
	e := out.EntitiesWithScores[0]
	assert.Equal(t, "email", e.Label)
	assert.Equal(t, "anna@example.com", e.Text)
	assert.Equal(t, 17, e.Start)
	assert.Equal(t, 33, e.End)
	assert.Equal(t, 3, e.TokenStart)
	assert.Equal(t, 8, e.TokenEnd)
	assert.InDelta(t, 0.9, e.Score, 1e-9)
	assert.Equal(t, 1, out.Statistics.TotalEntities)
	assert.Equal(t, map[string]int{"email": 1}, out.Statistics.Labels)
	assert.Equal(t, 1, out.Statistics.TotalSentences)
}

func TestDetect_CharacterOffsets(t *testing.T) {
	svc := newTestService(t, &wordDetector{words: map[string][]string{"location": {"Köln"}}})

	out, err := svc.Detect(context.Background(), &DetectInput{Text: "Grüße aus Köln."})
	require.NoError(t, err)

	require.Len(t, out.EntitiesWithScores, 1)
	e := out.EntitiesWithScores[0]
	assert.Equal(t, 10, e.Start)
	assert.Equal(t, 14, e.End)
	assert.Equal(t, "Köln", string([]rune(out.Text)[e.Start:e.End]))
}

func TestDetect_EmptyText(t *testing.T) {
	svc := newTestService(t, personDetector())
	_, err := svc.Detect(context.Background(), &DetectInput{Text: "   "})
	assert.True(t, errors.IsCode(err, errors.CodeValidation))

	_, err = svc.Anonymize(context.Background(), nil)
	assert.True(t, errors.IsCode(err, errors.CodeValidation))
}

func TestDetect_OptionsReachDetector(t *testing.T) {
	det := personDetector()
	svc := newTestService(t, det)

	th := 0.75
	out, err := svc.Detect(context.Background(), &DetectInput{
		Text:    annaText,
		Options: Options{Labels: []string{"person"}, Threshold: &th, Language: "en"},
	})
	require.NoError(t, err)

	assert.Equal(t, "en", out.Language)
	require.NotEmpty(t, det.thresholds)
	assert.Equal(t, 0.75, det.thresholds[0])
	assert.Equal(t, []string{"person"}, det.labels[0])
}

func TestDetect_DetectorError(t *testing.T) {
	det := &wordDetector{err: errors.New(errors.CodeDetectorUnavailable, "down")}
	svc := newTestService(t, det)

	_, err := svc.Detect(context.Background(), &DetectInput{Text: annaText})
	assert.True(t, errors.IsCode(err, errors.CodeDetectorUnavailable))
}

func TestAnonymize_ResolvesCoreferences(t *testing.T) {
	svc := newTestService(t, personDetector())

	out, err := svc.Anonymize(context.Background(), &AnonymizeInput{DocumentID: "doc-1", Text: annaText})
	require.NoError(t, err)

	assert.Equal(t, "run-1", out.RunID)
	assert.Equal(t, "doc-1", out.DocumentID)
	require.Contains(t, out.EntityMapping, "[NAME_0]")
	assert.Equal(t, "Anna Meier", out.EntityMapping["[NAME_0]"].Text)
	assert.Len(t, out.EntityMapping, 1)
	assert.Equal(t, "[NAME_0] rief [NAME_0] an. [NAME_0] Handy war aus.", out.AnonymizedText)
	assert.Equal(t, 1, out.Statistics.Pipeline.OverlapRemoved)
	assert.Equal(t, 1, out.Statistics.FuzzyMatches)
	assert.True(t, out.Statistics.EntityResolution)
	assert.True(t, out.Statistics.FuzzyMatching)
	assert.Equal(t, out.Statistics.TotalEntities, len(out.Entities))
	require.NotNil(t, out.Audit)
	assert.Nil(t, out.Artifacts)
}

func TestAnonymize_PlaceholderFormatOverride(t *testing.T) {
	svc := newTestService(t, personDetector())

	out, err := svc.Anonymize(context.Background(), &AnonymizeInput{
		Text:    "Mail an anna@example.com.",
		Options: Options{PlaceholderFormat: "angles"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Mail an <EMAIL_0>.", out.AnonymizedText)

	_, err = svc.Anonymize(context.Background(), &AnonymizeInput{
		Text:    "Mail an anna@example.com.",
		Options: Options{PlaceholderFormat: "square"},
	})
	assert.True(t, errors.IsCode(err, errors.CodePlaceholderFormat))
}

func TestAnonymize_Persist(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(t, personDetector(), WithArtifactStore(store))

	out, err := svc.Anonymize(context.Background(), &AnonymizeInput{DocumentID: "doc-7", Text: annaText, Persist: true})
	require.NoError(t, err)

	assert.Equal(t, "run-1", store.runID)
	assert.Equal(t, "doc-7", store.docID)
	require.Len(t, store.artifacts, 3)
	assert.Equal(t, minio.ArtifactAnonymizedText, store.artifacts[0].Name)
	assert.Equal(t, out.AnonymizedText, string(store.artifacts[0].Data))

	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(store.artifacts[1].Data, &meta))
	assert.Contains(t, meta, "audit")
	assert.Equal(t, "run-1", meta["run_id"])

	var det map[string]interface{}
	require.NoError(t, json.Unmarshal(store.artifacts[2].Data, &det))
	assert.Contains(t, det, "entities_with_scores")

	require.Len(t, out.Artifacts, 3)
	assert.Equal(t, "runs/run-1/anonymized.txt", out.Artifacts[0].Key)
}

func TestAnonymize_PersistFailure(t *testing.T) {
	store := &fakeStore{err: errors.New(errors.CodeArtifactUpload, "bucket gone")}
	svc := newTestService(t, personDetector(), WithArtifactStore(store))

	_, err := svc.Anonymize(context.Background(), &AnonymizeInput{Text: annaText, Persist: true})
	assert.True(t, errors.IsCode(err, errors.CodeArtifactUpload))

	_, err = svc.Anonymize(context.Background(), &AnonymizeInput{Text: annaText})
	assert.NoError(t, err)
}

func TestService_RecordsDocumentMetrics(t *testing.T) {
	m := &docMetrics{}
	svc := newTestService(t, personDetector(), WithMetrics(m))

	_, err := svc.Detect(context.Background(), &DetectInput{Text: annaText})
	require.NoError(t, err)
	_, err = svc.Anonymize(context.Background(), &AnonymizeInput{Text: annaText})
	require.NoError(t, err)

	assert.Equal(t, []string{"detect", "anonymize"}, m.modes)
}

func TestService_FalsePositives(t *testing.T) {
	fp := pii.NewFalsePositiveTable(map[string][]string{"person": {"anna"}})
	svc := newTestService(t, personDetector(), WithFalsePositives(fp))

	on := true
	out, err := svc.Detect(context.Background(), &DetectInput{
		Text:    "Anna kommt.",
		Options: Options{FilterFalsePositives: &on},
	})
	require.NoError(t, err)
	assert.Empty(t, out.EntitiesWithScores)
	assert.Equal(t, 1, out.Statistics.Pipeline.FalsePositivesFiltered)
}

func TestApplyOptions_DoesNotAliasBase(t *testing.T) {
	base := pii.DefaultConfig()
	off := false
	cfg := applyOptions(base, Options{FuzzyMatching: &off})
	cfg.Labels[0] = "changed"

	assert.False(t, cfg.Anonymizer.FuzzyMatching)
	assert.True(t, base.Anonymizer.FuzzyMatching)
	assert.Equal(t, "person", base.Labels[0])
}

func TestEncodeJSON_KeepsPlaceholders(t *testing.T) {
	data, err := EncodeJSON(map[string]string{"<NAME_0>": "Anna & Co"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"<NAME_0>": "Anna & Co"`)
}

//Personal.AI order the ending
