package anonymization

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/storage/minio"
	"github.com/turtacn/PII-Anonymizer/internal/intelligence/pii"
	"github.com/turtacn/PII-Anonymizer/pkg/errors"
)

// Entity is one detected entity as published.  Start and End are character
// (rune) offsets into the normalised document text.
type Entity struct {
	Text       string  `json:"text"`
	Label      string  `json:"label"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	TokenStart int     `json:"token_start"`
	TokenEnd   int     `json:"token_end"`
	Score      float64 `json:"score"`
}

// DetectionStatistics summarises a detection.
type DetectionStatistics struct {
	TotalEntities  int             `json:"total_entities"`
	TotalTokens    int             `json:"total_tokens"`
	TotalSentences int             `json:"total_sentences"`
	Labels         map[string]int  `json:"labels"`
	Pipeline       pii.AuditCounts `json:"pipeline"`
}

// AnonymizationStatistics adds the anonymizer settings that shaped the
// output.
type AnonymizationStatistics struct {
	DetectionStatistics
	EntityResolution bool `json:"entity_resolution"`
	FuzzyMatching    bool `json:"fuzzy_matching"`
	FuzzyMatches     int  `json:"fuzzy_matches"`
	Placeholders     int  `json:"placeholders"`
}

// DetectionOutput is the detection payload.
type DetectionOutput struct {
	Text               string              `json:"text"`
	Language           string              `json:"language"`
	EntitiesWithScores []Entity            `json:"entities_with_scores"`
	Statistics         DetectionStatistics `json:"statistics"`
}

// AnonymizationOutput is the anonymization payload.
type AnonymizationOutput struct {
	RunID          string                      `json:"run_id"`
	DocumentID     string                      `json:"document_id,omitempty"`
	Language       string                      `json:"language"`
	AnonymizedText string                      `json:"anonymized_text"`
	EntityMapping  map[string]pii.MappingEntry `json:"entity_mapping"`
	Entities       []Entity                    `json:"entities"`
	Statistics     AnonymizationStatistics     `json:"statistics"`
	CreatedAt      time.Time                   `json:"created_at"`
	Artifacts      []minio.StoredArtifact      `json:"artifacts,omitempty"`

	// Audit is written by Metadata, never inline.
	Audit *pii.AuditReport `json:"-"`
}

// Metadata is the sidecar document written next to an anonymized text in
// split-output mode.
type Metadata struct {
	RunID         string                      `json:"run_id"`
	DocumentID    string                      `json:"document_id,omitempty"`
	Language      string                      `json:"language"`
	CreatedAt     time.Time                   `json:"created_at"`
	EntityMapping map[string]pii.MappingEntry `json:"entity_mapping"`
	Statistics    AnonymizationStatistics     `json:"statistics"`
	Audit         *pii.AuditReport            `json:"audit"`
}

// Metadata returns the split-output sidecar.
func (o *AnonymizationOutput) Metadata() *Metadata {
	return &Metadata{
		RunID:         o.RunID,
		DocumentID:    o.DocumentID,
		Language:      o.Language,
		CreatedAt:     o.CreatedAt,
		EntityMapping: o.EntityMapping,
		Statistics:    o.Statistics,
		Audit:         o.Audit,
	}
}

func entitiesOf(text string, spans []pii.TokenSpan) []Entity {
	out := make([]Entity, 0, len(spans))
	for _, s := range spans {
		out = append(out, Entity{
			Text:       s.Text,
			Label:      s.Label,
			Start:      pii.CharOffset(text, s.Start),
			End:        pii.CharOffset(text, s.End),
			TokenStart: s.TokenStart,
			TokenEnd:   s.TokenEnd,
			Score:      s.Score,
		})
	}
	return out
}

func statisticsOf(det *pii.DetectionResult) DetectionStatistics {
	return DetectionStatistics{
		TotalEntities:  len(det.Entities),
		TotalTokens:    det.TotalTokens,
		TotalSentences: det.TotalSentences,
		Labels:         det.LabelCounts(),
		Pipeline:       det.Counts,
	}
}

func newDetectionOutput(det *pii.DetectionResult, language string) *DetectionOutput {
	return &DetectionOutput{
		Text:               det.Text,
		Language:           language,
		EntitiesWithScores: entitiesOf(det.Text, det.Entities),
		Statistics:         statisticsOf(det),
	}
}

func newAnonymizationOutput(res *pii.Result, cfg pii.AnonymizerConfig) *AnonymizationOutput {
	anon := res.Anonymization
	mapping := anon.Mapping
	if mapping == nil {
		mapping = map[string]pii.MappingEntry{}
	}
	return &AnonymizationOutput{
		AnonymizedText: anon.Text,
		EntityMapping:  mapping,
		Entities:       entitiesOf(res.Detection.Text, res.Detection.Entities),
		Statistics: AnonymizationStatistics{
			DetectionStatistics: statisticsOf(res.Detection),
			EntityResolution:    cfg.ResolveEntities,
			FuzzyMatching:       cfg.FuzzyMatching,
			FuzzyMatches:        len(anon.Fuzzy),
			Placeholders:        len(anon.Placeholders),
		},
		Audit: res.Audit,
	}
}

// EncodeJSON renders a payload the way it is stored and printed: indented,
// with placeholder brackets such as "<NAME_0>" left unescaped.
func EncodeJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, errors.Wrap(err, errors.CodeSerialization, "failed to encode payload")
	}
	return buf.Bytes(), nil
}

//Personal.AI order the ending
