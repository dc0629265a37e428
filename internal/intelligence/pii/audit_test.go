package pii

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeConfidenceStats(t *testing.T) {
	stats := ComputeConfidenceStats([]Span{
		{Label: LabelPerson, Score: 0.9},
		{Label: LabelPerson, Score: 0.3},
		{Label: LabelLocation, Score: 0.8},
	})
	require.Contains(t, stats, LabelPerson)

	p := stats[LabelPerson]
	assert.Equal(t, 2, p.Count)
	assert.Equal(t, 0.6, p.Mean)
	assert.Equal(t, 0.3, p.Min)
	assert.Equal(t, 0.9, p.Max)
	assert.Equal(t, 0.3, p.StdDev)
	assert.Equal(t, 1, p.LowConfidence)
	assert.Equal(t, 0, stats[LabelLocation].LowConfidence)
}

func TestBuildAudit_Anomalies(t *testing.T) {
	det := &DetectionResult{
		Text: "Anna rief an.",
		Entities: []TokenSpan{
			{Span: Span{Start: 0, End: 4, Label: LabelPerson, Text: "Anna", Score: 0.4}, TokenStart: 0, TokenEnd: 1},
		},
		DroppedTokenConversions: []Span{{Start: 5, End: 7, Label: LabelPerson, Text: "ri", Score: 0.6}},
		Counts:                  AuditCounts{RawDetections: 2, TokenConversionDropped: 1, FinalEntities: 1},
		TotalTokens:             4,
		TotalSentences:          1,
	}
	anon := &Anonymization{
		Text: "[NAME_0] rief an.",
		Mapping: map[string]MappingEntry{
			"[NAME_0]": {Text: "Anna"},
			"[NAME_1]": {Text: "Ghost"},
		},
	}

	rep := BuildAudit(det, anon)
	assert.Equal(t, 250.0, rep.Density.EntitiesPer1000Tokens)
	assert.Equal(t, 1.0, rep.Density.EntitiesPerSentence)
	assert.Equal(t, 0.308, rep.Density.EntityByteRatio)

	kinds := make(map[string]int)
	for _, a := range rep.Anomalies {
		kinds[a.Kind] = a.Count
	}
	assert.Equal(t, map[string]int{
		AnomalyLowConfidence:     1,
		AnomalyHighDensity:       1,
		AnomalyTokenConversion:   1,
		AnomalyUnusedPlaceholder: 1,
	}, kinds)
}

func TestBuildAudit_WithoutAnonymization(t *testing.T) {
	rep := BuildAudit(&DetectionResult{}, nil)
	assert.Empty(t, rep.Anomalies)
	assert.Empty(t, rep.Clusters)
	assert.Zero(t, rep.Counts.FuzzyMatches)
}

//Personal.AI order the ending
