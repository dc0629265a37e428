package pii

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupe_DropsNearbyRepeat(t *testing.T) {
	spans := []Span{
		{Start: 104, End: 108, Label: "person", Text: "anna", Score: 0.7},
		{Start: 100, End: 104, Label: "person", Text: "Anna", Score: 0.9},
	}
	out := Dedupe(spans, DefaultProximityThreshold)
	require.Len(t, out, 1)
	assert.Equal(t, 100, out[0].Start)
}

func TestDedupe_KeepsDistantRepeat(t *testing.T) {
	spans := []Span{
		{Start: 100, End: 104, Label: "person", Text: "Anna", Score: 0.9},
		{Start: 200, End: 204, Label: "person", Text: "Anna", Score: 0.9},
	}
	assert.Len(t, Dedupe(spans, DefaultProximityThreshold), 2)
}

func TestDedupe_LabelsAreDistinct(t *testing.T) {
	spans := []Span{
		{Start: 0, End: 6, Label: "person", Text: "Berlin", Score: 0.4},
		{Start: 0, End: 6, Label: "location", Text: "Berlin", Score: 0.9},
	}
	assert.Len(t, Dedupe(spans, DefaultProximityThreshold), 2)
}

func TestDedupe_SameStartKeepsHigherScore(t *testing.T) {
	spans := []Span{
		{Start: 5, End: 11, Label: "location", Text: "Berlin", Score: 0.5},
		{Start: 5, End: 11, Label: "location", Text: "Berlin", Score: 0.95},
	}
	out := Dedupe(spans, DefaultProximityThreshold)
	require.Len(t, out, 1)
	assert.Equal(t, 0.95, out[0].Score)
}

func TestDedupe_Empty(t *testing.T) {
	assert.Empty(t, Dedupe(nil, 10))
}

//Personal.AI order the ending
