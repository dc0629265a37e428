package pii

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const annaText = "Anna Meier rief Anna an. Annas Handy war aus."

func annaSpans() []Span {
	return []Span{person(0, "Anna Meier", 0.9), person(16, "Anna", 0.8)}
}

func newTestAnonymizer(t *testing.T, mutate func(*AnonymizerConfig)) *Anonymizer {
	t.Helper()
	cfg := DefaultAnonymizerConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := NewAnonymizer(cfg, nil)
	require.NoError(t, err)
	return a
}

func TestAnonymize_CoreferenceAndPossessive(t *testing.T) {
	a := newTestAnonymizer(t, nil)
	res, err := a.Anonymize(annaText, annaSpans())
	require.NoError(t, err)

	assert.Equal(t, "[NAME_0] rief [NAME_0] an. [NAME_0] Handy war aus.", res.Text)
	assert.Equal(t, map[string]MappingEntry{"[NAME_0]": {Text: "Anna Meier"}}, res.Mapping)
	require.Len(t, res.Clusters, 1)
	assert.Len(t, res.Primary, 2)
	require.Len(t, res.Fuzzy, 1)
	assert.Equal(t, KindPossessive, res.Fuzzy[0].Kind)
}

func TestAnonymize_CountersWithoutResolution(t *testing.T) {
	a := newTestAnonymizer(t, func(c *AnonymizerConfig) {
		c.ResolveEntities = false
		c.FuzzyMatching = false
	})
	res, err := a.Anonymize(annaText, annaSpans())
	require.NoError(t, err)

	assert.Equal(t, "[NAME_0] rief [NAME_1] an. Annas Handy war aus.", res.Text)
	assert.Equal(t, "Anna Meier", res.Mapping["[NAME_0]"].Text)
	assert.Equal(t, "Anna", res.Mapping["[NAME_1]"].Text)
	assert.Equal(t, []string{"[NAME_0]", "[NAME_1]"}, res.Placeholders)
	assert.Empty(t, res.Clusters)
}

func TestAnonymize_IncludeScores(t *testing.T) {
	a := newTestAnonymizer(t, func(c *AnonymizerConfig) { c.IncludeScores = true })
	res, err := a.Anonymize(annaText, annaSpans())
	require.NoError(t, err)

	data, err := json.Marshal(res.Mapping)
	require.NoError(t, err)
	assert.JSONEq(t, `{"[NAME_0]":{"text":"Anna Meier","score":0.9}}`, string(data))
}

func TestMappingEntry_JSONShapes(t *testing.T) {
	var plain, scored MappingEntry
	require.NoError(t, json.Unmarshal([]byte(`"Berlin"`), &plain))
	require.NoError(t, json.Unmarshal([]byte(`{"text":"Berlin","score":0.75}`), &scored))

	assert.Equal(t, "Berlin", plain.Text)
	assert.Nil(t, plain.Score)
	require.NotNil(t, scored.Score)
	assert.Equal(t, 0.75, *scored.Score)
}

func TestAnonymize_PlaceholderFormatAndRawLabels(t *testing.T) {
	a := newTestAnonymizer(t, func(c *AnonymizerConfig) {
		c.Format = FormatDoubleAngles
		c.LabelMapping = nil
		c.FuzzyMatching = false
	})
	res, err := a.Anonymize(annaText, annaSpans())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Text, "<<PERSON#0>> rief <<PERSON#0>>"), res.Text)
}

func TestAnonymize_OverlappingInputResolved(t *testing.T) {
	a := newTestAnonymizer(t, func(c *AnonymizerConfig) { c.FuzzyMatching = false })
	res, err := a.Anonymize(annaText, []Span{
		person(0, "Anna Meier", 0.9),
		person(5, "Meier", 0.95),
	})
	require.NoError(t, err)
	assert.Equal(t, "[NAME_0] rief Anna an. Annas Handy war aus.", res.Text)
	assert.Len(t, res.Mapping, 1)
}

func TestAnonymize_RejectsBadSpans(t *testing.T) {
	a := newTestAnonymizer(t, nil)

	_, err := a.Anonymize(annaText, []Span{{Start: 0, End: 4, Label: LabelPerson, Text: "Anna", Score: math.NaN()}})
	assert.ErrorIs(t, err, ErrMissingScore)

	for _, score := range []float64{-1, 1.5, math.Inf(1)} {
		_, err = a.Anonymize(annaText, []Span{{Start: 0, End: 4, Label: LabelPerson, Text: "Anna", Score: score}})
		assert.ErrorIs(t, err, ErrMissingScore, "score %v", score)
	}

	_, err = a.Anonymize(annaText, []Span{{Start: 40, End: 400, Label: LabelPerson, Score: 0.9}})
	assert.ErrorIs(t, err, ErrInvalidSpan)
}

func TestAnonymize_NoSpans(t *testing.T) {
	a := newTestAnonymizer(t, nil)
	res, err := a.Anonymize(annaText, nil)
	require.NoError(t, err)
	assert.Equal(t, annaText, res.Text)
	assert.Empty(t, res.Mapping)
}

func TestAnonymize_PlaceholderRangesResolveInMapping(t *testing.T) {
	a := newTestAnonymizer(t, nil)
	res, err := a.Anonymize(annaText, annaSpans())
	require.NoError(t, err)

	require.Len(t, res.PlaceholderRanges, 3)
	for _, r := range res.PlaceholderRanges {
		_, ok := res.Mapping[res.Text[r.Start:r.End]]
		assert.True(t, ok, "range %v", r)
	}
}

func TestAnonymize_Deterministic(t *testing.T) {
	a := newTestAnonymizer(t, nil)
	text := "Anna Meier und Peter Schulz trafen sich in Köln. Peter erzählte Anna von Köln."
	spans := []Span{
		person(0, "Anna Meier", 0.9),
		person(15, "Peter Schulz", 0.85),
		{Start: 43, End: 48, Label: LabelLocation, Text: "Köln", Score: 0.7},
	}
	first, err := a.Anonymize(text, spans)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := a.Anonymize(text, spans)
		require.NoError(t, err)
		assert.Equal(t, first.Text, again.Text)
		assert.Equal(t, first.Mapping, again.Mapping)
	}
	assert.NotContains(t, first.Text, "Köln")
	assert.NotContains(t, first.Text, "Peter Schulz")
}

func TestNewAnonymizer_UnknownFormat(t *testing.T) {
	cfg := DefaultAnonymizerConfig()
	cfg.Format = "bogus"
	_, err := NewAnonymizer(cfg, nil)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

//Personal.AI order the ending
