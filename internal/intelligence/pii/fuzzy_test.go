package pii

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuzzyMatcher_Possessive(t *testing.T) {
	m := NewFuzzyMatcher(0, nil)
	text := "[NAME_0] rief [NAME_0] an. Annas Handy war aus."
	recs := m.FindVariations(text, []FuzzyTarget{
		{Label: LabelPerson, Canonical: "Anna Meier", Placeholder: "[NAME_0]"},
	}, []Range{{0, 8}, {14, 22}})

	require.Len(t, recs, 1)
	assert.Equal(t, KindPossessive, recs[0].Kind)
	assert.Equal(t, "Annas", recs[0].MatchedText)
	assert.Equal(t, "Anna Meier", recs[0].CanonicalForm)
}

func TestFuzzyMatcher_ExactRepeat(t *testing.T) {
	m := NewFuzzyMatcher(0, nil)
	text := "Die ACME GmbH und die acme gmbh sind dieselbe Firma."
	recs := m.FindVariations(text, []FuzzyTarget{
		{Label: LabelOrganization, Canonical: "ACME GmbH", Placeholder: "[COMPANY_0]"},
	}, nil)

	require.Len(t, recs, 2)
	for _, r := range recs {
		assert.Equal(t, KindExact, r.Kind)
	}
	assert.Equal(t, "acme gmbh", recs[1].MatchedText)
}

func TestFuzzyMatcher_Standalone(t *testing.T) {
	m := NewFuzzyMatcher(0, nil)
	recs := m.FindVariations("Gruß an Meier, Meier-Schulz.", []FuzzyTarget{
		{Label: LabelPerson, Canonical: "Meier", Placeholder: "[NAME_0]"},
	}, nil)

	require.Len(t, recs, 2)
	assert.Equal(t, 9, recs[0].Start)
	assert.Equal(t, 16, recs[1].Start)
}

func TestFuzzyMatcher_NearDuplicate(t *testing.T) {
	m := NewFuzzyMatcher(0, nil)
	recs := m.FindVariations("Wir sprachen mit Siemens Helthineers gestern.", []FuzzyTarget{
		{Label: LabelOrganization, Canonical: "Siemens Healthineers", Placeholder: "[COMPANY_0]"},
	}, nil)

	require.Len(t, recs, 1)
	assert.Equal(t, KindNearDuplicate, recs[0].Kind)
	assert.Equal(t, Range{17, 36}, Range{recs[0].Start, recs[0].End})
}

func TestFuzzyMatcher_NearDuplicateOnlyForNamedEntities(t *testing.T) {
	m := NewFuzzyMatcher(0, nil)
	recs := m.FindVariations("Schreib an anna.meyer@example.org bitte.", []FuzzyTarget{
		{Label: "email", Canonical: "anna.meier@example.org", Placeholder: "[EMAIL_0]"},
	}, nil)
	assert.Empty(t, recs)
}

func TestFuzzyMatcher_ExcludedRangesSkipped(t *testing.T) {
	m := NewFuzzyMatcher(0, nil)
	recs := m.FindVariations("Anna", []FuzzyTarget{
		{Label: LabelPerson, Canonical: "Anna", Placeholder: "[NAME_0]"},
	}, []Range{{0, 4}})
	assert.Empty(t, recs)
}

func TestFuzzyMatcher_NoTargets(t *testing.T) {
	assert.Nil(t, NewFuzzyMatcher(0, nil).FindVariations("Anna", nil, nil))
}

func TestFuzzyMatcher_OverlapsAcrossTargets(t *testing.T) {
	m := NewFuzzyMatcher(0, nil)
	short := FuzzyTarget{Label: LabelPerson, Canonical: "Anna", Placeholder: "[NAME_0]"}
	long := FuzzyTarget{Label: LabelPerson, Canonical: "Anna Meier", Placeholder: "[NAME_1]"}

	for _, targets := range [][]FuzzyTarget{{short, long}, {long, short}} {
		recs := m.FindVariations("Annas Anna Meier", targets, nil)

		require.Len(t, recs, 2)
		assert.Equal(t, Range{0, 5}, Range{recs[0].Start, recs[0].End}, "possessive beats the nested exact match")
		assert.Equal(t, "Annas", recs[0].MatchedText)
		assert.Equal(t, KindPossessive, recs[0].Kind)

		assert.Equal(t, Range{6, 16}, Range{recs[1].Start, recs[1].End}, "longer match wins at the same start")
		assert.Equal(t, "Anna Meier", recs[1].MatchedText)
		assert.Equal(t, "[NAME_1]", recs[1].Placeholder)
	}
}

//Personal.AI order the ending
