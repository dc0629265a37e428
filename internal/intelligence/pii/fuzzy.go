package pii

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/monitoring/logging"
)

// Match kinds reported in ReplacementRecord.Kind.
const (
	KindSpan          = "span"
	KindExact         = "exact"
	KindPossessive    = "possessive"
	KindStandalone    = "standalone"
	KindNearDuplicate = "near_duplicate"
)

var nearDuplicateLabels = map[string]bool{
	LabelPerson:       true,
	LabelOrganization: true,
	LabelLocation:     true,
}

// FuzzyTarget is one canonical entity text to look for, with the placeholder
// its variants are replaced by.
type FuzzyTarget struct {
	Label       string
	Canonical   string
	Placeholder string
}

// FuzzyMatcher finds occurrences of canonical entity texts that the detector
// did not tag: repeats, possessive forms, first-name-only mentions and
// near-duplicate spellings.
type FuzzyMatcher struct {
	SimilarityThreshold float64
	logger              logging.Logger
}

// NewFuzzyMatcher returns a matcher.  A non-positive threshold selects
// DefaultFuzzySimilarity.
func NewFuzzyMatcher(threshold float64, logger logging.Logger) *FuzzyMatcher {
	if threshold <= 0 {
		threshold = DefaultFuzzySimilarity
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &FuzzyMatcher{SimilarityThreshold: threshold, logger: logger}
}

// FindVariations returns non-overlapping replacement records for all targets.
// Candidates touching an excluded range are discarded first; the remainder is
// ordered by (Start asc, length desc) and kept greedily.
func (m *FuzzyMatcher) FindVariations(text string, targets []FuzzyTarget, excluded []Range) []ReplacementRecord {
	if text == "" || len(targets) == 0 {
		return nil
	}

	words := wordTokens(text)
	var candidates []ReplacementRecord
	for _, t := range targets {
		if strings.TrimSpace(t.Canonical) == "" {
			continue
		}
		candidates = append(candidates, m.candidatesFor(text, words, t)...)
	}

	filtered := candidates[:0]
	for _, c := range candidates {
		if !intersectsAny(c.Start, c.End, excluded) {
			filtered = append(filtered, c)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].Start != filtered[j].Start {
			return filtered[i].Start < filtered[j].Start
		}
		return filtered[i].End-filtered[i].Start > filtered[j].End-filtered[j].Start
	})

	out := make([]ReplacementRecord, 0, len(filtered))
	lastEnd := -1
	for _, c := range filtered {
		if c.Start >= lastEnd {
			out = append(out, c)
			lastEnd = c.End
		}
	}

	m.logger.Debug("fuzzy variant matching finished",
		logging.Int("targets", len(targets)),
		logging.Int("candidates", len(candidates)),
		logging.Int("matches", len(out)),
	)
	return out
}

func (m *FuzzyMatcher) candidatesFor(text string, words []Token, t FuzzyTarget) []ReplacementRecord {
	var out []ReplacementRecord
	add := func(r Range, kind string) {
		out = append(out, ReplacementRecord{
			Start:         r.Start,
			End:           r.End,
			MatchedText:   text[r.Start:r.End],
			CanonicalForm: t.Canonical,
			Label:         t.Label,
			Placeholder:   t.Placeholder,
			Kind:          kind,
		})
	}

	for _, r := range findFold(text, t.Canonical) {
		add(r, KindExact)
	}

	parts := strings.Fields(t.Canonical)
	if t.Label == LabelPerson {
		for _, p := range parts {
			if utf8.RuneCountInString(p) <= 2 {
				continue
			}
			for _, r := range findWordOccurrences(text, p+"s") {
				add(r, KindPossessive)
			}
		}
		if len(parts) == 1 {
			for _, r := range findWordOccurrences(text, parts[0]) {
				add(r, KindStandalone)
			}
		}
	}

	if nearDuplicateLabels[t.Label] {
		for _, r := range m.nearDuplicates(text, words, t.Canonical, len(parts)) {
			add(r, KindNearDuplicate)
		}
	}
	return out
}

// nearDuplicates slides a window of n consecutive word tokens over the text
// and returns windows whose rune length is within 80%-120% of the canonical's
// and whose edit similarity reaches the threshold.
func (m *FuzzyMatcher) nearDuplicates(text string, words []Token, canonical string, n int) []Range {
	canonLen := utf8.RuneCountInString(canonical)
	if canonLen <= 3 || n == 0 || len(words) < n {
		return nil
	}
	minLen := float64(canonLen) * 0.8
	maxLen := float64(canonLen) * 1.2

	var out []Range
	for i := 0; i+n <= len(words); i++ {
		start, end := words[i].Start, words[i+n-1].End
		window := text[start:end]
		l := float64(utf8.RuneCountInString(window))
		if l < minLen || l > maxLen {
			continue
		}
		if editSimilarity(window, canonical) >= m.SimilarityThreshold {
			out = append(out, Range{Start: start, End: end})
		}
	}
	return out
}

func intersectsAny(start, end int, ranges []Range) bool {
	for _, r := range ranges {
		if spansOverlap(start, end, r.Start, r.End) {
			return true
		}
	}
	return false
}

//Personal.AI order the ending
