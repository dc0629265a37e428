package pii

import (
	"sort"
	"strings"
)

// applyReplacements rewrites text in one pass, copying the segments between
// records and writing each record's placeholder in place of [Start,End).
// Records are applied in Start order; a record overlapping an earlier one is
// skipped.  It returns the new text, the byte ranges the placeholders occupy
// in it and the records actually applied.
func applyReplacements(text string, recs []ReplacementRecord) (string, []Range, []ReplacementRecord) {
	if len(recs) == 0 {
		return text, nil, nil
	}

	ordered := make([]ReplacementRecord, len(recs))
	copy(ordered, recs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })

	var b strings.Builder
	b.Grow(len(text))
	ranges := make([]Range, 0, len(ordered))
	applied := make([]ReplacementRecord, 0, len(ordered))

	cursor := 0
	for _, r := range ordered {
		if r.Start < cursor || r.End > len(text) || r.End <= r.Start {
			continue
		}
		b.WriteString(text[cursor:r.Start])
		start := b.Len()
		b.WriteString(r.Placeholder)
		ranges = append(ranges, Range{Start: start, End: b.Len()})
		applied = append(applied, r)
		cursor = r.End
	}
	b.WriteString(text[cursor:])
	return b.String(), ranges, applied
}

// shiftRanges maps ranges of the input of a rewrite onto its output, given
// the records that rewrite applied.  Ranges must not intersect the records.
func shiftRanges(ranges []Range, applied []ReplacementRecord) []Range {
	if len(applied) == 0 {
		return ranges
	}
	out := make([]Range, len(ranges))
	for i, rg := range ranges {
		delta := 0
		for _, a := range applied {
			if a.End <= rg.Start {
				delta += len(a.Placeholder) - (a.End - a.Start)
			}
		}
		out[i] = Range{Start: rg.Start + delta, End: rg.End + delta}
	}
	return out
}

//Personal.AI order the ending
