package pii

import (
	"sort"
	"strings"
)

type dedupeKey struct {
	label string
	text  string
}

// Dedupe removes repeated detections of the same entity recovered from two
// overlapping chunks.  Spans are visited in (Start asc, Score desc) order; a
// span is dropped when the last kept span with the same label and
// case-folded text started less than proximity bytes away.  The result is
// ordered by Start.
func Dedupe(spans []Span, proximity int) []Span {
	if len(spans) == 0 {
		return nil
	}

	sorted := make([]Span, len(spans))
	copy(sorted, spans)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].Score > sorted[j].Score
	})

	lastSeen := make(map[dedupeKey]int, len(sorted))
	out := make([]Span, 0, len(sorted))
	for _, s := range sorted {
		key := dedupeKey{label: s.Label, text: strings.ToLower(s.Text)}
		if prev, ok := lastSeen[key]; ok && abs(s.Start-prev) < proximity {
			continue
		}
		lastSeen[key] = s.Start
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

//Personal.AI order the ending
