package pii

import "sort"

// ResolveOverlaps keeps a non-overlapping subset of spans, longest first and
// leftmost on ties, the greedy policy used when post-processing sequence
// labels.  kept is ordered by Start; removed lists every discarded span in
// the order it was rejected.
func ResolveOverlaps(spans []Span) (kept, removed []Span) {
	if len(spans) == 0 {
		return nil, nil
	}

	candidates := make([]Span, len(spans))
	copy(candidates, spans)
	sort.SliceStable(candidates, func(i, j int) bool {
		li, lj := candidates[i].Len(), candidates[j].Len()
		if li != lj {
			return li > lj
		}
		return candidates[i].Start < candidates[j].Start
	})

	kept = make([]Span, 0, len(candidates))
	for _, c := range candidates {
		if overlapsAny(c, kept) {
			removed = append(removed, c)
			continue
		}
		kept = append(kept, c)
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept, removed
}

func overlapsAny(s Span, set []Span) bool {
	for _, k := range set {
		if s.Overlaps(k) {
			return true
		}
	}
	return false
}

//Personal.AI order the ending
