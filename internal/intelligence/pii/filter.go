package pii

import (
	"encoding/json"
	"os"
	"sort"
	"strings"
)

// FalsePositiveTable lists, per label, entity texts the detector is known to
// report wrongly.  Entries are stored lower-cased and trimmed.  The zero value
// is an empty table.
type FalsePositiveTable struct {
	entries map[string]map[string]struct{}
}

// NewFalsePositiveTable builds a table from label → texts.
func NewFalsePositiveTable(raw map[string][]string) *FalsePositiveTable {
	t := &FalsePositiveTable{entries: make(map[string]map[string]struct{}, len(raw))}
	for label, texts := range raw {
		set := make(map[string]struct{}, len(texts))
		for _, txt := range texts {
			set[normalizeEntry(txt)] = struct{}{}
		}
		t.entries[label] = set
	}
	return t
}

// LoadFalsePositiveTable reads a JSON object of label → [texts].  A missing
// or malformed file yields an empty table and the reason as a non-nil error
// the caller may log; the table is always usable.
func LoadFalsePositiveTable(path string) (*FalsePositiveTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return NewFalsePositiveTable(nil), err
	}
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return NewFalsePositiveTable(nil), err
	}
	return NewFalsePositiveTable(raw), nil
}

// Contains reports whether text is a known false positive for label.
func (t *FalsePositiveTable) Contains(label, text string) bool {
	if t == nil || t.entries == nil {
		return false
	}
	set, ok := t.entries[label]
	if !ok {
		return false
	}
	_, hit := set[normalizeEntry(text)]
	return hit
}

// Len returns the total number of entries across labels.
func (t *FalsePositiveTable) Len() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, set := range t.entries {
		n += len(set)
	}
	return n
}

// Labels returns the labels that carry entries, sorted.
func (t *FalsePositiveTable) Labels() []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.entries))
	for l := range t.entries {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Filter splits spans into those kept and those dropped as false positives.
// Order is preserved in both results.
func (t *FalsePositiveTable) Filter(spans []Span) (kept, dropped []Span) {
	kept = make([]Span, 0, len(spans))
	for _, s := range spans {
		if t.Contains(s.Label, s.Text) {
			dropped = append(dropped, s)
			continue
		}
		kept = append(kept, s)
	}
	return kept, dropped
}

func normalizeEntry(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

//Personal.AI order the ending
