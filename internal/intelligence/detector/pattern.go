package detector

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/turtacn/PII-Anonymizer/internal/intelligence/pii"
)

// Recognizer finds one label with one expression.  Validate, when set,
// rejects matches the expression over-accepts.
type Recognizer struct {
	Label    string
	Pattern  *regexp.Regexp
	Score    float64
	Validate func(match string) bool
}

// DefaultRecognizers covers the structured labels of the default label set.
// Free-text labels (person, organization, location, country) come from a
// gazetteer.
func DefaultRecognizers() []Recognizer {
	return []Recognizer{
		{
			Label:   "email",
			Pattern: regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
			Score:   0.95,
		},
		{
			Label:    "phone_number",
			Pattern:  regexp.MustCompile(`(?:\+\d{1,3}[ -]?)?(?:\(0?\d{2,5}\)|0\d{2,5})[ /-]?\d{3,}(?:[ -]\d{2,})*`),
			Score:    0.8,
			Validate: digitCountBetween(7, 15),
		},
		{
			Label:   "birthdate",
			Pattern: regexp.MustCompile(`\b(?:0?[1-9]|[12]\d|3[01])\.(?:0?[1-9]|1[0-2])\.(?:19|20)\d{2}\b`),
			Score:   0.85,
		},
		{
			Label:   "address",
			Pattern: regexp.MustCompile(`[A-ZÄÖÜ][a-zäöüß-]*(?:straße|strasse|str\.|weg|gasse|platz|allee|ring|damm) \d{1,4}[a-z]?`),
			Score:   0.75,
		},
	}
}

func digitCountBetween(lo, hi int) func(string) bool {
	return func(s string) bool {
		n := 0
		for _, r := range s {
			if r >= '0' && r <= '9' {
				n++
			}
		}
		return n >= lo && n <= hi
	}
}

// GazetteerScore is the score assigned to gazetteer hits.
const GazetteerScore = 0.7

// PatternDetector is an offline detector built from regular expressions and
// per-label gazetteers.  It is deterministic and safe for concurrent use.
type PatternDetector struct {
	recognizers []Recognizer
	gazetteer   map[string][]string
}

// PatternOption configures a PatternDetector.
type PatternOption func(*PatternDetector)

// WithRecognizers replaces the default recognizers.
func WithRecognizers(rs ...Recognizer) PatternOption {
	return func(d *PatternDetector) { d.recognizers = rs }
}

// WithGazetteer adds known entity texts for label.  Matching is
// case-sensitive on whole words.
func WithGazetteer(label string, entries ...string) PatternOption {
	return func(d *PatternDetector) {
		for _, e := range entries {
			if e = strings.TrimSpace(e); e != "" {
				d.gazetteer[label] = append(d.gazetteer[label], e)
			}
		}
	}
}

// NewPatternDetector returns a detector with DefaultRecognizers.
func NewPatternDetector(opts ...PatternOption) *PatternDetector {
	d := &PatternDetector{
		recognizers: DefaultRecognizers(),
		gazetteer:   make(map[string][]string),
	}
	for _, o := range opts {
		o(d)
	}
	// Longer entries first so "Anna Meier" wins over "Anna" at the same start.
	for label := range d.gazetteer {
		entries := d.gazetteer[label]
		sort.SliceStable(entries, func(i, j int) bool { return len(entries[i]) > len(entries[j]) })
	}
	return d
}

// Detect implements pii.Detector.  Recognizers scoring below threshold and
// labels not requested are skipped.
func (d *PatternDetector) Detect(ctx context.Context, text string, labels []string, threshold float64) ([]pii.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(labels))
	for _, l := range labels {
		wanted[strings.ToLower(l)] = true
	}

	type key struct {
		label      string
		start, end int
	}
	seen := make(map[key]bool)
	var out []pii.Detection
	add := func(label string, start, end int, score float64) {
		k := key{label, start, end}
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, pii.Detection{Start: start, End: end, Label: label, Text: text[start:end], Score: pii.Score(score)})
	}

	for _, r := range d.recognizers {
		if !wanted[r.Label] || r.Score < threshold {
			continue
		}
		for _, loc := range r.Pattern.FindAllStringIndex(text, -1) {
			if r.Validate != nil && !r.Validate(text[loc[0]:loc[1]]) {
				continue
			}
			add(r.Label, loc[0], loc[1], r.Score)
		}
	}

	if GazetteerScore >= threshold {
		labelsSorted := make([]string, 0, len(d.gazetteer))
		for l := range d.gazetteer {
			labelsSorted = append(labelsSorted, l)
		}
		sort.Strings(labelsSorted)
		for _, label := range labelsSorted {
			if !wanted[label] {
				continue
			}
			for _, entry := range d.gazetteer[label] {
				for _, start := range wholeWordIndexes(text, entry) {
					add(label, start, start+len(entry), GazetteerScore)
				}
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].End > out[j].End
	})
	return out, nil
}

// wholeWordIndexes returns the start of every occurrence of word in text
// that is not flanked by a letter, digit or underscore.
func wholeWordIndexes(text, word string) []int {
	var out []int
	for off := 0; off < len(text); {
		i := strings.Index(text[off:], word)
		if i < 0 {
			break
		}
		start := off + i
		end := start + len(word)
		if isBoundary(text, start, end) {
			out = append(out, start)
		}
		_, w := utf8.DecodeRuneInString(text[start:])
		off = start + w
	}
	return out
}

func isBoundary(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWord(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWord(r) {
			return false
		}
	}
	return true
}

func isWord(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

//Personal.AI order the ending
