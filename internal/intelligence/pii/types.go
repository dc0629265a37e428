// Package pii implements the detection post-processing and anonymization
// pipeline: chunking, deduplication, false-positive filtering, overlap
// resolution, coreference clustering, fuzzy variant matching and placeholder
// substitution.
//
// Offsets are byte offsets into the UTF-8 document, half-open [Start, End).
package pii

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/turtacn/PII-Anonymizer/pkg/errors"
)

// Default pipeline parameters.
const (
	DefaultChunkSize          = 1400
	DefaultChunkOverlap       = 200
	DefaultThreshold          = 0.3
	DefaultProximityThreshold = 10
	DefaultClusterSimilarity  = 0.8
	DefaultFuzzySimilarity    = 0.85
	DefaultMaxConcurrency     = 4
	DefaultFalsePositivesFile = "data/false_positives.json"
	DefaultLanguage           = "de"

	LabelPerson       = "person"
	LabelOrganization = "organization"
	LabelLocation     = "location"
)

// DefaultLabels is the label set requested from the detector when none is
// configured.
var DefaultLabels = []string{
	"person",
	"organization",
	"location",
	"country",
	"email",
	"phone_number",
	"birthdate",
	"address",
}

// Sentinel errors.  Match with errors.Is.
var (
	ErrInvalidChunking = &errors.AppError{Code: errors.CodeInvalidChunking}
	ErrMissingScore    = &errors.AppError{Code: errors.CodeMissingScore}
	ErrInvalidSpan     = &errors.AppError{Code: errors.CodeInvalidSpan}
	ErrUnknownFormat   = &errors.AppError{Code: errors.CodePlaceholderFormat}
)

// Span is an immutable labeled detection in document coordinates.
type Span struct {
	Start int     `json:"start"`
	End   int     `json:"end"`
	Label string  `json:"label"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Len returns the byte length of the span.
func (s Span) Len() int { return s.End - s.Start }

// Overlaps reports whether s and o share at least one byte.
func (s Span) Overlaps(o Span) bool { return spansOverlap(s.Start, s.End, o.Start, o.End) }

func spansOverlap(s1, e1, s2, e2 int) bool { return s1 < e2 && s2 < e1 }

// Chunk is a window of the document submitted to the detector on its own.
type Chunk struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"-"`
}

// Detection is one raw hit returned by a Detector.  Offsets are byte offsets
// relative to the text passed to Detect; detectors speaking a character-offset
// wire format convert before returning.  Score is nil when the detector
// omitted it.
type Detection struct {
	Start int      `json:"start"`
	End   int      `json:"end"`
	Label string   `json:"label"`
	Text  string   `json:"text"`
	Score *float64 `json:"score,omitempty"`
}

// Detector finds labeled spans in a piece of text.  Implementations must be
// safe for concurrent use when the pipeline runs with MaxConcurrency > 1.
type Detector interface {
	Detect(ctx context.Context, text string, labels []string, threshold float64) ([]Detection, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, text string, labels []string, threshold float64) ([]Detection, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context, text string, labels []string, threshold float64) ([]Detection, error) {
	return f(ctx, text, labels, threshold)
}

// Score returns a pointer to v, for building Detections.
func Score(v float64) *float64 { return &v }

// realignWindow bounds how far from its reported start a detection's text
// may be found when the offsets and the text disagree.
const realignWindow = 64

// validScore reports whether v is a usable confidence in [0, 1].
func validScore(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// toSpan converts a chunk-relative detection into a document span.  A missing
// or out-of-range score is a contract violation.  When the detection carries
// text that its offsets do not select, the text is searched for near the
// reported start and the offsets are corrected; otherwise it is rejected.
func toSpan(d Detection, chunk Chunk) (Span, error) {
	if d.Score == nil || !validScore(*d.Score) {
		return Span{}, ErrMissingScore.WithDetail("label=" + d.Label)
	}
	start, end := d.Start, d.End
	if !runeAligned(chunk.Text, start, end) || (d.Text != "" && chunk.Text[start:end] != d.Text) {
		if d.Text == "" {
			return Span{}, ErrInvalidSpan.WithDetail(fmt.Sprintf("label=%s [%d,%d)", d.Label, d.Start, d.End))
		}
		var ok bool
		if start, ok = nearestIndex(chunk.Text, d.Text, d.Start); !ok {
			return Span{}, ErrInvalidSpan.WithDetail(fmt.Sprintf("label=%s [%d,%d) text %q not found", d.Label, d.Start, d.End, d.Text))
		}
		end = start + len(d.Text)
	}
	return Span{
		Start: chunk.Start + start,
		End:   chunk.Start + end,
		Label: d.Label,
		Text:  chunk.Text[start:end],
		Score: *d.Score,
	}, nil
}

// runeAligned reports whether [start, end) is a non-empty range of s whose
// bounds fall on rune boundaries.
func runeAligned(s string, start, end int) bool {
	if start < 0 || end <= start || end > len(s) {
		return false
	}
	if !utf8.RuneStart(s[start]) {
		return false
	}
	return end == len(s) || utf8.RuneStart(s[end])
}

// nearestIndex returns the occurrence of sub in s whose start is closest to
// near, provided it lies within realignWindow bytes.
func nearestIndex(s, sub string, near int) (int, bool) {
	if sub == "" {
		return 0, false
	}
	best, bestDist := -1, realignWindow+1
	for off := 0; off <= len(s)-len(sub); {
		i := strings.Index(s[off:], sub)
		if i < 0 {
			break
		}
		at := off + i
		dist := at - near
		if dist < 0 {
			dist = -dist
		}
		if dist < bestDist {
			best, bestDist = at, dist
		}
		if at > near+realignWindow {
			break
		}
		_, size := utf8.DecodeRuneInString(s[at:])
		off = at + size
	}
	return best, best >= 0
}

// RuneOffsets maps rune indexes of s to byte offsets.  The returned slice has
// one entry per rune plus a final entry equal to len(s), so both ends of a
// half-open character range can be looked up.
func RuneOffsets(s string) []int {
	out := make([]int, 0, utf8.RuneCountInString(s)+1)
	for i := range s {
		out = append(out, i)
	}
	return append(out, len(s))
}

// CharOffset converts a byte offset into s to a rune index.
func CharOffset(s string, byteOff int) int {
	if byteOff <= 0 {
		return 0
	}
	if byteOff >= len(s) {
		return utf8.RuneCountInString(s)
	}
	return utf8.RuneCountInString(s[:byteOff])
}

// EntityCluster groups spans of one label believed to denote the same entity.
type EntityCluster struct {
	Label         string `json:"label"`
	Canonical     string `json:"canonical"`
	FirstPosition int    `json:"first_position"`
	Members       []Span `json:"members"`
}

// MaxScore returns the highest member score.
func (c *EntityCluster) MaxScore() float64 {
	best := 0.0
	for i, m := range c.Members {
		if i == 0 || m.Score > best {
			best = m.Score
		}
	}
	return best
}

// ReplacementRecord is one edit applied to a text.
type ReplacementRecord struct {
	Start         int    `json:"start"`
	End           int    `json:"end"`
	MatchedText   string `json:"matched_text"`
	CanonicalForm string `json:"canonical_form"`
	Label         string `json:"label"`
	Placeholder   string `json:"placeholder"`
	// Kind tells which rule produced the record: span, exact, possessive,
	// standalone or near_duplicate.
	Kind string `json:"kind"`
}

// Range is a half-open byte range.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

//Personal.AI order the ending
