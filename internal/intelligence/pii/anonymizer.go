package pii

import (
	"encoding/json"
	"math"
	"sort"
	"strings"

	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/monitoring/logging"
)

// AnonymizerConfig controls placeholder assignment and substitution.
type AnonymizerConfig struct {
	// ResolveEntities clusters coreferent spans so they share a placeholder.
	ResolveEntities bool `json:"resolve_entities" yaml:"resolve_entities"`

	// FuzzyMatching replaces undetected variants of each entity.
	FuzzyMatching bool `json:"fuzzy_matching" yaml:"fuzzy_matching"`

	// IncludeScores adds the best member score to each mapping entry.
	IncludeScores bool `json:"include_scores" yaml:"include_scores"`

	Format PlaceholderFormat `json:"placeholder_format" yaml:"placeholder_format"`

	// LabelMapping translates detector labels to display labels.  nil
	// upper-cases labels unchanged.
	LabelMapping map[string]string `json:"label_mapping" yaml:"label_mapping"`

	ClusterSimilarity float64 `json:"cluster_similarity" yaml:"cluster_similarity"`
	FuzzySimilarity   float64 `json:"fuzzy_similarity" yaml:"fuzzy_similarity"`
}

// DefaultAnonymizerConfig returns clustering and fuzzy matching on, bracket
// placeholders and the default label mapping.
func DefaultAnonymizerConfig() AnonymizerConfig {
	return AnonymizerConfig{
		ResolveEntities:   true,
		FuzzyMatching:     true,
		Format:            FormatBrackets,
		LabelMapping:      DefaultLabelMapping,
		ClusterSimilarity: DefaultClusterSimilarity,
		FuzzySimilarity:   DefaultFuzzySimilarity,
	}
}

// MappingEntry is the original value behind a placeholder.  It serialises as
// a bare string, or as {"text","score"} when a score is attached.
type MappingEntry struct {
	Text  string
	Score *float64
}

// MarshalJSON implements json.Marshaler.
func (e MappingEntry) MarshalJSON() ([]byte, error) {
	if e.Score == nil {
		return json.Marshal(e.Text)
	}
	return json.Marshal(struct {
		Text  string  `json:"text"`
		Score float64 `json:"score"`
	}{e.Text, *e.Score})
}

// UnmarshalJSON implements json.Unmarshaler for both shapes.
func (e *MappingEntry) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*e = MappingEntry{Text: s}
		return nil
	}
	var obj struct {
		Text  string   `json:"text"`
		Score *float64 `json:"score"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = MappingEntry{Text: obj.Text, Score: obj.Score}
	return nil
}

// ClusterAssignment pairs a cluster with its placeholder.
type ClusterAssignment struct {
	Placeholder string         `json:"placeholder"`
	Cluster     *EntityCluster `json:"cluster"`
}

// Anonymization is the outcome of Anonymize.
type Anonymization struct {
	Text    string                  `json:"anonymized_text"`
	Mapping map[string]MappingEntry `json:"entity_mapping"`

	// Placeholders in assignment order.
	Placeholders []string `json:"placeholders"`

	// Clusters is empty when entity resolution is off.
	Clusters []ClusterAssignment `json:"clusters,omitempty"`

	// Primary holds span replacements in original-text coordinates.
	Primary []ReplacementRecord `json:"primary_replacements"`

	// Fuzzy holds variant replacements in the coordinates of the text after
	// the primary pass.
	Fuzzy []ReplacementRecord `json:"fuzzy_matches"`

	// PlaceholderRanges locates every placeholder in Text.
	PlaceholderRanges []Range `json:"placeholder_ranges"`
}

// Anonymizer assigns placeholders and rewrites text.
type Anonymizer struct {
	cfg      AnonymizerConfig
	labels   LabelMapper
	resolver *EntityResolver
	matcher  *FuzzyMatcher
	logger   logging.Logger
}

// NewAnonymizer validates cfg and builds an Anonymizer.
func NewAnonymizer(cfg AnonymizerConfig, logger logging.Logger) (*Anonymizer, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	format, err := ParsePlaceholderFormat(string(cfg.Format))
	if err != nil {
		return nil, err
	}
	cfg.Format = format
	return &Anonymizer{
		cfg:      cfg,
		labels:   NewLabelMapper(cfg.LabelMapping),
		resolver: NewEntityResolver(cfg.ClusterSimilarity, logger),
		matcher:  NewFuzzyMatcher(cfg.FuzzySimilarity, logger),
		logger:   logger,
	}, nil
}

// Config returns the effective configuration.
func (a *Anonymizer) Config() AnonymizerConfig { return a.cfg }

// Anonymize replaces spans of text with placeholders.  spans must lie within
// text; overlapping spans are reduced with ResolveOverlaps first.  A span
// whose score is NaN or outside [0, 1], such as a negative "no score"
// sentinel, fails with ErrMissingScore.
func (a *Anonymizer) Anonymize(text string, spans []Span) (*Anonymization, error) {
	res := &Anonymization{Text: text, Mapping: map[string]MappingEntry{}}
	if len(spans) == 0 {
		return res, nil
	}
	for _, s := range spans {
		if !validScore(s.Score) {
			return nil, ErrMissingScore.WithDetail("label=" + s.Label)
		}
		if s.Start < 0 || s.End <= s.Start || s.End > len(text) {
			return nil, ErrInvalidSpan.WithDetail("label=" + s.Label)
		}
	}
	spans, _ = ResolveOverlaps(spans)

	var (
		primary []ReplacementRecord
		targets []FuzzyTarget
	)
	if a.cfg.ResolveEntities {
		primary, targets = a.assignClusters(spans, res)
	} else {
		primary, targets = a.assignCounters(spans, res)
	}

	substituted, consumed, applied := applyReplacements(text, primary)
	res.Primary = applied
	res.Text = substituted
	res.PlaceholderRanges = consumed

	if a.cfg.FuzzyMatching {
		variants := a.matcher.FindVariations(substituted, targets, consumed)
		final, fuzzyRanges, fuzzyApplied := applyReplacements(substituted, variants)
		res.Fuzzy = fuzzyApplied
		res.Text = final
		res.PlaceholderRanges = mergeRanges(shiftRanges(consumed, fuzzyApplied), fuzzyRanges)
	}

	a.logger.Debug("anonymization finished",
		logging.Int("spans", len(spans)),
		logging.Int("placeholders", len(res.Placeholders)),
		logging.Int("fuzzy_matches", len(res.Fuzzy)),
	)
	return res, nil
}

func (a *Anonymizer) assignClusters(spans []Span, res *Anonymization) ([]ReplacementRecord, []FuzzyTarget) {
	clusters := a.resolver.Cluster(spans)
	counters := make(map[string]int)

	var (
		primary []ReplacementRecord
		targets []FuzzyTarget
	)
	for _, c := range clusters {
		display := a.labels.Display(c.Label)
		ph := a.cfg.Format.Render(display, counters[display])
		counters[display]++

		a.record(res, ph, c.Canonical, c.MaxScore())
		res.Clusters = append(res.Clusters, ClusterAssignment{Placeholder: ph, Cluster: c})
		targets = append(targets, FuzzyTarget{Label: c.Label, Canonical: c.Canonical, Placeholder: ph})

		for _, m := range c.Members {
			primary = append(primary, ReplacementRecord{
				Start:         m.Start,
				End:           m.End,
				MatchedText:   m.Text,
				CanonicalForm: c.Canonical,
				Label:         m.Label,
				Placeholder:   ph,
				Kind:          KindSpan,
			})
		}
	}
	return primary, targets
}

func (a *Anonymizer) assignCounters(spans []Span, res *Anonymization) ([]ReplacementRecord, []FuzzyTarget) {
	ordered := make([]Span, len(spans))
	copy(ordered, spans)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })

	counters := make(map[string]int)
	seen := make(map[dedupeKey]bool)

	var (
		primary []ReplacementRecord
		targets []FuzzyTarget
	)
	for _, s := range ordered {
		display := a.labels.Display(s.Label)
		ph := a.cfg.Format.Render(display, counters[display])
		counters[display]++

		a.record(res, ph, s.Text, s.Score)
		primary = append(primary, ReplacementRecord{
			Start:         s.Start,
			End:           s.End,
			MatchedText:   s.Text,
			CanonicalForm: s.Text,
			Label:         s.Label,
			Placeholder:   ph,
			Kind:          KindSpan,
		})

		key := dedupeKey{label: s.Label, text: strings.ToLower(s.Text)}
		if !seen[key] {
			seen[key] = true
			targets = append(targets, FuzzyTarget{Label: s.Label, Canonical: s.Text, Placeholder: ph})
		}
	}
	return primary, targets
}

// record stores the first mapping entry for a placeholder.
func (a *Anonymizer) record(res *Anonymization, placeholder, original string, score float64) {
	if _, ok := res.Mapping[placeholder]; ok {
		return
	}
	entry := MappingEntry{Text: original}
	if a.cfg.IncludeScores {
		rounded := math.Round(score*1000) / 1000
		entry.Score = &rounded
	}
	res.Mapping[placeholder] = entry
	res.Placeholders = append(res.Placeholders, placeholder)
}

func mergeRanges(a, b []Range) []Range {
	out := make([]Range, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

//Personal.AI order the ending
