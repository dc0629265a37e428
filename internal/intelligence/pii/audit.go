package pii

import (
	"math"
	"sort"
	"strings"
)

// Anomaly thresholds.
const (
	LowConfidenceScore    = 0.5
	HighDensityPer1000Tok = 50.0
)

// ConfidenceStats summarises span scores for one label.
type ConfidenceStats struct {
	Count         int     `json:"count"`
	Mean          float64 `json:"mean"`
	Min           float64 `json:"min"`
	Max           float64 `json:"max"`
	StdDev        float64 `json:"std_dev"`
	LowConfidence int     `json:"low_confidence"`
}

// ComputeConfidenceStats groups spans by label.  Values are rounded to three
// decimals.
func ComputeConfidenceStats(spans []Span) map[string]ConfidenceStats {
	byLabel := make(map[string][]float64)
	for _, s := range spans {
		byLabel[s.Label] = append(byLabel[s.Label], s.Score)
	}

	out := make(map[string]ConfidenceStats, len(byLabel))
	for label, scores := range byLabel {
		st := ConfidenceStats{Count: len(scores), Min: scores[0], Max: scores[0]}
		sum := 0.0
		for _, v := range scores {
			sum += v
			st.Min = math.Min(st.Min, v)
			st.Max = math.Max(st.Max, v)
			if v < LowConfidenceScore {
				st.LowConfidence++
			}
		}
		st.Mean = sum / float64(len(scores))
		variance := 0.0
		for _, v := range scores {
			variance += (v - st.Mean) * (v - st.Mean)
		}
		st.StdDev = math.Sqrt(variance / float64(len(scores)))

		st.Mean, st.Min, st.Max, st.StdDev = round3(st.Mean), round3(st.Min), round3(st.Max), round3(st.StdDev)
		out[label] = st
	}
	return out
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }

// DensityMetrics relates entity counts to document size.
type DensityMetrics struct {
	EntitiesPer1000Tokens float64 `json:"entities_per_1000_tokens"`
	EntitiesPerSentence   float64 `json:"entities_per_sentence"`
	EntityByteRatio       float64 `json:"entity_byte_ratio"`
}

// Anomaly flags something a reviewer should look at.
type Anomaly struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// Anomaly kinds.
const (
	AnomalyLowConfidence     = "low_confidence"
	AnomalyHighDensity       = "high_density"
	AnomalyTokenConversion   = "dropped_token_conversion"
	AnomalyUnusedPlaceholder = "unused_placeholder"
)

// ClusterMember is a cluster member as reported in the audit.
type ClusterMember struct {
	Text  string  `json:"text"`
	Start int     `json:"start"`
	End   int     `json:"end"`
	Score float64 `json:"score"`
}

// ClusterReport describes one coreference cluster.
type ClusterReport struct {
	Placeholder   string          `json:"placeholder"`
	Label         string          `json:"label"`
	Canonical     string          `json:"canonical"`
	FirstPosition int             `json:"first_position"`
	Members       []ClusterMember `json:"members"`
}

// AuditCounts tracks how many spans each stage removed.
type AuditCounts struct {
	RawDetections          int `json:"raw_detections"`
	DuplicatesRemoved      int `json:"duplicates_removed"`
	FalsePositivesFiltered int `json:"false_positives_filtered"`
	TokenConversionDropped int `json:"token_conversion_dropped"`
	OverlapRemoved         int `json:"overlap_removed"`
	FinalEntities          int `json:"final_entities"`
	FuzzyMatches           int `json:"fuzzy_matches"`
}

// AuditReport is the extended metadata written next to an anonymized text.
type AuditReport struct {
	ChunkBoundaries         []Range                    `json:"chunk_boundaries"`
	Counts                  AuditCounts                `json:"counts"`
	FilteredEntities        []Span                     `json:"filtered_entities,omitempty"`
	OverlapRemovedEntities  []Span                     `json:"overlap_removed_entities,omitempty"`
	DroppedTokenConversions []Span                     `json:"dropped_token_conversions,omitempty"`
	Clusters                []ClusterReport            `json:"clusters,omitempty"`
	FuzzyMatches            []ReplacementRecord        `json:"fuzzy_matches,omitempty"`
	ConfidenceStats         map[string]ConfidenceStats `json:"confidence_stats"`
	Density                 DensityMetrics             `json:"density"`
	Anomalies               []Anomaly                  `json:"anomalies,omitempty"`
}

// BuildAudit derives the audit report from a detection and, when present, its
// anonymization.  It only reads its inputs.
func BuildAudit(det *DetectionResult, anon *Anonymization) *AuditReport {
	rep := &AuditReport{
		Counts:                  det.Counts,
		FilteredEntities:        det.Filtered,
		OverlapRemovedEntities:  det.OverlapRemoved,
		DroppedTokenConversions: det.DroppedTokenConversions,
		ConfidenceStats:         ComputeConfidenceStats(det.Spans()),
	}
	for _, c := range det.Chunks {
		rep.ChunkBoundaries = append(rep.ChunkBoundaries, Range{Start: c.Start, End: c.End})
	}

	if det.TotalTokens > 0 {
		rep.Density.EntitiesPer1000Tokens = round3(float64(len(det.Entities)) * 1000 / float64(det.TotalTokens))
	}
	if det.TotalSentences > 0 {
		rep.Density.EntitiesPerSentence = round3(float64(len(det.Entities)) / float64(det.TotalSentences))
	}
	if n := len(det.Text); n > 0 {
		covered := 0
		for _, e := range det.Entities {
			covered += e.End - e.Start
		}
		rep.Density.EntityByteRatio = round3(float64(covered) / float64(n))
	}

	if anon != nil {
		rep.Counts.FuzzyMatches = len(anon.Fuzzy)
		rep.FuzzyMatches = anon.Fuzzy
		for _, ca := range anon.Clusters {
			cr := ClusterReport{
				Placeholder:   ca.Placeholder,
				Label:         ca.Cluster.Label,
				Canonical:     ca.Cluster.Canonical,
				FirstPosition: ca.Cluster.FirstPosition,
			}
			for _, m := range ca.Cluster.Members {
				cr.Members = append(cr.Members, ClusterMember{Text: m.Text, Start: m.Start, End: m.End, Score: m.Score})
			}
			rep.Clusters = append(rep.Clusters, cr)
		}
	}

	rep.Anomalies = detectAnomalies(rep, anon)
	return rep
}

func detectAnomalies(rep *AuditReport, anon *Anonymization) []Anomaly {
	var out []Anomaly

	low := 0
	labels := make([]string, 0, len(rep.ConfidenceStats))
	for l, st := range rep.ConfidenceStats {
		low += st.LowConfidence
		if st.LowConfidence > 0 {
			labels = append(labels, l)
		}
	}
	if low > 0 {
		sort.Strings(labels)
		out = append(out, Anomaly{
			Kind:    AnomalyLowConfidence,
			Message: "entities below confidence 0.5 in labels: " + strings.Join(labels, ", "),
			Count:   low,
		})
	}
	if rep.Density.EntitiesPer1000Tokens > HighDensityPer1000Tok {
		out = append(out, Anomaly{
			Kind:    AnomalyHighDensity,
			Message: "unusually many entities per 1000 tokens",
			Count:   rep.Counts.FinalEntities,
		})
	}
	if n := rep.Counts.TokenConversionDropped; n > 0 {
		out = append(out, Anomaly{
			Kind:    AnomalyTokenConversion,
			Message: "entities dropped because their offsets do not align with token boundaries",
			Count:   n,
		})
	}
	if anon != nil {
		unused := 0
		for ph := range anon.Mapping {
			if !strings.Contains(anon.Text, ph) {
				unused++
			}
		}
		if unused > 0 {
			out = append(out, Anomaly{
				Kind:    AnomalyUnusedPlaceholder,
				Message: "mapping entries whose placeholder does not occur in the output",
				Count:   unused,
			})
		}
	}
	return out
}

//Personal.AI order the ending
