package pii

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/monitoring/logging"
)

// ---------------------------------------------------------------------------
// EntityResolver
// ---------------------------------------------------------------------------

// EntityResolver groups spans into coreference clusters.  Merging is
// lexical only:
//
//   - same text ignoring case as any member;
//   - person label only: one token set is a subset of the other and either
//     the smaller set is a single token or the Jaccard similarity of the two
//     sets reaches SimilarityThreshold.
//
// Spans are processed in Start order and join the first matching cluster of
// their label in creation order, so the outcome is deterministic.
type EntityResolver struct {
	SimilarityThreshold float64
	logger              logging.Logger
}

// NewEntityResolver returns a resolver.  A non-positive threshold selects
// DefaultClusterSimilarity.
func NewEntityResolver(threshold float64, logger logging.Logger) *EntityResolver {
	if threshold <= 0 {
		threshold = DefaultClusterSimilarity
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &EntityResolver{SimilarityThreshold: threshold, logger: logger}
}

// clusterState keeps the lower-cased member texts and token sets alongside a
// cluster so comparisons do not recompute them.
type clusterState struct {
	cluster *EntityCluster
	lowered []string
	tokens  []map[string]struct{}
}

// Cluster returns the clusters for spans ordered by FirstPosition, then label.
// Every input span lands in exactly one cluster.
func (r *EntityResolver) Cluster(spans []Span) []*EntityCluster {
	if len(spans) == 0 {
		return nil
	}

	ordered := make([]Span, len(spans))
	copy(ordered, spans)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })

	byLabel := make(map[string][]*clusterState)
	var created []*clusterState

	for _, s := range ordered {
		lower := strings.ToLower(s.Text)
		toks := tokenSet(s.Text)

		var target *clusterState
		for _, cs := range byLabel[s.Label] {
			if r.shouldMerge(s.Label, lower, toks, cs) {
				target = cs
				break
			}
		}
		if target == nil {
			target = &clusterState{cluster: &EntityCluster{Label: s.Label, FirstPosition: s.Start}}
			byLabel[s.Label] = append(byLabel[s.Label], target)
			created = append(created, target)
		}
		target.cluster.Members = append(target.cluster.Members, s)
		target.lowered = append(target.lowered, lower)
		target.tokens = append(target.tokens, toks)
	}

	out := make([]*EntityCluster, 0, len(created))
	for _, cs := range created {
		finalizeCluster(cs.cluster)
		out = append(out, cs.cluster)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FirstPosition != out[j].FirstPosition {
			return out[i].FirstPosition < out[j].FirstPosition
		}
		return out[i].Label < out[j].Label
	})

	r.logger.Debug("entity clustering finished",
		logging.Int("spans", len(spans)),
		logging.Int("clusters", len(out)),
	)
	return out
}

func (r *EntityResolver) shouldMerge(label, lower string, toks map[string]struct{}, cs *clusterState) bool {
	for _, m := range cs.lowered {
		if m == lower {
			return true
		}
	}
	if label != LabelPerson {
		return false
	}
	for _, mt := range cs.tokens {
		if r.subsetMatch(toks, mt) {
			return true
		}
	}
	return false
}

// subsetMatch applies the person containment rule to two token sets.
func (r *EntityResolver) subsetMatch(a, b map[string]struct{}) bool {
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	if !isSubset(small, large) {
		return false
	}
	if len(small) == 1 {
		return true
	}
	return jaccard(small, large) >= r.SimilarityThreshold
}

// finalizeCluster elects the canonical text and first position.  The longest
// member text wins; on equal length the earliest member wins.
func finalizeCluster(c *EntityCluster) {
	best := -1
	for i, m := range c.Members {
		if i == 0 || m.Start < c.FirstPosition {
			c.FirstPosition = m.Start
		}
		l := utf8.RuneCountInString(m.Text)
		if l > best {
			best = l
			c.Canonical = m.Text
		}
	}
}

//Personal.AI order the ending
