package chains

import "math"

// LCPInsight attributes the largest contentful paint to one chain node and
// the portion of its path that was underway by then.
type LCPInsight struct {
	LCPTime       float64             `json:"lcp_time_ms"`
	CandidateURL  string              `json:"candidate_url"`
	PathID        string              `json:"path_id"`
	PathIndex     int                 `json:"path_index"`
	DurationToLCP float64             `json:"duration_to_lcp_ms"`
	Nodes         []CriticalChainItem `json:"nodes"` // offsets and contributions relative to this prefix
	Bottleneck    *ChainBottleneck    `json:"bottleneck,omitempty"`

	// MatchedBeforeLCP is false when no node finished by the milestone and
	// the closest later finish was used instead.
	MatchedBeforeLCP bool `json:"matched_before_lcp"`
}

type nodeRef struct {
	path, node int
}

// ComputeLCPInsight correlates the milestone timestamp with every node of
// every path. The node that finished closest before the milestone wins;
// failing that, the one that finished closest after it. Returns nil when
// the milestone is missing or no node can be matched.
func ComputeLCPInsight(milestone *float64, paths []CriticalChainPath) *LCPInsight {
	if milestone == nil {
		return nil
	}
	lcp := *milestone
	if math.IsNaN(lcp) || math.IsInf(lcp, 0) || lcp < 0 {
		return nil
	}

	winner, before, ok := matchNode(lcp, paths)
	if !ok {
		return nil
	}

	path := paths[winner.path]
	candidate := path.Nodes[winner.node]

	var prefix []CriticalChainItem
	for _, n := range path.Nodes {
		if n.StartTime <= candidate.EndTime {
			prefix = append(prefix, n)
		}
	}
	if len(prefix) == 0 {
		return nil
	}

	first := prefix[0].StartTime
	durationToLCP := nonNegative(prefix[len(prefix)-1].EndTime - first)
	for i := range prefix {
		prefix[i].StartOffset = nonNegative(prefix[i].StartTime - first)
		prefix[i].Contribution = ratio(prefix[i].Duration, durationToLCP)
	}

	return &LCPInsight{
		LCPTime:          lcp,
		CandidateURL:     candidate.URL,
		PathID:           path.ID,
		PathIndex:        winner.path,
		DurationToLCP:    durationToLCP,
		Nodes:            prefix,
		Bottleneck:       IdentifyBottleneck(prefix, durationToLCP),
		MatchedBeforeLCP: before,
	}
}

// matchNode runs the two matching passes. The bool result reports whether
// the first pass (finished at or before the milestone) succeeded.
func matchNode(lcp float64, paths []CriticalChainPath) (nodeRef, bool, bool) {
	if ref, ok := closest(paths, func(n CriticalChainItem) float64 { return lcp - n.EndTime }); ok {
		return ref, true, true
	}
	if ref, ok := closest(paths, func(n CriticalChainItem) float64 { return n.EndTime - lcp }); ok {
		return ref, false, true
	}
	return nodeRef{}, false, false
}

// closest returns the first node with the smallest non-negative distance.
func closest(paths []CriticalChainPath, distance func(CriticalChainItem) float64) (nodeRef, bool) {
	var best nodeRef
	bestDist := math.Inf(1)
	found := false
	for p, path := range paths {
		for i, n := range path.Nodes {
			d := distance(n)
			if d < 0 || math.IsNaN(d) {
				continue
			}
			if !found || d < bestDist {
				best, bestDist, found = nodeRef{path: p, node: i}, d, true
			}
		}
	}
	return best, found
}
