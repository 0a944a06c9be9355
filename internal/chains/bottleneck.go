package chains

import (
	"fmt"
	"math"
)

// Impact classifies how much of a span a bottleneck occupies.
type Impact string

const (
	ImpactCritical Impact = "Critical"
	ImpactHigh     Impact = "High"
	ImpactMedium   Impact = "Medium"
	ImpactLow      Impact = "Low"
)

// Impact thresholds, as fractions of the span duration.
const (
	criticalShare = 0.5
	highShare     = 0.3
	mediumShare   = 0.15
)

// ChainBottleneck is the node that occupies the largest share of a span.
type ChainBottleneck struct {
	Node         CriticalChainItem `json:"node"`
	Contribution float64           `json:"contribution"`
	Impact       Impact            `json:"impact"`
	Reason       string            `json:"reason"`
}

// URL returns the bottleneck node's URL, or "" for a nil bottleneck.
func (b *ChainBottleneck) URL() string {
	if b == nil {
		return ""
	}
	return b.Node.URL
}

// ClassifyImpact maps a contribution share to its impact class.
func ClassifyImpact(contribution float64) Impact {
	switch {
	case contribution >= criticalShare:
		return ImpactCritical
	case contribution >= highShare:
		return ImpactHigh
	case contribution >= mediumShare:
		return ImpactMedium
	default:
		return ImpactLow
	}
}

// IdentifyBottleneck returns the node with the largest duration share of
// totalDuration. The first node wins ties. Returns nil for an empty node
// list or a span with no elapsed time.
func IdentifyBottleneck(nodes []CriticalChainItem, totalDuration float64) *ChainBottleneck {
	if len(nodes) == 0 || !(totalDuration > 0) || math.IsInf(totalDuration, 1) {
		return nil
	}

	best := 0
	bestShare := ratio(nodes[0].Duration, totalDuration)
	for i := 1; i < len(nodes); i++ {
		share := ratio(nodes[i].Duration, totalDuration)
		if share > bestShare {
			best, bestShare = i, share
		}
	}

	node := nodes[best]
	return &ChainBottleneck{
		Node:         node,
		Contribution: bestShare,
		Impact:       ClassifyImpact(bestShare),
		Reason: fmt.Sprintf("%s takes %.1f%% of the %.0fms span (latency %.0fms, download %.0fms, duration %.0fms)",
			node.URL, bestShare*100, totalDuration, node.Latency, node.DownloadTime, node.Duration),
	}
}
