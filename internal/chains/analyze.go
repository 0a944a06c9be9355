// Package chains reconstructs critical request chains from an audit report
// and attributes their delay: the longest root-to-leaf path, the request that
// dominates it, and the request that most plausibly gated the largest
// contentful paint.
//
// Everything here is a pure function of its input. Malformed data degrades
// to zero timings and absent results, never to errors.
package chains

import "github.com/tobert/chainscope/internal/report"

// Input is everything the analysis reads from a report.
type Input struct {
	Chains         report.ChainMap
	NetworkRecords []report.NetworkRecord
	MilestoneMs    *float64 // largest contentful paint, ms; nil when unknown
}

// Analysis is the result of one chain analysis.
type Analysis struct {
	Paths             []CriticalChainPath `json:"paths"`
	LongestPath       CriticalChainPath   `json:"longest_path"`
	LongestPathIndex  int                 `json:"longest_path_index"`
	TotalDuration     float64             `json:"total_duration_ms"`
	TotalTransferSize int64               `json:"total_transfer_size"`

	// ChainBottleneck is computed on the longest path. Bottleneck is the
	// effective answer: the LCP bottleneck when there is one.
	ChainBottleneck *ChainBottleneck `json:"chain_bottleneck,omitempty"`
	Bottleneck      *ChainBottleneck `json:"bottleneck,omitempty"`
	LCP             *LCPInsight      `json:"lcp,omitempty"`

	RootCount    int `json:"root_count"`
	MaxDepth     int `json:"max_depth"`
	RequestCount int `json:"request_count"` // distinct URLs across all paths
}

// Analyze runs the chain analysis on a decoded report. Returns nil when the
// report has no usable chains.
func Analyze(r *report.Report) *Analysis {
	if r == nil {
		return nil
	}
	return AnalyzeInput(Input{
		Chains:         r.Chains,
		NetworkRecords: r.NetworkRecords,
		MilestoneMs:    r.MilestoneMs(),
	})
}

// AnalyzeInput runs the chain analysis. Returns nil when there are no chains
// or none of them yields a path.
func AnalyzeInput(in Input) *Analysis {
	if len(in.Chains) == 0 {
		return nil
	}

	idx := NewRecordIndex(in.NetworkRecords)
	paths := FinalizeAll(BuildAllPaths(in.Chains, idx))
	if len(paths) == 0 {
		return nil
	}

	longest := LongestPathIndex(paths)
	lp := paths[longest]

	chainBn := IdentifyBottleneck(lp.Nodes, lp.TotalDuration)
	lcp := ComputeLCPInsight(in.MilestoneMs, paths)

	a := &Analysis{
		Paths:             paths,
		LongestPath:       lp,
		LongestPathIndex:  longest,
		TotalDuration:     lp.TotalDuration,
		TotalTransferSize: lp.TotalTransferSize,
		ChainBottleneck:   chainBn,
		LCP:               lcp,
		Bottleneck:        preferredBottleneck(chainBn, lcp),
		RootCount:         len(in.Chains),
	}

	seen := make(map[string]struct{})
	for _, p := range paths {
		for _, n := range p.Nodes {
			if n.Depth > a.MaxDepth {
				a.MaxDepth = n.Depth
			}
			seen[n.URL] = struct{}{}
		}
	}
	a.RequestCount = len(seen)

	return a
}

// LongestPathIndex returns the index of the path with the greatest total
// duration. Ties go to the path with more nodes, then to the earlier path.
// Returns -1 for no paths.
func LongestPathIndex(paths []CriticalChainPath) int {
	if len(paths) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(paths); i++ {
		p, b := paths[i], paths[best]
		if p.TotalDuration > b.TotalDuration ||
			(p.TotalDuration == b.TotalDuration && len(p.Nodes) > len(b.Nodes)) {
			best = i
		}
	}
	return best
}

// preferredBottleneck applies the reporting precedence: the bottleneck of
// the LCP prefix, when one was attributed, over the whole-chain bottleneck.
func preferredBottleneck(chain *ChainBottleneck, lcp *LCPInsight) *ChainBottleneck {
	if lcp != nil && lcp.Bottleneck != nil {
		return lcp.Bottleneck
	}
	return chain
}
