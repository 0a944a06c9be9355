package viz

import (
	"fmt"
	"strings"

	"github.com/tobert/chainscope/internal/chains"
)

// HistoryOverview renders the run history fill level.
func HistoryOverview(stats HistoryStats) string {
	var b strings.Builder

	b.WriteString("Run History\n")
	writeBar(&b, "Runs", stats.Runs, stats.Capacity)
	fmt.Fprintf(&b, "  Analyzed: %s   Evicted: %s\n", formatCount(stats.TotalAdded), formatCount(int(stats.Evicted)))
	fmt.Fprintf(&b, "  Baselines: %d   Report sources: %d\n", stats.Baselines, stats.Sources)
	if stats.Persistent {
		b.WriteString("  Persistence: on\n")
	} else {
		b.WriteString("  Persistence: off (memory only)\n")
	}

	return b.String()
}

func writeBar(b *strings.Builder, label string, count, capacity int) {
	barWidth := 20
	filled := 0
	if capacity > 0 {
		filled = count * barWidth / capacity
	}
	filled = min(filled, barWidth)

	bar := strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled)

	// Pad label to 8 chars for alignment
	paddedLabel := fmt.Sprintf("%-8s", label)
	fmt.Fprintf(b, "  %s [%s]  %s / %s\n", paddedLabel, bar, formatCount(count), formatCount(capacity))
}

// BottleneckSummary renders a bottleneck and the reason it was chosen.
func BottleneckSummary(title string, bn *chains.ChainBottleneck) string {
	if bn == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s %s (%.0f%%)\n", title, bn.Impact, shortURL(bn.Node.URL), bn.Contribution*100)
	fmt.Fprintf(&b, "  latency %s, download %s, %s transferred\n",
		formatDuration(bn.Node.Latency), formatDuration(bn.Node.DownloadTime), formatBytes(bn.Node.TransferSize))
	fmt.Fprintf(&b, "  %s\n", bn.Reason)
	return b.String()
}

// LCPSummary renders the LCP attribution, including the prefix waterfall.
func LCPSummary(lcp *chains.LCPInsight, width int) string {
	if lcp == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Largest Contentful Paint at %s\n", formatDuration(lcp.LCPTime))
	when := "finished just before"
	if !lcp.MatchedBeforeLCP {
		when = "finished just after"
	}
	fmt.Fprintf(&b, "  candidate %s %s it (chain %s, %s elapsed)\n",
		shortURL(lcp.CandidateURL), when, lcp.PathID, formatDuration(lcp.DurationToLCP))

	prefix := chains.CriticalChainPath{
		ID:            lcp.PathID + " until LCP",
		Nodes:         lcp.Nodes,
		TotalDuration: lcp.DurationToLCP,
	}
	for _, n := range lcp.Nodes {
		prefix.TotalTransferSize += n.TransferSize
	}
	b.WriteString(ChainWaterfall(prefix, lcp.Bottleneck.URL(), width))
	b.WriteString(BottleneckSummary("LCP bottleneck", lcp.Bottleneck))

	return b.String()
}

// AnalysisReport renders a full text report of one analysis.
func AnalysisReport(a *chains.Analysis, width int) string {
	if a == nil {
		return "No critical request chains found.\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Critical request chains: %d paths from %d roots, %s requests, max depth %d\n",
		len(a.Paths), a.RootCount, formatCount(a.RequestCount), a.MaxDepth)
	fmt.Fprintf(&b, "Longest chain: %s, %s\n\n", formatDuration(a.TotalDuration), formatBytes(a.TotalTransferSize))

	b.WriteString(ChainWaterfall(a.LongestPath, a.ChainBottleneck.URL(), width))
	b.WriteString(BottleneckSummary("Chain bottleneck", a.ChainBottleneck))

	if a.LCP != nil {
		b.WriteByte('\n')
		b.WriteString(LCPSummary(a.LCP, width))
	} else {
		b.WriteString("\nNo LCP attribution (milestone missing or unmatched).\n")
	}

	return b.String()
}

func formatCount(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1_000_000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1_000_000, (n%1_000_000)/1000, n%1000)
}
