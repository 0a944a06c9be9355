package viz

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tobert/chainscope/internal/chains"
)

const (
	maxNodesPerPath = 50
	maxPaths        = 5
	defaultBarWidth = 20
	typeColumn      = 10

	bottleneckMark = " !! BOTTLENECK"
)

// Waterfall renders several chain paths, most relevant first as given.
// Width controls the total line width; 0 uses a sensible default (80).
func Waterfall(paths []chains.CriticalChainPath, bottleneckURL string, width int) string {
	if len(paths) == 0 {
		return ""
	}

	overflow := 0
	if len(paths) > maxPaths {
		overflow = len(paths) - maxPaths
		paths = paths[:maxPaths]
	}

	var b strings.Builder
	for i, p := range paths {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(ChainWaterfall(p, bottleneckURL, width))
	}

	if overflow > 0 {
		fmt.Fprintf(&b, "\n... +%d more chains\n", overflow)
	}

	return b.String()
}

// ChainWaterfall renders one chain path as an ASCII waterfall. The node
// whose URL equals bottleneckURL is flagged.
// Width controls the total line width; 0 uses a sensible default (80).
func ChainWaterfall(path chains.CriticalChainPath, bottleneckURL string, width int) string {
	if len(path.Nodes) == 0 {
		return ""
	}
	if width <= 0 {
		width = 80
	}

	nodes := path.Nodes

	// Find time bounds, clamping end to max(end, start) to handle bad data
	minStart := nodes[0].StartTime
	maxEnd := minStart
	for _, n := range nodes {
		minStart = min(minStart, n.StartTime)
		maxEnd = max(maxEnd, n.EndTime, n.StartTime)
	}
	totalDur := maxEnd - minStart

	var b strings.Builder
	fmt.Fprintf(&b, "Chain %s (%d requests, %s, %s)\n",
		path.ID, len(nodes), formatDuration(path.TotalDuration), formatBytes(path.TotalTransferSize))

	nodeOverflow := 0
	if len(nodes) > maxNodesPerPath {
		nodeOverflow = len(nodes) - maxNodesPerPath
		nodes = nodes[:maxNodesPerPath]
	}

	// Pass 1: Find max length of duration + marker suffix for alignment
	maxSuffixLen := 0
	for _, n := range nodes {
		maxSuffixLen = max(maxSuffixLen, len(rowSuffix(n, bottleneckURL)))
	}

	// Pass 2: Render each node
	baseDepth := nodes[0].Depth
	for _, n := range nodes {
		renderNodeRow(&b, n, n.Depth-baseDepth, bottleneckURL, minStart, totalDur, width, maxSuffixLen)
	}

	if nodeOverflow > 0 {
		fmt.Fprintf(&b, "  ... +%d more requests\n", nodeOverflow)
	}

	return b.String()
}

func rowSuffix(n chains.CriticalChainItem, bottleneckURL string) string {
	s := formatDuration(n.Duration)
	if bottleneckURL != "" && n.URL == bottleneckURL {
		s += bottleneckMark
	}
	return s
}

func renderNodeRow(b *strings.Builder, n chains.CriticalChainItem, depth int, bottleneckURL string, minStart, totalDur float64, width, maxSuffixLen int) {
	barWidth := defaultBarWidth

	// Build tree prefix, tracking display width separately from byte length.
	// A path is a single line of descent, so every child is a last child.
	var prefix strings.Builder
	prefixCols := 1
	prefix.WriteString(" ")
	if depth > 0 {
		prefix.WriteString(strings.Repeat("   ", depth-1))
		prefix.WriteString("└─ ")
		prefixCols += 3*(depth-1) + 3
	}

	label := fmt.Sprintf("%-*s %s", typeColumn, n.ResourceType, shortURL(n.URL))

	// Layout: prefix + label + " [" + bar + "] " + suffix
	fixedCols := prefixCols + 2 + barWidth + 2 + maxSuffixLen
	labelBudget := max(width-fixedCols, 8)
	label = truncate(label, labelBudget)
	paddedLabel := label + strings.Repeat(" ", max(0, labelBudget-utf8.RuneCountInString(label)))

	start := n.StartTime
	end := max(n.EndTime, start)
	bar := buildBar(start, end, minStart, totalDur, barWidth)

	fmt.Fprintf(b, "%s%s [%s] %s\n", prefix.String(), paddedLabel, bar, rowSuffix(n, bottleneckURL))
}

func buildBar(start, end, minStart, totalDur float64, barWidth int) string {
	if totalDur <= 0 {
		// All requests are zero-duration or at the same instant
		return strings.Repeat("#", barWidth)
	}

	startPos := int((start - minStart) * float64(barWidth) / totalDur)
	endPos := int((end - minStart) * float64(barWidth) / totalDur)

	startPos = min(max(startPos, 0), barWidth-1)
	endPos = min(max(endPos, startPos+1), barWidth)

	bar := make([]byte, barWidth)
	for i := range bar {
		if i >= startPos && i < endPos {
			bar[i] = '#'
		} else {
			bar[i] = '.'
		}
	}
	return string(bar)
}

// shortURL drops the scheme, which is noise in a fixed-width column.
func shortURL(u string) string {
	for _, scheme := range []string{"https://", "http://"} {
		if strings.HasPrefix(u, scheme) {
			return u[len(scheme):]
		}
	}
	return u
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}

func formatDuration(ms float64) string {
	switch {
	case ms <= 0:
		return "0ms"
	case ms < 1:
		return "<1ms"
	case ms < 1000:
		return fmt.Sprintf("%.0fms", ms)
	default:
		return fmt.Sprintf("%.1fs", ms/1000)
	}
}

func formatBytes(n int64) string {
	const kib = 1024
	switch {
	case n < kib:
		return fmt.Sprintf("%d B", n)
	case n < kib*kib:
		return fmt.Sprintf("%.1f KiB", float64(n)/kib)
	default:
		return fmt.Sprintf("%.1f MiB", float64(n)/(kib*kib))
	}
}
