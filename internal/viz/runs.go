package viz

import (
	"fmt"
	"strings"
)

// RunTable renders a compact table of runs, newest first as given.
func RunTable(runs []RunRow) string {
	if len(runs) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Runs (%d)\n", len(runs))

	for _, r := range runs {
		shortID := r.ID
		if len(shortID) > 8 {
			shortID = shortID[:8]
		}

		label := shortURL(r.URL)
		if r.Label != "" {
			label = r.Label + " " + label
		}
		label = truncate(label, 40)

		if !r.HasChains {
			fmt.Fprintf(&b, "  %s %s  %-40s  %8s  no chains\n", impactIcon(""), shortID, label, "-")
			continue
		}

		lcp := "-"
		if r.LCPMs != nil {
			lcp = formatDuration(*r.LCPMs)
		}

		fmt.Fprintf(&b, "  %s %s  %-40s  %8s  LCP %-6s %s\n",
			impactIcon(r.Impact), shortID, label, formatDuration(r.DurationMs), lcp, truncate(shortURL(r.BottleneckURL), 40))
	}

	return b.String()
}

func impactIcon(impact string) string {
	switch impact {
	case "Critical":
		return "✗"
	case "High":
		return "!"
	case "Medium", "Low":
		return "✓"
	default:
		return "·"
	}
}
