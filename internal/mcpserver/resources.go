package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tobert/chainscope/internal/storage"
	"github.com/tobert/chainscope/internal/viz"
)

// registerResources registers all MCP resources and resource templates.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "chainscope://runs",
		Name:        "runs",
		Description: "Analyzed runs, newest first, with longest chain, LCP and bottleneck.",
		MIMEType:    "text/plain",
	}, s.handleRunsResource)

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "chainscope://baselines",
		Name:        "baselines",
		Description: "Named baselines and the runs they point at.",
		MIMEType:    "text/plain",
	}, s.handleBaselinesResource)

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "chainscope://report-sources",
		Name:        "report-sources",
		Description: "Directories being watched for Lighthouse reports.",
		MIMEType:    "text/plain",
	}, s.handleReportSourcesResource)

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "chainscope://stats",
		Name:        "stats",
		Description: "Run history fill level, evictions, baselines and persistence.",
		MIMEType:    "text/plain",
	}, s.handleStatsResource)

	s.mcpServer.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "chainscope://runs/{id}",
		Name:        "run-detail",
		Description: "Full chain analysis of one run: longest chain waterfall, bottleneck and LCP attribution.",
		MIMEType:    "text/plain",
	}, s.handleRunDetailResource)
}

func (s *Server) handleRunsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	runs := s.store.List(storage.RunFilter{})

	if len(runs) == 0 {
		return textResult(req.Params.URI, "Runs (0)\n  (none)\n"), nil
	}

	rows := make([]viz.RunRow, len(runs))
	for i, r := range runs {
		rows[i] = runRow(r)
	}
	return textResult(req.Params.URI, viz.RunTable(rows)), nil
}

func (s *Server) handleBaselinesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	baselines := s.baselines.List()

	var b strings.Builder
	fmt.Fprintf(&b, "Baselines (%d)\n", len(baselines))
	b.WriteString("═════════════\n")

	if len(baselines) == 0 {
		b.WriteString("  (none)\n")
		return textResult(req.Params.URI, b.String()), nil
	}

	// Find max name width for alignment
	nameW := 4
	for _, bl := range baselines {
		nameW = max(nameW, len(bl.Name))
	}

	fmt.Fprintf(&b, "  %-*s  %-19s  %-36s  %s\n", nameW, "Name", "Created", "Run", "Longest")
	fmt.Fprintf(&b, "  %-*s  %-19s  %-36s  %s\n", nameW, strings.Repeat("─", nameW), "───────────────────", strings.Repeat("─", 36), "───────")

	for _, bl := range baselines {
		longest := "evicted"
		if run, err := s.store.Get(bl.RunID); err == nil {
			longest = "no chains"
			if run.Analysis != nil {
				longest = fmt.Sprintf("%.0fms", run.Analysis.TotalDuration)
			}
		}
		fmt.Fprintf(&b, "  %-*s  %-19s  %-36s  %s\n",
			nameW, bl.Name, bl.CreatedAt.Format("2006-01-02 15:04:05"), bl.RunID, longest)
	}

	return textResult(req.Params.URI, b.String()), nil
}

func (s *Server) handleReportSourcesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	stats := s.ReportSourceStats()

	var b strings.Builder
	fmt.Fprintf(&b, "Report Sources (%d)\n", len(stats))
	b.WriteString("═══════════════════\n")

	if len(stats) == 0 {
		b.WriteString("  (none)\n")
	} else {
		for _, stat := range stats {
			fmt.Fprintf(&b, "  %s\n", stat.Directory)
			fmt.Fprintf(&b, "    Files tracked: %d\n", stat.FilesTracked)
			fmt.Fprintf(&b, "    Ingested:      %d\n", stat.Ingested)
			if stat.Failed > 0 {
				fmt.Fprintf(&b, "    Failed:        %d\n", stat.Failed)
			}
		}
	}

	return textResult(req.Params.URI, b.String()), nil
}

func (s *Server) handleStatsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	stats := s.store.Stats()

	var b strings.Builder
	b.WriteString(viz.HistoryOverview(viz.HistoryStats{
		Runs:       stats.Runs,
		Capacity:   stats.Capacity,
		TotalAdded: stats.TotalAdded,
		Evicted:    stats.Evicted,
		Baselines:  s.baselines.Count(),
		Sources:    len(s.ListReportSources()),
		Persistent: stats.Persistent,
	}))
	fmt.Fprintf(&b, "  Usage:     %s\n", usage(stats.Runs, stats.Capacity))
	fmt.Fprintf(&b, "  Uptime:    %.0fs\n", stats.UptimeSeconds)

	return textResult(req.Params.URI, b.String()), nil
}

func (s *Server) handleRunDetailResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	id, err := runIDFromURI(req.Params.URI)
	if err != nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	run, err := s.store.Get(id)
	if errors.Is(err, storage.ErrRunNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	header := fmt.Sprintf("Run: %s", run.ID)

	var b strings.Builder
	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("═", len(header)) + "\n")
	fmt.Fprintf(&b, "  Page:      %s\n", run.URL)
	if run.Label != "" {
		fmt.Fprintf(&b, "  Label:     %s\n", run.Label)
	}
	fmt.Fprintf(&b, "  Source:    %s\n", run.Source)
	if !run.FetchTime.IsZero() {
		fmt.Fprintf(&b, "  Audited:   %s\n", run.FetchTime.Format("2006-01-02 15:04:05.000"))
	}
	fmt.Fprintf(&b, "  Analyzed:  %s\n", run.AnalyzedAt.Format("2006-01-02 15:04:05.000"))
	if run.LighthouseVersion != "" {
		fmt.Fprintf(&b, "  Engine:    Lighthouse %s\n", run.LighthouseVersion)
	}
	if run.RuntimeError != "" {
		fmt.Fprintf(&b, "  Error:     %s\n", run.RuntimeError)
	}
	b.WriteByte('\n')
	b.WriteString(viz.AnalysisReport(run.Analysis, waterfallWidth))

	return textResult(req.Params.URI, b.String()), nil
}

const runURIPrefix = "chainscope://runs/"

// runIDFromURI returns the unescaped run id of a chainscope://runs/{id} URI.
func runIDFromURI(uri string) (string, error) {
	rest, ok := strings.CutPrefix(uri, runURIPrefix)
	if !ok || rest == "" {
		return "", fmt.Errorf("not a run URI: %s", uri)
	}
	id, err := url.PathUnescape(rest)
	if err != nil {
		return "", fmt.Errorf("bad run id in %s: %w", uri, err)
	}
	return id, nil
}

func textResult(uri, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: "text/plain", Text: text}},
	}
}

// thousands renders n with comma grouping: 12345 -> "12,345".
func thousands(n int) string {
	digits := strconv.Itoa(n)
	sign := ""
	if n < 0 {
		sign, digits = "-", digits[1:]
	}
	for i := len(digits) - 3; i > 0; i -= 3 {
		digits = digits[:i] + "," + digits[i:]
	}
	return sign + digits
}

// usage renders "used of capacity (pct)" for history fill levels.
func usage(used, capacity int) string {
	if capacity <= 0 {
		return thousands(used) + " of unbounded"
	}
	return fmt.Sprintf("%s of %s (%d%%)", thousands(used), thousands(capacity), used*100/capacity)
}
