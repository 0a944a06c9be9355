package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/tobert/chainscope/internal/chains"
	"github.com/tobert/chainscope/internal/filereader"
	"github.com/tobert/chainscope/internal/otlpexport"
	"github.com/tobert/chainscope/internal/storage"
	"github.com/tobert/chainscope/internal/viz"
)

// ═══════════════════════════════════════════════════════════════════════════
// CHAIN ANALYSIS MCP TOOLS
//
// 1. analyze_report - Analyze a report file or inline report JSON
// 2. get_critical_chain - One chain path with its bottleneck and waterfall
// 3. get_lcp_insight - What gated Largest Contentful Paint
// 4. list_runs - Run history, newest first
// 5. compare_runs - Before/after deltas between two runs
// 6. manage_baselines - Name runs to compare against later
// 7. add_report_source / remove_report_source - Watch report directories
// 8. export_otlp - Send a run's chains to a tracing backend
// 9. get_stats - History health
// 10. clear_runs - Wipe history and baselines
//
// Every run_id input is optional; empty means the latest run.
// ═══════════════════════════════════════════════════════════════════════════

const waterfallWidth = 100

// Tool 1: analyze_report

type AnalyzeReportInput struct {
	Path       string `json:"path,omitempty" jsonschema:"Path to a Lighthouse report JSON file"`
	ReportJSON string `json:"report_json,omitempty" jsonschema:"Inline Lighthouse report JSON (alternative to path)"`
	Label      string `json:"label,omitempty" jsonschema:"Optional label for the run (e.g. 'before-fix', 'mobile')"`
}

type AnalyzeReportOutput struct {
	Run       RunInfo `json:"run" jsonschema:"The analyzed run"`
	Duplicate bool    `json:"duplicate" jsonschema:"True when identical report content was already analyzed"`
	Report    string  `json:"report" jsonschema:"Human-readable analysis with waterfall"`
}

func (s *Server) handleAnalyzeReport(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AnalyzeReportInput,
) (*mcp.CallToolResult, AnalyzeReportOutput, error) {
	var (
		run *storage.Run
		dup bool
		err error
	)

	switch {
	case input.Path != "" && input.ReportJSON != "":
		return nil, AnalyzeReportOutput{}, fmt.Errorf("provide either path or report_json, not both")
	case input.Path != "":
		run, dup, err = s.ingester.IngestFile(ctx, input.Path, input.Label)
	case input.ReportJSON != "":
		run, dup, err = s.ingester.IngestBytes(ctx, []byte(input.ReportJSON), "inline", input.Label)
	default:
		return nil, AnalyzeReportOutput{}, fmt.Errorf("path or report_json is required")
	}
	if err != nil {
		return nil, AnalyzeReportOutput{}, fmt.Errorf("failed to analyze report: %w", err)
	}

	return &mcp.CallToolResult{}, AnalyzeReportOutput{
		Run:       runInfo(run),
		Duplicate: dup,
		Report:    viz.AnalysisReport(run.Analysis, waterfallWidth),
	}, nil
}

// Tool 2: get_critical_chain

type GetCriticalChainInput struct {
	RunID     string `json:"run_id,omitempty" jsonschema:"Run ID (empty = latest run)"`
	PathIndex *int   `json:"path_index,omitempty" jsonschema:"Chain path index (empty = longest chain)"`
}

type GetCriticalChainOutput struct {
	RunID      string                   `json:"run_id" jsonschema:"Run ID"`
	PathIndex  int                      `json:"path_index" jsonschema:"Index of the returned path"`
	PathCount  int                      `json:"path_count" jsonschema:"Number of root-to-leaf chain paths in the run"`
	Longest    bool                     `json:"longest" jsonschema:"Whether this is the longest chain"`
	Path       chains.CriticalChainPath `json:"path" jsonschema:"Chain path with per-request timing"`
	Bottleneck *chains.ChainBottleneck  `json:"bottleneck,omitempty" jsonschema:"Request that dominates this path"`
	Waterfall  string                   `json:"waterfall" jsonschema:"ASCII waterfall of the path"`
}

func (s *Server) handleGetCriticalChain(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetCriticalChainInput,
) (*mcp.CallToolResult, GetCriticalChainOutput, error) {
	run, err := s.store.Resolve(input.RunID)
	if err != nil {
		return nil, GetCriticalChainOutput{}, err
	}
	a := run.Analysis
	if a == nil {
		return nil, GetCriticalChainOutput{}, fmt.Errorf("run %s has no critical request chains", run.ID)
	}

	idx := a.LongestPathIndex
	if input.PathIndex != nil {
		idx = *input.PathIndex
	}
	if idx < 0 || idx >= len(a.Paths) {
		return nil, GetCriticalChainOutput{}, fmt.Errorf("path_index %d out of range: run has %d paths", idx, len(a.Paths))
	}

	path := a.Paths[idx]
	bn := chains.IdentifyBottleneck(path.Nodes, path.TotalDuration)

	return &mcp.CallToolResult{}, GetCriticalChainOutput{
		RunID:      run.ID,
		PathIndex:  idx,
		PathCount:  len(a.Paths),
		Longest:    idx == a.LongestPathIndex,
		Path:       path,
		Bottleneck: bn,
		Waterfall:  viz.ChainWaterfall(path, bn.URL(), waterfallWidth),
	}, nil
}

// Tool 3: get_lcp_insight

type GetLCPInsightInput struct {
	RunID string `json:"run_id,omitempty" jsonschema:"Run ID (empty = latest run)"`
}

type GetLCPInsightOutput struct {
	RunID      string             `json:"run_id" jsonschema:"Run ID"`
	Attributed bool               `json:"attributed" jsonschema:"Whether LCP could be attributed to a chain request"`
	Insight    *chains.LCPInsight `json:"insight,omitempty" jsonschema:"LCP candidate, the chain prefix leading to it, and its bottleneck"`
	Summary    string             `json:"summary" jsonschema:"Human-readable attribution"`
}

func (s *Server) handleGetLCPInsight(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetLCPInsightInput,
) (*mcp.CallToolResult, GetLCPInsightOutput, error) {
	run, err := s.store.Resolve(input.RunID)
	if err != nil {
		return nil, GetLCPInsightOutput{}, err
	}

	out := GetLCPInsightOutput{RunID: run.ID}
	switch {
	case run.Analysis == nil:
		out.Summary = "Run has no critical request chains; nothing to attribute."
	case run.Analysis.LCP == nil:
		out.Summary = "No LCP attribution: the report has no usable LCP milestone."
	default:
		out.Attributed = true
		out.Insight = run.Analysis.LCP
		out.Summary = viz.LCPSummary(run.Analysis.LCP, waterfallWidth)
	}
	return &mcp.CallToolResult{}, out, nil
}

// Tool 4: list_runs

type ListRunsInput struct {
	URL   string `json:"url,omitempty" jsonschema:"Filter by page URL substring (case-insensitive)"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum runs to return (0 = all)"`
}

type ListRunsOutput struct {
	Runs  []RunInfo `json:"runs" jsonschema:"Runs, newest first"`
	Count int       `json:"count" jsonschema:"Number of runs returned"`
	Total int       `json:"total" jsonschema:"Runs held in history"`
}

func (s *Server) handleListRuns(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ListRunsInput,
) (*mcp.CallToolResult, ListRunsOutput, error) {
	runs := s.store.List(storage.RunFilter{URL: input.URL, Limit: input.Limit})

	infos := make([]RunInfo, len(runs))
	for i, r := range runs {
		infos[i] = runInfo(r)
	}

	return &mcp.CallToolResult{}, ListRunsOutput{
		Runs:  infos,
		Count: len(infos),
		Total: s.store.Stats().Runs,
	}, nil
}

// Tool 5: compare_runs

type CompareRunsInput struct {
	BaseRunID   string  `json:"base_run_id,omitempty" jsonschema:"Run ID to compare against"`
	Baseline    string  `json:"baseline,omitempty" jsonschema:"Baseline name to compare against (alternative to base_run_id)"`
	RunID       string  `json:"run_id,omitempty" jsonschema:"Run ID to compare (empty = latest run)"`
	ThresholdMs float64 `json:"threshold_ms,omitempty" jsonschema:"Longest-chain slowdown in ms that counts as a regression (default 0)"`
}

type CompareRunsOutput struct {
	Comparison storage.Comparison `json:"comparison" jsonschema:"Deltas, current minus base"`
	Regressed  bool               `json:"regressed" jsonschema:"Whether the longest chain slowed by more than threshold_ms"`
	Message    string             `json:"message" jsonschema:"Summary of the comparison"`
}

func (s *Server) handleCompareRuns(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input CompareRunsInput,
) (*mcp.CallToolResult, CompareRunsOutput, error) {
	baseID := input.BaseRunID
	if input.Baseline != "" {
		if baseID != "" {
			return nil, CompareRunsOutput{}, fmt.Errorf("provide either base_run_id or baseline, not both")
		}
		bl, err := s.baselines.Get(input.Baseline)
		if err != nil {
			return nil, CompareRunsOutput{}, err
		}
		baseID = bl.RunID
	}
	if baseID == "" {
		return nil, CompareRunsOutput{}, fmt.Errorf("base_run_id or baseline is required")
	}

	base, err := s.store.Get(baseID)
	if err != nil {
		return nil, CompareRunsOutput{}, fmt.Errorf("base run: %w", err)
	}
	current, err := s.store.Resolve(input.RunID)
	if err != nil {
		return nil, CompareRunsOutput{}, fmt.Errorf("current run: %w", err)
	}

	c := storage.Compare(base, current)
	regressed := c.Regressed(input.ThresholdMs)

	return &mcp.CallToolResult{}, CompareRunsOutput{
		Comparison: c,
		Regressed:  regressed,
		Message:    describeComparison(c, regressed),
	}, nil
}

func describeComparison(c storage.Comparison, regressed bool) string {
	if !c.Comparable {
		return "Not comparable: one of the runs has no critical request chains"
	}

	msg := fmt.Sprintf("Longest chain %+.0fms, transfer %+d bytes", c.DurationDeltaMs, c.TransferDelta)
	if c.LCPDeltaMs != nil {
		msg += fmt.Sprintf(", LCP %+.0fms", *c.LCPDeltaMs)
	}
	if c.BottleneckChanged {
		msg += fmt.Sprintf("; bottleneck moved from %s to %s", orNone(c.BaseBottleneckURL), orNone(c.BottleneckURL))
	}
	if regressed {
		msg += " (REGRESSION)"
	}
	return msg
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// Tool 6: manage_baselines

type ManageBaselinesInput struct {
	Action string `json:"action" jsonschema:"Action: 'set', 'list', 'delete', or 'clear'"`
	Name   string `json:"name,omitempty" jsonschema:"Baseline name (required for 'set' and 'delete')"`
	RunID  string `json:"run_id,omitempty" jsonschema:"Run to bookmark for 'set' (empty = latest run)"`
}

type ManageBaselinesOutput struct {
	Action    string         `json:"action" jsonschema:"Action performed"`
	Baselines []BaselineInfo `json:"baselines,omitempty" jsonschema:"Baselines (for 'list' and 'set')"`
	Message   string         `json:"message" jsonschema:"Status message"`
}

type BaselineInfo struct {
	Name      string `json:"name" jsonschema:"Baseline name"`
	RunID     string `json:"run_id" jsonschema:"Bookmarked run"`
	Position  int    `json:"position" jsonschema:"History position of the run"`
	CreatedAt string `json:"created_at" jsonschema:"When the baseline was set (RFC3339)"`
}

func (s *Server) handleManageBaselines(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ManageBaselinesInput,
) (*mcp.CallToolResult, ManageBaselinesOutput, error) {
	switch input.Action {
	case "set":
		if input.Name == "" {
			return nil, ManageBaselinesOutput{}, fmt.Errorf("baseline name required for set action")
		}
		run, err := s.store.Resolve(input.RunID)
		if err != nil {
			return nil, ManageBaselinesOutput{}, err
		}
		pos, _ := s.store.Position(run.ID)
		if err := s.baselines.Set(input.Name, run.ID, pos); err != nil {
			return nil, ManageBaselinesOutput{}, fmt.Errorf("failed to set baseline: %w", err)
		}
		bl, err := s.baselines.Get(input.Name)
		if err != nil {
			return nil, ManageBaselinesOutput{}, fmt.Errorf("failed to get baseline: %w", err)
		}
		return &mcp.CallToolResult{}, ManageBaselinesOutput{
			Action:    "set",
			Baselines: []BaselineInfo{baselineInfo(*bl)},
			Message:   fmt.Sprintf("Baseline '%s' now points at run %s", input.Name, run.ID),
		}, nil

	case "list":
		list := s.baselines.List()
		infos := make([]BaselineInfo, len(list))
		for i, bl := range list {
			infos[i] = baselineInfo(bl)
		}
		return &mcp.CallToolResult{}, ManageBaselinesOutput{
			Action:    "list",
			Baselines: infos,
			Message:   fmt.Sprintf("Found %d baselines", len(infos)),
		}, nil

	case "delete":
		if input.Name == "" {
			return nil, ManageBaselinesOutput{}, fmt.Errorf("baseline name required for delete action")
		}
		if err := s.baselines.Delete(input.Name); err != nil {
			return nil, ManageBaselinesOutput{}, fmt.Errorf("failed to delete baseline: %w", err)
		}
		return &mcp.CallToolResult{}, ManageBaselinesOutput{
			Action:  "delete",
			Message: fmt.Sprintf("Deleted baseline '%s'", input.Name),
		}, nil

	case "clear":
		s.baselines.Clear()
		return &mcp.CallToolResult{}, ManageBaselinesOutput{
			Action:  "clear",
			Message: "Cleared all baselines",
		}, nil

	default:
		return nil, ManageBaselinesOutput{}, fmt.Errorf("invalid action: %s (must be 'set', 'list', 'delete', or 'clear')", input.Action)
	}
}

// Tool 7: add_report_source

type AddReportSourceInput struct {
	Directory string `json:"directory" jsonschema:"Directory containing Lighthouse report JSON files (e.g. .lighthouseci)"`
	Label     string `json:"label,omitempty" jsonschema:"Optional label applied to every run from this directory"`
}

type ReportSourceOutput struct {
	Success bool     `json:"success" jsonschema:"Whether the operation succeeded"`
	Sources []string `json:"sources" jsonschema:"All watched directories"`
	Runs    int      `json:"runs" jsonschema:"Runs held in history after the operation"`
	Message string   `json:"message,omitempty" jsonschema:"Additional information or error message"`
}

func (s *Server) handleAddReportSource(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AddReportSourceInput,
) (*mcp.CallToolResult, ReportSourceOutput, error) {
	if input.Directory == "" {
		return nil, ReportSourceOutput{}, fmt.Errorf("directory is required")
	}
	dir, err := filepath.Abs(input.Directory)
	if err != nil {
		return nil, ReportSourceOutput{}, fmt.Errorf("invalid directory: %w", err)
	}

	// The watcher outlives this call, so it must not inherit the request context.
	if err := s.AddReportSource(context.WithoutCancel(ctx), dir, input.Label); err != nil {
		return &mcp.CallToolResult{}, ReportSourceOutput{
			Success: false,
			Sources: s.ListReportSources(),
			Runs:    s.store.Stats().Runs,
			Message: err.Error(),
		}, nil
	}

	return &mcp.CallToolResult{}, ReportSourceOutput{
		Success: true,
		Sources: s.ListReportSources(),
		Runs:    s.store.Stats().Runs,
		Message: fmt.Sprintf("watching %s for reports", dir),
	}, nil
}

// Tool 8: remove_report_source

type RemoveReportSourceInput struct {
	Directory string `json:"directory" jsonschema:"Directory to stop watching"`
}

func (s *Server) handleRemoveReportSource(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input RemoveReportSourceInput,
) (*mcp.CallToolResult, ReportSourceOutput, error) {
	if input.Directory == "" {
		return nil, ReportSourceOutput{}, fmt.Errorf("directory is required")
	}
	dir, err := filepath.Abs(input.Directory)
	if err != nil {
		return nil, ReportSourceOutput{}, fmt.Errorf("invalid directory: %w", err)
	}

	if err := s.RemoveReportSource(dir); err != nil {
		return &mcp.CallToolResult{}, ReportSourceOutput{
			Success: false,
			Sources: s.ListReportSources(),
			Runs:    s.store.Stats().Runs,
			Message: err.Error(),
		}, nil
	}

	return &mcp.CallToolResult{}, ReportSourceOutput{
		Success: true,
		Sources: s.ListReportSources(),
		Runs:    s.store.Stats().Runs,
		Message: fmt.Sprintf("stopped watching %s; its runs stay in history", dir),
	}, nil
}

// Tool 9: export_otlp

type ExportOTLPInput struct {
	RunID    string `json:"run_id,omitempty" jsonschema:"Run ID (empty = latest run)"`
	Endpoint string `json:"endpoint,omitempty" jsonschema:"OTLP gRPC collector host:port (default from server config)"`
	Path     string `json:"path,omitempty" jsonschema:"Append OTLP JSON lines to this file instead of sending"`
}

type ExportOTLPOutput struct {
	RunID       string `json:"run_id" jsonschema:"Exported run"`
	TraceID     string `json:"trace_id" jsonschema:"Trace ID of the exported chains (hex)"`
	SpanCount   int    `json:"span_count" jsonschema:"Number of spans exported"`
	Destination string `json:"destination" jsonschema:"Where the spans went"`
	Success     bool   `json:"success" jsonschema:"Whether the export succeeded"`
	Message     string `json:"message,omitempty" jsonschema:"Additional information or error message"`
}

func (s *Server) handleExportOTLP(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ExportOTLPInput,
) (*mcp.CallToolResult, ExportOTLPOutput, error) {
	run, err := s.store.Resolve(input.RunID)
	if err != nil {
		return nil, ExportOTLPOutput{}, err
	}

	rs, err := otlpexport.BuildResourceSpans(run)
	if errors.Is(err, otlpexport.ErrNoChains) {
		return &mcp.CallToolResult{}, ExportOTLPOutput{
			RunID:   run.ID,
			Success: false,
			Message: err.Error(),
		}, nil
	}
	if err != nil {
		return nil, ExportOTLPOutput{}, fmt.Errorf("failed to build spans: %w", err)
	}

	out := ExportOTLPOutput{
		RunID:     run.ID,
		TraceID:   fmt.Sprintf("%x", otlpexport.TraceID(run.ID)),
		SpanCount: otlpexport.SpanCount(rs),
	}

	switch {
	case input.Path != "":
		out.Destination = input.Path
		err = appendJSONL(input.Path, rs)
	default:
		endpoint := input.Endpoint
		if endpoint == "" {
			endpoint = s.otlpEndpoint
		}
		if endpoint == "" {
			return nil, ExportOTLPOutput{}, fmt.Errorf("endpoint or path is required (no default collector configured)")
		}
		out.Destination = endpoint
		err = s.exporter.Send(ctx, endpoint, rs)
	}

	if err != nil {
		out.Message = err.Error()
		return &mcp.CallToolResult{}, out, nil
	}
	out.Success = true
	out.Message = fmt.Sprintf("exported %d spans to %s", out.SpanCount, out.Destination)
	return &mcp.CallToolResult{}, out, nil
}

func appendJSONL(path string, rs ...*tracepb.ResourceSpans) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	if err := otlpexport.WriteJSONL(f, rs...); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Tool 10: get_stats

type GetStatsInput struct{}

type GetStatsOutput struct {
	History       storage.RunStoreStats `json:"history" jsonschema:"Run history statistics"`
	Baselines     int                   `json:"baseline_count" jsonschema:"Number of baselines"`
	ReportSources []filereader.Stats    `json:"report_sources" jsonschema:"Watched report directories"`
}

func (s *Server) handleGetStats(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetStatsInput,
) (*mcp.CallToolResult, GetStatsOutput, error) {
	return &mcp.CallToolResult{}, GetStatsOutput{
		History:       s.store.Stats(),
		Baselines:     s.baselines.Count(),
		ReportSources: s.ReportSourceStats(),
	}, nil
}

// Tool 11: clear_runs

type ClearRunsInput struct{}

type ClearRunsOutput struct {
	Message string `json:"message" jsonschema:"Confirmation message"`
}

func (s *Server) handleClearRuns(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ClearRunsInput,
) (*mcp.CallToolResult, ClearRunsOutput, error) {
	if err := s.store.Clear(ctx); err != nil {
		return nil, ClearRunsOutput{}, err
	}
	s.baselines.Clear()

	return &mcp.CallToolResult{}, ClearRunsOutput{
		Message: "Cleared all runs and baselines (complete reset)",
	}, nil
}

// Register all tools

func (s *Server) registerTools() error {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "analyze_report",
		Description: "🚀 START HERE: Analyze a Lighthouse report (file path or inline JSON). Reconstructs every critical request chain, finds the longest one, names the request that dominates it, and attributes Largest Contentful Paint to the chain request that most plausibly gated it. The run is kept in history for later comparison.",
	}, s.handleAnalyzeReport)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_critical_chain",
		Description: "Get one critical request chain with per-request latency, download time, start offset and share of the chain, plus its bottleneck and an ASCII waterfall. Defaults to the longest chain of the latest run.",
	}, s.handleGetCriticalChain)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_lcp_insight",
		Description: "Explain what delayed Largest Contentful Paint: the chain request matched to the LCP time, the chain prefix leading to it, and which request dominates that prefix. Start here when the question is 'why is LCP slow?'.",
	}, s.handleGetLCPInsight)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_runs",
		Description: "List analyzed runs newest first, optionally filtered by page URL. Shows longest chain duration, LCP and the bottleneck request for each run.",
	}, s.handleListRuns)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "compare_runs",
		Description: "Compare a run against a base run or named baseline: longest-chain, transfer size and LCP deltas, and whether the bottleneck request changed. Use after a fix to confirm the chain actually got shorter.",
	}, s.handleCompareRuns)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "manage_baselines",
		Description: "Name a run so later runs can be compared against it ('set'), list baselines ('list'), delete one ('delete'), or clear all ('clear'). Think: 'before-fix' then compare_runs(baseline='before-fix').",
	}, s.handleManageBaselines)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "add_report_source",
		Description: "Watch a directory for Lighthouse reports (lighthouse --output-path, or Lighthouse CI's .lighthouseci). Existing reports are analyzed immediately; new or rewritten ones are analyzed as they appear.",
	}, s.handleAddReportSource)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "remove_report_source",
		Description: "Stop watching a report directory. Runs already analyzed stay in history.",
	}, s.handleRemoveReportSource)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "export_otlp",
		Description: "Export a run's critical request chains as an OpenTelemetry trace, one span per request parented to the request that discovered it. Send to an OTLP gRPC collector, or append OTLP JSON lines to a file.",
	}, s.handleExportOTLP)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_stats",
		Description: "History health dashboard - run count and capacity, evictions, baselines, persistence and watched report directories.",
	}, s.handleGetStats)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "clear_runs",
		Description: "Nuclear option - wipes ALL runs (including persisted ones) and baselines. For normal cleanup, delete individual baselines with manage_baselines instead.",
	}, s.handleClearRuns)

	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// OUTPUT TYPES
// ═══════════════════════════════════════════════════════════════════════════

type RunInfo struct {
	ID               string   `json:"id" jsonschema:"Run ID"`
	Label            string   `json:"label,omitempty" jsonschema:"Run label"`
	URL              string   `json:"url" jsonschema:"Audited page URL"`
	Source           string   `json:"source" jsonschema:"Report file or 'inline'"`
	AnalyzedAt       string   `json:"analyzed_at" jsonschema:"When the report was analyzed (RFC3339)"`
	FetchTime        string   `json:"fetch_time,omitempty" jsonschema:"When the audit ran (RFC3339)"`
	HasChains        bool     `json:"has_chains" jsonschema:"Whether the report had critical request chains"`
	PathCount        int      `json:"path_count" jsonschema:"Number of chain paths"`
	LongestChainMs   float64  `json:"longest_chain_ms" jsonschema:"Duration of the longest chain in ms"`
	TransferSize     int64    `json:"transfer_size" jsonschema:"Bytes transferred along the longest chain"`
	BottleneckURL    string   `json:"bottleneck_url,omitempty" jsonschema:"Request that dominates the chain (LCP bottleneck when attributed)"`
	BottleneckImpact string   `json:"bottleneck_impact,omitempty" jsonschema:"Critical, High, Medium or Low"`
	LCPMs            *float64 `json:"lcp_ms,omitempty" jsonschema:"Largest Contentful Paint time in ms"`
	LCPCandidateURL  string   `json:"lcp_candidate_url,omitempty" jsonschema:"Chain request matched to LCP"`
	RuntimeError     string   `json:"runtime_error,omitempty" jsonschema:"Audit engine error, if any"`
}

func runInfo(r *storage.Run) RunInfo {
	sum := r.Summary()
	info := RunInfo{
		ID:               sum.ID,
		Label:            sum.Label,
		URL:              sum.URL,
		Source:           sum.Source,
		AnalyzedAt:       sum.AnalyzedAt.Format(time.RFC3339),
		HasChains:        sum.HasChains,
		PathCount:        sum.PathCount,
		LongestChainMs:   sum.LongestMs,
		TransferSize:     sum.TransferSize,
		BottleneckURL:    sum.BottleneckURL,
		BottleneckImpact: sum.BottleneckLevel,
		LCPMs:            sum.LCPMs,
		LCPCandidateURL:  sum.LCPCandidateURL,
		RuntimeError:     sum.RuntimeError,
	}
	if !r.FetchTime.IsZero() {
		info.FetchTime = r.FetchTime.Format(time.RFC3339Nano)
	}
	return info
}

func baselineInfo(bl storage.Baseline) BaselineInfo {
	return BaselineInfo{
		Name:      bl.Name,
		RunID:     bl.RunID,
		Position:  bl.Position,
		CreatedAt: bl.CreatedAt.Format(time.RFC3339),
	}
}

// runRow converts a run for the text run table.
func runRow(r *storage.Run) viz.RunRow {
	sum := r.Summary()
	return viz.RunRow{
		ID:            sum.ID,
		Label:         sum.Label,
		URL:           sum.URL,
		HasChains:     sum.HasChains,
		DurationMs:    sum.LongestMs,
		LCPMs:         sum.LCPMs,
		BottleneckURL: sum.BottleneckURL,
		Impact:        sum.BottleneckLevel,
	}
}
