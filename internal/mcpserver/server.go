package mcpserver

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tobert/chainscope/internal/filereader"
	"github.com/tobert/chainscope/internal/ingest"
	"github.com/tobert/chainscope/internal/otlpexport"
	"github.com/tobert/chainscope/internal/storage"
)

// Server wraps the MCP server with the run history and ingest pipeline.
// It provides tools for agents to analyze audit reports and reason about
// which requests gate page rendering.
type Server struct {
	mcpServer *mcp.Server
	ingester  *ingest.Ingester
	store     *storage.RunStore
	baselines *storage.BaselineManager
	exporter  *otlpexport.Exporter

	// Report sources - directories being watched for audit reports.
	// Directories still loading their existing reports sit in
	// loadingSources until they are published to reportSources.
	reportSourcesMu sync.RWMutex
	reportSources   map[string]*filereader.FileSource
	loadingSources  map[string]struct{}
	sourcesClosed   bool
	sourceIngester  filereader.Ingester

	otlpEndpoint string
	verbose      bool
}

// ServerOptions configures the MCP server.
type ServerOptions struct {
	Verbose      bool   // Enable verbose logging
	OTLPEndpoint string // Default collector for export_otlp
}

// NewServer creates a new MCP server over the given ingest pipeline.
func NewServer(ingester *ingest.Ingester, baselines *storage.BaselineManager, opts ...ServerOptions) (*Server, error) {
	if ingester == nil {
		return nil, fmt.Errorf("ingester cannot be nil")
	}
	if baselines == nil {
		return nil, fmt.Errorf("baseline manager cannot be nil")
	}

	var opt ServerOptions
	if len(opts) > 0 {
		opt = opts[0]
	}

	s := &Server{
		ingester:       ingester,
		store:          ingester.Store(),
		baselines:      baselines,
		exporter:       &otlpexport.Exporter{Verbose: opt.Verbose},
		reportSources:  make(map[string]*filereader.FileSource),
		loadingSources: make(map[string]struct{}),
		sourceIngester: ingester,
		otlpEndpoint:   opt.OTLPEndpoint,
		verbose:        opt.Verbose,
	}

	// Create MCP server with implementation metadata
	s.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    "chainscope",
		Title:   "Critical Request Chain Analysis for Agents",
		Version: "0.1.0",
	}, &mcp.ServerOptions{
		Instructions: `Critical request chain analyzer. Reads Lighthouse reports, reconstructs the
request dependency chains, and names the request that dominates the longest chain
and the one that most plausibly delayed Largest Contentful Paint.

Workflow: analyze_report (or add_report_source) -> get_critical_chain / get_lcp_insight
-> manage_baselines set -> fix -> analyze again -> compare_runs.

Runs default to the latest when run_id is omitted.
Resources: chainscope://runs, chainscope://runs/{id}, chainscope://baselines,
chainscope://report-sources, chainscope://stats.`,
	})

	// Register all tools and resources
	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	s.registerResources()

	return s, nil
}

// Run starts the MCP server on stdio transport.
// This method blocks until the context is cancelled or EOF is received on stdin.
func (s *Server) Run(ctx context.Context) error {
	transport := &mcp.StdioTransport{}
	err := s.mcpServer.Run(ctx, transport)

	// Stop all report sources on shutdown
	s.stopAllReportSources()

	return err
}

// MCPServer returns the underlying mcp.Server for use with alternative transports.
// This enables the server to be used with StreamableHTTPHandler for HTTP transport.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

// Shutdown performs cleanup when using non-stdio transports.
// For stdio transport, this cleanup is handled by Run() automatically.
func (s *Server) Shutdown() {
	s.stopAllReportSources()
}

// Baselines returns the baseline manager.
func (s *Server) Baselines() *storage.BaselineManager {
	return s.baselines
}

// AddReportSource starts watching a directory for audit reports. Existing
// reports are ingested before it returns. label is applied to every run from
// the directory and may be empty.
// Returns an error if the directory is already being watched.
func (s *Server) AddReportSource(ctx context.Context, directory, label string) error {
	s.reportSourcesMu.Lock()
	if s.sourcesClosed {
		s.reportSourcesMu.Unlock()
		return fmt.Errorf("server is shutting down")
	}
	if _, exists := s.reportSources[directory]; exists {
		s.reportSourcesMu.Unlock()
		return fmt.Errorf("directory %s is already being watched", directory)
	}
	if _, loading := s.loadingSources[directory]; loading {
		s.reportSourcesMu.Unlock()
		return fmt.Errorf("directory %s is already being loaded", directory)
	}
	s.loadingSources[directory] = struct{}{}
	s.reportSourcesMu.Unlock()

	// The initial load can take a while on a large directory, so it runs
	// without the lock.
	fs, err := s.startReportSource(ctx, directory, label)

	s.reportSourcesMu.Lock()
	delete(s.loadingSources, directory)
	closed := s.sourcesClosed
	if err == nil && !closed {
		s.reportSources[directory] = fs
	}
	s.reportSourcesMu.Unlock()

	if err != nil {
		return err
	}
	if closed {
		fs.Stop()
		return fmt.Errorf("server is shutting down")
	}
	return nil
}

func (s *Server) startReportSource(ctx context.Context, directory, label string) (*filereader.FileSource, error) {
	fs, err := filereader.New(filereader.Config{
		Directory: directory,
		Verbose:   s.verbose,
		Label:     label,
	}, s.sourceIngester)
	if err != nil {
		return nil, fmt.Errorf("failed to create report source: %w", err)
	}

	if err := fs.Start(ctx); err != nil {
		fs.Stop()
		return nil, fmt.Errorf("failed to start report source: %w", err)
	}
	return fs, nil
}

// RemoveReportSource stops and removes a report source.
// The source is removed from the map under the lock, then stopped
// outside the lock so fs.Stop cannot block other operations.
func (s *Server) RemoveReportSource(directory string) error {
	s.reportSourcesMu.Lock()
	fs, exists := s.reportSources[directory]
	if !exists {
		_, loading := s.loadingSources[directory]
		s.reportSourcesMu.Unlock()
		if loading {
			return fmt.Errorf("directory %s is still loading, try again shortly", directory)
		}
		return fmt.Errorf("directory %s is not being watched", directory)
	}
	delete(s.reportSources, directory)
	s.reportSourcesMu.Unlock()

	fs.Stop()
	return nil
}

// ListReportSources returns all watched directories, sorted.
func (s *Server) ListReportSources() []string {
	s.reportSourcesMu.RLock()
	defer s.reportSourcesMu.RUnlock()

	dirs := make([]string, 0, len(s.reportSources))
	for dir := range s.reportSources {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}

// ReportSourceStats returns stats for all report sources, sorted by directory.
func (s *Server) ReportSourceStats() []filereader.Stats {
	s.reportSourcesMu.RLock()
	defer s.reportSourcesMu.RUnlock()

	stats := make([]filereader.Stats, 0, len(s.reportSources))
	for _, fs := range s.reportSources {
		stats = append(stats, fs.Stats())
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Directory < stats[j].Directory
	})
	return stats
}

// stopAllReportSources stops all report sources (called on shutdown).
// Sources are collected and the map cleared under the lock, then
// stopped outside the lock so a slow fs.Stop (which waits on
// goroutines) cannot block other report-source operations.
func (s *Server) stopAllReportSources() {
	s.reportSourcesMu.Lock()
	sources := make([]*filereader.FileSource, 0, len(s.reportSources))
	for _, fs := range s.reportSources {
		sources = append(sources, fs)
	}
	clear(s.reportSources)
	s.sourcesClosed = true
	s.reportSourcesMu.Unlock()

	for _, fs := range sources {
		fs.Stop()
	}
}
