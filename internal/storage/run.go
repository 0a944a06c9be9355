package storage

import (
	"time"

	"github.com/tobert/chainscope/internal/chains"
)

// Run is one analyzed report kept in history.
type Run struct {
	ID                string           `json:"id"`
	Label             string           `json:"label,omitempty"`
	Source            string           `json:"source"`
	Fingerprint       string           `json:"fingerprint"`
	URL               string           `json:"url"`
	LighthouseVersion string           `json:"lighthouse_version,omitempty"`
	FetchTime         time.Time        `json:"fetch_time"`
	AnalyzedAt        time.Time        `json:"analyzed_at"`
	RuntimeError      string           `json:"runtime_error,omitempty"`
	Analysis          *chains.Analysis `json:"analysis,omitempty"` // nil when the report had no chains
}

// RunSummary is the flat, list-friendly view of a run.
type RunSummary struct {
	ID              string    `json:"id"`
	Label           string    `json:"label,omitempty"`
	URL             string    `json:"url"`
	Source          string    `json:"source"`
	AnalyzedAt      time.Time `json:"analyzed_at"`
	HasChains       bool      `json:"has_chains"`
	PathCount       int       `json:"path_count"`
	LongestMs       float64   `json:"longest_chain_ms"`
	TransferSize    int64     `json:"transfer_size"`
	BottleneckURL   string    `json:"bottleneck_url,omitempty"`
	BottleneckLevel string    `json:"bottleneck_impact,omitempty"`
	LCPMs           *float64  `json:"lcp_ms,omitempty"`
	LCPCandidateURL string    `json:"lcp_candidate_url,omitempty"`
	RuntimeError    string    `json:"runtime_error,omitempty"`
}

// Summary flattens the run for tables and streams.
func (r *Run) Summary() RunSummary {
	s := RunSummary{
		ID:           r.ID,
		Label:        r.Label,
		URL:          r.URL,
		Source:       r.Source,
		AnalyzedAt:   r.AnalyzedAt,
		RuntimeError: r.RuntimeError,
	}

	a := r.Analysis
	if a == nil {
		return s
	}

	s.HasChains = true
	s.PathCount = len(a.Paths)
	s.LongestMs = a.TotalDuration
	s.TransferSize = a.TotalTransferSize
	if a.Bottleneck != nil {
		s.BottleneckURL = a.Bottleneck.Node.URL
		s.BottleneckLevel = string(a.Bottleneck.Impact)
	}
	if a.LCP != nil {
		lcp := a.LCP.LCPTime
		s.LCPMs = &lcp
		s.LCPCandidateURL = a.LCP.CandidateURL
	}
	return s
}
