package storage

// Comparison is the difference between a baseline run and a later run.
// Positive deltas mean the current run is slower or heavier.
type Comparison struct {
	BaseRunID string `json:"base_run_id"`
	RunID     string `json:"run_id"`

	// Comparable is false when either run has no chain analysis; the
	// deltas are then zero.
	Comparable bool `json:"comparable"`

	DurationDeltaMs      float64  `json:"duration_delta_ms"`
	TransferDelta        int64    `json:"transfer_delta"`
	PathCountDelta       int      `json:"path_count_delta"`
	LCPDeltaMs           *float64 `json:"lcp_delta_ms,omitempty"`
	DurationToLCPDeltaMs *float64 `json:"duration_to_lcp_delta_ms,omitempty"`

	BaseBottleneckURL string `json:"base_bottleneck_url,omitempty"`
	BottleneckURL     string `json:"bottleneck_url,omitempty"`
	BottleneckChanged bool   `json:"bottleneck_changed"`
}

// Compare diffs two runs.
func Compare(base, current *Run) Comparison {
	c := Comparison{}
	if base == nil || current == nil {
		return c
	}
	c.BaseRunID = base.ID
	c.RunID = current.ID

	ba, ca := base.Analysis, current.Analysis
	if ba == nil || ca == nil {
		return c
	}
	c.Comparable = true

	c.DurationDeltaMs = ca.TotalDuration - ba.TotalDuration
	c.TransferDelta = ca.TotalTransferSize - ba.TotalTransferSize
	c.PathCountDelta = len(ca.Paths) - len(ba.Paths)

	if ba.LCP != nil && ca.LCP != nil {
		lcp := ca.LCP.LCPTime - ba.LCP.LCPTime
		toLCP := ca.LCP.DurationToLCP - ba.LCP.DurationToLCP
		c.LCPDeltaMs = &lcp
		c.DurationToLCPDeltaMs = &toLCP
	}

	c.BaseBottleneckURL = ba.Bottleneck.URL()
	c.BottleneckURL = ca.Bottleneck.URL()
	c.BottleneckChanged = c.BaseBottleneckURL != c.BottleneckURL

	return c
}

// Regressed reports whether the current run's longest chain got slower by
// more than thresholdMs.
func (c Comparison) Regressed(thresholdMs float64) bool {
	return c.Comparable && c.DurationDeltaMs > thresholdMs
}
