package viz

// RunRow describes one analyzed run for the run table.
// Decoupled from storage types so viz is a pure rendering package.
type RunRow struct {
	ID            string
	Label         string
	URL           string
	HasChains     bool
	DurationMs    float64  // longest chain
	LCPMs         *float64 // nil when no LCP was attributed
	BottleneckURL string
	Impact        string // "Critical", "High", "Medium", "Low" or empty
}

// HistoryStats describes history fill levels for the stats overview.
type HistoryStats struct {
	Runs       int
	Capacity   int
	TotalAdded int
	Evicted    uint64
	Baselines  int
	Sources    int
	Persistent bool
}
