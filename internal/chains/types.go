package chains

// ResourceType is the category of a request within a chain.
type ResourceType string

const (
	ResourceDocument   ResourceType = "document"
	ResourceStylesheet ResourceType = "stylesheet"
	ResourceScript     ResourceType = "script"
	ResourceImage      ResourceType = "image"
	ResourceFont       ResourceType = "font"
	ResourceOther      ResourceType = "other"
)

// RawChainItem is one node along a single root-to-leaf walk, before path
// aggregates are known. Times are milliseconds.
type RawChainItem struct {
	URL                  string
	TransferSize         int64
	StartTime            float64
	EndTime              float64
	ResponseReceivedTime float64
	ResourceType         ResourceType
	Depth                int // 0 = root
}

// RawPath is the unfinalized item list of one path plus the id of the root
// it descends from.
type RawPath struct {
	ID    string
	Items []RawChainItem
}

// CriticalChainItem is the finalized view of a node within one path.
type CriticalChainItem struct {
	URL          string       `json:"url"`
	TransferSize int64        `json:"transfer_size"`
	StartTime    float64      `json:"start_time_ms"`
	EndTime      float64      `json:"end_time_ms"`
	Duration     float64      `json:"duration_ms"`
	ResourceType ResourceType `json:"resource_type"`
	Latency      float64      `json:"latency_ms"`
	DownloadTime float64      `json:"download_time_ms"`
	StartOffset  float64      `json:"start_offset_ms"` // relative to the first node of the owning path
	Depth        int          `json:"depth"`
	Contribution float64      `json:"contribution"` // duration / span duration, 0 when the span is empty
}

// CriticalChainPath is one root-to-leaf chain with its aggregates.
type CriticalChainPath struct {
	ID                string              `json:"id"`
	Nodes             []CriticalChainItem `json:"nodes"`
	StartTime         float64             `json:"start_time_ms"`
	EndTime           float64             `json:"end_time_ms"`
	TotalDuration     float64             `json:"total_duration_ms"`
	TotalTransferSize int64               `json:"total_transfer_size"`
}
