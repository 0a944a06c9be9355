package chains

import "math"

// FinalizePath computes the aggregates of one raw path and the per-node
// metrics derived from them. An empty item list yields a zero path with an
// empty node list.
func FinalizePath(id string, items []RawChainItem) CriticalChainPath {
	path := CriticalChainPath{
		ID:    id,
		Nodes: make([]CriticalChainItem, 0, len(items)),
	}
	if len(items) == 0 {
		return path
	}

	path.StartTime = items[0].StartTime
	path.EndTime = items[len(items)-1].EndTime
	path.TotalDuration = nonNegative(path.EndTime - path.StartTime)

	for i, item := range items {
		rt := NormalizeResourceType(item.ResourceType)
		if i == 0 {
			rt = ResourceDocument
		}

		duration := nonNegative(item.EndTime - item.StartTime)
		path.Nodes = append(path.Nodes, CriticalChainItem{
			URL:          item.URL,
			TransferSize: item.TransferSize,
			StartTime:    item.StartTime,
			EndTime:      item.EndTime,
			Duration:     duration,
			ResourceType: rt,
			Latency:      nonNegative(item.ResponseReceivedTime - item.StartTime),
			DownloadTime: nonNegative(item.EndTime - item.ResponseReceivedTime),
			StartOffset:  nonNegative(item.StartTime - path.StartTime),
			Depth:        item.Depth,
			Contribution: ratio(duration, path.TotalDuration),
		})
		path.TotalTransferSize = addBytes(path.TotalTransferSize, item.TransferSize)
	}

	return path
}

// FinalizeAll finalizes raw paths in order.
func FinalizeAll(raw []RawPath) []CriticalChainPath {
	paths := make([]CriticalChainPath, 0, len(raw))
	for _, rp := range raw {
		paths = append(paths, FinalizePath(rp.ID, rp.Items))
	}
	return paths
}

// nonNegative clamps v at 0 and maps NaN to 0.
func nonNegative(v float64) float64 {
	if v > 0 && !math.IsInf(v, 1) {
		return v
	}
	return 0
}

// ratio returns part/total, or 0 when total is not positive.
func ratio(part, total float64) float64 {
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return 0
	}
	return nonNegative(part / total)
}

func addBytes(a, b int64) int64 {
	if b > math.MaxInt64-a {
		return math.MaxInt64
	}
	return a + b
}
