package chains

import (
	"slices"

	"github.com/tobert/chainscope/internal/report"
)

// BuildPaths expands the dependency tree under root into every root-to-leaf
// path. A node without a request ends its branch, and so does a node that
// is already on the current path; in both cases the path so far is kept.
func BuildPaths(root *report.ChainNode, idx RecordIndex) [][]RawChainItem {
	b := &pathBuilder{
		idx:    idx,
		onPath: make(map[*report.ChainNode]struct{}),
	}
	return b.expand(root, 0, nil)
}

// BuildAllPaths expands every root of chains in document order. Each path
// carries the id of the root it came from.
func BuildAllPaths(chains report.ChainMap, idx RecordIndex) []RawPath {
	var out []RawPath
	for _, root := range chains {
		for _, items := range BuildPaths(root.Node, idx) {
			out = append(out, RawPath{ID: root.ID, Items: items})
		}
	}
	return out
}

type pathBuilder struct {
	idx    RecordIndex
	onPath map[*report.ChainNode]struct{}
}

func (b *pathBuilder) expand(node *report.ChainNode, depth int, prefix []RawChainItem) [][]RawChainItem {
	if node == nil || node.Request == nil {
		return terminate(prefix)
	}
	if _, cycle := b.onPath[node]; cycle {
		return terminate(prefix)
	}

	b.onPath[node] = struct{}{}
	defer delete(b.onPath, node)

	// Clip forces a fresh backing array so sibling branches never share
	// trailing elements.
	path := append(slices.Clip(prefix), b.item(node.Request, depth))
	if len(node.Children) == 0 {
		return [][]RawChainItem{path}
	}

	var paths [][]RawChainItem
	for _, child := range node.Children {
		paths = append(paths, b.expand(child.Node, depth+1, path)...)
	}
	return paths
}

func (b *pathBuilder) item(req *report.ChainRequest, depth int) RawChainItem {
	return RawChainItem{
		URL:                  req.URL,
		TransferSize:         TransferBytes(req.TransferSize),
		StartTime:            ToMilliseconds(req.StartTime),
		EndTime:              ToMilliseconds(req.EndTime),
		ResponseReceivedTime: ToMilliseconds(req.ResponseReceivedTime),
		ResourceType:         ResolveResourceType(req.URL, depth, b.idx),
		Depth:                depth,
	}
}

func terminate(prefix []RawChainItem) [][]RawChainItem {
	if len(prefix) == 0 {
		return nil
	}
	return [][]RawChainItem{prefix}
}
