package chains

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobert/chainscope/internal/report"
)

// req builds a chain request from times in seconds.
func req(url string, start, received, end, size float64) *report.ChainRequest {
	return &report.ChainRequest{
		URL:                  url,
		StartTime:            report.N(start),
		EndTime:              report.N(end),
		ResponseReceivedTime: report.N(received),
		TransferSize:         report.N(size),
	}
}

func node(r *report.ChainRequest, children ...report.ChainEntry) *report.ChainNode {
	return &report.ChainNode{Request: r, Children: children}
}

func entry(id string, n *report.ChainNode) report.ChainEntry {
	return report.ChainEntry{ID: id, Node: n}
}

func ms(v float64) *float64 { return &v }

const (
	docURL   = "https://example.com/"
	cssURL   = "https://example.com/site.css"
	imageURL = "https://example.com/hero.jpg"
)

// linearChain is a document (0-200ms), a stylesheet (200-450ms) and an
// image (450-1800ms), each triggered by the previous one.
func linearChain() report.ChainMap {
	return report.ChainMap{
		entry("root", node(req(docURL, 0, 0.15, 0.2, 1000),
			entry("css", node(req(cssURL, 0.2, 0.3, 0.45, 2000),
				entry("img", node(req(imageURL, 0.45, 0.5, 1.8, 50000))),
			)),
		)),
	}
}

func TestScenarioLinearChainWithLCP(t *testing.T) {
	a := AnalyzeInput(Input{Chains: linearChain(), MilestoneMs: ms(1800)})
	require.NotNil(t, a)

	require.Len(t, a.Paths, 1)
	require.Len(t, a.LongestPath.Nodes, 3)
	assert.InDelta(t, 1800, a.TotalDuration, 1e-9)
	assert.Equal(t, int64(53000), a.TotalTransferSize)

	require.NotNil(t, a.ChainBottleneck)
	assert.Equal(t, imageURL, a.ChainBottleneck.Node.URL)
	assert.Equal(t, ImpactCritical, a.ChainBottleneck.Impact)
	assert.InDelta(t, 1350.0/1800.0, a.ChainBottleneck.Contribution, 1e-9)

	require.NotNil(t, a.LCP)
	assert.Equal(t, imageURL, a.LCP.CandidateURL)
	assert.InDelta(t, 1800, a.LCP.DurationToLCP, 1e-9)
	assert.True(t, a.LCP.MatchedBeforeLCP)
	assert.Equal(t, "root", a.LCP.PathID)
	assert.Len(t, a.LCP.Nodes, 3)

	require.NotNil(t, a.Bottleneck)
	assert.Same(t, a.LCP.Bottleneck, a.Bottleneck)

	assert.Equal(t, 1, a.RootCount)
	assert.Equal(t, 2, a.MaxDepth)
	assert.Equal(t, 3, a.RequestCount)
}

func TestScenarioMilestoneBetweenNodes(t *testing.T) {
	chains := report.ChainMap{
		entry("root", node(req(docURL, 0, 0.1, 0.2, 0),
			entry("a", node(req("https://example.com/a.js", 0.2, 0.3, 0.5, 0),
				entry("b", node(req("https://example.com/b.js", 0.6, 0.7, 0.9, 0))),
			)),
		)),
	}

	a := AnalyzeInput(Input{Chains: chains, MilestoneMs: ms(550)})
	require.NotNil(t, a)
	require.NotNil(t, a.LCP)

	assert.Equal(t, "https://example.com/a.js", a.LCP.CandidateURL)
	assert.True(t, a.LCP.MatchedBeforeLCP)

	// b started after a finished, so it is not part of the prefix.
	require.Len(t, a.LCP.Nodes, 2)
	assert.Equal(t, docURL, a.LCP.Nodes[0].URL)
	assert.InDelta(t, 500, a.LCP.DurationToLCP, 1e-9)
	assert.InDelta(t, 300.0/500.0, a.LCP.Nodes[1].Contribution, 1e-9)

	require.NotNil(t, a.LCP.Bottleneck)
	assert.Equal(t, "https://example.com/a.js", a.LCP.Bottleneck.Node.URL)
	assert.Equal(t, ImpactCritical, a.LCP.Bottleneck.Impact)

	// The whole chain is 900ms; a (300ms) and b (300ms) tie and a is first.
	require.NotNil(t, a.ChainBottleneck)
	assert.Equal(t, "https://example.com/a.js", a.ChainBottleneck.Node.URL)
	assert.Equal(t, ImpactHigh, a.ChainBottleneck.Impact)
}

func TestScenarioNoMilestone(t *testing.T) {
	a := AnalyzeInput(Input{Chains: linearChain()})
	require.NotNil(t, a)

	assert.Nil(t, a.LCP)
	require.NotNil(t, a.ChainBottleneck)
	assert.Same(t, a.ChainBottleneck, a.Bottleneck)
	assert.Equal(t, imageURL, a.Bottleneck.Node.URL)
}

func TestScenarioNoChains(t *testing.T) {
	assert.Nil(t, AnalyzeInput(Input{}))
	assert.Nil(t, AnalyzeInput(Input{Chains: report.ChainMap{}, MilestoneMs: ms(100)}))
	assert.Nil(t, Analyze(nil))
	assert.Nil(t, Analyze(&report.Report{}))
}

func TestNoUsablePaths(t *testing.T) {
	chains := report.ChainMap{entry("root", node(nil)), entry("other", nil)}
	assert.Nil(t, AnalyzeInput(Input{Chains: chains}))
}

func TestScenarioMalformedTimestamps(t *testing.T) {
	input := `{
		"audits": {
			"critical-request-chains": {"details": {"chains": {
				"root": {
					"request": {"url": "https://example.com/", "startTime": 0, "endTime": 0.2, "responseReceivedTime": 0.1},
					"children": {
						"both": {"request": {"url": "https://example.com/x.js", "startTime": "NaN", "endTime": "later", "transferSize": "big"}},
						"end": {"request": {"url": "https://example.com/y.js", "startTime": 0.3, "endTime": "soon", "responseReceivedTime": 0.35}}
					}
				}
			}}}
		}
	}`
	r, err := report.Parse([]byte(input))
	require.NoError(t, err)

	a := Analyze(r)
	require.NotNil(t, a)
	require.Len(t, a.Paths, 2)

	both := a.Paths[0].Nodes[1]
	assert.Equal(t, "https://example.com/x.js", both.URL)
	assert.Zero(t, both.StartTime)
	assert.Zero(t, both.EndTime)
	assert.Zero(t, both.Duration)
	assert.Zero(t, both.TransferSize)

	end := a.Paths[1].Nodes[1]
	assert.InDelta(t, 300, end.StartTime, 1e-9)
	assert.Zero(t, end.EndTime)
	assert.Zero(t, end.Duration, "negative duration is clamped")
	assert.Zero(t, end.DownloadTime)
	assert.Zero(t, a.Paths[1].TotalDuration, "path ends before it starts")

	assertNonNegative(t, a)
}

func TestPathCountMatchesLeaves(t *testing.T) {
	chains := report.ChainMap{
		entry("r1", node(req(docURL, 0, 0.1, 0.2, 0),
			entry("a", node(req("https://example.com/a.js", 0.2, 0.25, 0.3, 0),
				entry("a1", node(req("https://example.com/a1.js", 0.3, 0.35, 0.4, 0))),
				entry("a2", node(req("https://example.com/a2.js", 0.3, 0.35, 0.5, 0),
					entry("a2x", node(req("https://example.com/a2x.woff2", 0.5, 0.55, 0.6, 0))),
				)),
			)),
			entry("b", node(req("https://example.com/b.css", 0.2, 0.25, 0.3, 0))),
		)),
		entry("r2", node(req("https://cdn.example.com/", 0, 0.05, 0.1, 0))),
	}

	raw := BuildAllPaths(chains, nil)
	require.Len(t, raw, 4)

	wantLeaves := []struct {
		id    string
		url   string
		depth int
	}{
		{"r1", "https://example.com/a1.js", 2},
		{"r1", "https://example.com/a2x.woff2", 3},
		{"r1", "https://example.com/b.css", 1},
		{"r2", "https://cdn.example.com/", 0},
	}
	for i, want := range wantLeaves {
		path := raw[i]
		assert.Equal(t, want.id, path.ID)
		leaf := path.Items[len(path.Items)-1]
		assert.Equal(t, want.url, leaf.URL)
		assert.Equal(t, want.depth, leaf.Depth)
		assert.Len(t, path.Items, want.depth+1)
	}

	// Sibling branches must not share trailing elements.
	assert.Equal(t, "https://example.com/a.js", raw[0].Items[1].URL)
	assert.Equal(t, "https://example.com/a.js", raw[1].Items[1].URL)
	assert.Equal(t, "https://example.com/a2.js", raw[1].Items[2].URL)

	a := AnalyzeInput(Input{Chains: chains})
	require.NotNil(t, a)
	assert.Equal(t, 2, a.RootCount)
	assert.Equal(t, 3, a.MaxDepth)
	assert.Equal(t, 7, a.RequestCount)
	assert.Equal(t, 1, a.LongestPathIndex)
}

func TestBuildPathsMissingRequestEndsBranch(t *testing.T) {
	root := node(req(docURL, 0, 0.1, 0.2, 0),
		entry("broken", node(nil, entry("unreachable", node(req("https://example.com/u.js", 0.3, 0.3, 0.4, 0))))),
		entry("ok", node(req("https://example.com/ok.js", 0.2, 0.3, 0.4, 0))),
	)

	paths := BuildPaths(root, nil)
	require.Len(t, paths, 2)
	assert.Len(t, paths[0], 1, "broken child keeps the path so far")
	assert.Len(t, paths[1], 2)

	assert.Nil(t, BuildPaths(nil, nil))
	assert.Nil(t, BuildPaths(node(nil), nil))
}

func TestBuildPathsCycleGuard(t *testing.T) {
	root := node(req(docURL, 0, 0.1, 0.2, 0))
	child := node(req("https://example.com/loop.js", 0.2, 0.3, 0.4, 0), entry("back", root))
	root.Children = report.ChainMap{entry("child", child), entry("self", root)}

	paths := BuildPaths(root, nil)
	require.Len(t, paths, 2)
	assert.Len(t, paths[0], 2)
	assert.Len(t, paths[1], 1)

	a := AnalyzeInput(Input{Chains: report.ChainMap{entry("root", root)}})
	require.NotNil(t, a)
	assert.Equal(t, 1, a.MaxDepth)
}

func TestResourceTypes(t *testing.T) {
	idx := NewRecordIndex([]report.NetworkRecord{
		{URL: "https://example.com/api", ResourceType: "XHR"},
		{URL: "https://example.com/dup.js", ResourceType: ""},
		{URL: "https://example.com/dup.js", ResourceType: "Script"},
		{URL: "https://example.com/dup.js", ResourceType: "Other"},
		{URL: "https://example.com/styled", ResourceType: "Stylesheet"},
	})

	tests := []struct {
		url   string
		depth int
		want  ResourceType
	}{
		{"https://example.com/styled", 1, ResourceStylesheet},
		{"https://example.com/dup.js", 1, ResourceScript},
		{"https://example.com/api", 1, "xhr"},
		{"https://example.com/page", 0, ResourceDocument},
		{"https://example.com/page", 1, ResourceOther},
		{"https://example.com/a.CSS?v=3", 1, ResourceStylesheet},
		{"https://example.com/app.mjs#main", 2, ResourceScript},
		{"https://example.com/logo.svg", 1, ResourceImage},
		{"https://example.com/photo.jpeg", 1, ResourceImage},
		{"https://fonts.example.com/f.woff2", 2, ResourceFont},
		{"https://example.com/data.json", 1, ResourceOther},
		{"%%bad-url%%.css?x", 1, ResourceStylesheet},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveResourceType(tt.url, tt.depth, idx))
		})
	}

	assert.Equal(t, ResourceOther, NormalizeResourceType("xhr"))
	assert.Equal(t, ResourceImage, NormalizeResourceType("Image"))
	assert.Equal(t, ResourceOther, NormalizeResourceType(""))
}

func TestToMilliseconds(t *testing.T) {
	assert.Equal(t, 1500.0, ToMilliseconds(report.N(1.5)))
	assert.Zero(t, ToMilliseconds(report.Number{}))
	assert.Zero(t, ToMilliseconds(report.N(-2)))
	assert.Zero(t, ToMilliseconds(report.N(1e308)))

	assert.Equal(t, int64(1024), TransferBytes(report.N(1023.6)))
	assert.Zero(t, TransferBytes(report.N(-5)))
	assert.Zero(t, TransferBytes(report.Number{}))
}

func TestFinalizePath(t *testing.T) {
	items := []RawChainItem{
		{URL: docURL, StartTime: 100, ResponseReceivedTime: 150, EndTime: 300, TransferSize: 10, ResourceType: ResourceScript},
		{URL: cssURL, StartTime: 300, ResponseReceivedTime: 350, EndTime: 600, TransferSize: 20, ResourceType: "Stylesheet", Depth: 1},
		{URL: "https://example.com/x", StartTime: 350, ResponseReceivedTime: 500, EndTime: 400, TransferSize: 5, ResourceType: "media", Depth: 2},
	}

	p := FinalizePath("root", items)
	assert.Equal(t, "root", p.ID)
	assert.Equal(t, 100.0, p.StartTime)
	assert.Equal(t, 400.0, p.EndTime)
	assert.Equal(t, 300.0, p.TotalDuration)
	assert.Equal(t, int64(35), p.TotalTransferSize)

	require.Len(t, p.Nodes, 3)
	assert.Equal(t, ResourceDocument, p.Nodes[0].ResourceType, "first node is always the document")
	assert.Equal(t, ResourceStylesheet, p.Nodes[1].ResourceType)
	assert.Equal(t, ResourceOther, p.Nodes[2].ResourceType)

	assert.Equal(t, 50.0, p.Nodes[0].Latency)
	assert.Equal(t, 150.0, p.Nodes[0].DownloadTime)
	assert.Equal(t, 200.0, p.Nodes[0].Duration)
	assert.InDelta(t, 200.0/300.0, p.Nodes[0].Contribution, 1e-9)

	assert.Equal(t, 200.0, p.Nodes[1].StartOffset)
	assert.InDelta(t, 1.0, p.Nodes[1].Contribution, 1e-9, "overlapping nodes may exceed the path span")

	// Response after end: download is clamped.
	assert.Equal(t, 150.0, p.Nodes[2].Latency)
	assert.Zero(t, p.Nodes[2].DownloadTime)
}

func TestFinalizeEmptyPath(t *testing.T) {
	p := FinalizePath("empty", nil)
	assert.Equal(t, "empty", p.ID)
	assert.NotNil(t, p.Nodes)
	assert.Empty(t, p.Nodes)
	assert.Zero(t, p.TotalDuration)
	assert.Zero(t, p.TotalTransferSize)
}

func TestZeroDurationPathHasZeroContribution(t *testing.T) {
	p := FinalizePath("flat", []RawChainItem{
		{URL: docURL, StartTime: 100, EndTime: 100},
		{URL: cssURL, StartTime: 100, EndTime: 100},
	})
	assert.Zero(t, p.TotalDuration)
	for _, n := range p.Nodes {
		assert.Zero(t, n.Contribution)
	}
	assert.Nil(t, IdentifyBottleneck(p.Nodes, p.TotalDuration))
}

func TestIdentifyBottleneck(t *testing.T) {
	nodes := []CriticalChainItem{
		{URL: "a", Duration: 100, Latency: 80, DownloadTime: 20},
		{URL: "b", Duration: 300},
		{URL: "c", Duration: 300},
	}

	bn := IdentifyBottleneck(nodes, 1000)
	require.NotNil(t, bn)
	assert.Equal(t, "b", bn.URL(), "first of equal shares wins")
	assert.Equal(t, 0.3, bn.Contribution)
	assert.Equal(t, ImpactHigh, bn.Impact)
	assert.Contains(t, bn.Reason, "30.0%")
	assert.Contains(t, bn.Reason, "1000ms")

	assert.Nil(t, IdentifyBottleneck(nil, 1000))
	assert.Nil(t, IdentifyBottleneck([]CriticalChainItem{}, 1000))
	assert.Nil(t, IdentifyBottleneck(nodes, 0))
	assert.Nil(t, IdentifyBottleneck(nodes, -5))

	var none *ChainBottleneck
	assert.Empty(t, none.URL())
}

func TestClassifyImpact(t *testing.T) {
	tests := []struct {
		share float64
		want  Impact
	}{
		{1.0, ImpactCritical},
		{0.5, ImpactCritical},
		{0.4999, ImpactHigh},
		{0.3, ImpactHigh},
		{0.2999, ImpactMedium},
		{0.15, ImpactMedium},
		{0.1499, ImpactLow},
		{0, ImpactLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyImpact(tt.share), "share %v", tt.share)
	}
}

func TestLCPFallsBackToLaterFinish(t *testing.T) {
	a := AnalyzeInput(Input{Chains: linearChain(), MilestoneMs: ms(100)})
	require.NotNil(t, a)
	require.NotNil(t, a.LCP)

	assert.Equal(t, docURL, a.LCP.CandidateURL)
	assert.False(t, a.LCP.MatchedBeforeLCP)

	// The stylesheet starts exactly when the document ends, so it is
	// already underway and belongs to the prefix.
	require.Len(t, a.LCP.Nodes, 2)
	assert.InDelta(t, 450, a.LCP.DurationToLCP, 1e-9)
	assert.Equal(t, 100.0, a.LCP.LCPTime)
}

func TestLCPRejectsUnusableMilestone(t *testing.T) {
	paths := FinalizeAll(BuildAllPaths(linearChain(), nil))

	assert.Nil(t, ComputeLCPInsight(nil, paths))
	assert.Nil(t, ComputeLCPInsight(ms(-1), paths))
	assert.Nil(t, ComputeLCPInsight(ms(1000), nil))
}

func TestLCPPicksAcrossPaths(t *testing.T) {
	chains := report.ChainMap{
		entry("root", node(req(docURL, 0, 0.1, 0.2, 0),
			entry("css", node(req(cssURL, 0.2, 0.3, 0.9, 0))),
			entry("img", node(req(imageURL, 0.25, 0.3, 1.2, 0))),
		)),
	}

	a := AnalyzeInput(Input{Chains: chains, MilestoneMs: ms(1250)})
	require.NotNil(t, a)
	require.NotNil(t, a.LCP)

	assert.Equal(t, imageURL, a.LCP.CandidateURL)
	assert.Equal(t, 1, a.LCP.PathIndex)
	assert.Equal(t, 1, a.LongestPathIndex)

	// Prefix offsets are relative to the prefix start.
	assert.InDelta(t, 250, a.LCP.Nodes[1].StartOffset, 1e-9)
	assert.InDelta(t, 1200, a.LCP.DurationToLCP, 1e-9)
}

func TestLCPDoesNotAliasPaths(t *testing.T) {
	paths := FinalizeAll(BuildAllPaths(linearChain(), nil))
	before := paths[0].Nodes[2].Contribution

	insight := ComputeLCPInsight(ms(500), paths)
	require.NotNil(t, insight)
	assert.Equal(t, cssURL, insight.CandidateURL)
	assert.Equal(t, before, paths[0].Nodes[2].Contribution)
}

func TestLongestPathIndex(t *testing.T) {
	assert.Equal(t, -1, LongestPathIndex(nil))

	paths := []CriticalChainPath{
		{ID: "a", TotalDuration: 500, Nodes: make([]CriticalChainItem, 2)},
		{ID: "b", TotalDuration: 500, Nodes: make([]CriticalChainItem, 3)},
		{ID: "c", TotalDuration: 500, Nodes: make([]CriticalChainItem, 3)},
		{ID: "d", TotalDuration: 400, Nodes: make([]CriticalChainItem, 9)},
	}
	assert.Equal(t, 1, LongestPathIndex(paths))
}

func TestPreferredBottleneck(t *testing.T) {
	chain := &ChainBottleneck{Node: CriticalChainItem{URL: "chain"}}
	lcpBn := &ChainBottleneck{Node: CriticalChainItem{URL: "lcp"}}

	assert.Same(t, chain, preferredBottleneck(chain, nil))
	assert.Same(t, chain, preferredBottleneck(chain, &LCPInsight{}))
	assert.Same(t, lcpBn, preferredBottleneck(chain, &LCPInsight{Bottleneck: lcpBn}))
	assert.Nil(t, preferredBottleneck(nil, nil))
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	r, _, err := report.Load("../report/testdata/sample.report.json")
	require.NoError(t, err)

	first := Analyze(r)
	second := Analyze(r)
	require.NotNil(t, first)
	assert.Equal(t, first, second)

	assert.Len(t, first.Paths, 2)
	assert.Equal(t, "https://example.com/img/hero.webp", first.LongestPath.Nodes[1].URL)
	assert.Equal(t, ResourceImage, first.LongestPath.Nodes[1].ResourceType)
	assert.Equal(t, ResourceFont, first.Paths[0].Nodes[2].ResourceType)
	require.NotNil(t, first.LCP)
	assert.Equal(t, "https://example.com/img/hero.webp", first.LCP.CandidateURL)

	assertNonNegative(t, first)
}

func assertNonNegative(t *testing.T, a *Analysis) {
	t.Helper()
	for _, p := range a.Paths {
		assert.GreaterOrEqual(t, p.TotalDuration, 0.0)
		assert.GreaterOrEqual(t, p.TotalTransferSize, int64(0))
		for _, n := range p.Nodes {
			assert.GreaterOrEqual(t, n.Duration, 0.0, n.URL)
			assert.GreaterOrEqual(t, n.Latency, 0.0, n.URL)
			assert.GreaterOrEqual(t, n.DownloadTime, 0.0, n.URL)
			assert.GreaterOrEqual(t, n.StartOffset, 0.0, n.URL)
			assert.GreaterOrEqual(t, n.Contribution, 0.0, n.URL)
			if p.TotalDuration == 0 {
				assert.Zero(t, n.Contribution, n.URL)
			}
		}
	}
}
