// Package otlpexport converts analyzed runs into OTLP traces so critical
// request chains can be inspected in any tracing backend. Each run becomes
// one trace and each distinct chain request becomes one span parented to the
// request that discovered it.
package otlpexport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/tobert/chainscope/internal/chains"
	"github.com/tobert/chainscope/internal/storage"
)

// ScopeName is the instrumentation scope written on exported spans.
const ScopeName = "github.com/tobert/chainscope"

// Span attribute keys.
const (
	AttrURL          = "http.url"
	AttrBodySize     = "http.response.body.size"
	AttrResourceType = "chainscope.resource_type"
	AttrContribution = "chainscope.contribution"
	AttrLatency      = "chainscope.latency_ms"
	AttrDownload     = "chainscope.download_ms"
	AttrDepth        = "chainscope.depth"
	AttrBottleneck   = "chainscope.bottleneck"
	AttrLCPCandidate = "chainscope.lcp_candidate"
	AttrRunID        = "chainscope.run_id"
	AttrLabel        = "chainscope.label"
	AttrPageURL      = "url.full"
	AttrLHVersion    = "lighthouse.version"
)

// ErrNoChains is returned for runs whose report had nothing to export.
var ErrNoChains = errors.New("run has no critical request chains")

type spanKey struct {
	depth int
	url   string
	start float64
}

// BuildResourceSpans converts a run into a single OTLP resource. Spans are
// timed from the report fetch time plus each request's offset from the
// earliest chain request.
func BuildResourceSpans(run *storage.Run) (*tracepb.ResourceSpans, error) {
	if run == nil {
		return nil, fmt.Errorf("run cannot be nil")
	}
	a := run.Analysis
	if a == nil || len(a.Paths) == 0 {
		return nil, ErrNoChains
	}

	traceID := TraceID(run.ID)
	base := run.FetchTime
	if base.IsZero() {
		base = run.AnalyzedAt
	}

	minStart := math.Inf(1)
	for _, p := range a.Paths {
		for _, n := range p.Nodes {
			minStart = min(minStart, n.StartTime)
		}
	}

	bottleneckURL := a.Bottleneck.URL()
	lcpURL := ""
	if a.LCP != nil {
		lcpURL = a.LCP.CandidateURL
	}

	seen := make(map[spanKey]struct{})
	var spans []*tracepb.Span
	for _, p := range a.Paths {
		var parent []byte
		for _, n := range p.Nodes {
			key := spanKey{depth: n.Depth, url: n.URL, start: n.StartTime}
			id := spanID(key)
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				spans = append(spans, buildSpan(n, traceID, id, parent, base, minStart, bottleneckURL, lcpURL))
			}
			parent = id
		}
	}

	resAttrs := []*commonpb.KeyValue{
		stringAttr("service.name", "chainscope"),
		stringAttr(AttrRunID, run.ID),
		stringAttr(AttrPageURL, run.URL),
	}
	if run.Label != "" {
		resAttrs = append(resAttrs, stringAttr(AttrLabel, run.Label))
	}
	if run.LighthouseVersion != "" {
		resAttrs = append(resAttrs, stringAttr(AttrLHVersion, run.LighthouseVersion))
	}

	return &tracepb.ResourceSpans{
		Resource: &resourcepb.Resource{Attributes: resAttrs},
		ScopeSpans: []*tracepb.ScopeSpans{{
			Scope: &commonpb.InstrumentationScope{Name: ScopeName},
			Spans: spans,
		}},
	}, nil
}

func buildSpan(n chains.CriticalChainItem, traceID, id, parent []byte, base time.Time, minStart float64, bottleneckURL, lcpURL string) *tracepb.Span {
	start := offset(base, n.StartTime-minStart)
	end := offset(base, max(n.EndTime, n.StartTime)-minStart)

	attrs := []*commonpb.KeyValue{
		stringAttr(AttrURL, n.URL),
		stringAttr(AttrResourceType, string(n.ResourceType)),
		doubleAttr(AttrContribution, n.Contribution),
		intAttr(AttrBodySize, n.TransferSize),
		doubleAttr(AttrLatency, n.Latency),
		doubleAttr(AttrDownload, n.DownloadTime),
		intAttr(AttrDepth, int64(n.Depth)),
	}
	if bottleneckURL != "" && n.URL == bottleneckURL {
		attrs = append(attrs, boolAttr(AttrBottleneck, true))
	}
	if lcpURL != "" && n.URL == lcpURL {
		attrs = append(attrs, boolAttr(AttrLCPCandidate, true))
	}

	return &tracepb.Span{
		TraceId:           traceID,
		SpanId:            id,
		ParentSpanId:      parent,
		Name:              spanName(n),
		Kind:              tracepb.Span_SPAN_KIND_CLIENT,
		StartTimeUnixNano: start,
		EndTimeUnixNano:   end,
		Attributes:        attrs,
	}
}

// TraceID derives a 16 byte trace id from a run id. Run ids are UUIDs; any
// other id is hashed.
func TraceID(runID string) []byte {
	if u, err := uuid.Parse(runID); err == nil {
		return u[:]
	}
	id := make([]byte, 16)
	binary.BigEndian.PutUint64(id[:8], xxhash.Sum64String(runID))
	binary.BigEndian.PutUint64(id[8:], xxhash.Sum64String("trace/"+runID))
	return id
}

func spanID(k spanKey) []byte {
	h := xxhash.New()
	fmt.Fprintf(h, "%d|%s|%g", k.depth, k.url, k.start)
	id := make([]byte, 8)
	binary.BigEndian.PutUint64(id, h.Sum64())
	return id
}

func spanName(n chains.CriticalChainItem) string {
	name := n.URL
	if i := strings.Index(name, "://"); i >= 0 {
		name = name[i+3:]
	}
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	return string(n.ResourceType) + " " + name
}

func offset(base time.Time, ms float64) uint64 {
	t := base.Add(time.Duration(ms * float64(time.Millisecond)))
	if t.UnixNano() < 0 {
		return 0
	}
	return uint64(t.UnixNano())
}

// SpanCount returns the number of spans in rs.
func SpanCount(rs ...*tracepb.ResourceSpans) int {
	count := 0
	for _, r := range rs {
		for _, ss := range r.GetScopeSpans() {
			count += len(ss.GetSpans())
		}
	}
	return count
}

func stringAttr(key, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: key, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}}}
}

func intAttr(key string, value int64) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: key, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: value}}}
}

func doubleAttr(key string, value float64) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: key, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_DoubleValue{DoubleValue: value}}}
}

func boolAttr(key string, value bool) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: key, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_BoolValue{BoolValue: value}}}
}
