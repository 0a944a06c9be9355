package mcpserver

import (
	"context"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func readReq(uri string) *mcp.ReadResourceRequest {
	return &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{URI: uri},
	}
}

func readText(t *testing.T, result *mcp.ReadResourceResult) string {
	t.Helper()
	if len(result.Contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(result.Contents))
	}
	return result.Contents[0].Text
}

func TestRunsResourceEmpty(t *testing.T) {
	srv := newTestServer(t)
	result, err := srv.handleRunsResource(context.Background(), readReq("chainscope://runs"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := readText(t, result)
	if !strings.Contains(text, "(none)") {
		t.Errorf("expected empty marker, got:\n%s", text)
	}
}

func TestRunsResourceWithData(t *testing.T) {
	srv := newTestServer(t)
	analyzeSample(t, srv, "nightly")

	result, err := srv.handleRunsResource(context.Background(), readReq("chainscope://runs"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := readText(t, result)
	if !strings.Contains(text, "Runs (1)") {
		t.Errorf("expected run count, got:\n%s", text)
	}
	if !strings.Contains(text, "nightly example.com/home") {
		t.Errorf("expected label and page, got:\n%s", text)
	}
	if !strings.Contains(text, "example.com/img/hero.webp") {
		t.Errorf("expected bottleneck, got:\n%s", text)
	}
}

func TestRunDetailResource(t *testing.T) {
	srv := newTestServer(t)
	run := analyzeSample(t, srv, "").Run

	uri := "chainscope://runs/" + run.ID
	result, err := srv.handleRunDetailResource(context.Background(), readReq(uri))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Contents[0].URI != uri {
		t.Errorf("expected URI %q, got %q", uri, result.Contents[0].URI)
	}
	text := readText(t, result)
	for _, want := range []string{"Run: " + run.ID, "Lighthouse 12.2.1", "Longest chain", "Largest Contentful Paint"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in:\n%s", want, text)
		}
	}
}

func TestRunDetailResourceNotFound(t *testing.T) {
	srv := newTestServer(t)
	for _, uri := range []string{"chainscope://runs/missing", "chainscope://runs/"} {
		if _, err := srv.handleRunDetailResource(context.Background(), readReq(uri)); err == nil {
			t.Errorf("expected not-found error for %s", uri)
		}
	}
}

func TestBaselinesResource(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleBaselinesResource(ctx, readReq("chainscope://baselines"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text := readText(t, result); !strings.Contains(text, "Baselines (0)") {
		t.Errorf("expected empty baselines, got:\n%s", text)
	}

	run := analyzeSample(t, srv, "").Run
	if err := srv.baselines.Set("before-fix", run.ID, 0); err != nil {
		t.Fatalf("set baseline: %v", err)
	}
	if err := srv.baselines.Set("gone", "evicted-run", 0); err != nil {
		t.Fatalf("set baseline: %v", err)
	}

	result, err = srv.handleBaselinesResource(ctx, readReq("chainscope://baselines"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := readText(t, result)
	if !strings.Contains(text, "before-fix") || !strings.Contains(text, "1800ms") {
		t.Errorf("expected baseline with longest chain, got:\n%s", text)
	}
	if !strings.Contains(text, "evicted") {
		t.Errorf("expected evicted marker, got:\n%s", text)
	}
}

func TestReportSourcesResource(t *testing.T) {
	srv := newTestServer(t)
	result, err := srv.handleReportSourcesResource(context.Background(), readReq("chainscope://report-sources"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text := readText(t, result); !strings.Contains(text, "Report Sources (0)") {
		t.Errorf("unexpected text:\n%s", text)
	}
}

func TestStatsResource(t *testing.T) {
	srv := newTestServer(t)
	analyzeSample(t, srv, "")

	result, err := srv.handleStatsResource(context.Background(), readReq("chainscope://stats"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := readText(t, result)
	if !strings.Contains(text, "Run History") {
		t.Errorf("expected history overview, got:\n%s", text)
	}
	if !strings.Contains(text, "1 of 10 (10%)") {
		t.Errorf("expected usage line, got:\n%s", text)
	}
	if !strings.Contains(text, "memory only") {
		t.Errorf("expected memory-only persistence, got:\n%s", text)
	}
}

func TestRunIDFromURI(t *testing.T) {
	tests := []struct {
		uri, want string
		wantErr   bool
	}{
		{"chainscope://runs/abc", "abc", false},
		{"chainscope://runs/a%20b", "a b", false},
		{"chainscope://runs/", "", true},
		{"other://runs/abc", "", true},
		{"chainscope://runs/%zz", "", true},
	}
	for _, tt := range tests {
		got, err := runIDFromURI(tt.uri)
		if (err != nil) != tt.wantErr {
			t.Errorf("runIDFromURI(%q) error = %v, wantErr %v", tt.uri, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("runIDFromURI(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}

func TestThousandsAndUsage(t *testing.T) {
	for n, want := range map[int]string{
		0:       "0",
		999:     "999",
		1000:    "1,000",
		123456:  "123,456",
		1234567: "1,234,567",
		-1500:   "-1,500",
	} {
		if got := thousands(n); got != want {
			t.Errorf("thousands(%d) = %q, want %q", n, got, want)
		}
	}

	if got := usage(62, 100); got != "62 of 100 (62%)" {
		t.Errorf("usage(62, 100) = %q", got)
	}
	if got := usage(5, 0); got != "5 of unbounded" {
		t.Errorf("usage(5, 0) = %q", got)
	}
}
