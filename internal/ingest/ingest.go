// Package ingest turns raw audit reports into stored, analyzed runs.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tobert/chainscope/internal/chains"
	"github.com/tobert/chainscope/internal/report"
	"github.com/tobert/chainscope/internal/storage"
)

var (
	// reportsIngested counts ingestion attempts by outcome
	reportsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainscope_reports_ingested_total",
		Help: "Reports ingested by result (stored, duplicate, invalid, error)",
	}, []string{"result"})

	// analysisDuration tracks chain analysis latency
	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chainscope_analysis_duration_seconds",
		Help:    "Chain analysis duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.00005, 2, 14), // 50us to ~400ms
	})

	// chainPaths tracks how many root-to-leaf paths each report produces
	chainPaths = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chainscope_chain_paths",
		Help:    "Critical chain paths per analyzed report",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
	})

	// lcpAttributed counts LCP attributions by bottleneck impact
	lcpAttributed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainscope_lcp_attributed_total",
		Help: "Reports whose LCP was attributed to a chain node, by bottleneck impact",
	}, []string{"impact"})
)

// Ingester parses, analyzes and stores reports.
type Ingester struct {
	store   *storage.RunStore
	verbose bool
	now     func() time.Time
}

// New creates an ingester writing to store.
func New(store *storage.RunStore, verbose bool) (*Ingester, error) {
	if store == nil {
		return nil, fmt.Errorf("run store cannot be nil")
	}
	return &Ingester{store: store, verbose: verbose, now: time.Now}, nil
}

// Store returns the run history the ingester writes to.
func (in *Ingester) Store() *storage.RunStore {
	return in.store
}

// IngestFile reads and ingests the report at path. The path is recorded as
// the run's source.
func (in *Ingester) IngestFile(ctx context.Context, path, label string) (*storage.Run, bool, error) {
	_, data, err := report.Load(path)
	if err != nil {
		reportsIngested.WithLabelValues("invalid").Inc()
		return nil, false, err
	}
	return in.IngestBytes(ctx, data, path, label)
}

// IngestBytes ingests raw report JSON. When identical bytes were already
// ingested, the existing run is returned with duplicate set to true. A
// report without chains is stored with a nil analysis.
func (in *Ingester) IngestBytes(ctx context.Context, data []byte, source, label string) (run *storage.Run, duplicate bool, err error) {
	fingerprint := report.Fingerprint(data)
	if existing, ok := in.store.FindByFingerprint(fingerprint); ok {
		reportsIngested.WithLabelValues("duplicate").Inc()
		if in.verbose {
			log.Printf("♻️  Report from %s already analyzed as run %s", source, existing.ID)
		}
		return existing, true, nil
	}

	r, err := report.Parse(data)
	if err != nil {
		reportsIngested.WithLabelValues("invalid").Inc()
		return nil, false, fmt.Errorf("failed to ingest %s: %w", source, err)
	}

	start := time.Now()
	analysis := chains.Analyze(r)
	analysisDuration.Observe(time.Since(start).Seconds())

	run = &storage.Run{
		ID:                uuid.NewString(),
		Label:             label,
		Source:            source,
		Fingerprint:       fingerprint,
		URL:               r.DisplayURL(),
		LighthouseVersion: r.LighthouseVersion,
		FetchTime:         r.FetchTime,
		AnalyzedAt:        in.now(),
		Analysis:          analysis,
	}
	if r.RuntimeError != nil {
		run.RuntimeError = fmt.Sprintf("%s: %s", r.RuntimeError.Code, r.RuntimeError.Message)
		log.Printf("⚠️  Report %s carries runtime error %s", source, run.RuntimeError)
	}

	if err := ctx.Err(); err != nil {
		reportsIngested.WithLabelValues("error").Inc()
		return nil, false, err
	}
	if err := in.store.Add(ctx, run); err != nil {
		// Another ingest of the same bytes won the race.
		var dup *storage.DuplicateError
		if errors.As(err, &dup) {
			reportsIngested.WithLabelValues("duplicate").Inc()
			return dup.Existing, true, nil
		}
		reportsIngested.WithLabelValues("error").Inc()
		return nil, false, fmt.Errorf("failed to store run: %w", err)
	}

	reportsIngested.WithLabelValues("stored").Inc()
	recordAnalysis(analysis)

	if in.verbose {
		log.Printf("📊 Analyzed %s (%s): %s", source, run.URL, describe(analysis))
	}
	return run, false, nil
}

func recordAnalysis(a *chains.Analysis) {
	if a == nil {
		return
	}
	chainPaths.Observe(float64(len(a.Paths)))
	if a.LCP != nil {
		impact := "none"
		if a.LCP.Bottleneck != nil {
			impact = string(a.LCP.Bottleneck.Impact)
		}
		lcpAttributed.WithLabelValues(impact).Inc()
	}
}

func describe(a *chains.Analysis) string {
	if a == nil {
		return "no critical chains"
	}
	s := fmt.Sprintf("%d paths, longest %.0fms", len(a.Paths), a.TotalDuration)
	if a.Bottleneck != nil {
		s += fmt.Sprintf(", bottleneck %s (%s)", a.Bottleneck.Node.URL, a.Bottleneck.Impact)
	}
	return s
}
