package otlpexport

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	collectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
)

// DefaultTimeout bounds a single export call.
const DefaultTimeout = 10 * time.Second

// Exporter sends traces to an OTLP/gRPC collector.
type Exporter struct {
	Timeout time.Duration
	Verbose bool
}

// Send exports resource spans to the collector at endpoint (host:port) over
// an insecure gRPC connection.
func (e *Exporter) Send(ctx context.Context, endpoint string, rs ...*tracepb.ResourceSpans) error {
	if endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if len(rs) == 0 {
		return nil
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}
	defer conn.Close()

	client := collectortrace.NewTraceServiceClient(conn)
	resp, err := client.Export(ctx, &collectortrace.ExportTraceServiceRequest{ResourceSpans: rs})
	if err != nil {
		return fmt.Errorf("failed to export to %s: %w", endpoint, err)
	}

	if ps := resp.GetPartialSuccess(); ps != nil && ps.GetRejectedSpans() > 0 {
		return fmt.Errorf("collector rejected %d spans: %s", ps.GetRejectedSpans(), ps.GetErrorMessage())
	}

	if e.Verbose {
		log.Printf("📤 Exported %d spans to %s\n", SpanCount(rs...), endpoint)
	}
	return nil
}

// WriteJSONL writes the spans as one line of OTLP JSON, the format the
// collector's file exporter reads and writes.
func WriteJSONL(w io.Writer, rs ...*tracepb.ResourceSpans) error {
	data, err := protojson.Marshal(&tracepb.TracesData{ResourceSpans: rs})
	if err != nil {
		return fmt.Errorf("failed to marshal traces: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write traces: %w", err)
	}
	return nil
}
