// Package report decodes page audit reports (Lighthouse result JSON) into the
// inputs the chain analysis consumes: the critical request chain tree, the
// flat network request list, and the largest contentful paint timestamp.
//
// Decoding is deliberately forgiving. Audit runs that hit page errors produce
// partial reports, so missing audits and malformed fields degrade to empty or
// unset values. Only input that is not JSON at all is an error.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Audit ids read from the report.
const (
	AuditCriticalRequestChains  = "critical-request-chains"
	AuditNetworkRequests        = "network-requests"
	AuditLargestContentfulPaint = "largest-contentful-paint"
)

// Report is the decoded subset of an audit report.
type Report struct {
	LighthouseVersion string
	RequestedURL      string
	FinalURL          string
	FetchTime         time.Time
	RuntimeError      *RuntimeError

	// Chains maps root chain ids to dependency trees, in document order.
	Chains ChainMap

	// NetworkRecords lists every request observed during the load.
	NetworkRecords []NetworkRecord

	// LCP is the largest contentful paint timestamp in milliseconds.
	LCP Number
}

// RuntimeError is the audit engine's top-level failure marker. Its presence
// usually means audits are partial.
type RuntimeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NetworkRecord is one request from the network-requests audit. Times are in
// milliseconds.
type NetworkRecord struct {
	URL          string `json:"url"`
	ResourceType string `json:"resourceType,omitempty"`
	MimeType     string `json:"mimeType,omitempty"`
	TransferSize Number `json:"transferSize"`
	StartTime    Number `json:"startTime"`
	EndTime      Number `json:"endTime"`
	StatusCode   Number `json:"statusCode"`
}

// MilestoneMs returns the largest contentful paint timestamp, or nil when the
// report carries no usable value.
func (r *Report) MilestoneMs() *float64 {
	if r == nil {
		return nil
	}
	return r.LCP.Ptr()
}

// DisplayURL returns the most specific page URL in the report.
func (r *Report) DisplayURL() string {
	if r == nil {
		return ""
	}
	if r.FinalURL != "" {
		return r.FinalURL
	}
	return r.RequestedURL
}

type rawReport struct {
	LighthouseVersion string                     `json:"lighthouseVersion"`
	RequestedURL      string                     `json:"requestedUrl"`
	FinalURL          string                     `json:"finalUrl"`
	FinalDisplayedURL string                     `json:"finalDisplayedUrl"`
	FetchTime         string                     `json:"fetchTime"`
	RuntimeError      *RuntimeError              `json:"runtimeError"`
	Audits            map[string]json.RawMessage `json:"audits"`
}

type chainsAudit struct {
	Details struct {
		Chains ChainMap `json:"chains"`
	} `json:"details"`
}

type networkAudit struct {
	Details struct {
		Items []json.RawMessage `json:"items"`
	} `json:"details"`
}

type numericAudit struct {
	NumericValue Number `json:"numericValue"`
}

// Parse decodes a report from raw JSON.
func Parse(data []byte) (*Report, error) {
	var raw rawReport
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse report JSON: %w", err)
	}

	r := &Report{
		LighthouseVersion: raw.LighthouseVersion,
		RequestedURL:      raw.RequestedURL,
		FinalURL:          raw.FinalURL,
		RuntimeError:      raw.RuntimeError,
	}
	if r.FinalURL == "" {
		r.FinalURL = raw.FinalDisplayedURL
	}
	if raw.FetchTime != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw.FetchTime); err == nil {
			r.FetchTime = t
		}
	}

	if data, ok := raw.Audits[AuditCriticalRequestChains]; ok {
		var audit chainsAudit
		if err := json.Unmarshal(data, &audit); err == nil {
			r.Chains = audit.Details.Chains
		}
	}

	if data, ok := raw.Audits[AuditNetworkRequests]; ok {
		var audit networkAudit
		if err := json.Unmarshal(data, &audit); err == nil {
			r.NetworkRecords = decodeRecords(audit.Details.Items)
		}
	}

	if data, ok := raw.Audits[AuditLargestContentfulPaint]; ok {
		var audit numericAudit
		if err := json.Unmarshal(data, &audit); err == nil {
			r.LCP = audit.NumericValue
		}
	}

	return r, nil
}

// decodeRecords decodes items one at a time so a single malformed record
// does not discard the list.
func decodeRecords(items []json.RawMessage) []NetworkRecord {
	records := make([]NetworkRecord, 0, len(items))
	for _, item := range items {
		var rec NetworkRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			continue
		}
		if rec.URL == "" {
			continue
		}
		records = append(records, rec)
	}
	return records
}

// Decode reads a report from r.
func Decode(r io.Reader) (*Report, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	return Parse(data)
}

// Load reads and parses the report file at path.
func Load(path string) (*Report, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read report %s: %w", path, err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, data, nil
}

// Fingerprint returns a stable content hash of raw report bytes. Leading and
// trailing whitespace is ignored so re-saved files hash the same.
func Fingerprint(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(bytes.TrimSpace(data)))
}
