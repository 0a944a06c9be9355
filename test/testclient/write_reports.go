package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Simple program that writes synthetic Lighthouse reports into a directory,
// for exercising `chainscope serve --report-dir`.
// Usage: go run write_reports.go <dir> [count] [interval]
// Example: go run write_reports.go ./reports 5 2s
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <dir> [count] [interval]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Example: %s ./reports 5 2s\n", os.Args[0])
		os.Exit(1)
	}

	dir := os.Args[1]
	count := 1
	if len(os.Args) > 2 {
		n, err := strconv.Atoi(os.Args[2])
		if err != nil || n < 1 {
			fmt.Fprintf(os.Stderr, "❌ Invalid count %q\n", os.Args[2])
			os.Exit(1)
		}
		count = n
	}
	interval := time.Duration(0)
	if len(os.Args) > 3 {
		d, err := time.ParseDuration(os.Args[3])
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ Invalid interval %q: %v\n", os.Args[3], err)
			os.Exit(1)
		}
		interval = d
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to create %s: %v\n", dir, err)
		os.Exit(1)
	}

	for i := range count {
		if i > 0 && interval > 0 {
			time.Sleep(interval)
		}

		// Hero image between 0.8s and 2.8s so runs differ
		heroEnd := 0.8 + rand.Float64()*2
		report := buildReport(time.Now(), heroEnd)

		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ Failed to encode report: %v\n", err)
			os.Exit(1)
		}

		// Write to a temp name and rename so watchers never see a partial file
		name := fmt.Sprintf("home-%s.report.json", time.Now().Format("20060102-150405.000"))
		tmp := filepath.Join(dir, name+".tmp")
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "❌ Failed to write report: %v\n", err)
			os.Exit(1)
		}
		if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
			fmt.Fprintf(os.Stderr, "❌ Failed to rename report: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("✅ Wrote %s (hero ends at %.0fms)\n", name, heroEnd*1000)
	}
}

type request struct {
	URL                  string  `json:"url"`
	StartTime            float64 `json:"startTime"`
	EndTime              float64 `json:"endTime"`
	ResponseReceivedTime float64 `json:"responseReceivedTime"`
	TransferSize         int     `json:"transferSize"`
}

type chainNode struct {
	Request  request              `json:"request"`
	Children map[string]chainNode `json:"children,omitempty"`
}

type networkRecord struct {
	URL          string  `json:"url"`
	ResourceType string  `json:"resourceType"`
	StartTime    float64 `json:"startTime"`
	EndTime      float64 `json:"endTime"`
	TransferSize int     `json:"transferSize"`
	StatusCode   int     `json:"statusCode"`
	MimeType     string  `json:"mimeType"`
}

// buildReport returns a report for a page whose document loads a stylesheet
// that pulls in a font and a script that loads the hero image.
func buildReport(fetched time.Time, heroEnd float64) map[string]any {
	const page = "https://shop.example.com/"

	doc := request{URL: page, StartTime: 0, EndTime: 0.22, ResponseReceivedTime: 0.18, TransferSize: 18_400}
	css := request{URL: page + "assets/app.css", StartTime: 0.23, EndTime: 0.41, ResponseReceivedTime: 0.39, TransferSize: 9_100}
	font := request{URL: "https://fonts.example.com/sans.woff2", StartTime: 0.42, EndTime: 0.74, ResponseReceivedTime: 0.7, TransferSize: 31_000}
	js := request{URL: page + "assets/app.js", StartTime: 0.23, EndTime: 0.52, ResponseReceivedTime: 0.47, TransferSize: 64_000}
	hero := request{URL: page + "img/hero.avif", StartTime: 0.53, EndTime: heroEnd, ResponseReceivedTime: heroEnd - 0.05, TransferSize: 212_000}

	chains := map[string]chainNode{
		"DOC": {
			Request: doc,
			Children: map[string]chainNode{
				"CSS": {Request: css, Children: map[string]chainNode{"FONT": {Request: font}}},
				"JS":  {Request: js, Children: map[string]chainNode{"HERO": {Request: hero}}},
			},
		},
	}

	record := func(r request, resourceType, mime string) networkRecord {
		return networkRecord{
			URL:          r.URL,
			ResourceType: resourceType,
			StartTime:    r.StartTime * 1000,
			EndTime:      r.EndTime * 1000,
			TransferSize: r.TransferSize,
			StatusCode:   200,
			MimeType:     mime,
		}
	}

	return map[string]any{
		"lighthouseVersion": "12.2.1",
		"requestedUrl":      page,
		"finalDisplayedUrl": page,
		"fetchTime":         fetched.UTC().Format(time.RFC3339Nano),
		"audits": map[string]any{
			"critical-request-chains": map[string]any{
				"id":      "critical-request-chains",
				"details": map[string]any{"type": "criticalrequestchain", "chains": chains},
			},
			"network-requests": map[string]any{
				"id": "network-requests",
				"details": map[string]any{
					"type": "table",
					"items": []networkRecord{
						record(doc, "Document", "text/html"),
						record(css, "Stylesheet", "text/css"),
						record(js, "Script", "application/javascript"),
						record(font, "Font", "font/woff2"),
						record(hero, "Image", "image/avif"),
					},
				},
			},
			"largest-contentful-paint": map[string]any{
				"id":           "largest-contentful-paint",
				"numericValue": heroEnd*1000 + 40,
			},
		},
	}
}
