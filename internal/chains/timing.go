package chains

import (
	"math"
	"net/url"
	"path"
	"strings"

	"github.com/tobert/chainscope/internal/report"
)

// ToMilliseconds converts a chain tree timestamp from seconds to
// milliseconds. Missing, malformed, non-finite and negative values become 0.
func ToMilliseconds(n report.Number) float64 {
	v := n.Or(0)
	if v <= 0 {
		return 0
	}
	ms := v * 1000
	if math.IsInf(ms, 0) {
		return 0
	}
	return ms
}

// TransferBytes converts a transfer size field to whole bytes. Missing or
// malformed sizes are 0.
func TransferBytes(n report.Number) int64 {
	v := n.Or(0)
	if v <= 0 {
		return 0
	}
	if v >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(math.Round(v))
}

// RecordIndex maps request URLs to the lower-cased resource type declared by
// the network record list.
type RecordIndex map[string]string

// NewRecordIndex indexes records by URL. The first record with a non-empty
// resource type wins for duplicated URLs.
func NewRecordIndex(records []report.NetworkRecord) RecordIndex {
	idx := make(RecordIndex, len(records))
	for _, rec := range records {
		if rec.URL == "" || rec.ResourceType == "" {
			continue
		}
		if _, exists := idx[rec.URL]; exists {
			continue
		}
		idx[rec.URL] = strings.ToLower(rec.ResourceType)
	}
	return idx
}

// ResolveResourceType returns the category of a request. Network records
// win; otherwise the root is the navigation document and deeper nodes are
// classified by URL extension.
//
// The result may be a category outside the known set when a network record
// declares one (xhr, fetch, media); NormalizeResourceType folds those.
func ResolveResourceType(rawURL string, depth int, idx RecordIndex) ResourceType {
	if t, ok := idx[rawURL]; ok {
		return ResourceType(t)
	}
	if depth == 0 {
		return ResourceDocument
	}
	return typeFromExtension(rawURL)
}

// NormalizeResourceType folds anything outside the known categories into
// ResourceOther.
func NormalizeResourceType(t ResourceType) ResourceType {
	switch ResourceType(strings.ToLower(string(t))) {
	case ResourceDocument:
		return ResourceDocument
	case ResourceStylesheet:
		return ResourceStylesheet
	case ResourceScript:
		return ResourceScript
	case ResourceImage:
		return ResourceImage
	case ResourceFont:
		return ResourceFont
	default:
		return ResourceOther
	}
}

var extensionTypes = map[string]ResourceType{
	".css":   ResourceStylesheet,
	".js":    ResourceScript,
	".mjs":   ResourceScript,
	".png":   ResourceImage,
	".jpg":   ResourceImage,
	".jpeg":  ResourceImage,
	".gif":   ResourceImage,
	".webp":  ResourceImage,
	".avif":  ResourceImage,
	".svg":   ResourceImage,
	".ico":   ResourceImage,
	".bmp":   ResourceImage,
	".woff":  ResourceFont,
	".woff2": ResourceFont,
	".ttf":   ResourceFont,
	".otf":   ResourceFont,
	".eot":   ResourceFont,
}

func typeFromExtension(rawURL string) ResourceType {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}

	if t, ok := extensionTypes[strings.ToLower(path.Ext(p))]; ok {
		return t
	}
	return ResourceOther
}
