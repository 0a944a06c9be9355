package report

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Number is a numeric report field that tolerates whatever the audit engine
// wrote there. Numbers and numeric strings decode normally, null or a missing
// field decodes as unset, and anything else decodes as NaN. Decoding never
// fails, so one bad timestamp cannot take down the rest of a report.
type Number struct {
	value float64
	set   bool
}

// N returns a set Number holding v.
func N(v float64) Number {
	return Number{value: v, set: true}
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = Number{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*n = Number{value: math.NaN(), set: true}
			return nil
		}
		*n = Number{value: parseFloat(s), set: true}
		return nil
	}

	*n = Number{value: parseFloat(string(data)), set: true}
	return nil
}

// MarshalJSON implements json.Marshaler. Unset and non-finite values are
// written as null.
func (n Number) MarshalJSON() ([]byte, error) {
	v, ok := n.Finite()
	if !ok {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, v, 'f', -1, 64), nil
}

// IsSet reports whether the field was present in the source document.
func (n Number) IsSet() bool {
	return n.set
}

// Finite returns the value and true when it is set and finite.
func (n Number) Finite() (float64, bool) {
	if !n.set || math.IsNaN(n.value) || math.IsInf(n.value, 0) {
		return 0, false
	}
	return n.value, true
}

// Or returns the value when it is set and finite, def otherwise.
func (n Number) Or(def float64) float64 {
	if v, ok := n.Finite(); ok {
		return v
	}
	return def
}

// Ptr returns a pointer to the value when it is set and finite, nil otherwise.
func (n Number) Ptr() *float64 {
	v, ok := n.Finite()
	if !ok {
		return nil
	}
	return &v
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
