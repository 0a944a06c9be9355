package report

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ChainRequest describes one request inside the critical request chain tree.
// Times are in seconds, as written by the audit engine.
type ChainRequest struct {
	URL                  string `json:"url"`
	StartTime            Number `json:"startTime"`
	EndTime              Number `json:"endTime"`
	ResponseReceivedTime Number `json:"responseReceivedTime"`
	TransferSize         Number `json:"transferSize"`
}

// ChainNode is one node of the dependency tree: a request plus the requests
// it triggered. A node whose request is missing or malformed has a nil Request.
type ChainNode struct {
	Request  *ChainRequest `json:"request,omitempty"`
	Children ChainMap      `json:"children,omitempty"`
}

// UnmarshalJSON decodes a node without ever failing. A malformed request
// leaves Request nil; malformed children are dropped.
func (n *ChainNode) UnmarshalJSON(data []byte) error {
	var raw struct {
		Request  json.RawMessage `json:"request"`
		Children ChainMap        `json:"children"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		*n = ChainNode{}
		return nil
	}

	*n = ChainNode{Children: raw.Children}
	if len(raw.Request) == 0 || bytes.Equal(bytes.TrimSpace(raw.Request), []byte("null")) {
		return nil
	}

	var req ChainRequest
	if err := json.Unmarshal(raw.Request, &req); err == nil {
		n.Request = &req
	}
	return nil
}

// ChainEntry is one named child in a ChainMap.
type ChainEntry struct {
	ID   string
	Node *ChainNode
}

// ChainMap is a JSON object of named chain nodes that keeps document order.
// Go maps would shuffle roots and children, and the longest-path tie break
// depends on the order paths are produced.
type ChainMap []ChainEntry

// UnmarshalJSON decodes the object token by token to preserve key order.
// Anything other than an object decodes as an empty map.
func (m *ChainMap) UnmarshalJSON(data []byte) error {
	*m = nil

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil
	}

	var out ChainMap
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("read chain key: %w", err)
		}
		key, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("read chain %q: %w", key, err)
		}

		node := &ChainNode{}
		_ = json.Unmarshal(raw, node)
		out = append(out, ChainEntry{ID: key, Node: node})
	}

	*m = out
	return nil
}

// MarshalJSON writes the map back as an object in its stored order.
func (m ChainMap) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, e := range m {
		if i > 0 {
			b.WriteByte(',')
		}
		key, err := json.Marshal(e.ID)
		if err != nil {
			return nil, err
		}
		b.Write(key)
		b.WriteByte(':')
		node, err := json.Marshal(e.Node)
		if err != nil {
			return nil, err
		}
		b.Write(node)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// Get returns the node stored under id.
func (m ChainMap) Get(id string) (*ChainNode, bool) {
	for _, e := range m {
		if e.ID == id {
			return e.Node, true
		}
	}
	return nil, false
}
