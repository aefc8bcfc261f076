package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Node is a view of a graph node. Views handed out by a Tx follow the
// transaction's writes until it finishes; a deleted node keeps the state it
// had when it was deleted.
type Node struct {
	id     int64
	labels []string
	props  map[string]any
}

func newNode(id int64) *Node {
	return &Node{id: id, props: make(map[string]any)}
}

func (n *Node) ID() int64 { return n.id }

// Labels returns the labels in the order they were added.
func (n *Node) Labels() []string {
	return append([]string(nil), n.labels...)
}

func (n *Node) HasLabel(label string) bool {
	for _, l := range n.labels {
		if l == label {
			return true
		}
	}
	return false
}

func (n *Node) Property(key string) (any, bool) {
	v, ok := n.props[key]
	return v, ok
}

// Properties returns a copy of the node's properties.
func (n *Node) Properties() map[string]any {
	m := make(map[string]any, len(n.props))
	for k, v := range n.props {
		m[k] = v
	}
	return m
}

// PropertyKeys returns the property keys in sorted order.
func (n *Node) PropertyKeys() []string {
	keys := make([]string, 0, len(n.props))
	for k := range n.props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (n *Node) addLabel(label string) {
	n.labels = append(n.labels, label)
}

func (n *Node) removeLabel(label string) {
	for i, l := range n.labels {
		if l == label {
			n.labels = append(n.labels[:i:i], n.labels[i+1:]...)
			return
		}
	}
}

// MarshalJSON renders the node for the HTTP API.
func (n *Node) MarshalJSON() ([]byte, error) {
	labels := n.labels
	if labels == nil {
		labels = []string{}
	}
	return json.Marshal(struct {
		ID         int64          `json:"id"`
		Labels     []string       `json:"labels"`
		Properties map[string]any `json:"properties"`
	}{n.id, labels, n.props})
}

// encodeValue validates a property value and returns it in the form it will
// be read back in, along with its stored encoding.
func encodeValue(v any) (any, string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, "", fmt.Errorf("encoding property value: %w", err)
	}
	decoded, err := decodeValue(raw)
	if err != nil {
		return nil, "", err
	}
	return decoded, string(raw), nil
}

// decodeValue reads a stored value. Integral numbers come back as int64.
func decodeValue(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding property value: %w", err)
	}
	return convertNumbers(v), nil
}

func convertNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case []any:
		for i := range t {
			t[i] = convertNumbers(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = convertNumbers(t[k])
		}
		return t
	default:
		return v
	}
}
