package indexing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Synthetic document fields.
const (
	FieldID     = "id"
	FieldLabels = "labels"
)

// Field is one document entry.
type Field struct {
	Name  string
	Value any
}

// Document is an ordered set of fields. It marshals to a JSON object with the
// fields in order.
type Document []Field

// Get returns the value of the named field.
func (d Document) Get(name string) (any, bool) {
	for _, f := range d {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Names returns the field names in order.
func (d Document) Names() []string {
	names := make([]string, len(d))
	for i, f := range d {
		names[i] = f.Name
	}
	return names
}

// Map returns the fields as an unordered map.
func (d Document) Map() map[string]any {
	m := make(map[string]any, len(d))
	for _, f := range d {
		m[f.Name] = f.Value
	}
	return m
}

func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("marshaling field %q: %w", f.Name, err)
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// DocumentID renders a node id the way documents are keyed in the index.
func DocumentID(node Node) string {
	return strconv.FormatInt(node.ID(), 10)
}

// BuildDocument maps node to a document holding the given properties. The id
// and labels fields come first when enabled in settings; properties the node
// does not have are left out.
func BuildDocument(node Node, properties []string, settings *Settings) Document {
	doc := make(Document, 0, len(properties)+2)

	if settings.IncludeIDField() {
		doc = append(doc, Field{Name: FieldID, Value: DocumentID(node)})
	}
	if settings.IncludeLabelsField() {
		labels := append([]string{}, node.Labels()...)
		doc = append(doc, Field{Name: FieldLabels, Value: labels})
	}
	for _, p := range properties {
		if v, ok := node.Property(p); ok {
			doc = append(doc, Field{Name: p, Value: v})
		}
	}
	return doc
}
