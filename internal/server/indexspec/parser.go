// Package indexspec parses the compact index mapping notation
//
//	index_name:Label(prop1,prop2),other_index:OtherLabel(prop3)
//
// into the label -> index entries table used by the indexing pipeline.
package indexspec

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrDuplicateIndex is matched by every *DuplicateIndexError.
var ErrDuplicateIndex = errors.New("index declared more than once")

// DuplicateIndexError reports an index name that appears in more than one clause.
type DuplicateIndexError struct {
	Index string
}

func (e *DuplicateIndexError) Error() string {
	return fmt.Sprintf("index %q declared more than once", e.Index)
}

func (e *DuplicateIndexError) Is(target error) bool {
	return target == ErrDuplicateIndex
}

// Entry maps one label to one index and the node properties copied into it.
type Entry struct {
	IndexName  string
	Properties []string
}

// Spec maps a label name to the index entries declared for it, in declaration order.
type Spec map[string][]Entry

// Labels returns the indexed label names, sorted.
func (s Spec) Labels() []string {
	labels := make([]string, 0, len(s))
	for l := range s {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// clause is one `index:Label(props)` item before validation.
type clause struct {
	index string
	label string
	props []string
	ok    bool
}

// Parse reads a spec string.
//
// A malformed clause anywhere makes the whole result empty; that is not an
// error. Declaring the same index name twice is the one condition reported as
// an error, and it is checked across all clauses before malformation.
func Parse(spec string) (Spec, error) {
	result := Spec{}
	if strings.TrimSpace(spec) == "" {
		return result, nil
	}

	raw, balanced := splitClauses(spec)
	if !balanced {
		return result, nil
	}

	clauses := make([]clause, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		c := parseClause(r)
		if c.index != "" {
			if _, dup := seen[c.index]; dup {
				return Spec{}, &DuplicateIndexError{Index: c.index}
			}
			seen[c.index] = struct{}{}
		}
		clauses = append(clauses, c)
	}

	for _, c := range clauses {
		if !c.ok {
			return Spec{}, nil
		}
		result[c.label] = append(result[c.label], Entry{IndexName: c.index, Properties: c.props})
	}
	return result, nil
}

// Format renders s in canonical form: labels sorted, entries in declaration order.
func Format(s Spec) string {
	var b strings.Builder
	for _, label := range s.Labels() {
		for _, e := range s[label] {
			if b.Len() > 0 {
				b.WriteByte(',')
			}
			b.WriteString(e.IndexName)
			b.WriteByte(':')
			b.WriteString(label)
			b.WriteByte('(')
			b.WriteString(strings.Join(e.Properties, ","))
			b.WriteByte(')')
		}
	}
	return b.String()
}

// splitClauses splits on commas outside parentheses. The second result is
// false when parentheses are unbalanced or nested.
func splitClauses(spec string) ([]string, bool) {
	var (
		out   []string
		depth int
		start int
	)
	for i, r := range spec {
		switch r {
		case '(':
			depth++
			if depth > 1 {
				return nil, false
			}
		case ')':
			depth--
			if depth < 0 {
				return nil, false
			}
		case ',':
			if depth == 0 {
				out = append(out, spec[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, false
	}
	return append(out, spec[start:]), true
}

func parseClause(raw string) clause {
	var c clause
	s := strings.TrimSpace(raw)

	colon := strings.IndexByte(s, ':')
	if colon < 0 {
		return c
	}
	c.index = strings.TrimSpace(s[:colon])
	if c.index == "" || strings.ContainsAny(c.index, "():") {
		c.index = ""
		return c
	}

	rest := strings.TrimSpace(s[colon+1:])
	open := strings.IndexByte(rest, '(')
	if open < 0 || !strings.HasSuffix(rest, ")") {
		return c
	}
	c.label = strings.TrimSpace(rest[:open])
	if c.label == "" || strings.ContainsAny(c.label, ":)") {
		return c
	}

	inner := rest[open+1 : len(rest)-1]
	if strings.ContainsAny(inner, "():") {
		return c
	}
	dedup := make(map[string]struct{})
	for _, p := range strings.Split(inner, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			return c
		}
		if _, ok := dedup[p]; ok {
			continue
		}
		dedup[p] = struct{}{}
		c.props = append(c.props, p)
	}

	c.ok = true
	return c
}
