package indexing

import (
	"go.uber.org/atomic"

	"github.com/systemshift/graphdex/internal/server/indexspec"
)

// Settings is the parsed index mapping plus the two document toggles. The
// mapping is fixed after construction; the toggles can be flipped at any time
// and affect documents built afterwards.
type Settings struct {
	spec          indexspec.Spec
	includeID     *atomic.Bool
	includeLabels *atomic.Bool
}

func NewSettings(spec indexspec.Spec, includeIDField, includeLabelsField bool) *Settings {
	cp := make(indexspec.Spec, len(spec))
	for label, entries := range spec {
		cp[label] = append([]indexspec.Entry(nil), entries...)
	}
	return &Settings{
		spec:          cp,
		includeID:     atomic.NewBool(includeIDField),
		includeLabels: atomic.NewBool(includeLabelsField),
	}
}

func (s *Settings) IncludeIDField() bool { return s.includeID.Load() }

func (s *Settings) IncludeLabelsField() bool { return s.includeLabels.Load() }

func (s *Settings) SetIncludeIDField(v bool) { s.includeID.Store(v) }

func (s *Settings) SetIncludeLabelsField(v bool) { s.includeLabels.Store(v) }

// HasLabel reports whether label is mapped to at least one index.
func (s *Settings) HasLabel(label string) bool {
	_, ok := s.spec[label]
	return ok
}

// SpecsFor returns the entries of label, or nil when it is not indexed.
func (s *Settings) SpecsFor(label string) []indexspec.Entry {
	return s.spec[label]
}

// IndexedLabels returns the indexed label names, sorted.
func (s *Settings) IndexedLabels() []string {
	return s.spec.Labels()
}

// Spec returns a copy of the mapping.
func (s *Settings) Spec() indexspec.Spec {
	cp := make(indexspec.Spec, len(s.spec))
	for label, entries := range s.spec {
		cp[label] = append([]indexspec.Entry(nil), entries...)
	}
	return cp
}

// hasIndexedLabel reports whether any label of node is indexed.
func (s *Settings) hasIndexedLabel(node Node) bool {
	for _, l := range node.Labels() {
		if s.HasLabel(l) {
			return true
		}
	}
	return false
}
