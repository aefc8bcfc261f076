package indexing

import (
	"cmp"
	"fmt"
	"slices"
)

// Translator turns a transaction's change set into a Batch. It holds no state
// besides the shared Settings and is safe for concurrent use.
type Translator struct {
	settings *Settings
}

func NewTranslator(settings *Settings) *Translator {
	return &Translator{settings: settings}
}

func (t *Translator) Settings() *Settings {
	return t.settings
}

// Translate computes the index operations for cs. Events are applied in kind
// order (creations, label additions, label removals, property additions,
// property removals), and an operation for a key replaces any earlier one.
func (t *Translator) Translate(cs ChangeSet) (*Batch, error) {
	events, err := cs.Events()
	if err != nil {
		return nil, fmt.Errorf("reading change set: %w", err)
	}

	batch := NewBatch()
	if len(events) == 0 {
		return batch, nil
	}

	ordered := slices.Clone(events)
	slices.SortStableFunc(ordered, func(a, b Event) int {
		return cmp.Compare(a.Kind, b.Kind)
	})

	for _, ev := range ordered {
		if err := validate(ev); err != nil {
			return nil, err
		}

		switch ev.Kind {
		case NodeCreated:
			if t.settings.hasIndexedLabel(ev.Node) {
				batch.PutAll(t.IndexRequests(ev.Node))
			}
		case LabelAdded:
			if !t.settings.HasLabel(ev.Label) {
				continue
			}
			if cs.IsDeleted(ev.Node) {
				batch.PutAll(t.DeleteRequests(ev.Node, ev.Label))
			} else {
				batch.PutAll(t.labelIndexRequests(ev.Node, ev.Label))
			}
		case LabelRemoved:
			if t.settings.HasLabel(ev.Label) {
				batch.PutAll(t.DeleteRequests(ev.Node, ev.Label))
			}
		case PropertyAdded:
			// Deleted nodes were already handled by their removal events.
			if !cs.IsDeleted(ev.Node) && t.settings.hasIndexedLabel(ev.Node) {
				batch.PutAll(t.IndexRequests(ev.Node))
			}
		case PropertyRemoved:
			if !cs.IsDeleted(ev.Node) && t.settings.hasIndexedLabel(ev.Node) {
				batch.PutAll(t.UpdateRequests(ev.Node))
			}
		default:
			return nil, fmt.Errorf("%w: unknown event kind %v", ErrTranslationFault, ev.Kind)
		}
	}
	return batch, nil
}

func validate(ev Event) error {
	if ev.Node == nil {
		return fmt.Errorf("%w: %v event without node", ErrTranslationFault, ev.Kind)
	}
	switch ev.Kind {
	case LabelAdded, LabelRemoved:
		if ev.Label == "" {
			return fmt.Errorf("%w: %v event for node %d without label", ErrTranslationFault, ev.Kind, ev.Node.ID())
		}
	case PropertyAdded, PropertyRemoved:
		if ev.Key == "" {
			return fmt.Errorf("%w: %v event for node %d without key", ErrTranslationFault, ev.Kind, ev.Node.ID())
		}
	}
	return nil
}

// IndexRequests returns one Upsert per index entry of every indexed label
// node holds.
func (t *Translator) IndexRequests(node Node) []Operation {
	return t.documentRequests(node, Upsert)
}

// UpdateRequests is IndexRequests with merge semantics.
func (t *Translator) UpdateRequests(node Node) []Operation {
	return t.documentRequests(node, UpdatePartial)
}

// DeleteRequests returns one Delete per index entry of label.
func (t *Translator) DeleteRequests(node Node, label string) []Operation {
	entries := t.settings.SpecsFor(label)
	if len(entries) == 0 {
		return nil
	}
	id := DocumentID(node)
	ops := make([]Operation, 0, len(entries))
	for _, e := range entries {
		ops = append(ops, Operation{Kind: Delete, Index: e.IndexName, ID: id, Type: label})
	}
	return ops
}

func (t *Translator) documentRequests(node Node, kind OpKind) []Operation {
	var ops []Operation
	for _, label := range node.Labels() {
		ops = append(ops, t.labelRequests(node, label, kind)...)
	}
	return ops
}

func (t *Translator) labelIndexRequests(node Node, label string) []Operation {
	return t.labelRequests(node, label, Upsert)
}

func (t *Translator) labelRequests(node Node, label string, kind OpKind) []Operation {
	entries := t.settings.SpecsFor(label)
	if len(entries) == 0 {
		return nil
	}
	id := DocumentID(node)
	ops := make([]Operation, 0, len(entries))
	for _, e := range entries {
		ops = append(ops, Operation{
			Kind:     kind,
			Index:    e.IndexName,
			ID:       id,
			Type:     label,
			Document: BuildDocument(node, e.Properties, t.settings),
		})
	}
	return ops
}
