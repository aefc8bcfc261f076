package indexing

import (
	"errors"
	"fmt"
)

// Node is the read view of a graph node the indexing pipeline needs.
// Implementations must reflect the node's state as seen by the current
// transaction.
type Node interface {
	ID() int64
	Labels() []string
	Property(key string) (any, bool)
}

// EventKind identifies a low-level change. The declaration order is the
// precedence order used by the translator: later kinds overwrite earlier ones.
type EventKind int

const (
	NodeCreated EventKind = iota
	LabelAdded
	LabelRemoved
	PropertyAdded
	PropertyRemoved
)

func (k EventKind) String() string {
	switch k {
	case NodeCreated:
		return "node_created"
	case LabelAdded:
		return "label_added"
	case LabelRemoved:
		return "label_removed"
	case PropertyAdded:
		return "property_added"
	case PropertyRemoved:
		return "property_removed"
	default:
		return fmt.Sprintf("event_kind(%d)", int(k))
	}
}

// Event is one change recorded by the store. Label is set for label events,
// Key for property events.
type Event struct {
	Kind  EventKind
	Node  Node
	Label string
	Key   string
}

// ChangeSet is everything one transaction changed. It is only valid during
// the transaction's pre-commit phase.
type ChangeSet interface {
	Events() ([]Event, error)
	IsDeleted(node Node) bool
}

// ErrTranslationFault is returned when a change set carries an event missing
// data the store always provides.
var ErrTranslationFault = errors.New("translation fault")

// OpKind is the index action of an Operation.
type OpKind int

const (
	// Upsert replaces the whole document.
	Upsert OpKind = iota
	// UpdatePartial merges the document into the stored one.
	UpdatePartial
	Delete
)

func (k OpKind) String() string {
	switch k {
	case Upsert:
		return "upsert"
	case UpdatePartial:
		return "update"
	case Delete:
		return "delete"
	default:
		return fmt.Sprintf("op_kind(%d)", int(k))
	}
}

// Key identifies a document in the index.
type Key struct {
	Index string
	ID    string
}

func (k Key) String() string {
	return k.Index + "/" + k.ID
}

// Operation is one pending index action. Document is nil for deletes.
type Operation struct {
	Kind     OpKind
	Index    string
	ID       string
	Type     string
	Document Document
}

func (o Operation) Key() Key {
	return Key{Index: o.Index, ID: o.ID}
}
