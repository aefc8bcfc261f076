package indexing

import (
	"github.com/google/uuid"
)

// Batch holds at most one Operation per Key. Putting an operation for a key
// that is already present replaces it in place, so iteration order is the
// order in which keys were first seen.
type Batch struct {
	ID    string
	keys  []Key
	ops   map[Key]Operation
	kinds [3]int
}

// NewBatch returns an empty batch with a fresh ID.
func NewBatch() *Batch {
	return &Batch{
		ID:  uuid.New().String(),
		ops: make(map[Key]Operation),
	}
}

// Put stores op, replacing any operation with the same key.
func (b *Batch) Put(op Operation) {
	k := op.Key()
	if prev, ok := b.ops[k]; ok {
		b.kinds[prev.Kind]--
	} else {
		b.keys = append(b.keys, k)
	}
	b.ops[k] = op
	b.kinds[op.Kind]++
}

// PutAll stores every op in order.
func (b *Batch) PutAll(ops []Operation) {
	for _, op := range ops {
		b.Put(op)
	}
}

// Get returns the operation stored for k.
func (b *Batch) Get(k Key) (Operation, bool) {
	op, ok := b.ops[k]
	return op, ok
}

func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.keys)
}

// Count returns how many operations of kind k the batch holds.
func (b *Batch) Count(k OpKind) int {
	if b == nil || k < 0 || int(k) >= len(b.kinds) {
		return 0
	}
	return b.kinds[k]
}

// Operations returns the operations in key insertion order.
func (b *Batch) Operations() []Operation {
	if b.Len() == 0 {
		return nil
	}
	out := make([]Operation, 0, len(b.keys))
	for _, k := range b.keys {
		out = append(out, b.ops[k])
	}
	return out
}
