package indexing

import (
	"context"
)

// Indexer indexes single nodes on demand, outside any transaction.
type Indexer struct {
	translator *Translator
	dispatcher *Dispatcher
}

func NewIndexer(translator *Translator, dispatcher *Dispatcher) *Indexer {
	return &Indexer{translator: translator, dispatcher: dispatcher}
}

// IndexNow upserts node into every index its labels map to and waits for the
// backend. Nodes without an indexed label are ignored. Backend failures are
// returned.
func (i *Indexer) IndexNow(ctx context.Context, node Node) error {
	if !i.translator.settings.hasIndexedLabel(node) {
		return nil
	}
	batch := NewBatch()
	batch.PutAll(i.translator.IndexRequests(node))
	return i.dispatcher.Submit(ctx, batch)
}

func (i *Indexer) Settings() *Settings {
	return i.translator.settings
}
