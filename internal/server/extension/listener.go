package extension

import (
	"context"
	"fmt"

	"github.com/systemshift/graphdex/internal/logging"
	"github.com/systemshift/graphdex/internal/server/graph"
	"github.com/systemshift/graphdex/internal/server/indexing"
)

// listener translates each transaction before it commits and hands the
// resulting batch to the dispatcher once it has.
type listener struct {
	translator *indexing.Translator
	dispatcher *indexing.Dispatcher
	mode       indexing.Mode
	logger     logging.Logger
}

func (l *listener) BeforeCommit(ctx context.Context, data *graph.TransactionData) (any, error) {
	if data.Empty() {
		return nil, nil
	}
	batch, err := l.translator.Translate(changeSet{data: data})
	if err != nil {
		return nil, fmt.Errorf("translating transaction: %w", err)
	}
	return batch, nil
}

func (l *listener) AfterCommit(ctx context.Context, data *graph.TransactionData, state any) {
	batch, ok := state.(*indexing.Batch)
	if !ok || batch.Len() == 0 {
		return
	}
	l.logger.WithField("batch", batch.ID).Tracef("dispatching %d index operations", batch.Len())
	l.dispatcher.Dispatch(ctx, batch, l.mode)
}

func (l *listener) AfterRollback(ctx context.Context, data *graph.TransactionData, state any) {
	if batch, ok := state.(*indexing.Batch); ok && batch.Len() > 0 {
		l.logger.WithField("batch", batch.ID).Debugf("transaction rolled back, discarding %d index operations", batch.Len())
	}
}
