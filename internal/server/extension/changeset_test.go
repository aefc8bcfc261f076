package extension

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/graphdex/internal/server/graph"
	"github.com/systemshift/graphdex/internal/server/indexing"
)

func docID(id int64) string { return strconv.FormatInt(id, 10) }

// dataListener captures the data of the last committed transaction.
type dataListener struct {
	data *graph.TransactionData
}

func (l *dataListener) BeforeCommit(ctx context.Context, data *graph.TransactionData) (any, error) {
	l.data = data
	return nil, nil
}

func (l *dataListener) AfterCommit(context.Context, *graph.TransactionData, any)   {}
func (l *dataListener) AfterRollback(context.Context, *graph.TransactionData, any) {}

func TestChangeSetEvents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	old := createNode(t, store, []string{"Old"}, map[string]any{"gone": 1})

	l := &dataListener{}
	store.Register(l)

	var fresh int64
	require.NoError(t, store.Update(ctx, func(tx *graph.Tx) error {
		n, err := tx.CreateNode(ctx, "New")
		if err != nil {
			return err
		}
		fresh = n.ID()
		if err := tx.SetProperty(ctx, fresh, "p", "v"); err != nil {
			return err
		}
		return tx.DeleteNode(ctx, old)
	}))

	cs := changeSet{data: l.data}
	events, err := cs.Events()
	require.NoError(t, err)

	type ev struct {
		kind indexing.EventKind
		id   int64
		name string
	}
	var got []ev
	for _, e := range events {
		got = append(got, ev{e.Kind, e.Node.ID(), e.Label + e.Key})
	}
	assert.Equal(t, []ev{
		{indexing.NodeCreated, fresh, ""},
		{indexing.LabelAdded, fresh, "New"},
		{indexing.LabelRemoved, old, "Old"},
		{indexing.PropertyAdded, fresh, "p"},
		{indexing.PropertyRemoved, old, "gone"},
	}, got)

	for _, e := range events {
		assert.Equal(t, e.Node.ID() == old, cs.IsDeleted(e.Node))
	}
}
