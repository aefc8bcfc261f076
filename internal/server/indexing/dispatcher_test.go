package indexing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/graphdex/internal/logging"
)

func batchOf(ops ...Operation) *Batch {
	b := NewBatch()
	b.PutAll(ops)
	return b
}

func TestDispatchEmptyBatchSendsNothing(t *testing.T) {
	backend := newRecordingBackend()
	d := NewDispatcher(backend, logging.Discard(), DispatcherOptions{})

	d.Dispatch(context.Background(), NewBatch(), Sync)
	d.Dispatch(context.Background(), NewBatch(), Async)
	d.Dispatch(context.Background(), nil, Async)
	require.NoError(t, d.Close(context.Background()))

	assert.Empty(t, backend.Calls())
}

func TestDispatchSyncSendsOneBulk(t *testing.T) {
	backend := newRecordingBackend()
	d := NewDispatcher(backend, logging.Discard(), DispatcherOptions{})
	defer d.Close(context.Background())

	d.Dispatch(context.Background(), batchOf(
		Operation{Kind: Upsert, Index: "a", ID: "1"},
		Operation{Kind: Delete, Index: "b", ID: "1"},
	), Sync)

	calls := backend.Calls()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0], 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.Batches.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.Operations.WithLabelValues("delete")))
}

func TestDispatchSyncSwallowsErrors(t *testing.T) {
	backend := newRecordingBackend()
	backend.err = errors.New("connection refused")
	d := NewDispatcher(backend, logging.Discard(), DispatcherOptions{})
	defer d.Close(context.Background())

	// Must not panic or block; the error only reaches the log.
	d.Dispatch(context.Background(), batchOf(Operation{Kind: Upsert, Index: "a", ID: "1"}), Sync)
	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.Batches.WithLabelValues("error")))
}

func TestDispatchAsyncDeliversOnClose(t *testing.T) {
	backend := newRecordingBackend()
	d := NewDispatcher(backend, logging.Discard(), DispatcherOptions{Workers: 2})

	for i := 0; i < 5; i++ {
		d.Dispatch(context.Background(), batchOf(Operation{Kind: Upsert, Index: "a", ID: "1"}), Async)
	}
	require.NoError(t, d.Close(context.Background()))

	assert.Len(t, backend.Calls(), 5)
}

func TestDispatchAsyncDropsWhenQueueFull(t *testing.T) {
	backend := newRecordingBackend()
	backend.block = make(chan struct{})
	backend.entered = make(chan struct{}, 4)
	d := NewDispatcher(backend, logging.Discard(), DispatcherOptions{Workers: 1, QueueSize: 1})

	op := Operation{Kind: Upsert, Index: "a", ID: "1"}
	d.Dispatch(context.Background(), batchOf(op), Async)
	<-backend.entered // worker is busy with the first batch

	d.Dispatch(context.Background(), batchOf(op), Async) // fills the queue
	d.Dispatch(context.Background(), batchOf(op), Async) // dropped

	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.DroppedBatches))

	close(backend.block)
	require.NoError(t, d.Close(context.Background()))
	assert.Len(t, backend.Calls(), 2)
}

func TestDispatchAfterCloseIsDropped(t *testing.T) {
	backend := newRecordingBackend()
	d := NewDispatcher(backend, logging.Discard(), DispatcherOptions{})
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))

	d.Dispatch(context.Background(), batchOf(Operation{Kind: Upsert, Index: "a", ID: "1"}), Async)
	assert.Empty(t, backend.Calls())
	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.DroppedBatches))
}

func TestCloseHonoursContext(t *testing.T) {
	backend := newRecordingBackend()
	backend.block = make(chan struct{})
	backend.entered = make(chan struct{}, 1)
	d := NewDispatcher(backend, logging.Discard(), DispatcherOptions{Workers: 1})

	d.Dispatch(context.Background(), batchOf(Operation{Kind: Upsert, Index: "a", ID: "1"}), Async)
	<-backend.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(backend.block)
}

func TestSubmitErrors(t *testing.T) {
	op := Operation{Kind: Upsert, Index: "a", ID: "1"}

	t.Run("transport", func(t *testing.T) {
		backend := newRecordingBackend()
		backend.err = errors.New("dial tcp: refused")
		d := NewDispatcher(backend, logging.Discard(), DispatcherOptions{})
		defer d.Close(context.Background())

		err := d.Submit(context.Background(), batchOf(op))
		assert.ErrorIs(t, err, ErrIndexUnavailable)
		assert.ErrorIs(t, err, backend.err)
	})

	t.Run("rejected", func(t *testing.T) {
		backend := newRecordingBackend()
		backend.result = &BulkResult{Succeeded: false, ErrorMessage: "mapper_parsing_exception"}
		d := NewDispatcher(backend, logging.Discard(), DispatcherOptions{})
		defer d.Close(context.Background())

		b := batchOf(op)
		err := d.Submit(context.Background(), b)
		var bulkErr *BulkError
		require.ErrorAs(t, err, &bulkErr)
		assert.Equal(t, b.ID, bulkErr.BatchID)
		assert.Contains(t, err.Error(), "mapper_parsing_exception")
	})
}

func TestDispatchAsyncLogsFailures(t *testing.T) {
	op := Operation{Kind: Upsert, Index: "a", ID: "1"}

	tests := []struct {
		name    string
		err     error
		result  *BulkResult
		label   string
		wantLog string
	}{
		{
			name:    "transport",
			err:     errors.New("connection reset"),
			label:   "error",
			wantLog: "problem updating index",
		},
		{
			name:    "rejected",
			result:  &BulkResult{Succeeded: false, ErrorMessage: "es_rejected_execution_exception"},
			label:   "failed",
			wantLog: "index update failed: es_rejected_execution_exception",
		},
		{
			name:    "empty result",
			label:   "failed",
			wantLog: "index update failed: empty bulk result",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newRecordingBackend()
			backend.err = tt.err
			backend.result = tt.result
			var logs bytes.Buffer
			d := NewDispatcher(backend, logging.New(&logs, logrus.DebugLevel), DispatcherOptions{Workers: 1})

			d.Dispatch(context.Background(), batchOf(op), Async)
			require.NoError(t, d.Close(context.Background()))

			assert.Len(t, backend.Calls(), 1)
			assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.Batches.WithLabelValues(tt.label)))
			assert.Equal(t, 0.0, testutil.ToFloat64(d.metrics.Batches.WithLabelValues("success")))
			assert.Contains(t, logs.String(), tt.wantLog)
		})
	}
}

func TestSubmitNilResult(t *testing.T) {
	backend := newRecordingBackend()
	backend.result = nil
	d := NewDispatcher(backend, logging.Discard(), DispatcherOptions{})
	defer d.Close(context.Background())

	err := d.Submit(context.Background(), batchOf(Operation{Kind: Upsert, Index: "a", ID: "1"}))
	var bulkErr *BulkError
	require.ErrorAs(t, err, &bulkErr)
	assert.Equal(t, "empty bulk result", bulkErr.Message)
}

func TestSubmitInvalidRequest(t *testing.T) {
	backend := newRecordingBackend()
	backend.err = fmt.Errorf("%w: encoding upsert a/1: unsupported value", ErrInvalidRequest)
	d := NewDispatcher(backend, logging.Discard(), DispatcherOptions{})
	defer d.Close(context.Background())

	err := d.Submit(context.Background(), batchOf(Operation{Kind: Upsert, Index: "a", ID: "1"}))
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.NotErrorIs(t, err, ErrIndexUnavailable)
	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.Batches.WithLabelValues("invalid")))
	assert.Equal(t, 0.0, testutil.ToFloat64(d.metrics.Batches.WithLabelValues("error")))
}
