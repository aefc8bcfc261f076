package indexing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/systemshift/graphdex/internal/logging"
)

// Mode selects whether Dispatch waits for the backend.
type Mode int

const (
	Sync Mode = iota
	Async
)

func (m Mode) String() string {
	if m == Async {
		return "async"
	}
	return "sync"
}

// BulkResult is the backend's verdict on one bulk request. Succeeded is false
// when the backend rejected the request or any item in it.
type BulkResult struct {
	Succeeded    bool
	ErrorMessage string
	Took         time.Duration
}

// Backend submits bulk requests to the document index. A returned error means
// the request did not complete; a rejection is reported through BulkResult.
type Backend interface {
	Bulk(ctx context.Context, ops []Operation) (*BulkResult, error)
}

var (
	// ErrIndexUnavailable wraps transport failures talking to the backend.
	ErrIndexUnavailable = errors.New("index backend unavailable")
	// ErrInvalidRequest is wrapped by backends when a batch cannot be turned
	// into a request. Submit returns it as is.
	ErrInvalidRequest = errors.New("invalid bulk request")
)

// BulkError is returned by Submit when the backend rejected a batch.
type BulkError struct {
	BatchID string
	Message string
}

func (e *BulkError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("bulk request %s failed", e.BatchID)
	}
	return fmt.Sprintf("bulk request %s failed: %s", e.BatchID, e.Message)
}

// DispatcherOptions sizes the async worker pool.
type DispatcherOptions struct {
	Workers   int
	QueueSize int
	// Timeout bounds each async bulk request.
	Timeout time.Duration
}

func (o DispatcherOptions) withDefaults() DispatcherOptions {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 1000
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	return o
}

// Dispatcher sends finished batches to the backend. In async mode batches are
// queued for a fixed pool of workers; the caller never waits on the backend
// and never sees its errors.
type Dispatcher struct {
	backend Backend
	logger  logging.Logger
	opts    DispatcherOptions
	metrics metrics

	mu     sync.RWMutex
	closed bool
	queue  chan *Batch
	group  errgroup.Group
}

func NewDispatcher(backend Backend, logger logging.Logger, opts DispatcherOptions) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{
		backend: backend,
		logger:  logger,
		opts:    opts,
		metrics: newMetrics(),
		queue:   make(chan *Batch, opts.QueueSize),
	}
	for i := 0; i < opts.Workers; i++ {
		d.group.Go(d.worker)
	}
	return d
}

// Dispatch sends batch in the given mode. Failures are logged, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, batch *Batch, mode Mode) {
	if batch.Len() == 0 {
		return
	}

	if mode == Sync {
		if err := d.Submit(ctx, batch); err != nil {
			d.logger.WithError(err).WithField("batch", batch.ID).Warning("error updating index")
		}
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.metrics.DroppedBatches.Inc()
		d.logger.Warningf("dispatcher closed, dropping batch %s with %d operations", batch.ID, batch.Len())
		return
	}
	select {
	case d.queue <- batch:
	default:
		d.metrics.DroppedBatches.Inc()
		d.logger.Warningf("dispatch queue full, dropping batch %s with %d operations", batch.ID, batch.Len())
	}
}

// Submit sends batch and waits for the backend's answer.
func (d *Dispatcher) Submit(ctx context.Context, batch *Batch) error {
	if batch.Len() == 0 {
		return nil
	}

	for _, k := range []OpKind{Upsert, UpdatePartial, Delete} {
		if n := batch.Count(k); n > 0 {
			d.metrics.Operations.WithLabelValues(k.String()).Add(float64(n))
		}
	}

	start := time.Now()
	result, err := d.backend.Bulk(ctx, batch.Operations())
	d.metrics.BulkDuration.Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, ErrInvalidRequest):
		d.metrics.Batches.WithLabelValues("invalid").Inc()
		return err
	case err != nil:
		d.metrics.Batches.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	case result == nil:
		d.metrics.Batches.WithLabelValues("failed").Inc()
		return &BulkError{BatchID: batch.ID, Message: "empty bulk result"}
	}
	if !result.Succeeded {
		d.metrics.Batches.WithLabelValues("failed").Inc()
		return &BulkError{BatchID: batch.ID, Message: result.ErrorMessage}
	}
	d.metrics.Batches.WithLabelValues("success").Inc()
	return nil
}

// Close stops accepting async batches and waits for queued ones to finish,
// or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- d.group.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("waiting for dispatch workers: %w", ctx.Err())
	}
}

func (d *Dispatcher) worker() error {
	for batch := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.opts.Timeout)
		err := d.Submit(ctx, batch)
		cancel()
		d.completed(batch, err)
	}
	return nil
}

// completed reports the outcome of an async batch.
func (d *Dispatcher) completed(batch *Batch, err error) {
	if err == nil {
		d.logger.Debugf("index update succeeded: batch %s, %d operations", batch.ID, batch.Len())
		return
	}
	var bulkErr *BulkError
	if errors.As(err, &bulkErr) {
		d.logger.Errorf("index update failed: %s", bulkErr.Message)
		return
	}
	d.logger.WithError(err).WithField("batch", batch.ID).Warning("problem updating index")
}
