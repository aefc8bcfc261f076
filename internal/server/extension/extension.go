// Package extension wires the indexing pipeline into a graph store: it reads
// the index configuration, connects to the search cluster and keeps the
// indexes in step with committed transactions.
package extension

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/systemshift/graphdex/internal/logging"
	"github.com/systemshift/graphdex/internal/server/graph"
	"github.com/systemshift/graphdex/internal/server/indexing"
	"github.com/systemshift/graphdex/internal/server/indexspec"
	"github.com/systemshift/graphdex/internal/server/search"
)

// ErrDisabled is returned for operations that need a running pipeline.
var ErrDisabled = errors.New("index integration is disabled")

// Config holds the integration settings.
type Config struct {
	HostName           string
	IndexSpec          string
	Discovery          bool
	IncludeIDField     bool
	IncludeLabelsField bool
	EnableAutoIndex    bool
	Async              bool
	MappingTypes       bool
	DispatchWorkers    int
	DispatchQueue      int
	Timeout            time.Duration
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		HostName:           "http://localhost:9200",
		IncludeIDField:     true,
		IncludeLabelsField: true,
		EnableAutoIndex:    true,
		Async:              true,
		DispatchWorkers:    4,
		DispatchQueue:      1000,
		Timeout:            30 * time.Second,
	}
}

// Registrar is the part of the store the extension needs.
type Registrar interface {
	Register(l graph.TransactionListener)
	Unregister(l graph.TransactionListener)
}

type Option func(*Extension)

// WithBackend replaces the search cluster client.
func WithBackend(b indexing.Backend) Option {
	return func(e *Extension) { e.backend = b }
}

// Extension owns the pipeline for one store.
type Extension struct {
	store  Registrar
	cfg    Config
	logger logging.Logger

	enabled  bool
	settings *indexing.Settings

	backend    indexing.Backend
	client     *search.Client
	dispatcher *indexing.Dispatcher
	indexer    *indexing.Indexer
	listener   *listener
	started    bool
}

// New parses the index spec. A spec that defines an index twice or cannot
// be parsed disables the extension; the error is logged and the host keeps
// running.
func New(store Registrar, cfg Config, logger logging.Logger, opts ...Option) *Extension {
	e := &Extension{store: store, cfg: cfg, logger: logger, enabled: true}
	for _, o := range opts {
		o(e)
	}

	spec, err := indexspec.Parse(cfg.IndexSpec)
	switch {
	case errors.Is(err, indexspec.ErrDuplicateIndex):
		logger.Errorf("index integration: can't define index twice: %v", err)
		e.enabled = false
	case err != nil:
		logger.Errorf("index integration: %v", err)
		e.enabled = false
	case len(spec) == 0:
		logger.Errorf("index integration: syntax error in index spec %q", cfg.IndexSpec)
		e.enabled = false
	}
	if spec == nil {
		spec = indexspec.Spec{}
	}
	e.settings = indexing.NewSettings(spec, cfg.IncludeIDField, cfg.IncludeLabelsField)

	logger.Infof("index integration: running %s - %s", cfg.HostName, cfg.IndexSpec)
	return e
}

// Init connects to the cluster and, with auto indexing on, starts
// following transactions. It does nothing when the extension is disabled.
func (e *Extension) Init(ctx context.Context) error {
	if !e.enabled || e.started {
		return nil
	}

	if e.backend == nil {
		client, err := search.New(search.Config{
			HostName:     e.cfg.HostName,
			Discovery:    e.cfg.Discovery,
			MappingTypes: e.cfg.MappingTypes,
			Timeout:      e.cfg.Timeout,
		}, e.logger)
		if err != nil {
			return fmt.Errorf("creating search client: %w", err)
		}
		if err := client.Ping(ctx); err != nil {
			e.logger.Warningf("search cluster at %s not reachable yet: %v", e.cfg.HostName, err)
		}
		e.client = client
		e.backend = client
	}

	translator := indexing.NewTranslator(e.settings)
	e.dispatcher = indexing.NewDispatcher(e.backend, e.logger, indexing.DispatcherOptions{
		Workers:   e.cfg.DispatchWorkers,
		QueueSize: e.cfg.DispatchQueue,
		Timeout:   e.cfg.Timeout,
	})
	e.indexer = indexing.NewIndexer(translator, e.dispatcher)

	if e.cfg.EnableAutoIndex {
		mode := indexing.Sync
		if e.cfg.Async {
			mode = indexing.Async
		}
		e.listener = &listener{
			translator: translator,
			dispatcher: e.dispatcher,
			mode:       mode,
			logger:     e.logger,
		}
		e.store.Register(e.listener)
	}

	e.started = true
	e.logger.Infof("index integration: connected to %s", e.cfg.HostName)
	return nil
}

// Shutdown stops following transactions and drains queued batches.
func (e *Extension) Shutdown(ctx context.Context) error {
	if !e.enabled || !e.started {
		return nil
	}
	e.started = false

	if e.listener != nil {
		e.store.Unregister(e.listener)
		e.listener = nil
	}

	var result *multierror.Error
	if err := e.dispatcher.Close(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("closing dispatcher: %w", err))
	}

	e.logger.Infof("index integration: disconnected from %s", e.cfg.HostName)
	return result.ErrorOrNil()
}

// Enabled reports whether the index configuration was accepted.
func (e *Extension) Enabled() bool { return e.enabled }

// Settings returns the live index settings.
func (e *Extension) Settings() *indexing.Settings { return e.settings }

// IndexNode indexes node immediately and reports backend failures.
func (e *Extension) IndexNode(ctx context.Context, node indexing.Node) error {
	if !e.enabled || e.indexer == nil {
		return ErrDisabled
	}
	return e.indexer.IndexNow(ctx, node)
}

// Ping checks the search cluster.
func (e *Extension) Ping(ctx context.Context) error {
	if !e.enabled {
		return ErrDisabled
	}
	if e.client == nil {
		return nil
	}
	return e.client.Ping(ctx)
}

func (e *Extension) Metrics() []prometheus.Collector {
	if e.dispatcher == nil {
		return nil
	}
	return e.dispatcher.Metrics()
}
