// Package search adapts the Elasticsearch client to the indexing pipeline's
// Backend: one _bulk request per batch, plus a liveness ping.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/systemshift/graphdex/internal/logging"
	"github.com/systemshift/graphdex/internal/server/indexing"
)

const (
	defaultDiscoveryInterval = time.Minute
	defaultTimeout           = 30 * time.Second
	maxErrorBody             = 4 << 10
)

// Config holds cluster connection settings.
type Config struct {
	// HostName is the base URL of one node, or several separated by commas.
	HostName string
	// Discovery refreshes the node list from the cluster's node info.
	Discovery         bool
	DiscoveryInterval time.Duration
	// MappingTypes sends the document type (the node label) as _type.
	MappingTypes bool
	Timeout      time.Duration
	Transport    http.RoundTripper
}

// Client is safe for concurrent use. Requests rotate over the known nodes.
type Client struct {
	es           *elasticsearch.Client
	logger       logging.Logger
	mappingTypes bool
	timeout      time.Duration
}

// New validates cfg and builds the cluster client. With discovery on, the
// node list is refreshed in the background at the configured interval.
func New(cfg Config, logger logging.Logger) (*Client, error) {
	addrs, err := parseHosts(cfg.HostName)
	if err != nil {
		return nil, err
	}
	if cfg.DiscoveryInterval <= 0 {
		cfg.DiscoveryInterval = defaultDiscoveryInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	esCfg := elasticsearch.Config{
		Addresses:    addrs,
		Transport:    cfg.Transport,
		DisableRetry: true,
	}
	if cfg.Discovery {
		esCfg.DiscoverNodesInterval = cfg.DiscoveryInterval
	}
	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("creating cluster client: %w", err)
	}

	return &Client{
		es:           es,
		logger:       logger,
		mappingTypes: cfg.MappingTypes,
		timeout:      cfg.Timeout,
	}, nil
}

func parseHosts(hostName string) ([]string, error) {
	var hosts []string
	for _, h := range strings.Split(hostName, ",") {
		h = strings.TrimRight(strings.TrimSpace(h), "/")
		if h == "" {
			continue
		}
		u, err := url.Parse(h)
		if err != nil {
			return nil, fmt.Errorf("parsing host %q: %w", h, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("host %q: scheme must be http or https", h)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("host %q: missing address", h)
		}
		hosts = append(hosts, h)
	}
	if len(hosts) == 0 {
		return nil, errors.New("no search host configured")
	}
	return hosts, nil
}

// Discover replaces the node list with the cluster's HTTP-enabled nodes,
// using the scheme of the first configured host.
func (c *Client) Discover() error {
	if err := c.es.DiscoverNodes(); err != nil {
		return fmt.Errorf("discovering nodes: %w", err)
	}
	c.logger.Debugf("search nodes discovered")
	return nil
}

type bulkMeta struct {
	Index string `json:"_index"`
	ID    string `json:"_id"`
	Type  string `json:"_type,omitempty"`
}

// EncodeBulk renders ops as a _bulk request body. Failures wrap
// indexing.ErrInvalidRequest.
func EncodeBulk(ops []indexing.Operation, mappingTypes bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	for _, op := range ops {
		meta := bulkMeta{Index: op.Index, ID: op.ID}
		if mappingTypes {
			meta.Type = op.Type
		}

		var err error
		switch op.Kind {
		case indexing.Upsert:
			if err = enc.Encode(map[string]bulkMeta{"index": meta}); err == nil {
				err = enc.Encode(op.Document)
			}
		case indexing.UpdatePartial:
			if err = enc.Encode(map[string]bulkMeta{"update": meta}); err == nil {
				err = enc.Encode(map[string]indexing.Document{"doc": op.Document})
			}
		case indexing.Delete:
			err = enc.Encode(map[string]bulkMeta{"delete": meta})
		default:
			err = fmt.Errorf("unknown operation kind %v", op.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: encoding %v %s: %w", indexing.ErrInvalidRequest, op.Kind, op.Key(), err)
		}
	}
	return buf.Bytes(), nil
}

type bulkResponse struct {
	Took   int64                              `json:"took"`
	Errors bool                               `json:"errors"`
	Items  []map[string]bulkResponseItemState `json:"items"`
}

type bulkResponseItemState struct {
	Index  string     `json:"_index"`
	ID     string     `json:"_id"`
	Status int        `json:"status"`
	Error  *itemError `json:"error,omitempty"`
}

type itemError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// Bulk implements indexing.Backend.
func (c *Client) Bulk(ctx context.Context, ops []indexing.Operation) (*indexing.BulkResult, error) {
	body, err := EncodeBulk(ops, c.mappingTypes)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	res, err := c.es.Bulk(bytes.NewReader(body), c.es.Bulk.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	result := &indexing.BulkResult{Took: time.Since(start)}

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		result.ErrorMessage = fmt.Sprintf("status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
		return result, nil
	}

	var br bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&br); err != nil {
		return nil, fmt.Errorf("decoding bulk response: %w", err)
	}
	if br.Errors {
		result.ErrorMessage = summarizeItemErrors(br.Items)
		return result, nil
	}
	result.Succeeded = true
	return result, nil
}

// summarizeItemErrors reports the first failing item and how many failed.
func summarizeItemErrors(items []map[string]bulkResponseItemState) string {
	var (
		failed int
		first  string
	)
	for _, item := range items {
		for action, state := range item {
			if state.Error == nil {
				continue
			}
			failed++
			if first == "" {
				first = fmt.Sprintf("%s %s/%s: %s: %s", action, state.Index, state.ID, state.Error.Type, state.Error.Reason)
			}
		}
	}
	if failed == 0 {
		return "bulk request reported errors"
	}
	return fmt.Sprintf("%d of %d items failed, first: %s", failed, len(items), first)
}

// Ping checks that the cluster answers.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return err
	}
	res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("ping: status %d", res.StatusCode)
	}
	return nil
}
