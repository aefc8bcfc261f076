package search

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/graphdex/internal/logging"
	"github.com/systemshift/graphdex/internal/server/indexing"
	"github.com/systemshift/graphdex/internal/server/search/searchtest"
)

func doc(fields ...indexing.Field) indexing.Document { return fields }

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	c, err := New(cfg, logging.Discard())
	require.NoError(t, err)
	return c
}

func TestEncodeBulk(t *testing.T) {
	ops := []indexing.Operation{
		{Kind: indexing.Upsert, Index: "people", ID: "1", Type: "Person", Document: doc(
			indexing.Field{Name: "id", Value: "1"},
			indexing.Field{Name: "name", Value: "ada"},
		)},
		{Kind: indexing.UpdatePartial, Index: "people", ID: "2", Type: "Person", Document: doc(
			indexing.Field{Name: "id", Value: "2"},
		)},
		{Kind: indexing.Delete, Index: "pets", ID: "3", Type: "Pet"},
	}

	tests := []struct {
		name         string
		mappingTypes bool
		want         string
	}{
		{
			name: "untyped",
			want: `{"index":{"_index":"people","_id":"1"}}` + "\n" +
				`{"id":"1","name":"ada"}` + "\n" +
				`{"update":{"_index":"people","_id":"2"}}` + "\n" +
				`{"doc":{"id":"2"}}` + "\n" +
				`{"delete":{"_index":"pets","_id":"3"}}` + "\n",
		},
		{
			name:         "mapping types",
			mappingTypes: true,
			want: `{"index":{"_index":"people","_id":"1","_type":"Person"}}` + "\n" +
				`{"id":"1","name":"ada"}` + "\n" +
				`{"update":{"_index":"people","_id":"2","_type":"Person"}}` + "\n" +
				`{"doc":{"id":"2"}}` + "\n" +
				`{"delete":{"_index":"pets","_id":"3","_type":"Pet"}}` + "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeBulk(ops, tt.mappingTypes)
			require.NoError(t, err)
			if string(got) != tt.want {
				t.Errorf("got\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestEncodeBulkUnknownKind(t *testing.T) {
	_, err := EncodeBulk([]indexing.Operation{{Kind: indexing.OpKind(42), Index: "i", ID: "1"}}, false)
	assert.ErrorIs(t, err, indexing.ErrInvalidRequest)
}

func TestBulkUnencodableDocument(t *testing.T) {
	srv := searchtest.New()
	defer srv.Close()
	c := newTestClient(t, Config{HostName: srv.URL})

	_, err := c.Bulk(context.Background(), []indexing.Operation{
		{Kind: indexing.Upsert, Index: "people", ID: "1", Document: doc(
			indexing.Field{Name: "ch", Value: make(chan int)},
		)},
	})
	assert.ErrorIs(t, err, indexing.ErrInvalidRequest)
	assert.Empty(t, srv.Bulks())
}

func TestParseHosts(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{in: "http://localhost:9200", want: []string{"http://localhost:9200"}},
		{in: "https://a:9200/, https://b:9200", want: []string{"https://a:9200", "https://b:9200"}},
		{in: "", wantErr: true},
		{in: " , ", wantErr: true},
		{in: "localhost:9200", wantErr: true},
		{in: "ftp://a:21", wantErr: true},
		{in: "http://", wantErr: true},
	}

	for _, tt := range tests {
		hosts, err := parseHosts(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseHosts(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseHosts(%q): %v", tt.in, err)
			continue
		}
		assert.Equal(t, tt.want, hosts, tt.in)
	}
}

func TestBulkAppliesOperations(t *testing.T) {
	srv := searchtest.New()
	defer srv.Close()
	c := newTestClient(t, Config{HostName: srv.URL})
	ctx := context.Background()

	res, err := c.Bulk(ctx, []indexing.Operation{
		{Kind: indexing.Upsert, Index: "people", ID: "1", Document: doc(
			indexing.Field{Name: "name", Value: "ada"},
			indexing.Field{Name: "born", Value: 1815},
		)},
		{Kind: indexing.Upsert, Index: "people", ID: "2", Document: doc(
			indexing.Field{Name: "name", Value: "alan"},
		)},
	})
	require.NoError(t, err)
	assert.True(t, res.Succeeded, res.ErrorMessage)

	res, err = c.Bulk(ctx, []indexing.Operation{
		{Kind: indexing.UpdatePartial, Index: "people", ID: "1", Document: doc(
			indexing.Field{Name: "name", Value: "ada lovelace"},
		)},
		{Kind: indexing.Delete, Index: "people", ID: "2"},
	})
	require.NoError(t, err)
	assert.True(t, res.Succeeded, res.ErrorMessage)

	got, ok := srv.Document("people", "1")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"name": "ada lovelace", "born": float64(1815)}, got)

	_, ok = srv.Document("people", "2")
	assert.False(t, ok)
}

func TestBulkReportsItemFailures(t *testing.T) {
	srv := searchtest.New()
	defer srv.Close()
	c := newTestClient(t, Config{HostName: srv.URL})

	res, err := c.Bulk(context.Background(), []indexing.Operation{
		{Kind: indexing.Upsert, Index: "people", ID: "1", Document: doc()},
		{Kind: indexing.UpdatePartial, Index: "people", ID: "404", Document: doc()},
	})
	require.NoError(t, err)
	assert.False(t, res.Succeeded)
	assert.Contains(t, res.ErrorMessage, "1 of 2 items failed")
	assert.Contains(t, res.ErrorMessage, "document_missing_exception")
}

func TestBulkReportsRejectedRequest(t *testing.T) {
	srv := searchtest.New()
	defer srv.Close()
	srv.FailWith(http.StatusServiceUnavailable)
	c := newTestClient(t, Config{HostName: srv.URL})

	res, err := c.Bulk(context.Background(), []indexing.Operation{
		{Kind: indexing.Delete, Index: "people", ID: "1"},
	})
	require.NoError(t, err)
	assert.False(t, res.Succeeded)
	assert.Contains(t, res.ErrorMessage, "status 503")
}

func TestBulkTransportError(t *testing.T) {
	srv := searchtest.New()
	c := newTestClient(t, Config{HostName: srv.URL})
	srv.Close()

	_, err := c.Bulk(context.Background(), []indexing.Operation{
		{Kind: indexing.Delete, Index: "people", ID: "1"},
	})
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	srv := searchtest.New()
	defer srv.Close()
	c := newTestClient(t, Config{HostName: srv.URL})

	require.NoError(t, c.Ping(context.Background()))

	srv.FailWith(http.StatusInternalServerError)
	assert.Error(t, c.Ping(context.Background()))
}

func TestDiscoverReplacesHosts(t *testing.T) {
	seed := searchtest.New()
	defer seed.Close()
	other := searchtest.New()
	defer other.Close()
	seed.SetNodes(other.Listener.Addr().String())
	c := newTestClient(t, Config{HostName: seed.URL})

	require.NoError(t, c.Discover())

	res, err := c.Bulk(context.Background(), []indexing.Operation{
		{Kind: indexing.Upsert, Index: "people", ID: "1", Document: doc(
			indexing.Field{Name: "name", Value: "ada"},
		)},
	})
	require.NoError(t, err)
	assert.True(t, res.Succeeded, res.ErrorMessage)
	assert.Empty(t, seed.Bulks())
	assert.Len(t, other.Bulks(), 1)
}

func TestDiscoverKeepsReportingNode(t *testing.T) {
	srv := searchtest.New()
	defer srv.Close()
	c := newTestClient(t, Config{HostName: srv.URL})

	require.NoError(t, c.Discover())
	require.NoError(t, c.Ping(context.Background()))
}

func TestBulkRotatesHosts(t *testing.T) {
	a := searchtest.New()
	defer a.Close()
	b := searchtest.New()
	defer b.Close()
	c := newTestClient(t, Config{HostName: a.URL + "," + b.URL})

	for i := 0; i < 4; i++ {
		res, err := c.Bulk(context.Background(), []indexing.Operation{
			{Kind: indexing.Delete, Index: "people", ID: "1"},
		})
		require.NoError(t, err)
		assert.True(t, res.Succeeded, res.ErrorMessage)
	}
	assert.Len(t, a.Bulks(), 2)
	assert.Len(t, b.Bulks(), 2)
}
