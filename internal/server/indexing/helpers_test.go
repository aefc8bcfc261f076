package indexing

import (
	"context"
	"sync"
	"testing"

	"github.com/systemshift/graphdex/internal/server/indexspec"
)

type testNode struct {
	id     int64
	labels []string
	props  map[string]any
}

func newTestNode(id int64, labels ...string) *testNode {
	return &testNode{id: id, labels: labels, props: map[string]any{}}
}

func (n *testNode) with(key string, value any) *testNode {
	n.props[key] = value
	return n
}

func (n *testNode) ID() int64        { return n.id }
func (n *testNode) Labels() []string { return n.labels }

func (n *testNode) Property(key string) (any, bool) {
	v, ok := n.props[key]
	return v, ok
}

type testChangeSet struct {
	events  []Event
	deleted map[int64]bool
	err     error
}

func (c *testChangeSet) Events() ([]Event, error) { return c.events, c.err }

func (c *testChangeSet) IsDeleted(n Node) bool { return c.deleted[n.ID()] }

func mustSettings(t *testing.T, spec string, includeID, includeLabels bool) *Settings {
	t.Helper()
	s, err := indexspec.Parse(spec)
	if err != nil {
		t.Fatalf("parsing spec %q: %v", spec, err)
	}
	if len(s) == 0 {
		t.Fatalf("spec %q parsed empty", spec)
	}
	return NewSettings(s, includeID, includeLabels)
}

// recordingBackend stores every bulk request it receives.
type recordingBackend struct {
	mu      sync.Mutex
	calls   [][]Operation
	result  *BulkResult
	err     error
	block   chan struct{}
	entered chan struct{}
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{result: &BulkResult{Succeeded: true}}
}

func (b *recordingBackend) Bulk(ctx context.Context, ops []Operation) (*BulkResult, error) {
	if b.entered != nil {
		b.entered <- struct{}{}
	}
	if b.block != nil {
		<-b.block
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, ops)
	return b.result, b.err
}

func (b *recordingBackend) Calls() [][]Operation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]Operation(nil), b.calls...)
}
