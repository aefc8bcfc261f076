package extension

import (
	"github.com/systemshift/graphdex/internal/server/graph"
	"github.com/systemshift/graphdex/internal/server/indexing"
)

// changeSet presents a store transaction as indexing events.
type changeSet struct {
	data *graph.TransactionData
}

func (c changeSet) Events() ([]indexing.Event, error) {
	var events []indexing.Event
	for _, n := range c.data.CreatedNodes() {
		events = append(events, indexing.Event{Kind: indexing.NodeCreated, Node: n})
	}
	for _, e := range c.data.AssignedLabels() {
		events = append(events, indexing.Event{Kind: indexing.LabelAdded, Node: e.Node, Label: e.Label})
	}
	for _, e := range c.data.RemovedLabels() {
		events = append(events, indexing.Event{Kind: indexing.LabelRemoved, Node: e.Node, Label: e.Label})
	}
	for _, e := range c.data.AssignedNodeProperties() {
		events = append(events, indexing.Event{Kind: indexing.PropertyAdded, Node: e.Node, Key: e.Key})
	}
	for _, e := range c.data.RemovedNodeProperties() {
		events = append(events, indexing.Event{Kind: indexing.PropertyRemoved, Node: e.Node, Key: e.Key})
	}
	return events, nil
}

func (c changeSet) IsDeleted(n indexing.Node) bool {
	return c.data.IsDeleted(n.ID())
}
