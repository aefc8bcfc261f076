package graph

import (
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
)

func TestNodeFromNeo4j(t *testing.T) {
	in := neo4j.Node{
		Id:     7,
		Labels: []string{"Person", "Author"},
		Props:  map[string]any{"name": "ada", "born": int64(1815)},
	}

	n := nodeFromNeo4j(in)
	assert.Equal(t, int64(7), n.ID())
	assert.Equal(t, []string{"Person", "Author"}, n.Labels())
	assert.Equal(t, map[string]any{"name": "ada", "born": int64(1815)}, n.Properties())

	// The view does not alias the driver's maps.
	in.Props["name"] = "changed"
	v, _ := n.Property("name")
	assert.Equal(t, "ada", v)
}

func TestNodeMarshalJSON(t *testing.T) {
	n := newNode(3)
	b, err := n.MarshalJSON()
	assert.NoError(t, err)
	assert.JSONEq(t, `{"id":3,"labels":[],"properties":{}}`, string(b))
}
