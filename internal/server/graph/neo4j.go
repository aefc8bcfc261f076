package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jConfig holds Neo4j connection configuration
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

// Neo4jReader loads nodes from an external Neo4j database so they can be
// indexed on demand.
type Neo4jReader struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4jReader connects to Neo4j and verifies connectivity.
func NewNeo4jReader(ctx context.Context, cfg Neo4jConfig) (*Neo4jReader, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	// Verify connectivity
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("connecting to neo4j: %w", err)
	}

	database := cfg.Database
	if database == "" {
		database = "neo4j"
	}
	return &Neo4jReader{driver: driver, database: database}, nil
}

// Close closes the Neo4j connection
func (r *Neo4jReader) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

// GetNode retrieves a node by its internal id.
func (r *Neo4jReader) GetNode(ctx context.Context, id int64) (*Node, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: r.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `MATCH (n) WHERE id(n) = $id RETURN n`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}

		if !result.Next(ctx) {
			if err := result.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %d", ErrNodeNotFound, id)
		}

		value, _ := result.Record().Get("n")
		nodeData, ok := value.(neo4j.Node)
		if !ok {
			return nil, fmt.Errorf("unexpected result type %T for node %d", value, id)
		}
		return nodeFromNeo4j(nodeData), nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*Node), nil
}

func nodeFromNeo4j(nodeData neo4j.Node) *Node {
	n := newNode(nodeData.Id)
	n.labels = append(n.labels, nodeData.Labels...)
	for k, v := range nodeData.Props {
		n.props[k] = v
	}
	return n
}
