package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/systemshift/graphdex/internal/server/extension"
	"github.com/systemshift/graphdex/internal/server/graph"
)

const (
	optionNameNode  = "node"
	optionNameLabel = "label"
	optionNameNeo4j = "neo4j"
)

func (c *command) initIndexCmd() {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index a node, or every node with a label, right now",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if len(args) > 0 {
				return cmd.Help()
			}

			nodeSet := cmd.Flags().Changed(optionNameNode)
			label := c.config.GetString(optionNameLabel)
			useNeo4j := c.config.GetBool(optionNameNeo4j)
			switch {
			case nodeSet == (label != ""):
				return errors.New("exactly one of --node and --label is required")
			case useNeo4j && label != "":
				return errors.New("--label is not supported with --neo4j")
			}

			logger, err := c.logger(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var (
				reader graph.NodeReader
				store  *graph.Store
			)
			if useNeo4j {
				r, err := graph.NewNeo4jReader(ctx, graph.Neo4jConfig{
					URI:      c.config.GetString(optionNameNeo4jURI),
					Username: c.config.GetString(optionNameNeo4jUser),
					Password: c.config.GetString(optionNameNeo4jPassword),
				})
				if err != nil {
					return err
				}
				defer r.Close(context.Background())
				reader = r
			} else {
				store, err = graph.NewSQLite(ctx, c.storePath(), logger)
				if err != nil {
					return err
				}
				defer store.Close()
				reader = store
			}

			// Auto indexing is off for this command, so no store listener is
			// registered.
			cfg := c.extensionConfig()
			cfg.EnableAutoIndex = false
			cfg.Async = false
			ext := extension.New(store, cfg, logger)
			if !ext.Enabled() {
				return errors.New("index integration is disabled, check --index-spec")
			}
			if err := ext.Init(ctx); err != nil {
				return err
			}
			defer func() {
				if shutdownErr := ext.Shutdown(context.Background()); shutdownErr != nil {
					err = multierror.Append(err, shutdownErr)
				}
			}()

			var ids []int64
			if nodeSet {
				ids = []int64{c.config.GetInt64(optionNameNode)}
			} else {
				if !ext.Settings().HasLabel(label) {
					return fmt.Errorf("label %s is not indexed", label)
				}
				if ids, err = store.NodeIDs(ctx, label); err != nil {
					return err
				}
			}

			for _, id := range ids {
				node, err := reader.GetNode(ctx, id)
				if err != nil {
					return err
				}
				if err := ext.IndexNode(ctx, node); err != nil {
					return fmt.Errorf("indexing node %d: %w", id, err)
				}
				cmd.Printf("indexed node %d\n", id)
			}
			return nil
		},
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return c.config.BindPFlags(cmd.Flags())
		},
	}

	c.setIndexFlags(cmd)
	cmd.Flags().Int64(optionNameNode, 0, "id of the node to index")
	cmd.Flags().String(optionNameLabel, "", "index every node carrying this label")
	cmd.Flags().Bool(optionNameNeo4j, false, "read the node from Neo4j instead of the local store")
	cmd.Flags().String(optionNameNeo4jURI, "bolt://localhost:7687", "Neo4j URI")
	cmd.Flags().String(optionNameNeo4jUser, "neo4j", "Neo4j user")
	cmd.Flags().String(optionNameNeo4jPassword, "", "Neo4j password")

	c.root.AddCommand(cmd)
}
