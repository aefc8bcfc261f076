package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/systemshift/graphdex/internal/metrics"
	"github.com/systemshift/graphdex/internal/server/api"
	"github.com/systemshift/graphdex/internal/server/extension"
	"github.com/systemshift/graphdex/internal/server/graph"
)

func (c *command) initStartCmd() {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the graph API with index integration",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if len(args) > 0 {
				return cmd.Help()
			}

			logger, err := c.logger(cmd)
			if err != nil {
				return err
			}

			dataDir := c.config.GetString(optionNameDataDir)
			if err := os.MkdirAll(dataDir, 0o755); err != nil {
				return fmt.Errorf("creating data directory: %w", err)
			}

			ctx := cmd.Context()
			store, err := graph.NewSQLite(ctx, c.storePath(), logger)
			if err != nil {
				return err
			}

			ext := extension.New(store, c.extensionConfig(), logger)
			if err := ext.Init(ctx); err != nil {
				store.Close()
				return err
			}

			registry, err := metrics.NewRegistry(ext)
			if err != nil {
				ext.Shutdown(ctx)
				store.Close()
				return fmt.Errorf("registering metrics: %w", err)
			}

			r := chi.NewRouter()
			r.Use(middleware.Logger)
			r.Mount("/", api.New(store, ext, registry, logger).Router())

			addr := c.config.GetString(optionNameAPIAddr)
			srv := &http.Server{
				Addr:         addr,
				Handler:      r,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			serveErr := make(chan error, 1)
			go func() {
				logger.Infof("api address: %s", addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
			}()

			// Graceful shutdown
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			select {
			case <-quit:
				logger.Infof("shutting down")
			case err := <-serveErr:
				logger.Errorf("api server: %v", err)
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			var result *multierror.Error
			if err := srv.Shutdown(shutdownCtx); err != nil {
				result = multierror.Append(result, fmt.Errorf("api server: %w", err))
			}
			if err := ext.Shutdown(shutdownCtx); err != nil {
				result = multierror.Append(result, err)
			}
			if err := store.Close(); err != nil {
				result = multierror.Append(result, fmt.Errorf("closing store: %w", err))
			}
			return result.ErrorOrNil()
		},
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return c.config.BindPFlags(cmd.Flags())
		},
	}

	def := extension.DefaultConfig()
	c.setIndexFlags(cmd)
	cmd.Flags().Bool(optionNameEnableAutoIndex, def.EnableAutoIndex, "index nodes as transactions commit")
	cmd.Flags().Bool(optionNameAsync, def.Async, "send index updates in the background after commit")
	cmd.Flags().Int(optionNameDispatchWorkers, def.DispatchWorkers, "number of background index workers")
	cmd.Flags().Int(optionNameDispatchQueue, def.DispatchQueue, "batches queued for the background workers before new ones are dropped")
	cmd.Flags().String(optionNameAPIAddr, ":8080", "HTTP API listen address")

	c.root.AddCommand(cmd)
}
