// Package commands implements the lexgraph CLI.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/OFFIS-RIT/lexgraph/internal/bootstrap"
	"github.com/OFFIS-RIT/lexgraph/internal/config"
	"github.com/OFFIS-RIT/lexgraph/internal/util"
	"github.com/OFFIS-RIT/lexgraph/pkg/catalog"
	"github.com/OFFIS-RIT/lexgraph/pkg/store"
)

var (
	cfg       config.Config
	debugFlag bool
	jsonLogs  bool
)

var rootCmd = &cobra.Command{
	Use:           "lexgraph",
	Short:         "Legal knowledge graph pipeline",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		util.LoadEnv()
		cfg = config.Load()
		if cmd.Flags().Changed("debug") {
			cfg.Debug = debugFlag
		}
		if cmd.Flags().Changed("json-logs") {
			cfg.JSONLogs = jsonLogs
		}
		bootstrap.InitLogger(cfg, "lexgraph")
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "log at debug level (DEBUG)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "log as JSON (LOG_JSON)")

	rootCmd.AddCommand(ingestCmd, enqueueCmd, chunksCmd, reviewersCmd, graphCmd, catalogCmd)
}

// Execute runs the CLI. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// openGraph loads the registry and opens the graph backend with the
// registry as label sanitizer.
func openGraph(ctx context.Context) (store.GraphStorage, *catalog.Registry, error) {
	if err := cfg.ValidateGraph(); err != nil {
		return nil, nil, err
	}
	var registry *catalog.Registry
	var err error
	if cfg.Catalog.Source != config.CatalogPostgres {
		registry, err = bootstrap.NewRegistry(ctx, cfg.Catalog, nil)
	} else {
		pool, perr := bootstrap.NewPool(ctx, cfg.DatabaseURL)
		if perr != nil {
			return nil, nil, perr
		}
		defer pool.Close()
		registry, err = bootstrap.NewRegistry(ctx, cfg.Catalog, pool)
	}
	if err != nil {
		return nil, nil, err
	}
	storage, err := bootstrap.NewGraphStorage(ctx, cfg.Graph, registry)
	if err != nil {
		return nil, nil, err
	}
	return storage, registry, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
