package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OFFIS-RIT/lexgraph/pkg/logger"
)

var dropYes bool

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Inspect or wipe the graph",
}

var graphLabelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "List node labels and relationship types",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		storage, _, err := openGraph(ctx)
		if err != nil {
			return err
		}
		defer storage.Close(context.Background())

		labels, err := storage.ListLabels(ctx)
		if err != nil {
			return err
		}
		relTypes, err := storage.ListRelationshipTypes(ctx)
		if err != nil {
			return err
		}
		return printJSON(map[string][]string{
			"labels":             labels,
			"relationship_types": relTypes,
		})
	},
}

var graphDropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Delete every node and relationship",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !dropYes {
			return errors.New("refusing to drop the graph without --yes")
		}
		ctx := cmd.Context()
		storage, _, err := openGraph(ctx)
		if err != nil {
			return err
		}
		defer storage.Close(context.Background())

		if err := storage.DropAll(ctx); err != nil {
			return fmt.Errorf("drop graph: %w", err)
		}
		logger.Info("Graph dropped", "backend", cfg.Graph.Backend)
		return nil
	},
}

func init() {
	graphDropCmd.Flags().BoolVar(&dropYes, "yes", false, "confirm deleting the whole graph")
	graphCmd.AddCommand(graphLabelsCmd, graphDropCmd)
}
