package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/OFFIS-RIT/lexgraph/internal/bootstrap"
	"github.com/OFFIS-RIT/lexgraph/pkg/leaselock"
	"github.com/OFFIS-RIT/lexgraph/pkg/logger"
	"github.com/OFFIS-RIT/lexgraph/pkg/validation"
	vpgx "github.com/OFFIS-RIT/lexgraph/pkg/validation/pgx"
)

var (
	chunksLabel string
	chunksCount int
	chunksForce bool
)

var chunksCmd = &cobra.Command{
	Use:   "chunks",
	Short: "Create review chunks from the graph",
}

var chunksGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Sample seed nodes and store their neighborhoods as chunks",
	Long: `Sample up to --count nodes with --label and store each with its direct
neighborhood as a review chunk. Seeds that already have a chunk are
skipped unless --force is set.

Examples:
  lexgraph chunks generate --label Legge --count 50
  lexgraph chunks generate --label Articolo --count 10 --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withService(ctx, func(svc *validation.Service) error {
			chunks, err := svc.GenerateChunks(ctx, chunksLabel, chunksCount, chunksForce)
			if err != nil {
				return err
			}
			if len(chunks) < chunksCount {
				logger.Warn("Seed pool exhausted", "label", chunksLabel, "requested", chunksCount, "created", len(chunks))
			}
			for _, c := range chunks {
				fmt.Printf("%s\t%s\t%d nodes\t%d edges\n", c.ID, c.SeedNodeID, len(c.Nodes), len(c.Edges))
			}
			return nil
		})
	},
}

var reviewersCmd = &cobra.Command{
	Use:   "reviewers",
	Short: "Manage the reviewers counted for the quorum",
}

var reviewersAddCmd = &cobra.Command{
	Use:   "add <user-id>...",
	Short: "Mark users as active reviewers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setReviewers(cmd.Context(), args, true)
	},
}

var reviewersRemoveCmd = &cobra.Command{
	Use:   "remove <user-id>...",
	Short: "Stop counting users for the quorum",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setReviewers(cmd.Context(), args, false)
	},
}

func setReviewers(ctx context.Context, users []string, active bool) error {
	pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := vpgx.NewRepository(pool)
	for _, u := range users {
		if err := repo.UpsertReviewer(ctx, u, active); err != nil {
			return fmt.Errorf("update reviewer %s: %w", u, err)
		}
	}
	n, err := repo.CountActiveReviewers(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d active reviewers, %d votes required\n", n, validation.VotesRequired(n))
	return nil
}

func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	return bootstrap.NewPool(ctx, cfg.DatabaseURL)
}

// withService runs fn with a validation service backed by Postgres and the
// configured graph.
func withService(ctx context.Context, fn func(*validation.Service) error) error {
	pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	storage, _, err := openGraph(ctx)
	if err != nil {
		return err
	}
	defer storage.Close(context.Background())

	svc := validation.NewService(vpgx.NewRepository(pool), storage, validation.Options{
		Locker: leaselock.New(pool).Guard(leaselock.Options{Wait: true}),
	})
	return fn(svc)
}

func init() {
	chunksGenerateCmd.Flags().StringVar(&chunksLabel, "label", "", "label of the seed nodes")
	chunksGenerateCmd.Flags().IntVar(&chunksCount, "count", 10, "number of chunks to create")
	chunksGenerateCmd.Flags().BoolVar(&chunksForce, "force", false, "replace existing chunks of sampled seeds")
	_ = chunksGenerateCmd.MarkFlagRequired("label")
	chunksCmd.AddCommand(chunksGenerateCmd)

	reviewersCmd.AddCommand(reviewersAddCmd, reviewersRemoveCmd)
}
