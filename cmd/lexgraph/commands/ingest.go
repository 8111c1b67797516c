package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/OFFIS-RIT/lexgraph/internal/bootstrap"
	"github.com/OFFIS-RIT/lexgraph/internal/queue"
	"github.com/OFFIS-RIT/lexgraph/internal/timing"
	"github.com/OFFIS-RIT/lexgraph/pkg/leaselock"
	"github.com/OFFIS-RIT/lexgraph/pkg/logger"
)

var (
	ingestForce       bool
	ingestParallel    int
	ingestMaxGleaning int
	ingestJSON        bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <input>",
	Short: "Extract a chunk file into the graph",
	Long: `Extract entities and relationships from a JSONL chunk file and merge
them into the graph.

The input is a local path or s3://bucket/key. Processed chunk ids are
recorded in a checkpoint, so an interrupted run resumes where it stopped.

Examples:
  lexgraph ingest data/chunks.jsonl
  lexgraph ingest s3://leggi/2024/chunks.jsonl --parallel 8
  lexgraph ingest data/chunks.jsonl --force`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("parallel") {
			cfg.ParallelChunks = ingestParallel
		}
		if cmd.Flags().Changed("max-gleaning") {
			cfg.MaxGleaning = ingestMaxGleaning
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		ctx := cmd.Context()

		gen, aiClient, err := bootstrap.NewGenerator(cfg.AI)
		if err != nil {
			return err
		}

		storage, registry, err := openGraph(ctx)
		if err != nil {
			return err
		}
		defer storage.Close(context.Background())
		bootstrap.SetupGraphSchema(ctx, storage)

		files, err := bootstrap.NewFileLoader(ctx, cfg.S3)
		if err != nil {
			return err
		}

		ingester := &bootstrap.Ingester{
			Config:    cfg,
			Generator: gen,
			Registry:  registry,
			Storage:   storage,
			Files:     files,
		}
		if cfg.DatabaseURL != "" {
			pool, err := bootstrap.NewPool(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			ingester.Locker = leaselock.New(pool).Guard(leaselock.Options{})
		}

		report, err := ingester.Run(ctx, args[0], ingestForce)
		usage := aiClient.GetMetrics()
		logger.Info(
			"AI Metrics",
			"input_tokens", usage.InputTokens,
			"output_tokens", usage.OutputTokens,
			"total_tokens", usage.TotalTokens,
			"duration", timing.FormatDuration(time.Duration(usage.DurationMs)*time.Millisecond),
		)
		if report != nil && ingestJSON {
			if perr := printJSON(report); perr != nil {
				return perr
			}
		}
		if err != nil {
			return err
		}
		if report.Failed > 0 {
			return fmt.Errorf("%d of %d chunks failed, rerun to retry them", report.Failed, report.Total)
		}
		return nil
	},
}

var enqueueForce bool

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <input>",
	Short: "Queue a chunk file for the ingest workers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		conn, err := queue.Dial(cfg.RabbitMQ)
		if err != nil {
			return err
		}
		defer conn.Close()
		ch, err := conn.Channel()
		if err != nil {
			return fmt.Errorf("open channel: %w", err)
		}
		defer ch.Close()
		if err := queue.SetupQueues(ch, []string{queue.IngestQueue}); err != nil {
			return err
		}

		body, err := queue.EncodeIngest(args[0], enqueueForce)
		if err != nil {
			return err
		}
		if err := queue.PublishFIFO(ctx, ch, queue.IngestQueue, body); err != nil {
			return fmt.Errorf("publish ingest job: %w", err)
		}
		logger.Info("Ingest job queued", "input", args[0], "queue", queue.IngestQueue, "force", enqueueForce)
		return nil
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestForce, "force", false, "reset the checkpoint and reprocess every chunk (FORCE_RECREATE)")
	ingestCmd.Flags().IntVar(&ingestParallel, "parallel", 0, "chunks processed in parallel (PARALLEL_CHUNKS)")
	ingestCmd.Flags().IntVar(&ingestMaxGleaning, "max-gleaning", 0, "continuation rounds per chunk (MAX_GLEANING)")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "print the batch report as JSON")

	enqueueCmd.Flags().BoolVar(&enqueueForce, "force", false, "reprocess every chunk")
}
