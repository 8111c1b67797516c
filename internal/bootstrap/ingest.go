package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/OFFIS-RIT/lexgraph/internal/config"
	"github.com/OFFIS-RIT/lexgraph/pkg/ai"
	"github.com/OFFIS-RIT/lexgraph/pkg/catalog"
	"github.com/OFFIS-RIT/lexgraph/pkg/checkpoint"
	"github.com/OFFIS-RIT/lexgraph/pkg/graph"
	"github.com/OFFIS-RIT/lexgraph/pkg/leaselock"
	"github.com/OFFIS-RIT/lexgraph/pkg/loader"
	"github.com/OFFIS-RIT/lexgraph/pkg/logger"
	"github.com/OFFIS-RIT/lexgraph/pkg/store"
)

// Locker guards an input against concurrent ingestion.
type Locker interface {
	WithLease(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Ingester runs the batch pipeline for one chunk file at a time.
type Ingester struct {
	Config    config.Config
	Generator ai.TextGenerator
	Registry  *catalog.Registry
	Storage   store.GraphStorage
	Files     loader.FileLoader
	// Locker is optional; without it two runs on the same input may
	// overlap.
	Locker Locker
}

// CheckpointPath returns where the checkpoint of an input lives. Local
// inputs keep it next to the file, S3 inputs under dir.
func CheckpointPath(dir string, loc loader.Location) string {
	if !loc.IsS3() {
		return checkpoint.PathFor(loc.Path)
	}
	return checkpoint.PathFor(filepath.Join(dir, loc.Bucket, filepath.FromSlash(loc.Path)))
}

// Run loads the chunk file at input and processes it. force reprocesses
// every chunk regardless of the checkpoint.
func (in *Ingester) Run(ctx context.Context, input string, force bool) (*graph.BatchReport, error) {
	loc, err := loader.ParseLocation(input)
	if err != nil {
		return nil, err
	}
	if in.Locker == nil {
		return in.run(ctx, loc, force)
	}

	var report *graph.BatchReport
	err = in.Locker.WithLease(ctx, leaselock.InputKey(loc.String()), func(ctx context.Context) error {
		var err error
		report, err = in.run(ctx, loc, force)
		return err
	})
	return report, err
}

func (in *Ingester) run(ctx context.Context, loc loader.Location, force bool) (*graph.BatchReport, error) {
	chunks, err := loader.LoadChunks(ctx, in.Files, loc.String())
	if err != nil {
		return nil, err
	}

	cpPath := CheckpointPath(in.Config.CheckpointDir, loc)
	if err := os.MkdirAll(filepath.Dir(cpPath), 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	cp := checkpoint.OpenFile(cpPath)

	client, err := graph.NewGraphClient(graph.NewGraphClientParams{
		Generator:      in.Generator,
		Registry:       in.Registry,
		Delimiters:     in.Config.Delimiter,
		MaxGleaning:    in.Config.MaxGleaning,
		ParallelChunks: in.Config.ParallelChunks,
		CommitTimeout:  in.Config.CommitTimeout,
		ForceRecreate:  force || in.Config.ForceRecreate,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("[Ingest] Processing input", "input", loc.String(), "chunks", len(chunks), "checkpoint", cpPath, "force", force)
	return client.ProcessChunks(ctx, chunks, cp, in.Storage)
}
