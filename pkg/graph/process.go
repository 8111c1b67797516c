package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/OFFIS-RIT/lexgraph/internal/metrics"
	"github.com/OFFIS-RIT/lexgraph/internal/timing"
	"github.com/OFFIS-RIT/lexgraph/internal/util"
	"github.com/OFFIS-RIT/lexgraph/pkg/checkpoint"
	"github.com/OFFIS-RIT/lexgraph/pkg/common"
	"github.com/OFFIS-RIT/lexgraph/pkg/logger"
	"github.com/OFFIS-RIT/lexgraph/pkg/store"
)

// BatchReport summarizes one ProcessChunks run.
type BatchReport struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	// Remaining counts chunks not attempted because the run was canceled.
	Remaining      int           `json:"remaining"`
	Entities       int           `json:"entities"`
	Relationships  int           `json:"relationships"`
	GleaningRounds int           `json:"gleaning_rounds"`
	Duration       time.Duration `json:"duration"`

	// Graph holds everything committed during this run.
	Graph *Aggregator `json:"-"`
}

func (r *BatchReport) log() {
	logger.Info("[Graph] Batch finished",
		"total", r.Total,
		"processed", r.Processed,
		"skipped", r.Skipped,
		"failed", r.Failed,
		"remaining", r.Remaining,
		"entities", r.Entities,
		"relationships", r.Relationships,
		"gleaning_rounds", r.GleaningRounds,
		"duration", timing.FormatDuration(r.Duration),
	)
}

// ProcessChunks extracts, aggregates and commits chunks, skipping those the
// checkpoint already lists. Every chunk is committed in one storage
// transaction and checkpointed only afterwards, so an interrupted run can
// be resumed without losing or duplicating work.
//
// A failing chunk is logged and counted; the batch carries on. When ctx is
// done no new chunk or LLM call is started, commits already running finish
// on a detached context, the checkpoint is flushed and ctx.Err() is
// returned together with the partial report.
func (g *GraphClient) ProcessChunks(
	ctx context.Context,
	chunks []common.Chunk,
	cp *checkpoint.Store,
	storage store.GraphStorage,
) (*BatchReport, error) {
	if cp == nil || storage == nil {
		return nil, errors.New("process chunks: checkpoint and storage are required")
	}
	sw := timing.NewStopwatch()
	if g.forceRecreate {
		if err := cp.Reset(); err != nil {
			logger.Warn("[Graph] Failed to reset checkpoint", "path", cp.Path(), "err", err)
		}
	}

	report := &BatchReport{Total: len(chunks), Graph: NewAggregator()}
	pending := make([]common.Chunk, 0, len(chunks))
	seen := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		if _, dup := seen[c.ChunkID]; dup || cp.IsProcessed(c.ChunkID) {
			report.Skipped++
			continue
		}
		seen[c.ChunkID] = struct{}{}
		pending = append(pending, c)
	}
	metrics.Chunks.WithLabelValues("skipped").Add(float64(report.Skipped))
	logger.Info("[Graph] Starting batch", "total", report.Total, "pending", len(pending), "skipped", report.Skipped, "parallel", g.parallelChunks)

	var mu sync.Mutex
	eg := errgroup.Group{}
	eg.SetLimit(g.parallelChunks)

	started := 0
	for _, chunk := range pending {
		if ctx.Err() != nil {
			break
		}
		started++
		eg.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				report.Remaining++
				mu.Unlock()
				return nil
			}
			rounds, err := g.processChunk(ctx, chunk, cp, storage, report.Graph)

			mu.Lock()
			defer mu.Unlock()
			report.GleaningRounds += rounds
			switch {
			case err == nil:
				report.Processed++
				metrics.Chunks.WithLabelValues("processed").Inc()
			case ctx.Err() != nil && errors.Is(err, ctx.Err()):
				report.Remaining++
			default:
				report.Failed++
				metrics.Chunks.WithLabelValues("failed").Inc()
				logger.Error("[Graph] Chunk failed", "chunk", chunk.ChunkID, "source", chunk.SourcePath, "err", err)
			}
			return nil
		})
	}
	_ = eg.Wait()
	report.Remaining += len(pending) - started

	if err := cp.Flush(); err != nil {
		logger.Error("[Graph] Failed to flush checkpoint", "path", cp.Path(), "err", err)
	}
	report.Entities, report.Relationships = report.Graph.Len()
	report.Duration = sw.Elapsed()
	report.log()

	if err := ctx.Err(); err != nil {
		logger.Warn("[Graph] Batch interrupted, rerun to resume", "remaining", report.Remaining)
		return report, err
	}
	return report, nil
}

// processChunk runs gleaning for one chunk, commits the result and marks the
// chunk as processed. It returns the number of extraction rounds.
func (g *GraphClient) processChunk(
	ctx context.Context,
	chunk common.Chunk,
	cp *checkpoint.Store,
	storage store.GraphStorage,
	run *Aggregator,
) (int, error) {
	res, err := g.extractChunk(ctx, chunk)
	if err != nil {
		return 0, err
	}
	metrics.GleaningRounds.Observe(float64(res.rounds))

	mutation := BuildMutation(res.graph)
	if err := g.commit(ctx, chunk, storage, mutation); err != nil {
		return res.rounds, err
	}

	if err := cp.MarkProcessed(chunk.ChunkID); err != nil {
		logger.Error("[Graph] Failed to write checkpoint", "chunk", chunk.ChunkID, "path", cp.Path(), "err", err)
	}
	run.MergeFrom(res.graph)

	nodes, edges := res.graph.Len()
	metrics.GraphRecords.WithLabelValues("node").Add(float64(nodes))
	metrics.GraphRecords.WithLabelValues("edge").Add(float64(edges))
	logger.Debug("[Graph] Chunk committed", "chunk", chunk.ChunkID, "nodes", nodes, "edges", edges, "rounds", res.rounds)
	return res.rounds, nil
}

// commit applies m on a context detached from cancellation, retrying
// transient storage errors with backoff.
func (g *GraphClient) commit(ctx context.Context, chunk common.Chunk, storage store.GraphStorage, m store.Mutation) error {
	if m.Empty() {
		return nil
	}
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.commitTimeout)
	defer cancel()

	start := time.Now()
	err := util.RetryErrWithBackoff(commitCtx, g.storeRetry, store.IsTransient,
		func(err error, wait time.Duration) {
			logger.Warn("[Graph] Commit failed, retrying", "chunk", chunk.ChunkID, "wait", wait, "err", err)
		},
		func(ctx context.Context) error {
			return storage.Apply(ctx, m)
		},
	)
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	metrics.StoreApply.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("commit chunk: %w", err)
	}
	return nil
}
