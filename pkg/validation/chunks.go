package validation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/OFFIS-RIT/lexgraph/pkg/common"
	"github.com/OFFIS-RIT/lexgraph/pkg/logger"
	"github.com/OFFIS-RIT/lexgraph/pkg/store"
)

// GenerateChunks samples up to count seed nodes with seedLabel and stores
// one chunk per seed. Seeds that already have a chunk are skipped unless
// forceRecreate is set. Fewer chunks are returned when the pool runs out.
func (s *Service) GenerateChunks(ctx context.Context, seedLabel string, count int, forceRecreate bool) ([]common.GraphChunk, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: count must be positive", ErrInvalidInput)
	}
	ids, err := s.storage.ListNodeIDs(ctx, seedLabel)
	if err != nil {
		if errors.Is(err, store.ErrInvalidIdentifier) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		return nil, fmt.Errorf("list seed nodes: %w", err)
	}

	s.randMu.Lock()
	s.rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	s.randMu.Unlock()

	chunks := make([]common.GraphChunk, 0, min(count, len(ids)))
	for _, id := range ids {
		if len(chunks) == count {
			break
		}
		if err := ctx.Err(); err != nil {
			return chunks, err
		}
		if !forceRecreate {
			exists, err := s.hasChunk(ctx, id)
			if err != nil {
				return chunks, err
			}
			if exists {
				continue
			}
		}
		chunk, err := s.buildChunk(ctx, id)
		if errors.Is(err, store.ErrNodeNotFound) {
			// deleted between listing and fetching
			continue
		}
		if err != nil {
			return chunks, err
		}
		if err := s.repo.SaveChunk(ctx, chunk); err != nil {
			return chunks, fmt.Errorf("save chunk for %s: %w", id, err)
		}
		chunks = append(chunks, *chunk)
	}

	logger.Info("[Validation] Generated chunks", "seed_label", seedLabel, "requested", count, "created", len(chunks), "pool", len(ids))
	return chunks, nil
}

// CreateChunk stores the chunk around one seed node. An existing chunk for
// the seed is replaced only with force.
func (s *Service) CreateChunk(ctx context.Context, seedNodeID string, force bool) (*common.GraphChunk, error) {
	if strings.TrimSpace(seedNodeID) == "" {
		return nil, fmt.Errorf("%w: seed node id is required", ErrInvalidInput)
	}
	if !force {
		exists, err := s.hasChunk(ctx, seedNodeID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%w: %s", ErrChunkExists, seedNodeID)
		}
	}
	chunk, err := s.buildChunk(ctx, seedNodeID)
	if errors.Is(err, store.ErrNodeNotFound) {
		return nil, fmt.Errorf("%w: node %s", ErrNotFound, seedNodeID)
	}
	if err != nil {
		return nil, err
	}
	if err := s.repo.SaveChunk(ctx, chunk); err != nil {
		return nil, fmt.Errorf("save chunk: %w", err)
	}
	logger.Debug("[Validation] Chunk created", "chunk", chunk.ID, "seed", seedNodeID, "nodes", len(chunk.Nodes), "edges", len(chunk.Edges))
	return chunk, nil
}

func (s *Service) hasChunk(ctx context.Context, seedNodeID string) (bool, error) {
	_, err := s.repo.GetChunkBySeed(ctx, seedNodeID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	}
	return false, fmt.Errorf("look up chunk for %s: %w", seedNodeID, err)
}

func (s *Service) buildChunk(ctx context.Context, seedNodeID string) (*common.GraphChunk, error) {
	nb, err := s.storage.GetNeighborhood(ctx, seedNodeID)
	if err != nil {
		return nil, fmt.Errorf("neighborhood of %s: %w", seedNodeID, err)
	}
	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	chunk := &common.GraphChunk{
		ID:         id,
		SeedNodeID: seedNodeID,
		Nodes:      nb.Nodes,
		Edges:      nb.Edges,
		Status:     common.ChunkPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if len(nb.Nodes) > 0 {
		chunk.SeedLabel = nb.Nodes[0].Label
	}
	return chunk, nil
}

func (s *Service) GetChunk(ctx context.Context, id string) (*common.GraphChunk, error) {
	return s.repo.GetChunk(ctx, id)
}

func (s *Service) ListChunks(ctx context.Context, filter ChunkFilter) ([]common.GraphChunk, error) {
	switch filter.Status {
	case "", common.ChunkPending, common.ChunkValidated:
	default:
		return nil, fmt.Errorf("%w: unknown chunk status %q", ErrInvalidInput, filter.Status)
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, fmt.Errorf("%w: negative limit or offset", ErrInvalidInput)
	}
	return s.repo.ListChunks(ctx, filter)
}

// AssignChunk sets the reviewer of a chunk. An empty userID unassigns it.
func (s *Service) AssignChunk(ctx context.Context, id, userID string) (*common.GraphChunk, error) {
	if err := s.repo.AssignChunk(ctx, id, strings.TrimSpace(userID)); err != nil {
		return nil, err
	}
	return s.repo.GetChunk(ctx, id)
}
