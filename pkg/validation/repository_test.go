package validation

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/OFFIS-RIT/lexgraph/pkg/common"
)

// memRepo is an in-memory Repository.
type memRepo struct {
	mu        sync.Mutex
	chunks    map[string]common.GraphChunk
	proposals map[string]common.Proposal
	votes     map[string]map[string]common.Vote
	reviewers int
}

func newMemRepo(reviewers int) *memRepo {
	return &memRepo{
		chunks:    map[string]common.GraphChunk{},
		proposals: map[string]common.Proposal{},
		votes:     map[string]map[string]common.Vote{},
		reviewers: reviewers,
	}
}

func (r *memRepo) SaveChunk(_ context.Context, chunk *common.GraphChunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.chunks {
		if c.SeedNodeID == chunk.SeedNodeID {
			chunk.ID = id
			chunk.CreatedAt = c.CreatedAt
		}
	}
	r.chunks[chunk.ID] = *chunk
	return nil
}

func (r *memRepo) GetChunk(_ context.Context, id string) (*common.GraphChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chunks[id]
	if !ok {
		return nil, fmt.Errorf("chunk %s: %w", id, ErrNotFound)
	}
	return &c, nil
}

func (r *memRepo) GetChunkBySeed(_ context.Context, seed string) (*common.GraphChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.chunks {
		if c.SeedNodeID == seed {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("chunk for %s: %w", seed, ErrNotFound)
}

func (r *memRepo) ListChunks(_ context.Context, f ChunkFilter) ([]common.GraphChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []common.GraphChunk
	for _, c := range r.chunks {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.AssignedTo != "" && c.AssignedTo != f.AssignedTo {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeedNodeID < out[j].SeedNodeID })
	return out, nil
}

func (r *memRepo) AssignChunk(_ context.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chunks[id]
	if !ok {
		return fmt.Errorf("chunk %s: %w", id, ErrNotFound)
	}
	c.AssignedTo = userID
	r.chunks[id] = c
	return nil
}

func (r *memRepo) SetChunkStatus(_ context.Context, id string, status common.ChunkStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chunks[id]
	if !ok {
		return fmt.Errorf("chunk %s: %w", id, ErrNotFound)
	}
	c.Status = status
	r.chunks[id] = c
	return nil
}

func (r *memRepo) CreateProposal(_ context.Context, p *common.Proposal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proposals[p.ID] = *p
	return nil
}

func (r *memRepo) GetProposal(_ context.Context, id string) (*common.Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proposals[id]
	if !ok {
		return nil, fmt.Errorf("proposal %s: %w", id, ErrNotFound)
	}
	return &p, nil
}

func (r *memRepo) ListProposals(_ context.Context, chunkID string) ([]common.Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []common.Proposal
	for _, p := range r.proposals {
		if p.ChunkID == chunkID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) TransitionProposal(_ context.Context, id string, from, to common.ProposalStatus, msg string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proposals[id]
	if !ok {
		return false, fmt.Errorf("proposal %s: %w", id, ErrNotFound)
	}
	if p.Status != from {
		return false, nil
	}
	p.Status = to
	p.ErrorMessage = msg
	r.proposals[id] = p
	return true, nil
}

func (r *memRepo) UpsertVote(_ context.Context, v common.Vote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.votes[v.ProposalID] == nil {
		r.votes[v.ProposalID] = map[string]common.Vote{}
	}
	r.votes[v.ProposalID][v.UserID] = v
	return nil
}

func (r *memRepo) ListVotes(_ context.Context, proposalID string) ([]common.Vote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []common.Vote
	for _, user := range slices.Sorted(maps.Keys(r.votes[proposalID])) {
		out = append(out, r.votes[proposalID][user])
	}
	return out, nil
}

func (r *memRepo) CountActiveReviewers(context.Context) (int, error) {
	return r.reviewers, nil
}
