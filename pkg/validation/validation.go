// Package validation implements the human review workflow: graph chunks
// built around seed nodes, proposals against them, quorum voting and the
// application of approved proposals to the graph store.
package validation

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/OFFIS-RIT/lexgraph/internal/util"
	"github.com/OFFIS-RIT/lexgraph/pkg/common"
	"github.com/OFFIS-RIT/lexgraph/pkg/store"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrChunkExists     = errors.New("chunk already exists for seed node")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidProposal = errors.New("invalid proposal")
	ErrInvalidVote     = errors.New("invalid vote")
	ErrVotingClosed    = errors.New("voting is closed")
	ErrNotApproved     = errors.New("proposal is not approved")
)

// ChunkFilter narrows ListChunks. Empty fields match everything.
type ChunkFilter struct {
	Status     common.ChunkStatus
	AssignedTo string
	Limit      int
	Offset     int
}

// Repository persists the workflow state. Lookups of missing rows return
// an error wrapping ErrNotFound.
type Repository interface {
	// SaveChunk inserts chunk, or replaces the chunk of the same seed node.
	// chunk.ID is set to the stored id.
	SaveChunk(ctx context.Context, chunk *common.GraphChunk) error
	GetChunk(ctx context.Context, id string) (*common.GraphChunk, error)
	GetChunkBySeed(ctx context.Context, seedNodeID string) (*common.GraphChunk, error)
	ListChunks(ctx context.Context, filter ChunkFilter) ([]common.GraphChunk, error)
	AssignChunk(ctx context.Context, id, userID string) error
	SetChunkStatus(ctx context.Context, id string, status common.ChunkStatus) error

	CreateProposal(ctx context.Context, p *common.Proposal) error
	GetProposal(ctx context.Context, id string) (*common.Proposal, error)
	ListProposals(ctx context.Context, chunkID string) ([]common.Proposal, error)
	// TransitionProposal moves a proposal from one status to another and
	// reports whether it was still in from.
	TransitionProposal(ctx context.Context, id string, from, to common.ProposalStatus, message string) (bool, error)

	// UpsertVote stores a vote, replacing an earlier vote of the same user.
	UpsertVote(ctx context.Context, v common.Vote) error
	ListVotes(ctx context.Context, proposalID string) ([]common.Vote, error)

	CountActiveReviewers(ctx context.Context) (int, error)
}

// Locker serializes proposal application across processes.
type Locker interface {
	WithLease(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// GraphUpdated is published after a proposal was applied.
type GraphUpdated struct {
	ProposalID   string              `json:"proposal_id"`
	ChunkID      string              `json:"chunk_id"`
	SeedNodeID   string              `json:"seed_node_id"`
	ProposalType common.ProposalType `json:"proposal_type"`
	NodeIDs      []string            `json:"node_ids"`
	AppliedAt    time.Time           `json:"applied_at"`
}

type Publisher interface {
	PublishGraphUpdated(ctx context.Context, event GraphUpdated) error
}

// Options configures a Service. Locker defaults to an in-process lock,
// which is only correct for a single server instance.
type Options struct {
	Locker    Locker
	Publisher Publisher
	// AutoApply applies a proposal as soon as it is approved.
	AutoApply  bool
	ApplyRetry *util.BackoffPolicy
	Rand       *rand.Rand
}

type Service struct {
	repo       Repository
	storage    store.GraphStorage
	locker     Locker
	publisher  Publisher
	autoApply  bool
	applyRetry util.BackoffPolicy

	randMu sync.Mutex
	rand   *rand.Rand
	now    func() time.Time
}

func NewService(repo Repository, storage store.GraphStorage, opts Options) *Service {
	s := &Service{
		repo:       repo,
		storage:    storage,
		locker:     opts.Locker,
		publisher:  opts.Publisher,
		autoApply:  opts.AutoApply,
		applyRetry: util.DefaultBackoffPolicy(),
		rand:       opts.Rand,
		now:        time.Now,
	}
	if s.locker == nil {
		s.locker = newLocalLocker()
	}
	if opts.ApplyRetry != nil {
		s.applyRetry = *opts.ApplyRetry
	}
	if s.rand == nil {
		s.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s
}

// localLocker is a keyed in-process mutex.
type localLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLocalLocker() *localLocker {
	return &localLocker{locks: map[string]*sync.Mutex{}}
}

func (l *localLocker) WithLease(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

// VotesRequired is the simple majority of active reviewers, at least one.
func VotesRequired(activeReviewers int) int {
	return max(activeReviewers/2+1, 1)
}

// Resolve derives the status of a pending proposal from its vote counts.
func Resolve(approve, reject, required int) common.ProposalStatus {
	switch {
	case approve >= required:
		return common.ProposalApproved
	case reject >= required:
		return common.ProposalRejected
	}
	return common.ProposalPending
}
