package validation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/OFFIS-RIT/lexgraph/internal/metrics"
	"github.com/OFFIS-RIT/lexgraph/internal/util"
	"github.com/OFFIS-RIT/lexgraph/pkg/common"
	"github.com/OFFIS-RIT/lexgraph/pkg/leaselock"
	"github.com/OFFIS-RIT/lexgraph/pkg/logger"
	"github.com/OFFIS-RIT/lexgraph/pkg/store"
)

// ProposalInput is what a reviewer submits.
type ProposalInput struct {
	ChunkID      string              `json:"chunk_id" validate:"required"`
	ProposalType common.ProposalType `json:"proposal_type" validate:"required"`
	OriginalData common.ChangeSet    `json:"original_data"`
	ProposedData common.ChangeSet    `json:"proposed_data"`
	CreatedBy    string              `json:"created_by"`
}

// CreateProposal stores a pending proposal. The quorum is fixed now from the
// number of active reviewers. Proposals that would not translate into a
// valid graph mutation are rejected up front.
func (s *Service) CreateProposal(ctx context.Context, in ProposalInput) (*common.Proposal, error) {
	if !in.ProposalType.Valid() {
		return nil, fmt.Errorf("%w: unknown proposal type %q", ErrInvalidProposal, in.ProposalType)
	}
	if _, err := s.repo.GetChunk(ctx, in.ChunkID); err != nil {
		return nil, err
	}

	p := &common.Proposal{
		ChunkID:      in.ChunkID,
		ProposalType: in.ProposalType,
		OriginalData: in.OriginalData,
		ProposedData: in.ProposedData,
		Status:       common.ProposalPending,
		CreatedBy:    in.CreatedBy,
	}
	if _, err := BuildProposalMutation(*p); err != nil {
		return nil, err
	}

	reviewers, err := s.repo.CountActiveReviewers(ctx)
	if err != nil {
		return nil, fmt.Errorf("count reviewers: %w", err)
	}
	p.VotesRequired = VotesRequired(reviewers)

	if p.ID, err = gonanoid.New(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	if err := s.repo.CreateProposal(ctx, p); err != nil {
		return nil, fmt.Errorf("create proposal: %w", err)
	}
	metrics.Proposals.WithLabelValues(string(common.ProposalPending)).Inc()
	logger.Info("[Validation] Proposal created", "proposal", p.ID, "chunk", p.ChunkID, "type", p.ProposalType, "votes_required", p.VotesRequired)
	return p, nil
}

func (s *Service) ListProposals(ctx context.Context, chunkID string) ([]common.Proposal, error) {
	if _, err := s.repo.GetChunk(ctx, chunkID); err != nil {
		return nil, err
	}
	return s.repo.ListProposals(ctx, chunkID)
}

func (s *Service) GetProposal(ctx context.Context, id string) (*common.Proposal, error) {
	return s.repo.GetProposal(ctx, id)
}

// CastVote records or updates userID's vote and recomputes the proposal
// status. Only pending proposals accept votes.
func (s *Service) CastVote(ctx context.Context, proposalID, userID string, vote common.VoteValue) (*common.Tally, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user is required", ErrInvalidVote)
	}
	if vote != common.VoteApprove && vote != common.VoteReject {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVote, vote)
	}

	p, err := s.repo.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if p.Status != common.ProposalPending {
		return nil, fmt.Errorf("%w: proposal is %s", ErrVotingClosed, p.Status)
	}

	if err := s.repo.UpsertVote(ctx, common.Vote{
		ProposalID: proposalID,
		UserID:     userID,
		Vote:       vote,
		CreatedAt:  s.now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("store vote: %w", err)
	}
	metrics.Votes.WithLabelValues(string(vote)).Inc()

	tally, err := s.tally(ctx, p)
	if err != nil {
		return nil, err
	}
	next := Resolve(tally.Approve, tally.Reject, p.VotesRequired)
	if next == common.ProposalPending {
		return tally, nil
	}

	moved, err := s.repo.TransitionProposal(ctx, proposalID, common.ProposalPending, next, "")
	if err != nil {
		return nil, fmt.Errorf("update proposal status: %w", err)
	}
	if moved {
		metrics.Proposals.WithLabelValues(string(next)).Inc()
		logger.Info("[Validation] Proposal resolved", "proposal", proposalID, "status", next, "approve", tally.Approve, "reject", tally.Reject)
		tally.Status = next
	}

	if moved && next == common.ProposalApproved && s.autoApply {
		applied, err := s.ApplyProposal(ctx, proposalID)
		if err != nil {
			logger.Warn("[Validation] Auto apply did not run", "proposal", proposalID, "err", err)
		} else {
			tally.Status = applied.Status
		}
	}
	return tally, nil
}

// GetTally returns the current vote counts of a proposal.
func (s *Service) GetTally(ctx context.Context, proposalID string) (*common.Tally, error) {
	p, err := s.repo.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	return s.tally(ctx, p)
}

func (s *Service) ListVotes(ctx context.Context, proposalID string) ([]common.Vote, error) {
	if _, err := s.repo.GetProposal(ctx, proposalID); err != nil {
		return nil, err
	}
	return s.repo.ListVotes(ctx, proposalID)
}

func (s *Service) tally(ctx context.Context, p *common.Proposal) (*common.Tally, error) {
	votes, err := s.repo.ListVotes(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	t := &common.Tally{ProposalID: p.ID, VotesRequired: p.VotesRequired, Status: p.Status}
	for _, v := range votes {
		switch v.Vote {
		case common.VoteApprove:
			t.Approve++
		case common.VoteReject:
			t.Reject++
		}
	}
	return t, nil
}

// ApplyProposal writes an approved proposal to the graph in one
// transaction. The status is re-read under the proposal lock, so concurrent
// calls apply it at most once.
//
// Graph errors do not surface: the proposal is marked failed with the
// message and returned, and the chunk keeps its status. Errors are returned
// for unknown proposals, proposals that are not approved, and lock or
// repository failures.
func (s *Service) ApplyProposal(ctx context.Context, proposalID string) (*common.Proposal, error) {
	var result *common.Proposal
	err := s.locker.WithLease(ctx, leaselock.ProposalKey(proposalID), func(ctx context.Context) error {
		p, err := s.repo.GetProposal(ctx, proposalID)
		if err != nil {
			return err
		}
		if p.Status != common.ProposalApproved {
			return fmt.Errorf("%w: proposal is %s", ErrNotApproved, p.Status)
		}
		result, err = s.apply(ctx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) apply(ctx context.Context, p *common.Proposal) (*common.Proposal, error) {
	m, err := BuildProposalMutation(*p)
	if err == nil {
		err = util.RetryErrWithBackoff(ctx, s.applyRetry, store.IsTransient,
			func(err error, wait time.Duration) {
				logger.Warn("[Validation] Apply failed, retrying", "proposal", p.ID, "wait", wait, "err", err)
			},
			func(ctx context.Context) error {
				return s.storage.Apply(ctx, m)
			},
		)
	}
	if err != nil {
		logger.Error("[Validation] Proposal failed", "proposal", p.ID, "chunk", p.ChunkID, "err", err)
		if _, terr := s.repo.TransitionProposal(ctx, p.ID, common.ProposalApproved, common.ProposalFailed, err.Error()); terr != nil {
			return nil, fmt.Errorf("mark proposal failed: %w", terr)
		}
		metrics.Proposals.WithLabelValues(string(common.ProposalFailed)).Inc()
		return s.repo.GetProposal(ctx, p.ID)
	}

	if _, err := s.repo.TransitionProposal(ctx, p.ID, common.ProposalApproved, common.ProposalApplied, ""); err != nil {
		return nil, fmt.Errorf("mark proposal applied: %w", err)
	}
	metrics.Proposals.WithLabelValues(string(common.ProposalApplied)).Inc()
	if err := s.repo.SetChunkStatus(ctx, p.ChunkID, common.ChunkValidated); err != nil {
		logger.Error("[Validation] Failed to mark chunk validated", "chunk", p.ChunkID, "proposal", p.ID, "err", err)
	}
	logger.Info("[Validation] Proposal applied", "proposal", p.ID, "chunk", p.ChunkID, "nodes", len(m.Nodes), "edges", len(m.Edges))

	s.publish(ctx, p, m)
	return s.repo.GetProposal(ctx, p.ID)
}

func (s *Service) publish(ctx context.Context, p *common.Proposal, m store.Mutation) {
	if s.publisher == nil {
		return
	}
	event := GraphUpdated{
		ProposalID:   p.ID,
		ChunkID:      p.ChunkID,
		ProposalType: p.ProposalType,
		NodeIDs:      touchedNodes(m),
		AppliedAt:    s.now().UTC(),
	}
	if chunk, err := s.repo.GetChunk(ctx, p.ChunkID); err == nil {
		event.SeedNodeID = chunk.SeedNodeID
	}
	if err := s.publisher.PublishGraphUpdated(ctx, event); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("[Validation] Failed to publish graph update", "proposal", p.ID, "err", err)
	}
}
