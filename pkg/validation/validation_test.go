package validation

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/OFFIS-RIT/lexgraph/internal/util"
	"github.com/OFFIS-RIT/lexgraph/pkg/common"
	"github.com/OFFIS-RIT/lexgraph/pkg/store"
	"github.com/OFFIS-RIT/lexgraph/pkg/store/badger"
)

func seededStore(t *testing.T) *badger.Store {
	t.Helper()
	s, err := badger.Open(badger.Options{InMemory: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	err = s.Apply(context.Background(), store.Mutation{
		Nodes: []store.NodeUpsert{
			{ID: "LEGGE 241/1990", Label: "Legge", Name: "Legge 241/1990", Description: "procedimento amministrativo"},
			{ID: "LEGGE 689/1981", Label: "Legge", Name: "Legge 689/1981"},
			{ID: "LEGGE 400/1988", Label: "Legge", Name: "Legge 400/1988"},
			{ID: "ART. 1", Label: "Articolo", Name: "Art. 1", Description: "principi"},
			{ID: "ROMA", Label: "Luogo", Name: "Roma"},
		},
		Edges: []store.EdgeUpsert{
			{SourceID: "LEGGE 241/1990", TargetID: "ART. 1", RelationType: "CONTIENE", Description: "contiene", Weight: 8},
			{SourceID: "LEGGE 241/1990", TargetID: "ROMA", RelationType: "SI_APPLICA_A", Weight: 2},
		},
	})
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return s
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []GraphUpdated
}

func (p *recordingPublisher) PublishGraphUpdated(_ context.Context, e GraphUpdated) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type failingStorage struct {
	store.GraphStorage
	err error
}

func (f failingStorage) Apply(context.Context, store.Mutation) error { return f.err }

func newTestService(repo Repository, storage store.GraphStorage, opts Options) *Service {
	opts.Rand = rand.New(rand.NewPCG(1, 2))
	opts.ApplyRetry = &util.BackoffPolicy{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, MaxRetries: 1}
	return NewService(repo, storage, opts)
}

func mustChunk(t *testing.T, s *Service, seed string) *common.GraphChunk {
	t.Helper()
	c, err := s.CreateChunk(context.Background(), seed, false)
	if err != nil {
		t.Fatalf("create chunk: %v", err)
	}
	return c
}

func modifyInput(chunk *common.GraphChunk) ProposalInput {
	return ProposalInput{
		ChunkID:      chunk.ID,
		ProposalType: common.ProposalModify,
		OriginalData: common.ChangeSet{Nodes: chunk.Nodes, Edges: chunk.Edges},
		ProposedData: common.ChangeSet{
			Nodes: []common.GraphNode{
				{ID: "LEGGE 241/1990", Label: "Legge", Properties: map[string]any{"name": "Legge 241/1990"}},
				{ID: "ART. 1", Label: "Comma", Properties: map[string]any{"name": "Art. 1", "description": "corretto"}},
				{ID: "ROMA", Label: "Luogo", Properties: map[string]any{"name": "Roma"}},
			},
			Edges: []common.GraphEdge{
				{SourceID: "LEGGE 241/1990", TargetID: "ROMA", RelationType: "SI_APPLICA_A", Properties: map[string]any{"weight": 2.0}},
			},
		},
		CreatedBy: "alice",
	}
}

func TestVotesRequired(t *testing.T) {
	tests := []struct{ users, want int }{
		{0, 1}, {1, 1}, {2, 2}, {3, 2}, {4, 3}, {5, 3}, {10, 6},
	}
	for _, tt := range tests {
		if got := VotesRequired(tt.users); got != tt.want {
			t.Fatalf("expected %d votes for %d users, got %d", tt.want, tt.users, got)
		}
	}
}

func TestQuorum(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMemRepo(5), seededStore(t), Options{})
	p, err := svc.CreateProposal(ctx, modifyInput(mustChunk(t, svc, "LEGGE 241/1990")))
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}
	if p.VotesRequired != 3 {
		t.Fatalf("expected 3 votes required, got %d", p.VotesRequired)
	}

	votes := []struct {
		user string
		vote common.VoteValue
		want common.ProposalStatus
	}{
		{"u1", common.VoteApprove, common.ProposalPending},
		{"u2", common.VoteApprove, common.ProposalPending},
		{"u3", common.VoteReject, common.ProposalPending},
		// changing a vote replaces it
		{"u3", common.VoteApprove, common.ProposalApproved},
	}
	for i, v := range votes {
		tally, err := svc.CastVote(ctx, p.ID, v.user, v.vote)
		if err != nil {
			t.Fatalf("vote %d: %v", i, err)
		}
		if tally.Status != v.want {
			t.Fatalf("vote %d: expected %s, got %s (%+v)", i, v.want, tally.Status, tally)
		}
	}

	tally, err := svc.GetTally(ctx, p.ID)
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if tally.Approve != 3 || tally.Reject != 0 {
		t.Fatalf("expected 3 approve and 0 reject, got %+v", tally)
	}
	if _, err := svc.CastVote(ctx, p.ID, "u4", common.VoteReject); !errors.Is(err, ErrVotingClosed) {
		t.Fatalf("expected ErrVotingClosed, got %v", err)
	}
}

func TestRejection(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMemRepo(3), seededStore(t), Options{})
	p, err := svc.CreateProposal(ctx, modifyInput(mustChunk(t, svc, "LEGGE 241/1990")))
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}
	svc.CastVote(ctx, p.ID, "u1", common.VoteReject)
	tally, err := svc.CastVote(ctx, p.ID, "u2", common.VoteReject)
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if tally.Status != common.ProposalRejected {
		t.Fatalf("expected rejected, got %s", tally.Status)
	}
	if _, err := svc.ApplyProposal(ctx, p.ID); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("expected ErrNotApproved, got %v", err)
	}
}

func TestCastVoteValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMemRepo(1), seededStore(t), Options{})
	p, err := svc.CreateProposal(ctx, modifyInput(mustChunk(t, svc, "LEGGE 241/1990")))
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}
	if _, err := svc.CastVote(ctx, p.ID, "", common.VoteApprove); !errors.Is(err, ErrInvalidVote) {
		t.Fatalf("expected ErrInvalidVote for missing user, got %v", err)
	}
	if _, err := svc.CastVote(ctx, p.ID, "u1", "maybe"); !errors.Is(err, ErrInvalidVote) {
		t.Fatalf("expected ErrInvalidVote for unknown value, got %v", err)
	}
	if _, err := svc.CastVote(ctx, "missing", "u1", common.VoteApprove); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApplyModifyProposal(t *testing.T) {
	ctx := context.Background()
	storage := seededStore(t)
	repo := newMemRepo(1)
	svc := newTestService(repo, storage, Options{})
	chunk := mustChunk(t, svc, "LEGGE 241/1990")
	if len(chunk.Nodes) != 3 || len(chunk.Edges) != 2 || chunk.SeedLabel != "Legge" {
		t.Fatalf("unexpected chunk %+v", chunk)
	}

	p, err := svc.CreateProposal(ctx, modifyInput(chunk))
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}
	if _, err := svc.ApplyProposal(ctx, p.ID); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("expected pending proposal to be refused, got %v", err)
	}
	if _, err := svc.CastVote(ctx, p.ID, "u1", common.VoteApprove); err != nil {
		t.Fatalf("vote: %v", err)
	}

	applied, err := svc.ApplyProposal(ctx, p.ID)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if applied.Status != common.ProposalApplied {
		t.Fatalf("expected applied, got %s (%s)", applied.Status, applied.ErrorMessage)
	}
	if c, _ := repo.GetChunk(ctx, chunk.ID); c.Status != common.ChunkValidated {
		t.Fatalf("expected chunk validated, got %s", c.Status)
	}

	nb, err := storage.GetNeighborhood(ctx, "ART. 1")
	if err != nil {
		t.Fatalf("neighborhood: %v", err)
	}
	art := nb.Nodes[0]
	if art.Label != "Comma" || art.Properties["description"] != "corretto" {
		t.Fatalf("expected corrected node, got %+v", art)
	}
	if len(nb.Edges) != 0 {
		t.Fatalf("expected CONTIENE edge removed, got %+v", nb.Edges)
	}

	if _, err := svc.ApplyProposal(ctx, p.ID); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("expected second apply to be refused, got %v", err)
	}
}

func TestApplyFailureMarksProposalFailed(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo(1)
	base := seededStore(t)
	svc := newTestService(repo, failingStorage{GraphStorage: base, err: errors.New("constraint violated")}, Options{})
	chunk := mustChunk(t, svc, "LEGGE 241/1990")

	p, err := svc.CreateProposal(ctx, modifyInput(chunk))
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}
	svc.CastVote(ctx, p.ID, "u1", common.VoteApprove)

	res, err := svc.ApplyProposal(ctx, p.ID)
	if err != nil {
		t.Fatalf("expected failure to be captured, got %v", err)
	}
	if res.Status != common.ProposalFailed || res.ErrorMessage == "" {
		t.Fatalf("expected failed proposal with message, got %+v", res)
	}
	if c, _ := repo.GetChunk(ctx, chunk.ID); c.Status != common.ChunkPending {
		t.Fatalf("expected chunk to stay pending, got %s", c.Status)
	}
}

func TestAutoApplyPublishes(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	storage := seededStore(t)
	svc := newTestService(newMemRepo(1), storage, Options{AutoApply: true, Publisher: pub})
	chunk := mustChunk(t, svc, "LEGGE 241/1990")

	p, err := svc.CreateProposal(ctx, ProposalInput{
		ChunkID:      chunk.ID,
		ProposalType: common.ProposalDelete,
		OriginalData: common.ChangeSet{Nodes: []common.GraphNode{{ID: "ROMA", Label: "Luogo"}}},
	})
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}
	tally, err := svc.CastVote(ctx, p.ID, "u1", common.VoteApprove)
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if tally.Status != common.ProposalApplied {
		t.Fatalf("expected auto applied proposal, got %s", tally.Status)
	}
	if _, err := storage.GetNeighborhood(ctx, "ROMA"); !errors.Is(err, store.ErrNodeNotFound) {
		t.Fatalf("expected ROMA deleted, got %v", err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.events))
	}
	if e := pub.events[0]; e.SeedNodeID != "LEGGE 241/1990" || e.ProposalID != p.ID {
		t.Fatalf("unexpected event %+v", e)
	}
}

func TestCreateProposalValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMemRepo(1), seededStore(t), Options{})
	chunk := mustChunk(t, svc, "LEGGE 241/1990")

	tests := []struct {
		name string
		in   ProposalInput
		want error
	}{
		{"unknown type", ProposalInput{ChunkID: chunk.ID, ProposalType: "merge"}, ErrInvalidProposal},
		{"missing chunk", ProposalInput{ChunkID: "nope", ProposalType: common.ProposalAdd}, ErrNotFound},
		{"empty add", ProposalInput{ChunkID: chunk.ID, ProposalType: common.ProposalAdd}, ErrInvalidProposal},
		{
			"empty node id",
			ProposalInput{ChunkID: chunk.ID, ProposalType: common.ProposalAdd, ProposedData: common.ChangeSet{
				Nodes: []common.GraphNode{{ID: " ", Label: "Legge"}},
			}},
			ErrInvalidProposal,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateProposal(ctx, tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestGenerateChunks(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMemRepo(1), seededStore(t), Options{})

	first, err := svc.GenerateChunks(ctx, "Legge", 2, false)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(first))
	}

	rest, err := svc.GenerateChunks(ctx, "Legge", 5, false)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(rest) != 1 {
		t.Fatalf("expected only the remaining seed, got %d", len(rest))
	}
	for _, c := range first {
		if c.SeedNodeID == rest[0].SeedNodeID {
			t.Fatalf("seed %s sampled twice", c.SeedNodeID)
		}
	}

	forced, err := svc.GenerateChunks(ctx, "Legge", 5, true)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(forced) != 3 {
		t.Fatalf("expected 3 recreated chunks, got %d", len(forced))
	}
	all, _ := svc.ListChunks(ctx, ChunkFilter{})
	if len(all) != 3 {
		t.Fatalf("expected one chunk per seed, got %d", len(all))
	}

	if _, err := svc.GenerateChunks(ctx, "Legge", 0, false); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCreateChunk(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMemRepo(1), seededStore(t), Options{})

	c := mustChunk(t, svc, "ART. 1")
	if _, err := svc.CreateChunk(ctx, "ART. 1", false); !errors.Is(err, ErrChunkExists) {
		t.Fatalf("expected ErrChunkExists, got %v", err)
	}
	again, err := svc.CreateChunk(ctx, "ART. 1", true)
	if err != nil {
		t.Fatalf("forced create: %v", err)
	}
	if again.ID != c.ID {
		t.Fatalf("expected forced create to keep chunk id %s, got %s", c.ID, again.ID)
	}
	if _, err := svc.CreateChunk(ctx, "MISSING", false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	assigned, err := svc.AssignChunk(ctx, c.ID, "bob")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if assigned.AssignedTo != "bob" {
		t.Fatalf("expected bob, got %q", assigned.AssignedTo)
	}
	mine, err := svc.ListChunks(ctx, ChunkFilter{AssignedTo: "bob", Status: common.ChunkPending})
	if err != nil || len(mine) != 1 {
		t.Fatalf("expected 1 chunk for bob, got %d (%v)", len(mine), err)
	}
	if _, err := svc.ListChunks(ctx, ChunkFilter{Status: "done"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestBuildProposalMutation(t *testing.T) {
	original := common.ChangeSet{
		Nodes: []common.GraphNode{{ID: "A", Label: "Legge"}, {ID: "B", Label: "Articolo"}},
		Edges: []common.GraphEdge{
			{SourceID: "A", TargetID: "B", RelationType: "contiene"},
			{SourceID: "A", TargetID: "B", RelationType: "RINVIA_A"},
		},
	}
	proposed := common.ChangeSet{
		Nodes: []common.GraphNode{{ID: "A", Label: "Legge"}},
		Edges: []common.GraphEdge{{SourceID: "A", TargetID: "B", RelationType: "CONTIENE"}},
	}

	m, err := BuildProposalMutation(common.Proposal{ProposalType: common.ProposalModify, OriginalData: original, ProposedData: proposed})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.Nodes) != 1 || !m.Nodes[0].Replace || len(m.Edges) != 1 || !m.Edges[0].Replace {
		t.Fatalf("expected replacing upserts, got %+v", m)
	}
	if len(m.DeleteNodes) != 1 || m.DeleteNodes[0] != "B" {
		t.Fatalf("expected B deleted, got %v", m.DeleteNodes)
	}
	if len(m.DeleteEdges) != 1 || m.DeleteEdges[0].RelationType != "RINVIA_A" {
		t.Fatalf("expected only RINVIA_A deleted, got %v", m.DeleteEdges)
	}

	m, err = BuildProposalMutation(common.Proposal{ProposalType: common.ProposalAdd, ProposedData: proposed})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Nodes[0].Replace || len(m.DeleteNodes) != 0 {
		t.Fatalf("expected merging upserts only, got %+v", m)
	}

	m, err = BuildProposalMutation(common.Proposal{ProposalType: common.ProposalDelete, OriginalData: original})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.DeleteNodes) != 2 || len(m.DeleteEdges) != 2 || len(m.Nodes) != 0 {
		t.Fatalf("expected everything listed deleted, got %+v", m)
	}
}
