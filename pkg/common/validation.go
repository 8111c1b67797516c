package common

import "time"

type ChunkStatus string

const (
	ChunkPending   ChunkStatus = "pending"
	ChunkValidated ChunkStatus = "validated"
)

// GraphChunk is the unit of human review: a seed node and its one-hop
// neighborhood. There is at most one chunk per seed node.
type GraphChunk struct {
	ID         string      `json:"id"`
	SeedNodeID string      `json:"seed_node_id"`
	SeedLabel  string      `json:"seed_label"`
	Nodes      []GraphNode `json:"nodes"`
	Edges      []GraphEdge `json:"edges"`
	Status     ChunkStatus `json:"status"`
	AssignedTo string      `json:"assigned_to,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

type ProposalType string

const (
	ProposalAdd    ProposalType = "add"
	ProposalModify ProposalType = "modify"
	ProposalDelete ProposalType = "delete"
)

// Valid reports whether t is one of the known proposal types.
func (t ProposalType) Valid() bool {
	switch t {
	case ProposalAdd, ProposalModify, ProposalDelete:
		return true
	}
	return false
}

type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalApproved ProposalStatus = "approved"
	ProposalRejected ProposalStatus = "rejected"
	ProposalApplied  ProposalStatus = "applied"
	ProposalFailed   ProposalStatus = "failed"
)

// Proposal is a reviewer-submitted change to a GraphChunk. VotesRequired is
// fixed when the proposal is created.
type Proposal struct {
	ID            string         `json:"id"`
	ChunkID       string         `json:"chunk_id"`
	ProposalType  ProposalType   `json:"proposal_type"`
	OriginalData  ChangeSet      `json:"original_data"`
	ProposedData  ChangeSet      `json:"proposed_data"`
	VotesRequired int            `json:"votes_required"`
	Status        ProposalStatus `json:"status"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	CreatedBy     string         `json:"created_by"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

type VoteValue string

const (
	VoteApprove VoteValue = "approve"
	VoteReject  VoteValue = "reject"
)

// Vote is one reviewer's decision on a proposal. A second vote by the same
// user replaces the first.
type Vote struct {
	ProposalID string    `json:"proposal_id"`
	UserID     string    `json:"user_id"`
	Vote       VoteValue `json:"vote"`
	CreatedAt  time.Time `json:"created_at"`
}

// Tally is the current vote count of a proposal.
type Tally struct {
	ProposalID    string         `json:"proposal_id"`
	Approve       int            `json:"approve"`
	Reject        int            `json:"reject"`
	VotesRequired int            `json:"votes_required"`
	Status        ProposalStatus `json:"status"`
}
