// Package pgx stores the validation workflow state in Postgres.
package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/OFFIS-RIT/lexgraph/internal/util"
	"github.com/OFFIS-RIT/lexgraph/pkg/common"
	"github.com/OFFIS-RIT/lexgraph/pkg/validation"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
}

// Repository implements validation.Repository on the graph_chunks,
// proposals, votes and reviewers tables.
type Repository struct {
	conn pgxIConn
}

var _ validation.Repository = (*Repository)(nil)

func NewRepository(conn pgxIConn) *Repository {
	return &Repository{conn: conn}
}

const chunkColumns = `id, seed_node_id, seed_label, nodes, edges, status, COALESCE(assigned_to, ''), created_at, updated_at`

const saveChunkSQL = `
INSERT INTO graph_chunks (id, seed_node_id, seed_label, nodes, edges, status, assigned_to, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $8)
ON CONFLICT (seed_node_id) DO UPDATE
SET seed_label = EXCLUDED.seed_label,
    nodes = EXCLUDED.nodes,
    edges = EXCLUDED.edges,
    status = EXCLUDED.status,
    updated_at = EXCLUDED.updated_at
RETURNING id, created_at, updated_at`

func (r *Repository) SaveChunk(ctx context.Context, chunk *common.GraphChunk) error {
	nodes, err := json.Marshal(nonNil(chunk.Nodes))
	if err != nil {
		return fmt.Errorf("encode chunk nodes: %w", err)
	}
	edges, err := json.Marshal(nonNil(chunk.Edges))
	if err != nil {
		return fmt.Errorf("encode chunk edges: %w", err)
	}
	return r.conn.QueryRow(ctx, saveChunkSQL,
		chunk.ID,
		chunk.SeedNodeID,
		util.SanitizePostgresText(chunk.SeedLabel),
		util.SanitizePostgresText(string(nodes)),
		util.SanitizePostgresText(string(edges)),
		string(chunk.Status),
		chunk.AssignedTo,
		chunk.CreatedAt,
	).Scan(&chunk.ID, &chunk.CreatedAt, &chunk.UpdatedAt)
}

func scanChunk(row pgxv5.Row) (*common.GraphChunk, error) {
	var (
		c            common.GraphChunk
		nodes, edges []byte
		status       string
	)
	if err := row.Scan(&c.ID, &c.SeedNodeID, &c.SeedLabel, &nodes, &edges, &status, &c.AssignedTo, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Status = common.ChunkStatus(status)
	if err := json.Unmarshal(nodes, &c.Nodes); err != nil {
		return nil, fmt.Errorf("decode nodes of chunk %s: %w", c.ID, err)
	}
	if err := json.Unmarshal(edges, &c.Edges); err != nil {
		return nil, fmt.Errorf("decode edges of chunk %s: %w", c.ID, err)
	}
	return &c, nil
}

func (r *Repository) GetChunk(ctx context.Context, id string) (*common.GraphChunk, error) {
	c, err := scanChunk(r.conn.QueryRow(ctx, `SELECT `+chunkColumns+` FROM graph_chunks WHERE id = $1`, id))
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, fmt.Errorf("chunk %s: %w", id, validation.ErrNotFound)
	}
	return c, err
}

func (r *Repository) GetChunkBySeed(ctx context.Context, seedNodeID string) (*common.GraphChunk, error) {
	c, err := scanChunk(r.conn.QueryRow(ctx, `SELECT `+chunkColumns+` FROM graph_chunks WHERE seed_node_id = $1`, seedNodeID))
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, fmt.Errorf("chunk for %s: %w", seedNodeID, validation.ErrNotFound)
	}
	return c, err
}

func (r *Repository) ListChunks(ctx context.Context, f validation.ChunkFilter) ([]common.GraphChunk, error) {
	query := `
		SELECT ` + chunkColumns + `
		FROM graph_chunks
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR assigned_to = $2)
		ORDER BY created_at, id
		LIMIT NULLIF($3, 0) OFFSET $4`

	rows, err := r.conn.Query(ctx, query, string(f.Status), f.AssignedTo, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var out []common.GraphChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *Repository) AssignChunk(ctx context.Context, id, userID string) error {
	tag, err := r.conn.Exec(ctx,
		`UPDATE graph_chunks SET assigned_to = NULLIF($2, ''), updated_at = now() WHERE id = $1`,
		id, userID)
	if err != nil {
		return fmt.Errorf("assign chunk: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chunk %s: %w", id, validation.ErrNotFound)
	}
	return nil
}

func (r *Repository) SetChunkStatus(ctx context.Context, id string, status common.ChunkStatus) error {
	tag, err := r.conn.Exec(ctx,
		`UPDATE graph_chunks SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status))
	if err != nil {
		return fmt.Errorf("update chunk status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chunk %s: %w", id, validation.ErrNotFound)
	}
	return nil
}

const proposalColumns = `id, chunk_id, proposal_type, original_data, proposed_data, votes_required, status,
	COALESCE(error_message, ''), COALESCE(created_by, ''), created_at, updated_at`

func (r *Repository) CreateProposal(ctx context.Context, p *common.Proposal) error {
	original, err := json.Marshal(p.OriginalData)
	if err != nil {
		return fmt.Errorf("encode original data: %w", err)
	}
	proposed, err := json.Marshal(p.ProposedData)
	if err != nil {
		return fmt.Errorf("encode proposed data: %w", err)
	}
	_, err = r.conn.Exec(ctx, `
		INSERT INTO proposals (id, chunk_id, proposal_type, original_data, proposed_data,
		                       votes_required, status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)`,
		p.ID,
		p.ChunkID,
		string(p.ProposalType),
		util.SanitizePostgresText(string(original)),
		util.SanitizePostgresText(string(proposed)),
		p.VotesRequired,
		string(p.Status),
		util.SanitizePostgresText(p.CreatedBy),
		p.CreatedAt,
		p.UpdatedAt,
	)
	return err
}

func scanProposal(row pgxv5.Row) (*common.Proposal, error) {
	var (
		p                  common.Proposal
		original, proposed []byte
		ptype, status      string
	)
	err := row.Scan(&p.ID, &p.ChunkID, &ptype, &original, &proposed, &p.VotesRequired, &status,
		&p.ErrorMessage, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.ProposalType = common.ProposalType(ptype)
	p.Status = common.ProposalStatus(status)
	if err := json.Unmarshal(original, &p.OriginalData); err != nil {
		return nil, fmt.Errorf("decode original data of %s: %w", p.ID, err)
	}
	if err := json.Unmarshal(proposed, &p.ProposedData); err != nil {
		return nil, fmt.Errorf("decode proposed data of %s: %w", p.ID, err)
	}
	return &p, nil
}

func (r *Repository) GetProposal(ctx context.Context, id string) (*common.Proposal, error) {
	p, err := scanProposal(r.conn.QueryRow(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = $1`, id))
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, fmt.Errorf("proposal %s: %w", id, validation.ErrNotFound)
	}
	return p, err
}

func (r *Repository) ListProposals(ctx context.Context, chunkID string) ([]common.Proposal, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT `+proposalColumns+` FROM proposals WHERE chunk_id = $1 ORDER BY created_at, id`,
		chunkID)
	if err != nil {
		return nil, fmt.Errorf("query proposals: %w", err)
	}
	defer rows.Close()

	var out []common.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *Repository) TransitionProposal(ctx context.Context, id string, from, to common.ProposalStatus, message string) (bool, error) {
	tag, err := r.conn.Exec(ctx, `
		UPDATE proposals
		SET status = $3, error_message = NULLIF($4, ''), updated_at = now()
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to), util.SanitizePostgresText(message))
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	if err := r.conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM proposals WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, fmt.Errorf("proposal %s: %w", id, validation.ErrNotFound)
	}
	return false, nil
}

func (r *Repository) UpsertVote(ctx context.Context, v common.Vote) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO votes (proposal_id, user_id, vote, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (proposal_id, user_id) DO UPDATE
		SET vote = EXCLUDED.vote, created_at = EXCLUDED.created_at`,
		v.ProposalID, util.SanitizePostgresText(v.UserID), string(v.Vote), v.CreatedAt)
	return err
}

func (r *Repository) ListVotes(ctx context.Context, proposalID string) ([]common.Vote, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT proposal_id, user_id, vote, created_at FROM votes WHERE proposal_id = $1 ORDER BY user_id`,
		proposalID)
	if err != nil {
		return nil, fmt.Errorf("query votes: %w", err)
	}
	defer rows.Close()

	var out []common.Vote
	for rows.Next() {
		var v common.Vote
		var vote string
		if err := rows.Scan(&v.ProposalID, &v.UserID, &vote, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		v.Vote = common.VoteValue(vote)
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *Repository) CountActiveReviewers(ctx context.Context) (int, error) {
	var n int
	err := r.conn.QueryRow(ctx, `SELECT count(*) FROM reviewers WHERE active`).Scan(&n)
	return n, err
}

// UpsertReviewer registers userID as a reviewer, or changes whether the
// reviewer counts towards the quorum of new proposals.
func (r *Repository) UpsertReviewer(ctx context.Context, userID string, active bool) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO reviewers (user_id, active, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET active = EXCLUDED.active`,
		util.SanitizePostgresText(userID), active)
	return err
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
