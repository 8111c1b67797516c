package pgx

import (
	"context"
	"errors"
	"testing"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/OFFIS-RIT/lexgraph/pkg/common"
	"github.com/OFFIS-RIT/lexgraph/pkg/validation"
)

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, v := range r.vals {
		switch d := dest[i].(type) {
		case *bool:
			*d = v.(bool)
		case *int:
			*d = v.(int)
		}
	}
	return nil
}

type fakeConn struct {
	tag  string
	row  fakeRow
	sqls []string
	args [][]any
}

func (f *fakeConn) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sqls = append(f.sqls, sql)
	f.args = append(f.args, args)
	return pgconn.NewCommandTag(f.tag), nil
}

func (f *fakeConn) Query(context.Context, string, ...any) (pgxv5.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeConn) QueryRow(_ context.Context, sql string, args ...any) pgxv5.Row {
	f.sqls = append(f.sqls, sql)
	f.args = append(f.args, args)
	return f.row
}

func TestTransitionProposal(t *testing.T) {
	tests := []struct {
		name      string
		tag       string
		exists    bool
		wantMoved bool
		wantErr   error
	}{
		{"moved", "UPDATE 1", true, true, nil},
		{"status changed meanwhile", "UPDATE 0", true, false, nil},
		{"missing proposal", "UPDATE 0", false, false, validation.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &fakeConn{tag: tt.tag, row: fakeRow{vals: []any{tt.exists}}}
			r := NewRepository(conn)
			moved, err := r.TransitionProposal(context.Background(), "p1", common.ProposalApproved, common.ProposalFailed, "boom\x00")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if moved != tt.wantMoved {
				t.Fatalf("expected moved=%v, got %v", tt.wantMoved, moved)
			}
			if msg := conn.args[0][3].(string); msg != "boom" {
				t.Fatalf("expected sanitized message, got %q", msg)
			}
		})
	}
}

func TestNotFoundMapping(t *testing.T) {
	ctx := context.Background()
	r := NewRepository(&fakeConn{tag: "UPDATE 0", row: fakeRow{err: pgxv5.ErrNoRows}})

	if _, err := r.GetChunk(ctx, "c1"); !errors.Is(err, validation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for chunk, got %v", err)
	}
	if _, err := r.GetChunkBySeed(ctx, "LEGGE 241/1990"); !errors.Is(err, validation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for seed, got %v", err)
	}
	if _, err := r.GetProposal(ctx, "p1"); !errors.Is(err, validation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for proposal, got %v", err)
	}
	if err := r.AssignChunk(ctx, "c1", "bob"); !errors.Is(err, validation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on assign, got %v", err)
	}
	if err := r.SetChunkStatus(ctx, "c1", common.ChunkValidated); !errors.Is(err, validation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on status, got %v", err)
	}
}

func TestCountActiveReviewers(t *testing.T) {
	r := NewRepository(&fakeConn{row: fakeRow{vals: []any{5}}})
	n, err := r.CountActiveReviewers(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5, got %d", n)
	}
}
