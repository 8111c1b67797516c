package graph

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/OFFIS-RIT/lexgraph/pkg/common"
)

func TestExtractChunkGleaningRounds(t *testing.T) {
	tests := []struct {
		name        string
		productive  int
		maxGleaning int
		wantCalls   int
	}{
		{name: "initial round yields nothing", productive: 0, maxGleaning: 3, wantCalls: 1},
		{name: "first continue adds nothing", productive: 1, maxGleaning: 3, wantCalls: 2},
		{name: "three productive rounds", productive: 3, maxGleaning: 5, wantCalls: 4},
		{name: "bounded by max gleaning", productive: 10, maxGleaning: 2, wantCalls: 3},
		{name: "gleaning disabled", productive: 10, maxGleaning: 0, wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &scriptedGenerator{respond: func(_ string, round int) (string, error) {
				if tt.productive == 0 {
					return "", nil
				}
				if round >= tt.productive {
					// repeats an entity that is already known
					return `("entity"<|>Ente 0<|>organo<|>x)<|COMPLETE|>`, nil
				}
				return fmt.Sprintf(`("entity"<|>Ente %d<|>organo<|>x)<|COMPLETE|>`, round), nil
			}}
			g := newTestClient(t, gen, tt.maxGleaning)

			res, err := g.extractChunk(context.Background(), common.Chunk{ChunkID: "c1", Text: "testo"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if gen.Calls() != tt.wantCalls {
				t.Fatalf("expected %d calls, got %d", tt.wantCalls, gen.Calls())
			}
			if res.rounds != tt.wantCalls {
				t.Fatalf("expected %d rounds, got %d", tt.wantCalls, res.rounds)
			}
		})
	}
}

func TestExtractChunkInitialFailure(t *testing.T) {
	gen := &scriptedGenerator{respond: func(string, int) (string, error) {
		return "", errors.New("backend down")
	}}
	g := newTestClient(t, gen, 2)

	if _, err := g.extractChunk(context.Background(), common.Chunk{ChunkID: "c1", Text: "testo"}); err == nil {
		t.Fatalf("expected initial failure to fail the chunk")
	}
}

func TestExtractChunkContinueFailureKeepsRecords(t *testing.T) {
	gen := &scriptedGenerator{respond: func(_ string, round int) (string, error) {
		if round > 0 {
			return "", errors.New("rate limited")
		}
		return `("entity"<|>Legge 241/1990<|>legge<|>x)`, nil
	}}
	g := newTestClient(t, gen, 3)

	res, err := g.extractChunk(context.Background(), common.Chunk{ChunkID: "c1", Text: "testo"})
	if err != nil {
		t.Fatalf("expected continue failure to be tolerated, got %v", err)
	}
	if gen.Calls() != 2 || res.rounds != 1 {
		t.Fatalf("expected 2 calls and 1 completed round, got %d and %d", gen.Calls(), res.rounds)
	}
	if !res.graph.HasNode("Legge 241/1990") {
		t.Fatalf("expected records of the initial round to be kept")
	}
}

func TestExtractChunkContinueCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gen := &scriptedGenerator{respond: func(_ string, round int) (string, error) {
		if round > 0 {
			cancel()
			return "", context.Canceled
		}
		return `("entity"<|>Legge 241/1990<|>legge<|>x)`, nil
	}}
	g := newTestClient(t, gen, 3)

	if _, err := g.extractChunk(ctx, common.Chunk{ChunkID: "c1", Text: "testo"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestExtractChunkNormalizesRecords(t *testing.T) {
	raw := `("entity"<|>"1 gennaio 1991"<|>sconosciuto tipo<|>data di entrata in vigore)##` +
		`("entity"<|>  Legge   241/1990 <|>LEGGE<|>legge sul procedimento)##` +
		`("entity"<|>Consiglio di Stato<|><|>giudice)##` +
		`("relationship"<|>Legge 241/1990<|>01/01/1991<|>entra in vigore<|>entrata in vigore<|>9)##` +
		`("relationship"<|>D.Lgs. 50/2016<|>Legge 241/1990<|>abroga<|>abrogazione parziale<|>4)`
	gen := &scriptedGenerator{respond: func(_ string, round int) (string, error) {
		if round > 0 {
			return "", nil
		}
		return raw, nil
	}}
	g := newTestClient(t, gen, 1)

	chunk := common.Chunk{ChunkID: "c7", Text: "testo", SourcePath: "leggi/l241.txt"}
	res, err := g.extractChunk(context.Background(), chunk)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	labels := map[string]string{}
	for _, n := range res.graph.Nodes() {
		labels[n.Key] = n.Label
		if !reflect.DeepEqual(n.ChunkIDs, []string{"c7"}) || !reflect.DeepEqual(n.SourceDocPaths, []string{"leggi/l241.txt"}) {
			t.Fatalf("expected provenance on %q, got %+v", n.Key, n)
		}
	}
	want := map[string]string{
		"1991-01-01":     "Sconosciuto_tipo",
		"LEGGE 241/1990": "Legge",
	}
	for key, label := range want {
		if labels[key] != label {
			t.Fatalf("expected %q labelled %q, got %q", key, label, labels[key])
		}
	}
	if _, ok := labels["CONSIGLIO DI STATO"]; ok {
		t.Fatalf("expected entity without type to be dropped as truncated")
	}

	if !res.graph.HasEdge("Legge 241/1990", "IN_VIGORE_DAL", "1991-01-01") {
		t.Fatalf("expected date endpoint normalized, got %+v", res.graph.Edges())
	}
	if !res.graph.HasEdge("D.Lgs. 50/2016", "ABROGA", "Legge 241/1990") {
		t.Fatalf("expected ABROGA edge, got %+v", res.graph.Edges())
	}
}

func TestExtractChunkDateEntityGetsDateLabel(t *testing.T) {
	gen := &scriptedGenerator{respond: func(_ string, round int) (string, error) {
		if round > 0 {
			return "", nil
		}
		return `("entity"<|>7 agosto 1990<|>entity<|>data di emanazione)`, nil
	}}
	g := newTestClient(t, gen, 0)

	res, err := g.extractChunk(context.Background(), common.Chunk{ChunkID: "c1", Text: "testo"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	nodes := res.graph.Nodes()
	if len(nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(nodes))
	}
	if nodes[0].Name != "1990-08-07" || nodes[0].Label != "Data" {
		t.Fatalf("expected ISO date labelled Data, got %+v", nodes[0])
	}
}
