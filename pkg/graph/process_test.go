package graph

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/OFFIS-RIT/lexgraph/pkg/checkpoint"
	"github.com/OFFIS-RIT/lexgraph/pkg/common"
	"github.com/OFFIS-RIT/lexgraph/pkg/store"
	"github.com/OFFIS-RIT/lexgraph/pkg/store/badger"
)

var testChunks = []common.Chunk{
	{ChunkID: "c1", Text: "TESTO-1", SourcePath: "leggi/l241.txt"},
	{ChunkID: "c2", Text: "TESTO-2", SourcePath: "leggi/l241.txt"},
	{ChunkID: "c3", Text: "TESTO-3", SourcePath: "leggi/l241.txt"},
}

var testScript = map[string][]string{
	"TESTO-1": {
		`("entity"<|>Legge 241/1990<|>legge<|>legge sul procedimento)##` +
			`("entity"<|>Art. 1<|>articolo<|>principi generali)##` +
			`("relationship"<|>Legge 241/1990<|>Art. 1<|>la legge contiene l'articolo<|>contiene<|>8)<|COMPLETE|>`,
		"",
	},
	"TESTO-2": {
		`("entity"<|>Art. 1<|>articolo<|>principi generali)##` +
			`("entity"<|>Consiglio di Stato<|>organo<|>giudice amministrativo)##` +
			`("relationship"<|>Consiglio di Stato<|>Legge 241/1990<|>applica la legge<|>si applica<|>5)<|COMPLETE|>`,
		"",
	},
	"TESTO-3": {
		`("entity"<|>1 gennaio 1991<|>data<|>entrata in vigore)##` +
			`("relationship"<|>Legge 241/1990<|>1 gennaio 1991<|>in vigore dal<|>entrata in vigore<|>9)<|COMPLETE|>`,
		"",
	},
}

func newMemStore(t *testing.T) *badger.Store {
	t.Helper()
	s, err := badger.Open(badger.Options{InMemory: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func newCheckpoint(t *testing.T) *checkpoint.Store {
	t.Helper()
	return checkpoint.OpenFile(filepath.Join(t.TempDir(), "chunks.jsonl.processed"))
}

type graphDump struct {
	Nodes map[string]common.GraphNode
	Edges map[string]common.GraphEdge
}

func dumpGraph(t *testing.T, s store.GraphStorage) graphDump {
	t.Helper()
	ctx := context.Background()
	out := graphDump{Nodes: map[string]common.GraphNode{}, Edges: map[string]common.GraphEdge{}}
	labels, err := s.ListLabels(ctx)
	if err != nil {
		t.Fatalf("list labels: %v", err)
	}
	for _, label := range labels {
		ids, err := s.ListNodeIDs(ctx, label)
		if err != nil {
			t.Fatalf("list node ids: %v", err)
		}
		for _, id := range ids {
			nb, err := s.GetNeighborhood(ctx, id)
			if err != nil {
				t.Fatalf("neighborhood of %q: %v", id, err)
			}
			out.Nodes[id] = nb.Nodes[0]
			for _, e := range nb.Edges {
				out.Edges[EdgeKey(e.SourceID, e.RelationType, e.TargetID)] = e
			}
		}
	}
	return out
}

// flakyStorage fails the first failures Apply calls with err.
type flakyStorage struct {
	store.GraphStorage
	mu       sync.Mutex
	failures int
	err      error
	applies  int
}

func (f *flakyStorage) Apply(ctx context.Context, m store.Mutation) error {
	f.mu.Lock()
	f.applies++
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()
	if fail {
		return f.err
	}
	return f.GraphStorage.Apply(ctx, m)
}

func TestProcessChunksCommitsAndCheckpoints(t *testing.T) {
	gen := &scriptedGenerator{respond: byMarker(testScript)}
	g := newTestClient(t, gen, 1)
	s := newMemStore(t)
	cp := newCheckpoint(t)

	report, err := g.ProcessChunks(context.Background(), testChunks, cp, s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Processed != 3 || report.Failed != 0 || report.Skipped != 0 || report.Remaining != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Entities != 4 || report.Relationships != 3 {
		t.Fatalf("expected 4 entities and 3 relationships, got %d and %d", report.Entities, report.Relationships)
	}
	if report.GleaningRounds != 6 {
		t.Fatalf("expected 2 rounds per chunk, got %d", report.GleaningRounds)
	}

	reopened := checkpoint.OpenFile(cp.Path())
	for _, c := range testChunks {
		if !reopened.IsProcessed(c.ChunkID) {
			t.Fatalf("expected %s to be checkpointed", c.ChunkID)
		}
	}

	dump := dumpGraph(t, s)
	if len(dump.Nodes) != 4 || len(dump.Edges) != 3 {
		t.Fatalf("expected 4 nodes and 3 edges in store, got %d and %d", len(dump.Nodes), len(dump.Edges))
	}
	if got := dump.Nodes["1991-01-01"].Label; got != "Data" {
		t.Fatalf("expected date node labelled Data, got %q", got)
	}
	art := dump.Nodes["ART. 1"]
	if !reflect.DeepEqual(art.Properties[store.PropChunkIDs], []string{"c1", "c2"}) {
		t.Fatalf("expected chunk ids [c1 c2] on ART. 1, got %v", art.Properties[store.PropChunkIDs])
	}
	if _, ok := dump.Edges[EdgeKey("CONSIGLIO DI STATO", "SI_APPLICA_A", "LEGGE 241/1990")]; !ok {
		t.Fatalf("expected SI_APPLICA_A edge, got %v", dump.Edges)
	}
}

func TestProcessChunksSkipsCheckpointed(t *testing.T) {
	gen := &scriptedGenerator{respond: byMarker(testScript)}
	g := newTestClient(t, gen, 1)
	s := newMemStore(t)
	cp := newCheckpoint(t)

	if _, err := g.ProcessChunks(context.Background(), testChunks, cp, s); err != nil {
		t.Fatalf("first run: %v", err)
	}
	calls := gen.Calls()

	chunks := append(append([]common.Chunk{}, testChunks...), testChunks[0])
	report, err := g.ProcessChunks(context.Background(), chunks, checkpoint.OpenFile(cp.Path()), s)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if gen.Calls() != calls {
		t.Fatalf("expected no generator calls on rerun, got %d", gen.Calls()-calls)
	}
	if report.Skipped != 4 || report.Processed != 0 {
		t.Fatalf("expected 4 skipped and 0 processed, got %+v", report)
	}
}

func TestProcessChunksResumeMatchesUninterruptedRun(t *testing.T) {
	ctx := context.Background()

	full := newMemStore(t)
	g := newTestClient(t, &scriptedGenerator{respond: byMarker(testScript)}, 1)
	if _, err := g.ProcessChunks(ctx, testChunks, newCheckpoint(t), full); err != nil {
		t.Fatalf("uninterrupted run: %v", err)
	}

	resumed := newMemStore(t)
	cp := newCheckpoint(t)
	failing := &scriptedGenerator{respond: func(prompt string, round int) (string, error) {
		if round == 0 && strings.Contains(prompt, "TESTO-2") {
			return "", errors.New("backend down")
		}
		return byMarker(testScript)(prompt, round)
	}}
	report, err := newTestClient(t, failing, 1).ProcessChunks(ctx, testChunks, cp, resumed)
	if err != nil {
		t.Fatalf("first partial run: %v", err)
	}
	if report.Failed != 1 || report.Processed != 2 {
		t.Fatalf("expected 1 failed and 2 processed, got %+v", report)
	}
	if cp.IsProcessed("c2") {
		t.Fatalf("failed chunk must not be checkpointed")
	}

	gen := &scriptedGenerator{respond: byMarker(testScript)}
	report, err = newTestClient(t, gen, 1).ProcessChunks(ctx, testChunks, checkpoint.OpenFile(cp.Path()), resumed)
	if err != nil {
		t.Fatalf("resumed run: %v", err)
	}
	if report.Processed != 1 || report.Skipped != 2 {
		t.Fatalf("expected only c2 to be processed on resume, got %+v", report)
	}

	want, got := dumpGraph(t, full), dumpGraph(t, resumed)
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("expected resumed graph to match uninterrupted run\nwant %+v\ngot  %+v", want, got)
	}
}

func TestProcessChunksCanceledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := &scriptedGenerator{respond: byMarker(testScript)}

	report, err := newTestClient(t, gen, 1).ProcessChunks(ctx, testChunks, newCheckpoint(t), newMemStore(t))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if gen.Calls() != 0 {
		t.Fatalf("expected no generator calls, got %d", gen.Calls())
	}
	if report.Remaining != 3 {
		t.Fatalf("expected 3 remaining chunks, got %d", report.Remaining)
	}
}

func TestProcessChunksCanceledMidRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gen := &scriptedGenerator{respond: func(string, int) (string, error) {
		cancel()
		return "", context.Canceled
	}}
	cp := newCheckpoint(t)

	report, err := newTestClient(t, gen, 1).ProcessChunks(ctx, testChunks, cp, newMemStore(t))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if gen.Calls() != 1 {
		t.Fatalf("expected no calls after cancellation, got %d", gen.Calls())
	}
	if report.Remaining != 3 || report.Processed != 0 || report.Failed != 0 {
		t.Fatalf("expected all chunks remaining, got %+v", report)
	}
	if cp.Len() != 0 {
		t.Fatalf("expected empty checkpoint, got %v", cp.All())
	}
}

func TestProcessChunksRetriesTransientCommit(t *testing.T) {
	s := &flakyStorage{GraphStorage: newMemStore(t), failures: 2, err: store.Transient(errors.New("deadlock detected"))}
	cp := newCheckpoint(t)

	report, err := newTestClient(t, &scriptedGenerator{respond: byMarker(testScript)}, 1).
		ProcessChunks(context.Background(), testChunks[:1], cp, s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Processed != 1 || s.applies != 3 {
		t.Fatalf("expected 1 processed after 3 applies, got %d and %d", report.Processed, s.applies)
	}
	if !cp.IsProcessed("c1") {
		t.Fatalf("expected c1 checkpointed")
	}
}

func TestProcessChunksPermanentCommitFailure(t *testing.T) {
	s := &flakyStorage{GraphStorage: newMemStore(t), failures: 100, err: store.ErrInvalidIdentifier}
	cp := newCheckpoint(t)

	report, err := newTestClient(t, &scriptedGenerator{respond: byMarker(testScript)}, 1).
		ProcessChunks(context.Background(), testChunks[:1], cp, s)
	if err != nil {
		t.Fatalf("a failed chunk must not fail the batch: %v", err)
	}
	if report.Failed != 1 || s.applies != 1 {
		t.Fatalf("expected 1 failed chunk after a single apply, got %d and %d", report.Failed, s.applies)
	}
	if cp.IsProcessed("c1") {
		t.Fatalf("failed chunk must not be checkpointed")
	}
}

func TestProcessChunksForceRecreate(t *testing.T) {
	cp := newCheckpoint(t)
	if err := cp.MarkProcessed("c1"); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	gen := &scriptedGenerator{respond: byMarker(testScript)}
	g, err := NewGraphClient(NewGraphClientParams{Generator: gen, ForceRecreate: true, StoreRetry: fastRetry()})
	if err != nil {
		t.Fatalf("new graph client: %v", err)
	}

	report, err := g.ProcessChunks(context.Background(), testChunks[:1], cp, newMemStore(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Processed != 1 || gen.Calls() == 0 {
		t.Fatalf("expected c1 to be reprocessed, got %+v", report)
	}
}

func TestProcessChunksControlBytesDoNotFailChunk(t *testing.T) {
	script := map[string][]string{
		"TESTO-CTRL": {
			`("entity"<|>Legge 241/1990<|>legge<|>legge sul procedimento)##` +
				"(\"entity\"<|>Roma\x00 Capitale<|>luogo<|>sede\x00 del governo)##" +
				"(\"entity\"<|>Consiglio di Stato\xff<|>organo<|>giudice amministrativo)##" +
				"(\"relationship\"<|>Legge 241/1990<|>Roma\x00 Capitale<|>si applica<|>si applica<|>5)<|COMPLETE|>",
			"",
		},
	}
	gen := &scriptedGenerator{respond: byMarker(script)}
	g := newTestClient(t, gen, 1)
	s := newMemStore(t)
	cp := newCheckpoint(t)

	chunks := []common.Chunk{{ChunkID: "c9", Text: "TESTO-CTRL", SourcePath: "leggi/l241.txt"}}
	report, err := g.ProcessChunks(context.Background(), chunks, cp, s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Processed != 1 || report.Failed != 0 {
		t.Fatalf("expected the chunk to be processed, got %+v", report)
	}
	if !cp.IsProcessed("c9") {
		t.Fatal("expected c9 to be checkpointed")
	}

	dump := dumpGraph(t, s)
	for _, id := range []string{"LEGGE 241/1990", "ROMA CAPITALE", "CONSIGLIO DI STATO"} {
		if _, ok := dump.Nodes[id]; !ok {
			t.Fatalf("expected node %q, got %v", id, dump.Nodes)
		}
	}
	if got := dump.Nodes["ROMA CAPITALE"].Properties[store.PropDescription]; got != "sede del governo" {
		t.Fatalf("expected cleaned description, got %q", got)
	}
	if _, ok := dump.Edges[EdgeKey("LEGGE 241/1990", "SI_APPLICA_A", "ROMA CAPITALE")]; !ok {
		t.Fatalf("expected SI_APPLICA_A edge, got %v", dump.Edges)
	}
}
