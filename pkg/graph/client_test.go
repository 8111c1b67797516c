package graph

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/OFFIS-RIT/lexgraph/internal/util"
	"github.com/OFFIS-RIT/lexgraph/pkg/ai"
)

// scriptedGenerator answers extraction calls from a script keyed by round.
// Round 0 is the initial extraction, round n the n-th continue call.
type scriptedGenerator struct {
	mu      sync.Mutex
	respond func(prompt string, round int) (string, error)
	calls   int
	prompts []string
}

func (s *scriptedGenerator) call(ctx context.Context, prompt string, round int) (string, error) {
	s.mu.Lock()
	s.calls++
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.respond(prompt, round)
}

func (s *scriptedGenerator) Extract(ctx context.Context, prompt string) (string, error) {
	return s.call(ctx, prompt, 0)
}

func (s *scriptedGenerator) Continue(ctx context.Context, history ai.ConversationState) (string, error) {
	return s.call(ctx, history.Messages()[0].Message, history.Len()/2)
}

func (s *scriptedGenerator) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// byMarker answers with the rounds of the first marker found in the prompt.
// Rounds past the end of the script repeat the last answer.
func byMarker(script map[string][]string) func(string, int) (string, error) {
	return func(prompt string, round int) (string, error) {
		for marker, rounds := range script {
			if !strings.Contains(prompt, marker) || len(rounds) == 0 {
				continue
			}
			if round >= len(rounds) {
				round = len(rounds) - 1
			}
			return rounds[round], nil
		}
		return "", nil
	}
}

func fastRetry() *util.BackoffPolicy {
	return &util.BackoffPolicy{
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      1.5,
		MaxRetries:      3,
	}
}

func newTestClient(t *testing.T, gen ai.TextGenerator, maxGleaning int) *GraphClient {
	t.Helper()
	g, err := NewGraphClient(NewGraphClientParams{
		Generator:      gen,
		MaxGleaning:    maxGleaning,
		ParallelChunks: 1,
		CommitTimeout:  5 * time.Second,
		StoreRetry:     fastRetry(),
	})
	if err != nil {
		t.Fatalf("new graph client: %v", err)
	}
	return g
}

func TestNewGraphClient(t *testing.T) {
	gen := &scriptedGenerator{respond: byMarker(nil)}

	if _, err := NewGraphClient(NewGraphClientParams{}); err == nil {
		t.Fatalf("expected error without generator")
	}
	bad := ai.Delimiters{Tuple: "##", Record: "##", Completion: "<|COMPLETE|>"}
	if _, err := NewGraphClient(NewGraphClientParams{Generator: gen, Delimiters: bad}); err == nil {
		t.Fatalf("expected error for overlapping delimiters")
	}

	g, err := NewGraphClient(NewGraphClientParams{Generator: gen, MaxGleaning: -3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.maxGleaning != 0 {
		t.Fatalf("expected negative gleaning clamped to 0, got %d", g.maxGleaning)
	}
	if g.parallelChunks != 1 {
		t.Fatalf("expected default parallelism 1, got %d", g.parallelChunks)
	}
	if g.delimiters != ai.DefaultDelimiters() {
		t.Fatalf("expected default delimiters, got %+v", g.delimiters)
	}
	if g.registry == nil {
		t.Fatalf("expected static registry by default")
	}
}
