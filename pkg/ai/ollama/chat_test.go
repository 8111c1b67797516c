package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/lexgraph/pkg/ai"

	"github.com/ollama/ollama/api"
)

func TestBuildRequestSizesContext(t *testing.T) {
	c, err := NewGraphOllamaClient(NewGraphOllamaClientParams{Model: "llama", BaseURL: "http://localhost:11434", MinContext: 4096})
	if err != nil {
		t.Fatal(err)
	}

	small := c.buildRequest([]ai.ChatMessage{{Role: ai.RoleUser, Message: "short"}}, ai.GenerateOptions{Model: "llama"})
	if _, ok := small.Options["num_ctx"]; ok {
		t.Fatal("expected no num_ctx override for a short prompt")
	}

	long := strings.Repeat("articolo comma legge decreto ", 4000)
	big := c.buildRequest([]ai.ChatMessage{{Role: ai.RoleUser, Message: long}}, ai.GenerateOptions{Model: "llama", MaxTokens: 1000})
	n, ok := big.Options["num_ctx"].(int)
	if !ok || n <= 4096 {
		t.Fatalf("expected num_ctx above the minimum, got %v", big.Options["num_ctx"])
	}
	if big.Options["num_predict"] != 1000 {
		t.Fatalf("expected num_predict 1000, got %v", big.Options["num_predict"])
	}
}

func TestBuildRequestRoles(t *testing.T) {
	c, _ := NewGraphOllamaClient(NewGraphOllamaClientParams{Model: "llama", BaseURL: "http://localhost:11434"})
	req := c.buildRequest([]ai.ChatMessage{
		{Role: ai.RoleUser, Message: "p"},
		{Role: ai.RoleAssistant, Message: "r"},
	}, ai.GenerateOptions{Model: "llama", SystemPrompts: []string{"sys"}})

	want := []string{"system", "user", "assistant"}
	if len(req.Messages) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(req.Messages))
	}
	for i, role := range want {
		if req.Messages[i].Role != role {
			t.Fatalf("message %d: expected role %s, got %s", i, role, req.Messages[i].Role)
		}
	}
}

func TestGenerateChatAgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req api.ChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model == "overloaded" {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"error":"server busy"}`)
			return
		}
		if req.Model == "missing" {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":"model not found"}`)
			return
		}
		fmt.Fprint(w, `{"model":"llama","message":{"role":"assistant","content":"hello"},"done":true,"prompt_eval_count":3,"eval_count":2}`+"\n")
	}))
	defer srv.Close()

	c, err := NewGraphOllamaClient(NewGraphOllamaClientParams{Model: "llama", BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}

	out, err := c.GenerateCompletion(context.Background(), "hi")
	if err != nil || out != "hello" {
		t.Fatalf("expected hello, got %q (%v)", out, err)
	}
	if m := c.GetMetrics(); m.TotalTokens != 5 {
		t.Fatalf("expected 5 tokens, got %+v", m)
	}

	_, err = c.GenerateCompletion(context.Background(), "hi", ai.WithModel("overloaded"))
	if !ai.IsTransient(err) {
		t.Fatalf("expected 503 to be transient, got %v", err)
	}
	_, err = c.GenerateCompletion(context.Background(), "hi", ai.WithModel("missing"))
	if !ai.IsFatal(err) {
		t.Fatalf("expected 404 to be fatal, got %v", err)
	}
}
