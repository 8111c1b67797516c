package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/lexgraph/internal/metrics"
	"github.com/OFFIS-RIT/lexgraph/internal/util"
	"github.com/OFFIS-RIT/lexgraph/pkg/logger"
)

// TextGenerator is the contract the gleaning loop depends on.
type TextGenerator interface {
	// Extract sends a fresh extraction prompt.
	Extract(ctx context.Context, prompt string) (string, error)
	// Continue sends the full history and returns the next assistant turn.
	Continue(ctx context.Context, history ConversationState) (string, error)
}

// ExtractorConfig configures an Extractor.
type ExtractorConfig struct {
	Model         string
	Temperature   float64
	MaxTokens     int
	SystemPrompts []string
	// CallTimeout bounds a single backend call; retries get a fresh timeout.
	CallTimeout time.Duration
	Retry       util.BackoffPolicy
}

// Extractor wraps a GraphAIClient with per-call timeouts and retries of
// transient failures. It holds no conversation state and is safe for
// concurrent use.
type Extractor struct {
	client GraphAIClient
	cfg    ExtractorConfig
}

func NewExtractor(client GraphAIClient, cfg ExtractorConfig) *Extractor {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 2 * time.Minute
	}
	return &Extractor{client: client, cfg: cfg}
}

func (e *Extractor) options() []GenerateOption {
	opts := []GenerateOption{
		WithModel(e.cfg.Model),
		WithTemperature(e.cfg.Temperature),
		WithMaxTokens(e.cfg.MaxTokens),
	}
	if len(e.cfg.SystemPrompts) > 0 {
		opts = append(opts, WithSystemPrompts(e.cfg.SystemPrompts...))
	}
	return opts
}

func (e *Extractor) Extract(ctx context.Context, prompt string) (string, error) {
	return e.call(ctx, "extract", func(ctx context.Context) (string, error) {
		return e.client.GenerateCompletion(ctx, prompt, e.options()...)
	})
}

func (e *Extractor) Continue(ctx context.Context, history ConversationState) (string, error) {
	if history.Len() == 0 {
		return "", errors.New("continue called with empty history")
	}
	messages := history.Messages()
	return e.call(ctx, "continue", func(ctx context.Context) (string, error) {
		return e.client.GenerateChat(ctx, messages, e.options()...)
	})
}

// call runs fn with retries. On exhaustion it returns "" and the last error,
// which callers treat as "no new records".
func (e *Extractor) call(ctx context.Context, op string, fn func(context.Context) (string, error)) (string, error) {
	out, err := util.RetryWithBackoff(ctx, e.cfg.Retry,
		func(err error) bool { return !IsFatal(err) },
		func(err error, wait time.Duration) {
			metrics.LLMRequests.WithLabelValues("retry").Inc()
			logger.Warn("[AI] Text generation failed, retrying", "op", op, "wait", wait, "err", err)
		},
		func(ctx context.Context) (string, error) {
			callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
			defer cancel()
			out, err := fn(callCtx)
			if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				return "", NewTransientError(0, fmt.Errorf("call timed out after %s: %w", e.cfg.CallTimeout, err))
			}
			return out, err
		},
	)
	if err != nil {
		metrics.LLMRequests.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if out == "" {
		metrics.LLMRequests.WithLabelValues("empty").Inc()
	} else {
		metrics.LLMRequests.WithLabelValues("ok").Inc()
	}
	return out, nil
}
