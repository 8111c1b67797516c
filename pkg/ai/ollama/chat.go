package ollama

import (
	"context"
	"errors"

	"github.com/OFFIS-RIT/lexgraph/internal/metrics"
	"github.com/OFFIS-RIT/lexgraph/pkg/ai"
	"github.com/OFFIS-RIT/lexgraph/pkg/logger"

	"github.com/ollama/ollama/api"
)

// completion headroom added on top of the prompt estimate when sizing num_ctx
const responseReserve = 2048

// GenerateCompletion sends a single-turn prompt and returns assistant text.
func (c *GraphOllamaClient) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (string, error) {
	return c.GenerateChat(ctx, []ai.ChatMessage{{Role: ai.RoleUser, Message: prompt}}, opts...)
}

// GenerateChat sends the full conversation and returns the assistant reply.
func (c *GraphOllamaClient) GenerateChat(
	ctx context.Context,
	messages []ai.ChatMessage,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.model,
		Temperature: 0.0,
	}, opts...)

	req := c.buildRequest(messages, options)

	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer c.reqLock.Release(1)

	var final api.ChatResponse
	if err := c.Client.Chat(ctx, req, func(cr api.ChatResponse) error {
		final.Message.Content += cr.Message.Content
		if cr.Done {
			final.Done = true
			final.Metrics = cr.Metrics
		}
		return nil
	}); err != nil {
		return "", classifyError(err)
	}

	c.metrics.Add(ai.ModelMetrics{
		InputTokens:  final.Metrics.PromptEvalCount,
		OutputTokens: final.Metrics.EvalCount,
		TotalTokens:  final.Metrics.PromptEvalCount + final.Metrics.EvalCount,
		DurationMs:   final.Metrics.TotalDuration.Milliseconds(),
	})
	metrics.LLMTokens.WithLabelValues("input").Add(float64(final.Metrics.PromptEvalCount))
	metrics.LLMTokens.WithLabelValues("output").Add(float64(final.Metrics.EvalCount))

	if final.Message.Content == "" {
		logger.Warn("[AI] Empty response from model", "model", options.Model, "done", final.Done)
	}
	return final.Message.Content, nil
}

func (c *GraphOllamaClient) buildRequest(messages []ai.ChatMessage, options ai.GenerateOptions) *api.ChatRequest {
	msgs := make([]api.Message, 0, len(options.SystemPrompts)+len(messages))
	all := make([]ai.ChatMessage, 0, cap(msgs))
	for _, sp := range options.SystemPrompts {
		all = append(all, ai.ChatMessage{Role: ai.RoleSystem, Message: sp})
	}
	all = append(all, messages...)
	for _, m := range all {
		role := m.Role
		if role != ai.RoleSystem && role != ai.RoleAssistant {
			role = ai.RoleUser
		}
		msgs = append(msgs, api.Message{Role: role, Content: m.Message})
	}

	stream := false
	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: msgs,
		Stream:   &stream,
		Options:  map[string]any{"temperature": options.Temperature},
	}
	if options.MaxTokens > 0 {
		req.Options["num_predict"] = options.MaxTokens
	}

	reserve := responseReserve
	if options.MaxTokens > 0 {
		reserve = options.MaxTokens
	}
	if tokens := ai.EstimateMessagesTokens(all) + reserve; tokens > c.minContext {
		req.Options["num_ctx"] = tokens
	}
	return req
}

func classifyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return ai.ClassifyStatus(statusErr.StatusCode, err)
	}
	var statusErrPtr *api.StatusError
	if errors.As(err, &statusErrPtr) {
		return ai.ClassifyStatus(statusErrPtr.StatusCode, err)
	}
	return ai.NewTransientError(0, err)
}
