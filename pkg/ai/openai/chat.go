package openai

import (
	"context"
	"errors"
	"time"

	"github.com/OFFIS-RIT/lexgraph/internal/metrics"
	"github.com/OFFIS-RIT/lexgraph/pkg/ai"
	"github.com/OFFIS-RIT/lexgraph/pkg/logger"

	"github.com/openai/openai-go/v3"
)

// GenerateCompletion sends a single-turn prompt to the chat model and
// returns the generated completion as plain text.
func (c *GraphOpenAIClient) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (string, error) {
	return c.GenerateChat(ctx, []ai.ChatMessage{{Role: ai.RoleUser, Message: prompt}}, opts...)
}

// GenerateChat sends a multi-turn conversation and returns the assistant's
// reply. A response without choices is logged and returned as "" with a
// nil error.
func (c *GraphOpenAIClient) GenerateChat(
	ctx context.Context,
	messages []ai.ChatMessage,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.model,
		Temperature: 0.0,
	}, opts...)

	body := c.buildRequest(messages, options)

	start := time.Now()
	response, err := c.ChatClient.Chat.Completions.New(ctx, body)
	if err != nil {
		return "", classifyError(err)
	}
	duration := time.Since(start).Milliseconds()

	c.metrics.Add(ai.ModelMetrics{
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
		TotalTokens:  int(response.Usage.TotalTokens),
		DurationMs:   duration,
	})
	metrics.LLMTokens.WithLabelValues("input").Add(float64(response.Usage.PromptTokens))
	metrics.LLMTokens.WithLabelValues("output").Add(float64(response.Usage.CompletionTokens))

	if len(response.Choices) == 0 {
		logger.Warn("[AI] Response without choices, treating as empty", "model", options.Model)
		return "", nil
	}
	choice := response.Choices[0]
	if choice.Message.Content == "" {
		logger.Warn("[AI] Empty response from model", "model", options.Model, "finish_reason", choice.FinishReason)
	}
	return choice.Message.Content, nil
}

func (c *GraphOpenAIClient) buildRequest(messages []ai.ChatMessage, options ai.GenerateOptions) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(options.SystemPrompts)+len(messages))
	for _, sp := range options.SystemPrompts {
		msgs = append(msgs, openai.SystemMessage(sp))
	}
	for _, message := range messages {
		switch message.Role {
		case ai.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(message.Message))
		case ai.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(message.Message))
		default:
			msgs = append(msgs, openai.UserMessage(message.Message))
		}
	}

	body := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(options.Model),
		Messages:    msgs,
		Temperature: openai.Float(options.Temperature),
	}
	if options.MaxTokens > 0 {
		// api.openai.com deprecated max_tokens; compatible servers often
		// only understand max_tokens.
		if c.baseURL == "" {
			body.MaxCompletionTokens = openai.Int(int64(options.MaxTokens))
		} else {
			body.MaxTokens = openai.Int(int64(options.MaxTokens))
		}
	}
	return body
}

// classifyError maps SDK errors onto ai.TransientError and ai.FatalError.
// Context errors pass through unchanged; everything else without a status
// is a transport failure and therefore transient.
func classifyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return ai.ClassifyStatus(apiErr.StatusCode, err)
	}
	return ai.NewTransientError(0, err)
}
