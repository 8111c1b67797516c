package openai

import (
	"time"

	"github.com/OFFIS-RIT/lexgraph/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// GraphOpenAIClient implements ai.GraphAIClient against the OpenAI chat
// completions API or any compatible server (vLLM, LM Studio, Azure proxies).
//
// A GraphOpenAIClient should be created using NewGraphOpenAIClient.
type GraphOpenAIClient struct {
	model   string
	baseURL string

	metrics ai.MetricsRecorder

	ChatClient *openai.Client
}

// NewGraphOpenAIClientParams defines the configuration parameters for
// creating a new GraphOpenAIClient.
//
// BaseURL is empty for api.openai.com. RequestTimeout bounds the HTTP
// request; retries are handled by ai.Extractor, so the SDK's own retries
// are disabled.
type NewGraphOpenAIClientParams struct {
	Model          string
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
}

// NewGraphOpenAIClient creates a new client. It does not contact the API.
//
// Example:
//
//	client := openai.NewGraphOpenAIClient(openai.NewGraphOpenAIClientParams{
//		Model:  "gpt-4o-mini",
//		APIKey: os.Getenv("OPENAI_API_KEY"),
//	})
func NewGraphOpenAIClient(params NewGraphOpenAIClientParams) *GraphOpenAIClient {
	options := []option.RequestOption{
		option.WithAPIKey(params.APIKey),
		option.WithMaxRetries(0),
	}
	if params.BaseURL != "" {
		options = append(options, option.WithBaseURL(params.BaseURL))
	}
	if params.RequestTimeout > 0 {
		options = append(options, option.WithRequestTimeout(params.RequestTimeout))
	}

	client := openai.NewClient(options...)

	return &GraphOpenAIClient{
		model:      params.Model,
		baseURL:    params.BaseURL,
		ChatClient: &client,
	}
}

// ResetMetrics clears all accumulated token and timing metrics to zero.
func (c *GraphOpenAIClient) ResetMetrics() {
	c.metrics.Reset()
}

// GetMetrics returns the accumulated token usage and timing metrics since the last reset.
func (c *GraphOpenAIClient) GetMetrics() ai.ModelMetrics {
	return c.metrics.Get()
}
