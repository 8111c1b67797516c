package ai

import (
	"sync"

	"github.com/OFFIS-RIT/lexgraph/pkg/logger"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// EstimateTokens counts tokens with the o200k_base encoding. When the
// encoding cannot be loaded (it is fetched on first use) it falls back to
// four bytes per token.
func EstimateTokens(text string) int {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("o200k_base")
		if err != nil {
			logger.Debug("[AI] tiktoken encoding unavailable, using byte estimate", "err", err)
			return
		}
		enc = e
	})
	if enc == nil {
		return (len(text) + 3) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// EstimateMessagesTokens sums EstimateTokens over a conversation plus a
// small per-message overhead.
func EstimateMessagesTokens(messages []ChatMessage) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Message) + 4
	}
	return total
}
