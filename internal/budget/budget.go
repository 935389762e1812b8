// Package budget provides token budget estimation for the synthesis prompt.
// Because the assistant supports multiple LLM backends with different
// tokenizers, this package uses a conservative character-based heuristic:
// 1 token ≈ 4 characters of English prose.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input context budget in tokens.
	// It fits 8k-context models (llama3.2 via Ollama) with room for the answer.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// TrimSources drops entries from the end of sources until the estimated
// token count of fixed plus the remaining sources fits within maxTokens.
// sources are ordered best first, so the lowest-ranked entries go first.
// fixed holds the messages that are always sent (system prompt and the user
// query without its source block).
//
// If fixed alone exceeds the budget, an empty slice is returned; callers
// should warn separately.
func TrimSources(fixed []*schema.Message, sources []string, maxTokens int) []string {
	if len(sources) == 0 {
		return sources
	}

	total := EstimateMessages(fixed)
	for i, s := range sources {
		total += Estimate(s)
		if total > maxTokens {
			return sources[:i]
		}
	}
	return sources
}
