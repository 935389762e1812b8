package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/54b3r/shopai-go/internal/catalog"
	"github.com/54b3r/shopai-go/internal/rag"
)

// knownChatModelPrefixes contains name fragments that identify chat/completion
// models which are NOT suitable for embedding.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"gemma",
	"phi-",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// Warn logs configuration smells that will not fail the run but will
// produce poor retrieval: a chat model used for embeddings, or an inherited
// backend the operator may not have meant.
func Warn(log *slog.Logger, s *Settings, explicitProvider bool) {
	if !explicitProvider && s.Backend != "ollama" {
		log.Warn("embedder: EMBEDDING_PROVIDER is not set, inheriting MODEL_PROVIDER",
			slog.String("backend", s.Backend),
			slog.String("hint", "set EMBEDDING_PROVIDER=ollama (or openai/azure/gemini) to be explicit"),
		)
	}
	if looksLikeChatModel(s.Model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model",
			slog.String("model", s.Model),
			slog.String("hint", "use a dedicated embedding model e.g. nomic-embed-text, text-embedding-3-small"),
		)
	}
}

// Probe embeds a single short string and checks the vector width against
// dims. It is run once at startup so a misconfigured model fails fast
// instead of on the first query.
func Probe(ctx context.Context, emb rag.Embedder, dims int) error {
	vecs, err := emb.Embed(ctx, []string{"probe"})
	if err != nil {
		return fmt.Errorf("embedder: probe: %w", err)
	}
	if len(vecs) != 1 {
		return fmt.Errorf("embedder: probe: expected 1 embedding, got %d", len(vecs))
	}
	if err := catalog.CheckDimensions(vecs[0], dims); err != nil {
		return fmt.Errorf("embedder: probe: %w", err)
	}
	return nil
}
