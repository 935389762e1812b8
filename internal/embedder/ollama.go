package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxOllamaResponse caps the response body. A batch of 64 texts at 4096
// dimensions encodes well below this.
const maxOllamaResponse = 64 << 20

// OllamaEmbedder implements rag.Embedder using the Ollama /api/embed endpoint.
// It is safe for concurrent use. No API key is required.
type OllamaEmbedder struct {
	host       string
	model      string
	dimensions int
	keepAlive  string
	client     *http.Client
}

// OllamaConfig holds the settings for constructing an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the Ollama server base URL (e.g. "http://localhost:11434").
	Host string
	// Model is the embedding model name (e.g. "nomic-embed-text").
	Model string
	// Dimensions asks the server to shorten vectors. Zero sends nothing and
	// keeps the model's native width.
	Dimensions int
	// KeepAlive is how long Ollama keeps the model loaded after a request,
	// e.g. "10m". Empty uses the server default.
	KeepAlive string
}

// NewOllamaEmbedder constructs an OllamaEmbedder from the given config.
func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	return &OllamaEmbedder{
		host:       strings.TrimRight(cfg.Host, "/"),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		keepAlive:  cfg.KeepAlive,
		client:     &http.Client{Timeout: 2 * time.Minute},
	}
}

type ollamaEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Truncate   bool     `json:"truncate"`
	Dimensions int      `json:"dimensions,omitempty"`
	KeepAlive  string   `json:"keep_alive,omitempty"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// Embed converts a batch of texts into their corresponding embeddings.
// Inputs longer than the model context are truncated by the server rather
// than rejected, matching how product descriptions of any length are stored.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	payload, err := json.Marshal(ollamaEmbedRequest{
		Model:      e.model,
		Input:      texts,
		Truncate:   true,
		Dimensions: e.dimensions,
		KeepAlive:  e.keepAlive,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxOllamaResponse))
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: read response: %w", err)
	}

	var result ollamaEmbedResponse
	decodeErr := json.Unmarshal(body, &result)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if decodeErr == nil && result.Error != "" {
			msg += ": " + result.Error
		}
		return nil, fmt.Errorf("ollama embedder: model %s: %s", e.model, msg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("ollama embedder: decode response: %w", decodeErr)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embedder: expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}
	width := len(result.Embeddings[0])
	for i, vec := range result.Embeddings {
		if len(vec) != width {
			return nil, fmt.Errorf("ollama embedder: embedding %d has %d dimensions, embedding 0 has %d", i, len(vec), width)
		}
	}
	return result.Embeddings, nil
}
