package embedder

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/shopai-go/internal/catalog"
	"github.com/54b3r/shopai-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultGeminiModel = "text-embedding-004"
)

// Settings is the resolved embedder configuration.
type Settings struct {
	// Backend is one of ollama, openai, azure, gemini.
	Backend string
	// Model is the embedding model or Azure deployment.
	Model string
	// Endpoint is the Ollama host, OpenAI base URL or Azure endpoint.
	Endpoint string
	// APIKey authenticates the openai, azure and gemini backends.
	APIKey string
	// APIVersion is the Azure OpenAI API version.
	APIVersion string
	// Dimensions is the vector length every backend is asked for and
	// every vector is checked against.
	Dimensions int
}

// Dimensions returns the configured embedding vector size.
// EMBEDDING_DIMENSIONS overrides catalog.DefaultDimensions.
func Dimensions() int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	return catalog.DefaultDimensions
}

// SettingsFromEnv resolves embedder settings using cascading defaults that
// inherit from the chat provider configuration when embedding-specific
// overrides are not set.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER, else MODEL_PROVIDER, else ollama
//  2. Per-backend credentials are inherited from the chat provider's env vars
//  3. EMBEDDING_MODEL overrides the default model for the resolved backend
//  4. EMBEDDING_API_KEY overrides the inherited API key
//  5. EMBEDDING_ENDPOINT overrides the inherited endpoint
//  6. EMBEDDING_DIMENSIONS overrides the 768-wide default
func SettingsFromEnv() (*Settings, error) {
	s := &Settings{
		Backend:    getEnv("EMBEDDING_PROVIDER"),
		Model:      getEnv("EMBEDDING_MODEL"),
		Endpoint:   getEnv("EMBEDDING_ENDPOINT"),
		APIKey:     getEnv("EMBEDDING_API_KEY"),
		Dimensions: Dimensions(),
	}
	if s.Backend == "" {
		s.Backend = getEnvOrDefault("MODEL_PROVIDER", "ollama")
	}

	switch s.Backend {
	case "ollama":
		s.Endpoint = firstNonEmpty(s.Endpoint, getEnv("OLLAMA_HOST"), "http://localhost:11434")
		s.Model = firstNonEmpty(s.Model, defaultOllamaModel)
	case "openai":
		s.APIKey = firstNonEmpty(s.APIKey, getEnv("OPENAI_API_KEY"))
		if s.APIKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		s.Endpoint = firstNonEmpty(s.Endpoint, "https://api.openai.com/v1")
		s.Model = firstNonEmpty(s.Model, defaultOpenAIModel)
	case "azure":
		s.APIKey = firstNonEmpty(s.APIKey, getEnv("AZURE_OPENAI_API_KEY"))
		if s.APIKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		s.Endpoint = firstNonEmpty(s.Endpoint, getEnv("AZURE_OPENAI_ENDPOINT"))
		if s.Endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		s.APIVersion = getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview")
		s.Model = firstNonEmpty(s.Model, defaultOpenAIModel)
	case "gemini":
		s.APIKey = firstNonEmpty(s.APIKey, getEnv("GEMINI_API_KEY"))
		if s.APIKey == "" {
			return nil, fmt.Errorf("embedder: gemini requires GEMINI_API_KEY or EMBEDDING_API_KEY")
		}
		s.Model = firstNonEmpty(s.Model, defaultGeminiModel)
	default:
		return nil, fmt.Errorf("embedder: unknown backend %q (valid: ollama, openai, azure, gemini)", s.Backend)
	}
	return s, nil
}

// New constructs a rag.Embedder from resolved settings.
func New(ctx context.Context, s *Settings) (rag.Embedder, error) {
	switch s.Backend {
	case "ollama":
		return NewOllamaEmbedder(&OllamaConfig{
			Host:       s.Endpoint,
			Model:      s.Model,
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
			KeepAlive:  getEnv("OLLAMA_KEEP_ALIVE"),
		}), nil
	case "openai":
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    s.Endpoint,
			APIKey:     s.APIKey,
			Model:      s.Model,
			Dimensions: s.Dimensions,
		}), nil
	case "azure":
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimRight(s.Endpoint, "/"),
			APIKey:     s.APIKey,
			Model:      s.Model,
			Dimensions: s.Dimensions,
			Azure:      true,
			APIVersion: s.APIVersion,
		}), nil
	case "gemini":
		return NewGeminiEmbedder(ctx, &GeminiConfig{
			APIKey:     s.APIKey,
			Model:      s.Model,
			Dimensions: s.Dimensions,
		})
	default:
		return nil, fmt.Errorf("embedder: unknown backend %q", s.Backend)
	}
}

// NewFromEnv resolves settings from the environment and builds the embedder.
func NewFromEnv(ctx context.Context) (rag.Embedder, *Settings, error) {
	s, err := SettingsFromEnv()
	if err != nil {
		return nil, nil, err
	}
	emb, err := New(ctx, s)
	if err != nil {
		return nil, nil, err
	}
	return emb, s, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// getEnv returns the value of the named environment variable, or empty string.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
