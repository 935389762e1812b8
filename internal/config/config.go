// Package config provides YAML-based configuration for shopai.
// Configuration is loaded with a layered precedence: defaults, then the YAML
// file, then env vars. Environment variables always win.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. SHOPAI_CONFIG environment variable
//  3. ~/.shopai/config.yaml
//  4. ./shopai.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Model configures the chat model used for extraction and synthesis.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Database configures the Postgres catalog.
	Database DatabaseConfig `yaml:"database"`

	// Qdrant configures the optional Qdrant vector index.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Search configures retrieval and fusion.
	Search SearchConfig `yaml:"search"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`

	// Cache configures the ingestion embedding cache.
	Cache CacheConfig `yaml:"cache"`
}

// ModelConfig holds chat model settings.
type ModelConfig struct {
	// Provider selects the backend: ollama, openai, azure, ark, gemini.
	Provider string `yaml:"provider"`

	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int `yaml:"max_tokens"`

	Ollama OllamaConfig `yaml:"ollama"`
	OpenAI OpenAIConfig `yaml:"openai"`
	Azure  AzureConfig  `yaml:"azure"`
	Ark    ArkConfig    `yaml:"ark"`
	Gemini GeminiConfig `yaml:"gemini"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	Deployment string `yaml:"deployment"`
	APIVersion string `yaml:"api_version"`
}

// ArkConfig holds Volcengine Ark provider settings.
type ArkConfig struct {
	// APIKey is the Ark API key. Prefer env var ARK_API_KEY.
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (ollama, openai, azure, gemini).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions is the embedding width. It must match the stored vectors.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
}

// DatabaseConfig holds Postgres settings.
type DatabaseConfig struct {
	// URL is the Postgres DSN. Prefer env var DATABASE_URL when it carries a password.
	URL string `yaml:"url"`
	// MaxConns caps the connection pool.
	MaxConns int `yaml:"max_conns"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	TLS    bool   `yaml:"tls"`
}

// SearchConfig holds retrieval settings.
type SearchConfig struct {
	// Backend selects the retrieval backend: postgres or qdrant.
	Backend string `yaml:"backend"`
	// BlevePath is the on-disk full-text index used by the qdrant backend.
	BlevePath string `yaml:"bleve_path"`
	// RRFK is the reciprocal-rank fusion constant.
	RRFK float64 `yaml:"rrf_k"`
	// CandidateLimit caps each sub-ranking.
	CandidateLimit int `yaml:"candidate_limit"`
	// ResultLimit caps the fused ranking.
	ResultLimit int `yaml:"result_limit"`
	// SourceLimit is the number of results passed to the answer prompt.
	SourceLimit int `yaml:"source_limit"`
	// FilterScope maps filter columns to stages, e.g. "price=vector+fulltext".
	FilterScope string `yaml:"filter_scope"`
	// CallTimeout bounds each external call, e.g. "60s".
	CallTimeout string `yaml:"call_timeout"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	Host      string `yaml:"host"`
}

// CacheConfig holds embedding cache settings.
type CacheConfig struct {
	// DBPath is the SQLite database path. Set to "disabled" to disable.
	DBPath string `yaml:"db_path"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"OPENAI_BASE_URL", func(c *Config) string { return c.Model.OpenAI.BaseURL }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"ARK_API_KEY", func(c *Config) string { return c.Model.Ark.APIKey }},
	{"ARK_MODEL", func(c *Config) string { return c.Model.Ark.Model }},
	{"ARK_BASE_URL", func(c *Config) string { return c.Model.Ark.BaseURL }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"DATABASE_URL", func(c *Config) string { return c.Database.URL }},
	{"DATABASE_MAX_CONNS", func(c *Config) string { return intStr(c.Database.MaxConns) }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"SHOPAI_SEARCH_BACKEND", func(c *Config) string { return c.Search.Backend }},
	{"SHOPAI_BLEVE_PATH", func(c *Config) string { return c.Search.BlevePath }},
	{"SHOPAI_RRF_K", func(c *Config) string { return floatStr(c.Search.RRFK) }},
	{"SHOPAI_CANDIDATE_LIMIT", func(c *Config) string { return intStr(c.Search.CandidateLimit) }},
	{"SHOPAI_RESULT_LIMIT", func(c *Config) string { return intStr(c.Search.ResultLimit) }},
	{"SHOPAI_SOURCE_LIMIT", func(c *Config) string { return intStr(c.Search.SourceLimit) }},
	{"SHOPAI_FILTER_SCOPE", func(c *Config) string { return c.Search.FilterScope }},
	{"SHOPAI_CALL_TIMEOUT", func(c *Config) string { return c.Search.CallTimeout }},
	{"SHOPAI_HOST", func(c *Config) string { return c.Server.Host }},
	{"SHOPAI_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
	{"SHOPAI_CACHE_DB", func(c *Config) string { return c.Cache.DBPath }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue
		}
		if err := os.Setenv(m.envKey, yamlVal); err != nil {
			return "", fmt.Errorf("config: set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("SHOPAI_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".shopai", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("shopai.yaml"); err == nil {
		return "shopai.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// floatStr converts a float64 to string, returning "" for zero values.
func floatStr(v float64) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(strconv.FormatFloat(v, 'f', 4, 64), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}

// Search backends accepted by SHOPAI_SEARCH_BACKEND.
const (
	BackendPostgres = "postgres"
	BackendQdrant   = "qdrant"
)

// DefaultCallTimeout bounds each embedding, chat, and datastore call.
const DefaultCallTimeout = 60 * time.Second

// SearchSettings is the resolved retrieval configuration. Zero limits mean
// "use the package default" downstream.
type SearchSettings struct {
	Backend        string
	BlevePath      string
	RRFK           float64
	CandidateLimit int
	ResultLimit    int
	SourceLimit    int
	FilterScope    string
	CallTimeout    time.Duration
}

// SearchSettingsFromEnv reads the SHOPAI_* retrieval variables. Unparseable
// numbers are reported rather than silently replaced by defaults.
func SearchSettingsFromEnv() (*SearchSettings, error) {
	s := &SearchSettings{
		Backend:     strings.ToLower(envOr("SHOPAI_SEARCH_BACKEND", BackendPostgres)),
		BlevePath:   os.Getenv("SHOPAI_BLEVE_PATH"),
		FilterScope: os.Getenv("SHOPAI_FILTER_SCOPE"),
		CallTimeout: DefaultCallTimeout,
	}
	if s.Backend != BackendPostgres && s.Backend != BackendQdrant {
		return nil, fmt.Errorf("config: SHOPAI_SEARCH_BACKEND %q is not one of postgres, qdrant", s.Backend)
	}

	var err error
	if v := os.Getenv("SHOPAI_RRF_K"); v != "" {
		if s.RRFK, err = strconv.ParseFloat(v, 64); err != nil || s.RRFK <= 0 {
			return nil, fmt.Errorf("config: SHOPAI_RRF_K %q must be a positive number", v)
		}
	}
	for _, f := range []struct {
		key string
		dst *int
	}{
		{"SHOPAI_CANDIDATE_LIMIT", &s.CandidateLimit},
		{"SHOPAI_RESULT_LIMIT", &s.ResultLimit},
		{"SHOPAI_SOURCE_LIMIT", &s.SourceLimit},
	} {
		v := os.Getenv(f.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("config: %s %q must be a positive integer", f.key, v)
		}
		*f.dst = n
	}
	if v := os.Getenv("SHOPAI_CALL_TIMEOUT"); v != "" {
		if s.CallTimeout, err = time.ParseDuration(v); err != nil || s.CallTimeout <= 0 {
			return nil, fmt.Errorf("config: SHOPAI_CALL_TIMEOUT %q must be a positive duration", v)
		}
	}
	return s, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
