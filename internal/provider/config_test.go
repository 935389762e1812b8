package provider

import (
	"strings"
	"testing"
)

// clearProviderEnv blanks every variable ConfigFromEnv reads.
func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"MODEL_PROVIDER", "MODEL_MAX_TOKENS",
		"OLLAMA_HOST", "OLLAMA_MODEL",
		"OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL",
		"AZURE_OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT", "AZURE_OPENAI_DEPLOYMENT", "AZURE_OPENAI_API_VERSION",
		"ARK_API_KEY", "ARK_MODEL", "ARK_BASE_URL",
		"GOOGLE_API_KEY", "GEMINI_MODEL",
	} {
		t.Setenv(k, "")
	}
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	clearProviderEnv(t)

	cfg := ConfigFromEnv()
	if cfg.Backend != BackendOllama {
		t.Errorf("Backend = %q, want ollama", cfg.Backend)
	}
	if cfg.ModelName() != "llama3.2" {
		t.Errorf("ModelName() = %q, want llama3.2", cfg.ModelName())
	}
	if cfg.Tuning.MaxTokens != 1024 {
		t.Errorf("MaxTokens = %d, want 1024", cfg.Tuning.MaxTokens)
	}
	if cfg.AzureOpenAI.APIVersion != "2024-02-01" {
		t.Errorf("APIVersion = %q", cfg.AzureOpenAI.APIVersion)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigFromEnv_BadMaxTokensFallsBack(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("MODEL_MAX_TOKENS", "lots")

	if got := ConfigFromEnv().Tuning.MaxTokens; got != 1024 {
		t.Errorf("MaxTokens = %d, want fallback 1024", got)
	}
}

// TestConfigFromEnv_RequiredVars starts from a complete environment for
// each backend, removes one variable at a time, and expects Validate to
// name the variable that went missing.
func TestConfigFromEnv_RequiredVars(t *testing.T) {
	backends := map[Backend]map[string]string{
		BackendOllama: {"OLLAMA_MODEL": "llama3.2"},
		BackendOpenAI: {"OPENAI_API_KEY": "sk-test", "OPENAI_MODEL": "gpt-4o"},
		BackendAzure: {
			"AZURE_OPENAI_API_KEY":    "key",
			"AZURE_OPENAI_ENDPOINT":   "https://shop.openai.azure.com",
			"AZURE_OPENAI_DEPLOYMENT": "gpt-4.1",
		},
		BackendArk:    {"ARK_API_KEY": "ark-key", "ARK_MODEL": "doubao-pro-32k"},
		BackendGemini: {"GOOGLE_API_KEY": "AIza-test", "GEMINI_MODEL": "gemini-1.5-flash"},
	}

	for backend, vars := range backends {
		t.Run(string(backend)+"/complete", func(t *testing.T) {
			clearProviderEnv(t)
			t.Setenv("MODEL_PROVIDER", string(backend))
			for k, v := range vars {
				t.Setenv(k, v)
			}
			if err := ConfigFromEnv().Validate(); err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})

		for missing := range vars {
			// Ollama and Gemini fall back to a default model name.
			if missing == "OLLAMA_MODEL" || missing == "GEMINI_MODEL" {
				continue
			}
			t.Run(string(backend)+"/without "+missing, func(t *testing.T) {
				clearProviderEnv(t)
				t.Setenv("MODEL_PROVIDER", string(backend))
				for k, v := range vars {
					if k != missing {
						t.Setenv(k, v)
					}
				}
				err := ConfigFromEnv().Validate()
				if err == nil || !strings.Contains(err.Error(), missing) {
					t.Errorf("Validate() = %v, want error naming %s", err, missing)
				}
			})
		}
	}
}

func TestConfigValidate_UnknownBackend(t *testing.T) {
	t.Parallel()

	err := (&Config{Backend: "bedrock"}).Validate()
	if err == nil || !strings.Contains(err.Error(), `unknown backend "bedrock"`) {
		t.Errorf("Validate() = %v", err)
	}
}

func TestIsAzureReasoningModel(t *testing.T) {
	t.Parallel()

	reasoning := []string{"o1", "o1-mini", "o3-pro", "o4-mini", "O3-Mini", "codex-mini"}
	standard := []string{"gpt-4o", "gpt-4.1", "gpt-35-turbo", "gpt-5.2-codex", "shop-answers", ""}

	for _, d := range reasoning {
		if !isAzureReasoningModel(d) {
			t.Errorf("isAzureReasoningModel(%q) = false, want true", d)
		}
	}
	for _, d := range standard {
		if isAzureReasoningModel(d) {
			t.Errorf("isAzureReasoningModel(%q) = true, want false", d)
		}
	}
}

func TestConfigModelName(t *testing.T) {
	t.Parallel()

	cfg := Config{
		AzureOpenAI: ProviderAzureOpenAI{Deployment: "gpt-4.1"},
		Ark:         ProviderArk{Model: "doubao-pro-32k"},
		Ollama:      ProviderOllama{Model: "llama3.2"},
	}
	for backend, want := range map[Backend]string{
		BackendAzure:  "gpt-4.1",
		BackendArk:    "doubao-pro-32k",
		BackendOllama: "llama3.2",
		"unknown":     "",
	} {
		cfg.Backend = backend
		if got := cfg.ModelName(); got != want {
			t.Errorf("%s: ModelName() = %q, want %q", backend, got, want)
		}
	}
}
