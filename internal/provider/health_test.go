package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewHealthCheck_Ollama(t *testing.T) {
	t.Parallel()

	paths := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	hc := NewHealthCheck(&Config{Backend: BackendOllama, Ollama: ProviderOllama{Host: srv.URL + "/"}})
	if hc == nil {
		t.Fatal("expected a health check for ollama")
	}
	if err := hc.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if gotPath := <-paths; gotPath != "/api/tags" {
		t.Errorf("path = %q, want /api/tags", gotPath)
	}
}

func TestNewHealthCheck_OpenAIAuthAndStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ok := NewHealthCheck(&Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{APIKey: "sk-test", BaseURL: srv.URL}})
	if err := ok.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck with valid key: %v", err)
	}

	bad := NewHealthCheck(&Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{APIKey: "wrong", BaseURL: srv.URL}})
	if err := bad.HealthCheck(context.Background()); err == nil {
		t.Error("expected error for HTTP 401")
	}
}

func TestNewHealthCheck_ArkHasNone(t *testing.T) {
	t.Parallel()

	if hc := NewHealthCheck(&Config{Backend: BackendArk}); hc != nil {
		t.Errorf("expected nil health check for ark, got %T", hc)
	}
}
