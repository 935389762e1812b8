package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/shopai-go/internal/provider"
)

// LLMPinger probes the chat backend. It satisfies the Pinger interface and
// is used by GET /api/ready. *catalog.Store and *rag.QdrantIndex satisfy
// Pinger directly.
type LLMPinger struct {
	// model is the chat model, probed only when no health check exists.
	model model.BaseChatModel
	// healthCheck is the token-free probe for the configured backend.
	healthCheck provider.HealthCheckConfig
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewLLMPinger constructs an LLMPinger for the given model and backend name.
// hc may be nil for backends without a listing endpoint.
func NewLLMPinger(m model.BaseChatModel, hc provider.HealthCheckConfig, name string) *LLMPinger {
	return &LLMPinger{model: m, healthCheck: hc, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping probes the LLM backend for readiness. When a HealthCheckConfig is
// available it is used exclusively; otherwise it falls back to a one-word
// Generate call, which consumes tokens.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if p.healthCheck != nil {
		if err := p.healthCheck.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s health check failed: %w", p.name, err)
		}
		return nil
	}
	if p.model == nil {
		return fmt.Errorf("%s: no health check or model configured", p.name)
	}

	slog.Warn("pinger: falling back to Generate-based health check; tokens will be consumed",
		slog.String("backend", p.name),
	)
	resp, err := p.model.Generate(ctx, []*schema.Message{schema.UserMessage("ping")})
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("generate returned nil response")
	}
	return nil
}
