// Package tracing wires Langfuse as a global eino callback so the extraction
// and synthesis model calls are traced. It is opt-in: without keys nothing
// is registered.
package tracing

import (
	"log/slog"
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/54b3r/shopai-go/internal/version"
)

// Settings holds the Langfuse connection parameters.
type Settings struct {
	Host      string
	PublicKey string
	SecretKey string
}

// SettingsFromEnv reads LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY, and
// LANGFUSE_SECRET_KEY. It returns nil when either key is missing.
func SettingsFromEnv() *Settings {
	s := &Settings{
		Host:      os.Getenv("LANGFUSE_HOST"),
		PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
	}
	if s.PublicKey == "" || s.SecretKey == "" {
		return nil
	}
	if s.Host == "" {
		s.Host = "http://localhost:3000"
	}
	return s
}

// Setup builds the Langfuse callback handler. The returned flush function
// must be called before process exit so buffered traces are sent.
func Setup(s *Settings) (callbacks.Handler, func()) {
	return langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      s.Host,
		PublicKey: s.PublicKey,
		SecretKey: s.SecretKey,
		Name:      "shopai",
		Release:   version.Version,
	})
}

// Install registers Langfuse globally when configured and returns the flush
// function. When tracing is not configured the returned function is a no-op.
func Install(log *slog.Logger) func() {
	s := SettingsFromEnv()
	if s == nil {
		log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY or LANGFUSE_SECRET_KEY not set"))
		return func() {}
	}
	handler, flush := Setup(s)
	callbacks.AppendGlobalHandlers(handler)
	log.Info("langfuse tracing enabled", slog.String("host", s.Host))
	return flush
}
