package tracing

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestSettingsFromEnv(t *testing.T) {
	tests := []struct {
		name        string
		public      string
		secret      string
		host        string
		wantNil     bool
		wantHostStr string
	}{
		{name: "no keys", wantNil: true},
		{name: "public only", public: "pk", wantNil: true},
		{name: "default host", public: "pk", secret: "sk", wantHostStr: "http://localhost:3000"},
		{name: "explicit host", public: "pk", secret: "sk", host: "https://lf.example.com", wantHostStr: "https://lf.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LANGFUSE_PUBLIC_KEY", tt.public)
			t.Setenv("LANGFUSE_SECRET_KEY", tt.secret)
			t.Setenv("LANGFUSE_HOST", tt.host)

			s := SettingsFromEnv()
			if tt.wantNil {
				if s != nil {
					t.Errorf("expected nil settings, got %+v", s)
				}
				return
			}
			if s == nil {
				t.Fatal("expected settings")
			}
			if s.Host != tt.wantHostStr {
				t.Errorf("Host = %q, want %q", s.Host, tt.wantHostStr)
			}
		})
	}
}

func TestInstall_DisabledIsNoop(t *testing.T) {
	t.Setenv("LANGFUSE_PUBLIC_KEY", "")
	t.Setenv("LANGFUSE_SECRET_KEY", "")

	var buf bytes.Buffer
	flush := Install(slog.New(slog.NewTextHandler(&buf, nil)))
	flush()

	if !strings.Contains(buf.String(), "langfuse tracing disabled") {
		t.Errorf("expected disabled log line, got %q", buf.String())
	}
}
