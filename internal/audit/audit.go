// Package audit logs each CLI command invocation with the configuration it
// resolved, so operators can trace which catalog, index, and models a run
// used. Secrets are logged as presence or absence only; database URLs are
// logged with the password removed.
package audit

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"strings"
)

// kind says how an audited value is rendered.
type kind int

const (
	plain kind = iota
	secret
	dsn
)

// auditEntry defines an env var to include in the audit log.
type auditEntry struct {
	key  string
	kind kind
}

// auditKeys is the ordered list of env vars included in every audit log entry.
var auditKeys = []auditEntry{
	{"MODEL_PROVIDER", plain},
	{"OLLAMA_HOST", plain},
	{"OLLAMA_MODEL", plain},
	{"OPENAI_API_KEY", secret},
	{"OPENAI_MODEL", plain},
	{"AZURE_OPENAI_API_KEY", secret},
	{"AZURE_OPENAI_ENDPOINT", plain},
	{"AZURE_OPENAI_DEPLOYMENT", plain},
	{"ARK_API_KEY", secret},
	{"ARK_MODEL", plain},
	{"GOOGLE_API_KEY", secret},
	{"GEMINI_API_KEY", secret},
	{"GEMINI_MODEL", plain},
	{"EMBEDDING_PROVIDER", plain},
	{"EMBEDDING_MODEL", plain},
	{"EMBEDDING_DIMENSIONS", plain},
	{"EMBEDDING_API_KEY", secret},
	{"DATABASE_URL", dsn},
	{"SHOPAI_SEARCH_BACKEND", plain},
	{"SHOPAI_FILTER_SCOPE", plain},
	{"SHOPAI_CALL_TIMEOUT", plain},
	{"QDRANT_HOST", plain},
	{"QDRANT_PORT", plain},
	{"QDRANT_COLLECTION", plain},
	{"QDRANT_API_KEY", secret},
	{"SHOPAI_CACHE_DB", plain},
	{"LOG_LEVEL", plain},
	{"LOG_FORMAT", plain},
	{"LANGFUSE_PUBLIC_KEY", secret},
	{"LANGFUSE_SECRET_KEY", secret},
}

// LogCommandStart emits a structured audit log entry when a CLI command begins.
// It records the command name, config file source, and sanitised environment.
func LogCommandStart(ctx context.Context, log *slog.Logger, command string, configPath string) {
	attrs := make([]slog.Attr, 0, len(auditKeys)+2)
	attrs = append(attrs,
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	)
	for _, entry := range auditKeys {
		attrs = append(attrs, slog.String(entry.key, render(entry.kind, os.Getenv(entry.key))))
	}
	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey returns the log-safe rendering of an env var value: "set" or
// "unset" for secrets, a password-free URL for DATABASE_URL, and the value
// itself otherwise.
func SanitiseKey(key, value string) string {
	for _, entry := range auditKeys {
		if entry.key == key {
			return render(entry.kind, value)
		}
	}
	return valOrUnset(value)
}

func render(k kind, v string) string {
	switch k {
	case secret:
		return presence(v)
	case dsn:
		return redactDSN(v)
	default:
		return valOrUnset(v)
	}
}

// redactDSN strips the password from a postgres:// URL. Values that do not
// parse as a URL with a host are reduced to presence only.
func redactDSN(v string) string {
	if v == "" {
		return "unset"
	}
	u, err := url.Parse(v)
	if err != nil || u.Host == "" {
		return presence(v)
	}
	return u.Redacted()
}

// presence returns "set" if the value is non-empty, "unset" otherwise.
func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// valOrUnset returns the value if non-empty, "unset" otherwise.
func valOrUnset(v string) string {
	if v != "" {
		return v
	}
	return "unset"
}

// sanitiseConfigPath returns the config path or "none" if empty.
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err == nil && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
