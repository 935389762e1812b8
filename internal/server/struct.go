package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/shopai-go/internal/agent"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// RequestTimeout bounds one /api/search or /api/ask request end to end.
	// Defaults to 3 minutes if zero.
	RequestTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [slog.Default] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// ProbeTimeout bounds each readiness probe. Defaults to 5s if zero.
	ProbeTimeout time.Duration
	// RateLimit is the sustained request rate allowed per IP on the search
	// and ask endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Enable only behind a reverse proxy that sets them.
	TrustProxy bool
	// Metrics is the metric set shared with the assistant's stage observer.
	// If nil, one is registered against MetricsRegistry.
	Metrics *Metrics
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer serves GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// assistant is the interface the API handlers call.
// *agent.Assistant satisfies it; tests inject a fake.
type assistant interface {
	// Search runs extraction (unless skipped) and hybrid retrieval.
	Search(ctx context.Context, userQuery string, opts agent.SearchOptions) (*agent.SearchResult, error)
	// Prepare builds the synthesis prompt and reports the sources it holds.
	Prepare(ctx context.Context, userQuery string, sr *agent.SearchResult) *agent.Prompt
	// Respond streams the answer to a prepared prompt to w.
	Respond(ctx context.Context, sr *agent.SearchResult, p *agent.Prompt, w io.Writer) (*agent.Answer, error)
}

// Server is the HTTP server that exposes product search and answers.
type Server struct {
	// assistant handles all search and ask requests.
	assistant assistant
	// cfg holds the resolved server configuration.
	cfg *Config
	// handler is the chi router with all middleware applied.
	handler http.Handler
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors for this server.
	metrics *Metrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// searchRequest is the JSON body for POST /api/search.
type searchRequest struct {
	// Query is the user's natural language question.
	Query string `json:"query"`
	// NoExtract skips the filter extraction call and searches the raw query.
	NoExtract bool `json:"no_extract"`
}

// askRequest is the JSON body for POST /api/ask.
type askRequest struct {
	// Query is the user's natural language question.
	Query string `json:"query"`
}

// doneEvent is the payload of the final SSE event on /api/ask.
type doneEvent struct {
	Citations []int64 `json:"citations"`
}

// errorResponse is the JSON body for non-streaming error replies.
type errorResponse struct {
	Error string `json:"error"`
}
