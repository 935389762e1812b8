// Package server implements the HTTP server that exposes hybrid product
// search and grounded answers via a JSON/SSE API.
// The server is started by the `shopai serve` CLI command.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/shopai-go/internal/agent"
	"github.com/54b3r/shopai-go/internal/logging"
)

// maxBodyBytes caps request bodies on the JSON endpoints.
const maxBodyBytes = 64 << 10

// New constructs a Server around a and cfg.
func New(a assistant, cfg *Config) (*Server, error) {
	if a == nil {
		return nil, fmt.Errorf("server: assistant must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// Long enough for streamed answers.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 3 * time.Minute
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(cfg.MetricsRegistry)
	}

	s := &Server{
		assistant: a,
		cfg:       cfg,
		log:       cfg.Logger,
		pingers:   cfg.Pingers,
		metrics:   cfg.Metrics,
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.Logger)
	rl.onReject = func(path string) { s.metrics.rateLimitedTotal.WithLabelValues(path).Inc() }
	s.stopRL = sync.OnceFunc(stop)

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	if cfg.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(requestLogger(cfg.Logger))
	r.Use(s.metrics.middleware)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)
	r.Handle("/metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))
	r.Group(func(r chi.Router) {
		r.Use(rl.middleware)
		r.Post("/api/search", s.handleSearch)
		r.Post("/api/ask", s.handleAsk)
	})
	s.handler = r

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler { return s.handler }

// Close stops background work started by New. Start calls it on return.
func (s *Server) Close() { s.stopRL() }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.Close()
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("shopai server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleSearch handles POST /api/search. It returns the fused ranking and
// the filters that restricted it as JSON.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	sr, err := s.assistant.Search(ctx, req.Query, agent.SearchOptions{SkipExtraction: req.NoExtract})
	s.metrics.searchRequestsTotal.WithLabelValues(outcomeOf(err)).Inc()
	if err != nil {
		logging.FromContext(ctx).Error("search failed", logging.Err(err))
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sr)
}

// handleAsk handles POST /api/ask. Extraction and retrieval run first so
// their failures can still be reported with an HTTP status. The answer is
// then streamed as Server-Sent Events: one "sources" event with the
// products placed in the prompt, data frames with answer text as it
// arrives, and a final "done" event carrying the citations.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	start := time.Now()
	outcome := outcomeOK
	defer func() {
		s.metrics.askRequestsTotal.WithLabelValues(outcome).Inc()
		s.metrics.askDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()
	log := logging.FromContext(ctx)

	sr, err := s.assistant.Search(ctx, req.Query, agent.SearchOptions{})
	if err != nil {
		outcome = outcomeOf(err)
		log.Error("ask: search failed", logging.Err(err))
		writeError(w, statusFor(err), err.Error())
		return
	}

	s.metrics.askActiveStreams.Inc()
	defer s.metrics.askActiveStreams.Dec()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	prompt := s.assistant.Prepare(ctx, req.Query, sr)
	sw := &sseWriter{w: w, flusher: flusher}
	if err := sw.event("sources", prompt.Sources); err != nil {
		outcome = outcomeError
		return
	}

	ans, err := s.assistant.Respond(ctx, sr, prompt, sw)
	if err != nil {
		outcome = outcomeOf(err)
		log.Error("ask: synthesis failed", logging.Err(err))
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", oneLine(err.Error()))
		flusher.Flush()
		return
	}

	cites := ans.Citations
	if cites == nil {
		cites = []int64{}
	}
	_ = sw.event("done", doneEvent{Citations: cites})
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, agent.ErrExternalCall):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a size-limited JSON body into v, replying 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func oneLine(s string) string {
	return strings.ReplaceAll(s, "\n", " ")
}

// sseWriter wraps an http.ResponseWriter to emit Server-Sent Event data frames.
type sseWriter struct {
	// w is the underlying response writer.
	w http.ResponseWriter

	// flusher flushes buffered data to the client after each write.
	flusher http.Flusher
}

// Write formats p as one or more SSE data lines and flushes to the client.
// Each newline in p is prefixed with "data: " so multi-line chunks never
// break the SSE frame boundary.
func (s *sseWriter) Write(p []byte) (n int, err error) {
	chunk := strings.TrimRight(string(bytes.Clone(p)), "\n")
	lines := strings.Split(chunk, "\n")
	var buf strings.Builder
	for _, line := range lines {
		buf.WriteString("data: ")
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
	if _, err = fmt.Fprint(s.w, buf.String()); err != nil {
		return 0, err
	}
	s.flusher.Flush()
	return len(p), nil
}

// event writes a named SSE event with a JSON payload.
func (s *sseWriter) event(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("server: encode %s event: %w", name, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
