package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/54b3r/shopai-go/internal/logging"
	"github.com/54b3r/shopai-go/internal/provider"
	"github.com/54b3r/shopai-go/internal/server"
	"github.com/54b3r/shopai-go/internal/tracing"
)

// NewServeCmd constructs the `shopai serve` command, which starts the HTTP API.
func NewServeCmd() *cobra.Command {
	var (
		host       string
		port       int
		trustProxy bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the shopai HTTP API",
		Long: `Start the shopai HTTP API.

Endpoints:
  POST /api/search   {"query": "...", "no_extract": false}  fused ranking as JSON
  POST /api/ask      {"query": "..."}  answer as server-sent events:
                     "sources", answer data frames, then "done" with citations
  GET  /api/health   liveness
  GET  /api/ready    Postgres, Qdrant (when used) and model probes
  GET  /metrics      Prometheus metrics

Examples:
  shopai serve
  shopai serve --port 9090
  SHOPAI_SEARCH_BACKEND=qdrant shopai serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.FromContext(ctx)

			if !cmd.Flags().Changed("host") {
				host = getEnvOrDefault("SHOPAI_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = getEnvInt("SHOPAI_PORT", port)
			}

			flush := tracing.Install(log)
			defer flush()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			metrics := server.NewMetrics(reg)

			st, err := buildStack(ctx, log, metrics)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer st.Close()

			pingers := []server.Pinger{st.store}
			if st.qdrant != nil {
				pingers = append(pingers, st.qdrant)
			}
			pingers = append(pingers, server.NewLLMPinger(st.chat, provider.NewHealthCheck(st.providerCfg), string(st.providerCfg.Backend)))

			srv, err := server.New(st.assistant, &server.Config{
				Host:            host,
				Port:            port,
				Logger:          log,
				Pingers:         pingers,
				TrustProxy:      trustProxy,
				Metrics:         metrics,
				MetricsRegistry: reg,
				MetricsGatherer: reg,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}
			defer srv.Close()

			log.Info("serve starting", slog.Int("pingers", len(pingers)))
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")
	cmd.Flags().BoolVar(&trustProxy, "trust-proxy", false, "Take the client IP from X-Forwarded-For / X-Real-IP")

	return cmd
}
