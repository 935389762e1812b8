// Package commands defines all Cobra CLI commands for the shopai binary.
package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/shopai-go/internal/audit"
	"github.com/54b3r/shopai-go/internal/config"
	"github.com/54b3r/shopai-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "shopai",
		Short: "shopai: product search and grounded answers over a Postgres catalog",
		Long: `shopai answers shopping questions from a product catalog.

A question is rewritten by the chat model into a search query plus optional
price and brand filters, matched against the catalog with hybrid vector and
full-text ranking, and answered from the top products with [id] citations.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.shopai/config.yaml).
See 'shopai --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// The YAML file may set LOG_LEVEL, so the logger is built twice.
			path, err := config.Load(configPath, logging.New())
			if err != nil {
				return err
			}
			log := logging.New()
			slog.SetDefault(log)

			ctx := logging.WithLogger(cmd.Context(), log)
			cmd.SetContext(ctx)

			audit.LogCommandStart(ctx, log, cmd.Name(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.shopai/config.yaml)")

	root.AddCommand(
		NewMigrateCmd(),
		NewEmbedCmd(),
		NewSearchCmd(),
		NewAskCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
