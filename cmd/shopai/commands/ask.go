package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/shopai-go/internal/logging"
	"github.com/54b3r/shopai-go/internal/tracing"
)

// NewAskCmd constructs the `shopai ask` command, which answers a question
// from the catalog and streams the answer to stdout.
func NewAskCmd() *cobra.Command {
	var showSources bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a shopping question from the catalog",
		Long: `Answer a natural language shopping question from the product catalog.

The question is rewritten into a search query with optional price and brand
filters, the top matching products are retrieved, and the model answers
using only those products, citing each one as [id].

Examples:
  shopai ask "what running shoes do you have under 100 dollars?"
  shopai ask "recommend a Nike product over 50"
  shopai ask --sources "do you sell waterproof jackets?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			flush := tracing.Install(log)
			defer flush()

			st, err := buildStack(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer st.Close()

			answer, err := st.assistant.Query(ctx, strings.Join(args, " "), os.Stdout)
			fmt.Fprintln(os.Stdout)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			if showSources {
				fmt.Fprintln(os.Stdout, "\nSources:")
				for _, s := range answer.Sources {
					fmt.Fprintf(os.Stdout, "  [%d] %s (%s, %.2f)\n", s.ProductID, s.Name, s.Brand, s.Price)
				}
			}
			log.Debug("ask complete",
				slog.String("search_query", answer.SearchQuery),
				slog.Int("sources", len(answer.Sources)),
				slog.Any("citations", answer.Citations),
			)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&showSources, "sources", "s", false, "Print the products placed in the prompt after the answer")

	return cmd
}
