package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/54b3r/shopai-go/internal/agent"
	"github.com/54b3r/shopai-go/internal/logging"
)

// NewSearchCmd constructs the `shopai search` command, which prints the fused
// ranking for a question without generating an answer.
func NewSearchCmd() *cobra.Command {
	var (
		noExtract bool
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "search [question]",
		Short: "Print the hybrid ranking for a question",
		Long: `Rewrite the question into a search query and filters, run hybrid
vector and full-text retrieval, and print the fused ranking.

With --no-extract the question is searched verbatim with no filters and no
model call.

Examples:
  shopai search "running shoes under 100 dollars"
  shopai search --no-extract "waterproof hiking boots"
  shopai search --json "Nike shoes over 50"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			st, err := buildStack(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer st.Close()

			res, err := st.assistant.Search(ctx, strings.Join(args, " "), agent.SearchOptions{SkipExtraction: noExtract})
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			return printSearch(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().BoolVar(&noExtract, "no-extract", false, "Search the question verbatim without filter extraction")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")

	return cmd
}

// printSearch renders a search result as an aligned table.
func printSearch(w io.Writer, res *agent.SearchResult) error {
	fmt.Fprintf(w, "query: %s\n", res.SearchQuery)
	for _, f := range res.Filters {
		fmt.Fprintf(w, "filter: %s\n", f)
	}
	if res.Fallback {
		fmt.Fprintln(w, "note: filter extraction fell back to the raw question")
	}
	if len(res.Results) == 0 {
		fmt.Fprintln(w, "no matching products")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tID\tSCORE\tPRICE\tBRAND\tNAME")
	for i, r := range res.Results {
		fmt.Fprintf(tw, "%d\t%d\t%.5f\t%.2f\t%s\t%s\n", i+1, r.ProductID, r.Score, r.Price, r.Brand, r.Name)
	}
	return tw.Flush()
}
