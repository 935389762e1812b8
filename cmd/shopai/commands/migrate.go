package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/shopai-go/internal/embedder"
	"github.com/54b3r/shopai-go/internal/logging"
)

// NewMigrateCmd constructs the `shopai migrate` command, which creates the
// catalog schema in Postgres.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the catalog tables and indexes in Postgres",
		Long: `Create the pgvector extension, the products and product_embeddings
tables, and the full-text index on product descriptions. Safe to re-run.

The vector column width comes from EMBEDDING_DIMENSIONS (default 768).

Examples:
  shopai migrate
  DATABASE_URL=postgres://postgres@db:5432/vector_db shopai migrate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			store, err := openCatalog(ctx)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			defer store.Close()

			dims := embedder.Dimensions()
			if err := store.Migrate(ctx, dims); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info("migrate complete", slog.Int("dimensions", dims))
			return nil
		},
	}
}
