package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/54b3r/shopai-go/internal/config"
	"github.com/54b3r/shopai-go/internal/ingestion"
	"github.com/54b3r/shopai-go/internal/logging"
	"github.com/54b3r/shopai-go/internal/rag"
	"github.com/54b3r/shopai-go/internal/store"
)

// NewEmbedCmd constructs the `shopai embed` command, which embeds every
// catalog product and upserts the vectors into product_embeddings.
func NewEmbedCmd() *cobra.Command {
	var (
		syncQdrant bool
		workers    int
		batchSize  int
		noCache    bool
	)

	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Embed catalog products into product_embeddings",
		Long: `Embed "Product Name: <name> Description: <description>" for every row in
the products table and upsert the vectors into product_embeddings.

A vector whose width differs from EMBEDDING_DIMENSIONS stops the run before
it is written. Vectors are cached in SQLite (~/.shopai/embeddings.db, or
SHOPAI_CACHE_DB; set it to "disabled" to turn caching off) keyed by model
and text, so unchanged products are not re-embedded.

With --sync-qdrant the vectors are also written to Qdrant with price and
brand in the payload, and product descriptions are indexed into the Bleve
index used by SHOPAI_SEARCH_BACKEND=qdrant.

Examples:
  shopai embed
  shopai embed --workers 8 --batch-size 32
  shopai embed --sync-qdrant`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			catalogStore, err := openCatalog(ctx)
			if err != nil {
				return fmt.Errorf("embed: %w", err)
			}
			defer catalogStore.Close()

			emb, settings, err := newEmbedder(ctx, log)
			if err != nil {
				return fmt.Errorf("embed: %w", err)
			}

			if dbPath := os.Getenv("SHOPAI_CACHE_DB"); !noCache && dbPath != "disabled" {
				if dbPath == "" {
					if dbPath, err = store.DefaultDBPath(); err != nil {
						return fmt.Errorf("embed: %w", err)
					}
				}
				cache, err := store.Open(dbPath)
				if err != nil {
					return fmt.Errorf("embed: %w", err)
				}
				defer func() { _ = cache.Close() }()
				emb = store.NewCachingEmbedder(emb, cache, settings.Backend+"/"+settings.Model)
				log.Info("embedding cache opened", slog.String("path", dbPath))
			} else {
				log.Info("embedding cache disabled")
			}

			opts := []ingestion.Option{ingestion.WithLogger(log)}
			if workers > 0 {
				opts = append(opts, ingestion.WithPoolSize(workers))
			}
			if batchSize > 0 {
				opts = append(opts, ingestion.WithBatchSize(batchSize))
			}

			if syncQdrant {
				idx, err := rag.NewQdrantIndex(ctx, qdrantConfigFromEnv(settings.Dimensions))
				if err != nil {
					return fmt.Errorf("embed: failed to connect to Qdrant: %w", err)
				}
				defer func() { _ = idx.Close() }()

				search, err := config.SearchSettingsFromEnv()
				if err != nil {
					return fmt.Errorf("embed: %w", err)
				}
				path, err := blevePath(search)
				if err != nil {
					return fmt.Errorf("embed: %w", err)
				}
				text, err := rag.OpenBleveIndex(path)
				if err != nil {
					return fmt.Errorf("embed: %w", err)
				}
				defer func() { _ = text.Close() }()

				opts = append(opts, ingestion.WithVectorIndex(idx), ingestion.WithTextIndex(text))
				log.Info("qdrant sync enabled", slog.String("bleve_path", path))
			}

			pipeline, err := ingestion.NewPipeline(catalogStore, catalogStore, emb, settings.Dimensions, opts...)
			if err != nil {
				return fmt.Errorf("embed: failed to create pipeline: %w", err)
			}
			defer pipeline.Release()

			stats, err := pipeline.Run(ctx, func(msg string) { log.Info(msg) })
			if err != nil {
				if ingestion.IsShapeMismatch(err) {
					log.Error("embedding width does not match EMBEDDING_DIMENSIONS",
						slog.Int("dimensions", settings.Dimensions),
						slog.String("model", settings.Model),
					)
				}
				return fmt.Errorf("embed: pipeline failed after %d of %d products: %w", stats.Embedded, stats.Products, err)
			}

			log.Info("embed complete",
				slog.Int("products", stats.Products),
				slog.Int("embedded", stats.Embedded),
			)
			return nil
		},
	}

	cmd.Flags().BoolVar(&syncQdrant, "sync-qdrant", false, "Also write vectors to Qdrant and descriptions to the Bleve index")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent embedding workers (default: NumCPU/2)")
	cmd.Flags().IntVarP(&batchSize, "batch-size", "b", 0, "Products per embedding call (default: 16)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the SQLite embedding cache")

	return cmd
}
