package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var reindexBackfill bool

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the vector index from the store",
	Long: `Rebuild the vector index from the backing store. With
--backfill, memories stored without an embedding are embedded first.`,
	RunE: runReindex,
}

func init() {
	reindexCmd.Flags().BoolVar(&reindexBackfill, "backfill", false, "embed memories that have no vector yet")
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime(true)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx := context.Background()
	if reindexBackfill {
		backfilled, err := rt.manager.BackfillEmbeddings(ctx)
		if err != nil {
			return fmt.Errorf("backfill failed: %w", err)
		}
		fmt.Printf("Backfilled %d embeddings.\n", backfilled)
	}

	if err := rt.manager.RebuildIndex(ctx); err != nil {
		return err
	}
	if !rt.manager.ForceFlush() {
		return fmt.Errorf("index rebuilt but flush to disk failed")
	}

	stats := rt.manager.Stats(ctx)
	fmt.Printf("Index rebuilt: %d vectors.\n", stats.IndexSize)
	return nil
}
