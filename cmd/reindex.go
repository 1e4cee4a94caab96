package main

import (
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	reindexDocID     int64
	reindexBatchSize int
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Embed chunks that are still missing an embedding",
	Long:  `Backfills embeddings batch by batch, committing after each batch. Safe to rerun; it only picks up chunks without an embedding.`,
	Args:  cobra.NoArgs,
	RunE:  runReindex,
}

func init() {
	reindexCmd.Flags().Int64Var(&reindexDocID, "doc-id", 0, "Only reindex this document")
	reindexCmd.Flags().IntVar(&reindexBatchSize, "batch-size", 32, "Chunks per batch")
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var bar *progressbar.ProgressBar
	updated, err := a.reindexer.Reindex(ctx, reindexDocID, reindexBatchSize, func(done, total int) {
		if bar == nil {
			bar = getProgressBar(total, "🧮 Embedding chunks...")
		}
		_ = bar.Set(done)
	})
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return err
	}

	color.Green("\n✓ Updated %d chunks", updated)
	return nil
}
