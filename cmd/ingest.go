package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file.pdf]...",
	Short: "Ingest one or more PDF files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	bar := getProgressBar(len(args), "📄 Ingesting PDFs...")
	failed := 0
	for _, path := range args {
		content, err := os.ReadFile(path)
		if err != nil {
			color.Red("\n✗ %s: %v", path, err)
			failed++
			_ = bar.Add(1)
			continue
		}

		res, err := a.ingestor.Ingest(ctx, filepath.Base(path), content)
		_ = bar.Add(1)
		if err != nil {
			color.Red("\n✗ %s: %v", path, err)
			failed++
			continue
		}

		switch {
		case !res.IngestStarted:
			color.Yellow("\n! %s stored as document %d, no text layer (scanned pages are not OCRed)", path, res.Document.ID)
		case !res.Embedded:
			color.Green("\n✓ %s → document %d, %d pages, %d chunks (full-text only)", path, res.Document.ID, res.Pages, res.Chunks)
		default:
			color.Green("\n✓ %s → document %d, %d pages, %d chunks", path, res.Document.ID, res.Pages, res.Chunks)
		}
	}
	_ = bar.Finish()

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(args))
	}
	return nil
}
