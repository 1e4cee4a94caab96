package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/pdfqa/pkg/qa"
)

var (
	askQuestion  string
	askSourceIDs []int64
	askTopK      int
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Ask questions interactively, or once with --question",
	Args:  cobra.NoArgs,
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askQuestion, "question", "q", "", "Ask a single question and exit")
	askCmd.Flags().Int64SliceVar(&askSourceIDs, "source-id", nil, "Restrict retrieval to these document ids")
	askCmd.Flags().IntVar(&askTopK, "top-k", 0, "Evidence items to retrieve (clamped to 3-12)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if askQuestion != "" {
		return askOnce(ctx, a, askQuestion)
	}

	color.Cyan("\nAsk your documents (type 'exit' to quit)")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if strings.ToLower(question) == "exit" {
			break
		}

		if err := askOnce(ctx, a, question); err != nil {
			color.Red("Error: %v\n", err)
		}
	}

	return scanner.Err()
}

func askOnce(ctx context.Context, a *app, question string) error {
	spinner := getSpinner("🔍 Searching sources...")
	resp, err := a.qa.Ask(ctx, qa.Request{
		Question:  question,
		SourceIDs: askSourceIDs,
		TopK:      askTopK,
	})
	_ = spinner.Finish()
	fmt.Print("\r")
	if err != nil {
		return err
	}

	assistant := color.New(color.FgCyan).PrintfFunc()
	assistant("Assistant: %s\n", resp.Answer)

	if len(resp.Citations) > 0 {
		color.Blue("\nSources:")
		for i, c := range resp.Citations {
			ref := i + 1
			if c.Ref != nil {
				ref = *c.Ref
			}
			section := ""
			if c.Section != "" {
				section = ", " + c.Section
			}
			fmt.Printf("  [%d] %s (%s%s)\n", ref, c.Document, c.Pages, section)
		}
	}
	return nil
}
