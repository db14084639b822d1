package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"docrag/internal/domain"
)

var (
	classifyDocType string
	classifyDocCode string
)

var classifyCmd = &cobra.Command{
	Use:   "classify [summary]",
	Short: "Classify a document summary",
	Long: `Extracts triplets from the summary, retrieves similar labelled triplets
and prints the voted document type and code as JSON.

Pass --doc-type (and optionally --doc-code) to score the prediction.`,
	Args: cobra.ExactArgs(1),
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().StringVar(&classifyDocType, "doc-type", "", "expected document type")
	classifyCmd.Flags().StringVar(&classifyDocCode, "doc-code", "", "expected document code")
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.Bootstrap(cmd.Context()); err != nil {
		return err
	}

	var truth *domain.Decision
	if classifyDocType != "" {
		truth = &domain.Decision{DocType: classifyDocType, DocCode: classifyDocCode}
	}
	res, err := a.Pipeline.Run(cmd.Context(), args[0], truth)
	if err != nil {
		return err
	}
	return printJSON(cmd, res)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
