package cli

import (
	"github.com/spf13/cobra"

	"docrag/internal/app"
)

var indexDataPath string

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index a labelled dataset",
	Long: `Indexes every triplet of the labelled summaries and replaces the record
store with them. Records without explicit triplets are run through the
extractor.`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexDataPath, "data", "", "dataset path (.json or .jsonl); defaults to dataset.path from config")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	path := indexDataPath
	if path == "" {
		path = a.Config.Dataset.Path
	}
	res, err := a.IndexDataset(cmd.Context(), path)
	if err != nil {
		return err
	}
	if res.Source == app.SourceEmpty {
		cmd.Printf("Dataset %s not found; nothing indexed.\n", path)
		return nil
	}
	cmd.Printf("Indexed %d triplet(s) from %s (provider %s).\n", res.Records, path, a.Index.Provider())
	return nil
}
