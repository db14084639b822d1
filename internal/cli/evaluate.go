package cli

import (
	"github.com/spf13/cobra"

	"docrag/internal/dataset"
	"docrag/internal/evaluation"
	"docrag/internal/pipeline"
)

var (
	evaluateDataPath string
	evaluateDetails  bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score the classifier against a labelled dataset",
	Long: `Classifies every summary in the dataset and reports accuracy and
per-label precision, recall and F1 against the recorded labels.`,
	Args: cobra.NoArgs,
	RunE: runEvaluate,
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateDataPath, "data", "", "evaluation dataset; defaults to dataset.path from config")
	evaluateCmd.Flags().BoolVar(&evaluateDetails, "details", false, "include per-summary results")
	rootCmd.AddCommand(evaluateCmd)
}

type evaluateOutput struct {
	Report  evaluation.Report `json:"report"`
	Results []pipeline.Result `json:"results,omitempty"`
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.Bootstrap(cmd.Context()); err != nil {
		return err
	}

	path := evaluateDataPath
	if path == "" {
		path = a.Config.Dataset.Path
	}
	records, err := dataset.Load(path)
	if err != nil {
		return err
	}
	report, results, err := a.Pipeline.Evaluate(cmd.Context(), records)
	if err != nil {
		return err
	}
	out := evaluateOutput{Report: report}
	if evaluateDetails {
		out.Results = results
	}
	return printJSON(cmd, out)
}
