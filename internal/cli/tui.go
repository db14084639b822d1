package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"docrag/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive classifier",
	Long: `Launch the interactive terminal classifier.

Controls:
  Enter  - Classify the summary
  ↑, ↓   - Step through extracted triplets
  Ctrl+C - Quit`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	boot, err := a.Bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	info := fmt.Sprintf("provider %s | %d triplet(s) from %s", a.Index.Provider(), a.Index.Len(), boot.Source)

	p := tea.NewProgram(tui.New(a.Pipeline, info), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
