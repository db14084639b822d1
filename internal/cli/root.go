// Package cli implements the docrag command tree.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"docrag/internal/app"
	"docrag/internal/config"
	"docrag/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "docrag",
	Short: "Classify document summaries by triplet retrieval",
	Long: `docrag extracts (subject, predicate, object) triplets from document
summaries, matches them against a labelled index and votes on the
document type and code.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml, ./config.toml or ~/.config/docrag/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (*config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if cfgFile == "" {
		var path string
		cfg, path, err = config.LoadDefault()
		if err == nil {
			logger.Debug("Using config %s", path)
		}
	} else {
		cfg, err = config.Load(cfgFile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.SetVerbose(verbose || cfg.Log.Verbose)
	return cfg, nil
}

// openApp loads the configuration and assembles the application. The caller
// must Close the returned App.
func openApp() (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}
