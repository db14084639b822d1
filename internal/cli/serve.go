package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"docrag/internal/app"
	"docrag/internal/config"
	"docrag/internal/logger"
	"docrag/internal/pipeline"
	"docrag/internal/server"
)

var (
	serveAddr  string
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the classifier over HTTP",
	Long: `Serves POST /classify, GET /healthz and GET /metrics.

With --watch the dataset file is watched and the index is rebuilt and
swapped in whenever it changes.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address; defaults to server.addr from config")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "rebuild the index when the dataset changes")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	if _, err := a.Bootstrap(cmd.Context()); err != nil {
		_ = a.Close()
		return err
	}

	srv := server.New(a.Pipeline, a)
	defer srv.Close()

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx, addr) })
	if serveWatch {
		g.Go(func() error {
			return srv.Watch(gctx, cfg.Dataset.Path, server.DefaultDebounce, reloader(cfg))
		})
	}
	return g.Wait()
}

// reloader rebuilds the application from scratch and reindexes the dataset.
// The rebuilt App shares the record store file with the one it replaces.
func reloader(cfg *config.AppConfig) server.Reloader {
	return func(ctx context.Context) (*pipeline.Pipeline, io.Closer, error) {
		a, err := app.New(cfg)
		if err != nil {
			return nil, nil, err
		}
		res, err := a.IndexDataset(ctx, cfg.Dataset.Path)
		if err == nil && res.Source == app.SourceEmpty {
			err = fmt.Errorf("dataset %s is missing", cfg.Dataset.Path)
		}
		if err != nil {
			_ = a.Close()
			return nil, nil, err
		}
		logger.Info("Reindexed %d triplet(s) from %s", res.Records, cfg.Dataset.Path)
		return a.Pipeline, a, nil
	}
}
