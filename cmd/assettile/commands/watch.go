package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var watchCacheDir string

var watchCmd = &cobra.Command{
	Use:   "watch <dir>...",
	Short: "Generate tiles and keep them up to date",
	Long: `Generate tiles for every asset below the given directories, then watch
them and regenerate tiles for files that change. Runs until interrupted.

Examples:
  # Watch an asset tree
  assettile watch ./assets

  # Watch with debug logging
  ASSETTILE_LOGGING_LEVEL=DEBUG assettile watch ./assets`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchCacheDir, "cache-dir", "", "Override the configured cache directory")
}

func runWatch(cmd *cobra.Command, args []string) error {
	for _, dir := range args {
		info, err := os.Stat(dir)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
	}
	files, err := collectFiles(args)
	if err != nil {
		return err
	}

	rt, err := loadRuntime(cmd.ErrOrStderr(), watchCacheDir)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rt.router.Watch(args...); err != nil {
		_ = rt.router.Close()
		return err
	}
	for _, f := range files {
		rt.router.SubmitFile(f)
	}
	rt.log.Info("watching for changes", "dirs", args, "files", len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tick(gctx, rt.router, rt.cfg.TickInterval, false)
	})
	if rt.registry != nil {
		g.Go(func() error {
			return serveMetrics(gctx, rt.cfg.Metrics.Listen, newMetricsHandler(rt.registry, rt.router), rt.log)
		})
	}
	runErr := g.Wait()
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	if closeErr := rt.router.Close(); runErr == nil {
		runErr = closeErr
	}
	return runErr
}
