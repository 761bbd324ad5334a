package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var generateCacheDir string

var generateCmd = &cobra.Command{
	Use:   "generate <path>...",
	Short: "Generate tiles for files and directories",
	Long: `Generate tiles for the given files. Directories are walked recursively;
hidden entries and files with unknown extensions are skipped.

The command ticks the render pipeline until every request is finished.

Examples:
  # Generate tiles for an asset tree
  assettile generate ./assets

  # Write tiles to another directory
  assettile generate --cache-dir ./tiles ./assets/rock.msh`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&generateCacheDir, "cache-dir", "", "Override the configured cache directory")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}

	rt, err := loadRuntime(cmd.ErrOrStderr(), generateCacheDir)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	accepted := 0
	for _, f := range files {
		if rt.router.SubmitFile(f) {
			accepted++
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	tickCtx, done := context.WithCancel(gctx)
	g.Go(func() error {
		defer done()
		return tick(tickCtx, rt.router, rt.cfg.TickInterval, true)
	})
	if rt.registry != nil {
		g.Go(func() error {
			return serveMetrics(tickCtx, rt.cfg.Metrics.Listen, newMetricsHandler(rt.registry, rt.router), rt.log)
		})
	}
	runErr := g.Wait()
	if closeErr := rt.router.Close(); runErr == nil {
		runErr = closeErr
	}
	if runErr != nil {
		return runErr
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Generated tiles for %d of %d files in %s\n",
		accepted, len(files), rt.router.Store().Dir())
	return nil
}
