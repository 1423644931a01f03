package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/layerforge/internal/config"
	"github.com/zjrosen/layerforge/internal/log"
	"github.com/zjrosen/layerforge/internal/watcher"
)

var (
	watchDebounce time.Duration
	watchDryRun   bool
	watchSeed     uint64
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Regenerate whenever the layers directory changes",
	Long: `Generate once, then regenerate every time an element is added, changed or
removed under layers_dir. Runs that cannot fill the configured editions are
reported and watching continues. Stop with Ctrl+C.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		seed := watchSeed
		if !cmd.Flags().Changed("seed") {
			seed = uint64(time.Now().UnixNano()) //nolint:gosec // seed only
		}
		return watchLayers(ctx, cfg, watcher.Config{
			LayersDir:   cfg.LayersDir,
			DebounceDur: watchDebounce,
		}, generateOptions{Seed: seed, DryRun: watchDryRun}, cmd.OutOrStdout())
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", time.Second, "quiet period before regenerating")
	watchCmd.Flags().BoolVar(&watchDryRun, "dry-run", false, "generate into memory and skip the ledger")
	watchCmd.Flags().Uint64Var(&watchSeed, "seed", 0, "random seed reused for every regeneration (default: random)")
	rootCmd.AddCommand(watchCmd)
}

// watchLayers generates once and again after every debounced change until ctx
// is cancelled.
func watchLayers(ctx context.Context, c config.Config, wc watcher.Config, opts generateOptions, out io.Writer) error {
	w, err := watcher.New(wc)
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	changes, err := w.Start()
	if err != nil {
		return err
	}
	log.Info(log.CatWatch, "Watching layers", "dir", wc.LayersDir)

	regenerate := func() {
		sum, err := generate(ctx, c, opts)
		switch {
		case err != nil:
			_, _ = fmt.Fprintf(out, "Generation failed: %v\n", err)
		case sum != nil:
			_, _ = fmt.Fprintf(out, "Generated %d editions (%d duplicate draws)\n", sum.Editions, sum.Duplicates)
		}
	}

	regenerate()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			log.Debug(log.CatWatch, "Layers changed, regenerating")
			regenerate()
		}
	}
}
