package cmd

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math/rand/v2"

	"github.com/spf13/cobra"

	"github.com/zjrosen/layerforge/internal/cachemanager"
	"github.com/zjrosen/layerforge/internal/catalog"
	"github.com/zjrosen/layerforge/internal/config"
	"github.com/zjrosen/layerforge/internal/engine"
	"github.com/zjrosen/layerforge/internal/infrastructure/sqlite"
	"github.com/zjrosen/layerforge/internal/log"
	"github.com/zjrosen/layerforge/internal/metadata"
	"github.com/zjrosen/layerforge/internal/metrics"
	"github.com/zjrosen/layerforge/internal/output"
	"github.com/zjrosen/layerforge/internal/render"
	"github.com/zjrosen/layerforge/internal/tracing"
)

var (
	genSeed    uint64
	genShuffle bool
	genDryRun  bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate the collection",
	Long: `Generate every layer configuration into the build output.

The build output is emptied first. Each accepted edition writes
images/<n>.png, json/<n>.json and, with gif export enabled, gifs/<n>.gif.
json/_metadata.json lists every record, even when the run stops early.

Examples:
  # Generate with the config in ./layerforge.yaml
  layerforge generate

  # Reproduce a collection
  layerforge generate --seed 42

  # Check that the layers can fill the configured editions without writing anything
  layerforge generate --dry-run`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().Uint64Var(&genSeed, "seed", 0, "random seed (default: random)")
	generateCmd.Flags().BoolVar(&genShuffle, "shuffle", false, "assign edition numbers in random order")
	generateCmd.Flags().BoolVar(&genDryRun, "dry-run", false, "generate into memory and skip the ledger")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	c := cfg
	if genShuffle {
		c.ShuffleLayerConfigurations = true
	}
	seed := genSeed
	if !cmd.Flags().Changed("seed") {
		seed = rand.Uint64()
	}

	sum, err := generate(cmd.Context(), c, generateOptions{
		Seed:   seed,
		DryRun: genDryRun,
		Out:    cmd.OutOrStdout(),
	})
	if sum != nil {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Run %s %s: %d editions, %d duplicate draws (seed %d)\n",
			sum.RunID, sum.Status, sum.Editions, sum.Duplicates, seed)
	}
	return err
}

type generateOptions struct {
	Seed   uint64
	DryRun bool
	// Out receives one progress line per edition. Nil discards them.
	Out io.Writer
}

// generate wires one run from the configuration and executes it.
func generate(ctx context.Context, c config.Config, opts generateOptions) (*engine.Summary, error) {
	if err := config.Validate(c); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	plan, err := c.Plan()
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx, c, opts.DryRun)
	if err != nil {
		return nil, err
	}

	cache := cachemanager.NewInMemoryCacheManager[string, image.Image]("layer-assets",
		cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval)
	loader := render.NewCachedLoader(render.FileLoader{}, cache, 0)

	// Separate streams keep draws independent of background colours.
	drawRNG := rand.New(rand.NewPCG(opts.Seed, 0))
	paintRNG := rand.New(rand.NewPCG(opts.Seed, 1))

	compositor, err := render.NewCompositor(c.RenderOptions(), loader, paintRNG)
	if err != nil {
		return nil, err
	}

	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	schedOpts := []engine.Option{
		engine.WithRunInfo(c.NamePrefix, c.Network, opts.Seed),
		engine.WithProgress(func(p engine.Progress) {
			_, _ = fmt.Fprintf(out, "Created edition: %d, with DNA: %s\n", p.Edition, p.Hash)
		}),
	}

	if c.Ledger.Enabled && !opts.DryRun {
		db, err := sqlite.NewDB(c.Ledger.Path)
		if err != nil {
			return nil, fmt.Errorf("opening ledger: %w", err)
		}
		defer func() { _ = db.Close() }()
		schedOpts = append(schedOpts, engine.WithLedger(db.Ledger()))
	}

	var recorder *metrics.Recorder
	if c.Metrics.Enabled {
		recorder = metrics.New()
		schedOpts = append(schedOpts, engine.WithRecorder(recorder))
	}

	provider, err := tracing.NewProvider(c.Tracing)
	if err != nil {
		return nil, fmt.Errorf("starting tracing: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.WithoutCancel(ctx)); err != nil {
			log.ErrorErr(log.CatEngine, "Failed to flush traces", err)
		}
	}()
	schedOpts = append(schedOpts, engine.WithTracer(provider.Tracer()))

	sched := engine.New(plan,
		catalog.New(c.LayersDir, c.RarityDelimiter),
		compositor,
		metadata.NewBuilder(c.Collection(), nil),
		output.NewWriter(st),
		drawRNG,
		schedOpts...,
	)

	sum, runErr := sched.Run(ctx)

	stats := loader.Stats()
	log.Debug(log.CatRender, "Layer asset cache", "hits", stats.Hits, "misses", stats.Misses)
	if recorder != nil {
		recorder.AssetCache(stats.Hits, stats.Misses)
		if err := recorder.WriteTextfile(c.Metrics.Path); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("writing metrics: %w", err))
		}
	}
	return sum, runErr
}
