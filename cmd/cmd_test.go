package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/layerforge/internal/config"
	"github.com/zjrosen/layerforge/internal/engine"
	"github.com/zjrosen/layerforge/internal/infrastructure/sqlite"
	"github.com/zjrosen/layerforge/internal/ledger"
	"github.com/zjrosen/layerforge/internal/presentation"
	"github.com/zjrosen/layerforge/internal/store"
	"github.com/zjrosen/layerforge/internal/watcher"
)

func writePNG(t *testing.T, path string, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

// testProject lays out a 2x2 layer space and a config using it.
func testProject(t *testing.T) config.Config {
	t.Helper()
	root := t.TempDir()
	layersDir := filepath.Join(root, "layers")
	writePNG(t, filepath.Join(layersDir, "Background", "Blue#10.png"), color.RGBA{B: 255, A: 255})
	writePNG(t, filepath.Join(layersDir, "Background", "Green#10.png"), color.RGBA{G: 255, A: 255})
	writePNG(t, filepath.Join(layersDir, "Eyes", "Red#10.png"), color.RGBA{R: 255, A: 255})
	writePNG(t, filepath.Join(layersDir, "Eyes", "Gold#10.png"), color.RGBA{R: 255, G: 215, A: 255})

	c := config.Defaults()
	c.LayersDir = layersDir
	c.BuildDir = filepath.Join(root, "build")
	c.Format = config.FormatConfig{Width: 8, Height: 8}
	c.UniqueDNATolerance = 200
	c.LayerConfigurations = []config.LayerConfiguration{
		config.LayerConfigurationFromDirs(4, []string{"Background", "Eyes"}),
	}
	c.Ledger.Path = filepath.Join(root, "state", "ledger.db")
	c.Metrics = config.MetricsConfig{Enabled: true, Path: filepath.Join(root, "metrics", "layerforge.prom")}
	return c
}

func readAggregate(t *testing.T, buildDir string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(buildDir, "json", "_metadata.json"))
	require.NoError(t, err)
	var records []map[string]any
	require.NoError(t, json.Unmarshal(data, &records))
	return records
}

func TestGenerate_WritesCollection(t *testing.T) {
	c := testProject(t)
	var out bytes.Buffer

	sum, err := generate(context.Background(), c, generateOptions{Seed: 7, Out: &out})
	require.NoError(t, err)
	require.Equal(t, engine.StateDone, sum.State)
	require.Equal(t, ledger.RunStatusCompleted, sum.Status)
	require.Equal(t, 4, sum.Editions)

	require.Equal(t, 4, strings.Count(out.String(), "Created edition: "))
	for i := 0; i < 4; i++ {
		require.FileExists(t, filepath.Join(c.BuildDir, "images", strconv.Itoa(i)+".png"))
		require.FileExists(t, filepath.Join(c.BuildDir, "json", strconv.Itoa(i)+".json"))
	}
	records := readAggregate(t, c.BuildDir)
	require.Len(t, records, 4)
	require.Equal(t, "layerforge", records[0]["compiler"])

	db, err := sqlite.NewDB(c.Ledger.Path)
	require.NoError(t, err)
	defer db.Close()
	run, err := db.Ledger().FindRun(context.Background(), sum.RunID)
	require.NoError(t, err)
	require.Equal(t, ledger.RunStatusCompleted, run.Status)
	require.Equal(t, uint64(7), run.Seed)
	editions, err := db.Ledger().ListEditions(context.Background(), sum.RunID)
	require.NoError(t, err)
	require.Len(t, editions, 4)

	prom, err := os.ReadFile(c.Metrics.Path)
	require.NoError(t, err)
	require.Contains(t, string(prom), "layerforge_editions_created_total")
}

func TestGenerate_DryRunWritesNothing(t *testing.T) {
	c := testProject(t)

	sum, err := generate(context.Background(), c, generateOptions{Seed: 1, DryRun: true})
	require.NoError(t, err)
	require.Equal(t, 4, sum.Editions)

	_, err = os.Stat(c.BuildDir)
	require.True(t, os.IsNotExist(err), "dry run must not touch the build directory")
	_, err = os.Stat(c.Ledger.Path)
	require.True(t, os.IsNotExist(err), "dry run must not open the ledger")
}

func TestGenerate_ToleranceAbort(t *testing.T) {
	c := testProject(t)
	c.UniqueDNATolerance = 60
	c.LayerConfigurations[0].GrowEditionSizeTo = 5

	sum, err := generate(context.Background(), c, generateOptions{Seed: 3})
	require.ErrorIs(t, err, engine.ErrToleranceExceeded)
	require.Contains(t, err.Error(), "you need more layers or elements to grow your edition to 5 artworks")
	require.Equal(t, ledger.RunStatusAborted, sum.Status)
	require.Len(t, readAggregate(t, c.BuildDir), 4)
}

func TestGenerate_InvalidConfig(t *testing.T) {
	c := testProject(t)
	c.Network = "btc"

	_, err := generate(context.Background(), c, generateOptions{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid configuration")
}

func TestGenerate_SameSeedSameCollection(t *testing.T) {
	dnas := func() []any {
		c := testProject(t)
		c.Ledger.Enabled = false
		_, err := generate(context.Background(), c, generateOptions{Seed: 99})
		require.NoError(t, err)
		var out []any
		for _, r := range readAggregate(t, c.BuildDir) {
			out = append(out, r["dna"])
		}
		return out
	}
	require.Equal(t, dnas(), dnas())
}

func TestLoadRarity(t *testing.T) {
	c := testProject(t)
	_, err := generate(context.Background(), c, generateOptions{Seed: 5})
	require.NoError(t, err)

	counts, editions, err := loadRarity(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, 4, editions)
	// The full 2x2 space is used, so every value appears twice.
	require.Len(t, counts, 4)
	for _, tc := range counts {
		require.Equal(t, 2, tc.Count)
		require.InDelta(t, 50.0, tc.Percent, 1e-9)
	}

	var out bytes.Buffer
	renderRarity(&out, counts, editions)
	require.Contains(t, out.String(), "Rarity over 4 editions")
	require.Contains(t, out.String(), "Background")
	require.Contains(t, out.String(), "50.00%")

	out.Reset()
	require.NoError(t, presentation.NewFormatter(&out).FormatRarity(presentation.FromTraitCounts(counts, editions)))
	var report presentation.RarityDTO
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	require.Equal(t, 4, report.Editions)
	require.Len(t, report.Traits, 2)
	require.Equal(t, "Background", report.Traits[0].TraitType)
}

func TestLoadRarity_MissingAggregate(t *testing.T) {
	c := testProject(t)
	_, _, err := loadRarity(context.Background(), c)
	require.Error(t, err)
	require.Contains(t, err.Error(), "run 'layerforge generate' first")
}

func TestOpenStore(t *testing.T) {
	c := testProject(t)
	ctx := context.Background()

	s, err := openStore(ctx, c, false)
	require.NoError(t, err)
	require.Equal(t, store.DriverFilesystem, s.Driver())

	s, err = openStore(ctx, c, true)
	require.NoError(t, err)
	require.Equal(t, store.DriverMemory, s.Driver())

	c.Store.Driver = "ftp"
	_, err = openStore(ctx, c, false)
	require.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layerforge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name_prefix: Moon Cats
format:
  width: 64
layer_configurations:
  - grow_edition_size_to: 3
    layers_order:
      - name: Fur
      - name: Eyes
        options:
          bypass_dna: true
`), 0644))

	c, err := loadConfig(viper.New(), path)
	require.NoError(t, err)
	require.Equal(t, "Moon Cats", c.NamePrefix)
	require.Equal(t, 64, c.Format.Width)
	require.Equal(t, 512, c.Format.Height, "unset keys keep defaults")
	require.True(t, c.Background.Generate)
	require.Len(t, c.LayerConfigurations, 1)
	require.Len(t, c.LayerConfigurations[0].LayersOrder, 2)
	require.True(t, c.LayerConfigurations[0].LayersOrder[1].Options.BypassDNA)
	require.Equal(t, config.Defaults().SolanaMetadata.Creators, c.SolanaMetadata.Creators)
	require.NoError(t, config.Validate(c))
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layerforge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("network: eth\n"), 0644))
	t.Setenv("LAYERFORGE_NETWORK", "sol")
	t.Setenv("LAYERFORGE_STORE_DRIVER", "memory")

	c, err := loadConfig(viper.New(), path)
	require.NoError(t, err)
	require.Equal(t, "sol", c.Network)
	require.Equal(t, "memory", c.Store.Driver)
	require.Equal(t, config.DefaultLayerConfigurations(), c.LayerConfigurations)
}

func TestLoadConfig_ExplicitFileErrors(t *testing.T) {
	dir := t.TempDir()
	malformed := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(malformed, []byte("layer_configurations: [oops\n"), 0644))
	badType := filepath.Join(dir, "bad-type.yaml")
	require.NoError(t, os.WriteFile(badType, []byte("format:\n  width: wide\n"), 0644))

	for name, path := range map[string]string{
		"missing":   filepath.Join(dir, "typo.yaml"),
		"malformed": malformed,
		"bad type":  badType,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := loadConfig(viper.New(), path)
			require.Error(t, err)
		})
	}
}

func TestLoadConfig_NoFileFoundUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	c, err := loadConfig(viper.New(), "")
	require.NoError(t, err)
	require.Equal(t, config.Defaults().BuildDir, c.BuildDir)
	require.Equal(t, config.DefaultLayerConfigurations(), c.LayerConfigurations)
}

func TestSetupLogging_ConfigErrorStopsCommand(t *testing.T) {
	prevCfg, prevErr := cfg, cfgErr
	t.Cleanup(func() { cfg, cfgErr = prevCfg, prevErr })

	c := testProject(t)
	buildMarker := filepath.Join(c.BuildDir, "images", "0.png")
	writePNG(t, buildMarker, color.White)

	cfg, cfgErr = loadConfig(viper.New(), filepath.Join(t.TempDir(), "typo.yaml"))
	require.Error(t, cfgErr)

	err := setupLogging(generateCmd, nil)
	require.ErrorIs(t, err, cfgErr)
	require.FileExists(t, buildMarker, "nothing is reset when the config is unusable")

	require.NoError(t, setupLogging(versionCmd, nil))
	require.NoError(t, setupLogging(initCmd, nil))
}

func TestRunInit(t *testing.T) {
	c := testProject(t)
	prev := cfg
	cfg = c
	t.Cleanup(func() {
		cfg = prev
		initFromLayers, initForce = false, false
	})

	path := filepath.Join(t.TempDir(), "layerforge.yaml")
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, runInit(cmd, path))
	require.Error(t, runInit(cmd, path), "refuses to overwrite")

	initFromLayers = true
	initEditions = 3
	require.NoError(t, runInit(cmd, path))
	require.Contains(t, out.String(), "Wrote 2 layers")

	loaded, err := loadConfig(viper.New(), path)
	require.NoError(t, err)
	require.Equal(t, []config.LayerConfiguration{
		config.LayerConfigurationFromDirs(3, []string{"Background", "Eyes"}),
	}, loaded.LayerConfigurations)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchLayers_RegeneratesOnChange(t *testing.T) {
	c := testProject(t)
	c.Ledger.Enabled = false
	c.Metrics.Enabled = false
	c.LayerConfigurations[0].GrowEditionSizeTo = 2

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- watchLayers(ctx, c, watcher.Config{LayersDir: c.LayersDir, DebounceDur: 50 * time.Millisecond},
			generateOptions{Seed: 1, DryRun: true}, out)
	}()

	require.Eventually(t, func() bool {
		return strings.Count(out.String(), "Generated 2 editions") == 1
	}, 5*time.Second, 20*time.Millisecond)

	writePNG(t, filepath.Join(c.LayersDir, "Eyes", "Black#10.png"), color.Black)

	require.Eventually(t, func() bool {
		return strings.Count(out.String(), "Generated 2 editions") >= 2
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watchLayers did not return after cancel")
	}
}

func TestPrintRunsAndEditions(t *testing.T) {
	c := testProject(t)
	sum, err := generate(context.Background(), c, generateOptions{Seed: 11})
	require.NoError(t, err)

	db, err := sqlite.NewDB(c.Ledger.Path)
	require.NoError(t, err)
	defer db.Close()
	repo := db.Ledger()

	runs, err := repo.ListRuns(context.Background(), ledger.ListFilter{})
	require.NoError(t, err)
	var out bytes.Buffer
	require.NoError(t, printRuns(&out, runs))
	require.Contains(t, out.String(), sum.RunID)
	require.Contains(t, out.String(), "4/4")

	run, err := repo.FindRun(context.Background(), sum.RunID)
	require.NoError(t, err)
	editions, err := repo.ListEditions(context.Background(), sum.RunID)
	require.NoError(t, err)
	out.Reset()
	require.NoError(t, printEditions(&out, run, editions))
	require.Contains(t, out.String(), "EDITION")
	require.Equal(t, 4+2, strings.Count(out.String(), "\n"))
}
