package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/layerforge/internal/engine"
	"github.com/zjrosen/layerforge/internal/layers"
	"github.com/zjrosen/layerforge/internal/metadata"
)

func ptr(f float64) *float64 { return &f }

func TestDefaults_AreValid(t *testing.T) {
	require.NoError(t, Validate(Defaults()))
}

func TestDefaultConfigTemplate_MatchesDefaults(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(DefaultConfigTemplate())))

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))

	want := Defaults()
	require.Equal(t, want.NamePrefix, cfg.NamePrefix)
	require.Equal(t, want.BaseURI, cfg.BaseURI)
	require.Equal(t, want.UniqueDNATolerance, cfg.UniqueDNATolerance)
	require.Equal(t, want.FailureScope, cfg.FailureScope)
	require.Equal(t, want.Format, cfg.Format)
	require.Equal(t, want.Background, cfg.Background)
	require.Equal(t, want.Text, cfg.Text)
	require.Equal(t, want.GIF, cfg.GIF)
	require.Equal(t, want.SolanaMetadata, cfg.SolanaMetadata)
	require.Equal(t, want.LayerConfigurations, cfg.LayerConfigurations)
	require.Equal(t, want.Store, cfg.Store)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"network", func(c *Config) { c.Network = "btc" }, "network must be"},
		{"tolerance", func(c *Config) { c.UniqueDNATolerance = -1 }, "unique_dna_tolerance"},
		{"scope", func(c *Config) { c.FailureScope = "sometimes" }, "failure_scope"},
		{"start index", func(c *Config) { c.StartIndex = -1 }, "start_index"},
		{"size", func(c *Config) { c.Format.Width = 0 }, "format width and height"},
		{"brightness", func(c *Config) { c.Background.Brightness = 1.5 }, "background.brightness"},
		{"gif delay", func(c *Config) { c.GIF.Delay = -5 }, "gif.delay"},
		{"store", func(c *Config) { c.Store.Driver = "ftp" }, "store.driver"},
		{"ledger path", func(c *Config) { c.Ledger.Path = "" }, "ledger.path"},
		{"metrics path", func(c *Config) { c.Metrics = MetricsConfig{Enabled: true} }, "metrics.path"},
		{"layers dir", func(c *Config) { c.LayersDir = "" }, "layers_dir"},
		{"no configurations", func(c *Config) { c.LayerConfigurations = nil }, "must not be empty"},
		{"tracing exporter", func(c *Config) { c.Tracing.Exporter = "kafka" }, "tracing.exporter"},
		{"tracing sample rate", func(c *Config) { c.Tracing.SampleRate = 2 }, "tracing.sample_rate"},
		{"tracing otlp", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "otlp"
			c.Tracing.OTLPEndpoint = ""
		}, "tracing.otlp_endpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateLayerConfigurations(t *testing.T) {
	tests := []struct {
		name string
		lcs  []LayerConfiguration
		want string
	}{
		{
			name: "targets must grow",
			lcs: []LayerConfiguration{
				LayerConfigurationFromDirs(5, []string{"A"}),
				LayerConfigurationFromDirs(5, []string{"A"}),
			},
			want: "layer_configurations[1] (grow_edition_size_to 5): must be greater than 5",
		},
		{
			name: "zero target",
			lcs:  []LayerConfiguration{LayerConfigurationFromDirs(0, []string{"A"})},
			want: "layer_configurations[0]",
		},
		{
			name: "empty order",
			lcs:  []LayerConfiguration{{GrowEditionSizeTo: 3}},
			want: "layers_order must not be empty",
		},
		{
			name: "missing name",
			lcs:  []LayerConfiguration{LayerConfigurationFromDirs(3, []string{""})},
			want: "layer_configurations[0] (layers_order[0]): name is required",
		},
		{
			name: "blend",
			lcs: []LayerConfiguration{{GrowEditionSizeTo: 3, LayersOrder: []LayerEntry{
				{Name: "Eyes", Options: LayerOptions{Blend: "dodge"}},
			}}},
			want: "layer_configurations[0] (Eyes): unknown blend mode",
		},
		{
			name: "opacity",
			lcs: []LayerConfiguration{{GrowEditionSizeTo: 3, LayersOrder: []LayerEntry{
				{Name: "Eyes", Options: LayerOptions{Opacity: ptr(1.2)}},
			}}},
			want: "opacity must be between",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLayerConfigurations(tt.lcs)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}

	require.NoError(t, ValidateLayerConfigurations([]LayerConfiguration{
		LayerConfigurationFromDirs(2, []string{"A", "B"}),
		{GrowEditionSizeTo: 4, LayersOrder: []LayerEntry{
			{Name: "A", Options: LayerOptions{Blend: "multiply", Opacity: ptr(0.5), BypassDNA: true}},
		}},
	}))
}

func TestConfig_Plan(t *testing.T) {
	cfg := Defaults()
	cfg.UniqueDNATolerance = 7
	cfg.FailureScope = "run"
	cfg.ShuffleLayerConfigurations = true
	cfg.StartIndex = 1
	cfg.LayerConfigurations = []LayerConfiguration{
		{GrowEditionSizeTo: 3, LayersOrder: []LayerEntry{
			{Name: "Background"},
			{Name: "Eyes", Options: LayerOptions{DisplayName: "Eye", Blend: "screen", Opacity: ptr(0.4), BypassDNA: true}},
		}},
	}

	plan, err := cfg.Plan()
	require.NoError(t, err)
	require.Equal(t, 7, plan.Tolerance)
	require.Equal(t, engine.ScopeRun, plan.FailureScope)
	require.True(t, plan.ShuffleIndices)
	require.Equal(t, 1, plan.StartIndex)
	require.Len(t, plan.Configurations, 1)
	require.Equal(t, 3, plan.Configurations[0].GrowEditionSizeTo)
	require.Equal(t, []layers.Spec{
		{Name: "Background"},
		{Name: "Eyes", Options: layers.Options{DisplayName: "Eye", Blend: "screen", Opacity: ptr(0.4), BypassDNA: true}},
	}, plan.Configurations[0].Layers)
}

func TestConfig_CollectionAndRenderOptions(t *testing.T) {
	cfg := Defaults()
	cfg.Network = "sol"
	cfg.ExtraMetadata = map[string]any{"creator": "me"}
	cfg.GIF = GIFConfig{Export: true, Repeat: -1, Delay: 120}

	col := cfg.Collection()
	require.Equal(t, metadata.NetworkSol, col.Network)
	require.Equal(t, "YC", col.Solana.Symbol)
	require.Equal(t, 1000, col.Solana.SellerFeeBasisPoints)
	require.Equal(t, map[string]any{"creator": "me"}, col.Extra)

	opts := cfg.RenderOptions()
	require.Equal(t, 512, opts.Width)
	require.True(t, opts.Background.Generate)
	require.InDelta(t, 0.8, opts.Background.Brightness, 1e-9)
	require.Equal(t, " => ", opts.Text.Spacer)
	require.True(t, opts.GIF.Export)
	require.Equal(t, -1, opts.GIF.Repeat)
	require.Equal(t, 120, opts.GIF.DelayMS)
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "layerforge.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, DefaultConfigTemplate(), string(data))
}
