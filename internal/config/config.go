// Package config provides configuration types and defaults for layerforge.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zjrosen/layerforge/internal/engine"
	"github.com/zjrosen/layerforge/internal/layers"
	"github.com/zjrosen/layerforge/internal/log"
	"github.com/zjrosen/layerforge/internal/metadata"
	"github.com/zjrosen/layerforge/internal/render"
	"github.com/zjrosen/layerforge/internal/store"
	"github.com/zjrosen/layerforge/internal/tracing"
)

// Config holds all configuration options for layerforge.
type Config struct {
	NamePrefix      string `mapstructure:"name_prefix"`
	Description     string `mapstructure:"description"`
	BaseURI         string `mapstructure:"base_uri"`
	LayersDir       string `mapstructure:"layers_dir"`
	BuildDir        string `mapstructure:"build_dir"`
	Network         string `mapstructure:"network"` // "eth" (default) or "sol"
	RarityDelimiter string `mapstructure:"rarity_delimiter"`

	// UniqueDNATolerance is how many duplicate draws are allowed before the
	// run aborts. See FailureScope for when the counter resets.
	UniqueDNATolerance int    `mapstructure:"unique_dna_tolerance"`
	FailureScope       string `mapstructure:"failure_scope"` // consecutive (default), configuration, run

	ShuffleLayerConfigurations bool `mapstructure:"shuffle_layer_configurations"`
	StartIndex                 int  `mapstructure:"start_index"`
	DebugLogs                  bool `mapstructure:"debug_logs"`

	Format         FormatConfig         `mapstructure:"format"`
	Background     BackgroundConfig     `mapstructure:"background"`
	Text           TextConfig           `mapstructure:"text"`
	GIF            GIFConfig            `mapstructure:"gif"`
	ExtraMetadata  map[string]any       `mapstructure:"extra_metadata"`
	Compiler       string               `mapstructure:"compiler"`
	SolanaMetadata SolanaMetadataConfig `mapstructure:"solana_metadata"`

	LayerConfigurations []LayerConfiguration `mapstructure:"layer_configurations"`

	Store   StoreConfig    `mapstructure:"store"`
	Ledger  LedgerConfig   `mapstructure:"ledger"`
	Tracing tracing.Config `mapstructure:"tracing"`
	Metrics MetricsConfig  `mapstructure:"metrics"`
}

// FormatConfig sets the canvas.
type FormatConfig struct {
	Width     int  `mapstructure:"width"`
	Height    int  `mapstructure:"height"`
	Smoothing bool `mapstructure:"smoothing"`
}

// BackgroundConfig controls the fill under the first layer.
type BackgroundConfig struct {
	Generate   bool    `mapstructure:"generate"`
	Brightness float64 `mapstructure:"brightness"` // HSL lightness, 0..1
	Static     bool    `mapstructure:"static"`
	Default    string  `mapstructure:"default"` // hex colour used when static
}

// TextConfig switches to text-only output.
type TextConfig struct {
	Only   bool   `mapstructure:"only"`
	Color  string `mapstructure:"color"`
	Spacer string `mapstructure:"spacer"`
	XGap   int    `mapstructure:"x_gap"`
	YGap   int    `mapstructure:"y_gap"`
}

// GIFConfig controls the animated export.
type GIFConfig struct {
	Export bool `mapstructure:"export"`
	Repeat int  `mapstructure:"repeat"`
	Delay  int  `mapstructure:"delay"` // milliseconds per frame
}

// SolanaMetadataConfig holds the fields only Solana records carry.
type SolanaMetadataConfig struct {
	Symbol               string             `mapstructure:"symbol"`
	SellerFeeBasisPoints int                `mapstructure:"seller_fee_basis_points"`
	ExternalURL          string             `mapstructure:"external_url"`
	Creators             []metadata.Creator `mapstructure:"creators"`
}

// LayerConfiguration grows the collection up to GrowEditionSizeTo editions
// using LayersOrder.
type LayerConfiguration struct {
	GrowEditionSizeTo int          `mapstructure:"grow_edition_size_to" yaml:"grow_edition_size_to"`
	LayersOrder       []LayerEntry `mapstructure:"layers_order" yaml:"layers_order"`
}

// LayerEntry names a layer directory.
type LayerEntry struct {
	Name    string       `mapstructure:"name" yaml:"name"`
	Options LayerOptions `mapstructure:"options" yaml:"options,omitempty"`
}

// LayerOptions are optional per-layer settings.
type LayerOptions struct {
	DisplayName string   `mapstructure:"display_name" yaml:"display_name,omitempty"`
	Blend       string   `mapstructure:"blend" yaml:"blend,omitempty"`
	Opacity     *float64 `mapstructure:"opacity" yaml:"opacity,omitempty"`
	BypassDNA   bool     `mapstructure:"bypass_dna" yaml:"bypass_dna,omitempty"`
}

// StoreConfig selects where build artifacts go.
type StoreConfig struct {
	// Driver is "fs" (default, under build_dir), "memory" or "s3". The s3
	// driver reads LAYERFORGE_S3_* from the environment.
	Driver string `mapstructure:"driver"`
}

// LedgerConfig controls the run history database.
type LedgerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"` // Default: ~/.config/layerforge/ledger.db
}

// MetricsConfig controls the Prometheus textfile written after each run.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// DefaultLedgerPath returns ~/.config/layerforge/ledger.db, or a relative
// path when the home directory is unavailable.
func DefaultLedgerPath() string {
	return userConfigPath("ledger.db")
}

// DefaultTracesFilePath returns ~/.config/layerforge/traces/traces.jsonl.
func DefaultTracesFilePath() string {
	return userConfigPath("traces", "traces.jsonl")
}

func userConfigPath(elem ...string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(append([]string{".layerforge"}, elem...)...)
	}
	return filepath.Join(append([]string{home, ".config", "layerforge"}, elem...)...)
}

// DefaultLayerConfigurations returns the single starter configuration.
func DefaultLayerConfigurations() []LayerConfiguration {
	names := []string{"Background", "Eyeball", "Eye color", "Iris", "Shine", "Bottom lid", "Top lid"}
	entries := make([]LayerEntry, len(names))
	for i, n := range names {
		entries[i] = LayerEntry{Name: n}
	}
	return []LayerConfiguration{{GrowEditionSizeTo: 5, LayersOrder: entries}}
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	tc := tracing.DefaultConfig()
	tc.FilePath = DefaultTracesFilePath()
	return Config{
		NamePrefix:         "Your Collection",
		Description:        "Remember to replace this description",
		BaseURI:            "ipfs://NewUriToReplace",
		LayersDir:          "layers",
		BuildDir:           "build",
		Network:            string(metadata.NetworkEth),
		RarityDelimiter:    "#",
		UniqueDNATolerance: 10000,
		FailureScope:       string(engine.ScopeConsecutive),
		Format: FormatConfig{
			Width:  512,
			Height: 512,
		},
		Background: BackgroundConfig{
			Generate:   true,
			Brightness: 0.8,
			Default:    "#000000",
		},
		Text: TextConfig{
			Color:  "#ffffff",
			Spacer: " => ",
			XGap:   40,
			YGap:   40,
		},
		GIF: GIFConfig{
			Delay: 500,
		},
		Compiler: metadata.DefaultCompiler,
		SolanaMetadata: SolanaMetadataConfig{
			Symbol:               "YC",
			SellerFeeBasisPoints: 1000,
			ExternalURL:          "https://example.com",
			Creators: []metadata.Creator{
				{Address: "7fXNuer5sbZtaTEPhtJ5g5gNtuyRoKkvxdjEjEnPN4mC", Share: 100},
			},
		},
		LayerConfigurations: DefaultLayerConfigurations(),
		Store:               StoreConfig{Driver: string(store.DriverFilesystem)},
		Ledger: LedgerConfig{
			Enabled: true,
			Path:    DefaultLedgerPath(),
		},
		Tracing: tc,
		Metrics: MetricsConfig{
			Path: "layerforge.prom",
		},
	}
}

// Validate checks the configuration and returns the first problem found.
func Validate(cfg Config) error {
	if cfg.LayersDir == "" {
		return errors.New("layers_dir is required")
	}
	switch metadata.Network(cfg.Network) {
	case metadata.NetworkEth, metadata.NetworkSol:
	default:
		return fmt.Errorf("network must be \"eth\" or \"sol\", got %q", cfg.Network)
	}
	if cfg.UniqueDNATolerance < 0 {
		return fmt.Errorf("unique_dna_tolerance must not be negative, got %d", cfg.UniqueDNATolerance)
	}
	if _, err := engine.ParseFailureScope(cfg.FailureScope); err != nil {
		return fmt.Errorf("failure_scope: %w", err)
	}
	if cfg.StartIndex < 0 {
		return fmt.Errorf("start_index must not be negative, got %d", cfg.StartIndex)
	}
	if cfg.Format.Width <= 0 || cfg.Format.Height <= 0 {
		return fmt.Errorf("format width and height must be positive, got %dx%d", cfg.Format.Width, cfg.Format.Height)
	}
	if cfg.Background.Brightness < 0 || cfg.Background.Brightness > 1 {
		return fmt.Errorf("background.brightness must be between 0.0 and 1.0, got %v", cfg.Background.Brightness)
	}
	if cfg.GIF.Delay < 0 {
		return fmt.Errorf("gif.delay must not be negative, got %d", cfg.GIF.Delay)
	}
	if err := ValidateLayerConfigurations(cfg.LayerConfigurations); err != nil {
		return err
	}
	if _, err := store.ParseDriver(cfg.Store.Driver); err != nil {
		return fmt.Errorf("store.driver: %w", err)
	}
	if cfg.Ledger.Enabled && cfg.Ledger.Path == "" {
		return errors.New("ledger.path is required when the ledger is enabled")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Path == "" {
		return errors.New("metrics.path is required when metrics are enabled")
	}
	return ValidateTracing(cfg.Tracing)
}

// ValidateLayerConfigurations checks every configuration entry. Edition
// targets must grow strictly.
func ValidateLayerConfigurations(lcs []LayerConfiguration) error {
	if len(lcs) == 0 {
		return errors.New("layer_configurations must not be empty")
	}
	prev := 0
	for i, lc := range lcs {
		if lc.GrowEditionSizeTo <= prev {
			return fmt.Errorf("layer_configurations[%d] (grow_edition_size_to %d): must be greater than %d", i, lc.GrowEditionSizeTo, prev)
		}
		prev = lc.GrowEditionSizeTo
		if len(lc.LayersOrder) == 0 {
			return fmt.Errorf("layer_configurations[%d] (grow_edition_size_to %d): layers_order must not be empty", i, lc.GrowEditionSizeTo)
		}
		for j, entry := range lc.LayersOrder {
			if entry.Name == "" {
				return fmt.Errorf("layer_configurations[%d] (layers_order[%d]): name is required", i, j)
			}
			if _, err := layers.ParseBlendMode(entry.Options.Blend); err != nil {
				return fmt.Errorf("layer_configurations[%d] (%s): %w", i, entry.Name, err)
			}
			if o := entry.Options.Opacity; o != nil && (*o < 0 || *o > 1) {
				return fmt.Errorf("layer_configurations[%d] (%s): opacity must be between 0.0 and 1.0, got %v", i, entry.Name, *o)
			}
		}
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
func ValidateTracing(tc tracing.Config) error {
	if tc.SampleRate < 0.0 || tc.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tc.SampleRate)
	}
	if tc.Exporter != "" {
		switch tc.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tc.Exporter)
		}
	}
	if tc.Enabled {
		if tc.Exporter == "file" && tc.FilePath == "" {
			return errors.New("tracing.file_path is required when exporter is \"file\"")
		}
		if tc.Exporter == "otlp" && tc.OTLPEndpoint == "" {
			return errors.New("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}
	return nil
}

// Plan converts the configuration into a generation plan. Call Validate first.
func (c Config) Plan() (engine.Plan, error) {
	scope, err := engine.ParseFailureScope(c.FailureScope)
	if err != nil {
		return engine.Plan{}, err
	}
	plan := engine.Plan{
		Tolerance:      c.UniqueDNATolerance,
		FailureScope:   scope,
		ShuffleIndices: c.ShuffleLayerConfigurations,
		StartIndex:     c.StartIndex,
	}
	for _, lc := range c.LayerConfigurations {
		specs := make([]layers.Spec, len(lc.LayersOrder))
		for i, e := range lc.LayersOrder {
			specs[i] = layers.Spec{
				Name: e.Name,
				Options: layers.Options{
					DisplayName: e.Options.DisplayName,
					Blend:       e.Options.Blend,
					Opacity:     e.Options.Opacity,
					BypassDNA:   e.Options.BypassDNA,
				},
			}
		}
		plan.Configurations = append(plan.Configurations, engine.Configuration{
			GrowEditionSizeTo: lc.GrowEditionSizeTo,
			Layers:            specs,
		})
	}
	return plan, nil
}

// Collection returns the collection-wide metadata inputs.
func (c Config) Collection() metadata.Collection {
	return metadata.Collection{
		NamePrefix:  c.NamePrefix,
		Description: c.Description,
		BaseURI:     c.BaseURI,
		Extra:       c.ExtraMetadata,
		Compiler:    c.Compiler,
		Network:     metadata.Network(c.Network),
		Solana: metadata.Solana{
			Symbol:               c.SolanaMetadata.Symbol,
			SellerFeeBasisPoints: c.SolanaMetadata.SellerFeeBasisPoints,
			ExternalURL:          c.SolanaMetadata.ExternalURL,
			Creators:             c.SolanaMetadata.Creators,
		},
	}
}

// RenderOptions returns the compositor settings.
func (c Config) RenderOptions() render.Options {
	return render.Options{
		Width:     c.Format.Width,
		Height:    c.Format.Height,
		Smoothing: c.Format.Smoothing,
		Background: render.Background{
			Generate:   c.Background.Generate,
			Static:     c.Background.Static,
			Default:    c.Background.Default,
			Brightness: c.Background.Brightness,
		},
		Text: render.Text{
			Only:   c.Text.Only,
			Color:  c.Text.Color,
			Spacer: c.Text.Spacer,
			XGap:   c.Text.XGap,
			YGap:   c.Text.YGap,
		},
		GIF: render.GIF{
			Export:  c.GIF.Export,
			Repeat:  c.GIF.Repeat,
			DelayMS: c.GIF.Delay,
		},
	}
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# layerforge configuration

# Metadata written into every record
name_prefix: "Your Collection"
description: "Remember to replace this description"
base_uri: "ipfs://NewUriToReplace"
# compiler: layerforge
# extra_metadata:
#   creator: "Your Name"

# "eth" (default) or "sol"
network: eth

# Where layer directories live and where the build goes
layers_dir: layers
build_dir: build

# Separator between an element name and its rarity weight: "Red eyes#40.png"
rarity_delimiter: "#"

# Duplicate draws tolerated before the run aborts
unique_dna_tolerance: 10000
# When the duplicate counter resets:
#   consecutive   - after every accepted edition (default)
#   configuration - when a layer configuration starts
#   run           - never
failure_scope: consecutive

# Assign edition numbers in random order instead of sequentially
shuffle_layer_configurations: false
start_index: 0
debug_logs: false

format:
  width: 512
  height: 512
  smoothing: false

background:
  generate: true
  brightness: 0.8      # HSL lightness of generated colours, 0.0-1.0
  static: false        # Use 'default' instead of a random colour
  default: "#000000"

# Text-only mode writes "<layer><spacer><element>" lines instead of images
text:
  only: false
  color: "#ffffff"
  spacer: " => "
  x_gap: 40
  y_gap: 40

gif:
  export: false
  repeat: 0            # 0 loops forever, -1 plays once
  delay: 500           # milliseconds per frame

solana_metadata:
  symbol: "YC"
  seller_fee_basis_points: 1000
  external_url: "https://example.com"
  creators:
    - address: "7fXNuer5sbZtaTEPhtJ5g5gNtuyRoKkvxdjEjEnPN4mC"
      share: 100

# Each configuration grows the collection up to grow_edition_size_to editions.
# Targets must increase from one configuration to the next.
#
# Layer options:
#   display_name: trait type in metadata (default: directory name)
#   blend: normal, multiply, screen, overlay, darken, lighten, difference
#   opacity: 0.0-1.0
#   bypass_dna: true to leave the layer out of uniqueness checks
layer_configurations:
  - grow_edition_size_to: 5
    layers_order:
      - name: Background
      - name: Eyeball
      - name: Eye color
      - name: Iris
      - name: Shine
      - name: Bottom lid
      - name: Top lid

# Build output: fs (default), memory, s3
# The s3 driver reads LAYERFORGE_S3_BUCKET, LAYERFORGE_S3_REGION,
# LAYERFORGE_S3_ENDPOINT, LAYERFORGE_S3_PREFIX and LAYERFORGE_S3_PATH_STYLE.
store:
  driver: fs

# Run history
ledger:
  enabled: true
  # path: ~/.config/layerforge/ledger.db

# Prometheus textfile written after each run
metrics:
  enabled: false
  path: layerforge.prom

# tracing:
#   enabled: false
#   exporter: file                 # none, file, stdout, otlp
#   file_path: ~/.config/layerforge/traces/traces.jsonl
#   otlp_endpoint: localhost:4317
#   sample_rate: 1.0
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
