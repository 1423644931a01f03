package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/layerforge/internal/config"
	"github.com/zjrosen/layerforge/internal/log"
)

var (
	version  = "dev"
	cfgFile  string
	logFile  string
	logLevel string
	debug    bool
	cfg      config.Config
	// cfgErr is the config load failure, reported before any command runs.
	cfgErr error
)

// allowBrokenConfig marks commands that run without a readable config file.
const allowBrokenConfig = "allow_broken_config"

var rootCmd = &cobra.Command{
	Use:   "layerforge",
	Short: "Generate layered art collections",
	Long: `Generate collections of unique layered artworks with matching metadata.

Each layer directory holds weighted image elements. Every edition draws one
element per layer, rejects duplicate combinations and writes an image plus a
metadata record to the build output.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ./layerforge.yaml, then ~/.config/layerforge/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to this file instead of stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "minimum log level (debug, info, warn, error)")
}

func initConfig() {
	cfg, cfgErr = loadConfig(viper.GetViper(), cfgFile)
}

// loadConfig reads the config file into the defaults. Only a config that was
// searched for and not found falls back to defaults; an explicit path that
// cannot be read, or any file that fails to parse or decode, is an error.
func loadConfig(v *viper.Viper, explicit string) (config.Config, error) {
	setDefaults(v, config.Defaults())

	v.SetEnvPrefix("LAYERFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		// Config lookup order:
		// 1. ./layerforge.yaml
		// 2. ~/.config/layerforge/config.yaml
		if _, err := os.Stat("layerforge.yaml"); err == nil {
			v.SetConfigFile("layerforge.yaml")
		} else {
			home, _ := os.UserHomeDir()
			v.AddConfigPath(filepath.Join(home, ".config", "layerforge"))
			v.SetConfigName("config")
			v.SetConfigType("yaml")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit != "" || !errors.As(err, &notFound) {
			return config.Defaults(), fmt.Errorf("reading config: %w", err)
		}
		log.Debug(log.CatConfig, "No config file found, using defaults")
	}

	// Decode into a zero value: mapstructure overlays slices element by
	// element, so prefilled defaults would leak into shorter lists.
	var c config.Config
	if err := v.Unmarshal(&c); err != nil {
		return config.Defaults(), fmt.Errorf("decoding config %s: %w", v.ConfigFileUsed(), err)
	}
	d := config.Defaults()
	if !v.IsSet("layer_configurations") {
		c.LayerConfigurations = d.LayerConfigurations
	}
	if !v.IsSet("solana_metadata.creators") {
		c.SolanaMetadata.Creators = d.SolanaMetadata.Creators
	}
	return c, nil
}

func setDefaults(v *viper.Viper, d config.Config) {
	v.SetDefault("name_prefix", d.NamePrefix)
	v.SetDefault("description", d.Description)
	v.SetDefault("base_uri", d.BaseURI)
	v.SetDefault("layers_dir", d.LayersDir)
	v.SetDefault("build_dir", d.BuildDir)
	v.SetDefault("network", d.Network)
	v.SetDefault("rarity_delimiter", d.RarityDelimiter)
	v.SetDefault("unique_dna_tolerance", d.UniqueDNATolerance)
	v.SetDefault("failure_scope", d.FailureScope)
	v.SetDefault("shuffle_layer_configurations", d.ShuffleLayerConfigurations)
	v.SetDefault("start_index", d.StartIndex)
	v.SetDefault("debug_logs", d.DebugLogs)
	v.SetDefault("compiler", d.Compiler)
	v.SetDefault("format.width", d.Format.Width)
	v.SetDefault("format.height", d.Format.Height)
	v.SetDefault("format.smoothing", d.Format.Smoothing)
	v.SetDefault("background.generate", d.Background.Generate)
	v.SetDefault("background.brightness", d.Background.Brightness)
	v.SetDefault("background.static", d.Background.Static)
	v.SetDefault("background.default", d.Background.Default)
	v.SetDefault("text.only", d.Text.Only)
	v.SetDefault("text.color", d.Text.Color)
	v.SetDefault("text.spacer", d.Text.Spacer)
	v.SetDefault("text.x_gap", d.Text.XGap)
	v.SetDefault("text.y_gap", d.Text.YGap)
	v.SetDefault("gif.export", d.GIF.Export)
	v.SetDefault("gif.repeat", d.GIF.Repeat)
	v.SetDefault("gif.delay", d.GIF.Delay)
	v.SetDefault("solana_metadata.symbol", d.SolanaMetadata.Symbol)
	v.SetDefault("solana_metadata.seller_fee_basis_points", d.SolanaMetadata.SellerFeeBasisPoints)
	v.SetDefault("solana_metadata.external_url", d.SolanaMetadata.ExternalURL)
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("ledger.enabled", d.Ledger.Enabled)
	v.SetDefault("ledger.path", d.Ledger.Path)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	if cfgErr != nil && cmd.Annotations[allowBrokenConfig] == "" {
		return cfgErr
	}
	if logFile != "" {
		cleanup, err := log.Init(logFile)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		cobra.OnFinalize(cleanup)
	}
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	if debug || cfg.DebugLogs {
		level = log.LevelDebug
	}
	log.SetMinLevel(level)
	log.Debug(log.CatConfig, "Config loaded", "file", viper.ConfigFileUsed(), "layers_dir", cfg.LayersDir)
	return nil
}

// configPath returns the file that config writes should go to.
func configPath() string {
	if p := viper.ConfigFileUsed(); p != "" {
		return p
	}
	if cfgFile != "" {
		return cfgFile
	}
	return "layerforge.yaml"
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
