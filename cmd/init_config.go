package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjrosen/layerforge/internal/catalog"
	"github.com/zjrosen/layerforge/internal/config"
)

var (
	initFromLayers bool
	initForce      bool
	initEditions   int
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long: `Write a commented default config to ./layerforge.yaml (or --config).

With --from-layers the layer_configurations section is rebuilt from the
directories found in layers_dir, in name order.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := cfgFile
		if path == "" {
			path = "layerforge.yaml"
		}
		return runInit(cmd, path)
	},
	// init creates the file --config names, so it may not exist yet.
	Annotations: map[string]string{allowBrokenConfig: "true"},
}

func init() {
	initCmd.Flags().BoolVar(&initFromLayers, "from-layers", false, "derive layers_order from the layers directory")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
	initCmd.Flags().IntVar(&initEditions, "editions", 5, "grow_edition_size_to for --from-layers")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, path string) error {
	_, statErr := os.Stat(path)
	exists := statErr == nil

	switch {
	case !exists:
		if err := config.WriteDefaultConfig(path); err != nil {
			return err
		}
	case !initFromLayers && !initForce:
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	case initForce:
		if err := config.WriteDefaultConfig(path); err != nil {
			return err
		}
	}

	if initFromLayers {
		dirs, err := catalog.New(cfg.LayersDir, cfg.RarityDelimiter).Slots()
		if err != nil {
			return err
		}
		if len(dirs) == 0 {
			return fmt.Errorf("no layer directories found in %s", cfg.LayersDir)
		}
		lc := config.LayerConfigurationFromDirs(initEditions, dirs)
		if err := config.ValidateLayerConfigurations([]config.LayerConfiguration{lc}); err != nil {
			return err
		}
		if err := config.SaveLayerConfigurations(path, []config.LayerConfiguration{lc}); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d layers from %s to %s\n", len(dirs), cfg.LayersDir, path)
		return nil
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
