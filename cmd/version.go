package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print the version",
	Annotations: map[string]string{allowBrokenConfig: "true"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "layerforge %s\n", version)
		return err
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
