package cmd

import (
	"encoding/json"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

var configJSONFlag bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Loads configuration via defaults, config file, environment and flags
(respecting precedence) and prints the result as TOML, or JSON with --json.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if configJSONFlag {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(globalConfig)
		}
		return toml.NewEncoder(out).Encode(globalConfig)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configShowCmd.Flags().BoolVar(&configJSONFlag, "json", false, "Print as JSON")
}
