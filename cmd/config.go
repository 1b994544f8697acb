package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/libra-app/libra-cli/internal/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath()
		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		cfg, err := config.Load(configFile, flagOverrides())
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := config.Write(path, *cfg); err != nil {
			return err
		}
		okColor.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile, flagOverrides())
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		dimColor.Fprintf(cmd.OutOrStdout(), "# %s\n", configPath())
		return yaml.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
	},
}

func configPath() string {
	if configFile != "" {
		return configFile
	}
	return config.Path()
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}
