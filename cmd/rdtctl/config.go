package main

import (
	"fmt"

	"github.com/danmuck/rdtctl/internal/config"
	"github.com/spf13/cobra"
)

var (
	configKind   string
	configOutput string
	configForce  bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate and validate rdtctl config files",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config template",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		target := configOutput
		if target == "" {
			target = "rdtctl." + configKind
		}
		if err := config.WriteTemplate(target, configKind, configForce); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s config template to %s\n", configKind, target)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate <path>",
	Short: "Load and validate a config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.Load(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Validated config at %s\n", args[0])
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configKind, "kind", "toml", "config kind: toml|yaml")
	configInitCmd.Flags().StringVar(&configOutput, "output", "", "output path (default rdtctl.<kind>)")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
