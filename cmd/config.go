package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"m4a-extractor/infrastructure/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and change configuration values",
	Long: `Show and change single values of the configuration file by dotted key.

Keys:
  ` + strings.Join(config.Keys(), "\n  ") + `

Examples:
  m4a-extractor config list
  m4a-extractor config get output.format
  m4a-extractor config set output.format fmp4
  m4a-extractor config reset transfer.min_buffer_size`,
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configResetCmd)
}

// configPath returns the file the config commands write to
func configPath() string {
	if cfgFile == "" {
		return config.DefaultPath
	}
	return cfgFile
}

// --- LIST command ---

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every configuration value",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := GetConfig()
		if err != nil {
			return err
		}
		return RunConfigListWithDependencies(c, configPath(), DefaultOutput)
	},
}

// RunConfigListWithDependencies runs the list command with injected dependencies
func RunConfigListWithDependencies(c *config.Config, path string, out OutputWriter) error {
	mgr := config.NewConfigManager(c, path)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tVALUE")
	for _, e := range mgr.List() {
		value := e.Value
		if value == "" {
			value = "-"
		}
		fmt.Fprintf(w, "%s\t%s\n", e.Key, value)
	}
	return w.Flush()
}

// --- GET command ---

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := GetConfig()
		if err != nil {
			return err
		}
		return RunConfigGetWithDependencies(c, configPath(), args[0], DefaultOutput)
	},
}

// RunConfigGetWithDependencies runs the get command with injected dependencies
func RunConfigGetWithDependencies(c *config.Config, path, key string, out OutputWriter) error {
	value, err := config.NewConfigManager(c, path).Get(key)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, value)
	return nil
}

// --- SET command ---

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := GetConfig()
		if err != nil {
			return err
		}
		return RunConfigSetWithDependencies(c, configPath(), args[0], args[1], DefaultOutput)
	},
}

// RunConfigSetWithDependencies runs the set command with injected dependencies
func RunConfigSetWithDependencies(c *config.Config, path, key, value string, out OutputWriter) error {
	if err := config.NewConfigManager(c, path).Set(key, value); err != nil {
		return err
	}
	fmt.Fprintf(out, "Set %s = %q\n", key, value)
	return nil
}

// --- RESET command ---

var configResetCmd = &cobra.Command{
	Use:   "reset <key>",
	Short: "Restore the default of one configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := GetConfig()
		if err != nil {
			return err
		}
		return RunConfigResetWithDependencies(c, configPath(), args[0], DefaultOutput)
	},
}

// RunConfigResetWithDependencies runs the reset command with injected dependencies
func RunConfigResetWithDependencies(c *config.Config, path, key string, out OutputWriter) error {
	mgr := config.NewConfigManager(c, path)
	if err := mgr.Reset(key); err != nil {
		return err
	}
	value, err := mgr.Get(key)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Reset %s to %q\n", key, value)
	return nil
}
