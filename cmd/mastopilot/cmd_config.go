package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/user/mastopilot/internal/config"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configListCmd, configGetCmd, configSetCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit the mastopilot configuration",
}

// formatConfigList renders the flattened config grouped by section, with a
// blank line between sections and keys aligned within each.
func formatConfigList(values map[string]any) string {
	keys := make([]string, 0, len(values))
	width := 0
	for k := range values {
		keys = append(keys, k)
		if len(k) > width {
			width = len(k)
		}
	}
	sort.Strings(keys)

	var sb strings.Builder
	section := ""
	for _, k := range keys {
		s, _, _ := strings.Cut(k, ".")
		if section != "" && s != section {
			sb.WriteByte('\n')
		}
		section = s
		fmt.Fprintf(&sb, "%-*s = %v\n", width, k, values[k])
	}
	return sb.String()
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configuration values (secrets masked)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		values, err := config.ListValues(cfg, true)
		if err != nil {
			return fmt.Errorf("list config: %w", err)
		}
		fmt.Fprint(os.Stdout, formatConfigList(values))
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value (e.g. automation.document_poll_seconds)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		val, err := config.GetValue(cfgPath, args[0])
		if err != nil {
			return fmt.Errorf("%w (run 'mastopilot config list' for available keys)", err)
		}
		fmt.Fprintln(os.Stdout, val)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetValue(cfgPath, args[0], args[1]); err != nil {
			return err
		}
		display := args[1]
		if config.IsSecretKey(args[0]) {
			display = "***"
		}
		fmt.Fprintf(os.Stdout, "Set %s = %s\n", args[0], display)

		// Catch a bad poll interval or char limit here instead of at the
		// next serve.
		if updated, err := config.Load(cfgPath); err == nil {
			if verr := updated.Validate(); verr != nil {
				fmt.Fprintf(os.Stderr, "Warning: config is now invalid, serve will refuse to start: %v\n", verr)
			}
		}
		fmt.Fprintln(os.Stdout, "Run 'mastopilot restart' to apply to a running daemon.")
		return nil
	},
}
