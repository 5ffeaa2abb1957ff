package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/seatwise/seatctl/internal/store"
)

type configKey struct {
	help     string
	validate func(string) error
}

func logLevel(v string) error {
	switch strings.ToLower(v) {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("log_level must be debug, info, warn or error")
}

func batchSize(v string) error {
	n, err := cast.ToIntE(v)
	if err != nil || n <= 0 || n > store.MaxBatchSize {
		return fmt.Errorf("batch_size must be between 1 and %d", store.MaxBatchSize)
	}
	return nil
}

var configKeys = map[string]configKey{
	"project_id":       {help: "GCP project ID"},
	"database":         {help: "Firestore database ID"},
	"credentials_file": {help: "Service account JSON file"},
	"fixture":          {help: "Local JSON fixture used instead of Firestore"},
	"api_url":          {help: "HTTP API base URL"},
	"batch_size":       {help: "Writes per batch commit (max 500)", validate: batchSize},
	"log_level":        {help: "debug, info, warn or error", validate: logLevel},
}

func configKeysHelp() string {
	names := make([]string, 0, len(configKeys))
	for k := range configKeys {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Available keys:\n")
	for _, k := range names {
		fmt.Fprintf(&b, "  %-17s %s\n", k, configKeys[k].help)
	}
	return strings.TrimRight(b.String(), "\n")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get a configuration value",
	Long: `Get a configuration value.

` + configKeysHelp() + `

Examples:
  seatctl config get project_id`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		value := viper.GetString(key)

		if value == "" {
			fmt.Printf("%s is not set\n", key)
		} else if key == "api_key" {
			fmt.Println(redact(value))
		} else {
			fmt.Println(value)
		}

		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Long: `Set a configuration value.

` + configKeysHelp() + `

Examples:
  seatctl config set project_id seatwise-prod
  seatctl config set batch_size 200`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		value := args[1]

		if key == "api_key" {
			return fmt.Errorf("use 'seatctl auth login' to store the API key")
		}
		known, ok := configKeys[key]
		if !ok {
			return fmt.Errorf("unknown key %q", key)
		}
		if known.validate != nil {
			if err := known.validate(value); err != nil {
				return err
			}
		}

		viper.Set(key, value)

		if err := viper.WriteConfig(); err != nil {
			// Try to create the config file if it doesn't exist
			if err := viper.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
		}

		fmt.Printf("✓ Set %s = %s\n", key, value)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configuration values",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := viper.AllSettings()

		if len(settings) == 0 {
			fmt.Println("No configuration set")
			return nil
		}

		keys := make([]string, 0, len(settings))
		for key := range settings {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			value := settings[key]
			if key == "api_key" {
				if v, ok := value.(string); ok && v != "" {
					value = redact(v)
				}
			}
			fmt.Printf("%s = %v\n", key, value)
		}

		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Printf("\n(from %s)\n", used)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configListCmd)
}
