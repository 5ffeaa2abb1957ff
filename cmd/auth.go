package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"
)

const (
	serviceName = "seatctl"
	keyringUser = "api-key"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage HTTP API credentials",
	Long: `Manage the API key used by 'seatctl api'.

Database commands authenticate with Google credentials instead
(--credentials, GOOGLE_APPLICATION_CREDENTIALS or gcloud application
default credentials).`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store an API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := bufio.NewReader(os.Stdin)

		fmt.Print("Enter API key: ")
		apiKey, _ := reader.ReadString('\n')
		apiKey = strings.TrimSpace(apiKey)

		if len(apiKey) < 16 {
			return fmt.Errorf("invalid API key (too short)")
		}

		// Store API key in keyring
		if err := keyring.Set(serviceName, keyringUser, apiKey); err != nil {
			// Fallback: store in config file (less secure)
			fmt.Println("Warning: Could not store in system keyring, storing in config file")
			viper.Set("api_key", apiKey)
		}

		if err := viper.WriteConfig(); err != nil {
			// Create config file if it doesn't exist
			if err := viper.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
		}

		fmt.Println("✓ Authenticated successfully")
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Clear from keyring
		keyring.Delete(serviceName, keyringUser)

		// Clear from config
		viper.Set("api_key", "")
		viper.WriteConfig()

		fmt.Println("✓ Logged out")
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current auth status",
	RunE: func(cmd *cobra.Command, args []string) error {
		apiKey := GetAPIKey()

		if apiKey == "" {
			fmt.Println("API: not authenticated")
			fmt.Println("Run 'seatctl auth login' to authenticate")
		} else {
			fmt.Printf("API Key: %s\n", redact(apiKey))
			fmt.Printf("API URL: %s\n", GetAPIURL())
		}

		project := GetProjectID()
		if project == "" {
			project = "(not set)"
		}
		fmt.Printf("Project: %s\n", project)

		creds := GetCredentialsFile()
		if creds == "" {
			creds = "application default credentials"
		}
		fmt.Printf("Credentials: %s\n", creds)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
}

func redact(key string) string {
	if len(key) <= 12 {
		return strings.Repeat("*", len(key))
	}
	return key[:8] + "..." + key[len(key)-4:]
}

// GetAPIKey returns the stored API key
func GetAPIKey() string {
	// Check environment first
	if key := os.Getenv("SEATCTL_API_KEY"); key != "" {
		return key
	}

	// Check keyring
	if key, err := keyring.Get(serviceName, keyringUser); err == nil {
		return key
	}

	// Fallback to config
	return viper.GetString("api_key")
}
