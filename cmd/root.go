package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/seatwise/seatctl/internal/logging"
	"github.com/seatwise/seatctl/internal/store"
)

var (
	cfgFile string
	version = "dev"
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "seatctl",
	Short: "Seat and license administration",
	Long: `seatctl inspects and repairs the licensing database behind the team
management app.

Reports, audits and repairs run against one organization at a time. Commands
that write plan first and only touch the database with --apply.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/seatctl/config.yaml)")
	rootCmd.PersistentFlags().String("project", "", "GCP project ID")
	rootCmd.PersistentFlags().String("database", "", "Firestore database ID")
	rootCmd.PersistentFlags().String("credentials", "", "service account JSON file")
	rootCmd.PersistentFlags().String("fixture", "", "operate on a local JSON fixture instead of Firestore")
	rootCmd.PersistentFlags().String("api-url", "", "HTTP API base URL")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	viper.BindPFlag("project_id", rootCmd.PersistentFlags().Lookup("project"))
	viper.BindPFlag("database", rootCmd.PersistentFlags().Lookup("database"))
	viper.BindPFlag("credentials_file", rootCmd.PersistentFlags().Lookup("credentials"))
	viper.BindPFlag("fixture", rootCmd.PersistentFlags().Lookup("fixture"))
	viper.BindPFlag("api_url", rootCmd.PersistentFlags().Lookup("api-url"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	// .env is optional
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		configDir := home + "/.config/seatctl"
		os.MkdirAll(configDir, 0755)

		viper.AddConfigPath(configDir)
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Environment variables
	viper.SetEnvPrefix("SEATCTL")
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("api_url", "https://app.seatwise.io/api")
	viper.SetDefault("database", "(default)")
	viper.SetDefault("batch_size", store.MaxBatchSize)
	viper.SetDefault("log_level", "info")

	if err := viper.ReadInConfig(); err == nil {
		// Config file found and loaded
	}

	if err := logging.Setup(os.Stderr, viper.GetString("log_level"), isTerminal(os.Stderr)); err != nil {
		cobra.CheckErr(err)
	}
}

func isTerminal(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

// GetAPIURL returns the configured API URL
func GetAPIURL() string {
	return viper.GetString("api_url")
}

// GetProjectID returns the configured project, falling back to the
// standard GCP environment variables.
func GetProjectID() string {
	if p := viper.GetString("project_id"); p != "" {
		return p
	}
	if p := os.Getenv("GOOGLE_CLOUD_PROJECT"); p != "" {
		return p
	}
	return os.Getenv("GCLOUD_PROJECT")
}

// GetCredentialsFile returns the service account file, if any.
func GetCredentialsFile() string {
	if f := viper.GetString("credentials_file"); f != "" {
		return f
	}
	return os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
}
