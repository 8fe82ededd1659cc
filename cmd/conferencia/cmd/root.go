package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rezonia/nfe-conferencia/internal/meudanfe"
)

var (
	version = "1.0.0"

	// Global flags
	verbose       bool
	outputFormat  string
	providerURL   string
	providerToken string
	envFile       string

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "conferencia",
	Short: "Conference of Brazilian NFe invoices",
	Long: `Conferencia checks delivered goods against Brazilian electronic invoices (NFe).

It decodes 44-digit access keys, looks them up at the MeuDanfe service,
reduces the fetched XML or JSON into header and line items, and records
one conference row per item in the polo table.

Examples:
  # Decode a key offline
  conferencia decode 35251111406411000106550030003560021710204842

  # Look a key up at the provider
  conferencia lookup 3525 1111 4064 1100 0106 5500 3000 3560 0217 1020 4842

  # Parse downloaded XML files
  conferencia parse notas/*.xml -f table

  # Start the HTTP API
  conferencia serve --store sheets --spreadsheet-id <id>`,
	Version: version,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "json", "Output format (json, table)")
	rootCmd.PersistentFlags().StringVar(&providerURL, "api-url", "", "MeuDanfe API base URL (env: MEUDANFE_API_URL)")
	rootCmd.PersistentFlags().StringVar(&providerToken, "api-token", "", "MeuDanfe API token (env: MEUDANFE_API_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before reading variables")

	// Load from environment variables if not set via flags
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// A missing env file is not an error
	_ = godotenv.Load(envFile)

	if providerURL == "" {
		providerURL = os.Getenv("MEUDANFE_API_URL")
	}
	if providerURL == "" {
		providerURL = meudanfe.DefaultBaseURL
	}
	if providerToken == "" {
		providerToken = os.Getenv("MEUDANFE_API_TOKEN")
	}

	if verbose {
		if l, err := zap.NewDevelopment(); err == nil {
			logger = l
		}
	}
}

func providerConfig() meudanfe.Config {
	return meudanfe.Config{BaseURL: providerURL, Token: providerToken}
}

// envOr returns the flag value, or the environment variable when the flag is empty
func envOr(value, key string) string {
	if value != "" {
		return value
	}
	return os.Getenv(key)
}

func printVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}
