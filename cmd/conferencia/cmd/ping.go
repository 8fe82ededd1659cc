package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rezonia/nfe-conferencia/internal/meudanfe"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test connectivity with the provider",
	Long: `Send a GET to the provider base URL. Any HTTP status counts as reachable.

Examples:
  conferencia ping
  conferencia ping --api-url https://api.meudanfe.com.br/v2 -f table`,
	Args: cobra.NoArgs,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
}

func runPing(cmd *cobra.Command, args []string) error {
	client := meudanfe.NewClient(meudanfe.WithLogger(logger))
	entry, err := client.Ping(cmd.Context(), providerConfig())

	switch outputFormat {
	case "table":
		fmt.Printf("Endpoint: %s\nStatus:   %s\n", entry.Endpoint, entry.Status)
		if entry.Body != "" {
			fmt.Printf("Body:     %s\n", entry.Body)
		}
	default:
		if werr := writeJSON(os.Stdout, entry); werr != nil {
			return werr
		}
	}

	if err != nil {
		return fmt.Errorf("provider unreachable: %w", err)
	}
	return nil
}
