package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rezonia/nfe-conferencia/internal/auth"
)

var operatorCmd = &cobra.Command{
	Use:   "operator <username> <password> <polo>...",
	Short: "Print a CONFERENCIA_OPERATORS entry",
	Long: `Hash the password with bcrypt and print an operator entry for the
CONFERENCIA_OPERATORS variable. Use "*" to grant every polo.

Examples:
  conferencia operator joana s3nha Recife Natal
  CONFERENCIA_OPERATORS="$(conferencia operator admin root '*')"`,
	Args: cobra.MinimumNArgs(3),
	RunE: runOperator,
}

func init() {
	rootCmd.AddCommand(operatorCmd)
}

func runOperator(cmd *cobra.Command, args []string) error {
	hash, err := auth.HashPassword(args[1])
	if err != nil {
		return err
	}
	fmt.Printf("%s:%s:%s\n", args[0], hash, strings.Join(args[2:], "|"))
	return nil
}
