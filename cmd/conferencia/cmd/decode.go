package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rezonia/nfe-conferencia/internal/accesskey"
	"github.com/rezonia/nfe-conferencia/internal/model"
)

var decodeCmd = &cobra.Command{
	Use:   "decode [keys...]",
	Short: "Decode access keys offline",
	Long: `Split 44-digit NFe access keys into their structural fields.

No remote call is made. Spaces inside a key are ignored.

Examples:
  conferencia decode 35251111406411000106550030003560021710204842
  conferencia decode 3525 1111 4064 1100 0106 5500 3000 3560 0217 1020 4842 -f table`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
}

// DecodeResult holds one decoded key
type DecodeResult struct {
	Input string          `json:"input"`
	Key   model.AccessKey `json:"chave"`
	Error string          `json:"erro,omitempty"`
}

func runDecode(cmd *cobra.Command, args []string) error {
	keys := keysFromArgs(args)
	results := make([]DecodeResult, 0, len(keys))
	failed := 0

	for _, in := range keys {
		r := DecodeResult{Input: in}
		parsed, err := accesskey.Parse(accesskey.Clean(in))
		if err != nil {
			r.Error = err.Error()
			failed++
		} else {
			r.Key = parsed
		}
		results = append(results, r)
	}

	switch outputFormat {
	case "json":
		if err := writeJSON(os.Stdout, results); err != nil {
			return err
		}
	case "table":
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tUF\tPERIOD\tCNPJ\tMODEL\tSERIES\tNUMBER\tTPEMIS\tCNF\tDV")
		for _, r := range results {
			if r.Error != "" {
				fmt.Fprintf(tw, "%s\tERROR: %s\t\t\t\t\t\t\t\t\n", r.Input, r.Error)
				continue
			}
			k := r.Key
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				k.Raw, k.UF, k.IssuePeriod, k.IssuerTaxID, k.Model, k.Series, k.Number, k.EmissionType, k.NumericCode, k.CheckDigit)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported output format: %s", outputFormat)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d keys are invalid", failed, len(results))
	}
	return nil
}
