package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rezonia/nfe-conferencia/internal/model"
	"github.com/rezonia/nfe-conferencia/internal/report"
)

var (
	filterOperation string
	filterCheck     string
	filterLoadDate  string
	exportEncoding  string
	templateOnly    bool
)

var historyCmd = &cobra.Command{
	Use:   "history <polo>",
	Short: "List the conferences of a polo",
	Long: `Load the rows recorded for a polo, apply the filters and print statistics.

Statistics always cover every row of the polo. Filters only narrow the listing.

Examples:
  conferencia history Recife --store sheets --spreadsheet-id <id>
  conferencia history Recife --operacao Devolução --check problem -f table`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

var exportCmd = &cobra.Command{
	Use:   "export <polo> <file.csv|file.xlsx>",
	Short: "Export the conferences of a polo",
	Long: `Write the filtered rows of a polo to CSV (';' separated) or XLSX.
The format follows the file extension.

Examples:
  conferencia export Recife conferencias.xlsx
  conferencia export Recife conferencias.csv --encoding windows-1252
  conferencia export Recife modelo.xlsx --template`,
	Args: cobra.ExactArgs(2),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(exportCmd)

	for _, c := range []*cobra.Command{historyCmd, exportCmd} {
		c.Flags().StringVar(&filterOperation, "operacao", "", "Only rows of this operation")
		c.Flags().StringVar(&filterCheck, "check", string(report.CheckAll), "Check status: all, ok, problem")
		c.Flags().StringVar(&filterLoadDate, "data-carga", "", "Only rows of this load date (dd/mm/yyyy)")
		addStoreFlags(c)
	}
	exportCmd.Flags().StringVar(&exportEncoding, "encoding", string(report.EncodingUTF8), "CSV encoding: utf-8, windows-1252")
	exportCmd.Flags().BoolVar(&templateOnly, "template", false, "Write the empty XLSX template instead of rows")
}

func filterFromFlags() (report.Filter, error) {
	check, err := report.ParseCheckFilter(filterCheck)
	if err != nil {
		return report.Filter{}, err
	}
	f := report.Filter{Operation: filterOperation, Check: check, LoadDate: filterLoadDate}
	return f, f.Validate()
}

func runHistory(cmd *cobra.Command, args []string) error {
	filter, err := filterFromFlags()
	if err != nil {
		return err
	}

	st, err := buildStack(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer st.Close()

	h, err := st.pipeline.History(cmd.Context(), args[0], filter)
	if err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		return writeJSON(os.Stdout, h)
	case "table":
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "Total:\t%d\n", h.Stats.Total)
		fmt.Fprintf(tw, "OK:\t%d\n", h.Stats.OK)
		fmt.Fprintf(tw, "Taxa de sucesso:\t%s\n", h.Stats.SuccessRateLabel())
		fmt.Fprintf(tw, "Operação mais comum:\t%s\n", h.Stats.MostCommonOperation)
		for _, oc := range h.Stats.ByOperation {
			fmt.Fprintf(tw, "  %s\t%d\n", oc.Operation, oc.Count)
		}
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, strings.Join(model.Columns(), "\t"))
		for _, r := range h.Rows {
			fmt.Fprintln(tw, strings.Join(r.Values(), "\t"))
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unsupported output format: %s", outputFormat)
	}
}

func runExport(cmd *cobra.Command, args []string) error {
	polo, path := args[0], args[1]
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))

	var buf bytes.Buffer
	if templateOnly {
		if err := report.WriteTemplate(&buf); err != nil {
			return err
		}
		return os.WriteFile(path, buf.Bytes(), 0o644)
	}

	filter, err := filterFromFlags()
	if err != nil {
		return err
	}
	enc, err := report.ParseEncoding(exportEncoding)
	if err != nil {
		return err
	}

	st, err := buildStack(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer st.Close()

	h, err := st.pipeline.History(cmd.Context(), polo, filter)
	if err != nil {
		return err
	}

	switch ext {
	case "csv":
		err = report.WriteCSV(&buf, h.Rows, enc)
	case "xlsx":
		err = report.WriteXLSX(&buf, h.Rows)
	default:
		return fmt.Errorf("unsupported export extension %q: use .csv or .xlsx", ext)
	}
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return err
	}
	printVerbose("Wrote %d rows to %s\n", len(h.Rows), path)
	return nil
}
