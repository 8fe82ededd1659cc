package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rezonia/nfe-conferencia/internal/accesskey"
	"github.com/rezonia/nfe-conferencia/internal/model"
)

// keysFromArgs accepts several keys, or a single key split across arguments
// as printed on the DANFE ("3525 1111 ...").
func keysFromArgs(args []string) []string {
	all := true
	for _, a := range args {
		if len(accesskey.Clean(a)) != accesskey.Length {
			all = false
			break
		}
	}
	if all {
		return args
	}
	return []string{strings.Join(args, "")}
}

func openOutput(path string) (io.Writer, func() error, error) {
	if path == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// QueryOutput is the printable outcome of a lookup or parse
type QueryOutput struct {
	Source   string              `json:"source"`
	Header   model.InvoiceHeader `json:"cabecalho"`
	Items    []model.LineItem    `json:"itens"`
	Method   string              `json:"metodo,omitempty"`
	Cached   bool                `json:"cache,omitempty"`
	Warnings []string            `json:"avisos,omitempty"`
	Error    string              `json:"erro,omitempty"`
}

func outputQueries(w io.Writer, results []*QueryOutput) error {
	switch outputFormat {
	case "json":
		return writeJSON(w, results)
	case "table":
		return outputQueryTable(w, results)
	default:
		return fmt.Errorf("unsupported output format: %s", outputFormat)
	}
}

func outputQueryTable(w io.Writer, results []*QueryOutput) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, r := range results {
		h := r.Header
		fmt.Fprintf(tw, "SOURCE\t%s\n", r.Source)
		fmt.Fprintf(tw, "NF\t%s (série %s)\n", h.Number, h.Series)
		fmt.Fprintf(tw, "EMISSÃO\t%s\n", h.IssueDate)
		fmt.Fprintf(tw, "EMITENTE\t%s\n", h.IssuerTaxID)
		fmt.Fprintf(tw, "DESTINATÁRIO\t%s\n", h.Recipient)
		fmt.Fprintf(tw, "VALOR\t%s\n", h.TotalValue)
		fmt.Fprintf(tw, "STATUS\t%s\n", h.Status)
		if r.Method != "" {
			fmt.Fprintf(tw, "MÉTODO\t%s\n", r.Method)
		}
		if r.Error != "" {
			fmt.Fprintf(tw, "ERRO\t%s\n", r.Error)
		}
		fmt.Fprintln(tw, "CÓDIGO\tDESCRIÇÃO\tQTD\tUN")
		fmt.Fprintln(tw, "------\t---------\t---\t--")
		for _, it := range r.Items {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", it.Code, it.Description, it.Quantity.String(), it.Unit)
		}
		for _, warn := range r.Warnings {
			fmt.Fprintf(tw, "AVISO\t%s\n", warn)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
