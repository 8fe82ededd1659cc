package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/nfe-conferencia/internal/model"
	"github.com/rezonia/nfe-conferencia/internal/processor"
)

var (
	outputFile    string
	lookupTimeout time.Duration

	saveRows     bool
	operatorName string
	poloName     string
	operation    string
	loadDate     string
	loadName     string
	returnDate   string
	checkOK      bool
	notes        string
)

var lookupCmd = &cobra.Command{
	Use:   "lookup [keys...]",
	Short: "Look access keys up at the provider",
	Long: `Register each key at MeuDanfe, fetch its XML and reduce it into header and items.

Parsed XML wins. When the XML is missing or unusable the provider JSON is
normalized instead. A failed lookup keeps the decoded header and yields a
single placeholder item.

With --save, every successful result is recorded as a conference in the
polo table, one row per item.

Examples:
  conferencia lookup 35251111406411000106550030003560021710204842
  conferencia lookup <key> -f table --redis localhost:6379
  conferencia lookup <key> --save --operador joana --polo Recife --operacao Entrega --ok`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLookup,
}

func init() {
	rootCmd.AddCommand(lookupCmd)

	lookupCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	lookupCmd.Flags().DurationVar(&lookupTimeout, "timeout", 45*time.Second, "Timeout per key")
	lookupCmd.Flags().BoolVar(&saveRows, "save", false, "Record the conference in the store")
	lookupCmd.Flags().StringVar(&operatorName, "operador", os.Getenv("USER"), "Operator recorded in saved rows")
	lookupCmd.Flags().StringVar(&poloName, "polo", "", "Polo (worksheet) receiving the rows")
	lookupCmd.Flags().StringVar(&operation, "operacao", model.OperationDelivery, "Operation: Entrega, Devolução, Reentrega, Transferência")
	lookupCmd.Flags().StringVar(&loadDate, "data-carga", "", "Load date (dd/mm/yyyy)")
	lookupCmd.Flags().StringVar(&loadName, "carga", "", "Load identifier")
	lookupCmd.Flags().StringVar(&returnDate, "data-devolucao", "", "Return date (dd/mm/yyyy)")
	lookupCmd.Flags().BoolVar(&checkOK, "ok", false, "Mark the conference as checked without problems")
	lookupCmd.Flags().StringVar(&notes, "observacoes", "", "Free-text notes")
	addStoreFlags(lookupCmd)
	addLookupFlags(lookupCmd)
}

func runLookup(cmd *cobra.Command, args []string) error {
	var conf model.Conference
	if saveRows {
		if poloName == "" {
			return fmt.Errorf("--polo is required with --save")
		}
		var err error
		if conf, err = conferenceFromFlags(); err != nil {
			return err
		}
	}

	st, err := buildStack(cmd.Context(), saveRows)
	if err != nil {
		return err
	}
	defer st.Close()

	sess := model.Session{Operator: operatorName, Polo: poloName}
	cfg := providerConfig()
	keys := keysFromArgs(args)
	printVerbose("Looking up %d keys at %s\n", len(keys), cfg.BaseURL)

	results := make([]*QueryOutput, 0, len(keys))
	failed := 0
	for _, key := range keys {
		ctx, cancel := context.WithTimeout(cmd.Context(), lookupTimeout)
		res := st.pipeline.Query(ctx, sess, cfg, key)
		out := queryOutput(key, res)

		if res.Error != nil {
			failed++
			printVerbose("  %s: %v\n", key, res.Error)
		} else if saveRows {
			rows, err := st.pipeline.Save(ctx, sess, res, conf)
			if err != nil {
				out.Error = err.Error()
				failed++
			} else {
				printVerbose("  %s: saved %d rows (%s)\n", key, len(rows), rows[0].ConferenceID)
			}
		}
		cancel()
		results = append(results, out)
	}

	w, closeOut, err := openOutput(outputFile)
	if err != nil {
		return err
	}
	if err := outputQueries(w, results); err != nil {
		closeOut()
		return err
	}
	if err := closeOut(); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d lookups failed", failed, len(results))
	}
	return nil
}

func queryOutput(source string, res *processor.Result) *QueryOutput {
	out := &QueryOutput{
		Source:   source,
		Header:   res.Header,
		Items:    res.Items,
		Method:   string(res.Method),
		Cached:   res.Cached,
		Warnings: res.Warnings,
	}
	if res.Error != nil {
		out.Error = res.Error.Error()
	}
	return out
}

func conferenceFromFlags() (model.Conference, error) {
	conf := model.Conference{
		Operation: operation,
		Load:      loadName,
		OK:        checkOK,
		Notes:     notes,
	}
	var err error
	if loadDate != "" {
		if conf.LoadDate, err = time.Parse(model.DateLayout, loadDate); err != nil {
			return conf, fmt.Errorf("invalid --data-carga %q: expected dd/mm/yyyy", loadDate)
		}
	}
	if returnDate != "" {
		if conf.ReturnDate, err = time.Parse(model.DateLayout, returnDate); err != nil {
			return conf, fmt.Errorf("invalid --data-devolucao %q: expected dd/mm/yyyy", returnDate)
		}
	}
	return conf, nil
}
