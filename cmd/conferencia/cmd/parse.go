package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rezonia/nfe-conferencia/internal/processor"
)

var parseCmd = &cobra.Command{
	Use:   "parse [files...]",
	Short: "Parse downloaded NFe documents",
	Long: `Reduce NFe XML files, or saved provider JSON responses, into header and items.

No remote call is made. Directories are walked for .xml and .json files.
XML signatures are inspected and reported as warnings.

Examples:
  conferencia parse nota.xml
  conferencia parse notas/ -f table
  conferencia parse resposta.json -o itens.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	addTrustFlags(parseCmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found to parse")
	}
	printVerbose("Found %d files to parse\n", len(files))

	verifier, err := newVerifier()
	if err != nil {
		return fmt.Errorf("load trust store: %w", err)
	}
	pipeline := processor.NewPipeline(
		processor.WithLogger(logger),
		processor.WithVerifier(verifier),
	)

	results := make([]*QueryOutput, 0, len(files))
	failed := 0
	for _, file := range files {
		printVerbose("Parsing: %s\n", file)
		out := parseFile(cmd, pipeline, file)
		if out.Error != "" {
			failed++
			printVerbose("  Error: %s\n", out.Error)
		}
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
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}

func parseFile(cmd *cobra.Command, pipeline *processor.Pipeline, path string) *QueryOutput {
	data, err := os.ReadFile(path)
	if err != nil {
		return &QueryOutput{Source: path, Error: fmt.Sprintf("failed to read file: %v", err)}
	}
	return queryOutput(path, pipeline.ParseDocument(cmd.Context(), data))
}

func collectFiles(args []string) ([]string, error) {
	var files []string

	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", arg, err)
		}
		if len(matches) == 0 {
			matches = []string{arg}
		}

		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				return nil, fmt.Errorf("file not found: %s", match)
			}
			if !info.IsDir() {
				files = append(files, match)
				continue
			}
			err = filepath.Walk(match, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !info.IsDir() && isSupportedFile(path) {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
	}

	return files, nil
}

func isSupportedFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml", ".json":
		return true
	default:
		return false
	}
}
