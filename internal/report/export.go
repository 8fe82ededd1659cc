package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/rezonia/nfe-conferencia/internal/model"
)

// Encoding selects the CSV character set
type Encoding string

const (
	EncodingUTF8        Encoding = "utf-8"
	EncodingWindows1252 Encoding = "windows-1252"
)

// ParseEncoding accepts utf-8 (default), windows-1252 and its cp1252 alias
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "utf-8", "utf8":
		return EncodingUTF8, nil
	case "windows-1252", "cp1252", "latin1":
		return EncodingWindows1252, nil
	default:
		return "", fmt.Errorf("unsupported csv encoding %q", s)
	}
}

// Check labels used where the markers cannot be encoded
const (
	CheckOKLabel      = "OK"
	CheckProblemLabel = "Com problema"
)

// TemplateColumnCount is the number of leading columns offered in the import template
const TemplateColumnCount = 10

const (
	exportSheet   = "Conferencias"
	templateSheet = "Modelo"
)

// MIME types of the exported files
const (
	ContentTypeCSV  = "text/csv"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// FileName returns the download name for a polo export, e.g. "conferencias_Recife.xlsx"
func FileName(polo, ext string) string {
	return "conferencias_" + polo + "." + ext
}

// WriteCSV writes rows with a header line, separated by ';'
func WriteCSV(w io.Writer, rows []model.Row, enc Encoding) error {
	target := w
	legacy := enc == EncodingWindows1252
	var tw *transform.Writer
	if legacy {
		tw = transform.NewWriter(w, encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder()))
		target = tw
	}

	writer := csv.NewWriter(target)
	writer.Comma = ';'

	if err := writer.Write(model.Columns()); err != nil {
		return err
	}
	for _, r := range rows {
		values := r.Values()
		if legacy {
			values[9] = checkLabel(values[9])
		}
		if err := writer.Write(values); err != nil {
			return err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	if tw != nil {
		return tw.Close()
	}
	return nil
}

func checkLabel(check string) string {
	switch check {
	case model.CheckOK:
		return CheckOKLabel
	case model.CheckProblem:
		return CheckProblemLabel
	default:
		return check
	}
}

// WriteXLSX writes rows as a single-sheet workbook
func WriteXLSX(w io.Writer, rows []model.Row) error {
	lines := make([][]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, r.Values())
	}
	return writeWorkbook(w, exportSheet, model.Columns(), lines)
}

// WriteTemplate writes an empty workbook with the first columns of the conference sheet
func WriteTemplate(w io.Writer) error {
	return writeWorkbook(w, templateSheet, model.Columns()[:TemplateColumnCount], nil)
}

func writeWorkbook(w io.Writer, sheet string, header []string, lines [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	for i, line := range lines {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		line := line
		if err := f.SetSheetRow(sheet, cell, &line); err != nil {
			return fmt.Errorf("write line %d: %w", i+2, err)
		}
	}

	return f.Write(w)
}
