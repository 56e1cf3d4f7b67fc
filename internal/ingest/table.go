// Package ingest reads platform trade-history exports and turns them into
// canonical trades.
package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"forex-analyzer/internal/errors"
)

// Table is a header row plus string cells, as read from a CSV or XLSX export.
type Table struct {
	Headers []string
	Rows    [][]string
	// RawDates marks tables whose date cells may hold spreadsheet serial numbers.
	RawDates bool
}

// Cell returns the value at row i, column j, or "" when the row is short.
func (t *Table) Cell(i, j int) string {
	if i < 0 || i >= len(t.Rows) || j < 0 || j >= len(t.Rows[i]) {
		return ""
	}
	return strings.TrimSpace(t.Rows[i][j])
}

// Format names a supported upload file type.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// FormatOf returns the upload format implied by a filename.
func FormatOf(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm", ".xls":
		return FormatXLSX, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", errors.Wrapf(errors.ErrUnsupportedFormat, "%s", filename)
	}
}

// ReadTable reads a CSV or XLSX export.
func ReadTable(filename string, data []byte) (*Table, error) {
	format, err := FormatOf(filename)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatCSV:
		return ReadCSV(filename, bytes.NewReader(data))
	case FormatXLSX:
		return ReadXLSX(filename, bytes.NewReader(data))
	default:
		return nil, errors.Wrapf(errors.ErrUnsupportedFormat, "%s is not tabular", filename)
	}
}

// ReadCSV reads a comma-separated export. Ragged rows are tolerated.
func ReadCSV(filename string, r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewParseError(filename, 0, "", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.Comma = sniffDelimiter(data)

	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.NewParseError(filename, 0, "", err)
	}
	return buildTable(filename, records, false)
}

// ReadXLSX reads the first worksheet that has a header row.
func ReadXLSX(filename string, r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.NewParseError(filename, 0, "", err)
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, errors.NewParseError(filename, 0, "", fmt.Errorf("sheet %s: %w", sheet, err))
		}
		if len(rows) == 0 {
			continue
		}
		return buildTable(filename, rows, true)
	}
	return nil, errors.NewParseError(filename, 0, "", errors.ErrNoTrades)
}

func buildTable(filename string, records [][]string, rawDates bool) (*Table, error) {
	start := -1
	for i, rec := range records {
		if nonEmpty(rec) >= 2 {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, errors.NewParseError(filename, 0, "", errors.ErrNoTrades)
	}

	t := &Table{
		Headers:  dedupeHeaders(records[start]),
		RawDates: rawDates,
	}
	for _, rec := range records[start+1:] {
		if nonEmpty(rec) == 0 {
			continue
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// dedupeHeaders trims headers and renames repeats as "Name.1", "Name.2".
// MT4 statements repeat Time and Price for the closing leg.
func dedupeHeaders(raw []string) []string {
	seen := make(map[string]int, len(raw))
	out := make([]string, len(raw))
	for i, h := range raw {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, ok := seen[h]; ok {
			seen[h] = n + 1
			out[i] = fmt.Sprintf("%s.%d", h, n+1)
			continue
		}
		seen[h] = 0
		out[i] = h
	}
	return out
}

func nonEmpty(rec []string) int {
	n := 0
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			n++
		}
	}
	return n
}

func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, d := range []rune{';', '\t'} {
		if c := bytes.Count(line, []byte(string(d))); c > bestCount {
			best, bestCount = d, c
		}
	}
	return best
}
