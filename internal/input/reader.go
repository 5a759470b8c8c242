// Package input reads domain lists from CSV and XLSX files and writes
// scored results back out.
package input

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
)

// MaxDomains caps one batch; larger inputs are truncated with a warning.
const MaxDomains = 4000

// domainHeaders are the column names recognized as the domain column,
// in priority order.
var domainHeaders = []string{"website", "domain", "url"}

// ReadDomains loads a domain list from a CSV or XLSX file, dispatching
// on extension. Anything that is not .xlsx is treated as CSV.
func ReadDomains(path string) ([]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return ReadDomainsXLSX(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "input: open file")
	}
	defer f.Close()
	return ReadDomainsCSV(f)
}

// ReadDomainsCSV extracts domains from CSV content. A header row is
// detected by the recognized column names; without one, the first column
// is used. Tab-delimited files and stray quoting are tolerated.
func ReadDomainsCSV(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "input: read csv")
	}
	if len(rows) == 0 {
		return nil, nil
	}

	col, start := domainColumn(rows[0])
	var domains []string
	for _, row := range rows[start:] {
		if col >= len(row) {
			continue
		}
		d := cleanCell(row[col])
		if d != "" {
			domains = append(domains, d)
		}
	}
	return capDomains(domains), nil
}

// ReadDomainsXLSX extracts domains from the first sheet of an XLSX file,
// using the same header detection as the CSV path.
func ReadDomainsXLSX(path string) ([]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "input: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("input: xlsx has no sheets")
	}

	sheet := f.Sheets[0]
	var rows [][]string
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			cells[i] = cell.String()
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	col, start := domainColumn(rows[0])
	var domains []string
	for _, row := range rows[start:] {
		if col >= len(row) {
			continue
		}
		d := cleanCell(row[col])
		if d != "" {
			domains = append(domains, d)
		}
	}
	return capDomains(domains), nil
}

// domainColumn returns the column index holding domains and the first
// data row. Headerless files use column 0 from row 0.
func domainColumn(header []string) (col, start int) {
	for _, name := range domainHeaders {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i, 1
			}
		}
	}
	// No recognized header. If the first cell still looks like a label
	// rather than a domain, skip the row anyway.
	if len(header) > 0 {
		first := strings.ToLower(strings.TrimSpace(header[0]))
		if first == "domains" || first == "websites" || first == "site" {
			return 0, 1
		}
	}
	return 0, 0
}

func cleanCell(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	// Tab-separated content that survived the CSV parse as one field.
	if i := strings.IndexByte(s, '\t'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func capDomains(domains []string) []string {
	if len(domains) > MaxDomains {
		zap.L().Warn("input truncated",
			zap.Int("domains", len(domains)),
			zap.Int("limit", MaxDomains),
		)
		domains = domains[:MaxDomains]
	}
	return domains
}
