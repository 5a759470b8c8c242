package input

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/lead-scorer/internal/model"
)

func TestReadDomainsCSV_WebsiteHeader(t *testing.T) {
	in := strings.NewReader("company,website,notes\nAcme,acme.com,big\nGlobex,globex.com,\n")
	domains, err := ReadDomainsCSV(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme.com", "globex.com"}, domains)
}

func TestReadDomainsCSV_DomainHeader(t *testing.T) {
	in := strings.NewReader("domain\nshopify.com\nallbirds.com\n")
	domains, err := ReadDomainsCSV(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"shopify.com", "allbirds.com"}, domains)
}

func TestReadDomainsCSV_HeaderCaseInsensitive(t *testing.T) {
	in := strings.NewReader("URL\nexample.com\n")
	domains, err := ReadDomainsCSV(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com"}, domains)
}

func TestReadDomainsCSV_NoHeader(t *testing.T) {
	in := strings.NewReader("acme.com\nglobex.com\n")
	domains, err := ReadDomainsCSV(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme.com", "globex.com"}, domains)
}

func TestReadDomainsCSV_SkipsBlanksAndQuotes(t *testing.T) {
	in := strings.NewReader("domain\n\"acme.com\"\n\n  \n'globex.com'\n")
	domains, err := ReadDomainsCSV(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme.com", "globex.com"}, domains)
}

func TestReadDomainsCSV_CapsAtLimit(t *testing.T) {
	var b bytes.Buffer
	b.WriteString("domain\n")
	for i := 0; i < MaxDomains+50; i++ {
		fmt.Fprintf(&b, "site%d.com\n", i)
	}
	domains, err := ReadDomainsCSV(&b)
	require.NoError(t, err)
	assert.Len(t, domains, MaxDomains)
	assert.Equal(t, "site0.com", domains[0])
}

func TestReadDomainsCSV_Empty(t *testing.T) {
	domains, err := ReadDomainsCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, domains)
}

func TestReadDomainsXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "domains.xlsx")
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Leads")
	require.NoError(t, err)

	header := sheet.AddRow()
	header.AddCell().Value = "company"
	header.AddCell().Value = "domain"
	for _, d := range []string{"acme.com", "globex.com"} {
		row := sheet.AddRow()
		row.AddCell().Value = "name"
		row.AddCell().Value = d
	}
	require.NoError(t, f.Save(path))

	domains, err := ReadDomainsXLSX(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme.com", "globex.com"}, domains)
}

func TestReadDomains_DispatchesOnExtension(t *testing.T) {
	dir := t.TempDir()

	xlsxPath := filepath.Join(dir, "in.xlsx")
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	sheet.AddRow().AddCell().Value = "solo.com"
	require.NoError(t, f.Save(xlsxPath))

	domains, err := ReadDomains(xlsxPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"solo.com"}, domains)
}

func TestReadDomains_MissingFile(t *testing.T) {
	_, err := ReadDomains(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
}

func TestWriteResults_SortedByScoreDesc(t *testing.T) {
	results := []model.ScoreResult{
		{Domain: "low.com", Score: 12.5, Grade: model.GradeD, Source: model.SourcePrimary},
		{Domain: "high.com", Score: 88.0, Grade: model.GradeA, Source: model.SourceSecondary,
			Metrics: model.Metrics{Name: "High Inc", YearlyRevenue: 300_000_000, EmployeeCount: 375}},
		{Domain: "mid.com", Score: 55.1, Grade: model.GradeC, Source: model.SourcePrimary},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, results))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "domain,score,grade"))
	assert.True(t, strings.HasPrefix(lines[1], "high.com,88.00,A"))
	assert.True(t, strings.HasPrefix(lines[2], "mid.com,55.10,C"))
	assert.True(t, strings.HasPrefix(lines[3], "low.com,12.50,D"))
	assert.Contains(t, lines[1], "High Inc")
	assert.Contains(t, lines[1], "300000000")
}

func TestWriteResultsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, WriteResultsFile(path, []model.ScoreResult{
		{Domain: "a.com", Score: 40, Grade: model.GradeCPlus},
	}))

	domains, err := ReadDomains(path)
	require.NoError(t, err)
	// Round trip: results files carry a recognized "domain" header.
	assert.Equal(t, []string{"a.com"}, domains)
}
