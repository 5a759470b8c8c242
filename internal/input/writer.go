package input

import (
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-scorer/internal/model"
)

var resultHeader = []string{
	"domain", "score", "grade", "priority", "source", "cached",
	"name", "platform", "industry",
	"yearly_revenue", "employee_count", "monthly_visits", "platform_rank", "total_funding",
	"country", "reason",
}

// WriteResultsFile writes scored results to a CSV file, best score first.
func WriteResultsFile(path string, results []model.ScoreResult) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "input: create results file")
	}
	defer f.Close()

	if err := WriteResults(f, results); err != nil {
		return err
	}
	return eris.Wrap(f.Close(), "input: close results file")
}

// WriteResults writes scored results as CSV, best score first. The input
// slice is not modified.
func WriteResults(w io.Writer, results []model.ScoreResult) error {
	sorted := make([]model.ScoreResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	cw := csv.NewWriter(w)
	if err := cw.Write(resultHeader); err != nil {
		return eris.Wrap(err, "input: write header")
	}

	for _, r := range sorted {
		row := []string{
			r.Domain,
			strconv.FormatFloat(r.Score, 'f', 2, 64),
			r.Grade,
			r.Priority,
			string(r.Source),
			strconv.FormatBool(r.Cached),
			r.Metrics.Name,
			r.Metrics.Platform,
			r.Metrics.Industry,
			strconv.FormatFloat(r.Metrics.YearlyRevenue, 'f', 0, 64),
			strconv.Itoa(r.Metrics.EmployeeCount),
			strconv.FormatFloat(r.Metrics.MonthlyVisits, 'f', 0, 64),
			strconv.Itoa(r.Metrics.PlatformRank),
			strconv.FormatFloat(r.Metrics.TotalFunding, 'f', 0, 64),
			r.Metrics.CountryCode,
			r.Reason,
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "input: write row")
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "input: flush results")
}
