package scorer

import (
	"sort"

	"github.com/sells-group/lead-scorer/internal/model"
)

// Summarize aggregates scored results into a batch summary: average score,
// grade/priority distributions, and the top leads by score.
func (s *Scorer) Summarize(results []model.ScoreResult) model.BatchSummary {
	summary := model.BatchSummary{
		Total:                len(results),
		GradeDistribution:    make(map[string]int),
		PriorityDistribution: make(map[string]int),
	}

	var sum float64
	for _, r := range results {
		sum += r.Score
		summary.GradeDistribution[r.Grade]++
		summary.PriorityDistribution[r.Priority]++
		if r.Priority == model.PriorityNoData {
			summary.Failed++
		} else {
			summary.Successful++
		}
	}
	if len(results) > 0 {
		summary.AverageScore = round2(sum / float64(len(results)))
	}

	ranked := make([]model.ScoreResult, len(results))
	copy(ranked, results)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	n := s.cfg.TopLeads
	if n > len(ranked) {
		n = len(ranked)
	}
	for _, r := range ranked[:n] {
		summary.TopLeads = append(summary.TopLeads, model.LeadHighlight{
			Domain:        r.Domain,
			Score:         r.Score,
			Grade:         r.Grade,
			Priority:      r.Priority,
			YearlyRevenue: r.Metrics.YearlyRevenue,
			EmployeeCount: r.Metrics.EmployeeCount,
		})
	}

	return summary
}
