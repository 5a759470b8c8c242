// Package scorer computes weighted lead-quality scores from normalized
// enrichment records. Scoring is pure and deterministic: the same record
// always yields the same ScoreResult.
package scorer

import (
	"math"
	"time"

	"github.com/sells-group/lead-scorer/internal/model"
)

// Scorer turns a normalized Record into a ScoreResult.
type Scorer struct {
	cfg Config
}

// New creates a Scorer with the given parameters.
func New(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score computes the weighted lead score for a record. A failed record
// yields the fixed no-data result: score 0, grade F, priority "No Data".
func (s *Scorer) Score(rec model.Record) model.ScoreResult {
	if !rec.Success {
		reason := rec.Error
		if reason == "" {
			reason = "No data available"
		}
		return model.ScoreResult{
			Domain:   rec.Domain,
			Score:    0,
			Grade:    model.GradeF,
			Priority: model.PriorityNoData,
			Reason:   reason,
			Source:   rec.Source,
			ScoredAt: time.Now().UTC(),
		}
	}

	m := rec.Metrics
	w := s.cfg.Weights

	revenue := clamp(s.revenueScore(m.YearlyRevenue))
	size := clamp(s.sizeScore(m.EmployeeCount))
	traffic := clamp(s.trafficScore(m.MonthlyVisits))
	rank := clamp(s.rankScore(m.PlatformRank, m.RankPercentile, m.PageRank))

	score := revenue*w.Revenue + size*w.Size + traffic*w.Traffic + rank*w.Rank

	var funding float64
	if m.TotalFunding > 0 {
		funding = clamp(fundingBonus(m.TotalFunding)) * w.Funding
		score += funding
	}

	final := round2(clamp(score))

	return model.ScoreResult{
		Domain:   rec.Domain,
		Score:    final,
		Grade:    GradeFor(final),
		Priority: PriorityFor(final),
		Breakdown: model.Breakdown{
			Revenue: round2(revenue * w.Revenue),
			Size:    round2(size * w.Size),
			Traffic: round2(traffic * w.Traffic),
			Rank:    round2(rank * w.Rank),
			Funding: round2(funding),
		},
		Metrics:  m,
		Source:   rec.Source,
		ScoredAt: time.Now().UTC(),
	}
}

// revenueScore interpolates linearly within the configured revenue brackets.
func (s *Scorer) revenueScore(yearly float64) float64 {
	b := s.cfg.Revenue
	switch {
	case yearly >= b.VeryHigh:
		return 100
	case yearly >= b.High:
		return 80 + (yearly-b.High)/(b.VeryHigh-b.High)*20
	case yearly >= b.Medium:
		return 60 + (yearly-b.Medium)/(b.High-b.Medium)*20
	case yearly >= b.Low:
		return 40 + (yearly-b.Low)/(b.Medium-b.Low)*20
	case yearly > 0:
		return yearly / b.Low * 40
	default:
		return 0
	}
}

// sizeScore interpolates linearly within the configured employee brackets.
func (s *Scorer) sizeScore(employees int) float64 {
	b := s.cfg.Employees
	e := float64(employees)
	switch {
	case employees >= b.Enterprise:
		return 100
	case employees >= b.MidMarket:
		return 75 + (e-float64(b.MidMarket))/float64(b.Enterprise-b.MidMarket)*25
	case employees >= b.Small:
		return 50 + (e-float64(b.Small))/float64(b.MidMarket-b.Small)*25
	case employees >= b.Micro:
		return 25 + (e-float64(b.Micro))/float64(b.Small-b.Micro)*25
	default:
		return 0
	}
}

// trafficScore maps monthly visit volume onto fixed brackets.
func (s *Scorer) trafficScore(visits float64) float64 {
	switch {
	case visits >= 1_000_000:
		return 100
	case visits >= 100_000:
		return 70 + (visits-100_000)/900_000*30
	case visits >= 10_000:
		return 40 + (visits-10_000)/90_000*30
	case visits >= 1_000:
		return 20 + (visits-1_000)/9_000*20
	case visits > 0:
		return visits / 1_000 * 20
	default:
		return 0
	}
}

// rankScore prefers a percentile rank when present, then the e-commerce
// platform rank tiers, then a generic 0-10 page rank scaled to 0-100.
func (s *Scorer) rankScore(platformRank int, rankPercentile, pageRank float64) float64 {
	if rankPercentile > 0 {
		return rankPercentile
	}

	if platformRank > 0 {
		switch {
		case platformRank <= 100:
			return 95
		case platformRank <= 500:
			return 85
		case platformRank <= 1000:
			return 75
		case platformRank <= 5000:
			return 60
		case platformRank <= 10000:
			return 40
		default:
			return math.Max(0, 40-math.Log10(float64(platformRank))*10)
		}
	}

	if pageRank > 0 {
		return math.Min(100, pageRank*10)
	}

	return 0
}

// fundingBonus tiers total funding (USD) into a 0-100 bonus component.
func fundingBonus(totalFunding float64) float64 {
	switch {
	case totalFunding >= 1_000_000_000:
		return 100
	case totalFunding >= 100_000_000:
		return 80
	case totalFunding >= 10_000_000:
		return 60
	case totalFunding >= 1_000_000:
		return 40
	case totalFunding > 0:
		return 20
	default:
		return 0
	}
}

// GradeFor maps a score onto the letter-grade bands.
func GradeFor(score float64) string {
	switch {
	case score >= 90:
		return model.GradeAPlus
	case score >= 80:
		return model.GradeA
	case score >= 70:
		return model.GradeBPlus
	case score >= 60:
		return model.GradeB
	case score >= 50:
		return model.GradeCPlus
	case score >= 40:
		return model.GradeC
	case score >= 30:
		return model.GradeD
	default:
		return model.GradeF
	}
}

// PriorityFor maps a score onto the outreach-priority tiers.
func PriorityFor(score float64) string {
	switch {
	case score >= 80:
		return model.PriorityVeryHigh
	case score >= 60:
		return model.PriorityHigh
	case score >= 40:
		return model.PriorityMedium
	case score >= 20:
		return model.PriorityLow
	default:
		return model.PriorityVeryLow
	}
}

func clamp(v float64) float64 {
	return math.Min(100, math.Max(0, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
