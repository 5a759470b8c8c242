package model

import "time"

// Grade bands, ordered best to worst.
const (
	GradeAPlus = "A+"
	GradeA     = "A"
	GradeBPlus = "B+"
	GradeB     = "B"
	GradeCPlus = "C+"
	GradeC     = "C"
	GradeD     = "D"
	GradeF     = "F"
)

// Priority tiers.
const (
	PriorityVeryHigh = "Very High"
	PriorityHigh     = "High"
	PriorityMedium   = "Medium"
	PriorityLow      = "Low"
	PriorityVeryLow  = "Very Low"
	PriorityNoData   = "No Data"
)

// Breakdown reports each weighted component contribution to the final score.
type Breakdown struct {
	Revenue float64 `json:"revenue_contribution"`
	Size    float64 `json:"size_contribution"`
	Traffic float64 `json:"traffic_contribution"`
	Rank    float64 `json:"rank_contribution"`
	Funding float64 `json:"funding_contribution"`
}

// ScoreResult is the scored outcome for one domain, derived from exactly
// one Record.
type ScoreResult struct {
	Domain    string    `json:"domain"`
	Score     float64   `json:"score"`
	Grade     string    `json:"grade"`
	Priority  string    `json:"priority"`
	Reason    string    `json:"reason,omitempty"`
	Breakdown Breakdown `json:"breakdown"`
	Metrics   Metrics   `json:"metrics"`
	Source    Source    `json:"source"`
	Cached    bool      `json:"cached"`
	ScoredAt  time.Time `json:"scored_at"`
}

// BatchSummary aggregates a completed batch's results.
type BatchSummary struct {
	Total                int             `json:"total"`
	Successful           int             `json:"successful"`
	Failed               int             `json:"failed"`
	AverageScore         float64         `json:"average_score"`
	GradeDistribution    map[string]int  `json:"grade_distribution"`
	PriorityDistribution map[string]int  `json:"priority_distribution"`
	TopLeads             []LeadHighlight `json:"top_leads,omitempty"`
}

// LeadHighlight is the compact per-lead row used in summaries.
type LeadHighlight struct {
	Domain        string  `json:"domain"`
	Score         float64 `json:"score"`
	Grade         string  `json:"grade"`
	Priority      string  `json:"priority"`
	YearlyRevenue float64 `json:"yearly_revenue"`
	EmployeeCount int     `json:"employee_count"`
}
