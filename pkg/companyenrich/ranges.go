package companyenrich

import "strings"

// revenueMidpoints maps the API's bucketed revenue ranges to numeric
// midpoint estimates in USD.
var revenueMidpoints = map[string]float64{
	"over-10b":  15_000_000_000,
	"over-1b":   5_000_000_000,
	"500m-1b":   750_000_000,
	"100m-500m": 300_000_000,
	"50m-100m":  75_000_000,
	"10m-50m":   30_000_000,
	"1m-10m":    5_000_000,
	"under-1m":  500_000,
	"0-1m":      500_000,
}

// employeeMidpoints maps the API's bucketed headcount ranges to numeric
// midpoint estimates.
var employeeMidpoints = map[string]int{
	"over-10k":   15000,
	"over-10000": 15000,
	"5k-10k":     7500,
	"5000-10000": 7500,
	"1k-5k":      3000,
	"1000-5000":  3000,
	"500-1k":     750,
	"500-1000":   750,
	"250-500":    375,
	"100-250":    175,
	"50-100":     75,
	"20-50":      35,
	"10-20":      15,
	"5-10":       7,
	"1-5":        3,
	"under-10":   5,
	"0-10":       5,
}

// ParseRevenueRange converts a bucketed revenue string like "over-1b" to
// a numeric estimate. Unknown or empty buckets map to 0.
func ParseRevenueRange(s string) float64 {
	return revenueMidpoints[strings.ToLower(s)]
}

// ParseEmployeeRange converts a bucketed headcount string like "1k-5k" to
// a numeric estimate. Unknown or empty buckets map to 0.
func ParseEmployeeRange(s string) int {
	return employeeMidpoints[strings.ToLower(s)]
}
