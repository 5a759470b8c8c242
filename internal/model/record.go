package model

// Source identifies which data provider produced a record.
type Source string

const (
	SourcePrimary   Source = "storeleads"
	SourceSecondary Source = "companyenrich"
	SourceNone      Source = "none"
)

// Metrics holds the normalized company metrics either provider can supply.
// Absent numeric fields are zero, absent strings are empty.
type Metrics struct {
	YearlyRevenue   float64 `json:"yearly_revenue"`
	EmployeeCount   int     `json:"employee_count"`
	MonthlyVisits   float64 `json:"monthly_visits"`
	PlatformRank    int     `json:"platform_rank"`
	RankPercentile  float64 `json:"rank_percentile"`
	PageRank        float64 `json:"page_rank"`
	TotalFunding    float64 `json:"total_funding"`
	ProductCount    int     `json:"product_count"`
	MonthlyAppSpend float64 `json:"monthly_app_spend"`

	Name          string `json:"name,omitempty"`
	Website       string `json:"website,omitempty"`
	Industry      string `json:"industry,omitempty"`
	Platform      string `json:"platform,omitempty"`
	RevenueRange  string `json:"revenue_range,omitempty"`
	EmployeeRange string `json:"employee_range,omitempty"`
	CountryCode   string `json:"country_code,omitempty"`
	CountryName   string `json:"country_name,omitempty"`
	State         string `json:"state,omitempty"`
	City          string `json:"city,omitempty"`
	FoundedYear   int    `json:"founded_year,omitempty"`
	Technologies  string `json:"technologies,omitempty"`
	Keywords      string `json:"keywords,omitempty"`
	FundingStage  string `json:"funding_stage,omitempty"`
	StockSymbol   string `json:"stock_symbol,omitempty"`
	LinkedInURL   string `json:"linkedin_url,omitempty"`
}

// Record is the normalized outcome of enriching one domain from one source.
// Success=false implies Metrics is zero-valued and Error is set.
type Record struct {
	Domain  string  `json:"domain"`
	Source  Source  `json:"source"`
	Success bool    `json:"success"`
	Error   string  `json:"error,omitempty"`
	Metrics Metrics `json:"metrics"`
}

// FailedRecord builds the canonical failure record for a domain.
func FailedRecord(domain string, src Source, errMsg string) Record {
	return Record{
		Domain:  domain,
		Source:  src,
		Success: false,
		Error:   errMsg,
	}
}
