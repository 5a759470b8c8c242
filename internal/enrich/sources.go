package enrich

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-scorer/internal/fetcher"
	"github.com/sells-group/lead-scorer/internal/model"
	"github.com/sells-group/lead-scorer/pkg/companyenrich"
	"github.com/sells-group/lead-scorer/pkg/storeleads"
)

// storeleadsSource adapts the Store Leads client to the fetch pool.
type storeleadsSource struct {
	client storeleads.Client
}

// NewStoreleadsSource wraps a Store Leads client as the primary source.
func NewStoreleadsSource(client storeleads.Client) fetcher.Source {
	return &storeleadsSource{client: client}
}

func (s *storeleadsSource) Name() model.Source { return model.SourcePrimary }

func (s *storeleadsSource) Fetch(ctx context.Context, domain string) (model.Record, error) {
	d, err := s.client.FetchDomain(ctx, domain)
	if eris.Is(err, storeleads.ErrNotFound) {
		return model.FailedRecord(domain, model.SourcePrimary, "Domain not found in Store Leads database"), nil
	}
	if err != nil {
		return model.Record{}, err
	}

	productCount := d.FeaturedProductCount
	if productCount == 0 {
		productCount = d.ProductCount
	}

	return model.Record{
		Domain:  domain,
		Source:  model.SourcePrimary,
		Success: true,
		Metrics: model.Metrics{
			YearlyRevenue:   d.EstimatedSalesYearly,
			EmployeeCount:   d.EmployeeCount,
			MonthlyVisits:   d.EstimatedVisits,
			PlatformRank:    d.PlatformRank,
			RankPercentile:  d.RankPercentile,
			ProductCount:    productCount,
			MonthlyAppSpend: d.MonthlyAppSpend,
			TotalFunding:    d.TotalFunding,
			Name:            d.Name,
			Platform:        d.Platform,
			CountryCode:     d.CountryCode,
			State:           d.State,
			City:            d.City,
			Technologies:    strings.Join(d.Technologies, ", "),
			Keywords:        strings.Join(d.Categories, ", "),
		},
	}, nil
}

// companyenrichSource adapts the CompanyEnrich client to the fetch pool.
type companyenrichSource struct {
	client companyenrich.Client
}

// NewCompanyenrichSource wraps a CompanyEnrich client as the fallback source.
func NewCompanyenrichSource(client companyenrich.Client) fetcher.Source {
	return &companyenrichSource{client: client}
}

func (s *companyenrichSource) Name() model.Source { return model.SourceSecondary }

func (s *companyenrichSource) Fetch(ctx context.Context, domain string) (model.Record, error) {
	c, err := s.client.Enrich(ctx, domain)
	if eris.Is(err, companyenrich.ErrNotFound) {
		return model.FailedRecord(domain, model.SourceSecondary, "Company not found in Company Enrich database"), nil
	}
	if err != nil {
		return model.Record{}, err
	}

	name := c.Name
	if name == "" {
		name = domain
	}
	industry := c.Industry
	if industry == "" {
		industry = "Unknown"
	}

	return model.Record{
		Domain:  domain,
		Source:  model.SourceSecondary,
		Success: true,
		Metrics: model.Metrics{
			YearlyRevenue: companyenrich.ParseRevenueRange(c.Revenue),
			EmployeeCount: companyenrich.ParseEmployeeRange(c.Employees),
			PageRank:      c.PageRank,
			TotalFunding:  c.Financial.TotalFunding,
			Name:          name,
			Website:       c.Website,
			Industry:      industry,
			Platform:      "B2B/Enterprise",
			RevenueRange:  c.Revenue,
			EmployeeRange: c.Employees,
			CountryCode:   c.Location.Country.Code,
			CountryName:   c.Location.Country.Name,
			State:         c.Location.State.Name,
			City:          c.Location.City.Name,
			FoundedYear:   c.FoundedYear,
			Technologies:  strings.Join(c.Technologies, ", "),
			Keywords:      strings.Join(c.Keywords, ", "),
			FundingStage:  c.Financial.FundingStage,
			StockSymbol:   c.Financial.StockSymbol,
			LinkedInURL:   c.Socials.LinkedInURL,
		},
	}, nil
}
