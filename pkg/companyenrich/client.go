// Package companyenrich provides a client for the CompanyEnrich B2B API.
package companyenrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

// ErrNotFound indicates the company is not in the CompanyEnrich database.
var ErrNotFound = eris.New("companyenrich: company not found")

// Client defines the CompanyEnrich operations used for enrichment.
type Client interface {
	// Enrich looks up a company by its domain.
	Enrich(ctx context.Context, domain string) (*Company, error)
}

// Company is the enrichment record returned by the API. Revenue and
// Employees are bucketed range strings; use ParseRevenueRange and
// ParseEmployeeRange for numeric midpoints.
type Company struct {
	Name         string    `json:"name"`
	Website      string    `json:"website"`
	Industry     string    `json:"industry"`
	Industries   []string  `json:"industries"`
	Keywords     []string  `json:"keywords"`
	Technologies []string  `json:"technologies"`
	FoundedYear  int       `json:"founded_year"`
	PageRank     float64   `json:"page_rank"`
	Revenue      string    `json:"revenue"`
	Employees    string    `json:"employees"`
	Location     Location  `json:"location"`
	Financial    Financial `json:"financial"`
	Socials      Socials   `json:"socials"`
}

// Location describes the company's registered location.
type Location struct {
	Country CodeName `json:"country"`
	State   CodeName `json:"state"`
	City    CodeName `json:"city"`
}

// CodeName is a coded location component.
type CodeName struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Financial holds funding and listing details.
type Financial struct {
	StockSymbol  string  `json:"stock_symbol"`
	TotalFunding float64 `json:"total_funding"`
	FundingStage string  `json:"funding_stage"`
}

// Socials holds the company's social profiles.
type Socials struct {
	LinkedInURL string `json:"linkedin_url"`
}

// Option configures the CompanyEnrich client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a CompanyEnrich client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.companyenrich.com",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Enrich(ctx context.Context, domain string) (*Company, error) {
	reqURL := fmt.Sprintf("%s/companies/enrich?domain=%s", c.baseURL, url.QueryEscape(domain))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "companyenrich: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "companyenrich: request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "companyenrich: read response body")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, eris.Errorf("companyenrich: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var company Company
	if err := json.Unmarshal(body, &company); err != nil {
		return nil, eris.Wrap(err, "companyenrich: decode response")
	}
	return &company, nil
}
