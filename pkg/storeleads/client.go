// Package storeleads provides a client for the Store Leads domain API.
package storeleads

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// ErrNotFound indicates the domain is not in the Store Leads database.
// Callers treat this as an empty lookup, not a transport failure.
var ErrNotFound = eris.New("storeleads: domain not found")

// Client defines the Store Leads operations used for enrichment.
type Client interface {
	// FetchDomain looks up a single domain's store metrics.
	FetchDomain(ctx context.Context, domain string) (*Domain, error)
}

// Domain is the store record returned by the API. Fields the API omits
// decode to zero values.
type Domain struct {
	Name                 string   `json:"name"`
	Platform             string   `json:"platform"`
	CountryCode          string   `json:"country_code"`
	State                string   `json:"state"`
	City                 string   `json:"city"`
	EstimatedSalesYearly float64  `json:"estimated_sales_yearly"`
	EmployeeCount        int      `json:"employee_count"`
	EstimatedVisits      float64  `json:"estimated_visits"`
	PlatformRank         int      `json:"platform_rank"`
	RankPercentile       float64  `json:"rank_percentile"`
	ProductCount         int      `json:"product_count"`
	FeaturedProductCount int      `json:"f_product_count"`
	MonthlyAppSpend      float64  `json:"monthly_app_spend"`
	TotalFunding         float64  `json:"total_funding"`
	Categories           []string `json:"categories"`
	Technologies         []string `json:"technologies"`
}

// domainEnvelope unwraps the nested "domain" key most responses carry.
type domainEnvelope struct {
	Domain *Domain `json:"domain"`
}

// Option configures the Store Leads client.
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

// NewClient creates a Store Leads client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://storeleads.app/json/api/v1",
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

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo executes a request with exponential backoff on transient
// failures (429, 500, 502, 503).
func (c *httpClient) retryDo(ctx context.Context, req *http.Request) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		retryReq := req.Clone(ctx)

		resp, err := c.http.Do(retryReq)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "storeleads: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("storeleads: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

func (c *httpClient) FetchDomain(ctx context.Context, domain string) (*Domain, error) {
	reqURL := fmt.Sprintf("%s/all/domain/%s", c.baseURL, domain)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "storeleads: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	body, statusCode, err := c.retryDo(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "storeleads: request failed")
	}

	switch {
	case statusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case statusCode != http.StatusOK:
		return nil, eris.Errorf("storeleads: unexpected status %d: %s", statusCode, string(body))
	}

	// Responses nest the record under a "domain" key; fall back to a
	// top-level object when the envelope is absent.
	var env domainEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Domain != nil {
		return env.Domain, nil
	}
	var d Domain
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, eris.Wrap(err, "storeleads: decode response")
	}
	return &d, nil
}
