// Package adzuna searches the Adzuna public jobs API.
package adzuna

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/job-aggregator/internal/connector"
	"github.com/spigell/job-aggregator/internal/listing"
)

const (
	apiURL         = "https://api.adzuna.com/v1/api/jobs"
	defaultCountry = "gb"
	// Adzuna caps results_per_page at 50.
	maxPerPage = 50
)

// Adzuna does not return a currency; it is implied by the country endpoint.
var currencies = map[string]string{
	"at": "EUR", "au": "AUD", "be": "EUR", "br": "BRL", "ca": "CAD", "ch": "CHF",
	"de": "EUR", "es": "EUR", "fr": "EUR", "gb": "GBP", "in": "INR", "it": "EUR",
	"mx": "MXN", "nl": "EUR", "nz": "NZD", "pl": "PLN", "sg": "SGD", "us": "USD", "za": "ZAR",
}

type Config struct {
	connector.HTTPOptions `mapstructure:",squash"`

	AppID   string `mapstructure:"app-id"`
	AppKey  string `mapstructure:"app-key"`
	Country string `mapstructure:"country"`
	PerPage int    `mapstructure:"per-page"`
	APIURL  string `mapstructure:"api-url"`
}

type Connector struct {
	cfg    Config
	http   *connector.HTTPClient
	logger *zap.Logger
	now    func() time.Time
}

type searchResponse struct {
	Count   int      `json:"count"`
	Results []result `json:"results"`
}

type result struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	RedirectURL string  `json:"redirect_url"`
	Created     string  `json:"created"`
	SalaryMin   float64 `json:"salary_min"`
	SalaryMax   float64 `json:"salary_max"`
	// Adzuna sends "1" or "0" as a string here.
	SalaryIsPredicted string `json:"salary_is_predicted"`
	ContractTime      string `json:"contract_time"`
	ContractType      string `json:"contract_type"`
	Company           struct {
		DisplayName string `json:"display_name"`
	} `json:"company"`
	Location struct {
		DisplayName string   `json:"display_name"`
		Area        []string `json:"area"`
	} `json:"location"`
	Category struct {
		Label string `json:"label"`
		Tag   string `json:"tag"`
	} `json:"category"`
}

func New(cfg Config, logger *zap.Logger) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Country == "" {
		cfg.Country = defaultCountry
	}
	if cfg.PerPage <= 0 || cfg.PerPage > maxPerPage {
		cfg.PerPage = maxPerPage
	}
	if cfg.APIURL == "" {
		cfg.APIURL = apiURL
	}

	return &Connector{
		cfg:    cfg,
		http:   connector.NewHTTPClient(listing.SourceAdzuna, cfg.HTTPOptions, logger),
		logger: logger,
		now:    time.Now,
	}
}

func (c *Connector) Source() listing.Source {
	return listing.SourceAdzuna
}

func (c *Connector) Search(ctx context.Context, criteria listing.SearchCriteria) (*connector.Response, error) {
	if c.cfg.AppID == "" || c.cfg.AppKey == "" {
		return nil, connector.NewError(listing.SourceAdzuna, connector.ReasonNotConfigured,
			fmt.Errorf("%w: app-id and app-key are required", connector.ErrNotConfigured))
	}

	// Adzuna pages start at 1.
	endpoint := fmt.Sprintf("%s/%s/search/%d", c.cfg.APIURL, c.cfg.Country, criteria.Page+1)

	q := url.Values{}
	q.Set("app_id", c.cfg.AppID)
	q.Set("app_key", c.cfg.AppKey)
	q.Set("results_per_page", strconv.Itoa(c.cfg.PerPage))
	q.Set("what", criteria.Keywords)
	if criteria.Location != "" {
		q.Set("where", criteria.Location)
	}
	if days := criteria.DaysSincePosted(c.now()); days > 0 {
		q.Set("max_days_old", strconv.Itoa(days))
	}
	q.Set("sort_by", "date")

	var resp searchResponse
	if err := c.http.GetJSON(ctx, endpoint, q, &resp); err != nil {
		return nil, connector.Classify(listing.SourceAdzuna, err)
	}

	listings := make([]*listing.Listing, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.ID == "" || r.Title == "" {
			c.logger.Debug("skip adzuna result without id or title", zap.String("id", r.ID))
			continue
		}
		listings = append(listings, r.toListing(currencies[c.cfg.Country]))
	}

	return &connector.Response{Listings: listings, Total: resp.Count}, nil
}

func (r result) toListing(currency string) *listing.Listing {
	l := &listing.Listing{
		ExternalID:  listing.QualifiedID(listing.SourceAdzuna, r.ID),
		Title:       connector.CleanText(r.Title),
		Company:     r.Company.DisplayName,
		Location:    r.Location.DisplayName,
		Description: connector.CleanText(r.Description),
		URL:         r.RedirectURL,
		PublishedAt: connector.ParseTime(r.Created),
		JobType:     jobType(r.ContractTime),
		Source:      listing.SourceAdzuna,
	}
	l.SetSalaryRange(r.SalaryMin, r.SalaryMax, currency)
	if r.SalaryIsPredicted == "1" {
		l.SetMeta("salary_is_predicted", true)
	}
	l.SetMeta("contract_type", r.ContractType)
	l.SetMeta("category", r.Category.Label)
	if len(r.Location.Area) > 0 {
		l.SetMeta("area", r.Location.Area)
	}
	return l
}

func jobType(contractTime string) string {
	switch contractTime {
	case "full_time":
		return "full-time"
	case "part_time":
		return "part-time"
	default:
		return ""
	}
}
