// Package jooble searches the Jooble REST API.
package jooble

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/job-aggregator/internal/connector"
	"github.com/spigell/job-aggregator/internal/listing"
)

const apiURL = "https://jooble.org/api"

// Jooble timestamps carry seven fractional digits and no zone.
var timeLayouts = []string{"2006-01-02T15:04:05.0000000", time.RFC3339Nano, "2006-01-02T15:04:05"}

type Config struct {
	connector.HTTPOptions `mapstructure:",squash"`

	APIKey string `mapstructure:"api-key"`
	APIURL string `mapstructure:"api-url"`
}

type Connector struct {
	cfg    Config
	http   *connector.HTTPClient
	logger *zap.Logger
}

type searchRequest struct {
	Keywords        string `json:"keywords"`
	Location        string `json:"location,omitempty"`
	Page            string `json:"page,omitempty"`
	DateCreatedFrom string `json:"datecreatedfrom,omitempty"`
}

type searchResponse struct {
	TotalCount int   `json:"totalCount"`
	Jobs       []job `json:"jobs"`
}

type job struct {
	ID       json.RawMessage `json:"id"`
	Title    string          `json:"title"`
	Location string          `json:"location"`
	Snippet  string          `json:"snippet"`
	Salary   string          `json:"salary"`
	Source   string          `json:"source"`
	Type     string          `json:"type"`
	Link     string          `json:"link"`
	Company  string          `json:"company"`
	Updated  string          `json:"updated"`
}

func New(cfg Config, logger *zap.Logger) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIURL == "" {
		cfg.APIURL = apiURL
	}

	return &Connector{
		cfg:    cfg,
		http:   connector.NewHTTPClient(listing.SourceJooble, cfg.HTTPOptions, logger),
		logger: logger,
	}
}

func (c *Connector) Source() listing.Source {
	return listing.SourceJooble
}

func (c *Connector) Search(ctx context.Context, criteria listing.SearchCriteria) (*connector.Response, error) {
	if c.cfg.APIKey == "" {
		return nil, connector.NewError(listing.SourceJooble, connector.ReasonNotConfigured,
			fmt.Errorf("%w: api-key is required", connector.ErrNotConfigured))
	}

	req := searchRequest{
		Keywords: criteria.Keywords,
		Location: criteria.Location,
		Page:     strconv.Itoa(criteria.Page + 1),
	}
	if criteria.PostedAfter != nil {
		req.DateCreatedFrom = criteria.PostedAfter.UTC().Format(time.DateOnly)
	}

	var resp searchResponse
	endpoint := fmt.Sprintf("%s/%s", strings.TrimRight(c.cfg.APIURL, "/"), c.cfg.APIKey)
	if err := c.http.PostJSON(ctx, endpoint, req, &resp); err != nil {
		return nil, connector.Classify(listing.SourceJooble, err)
	}

	listings := make([]*listing.Listing, 0, len(resp.Jobs))
	for _, j := range resp.Jobs {
		if j.id() == "" || strings.TrimSpace(j.Title) == "" {
			c.logger.Debug("skip jooble job without id or title", zap.String("link", j.Link))
			continue
		}
		listings = append(listings, j.toListing())
	}

	return &connector.Response{Listings: listings, Total: resp.TotalCount}, nil
}

// id accepts both numeric and string ids.
func (j job) id() string {
	raw := strings.TrimSpace(string(j.ID))
	if raw == "" || raw == "null" {
		return ""
	}
	if unquoted, err := strconv.Unquote(raw); err == nil {
		return strings.TrimSpace(unquoted)
	}
	return raw
}

func (j job) toListing() *listing.Listing {
	l := &listing.Listing{
		ExternalID:  listing.QualifiedID(listing.SourceJooble, j.id()),
		Title:       connector.CleanText(j.Title),
		Company:     strings.TrimSpace(j.Company),
		Location:    strings.TrimSpace(j.Location),
		Description: connector.CleanText(j.Snippet),
		URL:         j.Link,
		PublishedAt: connector.ParseTime(j.Updated, timeLayouts...),
		Salary:      strings.TrimSpace(j.Salary),
		JobType:     jobType(j.Type),
		Source:      listing.SourceJooble,
	}
	l.SetMeta("origin", j.Source)
	l.SetMeta("type", j.Type)
	return l
}

func jobType(raw string) string {
	t := strings.ToLower(raw)
	switch {
	case strings.Contains(t, "full"):
		return "full-time"
	case strings.Contains(t, "part"):
		return "part-time"
	case strings.Contains(t, "contract"), strings.Contains(t, "temporary"):
		return "contract"
	case strings.Contains(t, "intern"):
		return "internship"
	default:
		return ""
	}
}
