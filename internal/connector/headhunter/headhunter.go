// Package headhunter searches vacancies on hh.ru.
package headhunter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/job-aggregator/internal/connector"
	"github.com/spigell/job-aggregator/internal/listing"
)

const (
	apiURL    = "https://api.hh.ru"
	userAgent = "spigell/job-aggregator (spigelly@gmail.com)"
	// Max value for search per page.
	perPage = 100
)

type Config struct {
	connector.HTTPOptions `mapstructure:",squash"`

	// Token is optional for vacancy search. When set it is sent as a Bearer token.
	Token  string       `mapstructure:"token"`
	APIURL string       `mapstructure:"api-url"`
	Params SearchParams `mapstructure:"params"`
}

type Connector struct {
	cfg    Config
	http   *connector.HTTPClient
	logger *zap.Logger

	// area names resolved through the suggest endpoint
	areas sync.Map
}

func New(cfg Config, logger *zap.Logger) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIURL == "" {
		cfg.APIURL = apiURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = userAgent
	}

	client := connector.NewHTTPClient(listing.SourceHeadHunter, cfg.HTTPOptions, logger)
	// hh.ru rejects requests without an application identifier.
	client.SetHeader("HH-User-Agent", cfg.UserAgent)
	if cfg.Token != "" {
		client.SetHeader("Authorization", fmt.Sprintf("Bearer %s", cfg.Token))
	}

	return &Connector{
		cfg:    cfg,
		http:   client,
		logger: logger,
	}
}

func (c *Connector) Source() listing.Source {
	return listing.SourceHeadHunter
}

func (c *Connector) Search(ctx context.Context, criteria listing.SearchCriteria) (*connector.Response, error) {
	params := c.cfg.Params
	params.Text = criteria.Keywords
	params.Page = criteria.Page
	if params.PerPage == 0 {
		params.PerPage = perPage
	}
	if criteria.PostedAfter != nil {
		params.DateFrom = criteria.PostedAfter.UTC().Format(time.RFC3339)
	}
	if criteria.Location != "" {
		if area, ok := c.resolveArea(ctx, criteria.Location); ok {
			params.Areas = []int{area}
		}
	}

	vacancies, found, err := c.search(ctx, &params)
	if err != nil {
		return nil, connector.Classify(listing.SourceHeadHunter, err)
	}

	listings := make([]*listing.Listing, 0, len(vacancies))
	for _, v := range vacancies {
		if v.ID == "" || v.Name == "" {
			continue
		}
		listings = append(listings, v.toListing())
	}

	return &connector.Response{Listings: listings, Total: found}, nil
}

// resolveArea maps a location to an hh.ru area id. Numeric locations are used as is.
func (c *Connector) resolveArea(ctx context.Context, location string) (int, bool) {
	location = strings.TrimSpace(location)
	if id, err := strconv.Atoi(location); err == nil {
		return id, true
	}

	key := strings.ToLower(location)
	if cached, ok := c.areas.Load(key); ok {
		return cached.(int), true
	}

	id, err := c.suggestArea(ctx, location)
	if err != nil {
		c.logger.Warn("failed to resolve hh.ru area, searching without it",
			zap.String("location", location), zap.Error(err))
		return 0, false
	}
	if id == 0 {
		c.logger.Debug("no hh.ru area matches location", zap.String("location", location))
		return 0, false
	}

	c.areas.Store(key, id)
	return id, true
}
