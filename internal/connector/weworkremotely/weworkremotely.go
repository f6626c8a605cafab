// Package weworkremotely reads the We Work Remotely RSS feeds. The feeds have no
// search API, so matching and paging happen on our side.
package weworkremotely

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/spigell/job-aggregator/internal/connector"
	"github.com/spigell/job-aggregator/internal/listing"
)

const (
	defaultFeed     = "https://weworkremotely.com/remote-jobs.rss"
	defaultPageSize = 50
)

type Config struct {
	connector.HTTPOptions `mapstructure:",squash"`

	Feeds    []string `mapstructure:"feeds"`
	PageSize int      `mapstructure:"page-size"`
}

type Connector struct {
	cfg    Config
	http   *connector.HTTPClient
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Feeds) == 0 {
		cfg.Feeds = []string{defaultFeed}
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}

	return &Connector{
		cfg:    cfg,
		http:   connector.NewHTTPClient(listing.SourceWeWorkRemotely, cfg.HTTPOptions, logger),
		logger: logger,
	}
}

func (c *Connector) Source() listing.Source {
	return listing.SourceWeWorkRemotely
}

func (c *Connector) Search(ctx context.Context, criteria listing.SearchCriteria) (*connector.Response, error) {
	seen := make(map[string]struct{})
	var matched []*listing.Listing

	for _, feedURL := range c.cfg.Feeds {
		items, err := c.fetch(ctx, feedURL)
		if err != nil {
			return nil, connector.Classify(listing.SourceWeWorkRemotely, err)
		}

		for _, item := range items {
			l := toListing(item)
			if l == nil {
				continue
			}
			if _, dup := seen[l.ExternalID]; dup {
				continue
			}
			seen[l.ExternalID] = struct{}{}

			if matches(l, criteria) {
				matched = append(matched, l)
			}
		}
	}

	total := len(matched)
	start := criteria.Page * c.cfg.PageSize
	if start >= total {
		return &connector.Response{Listings: []*listing.Listing{}, Total: total}, nil
	}
	end := min(start+c.cfg.PageSize, total)

	return &connector.Response{Listings: matched[start:end], Total: total}, nil
}

func (c *Connector) fetch(ctx context.Context, feedURL string) ([]*gofeed.Item, error) {
	data, err := c.http.Get(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	// gofeed.Parser is not safe for concurrent use.
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", connector.ErrMalformedPayload, err)
	}

	c.logger.Debug("parsed feed", zap.String("title", feed.Title), zap.Int("items", len(feed.Items)))
	return feed.Items, nil
}

func toListing(item *gofeed.Item) *listing.Listing {
	id := itemID(item)
	if id == "" || strings.TrimSpace(item.Title) == "" {
		return nil
	}

	company, title := splitTitle(item.Title)
	l := &listing.Listing{
		ExternalID:  listing.QualifiedID(listing.SourceWeWorkRemotely, id),
		Title:       title,
		Company:     company,
		Location:    "Remote",
		Description: connector.CleanText(item.Description),
		URL:         item.Link,
		Source:      listing.SourceWeWorkRemotely,
	}
	if item.PublishedParsed != nil {
		published := item.PublishedParsed.UTC()
		l.PublishedAt = &published
	}
	if region := strings.TrimSpace(item.Custom["region"]); region != "" {
		l.Location = "Remote (" + region + ")"
	}
	l.JobType = jobType(item.Custom["type"])
	l.SetMeta(listing.MetaRemote, true)
	l.SetMeta("category", strings.Join(item.Categories, ", "))
	return l
}

func itemID(item *gofeed.Item) string {
	for _, raw := range []string{item.Link, item.GUID} {
		raw = strings.TrimRight(strings.TrimSpace(raw), "/")
		if raw == "" {
			continue
		}
		return path.Base(raw)
	}
	return ""
}

// splitTitle splits the "Company: Role" titles the feed uses.
func splitTitle(raw string) (company, title string) {
	raw = strings.TrimSpace(raw)
	if before, after, ok := strings.Cut(raw, ":"); ok && strings.TrimSpace(after) != "" {
		return strings.TrimSpace(before), strings.TrimSpace(after)
	}
	return "", raw
}

// matches requires every keyword term to occur in the title, company or description.
func matches(l *listing.Listing, criteria listing.SearchCriteria) bool {
	text := l.Title + " " + l.Company + " " + l.Description
	for _, term := range strings.Fields(criteria.Keywords) {
		if !connector.ContainsAnyFold(text, term) {
			return false
		}
	}

	if loc := strings.TrimSpace(criteria.Location); loc != "" && !strings.EqualFold(loc, "remote") {
		if !connector.ContainsAnyFold(l.Location, "anywhere") && !connector.ContainsAnyFold(l.Location+" "+l.Description, loc) {
			return false
		}
	}

	if criteria.PostedAfter != nil && l.PublishedAt != nil && l.PublishedAt.Before(*criteria.PostedAfter) {
		return false
	}
	return true
}

func jobType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "full-time":
		return "full-time"
	case "part-time":
		return "part-time"
	case "contract":
		return "contract"
	}
	return ""
}
