package weworkremotely

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spigell/job-aggregator/internal/connector"
	"github.com/spigell/job-aggregator/internal/listing"
)

const feed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>We Work Remotely: Remote jobs</title>
    <item>
      <title>Acme: Senior Go Engineer</title>
      <region>Anywhere in the World</region>
      <type>Full-Time</type>
      <category>Back-End Programming</category>
      <description>&lt;p&gt;Build Go services&lt;/p&gt;</description>
      <pubDate>Wed, 01 May 2024 10:00:00 +0000</pubDate>
      <guid>https://weworkremotely.com/remote-jobs/acme-senior-go-engineer</guid>
      <link>https://weworkremotely.com/remote-jobs/acme-senior-go-engineer</link>
    </item>
    <item>
      <title>Beta: Rust Developer</title>
      <region>Europe Only</region>
      <type>Contract</type>
      <description>Systems work in Rust</description>
      <pubDate>Thu, 02 May 2024 10:00:00 +0000</pubDate>
      <link>https://weworkremotely.com/remote-jobs/beta-rust-developer</link>
    </item>
    <item>
      <title>Gamma: Go Developer</title>
      <region>USA Only</region>
      <description>Go and Kubernetes</description>
      <pubDate>Mon, 01 Apr 2024 10:00:00 +0000</pubDate>
      <link>https://weworkremotely.com/remote-jobs/gamma-go-developer</link>
    </item>
  </channel>
</rss>`

func newServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(body))
	}))
}

func TestSearchMatchesClientSide(t *testing.T) {
	server := newServer(t, feed)
	defer server.Close()

	c := New(Config{Feeds: []string{server.URL}}, nil)
	resp, err := c.Search(context.Background(), listing.SearchCriteria{Keywords: "go"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Total != 2 || len(resp.Listings) != 2 {
		t.Fatalf("expected 2 go listings, got total=%d len=%d", resp.Total, len(resp.Listings))
	}

	l := resp.Listings[0]
	if l.ExternalID != "weworkremotely-acme-senior-go-engineer" {
		t.Fatalf("unexpected id: %q", l.ExternalID)
	}
	if l.Company != "Acme" || l.Title != "Senior Go Engineer" {
		t.Fatalf("unexpected company/title: %q / %q", l.Company, l.Title)
	}
	if l.Location != "Remote (Anywhere in the World)" {
		t.Fatalf("unexpected location: %q", l.Location)
	}
	if l.Description != "Build Go services" {
		t.Fatalf("unexpected description: %q", l.Description)
	}
	if l.JobType != "full-time" {
		t.Fatalf("unexpected job type: %q", l.JobType)
	}
	if l.PublishedAt == nil || l.PublishedAt.Day() != 1 {
		t.Fatalf("unexpected published date: %v", l.PublishedAt)
	}
}

func TestSearchLocationAndPostedAfter(t *testing.T) {
	server := newServer(t, feed)
	defer server.Close()

	c := New(Config{Feeds: []string{server.URL}}, nil)

	resp, err := c.Search(context.Background(), listing.SearchCriteria{Keywords: "developer", Location: "Europe"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Listings) != 1 || resp.Listings[0].Company != "Beta" {
		t.Fatalf("expected only the Europe listing, got %+v", resp.Listings)
	}

	after := time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC)
	resp, err = c.Search(context.Background(), listing.SearchCriteria{Keywords: "go", PostedAfter: &after})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Listings) != 1 || resp.Listings[0].Company != "Acme" {
		t.Fatalf("expected only the recent listing, got %d", len(resp.Listings))
	}
}

func TestSearchPaging(t *testing.T) {
	server := newServer(t, feed)
	defer server.Close()

	c := New(Config{Feeds: []string{server.URL}, PageSize: 1}, nil)
	resp, err := c.Search(context.Background(), listing.SearchCriteria{Keywords: "go", Page: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Total != 2 || len(resp.Listings) != 1 || resp.Listings[0].Company != "Gamma" {
		t.Fatalf("unexpected second page: total=%d listings=%+v", resp.Total, resp.Listings)
	}

	resp, err = c.Search(context.Background(), listing.SearchCriteria{Keywords: "go", Page: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Listings) != 0 || resp.Total != 2 {
		t.Fatalf("expected empty page past the end, got %d", len(resp.Listings))
	}
}

func TestSearchMalformedFeed(t *testing.T) {
	server := newServer(t, "not a feed")
	defer server.Close()

	c := New(Config{Feeds: []string{server.URL}}, nil)
	_, err := c.Search(context.Background(), listing.SearchCriteria{Keywords: "go"})

	var cerr *connector.Error
	if !errors.As(err, &cerr) || cerr.Reason != connector.ReasonMalformedPayload {
		t.Fatalf("expected malformed_payload, got %v", err)
	}
}

func TestSplitTitle(t *testing.T) {
	company, title := splitTitle("Acme Corp: Staff Engineer: Platform")
	if company != "Acme Corp" || title != "Staff Engineer: Platform" {
		t.Fatalf("unexpected split: %q / %q", company, title)
	}
	company, title = splitTitle("Just a title")
	if company != "" || title != "Just a title" {
		t.Fatalf("unexpected split without company: %q / %q", company, title)
	}
}
