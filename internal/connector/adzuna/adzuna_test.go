package adzuna

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

const searchPayload = `{
  "count": 1234,
  "results": [
    {
      "id": "4242",
      "title": "<strong>Go</strong> Developer",
      "description": "Build APIs in Go",
      "redirect_url": "https://www.adzuna.co.uk/jobs/land/ad/4242",
      "created": "2024-05-01T10:00:00Z",
      "salary_min": 45000,
      "salary_max": 60000,
      "salary_is_predicted": "0",
      "contract_time": "full_time",
      "contract_type": "permanent",
      "company": {"display_name": "Acme"},
      "location": {"display_name": "London", "area": ["UK", "London"]},
      "category": {"label": "IT Jobs", "tag": "it-jobs"}
    },
    {"id": "", "title": "no id"}
  ]
}`

func TestSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gb/search/2" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("app_id") != "id" || q.Get("app_key") != "key" {
			t.Errorf("missing credentials: %s", r.URL.RawQuery)
		}
		if q.Get("what") != "golang" || q.Get("where") != "London" {
			t.Errorf("unexpected search terms: %s", r.URL.RawQuery)
		}
		if q.Get("max_days_old") != "8" {
			t.Errorf("unexpected max_days_old: %q", q.Get("max_days_old"))
		}
		_, _ = w.Write([]byte(searchPayload))
	}))
	defer server.Close()

	c := New(Config{AppID: "id", AppKey: "key", APIURL: server.URL}, nil)
	now := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	posted := now.Add(-7 * 24 * time.Hour)

	resp, err := c.Search(context.Background(), listing.SearchCriteria{
		Keywords:    "golang",
		Location:    "London",
		Page:        1,
		PostedAfter: &posted,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Total != 1234 {
		t.Fatalf("expected provider total 1234, got %d", resp.Total)
	}
	if len(resp.Listings) != 1 {
		t.Fatalf("expected 1 listing, got %d", len(resp.Listings))
	}

	l := resp.Listings[0]
	if l.ExternalID != "adzuna-4242" {
		t.Fatalf("unexpected id: %q", l.ExternalID)
	}
	if l.Title != "Go Developer" {
		t.Fatalf("unexpected title: %q", l.Title)
	}
	if l.Salary != "45000–60000 GBP" {
		t.Fatalf("unexpected salary: %q", l.Salary)
	}
	if l.JobType != "full-time" {
		t.Fatalf("unexpected job type: %q", l.JobType)
	}
	if l.PublishedAt == nil || l.PublishedAt.Day() != 1 {
		t.Fatalf("unexpected published date: %v", l.PublishedAt)
	}
	if l.Metadata["contract_type"] != "permanent" {
		t.Fatalf("expected contract_type in metadata, got %v", l.Metadata)
	}
	if l.Completeness() != 6 {
		t.Fatalf("expected complete listing, got %d", l.Completeness())
	}
}

func TestSearchNotConfigured(t *testing.T) {
	c := New(Config{}, nil)
	_, err := c.Search(context.Background(), listing.SearchCriteria{Keywords: "go"})

	var cerr *connector.Error
	if !errors.As(err, &cerr) {
		t.Fatalf("expected connector error, got %v", err)
	}
	if cerr.Reason != connector.ReasonNotConfigured {
		t.Fatalf("expected not_configured, got %q", cerr.Reason)
	}
}

func TestSearchHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := New(Config{AppID: "id", AppKey: "bad", APIURL: server.URL}, nil)
	_, err := c.Search(context.Background(), listing.SearchCriteria{Keywords: "go"})

	var cerr *connector.Error
	if !errors.As(err, &cerr) || cerr.Reason != connector.ReasonHTTPError {
		t.Fatalf("expected http_error, got %v", err)
	}
}
