package headhunter

import (
	"strings"

	"github.com/spigell/job-aggregator/internal/connector"
	"github.com/spigell/job-aggregator/internal/listing"
)

type vacancy struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Area struct {
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"area,omitempty"`
	HasTest    bool    `json:"has_test,omitempty"`
	Salary     *salary `json:"salary,omitempty"`
	Experience struct {
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"experience,omitempty"`
	Schedule struct {
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"schedule,omitempty"`
	Employer struct {
		ID      string `json:"id,omitempty"`
		Name    string `json:"name,omitempty"`
		Trusted bool   `json:"trusted,omitempty"`
	} `json:"employer,omitempty"`
	Employment struct {
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"employment,omitempty"`
	Description  string `json:"description,omitempty"`
	AlternateURL string `json:"alternate_url,omitempty"`
	Snippet      struct {
		Requirement    string `json:"requirement,omitempty"`
		Responsibility string `json:"responsibility,omitempty"`
	} `json:"snippet,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
}

type salary struct {
	From     float64 `json:"from,omitempty"`
	To       float64 `json:"to,omitempty"`
	Currency string  `json:"currency,omitempty"`
	Gross    bool    `json:"gross,omitempty"`
}

func (v *vacancy) toListing() *listing.Listing {
	l := &listing.Listing{
		ExternalID:  listing.QualifiedID(listing.SourceHeadHunter, v.ID),
		Title:       strings.TrimSpace(v.Name),
		Company:     strings.TrimSpace(v.Employer.Name),
		Location:    strings.TrimSpace(v.Area.Name),
		Description: v.description(),
		URL:         v.AlternateURL,
		PublishedAt: connector.ParseTime(v.PublishedAt),
		JobType:     v.jobType(),
		Source:      listing.SourceHeadHunter,
	}
	if v.Salary != nil {
		l.SetSalaryRange(v.Salary.From, v.Salary.To, v.Salary.Currency)
		if l.Salary != "" {
			l.SetMeta("salary_gross", v.Salary.Gross)
		}
	}
	if v.Schedule.ID == "remote" {
		l.SetMeta(listing.MetaRemote, true)
	}
	l.SetMeta("employer_id", v.Employer.ID)
	l.SetMeta("experience", v.Experience.Name)
	l.SetMeta("schedule", v.Schedule.Name)
	if v.HasTest {
		l.SetMeta("has_test", true)
	}
	return l
}

// description prefers the full text; search results usually carry only the snippet.
func (v *vacancy) description() string {
	if text := connector.CleanText(v.Description); text != "" {
		return text
	}
	parts := make([]string, 0, 2)
	for _, s := range []string{v.Snippet.Responsibility, v.Snippet.Requirement} {
		if text := connector.CleanText(s); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

func (v *vacancy) jobType() string {
	switch v.Employment.ID {
	case "full":
		return "full-time"
	case "part":
		return "part-time"
	case "project":
		return "contract"
	case "probation":
		return "internship"
	}
	return ""
}
