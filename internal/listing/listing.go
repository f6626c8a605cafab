// Package listing defines the canonical job listing every connector normalizes into.
package listing

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Source identifies the job board a listing came from.
type Source string

const (
	SourceJooble         Source = "jooble"
	SourceAdzuna         Source = "adzuna"
	SourceHeadHunter     Source = "headhunter"
	SourceWeWorkRemotely Source = "weworkremotely"
)

// Metadata keys shared by connectors.
const (
	MetaSalaryMin      = "salary_min"
	MetaSalaryMax      = "salary_max"
	MetaSalaryCurrency = "salary_currency"
	MetaRemote         = "remote"
)

// KnownSources returns every source the module ships a connector for.
func KnownSources() []Source {
	return []Source{SourceJooble, SourceAdzuna, SourceHeadHunter, SourceWeWorkRemotely}
}

// ParseSource converts a raw string to a Source, returning an error for unknown values.
func ParseSource(s string) (Source, error) {
	src := Source(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range KnownSources() {
		if src == known {
			return src, nil
		}
	}
	return "", fmt.Errorf("unknown source %q", s)
}

// Listing is the normalized, source-agnostic job posting.
type Listing struct {
	ExternalID  string         `json:"externalId"`
	Title       string         `json:"title"`
	Company     string         `json:"company,omitempty"`
	Location    string         `json:"location,omitempty"`
	Description string         `json:"description,omitempty"`
	URL         string         `json:"url,omitempty"`
	PublishedAt *time.Time     `json:"publishedDate,omitempty"`
	Salary      string         `json:"salary,omitempty"`
	JobType     string         `json:"jobType,omitempty"`
	Source      Source         `json:"source"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// QualifiedID prefixes a provider id with its source so ids are unique across boards.
func QualifiedID(source Source, id string) string {
	id = strings.TrimSpace(id)
	prefix := string(source) + "-"
	if strings.HasPrefix(id, prefix) {
		return id
	}
	return prefix + id
}

// Completeness counts the populated optional fields.
func (l *Listing) Completeness() int {
	if l == nil {
		return 0
	}

	score := 0
	for _, field := range []string{l.Company, l.Location, l.Description, l.URL, l.Salary} {
		if strings.TrimSpace(field) != "" {
			score++
		}
	}
	if l.PublishedAt != nil && !l.PublishedAt.IsZero() {
		score++
	}
	return score
}

// SetMeta stores a provider field that has no canonical home. Empty values are skipped.
func (l *Listing) SetMeta(key string, value any) {
	switch v := value.(type) {
	case nil:
		return
	case string:
		if strings.TrimSpace(v) == "" {
			return
		}
	}
	if l.Metadata == nil {
		l.Metadata = make(map[string]any)
	}
	l.Metadata[key] = value
}

// SetSalaryRange composes the human readable salary and keeps the numeric range in metadata.
// Zero bounds are treated as unknown.
func (l *Listing) SetSalaryRange(min, max float64, currency string) {
	text := FormatSalary(min, max, currency)
	if text == "" {
		return
	}
	l.Salary = text
	if min > 0 {
		l.SetMeta(MetaSalaryMin, min)
	}
	if max > 0 {
		l.SetMeta(MetaSalaryMax, max)
	}
	l.SetMeta(MetaSalaryCurrency, strings.TrimSpace(currency))
}

// SalaryRange returns the numeric salary bounds. The metadata range wins; free text
// salaries are parsed best-effort. ok is false when nothing numeric is known.
func (l *Listing) SalaryRange() (min, max float64, ok bool) {
	if l == nil {
		return 0, 0, false
	}

	min, hasMin := numeric(l.Metadata[MetaSalaryMin])
	max, hasMax := numeric(l.Metadata[MetaSalaryMax])
	if hasMin || hasMax {
		return min, max, true
	}

	return ParseSalaryText(l.Salary)
}

// MarshalJSON adds the derived completeness score to the wire shape.
func (l Listing) MarshalJSON() ([]byte, error) {
	type plain Listing
	return json.Marshal(struct {
		plain
		CompletenessScore int `json:"completenessScore"`
	}{
		plain:             plain(l),
		CompletenessScore: l.Completeness(),
	})
}

func numeric(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, val > 0
	case float32:
		return float64(val), val > 0
	case int:
		return float64(val), val > 0
	case int64:
		return float64(val), val > 0
	case json.Number:
		f, err := val.Float64()
		return f, err == nil && f > 0
	default:
		return 0, false
	}
}
