package filtering

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spigell/job-aggregator/internal/listing"
)

const (
	StepIncludeKeywords = "include_keywords"
	StepExcludeKeywords = "exclude_keywords"
	StepMinSalary       = "min_salary"
	StepLocations       = "locations"
	StepJobTypes        = "job_types"
	StepAIRelevance     = "ai_relevance"
)

// DefaultSteps returns a fresh pipeline. Steps keep per-run state, so a pipeline must not be
// shared between concurrent runs.
func DefaultSteps() []Filter {
	return []Filter{
		NewIncludeKeywords(),
		NewExcludeKeywords(),
		NewMinSalary(),
		NewLocations(),
		NewJobTypes(),
		NewAIRelevance(),
	}
}

type toggle struct {
	disabled bool
	reason   string
}

func (t *toggle) Disable(reason string) {
	t.disabled = true
	t.reason = reason
}

func (t *toggle) IsEnabled() bool { return !t.disabled }

// keep runs a predicate over listings preserving their order.
func keep(listings []*listing.Listing, name string, pass func(l *listing.Listing) (bool, string)) ([]*listing.Listing, Step) {
	out := make([]*listing.Listing, 0, len(listings))
	step := Step{Initial: len(listings)}
	for _, l := range listings {
		if ok, reason := pass(l); !ok {
			step.Drops = append(step.Drops, Drop{ListingID: l.ExternalID, Filter: name, Reason: reason})
			continue
		}
		out = append(out, l)
	}
	step.Dropped = len(step.Drops)
	step.Left = len(out)
	return out, step
}

func passthrough(listings []*listing.Listing) ([]*listing.Listing, Step, error) {
	return listings, Step{Initial: len(listings), Left: len(listings)}, nil
}

type includeKeywordsFilter struct {
	toggle
	keywords []string
}

// NewIncludeKeywords keeps listings mentioning at least one keyword in title, company or description.
func NewIncludeKeywords() Filter {
	return &includeKeywordsFilter{}
}

func (f *includeKeywordsFilter) Name() string { return StepIncludeKeywords }

func (f *includeKeywordsFilter) Validate(c *Criteria) error {
	f.keywords = nil
	if c != nil {
		f.keywords = compact(c.IncludeKeywords)
	}
	return nil
}

func (f *includeKeywordsFilter) Apply(_ context.Context, _ Deps, listings []*listing.Listing) ([]*listing.Listing, Step, error) {
	if len(f.keywords) == 0 {
		return passthrough(listings)
	}

	out, step := keep(listings, f.Name(), func(l *listing.Listing) (bool, string) {
		if _, ok := newText(l.Title, l.Company, l.Description).firstMatch(f.keywords); ok {
			return true, ""
		}
		return false, "none of the required keywords found"
	})
	return out, step, nil
}

func (f *includeKeywordsFilter) Status() Status {
	details := map[string]string{}
	if len(f.keywords) > 0 {
		details["keywords"] = strings.Join(f.keywords, ",")
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}

type excludeKeywordsFilter struct {
	toggle
	keywords []string
}

// NewExcludeKeywords drops listings whose title, company or description contains a red flag term.
func NewExcludeKeywords() Filter {
	return &excludeKeywordsFilter{}
}

func (f *excludeKeywordsFilter) Name() string { return StepExcludeKeywords }

func (f *excludeKeywordsFilter) Validate(c *Criteria) error {
	f.keywords = nil
	if c != nil {
		f.keywords = compact(c.ExcludeKeywords)
	}
	return nil
}

func (f *excludeKeywordsFilter) Apply(_ context.Context, _ Deps, listings []*listing.Listing) ([]*listing.Listing, Step, error) {
	if len(f.keywords) == 0 {
		return passthrough(listings)
	}

	out, step := keep(listings, f.Name(), func(l *listing.Listing) (bool, string) {
		if kw, ok := newText(l.Title, l.Company, l.Description).firstMatch(f.keywords); ok {
			return false, fmt.Sprintf("contains excluded keyword %q", kw)
		}
		return true, ""
	})
	return out, step, nil
}

func (f *excludeKeywordsFilter) Status() Status {
	details := map[string]string{}
	if len(f.keywords) > 0 {
		details["keywords"] = strings.Join(f.keywords, ",")
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}

type minSalaryFilter struct {
	toggle
	min float64
}

// NewMinSalary drops listings whose best known salary is below the minimum.
// Listings without a salary pass.
func NewMinSalary() Filter {
	return &minSalaryFilter{}
}

func (f *minSalaryFilter) Name() string { return StepMinSalary }

func (f *minSalaryFilter) Validate(c *Criteria) error {
	f.min = 0
	if c != nil {
		f.min = c.MinSalary
	}
	if f.min < 0 {
		return fmt.Errorf("%w: min salary must not be negative", ErrInvalidCriteria)
	}
	return nil
}

func (f *minSalaryFilter) Apply(_ context.Context, _ Deps, listings []*listing.Listing) ([]*listing.Listing, Step, error) {
	if f.min <= 0 {
		return passthrough(listings)
	}

	out, step := keep(listings, f.Name(), func(l *listing.Listing) (bool, string) {
		low, high, ok := l.SalaryRange()
		if !ok {
			return true, ""
		}
		best := high
		if best <= 0 {
			best = low
		}
		if best >= f.min {
			return true, ""
		}
		return false, fmt.Sprintf("salary %s is below %s", strconv.FormatFloat(best, 'f', -1, 64), strconv.FormatFloat(f.min, 'f', -1, 64))
	})
	return out, step, nil
}

func (f *minSalaryFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{"min_salary": strconv.FormatFloat(f.min, 'f', -1, 64)},
	}
}

type locationsFilter struct {
	toggle
	locations []string
}

// NewLocations keeps listings located in one of the allowed places. "remote" matches remote
// listings. Listings without a location pass.
func NewLocations() Filter {
	return &locationsFilter{}
}

func (f *locationsFilter) Name() string { return StepLocations }

func (f *locationsFilter) Validate(c *Criteria) error {
	f.locations = nil
	if c != nil {
		f.locations = compact(c.Locations)
	}
	return nil
}

func (f *locationsFilter) Apply(_ context.Context, _ Deps, listings []*listing.Listing) ([]*listing.Listing, Step, error) {
	if len(f.locations) == 0 {
		return passthrough(listings)
	}

	out, step := keep(listings, f.Name(), func(l *listing.Listing) (bool, string) {
		remote := isRemote(l)
		location := strings.ToLower(strings.TrimSpace(l.Location))
		if location == "" && !remote {
			return true, ""
		}
		for _, allowed := range f.locations {
			allowed = strings.ToLower(allowed)
			if allowed == "remote" {
				if remote {
					return true, ""
				}
				continue
			}
			if strings.Contains(location, allowed) {
				return true, ""
			}
		}
		return false, fmt.Sprintf("location %q is not allowed", l.Location)
	})
	return out, step, nil
}

func (f *locationsFilter) Status() Status {
	details := map[string]string{}
	if len(f.locations) > 0 {
		details["locations"] = strings.Join(f.locations, ",")
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}

func isRemote(l *listing.Listing) bool {
	if remote, ok := l.Metadata[listing.MetaRemote].(bool); ok && remote {
		return true
	}
	_, ok := newText(l.Location).tokens["remote"]
	return ok
}

type jobTypesFilter struct {
	toggle
	types map[string]struct{}
	raw   []string
}

// NewJobTypes keeps listings of an allowed employment type. Listings without a type pass.
func NewJobTypes() Filter {
	return &jobTypesFilter{}
}

func (f *jobTypesFilter) Name() string { return StepJobTypes }

func (f *jobTypesFilter) Validate(c *Criteria) error {
	f.types = make(map[string]struct{})
	f.raw = nil
	if c != nil {
		f.raw = compact(c.JobTypes)
	}
	for _, t := range f.raw {
		f.types[normalizeJobType(t)] = struct{}{}
	}
	return nil
}

func (f *jobTypesFilter) Apply(_ context.Context, _ Deps, listings []*listing.Listing) ([]*listing.Listing, Step, error) {
	if len(f.types) == 0 {
		return passthrough(listings)
	}

	out, step := keep(listings, f.Name(), func(l *listing.Listing) (bool, string) {
		jt := normalizeJobType(l.JobType)
		if jt == "" {
			return true, ""
		}
		if _, ok := f.types[jt]; ok {
			return true, ""
		}
		return false, fmt.Sprintf("job type %q is not allowed", l.JobType)
	})
	return out, step, nil
}

func (f *jobTypesFilter) Status() Status {
	details := map[string]string{}
	if len(f.raw) > 0 {
		details["job_types"] = strings.Join(f.raw, ",")
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}

// normalizeJobType folds "Full Time", "full_time" and "full-time" together.
func normalizeJobType(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(s)))
}
