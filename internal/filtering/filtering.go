// Package filtering narrows an aggregated listing set with deterministic criteria and,
// when the user has an active AI configuration, with model verdicts.
package filtering

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/job-aggregator/internal/ai"
	"github.com/spigell/job-aggregator/internal/aiconfig"
	"github.com/spigell/job-aggregator/internal/listing"
)

// Filter represents a single filtering step applied to listings.
type Filter interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Validate(criteria *Criteria) error
	Apply(ctx context.Context, deps Deps, listings []*listing.Listing) ([]*listing.Listing, Step, error)
}

// Classifier produces verdicts for a batch of listings keyed by ExternalID.
type Classifier interface {
	ClassifyBatch(ctx context.Context, listings []*listing.Listing, cfg *aiconfig.Config, hints ai.Hints) []ai.Outcome
}

// Deps aggregates dependencies shared across all filtering steps.
type Deps struct {
	Logger     *zap.Logger
	Classifier Classifier
	Config     *aiconfig.Config
}

// Step describes the result of executing a filtering step.
type Step struct {
	Name    string `json:"name"`
	Initial int    `json:"initial"`
	Dropped int    `json:"dropped"`
	Left    int    `json:"left"`
	Drops   []Drop `json:"-"`
}

// Drop explains why a deterministic step removed a listing.
type Drop struct {
	ListingID string `json:"listingId"`
	Filter    string `json:"filter"`
	Reason    string `json:"reason"`
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string            `json:"name"`
	Enabled bool              `json:"enabled"`
	Reason  string            `json:"reason,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// statusProvider is implemented by filters that can supply detailed status information.
type statusProvider interface {
	Status() Status
}

// DisableByName marks a filter with the provided name as disabled while keeping it in the list.
func DisableByName(steps []Filter, name, reason string) {
	for _, step := range steps {
		if step.Name() == name {
			step.Disable(reason)
		}
	}
}

// Run executes the supplied filters sequentially and returns the surviving listings in input order
// together with the per-step accounting.
func Run(ctx context.Context, criteria *Criteria, deps Deps, steps []Filter, listings []*listing.Listing) ([]*listing.Listing, []Step, error) {
	for _, step := range steps {
		if !step.IsEnabled() {
			continue
		}
		if err := step.Validate(criteria); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", step.Name(), err)
		}
	}

	applied := make([]Step, 0, len(steps))
	for _, step := range steps {
		if !step.IsEnabled() {
			if deps.Logger != nil {
				deps.Logger.Debug("filter disabled", zap.String("name", step.Name()))
			}
			continue
		}

		next, info, err := step.Apply(ctx, deps, listings)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", step.Name(), err)
		}
		info.Name = step.Name()

		if deps.Logger != nil {
			deps.Logger.Info("filter step",
				zap.String("name", info.Name),
				zap.Int("initial", info.Initial),
				zap.Int("dropped", info.Dropped),
				zap.Int("left", info.Left),
			)
		}

		listings = next
		applied = append(applied, info)
	}

	return listings, applied, nil
}

// Describe returns status entries for the provided filters.
func Describe(steps []Filter) []Status {
	statuses := make([]Status, 0, len(steps))
	for _, step := range steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    step.Name(),
			Enabled: step.IsEnabled(),
		})
	}
	return statuses
}
