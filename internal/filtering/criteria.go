package filtering

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spigell/job-aggregator/internal/ai"
)

var ErrInvalidCriteria = errors.New("invalid filter criteria")

// Criteria is what the user asks the listing set to satisfy. Empty lists disable their step.
type Criteria struct {
	IncludeKeywords []string `json:"includeKeywords,omitempty" mapstructure:"include-keywords"`
	ExcludeKeywords []string `json:"excludeKeywords,omitempty" mapstructure:"exclude-keywords"`
	MinSalary       float64  `json:"minSalary,omitempty" mapstructure:"min-salary"`
	Locations       []string `json:"locations,omitempty" mapstructure:"locations"`
	JobTypes        []string `json:"jobTypes,omitempty" mapstructure:"job-types"`
	UseAI           bool     `json:"useAI" mapstructure:"use-ai"`
	// Unfiltered keeps listings the model judged irrelevant in the output, with their verdict.
	Unfiltered    bool   `json:"unfiltered,omitempty" mapstructure:"unfiltered"`
	MinConfidence int    `json:"minConfidence,omitempty" mapstructure:"min-confidence"`
	Profile       string `json:"profile,omitempty" mapstructure:"profile"`
}

func (c *Criteria) Validate() error {
	if c == nil {
		return nil
	}
	if c.MinSalary < 0 {
		return fmt.Errorf("%w: min salary must not be negative", ErrInvalidCriteria)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 100 {
		return fmt.Errorf("%w: min confidence must be within 0..100", ErrInvalidCriteria)
	}
	return nil
}

// Hints converts the criteria into the preferences rendered into the classification prompt.
func (c *Criteria) Hints() ai.Hints {
	return ai.Hints{
		Keywords:      compact(c.IncludeKeywords),
		Locations:     compact(c.Locations),
		JobTypes:      compact(c.JobTypes),
		Profile:       strings.TrimSpace(c.Profile),
		MinConfidence: c.MinConfidence,
	}
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
