package filtering

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/spigell/job-aggregator/internal/ai"
	"github.com/spigell/job-aggregator/internal/listing"
)

// AIDrop is a listing the model judged irrelevant.
type AIDrop struct {
	ListingID string      `json:"listingId"`
	Verdict   *ai.Verdict `json:"verdict"`
}

// Unclassified is a listing the model could not judge. It is left out of AI filtered output.
type Unclassified struct {
	ListingID string `json:"listingId"`
	Reason    string `json:"reason"`
	Error     string `json:"error,omitempty"`
}

type aiRelevanceFilter struct {
	toggle
	hints      ai.Hints
	unfiltered bool

	model string
	// keyed by listing identity, ExternalID may be empty or repeated
	verdicts     map[*listing.Listing]*ai.Verdict
	dropped      []AIDrop
	unclassified []Unclassified
}

// NewAIRelevance creates the step that classifies the surviving listings with the active
// AI configuration and drops those judged irrelevant.
func NewAIRelevance() Filter {
	return &aiRelevanceFilter{}
}

func (f *aiRelevanceFilter) Name() string { return StepAIRelevance }

func (f *aiRelevanceFilter) Validate(c *Criteria) error {
	f.hints = ai.Hints{}
	f.unfiltered = false
	if c != nil {
		f.hints = c.Hints()
		f.unfiltered = c.Unfiltered
	}
	return nil
}

func (f *aiRelevanceFilter) Apply(ctx context.Context, deps Deps, listings []*listing.Listing) ([]*listing.Listing, Step, error) {
	f.verdicts = make(map[*listing.Listing]*ai.Verdict, len(listings))
	f.dropped = nil
	f.unclassified = nil

	if deps.Classifier == nil || deps.Config == nil {
		if deps.Logger != nil {
			deps.Logger.Info("ai classification is not configured; skipping ai_relevance filter")
		}
		return passthrough(listings)
	}
	f.model = deps.Config.Model

	outcomes := deps.Classifier.ClassifyBatch(ctx, listings, deps.Config, f.hints)
	if err := ctx.Err(); err != nil {
		return nil, Step{}, err
	}

	initial := len(listings)
	approved := make([]*listing.Listing, 0, initial)

	for i, l := range listings {
		if i >= len(outcomes) || (outcomes[i].Err == nil && outcomes[i].Verdict == nil) {
			f.unclassified = append(f.unclassified, Unclassified{ListingID: l.ExternalID, Reason: ai.ReasonUnavailable, Error: "no verdict returned"})
			continue
		}

		outcome := outcomes[i]
		if outcome.Err != nil {
			if deps.Logger != nil {
				deps.Logger.Warn("AI classification failed",
					zap.String("listing_id", l.ExternalID),
					zap.String("reason", outcome.Err.Reason),
					zap.Error(outcome.Err.Err),
				)
			}
			f.unclassified = append(f.unclassified, Unclassified{
				ListingID: l.ExternalID,
				Reason:    outcome.Err.Reason,
				Error:     errorText(outcome.Err.Err),
			})
			continue
		}

		verdict := outcome.Verdict
		if !verdict.IsRelevant && !f.unfiltered {
			if deps.Logger != nil {
				deps.Logger.Info("listing rejected by AI",
					zap.String("listing_id", l.ExternalID),
					zap.Int("confidence", verdict.ConfidenceScore),
					zap.String("rationale", verdict.Rationale),
				)
			}
			f.dropped = append(f.dropped, AIDrop{ListingID: l.ExternalID, Verdict: verdict})
			continue
		}

		f.verdicts[l] = verdict
		approved = append(approved, l)
	}

	left := len(approved)
	return approved, Step{Initial: initial, Dropped: initial - left, Left: left}, nil
}

func (f *aiRelevanceFilter) Status() Status {
	details := map[string]string{
		"min_confidence": strconv.Itoa(f.hints.MinConfidence),
		"unfiltered":     strconv.FormatBool(f.unfiltered),
	}
	if f.model != "" {
		details["model"] = f.model
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
