package filtering

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spigell/job-aggregator/internal/ai"
	"github.com/spigell/job-aggregator/internal/aiconfig"
	"github.com/spigell/job-aggregator/internal/listing"
	"github.com/spigell/job-aggregator/internal/logger"
)

const (
	skipNotRequested  = "ai not requested"
	skipNoClassifier  = "ai classification is not configured"
	skipNoActiveModel = "no active ai config"
)

// ListingStore saves filtered listings. Listings the user already has are counted as duplicates.
type ListingStore interface {
	InsertIfNotExists(ctx context.Context, userID string, listings []*listing.Listing) (inserted, duplicates int, err error)
	SavedListings(ctx context.Context, userID string) ([]*listing.Listing, error)
}

// Item is a surviving listing with the verdict that let it through, if AI ran.
type Item struct {
	Listing *listing.Listing `json:"listing"`
	Verdict *ai.Verdict      `json:"verdict,omitempty"`
}

type Result struct {
	Listings        []Item         `json:"listings"`
	OriginalCount   int            `json:"originalCount"`
	FilteredCount   int            `json:"filteredCount"`
	Dropped         []Drop         `json:"dropped"`
	AIDropped       []AIDrop       `json:"aiDropped"`
	Unclassified    []Unclassified `json:"unclassified"`
	Steps           []Step         `json:"steps"`
	Filters         []Status       `json:"filters"`
	AIApplied       bool           `json:"aiApplied"`
	AISkippedReason string         `json:"aiSkippedReason,omitempty"`
}

// Accepted returns the surviving listings the model did not reject.
func (r *Result) Accepted() []*listing.Listing {
	out := make([]*listing.Listing, 0, len(r.Listings))
	for _, item := range r.Listings {
		if item.Verdict != nil && !item.Verdict.IsRelevant {
			continue
		}
		out = append(out, item.Listing)
	}
	return out
}

type Orchestrator struct {
	classifier Classifier
	store      ListingStore
	logger     *zap.Logger
}

// NewOrchestrator wires the collaborators. Both classifier and store are optional.
func NewOrchestrator(classifier Classifier, store ListingStore, l *zap.Logger) *Orchestrator {
	return &Orchestrator{classifier: classifier, store: store, logger: logger.OrNop(l)}
}

// Filter applies the deterministic steps and, when requested and possible, the AI step.
// Output keeps the input order. Criteria errors are returned before any classification call.
func (o *Orchestrator) Filter(ctx context.Context, listings []*listing.Listing, criteria Criteria, active *aiconfig.Config) (*Result, error) {
	if err := criteria.Validate(); err != nil {
		return nil, err
	}

	input := make([]*listing.Listing, 0, len(listings))
	for _, l := range listings {
		if l != nil {
			input = append(input, l)
		}
	}

	steps := DefaultSteps()
	skipReason := ""
	switch {
	case !criteria.UseAI:
		skipReason = skipNotRequested
	case o.classifier == nil:
		skipReason = skipNoClassifier
	case active == nil:
		skipReason = skipNoActiveModel
	}
	if skipReason != "" {
		DisableByName(steps, StepAIRelevance, skipReason)
	}

	deps := Deps{Logger: o.logger, Classifier: o.classifier, Config: active}
	kept, applied, err := Run(ctx, &criteria, deps, steps, input)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	res := &Result{
		Listings:        make([]Item, 0, len(kept)),
		OriginalCount:   len(input),
		Dropped:         []Drop{},
		AIDropped:       []AIDrop{},
		Unclassified:    []Unclassified{},
		Steps:           applied,
		Filters:         Describe(steps),
		AIApplied:       skipReason == "",
		AISkippedReason: skipReason,
	}
	for _, step := range applied {
		res.Dropped = append(res.Dropped, step.Drops...)
	}

	var verdicts map[*listing.Listing]*ai.Verdict
	for _, step := range steps {
		if f, ok := step.(*aiRelevanceFilter); ok && f.IsEnabled() {
			verdicts = f.verdicts
			res.AIDropped = append(res.AIDropped, f.dropped...)
			res.Unclassified = append(res.Unclassified, f.unclassified...)
		}
	}

	for _, l := range kept {
		res.Listings = append(res.Listings, Item{Listing: l, Verdict: verdicts[l]})
	}
	res.FilteredCount = len(res.Listings)

	o.logger.Info("filtering completed",
		zap.Int("original", res.OriginalCount),
		zap.Int("filtered", res.FilteredCount),
		zap.Int("ai_dropped", len(res.AIDropped)),
		zap.Int("unclassified", len(res.Unclassified)),
		zap.Bool("ai_applied", res.AIApplied),
	)

	return res, nil
}

// Saved returns the listings persisted for the user, oldest first.
func (o *Orchestrator) Saved(ctx context.Context, userID string) ([]*listing.Listing, error) {
	if o.store == nil {
		return nil, errors.New("no listing store configured")
	}
	return o.store.SavedListings(ctx, userID)
}

// Persist saves the accepted listings of res for the user.
func (o *Orchestrator) Persist(ctx context.Context, userID string, res *Result) (int, int, error) {
	if o.store == nil {
		return 0, 0, errors.New("no listing store configured")
	}
	if res == nil {
		return 0, 0, nil
	}

	inserted, duplicates, err := o.store.InsertIfNotExists(ctx, userID, res.Accepted())
	if err != nil {
		return 0, 0, err
	}

	o.logger.Info("listings saved",
		zap.String(logger.FieldUserID, userID),
		zap.Int("inserted", inserted),
		zap.Int("duplicates", duplicates),
	)
	return inserted, duplicates, nil
}
