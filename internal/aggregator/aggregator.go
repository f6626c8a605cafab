// Package aggregator fans a search out to every requested connector, merges what
// came back in time, removes duplicates and ranks the result.
package aggregator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/job-aggregator/internal/connector"
	"github.com/spigell/job-aggregator/internal/listing"
)

const (
	DefaultTimeout = 10 * time.Second
	// collectGrace is the fixed overhead allowed on top of the per-source timeout.
	collectGrace = 250 * time.Millisecond
)

// Result is the merged, deduplicated and ranked outcome of one aggregation.
type Result struct {
	Listings []*listing.Listing `json:"listings"`
	// SourceErrors has an entry for every requested source without a usable response.
	SourceErrors map[listing.Source]string `json:"sourceErrors"`
	// TotalCount sums the totals reported by responding sources. It ignores dedup.
	TotalCount       int              `json:"totalCount"`
	RequestedSources []listing.Source `json:"requestedSources"`
	Duplicates       int              `json:"duplicates"`
}

type Aggregator struct {
	connectors map[listing.Source]connector.Connector
	// priority order, index 0 wins ties
	order  []listing.Source
	logger *zap.Logger
}

type outcome struct {
	source   listing.Source
	response *connector.Response
	err      *connector.Error
	took     time.Duration
}

// New registers connectors in priority order. A later connector for the same source is ignored.
func New(connectors []connector.Connector, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &Aggregator{
		connectors: make(map[listing.Source]connector.Connector, len(connectors)),
		logger:     logger,
	}
	for _, c := range connectors {
		if c == nil {
			continue
		}
		if _, exists := a.connectors[c.Source()]; exists {
			logger.Warn("connector registered twice, keeping the first", zap.String("source", string(c.Source())))
			continue
		}
		a.connectors[c.Source()] = c
		a.order = append(a.order, c.Source())
	}
	return a
}

// Sources lists registered sources in priority order.
func (a *Aggregator) Sources() []listing.Source {
	return append([]listing.Source(nil), a.order...)
}

// Aggregate queries the requested sources concurrently. An empty sources list means every
// registered connector. Only invalid criteria and cancellation of ctx produce an error;
// upstream failures are reported in Result.SourceErrors.
func (a *Aggregator) Aggregate(ctx context.Context, criteria listing.SearchCriteria, sources []listing.Source, perSourceTimeout time.Duration) (*Result, error) {
	if err := criteria.Validate(); err != nil {
		return nil, err
	}
	if perSourceTimeout <= 0 {
		perSourceTimeout = DefaultTimeout
	}

	result := &Result{
		Listings:     []*listing.Listing{},
		SourceErrors: make(map[listing.Source]string),
	}

	var tasks []listing.Source
	for _, src := range a.requested(sources) {
		result.RequestedSources = append(result.RequestedSources, src)
		if _, ok := a.connectors[src]; !ok {
			result.SourceErrors[src] = connector.ReasonUnknownSource
			continue
		}
		tasks = append(tasks, src)
	}

	started := time.Now()
	// One slot per task so no sender ever blocks, even after the collector gave up.
	results := make(chan outcome, len(tasks))
	for _, src := range tasks {
		go a.run(ctx, a.connectors[src], criteria, perSourceTimeout, results)
	}

	responses, err := a.collect(ctx, tasks, results, perSourceTimeout+collectGrace, result.SourceErrors)
	if err != nil {
		return nil, err
	}

	priority := make(map[listing.Source]int, len(a.order))
	var merged []*listing.Listing
	for idx, src := range a.order {
		priority[src] = idx
		resp, ok := responses[src]
		if !ok {
			continue
		}
		result.TotalCount += resp.Total
		for _, l := range resp.Listings {
			if l == nil {
				continue
			}
			if l.Source == "" {
				l.Source = src
			}
			merged = append(merged, l)
		}
	}

	deduped, duplicates := Dedup(merged)
	result.Listings = Rank(deduped, priority)
	result.Duplicates = duplicates

	a.logger.Info("aggregation finished",
		zap.Int("requested", len(result.RequestedSources)),
		zap.Int("failed", len(result.SourceErrors)),
		zap.Int("listings", len(result.Listings)),
		zap.Int("duplicates", duplicates),
		zap.Int("total", result.TotalCount),
		zap.Duration("duration", time.Since(started)),
	)

	return result, nil
}

// requested resolves the source set: registered sources when empty, duplicates collapsed.
func (a *Aggregator) requested(sources []listing.Source) []listing.Source {
	if len(sources) == 0 {
		return a.Sources()
	}

	seen := make(map[listing.Source]struct{}, len(sources))
	out := make([]listing.Source, 0, len(sources))
	for _, src := range sources {
		if _, dup := seen[src]; dup {
			continue
		}
		seen[src] = struct{}{}
		out = append(out, src)
	}
	return out
}

func (a *Aggregator) run(ctx context.Context, c connector.Connector, criteria listing.SearchCriteria, timeout time.Duration, results chan<- outcome) {
	src := c.Source()
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			results <- outcome{
				source: src,
				err:    connector.NewError(src, connector.ReasonNetworkError, fmt.Errorf("connector panicked: %v", r)),
				took:   time.Since(started),
			}
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.Search(callCtx, criteria)
	out := outcome{source: src, took: time.Since(started)}
	switch {
	case err != nil:
		out.err = connector.Classify(src, err)
		// Connectors may surface the deadline as a generic transport failure.
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			out.err.Reason = connector.ReasonTimeout
		}
	case resp == nil:
		out.response = &connector.Response{}
	default:
		out.response = resp
	}
	results <- out
}

func (a *Aggregator) collect(ctx context.Context, tasks []listing.Source, results <-chan outcome, deadline time.Duration, sourceErrors map[listing.Source]string) (map[listing.Source]*connector.Response, error) {
	responses := make(map[listing.Source]*connector.Response, len(tasks))
	pending := make(map[listing.Source]struct{}, len(tasks))
	for _, src := range tasks {
		pending[src] = struct{}{}
	}

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			for src := range pending {
				a.logger.Warn("source did not answer in time", zap.String("source", string(src)))
				sourceErrors[src] = connector.ReasonTimeout
			}
			pending = nil
		case out := <-results:
			delete(pending, out.source)
			if out.err != nil {
				a.logger.Warn("source failed",
					zap.String("source", string(out.source)),
					zap.String("reason", out.err.Reason),
					zap.Duration("duration", out.took),
					zap.Error(out.err),
				)
				sourceErrors[out.source] = out.err.Reason
				continue
			}
			a.logger.Debug("source answered",
				zap.String("source", string(out.source)),
				zap.Int("listings", len(out.response.Listings)),
				zap.Int("total", out.response.Total),
				zap.Duration("duration", out.took),
			)
			responses[out.source] = out.response
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return responses, nil
}
