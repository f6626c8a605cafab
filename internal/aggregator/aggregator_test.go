package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/job-aggregator/internal/connector"
	"github.com/spigell/job-aggregator/internal/listing"
)

type fakeConnector struct {
	source   listing.Source
	listings []*listing.Listing
	total    int
	err      error
	// delay honours ctx; hang ignores it until release is closed.
	delay   time.Duration
	hang    chan struct{}
	panicOn bool
	calls   atomic.Int32
}

func (f *fakeConnector) Source() listing.Source { return f.source }

func (f *fakeConnector) Search(ctx context.Context, _ listing.SearchCriteria) (*connector.Response, error) {
	f.calls.Add(1)
	if f.panicOn {
		panic("boom")
	}
	if f.hang != nil {
		<-f.hang
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &connector.Response{Listings: f.listings, Total: f.total}, nil
}

func makeListings(source listing.Source, n int) []*listing.Listing {
	out := make([]*listing.Listing, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &listing.Listing{
			ExternalID: listing.QualifiedID(source, fmt.Sprint(i)),
			Title:      fmt.Sprintf("Engineer %d", i),
			Company:    fmt.Sprintf("Company %d", i),
			Source:     source,
		})
	}
	return out
}

func criteria() listing.SearchCriteria {
	return listing.SearchCriteria{Keywords: "golang"}
}

func TestAggregatePartialFailure(t *testing.T) {
	a := &fakeConnector{source: listing.SourceJooble, listings: makeListings(listing.SourceJooble, 5), total: 40}
	b := &fakeConnector{source: listing.SourceAdzuna, delay: 5 * time.Second}
	c := &fakeConnector{source: listing.SourceHeadHunter, err: &connector.StatusError{Code: 500, Status: "500 Internal Server Error"}}

	agg := New([]connector.Connector{a, b, c}, nil)
	res, err := agg.Aggregate(context.Background(), criteria(), nil, 100*time.Millisecond)
	require.NoError(t, err)

	assert.Len(t, res.Listings, 5)
	assert.Equal(t, map[listing.Source]string{
		listing.SourceAdzuna:     connector.ReasonTimeout,
		listing.SourceHeadHunter: connector.ReasonHTTPError,
	}, res.SourceErrors)
	assert.Equal(t, 40, res.TotalCount)
	assert.Equal(t, []listing.Source{listing.SourceJooble, listing.SourceAdzuna, listing.SourceHeadHunter}, res.RequestedSources)
}

func TestAggregateTotalFailureReturnsInTime(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	connectors := []connector.Connector{
		&fakeConnector{source: listing.SourceJooble, err: errors.New("connection refused")},
		&fakeConnector{source: listing.SourceAdzuna, hang: release},
		&fakeConnector{source: listing.SourceHeadHunter, panicOn: true},
		&fakeConnector{source: listing.SourceWeWorkRemotely, err: fmt.Errorf("%w: eof", connector.ErrMalformedPayload)},
	}
	agg := New(connectors, nil)

	timeout := 100 * time.Millisecond
	started := time.Now()
	res, err := agg.Aggregate(context.Background(), criteria(), nil, timeout)
	elapsed := time.Since(started)

	require.NoError(t, err)
	assert.Less(t, elapsed, timeout+collectGrace+200*time.Millisecond)
	assert.Empty(t, res.Listings)
	assert.Equal(t, map[listing.Source]string{
		listing.SourceJooble:         connector.ReasonNetworkError,
		listing.SourceAdzuna:         connector.ReasonTimeout,
		listing.SourceHeadHunter:     connector.ReasonNetworkError,
		listing.SourceWeWorkRemotely: connector.ReasonMalformedPayload,
	}, res.SourceErrors)
	assert.Zero(t, res.TotalCount)
}

func TestAggregateEmptyKeywordsFailsFast(t *testing.T) {
	conn := &fakeConnector{source: listing.SourceJooble}
	agg := New([]connector.Connector{conn}, nil)

	_, err := agg.Aggregate(context.Background(), listing.SearchCriteria{Keywords: "  "}, nil, time.Second)
	require.ErrorIs(t, err, listing.ErrEmptyKeywords)
	assert.Zero(t, conn.calls.Load())
}

func TestAggregateUnknownAndDuplicateSources(t *testing.T) {
	conn := &fakeConnector{source: listing.SourceJooble, listings: makeListings(listing.SourceJooble, 2), total: 2}
	agg := New([]connector.Connector{conn}, nil)

	res, err := agg.Aggregate(context.Background(), criteria(),
		[]listing.Source{listing.SourceJooble, "monster", listing.SourceJooble}, time.Second)
	require.NoError(t, err)

	assert.Equal(t, int32(1), conn.calls.Load())
	assert.Equal(t, []listing.Source{listing.SourceJooble, "monster"}, res.RequestedSources)
	assert.Equal(t, map[listing.Source]string{"monster": connector.ReasonUnknownSource}, res.SourceErrors)
	assert.Len(t, res.Listings, 2)
}

func TestAggregateCrossSourceDuplicateKeepsSalariedListing(t *testing.T) {
	withSalary := &listing.Listing{
		ExternalID: "jooble-1", Title: "Go Developer", Company: "Acme", Location: "Berlin",
		Salary: "60000 EUR", Source: listing.SourceJooble,
	}
	withoutSalary := &listing.Listing{
		ExternalID: "adzuna-9", Title: "Go developer", Company: "ACME", Location: "Berlin",
		Source: listing.SourceAdzuna,
	}

	agg := New([]connector.Connector{
		&fakeConnector{source: listing.SourceAdzuna, listings: []*listing.Listing{withoutSalary}, total: 1},
		&fakeConnector{source: listing.SourceJooble, listings: []*listing.Listing{withSalary}, total: 1},
	}, nil)

	res, err := agg.Aggregate(context.Background(), criteria(), nil, time.Second)
	require.NoError(t, err)

	require.Len(t, res.Listings, 1)
	assert.Equal(t, "jooble-1", res.Listings[0].ExternalID)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 2, res.TotalCount)
}

func TestAggregateCancelledDiscardsPartialResults(t *testing.T) {
	fast := &fakeConnector{source: listing.SourceJooble, listings: makeListings(listing.SourceJooble, 3)}
	slow := &fakeConnector{source: listing.SourceAdzuna, delay: 5 * time.Second}
	agg := New([]connector.Connector{fast, slow}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	res, err := agg.Aggregate(ctx, criteria(), nil, 2*time.Second)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
}

func TestAggregateRanksAcrossSources(t *testing.T) {
	older := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)

	agg := New([]connector.Connector{
		&fakeConnector{source: listing.SourceJooble, listings: []*listing.Listing{
			{ExternalID: "jooble-thin", Title: "A", Source: listing.SourceJooble},
			{ExternalID: "jooble-old", Title: "B", Company: "X", PublishedAt: &older, Source: listing.SourceJooble},
		}},
		&fakeConnector{source: listing.SourceAdzuna, listings: []*listing.Listing{
			{ExternalID: "adzuna-new", Title: "C", Company: "Y", PublishedAt: &newer, Source: listing.SourceAdzuna},
			{ExternalID: "adzuna-rich", Title: "D", Company: "Z", Salary: "1", Description: "d", PublishedAt: &older, Source: listing.SourceAdzuna},
		}},
	}, nil)

	res, err := agg.Aggregate(context.Background(), criteria(), nil, time.Second)
	require.NoError(t, err)

	ids := make([]string, 0, len(res.Listings))
	for _, l := range res.Listings {
		ids = append(ids, l.ExternalID)
	}
	assert.Equal(t, []string{"adzuna-rich", "adzuna-new", "jooble-old", "jooble-thin"}, ids)
}

func TestNewKeepsFirstConnectorPerSource(t *testing.T) {
	first := &fakeConnector{source: listing.SourceJooble}
	second := &fakeConnector{source: listing.SourceJooble}
	agg := New([]connector.Connector{first, nil, second}, nil)

	assert.Equal(t, []listing.Source{listing.SourceJooble}, agg.Sources())
	_, err := agg.Aggregate(context.Background(), criteria(), nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, int32(1), first.calls.Load())
	assert.Zero(t, second.calls.Load())
}
