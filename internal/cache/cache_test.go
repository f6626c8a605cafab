package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/job-aggregator/internal/connector"
	"github.com/spigell/job-aggregator/internal/listing"
)

type fakeRedis struct {
	mu      sync.Mutex
	data    map[string]string
	ttls    map[string]time.Duration
	failGet error
	failSet error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet != nil {
		return redis.NewStringResult("", f.failGet)
	}
	val, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(val, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet != nil {
		return redis.NewStatusResult("", f.failSet)
	}
	f.data[key] = string(value.([]byte))
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

type countingConnector struct {
	calls int
	err   error
}

func (c *countingConnector) Source() listing.Source { return listing.SourceAdzuna }

func (c *countingConnector) Search(_ context.Context, _ listing.SearchCriteria) (*connector.Response, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &connector.Response{
		Listings: []*listing.Listing{{ExternalID: "adzuna-1", Title: "Go", Source: listing.SourceAdzuna}},
		Total:    10,
	}, nil
}

func TestWrapCachesSuccessfulResponses(t *testing.T) {
	rdb := newFakeRedis()
	next := &countingConnector{}
	c := Wrap(next, rdb, time.Hour, nil)
	criteria := listing.SearchCriteria{Keywords: "go"}

	for i := 0; i < 3; i++ {
		resp, err := c.Search(context.Background(), criteria)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Total != 10 || len(resp.Listings) != 1 || resp.Listings[0].ExternalID != "adzuna-1" {
			t.Fatalf("unexpected response: %+v", resp)
		}
	}

	if next.calls != 1 {
		t.Fatalf("expected a single provider call, got %d", next.calls)
	}
	key := Key(listing.SourceAdzuna, criteria)
	if rdb.ttls[key] != time.Hour {
		t.Fatalf("expected ttl to be applied, got %v", rdb.ttls[key])
	}
}

func TestWrapDoesNotCacheErrors(t *testing.T) {
	rdb := newFakeRedis()
	next := &countingConnector{err: connector.NewError(listing.SourceAdzuna, connector.ReasonHTTPError, errors.New("502"))}
	c := Wrap(next, rdb, time.Hour, nil)

	for i := 0; i < 2; i++ {
		if _, err := c.Search(context.Background(), listing.SearchCriteria{Keywords: "go"}); err == nil {
			t.Fatalf("expected error to pass through")
		}
	}
	if next.calls != 2 {
		t.Fatalf("errors must not be cached, got %d calls", next.calls)
	}
	if len(rdb.data) != 0 {
		t.Fatalf("expected empty cache, got %v", rdb.data)
	}
}

func TestWrapDegradesWhenRedisFails(t *testing.T) {
	rdb := newFakeRedis()
	rdb.failGet = errors.New("connection refused")
	rdb.failSet = errors.New("connection refused")
	next := &countingConnector{}

	core, logs := observer.New(zapcore.WarnLevel)
	c := Wrap(next, rdb, time.Hour, zap.New(core))

	resp, err := c.Search(context.Background(), listing.SearchCriteria{Keywords: "go"})
	if err != nil {
		t.Fatalf("redis failure must not fail the search: %v", err)
	}
	if len(resp.Listings) != 1 {
		t.Fatalf("expected live response, got %+v", resp)
	}
	if logs.Len() != 2 {
		t.Fatalf("expected lookup and store warnings, got %d", logs.Len())
	}
}

func TestWrapWithoutRedisIsPassThrough(t *testing.T) {
	next := &countingConnector{}
	if got := Wrap(next, nil, time.Hour, nil); got != connector.Connector(next) {
		t.Fatalf("expected the connector to be returned as is")
	}
	if got := Wrap(next, newFakeRedis(), 0, nil); got != connector.Connector(next) {
		t.Fatalf("expected zero ttl to disable caching")
	}
}

func TestKeyDependsOnSourceAndCriteria(t *testing.T) {
	a := Key(listing.SourceAdzuna, listing.SearchCriteria{Keywords: "go"})
	b := Key(listing.SourceJooble, listing.SearchCriteria{Keywords: "go"})
	c := Key(listing.SourceAdzuna, listing.SearchCriteria{Keywords: "rust"})
	if a == b || a == c {
		t.Fatalf("expected distinct keys, got %q %q %q", a, b, c)
	}
}
