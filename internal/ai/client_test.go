package ai

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spigell/job-aggregator/internal/ai/httpjson"
	"github.com/spigell/job-aggregator/internal/aiconfig"
	"github.com/spigell/job-aggregator/internal/listing"
)

type fakeGenerator struct {
	model   string
	respond func(ctx context.Context, prompt string) (string, error)
	calls   atomic.Int32
}

func (f *fakeGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	f.calls.Add(1)
	if strings.TrimSpace(system) == "" {
		return "", errors.New("system prompt missing")
	}
	return f.respond(ctx, prompt)
}

func (f *fakeGenerator) Model() string {
	return f.model
}

func staticFactory(gen Generator) Factory {
	return func(context.Context, *aiconfig.Config) (Generator, error) {
		return gen, nil
	}
}

func testConfig() *aiconfig.Config {
	return &aiconfig.Config{
		ID:       "cfg-1",
		UserID:   "user-1",
		Provider: aiconfig.ProviderSelfHosted,
		Endpoint: "http://localhost:11434",
		Model:    "llama3",
		IsActive: true,
	}
}

func testListing(id, title string) *listing.Listing {
	return &listing.Listing{ExternalID: id, Title: title, Source: listing.SourceJooble}
}

func TestClassify(t *testing.T) {
	gen := &fakeGenerator{model: "llama3", respond: func(_ context.Context, prompt string) (string, error) {
		if !strings.Contains(prompt, "Senior Go Developer") || !strings.Contains(prompt, "Keywords: golang") {
			return "", errors.New("prompt misses listing or hints")
		}
		return `{"relevant": true, "confidence": 0.85, "urgency": 30, "quality": 70, "keywords": ["go"]}`, nil
	}}
	client := NewClient(staticFactory(gen), Options{}, zap.NewNop())

	verdict, err := client.Classify(context.Background(), testListing("jooble-1", "Senior Go Developer"), testConfig(), Hints{Keywords: []string{"golang"}})
	require.NoError(t, err)

	assert.Equal(t, "jooble-1", verdict.ListingID)
	assert.Equal(t, "llama3", verdict.Model)
	assert.True(t, verdict.IsRelevant)
	assert.Equal(t, 85, verdict.ConfidenceScore)
	assert.Equal(t, []string{"go"}, verdict.ExtractedKeywords)
}

func TestClassifyMinConfidence(t *testing.T) {
	gen := &fakeGenerator{model: "m", respond: func(context.Context, string) (string, error) {
		return `{"relevant": true, "confidence": 40}`, nil
	}}
	client := NewClient(staticFactory(gen), Options{}, zap.NewNop())

	verdict, err := client.Classify(context.Background(), testListing("a", "A"), testConfig(), Hints{MinConfidence: 60})
	require.NoError(t, err)
	assert.False(t, verdict.IsRelevant)
	assert.Equal(t, 40, verdict.ConfidenceScore)
}

func TestClassifyTimeout(t *testing.T) {
	gen := &fakeGenerator{model: "m", respond: func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	client := NewClient(staticFactory(gen), Options{Timeout: 20 * time.Millisecond}, zap.NewNop())

	_, err := client.Classify(context.Background(), testListing("a", "A"), testConfig(), Hints{})

	var cerr *ClassificationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ReasonTimeout, cerr.Reason)
	assert.Equal(t, "a", cerr.ListingID)
}

func TestClassifyErrorReasons(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		err    error
		reason string
	}{
		{name: "malformed", answer: "I think yes", reason: ReasonMalformedOutput},
		{name: "http status", err: &httpjson.StatusError{Code: 502, Status: "502 Bad Gateway"}, reason: ReasonHTTPError},
		{name: "gateway timeout", err: &httpjson.StatusError{Code: 504, Status: "504 Gateway Timeout"}, reason: ReasonTimeout},
		{name: "connection refused", err: errors.New("dial tcp: connection refused"), reason: ReasonUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{model: "m", respond: func(context.Context, string) (string, error) {
				return tt.answer, tt.err
			}}
			client := NewClient(staticFactory(gen), Options{}, zap.NewNop())

			_, err := client.Classify(context.Background(), testListing("a", "A"), testConfig(), Hints{})

			var cerr *ClassificationError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.reason, cerr.Reason)
		})
	}
}

func TestClassifyWithoutConfigOrBackend(t *testing.T) {
	client := NewClient(func(context.Context, *aiconfig.Config) (Generator, error) {
		return nil, errors.New("endpoint is required")
	}, Options{}, zap.NewNop())

	var cerr *ClassificationError

	_, err := client.Classify(context.Background(), testListing("a", "A"), nil, Hints{})
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ReasonUnavailable, cerr.Reason)

	_, err = client.Classify(context.Background(), testListing("a", "A"), testConfig(), Hints{})
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ReasonUnavailable, cerr.Reason)
}

func TestClassifyReusesGenerators(t *testing.T) {
	var built atomic.Int32
	gen := &fakeGenerator{model: "m", respond: func(context.Context, string) (string, error) {
		return `{"relevant": false}`, nil
	}}
	client := NewClient(func(context.Context, *aiconfig.Config) (Generator, error) {
		built.Add(1)
		return gen, nil
	}, Options{}, zap.NewNop())

	cfg := testConfig()
	for i := 0; i < 3; i++ {
		_, err := client.Classify(context.Background(), testListing("a", "A"), cfg, Hints{})
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, built.Load())

	rotated := cfg.Clone()
	rotated.Credential = "new-token"
	_, err := client.Classify(context.Background(), testListing("a", "A"), rotated, Hints{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, built.Load())
}

func TestClassifyBatchIsolatesFailures(t *testing.T) {
	gen := &fakeGenerator{model: "m", respond: func(_ context.Context, prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "Broken"):
			return "{not json", nil
		case strings.Contains(prompt, "Relevant"):
			return `{"relevant": true, "confidence": 90}`, nil
		default:
			return `{"relevant": false, "confidence": 80}`, nil
		}
	}}
	client := NewClient(staticFactory(gen), Options{Concurrency: 2}, zap.NewNop())

	listings := []*listing.Listing{
		testListing("jooble-1", "Relevant role"),
		testListing("jooble-2", "Broken role"),
		testListing("jooble-3", "Other role"),
		nil,
	}

	outcomes := client.ClassifyBatch(context.Background(), listings, testConfig(), Hints{})
	require.Len(t, outcomes, 4)

	require.NotNil(t, outcomes[0].Verdict)
	assert.True(t, outcomes[0].Verdict.IsRelevant)
	assert.Equal(t, "jooble-1", outcomes[0].Verdict.ListingID)

	require.NotNil(t, outcomes[1].Err)
	assert.Nil(t, outcomes[1].Verdict)
	assert.Equal(t, ReasonMalformedOutput, outcomes[1].Err.Reason)

	require.NotNil(t, outcomes[2].Verdict)
	assert.False(t, outcomes[2].Verdict.IsRelevant)

	require.NotNil(t, outcomes[3].Err)
	assert.Equal(t, ReasonUnavailable, outcomes[3].Err.Reason)

	assert.EqualValues(t, 3, gen.calls.Load())
}

func TestClassifyBatchKeepsInputOrderWithoutIDs(t *testing.T) {
	gen := &fakeGenerator{model: "m", respond: func(_ context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "Good role") {
			// finish last so completion order differs from input order
			time.Sleep(20 * time.Millisecond)
			return `{"relevant": true, "confidence": 90}`, nil
		}
		return `{"relevant": false, "confidence": 90}`, nil
	}}
	client := NewClient(staticFactory(gen), Options{Concurrency: 4}, zap.NewNop())

	listings := []*listing.Listing{
		{Title: "Good role", Source: listing.SourceJooble},
		{Title: "Bad role", Source: listing.SourceJooble},
		{ExternalID: "dup", Title: "Bad role", Source: listing.SourceAdzuna},
		{ExternalID: "dup", Title: "Good role", Source: listing.SourceAdzuna},
	}

	outcomes := client.ClassifyBatch(context.Background(), listings, testConfig(), Hints{})
	require.Len(t, outcomes, 4)
	for i, want := range []bool{true, false, false, true} {
		require.NotNil(t, outcomes[i].Verdict, "listing %d", i)
		assert.Equal(t, want, outcomes[i].Verdict.IsRelevant, "listing %d", i)
	}
}

func TestFactoryProviders(t *testing.T) {
	factory := NewFactory(nil, zap.NewNop())

	gen, err := factory(context.Background(), &aiconfig.Config{Provider: aiconfig.ProviderLocalInference, Endpoint: "http://localhost:8080", Model: "qwen"})
	require.NoError(t, err)
	assert.Equal(t, "qwen", gen.Model())

	gen, err = factory(context.Background(), &aiconfig.Config{Provider: aiconfig.ProviderSelfHosted, Endpoint: "http://localhost:11434", Model: "llama3"})
	require.NoError(t, err)
	assert.Equal(t, "llama3", gen.Model())

	_, err = factory(context.Background(), &aiconfig.Config{Provider: aiconfig.ProviderHostedAPI, Model: "gemini-2.5-flash"})
	assert.Error(t, err, "hosted api needs a credential")

	_, err = factory(context.Background(), &aiconfig.Config{Provider: "carrier-pigeon", Model: "x"})
	assert.Error(t, err)
}
