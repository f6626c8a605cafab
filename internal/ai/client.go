package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/spigell/job-aggregator/internal/aiconfig"
	"github.com/spigell/job-aggregator/internal/listing"
	"github.com/spigell/job-aggregator/internal/logger"
	"github.com/spigell/job-aggregator/internal/utils"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultConcurrency  = 4
	defaultMaxLogLength = 200
)

type Options struct {
	// Timeout bounds a single classification call.
	Timeout time.Duration `mapstructure:"timeout"`
	// Concurrency is the number of classification calls in flight per batch.
	Concurrency int `mapstructure:"concurrency"`
	// Rate caps classification calls per second across all batches. Zero means no cap.
	Rate         float64 `mapstructure:"rate"`
	MaxLogLength int     `mapstructure:"max-log-length"`
}

// Outcome is the result for one listing of a batch. Exactly one field is set.
type Outcome struct {
	Verdict *Verdict
	Err     *ClassificationError
}

type Client struct {
	factory Factory
	opts    Options
	limiter *rate.Limiter
	logger  *zap.Logger

	mu         sync.Mutex
	generators map[string]Generator
}

func NewClient(factory Factory, opts Options, l *zap.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.MaxLogLength <= 0 {
		opts.MaxLogLength = defaultMaxLogLength
	}

	c := &Client{
		factory:    factory,
		opts:       opts,
		logger:     logger.OrNop(l),
		generators: make(map[string]Generator),
	}
	if opts.Rate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.Rate), opts.Concurrency)
	}
	return c
}

// Classify asks the configured backend for a verdict on one listing. Every failure is
// returned as a *ClassificationError.
func (c *Client) Classify(ctx context.Context, l *listing.Listing, cfg *aiconfig.Config, hints Hints) (*Verdict, error) {
	if l == nil {
		return nil, &ClassificationError{Reason: ReasonUnavailable, Err: errors.New("listing is required")}
	}
	if cfg == nil {
		return nil, &ClassificationError{ListingID: l.ExternalID, Reason: ReasonUnavailable, Err: errors.New("no active ai config")}
	}

	gen, err := c.generator(ctx, cfg)
	if err != nil {
		return nil, &ClassificationError{ListingID: l.ExternalID, Reason: ReasonUnavailable, Err: err}
	}
	log := logger.WithCommonFields(c.logger, string(cfg.Provider), gen.Model()).With(zap.String("listing_id", l.ExternalID))

	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(callCtx); err != nil {
			return nil, &ClassificationError{ListingID: l.ExternalID, Reason: ReasonTimeout, Err: err}
		}
	}

	prompt := buildPrompt(l, hints)
	log.Debug("classification request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, c.opts.MaxLogLength)),
	)

	raw, err := gen.Generate(callCtx, SystemPrompt(), prompt)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		cerr := newClassificationError(l.ExternalID, err)
		log.Warn("classification failed", zap.String("reason", cerr.Reason), zap.Error(err))
		return nil, cerr
	}

	log.Debug("classification response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, c.opts.MaxLogLength)),
	)

	verdict, err := ParseVerdict(raw)
	if err != nil {
		log.Warn("unparsable classification", zap.Error(err))
		return nil, &ClassificationError{ListingID: l.ExternalID, Reason: ReasonMalformedOutput, Err: err}
	}
	verdict.ListingID = l.ExternalID
	verdict.Model = gen.Model()

	if hints.MinConfidence > 0 && verdict.IsRelevant && verdict.ConfidenceScore < hints.MinConfidence {
		log.Debug("set relevant to false by confidence threshold",
			zap.Int("confidence", verdict.ConfidenceScore),
			zap.Int("threshold", hints.MinConfidence),
		)
		verdict.IsRelevant = false
	}

	return verdict, nil
}

// ClassifyBatch classifies listings concurrently. outcomes[i] belongs to listings[i], so
// listings without a distinct ExternalID still get their own verdict. A failed listing never
// affects the others.
func (c *Client) ClassifyBatch(ctx context.Context, listings []*listing.Listing, cfg *aiconfig.Config, hints Hints) []Outcome {
	outcomes := make([]Outcome, len(listings))

	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)

	for i, l := range listings {
		if l == nil {
			outcomes[i] = Outcome{Err: &ClassificationError{Reason: ReasonUnavailable, Err: errors.New("listing is required")}}
			continue
		}
		g.Go(func() error {
			verdict, err := c.Classify(ctx, l, cfg, hints)
			if err != nil {
				outcomes[i] = Outcome{Err: newClassificationError(l.ExternalID, err)}
				return nil
			}
			outcomes[i] = Outcome{Verdict: verdict}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (c *Client) generator(ctx context.Context, cfg *aiconfig.Config) (Generator, error) {
	if c.factory == nil {
		return nil, errors.New("no generator factory configured")
	}

	key := generatorKey(cfg)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen, ok := c.generators[key]; ok {
		return gen, nil
	}

	gen, err := c.factory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s generator: %w", cfg.Provider, err)
	}
	c.generators[key] = gen
	return gen, nil
}

func generatorKey(cfg *aiconfig.Config) string {
	sum := sha256.Sum256([]byte(cfg.Credential))
	return fmt.Sprintf("%s|%s|%s|%s|%s", cfg.ID, cfg.Provider, cfg.Model, cfg.Endpoint, hex.EncodeToString(sum[:8]))
}
