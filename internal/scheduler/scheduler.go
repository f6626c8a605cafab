// Package scheduler periodically re-runs saved searches: aggregate, filter with the owner's
// active AI configuration, then save the accepted listings.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spigell/job-aggregator/internal/aggregator"
	"github.com/spigell/job-aggregator/internal/aiconfig"
	"github.com/spigell/job-aggregator/internal/filtering"
	"github.com/spigell/job-aggregator/internal/listing"
	"github.com/spigell/job-aggregator/internal/logger"
)

const defaultSpec = "@every 6h"

type Aggregator interface {
	Aggregate(ctx context.Context, criteria listing.SearchCriteria, sources []listing.Source, perSourceTimeout time.Duration) (*aggregator.Result, error)
}

type Filterer interface {
	Filter(ctx context.Context, listings []*listing.Listing, criteria filtering.Criteria, active *aiconfig.Config) (*filtering.Result, error)
	Persist(ctx context.Context, userID string, res *filtering.Result) (int, int, error)
}

// ActiveConfigs resolves the AI configuration a user has selected.
type ActiveConfigs interface {
	Active(ctx context.Context, userID string) (*aiconfig.Config, error)
}

// SavedSearch is one search run on every tick.
type SavedSearch struct {
	Name    string                 `mapstructure:"name"`
	UserID  string                 `mapstructure:"user-id"`
	Search  listing.SearchCriteria `mapstructure:"search"`
	Sources []string               `mapstructure:"sources"`
	Filter  filtering.Criteria     `mapstructure:"filter"`
}

type Config struct {
	// Spec is a cron expression or descriptor such as "@every 6h".
	Spec       string        `mapstructure:"spec"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RunOnStart bool          `mapstructure:"run-on-start"`
	Searches   []SavedSearch `mapstructure:"searches"`
}

// Report summarizes one saved search run.
type Report struct {
	Search       string
	Listings     int
	SourceErrors map[listing.Source]string
	Filtered     int
	Inserted     int
	Duplicates   int
	Err          error
}

// Scheduler wraps robfig/cron and manages the saved search loop.
type Scheduler struct {
	cron    *cron.Cron
	cfg     Config
	agg     Aggregator
	filter  Filterer
	configs ActiveConfigs
	logger  *zap.Logger
}

func New(cfg Config, agg Aggregator, filter Filterer, configs ActiveConfigs, l *zap.Logger) (*Scheduler, error) {
	if cfg.Spec == "" {
		cfg.Spec = defaultSpec
	}
	if _, err := cron.ParseStandard(cfg.Spec); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", cfg.Spec, err)
	}
	if agg == nil || filter == nil {
		return nil, errors.New("aggregator and filter are required")
	}

	for i, search := range cfg.Searches {
		if search.UserID == "" {
			return nil, fmt.Errorf("saved search %d: user id is required", i)
		}
		if err := search.Search.Validate(); err != nil {
			return nil, fmt.Errorf("saved search %d: %w", i, err)
		}
		if err := search.Filter.Validate(); err != nil {
			return nil, fmt.Errorf("saved search %d: %w", i, err)
		}
		if _, err := parseSources(search.Sources); err != nil {
			return nil, fmt.Errorf("saved search %d: %w", i, err)
		}
	}

	l = logger.OrNop(l)
	cronLog := cronLogger{l.Sugar()}

	return &Scheduler{
		cron:    cron.New(cron.WithLogger(cronLog), cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog))),
		cfg:     cfg,
		agg:     agg,
		filter:  filter,
		configs: configs,
		logger:  l,
	}, nil
}

// Start registers the job and starts the scheduler. With RunOnStart one cycle runs
// immediately so the store is populated without waiting for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.Spec, func() {
		s.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("spec", s.cfg.Spec), zap.Int("searches", len(s.cfg.Searches)))

	if s.cfg.RunOnStart {
		go s.RunOnce(ctx)
	}
	return nil
}

// Stop stops the scheduler. The returned context is done when running jobs have finished.
func (s *Scheduler) Stop() context.Context {
	done := s.cron.Stop()
	s.logger.Info("scheduler stopped")
	return done
}

// RunOnce runs every saved search sequentially. A failing search does not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context) []Report {
	if len(s.cfg.Searches) == 0 {
		s.logger.Info("no saved searches, nothing to run")
		return nil
	}

	s.logger.Info("saved search cycle started", zap.Int("searches", len(s.cfg.Searches)))
	reports := make([]Report, 0, len(s.cfg.Searches))
	for _, search := range s.cfg.Searches {
		if ctx.Err() != nil {
			break
		}

		report := s.run(ctx, search)
		log := s.logger.With(zap.String("search", report.Search), zap.String(logger.FieldUserID, search.UserID))
		if report.Err != nil {
			log.Warn("saved search failed", zap.Error(report.Err))
		} else {
			for src, reason := range report.SourceErrors {
				logger.WithSource(s.logger, string(src), search.UserID).Warn("source returned nothing",
					zap.String("search", report.Search),
					zap.String("reason", reason),
				)
			}
			log.Info("saved search finished",
				zap.Int("listings", report.Listings),
				zap.Int("failed_sources", len(report.SourceErrors)),
				zap.Int("filtered", report.Filtered),
				zap.Int("inserted", report.Inserted),
				zap.Int("duplicates", report.Duplicates),
			)
		}
		reports = append(reports, report)
	}
	s.logger.Info("saved search cycle complete")
	return reports
}

func (s *Scheduler) run(ctx context.Context, search SavedSearch) Report {
	report := Report{Search: search.Name}
	if report.Search == "" {
		report.Search = search.Search.Keywords
	}

	sources, err := parseSources(search.Sources)
	if err != nil {
		report.Err = err
		return report
	}

	agg, err := s.agg.Aggregate(ctx, search.Search, sources, s.cfg.Timeout)
	if err != nil {
		report.Err = fmt.Errorf("aggregate: %w", err)
		return report
	}
	report.Listings = len(agg.Listings)
	report.SourceErrors = agg.SourceErrors

	var active *aiconfig.Config
	if search.Filter.UseAI && s.configs != nil {
		if active, err = s.configs.Active(ctx, search.UserID); err != nil {
			// Fall back to criteria-only filtering.
			s.logger.Warn("resolve active ai config", zap.String(logger.FieldUserID, search.UserID), zap.Error(err))
			active = nil
		}
	}

	res, err := s.filter.Filter(ctx, agg.Listings, search.Filter, active)
	if err != nil {
		report.Err = fmt.Errorf("filter: %w", err)
		return report
	}
	report.Filtered = res.FilteredCount

	report.Inserted, report.Duplicates, err = s.filter.Persist(ctx, search.UserID, res)
	if err != nil {
		report.Err = fmt.Errorf("persist: %w", err)
	}
	return report
}

func parseSources(raw []string) ([]listing.Source, error) {
	out := make([]listing.Source, 0, len(raw))
	for _, s := range raw {
		src, err := listing.ParseSource(s)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

// cronLogger routes cron's own messages to zap.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
