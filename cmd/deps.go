package cmd

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spigell/job-aggregator/internal/aggregator"
	"github.com/spigell/job-aggregator/internal/ai"
	"github.com/spigell/job-aggregator/internal/aiconfig"
	"github.com/spigell/job-aggregator/internal/cache"
	"github.com/spigell/job-aggregator/internal/connector"
	"github.com/spigell/job-aggregator/internal/connector/adzuna"
	"github.com/spigell/job-aggregator/internal/connector/headhunter"
	"github.com/spigell/job-aggregator/internal/connector/jooble"
	"github.com/spigell/job-aggregator/internal/connector/weworkremotely"
	"github.com/spigell/job-aggregator/internal/filtering"
	"github.com/spigell/job-aggregator/internal/secrets"
	"github.com/spigell/job-aggregator/internal/storage/memory"
	"github.com/spigell/job-aggregator/internal/storage/postgres"
	"github.com/spigell/job-aggregator/internal/storage/sqlite"
)

// store is what every storage backend provides.
type store interface {
	aiconfig.Store
	filtering.ListingStore
}

// deps holds the wired components shared by the commands.
type deps struct {
	aggregator   *aggregator.Aggregator
	configs      *aiconfig.Manager
	orchestrator *filtering.Orchestrator
	closers      []func()
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func buildDeps(ctx context.Context, config *Config, logger *zap.Logger) (*deps, error) {
	d := &deps{}

	connectors, err := newConnectors(config, logger)
	if err != nil {
		return nil, err
	}
	if len(connectors) == 0 {
		logger.Warn("no sources are configured", zap.String("hint", "add a section under sources in the config file"))
	}

	var rdb *redis.Client
	if url := strings.TrimSpace(config.Cache.RedisURL); url != "" {
		if rdb, err = cache.NewRedisClient(ctx, url); err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		d.closers = append(d.closers, func() { _ = rdb.Close() })
		logger.Info("caching source responses", zap.Duration("ttl", config.Cache.TTL))
		for i, c := range connectors {
			connectors[i] = cache.Wrap(c, rdb, config.Cache.TTL, logger)
		}
	}

	d.aggregator = aggregator.New(connectors, logger)

	st, closeStore, err := openStore(ctx, config.Storage, logger)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.closers = append(d.closers, closeStore)

	d.configs = aiconfig.NewManager(st, logger)

	classifier := ai.NewClient(ai.NewFactory(&http.Client{Timeout: 2 * time.Minute}, logger), config.AI, logger)
	d.orchestrator = filtering.NewOrchestrator(classifier, st, logger)

	return d, nil
}

func newConnectors(config *Config, logger *zap.Logger) ([]connector.Connector, error) {
	var out []connector.Connector
	sources := config.Sources

	if cfg := sources.Jooble; cfg != nil {
		key, err := secrets.Load(secrets.Source{
			Name:  "jooble api key",
			Value: cfg.APIKey,
			File:  cfg.APIKeyFile,
			Env:   "JOOBLE_API_KEY",
		})
		if err != nil {
			return nil, err
		}
		cfg.APIKey = key
		out = append(out, jooble.New(cfg.Config, logger))
	}

	if cfg := sources.Adzuna; cfg != nil {
		key, err := secrets.Load(secrets.Source{
			Name:  "adzuna app key",
			Value: cfg.AppKey,
			File:  cfg.AppKeyFile,
			Env:   "ADZUNA_APP_KEY",
		})
		if err != nil {
			return nil, err
		}
		cfg.AppKey = key
		out = append(out, adzuna.New(cfg.Config, logger))
	}

	if cfg := sources.HeadHunter; cfg != nil {
		// The vacancy search works anonymously; a token only raises limits.
		token, err := secrets.LoadOptional(secrets.Source{
			Name:  "headhunter token",
			Value: cfg.Token,
			File:  cfg.TokenFile,
		})
		if err != nil {
			return nil, err
		}
		cfg.Token = token
		out = append(out, headhunter.New(cfg.Config, logger))
	}

	if cfg := sources.WeWorkRemotely; cfg != nil {
		out = append(out, weworkremotely.New(*cfg, logger))
	}

	return out, nil
}

func openStore(ctx context.Context, cfg StorageConfig, logger *zap.Logger) (store, func(), error) {
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "memory":
		logger.Warn("using in-memory storage, nothing survives a restart")
		return memory.New(), func() {}, nil
	case "", "sqlite":
		st, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite storage: %w", err)
		}
		logger.Info("using sqlite storage", zap.String("path", st.Path()))
		return st, func() { _ = st.Close() }, nil
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, nil, fmt.Errorf("storage.database-url is required for postgres")
		}
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		st := postgres.New(pool)
		if err := st.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrating postgres: %w", err)
		}
		logger.Info("using postgres storage")
		return st, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
