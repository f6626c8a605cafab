// Package postgres stores AI configurations and saved listings in PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spigell/job-aggregator/internal/aiconfig"
	"github.com/spigell/job-aggregator/internal/listing"
)

const schema = `
CREATE TABLE IF NOT EXISTS ai_configs (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	provider         TEXT NOT NULL,
	endpoint         TEXT NOT NULL DEFAULT '',
	credential       TEXT NOT NULL DEFAULT '',
	model            TEXT NOT NULL,
	is_active        BOOLEAN NOT NULL DEFAULT FALSE,
	last_selected_at TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ai_configs_user ON ai_configs (user_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_ai_configs_one_active ON ai_configs (user_id) WHERE is_active;

CREATE TABLE IF NOT EXISTS saved_listings (
	id          BIGSERIAL PRIMARY KEY,
	user_id     TEXT NOT NULL,
	external_id TEXT NOT NULL,
	source      TEXT NOT NULL,
	raw_data    JSONB NOT NULL,
	saved_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (user_id, external_id)
);
`

const configColumns = `id, user_id, provider, endpoint, credential, model, is_active, last_selected_at, created_at`

// NewPool creates and verifies a pgxpool connection pool.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	return pool, nil
}

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, userID string) ([]*aiconfig.Config, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+configColumns+` FROM ai_configs WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("query ai_configs: %w", err)
	}
	defer rows.Close()

	out := make([]*aiconfig.Config, 0)
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	aiconfig.SortConfigs(out)
	return out, nil
}

func (s *Store) Create(ctx context.Context, cfg *aiconfig.Config) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ai_configs (`+configColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $8)`,
		cfg.ID, cfg.UserID, string(cfg.Provider), cfg.Endpoint, cfg.Credential, cfg.Model,
		cfg.LastSelectedAt, cfg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ai_config: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, userID, id string) (*aiconfig.Config, error) {
	return getConfig(ctx, s.pool, userID, id)
}

// Activate switches the user's active configuration inside one transaction. A per-user
// advisory lock serializes concurrent activations across processes.
func (s *Store) Activate(ctx context.Context, userID, id string, at time.Time) (*aiconfig.Config, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
		return nil, fmt.Errorf("lock user: %w", err)
	}

	if _, err := getConfig(ctx, tx, userID, id); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `UPDATE ai_configs SET is_active = FALSE WHERE user_id = $1 AND is_active`, userID); err != nil {
		return nil, fmt.Errorf("deactivate ai_configs: %w", err)
	}

	row := tx.QueryRow(ctx,
		`UPDATE ai_configs SET is_active = TRUE, last_selected_at = $3
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+configColumns,
		id, userID, at,
	)
	cfg, err := scanConfig(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return cfg, nil
}

func (s *Store) Active(ctx context.Context, userID string) (*aiconfig.Config, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+configColumns+` FROM ai_configs WHERE user_id = $1 AND is_active`, userID)
	cfg, err := scanConfig(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return cfg, err
}

func (s *Store) Deactivate(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `UPDATE ai_configs SET is_active = FALSE WHERE user_id = $1 AND is_active`, userID); err != nil {
		return fmt.Errorf("deactivate ai_configs: %w", err)
	}
	return nil
}

// InsertIfNotExists saves listings the user does not have yet, keyed by ExternalID.
func (s *Store) InsertIfNotExists(ctx context.Context, userID string, listings []*listing.Listing) (int, int, error) {
	inserted, dupes := 0, 0
	for _, l := range listings {
		if l == nil {
			continue
		}

		rawJSON, err := json.Marshal(l)
		if err != nil {
			return inserted, dupes, fmt.Errorf("marshal listing %s: %w", l.ExternalID, err)
		}

		tag, err := s.pool.Exec(ctx,
			`INSERT INTO saved_listings (user_id, external_id, source, raw_data)
			 SELECT $1, $2, $3, $4::jsonb
			 WHERE NOT EXISTS (
			   SELECT 1 FROM saved_listings WHERE user_id = $1 AND external_id = $2
			 )
			 ON CONFLICT (user_id, external_id) DO NOTHING`,
			userID, l.ExternalID, string(l.Source), string(rawJSON),
		)
		if err != nil {
			return inserted, dupes, fmt.Errorf("insert listing %s: %w", l.ExternalID, err)
		}

		if tag.RowsAffected() == 0 {
			dupes++
		} else {
			inserted++
		}
	}

	return inserted, dupes, nil
}

// SavedListings returns the user's listings in insertion order.
func (s *Store) SavedListings(ctx context.Context, userID string) ([]*listing.Listing, error) {
	rows, err := s.pool.Query(ctx, `SELECT raw_data FROM saved_listings WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query saved_listings: %w", err)
	}
	defer rows.Close()

	out := make([]*listing.Listing, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var l listing.Listing
		if err := json.Unmarshal(raw, &l); err != nil {
			return nil, fmt.Errorf("decode listing: %w", err)
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getConfig(ctx context.Context, q queryRower, userID, id string) (*aiconfig.Config, error) {
	row := q.QueryRow(ctx, `SELECT `+configColumns+` FROM ai_configs WHERE id = $1 AND user_id = $2`, id, userID)
	cfg, err := scanConfig(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, aiconfig.ErrNotFound
	}
	return cfg, err
}

func scanConfig(row pgx.Row) (*aiconfig.Config, error) {
	var (
		cfg      aiconfig.Config
		provider string
	)
	err := row.Scan(&cfg.ID, &cfg.UserID, &provider, &cfg.Endpoint, &cfg.Credential, &cfg.Model,
		&cfg.IsActive, &cfg.LastSelectedAt, &cfg.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan ai_config: %w", err)
	}
	cfg.Provider = aiconfig.Provider(provider)
	return &cfg, nil
}
