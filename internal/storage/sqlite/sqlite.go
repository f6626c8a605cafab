// Package sqlite stores AI configurations and saved listings in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	_ "modernc.org/sqlite"

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
	is_active        INTEGER NOT NULL DEFAULT 0,
	last_selected_at TEXT,
	created_at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ai_configs_user ON ai_configs(user_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_ai_configs_one_active ON ai_configs(user_id) WHERE is_active = 1;

CREATE TABLE IF NOT EXISTS listings (
	user_id     TEXT NOT NULL,
	external_id TEXT NOT NULL,
	source      TEXT NOT NULL,
	payload     TEXT NOT NULL,
	saved_at    TEXT NOT NULL,
	PRIMARY KEY (user_id, external_id)
);
`

const configColumns = `id, user_id, provider, endpoint, credential, model, is_active, last_selected_at, created_at`

type Store struct {
	db   *sql.DB
	path string
}

// DefaultPath is the database location under the XDG data directory.
func DefaultPath() (string, error) {
	return xdg.DataFile(filepath.Join("job-aggregator", "jobs.db"))
}

// Open creates the database file and schema when missing. All access goes through a single
// connection, so writes never contend for the file lock.
func Open(path string) (*Store, error) {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, fmt.Errorf("resolve database path: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) List(ctx context.Context, userID string) ([]*aiconfig.Config, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+configColumns+` FROM ai_configs WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query ai configs: %w", err)
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
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ai_configs (`+configColumns+`) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		cfg.ID, cfg.UserID, string(cfg.Provider), cfg.Endpoint, cfg.Credential, cfg.Model,
		formatTime(cfg.LastSelectedAt), cfg.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert ai config: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, userID, id string) (*aiconfig.Config, error) {
	return getConfig(ctx, s.db, userID, id)
}

// Activate deactivates every other configuration of the user and activates id in one transaction.
func (s *Store) Activate(ctx context.Context, userID, id string, at time.Time) (*aiconfig.Config, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin activation: %w", err)
	}
	defer tx.Rollback()

	if _, err := getConfig(ctx, tx, userID, id); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE ai_configs SET is_active = 0 WHERE user_id = ? AND is_active = 1`, userID); err != nil {
		return nil, fmt.Errorf("deactivate ai configs: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE ai_configs SET is_active = 1, last_selected_at = ? WHERE id = ? AND user_id = ?`,
		at.UTC().Format(time.RFC3339Nano), id, userID,
	); err != nil {
		return nil, fmt.Errorf("activate ai config: %w", err)
	}

	cfg, err := getConfig(ctx, tx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit activation: %w", err)
	}
	return cfg, nil
}

func (s *Store) Active(ctx context.Context, userID string) (*aiconfig.Config, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+configColumns+` FROM ai_configs WHERE user_id = ? AND is_active = 1`, userID)
	cfg, err := scanConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return cfg, err
}

func (s *Store) Deactivate(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE ai_configs SET is_active = 0 WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("deactivate ai configs: %w", err)
	}
	return nil
}

// InsertIfNotExists saves listings the user does not have yet, keyed by ExternalID.
func (s *Store) InsertIfNotExists(ctx context.Context, userID string, listings []*listing.Listing) (int, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO listings (user_id, external_id, source, payload, saved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, external_id) DO NOTHING`)
	if err != nil {
		return 0, 0, err
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	inserted, duplicates := 0, 0
	for _, l := range listings {
		if l == nil {
			continue
		}
		payload, err := json.Marshal(l)
		if err != nil {
			return 0, 0, fmt.Errorf("marshal listing %s: %w", l.ExternalID, err)
		}

		res, err := stmt.ExecContext(ctx, userID, l.ExternalID, string(l.Source), string(payload), now)
		if err != nil {
			return 0, 0, fmt.Errorf("insert listing %s: %w", l.ExternalID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			duplicates++
		} else {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit listings: %w", err)
	}
	return inserted, duplicates, nil
}

// SavedListings returns the user's listings in insertion order.
func (s *Store) SavedListings(ctx context.Context, userID string) ([]*listing.Listing, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM listings WHERE user_id = ? ORDER BY rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	out := make([]*listing.Listing, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var l listing.Listing
		if err := json.Unmarshal([]byte(payload), &l); err != nil {
			return nil, fmt.Errorf("decode listing: %w", err)
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func getConfig(ctx context.Context, q querier, userID, id string) (*aiconfig.Config, error) {
	row := q.QueryRowContext(ctx, `SELECT `+configColumns+` FROM ai_configs WHERE id = ? AND user_id = ?`, id, userID)
	cfg, err := scanConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, aiconfig.ErrNotFound
	}
	return cfg, err
}

func scanConfig(row scanner) (*aiconfig.Config, error) {
	var (
		cfg          aiconfig.Config
		provider     string
		active       int
		lastSelected sql.NullString
		createdAt    string
	)
	if err := row.Scan(&cfg.ID, &cfg.UserID, &provider, &cfg.Endpoint, &cfg.Credential, &cfg.Model, &active, &lastSelected, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan ai config: %w", err)
	}

	cfg.Provider = aiconfig.Provider(provider)
	cfg.IsActive = active == 1

	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	cfg.CreatedAt = created

	if lastSelected.Valid && lastSelected.String != "" {
		t, err := time.Parse(time.RFC3339Nano, lastSelected.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_selected_at: %w", err)
		}
		cfg.LastSelectedAt = &t
	}
	return &cfg, nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
