// Package memory keeps AI configurations and saved listings in process memory.
// It backs tests and single-process deployments without a database.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/spigell/job-aggregator/internal/aiconfig"
	"github.com/spigell/job-aggregator/internal/listing"
)

type Store struct {
	mu       sync.RWMutex
	configs  map[string]*aiconfig.Config
	listings map[string]map[string]*listing.Listing
	// insertion order per user
	order map[string][]string
}

func New() *Store {
	return &Store{
		configs:  make(map[string]*aiconfig.Config),
		listings: make(map[string]map[string]*listing.Listing),
		order:    make(map[string][]string),
	}
}

func (s *Store) List(_ context.Context, userID string) ([]*aiconfig.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*aiconfig.Config, 0)
	for _, cfg := range s.configs {
		if cfg.UserID == userID {
			out = append(out, cfg.Clone())
		}
	}
	aiconfig.SortConfigs(out)
	return out, nil
}

func (s *Store) Create(_ context.Context, cfg *aiconfig.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cfg.Clone()
	// New configurations never start active.
	stored.IsActive = false
	s.configs[cfg.ID] = stored
	return nil
}

func (s *Store) Get(_ context.Context, userID, id string) (*aiconfig.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[id]
	if !ok || cfg.UserID != userID {
		return nil, aiconfig.ErrNotFound
	}
	return cfg.Clone(), nil
}

func (s *Store) Activate(_ context.Context, userID, id string, at time.Time) (*aiconfig.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.configs[id]
	if !ok || target.UserID != userID {
		return nil, aiconfig.ErrNotFound
	}

	for _, cfg := range s.configs {
		if cfg.UserID == userID {
			cfg.IsActive = false
		}
	}
	selected := at
	target.IsActive = true
	target.LastSelectedAt = &selected
	return target.Clone(), nil
}

func (s *Store) Active(_ context.Context, userID string) (*aiconfig.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, cfg := range s.configs {
		if cfg.UserID == userID && cfg.IsActive {
			return cfg.Clone(), nil
		}
	}
	return nil, nil
}

func (s *Store) Deactivate(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cfg := range s.configs {
		if cfg.UserID == userID {
			cfg.IsActive = false
		}
	}
	return nil
}

// InsertIfNotExists saves listings the user does not have yet, keyed by ExternalID.
func (s *Store) InsertIfNotExists(_ context.Context, userID string, listings []*listing.Listing) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved, ok := s.listings[userID]
	if !ok {
		saved = make(map[string]*listing.Listing)
		s.listings[userID] = saved
	}

	inserted, duplicates := 0, 0
	for _, l := range listings {
		if l == nil {
			continue
		}
		if _, exists := saved[l.ExternalID]; exists {
			duplicates++
			continue
		}
		copied := *l
		saved[l.ExternalID] = &copied
		s.order[userID] = append(s.order[userID], l.ExternalID)
		inserted++
	}
	return inserted, duplicates, nil
}

// SavedListings returns the user's listings in insertion order.
func (s *Store) SavedListings(_ context.Context, userID string) ([]*listing.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*listing.Listing, 0, len(s.order[userID]))
	for _, id := range s.order[userID] {
		copied := *s.listings[userID][id]
		out = append(out, &copied)
	}
	return out, nil
}
