// Package aiconfig manages the per-user language model backends used for classification.
// A user owns any number of configurations and at most one of them is active.
package aiconfig

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

type Provider string

const (
	// ProviderLocalInference is an OpenAI compatible server on the user's machine or network.
	ProviderLocalInference Provider = "local-inference"
	// ProviderSelfHosted is an Ollama server.
	ProviderSelfHosted Provider = "self-hosted"
	// ProviderHostedAPI is the Gemini API.
	ProviderHostedAPI Provider = "hosted-api"
)

func Providers() []Provider {
	return []Provider{ProviderLocalInference, ProviderSelfHosted, ProviderHostedAPI}
}

// ErrNotFound means the configuration does not exist or belongs to another user.
var ErrNotFound = errors.New("ai config not found")

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

type Config struct {
	ID       string   `json:"id"`
	UserID   string   `json:"userId"`
	Provider Provider `json:"provider"`
	Endpoint string   `json:"endpoint,omitempty"`
	// Credential is never serialized.
	Credential     string     `json:"-"`
	Model          string     `json:"model"`
	IsActive       bool       `json:"isActive"`
	LastSelectedAt *time.Time `json:"lastSelectedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Clone returns a copy that shares nothing with c.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	if c.LastSelectedAt != nil {
		t := *c.LastSelectedAt
		out.LastSelectedAt = &t
	}
	return &out
}

// Store persists configurations. Activate must deactivate every other configuration of the
// user and activate the target in one atomic step, returning ErrNotFound when the target
// does not belong to the user.
type Store interface {
	List(ctx context.Context, userID string) ([]*Config, error)
	Create(ctx context.Context, cfg *Config) error
	Get(ctx context.Context, userID, id string) (*Config, error)
	Activate(ctx context.Context, userID, id string, at time.Time) (*Config, error)
	// Active returns nil, nil when the user has no active configuration.
	Active(ctx context.Context, userID string) (*Config, error)
	Deactivate(ctx context.Context, userID string) error
}

// SortConfigs orders configurations most recently selected first, never selected ones
// after them, newest first.
func SortConfigs(cfgs []*Config) {
	sort.SliceStable(cfgs, func(i, j int) bool {
		a, b := cfgs[i], cfgs[j]
		switch {
		case a.LastSelectedAt != nil && b.LastSelectedAt == nil:
			return true
		case a.LastSelectedAt == nil && b.LastSelectedAt != nil:
			return false
		case a.LastSelectedAt != nil && !a.LastSelectedAt.Equal(*b.LastSelectedAt):
			return a.LastSelectedAt.After(*b.LastSelectedAt)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}
