package aiconfig

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/job-aggregator/internal/logger"
)

type CreateRequest struct {
	Provider   Provider `json:"provider"`
	Model      string   `json:"model"`
	Endpoint   string   `json:"endpoint,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// Manager validates requests and serializes activations per user on top of a Store.
type Manager struct {
	store  Store
	locks  *keyedMutex
	logger *zap.Logger
	now    func() time.Time
}

func NewManager(store Store, l *zap.Logger) *Manager {
	return &Manager{
		store:  store,
		locks:  newKeyedMutex(),
		logger: logger.OrNop(l),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (m *Manager) List(ctx context.Context, userID string) ([]*Config, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}
	return m.store.List(ctx, userID)
}

// Create stores a new inactive configuration.
func (m *Manager) Create(ctx context.Context, userID string, req CreateRequest) (*Config, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	cfg := &Config{
		ID:         uuid.NewString(),
		UserID:     userID,
		Provider:   req.Provider,
		Endpoint:   strings.TrimRight(strings.TrimSpace(req.Endpoint), "/"),
		Credential: strings.TrimSpace(req.Credential),
		Model:      strings.TrimSpace(req.Model),
		CreatedAt:  m.now(),
	}
	if err := m.store.Create(ctx, cfg); err != nil {
		return nil, fmt.Errorf("create ai config: %w", err)
	}

	m.logger.Info("ai config created",
		zap.String(logger.FieldUserID, userID),
		zap.String(logger.FieldProvider, string(cfg.Provider)),
		zap.String(logger.FieldModel, cfg.Model),
	)
	return cfg, nil
}

// Get returns one configuration of the user, ErrNotFound when id belongs to someone else.
func (m *Manager) Get(ctx context.Context, userID, id string) (*Config, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}
	return m.store.Get(ctx, userID, id)
}

// Activate makes id the only active configuration of the user. Concurrent activations for
// the same user are applied one at a time; the last one applied wins.
func (m *Manager) Activate(ctx context.Context, userID, id string) (*Config, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}

	unlock := m.locks.Lock(userID)
	defer unlock()

	cfg, err := m.store.Activate(ctx, userID, id, m.now())
	if err != nil {
		return nil, err
	}

	m.logger.Info("ai config activated",
		zap.String(logger.FieldUserID, userID),
		zap.String("config_id", cfg.ID),
		zap.String(logger.FieldProvider, string(cfg.Provider)),
	)
	return cfg, nil
}

// Active returns nil when the user has no active configuration; callers then filter
// without classification.
func (m *Manager) Active(ctx context.Context, userID string) (*Config, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}
	return m.store.Active(ctx, userID)
}

// Deactivate turns classification off for the user.
func (m *Manager) Deactivate(ctx context.Context, userID string) error {
	if err := validateUser(userID); err != nil {
		return err
	}

	unlock := m.locks.Lock(userID)
	defer unlock()

	return m.store.Deactivate(ctx, userID)
}

func (r CreateRequest) Validate() error {
	switch r.Provider {
	case "":
		return &ValidationError{Field: "provider", Message: "is required"}
	case ProviderLocalInference, ProviderSelfHosted, ProviderHostedAPI:
	default:
		return &ValidationError{Field: "provider", Message: fmt.Sprintf("unsupported provider %q", r.Provider)}
	}

	if strings.TrimSpace(r.Model) == "" {
		return &ValidationError{Field: "model", Message: "is required"}
	}

	endpoint := strings.TrimSpace(r.Endpoint)
	if r.Provider != ProviderHostedAPI && endpoint == "" {
		return &ValidationError{Field: "endpoint", Message: fmt.Sprintf("is required for %s", r.Provider)}
	}
	if endpoint != "" {
		u, err := url.Parse(endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &ValidationError{Field: "endpoint", Message: "must be an http(s) URL"}
		}
	}

	if r.Provider == ProviderHostedAPI && strings.TrimSpace(r.Credential) == "" {
		return &ValidationError{Field: "credential", Message: "an API key is required for hosted-api"}
	}
	return nil
}

func validateUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return &ValidationError{Field: "userId", Message: "is required"}
	}
	return nil
}

// keyedMutex hands out one mutex per key and forgets it when nobody holds it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
