package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/wabuilder/pkg/codec"
	"github.com/aretw0/wabuilder/pkg/domain"
)

// ConfigStore implements ports.ConfigStore in memory.
// Safe for concurrent use.
type ConfigStore struct {
	data map[string]domain.BotConfig
	mu   sync.RWMutex
	now  func() time.Time
}

// NewConfigStore creates a new in-memory config store.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		data: make(map[string]domain.BotConfig),
		now:  time.Now,
	}
}

// NewFromFlow creates a store holding one record called name whose flow_json is flow.
// This handles serialization automatically, improving DX for tests.
func NewFromFlow(name string, flow *domain.Flow) (*ConfigStore, error) {
	data, err := codec.Encode(flow)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal flow for %s: %w", name, err)
	}
	s := NewConfigStore()
	s.data[name] = domain.BotConfig{Name: name, FlowJSON: string(data), Env: domain.EnvLocal, Modified: s.now()}
	return s, nil
}

// Get returns a copy of the record.
func (s *ConfigStore) Get(ctx context.Context, name string) (*domain.BotConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.data[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, name)
	}
	return &cfg, nil
}

// Put stores a copy of cfg and stamps its Modified time.
func (s *ConfigStore) Put(ctx context.Context, cfg *domain.BotConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("config name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg.Modified = s.now().UTC()
	s.data[cfg.Name] = *cfg
	return nil
}

// List returns the sorted record names.
func (s *ConfigStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.data))
	for name := range s.data {
		names = append(names, name)
	}
	sort.Strings(names) // Deterministic order
	return names, nil
}

// Delete removes the record.
func (s *ConfigStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[name]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrConfigNotFound, name)
	}
	delete(s.data, name)
	return nil
}
