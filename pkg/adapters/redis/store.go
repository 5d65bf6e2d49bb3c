package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aretw0/wabuilder/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// ConfigStore implements ports.ConfigStore.
// Each record is a JSON string; a set indexes the record names.
type ConfigStore struct {
	client *backend.Client
	prefix string
}

// Option configures a ConfigStore.
type Option func(*ConfigStore)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(s *ConfigStore) {
		s.prefix = prefix
	}
}

// NewConfigStore creates a config store on client.
func NewConfigStore(client *backend.Client, opts ...Option) *ConfigStore {
	s := &ConfigStore{client: client, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ConfigStore) key(name string) string { return s.prefix + "config:" + name }
func (s *ConfigStore) indexKey() string       { return s.prefix + "configs" }

// Get loads the record called name.
func (s *ConfigStore) Get(ctx context.Context, name string) (*domain.BotConfig, error) {
	raw, err := s.client.Get(ctx, s.key(name)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cfg domain.BotConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("corrupt config %s: %w", name, err)
	}
	return &cfg, nil
}

// Put writes the record and its index entry in one transaction.
func (s *ConfigStore) Put(ctx context.Context, cfg *domain.BotConfig) error {
	if cfg.Name == "" {
		return errors.New("config name is required")
	}
	cfg.Modified = time.Now().UTC()

	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.Set(ctx, s.key(cfg.Name), raw, 0)
		pipe.SAdd(ctx, s.indexKey(), cfg.Name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put failed: %w", err)
	}
	return nil
}

// List returns the sorted record names.
func (s *ConfigStore) List(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers failed: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the record and its index entry.
func (s *ConfigStore) Delete(ctx context.Context, name string) error {
	var del *backend.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		del = pipe.Del(ctx, s.key(name))
		pipe.SRem(ctx, s.indexKey(), name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrConfigNotFound, name)
	}
	return nil
}
