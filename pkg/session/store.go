package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/wabuilder/pkg/ports"
)

const (
	// DefaultTTL is the expiry of per-contact session data.
	DefaultTTL = 30 * time.Minute
	// GlobalTTL is the expiry of data shared by every contact.
	GlobalTTL = 24 * time.Hour

	globalID = "global"
	propsKey = "props"
)

// Store reads and writes session data through a SessionCache.
// Read-modify-write helpers are not atomic; run them under Manager.WithLock.
type Store struct {
	cache ports.SessionCache
	ttl   time.Duration
}

// NewStore wraps cache. A zero ttl uses DefaultTTL.
func NewStore(cache ports.SessionCache, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{cache: cache, ttl: ttl}
}

// All returns every value stored for a contact.
func (s *Store) All(ctx context.Context, id string) (map[string]any, error) {
	data, err := s.cache.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

// Get returns one value of a contact's session, or nil.
func (s *Store) Get(ctx context.Context, id, key string) (any, error) {
	data, err := s.All(ctx, id)
	if err != nil {
		return nil, err
	}
	return data[key], nil
}

// Save sets one value in a contact's session.
func (s *Store) Save(ctx context.Context, id, key string, value any) error {
	return s.update(ctx, id, s.ttl, func(data map[string]any) bool {
		data[key] = value
		return true
	})
}

// SaveAll sets several values at once.
func (s *Store) SaveAll(ctx context.Context, id string, values map[string]any) error {
	return s.update(ctx, id, s.ttl, func(data map[string]any) bool {
		for k, v := range values {
			data[k] = v
		}
		return true
	})
}

// Evict removes keys from a contact's session.
func (s *Store) Evict(ctx context.Context, id string, keys ...string) error {
	return s.update(ctx, id, s.ttl, func(data map[string]any) bool {
		changed := false
		for _, k := range keys {
			if _, ok := data[k]; ok {
				delete(data, k)
				changed = true
			}
		}
		return changed
	})
}

// Clear drops a contact's session. Keys containing any of retain survive.
func (s *Store) Clear(ctx context.Context, id string, retain ...string) error {
	if len(retain) == 0 {
		return s.cache.Delete(ctx, id)
	}
	return s.update(ctx, id, s.ttl, func(data map[string]any) bool {
		changed := false
		for k := range data {
			if !containsAny(k, retain) {
				delete(data, k)
				changed = true
			}
		}
		return changed
	})
}

// ClearAll drops every session, including global data, and returns how many were removed.
func (s *Store) ClearAll(ctx context.Context) (int, error) {
	return s.cache.Clear(ctx)
}

// Props returns the user props collected for a contact.
func (s *Store) Props(ctx context.Context, id string) (map[string]any, error) {
	v, err := s.Get(ctx, id, propsKey)
	if err != nil {
		return nil, err
	}
	props, _ := v.(map[string]any)
	if props == nil {
		props = map[string]any{}
	}
	return props, nil
}

// Prop returns one user prop, or nil.
func (s *Store) Prop(ctx context.Context, id, key string) (any, error) {
	props, err := s.Props(ctx, id)
	if err != nil {
		return nil, err
	}
	return props[key], nil
}

// SaveProp stores one user prop.
func (s *Store) SaveProp(ctx context.Context, id, key string, value any) error {
	props, err := s.Props(ctx, id)
	if err != nil {
		return err
	}
	props[key] = value
	return s.Save(ctx, id, propsKey, props)
}

// EvictProp removes one user prop and reports whether it existed.
func (s *Store) EvictProp(ctx context.Context, id, key string) (bool, error) {
	props, err := s.Props(ctx, id)
	if err != nil {
		return false, err
	}
	if _, ok := props[key]; !ok {
		return false, nil
	}
	delete(props, key)
	return true, s.Save(ctx, id, propsKey, props)
}

// Global returns a value shared by every contact, or nil.
func (s *Store) Global(ctx context.Context, key string) (any, error) {
	return s.Get(ctx, globalID, key)
}

// SaveGlobal stores a value shared by every contact.
func (s *Store) SaveGlobal(ctx context.Context, key string, value any) error {
	return s.update(ctx, globalID, GlobalTTL, func(data map[string]any) bool {
		data[key] = value
		return true
	})
}

// EvictGlobal removes a shared value.
func (s *Store) EvictGlobal(ctx context.Context, key string) error {
	return s.update(ctx, globalID, GlobalTTL, func(data map[string]any) bool {
		_, ok := data[key]
		delete(data, key)
		return ok
	})
}

func (s *Store) update(ctx context.Context, id string, ttl time.Duration, fn func(map[string]any) bool) error {
	data, err := s.All(ctx, id)
	if err != nil {
		return err
	}
	if !fn(data) {
		return nil
	}
	if err := s.cache.Store(ctx, id, data, ttl); err != nil {
		return fmt.Errorf("failed to store session %s: %w", id, err)
	}
	return nil
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
