package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// SessionCache implements ports.SessionCache with one JSON string per session.
type SessionCache struct {
	client *backend.Client
	prefix string
}

// CacheOption configures a SessionCache.
type CacheOption func(*SessionCache)

// WithCachePrefix overrides SessionPrefix.
func WithCachePrefix(prefix string) CacheOption {
	return func(c *SessionCache) {
		c.prefix = prefix
	}
}

// NewSessionCache creates a session cache on client.
func NewSessionCache(client *backend.Client, opts ...CacheOption) *SessionCache {
	c := &SessionCache{client: client, prefix: SessionPrefix}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *SessionCache) key(sessionID string) string {
	return c.prefix + sessionID
}

// Load returns the session data, or an empty map when the key is missing or expired.
func (c *SessionCache) Load(ctx context.Context, sessionID string) (map[string]any, error) {
	raw, err := c.client.Get(ctx, c.key(sessionID)).Bytes()
	if errors.Is(err, backend.Nil) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	data := map[string]any{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("corrupt session %s: %w", sessionID, err)
	}
	return data, nil
}

// Store replaces the session data. A zero ttl stores without expiry.
func (c *SessionCache) Store(ctx context.Context, sessionID string, data map[string]any, ttl time.Duration) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := c.client.Set(ctx, c.key(sessionID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete removes one session.
func (c *SessionCache) Delete(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, c.key(sessionID)).Err()
}

// Clear deletes every key under the prefix using SCAN, so large caches never block the server.
func (c *SessionCache) Clear(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+"*", 500).Result()
		if err != nil {
			return removed, fmt.Errorf("redis scan failed: %w", err)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("redis del failed: %w", err)
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}
