package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// SessionCache implements ports.SessionCache in memory.
// Values are stored as JSON, so reads see the same types a Redis-backed cache returns.
type SessionCache struct {
	data map[string]cacheEntry
	mu   sync.Mutex
	now  func() time.Time
}

// NewSessionCache creates an empty cache.
func NewSessionCache() *SessionCache {
	return &SessionCache{
		data: make(map[string]cacheEntry),
		now:  time.Now,
	}
}

// Load returns the session data, or an empty map when missing or expired.
func (c *SessionCache) Load(ctx context.Context, sessionID string) (map[string]any, error) {
	c.mu.Lock()
	entry, ok := c.data[sessionID]
	if ok && c.expired(entry) {
		delete(c.data, sessionID)
		ok = false
	}
	c.mu.Unlock()

	out := map[string]any{}
	if !ok {
		return out, nil
	}
	if err := json.Unmarshal(entry.data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Store replaces the session data.
func (c *SessionCache) Store(ctx context.Context, sessionID string, data map[string]any, ttl time.Duration) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	entry := cacheEntry{data: raw}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[sessionID] = entry
	return nil
}

// Delete removes one session.
func (c *SessionCache) Delete(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, sessionID)
	return nil
}

// Clear removes every live session and returns how many were removed.
func (c *SessionCache) Clear(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, entry := range c.data {
		if !c.expired(entry) {
			n++
		}
	}
	c.data = make(map[string]cacheEntry)
	return n, nil
}

func (c *SessionCache) expired(e cacheEntry) bool {
	return !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt)
}
