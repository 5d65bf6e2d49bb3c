package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/wabuilder/internal/logging"
	"github.com/aretw0/wabuilder/pkg/ports"
)

const (
	// DefaultLease is how long a distributed lock is held before it expires on its own.
	DefaultLease = 10 * time.Second
	// DefaultWait is how long WithLock waits for a busy key.
	DefaultWait = 5 * time.Second
)

// ErrLockTimeout is returned when the lock for a key could not be acquired in time.
var ErrLockTimeout = errors.New("timed out waiting for session lock")

// lockEntry holds the local lock and the reference count.
// The lock is a one-slot channel so that waiting can be abandoned.
type lockEntry struct {
	sem  chan struct{}
	refs int
}

// Manager serializes work per key (a contact's WhatsApp ID).
// It uses reference counting to garbage collect unused locks.
type Manager struct {
	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker ports.DistributedLocker // Optional distributed locker
	lease  time.Duration
	wait   time.Duration
	logger *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithTimeouts overrides the distributed lease and the wait for a busy key.
func WithTimeouts(lease, wait time.Duration) Option {
	return func(m *Manager) {
		if lease > 0 {
			m.lease = lease
		}
		if wait > 0 {
			m.wait = wait
		}
	}
}

// NewManager creates a new Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		locks:  make(map[string]*lockEntry),
		lease:  DefaultLease,
		wait:   DefaultWait,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST call release(key) once done with the entry.
func (m *Manager) acquire(key string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		m.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, key)
	}
}

// active returns the number of keys currently tracked.
func (m *Manager) active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// WithLock executes fn while holding the lock for key.
// It returns an error wrapping ErrLockTimeout if the lock is not acquired
// within the wait duration.
func (m *Manager) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	waitCtx, cancel := context.WithTimeout(ctx, m.wait)
	defer cancel()

	entry := m.acquire(key)
	defer m.release(key)

	select {
	case entry.sem <- struct{}{}:
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s", ErrLockTimeout, key)
	}
	defer func() { <-entry.sem }()

	if m.locker != nil {
		unlock, err := m.locker.Lock(waitCtx, key, m.lease)
		if err != nil {
			if waitCtx.Err() != nil && ctx.Err() == nil {
				return fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, err)
			}
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"key", key,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
