package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/wabuilder/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_LockLifecycle(t *testing.T) {
	mgr := NewManager()
	ctx := context.Background()
	count := 10000

	for i := 0; i < count; i++ {
		key := fmt.Sprintf("contact-%d", i)
		_ = mgr.WithLock(ctx, key, func(context.Context) error { return nil })
	}

	if n := mgr.active(); n != 0 {
		t.Errorf("Memory Leak Detected: %d locks remaining in memory", n)
	}
}

func TestManager_SerializesSameKey(t *testing.T) {
	mgr := NewManager()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := mgr.WithLock(ctx, "263770000000", func(context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Zero(t, mgr.active())
}

func TestManager_Timeout(t *testing.T) {
	mgr := NewManager(WithTimeouts(time.Second, 20*time.Millisecond))
	ctx := context.Background()

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = mgr.WithLock(ctx, "busy", func(context.Context) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held

	err := mgr.WithLock(ctx, "busy", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrLockTimeout)

	require.NoError(t, mgr.WithLock(ctx, "other", func(context.Context) error { return nil }))
	close(done)
}

type fakeLocker struct {
	mu      sync.Mutex
	locked  []string
	ttl     time.Duration
	unlocks int
	err     error
}

func (f *fakeLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.locked = append(f.locked, key)
	f.ttl = ttl
	return func(context.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unlocks++
		return nil
	}, nil
}

func TestManager_DistributedLocker(t *testing.T) {
	locker := &fakeLocker{}
	mgr := NewManager(WithLocker(locker))

	called := false
	err := mgr.WithLock(context.Background(), "abc", func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, []string{"abc"}, locker.locked)
	assert.Equal(t, DefaultLease, locker.ttl)
	assert.Equal(t, 1, locker.unlocks)

	locker.err = errors.New("redis down")
	err = mgr.WithLock(context.Background(), "abc", func(context.Context) error {
		t.Fatal("fn must not run without the lock")
		return nil
	})
	assert.Error(t, err)
}
