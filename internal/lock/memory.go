package lock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryLocker is an in-process Locker with the same lease and bounded-retry
// semantics as the Redis implementation. Used in tests and single-process
// setups; the retry window is short so contended acquires fail fast.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]time.Time

	acquireTimeout time.Duration
	retryInterval  time.Duration
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		leases:         make(map[string]time.Time),
		acquireTimeout: 50 * time.Millisecond,
		retryInterval:  5 * time.Millisecond,
	}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key, sortKey string, lease time.Duration) (Guard, error) {
	fullKey := fmt.Sprintf("%s:%s", key, sortKey)

	deadline := time.Now().Add(l.acquireTimeout)
	for {
		if guard, ok := l.tryAcquire(fullKey, lease); ok {
			return guard, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("lock %s: %w", fullKey, ErrContended)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}
}

func (l *MemoryLocker) tryAcquire(fullKey string, lease time.Duration) (Guard, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if expiry, held := l.leases[fullKey]; held && time.Now().Before(expiry) {
		return nil, false
	}
	l.leases[fullKey] = time.Now().Add(lease)
	return &memoryGuard{locker: l, key: fullKey}, true
}

type memoryGuard struct {
	locker *MemoryLocker
	key    string
}

func (g *memoryGuard) Release(ctx context.Context) error {
	g.locker.mu.Lock()
	defer g.locker.mu.Unlock()
	delete(g.locker.leases, g.key)
	return nil
}
