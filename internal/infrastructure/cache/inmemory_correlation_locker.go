package cache

import (
	"context"
	"sync"

	"github.com/varejo/backend/internal/domain/shared"
)

// InMemoryCorrelationLocker serializes operations per correlation key
// within a single process. Suitable for single-instance deployments and
// testing; multi-replica deployments should use the Redis locker.
type InMemoryCorrelationLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// keyLock is a channel-based binary semaphore with a reference count so
// unused entries can be removed from the map.
type keyLock struct {
	sem  chan struct{}
	refs int
}

// NewInMemoryCorrelationLocker creates a new in-memory locker
func NewInMemoryCorrelationLocker() *InMemoryCorrelationLocker {
	return &InMemoryCorrelationLocker{
		locks: make(map[string]*keyLock),
	}
}

// Lock acquires the lock for the given key, blocking until available or
// the context is cancelled.
func (l *InMemoryCorrelationLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.release(key, kl, true)
		})
	}, nil
}

func (l *InMemoryCorrelationLocker) release(key string, kl *keyLock, held bool) {
	if held {
		<-kl.sem
	}
	l.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

// Ensure InMemoryCorrelationLocker implements CorrelationLocker
var _ shared.CorrelationLocker = (*InMemoryCorrelationLocker)(nil)
