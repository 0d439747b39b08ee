package generic

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// =============================================================================
// KEY LOCKER - Per-key serialization of read-validate-write sequences
// =============================================================================

// KeyLocker serializes work on a logical key. Lock blocks until the key is
// free or ctx is done; the returned func releases the key and is safe to
// call once.
type KeyLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// MutexLocker is an in-process KeyLocker. Entries are reference counted and
// dropped when no goroutine holds or waits on the key.
type MutexLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

var _ KeyLocker = (*MutexLocker)(nil)

func NewMutexLocker() *MutexLocker {
	return &MutexLocker{locks: make(map[string]*keyLock)}
}

func (m *MutexLocker) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		m.release(key, l)
		return nil, fmt.Errorf("%w: %s: %w", ErrLockNotAcquired, key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.sem
			m.release(key, l)
		})
	}, nil
}

func (m *MutexLocker) release(key string, l *keyLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}

// held reports the number of keys currently tracked. Used by tests.
func (m *MutexLocker) held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// LockAll takes every key in sorted order, so two callers locking
// overlapping key sets cannot deadlock. Duplicates are taken once. The
// returned func releases in reverse order.
func LockAll(ctx context.Context, locker KeyLocker, keys ...string) (func(), error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	unlocks := make([]func(), 0, len(sorted))
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for i, key := range sorted {
		if i > 0 && key == sorted[i-1] {
			continue
		}
		unlock, err := locker.Lock(ctx, key)
		if err != nil {
			release()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}

// WithLock runs fn while holding key.
func WithLock(ctx context.Context, locker KeyLocker, key string, fn func() error) error {
	unlock, err := locker.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}
