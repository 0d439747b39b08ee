package generic

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutexLocker_SerializesKey(t *testing.T) {
	locker := NewMutexLocker()
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := WithLock(ctx, locker, "balance:a", func() error {
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Zero(t, locker.held(), "entries are dropped once released")
}

func TestMutexLocker_ContextTimeout(t *testing.T) {
	locker := NewMutexLocker()
	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "k")

	assert.ErrorIs(t, err, ErrLockNotAcquired)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, IsRetryable(err))

	unlock()
	unlock() // second call is a no-op
	assert.Zero(t, locker.held())
}

func TestLockAll_OppositeOrdersDoNotDeadlock(t *testing.T) {
	locker := NewMutexLocker()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		keys := []string{"person:a", "balance:a/x/2025"}
		if i%2 == 1 {
			keys = []string{keys[1], keys[0], keys[1]}
		}
		wg.Add(1)
		go func(keys []string) {
			defer wg.Done()
			unlock, err := LockAll(ctx, locker, keys...)
			if !assert.NoError(t, err) {
				return
			}
			unlock()
		}(keys)
	}
	wg.Wait()

	assert.Zero(t, locker.held())
}

func TestLockAll_ReleasesOnFailure(t *testing.T) {
	locker := NewMutexLocker()
	unlock, err := locker.Lock(context.Background(), "b")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = LockAll(ctx, locker, "b", "a")
	require.ErrorIs(t, err, ErrLockNotAcquired)

	// "a" was taken first and must have been released
	again, err := locker.Lock(context.Background(), "a")
	require.NoError(t, err)
	again()
}
