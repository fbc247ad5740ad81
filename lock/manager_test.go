package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	mongobee "github.com/philips-internal/emr-mongobee"
	"github.com/philips-internal/emr-mongobee/store"
	"github.com/philips-internal/emr-mongobee/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_Immediate(t *testing.T) {
	ctx := context.Background()

	t.Run("acquires on empty lock store", func(t *testing.T) {
		s := memory.New()
		m := New(Config{Store: s})

		acquired, err := m.Acquire(ctx)
		require.NoError(t, err)
		assert.True(t, acquired)

		rec, err := s.FindLockRecord(ctx, mongobee.LockKey)
		require.NoError(t, err)
		assert.Equal(t, m.Owner(), rec.Owner)
		assert.False(t, rec.AcquiredAt.IsZero())
	})

	t.Run("held lock yields not-acquired without error", func(t *testing.T) {
		s := memory.New()
		first := New(Config{Store: s})
		second := New(Config{Store: s})

		acquired, err := first.Acquire(ctx)
		require.NoError(t, err)
		require.True(t, acquired)

		acquired, err = second.Acquire(ctx)
		require.NoError(t, err)
		assert.False(t, acquired)
	})

	t.Run("insert failure other than duplicate key is fatal", func(t *testing.T) {
		mock := store.NewMockStore()
		mock.InsertLockRecordFunc = func(ctx context.Context, record mongobee.LockRecord) error {
			return assert.AnError
		}
		m := New(Config{Store: mock})

		_, err := m.Acquire(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestAcquire_WaitPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("acquires once holder releases", func(t *testing.T) {
		s := memory.New()
		holder := New(Config{Store: s})
		waiter := New(Config{
			Store:        s,
			WaitForLock:  true,
			WaitTimeout:  2 * time.Second,
			PollInterval: 10 * time.Millisecond,
		})

		acquired, err := holder.Acquire(ctx)
		require.NoError(t, err)
		require.True(t, acquired)

		var wg sync.WaitGroup
		wg.Add(1)
		var waiterAcquired bool
		var waiterErr error
		go func() {
			defer wg.Done()
			waiterAcquired, waiterErr = waiter.Acquire(ctx)
		}()

		time.Sleep(50 * time.Millisecond)
		require.NoError(t, holder.Release(ctx))
		wg.Wait()

		require.NoError(t, waiterErr)
		assert.True(t, waiterAcquired)
	})

	t.Run("gives up after wait timeout", func(t *testing.T) {
		s := memory.New()
		holder := New(Config{Store: s})
		waiter := New(Config{
			Store:        s,
			WaitForLock:  true,
			WaitTimeout:  50 * time.Millisecond,
			PollInterval: 10 * time.Millisecond,
		})

		acquired, err := holder.Acquire(ctx)
		require.NoError(t, err)
		require.True(t, acquired)

		acquired, err = waiter.Acquire(ctx)
		require.NoError(t, err)
		assert.False(t, acquired)
	})

	t.Run("returns ErrLockNotAcquired when configured", func(t *testing.T) {
		s := memory.New()
		holder := New(Config{Store: s})
		waiter := New(Config{
			Store:             s,
			WaitForLock:       true,
			WaitTimeout:       30 * time.Millisecond,
			PollInterval:      10 * time.Millisecond,
			FailIfNotAcquired: true,
		})

		acquired, err := holder.Acquire(ctx)
		require.NoError(t, err)
		require.True(t, acquired)

		_, err = waiter.Acquire(ctx)
		assert.ErrorIs(t, err, mongobee.ErrLockNotAcquired)
	})

	t.Run("fail flag without wait applies to immediate attempt", func(t *testing.T) {
		s := memory.New()
		holder := New(Config{Store: s})
		second := New(Config{Store: s, FailIfNotAcquired: true})

		acquired, err := holder.Acquire(ctx)
		require.NoError(t, err)
		require.True(t, acquired)

		_, err = second.Acquire(ctx)
		assert.ErrorIs(t, err, mongobee.ErrLockNotAcquired)
	})

	t.Run("context cancellation interrupts the wait loop", func(t *testing.T) {
		s := memory.New()
		holder := New(Config{Store: s})
		waiter := New(Config{
			Store:        s,
			WaitForLock:  true,
			WaitTimeout:  10 * time.Second,
			PollInterval: 10 * time.Millisecond,
		})

		acquired, err := holder.Acquire(ctx)
		require.NoError(t, err)
		require.True(t, acquired)

		waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err = waiter.Acquire(waitCtx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 5*time.Second)
	})
}

func TestRelease(t *testing.T) {
	ctx := context.Background()

	t.Run("releases the held lock", func(t *testing.T) {
		s := memory.New()
		m := New(Config{Store: s})

		acquired, err := m.Acquire(ctx)
		require.NoError(t, err)
		require.True(t, acquired)

		require.NoError(t, m.Release(ctx))

		held, err := m.IsHeld(ctx)
		require.NoError(t, err)
		assert.False(t, held)
	})

	t.Run("releasing an unheld lock is not an error", func(t *testing.T) {
		s := memory.New()
		m := New(Config{Store: s})

		assert.NoError(t, m.Release(ctx))
	})
}

func TestIsHeld(t *testing.T) {
	ctx := context.Background()

	t.Run("false on empty lock store", func(t *testing.T) {
		m := New(Config{Store: memory.New()})

		held, err := m.IsHeld(ctx)
		require.NoError(t, err)
		assert.False(t, held)
	})

	t.Run("true while any instance holds the lock", func(t *testing.T) {
		s := memory.New()
		holder := New(Config{Store: s})
		observer := New(Config{Store: s})

		acquired, err := holder.Acquire(ctx)
		require.NoError(t, err)
		require.True(t, acquired)

		held, err := observer.IsHeld(ctx)
		require.NoError(t, err)
		assert.True(t, held)
	})

	t.Run("store failure is surfaced", func(t *testing.T) {
		mock := store.NewMockStore()
		mock.FindLockRecordFunc = func(ctx context.Context, key string) (mongobee.LockRecord, error) {
			return mongobee.LockRecord{}, assert.AnError
		}
		m := New(Config{Store: mock})

		_, err := m.IsHeld(ctx)
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestMutualExclusion(t *testing.T) {
	// Many managers race for the same lock; the store's uniqueness
	// constraint must let exactly one win.
	ctx := context.Background()
	s := memory.New()

	const instances = 16
	var wg sync.WaitGroup
	results := make([]bool, instances)

	for i := 0; i < instances; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := New(Config{Store: s})
			acquired, err := m.Acquire(ctx)
			assert.NoError(t, err)
			results[i] = acquired
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, acquired := range results {
		if acquired {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestOwnerTokens(t *testing.T) {
	s := memory.New()
	first := New(Config{Store: s})
	second := New(Config{Store: s})

	assert.NotEmpty(t, first.Owner())
	assert.NotEqual(t, first.Owner(), second.Owner())
}
