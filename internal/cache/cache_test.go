package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colthorp/nutrisync-cli-go/internal/core"
)

var testKey = NewKey("health", "dashboard", "2024-07-15")

func TestKeyEquality(t *testing.T) {
	a := NewKey("health", "foodLogs", "byDate", "2024-07-15")
	b := NewKey("health", "foodLogs", "byDate", "2024-07-15")
	c := NewKey("health", "foodLogs", "2024-07-15", "byDate")

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Hash(), b.Hash())
	assert.False(t, a.Equal(c))
	assert.NotEqual(t, a.Hash(), c.Hash())
	assert.Equal(t, "health", a.Domain())
	assert.Equal(t, "health/foodLogs/byDate/2024-07-15", a.String())
}

func TestKeyHashDoesNotCollide(t *testing.T) {
	a := NewKey("chat", "messages", "a/b")
	b := NewKey("chat", "messages", "a", "b")
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestKeyHasPrefix(t *testing.T) {
	k := NewKey("health", "foodLogs", "mealType", "LUNCH", "2024-07-15")

	assert.True(t, k.HasPrefix(NewKey("health")))
	assert.True(t, k.HasPrefix(NewKey("health", "foodLogs", "mealType")))
	assert.False(t, k.HasPrefix(NewKey("health", "waterLogs")))
	assert.False(t, NewKey("health").HasPrefix(k))
	assert.True(t, NewKey("health", "foodLogs").Append("byDate").Equal(NewKey("health", "foodLogs", "byDate")))
}

func TestSetGetPatchRemove(t *testing.T) {
	c := New()

	_, ok := c.Get(testKey)
	assert.False(t, ok)
	assert.False(t, c.Patch(testKey, func(v any) any { return 1 }), "patch must not create absent keys")

	c.Set(testKey, 1)
	v, ok := c.Get(testKey)
	require.True(t, ok)
	assert.Equal(t, 1, v)

	assert.True(t, c.Patch(testKey, func(v any) any { return v.(int) + 1 }))
	v, _ = c.Get(testKey)
	assert.Equal(t, 2, v)

	c.Remove(testKey)
	_, ok = c.Get(testKey)
	assert.False(t, ok)
}

func TestSubscribersNotifiedBeforeReturn(t *testing.T) {
	c := New()
	var got []any
	unsub := c.Subscribe(testKey, func(k Key, v any, present bool) {
		assert.True(t, k.Equal(testKey))
		got = append(got, v)
	})

	c.Set(testKey, "a")
	c.Patch(testKey, func(any) any { return "b" })
	assert.Equal(t, []any{"a", "b"}, got)

	unsub()
	unsub()
	c.Set(testKey, "c")
	assert.Len(t, got, 2)
}

func TestSubscriberSeesOnlyFinalTransactionState(t *testing.T) {
	c := New()
	a := NewKey("health", "a")
	b := NewKey("health", "b")
	c.Set(a, 0)
	c.Set(b, 0)

	var seen []int
	c.Subscribe(a, func(_ Key, v any, _ bool) {
		bv, _ := c.Get(b)
		seen = append(seen, v.(int), bv.(int))
	})

	c.Update(func(tx *Tx) {
		tx.Set(a, 1)
		tx.Set(b, 1)
		tx.Patch(a, func(v any) any { return v.(int) + 1 })
	})

	assert.Equal(t, []int{2, 1}, seen, "one notification carrying the final state")
}

func TestRemoveNotifiesAbsent(t *testing.T) {
	c := New()
	c.Set(testKey, 1)
	var present = true
	c.Subscribe(testKey, func(_ Key, _ any, p bool) { present = p })

	c.Remove(testKey)
	assert.False(t, present)
}

func TestFetchDeduplicatesConcurrentLoads(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	c := New(WithLoader(func(ctx context.Context, key Key) (any, error) {
		calls.Add(1)
		<-release
		return "loaded", nil
	}))

	var wg sync.WaitGroup
	results := make([]any, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Fetch(context.Background(), testKey)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	// let the goroutines pile up on the shared call
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, "loaded", v)
	}
}

func TestFetchUsesFreshValue(t *testing.T) {
	var calls atomic.Int32
	now := time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)
	c := New(
		WithClock(func() time.Time { return now }),
		WithStaleTime(func(Key) time.Duration { return time.Minute }),
		WithLoader(func(ctx context.Context, key Key) (any, error) {
			return int(calls.Add(1)), nil
		}),
	)

	v, err := c.Fetch(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, _ = c.Fetch(context.Background(), testKey)
	assert.Equal(t, 1, v, "fresh entry is served from cache")
	assert.False(t, c.IsStale(testKey))

	now = now.Add(2 * time.Minute)
	assert.True(t, c.IsStale(testKey))
	v, _ = c.Fetch(context.Background(), testKey)
	assert.Equal(t, 2, v)

	st := c.Stats()
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(2), st.Misses)
	assert.Equal(t, int64(2), st.Loads)
}

func TestFetchWithoutLoader(t *testing.T) {
	c := New()
	_, err := c.Fetch(context.Background(), testKey)
	assert.ErrorIs(t, err, core.ErrNoLoader)
}

func TestFetchLoaderError(t *testing.T) {
	boom := errors.New("boom")
	c := New(WithLoader(func(context.Context, Key) (any, error) { return nil, boom }))

	_, err := c.Fetch(context.Background(), testKey)
	assert.ErrorIs(t, err, boom)
	_, ok := c.Get(testKey)
	assert.False(t, ok)
}

func TestFetchCallerCancelDoesNotCancelLoad(t *testing.T) {
	release := make(chan struct{})
	done := make(chan struct{})
	c := New(WithLoader(func(ctx context.Context, key Key) (any, error) {
		defer close(done)
		<-release
		return "v", ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := c.Fetch(ctx, testKey)
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	close(release)
	<-done
	require.Eventually(t, func() bool {
		v, ok := c.Get(testKey)
		return ok && v == "v"
	}, time.Second, 5*time.Millisecond)
}

func TestInvalidateObservedKeyRefetches(t *testing.T) {
	var calls atomic.Int32
	c := New(WithLoader(func(context.Context, Key) (any, error) {
		return int(calls.Add(1)), nil
	}))
	c.Set(testKey, 0)

	// unobserved: only marked
	c.Invalidate(testKey)
	c.Wait()
	assert.Equal(t, int32(0), calls.Load())
	assert.True(t, c.Peek(testKey).Invalidated)

	got := make(chan any, 1)
	c.Subscribe(testKey, func(_ Key, v any, _ bool) { got <- v })
	c.Invalidate(testKey)
	c.Wait()

	assert.Equal(t, 1, <-got)
	assert.False(t, c.Peek(testKey).Invalidated)
	assert.Equal(t, int64(2), c.Stats().Invalidations)
}

func TestInvalidatePrefix(t *testing.T) {
	c := New()
	c.Set(NewKey("health", "foodLogs", "byDate", "2024-07-15"), 1)
	c.Set(NewKey("health", "foodLogs", "mealType", "LUNCH", "2024-07-15"), 1)
	c.Set(NewKey("health", "waterLogs", "byDate", "2024-07-15"), 1)

	n := c.InvalidatePrefix(NewKey("health", "foodLogs"))

	assert.Equal(t, 2, n)
	assert.True(t, c.IsStale(NewKey("health", "foodLogs", "byDate", "2024-07-15")))
	assert.False(t, c.Peek(NewKey("health", "waterLogs", "byDate", "2024-07-15")).Invalidated)
}

func TestPinnedKeyDiscardsLoadResult(t *testing.T) {
	release := make(chan struct{})
	c := New(WithLoader(func(context.Context, Key) (any, error) {
		<-release
		return "server", nil
	}))
	c.Set(testKey, "old")
	c.Invalidate(testKey)

	errc := make(chan error, 1)
	go func() {
		_, err := c.Fetch(context.Background(), testKey)
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)

	// an optimistic write lands while the load is in flight
	c.Update(func(tx *Tx) {
		tx.Pin(testKey)
		tx.Set(testKey, "optimistic")
	})
	close(release)
	require.NoError(t, <-errc)

	v, _ := c.Get(testKey)
	assert.Equal(t, "optimistic", v)
	assert.Equal(t, int64(1), c.Stats().Discarded)
}

func TestLoadResultDiscardedWhenWrittenMeanwhile(t *testing.T) {
	release := make(chan struct{})
	c := New(WithLoader(func(context.Context, Key) (any, error) {
		<-release
		return "stale server copy", nil
	}))

	errc := make(chan error, 1)
	var got any
	go func() {
		v, err := c.Fetch(context.Background(), testKey)
		got = v
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	c.Set(testKey, "newer")
	close(release)
	require.NoError(t, <-errc)

	v, _ := c.Get(testKey)
	assert.Equal(t, "newer", v)
	assert.Equal(t, "newer", got)
}

func TestPinnedRefetchDeferredUntilUnpin(t *testing.T) {
	var calls atomic.Int32
	c := New(WithLoader(func(context.Context, Key) (any, error) {
		return int(calls.Add(1)), nil
	}))
	c.Set(testKey, 0)
	c.Subscribe(testKey, func(Key, any, bool) {})

	c.Update(func(tx *Tx) { tx.Pin(testKey) })
	c.Invalidate(testKey)
	c.Wait()
	assert.Equal(t, int32(0), calls.Load())
	assert.True(t, c.Peek(testKey).Pinned)

	c.Update(func(tx *Tx) { tx.Unpin(testKey) })
	c.Wait()
	assert.Equal(t, int32(1), calls.Load())
	v, _ := c.Get(testKey)
	assert.Equal(t, 1, v)
}

func TestTxRestoreAndVersion(t *testing.T) {
	c := New()
	c.Set(testKey, "before")
	snap := c.Peek(testKey)

	var applied uint64
	c.Update(func(tx *Tx) {
		tx.Set(testKey, "after")
		applied = tx.Version(testKey)
	})
	assert.Greater(t, applied, snap.Version)

	c.Update(func(tx *Tx) {
		require.Equal(t, applied, tx.Version(testKey))
		tx.Restore(testKey, snap)
	})
	st := c.Peek(testKey)
	assert.Equal(t, "before", st.Value)
	assert.Equal(t, snap.UpdatedAt, st.UpdatedAt)
	assert.Greater(t, st.Version, applied)
}

func TestTxRestoreKeepsInvalidation(t *testing.T) {
	c := New()
	c.Set(testKey, "before")
	snap := c.Peek(testKey)
	c.Set(testKey, "after")
	c.Invalidate(testKey)

	c.Update(func(tx *Tx) { tx.Restore(testKey, snap) })

	st := c.Peek(testKey)
	assert.Equal(t, "before", st.Value)
	assert.True(t, st.Invalidated)
	assert.True(t, c.IsStale(testKey))
}

func TestTxRestoreAbsent(t *testing.T) {
	c := New()
	snap := c.Peek(testKey)
	c.Set(testKey, 1)

	c.Update(func(tx *Tx) { tx.Restore(testKey, snap) })

	_, ok := c.Get(testKey)
	assert.False(t, ok)
}

func TestKeysListsPresent(t *testing.T) {
	c := New()
	c.Set(NewKey("a", "1"), 1)
	c.Set(NewKey("a", "2"), 2)
	c.Remove(NewKey("a", "2"))

	keys := c.Keys()
	require.Len(t, keys, 1)
	assert.True(t, keys[0].Equal(NewKey("a", "1")))
}
