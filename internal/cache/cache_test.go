package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingFetcher returns "<key>#<n>" and counts calls per key.
type recordingFetcher struct {
	mu     sync.Mutex
	calls  map[string]int
	failOn map[string]error
}

func newRecordingFetcher() *recordingFetcher {
	return &recordingFetcher{calls: map[string]int{}, failOn: map[string]error{}}
}

func (f *recordingFetcher) Fetch(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[key]++
	if err := f.failOn[key]; err != nil {
		return "", err
	}
	return fmt.Sprintf("%s#%d", key, f.calls[key]), nil
}

func (f *recordingFetcher) Calls(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func adjacentDays(key string) []string {
	day, err := time.Parse("2006-01-02", key)
	if err != nil {
		return nil
	}
	return []string{
		day.AddDate(0, 0, -1).Format("2006-01-02"),
		day.AddDate(0, 0, 1).Format("2006-01-02"),
	}
}

func TestCache_HitWithinTTLAndRefetchAfterExpiry(t *testing.T) {
	clock := newFakeClock()
	f := newRecordingFetcher()
	c := New("test", f.Fetch, Options[string]{TTL: 5 * time.Minute, Now: clock.Now})
	ctx := context.Background()

	v, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a#1", v)

	clock.Advance(4*time.Minute + 59*time.Second)
	v, err = c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a#1", v)
	assert.Equal(t, 1, f.Calls("a"))

	clock.Advance(time.Second)
	v, err = c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a#2", v)
	assert.Equal(t, 2, f.Calls("a"))
}

func TestCache_PrefetchesNeighbors(t *testing.T) {
	clock := newFakeClock()
	f := newRecordingFetcher()
	c := New("test", f.Fetch, Options[string]{Neighbors: adjacentDays, Now: clock.Now})

	_, err := c.Get(context.Background(), "2024-01-01")
	require.NoError(t, err)
	c.Wait()

	for _, key := range []string{"2023-12-31", "2024-01-02"} {
		v, ok := c.Peek(key)
		assert.True(t, ok, "neighbor %s should be fresh", key)
		assert.Equal(t, key+"#1", v)
	}

	// Neighbors are not themselves expanded.
	_, ok := c.Peek("2024-01-03")
	assert.False(t, ok)
	assert.Equal(t, 3, c.Len())
}

func TestCache_PrefetchSkipsFreshNeighbors(t *testing.T) {
	clock := newFakeClock()
	f := newRecordingFetcher()
	c := New("test", f.Fetch, Options[string]{Neighbors: adjacentDays, Now: clock.Now})
	ctx := context.Background()

	_, err := c.Get(ctx, "2024-01-02")
	require.NoError(t, err)
	c.Wait()
	require.Equal(t, 1, f.Calls("2024-01-01"))

	// 2024-01-01 was prefetched, so this is a hit and prefetches nothing.
	_, err = c.Get(ctx, "2024-01-01")
	require.NoError(t, err)
	c.Wait()
	assert.Equal(t, 1, f.Calls("2024-01-01"))
	assert.Equal(t, 0, f.Calls("2023-12-31"))
}

func TestCache_PrefetchFailureIsIsolated(t *testing.T) {
	clock := newFakeClock()
	f := newRecordingFetcher()
	f.failOn["2024-01-02"] = errors.New("upstream down")
	c := New("test", f.Fetch, Options[string]{Neighbors: adjacentDays, Now: clock.Now})

	v, err := c.Get(context.Background(), "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01#1", v)
	c.Wait()

	_, ok := c.Peek("2024-01-02")
	assert.False(t, ok, "failed prefetch must not leave an entry")
	_, ok = c.Peek("2023-12-31")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestCache_PrefetchSurvivesCallerCancellation(t *testing.T) {
	f := newRecordingFetcher()
	c := New("test", func(ctx context.Context, key string) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return f.Fetch(ctx, key)
	}, Options[string]{Neighbors: adjacentDays})

	ctx, cancel := context.WithCancel(context.Background())
	_, err := c.Get(ctx, "2024-01-01")
	require.NoError(t, err)
	cancel()
	c.Wait()

	_, ok := c.Peek("2024-01-02")
	assert.True(t, ok)
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	f := newRecordingFetcher()
	boom := errors.New("boom")
	f.failOn["a"] = boom
	c := New("test", f.Fetch, Options[string]{})
	ctx := context.Background()

	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())

	delete(f.failOn, "a")
	v, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a#2", v)
}

func TestCache_InvalidateAllForcesRefetch(t *testing.T) {
	f := newRecordingFetcher()
	c := New("test", f.Fetch, Options[string]{})
	ctx := context.Background()

	_, err := c.Get(ctx, "a")
	require.NoError(t, err)

	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())

	v, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a#2", v)
}

func TestCache_FetchInFlightDuringInvalidateIsDropped(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	c := New("test", func(ctx context.Context, key string) (string, error) {
		close(started)
		<-release
		return "stale", nil
	}, Options[string]{})

	done := make(chan string)
	go func() {
		v, _ := c.Get(context.Background(), "a")
		done <- v
	}()

	<-started
	c.InvalidateAll()
	close(release)

	assert.Equal(t, "stale", <-done, "the caller still receives its result")
	_, ok := c.Peek("a")
	assert.False(t, ok, "result from before invalidation must not be stored")
}

func TestCache_ConcurrentMissesShareOneFetch(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	c := New("test", func(ctx context.Context, key string) (string, error) {
		calls.Add(1)
		<-release
		return "v", nil
	}, Options[string]{})

	const n = 10
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Get(context.Background(), "a")
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, "v", v)
	}
}

func TestCache_CancelledCallerDoesNotFailOthers(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	c := New("test", func(ctx context.Context, key string) (string, error) {
		calls.Add(1)
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		return "v", nil
	}, Options[string]{})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.Get(ctxA, "2024-01-01")
		errA <- err
	}()
	<-started

	type result struct {
		v   string
		err error
	}
	resB := make(chan result, 1)
	go func() {
		v, err := c.Get(context.Background(), "2024-01-01")
		resB <- result{v, err}
	}()

	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled, "the cancelled caller stops waiting")
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller kept waiting for the fetch")
	}

	close(release)
	select {
	case res := <-resB:
		require.NoError(t, res.err)
		assert.Equal(t, "v", res.v)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never returned")
	}

	assert.Equal(t, int32(1), calls.Load())
	_, ok := c.Peek("2024-01-01")
	assert.True(t, ok, "the shared fetch still fills the cache")
}

func TestCache_SlowKeyDoesNotBlockOthers(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	c := New("test", func(ctx context.Context, key string) (string, error) {
		if key == "slow" {
			<-release
		}
		return key, nil
	}, Options[string]{})

	go func() { _, _ = c.Get(context.Background(), "slow") }()

	done := make(chan struct{})
	go func() {
		v, err := c.Get(context.Background(), "fast")
		assert.NoError(t, err)
		assert.Equal(t, "fast", v)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fast key blocked behind slow key")
	}
}

func TestCache_ClonesValues(t *testing.T) {
	c := New("test", func(ctx context.Context, key string) ([]string, error) {
		return []string{"one", "two"}, nil
	}, Options[[]string]{Clone: slices.Clone[[]string]})
	ctx := context.Background()

	v, err := c.Get(ctx, "a")
	require.NoError(t, err)
	v[0] = "mutated"

	again, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, again)
}

func TestNew_Defaults(t *testing.T) {
	c := New("test", newRecordingFetcher().Fetch, Options[string]{})
	assert.Equal(t, DefaultTTL, c.ttl)
	assert.Equal(t, DefaultPrefetchLimit, c.prefetchLimit)
	assert.Equal(t, "test", c.Name())
}
