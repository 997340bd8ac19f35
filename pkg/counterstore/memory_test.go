package counterstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/eduplatform/gatekeeper/pkg/counterstore"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
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

func TestMemoryStoreExpiry(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := counterstore.NewMemoryStore(counterstore.WithMemoryStoreClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "l1:k", []byte("v"), time.Minute))
	require.NoError(t, s.Set(ctx, "l4:k", []byte("v"), 0))

	clock.Advance(59 * time.Second)
	_, err := s.Get(ctx, "l1:k")
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = s.Get(ctx, "l1:k")
	assert.ErrorIs(t, err, counterstore.ErrNotFound)

	_, err = s.Get(ctx, "l4:k")
	assert.NoError(t, err, "zero ttl never expires")

	keys, err := s.Scan(ctx, "*")
	require.NoError(t, err)
	assert.Equal(t, []string{"l4:k"}, keys)
}

func TestMemoryStoreIncrKeepsCreationTTL(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := counterstore.NewMemoryStore(counterstore.WithMemoryStoreClock(clock.Now))
	ctx := context.Background()

	_, err := s.Incr(ctx, "c", time.Hour)
	require.NoError(t, err)
	clock.Advance(30 * time.Minute)
	n, err := s.Incr(ctx, "c", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	clock.Advance(30 * time.Minute)
	n, err = s.Incr(ctx, "c", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "counter restarts after the original ttl")
}

func TestMemoryStoreCancelledContext(t *testing.T) {
	t.Parallel()

	s := counterstore.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.SlideWindow(ctx, "k", time.Now(), time.Minute, 1, time.Minute)
	assert.ErrorIs(t, err, counterstore.ErrStoreUnavailable)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, counterstore.ErrStoreUnavailable)
	assert.Error(t, s.Ping(ctx))
}

func TestMemoryStoreConcurrentSlideWindow(t *testing.T) {
	t.Parallel()

	s := counterstore.NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.SlideWindow(ctx, "shared", now, time.Minute, 10, time.Minute)
			if err == nil && res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, allowed)
}

func TestMemoryStoreLifecycle(t *testing.T) {
	t.Parallel()

	t.Run("cleanup removes expired keys", func(t *testing.T) {
		t.Parallel()

		clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
		s := counterstore.NewMemoryStore(
			counterstore.WithMemoryStoreClock(clock.Now),
			counterstore.WithCleanupInterval(10*time.Millisecond),
		)
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, "a", []byte("1"), time.Second))
		require.NoError(t, s.Set(ctx, "b", []byte("1"), time.Hour))

		go func() { _ = s.Start(ctx) }()
		require.Eventually(t, func() bool { return s.Stats().IsRunning }, time.Second, 5*time.Millisecond)
		assert.NoError(t, s.Healthcheck(ctx))

		clock.Advance(2 * time.Second)
		require.Eventually(t, func() bool { return s.Stats().KeysExpired == 1 }, time.Second, 5*time.Millisecond)

		stats := s.Stats()
		assert.Equal(t, int64(2), stats.KeysCreated)
		assert.Equal(t, 1, stats.ActiveKeys)

		require.NoError(t, s.Stop())
		assert.Error(t, s.Stop(), "second stop reports not started")
	})

	t.Run("start twice fails", func(t *testing.T) {
		t.Parallel()

		s := counterstore.NewMemoryStore(counterstore.WithCleanupInterval(time.Hour))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go func() { _ = s.Start(ctx) }()
		require.Eventually(t, func() bool { return s.Stats().IsRunning }, time.Second, 5*time.Millisecond)
		assert.Error(t, s.Start(ctx))
	})

	t.Run("zero interval cannot start", func(t *testing.T) {
		t.Parallel()

		s := counterstore.NewMemoryStore(counterstore.WithCleanupInterval(0))
		assert.Error(t, s.Start(context.Background()))
		assert.NoError(t, s.Healthcheck(context.Background()), "no cleanup configured")
	})

	t.Run("healthcheck fails when cleanup not running", func(t *testing.T) {
		t.Parallel()

		s := counterstore.NewMemoryStore()
		assert.Error(t, s.Healthcheck(context.Background()))
	})

	t.Run("run with errgroup", func(t *testing.T) {
		t.Parallel()

		s := counterstore.NewMemoryStore(counterstore.WithCleanupInterval(time.Hour))
		ctx, cancel := context.WithCancel(context.Background())
		g, gctx := errgroup.WithContext(ctx)
		g.Go(s.Run(gctx))

		require.Eventually(t, func() bool { return s.Stats().IsRunning }, time.Second, 5*time.Millisecond)
		cancel()
		assert.NoError(t, g.Wait())
	})
}

func TestMemoryStoreInfo(t *testing.T) {
	t.Parallel()

	s := counterstore.NewMemoryStore()
	require.NoError(t, s.Set(context.Background(), "k", []byte("v"), time.Minute))

	info, err := s.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "memory", info["redis_mode"])
	assert.Equal(t, "1", info["db0_keys"])
}
