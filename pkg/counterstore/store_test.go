package counterstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduplatform/gatekeeper/pkg/counterstore"
)

type storeFactory struct {
	name string
	new  func(t *testing.T) counterstore.Store
}

func factories() []storeFactory {
	return []storeFactory{
		{
			name: "memory",
			new: func(t *testing.T) counterstore.Store {
				t.Helper()
				return counterstore.NewMemoryStore()
			},
		},
		{
			name: "redis",
			new: func(t *testing.T) counterstore.Store {
				t.Helper()
				srv := miniredis.RunT(t)
				client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
				t.Cleanup(func() { _ = client.Close() })
				return counterstore.NewRedisStore(client)
			},
		},
	}
}

func TestStoreContract(t *testing.T) {
	t.Parallel()

	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			t.Parallel()

			t.Run("slide window admits up to limit", func(t *testing.T) {
				s := f.new(t)
				contractSlideWindow(t, s)
			})
			t.Run("slide window prunes old entries", func(t *testing.T) {
				s := f.new(t)
				contractSlideWindowPrune(t, s)
			})
			t.Run("take token", func(t *testing.T) {
				s := f.new(t)
				contractTakeToken(t, s)
			})
			t.Run("incr", func(t *testing.T) {
				s := f.new(t)
				contractIncr(t, s)
			})
			t.Run("key value", func(t *testing.T) {
				s := f.new(t)
				contractKeyValue(t, s)
			})
			t.Run("scan", func(t *testing.T) {
				s := f.new(t)
				contractScan(t, s)
			})
		})
	}
}

func contractSlideWindow(t *testing.T, s counterstore.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)
	window := time.Minute

	for i := range 3 {
		res, err := s.SlideWindow(ctx, "rate_limit:ip:1:60", now.Add(time.Duration(i)*time.Second), window, 3, window+time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i+1)
		assert.Equal(t, i+1, res.Count)
		assert.Equal(t, now, res.Oldest)
	}

	res, err := s.SlideWindow(ctx, "rate_limit:ip:1:60", now.Add(5*time.Second), window, 3, window+time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, now, res.Oldest)

	n, err := s.WindowCount(ctx, "rate_limit:ip:1:60", now.Add(5*time.Second), window)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	res, err = s.SlideWindow(ctx, "rate_limit:ip:2:60", now, window, 3, window+time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "keys are isolated")
}

func contractSlideWindowPrune(t *testing.T, s counterstore.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)
	window := 10 * time.Second

	_, err := s.SlideWindow(ctx, "w", now, window, 1, time.Minute)
	require.NoError(t, err)

	res, err := s.SlideWindow(ctx, "w", now.Add(window-time.Millisecond), window, 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed, "entry still inside window")

	res, err = s.SlideWindow(ctx, "w", now.Add(window), window, 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "entry exactly window old is pruned")
	assert.Equal(t, now.Add(window), res.Oldest)

	n, err := s.WindowCount(ctx, "missing", now, window)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func contractTakeToken(t *testing.T, s counterstore.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	for i := range 3 {
		res, err := s.TakeToken(ctx, "token_bucket:ip:1", now, 3, 0.5, time.Hour)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "token %d", i+1)
		assert.InDelta(t, float64(2-i), res.Tokens, 1e-6)
	}

	res, err := s.TakeToken(ctx, "token_bucket:ip:1", now, 3, 0.5, time.Hour)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.InDelta(t, 0, res.Tokens, 1e-6)

	res, err = s.TakeToken(ctx, "token_bucket:ip:1", now.Add(time.Second), 3, 0.5, time.Hour)
	require.NoError(t, err)
	assert.False(t, res.Allowed, "half a token after one second")
	assert.InDelta(t, 0.5, res.Tokens, 1e-6)

	res, err = s.TakeToken(ctx, "token_bucket:ip:1", now.Add(2*time.Second), 3, 0.5, time.Hour)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.InDelta(t, 0, res.Tokens, 1e-6)

	res, err = s.TakeToken(ctx, "token_bucket:ip:1", now.Add(time.Hour), 3, 0.5, time.Hour)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.InDelta(t, 2, res.Tokens, 1e-6, "refill is capped at capacity")
}

func contractIncr(t *testing.T, s counterstore.Store) {
	t.Helper()
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := s.Incr(ctx, "rate_limit_violations:20240101:ip:1", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	got, err := s.Get(ctx, "rate_limit_violations:20240101:ip:1")
	require.NoError(t, err)
	assert.Equal(t, "3", string(got), "counters read back as decimal text")
}

func contractKeyValue(t *testing.T, s counterstore.Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "l2:missing")
	assert.ErrorIs(t, err, counterstore.ErrNotFound)

	require.NoError(t, s.Set(ctx, "l2:k", []byte("v1"), time.Minute))
	got, err := s.Get(ctx, "l2:k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	require.NoError(t, s.Set(ctx, "l2:k", []byte("v2"), time.Minute))
	got, err = s.Get(ctx, "l2:k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	n, err := s.Delete(ctx, "l2:k", "l2:missing")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.Delete(ctx, "l2:k")
	require.NoError(t, err)
	assert.Zero(t, n, "second delete is a no-op")

	n, err = s.Delete(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.NoError(t, s.Ping(ctx))
}

func contractScan(t *testing.T, s counterstore.Store) {
	t.Helper()
	ctx := context.Background()

	for _, k := range []string{"l1:user_data:1", "l1:user_data:1:meta", "l1:course:2", "l2:user_data:1"} {
		require.NoError(t, s.Set(ctx, k, []byte("x"), time.Minute))
	}

	keys, err := s.Scan(ctx, "l1:*user_data*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"l1:user_data:1", "l1:user_data:1:meta"}, keys)

	keys, err = s.Scan(ctx, "l?:course:*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"l1:course:2"}, keys)

	keys, err = s.Scan(ctx, "nothing*")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestRedisStoreExpiry(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()
	s := counterstore.NewRedisStore(client)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	_, err := s.SlideWindow(ctx, "rate_limit:ip:1:60", now, time.Minute, 5, 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, srv.TTL("rate_limit:ip:1:60"))

	_, err = s.TakeToken(ctx, "token_bucket:ip:1", now, 10, 1, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, srv.TTL("token_bucket:ip:1"))

	_, err = s.Incr(ctx, "violations", time.Hour)
	require.NoError(t, err)
	srv.FastForward(30 * time.Minute)
	_, err = s.Incr(ctx, "violations", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, srv.TTL("violations"), "ttl is set only on creation")

	require.NoError(t, s.Set(ctx, "l1:k", []byte("v"), time.Minute))
	srv.FastForward(time.Minute)
	_, err = s.Get(ctx, "l1:k")
	assert.ErrorIs(t, err, counterstore.ErrNotFound)
}

func TestRedisStoreUnavailable(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr(), MaxRetries: -1})
	defer client.Close()
	s := counterstore.NewRedisStore(client)
	srv.Close()

	_, err := s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, counterstore.ErrStoreUnavailable)

	_, err = s.SlideWindow(context.Background(), "k", time.Now(), time.Minute, 1, time.Minute)
	assert.ErrorIs(t, err, counterstore.ErrStoreUnavailable)
	assert.Error(t, s.Ping(context.Background()))
}

func TestRedisStoreInfo(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	info, err := counterstore.NewRedisStore(client).Info(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, info)
}
