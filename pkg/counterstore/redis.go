package counterstore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var slideWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]
local ttl = tonumber(ARGV[5])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)

local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, member)
  redis.call('PEXPIRE', key, ttl)
  count = count + 1
  allowed = 1
end

local oldest = -1
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if #first >= 2 then
  oldest = tonumber(first[2])
end

return {allowed, count, oldest}
`)

var takeTokenScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local rate = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'last_refill')
local tokens = tonumber(state[1])
local last = tonumber(state[2])
if tokens == nil or last == nil then
  tokens = capacity
  last = now
end

local elapsed = math.max(0, now - last) / 1000
tokens = math.min(capacity, tokens + elapsed * rate)

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call('HSET', key, 'tokens', tostring(tokens), 'last_refill', tostring(now))
redis.call('PEXPIRE', key, ttl)

return {allowed, tostring(tokens)}
`)

var incrScript = redis.NewScript(`
local v = redis.call('INCR', KEYS[1])
if v == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return v
`)

// RedisStore implements Store on a shared Redis server.
type RedisStore struct {
	client    redis.UniversalClient
	scanBatch int64
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithScanBatchSize sets the COUNT hint used by Scan.
func WithScanBatchSize(n int64) RedisStoreOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.scanBatch = n
		}
	}
}

// NewRedisStore wraps an existing client. The caller owns the client lifecycle.
func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{client: client, scanBatch: 1000}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) SlideWindow(ctx context.Context, key string, now time.Time, window time.Duration, limit int, ttl time.Duration) (WindowResult, error) {
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()
	res, err := slideWindowScript.Run(ctx, s.client, []string{key},
		now.UnixMilli(), window.Milliseconds(), limit, member, ttl.Milliseconds(),
	).Slice()
	if err != nil {
		return WindowResult{}, unavailable("slide window", err)
	}
	if len(res) != 3 {
		return WindowResult{}, fmt.Errorf("%w: slide window returned %d values", ErrUnexpectedReply, len(res))
	}

	allowed, err1 := asInt64(res[0])
	count, err2 := asInt64(res[1])
	oldest, err3 := asInt64(res[2])
	if err := errors.Join(err1, err2, err3); err != nil {
		return WindowResult{}, err
	}

	out := WindowResult{Allowed: allowed == 1, Count: int(count)}
	if oldest >= 0 {
		out.Oldest = time.UnixMilli(oldest)
	}
	return out, nil
}

func (s *RedisStore) WindowCount(ctx context.Context, key string, now time.Time, window time.Duration) (int, error) {
	from := "(" + strconv.FormatInt(now.Add(-window).UnixMilli(), 10)
	n, err := s.client.ZCount(ctx, key, from, "+inf").Result()
	if err != nil {
		return 0, unavailable("window count", err)
	}
	return int(n), nil
}

func (s *RedisStore) TakeToken(ctx context.Context, key string, now time.Time, capacity, refillRate float64, ttl time.Duration) (BucketResult, error) {
	res, err := takeTokenScript.Run(ctx, s.client, []string{key},
		now.UnixMilli(), capacity, refillRate, ttl.Milliseconds(),
	).Slice()
	if err != nil {
		return BucketResult{}, unavailable("take token", err)
	}
	if len(res) != 2 {
		return BucketResult{}, fmt.Errorf("%w: take token returned %d values", ErrUnexpectedReply, len(res))
	}

	allowed, err := asInt64(res[0])
	if err != nil {
		return BucketResult{}, err
	}
	tokens, err := asFloat64(res[1])
	if err != nil {
		return BucketResult{}, err
	}
	return BucketResult{Allowed: allowed == 1, Tokens: tokens}, nil
}

func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := incrScript.Run(ctx, s.client, []string{key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, unavailable("incr", err)
	}
	return n, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get", err)
	}
	return b, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable("set", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, unavailable("delete", err)
	}
	return int(n), nil
}

func (s *RedisStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, s.scanBatch).Result()
		if err != nil {
			return nil, unavailable("scan", err)
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Info returns the flattened INFO reply (field -> value).
func (s *RedisStore) Info(ctx context.Context) (map[string]string, error) {
	raw, err := s.client.Info(ctx).Result()
	if err != nil {
		return nil, unavailable("info", err)
	}
	return parseInfo(raw), nil
}

func parseInfo(raw string) map[string]string {
	out := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(raw))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, ":"); ok {
			out[k] = v
		}
	}
	return out
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

func asInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: parse int %q: %w", ErrUnexpectedReply, x, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: unsupported numeric type %T", ErrUnexpectedReply, v)
	}
}

func asFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case int64:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: parse float %q: %w", ErrUnexpectedReply, x, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: unsupported numeric type %T", ErrUnexpectedReply, v)
	}
}
