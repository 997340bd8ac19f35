package counterstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eduplatform/gatekeeper/core/logger"
)

// entry is one key of the in-memory store. Counters live in value as decimal text.
type entry struct {
	value     []byte
	window    []time.Time
	tokens    float64
	refilled  time.Time
	expiresAt time.Time // zero means no expiry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry

	// Configuration
	cleanupInterval time.Duration
	shutdownTimeout time.Duration
	clock           func() time.Time
	logger          *slog.Logger

	// State management
	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool
	wg      sync.WaitGroup

	// Observability metrics
	keysCreated atomic.Int64
	keysExpired atomic.Int64
}

// MemoryStoreStats provides observability metrics for monitoring and debugging.
type MemoryStoreStats struct {
	KeysCreated int64 // Total number of keys created
	KeysExpired int64 // Total number of expired keys removed by cleanup
	ActiveKeys  int   // Current number of keys, including not yet collected expired ones
	IsRunning   bool  // Whether the cleanup goroutine is running
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets the interval for removing expired keys.
// Set to 0 to disable automatic cleanup.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(ms *MemoryStore) {
		ms.cleanupInterval = interval
	}
}

// WithMemoryStoreShutdownTimeout sets the graceful shutdown timeout.
func WithMemoryStoreShutdownTimeout(timeout time.Duration) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if timeout > 0 {
			ms.shutdownTimeout = timeout
		}
	}
}

// WithMemoryStoreLogger sets the logger for internal operations.
func WithMemoryStoreLogger(l *slog.Logger) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if l != nil {
			ms.logger = l
		}
	}
}

// WithMemoryStoreClock sets the time source used for key expiry.
func WithMemoryStoreClock(clock func() time.Time) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if clock != nil {
			ms.clock = clock
		}
	}
}

// NewMemoryStore creates a new in-memory store.
// Call Start() to begin background cleanup.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	ms := &MemoryStore{
		entries:         make(map[string]*entry),
		cleanupInterval: 5 * time.Minute,
		shutdownTimeout: 30 * time.Second,
		clock:           time.Now,
		logger:          logger.Discard(),
	}

	for _, opt := range opts {
		opt(ms)
	}

	return ms
}

// live returns the entry for key, dropping it if expired. Caller holds mu.
func (ms *MemoryStore) live(key string) (*entry, bool) {
	e, ok := ms.entries[key]
	if !ok {
		return nil, false
	}
	if e.expired(ms.clock()) {
		delete(ms.entries, key)
		return nil, false
	}
	return e, true
}

// create stores a fresh entry for key. Caller holds mu.
func (ms *MemoryStore) create(key string) *entry {
	e := &entry{}
	ms.entries[key] = e
	ms.keysCreated.Add(1)
	return e
}

func (ms *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return ms.clock().Add(ttl)
}

func (ms *MemoryStore) SlideWindow(ctx context.Context, key string, now time.Time, window time.Duration, limit int, ttl time.Duration) (WindowResult, error) {
	if err := ctx.Err(); err != nil {
		return WindowResult{}, unavailable("slide window", err)
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	e, ok := ms.live(key)
	if !ok {
		e = ms.create(key)
	}

	cutoff := now.Add(-window)
	e.window = slices.DeleteFunc(e.window, func(t time.Time) bool { return !t.After(cutoff) })

	res := WindowResult{Count: len(e.window)}
	if len(e.window) < limit {
		e.window = append(e.window, now)
		sort.Slice(e.window, func(i, j int) bool { return e.window[i].Before(e.window[j]) })
		e.expiresAt = ms.expiry(ttl)
		res.Allowed = true
		res.Count = len(e.window)
	}
	if len(e.window) > 0 {
		res.Oldest = e.window[0]
	}
	return res, nil
}

func (ms *MemoryStore) WindowCount(ctx context.Context, key string, now time.Time, window time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable("window count", err)
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	e, ok := ms.live(key)
	if !ok {
		return 0, nil
	}
	cutoff := now.Add(-window)
	n := 0
	for _, t := range e.window {
		if t.After(cutoff) {
			n++
		}
	}
	return n, nil
}

func (ms *MemoryStore) TakeToken(ctx context.Context, key string, now time.Time, capacity, refillRate float64, ttl time.Duration) (BucketResult, error) {
	if err := ctx.Err(); err != nil {
		return BucketResult{}, unavailable("take token", err)
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	e, ok := ms.live(key)
	if !ok {
		e = ms.create(key)
		e.tokens = capacity
		e.refilled = now
	}

	elapsed := max(now.Sub(e.refilled), 0).Seconds()
	e.tokens = min(capacity, e.tokens+elapsed*refillRate)
	e.refilled = now

	res := BucketResult{}
	if e.tokens >= 1 {
		e.tokens--
		res.Allowed = true
	}
	res.Tokens = e.tokens
	e.expiresAt = ms.expiry(ttl)
	return res, nil
}

func (ms *MemoryStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable("incr", err)
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	e, ok := ms.live(key)
	if !ok {
		e = ms.create(key)
		e.expiresAt = ms.expiry(ttl)
	}

	var n int64
	if len(e.value) > 0 {
		v, err := strconv.ParseInt(string(e.value), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: incr on non-integer value: %w", ErrUnexpectedReply, err)
		}
		n = v
	}
	n++
	e.value = strconv.AppendInt(e.value[:0], n, 10)
	return n, nil
}

func (ms *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("get", err)
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	e, ok := ms.live(key)
	if !ok || e.value == nil {
		return nil, ErrNotFound
	}
	return slices.Clone(e.value), nil
}

func (ms *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return unavailable("set", err)
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	e, ok := ms.entries[key]
	if !ok {
		e = ms.create(key)
	}
	*e = entry{value: slices.Clone(value), expiresAt: ms.expiry(ttl)}
	if e.value == nil {
		e.value = []byte{}
	}
	return nil
}

func (ms *MemoryStore) Delete(ctx context.Context, keys ...string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable("delete", err)
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	n := 0
	for _, k := range keys {
		if _, ok := ms.live(k); ok {
			delete(ms.entries, k)
			n++
		}
	}
	return n, nil
}

func (ms *MemoryStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("scan", err)
	}

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	now := ms.clock()
	var keys []string
	for k, e := range ms.entries {
		if !e.expired(now) && globMatch(pattern, k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (ms *MemoryStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Info reports key counts in the same field names Redis uses.
func (ms *MemoryStore) Info(ctx context.Context) (map[string]string, error) {
	stats := ms.Stats()
	return map[string]string{
		"redis_mode":   "memory",
		"db0_keys":     fmt.Sprint(stats.ActiveKeys),
		"expired_keys": fmt.Sprint(stats.KeysExpired),
	}, nil
}

// Start begins the background cleanup goroutine. This is a blocking operation
// that runs until the context is cancelled. Use Run() for errgroup pattern or call this in a goroutine.
func (ms *MemoryStore) Start(ctx context.Context) error {
	ms.mu.Lock()
	if ms.cancel != nil {
		ms.mu.Unlock()
		return fmt.Errorf("memory store already started")
	}

	if ms.cleanupInterval <= 0 {
		ms.mu.Unlock()
		return fmt.Errorf("cleanup interval must be > 0, got %v (use WithCleanupInterval to configure)", ms.cleanupInterval)
	}

	ms.ctx, ms.cancel = context.WithCancel(ctx)
	runCtx := ms.ctx
	ms.mu.Unlock()

	ms.running.Store(true)
	defer ms.running.Store(false)

	ms.logger.InfoContext(runCtx, "memory store cleanup started",
		slog.Duration("cleanup_interval", ms.cleanupInterval))

	ticker := time.NewTicker(ms.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-runCtx.Done():
			ms.logger.InfoContext(context.Background(), "memory store cleanup stopping")
			return runCtx.Err()
		case <-ticker.C:
			ms.cleanupWithWait()
		}
	}
}

// Stop gracefully shuts down the background cleanup with a timeout.
func (ms *MemoryStore) Stop() error {
	ms.mu.Lock()
	if ms.cancel == nil {
		ms.mu.Unlock()
		return fmt.Errorf("memory store not started")
	}

	cancel := ms.cancel
	ms.cancel = nil
	ms.mu.Unlock()

	cancel()

	ctx, ctxCancel := context.WithTimeout(context.Background(), ms.shutdownTimeout)
	defer ctxCancel()

	done := make(chan struct{})
	go func() {
		ms.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		ms.logger.InfoContext(context.Background(), "memory store stopped cleanly")
		return nil
	case <-ctx.Done():
		ms.logger.WarnContext(context.Background(), "memory store shutdown timeout exceeded",
			slog.Duration("timeout", ms.shutdownTimeout))
		return fmt.Errorf("shutdown timeout exceeded after %s", ms.shutdownTimeout)
	}
}

// Run provides errgroup compatibility for coordinated lifecycle management.
func (ms *MemoryStore) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- ms.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = ms.Stop()
			<-errCh
			return nil
		case err := <-errCh:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

func (ms *MemoryStore) cleanupWithWait() {
	ms.mu.RLock()
	if ms.cancel == nil {
		ms.mu.RUnlock()
		return
	}
	ms.wg.Add(1)
	ms.mu.RUnlock()

	defer ms.wg.Done()
	ms.removeExpired()
}

// removeExpired drops every key whose TTL has passed.
func (ms *MemoryStore) removeExpired() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.clock()
	removed := 0
	for key, e := range ms.entries {
		if e.expired(now) {
			delete(ms.entries, key)
			removed++
		}
	}

	if removed > 0 {
		ms.keysExpired.Add(int64(removed))
	}
	return removed
}

// Stats returns current memory store statistics.
func (ms *MemoryStore) Stats() MemoryStoreStats {
	ms.mu.RLock()
	isRunning := ms.cancel != nil
	active := len(ms.entries)
	ms.mu.RUnlock()

	return MemoryStoreStats{
		KeysCreated: ms.keysCreated.Load(),
		KeysExpired: ms.keysExpired.Load(),
		ActiveKeys:  active,
		IsRunning:   isRunning,
	}
}

// Healthcheck reports an error when cleanup is configured but not running.
func (ms *MemoryStore) Healthcheck(ctx context.Context) error {
	if ms.cleanupInterval > 0 && !ms.Stats().IsRunning {
		return fmt.Errorf("cleanup is configured but not running")
	}
	return nil
}

// globMatch implements the subset of Redis glob syntax used by callers: * and ?.
func globMatch(pattern, s string) bool {
	px, sx := 0, 0
	starPx, starSx := -1, 0
	for sx < len(s) {
		switch {
		case px < len(pattern) && (pattern[px] == '?' || pattern[px] == s[sx]):
			px++
			sx++
		case px < len(pattern) && pattern[px] == '*':
			starPx, starSx = px, sx
			px++
		case starPx >= 0:
			px = starPx + 1
			starSx++
			sx = starSx
		default:
			return false
		}
	}
	for px < len(pattern) && pattern[px] == '*' {
		px++
	}
	return px == len(pattern)
}
