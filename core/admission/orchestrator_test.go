package admission_test

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduplatform/gatekeeper/core/admission"
	"github.com/eduplatform/gatekeeper/pkg/counterstore"
	"github.com/eduplatform/gatekeeper/pkg/ratelimiter"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// blockingStore hangs every call until the context gives up.
type blockingStore struct {
	calls atomic.Int32
}

func (s *blockingStore) wait(ctx context.Context) error {
	s.calls.Add(1)
	<-ctx.Done()
	return counterstore.ErrStoreUnavailable
}

func (s *blockingStore) SlideWindow(ctx context.Context, _ string, _ time.Time, _ time.Duration, _ int, _ time.Duration) (counterstore.WindowResult, error) {
	return counterstore.WindowResult{}, s.wait(ctx)
}

func (s *blockingStore) WindowCount(ctx context.Context, _ string, _ time.Time, _ time.Duration) (int, error) {
	return 0, s.wait(ctx)
}

func (s *blockingStore) TakeToken(ctx context.Context, _ string, _ time.Time, _, _ float64, _ time.Duration) (counterstore.BucketResult, error) {
	return counterstore.BucketResult{}, s.wait(ctx)
}

func (s *blockingStore) Incr(ctx context.Context, _ string, _ time.Duration) (int64, error) {
	return 0, s.wait(ctx)
}

func (s *blockingStore) Get(ctx context.Context, _ string) ([]byte, error) { return nil, s.wait(ctx) }

func (s *blockingStore) Set(ctx context.Context, _ string, _ []byte, _ time.Duration) error {
	return s.wait(ctx)
}

func (s *blockingStore) Delete(ctx context.Context, _ ...string) (int, error) { return 0, s.wait(ctx) }

func (s *blockingStore) Scan(ctx context.Context, _ string) ([]string, error) {
	return nil, s.wait(ctx)
}

func (s *blockingStore) Ping(ctx context.Context) error { return s.wait(ctx) }

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *recordingPublisher) Publish(_ context.Context, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, payload)
	return nil
}

func (p *recordingPublisher) violations() []admission.Violation {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]admission.Violation, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.(admission.Violation))
	}
	return out
}

func newOrchestrator(t *testing.T, store counterstore.Store, cfg admission.Config, clock *testClock, opts ...admission.Option) *admission.Orchestrator {
	t.Helper()
	opts = append([]admission.Option{admission.WithClock(clock.Now)}, opts...)
	o, err := admission.New(store, cfg, opts...)
	require.NoError(t, err)
	return o
}

func anonymous(path string) admission.Request {
	return admission.Request{RemoteAddr: "203.0.113.7:40000", Path: path, Method: "GET"}
}

func TestOrchestrator_AnonymousMinuteLimit(t *testing.T) {
	t.Parallel()

	cfg := admission.DefaultConfig()
	cfg.Bucket.Capacity = 100
	clock := newTestClock()
	pub := &recordingPublisher{}
	store := counterstore.NewMemoryStore()
	monitor := admission.NewMonitor(store, admission.WithPublisher(pub), admission.WithMonitorClock(clock.Now))
	o := newOrchestrator(t, store, cfg, clock, admission.WithMonitor(monitor))
	ctx := context.Background()

	for i := range 20 {
		d := o.Check(ctx, anonymous("/api/courses/"))
		require.True(t, d.Allowed, "request %d", i+1)
		assert.Equal(t, "20", d.Headers.Get("X-RateLimit-Limit-Minute"))
		assert.Equal(t, "100", d.Headers.Get("X-RateLimit-Limit-Hour"))
		assert.Equal(t, "1000", d.Headers.Get("X-RateLimit-Limit-Day"))
		assert.Equal(t, strconv.Itoa(19-i), d.Headers.Get("X-RateLimit-Remaining-Minute"))
		clock.Advance(40 * time.Millisecond)
	}

	d := o.Check(ctx, anonymous("/api/courses/"))
	require.False(t, d.Allowed)
	assert.Equal(t, admission.ReasonMinute, d.Reason)
	assert.Equal(t, 429, d.StatusCode())
	assert.ErrorIs(t, d.Err(), admission.ErrRejected)
	assert.GreaterOrEqual(t, d.RetryAfter, time.Second)
	assert.LessOrEqual(t, d.RetryAfter, time.Minute)
	assert.Equal(t, strconv.Itoa(d.RetryAfterSeconds()), d.Headers.Get("Retry-After"))
	assert.Equal(t, "true", d.Headers.Get("X-RateLimit-Exceeded"))
	assert.Equal(t, "Rate limit exceeded: 20 requests per minute", d.Message)

	body := d.Body()
	assert.Equal(t, "Rate limit exceeded", body.Error)
	assert.Equal(t, d.RetryAfterSeconds(), body.RetryAfter)
	assert.NotEmpty(t, body.Timestamp)

	violations := pub.violations()
	require.Len(t, violations, 1)
	assert.Equal(t, "ip:203.0.113.7", violations[0].Client)
	assert.Equal(t, "minute", violations[0].LimitType)
	assert.Equal(t, "/api/courses/", violations[0].Path)
	assert.Equal(t, admission.TierAnonymous, violations[0].Tier)

	stats := o.Stats()
	assert.Equal(t, int64(20), stats.Allowed)
	assert.Equal(t, int64(1), stats.Rejected[admission.ReasonMinute])
	assert.Zero(t, stats.StoreErrors)

	top, err := monitor.TopViolators(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []admission.Violator{{Client: "ip:203.0.113.7", Violations: 1}}, top)
}

func TestOrchestrator_FailsOpenOnStoreTimeout(t *testing.T) {
	t.Parallel()

	cfg := admission.DefaultConfig()
	cfg.StoreTimeout = 10 * time.Millisecond
	store := &blockingStore{}
	o := newOrchestrator(t, store, cfg, newTestClock())

	start := time.Now()
	d := o.Check(context.Background(), anonymous("/api/ai/chat/"))
	assert.True(t, d.Allowed)
	assert.Less(t, time.Since(start), 2*time.Second)

	// three windows, the bucket and two endpoint windows
	assert.Equal(t, int32(6), store.calls.Load())
	assert.Equal(t, int64(6), o.Stats().StoreErrors)
	assert.Equal(t, "20", d.Headers.Get("X-RateLimit-Remaining-Minute"))
}

func TestOrchestrator_Bypass(t *testing.T) {
	t.Parallel()

	cfg := admission.DefaultConfig()
	cfg.WhitelistIPs = []string{" 10.1.1.1 "}
	cfg.StoreTimeout = 5 * time.Millisecond
	store := &blockingStore{}
	o := newOrchestrator(t, store, cfg, newTestClock())
	ctx := context.Background()

	for _, path := range []string{"/health/", "/metrics/", "/admin/", "/static/app.js", "/media/img.png"} {
		d := o.Check(ctx, anonymous(path))
		assert.True(t, d.Allowed, path)
		assert.True(t, d.Bypassed, path)
	}

	d := o.Check(ctx, admission.Request{ForwardedFor: "10.1.1.1", Path: "/api/ai/"})
	assert.True(t, d.Bypassed, "allow-listed address")

	d = o.Check(ctx, admission.Request{UserID: "9", RemoteAddr: "10.1.1.1:1", Path: "/api/ai/"})
	assert.True(t, d.Bypassed, "allow list applies to authenticated users too")

	assert.Zero(t, store.calls.Load(), "bypass touches no state")
	assert.Equal(t, int64(7), o.Stats().Bypassed)
	assert.Equal(t, []string{" 10.1.1.1 "}, cfg.WhitelistIPs, "caller config is not modified")

	d = o.Check(ctx, anonymous("/admin/users/"))
	assert.False(t, d.Bypassed, "bypass paths match exactly")
}

func TestOrchestrator_EndpointOverride(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	o := newOrchestrator(t, counterstore.NewMemoryStore(), admission.DefaultConfig(), clock)
	ctx := context.Background()

	for i := range 3 {
		d := o.Check(ctx, anonymous("/api/auth/register/"))
		require.True(t, d.Allowed, "request %d", i+1)
	}

	d := o.Check(ctx, anonymous("/api/auth/register/"))
	require.False(t, d.Allowed)
	assert.Equal(t, admission.ReasonEndpoint, d.Reason)
	assert.Contains(t, d.Message, "/api/auth/register/")

	d = o.Check(ctx, anonymous("/api/courses/"))
	assert.True(t, d.Allowed, "other paths keep their own budget")

	d = o.Check(ctx, admission.Request{RemoteAddr: "198.51.100.1:1", Path: "/api/auth/register/"})
	assert.True(t, d.Allowed, "other clients keep their own budget")
}

func TestOrchestrator_CustomEndpointPolicies(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(t, counterstore.NewMemoryStore(), admission.DefaultConfig(), newTestClock(),
		admission.WithEndpointPolicies(
			admission.EndpointPolicy{Prefix: "/api/export/", Hour: 1},
			admission.EndpointPolicy{Prefix: "/api/", Minute: 100},
		))
	ctx := context.Background()

	require.True(t, o.Check(ctx, anonymous("/api/export/csv")).Allowed)
	d := o.Check(ctx, anonymous("/api/export/csv"))
	assert.False(t, d.Allowed)
	assert.Equal(t, "API rate limit exceeded for /api/export/: 1 requests per hour", d.Message)

	assert.True(t, o.Check(ctx, anonymous("/api/ai/")).Allowed, "defaults replaced")
}

func TestOrchestrator_CheckOrder(t *testing.T) {
	t.Parallel()

	cfg := admission.DefaultConfig()
	cfg.AnonMinute = 2
	cfg.Bucket.Capacity = 1
	cfg.Bucket.RefillRate = 0.001
	o := newOrchestrator(t, counterstore.NewMemoryStore(), cfg, newTestClock())
	ctx := context.Background()

	assert.True(t, o.Check(ctx, anonymous("/api/ai/")).Allowed)

	d := o.Check(ctx, anonymous("/api/ai/"))
	assert.Equal(t, admission.ReasonBurst, d.Reason, "windows admit, bucket rejects")
	assert.Equal(t, "Too many requests in short time", d.Message)

	d = o.Check(ctx, anonymous("/api/ai/"))
	assert.Equal(t, admission.ReasonMinute, d.Reason, "windows are checked before the bucket")

	stats := o.Stats()
	assert.Equal(t, int64(1), stats.Rejected[admission.ReasonBurst])
	assert.Equal(t, int64(1), stats.Rejected[admission.ReasonMinute])
}

func TestOrchestrator_TierLimits(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(t, counterstore.NewMemoryStore(), admission.DefaultConfig(), newTestClock())
	d := o.Check(context.Background(), admission.Request{UserID: "5", Premium: true, Path: "/api/courses/"})
	require.True(t, d.Allowed)
	assert.Equal(t, admission.TierPremium, d.Identity.Tier)
	assert.Equal(t, "120", d.Headers.Get("X-RateLimit-Limit-Minute"))
	assert.Equal(t, "119", d.Headers.Get("X-RateLimit-Remaining-Minute"))
}

func TestOrchestrator_AdaptiveLimits(t *testing.T) {
	t.Parallel()

	adjuster, err := ratelimiter.NewLoadAdjuster(ratelimiter.AdaptiveConfig{Threshold: 0.5, LoadFactor: 0.5},
		ratelimiter.WithSaturationSource(func(context.Context) (float64, error) { return 1, nil }),
		ratelimiter.WithHitRatioSource(func(context.Context) (float64, error) { return 0, nil }))
	require.NoError(t, err)

	cfg := admission.DefaultConfig()
	cfg.Bucket.Capacity = 100
	o := newOrchestrator(t, counterstore.NewMemoryStore(), cfg, newTestClock(), admission.WithLoadAdjuster(adjuster))
	ctx := context.Background()

	// 20 * 0.75
	for i := range 15 {
		require.True(t, o.Check(ctx, anonymous("/api/courses/")).Allowed, "request %d", i+1)
	}
	d := o.Check(ctx, anonymous("/api/courses/"))
	assert.False(t, d.Allowed)
	assert.Equal(t, "Rate limit exceeded: 15 requests per minute", d.Message)
}

func TestOrchestrator_HourWindow(t *testing.T) {
	t.Parallel()

	cfg := admission.DefaultConfig()
	cfg.AnonMinute = 100
	cfg.AnonHour = 3
	cfg.Bucket.Capacity = 100
	clock := newTestClock()
	o := newOrchestrator(t, counterstore.NewMemoryStore(), cfg, clock)
	ctx := context.Background()

	for range 3 {
		require.True(t, o.Check(ctx, anonymous("/x")).Allowed)
		clock.Advance(10 * time.Minute)
	}
	d := o.Check(ctx, anonymous("/x"))
	assert.Equal(t, admission.ReasonHour, d.Reason)
	assert.Equal(t, 30*time.Minute, d.RetryAfter)
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := admission.DefaultConfig()
	cfg.AnonMinute = 0
	_, err := admission.New(counterstore.NewMemoryStore(), cfg)
	assert.ErrorIs(t, err, admission.ErrInvalidConfig)
}

func TestDecision_RejectionBody(t *testing.T) {
	t.Parallel()

	cfg := admission.DefaultConfig()
	cfg.AnonMinute = 1
	o := newOrchestrator(t, counterstore.NewMemoryStore(), cfg, newTestClock())
	ctx := context.Background()
	require.True(t, o.Check(ctx, anonymous("/x")).Allowed)
	d := o.Check(ctx, anonymous("/x"))
	require.False(t, d.Allowed)

	assert.Equal(t, http.StatusTooManyRequests, d.StatusCode())
	assert.Equal(t, "60", d.Headers.Get("Retry-After"))
	assert.Equal(t, "true", d.Headers.Get("X-RateLimit-Exceeded"))
	assert.ErrorIs(t, d.Err(), admission.ErrRejected)

	body := d.Body()
	assert.Equal(t, "Rate limit exceeded", body.Error)
	assert.Equal(t, 60, body.RetryAfter)
	assert.Equal(t, "2024-03-01T12:00:00Z", body.Timestamp)
}
