package admission

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eduplatform/gatekeeper/core/logger"
	"github.com/eduplatform/gatekeeper/pkg/counterstore"
	"github.com/eduplatform/gatekeeper/pkg/ratelimiter"
)

var windows = [...]struct {
	name   string
	window time.Duration
	reason Reason
	unit   string
}{
	{"minute", time.Minute, ReasonMinute, "minute"},
	{"hour", time.Hour, ReasonHour, "hour"},
	{"day", 24 * time.Hour, ReasonDay, "day"},
}

// Orchestrator decides whether a request is admitted. It evaluates the
// minute, hour and day windows, then the token bucket, then any endpoint
// override, and rejects on the first failing check.
//
// Every store round trip runs under its own timeout. A failing or slow
// store never rejects a request: the check is skipped (fail open), the
// error counter is incremented and a warning is logged.
type Orchestrator struct {
	config    Config
	endpoints []EndpointPolicy
	window    *ratelimiter.SlidingWindow
	bucket    *ratelimiter.Bucket
	adjuster  *ratelimiter.LoadAdjuster
	monitor   *Monitor
	logger    *slog.Logger
	clock     func() time.Time

	allowed     atomic.Int64
	bypassed    atomic.Int64
	storeErrors atomic.Int64
	mu          sync.Mutex
	rejected    map[Reason]int64
}

// Option configures an Orchestrator.
type Option func(*orchestratorOptions)

type orchestratorOptions struct {
	adjuster  *ratelimiter.LoadAdjuster
	monitor   *Monitor
	logger    *slog.Logger
	clock     func() time.Time
	endpoints []EndpointPolicy
}

// WithLoadAdjuster replaces the adjuster built from Config.Adaptive.
func WithLoadAdjuster(a *ratelimiter.LoadAdjuster) Option {
	return func(o *orchestratorOptions) {
		o.adjuster = a
	}
}

// WithMonitor records every rejection with m.
func WithMonitor(m *Monitor) Option {
	return func(o *orchestratorOptions) {
		o.monitor = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *orchestratorOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the time source of the orchestrator and its limiters.
func WithClock(clock func() time.Time) Option {
	return func(o *orchestratorOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithEndpointPolicies replaces the endpoint overrides from Config.
// Policies are matched in order; the first matching prefix wins.
func WithEndpointPolicies(policies ...EndpointPolicy) Option {
	return func(o *orchestratorOptions) {
		o.endpoints = policies
	}
}

// New creates an Orchestrator over store.
func New(store counterstore.Store, config Config, opts ...Option) (*Orchestrator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	o := orchestratorOptions{
		logger:    logger.Discard(),
		clock:     time.Now,
		endpoints: config.Endpoints(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.adjuster == nil {
		a, err := ratelimiter.NewLoadAdjuster(config.Adaptive, ratelimiter.WithAdjusterLogger(o.logger))
		if err != nil {
			return nil, err
		}
		o.adjuster = a
	}

	bucket, err := ratelimiter.NewBucket(store, config.Bucket, ratelimiter.WithClock(o.clock))
	if err != nil {
		return nil, err
	}

	whitelist := make([]string, 0, len(config.WhitelistIPs))
	for _, ip := range config.WhitelistIPs {
		if ip = strings.TrimSpace(ip); ip != "" {
			whitelist = append(whitelist, ip)
		}
	}
	config.WhitelistIPs = whitelist

	return &Orchestrator{
		config:    config,
		endpoints: o.endpoints,
		window:    ratelimiter.NewSlidingWindow(store, ratelimiter.WithClock(o.clock)),
		bucket:    bucket,
		adjuster:  o.adjuster,
		monitor:   o.monitor,
		logger:    o.logger,
		clock:     o.clock,
		rejected:  make(map[Reason]int64),
	}, nil
}

// Check evaluates r and returns the admission decision. It never fails:
// store problems degrade to admission.
func (o *Orchestrator) Check(ctx context.Context, r Request) Decision {
	id := Identify(r)
	now := o.clock()

	if o.config.bypass(r.Path, id.Address) {
		o.bypassed.Add(1)
		return Decision{Allowed: true, Bypassed: true, Identity: id, Timestamp: now}
	}

	base := o.config.TierLimits(id.Tier)
	limits := o.adjust(ctx, base)

	remainingMinute := base.Minute
	for _, w := range windows {
		limit := limits[w.name]
		var res *ratelimiter.Result
		err := o.roundTrip(ctx, func(ctx context.Context) (err error) {
			res, err = o.window.Check(ctx, id.Key, w.window, limit)
			return err
		})
		if err != nil {
			o.degraded(ctx, "window", id, err)
			continue
		}
		if !res.Allowed() {
			msg := fmt.Sprintf("Rate limit exceeded: %d requests per %s", limit, w.unit)
			return o.reject(ctx, r, id, w.reason, msg, res.RetryAfter(), now)
		}
		if w.name == "minute" {
			used := res.Limit - res.Remaining
			remainingMinute = base.Minute - used
		}
	}

	var burst *ratelimiter.Result
	err := o.roundTrip(ctx, func(ctx context.Context) (err error) {
		burst, err = o.bucket.Check(ctx, id.Key)
		return err
	})
	switch {
	case err != nil:
		o.degraded(ctx, "burst", id, err)
	case !burst.Allowed():
		return o.reject(ctx, r, id, ReasonBurst, "Too many requests in short time", burst.RetryAfter(), now)
	}

	if p, ok := o.endpoint(r.Path); ok {
		if d, rejected := o.checkEndpoint(ctx, r, id, p, now); rejected {
			return d
		}
	}

	o.allowed.Add(1)
	return Decision{
		Allowed:   true,
		Identity:  id,
		Headers:   admittedHeaders(base, remainingMinute, now),
		Timestamp: now,
	}
}

func (o *Orchestrator) checkEndpoint(ctx context.Context, r Request, id Identity, p EndpointPolicy, now time.Time) (Decision, bool) {
	client := id.Key + ":api:" + p.Prefix
	checks := []struct {
		limit  int
		window time.Duration
		unit   string
	}{
		{p.Minute, time.Minute, "minute"},
		{p.Hour, time.Hour, "hour"},
	}

	for _, c := range checks {
		if c.limit <= 0 {
			continue
		}
		var res *ratelimiter.Result
		err := o.roundTrip(ctx, func(ctx context.Context) (err error) {
			res, err = o.window.Check(ctx, client, c.window, c.limit)
			return err
		})
		if err != nil {
			o.degraded(ctx, "endpoint", id, err)
			continue
		}
		if !res.Allowed() {
			msg := fmt.Sprintf("API rate limit exceeded for %s: %d requests per %s", p.Prefix, c.limit, c.unit)
			return o.reject(ctx, r, id, ReasonEndpoint, msg, res.RetryAfter(), now), true
		}
	}
	return Decision{}, false
}

func (o *Orchestrator) endpoint(path string) (EndpointPolicy, bool) {
	for _, p := range o.endpoints {
		if strings.HasPrefix(path, p.Prefix) {
			return p, true
		}
	}
	return EndpointPolicy{}, false
}

func (o *Orchestrator) adjust(ctx context.Context, base TierLimits) ratelimiter.Limits {
	ctx, cancel := context.WithTimeout(ctx, o.config.StoreTimeout)
	defer cancel()
	return o.adjuster.Adjust(ctx, base.limits())
}

func (o *Orchestrator) roundTrip(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, o.config.StoreTimeout)
	defer cancel()
	return fn(ctx)
}

func (o *Orchestrator) degraded(ctx context.Context, check string, id Identity, err error) {
	o.storeErrors.Add(1)
	o.logger.WarnContext(ctx, "admission check skipped, failing open",
		logger.Component("admission"),
		slog.String("check", check),
		logger.ClientKey(id.Key),
		logger.Error(err))
}

func (o *Orchestrator) reject(ctx context.Context, r Request, id Identity, reason Reason, msg string, retryAfter time.Duration, now time.Time) Decision {
	retryAfter = max(retryAfter, time.Second)

	o.mu.Lock()
	o.rejected[reason]++
	o.mu.Unlock()

	if o.monitor != nil {
		mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.config.StoreTimeout)
		o.monitor.Record(mctx, Violation{
			Client:     id.Key,
			LimitType:  reason.LimitType(),
			Reason:     reason,
			Path:       r.Path,
			Method:     r.Method,
			Tier:       id.Tier,
			RetryAfter: int(retryAfter / time.Second),
			Timestamp:  now,
		})
		cancel()
	}

	return Decision{
		Identity:   id,
		Reason:     reason,
		Message:    msg,
		RetryAfter: retryAfter,
		Headers:    rejectedHeaders(retryAfter),
		Timestamp:  now,
	}
}

// Stats is a snapshot of process-local admission counters.
type Stats struct {
	Allowed     int64            `json:"requests_allowed"`
	Bypassed    int64            `json:"requests_bypassed"`
	StoreErrors int64            `json:"store_errors"`
	Rejected    map[Reason]int64 `json:"rejected"`
}

// Stats returns the current counters.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	rejected := make(map[Reason]int64, len(o.rejected))
	for k, v := range o.rejected {
		rejected[k] = v
	}
	o.mu.Unlock()

	return Stats{
		Allowed:     o.allowed.Load(),
		Bypassed:    o.bypassed.Load(),
		StoreErrors: o.storeErrors.Load(),
		Rejected:    rejected,
	}
}
