package admission

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eduplatform/gatekeeper/core/logger"
	"github.com/eduplatform/gatekeeper/pkg/counterstore"
)

const violationsPrefix = "rate_limit_violations:"

// Violation is published whenever a request is rejected.
type Violation struct {
	ID         string    `json:"id"`
	Client     string    `json:"client"`
	LimitType  string    `json:"limit_type"`
	Reason     Reason    `json:"reason"`
	Path       string    `json:"path"`
	Method     string    `json:"method"`
	Tier       Tier      `json:"tier"`
	RetryAfter int       `json:"retry_after"`
	Timestamp  time.Time `json:"timestamp"`
}

// Violator is one entry of the top violators report.
type Violator struct {
	Client     string `json:"client"`
	Violations int64  `json:"violations"`
}

// Publisher delivers violation events to an external sink.
type Publisher interface {
	Publish(ctx context.Context, payload any) error
}

// Monitor counts violations per client and day and forwards them as events.
type Monitor struct {
	store     counterstore.Store
	publisher Publisher
	logger    *slog.Logger
	clock     func() time.Time
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithPublisher forwards every violation to p.
func WithPublisher(p Publisher) MonitorOption {
	return func(m *Monitor) {
		m.publisher = p
	}
}

// WithMonitorLogger sets the logger.
func WithMonitorLogger(l *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMonitorClock overrides the time source.
func WithMonitorClock(clock func() time.Time) MonitorOption {
	return func(m *Monitor) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewMonitor creates a violation monitor over store.
func NewMonitor(store counterstore.Store, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		store:  store,
		logger: logger.Discard(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func violationsKey(day time.Time, client string) string {
	return violationsPrefix + day.UTC().Format("20060102") + ":" + client
}

// Record logs v, bumps the client's daily counter and publishes v.
// Failures are logged and never returned: monitoring must not affect admission.
func (m *Monitor) Record(ctx context.Context, v Violation) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.Timestamp.IsZero() {
		v.Timestamp = m.clock()
	}

	m.logger.WarnContext(ctx, "rate limit violation",
		logger.ClientKey(v.Client),
		logger.LimitType(v.LimitType),
		logger.Path(v.Path),
		logger.Method(v.Method),
		logger.Tier(string(v.Tier)),
		logger.RetryAfter(time.Duration(v.RetryAfter)*time.Second))

	if _, err := m.store.Incr(ctx, violationsKey(v.Timestamp, v.Client), 24*time.Hour); err != nil {
		m.logger.WarnContext(ctx, "failed to count violation", logger.ClientKey(v.Client), logger.Error(err))
	}

	if m.publisher != nil {
		if err := m.publisher.Publish(ctx, v); err != nil {
			m.logger.WarnContext(ctx, "failed to publish violation", logger.ClientKey(v.Client), logger.Error(err))
		}
	}
}

// TopViolators sums violations over the last days (today included) and
// returns the n clients with the most violations, highest first.
func (m *Monitor) TopViolators(ctx context.Context, days, n int) ([]Violator, error) {
	if days < 1 {
		days = 1
	}
	if n < 1 {
		n = 10
	}

	totals := make(map[string]int64)
	now := m.clock()
	for offset := range days {
		day := now.AddDate(0, 0, -offset).UTC().Format("20060102")
		prefix := violationsPrefix + day + ":"

		keys, err := m.store.Scan(ctx, prefix+"*")
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			raw, err := m.store.Get(ctx, key)
			if err != nil {
				continue
			}
			count, err := strconv.ParseInt(string(raw), 10, 64)
			if err != nil {
				continue
			}
			totals[strings.TrimPrefix(key, prefix)] += count
		}
	}

	out := make([]Violator, 0, len(totals))
	for client, count := range totals {
		out = append(out, Violator{Client: client, Violations: count})
	}
	slices.SortFunc(out, func(a, b Violator) int {
		if c := cmp.Compare(b.Violations, a.Violations); c != 0 {
			return c
		}
		return cmp.Compare(a.Client, b.Client)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}
