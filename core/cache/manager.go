package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/eduplatform/gatekeeper/core/logger"
	"github.com/eduplatform/gatekeeper/pkg/counterstore"
)

// Manager is a four-tier cache over a counterstore.Store.
//
// All operations are fail-soft: store or serialization errors are logged,
// counted, and reported as a miss (Get) or false (Set, Delete). Callers
// never see a cache error.
type Manager struct {
	store  counterstore.Store
	config Config
	logger *slog.Logger
	clock  func() time.Time

	hits         atomic.Int64
	misses       atomic.Int64
	compressions atomic.Int64
	errors       atomic.Int64
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the time source used for entry metadata.
func WithClock(clock func() time.Time) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewManager creates a Manager.
func NewManager(store counterstore.Store, config Config, opts ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, errors.New("cache: store is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		store:  store,
		config: config,
		logger: logger.Discard(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Option adjusts a single Get or Set.
type Option func(*opOptions)

type opOptions struct {
	level Level
	ttl   time.Duration
}

// WithLevel selects the tier. The default is L2.
func WithLevel(l Level) Option {
	return func(o *opOptions) {
		if l.Valid() {
			o.level = l
		}
	}
}

// WithTTL overrides the tier expiry for a Set.
func WithTTL(d time.Duration) Option {
	return func(o *opOptions) {
		if d > 0 {
			o.ttl = d
		}
	}
}

func (m *Manager) resolve(opts []Option) opOptions {
	o := opOptions{level: L2}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ttl <= 0 {
		o.ttl = m.config.TTL(o.level)
	}
	return o
}

// Meta is the sidecar record written next to every entry.
type Meta struct {
	CreatedAt  time.Time `json:"created_at"`
	Size       int       `json:"size"`
	Compressed bool      `json:"compressed"`
	Level      Level     `json:"level"`
}

// Get loads key into dst, a non-nil pointer, and reports whether it was found.
// A miss at L1 or L2 falls back to L3 then L4; a value found there is
// promoted to the requested tier.
func (m *Manager) Get(ctx context.Context, key string, dst any, opts ...Option) bool {
	o := m.resolve(opts)

	payload, ok := m.load(ctx, StoreKey(o.level, key))
	if ok {
		if m.decodeInto(key, o.level, payload, dst) {
			m.hits.Add(1)
			return true
		}
		m.misses.Add(1)
		return false
	}

	for _, l := range o.level.fallbacks() {
		payload, ok := m.load(ctx, StoreKey(l, key))
		if !ok {
			continue
		}
		if !m.decodeInto(key, l, payload, dst) {
			continue
		}
		m.write(ctx, key, o.level, m.config.TTL(o.level), payload, payload[0] == frameCompressed)
		m.hits.Add(1)
		m.logger.DebugContext(ctx, "cache entry promoted",
			logger.CacheKey(key),
			slog.String("from", l.String()),
			slog.String("to", o.level.String()))
		return true
	}

	m.misses.Add(1)
	return false
}

// Set stores value at the selected tier and reports success.
// Values larger than MaxEntrySize after encoding are refused.
func (m *Manager) Set(ctx context.Context, key string, value any, opts ...Option) bool {
	o := m.resolve(opts)

	payload, compressed, err := encode(value, m.config.CompressionThreshold)
	if err != nil {
		m.errors.Add(1)
		m.logger.ErrorContext(ctx, "cache encode failed", logger.CacheKey(key), logger.Error(err))
		return false
	}
	if len(payload) > m.config.MaxEntrySize {
		m.logger.WarnContext(ctx, "cache entry too large",
			logger.CacheKey(key),
			logger.Size(len(payload)),
			logger.Error(ErrOversizeEntry))
		return false
	}
	if compressed {
		m.compressions.Add(1)
	}
	return m.write(ctx, key, o.level, o.ttl, payload, compressed)
}

func (m *Manager) write(ctx context.Context, key string, level Level, ttl time.Duration, payload []byte, compressed bool) bool {
	storeKey := StoreKey(level, key)

	ctx, cancel := context.WithTimeout(ctx, m.config.OpTimeout)
	defer cancel()

	if err := m.store.Set(ctx, storeKey, payload, ttl); err != nil {
		m.storeError(ctx, "set", key, err)
		return false
	}

	meta, err := json.Marshal(Meta{
		CreatedAt:  m.clock().UTC(),
		Size:       len(payload),
		Compressed: compressed,
		Level:      level,
	})
	if err == nil {
		err = m.store.Set(ctx, metaKey(storeKey), meta, ttl)
	}
	if err != nil {
		m.storeError(ctx, "set meta", key, err)
	}
	return true
}

// Delete removes key with its metadata from L2, or from every tier when
// allLevels is set. It reports whether anything was removed.
func (m *Manager) Delete(ctx context.Context, key string, allLevels bool) bool {
	levels := []Level{L2}
	if allLevels {
		levels = Levels
	}

	keys := make([]string, 0, len(levels))
	metas := make([]string, 0, len(levels))
	for _, l := range levels {
		k := StoreKey(l, key)
		keys = append(keys, k)
		metas = append(metas, metaKey(k))
	}

	ctx, cancel := context.WithTimeout(ctx, m.config.OpTimeout)
	defer cancel()

	n, err := m.store.Delete(ctx, keys...)
	if err != nil {
		m.storeError(ctx, "delete", key, err)
		return false
	}
	if _, err := m.store.Delete(ctx, metas...); err != nil {
		m.storeError(ctx, "delete meta", key, err)
	}
	return n > 0
}

// InvalidatePattern deletes every entry whose key contains pattern, in the
// given tiers or in all tiers when none are given. It returns the number of
// entries removed, metadata not included.
func (m *Manager) InvalidatePattern(ctx context.Context, pattern string, levels ...Level) int {
	return m.invalidate(ctx, pattern, nil, levels)
}

// InvalidateSegment is InvalidatePattern restricted to keys holding segment
// as whole ":"-separated parts, so "user_4" drops "dashboard:user_4" and
// "user_4:plan" but leaves "dashboard:user_42" alone.
func (m *Manager) InvalidateSegment(ctx context.Context, segment string, levels ...Level) int {
	return m.invalidate(ctx, segment, func(key string) bool { return hasSegment(key, segment) }, levels)
}

func (m *Manager) invalidate(ctx context.Context, pattern string, match func(string) bool, levels []Level) int {
	if len(levels) == 0 {
		levels = Levels
	}

	total := 0
	for _, l := range levels {
		n, err := m.invalidateLevel(ctx, l, pattern, match)
		if err != nil {
			m.storeError(ctx, "invalidate", pattern, err)
			continue
		}
		total += n
	}

	if total > 0 {
		m.logger.InfoContext(ctx, "cache entries invalidated",
			logger.Key("pattern", pattern),
			logger.Count("count", total))
	}
	return total
}

func (m *Manager) invalidateLevel(ctx context.Context, l Level, pattern string, match func(string) bool) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, m.config.OpTimeout)
	defer cancel()

	found, err := m.store.Scan(ctx, l.Prefix()+":*"+pattern+"*")
	if err != nil {
		return 0, err
	}

	entries := make([]string, 0, len(found))
	metas := make([]string, 0, len(found))
	for _, k := range found {
		if match != nil && !match(k) {
			continue
		}
		if strings.HasSuffix(k, ":meta") {
			metas = append(metas, k)
			continue
		}
		entries = append(entries, k)
		metas = append(metas, metaKey(k))
	}
	if len(entries) == 0 && len(metas) == 0 {
		return 0, nil
	}

	n := 0
	if len(entries) > 0 {
		if n, err = m.store.Delete(ctx, entries...); err != nil {
			return 0, err
		}
	}
	if _, err := m.store.Delete(ctx, metas...); err != nil {
		return n, err
	}
	return n, nil
}

// hasSegment reports whether seg occurs in key bounded by ':' or the key ends.
// Store keys always start with a level prefix, so a leading segment is
// preceded by ':' as well.
func hasSegment(key, seg string) bool {
	if seg == "" {
		return false
	}
	for i := 0; ; {
		j := strings.Index(key[i:], seg)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(seg)
		if start > 0 && key[start-1] == ':' && (end == len(key) || key[end] == ':') {
			return true
		}
		i = start + 1
	}
}

// HitRatio returns hits/(hits+misses), or 1 before any lookup.
func (m *Manager) HitRatio() float64 {
	hits, misses := m.hits.Load(), m.misses.Load()
	if hits+misses == 0 {
		return 1
	}
	return float64(hits) / float64(hits+misses)
}

// Stats holds the cache counters.
type Stats struct {
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
	Compressions int64   `json:"compressions"`
	Errors       int64   `json:"errors"`
	HitRatio     float64 `json:"hit_ratio"`
}

// Stats returns the current counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Hits:         m.hits.Load(),
		Misses:       m.misses.Load(),
		Compressions: m.compressions.Load(),
		Errors:       m.errors.Load(),
		HitRatio:     m.HitRatio(),
	}
}

// Healthcheck pings the store.
func (m *Manager) Healthcheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.config.OpTimeout)
	defer cancel()
	return m.store.Ping(ctx)
}

func (m *Manager) load(ctx context.Context, storeKey string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, m.config.OpTimeout)
	defer cancel()

	payload, err := m.store.Get(ctx, storeKey)
	switch {
	case err == nil:
		return payload, len(payload) > 0
	case errors.Is(err, counterstore.ErrNotFound):
		return nil, false
	default:
		m.storeError(ctx, "get", storeKey, err)
		return nil, false
	}
}

func (m *Manager) decodeInto(key string, l Level, payload []byte, dst any) bool {
	if err := decode(payload, dst); err != nil {
		m.errors.Add(1)
		m.logger.Error("cache decode failed",
			logger.CacheKey(key),
			logger.CacheLevel(l.String()),
			logger.Error(err))
		return false
	}
	return true
}

func (m *Manager) storeError(ctx context.Context, op, key string, err error) {
	m.errors.Add(1)
	m.logger.WarnContext(ctx, "cache store error",
		logger.Action(op),
		logger.CacheKey(key),
		logger.Error(err))
}
