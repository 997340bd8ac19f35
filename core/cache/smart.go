package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/eduplatform/gatekeeper/core/logger"
)

const (
	defaultWrapTTL    = 5 * time.Minute
	invalidatePrefix  = "invalidate"
	maxTTLScaleFactor = 3
)

// WrapOption configures Wrap.
type WrapOption func(*wrapSettings)

type wrapSettings struct {
	prefix   string
	level    Level
	ttl      time.Duration
	vary     func(any) []string
	triggers []string
}

// WithKeyPrefix sets the leading key segment. The default is "smart_cache".
func WithKeyPrefix(prefix string) WrapOption {
	return func(s *wrapSettings) {
		s.prefix = prefix
	}
}

// WithWrapLevel sets the tier results are cached in. The default is L2.
func WithWrapLevel(l Level) WrapOption {
	return func(s *wrapSettings) {
		if l.Valid() {
			s.level = l
		}
	}
}

// WithBaseTTL sets the expiry before scaling by execution time.
func WithBaseTTL(d time.Duration) WrapOption {
	return func(s *wrapSettings) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithVaryOn adds key segments derived from the call argument, typically
// "name:value" pairs. Order is preserved.
func WithVaryOn[A any](fn func(A) []string) WrapOption {
	return func(s *wrapSettings) {
		s.vary = func(arg any) []string {
			if a, ok := arg.(A); ok {
				return fn(a)
			}
			return nil
		}
	}
}

// WithInvalidateOn registers the cached result under the named triggers so
// that Manager.InvalidateTrigger can drop it.
func WithInvalidateOn(triggers ...string) WrapOption {
	return func(s *wrapSettings) {
		s.triggers = append(s.triggers, triggers...)
	}
}

// ScaledTTL stretches base by the time the computation took:
// base*(1+seconds), capped at three times base.
func ScaledTTL(base, elapsed time.Duration) time.Duration {
	scaled := time.Duration(float64(base) * (1 + elapsed.Seconds()))
	if limit := base * maxTTLScaleFactor; scaled > limit {
		return limit
	}
	return scaled
}

// Wrap returns fn with its results cached in m under
// prefix:name[:vary...]. Errors are returned and never cached. Slow
// computations are kept longer, see ScaledTTL.
func Wrap[A, R any](m *Manager, name string, fn func(context.Context, A) (R, error), opts ...WrapOption) func(context.Context, A) (R, error) {
	s := wrapSettings{
		prefix: "smart_cache",
		level:  L2,
		ttl:    defaultWrapTTL,
	}
	for _, opt := range opts {
		opt(&s)
	}

	return func(ctx context.Context, arg A) (R, error) {
		key := s.key(name, arg)

		var cached R
		if m.Get(ctx, key, &cached, WithLevel(s.level)) {
			return cached, nil
		}

		start := time.Now()
		result, err := fn(ctx, arg)
		if err != nil {
			return result, err
		}
		elapsed := time.Since(start)

		ttl := ScaledTTL(s.ttl, elapsed)
		if m.Set(ctx, key, result, WithLevel(s.level), WithTTL(ttl)) {
			for _, trigger := range s.triggers {
				m.Set(ctx, triggerKey(trigger, key), key, WithLevel(L1), WithTTL(ttl))
			}
			m.logger.DebugContext(ctx, "result cached",
				logger.CacheKey(key),
				logger.Elapsed(start),
				logger.Duration(ttl))
		}
		return result, nil
	}
}

func (s wrapSettings) key(name string, arg any) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{s.prefix, name} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if s.vary != nil {
		for _, v := range s.vary(arg) {
			if v != "" {
				parts = append(parts, v)
			}
		}
	}
	return strings.Join(parts, ":")
}

func triggerKey(trigger, key string) string {
	return invalidatePrefix + ":" + trigger + ":" + key
}

// InvalidateTrigger deletes, from every tier, the results registered under
// trigger with WithInvalidateOn, and returns how many were removed.
func (m *Manager) InvalidateTrigger(ctx context.Context, trigger string) int {
	sctx, cancel := context.WithTimeout(ctx, m.config.OpTimeout)
	markers, err := m.store.Scan(sctx, L1.Prefix()+":"+invalidatePrefix+":"+trigger+":*")
	cancel()
	if err != nil {
		m.storeError(ctx, "scan", trigger, err)
		return 0
	}

	removed := 0
	for _, marker := range markers {
		if strings.HasSuffix(marker, ":meta") {
			continue
		}
		key, err := m.markerTarget(ctx, marker)
		if err != nil {
			m.storeError(ctx, "trigger", marker, err)
			continue
		}
		if m.Delete(ctx, key, true) {
			removed++
		}

		dctx, cancel := context.WithTimeout(ctx, m.config.OpTimeout)
		_, err = m.store.Delete(dctx, marker, metaKey(marker))
		cancel()
		if err != nil {
			m.storeError(ctx, "delete marker", marker, err)
		}
	}
	return removed
}

func (m *Manager) markerTarget(ctx context.Context, marker string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.config.OpTimeout)
	defer cancel()

	payload, err := m.store.Get(ctx, marker)
	if err != nil {
		return "", err
	}
	var key string
	if err := decode(payload, &key); err != nil {
		return "", err
	}
	if key == "" {
		return "", errors.New("cache: empty trigger target")
	}
	return key, nil
}
