package ratelimiter

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math"

	"github.com/eduplatform/gatekeeper/core/logger"
)

const (
	saturationWeight = 0.7
	missWeight       = 0.3

	// neutralLoad is assumed whenever a load source fails.
	neutralLoad = 0.5
	minFactor   = 0.1
)

// Limits maps a limit name (minute, hour, day...) to its request count.
type Limits map[string]int

// LoadSource reports a ratio in [0,1].
type LoadSource func(ctx context.Context) (float64, error)

// AdaptiveConfig holds load adjustment parameters.
type AdaptiveConfig struct {
	Threshold  float64 `env:"ADAPTIVE_LOAD_THRESHOLD" envDefault:"0.8"`
	LoadFactor float64 `env:"ADAPTIVE_LOAD_FACTOR" envDefault:"0.5"`
}

// LoadAdjuster scales limits down while the system is under pressure.
type LoadAdjuster struct {
	config     AdaptiveConfig
	saturation LoadSource
	hitRatio   LoadSource
	logger     *slog.Logger
}

// LoadAdjusterOption configures a LoadAdjuster.
type LoadAdjusterOption func(*LoadAdjuster)

// WithSaturationSource sets the connection saturation probe of the persistent store.
func WithSaturationSource(src LoadSource) LoadAdjusterOption {
	return func(a *LoadAdjuster) {
		a.saturation = src
	}
}

// WithHitRatioSource sets the cache hit ratio probe.
func WithHitRatioSource(src LoadSource) LoadAdjusterOption {
	return func(a *LoadAdjuster) {
		a.hitRatio = src
	}
}

// WithAdjusterLogger sets the logger used to report throttling.
func WithAdjusterLogger(l *slog.Logger) LoadAdjusterOption {
	return func(a *LoadAdjuster) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewLoadAdjuster creates a LoadAdjuster. Without sources configured the
// adjuster sees an idle system and never scales limits.
func NewLoadAdjuster(config AdaptiveConfig, opts ...LoadAdjusterOption) (*LoadAdjuster, error) {
	if config.Threshold < 0 || config.Threshold > 1 {
		return nil, fmt.Errorf("%w: load threshold must be within [0,1], got %v", ErrInvalidConfig, config.Threshold)
	}
	if config.LoadFactor < 0 {
		return nil, fmt.Errorf("%w: load factor must not be negative, got %v", ErrInvalidConfig, config.LoadFactor)
	}

	a := &LoadAdjuster{
		config: config,
		saturation: func(context.Context) (float64, error) {
			return 0, nil
		},
		hitRatio: func(context.Context) (float64, error) {
			return 1, nil
		},
		logger: logger.Discard(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Score returns the current load estimate in [0,1].
func (a *LoadAdjuster) Score(ctx context.Context) float64 {
	sat, err := a.saturation(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "load saturation unavailable", logger.Error(err))
		return neutralLoad
	}
	hit, err := a.hitRatio(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "cache hit ratio unavailable", logger.Error(err))
		return neutralLoad
	}
	return clamp(saturationWeight*clamp(sat) + missWeight*(1-clamp(hit)))
}

// Adjust samples the current load and scales base accordingly.
func (a *LoadAdjuster) Adjust(ctx context.Context, base Limits) Limits {
	return a.AdjustWithScore(ctx, base, a.Score(ctx))
}

// AdjustWithScore scales base for a given load score. At or below the
// threshold the limits are returned unchanged; above it every limit is
// multiplied by max(0.1, 1-(score-threshold)*factor) and floored at 1.
func (a *LoadAdjuster) AdjustWithScore(ctx context.Context, base Limits, score float64) Limits {
	out := maps.Clone(base)
	if out == nil {
		out = Limits{}
	}
	if score <= a.config.Threshold {
		return out
	}

	factor := max(minFactor, 1-(score-a.config.Threshold)*a.config.LoadFactor)
	for name, limit := range out {
		out[name] = max(1, int(math.Floor(float64(limit)*factor)))
	}

	a.logger.WarnContext(ctx, "system under load, limits reduced",
		logger.LoadScore(score),
		slog.Float64("factor", factor))
	return out
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
