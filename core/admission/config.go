package admission

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/eduplatform/gatekeeper/pkg/ratelimiter"
)

// Config holds admission policy. Field defaults match DefaultConfig.
type Config struct {
	AnonMinute int `env:"ANON_RATE_LIMIT_MINUTE" envDefault:"20"`
	AnonHour   int `env:"ANON_RATE_LIMIT_HOUR" envDefault:"100"`
	AnonDay    int `env:"ANON_RATE_LIMIT_DAY" envDefault:"1000"`

	AuthMinute int `env:"AUTH_RATE_LIMIT_MINUTE" envDefault:"60"`
	AuthHour   int `env:"AUTH_RATE_LIMIT_HOUR" envDefault:"1000"`
	AuthDay    int `env:"AUTH_RATE_LIMIT_DAY" envDefault:"10000"`

	PremiumMinute int `env:"PREMIUM_RATE_LIMIT_MINUTE" envDefault:"120"`
	PremiumHour   int `env:"PREMIUM_RATE_LIMIT_HOUR" envDefault:"2000"`
	PremiumDay    int `env:"PREMIUM_RATE_LIMIT_DAY" envDefault:"50000"`

	AdminMinute int `env:"ADMIN_RATE_LIMIT_MINUTE" envDefault:"200"`
	AdminHour   int `env:"ADMIN_RATE_LIMIT_HOUR" envDefault:"5000"`
	AdminDay    int `env:"ADMIN_RATE_LIMIT_DAY" envDefault:"100000"`

	AIMinute       int `env:"AI_API_RATE_LIMIT_MINUTE" envDefault:"10"`
	AIHour         int `env:"AI_API_RATE_LIMIT_HOUR" envDefault:"100"`
	LoginMinute    int `env:"LOGIN_RATE_LIMIT_MINUTE" envDefault:"5"`
	LoginHour      int `env:"LOGIN_RATE_LIMIT_HOUR" envDefault:"20"`
	RegisterMinute int `env:"REGISTER_RATE_LIMIT_MINUTE" envDefault:"3"`
	RegisterHour   int `env:"REGISTER_RATE_LIMIT_HOUR" envDefault:"10"`

	Bucket   ratelimiter.Config
	Adaptive ratelimiter.AdaptiveConfig

	WhitelistIPs   []string      `env:"RATE_LIMIT_WHITELIST_IPS" envSeparator:","`
	BypassPaths    []string      `env:"RATE_LIMIT_BYPASS_PATHS" envSeparator:"," envDefault:"/health/,/metrics/,/admin/"`
	BypassPrefixes []string      `env:"RATE_LIMIT_BYPASS_PREFIXES" envSeparator:"," envDefault:"/static/,/media/"`
	StoreTimeout   time.Duration `env:"RATE_LIMIT_STORE_TIMEOUT" envDefault:"2s"`
}

// DefaultConfig returns the built-in policy.
func DefaultConfig() Config {
	return Config{
		AnonMinute: 20, AnonHour: 100, AnonDay: 1000,
		AuthMinute: 60, AuthHour: 1000, AuthDay: 10000,
		PremiumMinute: 120, PremiumHour: 2000, PremiumDay: 50000,
		AdminMinute: 200, AdminHour: 5000, AdminDay: 100000,

		AIMinute: 10, AIHour: 100,
		LoginMinute: 5, LoginHour: 20,
		RegisterMinute: 3, RegisterHour: 10,

		Bucket:   ratelimiter.DefaultConfig(),
		Adaptive: ratelimiter.AdaptiveConfig{Threshold: 0.8, LoadFactor: 0.5},

		BypassPaths:    []string{"/health/", "/metrics/", "/admin/"},
		BypassPrefixes: []string{"/static/", "/media/"},
		StoreTimeout:   2 * time.Second,
	}
}

// TierLimits are the per-window request limits of one tier.
type TierLimits struct {
	Minute int
	Hour   int
	Day    int
}

func (l TierLimits) limits() ratelimiter.Limits {
	return ratelimiter.Limits{"minute": l.Minute, "hour": l.Hour, "day": l.Day}
}

// EndpointPolicy overrides limits for paths starting with Prefix.
// A zero limit disables that window.
type EndpointPolicy struct {
	Prefix string
	Minute int
	Hour   int
}

// TierLimits returns the limit table for t. Unknown tiers get anonymous limits.
func (c Config) TierLimits(t Tier) TierLimits {
	switch t {
	case TierAuthenticated:
		return TierLimits{c.AuthMinute, c.AuthHour, c.AuthDay}
	case TierPremium:
		return TierLimits{c.PremiumMinute, c.PremiumHour, c.PremiumDay}
	case TierAdmin:
		return TierLimits{c.AdminMinute, c.AdminHour, c.AdminDay}
	default:
		return TierLimits{c.AnonMinute, c.AnonHour, c.AnonDay}
	}
}

// Endpoints returns the endpoint overrides in match order.
func (c Config) Endpoints() []EndpointPolicy {
	return []EndpointPolicy{
		{Prefix: "/api/ai/", Minute: c.AIMinute, Hour: c.AIHour},
		{Prefix: "/api/auth/login/", Minute: c.LoginMinute, Hour: c.LoginHour},
		{Prefix: "/api/auth/register/", Minute: c.RegisterMinute, Hour: c.RegisterHour},
	}
}

// Validate reports configuration that would make every request fail.
func (c Config) Validate() error {
	for _, t := range []Tier{TierAnonymous, TierAuthenticated, TierPremium, TierAdmin} {
		l := c.TierLimits(t)
		if l.Minute < 1 || l.Hour < 1 || l.Day < 1 {
			return fmt.Errorf("%w: %s limits must be positive, got %+v", ErrInvalidConfig, t, l)
		}
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("%w: store timeout must be positive", ErrInvalidConfig)
	}
	return c.Bucket.Validate()
}

// bypass reports whether path or address skip admission entirely.
func (c Config) bypass(path, address string) bool {
	if slices.Contains(c.BypassPaths, path) {
		return true
	}
	for _, p := range c.BypassPrefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return address != "" && slices.Contains(c.WhitelistIPs, address)
}
