package cache

import (
	"fmt"
	"strings"
	"time"
)

// Level is a cache tier. Higher levels live longer.
type Level int

const (
	L1 Level = iota + 1
	L2
	L3
	L4
)

// Levels lists all tiers, fastest first.
var Levels = []Level{L1, L2, L3, L4}

// String returns the tier name, e.g. "L2".
func (l Level) String() string {
	return fmt.Sprintf("L%d", int(l))
}

// Prefix returns the store key prefix of the tier, e.g. "l2".
func (l Level) Prefix() string {
	return fmt.Sprintf("l%d", int(l))
}

// Valid reports whether l is one of L1..L4.
func (l Level) Valid() bool {
	return l >= L1 && l <= L4
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(text []byte) error {
	v, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// ParseLevel parses "L1".."L4" (case insensitive).
func ParseLevel(s string) (Level, error) {
	for _, l := range Levels {
		if strings.EqualFold(s, l.String()) {
			return l, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown cache level %q", ErrInvalidConfig, s)
}

// fallbacks returns the slower tiers consulted after a miss at l.
func (l Level) fallbacks() []Level {
	if l == L1 || l == L2 {
		return []Level{L3, L4}
	}
	return nil
}

// Config holds cache settings.
type Config struct {
	CompressionThreshold int           `env:"CACHE_COMPRESSION_THRESHOLD" envDefault:"1024"`
	MaxEntrySize         int           `env:"CACHE_MAX_ENTRY_SIZE" envDefault:"10485760"`
	L1TTL                time.Duration `env:"CACHE_L1_TTL" envDefault:"60s"`
	L2TTL                time.Duration `env:"CACHE_L2_TTL" envDefault:"5m"`
	L3TTL                time.Duration `env:"CACHE_L3_TTL" envDefault:"1h"`
	L4TTL                time.Duration `env:"CACHE_L4_TTL" envDefault:"24h"`
	OpTimeout            time.Duration `env:"CACHE_OP_TIMEOUT" envDefault:"2s"`
}

// DefaultConfig returns the built-in cache settings.
func DefaultConfig() Config {
	return Config{
		CompressionThreshold: 1024,
		MaxEntrySize:         10 << 20,
		L1TTL:                time.Minute,
		L2TTL:                5 * time.Minute,
		L3TTL:                time.Hour,
		L4TTL:                24 * time.Hour,
		OpTimeout:            2 * time.Second,
	}
}

// TTL returns the default expiry of level l.
func (c Config) TTL(l Level) time.Duration {
	switch l {
	case L1:
		return c.L1TTL
	case L3:
		return c.L3TTL
	case L4:
		return c.L4TTL
	default:
		return c.L2TTL
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.CompressionThreshold < 0 {
		return fmt.Errorf("%w: compression threshold must not be negative", ErrInvalidConfig)
	}
	if c.MaxEntrySize <= 0 {
		return fmt.Errorf("%w: max entry size must be positive", ErrInvalidConfig)
	}
	for _, l := range Levels {
		if c.TTL(l) <= 0 {
			return fmt.Errorf("%w: %s ttl must be positive", ErrInvalidConfig, l)
		}
	}
	if c.OpTimeout <= 0 {
		return fmt.Errorf("%w: operation timeout must be positive", ErrInvalidConfig)
	}
	return nil
}
