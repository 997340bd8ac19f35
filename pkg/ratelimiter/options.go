package ratelimiter

import "time"

type options struct {
	clock       func() time.Time
	windowGrace time.Duration
}

// Option configures SlidingWindow and Bucket.
type Option func(*options)

// WithClock overrides the time source. Useful in tests.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithWindowGrace sets how long a window record outlives its window
// after the last admitted request. Default is 60 seconds.
func WithWindowGrace(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.windowGrace = d
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		clock:       time.Now,
		windowGrace: time.Minute,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
