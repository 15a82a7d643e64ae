package sampler

import (
	"log/slog"
	"time"
)

const (
	// DefaultWindow is used when Sample is called with a non-positive window.
	DefaultWindow = 500 * time.Millisecond
	// DefaultSteps is the number of sub-intervals a window is read in.
	DefaultSteps = 4
)

type options struct {
	window time.Duration
	steps  int
	clock  Clock
	logger *slog.Logger
}

func defaultOptions() options {
	return options{
		window: DefaultWindow,
		steps:  DefaultSteps,
		clock:  RealClock(),
		logger: slog.Default(),
	}
}

// Option configures a Sampler.
type Option func(*options)

// WithWindow sets the window used when Sample is given a non-positive one.
// Non-positive values keep DefaultWindow.
func WithWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.window = d
		}
	}
}

// WithSteps sets how many sub-intervals each window is split into.
// Temperatures are read at every boundary and averaged. Values < 1 keep
// DefaultSteps.
func WithSteps(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.steps = n
		}
	}
}

// WithClock replaces the real clock.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the logger; nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
