// Package powermetrics is the macOS counter source. It runs Apple's
// powermetrics tool as a subprocess and integrates each sample it prints
// into cumulative residency and energy counters:
//
//	idle      += (1 − HW active residency) · interval
//	step[MHz] += residency share · interval
//	energy    += mW · ms  (= µJ)
//
// Session time is the sum of sample intervals, so windows are measured in
// the tool's own time base. powermetrics requires root.
package powermetrics

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ja7ad/socmon/pkg/system/counter"
	"github.com/ja7ad/socmon/pkg/system/memory"
)

// Source opens powermetrics sessions.
type Source struct {
	cfg     Config
	mem     MemoryReader
	log     *slog.Logger
	factory readerFactory
	hook    func()
}

// Option configures a Source.
type Option func(*Source)

// WithMemory replaces the default gopsutil memory reader.
func WithMemory(m MemoryReader) Option {
	return func(s *Source) {
		if m != nil {
			s.mem = m
		}
	}
}

// WithLogger sets the logger; nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.log = l
		}
	}
}

func withFactory(f readerFactory) Option {
	return func(s *Source) { s.factory = f }
}

func withSampleHook(h func()) Option {
	return func(s *Source) { s.hook = h }
}

// New returns a source for cfg, filling in defaults.
func New(cfg Config, opts ...Option) *Source {
	s := &Source{cfg: normalizeConfig(cfg), log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.mem == nil {
		s.mem = memory.New(memory.WithLogger(s.log))
	}
	if s.factory == nil {
		s.factory = execFactory(s.cfg)
	}
	return s
}

// Name implements counter.Source.
func (s *Source) Name() string { return "powermetrics" }

// Config returns the effective configuration.
func (s *Source) Config() Config { return s.cfg }

// Open starts the subprocess and waits for its first sample.
func (s *Source) Open() (counter.Session, error) {
	sess, err := startSession(context.Background(), s.factory, s.mem, s.log, s.hook)
	if err != nil {
		return nil, fmt.Errorf("powermetrics: start %s: %w", s.cfg.Path, err)
	}
	if err := sess.awaitFirst(s.cfg.StartTimeout); err != nil {
		_ = sess.Close()
		return nil, err
	}
	s.log.Debug("powermetrics session opened", "path", s.cfg.Path, "args", s.cfg.Args)
	return sess, nil
}
