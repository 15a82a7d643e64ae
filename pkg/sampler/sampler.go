// Package sampler implements the sampling engine: it owns one session
// against a hardware counter source and turns each caller-specified window
// of counter activity into a single soc.Snapshot.
//
// A Sampler is not safe for concurrent use; calls on one Sampler must be
// serialized by the caller. Independent Samplers own independent sessions.
package sampler

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ja7ad/socmon/pkg/soc"
	"github.com/ja7ad/socmon/pkg/system/counter"
)

// Sampler is a live sampling session.
type Sampler struct {
	id     string
	source string
	sess   counter.Session
	opts   options
	log    *slog.Logger
}

// New opens a session on src. On failure no Sampler is returned and the
// error wraps soc.ErrInit.
func New(src counter.Source, opts ...Option) (*Sampler, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if src == nil {
		return nil, fmt.Errorf("%w: nil counter source", soc.ErrInit)
	}

	sess, err := src.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", soc.ErrInit, src.Name(), err)
	}
	if sess == nil {
		return nil, fmt.Errorf("%w: %s returned no session", soc.ErrInit, src.Name())
	}

	s := &Sampler{
		id:     uuid.NewString(),
		source: src.Name(),
		sess:   sess,
		opts:   o,
	}
	s.log = o.logger.With("sampler", s.id, "source", s.source)
	s.log.Debug("sampler opened", "window", o.window, "steps", o.steps)
	return s, nil
}

// ID identifies the sampler in log output.
func (s *Sampler) ID() string { return s.id }

// Source names the counter source the sampler reads.
func (s *Sampler) Source() string { return s.source }

// Sample blocks for approximately window (DefaultWindow when window <= 0)
// and returns the reduced snapshot. Errors wrap soc.ErrSampling and no
// partial snapshot is ever returned.
func (s *Sampler) Sample(window time.Duration) (*soc.Snapshot, error) {
	if s.sess == nil {
		return nil, fmt.Errorf("%w: %w", soc.ErrSampling, soc.ErrClosed)
	}
	if window <= 0 {
		window = s.opts.window
	}
	steps := s.opts.steps
	if window < time.Duration(steps)*time.Millisecond {
		steps = 1
	}

	clock := s.opts.clock
	w := newWindow()

	start := clock.Now()
	first, err := s.read()
	if err != nil {
		return nil, err
	}
	w.add(first)

	for i := 1; i <= steps; i++ {
		deadline := start.Add(window * time.Duration(i) / time.Duration(steps))
		if d := deadline.Sub(clock.Now()); d > 0 {
			clock.Sleep(d)
		}
		c, err := s.read()
		if err != nil {
			return nil, err
		}
		w.add(c)
	}
	elapsed := clock.Now().Sub(start)

	mem, err := s.sess.Memory()
	if err != nil {
		s.log.Warn("memory read failed", "err", err)
		return nil, fmt.Errorf("%w: memory: %w", soc.ErrSampling, err)
	}

	snap := w.reduce(elapsed, mem)
	s.log.Debug("window sampled",
		"window", window, "elapsed", elapsed, "reads", w.reads,
		"ecpu_mhz", snap.ECPU.Frequency, "pcpu_mhz", snap.PCPU.Frequency,
		"all_w", snap.AllPower)
	return snap, nil
}

func (s *Sampler) read() (*counter.Counters, error) {
	c, err := s.sess.Read()
	if err == nil && c == nil {
		err = errors.New("session returned no counters")
	}
	if err != nil {
		s.log.Warn("counter read failed", "err", err)
		return nil, fmt.Errorf("%w: read %s: %w", soc.ErrSampling, s.source, err)
	}
	return c, nil
}

// Close releases the session. It is safe to call more than once; only the
// first call reaches the source.
func (s *Sampler) Close() error {
	if s.sess == nil {
		return nil
	}
	err := s.sess.Close()
	s.sess = nil
	s.log.Debug("sampler closed", "err", err)
	return err
}
