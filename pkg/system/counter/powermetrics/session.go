package powermetrics

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/ja7ad/socmon/pkg/soc"
	"github.com/ja7ad/socmon/pkg/system/counter"
)

// ErrExited indicates that the powermetrics process ended; the session is
// unusable afterwards.
var ErrExited = errors.New("powermetrics: process exited")

// MemoryReader supplies the memory figures of each snapshot.
type MemoryReader interface {
	Read() (soc.Memory, error)
}

type readerFactory func(context.Context) (io.Reader, func() error, error)

// session integrates the sample stream into cumulative counters. The
// reader goroutine is the only writer; Read copies under the lock.
type session struct {
	mem    MemoryReader
	log    *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
	first  chan struct{}

	// onSample, when set, runs after each integrated sample.
	onSample func()

	mu      sync.Mutex
	err     error
	samples int
	span    time.Duration

	// cumulative residency per channel, seconds
	idle   map[chanKey]float64
	steps  map[chanKey]map[uint32]float64
	energy map[counter.Rail]float64 // µJ
	cpuT   []float64
	gpuT   []float64
}

type chanKey struct {
	domain counter.Domain
	name   string
}

func startSession(ctx context.Context, factory readerFactory, mem MemoryReader, log *slog.Logger, onSample func()) (*session, error) {
	ctx, cancel := context.WithCancel(ctx)
	reader, wait, err := factory(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	if reader == nil {
		cancel()
		return nil, errors.New("powermetrics: reader factory returned nil reader")
	}

	s := &session{
		mem:    mem,
		log:    log,
		cancel: cancel,
		done:   make(chan struct{}),
		first:  make(chan struct{}),
		idle:   map[chanKey]float64{},
		steps:  map[chanKey]map[uint32]float64{},
		energy: map[counter.Rail]float64{},

		onSample: onSample,
	}
	go s.consume(ctx, reader, wait)
	return s, nil
}

func (s *session) consume(ctx context.Context, reader io.Reader, wait func() error) {
	defer close(s.done)

	var p parser
	sc := bufio.NewScanner(reader)
	for sc.Scan() {
		if smp := p.parseLine(sc.Text()); smp != nil {
			s.integrate(smp)
			if s.onSample != nil {
				s.onSample()
			}
		}
	}
	if smp := p.flush(); smp != nil {
		s.integrate(smp)
	}

	err := sc.Err()
	if wait != nil {
		if werr := wait(); werr != nil && ctx.Err() == nil {
			err = errors.Join(err, werr)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.err = fmt.Errorf("%w: %w", ErrExited, err)
	} else {
		s.err = ErrExited
	}
	if s.samples == 0 {
		close(s.first)
	}
	if ctx.Err() == nil {
		s.log.Warn("powermetrics stream ended", "err", err, "samples", s.samples)
	}
}

func (s *session) integrate(smp *sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec := smp.elapsed.Seconds()
	s.span += smp.elapsed
	for _, r := range smp.clusters {
		k := chanKey{r.domain, r.name}
		s.idle[k] += (1 - r.active) * sec
		st := s.steps[k]
		if st == nil {
			st = map[uint32]float64{}
			s.steps[k] = st
		}
		for mhz, share := range r.steps {
			st[mhz] += share * sec
		}
	}
	// mW * ms = µJ
	ms := float64(smp.elapsed) / float64(time.Millisecond)
	for rail, mw := range smp.powerMW {
		s.energy[rail] += mw * ms
	}
	s.cpuT, s.gpuT = smp.cpuTemps, smp.gpuTemps

	s.samples++
	if s.samples == 1 {
		close(s.first)
	}
}

// awaitFirst blocks until the first sample was integrated or the stream
// ended.
func (s *session) awaitFirst(timeout time.Duration) error {
	select {
	case <-s.first:
	case <-time.After(timeout):
		return fmt.Errorf("powermetrics: no sample within %s", timeout)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.samples == 0 {
		return s.err
	}
	return nil
}

func (s *session) Read() (*counter.Counters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}

	c := &counter.Counters{
		Energy:   make(map[counter.Rail]uint64, len(s.energy)),
		CPUTemps: append([]float64(nil), s.cpuT...),
		GPUTemps: append([]float64(nil), s.gpuT...),
		Span:     s.span,
	}
	for k, idle := range s.idle {
		ch := counter.Channel{Domain: k.domain, Name: k.name, Idle: seconds(idle)}
		for mhz, res := range s.steps[k] {
			ch.Steps = append(ch.Steps, counter.Step{MHz: mhz, Residency: seconds(res)})
		}
		sort.Slice(ch.Steps, func(i, j int) bool { return ch.Steps[i].MHz < ch.Steps[j].MHz })
		c.Channels = append(c.Channels, ch)
	}
	sort.Slice(c.Channels, func(i, j int) bool {
		if c.Channels[i].Domain != c.Channels[j].Domain {
			return c.Channels[i].Domain < c.Channels[j].Domain
		}
		return c.Channels[i].Name < c.Channels[j].Name
	})
	for rail, uj := range s.energy {
		c.Energy[rail] = uint64(uj)
	}
	return c, nil
}

func (s *session) Memory() (soc.Memory, error) { return s.mem.Read() }

// Close stops the subprocess and waits for the reader goroutine.
func (s *session) Close() error {
	s.cancel()
	<-s.done
	return nil
}

func seconds(v float64) time.Duration { return time.Duration(v * float64(time.Second)) }

func execFactory(cfg Config) readerFactory {
	return func(ctx context.Context) (io.Reader, func() error, error) {
		cmd := exec.CommandContext(ctx, cfg.Path, cfg.Args...)
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, nil, err
		}
		if err := cmd.Start(); err != nil {
			return nil, nil, err
		}
		return stdout, cmd.Wait, nil
	}
}
