package sampler

import (
	"errors"
	"sync"
	"time"

	"github.com/ja7ad/socmon/pkg/soc"
	"github.com/ja7ad/socmon/pkg/system/counter"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// load describes what the fake hardware is doing right now.
type load struct {
	// idle fraction per channel name
	idle map[string]float64
	// frequency shares per channel name (MHz -> weight)
	shares map[string]map[uint32]float64
	watts  map[counter.Rail]float64
	cpuT   []float64
	gpuT   []float64
}

var channelDomains = map[string]counter.Domain{
	"E":   counter.ECPU,
	"P0":  counter.PCPU,
	"P1":  counter.PCPU,
	"GPU": counter.GPU,
}

type fakeSession struct {
	clock *fakeClock
	load  load
	last  time.Time

	idle   map[string]time.Duration
	steps  map[string]map[uint32]time.Duration
	energy map[counter.Rail]float64 // µJ

	// spanScale, when set, makes the session report its own time base
	// running at that multiple of the wall clock.
	spanScale float64
	span      time.Duration

	// late leaves channels and rails unlisted until they accumulate.
	late bool

	reads     int
	failAfter int // fail the read with this 1-based index; 0 = never
	mem       soc.Memory
	memErr    error
	closes    int
}

func (s *fakeSession) advance() {
	now := s.clock.Now()
	dt := now.Sub(s.last)
	s.last = now
	if !s.late {
		s.seed()
	}
	if dt <= 0 {
		return
	}
	s.span += time.Duration(s.spanScale * float64(dt))
	for name, frac := range s.load.idle {
		s.idle[name] += time.Duration(frac * float64(dt))
		var total float64
		for _, w := range s.load.shares[name] {
			total += w
		}
		if total == 0 {
			continue
		}
		if s.steps[name] == nil {
			s.steps[name] = map[uint32]time.Duration{}
		}
		for mhz, w := range s.load.shares[name] {
			s.steps[name][mhz] += time.Duration(w / total * float64(dt))
		}
	}
	for rail, w := range s.load.watts {
		s.energy[rail] += w * dt.Seconds() * 1e6
	}
}

// seed registers every loaded channel and rail at zero so the read taken
// at open time already lists them.
func (s *fakeSession) seed() {
	for name := range s.load.idle {
		if _, ok := s.idle[name]; !ok {
			s.idle[name] = 0
		}
		if s.steps[name] == nil {
			s.steps[name] = map[uint32]time.Duration{}
		}
		for mhz := range s.load.shares[name] {
			if _, ok := s.steps[name][mhz]; !ok {
				s.steps[name][mhz] = 0
			}
		}
	}
	for rail := range s.load.watts {
		if _, ok := s.energy[rail]; !ok {
			s.energy[rail] = 0
		}
	}
}

func (s *fakeSession) Read() (*counter.Counters, error) {
	s.reads++
	if s.failAfter > 0 && s.reads >= s.failAfter {
		return nil, errors.New("session invalidated")
	}
	s.advance()

	c := &counter.Counters{
		Energy:   map[counter.Rail]uint64{},
		CPUTemps: append([]float64(nil), s.load.cpuT...),
		GPUTemps: append([]float64(nil), s.load.gpuT...),
		Span:     s.span,
	}
	for name, idle := range s.idle {
		ch := counter.Channel{Domain: channelDomains[name], Name: name, Idle: idle}
		for mhz, res := range s.steps[name] {
			ch.Steps = append(ch.Steps, counter.Step{MHz: mhz, Residency: res})
		}
		c.Channels = append(c.Channels, ch)
	}
	for rail, uj := range s.energy {
		c.Energy[rail] = uint64(uj)
	}
	return c, nil
}

func (s *fakeSession) Memory() (soc.Memory, error) { return s.mem, s.memErr }

func (s *fakeSession) Close() error {
	s.closes++
	return nil
}

type fakeSource struct {
	sess    *fakeSession
	openErr error
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Open() (counter.Session, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.sess.last = f.sess.clock.Now()
	return f.sess, nil
}

func newFake(clock *fakeClock, l load) *fakeSource {
	return &fakeSource{sess: &fakeSession{
		clock:  clock,
		load:   l,
		idle:   map[string]time.Duration{},
		steps:  map[string]map[uint32]time.Duration{},
		energy: map[counter.Rail]float64{},
		mem:    soc.Memory{RAMTotal: 16 << 30, RAMUsage: 9 << 30, SwapTotal: 2 << 30, SwapUsage: 1 << 29},
	}}
}

func busyLoad() load {
	return load{
		idle: map[string]float64{"E": 0.75, "P0": 0.5, "P1": 0.3, "GPU": 0.9},
		shares: map[string]map[uint32]float64{
			"E":   {600: 1, 1200: 1},
			"P0":  {1000: 1, 3000: 3},
			"P1":  {2000: 1},
			"GPU": {400: 1, 800: 0},
		},
		watts: map[counter.Rail]float64{
			counter.RailCPU: 2.5,
			counter.RailGPU: 0.5,
			counter.RailANE: 0,
			counter.RailAll: 4, // metered, not cpu+gpu+ane
			counter.RailRAM: 0.25,
		},
		cpuT: []float64{40, 50},
		gpuT: []float64{35},
	}
}
