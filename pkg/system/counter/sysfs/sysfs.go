// Package sysfs is the Linux counter source. It reads cumulative cpufreq
// residency, per-CPU idle time, RAPL energy and thermal zones from sysfs
// and procfs.
//
// cpufreq residency counts wall time at each step whether or not the CPUs
// were idle, so effective frequency is the policy clock averaged over the
// window. GPU activity has no portable idle counter on Linux and is not
// reported.
package sysfs

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ja7ad/socmon/pkg/consumption"
	"github.com/ja7ad/socmon/pkg/soc"
	"github.com/ja7ad/socmon/pkg/system/counter"
	"github.com/ja7ad/socmon/pkg/system/cpufreq"
	"github.com/ja7ad/socmon/pkg/system/memory"
)

// MemoryReader supplies the memory figures of each snapshot.
type MemoryReader interface {
	Read() (soc.Memory, error)
}

// Source opens sysfs sessions.
type Source struct {
	procRoot string
	sysRoot  string
	mem      MemoryReader
	model    *consumption.Config
	now      func() time.Time
	log      *slog.Logger
}

// Option configures a Source.
type Option func(*Source)

// WithRoots points the source at alternative /proc and /sys trees.
func WithRoots(procRoot, sysRoot string) Option {
	return func(s *Source) {
		if procRoot != "" {
			s.procRoot = procRoot
		}
		if sysRoot != "" {
			s.sysRoot = sysRoot
		}
	}
}

// WithMemory replaces the default gopsutil memory reader.
func WithMemory(m MemoryReader) Option {
	return func(s *Source) {
		if m != nil {
			s.mem = m
		}
	}
}

// WithPowerModel enables the utilization power estimate for the CPU rail
// when the host meters none. nil disables it.
func WithPowerModel(cfg *consumption.Config) Option {
	return func(s *Source) { s.model = cfg }
}

// WithLogger sets the logger; nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.log = l
		}
	}
}

func withNow(now func() time.Time) Option {
	return func(s *Source) { s.now = now }
}

// New returns a source reading the live /proc and /sys.
func New(opts ...Option) *Source {
	s := &Source{
		procRoot: "/proc",
		sysRoot:  "/sys",
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.mem == nil {
		s.mem = memory.New(memory.WithLogger(s.log))
	}
	return s
}

// Name implements counter.Source.
func (s *Source) Name() string { return "sysfs" }

// Open discovers policies, energy zones and thermal zones. It fails with
// soc.ErrNoCounters when no cpufreq policy exposes residency statistics.
func (s *Source) Open() (counter.Session, error) {
	all, err := cpufreq.ReadPolicies(s.sysRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", soc.ErrNoCounters, err)
	}
	var policies []cpufreq.Policy
	for _, p := range all {
		if p.Stats {
			policies = append(policies, p)
		}
	}
	if len(policies) == 0 {
		return nil, fmt.Errorf("%w: no cpufreq policy exposes stats/time_in_state", soc.ErrNoCounters)
	}

	sess := &session{
		src:      s,
		policies: policies,
		zones:    discoverEnergy(s.sysRoot, s.log),
		thermal:  discoverThermal(s.sysRoot),
	}
	if s.model != nil && !sess.meters(counter.RailCPU) {
		sess.model = consumption.New(s.model)
		s.log.Debug("cpu rail estimated from utilization", "model", sess.model.Config())
	}

	// Prime once so permission problems surface at Open rather than in the
	// first window.
	if _, err := sess.Read(); err != nil {
		return nil, err
	}
	s.log.Debug("sysfs session opened",
		"policies", len(policies), "energy_zones", len(sess.zones), "thermal_zones", len(sess.thermal))
	return sess, nil
}
