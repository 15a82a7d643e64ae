package sysfs

import (
	"errors"
	"fmt"
	"time"

	"github.com/ja7ad/socmon/pkg/consumption"
	"github.com/ja7ad/socmon/pkg/soc"
	"github.com/ja7ad/socmon/pkg/system/counter"
	"github.com/ja7ad/socmon/pkg/system/cpufreq"
	"github.com/ja7ad/socmon/pkg/system/proc"
)

var errSessionClosed = errors.New("sysfs: session closed")

type session struct {
	src      *Source
	policies []cpufreq.Policy
	zones    []*energyZone
	thermal  []thermalZone
	closed   bool

	// power model state; nil when disabled
	model      *consumption.Accumulator
	lastActive uint64
	lastTotal  uint64
	lastAt     time.Time
}

func (s *session) meters(r counter.Rail) bool {
	for _, z := range s.zones {
		if z.rail == r {
			return true
		}
	}
	return false
}

func (s *session) Read() (*counter.Counters, error) {
	if s.closed {
		return nil, errSessionClosed
	}
	times, err := proc.ReadCPUTimes(s.src.procRoot)
	if err != nil {
		return nil, fmt.Errorf("sysfs: cpu times: %w", err)
	}

	c := &counter.Counters{Energy: map[counter.Rail]uint64{}}
	for _, p := range s.policies {
		ch, err := s.channel(p, times)
		if err != nil {
			return nil, err
		}
		c.Channels = append(c.Channels, ch)
	}

	for _, z := range s.zones {
		uj, err := z.read()
		if err != nil {
			return nil, fmt.Errorf("sysfs: energy %s: %w", z.name, err)
		}
		c.Energy[z.rail] += uj
	}
	if s.model != nil {
		if err := s.estimate(c); err != nil {
			return nil, err
		}
	}

	c.CPUTemps, c.GPUTemps = readThermal(s.thermal)
	return c, nil
}

func (s *session) channel(p cpufreq.Policy, times map[int]proc.CPUTimes) (counter.Channel, error) {
	states, err := cpufreq.ReadTimeInState(p.Dir)
	if err != nil {
		return counter.Channel{}, fmt.Errorf("sysfs: %s: %w", p.Name, err)
	}

	ch := counter.Channel{Domain: counter.PCPU, Name: p.Name}
	if p.Efficiency {
		ch.Domain = counter.ECPU
	}
	for _, st := range states {
		ch.Steps = append(ch.Steps, counter.Step{
			MHz:       uint32((st.KHz + 500) / 1000),
			Residency: proc.TicksToDuration(st.Ticks),
		})
	}

	// idle normalized to one core: mean over the policy's online CPUs
	var idle uint64
	var n int
	for _, cpu := range p.CPUs {
		if t, ok := times[cpu]; ok {
			idle += t.Idle
			n++
		}
	}
	if n > 0 {
		ch.Idle = proc.TicksToDuration(idle) / time.Duration(n)
	}
	return ch, nil
}

// estimate integrates the power model over the time since the previous
// read and reports it as the CPU rail.
func (s *session) estimate(c *counter.Counters) error {
	active, total, err := proc.ReadSystemCPU(s.src.procRoot)
	if err != nil {
		return fmt.Errorf("sysfs: system cpu: %w", err)
	}
	now := s.src.now()
	if !s.lastAt.IsZero() {
		dTotal := total - s.lastTotal
		var u float64
		if total > s.lastTotal && active >= s.lastActive {
			u = float64(active-s.lastActive) / float64(dTotal)
		}
		s.model.Apply(consumption.Sample{Dt: now.Sub(s.lastAt), Utilization: u})
	}
	s.lastActive, s.lastTotal, s.lastAt = active, total, now
	c.Energy[counter.RailCPU] = s.model.EnergyMicroJ()
	return nil
}

func (s *session) Memory() (soc.Memory, error) { return s.src.mem.Read() }

func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.model != nil {
		avg := s.model.Averages()
		s.src.log.Debug("power model closed",
			"energy_j", s.model.EnergyCumJ(),
			"avg_idle_w", avg.PIdle, "avg_dyn_w", avg.PDyn, "avg_total_w", avg.PTotal)
	}
	return nil
}
