// Package consumption estimates CPU power from utilization for hosts that
// expose no metered CPU rail:
//
//	P = PIdle + (PMax − PIdle) · u^Gamma
//
// The Accumulator integrates the estimate into cumulative energy so it can
// stand in for a hardware energy counter.
package consumption

import (
	"math"
	"sync"

	"github.com/ja7ad/socmon/pkg/system/util"
)

// Accumulator keeps running energy and averages.
type Accumulator struct {
	mu         sync.Mutex
	cfg        *Config
	energyCumJ float64
	count      int
	sumPIdle   float64
	sumPDyn    float64
	sumPTotal  float64
}

// New creates an accumulator with the given config.
// Fields > 0 in cfg override defaults; zero or negative values are treated
// as "unset".
func New(cfg *Config) *Accumulator {
	base := _defaultConfig()

	// No user cfg: use defaults as-is.
	if cfg == nil {
		return &Accumulator{cfg: base}
	}

	merged := *base

	// Positive-only overrides
	if cfg.PIdle > 0 {
		merged.PIdle = cfg.PIdle
	}
	if cfg.PMax > 0 {
		merged.PMax = cfg.PMax
	}
	if cfg.Gamma > 0 {
		merged.Gamma = cfg.Gamma
	}

	// Optional sanity: ensure PMax >= PIdle; if not, clamp to avoid nonsense.
	if merged.PMax < merged.PIdle {
		merged.PMax = merged.PIdle
	}

	return &Accumulator{cfg: &merged}
}

// Config returns the effective coefficients.
func (a *Accumulator) Config() Config { return *a.cfg }

// Power evaluates the model at utilization u without accumulating.
func (a *Accumulator) Power(u float64) Result {
	u = util.Clamp01(u)
	pdyn := (a.cfg.PMax - a.cfg.PIdle) * util.Pow(u, a.cfg.Gamma)
	return Result{PIdle: a.cfg.PIdle, PDyn: pdyn, PTotal: a.cfg.PIdle + pdyn}
}

// Apply runs the model on a single sample, returns the power split, and
// updates cumulative energy/averages.
//
//	E_cum += P_total * dt
func (a *Accumulator) Apply(s Sample) Result {
	res := a.Power(s.Utilization)
	dt := math.Max(s.Dt.Seconds(), 0)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.energyCumJ += res.PTotal * dt
	a.count++
	a.sumPIdle += res.PIdle
	a.sumPDyn += res.PDyn
	a.sumPTotal += res.PTotal
	return res
}

// EnergyCumJ returns cumulative energy in Joules.
func (a *Accumulator) EnergyCumJ() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.energyCumJ
}

// EnergyMicroJ returns cumulative energy in microjoules, the unit of
// hardware energy counters.
func (a *Accumulator) EnergyMicroJ() uint64 {
	return uint64(math.Round(a.EnergyCumJ() * 1e6))
}

// Averages returns average powers over all applied samples.
func (a *Accumulator) Averages() Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.count == 0 {
		return Result{}
	}
	n := float64(a.count)
	return Result{
		PIdle:  a.sumPIdle / n,
		PDyn:   a.sumPDyn / n,
		PTotal: a.sumPTotal / n,
	}
}
