package consumption

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expect(cfg *Config, s Sample) (pdyn, ptotal float64) {
	u := s.Utilization
	if u < 0 {
		u = 0
	}
	if u > 1 {
		u = 1
	}
	pdyn = (cfg.PMax - cfg.PIdle) * math.Pow(u, cfg.Gamma)
	return pdyn, cfg.PIdle + pdyn
}

func TestConsumption_Sequence_WithLogs(t *testing.T) {
	cfg := &Config{PIdle: 2, PMax: 10, Gamma: 1.3}
	acc := New(cfg)

	samples := []Sample{
		{Dt: 500 * time.Millisecond, Utilization: 0.10},
		{Dt: 500 * time.Millisecond, Utilization: 0.25},
		{Dt: time.Second, Utilization: 0.50},
		{Dt: 250 * time.Millisecond, Utilization: 0.80},
	}

	var sumPDyn, sumPT, sumE float64

	t.Logf("# tick,  U   |  P_dyn(W)  P_total(W)   E_cum(J)")
	for i, s := range samples {
		res := acc.Apply(s)
		sumPDyn += res.PDyn
		sumPT += res.PTotal
		sumE += res.PTotal * s.Dt.Seconds()

		expPDyn, expPT := expect(cfg, s)
		require.InDelta(t, expPDyn, res.PDyn, 1e-9, "pdyn mismatch at tick %d", i)
		require.InDelta(t, expPT, res.PTotal, 1e-9, "ptotal mismatch at tick %d", i)
		require.InDelta(t, cfg.PIdle, res.PIdle, 1e-12)

		t.Logf("%5d, %4.2f | %9.4f %11.4f %10.4f", i+1, s.Utilization, res.PDyn, res.PTotal, acc.EnergyCumJ())
	}

	assert.InDelta(t, sumE, acc.EnergyCumJ(), 1e-9)
	assert.Equal(t, uint64(math.Round(sumE*1e6)), acc.EnergyMicroJ())

	avg := acc.Averages()
	n := float64(len(samples))
	assert.InDelta(t, sumPDyn/n, avg.PDyn, 1e-12)
	assert.InDelta(t, sumPT/n, avg.PTotal, 1e-12)
	assert.InDelta(t, cfg.PIdle, avg.PIdle, 1e-12)
}

func TestConsumption_ZeroAndClampPaths(t *testing.T) {
	cfg := &Config{PIdle: 2, PMax: 10, Gamma: 1.3}
	acc := New(cfg)

	t.Run("idle", func(t *testing.T) {
		res := acc.Power(0)
		assert.Equal(t, 0.0, res.PDyn)
		assert.Equal(t, 2.0, res.PTotal)
	})
	t.Run("above one", func(t *testing.T) {
		res := acc.Power(1.5)
		assert.InDelta(t, 10.0, res.PTotal, 1e-12)
	})
	t.Run("negative", func(t *testing.T) {
		res := acc.Power(-0.5)
		assert.Equal(t, 2.0, res.PTotal)
	})
	t.Run("nan", func(t *testing.T) {
		res := acc.Power(math.NaN())
		assert.Equal(t, 2.0, res.PTotal)
	})
	t.Run("negative dt adds no energy", func(t *testing.T) {
		before := acc.EnergyCumJ()
		acc.Apply(Sample{Dt: -time.Second, Utilization: 1})
		assert.Equal(t, before, acc.EnergyCumJ())
	})
}

func TestNew_Merge(t *testing.T) {
	t.Run("nil uses defaults", func(t *testing.T) {
		assert.Equal(t, DefaultConfig(), New(nil).Config())
	})
	t.Run("positive-only overrides", func(t *testing.T) {
		got := New(&Config{PIdle: 3, PMax: -1, Gamma: 0}).Config()
		def := DefaultConfig()
		assert.Equal(t, 3.0, got.PIdle)
		assert.Equal(t, def.PMax, got.PMax)
		assert.Equal(t, def.Gamma, got.Gamma)
	})
	t.Run("pmax clamped to pidle", func(t *testing.T) {
		got := New(&Config{PIdle: 12, PMax: 4}).Config()
		assert.Equal(t, 12.0, got.PMax)
	})
	t.Run("averages empty", func(t *testing.T) {
		assert.Equal(t, Result{}, New(nil).Averages())
	})
}

func ExampleAccumulator_logging() {
	acc := New(&Config{PIdle: 2, PMax: 10, Gamma: 1.3})
	r := acc.Apply(Sample{Dt: time.Second, Utilization: 0.5})
	fmt.Printf("P(dyn)=%.3fW P(total)=%.3fW E=%.3fJ\n", r.PDyn, r.PTotal, acc.EnergyCumJ())
}
