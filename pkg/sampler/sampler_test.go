package sampler

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ja7ad/socmon/pkg/soc"
	"github.com/ja7ad/socmon/pkg/system/counter"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openFake(t *testing.T, src *fakeSource, clock Clock, opts ...Option) *Sampler {
	t.Helper()
	opts = append([]Option{WithClock(clock), WithLogger(quietLogger())}, opts...)
	s, err := New(src, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSample_Reduction(t *testing.T) {
	clock := newFakeClock()
	src := newFake(clock, busyLoad())
	s := openFake(t, src, clock)

	snap, err := s.Sample(500 * time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, snap)

	t.Run("cpu domains", func(t *testing.T) {
		assert.Equal(t, uint32(900), snap.ECPU.Frequency)
		assert.InDelta(t, 0.25, snap.ECPU.Usage, 1e-6)

		// P0 (2500 MHz, 0.5) and P1 (2000 MHz, 0.7) are averaged.
		assert.Equal(t, uint32(2250), snap.PCPU.Frequency)
		assert.InDelta(t, 0.6, snap.PCPU.Usage, 1e-6)
	})

	t.Run("gpu ignores steps without residency", func(t *testing.T) {
		assert.Equal(t, uint32(400), snap.GPU.Frequency)
		assert.InDelta(t, 0.1, snap.GPU.Usage, 1e-6)
	})

	t.Run("power rails", func(t *testing.T) {
		assert.InDelta(t, 2.5, snap.CPUPower, 1e-4)
		assert.InDelta(t, 0.5, snap.GPUPower, 1e-4)
		assert.InDelta(t, 0.0, snap.ANEPower, 1e-4)
		assert.InDelta(t, 0.25, snap.RAMPower, 1e-4)
		assert.InDelta(t, 0.0, snap.SysPower, 1e-4)
		assert.InDelta(t, 0.0, snap.GPURAMPower, 1e-4)
	})

	t.Run("all rail is metered not summed", func(t *testing.T) {
		assert.InDelta(t, 4.0, snap.AllPower, 1e-4)
		assert.NotEqual(t, snap.CPUPower+snap.GPUPower+snap.ANEPower, snap.AllPower)
	})

	t.Run("temperatures", func(t *testing.T) {
		assert.InDelta(t, 45.0, snap.Temp.CPUAvg, 1e-4)
		assert.InDelta(t, 35.0, snap.Temp.GPUAvg, 1e-4)
	})

	t.Run("memory", func(t *testing.T) {
		assert.Equal(t, src.sess.mem, snap.Memory)
	})

	// one baseline read plus one per step
	assert.Equal(t, DefaultSteps+1, src.sess.reads)
}

func TestSample_LateCounters(t *testing.T) {
	clock := newFakeClock()
	src := newFake(clock, busyLoad())
	src.sess.late = true
	s := openFake(t, src, clock)

	snap, err := s.Sample(500 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, uint32(900), snap.ECPU.Frequency)
	assert.InDelta(t, 0.25, snap.ECPU.Usage, 1e-6)
	assert.InDelta(t, 2.5, snap.CPUPower, 1e-4)
	assert.InDelta(t, 4.0, snap.AllPower, 1e-4)
}

func TestSample_WindowLength(t *testing.T) {
	t.Run("default window", func(t *testing.T) {
		clock := newFakeClock()
		s := openFake(t, newFake(clock, busyLoad()), clock)

		start := clock.Now()
		_, err := s.Sample(0)
		require.NoError(t, err)
		assert.Equal(t, DefaultWindow, clock.Now().Sub(start))
	})

	t.Run("configured default", func(t *testing.T) {
		clock := newFakeClock()
		s := openFake(t, newFake(clock, busyLoad()), clock, WithWindow(200*time.Millisecond))

		start := clock.Now()
		_, err := s.Sample(-time.Second)
		require.NoError(t, err)
		assert.Equal(t, 200*time.Millisecond, clock.Now().Sub(start))
	})

	t.Run("tiny window reads once", func(t *testing.T) {
		clock := newFakeClock()
		src := newFake(clock, busyLoad())
		s := openFake(t, src, clock, WithSteps(8))

		_, err := s.Sample(3 * time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, 2, src.sess.reads)
	})

	t.Run("real clock blocks at least the window", func(t *testing.T) {
		src := newFake(newFakeClock(), busyLoad())
		s, err := New(src, WithLogger(quietLogger()))
		require.NoError(t, err)
		defer s.Close()

		const window = 20 * time.Millisecond
		start := time.Now()
		snap, err := s.Sample(window)
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.GreaterOrEqual(t, time.Since(start), window)
	})
}

func TestSample_WindowsAreIndependent(t *testing.T) {
	clock := newFakeClock()
	src := newFake(clock, busyLoad())
	s := openFake(t, src, clock)

	first, err := s.Sample(500 * time.Millisecond)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, first.ECPU.Usage, 1e-6)

	// E cluster goes fully busy at a single step.
	src.sess.load.idle["E"] = 0
	src.sess.load.shares["E"] = map[uint32]float64{1800: 1}

	second, err := s.Sample(500 * time.Millisecond)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, second.ECPU.Usage, 1e-6)
	assert.Equal(t, uint32(1800), second.ECPU.Frequency)

	// idle gap between calls must not leak into the next window
	clock.Sleep(10 * time.Second)
	src.sess.load.idle["E"] = 0.5
	third, err := s.Sample(500 * time.Millisecond)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, third.ECPU.Usage, 1e-6)
}

func TestSample_UsageBounds(t *testing.T) {
	clock := newFakeClock()
	l := busyLoad()
	// idle accrues faster than wall time, as when per-CPU counters are
	// summed over a cluster
	l.idle["E"] = 1.7
	s := openFake(t, newFake(clock, l), clock)

	snap, err := s.Sample(500 * time.Millisecond)
	require.NoError(t, err)
	for name, u := range map[string]soc.Usage{"ecpu": snap.ECPU, "pcpu": snap.PCPU, "gpu": snap.GPU} {
		assert.GreaterOrEqual(t, u.Usage, float32(0), name)
		assert.LessOrEqual(t, u.Usage, float32(1), name)
	}
	assert.Equal(t, float32(0), snap.ECPU.Usage)
}

func TestSample_MissingDomain(t *testing.T) {
	clock := newFakeClock()
	l := busyLoad()
	delete(l.idle, "GPU")
	delete(l.shares, "GPU")
	l.gpuT = nil
	s := openFake(t, newFake(clock, l), clock)

	snap, err := s.Sample(500 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, soc.Usage{}, snap.GPU)
	assert.Equal(t, float32(0), snap.Temp.GPUAvg)
	assert.NotZero(t, snap.PCPU.Frequency)
}

func TestSample_SourceTimeBase(t *testing.T) {
	clock := newFakeClock()
	src := newFake(clock, busyLoad())
	src.sess.spanScale = 2
	s := openFake(t, src, clock)

	snap, err := s.Sample(500 * time.Millisecond)
	require.NoError(t, err)

	// 375ms idle over a 1s source span
	assert.InDelta(t, 0.625, snap.ECPU.Usage, 1e-6)
	assert.InDelta(t, 1.25, snap.CPUPower, 1e-4)
	assert.InDelta(t, 2.0, snap.AllPower, 1e-4)
}

func TestSample_MemoryClamped(t *testing.T) {
	clock := newFakeClock()
	src := newFake(clock, busyLoad())
	src.sess.mem = soc.Memory{RAMTotal: 8 << 30, RAMUsage: 9 << 30, SwapTotal: 0, SwapUsage: 1 << 20}
	s := openFake(t, src, clock)

	snap, err := s.Sample(100 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, uint64(8<<30), snap.Memory.RAMUsage)
	assert.Equal(t, uint64(0), snap.Memory.SwapUsage)
}

func TestSample_Errors(t *testing.T) {
	t.Run("read failure mid window", func(t *testing.T) {
		clock := newFakeClock()
		src := newFake(clock, busyLoad())
		src.sess.failAfter = 3
		s := openFake(t, src, clock)

		snap, err := s.Sample(500 * time.Millisecond)
		require.Error(t, err)
		assert.Nil(t, snap)
		assert.ErrorIs(t, err, soc.ErrSampling)
		assert.Equal(t, "sampling", soc.Kind(err))
	})

	t.Run("memory failure", func(t *testing.T) {
		clock := newFakeClock()
		src := newFake(clock, busyLoad())
		src.sess.memErr = errors.New("meminfo gone")
		s := openFake(t, src, clock)

		snap, err := s.Sample(100 * time.Millisecond)
		assert.Nil(t, snap)
		assert.ErrorIs(t, err, soc.ErrSampling)
	})

	t.Run("sample after close", func(t *testing.T) {
		clock := newFakeClock()
		src := newFake(clock, busyLoad())
		s := openFake(t, src, clock)
		require.NoError(t, s.Close())

		snap, err := s.Sample(100 * time.Millisecond)
		assert.Nil(t, snap)
		assert.ErrorIs(t, err, soc.ErrSampling)
		assert.ErrorIs(t, err, soc.ErrClosed)
	})
}

func TestNew(t *testing.T) {
	t.Run("nil source", func(t *testing.T) {
		s, err := New(nil)
		assert.Nil(t, s)
		assert.ErrorIs(t, err, soc.ErrInit)
	})

	t.Run("open failure", func(t *testing.T) {
		cause := errors.New("permission denied")
		src := newFake(newFakeClock(), busyLoad())
		src.openErr = cause

		s, err := New(src, WithLogger(quietLogger()))
		assert.Nil(t, s)
		assert.ErrorIs(t, err, soc.ErrInit)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "init", soc.Kind(err))
	})

	t.Run("unsupported source", func(t *testing.T) {
		s, err := New(counter.Unsupported("plan9"), WithLogger(quietLogger()))
		assert.Nil(t, s)
		assert.ErrorIs(t, err, soc.ErrInit)
		assert.ErrorIs(t, err, soc.ErrUnsupported)
	})

	t.Run("identity", func(t *testing.T) {
		clock := newFakeClock()
		a := openFake(t, newFake(clock, busyLoad()), clock)
		b := openFake(t, newFake(clock, busyLoad()), clock)
		assert.NotEmpty(t, a.ID())
		assert.NotEqual(t, a.ID(), b.ID())
		assert.Equal(t, "fake", a.Source())
	})
}

func TestClose_Idempotent(t *testing.T) {
	clock := newFakeClock()
	src := newFake(clock, busyLoad())
	s, err := New(src, WithClock(clock), WithLogger(quietLogger()))
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, src.sess.closes)
}
