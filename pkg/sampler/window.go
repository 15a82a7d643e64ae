package sampler

import (
	"time"

	"github.com/ja7ad/socmon/pkg/soc"
	"github.com/ja7ad/socmon/pkg/system/counter"
)

// window is the accumulation state of one Sample call. It lives only for
// the duration of that call, which is what keeps residency from leaking
// between windows.
type window struct {
	first, last *counter.Counters
	reads       int

	cpuTempSum float64
	cpuTempN   int
	gpuTempSum float64
	gpuTempN   int
}

func newWindow() *window { return &window{} }

// add records one boundary read.
func (w *window) add(c *counter.Counters) {
	if w.first == nil {
		w.first = c
	}
	w.last = c
	w.reads++

	if v, ok := mean(c.CPUTemps); ok {
		w.cpuTempSum += v
		w.cpuTempN++
	}
	if v, ok := mean(c.GPUTemps); ok {
		w.gpuTempSum += v
		w.gpuTempN++
	}
}

// reduce performs the single reduction pass at window end.
func (w *window) reduce(elapsed time.Duration, mem soc.Memory) *soc.Snapshot {
	span := timeBase(w.first, w.last, elapsed)
	usages := domainUsages(w.first.Channels, w.last.Channels, span)
	watts := railWatts(w.first.Energy, w.last.Energy, span)

	snap := &soc.Snapshot{
		Memory: mem.Clamped(),
		ECPU:   usages[counter.ECPU],
		PCPU:   usages[counter.PCPU],
		GPU:    usages[counter.GPU],

		CPUPower:    watts[counter.RailCPU],
		GPUPower:    watts[counter.RailGPU],
		ANEPower:    watts[counter.RailANE],
		AllPower:    watts[counter.RailAll],
		SysPower:    watts[counter.RailSys],
		RAMPower:    watts[counter.RailRAM],
		GPURAMPower: watts[counter.RailGPURAM],
	}
	if w.cpuTempN > 0 {
		snap.Temp.CPUAvg = float32(w.cpuTempSum / float64(w.cpuTempN))
	}
	if w.gpuTempN > 0 {
		snap.Temp.GPUAvg = float32(w.gpuTempSum / float64(w.gpuTempN))
	}
	return snap
}

// timeBase prefers the source's own span when it advanced during the
// window, falling back to wall time.
func timeBase(first, last *counter.Counters, elapsed time.Duration) time.Duration {
	if last.Span > first.Span {
		return last.Span - first.Span
	}
	return elapsed
}

func mean(vs []float64) (float64, bool) {
	if len(vs) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs)), true
}
