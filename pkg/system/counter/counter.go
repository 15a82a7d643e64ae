// Package counter defines the hardware counter source consumed by the
// sampling engine. A Source opens a Session; the session exposes
// cumulative counters that the engine reads at window boundaries and
// differences itself. Implementations live in subpackages.
package counter

import (
	"fmt"
	"time"

	"github.com/ja7ad/socmon/pkg/soc"
)

// Domain is a hardware subsystem tracked independently.
type Domain int

const (
	ECPU Domain = iota // efficiency CPU cluster(s)
	PCPU               // performance CPU cluster(s)
	GPU
)

func (d Domain) String() string {
	switch d {
	case ECPU:
		return "ecpu"
	case PCPU:
		return "pcpu"
	case GPU:
		return "gpu"
	default:
		return fmt.Sprintf("domain(%d)", int(d))
	}
}

// Rail is an independently metered power-delivery path.
type Rail int

const (
	RailCPU Rail = iota
	RailGPU
	RailANE
	RailAll
	RailSys
	RailRAM
	RailGPURAM
)

func (r Rail) String() string {
	switch r {
	case RailCPU:
		return "cpu"
	case RailGPU:
		return "gpu"
	case RailANE:
		return "ane"
	case RailAll:
		return "all"
	case RailSys:
		return "sys"
	case RailRAM:
		return "ram"
	case RailGPURAM:
		return "gpu_ram"
	default:
		return fmt.Sprintf("rail(%d)", int(r))
	}
}

// Step is the cumulative residency at one frequency step.
type Step struct {
	MHz       uint32
	Residency time.Duration
}

// Channel is one residency counter group, e.g. a CPU cluster or a cpufreq
// policy. Channels are matched across reads by (Domain, Name).
type Channel struct {
	Domain Domain
	Name   string
	// Idle is the cumulative idle residency, normalized to one core.
	Idle  time.Duration
	Steps []Step
}

// Counters is one read of a session. Residency and energy are cumulative
// since the session was opened; temperatures are instantaneous.
type Counters struct {
	Channels []Channel
	// Energy is cumulative energy per rail in microjoules. A rail the
	// source does not meter is absent.
	Energy   map[Rail]uint64
	CPUTemps []float64
	GPUTemps []float64
	// Span is the cumulative time covered by the counters when the source
	// integrates its own samples (e.g. a subprocess emitting fixed
	// intervals). Zero means the counters track wall time.
	Span time.Duration
}

// Session is a live subscription to a counter source. It is not safe for
// concurrent use.
type Session interface {
	// Read returns the current cumulative counters.
	Read() (*Counters, error)
	// Memory returns instantaneous RAM and swap figures.
	Memory() (soc.Memory, error)
	// Close releases the underlying resources.
	Close() error
}

// Source opens sessions against a hardware counter provider.
type Source interface {
	Name() string
	Open() (Session, error)
}

type unsupported struct{ reason string }

// Unsupported returns a Source whose Open always fails with
// soc.ErrUnsupported.
func Unsupported(reason string) Source { return unsupported{reason: reason} }

func (u unsupported) Name() string { return "unsupported" }

func (u unsupported) Open() (Session, error) {
	return nil, fmt.Errorf("%w: %s", soc.ErrUnsupported, u.reason)
}
