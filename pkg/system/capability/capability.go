// Package capability provides the static SoC description consumed by the
// descriptor builder: identity, memory size, core counts and the supported
// frequency steps of each domain.
package capability

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ja7ad/socmon/pkg/soc"
)

// ErrNoCPUInfo indicates that neither the model name nor a core count could
// be determined.
var ErrNoCPUInfo = errors.New("capability: no cpu information")

// Source returns the capability profile of the host. Frequency lists are
// in MHz, ascending, and unbounded in length.
type Source interface {
	Capabilities() (soc.Descriptor, error)
}

// Func adapts a function to Source.
type Func func() (soc.Descriptor, error)

// Capabilities implements Source.
func (f Func) Capabilities() (soc.Descriptor, error) { return f() }

// Unsupported returns a Source that always fails with soc.ErrUnsupported.
func Unsupported(reason string) Source {
	return Func(func() (soc.Descriptor, error) {
		return soc.Descriptor{}, fmt.Errorf("%w: %s", soc.ErrUnsupported, reason)
	})
}

func sat8(n int) uint8 {
	switch {
	case n < 0:
		return 0
	case n > 255:
		return 255
	default:
		return uint8(n)
	}
}

// roundGB rounds bytes to the nearest GiB; kernels report slightly less
// than the installed size.
func roundGB(total uint64) uint8 {
	gb := (total + 1<<29) >> 30
	if gb > 255 {
		return 255
	}
	return uint8(gb)
}

func mergeFreqs(lists ...[]uint32) []uint32 {
	var out []uint32
	for _, l := range lists {
		out = append(out, l...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
