//go:build darwin

package capability

import (
	"context"
	"log/slog"
	"os/exec"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ja7ad/socmon/pkg/soc"
)

const profilerTimeout = 10 * time.Second

// Darwin reads capabilities from system_profiler, falling back to sysctl
// for anything the report lacks.
type Darwin struct {
	log *slog.Logger
}

// NewDarwin returns a Darwin source. A nil logger uses slog.Default().
func NewDarwin(log *slog.Logger) *Darwin {
	if log == nil {
		log = slog.Default()
	}
	return &Darwin{log: log}
}

// Capabilities implements Source.
func (d *Darwin) Capabilities() (soc.Descriptor, error) {
	ctx, cancel := context.WithTimeout(context.Background(), profilerTimeout)
	defer cancel()

	var desc soc.Descriptor
	out, err := exec.CommandContext(ctx, "system_profiler", "-json",
		"SPHardwareDataType", "SPDisplaysDataType").Output()
	if err == nil {
		desc, err = parseSystemProfiler(out)
	}
	if err != nil {
		d.log.Debug("system_profiler unavailable, using sysctl", "err", err)
	}

	if desc.MacModel == "" {
		desc.MacModel, _ = unix.Sysctl("hw.model")
	}
	if desc.ChipName == "" {
		desc.ChipName, _ = unix.Sysctl("machdep.cpu.brand_string")
	}
	if desc.MemoryGB == 0 {
		if total, err := unix.SysctlUint64("hw.memsize"); err == nil {
			desc.MemoryGB = roundGB(total)
		}
	}
	if desc.PCPUCores == 0 && desc.ECPUCores == 0 {
		// perflevel0 is the performance cluster on Apple silicon
		if n, err := unix.SysctlUint32("hw.perflevel0.logicalcpu"); err == nil {
			desc.PCPUCores = sat8(int(n))
		}
		if n, err := unix.SysctlUint32("hw.perflevel1.logicalcpu"); err == nil {
			desc.ECPUCores = sat8(int(n))
		}
	}

	if desc.ChipName == "" && desc.PCPUCores == 0 && desc.ECPUCores == 0 {
		return soc.Descriptor{}, ErrNoCPUInfo
	}
	return desc, nil
}
