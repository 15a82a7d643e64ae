package config

import (
	"log/slog"
	"runtime"

	"github.com/ja7ad/socmon/pkg/system/capability"
	"github.com/ja7ad/socmon/pkg/system/counter"
	"github.com/ja7ad/socmon/pkg/system/counter/powermetrics"
	"github.com/ja7ad/socmon/pkg/system/counter/sysfs"
	"github.com/ja7ad/socmon/pkg/system/memory"
)

// ResolveSource maps "auto" to the source for goos.
func ResolveSource(name, goos string) string {
	if name != SourceAuto {
		return name
	}
	switch goos {
	case "darwin":
		return SourcePowermetrics
	case "linux":
		return SourceSysfs
	default:
		return ""
	}
}

// Sources builds the counter and capability sources selected by c. An
// unsupported host yields sources that fail with soc.ErrUnsupported.
func (c *Config) Sources(log *slog.Logger) (counter.Source, capability.Source) {
	if log == nil {
		log = slog.Default()
	}
	memOpts := []memory.Option{memory.WithLogger(log)}
	if c.Memory.CgroupAware {
		memOpts = append(memOpts, memory.WithCgroup(c.ProcRoot, ""))
	}
	mem := memory.New(memOpts...)

	switch ResolveSource(c.Source, runtime.GOOS) {
	case SourceSysfs:
		opts := []sysfs.Option{
			sysfs.WithRoots(c.ProcRoot, c.SysRoot),
			sysfs.WithMemory(mem),
			sysfs.WithLogger(log),
		}
		if c.PowerModel.Enabled {
			model := c.PowerModel.Config
			opts = append(opts, sysfs.WithPowerModel(&model))
		}
		caps := capability.NewLinux(
			capability.WithRoots(c.ProcRoot, c.SysRoot),
			capability.WithMemoryTotal(mem.Total),
			capability.WithLinuxLogger(log),
		)
		return sysfs.New(opts...), caps
	case SourcePowermetrics:
		src := powermetrics.New(powermetrics.Config{
			Path:     c.Powermetrics.Path,
			Interval: c.Powermetrics.Interval.Std(),
		}, powermetrics.WithMemory(mem), powermetrics.WithLogger(log))
		return src, capability.Default(log)
	default:
		return counter.Unsupported(runtime.GOOS), capability.Unsupported(runtime.GOOS)
	}
}
