package sysfs

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ja7ad/socmon/pkg/system/util"
)

type thermalKind int

const (
	thermalCPU thermalKind = iota
	thermalGPU
)

type thermalZone struct {
	path string
	kind thermalKind
}

// classifyThermal maps a thermal_zone type to a domain. Unrelated zones
// (battery, wifi, ...) are ignored.
func classifyThermal(typ string) (thermalKind, bool) {
	t := strings.ToLower(typ)
	switch {
	case strings.Contains(t, "gpu"), strings.Contains(t, "gfx"):
		return thermalGPU, true
	case strings.Contains(t, "cpu"), strings.Contains(t, "soc"),
		strings.Contains(t, "pkg"), strings.Contains(t, "core"),
		strings.Contains(t, "x86"):
		return thermalCPU, true
	default:
		return 0, false
	}
}

func discoverThermal(sysRoot string) []thermalZone {
	dirs, _ := filepath.Glob(filepath.Join(sysRoot, "class/thermal/thermal_zone*"))
	var out []thermalZone
	for _, dir := range dirs {
		kind, ok := classifyThermal(util.ReadSysfsString(filepath.Join(dir, "type")))
		if !ok {
			continue
		}
		out = append(out, thermalZone{path: filepath.Join(dir, "temp"), kind: kind})
	}
	return out
}

// readThermal returns current readings in °C. Zones that fail to read or
// report a non-positive value are skipped for this read.
func readThermal(zones []thermalZone) (cpu, gpu []float64) {
	for _, z := range zones {
		milli, err := strconv.ParseInt(util.ReadSysfsString(z.path), 10, 64)
		if err != nil || milli <= 0 {
			continue
		}
		c := float64(milli) / 1000
		if z.kind == thermalGPU {
			gpu = append(gpu, c)
		} else {
			cpu = append(cpu, c)
		}
	}
	return cpu, gpu
}
