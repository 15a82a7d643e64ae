package sysfs

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ja7ad/socmon/pkg/system/counter"
	"github.com/ja7ad/socmon/pkg/system/util"
)

// energyZone is one powercap RAPL zone. raw energy_uj wraps at
// max_energy_range_uj; total accumulates across wraps.
type energyZone struct {
	name  string
	path  string
	rail  counter.Rail
	limit uint64
	last  uint64
	total uint64
	seen  bool
}

func railFor(zone string) (counter.Rail, bool) {
	switch {
	case strings.HasPrefix(zone, "package"):
		return counter.RailAll, true
	case zone == "core":
		return counter.RailCPU, true
	case zone == "uncore":
		return counter.RailGPU, true
	case zone == "dram":
		return counter.RailRAM, true
	case zone == "psys":
		return counter.RailSys, true
	default:
		return 0, false
	}
}

// discoverEnergy lists readable RAPL zones. Zones the process may not read
// (energy_uj is root-only on recent kernels) are skipped.
func discoverEnergy(sysRoot string, log *slog.Logger) []*energyZone {
	dirs, _ := filepath.Glob(filepath.Join(sysRoot, "class/powercap/intel-rapl:*"))
	var out []*energyZone
	for _, dir := range dirs {
		name := util.ReadSysfsString(filepath.Join(dir, "name"))
		rail, ok := railFor(name)
		if !ok {
			continue
		}
		path := filepath.Join(dir, "energy_uj")
		if _, err := util.ReadSysfsUint(path); err != nil {
			if os.IsPermission(err) {
				log.Debug("energy zone not readable", "zone", filepath.Base(dir), "err", err)
			}
			continue
		}
		limit, _ := util.ReadSysfsUint(filepath.Join(dir, "max_energy_range_uj"))
		out = append(out, &energyZone{
			name:  filepath.Base(dir) + "/" + name,
			path:  path,
			rail:  rail,
			limit: limit,
		})
	}
	return out
}

// read returns the cumulative energy since the first read, in µJ.
func (z *energyZone) read() (uint64, error) {
	raw, err := util.ReadSysfsUint(z.path)
	if err != nil {
		return 0, err
	}
	if !z.seen {
		z.last, z.seen = raw, true
		return z.total, nil
	}
	switch {
	case raw >= z.last:
		z.total += raw - z.last
	case z.limit > 0:
		z.total += z.limit - z.last + raw
	}
	z.last = raw
	return z.total, nil
}
