package proc

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ClockTicks returns the number of jiffies (clock ticks) per second.
// It first checks the env var CLK_TCK (useful for testing), otherwise
// falls back to 100 (common default).
//
// Note: On real systems, the authoritative way is `sysconf(_SC_CLK_TCK)`,
// but calling that requires cgo. USER_HZ is 100 on every mainstream
// architecture.
func ClockTicks() int {
	v, _ := strconv.Atoi(os.Getenv("CLK_TCK"))
	if v > 0 {
		return v
	}
	return 100
}

// TicksToDuration converts USER_HZ ticks to a duration.
func TicksToDuration(ticks uint64) time.Duration {
	hz := uint64(ClockTicks())
	sec := ticks / hz
	rem := ticks % hz
	return time.Duration(sec)*time.Second + time.Duration(rem)*time.Second/time.Duration(hz)
}

// CPUTimes are the cumulative tick counters of one /proc/stat cpu line.
type CPUTimes struct {
	Active uint64 // user + nice + system + irq + softirq + steal
	Idle   uint64 // idle + iowait
}

// Total is Active + Idle.
func (c CPUTimes) Total() uint64 { return c.Active + c.Idle }

// ReadCPUTimes parses the per-CPU lines of <procRoot>/stat, keyed by CPU
// number. Offline CPUs have no line and are absent from the map.
func ReadCPUTimes(procRoot string) (map[int]CPUTimes, error) {
	out := map[int]CPUTimes{}
	err := scanStat(procRoot, func(name string, t CPUTimes) bool {
		if name == "cpu" {
			return true
		}
		n, err := strconv.Atoi(strings.TrimPrefix(name, "cpu"))
		if err == nil {
			out[n] = t
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNoCPU
	}
	return out, nil
}

// ReadSystemCPU parses /proc/stat for the aggregate CPU line and returns:
// - active: user + nice + system + irq + softirq + steal
// - total:  active + idle + iowait
//
// These are jiffy counters (monotonic increasing). You need to take
// deltas between samples to compute utilization.
func ReadSystemCPU(procRoot string) (active, total uint64, err error) {
	found := false
	err = scanStat(procRoot, func(name string, t CPUTimes) bool {
		if name != "cpu" {
			return true
		}
		active, total, found = t.Active, t.Total(), true
		return false
	})
	if err != nil {
		return 0, 0, err
	}
	if !found {
		return 0, 0, ErrNoCPU
	}
	return active, total, nil
}

// scanStat calls fn for every cpu line until fn returns false.
func scanStat(procRoot string, fn func(name string, t CPUTimes) bool) error {
	f, err := os.Open(filepath.Join(procRoot, "stat"))
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fs := strings.Fields(sc.Text())
		if len(fs) == 0 || !strings.HasPrefix(fs[0], "cpu") {
			continue
		}
		if len(fs) < 8 {
			return fmt.Errorf("%w: %s", ErrShortStat, fs[0])
		}
		// user nice system idle iowait irq softirq [steal]
		vals := make([]uint64, 8)
		for i := 0; i < 8 && i+1 < len(fs); i++ {
			vals[i], _ = strconv.ParseUint(fs[i+1], 10, 64)
		}
		t := CPUTimes{
			Active: vals[0] + vals[1] + vals[2] + vals[5] + vals[6] + vals[7],
			Idle:   vals[3] + vals[4],
		}
		if !fn(fs[0], t) {
			return nil
		}
	}
	return sc.Err()
}
