// Package systest builds synthetic /proc and /sys trees for tests of the
// Linux readers.
package systest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Tree is a temporary root holding proc/ and sys/.
type Tree struct {
	t    testing.TB
	Root string
}

// New creates an empty tree under t.TempDir().
func New(t testing.TB) *Tree {
	t.Helper()
	return &Tree{t: t, Root: t.TempDir()}
}

// Proc returns the synthetic /proc root.
func (tr *Tree) Proc() string { return filepath.Join(tr.Root, "proc") }

// Sys returns the synthetic /sys root.
func (tr *Tree) Sys() string { return filepath.Join(tr.Root, "sys") }

// Write creates rel under the root with content, making parent directories.
func (tr *Tree) Write(rel, content string) {
	tr.t.Helper()
	full := filepath.Join(tr.Root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		tr.t.Fatalf("mkdir %s: %v", filepath.Dir(full), err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		tr.t.Fatalf("write %s: %v", full, err)
	}
}

// Policy describes one synthetic cpufreq policy.
type Policy struct {
	Index  int
	CPUs   string   // cpulist, e.g. "0-3"
	KHz    []uint64 // ascending steps
	Ticks  []uint64 // time_in_state per step; nil omits the stats file
	MinKHz uint64
	MaxKHz uint64
}

// WritePolicy writes a cpufreq policy directory.
func (tr *Tree) WritePolicy(p Policy) {
	tr.t.Helper()
	dir := fmt.Sprintf("sys/devices/system/cpu/cpufreq/policy%d", p.Index)
	tr.Write(dir+"/related_cpus", p.CPUs+"\n")
	tr.Write(dir+"/affected_cpus", p.CPUs+"\n")
	tr.Write(dir+"/cpuinfo_min_freq", fmt.Sprintf("%d\n", p.MinKHz))
	tr.Write(dir+"/cpuinfo_max_freq", fmt.Sprintf("%d\n", p.MaxKHz))

	steps := make([]string, len(p.KHz))
	for i, k := range p.KHz {
		steps[i] = fmt.Sprint(k)
	}
	tr.Write(dir+"/scaling_available_frequencies", strings.Join(steps, " ")+" \n")

	if p.Ticks != nil {
		var b strings.Builder
		for i, k := range p.KHz {
			fmt.Fprintf(&b, "%d %d\n", k, p.Ticks[i])
		}
		tr.Write(dir+"/stats/time_in_state", b.String())
	}
}

// CPUStat is one per-CPU line of /proc/stat in USER_HZ ticks.
type CPUStat struct {
	User, Nice, System, Idle, IOWait, IRQ, SoftIRQ, Steal uint64
}

// WriteStat writes /proc/stat with an aggregate line followed by one line
// per CPU.
func (tr *Tree) WriteStat(cpus []CPUStat) {
	tr.t.Helper()
	var sum CPUStat
	for _, c := range cpus {
		sum.User += c.User
		sum.Nice += c.Nice
		sum.System += c.System
		sum.Idle += c.Idle
		sum.IOWait += c.IOWait
		sum.IRQ += c.IRQ
		sum.SoftIRQ += c.SoftIRQ
		sum.Steal += c.Steal
	}
	line := func(name string, c CPUStat) string {
		return fmt.Sprintf("%s %d %d %d %d %d %d %d %d 0 0\n", name,
			c.User, c.Nice, c.System, c.Idle, c.IOWait, c.IRQ, c.SoftIRQ, c.Steal)
	}

	var b strings.Builder
	b.WriteString(line("cpu ", sum))
	for i, c := range cpus {
		b.WriteString(line(fmt.Sprintf("cpu%d", i), c))
	}
	b.WriteString("intr 12345 0 0\nctxt 987654\nbtime 1700000000\nprocesses 4242\n")
	tr.Write("proc/stat", b.String())
}

// BigLittle writes an eight-core two-cluster SoC: policy0 (cpu0-3, up to
// 1800 MHz) and policy4 (cpu4-7, up to 2400 MHz), a devicetree identity,
// a devfreq GPU and two thermal zones.
func (tr *Tree) BigLittle() {
	tr.t.Helper()
	tr.WritePolicy(Policy{
		Index: 0, CPUs: "0-3",
		KHz:    []uint64{408000, 816000, 1200000, 1800000},
		Ticks:  []uint64{1000, 200, 50, 10},
		MinKHz: 408000, MaxKHz: 1800000,
	})
	tr.WritePolicy(Policy{
		Index: 4, CPUs: "4-7",
		KHz:    []uint64{408000, 1200000, 1800000, 2400000},
		Ticks:  []uint64{500, 100, 100, 300},
		MinKHz: 408000, MaxKHz: 2400000,
	})
	tr.WriteStat(make([]CPUStat, 8))

	tr.Write("sys/firmware/devicetree/base/model", "Radxa ROCK 5B\x00")
	tr.Write("sys/firmware/devicetree/base/compatible", "radxa,rock-5b\x00rockchip,rk3588\x00")

	tr.Write("sys/class/devfreq/fb000000.gpu/available_frequencies",
		"300000000 400000000 600000000 800000000 1000000000\n")
	tr.Write("sys/class/devfreq/fb000000.gpu/cur_freq", "400000000\n")
	tr.Write("sys/class/devfreq/dmc/available_frequencies", "528000000 1068000000\n")

	tr.Write("sys/class/thermal/thermal_zone0/type", "soc-thermal\n")
	tr.Write("sys/class/thermal/thermal_zone0/temp", "45000\n")
	tr.Write("sys/class/thermal/thermal_zone1/type", "gpu-thermal\n")
	tr.Write("sys/class/thermal/thermal_zone1/temp", "40500\n")
}
