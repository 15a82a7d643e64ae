// Package cpufreq reads the Linux cpufreq policy tree under
// /sys/devices/system/cpu/cpufreq. All readers take the sysfs root so tests
// can point them at a synthetic tree.
package cpufreq

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/ja7ad/socmon/pkg/system/util"
)

// ErrNoPolicies indicates that no cpufreq policy directory was found.
var ErrNoPolicies = errors.New("cpufreq: no policies")

// Policy is one cpufreq policy: a group of CPUs that share a clock.
type Policy struct {
	Name string // e.g. "policy4"
	Dir  string
	CPUs []int

	MinKHz uint64
	MaxKHz uint64
	// Freqs are the available steps in MHz, ascending.
	Freqs []uint32
	// Stats reports whether stats/time_in_state is readable.
	Stats bool
	// Efficiency is set by ReadPolicies on the lowest-clocked policies when
	// the system has more than one distinct maximum frequency.
	Efficiency bool
}

// StateTime is one line of stats/time_in_state.
type StateTime struct {
	KHz   uint64
	Ticks uint64 // USER_HZ clock ticks
}

// ReadPolicies lists every policy under sysRoot, sorted by name, and
// classifies efficiency policies.
func ReadPolicies(sysRoot string) ([]Policy, error) {
	base := filepath.Join(sysRoot, "devices/system/cpu/cpufreq")
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoPolicies, err)
	}

	var out []Policy
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "policy") {
			continue
		}
		p, err := readPolicy(filepath.Join(base, name))
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, ErrNoPolicies
	}
	sort.Slice(out, func(i, j int) bool {
		return policyIndex(out[i].Name) < policyIndex(out[j].Name)
	})
	classify(out)
	return out, nil
}

func readPolicy(dir string) (Policy, error) {
	p := Policy{Name: filepath.Base(dir), Dir: dir}

	cpus := util.ReadSysfsString(filepath.Join(dir, "related_cpus"))
	if cpus == "" {
		cpus = util.ReadSysfsString(filepath.Join(dir, "affected_cpus"))
	}
	list, err := util.ParseCPUList(cpus)
	if err != nil || len(list) == 0 {
		return Policy{}, fmt.Errorf("cpufreq: %s: no cpus", p.Name)
	}
	p.CPUs = list

	p.MinKHz, _ = util.ReadSysfsUint(filepath.Join(dir, "cpuinfo_min_freq"))
	p.MaxKHz, _ = util.ReadSysfsUint(filepath.Join(dir, "cpuinfo_max_freq"))

	var khz []uint64
	for _, f := range strings.Fields(util.ReadSysfsString(filepath.Join(dir, "scaling_available_frequencies"))) {
		if v, err := strconv.ParseUint(f, 10, 64); err == nil {
			khz = append(khz, v)
		}
	}
	states, err := ReadTimeInState(dir)
	if err == nil {
		p.Stats = true
		if len(khz) == 0 {
			for _, st := range states {
				khz = append(khz, st.KHz)
			}
		}
	}
	if len(khz) == 0 {
		for _, v := range []uint64{p.MinKHz, p.MaxKHz} {
			if v > 0 {
				khz = append(khz, v)
			}
		}
	}
	p.Freqs = ToMHz(khz)
	return p, nil
}

// ReadTimeInState parses stats/time_in_state of the policy directory.
func ReadTimeInState(dir string) ([]StateTime, error) {
	f, err := os.Open(filepath.Join(dir, "stats/time_in_state"))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []StateTime
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fs := strings.Fields(sc.Text())
		if len(fs) < 2 {
			continue
		}
		khz, err1 := strconv.ParseUint(fs[0], 10, 64)
		ticks, err2 := strconv.ParseUint(fs[1], 10, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, StateTime{KHz: khz, Ticks: ticks})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("cpufreq: %s: empty time_in_state", filepath.Base(dir))
	}
	return out, nil
}

// ToMHz converts kHz steps to a sorted, de-duplicated MHz list.
func ToMHz(khz []uint64) []uint32 {
	out := make([]uint32, 0, len(khz))
	for _, v := range khz {
		mhz := uint32((v + 500) / 1000)
		if mhz == 0 {
			continue
		}
		out = append(out, mhz)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func classify(ps []Policy) {
	var lowest uint64
	distinct := map[uint64]struct{}{}
	for _, p := range ps {
		if p.MaxKHz == 0 {
			continue
		}
		distinct[p.MaxKHz] = struct{}{}
		if lowest == 0 || p.MaxKHz < lowest {
			lowest = p.MaxKHz
		}
	}
	if len(distinct) < 2 {
		return
	}
	for i := range ps {
		ps[i].Efficiency = ps[i].MaxKHz == lowest
	}
}

func policyIndex(name string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(name, "policy"))
	if err != nil {
		return 1 << 30
	}
	return n
}
