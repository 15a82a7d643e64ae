// Package cgroup detects the cgroup hierarchy the process runs under and
// reads its memory limit, so memory figures inside a container reflect the
// container rather than the host.
package cgroup

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Version int

const (
	Unsupported Version = iota // non-Linux or no cgroup mounts
	V1                         // legacy multi-hierarchy cgroup v1
	V2                         // unified cgroup v2
	Hybrid                     // both v1 and v2 present
)

func (v Version) String() string {
	switch v {
	case V1:
		return "cgroup v1"
	case V2:
		return "cgroup v2"
	case Hybrid:
		return "cgroup hybrid"
	default:
		return "unsupported"
	}
}

// ErrNoLimit indicates that the cgroup places no memory limit ("max", or
// the v1 page-counter maximum).
var ErrNoLimit = errors.New("cgroup: no memory limit")

// v1 reports "unlimited" as a huge page-aligned number.
const v1Unlimited = 1 << 60

// Mounts are the cgroup mount points found in mountinfo.
type Mounts struct {
	Version Version
	V2      []string
	// V1Memory is the mount point of the v1 memory controller, if any.
	V1Memory string
	V1       []string
}

// DetectFrom parses <procRoot>/self/mountinfo looking for cgroup
// filesystems. The line format has a " - fstype " separator; we only care
// about fstype and, for v1, the controller list in the super options.
func DetectFrom(procRoot string) (Mounts, error) {
	f, err := os.Open(filepath.Join(procRoot, "self/mountinfo"))
	if err != nil {
		return Mounts{}, fmt.Errorf("open mountinfo: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var m Mounts
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		// mountinfo has: <fields> - <fstype> <source> <superopts>
		sep := " - "
		i := strings.LastIndex(line, sep)
		if i < 0 {
			continue
		}
		tail := strings.Fields(line[i+len(sep):])
		if len(tail) < 1 {
			continue
		}

		// Extract the mount point (field 5 in the pre-separator part)
		// Ref: man 5 proc
		pre := strings.Fields(line[:i])
		if len(pre) < 5 {
			continue
		}
		point := pre[4]

		switch tail[0] {
		case "cgroup2":
			m.V2 = append(m.V2, point)
		case "cgroup":
			m.V1 = append(m.V1, point)
			if len(tail) >= 3 && hasOption(tail[2], "memory") {
				m.V1Memory = point
			}
		}
	}
	if err := sc.Err(); err != nil {
		return Mounts{}, fmt.Errorf("scan mountinfo: %w", err)
	}

	switch {
	case len(m.V1) > 0 && len(m.V2) > 0:
		m.Version = Hybrid
	case len(m.V2) > 0:
		m.Version = V2
	case len(m.V1) > 0:
		m.Version = V1
	}
	return m, nil
}

func (m Mounts) String() string {
	switch m.Version {
	case Hybrid:
		return fmt.Sprintf("cgroup2 on %v; cgroup v1 on %v",
			strings.Join(m.V2, ","), strings.Join(m.V1, ","))
	case V2:
		return fmt.Sprintf("cgroup2 on %v", strings.Join(m.V2, ","))
	case V1:
		return fmt.Sprintf("cgroup v1 on %v", strings.Join(m.V1, ","))
	default:
		return "no cgroup mounts found"
	}
}

func hasOption(opts, want string) bool {
	for _, o := range strings.Split(opts, ",") {
		if o == want {
			return true
		}
	}
	return false
}

// Memory is a cgroup memory limit and the working set charged against it.
type Memory struct {
	Limit uint64
	// Usage excludes reclaimable inactive file cache.
	Usage uint64
}

// ReadMemory reads the limit of the cgroup mounted at m. hostRoot is
// prepended to mount points ("" or "/" in production).
//
// The v2 controller is preferred; a v1 memory controller is used when no
// v2 mount exists or the v2 group has no limit.
func ReadMemory(m Mounts, hostRoot string) (Memory, error) {
	var errs []error
	for _, p := range m.V2 {
		mem, err := readV2(filepath.Join(hostRoot, p))
		if err == nil {
			return mem, nil
		}
		errs = append(errs, err)
	}
	if m.V1Memory != "" {
		mem, err := readV1(filepath.Join(hostRoot, m.V1Memory))
		if err == nil {
			return mem, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return Memory{}, ErrNoLimit
	}
	return Memory{}, errors.Join(errs...)
}

func readV2(dir string) (Memory, error) {
	limit, err := readValue(filepath.Join(dir, "memory.max"))
	if err != nil {
		return Memory{}, err
	}
	usage, err := readValue(filepath.Join(dir, "memory.current"))
	if err != nil {
		return Memory{}, err
	}
	inactive, _ := readStat(filepath.Join(dir, "memory.stat"), "inactive_file")
	return Memory{Limit: limit, Usage: workingSet(usage, inactive)}, nil
}

func readV1(dir string) (Memory, error) {
	limit, err := readValue(filepath.Join(dir, "memory.limit_in_bytes"))
	if err != nil {
		return Memory{}, err
	}
	if limit > v1Unlimited {
		return Memory{}, ErrNoLimit
	}
	usage, err := readValue(filepath.Join(dir, "memory.usage_in_bytes"))
	if err != nil {
		return Memory{}, err
	}
	inactive, _ := readStat(filepath.Join(dir, "memory.stat"), "total_inactive_file")
	return Memory{Limit: limit, Usage: workingSet(usage, inactive)}, nil
}

func workingSet(usage, inactive uint64) uint64 {
	if inactive > usage {
		return 0
	}
	return usage - inactive
}

func readValue(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(data))
	if s == "max" {
		return 0, ErrNoLimit
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cgroup: parse %q from %s: %w", s, path, err)
	}
	return v, nil
}

func readStat(path, key string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fs := strings.Fields(sc.Text())
		if len(fs) >= 2 && fs[0] == key {
			return strconv.ParseUint(fs[1], 10, 64)
		}
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("cgroup: %s not in %s", key, path)
}
