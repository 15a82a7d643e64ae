package capability

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"

	"github.com/ja7ad/socmon/pkg/soc"
	"github.com/ja7ad/socmon/pkg/system/cpufreq"
	"github.com/ja7ad/socmon/pkg/system/memory"
	"github.com/ja7ad/socmon/pkg/system/util"
)

// placeholder DMI strings firmware vendors leave unset
var dmiPlaceholders = map[string]bool{
	"To Be Filled By O.E.M.": true,
	"Default string":         true,
	"System Product Name":    true,
	"System manufacturer":    true,
	"Not Applicable":         true,
}

// Linux reads capabilities from sysfs, devicetree and gopsutil.
type Linux struct {
	procRoot string
	sysRoot  string
	cpuInfo  func() ([]cpu.InfoStat, error)
	cpuCount func() (int, error)
	memTotal func() (uint64, error)
	machine  func() string
	log      *slog.Logger
}

// LinuxOption configures a Linux source.
type LinuxOption func(*Linux)

// WithRoots points the source at alternative /proc and /sys trees.
func WithRoots(procRoot, sysRoot string) LinuxOption {
	return func(l *Linux) {
		if procRoot != "" {
			l.procRoot = procRoot
		}
		if sysRoot != "" {
			l.sysRoot = sysRoot
		}
	}
}

// WithMemoryTotal replaces the gopsutil memory total.
func WithMemoryTotal(f func() (uint64, error)) LinuxOption {
	return func(l *Linux) {
		if f != nil {
			l.memTotal = f
		}
	}
}

// WithLinuxLogger sets the logger; nil keeps slog.Default().
func WithLinuxLogger(log *slog.Logger) LinuxOption {
	return func(l *Linux) {
		if log != nil {
			l.log = log
		}
	}
}

func withCPU(info func() ([]cpu.InfoStat, error), count func() (int, error)) LinuxOption {
	return func(l *Linux) {
		l.cpuInfo = info
		l.cpuCount = count
	}
}

func withMachine(f func() string) LinuxOption {
	return func(l *Linux) { l.machine = f }
}

// NewLinux returns a source reading the live system.
func NewLinux(opts ...LinuxOption) *Linux {
	l := &Linux{
		procRoot: "/proc",
		sysRoot:  "/sys",
		cpuInfo:  cpu.Info,
		cpuCount: func() (int, error) { return cpu.Counts(true) },
		memTotal: memory.New().Total,
		machine:  unameMachine,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Capabilities implements Source.
func (l *Linux) Capabilities() (soc.Descriptor, error) {
	var d soc.Descriptor
	d.MacModel = l.model()
	d.ChipName = l.chip()

	total, err := l.memTotal()
	if err != nil {
		return soc.Descriptor{}, fmt.Errorf("capability: memory: %w", err)
	}
	d.MemoryGB = roundGB(total)

	policies, err := cpufreq.ReadPolicies(l.sysRoot)
	if err != nil {
		l.log.Debug("no cpufreq policies", "err", err)
		n, cerr := l.cpuCount()
		if cerr == nil {
			d.PCPUCores = sat8(n)
		}
	}
	var ecpus, pcpus int
	var efreqs, pfreqs [][]uint32
	for _, p := range policies {
		if p.Efficiency {
			ecpus += len(p.CPUs)
			efreqs = append(efreqs, p.Freqs)
		} else {
			pcpus += len(p.CPUs)
			pfreqs = append(pfreqs, p.Freqs)
		}
	}
	if len(policies) > 0 {
		d.ECPUCores, d.PCPUCores = sat8(ecpus), sat8(pcpus)
		d.ECPUFreqs = mergeFreqs(efreqs...)
		d.PCPUFreqs = mergeFreqs(pfreqs...)
	}

	d.GPUFreqs = l.gpuFreqs()

	if d.ChipName == "" && d.ECPUCores == 0 && d.PCPUCores == 0 {
		return soc.Descriptor{}, ErrNoCPUInfo
	}
	return d, nil
}

// model prefers the DMI product name and falls back to the devicetree
// board model.
func (l *Linux) model() string {
	dmi := filepath.Join(l.sysRoot, "class/dmi/id")
	product := util.ReadSysfsString(filepath.Join(dmi, "product_name"))
	if product != "" && !dmiPlaceholders[product] {
		if vendor := util.ReadSysfsString(filepath.Join(dmi, "sys_vendor")); vendor != "" && !dmiPlaceholders[vendor] &&
			!strings.HasPrefix(product, vendor) {
			return vendor + " " + product
		}
		return product
	}
	if m := devicetreeStrings(l.sysRoot, "model"); len(m) > 0 {
		return m[0]
	}
	return ""
}

// chip prefers the cpuinfo model name; ARM kernels often leave it empty,
// in which case the SoC compatible string (the last entry) is used.
func (l *Linux) chip() string {
	if infos, err := l.cpuInfo(); err == nil {
		for _, in := range infos {
			if name := strings.TrimSpace(in.ModelName); name != "" {
				return name
			}
		}
	} else {
		l.log.Debug("cpu info failed", "err", err)
	}
	if compat := devicetreeStrings(l.sysRoot, "compatible"); len(compat) > 0 {
		return compat[len(compat)-1]
	}
	if l.machine != nil {
		return l.machine()
	}
	return ""
}

// devicetreeStrings reads a NUL-separated devicetree property.
func devicetreeStrings(sysRoot, prop string) []string {
	data, err := os.ReadFile(filepath.Join(sysRoot, "firmware/devicetree/base", prop))
	if err != nil {
		return nil
	}
	var out []string
	for _, part := range bytes.Split(data, []byte{0}) {
		if s := strings.TrimSpace(string(part)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// gpuFreqs returns the GPU steps from devfreq, or from the i915/amdgpu DRM
// attributes.
func (l *Linux) gpuFreqs() []uint32 {
	if f := devfreqGPU(l.sysRoot); len(f) > 0 {
		return f
	}
	return drmGPU(l.sysRoot)
}

func isGPUDevfreq(name string) bool {
	n := strings.ToLower(name)
	for _, k := range []string{"gpu", "mali", "kgsl", "adreno", "panfrost"} {
		if strings.Contains(n, k) {
			return true
		}
	}
	return false
}

func devfreqGPU(sysRoot string) []uint32 {
	base := filepath.Join(sysRoot, "class/devfreq")
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		dir := filepath.Join(base, e.Name())
		if !isGPUDevfreq(e.Name()) && !isGPUDevfreq(util.ReadSysfsString(filepath.Join(dir, "name"))) {
			continue
		}
		var khz []uint64
		for _, f := range strings.Fields(util.ReadSysfsString(filepath.Join(dir, "available_frequencies"))) {
			if hz, err := strconv.ParseUint(f, 10, 64); err == nil {
				khz = append(khz, hz/1000)
			}
		}
		if len(khz) > 0 {
			return cpufreq.ToMHz(khz)
		}
	}
	return nil
}

// isCardDevice returns true for DRM card device names (card0, card1, ...)
// but not connectors (card0-DP-1) or render nodes (renderD128).
func isCardDevice(name string) bool {
	suffix, ok := strings.CutPrefix(name, "card")
	if !ok || suffix == "" {
		return false
	}
	for _, c := range suffix {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func drmGPU(sysRoot string) []uint32 {
	base := filepath.Join(sysRoot, "class/drm")
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		if !isCardDevice(e.Name()) {
			continue
		}
		card := filepath.Join(base, e.Name())

		// i915 exposes only the min/max render clocks
		minMHz, err1 := util.ReadSysfsUint(filepath.Join(card, "gt_RPn_freq_mhz"))
		maxMHz, err2 := util.ReadSysfsUint(filepath.Join(card, "gt_RP0_freq_mhz"))
		if err1 == nil && err2 == nil && maxMHz > 0 {
			return cpufreq.ToMHz([]uint64{minMHz * 1000, maxMHz * 1000})
		}

		if f := parseDPM(util.ReadSysfsString(filepath.Join(card, "device/pp_dpm_sclk"))); len(f) > 0 {
			return f
		}
	}
	return nil
}

// parseDPM parses amdgpu pp_dpm_sclk ("0: 500Mhz *").
func parseDPM(s string) []uint32 {
	var khz []uint64
	for _, line := range strings.Split(s, "\n") {
		_, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fs := strings.Fields(rest)
		if len(fs) == 0 {
			continue
		}
		v := strings.TrimSuffix(strings.ToLower(fs[0]), "mhz")
		if mhz, err := strconv.ParseUint(v, 10, 64); err == nil {
			khz = append(khz, mhz*1000)
		}
	}
	return cpufreq.ToMHz(khz)
}
