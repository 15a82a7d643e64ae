package capability

import (
	"errors"
	"testing"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ja7ad/socmon/internal/systest"
	"github.com/ja7ad/socmon/pkg/soc"
)

func noCPUInfo() ([]cpu.InfoStat, error) { return nil, nil }

func cpuInfo(name string) func() ([]cpu.InfoStat, error) {
	return func() ([]cpu.InfoStat, error) {
		return []cpu.InfoStat{{ModelName: name}}, nil
	}
}

func count(n int) func() (int, error) { return func() (int, error) { return n, nil } }

func memTotal(b uint64) func() (uint64, error) {
	return func() (uint64, error) { return b, nil }
}

func linuxAt(tr *systest.Tree, opts ...LinuxOption) *Linux {
	base := []LinuxOption{
		WithRoots(tr.Proc(), tr.Sys()),
		WithMemoryTotal(memTotal(15_900 << 20)),
		withCPU(noCPUInfo, count(8)),
		withMachine(func() string { return "aarch64" }),
	}
	return NewLinux(append(base, opts...)...)
}

func TestLinux_BigLittle(t *testing.T) {
	tr := systest.New(t)
	tr.BigLittle()

	d, err := linuxAt(tr).Capabilities()
	require.NoError(t, err)

	assert.Equal(t, "Radxa ROCK 5B", d.MacModel)
	assert.Equal(t, "rockchip,rk3588", d.ChipName)
	assert.Equal(t, uint8(16), d.MemoryGB, "rounded to nearest GiB")
	assert.Equal(t, uint8(4), d.ECPUCores)
	assert.Equal(t, uint8(4), d.PCPUCores)
	assert.Zero(t, d.GPUCores)
	assert.Equal(t, []uint32{408, 816, 1200, 1800}, d.ECPUFreqs)
	assert.Equal(t, []uint32{408, 1200, 1800, 2400}, d.PCPUFreqs)
	assert.Equal(t, []uint32{300, 400, 600, 800, 1000}, d.GPUFreqs)
}

func TestLinux_Identity(t *testing.T) {
	t.Run("cpuinfo model wins", func(t *testing.T) {
		tr := systest.New(t)
		tr.BigLittle()
		d, err := linuxAt(tr, withCPU(cpuInfo("Cortex-A76"), count(8))).Capabilities()
		require.NoError(t, err)
		assert.Equal(t, "Cortex-A76", d.ChipName)
	})

	t.Run("dmi product with vendor", func(t *testing.T) {
		tr := systest.New(t)
		tr.BigLittle()
		tr.Write("sys/class/dmi/id/product_name", "ThinkPad X13\n")
		tr.Write("sys/class/dmi/id/sys_vendor", "LENOVO\n")
		d, err := linuxAt(tr).Capabilities()
		require.NoError(t, err)
		assert.Equal(t, "LENOVO ThinkPad X13", d.MacModel)
	})

	t.Run("dmi placeholder falls back to devicetree", func(t *testing.T) {
		tr := systest.New(t)
		tr.BigLittle()
		tr.Write("sys/class/dmi/id/product_name", "To Be Filled By O.E.M.\n")
		d, err := linuxAt(tr).Capabilities()
		require.NoError(t, err)
		assert.Equal(t, "Radxa ROCK 5B", d.MacModel)
	})

	t.Run("uname machine as last resort", func(t *testing.T) {
		tr := systest.New(t)
		d, err := linuxAt(tr).Capabilities()
		require.NoError(t, err)
		assert.Equal(t, "aarch64", d.ChipName)
		assert.Empty(t, d.MacModel)
	})
}

func TestLinux_NoCpufreq(t *testing.T) {
	tr := systest.New(t)
	d, err := linuxAt(tr, withCPU(cpuInfo("Intel(R) Xeon(R)"), count(12))).Capabilities()
	require.NoError(t, err)
	assert.Equal(t, uint8(12), d.PCPUCores)
	assert.Zero(t, d.ECPUCores)
	assert.Empty(t, d.PCPUFreqs)
	assert.Empty(t, d.GPUFreqs)
}

func TestLinux_Symmetric(t *testing.T) {
	tr := systest.New(t)
	for _, idx := range []int{0, 1} {
		tr.WritePolicy(systest.Policy{
			Index: idx, CPUs: []string{"0", "1"}[idx],
			KHz:    []uint64{800000, 2000000, 3400000},
			MinKHz: 800000, MaxKHz: 3400000,
		})
	}
	d, err := linuxAt(tr).Capabilities()
	require.NoError(t, err)
	assert.Zero(t, d.ECPUCores)
	assert.Equal(t, uint8(2), d.PCPUCores)
	assert.Equal(t, []uint32{800, 2000, 3400}, d.PCPUFreqs, "merged without duplicates")
	assert.Empty(t, d.ECPUFreqs)
}

func TestLinux_Errors(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		tr := systest.New(t)
		tr.BigLittle()
		boom := errors.New("boom")
		_, err := linuxAt(tr, WithMemoryTotal(func() (uint64, error) { return 0, boom })).Capabilities()
		require.ErrorIs(t, err, boom)
	})

	t.Run("nothing known", func(t *testing.T) {
		tr := systest.New(t)
		l := linuxAt(tr,
			withCPU(noCPUInfo, func() (int, error) { return 0, errors.New("no cpus") }),
			withMachine(func() string { return "" }),
		)
		_, err := l.Capabilities()
		require.ErrorIs(t, err, ErrNoCPUInfo)
	})
}

func TestDRMGPU(t *testing.T) {
	t.Run("i915", func(t *testing.T) {
		tr := systest.New(t)
		tr.Write("sys/class/drm/card0-eDP-1/status", "connected\n")
		tr.Write("sys/class/drm/card0/gt_RPn_freq_mhz", "300\n")
		tr.Write("sys/class/drm/card0/gt_RP0_freq_mhz", "1300\n")
		assert.Equal(t, []uint32{300, 1300}, drmGPU(tr.Sys()))
	})

	t.Run("amdgpu", func(t *testing.T) {
		tr := systest.New(t)
		tr.Write("sys/class/drm/renderD128/device/pp_dpm_sclk", "0: 1Mhz\n")
		tr.Write("sys/class/drm/card1/device/pp_dpm_sclk", "0: 500Mhz\n1: 800Mhz *\n2: 2100Mhz\n")
		assert.Equal(t, []uint32{500, 800, 2100}, drmGPU(tr.Sys()))
	})

	t.Run("none", func(t *testing.T) {
		assert.Empty(t, drmGPU(systest.New(t).Sys()))
	})
}

func TestIsCardDevice(t *testing.T) {
	for name, want := range map[string]bool{
		"card0":        true,
		"card12":       true,
		"card":         false,
		"card0-DP-1":   false,
		"renderD128":   false,
		"controlD64":   false,
		"card1-HDMI-2": false,
	} {
		assert.Equal(t, want, isCardDevice(name), name)
	}
}

func TestUnsupported(t *testing.T) {
	_, err := Unsupported("plan9").Capabilities()
	require.ErrorIs(t, err, soc.ErrUnsupported)
	assert.Contains(t, err.Error(), "plan9")
}

func TestRoundGB(t *testing.T) {
	assert.Equal(t, uint8(0), roundGB(0))
	assert.Equal(t, uint8(8), roundGB(7_800<<20))
	assert.Equal(t, uint8(255), roundGB(1<<40))
}
