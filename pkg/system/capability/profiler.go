package capability

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ja7ad/socmon/pkg/soc"
)

// profilerReport is the subset of `system_profiler -json
// SPHardwareDataType SPDisplaysDataType` that is used.
type profilerReport struct {
	Hardware []struct {
		MachineModel     string `json:"machine_model"`
		MachineName      string `json:"machine_name"`
		ChipType         string `json:"chip_type"`
		PhysicalMemory   string `json:"physical_memory"`
		NumberProcessors string `json:"number_processors"`
	} `json:"SPHardwareDataType"`
	Displays []struct {
		Model string `json:"sppci_model"`
		Cores string `json:"sppci_cores"`
	} `json:"SPDisplaysDataType"`
}

// parseSystemProfiler fills identity, memory and core counts. Frequency
// lists are left empty.
func parseSystemProfiler(data []byte) (soc.Descriptor, error) {
	var r profilerReport
	if err := json.Unmarshal(data, &r); err != nil {
		return soc.Descriptor{}, fmt.Errorf("capability: system_profiler: %w", err)
	}
	if len(r.Hardware) == 0 {
		return soc.Descriptor{}, fmt.Errorf("capability: system_profiler: %w", ErrNoCPUInfo)
	}
	hw := r.Hardware[0]

	d := soc.Descriptor{
		MacModel: hw.MachineModel,
		ChipName: hw.ChipType,
		MemoryGB: parseMemoryGB(hw.PhysicalMemory),
	}
	d.PCPUCores, d.ECPUCores = parseProcessors(hw.NumberProcessors)
	for _, g := range r.Displays {
		if n, err := strconv.Atoi(strings.TrimSpace(g.Cores)); err == nil {
			d.GPUCores = sat8(n)
			break
		}
	}
	return d, nil
}

// parseMemoryGB parses "16 GB" or "1 TB".
func parseMemoryGB(s string) uint8 {
	fs := strings.Fields(s)
	if len(fs) == 0 {
		return 0
	}
	n, err := strconv.Atoi(fs[0])
	if err != nil {
		return 0
	}
	if len(fs) > 1 && strings.EqualFold(fs[1], "TB") {
		n *= 1024
	}
	return sat8(n)
}

// parseProcessors parses "proc total:performance:efficiency". Older
// reports carry only the total, which is counted as performance cores.
func parseProcessors(s string) (pcores, ecores uint8) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "proc"))
	parts := strings.Split(s, ":")
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return 0, 0
		}
		nums[i] = n
	}
	switch len(nums) {
	case 1:
		return sat8(nums[0]), 0
	case 3:
		return sat8(nums[1]), sat8(nums[2])
	default:
		return 0, 0
	}
}
