// Package soc holds the data model shared by the sampler, the descriptor
// builder and the C boundary: the growable Descriptor used internally, its
// fixed-capacity boundary form, and the per-window Snapshot.
package soc

import "github.com/ja7ad/socmon/pkg/types"

// Descriptor is the static capability profile of the SoC. Frequency lists
// are in MHz, ascending, and may be of any length; truncation happens only
// in Fixed.
type Descriptor struct {
	MacModel  string   `json:"mac_model" yaml:"mac_model" cbor:"mac_model"`
	ChipName  string   `json:"chip_name" yaml:"chip_name" cbor:"chip_name"`
	MemoryGB  uint8    `json:"memory_gb" yaml:"memory_gb" cbor:"memory_gb"`
	ECPUCores uint8    `json:"ecpu_cores" yaml:"ecpu_cores" cbor:"ecpu_cores"`
	PCPUCores uint8    `json:"pcpu_cores" yaml:"pcpu_cores" cbor:"pcpu_cores"`
	GPUCores  uint8    `json:"gpu_cores" yaml:"gpu_cores" cbor:"gpu_cores"`
	ECPUFreqs []uint32 `json:"ecpu_freqs" yaml:"ecpu_freqs" cbor:"ecpu_freqs"`
	PCPUFreqs []uint32 `json:"pcpu_freqs" yaml:"pcpu_freqs" cbor:"pcpu_freqs"`
	GPUFreqs  []uint32 `json:"gpu_freqs" yaml:"gpu_freqs" cbor:"gpu_freqs"`
}

// Temperature holds window-averaged temperatures in degrees Celsius.
type Temperature struct {
	CPUAvg float32 `json:"cpu_temp_avg" yaml:"cpu_temp_avg" cbor:"cpu_temp_avg"`
	GPUAvg float32 `json:"gpu_temp_avg" yaml:"gpu_temp_avg" cbor:"gpu_temp_avg"`
}

// Memory holds instantaneous memory figures in bytes.
type Memory struct {
	RAMTotal  uint64 `json:"ram_total" yaml:"ram_total" cbor:"ram_total"`
	RAMUsage  uint64 `json:"ram_usage" yaml:"ram_usage" cbor:"ram_usage"`
	SwapTotal uint64 `json:"swap_total" yaml:"swap_total" cbor:"swap_total"`
	SwapUsage uint64 `json:"swap_usage" yaml:"swap_usage" cbor:"swap_usage"`
}

// Clamped returns m with usage capped at the matching total.
func (m Memory) Clamped() Memory {
	if m.RAMUsage > m.RAMTotal {
		m.RAMUsage = m.RAMTotal
	}
	if m.SwapUsage > m.SwapTotal {
		m.SwapUsage = m.SwapTotal
	}
	return m
}

// RAM returns total and used RAM as Bytes.
func (m Memory) RAM() (used, total types.Bytes) {
	return types.ToBytes(m.RAMUsage), types.ToBytes(m.RAMTotal)
}

// Swap returns total and used swap as Bytes.
func (m Memory) Swap() (used, total types.Bytes) {
	return types.ToBytes(m.SwapUsage), types.ToBytes(m.SwapTotal)
}

// Usage is the effective frequency (MHz) and active fraction [0,1] of one
// domain over a window.
type Usage struct {
	Frequency uint32  `json:"frequency" yaml:"frequency" cbor:"frequency"`
	Usage     float32 `json:"usage" yaml:"usage" cbor:"usage"`
}

// Snapshot is the immutable result of one sampling window. Its field order
// and widths are the boundary layout; do not reorder.
type Snapshot struct {
	Temp   Temperature `json:"temp" yaml:"temp" cbor:"temp"`
	Memory Memory      `json:"memory" yaml:"memory" cbor:"memory"`

	ECPU Usage `json:"ecpu_usage" yaml:"ecpu_usage" cbor:"ecpu_usage"`
	PCPU Usage `json:"pcpu_usage" yaml:"pcpu_usage" cbor:"pcpu_usage"`
	GPU  Usage `json:"gpu_usage" yaml:"gpu_usage" cbor:"gpu_usage"`

	// Watts, window-averaged. All is metered independently and is not the
	// sum of the other rails.
	CPUPower    float32 `json:"cpu_power" yaml:"cpu_power" cbor:"cpu_power"`
	GPUPower    float32 `json:"gpu_power" yaml:"gpu_power" cbor:"gpu_power"`
	ANEPower    float32 `json:"ane_power" yaml:"ane_power" cbor:"ane_power"`
	AllPower    float32 `json:"all_power" yaml:"all_power" cbor:"all_power"`
	SysPower    float32 `json:"sys_power" yaml:"sys_power" cbor:"sys_power"`
	RAMPower    float32 `json:"ram_power" yaml:"ram_power" cbor:"ram_power"`
	GPURAMPower float32 `json:"gpu_ram_power" yaml:"gpu_ram_power" cbor:"gpu_ram_power"`
}
