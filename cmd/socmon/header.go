package main

import (
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/ja7ad/socmon/pkg/types"
)

const _console = `socmon - SoC telemetry sampler

       Host: %s
       Kernel: %s
       Platform: %s
       CPUs: %d
       Mem: %s
       Source: %s

socmon report as of %s:

`

// printHostHeader prints the banner above the table. Fields gopsutil
// cannot read are shown as "unknown".
func printHostHeader(w io.Writer, source string) {
	hostname, kernel, platform := "unknown", "unknown", runtime.GOOS
	if info, err := host.Info(); err == nil {
		hostname = info.Hostname
		kernel = info.KernelVersion
		platform = fmt.Sprintf("%s %s (%s)", info.Platform, info.PlatformVersion, info.KernelArch)
	}
	memory := "unknown"
	if vm, err := mem.VirtualMemory(); err == nil {
		memory = types.Usage(types.ToBytes(vm.Used), types.ToBytes(vm.Total))
	}
	fmt.Fprintf(w, _console, hostname, kernel, platform, runtime.NumCPU(), memory, source,
		time.Now().Format("2006-01-02 15:04:05"))
}
