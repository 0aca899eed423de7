package system

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// Info is a snapshot of the host the panel runs on.
type Info struct {
	Hostname      string  `json:"hostname"`
	OS            string  `json:"os"`
	Platform      string  `json:"platform"`
	KernelVersion string  `json:"kernelVersion"`
	Uptime        uint64  `json:"uptime"`
	CPUCount      int     `json:"cpuCount"`
	CPUPercent    float64 `json:"cpuPercent"`
	MemoryTotal   uint64  `json:"memoryTotal"`
	MemoryUsed    uint64  `json:"memoryUsed"`
	MemoryPercent float64 `json:"memoryPercent"`
	GoVersion     string  `json:"goVersion"`
}

// CollectInfo gathers host, CPU and memory figures. CPU usage is sampled over sample.
func CollectInfo(ctx context.Context, sample time.Duration) (Info, error) {
	info := Info{GoVersion: runtime.Version(), CPUCount: runtime.NumCPU()}

	h, err := host.InfoWithContext(ctx)
	if err != nil {
		return Info{}, err
	}
	info.Hostname = h.Hostname
	info.OS = h.OS
	info.Platform = h.Platform
	info.KernelVersion = h.KernelVersion
	info.Uptime = h.Uptime

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Info{}, err
	}
	info.MemoryTotal = vm.Total
	info.MemoryUsed = vm.Used
	info.MemoryPercent = vm.UsedPercent

	percents, err := cpu.PercentWithContext(ctx, sample, false)
	if err == nil && len(percents) > 0 {
		info.CPUPercent = percents[0]
	}
	return info, nil
}
