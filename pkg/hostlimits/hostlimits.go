// Package hostlimits exposes the host resources that bound a VM's
// configuration: the logical CPU count and the physical memory size.
package hostlimits

import (
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/mem"
)

// Limits holds the host's resource ceilings.
type Limits struct {
	// LogicalCPUs is the number of logical processors.
	LogicalCPUs int
	// TotalMemoryMiB is the host's physical memory. A VM may never be
	// granted this much or more.
	TotalMemoryMiB int
}

// Probe reads the host's limits.
func Probe() (*Limits, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil, fmt.Errorf("read host memory: %w", err)
	}
	return &Limits{
		LogicalCPUs:    runtime.NumCPU(),
		TotalMemoryMiB: int(vm.Total / (1024 * 1024)),
	}, nil
}

// AllowsCPUCount reports whether the host has at least n logical CPUs.
func (l *Limits) AllowsCPUCount(n int) bool {
	return n > 0 && n <= l.LogicalCPUs
}

// AllowsMemoryMiB reports whether a VM may be granted n MiB. The bound is
// strict: a guest equal to host memory would starve the host.
func (l *Limits) AllowsMemoryMiB(n int) bool {
	return n > 0 && n < l.TotalMemoryMiB
}
