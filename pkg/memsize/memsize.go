// Package memsize detects available system memory for the admission
// controller's auto-sizing policy, portably across Linux, Darwin, and
// Windows via gopsutil rather than hand-parsed /proc/meminfo or sysctl
// output.
package memsize

import (
	"context"

	"github.com/shirou/gopsutil/v3/mem"
)

// defaultParallelLimit is returned when available memory cannot be
// determined at all.
const defaultParallelLimit = 4

const (
	minParallelLimit = 1
	maxParallelLimit  = 16
	// bytesPerSlot is the amount of available memory mapped to one unit of
	// parallel_limit: one slot per 2 GiB available.
	bytesPerSlot = 2 << 30
)

// AvailableBytes returns currently available physical memory in bytes. ok
// is false if the platform-specific query failed.
func AvailableBytes(_ context.Context) (available uint64, ok bool) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, false
	}
	return vm.Available, true
}

// AutoParallelLimit maps available memory to a parallel_limit in [1, 16],
// one slot per 2 GiB available, falling back to defaultParallelLimit when
// memory cannot be determined. This backs admission.Config's "auto" mode.
func AutoParallelLimit(ctx context.Context) int {
	available, ok := AvailableBytes(ctx)
	if !ok {
		return defaultParallelLimit
	}

	limit := int(available / bytesPerSlot)
	if limit < minParallelLimit {
		limit = minParallelLimit
	}
	if limit > maxParallelLimit {
		limit = maxParallelLimit
	}
	return limit
}
