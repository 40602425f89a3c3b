package taskqueue

import (
	"runtime"

	"github.com/shirou/gopsutil/v4/mem"
)

const (
	defaultLoadFactor = 2

	// how many concurrent clones one GB of available memory is assumed
	// to sustain
	tasksPerAvailableGB = 10
)

// MaxConcurrentTasks derives a concurrency cap from the host's resources:
// the smaller of cpuCount * loadFactor and availableMemoryGB * 10, never
// below 1. When available memory cannot be read the cpu term alone is used.
func MaxConcurrentTasks(loadFactor int) int {
	if loadFactor <= 0 {
		loadFactor = defaultLoadFactor
	}

	limit := runtime.NumCPU() * loadFactor
	if vm, err := mem.VirtualMemory(); err == nil {
		byMem := int(vm.Available>>30) * tasksPerAvailableGB
		limit = min(limit, byMem)
	}

	return max(limit, 1)
}
