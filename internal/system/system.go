package system

import (
	"errors"
	"fmt"
	"log"
	"syscall"

	"github.com/shirou/gopsutil/v3/mem"
)

// InitResourceLimits поднимает лимит открытых файлов: загрузчик открывает
// все кадры последовательности одновременно.
func InitResourceLimits(frames int) {
	var rLimit syscall.Rlimit
	err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		log.Printf("[!] Failed to read open file limit: %v", err)
		return
	}

	want := uint64(frames) + 256
	if want < 2048 {
		want = 2048
	}
	if rLimit.Cur >= want {
		return
	}
	rLimit.Cur = want
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}

	err = syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		log.Printf("[!] Failed to raise open file limit: %v", err)
	} else {
		fmt.Printf("[*] Open file limit raised to %d\n", rLimit.Cur)
	}
}

// ErrOverBudget means the decoded sequence will not fit in available memory.
var ErrOverBudget = errors.New("frame sequence exceeds available memory")

// FrameSetBytes estimates the decoded size of count RGBA frames of w x h.
func FrameSetBytes(count, w, h int) uint64 {
	if count <= 0 || w <= 0 || h <= 0 {
		return 0
	}
	return uint64(count) * uint64(w) * uint64(h) * 4
}

// CheckMemoryBudget compares the estimated sequence size with the memory
// the OS reports as available. Loading still works over budget, the caller
// only warns.
func CheckMemoryBudget(count, w, h int) (need, available uint64, err error) {
	need = FrameSetBytes(count, w, h)
	vm, err := mem.VirtualMemory()
	if err != nil {
		return need, 0, fmt.Errorf("read memory stats: %w", err)
	}
	if need > vm.Available {
		return need, vm.Available, fmt.Errorf("%w: need %s, available %s", ErrOverBudget, HumanBytes(need), HumanBytes(vm.Available))
	}
	return need, vm.Available, nil
}

func HumanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
