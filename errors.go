package intelgpu

import (
	"errors"
	"fmt"

	"github.com/ruaan-deysel/intelgpu/gpuinfo"
	"github.com/ruaan-deysel/intelgpu/pmu"
)

// Error kinds stable for callers, per the library's error handling design:
// probe/open failures are classified so callers can branch on errors.Is
// without parsing messages.
var (
	// ErrNoIntelGpu means the sysfs probe found no adapter with vendor 0x8086.
	ErrNoIntelGpu = gpuinfo.ErrNoIntelGpu

	// ErrPmuUnavailable means the PMU sysfs path was absent or unreadable:
	// kernel too old, driver not loaded, or no events survived open.
	ErrPmuUnavailable = pmu.ErrUnavailable

	// ErrPermissionDenied means perf_event_open returned EACCES/EPERM.
	ErrPermissionDenied = pmu.ErrPermissionDenied

	// ErrIo means an unexpected failure reading a sysfs or procfs file.
	ErrIo = errors.New("intelgpu: io error")

	// ErrSyscall means a syscall other than the permission/unavailable
	// cases above failed.
	ErrSyscall = errors.New("intelgpu: syscall error")

	// ErrUnsupported means the caller asked for a capability this adapter
	// did not detect at open time.
	ErrUnsupported = errors.New("intelgpu: unsupported")
)

// wrapIo wraps an unexpected sysfs/procfs read failure with ErrIo so
// callers can match it via errors.Is while still seeing the underlying path
// and error in the message.
func wrapIo(path string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrIo, path, err)
}
