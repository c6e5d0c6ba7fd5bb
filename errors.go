package igpustats

import "fmt"

// ErrNoIntelGpu is returned when the sysfs probe found no adapter with
// vendor ID 0x8086.
type ErrNoIntelGpu struct{}

func (e ErrNoIntelGpu) Error() string { return "no Intel GPU found" }

// ErrPmuUnavailable is returned when the PMU sysfs path is absent or
// unreadable for a driver that is otherwise present.
type ErrPmuUnavailable struct {
	Driver string
}

func (e ErrPmuUnavailable) Error() string {
	if e.Driver == "" {
		return "PMU not available"
	}
	return fmt.Sprintf("PMU not available for driver %q", e.Driver)
}

// ErrPermissionDenied is returned when perf_event_open fails with
// EACCES/EPERM. Message names the remediation paths a caller can take.
type ErrPermissionDenied struct {
	Event string
}

func (e ErrPermissionDenied) Error() string {
	return fmt.Sprintf(
		"permission denied opening perf event %q: run as root, add the user to the "+
			"'render' group, grant the binary CAP_PERFMON, or lower "+
			"/proc/sys/kernel/perf_event_paranoid", e.Event)
}

// ErrIO wraps an unexpected failure reading a sysfs or procfs file.
type ErrIO struct {
	Path string
	Err  error
}

func (e ErrIO) Error() string { return fmt.Sprintf("io error reading %s: %v", e.Path, e.Err) }
func (e ErrIO) Unwrap() error { return e.Err }

// ErrSyscall wraps a failure from a raw syscall other than the
// permission-denied case.
type ErrSyscall struct {
	Name string
	Err  error
}

func (e ErrSyscall) Error() string { return fmt.Sprintf("syscall %s failed: %v", e.Name, e.Err) }
func (e ErrSyscall) Unwrap() error { return e.Err }

// ErrUnsupported is returned when a caller asks for a capability that was
// not detected at open time.
type ErrUnsupported struct {
	Feature string
}

func (e ErrUnsupported) Error() string { return fmt.Sprintf("unsupported: %s", e.Feature) }
