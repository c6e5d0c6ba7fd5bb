package perfevent

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ErrPermissionDenied is returned when the kernel refuses to open a perf
// event because the caller lacks CAP_PERFMON, isn't in the appropriate
// render/video group, or perf_event_paranoid forbids it.
type ErrPermissionDenied struct {
	Event string
}

func (e ErrPermissionDenied) Error() string {
	return fmt.Sprintf("permission denied opening perf event %q (check CAP_PERFMON, render group membership, or /proc/sys/kernel/perf_event_paranoid)", e.Event)
}

// ErrEventUnavailable is returned when the kernel reports the specific
// counter does not exist on this adapter (ENODEV/ENOENT/EINVAL). Callers
// are expected to drop the slot and continue, per the Counter Group's
// partial-availability contract.
type ErrEventUnavailable struct {
	Event string
	Err   error
}

func (e ErrEventUnavailable) Error() string {
	return fmt.Sprintf("perf event %q unavailable: %v", e.Event, e.Err)
}

func (e ErrEventUnavailable) Unwrap() error { return e.Err }

// Event is one open perf_event_open file descriptor.
type Event struct {
	fd   int
	id   uint64
	name string
}

// Open opens a new, disabled perf event of the given PMU type/config. If
// groupFd is >= 0, the new event joins that group as a follower and
// shares its sampling period with the leader. name is used only for
// error messages.
func Open(typeID uint32, config uint64, groupFd int, name string) (*Event, error) {
	a := newAttr(typeID, config)

	fd, err := perfEventOpen(a, -1, 0, groupFd, 0)
	if err != nil {
		switch err {
		case unix.EACCES, unix.EPERM:
			return nil, ErrPermissionDenied{Event: name}
		case unix.ENODEV, unix.ENOENT, unix.EINVAL:
			return nil, ErrEventUnavailable{Event: name, Err: err}
		default:
			return nil, fmt.Errorf("perf_event_open %q: %w", name, err)
		}
	}

	ev := &Event{fd: fd, name: name}
	id, err := ev.readID()
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("read perf event id for %q: %w", name, err)
	}
	ev.id = id
	return ev, nil
}

// perfEventOpen wraps the perf_event_open(2) syscall.
func perfEventOpen(a *attr, pid, cpu, groupFd int, flags uintptr) (int, error) {
	fd, _, errno := unix.Syscall6(
		unix.SYS_PERF_EVENT_OPEN,
		uintptr(unsafe.Pointer(a)),
		uintptr(pid),
		uintptr(cpu),
		uintptr(groupFd),
		flags,
		0,
	)
	if errno != 0 {
		return -1, errno
	}
	return int(fd), nil
}

// readID reads this fd's grouped read_format once at open time to learn
// its kernel-assigned counter id, used later to pick this event's value
// out of a group leader's grouped read. A grouped read lists the leader
// first and then its followers in join order, so a freshly opened event
// is always the last entry.
func (e *Event) readID() (uint64, error) {
	buf := make([]byte, 256)
	n, err := unix.Read(e.fd, buf)
	if err != nil {
		return 0, err
	}
	group, err := parseGroupFormat(buf[:n])
	if err != nil {
		return 0, err
	}
	if len(group.counters) == 0 {
		return 0, fmt.Errorf("grouped read for %q returned no counters", e.name)
	}
	return group.counters[len(group.counters)-1].id, nil
}

// Read performs a single grouped read of this lone event (its attr's
// read_format is always GROUP|ID, even for a standalone fd) and returns
// its raw counter value.
func (e *Event) Read() (uint64, error) {
	buf := make([]byte, 256)
	n, err := unix.Read(e.fd, buf)
	if err != nil {
		return 0, err
	}
	parsed, err := parseGroupFormat(buf[:n])
	if err != nil {
		return 0, err
	}
	if len(parsed.counters) == 0 {
		return 0, fmt.Errorf("grouped read for %q returned no counters", e.name)
	}
	return parsed.counters[0].value, nil
}

// Enable starts counting on this event alone.
func (e *Event) Enable() error {
	return unix.IoctlSetInt(e.fd, iocEnable, 0)
}

// Disable stops counting on this event alone.
func (e *Event) Disable() error {
	return unix.IoctlSetInt(e.fd, iocDisable, 0)
}

// Reset zeroes this event's counter.
func (e *Event) Reset() error {
	return unix.IoctlSetInt(e.fd, iocReset, 0)
}

// FD returns the raw file descriptor, used as a group leader's fd by
// other Open calls.
func (e *Event) FD() int { return e.fd }

// ID returns the kernel-assigned counter id used to pick this event's
// value out of a grouped read.
func (e *Event) ID() uint64 { return e.id }

// Name returns the human-readable event name this fd was opened for.
func (e *Event) Name() string { return e.name }

// Close releases the underlying file descriptor.
func (e *Event) Close() error {
	return unix.Close(e.fd)
}
