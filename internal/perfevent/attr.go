// Package perfevent implements the Counter Group: opening, grouping, and
// reading Linux perf_event_open file descriptors against a GPU's PMU
// type, including the grouped PERF_FORMAT_GROUP|PERF_FORMAT_ID read used
// to pull every counter in one syscall.
package perfevent

import "unsafe"

// attr mirrors struct perf_event_attr as defined by the Linux kernel's
// ABI version 0 (the layout every kernel since 2.6.32 preserves
// field-for-field). Only the fields this package actually sets are
// given meaningful defaults; the rest are zero-valued padding the kernel
// ignores for PERF_TYPE_PMU counters like i915/xe.
type attr struct {
	Type         uint32
	Size         uint32
	Config       uint64
	SamplePeriod uint64 // union with sample_freq; unused for PMU counters
	SampleType   uint64
	ReadFormat   uint64
	Flags        uint64
	WakeupEvents uint32 // union with wakeup_watermark
	BPType       uint32
	BPAddr       uint64 // union with config1
}

func attrSize() uint32 { return uint32(unsafe.Sizeof(attr{})) }

// flags bits, matching struct perf_event_attr's packed bitfield.
const (
	flagDisabled      uint64 = 1 << 0
	flagInherit       uint64 = 1 << 1
	flagPinned        uint64 = 1 << 2
	flagExclusive     uint64 = 1 << 3
	flagExcludeUser   uint64 = 1 << 4
	flagExcludeKernel uint64 = 1 << 5
	flagExcludeHv     uint64 = 1 << 6
	flagExcludeIdle   uint64 = 1 << 7
	flagEnableOnExec  uint64 = 1 << 12
)

// read_format bits.
const (
	formatTotalTimeEnabled uint64 = 1 << 0
	formatTotalTimeRunning uint64 = 1 << 1
	formatID               uint64 = 1 << 2
	formatGroup            uint64 = 1 << 3
)

// ioctl request numbers for PERF_EVENT_IOC_ENABLE/DISABLE/RESET, taken
// directly from linux/perf_event.h (ioctl 'type' \x27$\x27 = 0x24).
const (
	iocEnable  = 0x2400
	iocDisable = 0x2401
	iocReset   = 0x2403

	// iocFlagGroup applied as the ioctl argument makes ENABLE/DISABLE/RESET
	// apply to every member of the group, not just the leader.
	iocFlagGroup = 1
)

func newAttr(typeID uint32, config uint64) *attr {
	return &attr{
		Type:       typeID,
		Size:       attrSize(),
		Config:     config,
		ReadFormat: formatTotalTimeEnabled | formatTotalTimeRunning | formatID | formatGroup,
		Flags:      flagDisabled | flagExcludeHv,
	}
}
