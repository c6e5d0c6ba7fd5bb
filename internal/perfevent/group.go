package perfevent

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// groupCounter is one (value, id) pair out of a grouped read_format.
type groupCounter struct {
	value uint64
	id    uint64
}

// groupFormat is the parsed result of reading a group leader fd whose
// read_format is PERF_FORMAT_TOTAL_TIME_ENABLED|TOTAL_TIME_RUNNING|ID|GROUP.
type groupFormat struct {
	timeEnabled uint64
	timeRunning uint64
	counters    []groupCounter
}

// parseGroupFormat decodes the kernel's grouped read_format layout:
//
//	u64 nr;
//	u64 time_enabled;
//	u64 time_running;
//	struct { u64 value; u64 id; } cntr[nr];
func parseGroupFormat(buf []byte) (groupFormat, error) {
	if len(buf) < 24 {
		return groupFormat{}, fmt.Errorf("grouped read too short: %d bytes", len(buf))
	}
	nr := binary.LittleEndian.Uint64(buf[0:8])
	timeEnabled := binary.LittleEndian.Uint64(buf[8:16])
	timeRunning := binary.LittleEndian.Uint64(buf[16:24])

	want := 24 + int(nr)*16
	if len(buf) < want {
		return groupFormat{}, fmt.Errorf("grouped read truncated: want %d bytes, got %d", want, len(buf))
	}

	counters := make([]groupCounter, nr)
	off := 24
	for i := range counters {
		counters[i] = groupCounter{
			value: binary.LittleEndian.Uint64(buf[off : off+8]),
			id:    binary.LittleEndian.Uint64(buf[off+8 : off+16]),
		}
		off += 16
	}
	return groupFormat{timeEnabled: timeEnabled, timeRunning: timeRunning, counters: counters}, nil
}

// Group is a perf_event_open counter group: one leader fd plus zero or
// more followers opened against it, read together in a single syscall.
type Group struct {
	typeID  uint32
	leader  *Event
	members []*Event // leader first, then followers, in open order
}

// NewGroup opens a new group leader for the given PMU type/config and
// name, returning a Group containing just the leader.
func NewGroup(typeID uint32, config uint64, name string) (*Group, error) {
	leader, err := Open(typeID, config, -1, name)
	if err != nil {
		return nil, err
	}
	return &Group{typeID: typeID, leader: leader, members: []*Event{leader}}, nil
}

// AddMember opens a follower event in this group. On any error the slot
// is not added and the error is returned; when the kernel reports the
// event is unavailable on this adapter the error is ErrEventUnavailable,
// and the group keeps running with whatever members did open, matching
// the Counter Group's partial-availability contract.
func (g *Group) AddMember(config uint64, name string) (*Event, error) {
	ev, err := Open(g.typeID, config, g.leader.fd, name)
	if err != nil {
		var unavailable ErrEventUnavailable
		if asUnavailable(err, &unavailable) {
			return nil, unavailable
		}
		return nil, err
	}
	g.members = append(g.members, ev)
	return ev, nil
}

func asUnavailable(err error, target *ErrEventUnavailable) bool {
	u, ok := err.(ErrEventUnavailable)
	if ok {
		*target = u
	}
	return ok
}

// EnableAll enables every member of the group with a single ioctl on
// the leader, using PERF_IOC_FLAG_GROUP.
func (g *Group) EnableAll() error {
	return unix.IoctlSetInt(g.leader.fd, iocEnable, iocFlagGroup)
}

// DisableAll disables every member of the group in one ioctl.
func (g *Group) DisableAll() error {
	return unix.IoctlSetInt(g.leader.fd, iocDisable, iocFlagGroup)
}

// ResetAll zeroes every member's counter in one ioctl.
func (g *Group) ResetAll() error {
	return unix.IoctlSetInt(g.leader.fd, iocReset, iocFlagGroup)
}

// ReadAll performs one grouped read of the leader fd and returns each
// member's raw counter value keyed by that member's Event, in a single
// read(2) syscall covering the whole group.
func (g *Group) ReadAll() (map[*Event]uint64, error) {
	buf := make([]byte, 24+len(g.members)*16)
	n, err := unix.Read(g.leader.fd, buf)
	if err != nil {
		return nil, fmt.Errorf("grouped read: %w", err)
	}
	parsed, err := parseGroupFormat(buf[:n])
	if err != nil {
		return nil, err
	}

	byID := make(map[uint64]uint64, len(parsed.counters))
	for _, c := range parsed.counters {
		byID[c.id] = c.value
	}

	result := make(map[*Event]uint64, len(g.members))
	for _, m := range g.members {
		if v, ok := byID[m.id]; ok {
			result[m] = v
		}
	}
	return result, nil
}

// Close closes every member's fd, followers before the leader.
func (g *Group) Close() error {
	var firstErr error
	for i := len(g.members) - 1; i >= 0; i-- {
		if err := g.members[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Leader returns the group's leader event.
func (g *Group) Leader() *Event { return g.leader }

// Members returns every open member, leader first.
func (g *Group) Members() []*Event { return g.members }
