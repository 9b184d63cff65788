//go:build linux

package pmu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// perf_event_attr bit flags (see perf_event_open(2) and linux/perf_event.h).
// golang.org/x/sys/unix exposes the struct layout but not named accessors
// for its packed bitfield, so these are assembled by hand, same as every
// other Go perf_event_open caller has to.
const (
	perfBitDisabled = 1 << 0
	perfBitInherit  = 1 << 1
)

// perf_event_open(2) read_format and ioctl constants.
const (
	perfFormatID    = 1 << 2
	perfFormatGroup = 1 << 3

	perfIocFlagGroup   = 1
	perfEventIocEnable = 0x2400 // _IO('$', 0)
)

// Slot is one open counter belonging to a Group: its descriptor, perf_event
// file descriptor, and perf's internal id (used to map grouped-read values
// back to slots).
type Slot struct {
	Name string
	Desc EventDesc
	fd   int
	id   uint64
}

// Group is a set of perf_event counters opened together under one group
// leader, read in a single syscall via PERF_FORMAT_GROUP|PERF_FORMAT_ID.
type Group struct {
	leaderFd int
	slots    []*Slot
	byID     map[uint64]*Slot
}

// OpenGroup opens one perf_event counter per descriptor against the given
// PMU type id. The first successfully opened event becomes the group
// leader; ENODEV/ENOENT on a later event just drops that slot (open
// proceeds with the rest); if nothing opens at all, ErrUnavailable is
// returned. EACCES/EPERM aborts immediately with ErrPermissionDenied,
// since it indicates the whole group will fail the same way.
func OpenGroup(pmuType uint32, descs []EventDesc) (*Group, error) {
	g := &Group{leaderFd: -1, byID: make(map[uint64]*Slot)}

	for _, d := range descs {
		groupFd := -1
		isLeader := len(g.slots) == 0
		if !isLeader {
			groupFd = g.leaderFd
		}

		attr := &unix.PerfEventAttr{
			Type:        pmuType,
			Size:        uint32(unsafe.Sizeof(unix.PerfEventAttr{})),
			Config:      d.Config,
			Read_format: perfFormatGroup | perfFormatID,
		}
		// inherit stays 0 per the group-read contract; only disabled varies
		// between leader and followers.
		if isLeader {
			attr.Bits = perfBitDisabled
		}

		fd, err := unix.PerfEventOpen(attr, -1, 0, groupFd, unix.PERF_FLAG_FD_CLOEXEC)
		if err != nil {
			if errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM) {
				g.Close()
				return nil, fmt.Errorf("%w: perf_event_open %s: %v (join the render group, grant CAP_PERFMON, or lower /proc/sys/kernel/perf_event_paranoid)", ErrPermissionDenied, d.Name, err)
			}
			if errors.Is(err, unix.ENODEV) || errors.Is(err, unix.ENOENT) || errors.Is(err, unix.EINVAL) {
				continue // event unavailable on this hardware/kernel; skip it
			}
			g.Close()
			return nil, fmt.Errorf("pmu: perf_event_open %s: %w", d.Name, err)
		}

		id, idErr := readEventID(fd)
		if idErr != nil {
			unix.Close(fd)
			continue
		}

		slot := &Slot{Name: d.Name, Desc: d, fd: fd, id: id}
		if isLeader {
			g.leaderFd = fd
		}
		g.slots = append(g.slots, slot)
		g.byID[id] = slot
	}

	if len(g.slots) == 0 {
		return nil, fmt.Errorf("%w: no PMU events could be opened", ErrUnavailable)
	}

	if err := unix.IoctlSetInt(g.leaderFd, perfEventIocEnable, perfIocFlagGroup); err != nil {
		g.Close()
		return nil, fmt.Errorf("pmu: enable counter group: %w", err)
	}

	return g, nil
}

// readEventID recovers the id the kernel assigned to a just-opened counter
// fd via the PERF_EVENT_IOC_ID ioctl. A formatted read() won't do here: the
// attr for every fd in this group carries PERF_FORMAT_GROUP, and per
// perf_event_open(2), read() on any fd opened with that bit always returns
// the full grouped layout {nr, {value,id}[nr]} — never the bare
// PERF_FORMAT_ID {value,id} pair — and the kernel rejects a buffer smaller
// than that with ENOSPC rather than truncating. The ioctl sidesteps the
// group-read format entirely and works on a disabled, unattached fd.
func readEventID(fd int) (uint64, error) {
	var id uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(unix.PERF_EVENT_IOC_ID), uintptr(unsafe.Pointer(&id)))
	if errno != 0 {
		return 0, errno
	}
	return id, nil
}

// Read performs one grouped read() on the leader fd and returns a Snapshot
// mapping each slot's name to its current raw counter value.
func (g *Group) Read() (Snapshot, error) {
	// Layout: u64 nr, then nr * (u64 value, u64 id).
	buf := make([]byte, 8+16*len(g.slots))
	n, err := unix.Read(g.leaderFd, buf)
	if err != nil {
		return Snapshot{}, fmt.Errorf("pmu: read counter group: %w", err)
	}

	values, err := parseGroupRead(buf, n, g.byID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Time: now(), Values: values}, nil
}

// parseGroupRead decodes the PERF_FORMAT_GROUP|PERF_FORMAT_ID buffer
// returned by one read() on a group leader: an 8-byte count, then that many
// (8-byte value, 8-byte id) pairs. It is split out from Group.Read so the
// byte-layout logic can be exercised with synthetic buffers and a synthetic
// byID map, without a real perf_event_open fd.
func parseGroupRead(buf []byte, n int, byID map[uint64]*Slot) (map[string]uint64, error) {
	if n < 8 {
		return nil, fmt.Errorf("pmu: short counter group read: %d bytes", n)
	}

	nr := binary.LittleEndian.Uint64(buf[0:8])
	values := make(map[string]uint64, len(byID))
	off := 8
	for i := uint64(0); i < nr; i++ {
		if off+16 > n {
			break
		}
		value := binary.LittleEndian.Uint64(buf[off : off+8])
		id := binary.LittleEndian.Uint64(buf[off+8 : off+16])
		off += 16
		if slot, ok := byID[id]; ok {
			values[slot.Name] = value
		}
	}
	return values, nil
}

// Close closes every file descriptor the group opened. Safe to call
// multiple times and on a partially constructed group.
func (g *Group) Close() error {
	var firstErr error
	for _, s := range g.slots {
		if err := unix.Close(s.fd); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	g.slots = nil
	g.byID = nil
	g.leaderFd = -1
	return firstErr
}

var now = func() time.Time { return time.Now() }
