// Package pmu opens and reads the Linux perf_event_open PMU exposed by the
// i915/xe DRM drivers under /sys/bus/event_source/devices, turning raw
// monotonic counters into per-interval rates.
package pmu

import (
	"errors"
	"time"
)

// ErrUnavailable is returned when the PMU sysfs directory for a driver is
// absent or unreadable (old kernel, driver not loaded, events missing).
var ErrUnavailable = errors.New("pmu: unavailable")

// ErrPermissionDenied is returned when perf_event_open fails with
// EACCES/EPERM.
var ErrPermissionDenied = errors.New("pmu: permission denied")

// Unit classifies the natural unit a PMU event's raw counter accumulates in.
type Unit string

const (
	UnitNanoseconds Unit = "ns"
	UnitHertz       Unit = "Hz"
	UnitJoules      Unit = "J"
	UnitRatio       Unit = "ratio"
	UnitNone        Unit = ""
)

// Kind distinguishes counters that accumulate (and so are rate-converted)
// from ones that report an instantaneous snapshot value.
type Kind int

const (
	KindCounter Kind = iota
	KindSnapshot
)

// EventDesc describes one discovered PMU event: its symbolic name, the raw
// config value to pass to perf_event_open, and how to interpret its counter.
type EventDesc struct {
	Name   string
	Config uint64
	Unit   Unit
	Scale  float64
	Kind   Kind
}

// EngineClass identifies an i915/xe engine class.
type EngineClass int

const (
	EngineRender EngineClass = iota
	EngineCopy
	EngineVideo
	EngineVideoEnhance
	EngineCompute
)

// SampleKind identifies which busy/wait/sema counter an engine config
// addresses.
type SampleKind int

const (
	SampleBusy SampleKind = iota
	SampleWait
	SampleSema
)

// Snapshot is one grouped read of all open counters at a point in time.
type Snapshot struct {
	Time   time.Time
	Values map[string]uint64 // keyed by EventDesc.Name
}
