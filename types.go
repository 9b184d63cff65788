package intelgpu

import (
	"time"

	"github.com/ruaan-deysel/intelgpu/gpuinfo"
)

// EngineUtilization is one engine class's utilization over the most recent
// sampling interval. Busy/wait/sema percentages are each clamped to
// [0, 100].
type EngineUtilization struct {
	BusyPercent float64
	WaitPercent float64
	SemaPercent float64
}

// Temperature is an optional sub-struct of GpuStats populated by the hwmon
// collaborator when a matching sensor was found at open time.
type Temperature struct {
	MilliC int
}

// Power is an optional sub-struct of GpuStats populated by the RAPL
// collaborator.
type Power struct {
	GPUWatts     float64
	PackageWatts float64
	DRAMWatts    float64
}

// Throttle is an optional sub-struct of GpuStats populated by the
// throttle-reason collaborator.
type Throttle struct {
	PowerLimit   bool
	ThermalLimit bool
	CurrentLimit bool
	ProchotLimit bool
	Other        bool
}

// Any reports whether any throttle reason is set.
func (t Throttle) Any() bool {
	return t.PowerLimit || t.ThermalLimit || t.CurrentLimit || t.ProchotLimit || t.Other
}

// GpuStats is one point-in-time reading from an open adapter. Optional
// fields are nil when their external collaborator could not be probed at
// open time; capability predicates on IntelGpu reflect the same state.
type GpuStats struct {
	Time time.Time

	Engines map[EngineClassName]EngineUtilization

	ActualFrequencyMHz    int
	RequestedFrequencyMHz int

	HasRC6     bool
	RC6Percent float64

	Temperature *Temperature
	Power       *Power
	Throttle    *Throttle
}

// EngineClassName is the user-facing name for an engine class, exported
// separately from pmu.EngineClass so callers don't need to import the pmu
// package just to index GpuStats.Engines.
type EngineClassName string

const (
	EngineClassRender       EngineClassName = "render"
	EngineClassCopy         EngineClassName = "copy"
	EngineClassVideo        EngineClassName = "video"
	EngineClassVideoEnhance EngineClassName = "video_enhance"
	EngineClassCompute      EngineClassName = "compute"
)

// DrmClient is one process's accumulated DRM engine usage, as reported by
// the fdinfo external collaborator.
type DrmClient struct {
	PID            int
	Name           string
	Driver         string
	RenderNs       uint64
	CopyNs         uint64
	VideoNs        uint64
	VideoEnhanceNs uint64
	ComputeNs      uint64
}

// GpuInfo re-exports gpuinfo.GpuInfo so callers of this package's List/Open
// don't need a second import for adapter identity.
type GpuInfo = gpuinfo.GpuInfo
