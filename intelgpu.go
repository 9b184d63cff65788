// Package intelgpu reads Intel GPU telemetry on Linux in real time:
// PMU-derived engine utilization and frequency, plus hwmon temperature,
// RAPL power, and throttle-reason state from its external collaborators.
// It targets broadcast/media callers that need Quick Sync encode/decode
// load alongside the rest of a card's operating point.
package intelgpu

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"

	"github.com/ruaan-deysel/intelgpu/fdinfo"
	"github.com/ruaan-deysel/intelgpu/gpuinfo"
	"github.com/ruaan-deysel/intelgpu/hwmon"
	"github.com/ruaan-deysel/intelgpu/pmu"
	"github.com/ruaan-deysel/intelgpu/rapl"
	"github.com/ruaan-deysel/intelgpu/throttle"
)

// IntelGpu is a handle to one Intel DRM adapter: its counter group, rate
// engine, and the external collaborators it resolved at open time.
type IntelGpu struct {
	info gpuinfo.GpuInfo

	mu         sync.Mutex
	group      *pmu.Group
	rateEngine *pmu.RateEngine

	engineSpecs []pmu.EngineSpec
	freqSpec    pmu.FreqSpec
	engineNames map[pmu.EngineClass]EngineClassName

	hwmonDir string
	raplPrev *rapl.Reading

	hasCompute  bool
	hasRC6      bool
	hasTemp     bool
	hasFan      bool
	hasPower    bool
	hasThrottle bool
}

var cardPathRe = regexp.MustCompile(`card(\d+)$`)

// ListGpus enumerates Intel DRM adapters present on the host.
func ListGpus() ([]GpuInfo, error) {
	return gpuinfo.ListGpus()
}

// Detect opens the first Intel DRM adapter found on the host.
func Detect() (*IntelGpu, error) {
	info, err := gpuinfo.Detect()
	if err != nil {
		return nil, err
	}
	return openInfo(info)
}

// Open opens a specific adapter, identified by /sys/class/drm/cardN or
// /dev/dri/cardN.
func Open(path string) (*IntelGpu, error) {
	m := cardPathRe.FindStringSubmatch(path)
	if m == nil {
		return nil, fmt.Errorf("intelgpu: %q does not name a cardN device", path)
	}
	idx, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, fmt.Errorf("intelgpu: %q does not name a cardN device: %w", path, err)
	}

	gpus, err := gpuinfo.ListGpus()
	if err != nil {
		return nil, err
	}
	for _, info := range gpus {
		if info.CardIndex == idx {
			return openInfo(info)
		}
	}
	return nil, fmt.Errorf("%w: no Intel adapter at %s", ErrNoIntelGpu, path)
}

func openInfo(info gpuinfo.GpuInfo) (*IntelGpu, error) {
	desc, err := pmu.Load(string(info.Driver), info.PCIAddr)
	if err != nil {
		return nil, err
	}

	g := &IntelGpu{
		info:        info,
		rateEngine:  pmu.NewRateEngine(),
		engineNames: map[pmu.EngineClass]EngineClassName{},
	}

	descs, specs, names := buildEngineDescriptors(info.Driver, desc)
	freqDescs, freqSpec := buildFreqDescriptors(desc)
	descs = append(descs, freqDescs...)

	group, err := pmu.OpenGroup(desc.TypeID, descs)
	if err != nil {
		return nil, err
	}
	g.group = group
	g.engineSpecs = specs
	g.engineNames = names
	g.freqSpec = freqSpec
	g.hasCompute = hasComputeSpec(specs)
	g.hasRC6 = freqSpec.RC6Event != ""

	g.hwmonDir, _ = hwmon.Find(filepath.Join(info.SysPath, "device"))
	if g.hwmonDir != "" {
		reading, _ := hwmon.Read(g.hwmonDir)
		g.hasTemp = reading.HasTemp
		g.hasFan = reading.HasFan
	}

	g.hasPower = rapl.IsAvailable()
	if g.hasPower {
		g.raplPrev = rapl.ReadEnergy()
	}

	_, g.hasThrottle = throttle.Read(info.SysPath)

	return g, nil
}

func hasComputeSpec(specs []pmu.EngineSpec) bool {
	for _, s := range specs {
		if s.Class == pmu.EngineCompute {
			return true
		}
	}
	return false
}

// maxEngineInstances bounds how many instances of one engine class
// buildEngineDescriptors will probe for. Real adapters top out at two VCS
// (video) rings and one of everything else today; this leaves headroom
// without probing indefinitely.
const maxEngineInstances = 8

// buildEngineDescriptors constructs the per-engine EventDescs to open and
// the EngineSpecs the Rate Engine will use to read them back out of a
// Snapshot, following the driver-specific encoding described by the Engine
// Config Encoder: i915 synthesizes a config per (class, instance, sample),
// xe resolves named events from the descriptor. A class that exposes more
// than one instance (commonly two VIDEO rings) gets one EventDesc per
// instance, all listed in the EngineSpec so the Rate Engine sums their
// busy-ns deltas into one class-wide percentage, per spec.
func buildEngineDescriptors(driver gpuinfo.Driver, desc *pmu.Descriptor) ([]pmu.EventDesc, []pmu.EngineSpec, map[pmu.EngineClass]EngineClassName) {
	classes := []struct {
		class pmu.EngineClass
		name  EngineClassName
	}{
		{pmu.EngineRender, EngineClassRender},
		{pmu.EngineCopy, EngineClassCopy},
		{pmu.EngineVideo, EngineClassVideo},
		{pmu.EngineVideoEnhance, EngineClassVideoEnhance},
		{pmu.EngineCompute, EngineClassCompute},
	}

	var descs []pmu.EventDesc
	var specs []pmu.EngineSpec
	names := map[pmu.EngineClass]EngineClassName{}
	isXe := driver == gpuinfo.DriverXe

	for _, c := range classes {
		instances := pmu.EngineInstances(desc, isXe, c.class, maxEngineInstances)
		if !isXe && instances == 0 {
			// i915 events/ may not list the synthesized per-instance names at
			// all (some kernels only publish the class-0 aliases); still try
			// instance 0 optimistically and let OpenGroup's ENODEV/ENOENT
			// handling drop it if the hardware doesn't actually have it.
			instances = 1
		}

		var busy, wait, sema []string
		for i := 0; i < instances; i++ {
			var b, w, s pmu.EventDesc
			var bOK, wOK, sOK bool

			if isXe {
				b, bOK = pmu.XeEngineEvent(desc, c.class, i, pmu.SampleBusy)
				w, wOK = pmu.XeEngineEvent(desc, c.class, i, pmu.SampleWait)
				s, sOK = pmu.XeEngineEvent(desc, c.class, i, pmu.SampleSema)
			} else {
				b = pmu.EventDesc{Name: engineEventName(c.class, i, pmu.SampleBusy), Config: pmu.I915EngineConfig(c.class, i, pmu.SampleBusy), Unit: pmu.UnitNanoseconds, Scale: 1}
				w = pmu.EventDesc{Name: engineEventName(c.class, i, pmu.SampleWait), Config: pmu.I915EngineConfig(c.class, i, pmu.SampleWait), Unit: pmu.UnitNanoseconds, Scale: 1}
				s = pmu.EventDesc{Name: engineEventName(c.class, i, pmu.SampleSema), Config: pmu.I915EngineConfig(c.class, i, pmu.SampleSema), Unit: pmu.UnitNanoseconds, Scale: 1}
				bOK, wOK, sOK = true, true, true
			}

			if !bOK {
				continue // this instance isn't actually advertised; stop trusting the probe
			}
			descs = append(descs, b)
			busy = append(busy, b.Name)
			if wOK {
				descs = append(descs, w)
				wait = append(wait, w.Name)
			}
			if sOK {
				descs = append(descs, s)
				sema = append(sema, s.Name)
			}
		}

		if len(busy) == 0 {
			continue // this class isn't present on this adapter/driver combination
		}
		specs = append(specs, pmu.EngineSpec{Class: c.class, BusyEvents: busy, WaitEvents: wait, SemaEvents: sema})
		names[c.class] = c.name
	}

	return descs, specs, names
}

func engineEventName(class pmu.EngineClass, instance int, sample pmu.SampleKind) string {
	return fmt.Sprintf("engine-%d-%d-%d", class, instance, sample)
}

// buildFreqDescriptors looks up the driver-specific names for
// actual-frequency, requested-frequency, and rc6-residency in the loaded
// descriptor's events map, as discovered by the PMU Descriptor Loader.
func buildFreqDescriptors(desc *pmu.Descriptor) ([]pmu.EventDesc, pmu.FreqSpec) {
	var descs []pmu.EventDesc
	var spec pmu.FreqSpec

	for _, candidate := range []string{"actual-frequency", "frequency"} {
		if ev, ok := desc.Events[candidate]; ok {
			descs = append(descs, ev)
			spec.ActualFreqEvent = ev.Name
			spec.ActualFreqScale = ev.Scale
			break
		}
	}
	if ev, ok := desc.Events["requested-frequency"]; ok {
		descs = append(descs, ev)
		spec.RequestedFreqEvent = ev.Name
		spec.RequestedFreqScale = ev.Scale
	}
	if ev, ok := desc.Events["rc6-residency"]; ok {
		descs = append(descs, ev)
		spec.RC6Event = ev.Name
	}

	return descs, spec
}

// ReadStats reads the counter group, applies the Rate Engine, queries the
// external collaborators, and assembles a GpuStats snapshot. The first call
// after Open has undefined (zero) engine percentages, per the documented
// baseline convention.
func (g *IntelGpu) ReadStats() (GpuStats, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	snap, err := g.group.Read()
	if err != nil {
		return GpuStats{}, err
	}

	rates := g.rateEngine.Compute(snap, g.engineSpecs, g.freqSpec)

	stats := GpuStats{
		Time:                  snap.Time,
		Engines:               make(map[EngineClassName]EngineUtilization, len(rates.Engines)),
		ActualFrequencyMHz:    rates.ActualFrequencyMHz,
		RequestedFrequencyMHz: rates.RequestedFrequencyMHz,
		HasRC6:                g.hasRC6,
		RC6Percent:            rates.RC6Percent,
	}
	for class, r := range rates.Engines {
		name, ok := g.engineNames[class]
		if !ok {
			continue
		}
		stats.Engines[name] = EngineUtilization{BusyPercent: r.BusyPercent, WaitPercent: r.WaitPercent, SemaPercent: r.SemaPercent}
	}

	if g.hasTemp || g.hasFan {
		if reading, err := hwmon.Read(g.hwmonDir); err == nil && reading.HasTemp {
			stats.Temperature = &Temperature{MilliC: reading.TempMilliC}
		}
	}

	if g.hasPower {
		curr := rapl.ReadEnergy()
		if power := rapl.CalculatePower(g.raplPrev, curr); power != nil {
			stats.Power = &Power{GPUWatts: power.GPUWatts, PackageWatts: power.PackageWatts, DRAMWatts: power.DRAMWatts}
		}
		g.raplPrev = curr
	}

	if g.hasThrottle {
		if reasons, present := throttle.Read(g.info.SysPath); present {
			stats.Throttle = &Throttle{
				PowerLimit:   reasons.PowerLimit,
				ThermalLimit: reasons.ThermalLimit,
				CurrentLimit: reasons.CurrentLimit,
				ProchotLimit: reasons.ProchotLimit,
				Other:        reasons.Other,
			}
		}
	}

	return stats, nil
}

// Driver returns "i915" or "xe".
func (g *IntelGpu) Driver() string { return string(g.info.Driver) }

// Info returns the GpuInfo this handle was opened from.
func (g *IntelGpu) Info() GpuInfo { return g.info }

func (g *IntelGpu) HasComputeEngine() bool { return g.hasCompute }
func (g *IntelGpu) HasRC6() bool           { return g.hasRC6 }
func (g *IntelGpu) HasTemperature() bool   { return g.hasTemp }
func (g *IntelGpu) HasFan() bool           { return g.hasFan }
func (g *IntelGpu) HasPower() bool         { return g.hasPower }
func (g *IntelGpu) HasThrottle() bool      { return g.hasThrottle }

// Close releases the adapter's counter file descriptors. Safe to call more
// than once.
func (g *IntelGpu) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.group == nil {
		return nil
	}
	err := g.group.Close()
	g.group = nil
	return err
}

// ListDrmClients scans /proc/*/fdinfo for every process using the i915 or
// xe DRM driver. It is a static helper, not bound to any open adapter.
func ListDrmClients() ([]DrmClient, error) {
	raw, err := fdinfo.ListClients([]string{"i915", "xe"})
	if err != nil {
		return nil, wrapIo(fdinfo.ProcPath, err)
	}
	out := make([]DrmClient, len(raw))
	for i, c := range raw {
		out[i] = DrmClient{
			PID: c.PID, Name: c.Name, Driver: c.Driver,
			RenderNs: c.RenderNs, CopyNs: c.CopyNs, VideoNs: c.VideoNs,
			VideoEnhanceNs: c.VideoEnhanceNs, ComputeNs: c.ComputeNs,
		}
	}
	return out, nil
}

// FindQuicksyncClients returns the subset of ListDrmClients actively using
// the video decode or video-enhance (encode) engines.
func FindQuicksyncClients() ([]DrmClient, error) {
	clients, err := ListDrmClients()
	if err != nil {
		return nil, err
	}
	var out []DrmClient
	for _, c := range clients {
		if c.VideoNs > 0 || c.VideoEnhanceNs > 0 {
			out = append(out, c)
		}
	}
	return out, nil
}
