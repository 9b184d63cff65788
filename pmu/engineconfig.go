package pmu

import "fmt"

// i915 PMU engine-busy config layout: (class << 16) | (instance << 8) | sample.
const (
	i915ClassShift    = 16
	i915InstanceShift = 8
)

var i915ClassID = map[EngineClass]uint64{
	EngineRender:       0,
	EngineCopy:         1,
	EngineVideo:        2,
	EngineVideoEnhance: 3,
	EngineCompute:      4,
}

var sampleID = map[SampleKind]uint64{
	SampleBusy: 0,
	SampleWait: 1,
	SampleSema: 2,
}

// I915EngineConfig composes the raw perf_event config for one (class,
// instance, sample) tuple on the i915 driver.
func I915EngineConfig(class EngineClass, instance int, sample SampleKind) uint64 {
	return (i915ClassID[class] << i915ClassShift) | (uint64(instance) << i915InstanceShift) | sampleID[sample]
}

// engineClassPrefix is the short name i915/xe give each engine class when
// naming per-instance PMU events ("rcs0-busy", "vcs1-wait", ...). i915's
// events/ directory lists one such name per instance even though its
// event= field carries the bit-packed I915EngineConfig value rather than
// an opaque handle; xe has no bit-packed form at all and must be resolved
// by name.
var engineClassPrefix = map[EngineClass]string{
	EngineRender:       "rcs",
	EngineCopy:         "bcs",
	EngineVideo:        "vcs",
	EngineVideoEnhance: "vecs",
	EngineCompute:      "ccs",
}

var sampleSuffix = map[SampleKind]string{
	SampleBusy: "busy",
	SampleWait: "wait",
	SampleSema: "sema",
}

// XeEngineEvent resolves the descriptor for one (class, instance, sample)
// tuple by name, since xe's bit layout differs from i915's. The returned
// config is the one parseEventConfig read from the event= field alone; a
// gt= field in the event file is not part of it.
func XeEngineEvent(desc *Descriptor, class EngineClass, instance int, sample SampleKind) (EventDesc, bool) {
	prefix, ok := engineClassPrefix[class]
	if !ok {
		return EventDesc{}, false
	}
	name := fmt.Sprintf("%s%d-%s", prefix, instance, sampleSuffix[sample])
	ev, ok := desc.Events[name]
	return ev, ok
}

// EngineInstances reports how many instances of class a descriptor exposes
// busy events for, by probing instance 0..maxProbe-1 in order and stopping
// at the first gap. xe is resolved by name directly against desc.Events;
// i915 is resolved by checking whether the config I915EngineConfig would
// synthesize for that instance is one the kernel actually advertised under
// events/ (i915 names one event per instance too, e.g. "vcs1-busy", each
// carrying its synthesized config in its event= field). Engines that expose
// multiple instances (two VCS rings being the common case) are summed by
// the caller into one class-wide busy percentage, per spec.
func EngineInstances(desc *Descriptor, isXe bool, class EngineClass, maxProbe int) int {
	n := 0
	for i := 0; i < maxProbe; i++ {
		var exists bool
		if isXe {
			_, exists = XeEngineEvent(desc, class, i, SampleBusy)
		} else {
			exists = i915ConfigExists(desc, I915EngineConfig(class, i, SampleBusy))
		}
		if !exists {
			break
		}
		n++
	}
	return n
}

func i915ConfigExists(desc *Descriptor, cfg uint64) bool {
	for _, ev := range desc.Events {
		if ev.Config == cfg {
			return true
		}
	}
	return false
}
