package pmu

import (
	"testing"
	"time"
)

func TestRateEngine_FirstReadReturnsZeros(t *testing.T) {
	re := NewRateEngine()
	engines := []EngineSpec{{Class: EngineRender, BusyEvents: []string{"render-busy"}}}

	snap := Snapshot{Time: time.Unix(0, 0), Values: map[string]uint64{"render-busy": 5_000_000}}
	rates := re.Compute(snap, engines, FreqSpec{})

	if got := rates.Engines[EngineRender].BusyPercent; got != 0 {
		t.Errorf("first read BusyPercent = %v, want 0", got)
	}
}

func TestRateEngine_ComputesBusyPercent(t *testing.T) {
	re := NewRateEngine()
	engines := []EngineSpec{{Class: EngineRender, BusyEvents: []string{"render-busy"}}}

	t0 := time.Unix(0, 0)
	re.Compute(Snapshot{Time: t0, Values: map[string]uint64{"render-busy": 0}}, engines, FreqSpec{})

	// 50ms window, 25ms busy -> 50%.
	t1 := t0.Add(50 * time.Millisecond)
	rates := re.Compute(Snapshot{Time: t1, Values: map[string]uint64{"render-busy": 25_000_000}}, engines, FreqSpec{})

	got := rates.Engines[EngineRender].BusyPercent
	if got < 49.9 || got > 50.1 {
		t.Errorf("BusyPercent = %v, want ~50", got)
	}
}

func TestRateEngine_ClampsAbove100(t *testing.T) {
	re := NewRateEngine()
	engines := []EngineSpec{{Class: EngineRender, BusyEvents: []string{"render-busy"}}}

	t0 := time.Unix(0, 0)
	re.Compute(Snapshot{Time: t0, Values: map[string]uint64{"render-busy": 0}}, engines, FreqSpec{})

	t1 := t0.Add(10 * time.Millisecond)
	// Deliberately over-report busy ns beyond the wall-clock window.
	rates := re.Compute(Snapshot{Time: t1, Values: map[string]uint64{"render-busy": 50_000_000}}, engines, FreqSpec{})

	if got := rates.Engines[EngineRender].BusyPercent; got != 100 {
		t.Errorf("BusyPercent = %v, want clamped to 100", got)
	}
}

func TestRateEngine_CounterDecreaseClampsToZero(t *testing.T) {
	re := NewRateEngine()
	engines := []EngineSpec{{Class: EngineRender, BusyEvents: []string{"render-busy"}}}

	t0 := time.Unix(0, 0)
	re.Compute(Snapshot{Time: t0, Values: map[string]uint64{"render-busy": 10_000_000}}, engines, FreqSpec{})

	t1 := t0.Add(50 * time.Millisecond)
	rates := re.Compute(Snapshot{Time: t1, Values: map[string]uint64{"render-busy": 1_000_000}}, engines, FreqSpec{})

	if got := rates.Engines[EngineRender].BusyPercent; got != 0 {
		t.Errorf("BusyPercent after counter wrap = %v, want 0", got)
	}
}

func TestRateEngine_SubMillisecondIntervalReturnsPrevious(t *testing.T) {
	re := NewRateEngine()
	engines := []EngineSpec{{Class: EngineRender, BusyEvents: []string{"render-busy"}}}

	t0 := time.Unix(0, 0)
	re.Compute(Snapshot{Time: t0, Values: map[string]uint64{"render-busy": 0}}, engines, FreqSpec{})
	t1 := t0.Add(50 * time.Millisecond)
	first := re.Compute(Snapshot{Time: t1, Values: map[string]uint64{"render-busy": 25_000_000}}, engines, FreqSpec{})

	// Sub-millisecond follow-up read: rate is undefined, previous value returned.
	t2 := t1.Add(200 * time.Microsecond)
	second := re.Compute(Snapshot{Time: t2, Values: map[string]uint64{"render-busy": 25_100_000}}, engines, FreqSpec{})

	if second.Engines[EngineRender].BusyPercent != first.Engines[EngineRender].BusyPercent {
		t.Errorf("sub-millisecond read changed rate: first=%v second=%v",
			first.Engines[EngineRender].BusyPercent, second.Engines[EngineRender].BusyPercent)
	}
}

func TestRateEngine_FrequencyConversion(t *testing.T) {
	re := NewRateEngine()
	freq := FreqSpec{ActualFreqEvent: "actual-freq", ActualFreqScale: 1.0}

	t0 := time.Unix(0, 0)
	re.Compute(Snapshot{Time: t0, Values: map[string]uint64{"actual-freq": 0}}, nil, freq)

	t1 := t0.Add(1 * time.Second)
	rates := re.Compute(Snapshot{Time: t1, Values: map[string]uint64{"actual-freq": 1_500_000_000_000}}, nil, freq)

	if rates.ActualFrequencyMHz != 1500 {
		t.Errorf("ActualFrequencyMHz = %d, want 1500", rates.ActualFrequencyMHz)
	}
}

func TestRateEngine_SumsMultipleEngineInstances(t *testing.T) {
	re := NewRateEngine()
	engines := []EngineSpec{{Class: EngineVideo, BusyEvents: []string{"vcs0-busy", "vcs1-busy"}}}

	t0 := time.Unix(0, 0)
	re.Compute(Snapshot{Time: t0, Values: map[string]uint64{"vcs0-busy": 0, "vcs1-busy": 0}}, engines, FreqSpec{})

	// 100ms window; ring 0 busy 30ms, ring 1 busy 40ms -> 70% combined.
	t1 := t0.Add(100 * time.Millisecond)
	rates := re.Compute(Snapshot{Time: t1, Values: map[string]uint64{"vcs0-busy": 30_000_000, "vcs1-busy": 40_000_000}}, engines, FreqSpec{})

	got := rates.Engines[EngineVideo].BusyPercent
	if got < 69.9 || got > 70.1 {
		t.Errorf("BusyPercent (summed across 2 instances) = %v, want ~70", got)
	}
}
