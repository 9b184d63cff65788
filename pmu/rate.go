package pmu

import (
	"sync"
	"time"
)

// EngineRates holds the percentage rates derived for one engine class over
// the most recent read interval.
type EngineRates struct {
	BusyPercent float64
	WaitPercent float64
	SemaPercent float64
}

// Rates is the full set of values the Rate Engine derives from one Counter
// Group read: per-engine percentages plus frequency and rc6 figures.
type Rates struct {
	Engines              map[EngineClass]EngineRates
	ActualFrequencyMHz   int
	RequestedFrequencyMHz int
	RC6Percent           float64
}

// minInterval is the smallest Δt the Rate Engine will compute a fresh rate
// over; below it, rates are undefined and the previous value is returned
// instead of dividing by a near-zero denominator.
const minInterval = time.Millisecond

// RateEngine converts successive Snapshots into Rates, serializing callers
// so concurrent read_stats invocations on the same adapter observe
// non-overlapping, contiguous counter windows rather than a torn read.
type RateEngine struct {
	mu       sync.Mutex
	last     Snapshot
	lastOK   bool
	lastRate Rates
}

// NewRateEngine returns a RateEngine with no baseline; its first Compute
// call stores the baseline and returns zeros for every rate field, per the
// documented "discard the first sample" convention.
func NewRateEngine() *RateEngine {
	return &RateEngine{lastRate: Rates{Engines: map[EngineClass]EngineRates{}}}
}

// EngineSpec tells Compute which counter names in a Snapshot correspond to
// one engine class's busy/wait/sema counters. A class with multiple
// instances (e.g. two VIDEO rings) lists one counter name per instance;
// Compute sums their deltas before converting to a single class-wide
// percentage, per spec.
type EngineSpec struct {
	Class      EngineClass
	BusyEvents []string
	WaitEvents []string
	SemaEvents []string
}

// FreqSpec names the counters used for frequency and rc6 rate conversion,
// along with each counter's descriptor scale (1.0 unless events/<name>.scale
// said otherwise).
type FreqSpec struct {
	ActualFreqEvent    string
	ActualFreqScale    float64
	RequestedFreqEvent string
	RequestedFreqScale float64
	RC6Event           string
}

// Compute advances the Rate Engine to snap, returning the rates for the
// interval between the previous snapshot and this one.
func (r *RateEngine) Compute(snap Snapshot, engines []EngineSpec, freq FreqSpec) Rates {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.lastOK {
		r.last = snap
		r.lastOK = true
		zero := Rates{Engines: map[EngineClass]EngineRates{}}
		for _, e := range engines {
			zero.Engines[e.Class] = EngineRates{}
		}
		r.lastRate = zero
		return zero
	}

	dt := snap.Time.Sub(r.last.Time)
	if dt < minInterval {
		return r.lastRate
	}
	dtNanos := float64(dt.Nanoseconds())

	out := Rates{Engines: make(map[EngineClass]EngineRates, len(engines))}
	for _, e := range engines {
		out.Engines[e.Class] = EngineRates{
			BusyPercent: percentRateMulti(r.last.Values, snap.Values, e.BusyEvents, dtNanos),
			WaitPercent: percentRateMulti(r.last.Values, snap.Values, e.WaitEvents, dtNanos),
			SemaPercent: percentRateMulti(r.last.Values, snap.Values, e.SemaEvents, dtNanos),
		}
	}

	out.ActualFrequencyMHz = freqRate(r.last.Values, snap.Values, freq.ActualFreqEvent, freq.ActualFreqScale, dtNanos)
	out.RequestedFrequencyMHz = freqRate(r.last.Values, snap.Values, freq.RequestedFreqEvent, freq.RequestedFreqScale, dtNanos)
	out.RC6Percent = percentRate(r.last.Values, snap.Values, freq.RC6Event, dtNanos)

	r.last = snap
	r.lastRate = out
	return out
}

// delta returns new-old for name, clamped to 0 on decrease (wrap/reset).
func delta(oldValues, newValues map[string]uint64, name string) uint64 {
	if name == "" {
		return 0
	}
	o := oldValues[name]
	n := newValues[name]
	if n < o {
		return 0
	}
	return n - o
}

func percentRate(oldValues, newValues map[string]uint64, name string, dtNanos float64) float64 {
	if name == "" {
		return 0
	}
	d := delta(oldValues, newValues, name)
	return clampPercent(100 * float64(d) / dtNanos)
}

// percentRateMulti sums the deltas of every named counter (one per engine
// instance) before converting to a percentage, so a class with multiple
// instances reports one combined busy/wait/sema figure rather than only
// instance 0's.
func percentRateMulti(oldValues, newValues map[string]uint64, names []string, dtNanos float64) float64 {
	var sum uint64
	for _, name := range names {
		sum += delta(oldValues, newValues, name)
	}
	return clampPercent(100 * float64(sum) / dtNanos)
}

func clampPercent(pct float64) float64 {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// freqRate implements Δc/Δt × scale, rounded to the nearest MHz. The raw
// counter accumulates MHz-ticks per nanosecond, so dividing by the elapsed
// interval yields the window's average frequency directly.
func freqRate(oldValues, newValues map[string]uint64, name string, scale, dtNanos float64) int {
	if name == "" {
		return 0
	}
	if scale == 0 {
		scale = 1.0
	}
	d := delta(oldValues, newValues, name)
	mhz := float64(d) / dtNanos * scale
	if mhz < 0 {
		mhz = 0
	}
	return int(mhz + 0.5)
}
