package intelgpu

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestStartSampling_DeliversToSink(t *testing.T) {
	var mu sync.Mutex
	var calls int

	read := func() (GpuStats, error) {
		return GpuStats{ActualFrequencyMHz: 1200}, nil
	}
	sink := func(stats GpuStats, err error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
	}

	h := startSampling(5*time.Millisecond, read, sink)
	time.Sleep(30 * time.Millisecond)
	h.Stop()

	mu.Lock()
	defer mu.Unlock()
	if calls == 0 {
		t.Error("sink was never called")
	}
}

func TestStartSampling_ErrorsDoNotStopTheWorker(t *testing.T) {
	var mu sync.Mutex
	var okCalls, errCalls int
	failing := true

	read := func() (GpuStats, error) {
		mu.Lock()
		defer mu.Unlock()
		if failing {
			failing = false
			return GpuStats{}, errors.New("transient read failure")
		}
		return GpuStats{}, nil
	}
	sink := func(stats GpuStats, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			errCalls++
		} else {
			okCalls++
		}
	}

	h := startSampling(5*time.Millisecond, read, sink)
	time.Sleep(40 * time.Millisecond)
	h.Stop()

	mu.Lock()
	defer mu.Unlock()
	if errCalls == 0 {
		t.Error("expected at least one error delivery")
	}
	if okCalls == 0 {
		t.Error("worker stopped retrying after the transient error")
	}
}

func TestSamplingHandle_StopIsIdempotent(t *testing.T) {
	h := startSampling(time.Hour, func() (GpuStats, error) { return GpuStats{}, nil }, func(GpuStats, error) {})
	h.Stop()
	h.Stop() // must not panic or deadlock
}
