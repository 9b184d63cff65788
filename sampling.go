package intelgpu

import (
	"time"

	"github.com/ruaan-deysel/intelgpu/logger"
)

// Sink receives each GpuStats produced by a sampling worker, or an error
// when a read_stats call fails. Implementations that don't care about
// transient errors can ignore the err parameter; the worker retries on the
// next tick regardless.
type Sink func(stats GpuStats, err error)

// SamplingHandle owns a background worker that periodically reads an
// adapter and delivers results to a Sink, until Stop is called.
type SamplingHandle struct {
	stop chan struct{}
	done chan struct{}
}

// StartSampling spawns a worker goroutine that calls gpu.ReadStats every
// interval and passes the result to sink, until the returned handle is
// stopped. The worker never exits on a transient read error; it delivers
// the error to sink and retries on the next tick.
func (g *IntelGpu) StartSampling(interval time.Duration, sink Sink) *SamplingHandle {
	logger.Debug("intelgpu: sampling worker started for %s (interval %v)", g.Driver(), interval)
	return startSampling(interval, g.ReadStats, sink)
}

// startSampling is the driver-independent sampling loop; StartSampling
// binds it to a live adapter's ReadStats, tests bind it to a stub.
func startSampling(interval time.Duration, read func() (GpuStats, error), sink Sink) *SamplingHandle {
	h := &SamplingHandle{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(h.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-h.stop:
				return
			case <-ticker.C:
				stats, err := read()
				sink(stats, err)
			}
		}
	}()

	return h
}

// Stop signals the worker to exit and blocks until it has. Safe to call
// more than once.
func (h *SamplingHandle) Stop() {
	select {
	case <-h.stop:
		// already stopped
	default:
		close(h.stop)
	}
	<-h.done
}
