package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ruaan-deysel/intelgpu"
)

// Prometheus gauge definitions, exposed at /metrics.
var (
	engineBusyPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "intelgpu_engine_busy_percent",
			Help: "Percentage of the sampling window the engine class was busy",
		},
		[]string{"engine"},
	)
	engineWaitPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "intelgpu_engine_wait_percent",
			Help: "Percentage of the sampling window the engine class was waiting on a semaphore or fence",
		},
		[]string{"engine"},
	)
	actualFrequencyMHz = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "intelgpu_actual_frequency_mhz",
		Help: "Current GPU clock frequency in MHz",
	})
	requestedFrequencyMHz = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "intelgpu_requested_frequency_mhz",
		Help: "Requested GPU clock frequency in MHz",
	})
	rc6Percent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "intelgpu_rc6_residency_percent",
		Help: "Percentage of the sampling window spent in the RC6 idle power state",
	})
	temperatureCelsius = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "intelgpu_temperature_celsius",
		Help: "GPU die temperature in Celsius",
	})
	gpuPowerWatts = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "intelgpu_power_watts",
		Help: "GPU power draw in watts, from Intel RAPL",
	})
	packagePowerWatts = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "intelgpu_package_power_watts",
		Help: "SoC package power draw in watts, from Intel RAPL",
	})
	throttled = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "intelgpu_throttled",
		Help: "1 if the GPU is currently throttled for any reason, else 0",
	})
	quicksyncClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "intelgpu_quicksync_client_count",
		Help: "Number of processes currently consuming the video or video-enhance engines",
	})
)

func init() {
	prometheus.MustRegister(
		engineBusyPercent,
		engineWaitPercent,
		actualFrequencyMHz,
		requestedFrequencyMHz,
		rc6Percent,
		temperatureCelsius,
		gpuPowerWatts,
		packagePowerWatts,
		throttled,
		quicksyncClients,
	)
}

// updateMetrics pushes a freshly sampled snapshot into the registered gauges.
func updateMetrics(stats intelgpu.GpuStats) {
	for name, e := range stats.Engines {
		engineBusyPercent.WithLabelValues(string(name)).Set(e.BusyPercent)
		engineWaitPercent.WithLabelValues(string(name)).Set(e.WaitPercent)
	}
	actualFrequencyMHz.Set(float64(stats.ActualFrequencyMHz))
	requestedFrequencyMHz.Set(float64(stats.RequestedFrequencyMHz))
	if stats.HasRC6 {
		rc6Percent.Set(stats.RC6Percent)
	}
	if stats.Temperature != nil {
		temperatureCelsius.Set(float64(stats.Temperature.MilliC) / 1000)
	}
	if stats.Power != nil {
		gpuPowerWatts.Set(stats.Power.GPUWatts)
		packagePowerWatts.Set(stats.Power.PackageWatts)
	}
	if stats.Throttle != nil && stats.Throttle.Any() {
		throttled.Set(1)
	} else {
		throttled.Set(0)
	}

	if clients, err := intelgpu.FindQuicksyncClients(); err == nil {
		quicksyncClients.Set(float64(len(clients)))
	}
}
