// Command gpustat prints a one-shot or continuously-refreshing snapshot of
// Intel GPU telemetry to the terminal, in human or JSON form.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/client"

	"github.com/ruaan-deysel/intelgpu"
	"github.com/ruaan-deysel/intelgpu/logger"
)

var cli struct {
	JSON     bool          `default:"false" help:"emit JSON instead of a human-readable table"`
	Watch    bool          `default:"false" help:"keep sampling and printing until interrupted"`
	Interval time.Duration `default:"1s" help:"sampling interval when --watch is set"`
	Docker   bool          `default:"false" help:"annotate Quick Sync clients with their Docker container name"`
	LogLevel string        `default:"info" help:"log level: debug, info, warning, error"`
}

func main() {
	kong.Parse(&cli)
	logger.SetLevel(parseLevel(cli.LogLevel))

	gpu, err := intelgpu.Detect()
	if err != nil {
		logger.Fatal("detect Intel GPU: %v", err)
	}
	defer gpu.Close()

	logger.Info("opened %s adapter at %s", gpu.Driver(), gpu.Info().SysPath)

	if !cli.Watch {
		printOnce(gpu)
		return
	}

	handle := gpu.StartSampling(cli.Interval, func(stats intelgpu.GpuStats, err error) {
		if err != nil {
			logger.Warning("read_stats failed: %v", err)
			return
		}
		render(stats)
	})
	defer handle.Stop()

	waitForInterrupt()
}

func printOnce(gpu *intelgpu.IntelGpu) {
	// The first read_stats after open has no baseline; discard it per the
	// documented convention and take a second reading a moment later.
	if _, err := gpu.ReadStats(); err != nil {
		logger.Fatal("read_stats: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	stats, err := gpu.ReadStats()
	if err != nil {
		logger.Fatal("read_stats: %v", err)
	}
	render(stats)
}

func render(stats intelgpu.GpuStats) {
	if cli.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(stats)
		return
	}

	fmt.Printf("frequency: actual=%dMHz requested=%dMHz\n", stats.ActualFrequencyMHz, stats.RequestedFrequencyMHz)
	if stats.HasRC6 {
		fmt.Printf("rc6: %.1f%%\n", stats.RC6Percent)
	}
	for name, e := range stats.Engines {
		fmt.Printf("engine %-13s busy=%5.1f%% wait=%5.1f%% sema=%5.1f%%\n", name, e.BusyPercent, e.WaitPercent, e.SemaPercent)
	}
	if stats.Temperature != nil {
		fmt.Printf("temperature: %.1fC\n", float64(stats.Temperature.MilliC)/1000)
	}
	if stats.Power != nil {
		fmt.Printf("power: gpu=%.2fW package=%.2fW\n", stats.Power.GPUWatts, stats.Power.PackageWatts)
	}
	if stats.Throttle != nil && stats.Throttle.Any() {
		fmt.Printf("throttled: power=%v thermal=%v current=%v prochot=%v\n",
			stats.Throttle.PowerLimit, stats.Throttle.ThermalLimit, stats.Throttle.CurrentLimit, stats.Throttle.ProchotLimit)
	}

	if cli.Docker {
		annotateQuicksyncClients()
	}
}

// annotateQuicksyncClients resolves each active Quick Sync consumer's PID
// to a Docker container name via the Docker Engine API, since broadcast
// pipelines commonly run ffmpeg inside a container rather than on the host.
func annotateQuicksyncClients() {
	clients, err := intelgpu.FindQuicksyncClients()
	if err != nil || len(clients) == 0 {
		return
	}

	docker, err := client.NewClientWithOpts(client.FromEnv)
	if err != nil {
		logger.Debug("docker client unavailable: %v", err)
		return
	}
	defer docker.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	containers, err := docker.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		logger.Debug("list containers: %v", err)
		return
	}

	for _, c := range clients {
		name := containerNameForPID(ctx, docker, containers, c.PID)
		if name != "" {
			fmt.Printf("quicksync client pid=%d container=%s video_ns=%d video_enhance_ns=%d\n", c.PID, name, c.VideoNs, c.VideoEnhanceNs)
		}
	}
}

func containerNameForPID(ctx context.Context, docker *client.Client, containers []container.Summary, pid int) string {
	for _, c := range containers {
		inspect, err := docker.ContainerInspect(ctx, c.ID)
		if err != nil || inspect.State == nil || inspect.State.Pid != pid {
			continue
		}
		if len(c.Names) > 0 {
			return c.Names[0]
		}
	}
	return ""
}

func parseLevel(s string) logger.LogLevel {
	switch s {
	case "debug":
		return logger.LevelDebug
	case "warning", "warn":
		return logger.LevelWarning
	case "error":
		return logger.LevelError
	default:
		return logger.LevelInfo
	}
}

func waitForInterrupt() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}
