// Command gpu-broadcast samples Intel GPU telemetry continuously and fans
// it out to a live WebSocket dashboard, a Prometheus /metrics endpoint, and
// (optionally) an MQTT broker, for broadcast and media pipelines that need
// to watch Quick Sync load alongside the rest of their observability stack.
package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/cskr/pubsub"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ruaan-deysel/intelgpu"
	"github.com/ruaan-deysel/intelgpu/gpuinfo"
	"github.com/ruaan-deysel/intelgpu/logger"
)

const statsTopic = "stats"

var cli struct {
	Addr     string        `default:":8073" help:"HTTP listen address for REST, WebSocket, Prometheus, and Swagger UI"`
	Interval time.Duration `default:"500ms" help:"GPU sampling interval"`
	LogsDir  string        `default:"/var/log" help:"directory to store logs"`
	Debug    bool          `default:"false" help:"log to stdout instead of a rotated log file"`
	LogLevel string        `default:"info" help:"log level: debug, info, warning, error"`

	MQTTEnabled     bool          `default:"false" env:"MQTT_ENABLED" help:"enable MQTT publishing"`
	MQTTBroker      string        `default:"" env:"MQTT_BROKER" help:"MQTT broker URI, e.g. tcp://localhost:1883"`
	MQTTClientID    string        `default:"gpu-broadcast" env:"MQTT_CLIENT_ID" help:"MQTT client ID"`
	MQTTUsername    string        `default:"" env:"MQTT_USERNAME" help:"MQTT username"`
	MQTTPassword    string        `default:"" env:"MQTT_PASSWORD" help:"MQTT password"`
	MQTTTopicPrefix string        `default:"intelgpu" env:"MQTT_TOPIC_PREFIX" help:"MQTT topic prefix"`
	MQTTQoS         int           `default:"0" env:"MQTT_QOS" help:"MQTT QoS level (0, 1, or 2)"`
	MQTTRetain      bool          `default:"true" env:"MQTT_RETAIN" help:"retain MQTT messages"`
}

func main() {
	kong.Parse(&cli)
	setupLogging()
	logger.SetLevel(parseLevel(cli.LogLevel))

	gpu, err := intelgpu.Detect()
	if err != nil {
		logger.Fatal("detect Intel GPU: %v", err)
	}
	defer gpu.Close()
	logger.Info("gpu-broadcast: opened %s adapter at %s", gpu.Driver(), gpu.Info().SysPath)

	bus := pubsub.New(16)
	defer bus.Shutdown()

	hub := newWSHub()
	hubStop := make(chan struct{})
	go hub.run(hubStop)
	defer close(hubStop)

	mqtt := newMQTTPublisher(mqttConfig{
		Enabled:     cli.MQTTEnabled,
		Broker:      cli.MQTTBroker,
		ClientID:    cli.MQTTClientID,
		Username:    cli.MQTTUsername,
		Password:    cli.MQTTPassword,
		TopicPrefix: cli.MQTTTopicPrefix,
		QoS:         cli.MQTTQoS,
		Retain:      cli.MQTTRetain,
		ConnTimeout: 5 * time.Second,
		KeepAlive:   30 * time.Second,
	})
	if err := mqtt.connect(); err != nil {
		logger.Warning("gpu-broadcast: MQTT connect failed, continuing without it: %v", err)
	}
	defer mqtt.disconnect()

	srv := newServer(hub)
	go fanOut(bus, hub, mqtt, srv)

	hotplugStop := make(chan struct{})
	defer close(hotplugStop)
	if hotplug, err := gpuinfo.WatchGpus(hotplugStop); err != nil {
		logger.Debug("gpu-broadcast: hotplug watch unavailable: %v", err)
	} else {
		go logHotplugEvents(hotplug)
	}

	handle := gpu.StartSampling(cli.Interval, func(stats intelgpu.GpuStats, err error) {
		if err != nil {
			logger.Warning("gpu-broadcast: read_stats failed: %v", err)
			return
		}
		bus.Pub(stats, statsTopic)
	})
	defer handle.Stop()

	httpServer := &http.Server{Addr: cli.Addr, Handler: srv.router}
	go func() {
		logger.Info("gpu-broadcast: listening on %s", cli.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server: %v", err)
		}
	}()

	waitForInterrupt()
	logger.Info("gpu-broadcast: shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
}

// fanOut subscribes to the stats topic once and distributes every sample to
// the WebSocket hub, the Prometheus gauges, the MQTT publisher, and the
// REST server's cached snapshot.
func fanOut(bus *pubsub.PubSub, hub *wsHub, mqtt *mqttPublisher, srv *server) {
	ch := bus.Sub(statsTopic)
	for msg := range ch {
		stats, ok := msg.(intelgpu.GpuStats)
		if !ok {
			continue
		}
		hub.publish(stats)
		updateMetrics(stats)
		mqtt.publish(stats)
		srv.record(stats)
	}
}

// logHotplugEvents only logs: this build samples a single adapter chosen at
// startup and doesn't attempt to migrate an open counter group to a newly
// attached card.
func logHotplugEvents(events <-chan gpuinfo.HotplugEvent) {
	for ev := range events {
		if ev.Added {
			logger.Info("gpu-broadcast: adapter card%d attached", ev.CardIndex)
		} else {
			logger.Info("gpu-broadcast: adapter card%d removed", ev.CardIndex)
		}
	}
}

func setupLogging() {
	if cli.Debug {
		log.SetOutput(os.Stdout)
		log.SetFlags(log.LstdFlags | log.Lshortfile)
		return
	}

	fileLogger := &lumberjack.Logger{
		Filename:   filepath.Join(cli.LogsDir, "gpu-broadcast.log"),
		MaxSize:    5,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(fileLogger, os.Stdout))
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
