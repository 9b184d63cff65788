package main

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ruaan-deysel/intelgpu"
	"github.com/ruaan-deysel/intelgpu/logger"
)

// mqttConfig carries the broker settings needed to publish GPU telemetry.
type mqttConfig struct {
	Enabled      bool
	Broker       string
	ClientID     string
	Username     string
	Password     string
	TopicPrefix  string
	QoS          int
	Retain       bool
	ConnTimeout  time.Duration
	KeepAlive    time.Duration
}

// mqttPublisher publishes every sampled GpuStats to an MQTT broker, for
// consumption by home automation or monitoring stacks such as Home Assistant.
type mqttPublisher struct {
	cfg       mqttConfig
	client    pahomqtt.Client
	connected atomic.Bool
}

func newMQTTPublisher(cfg mqttConfig) *mqttPublisher {
	return &mqttPublisher{cfg: cfg}
}

func (p *mqttPublisher) connect() error {
	if !p.cfg.Enabled {
		return nil
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(p.cfg.Broker)
	opts.SetClientID(p.cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(p.cfg.ConnTimeout)
	opts.SetKeepAlive(p.cfg.KeepAlive)
	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
	}
	if p.cfg.Password != "" {
		opts.SetPassword(p.cfg.Password)
	}
	opts.SetWill(p.buildTopic("availability"), "offline", byte(p.cfg.QoS), true)
	opts.OnConnect = func(c pahomqtt.Client) {
		p.connected.Store(true)
		c.Publish(p.buildTopic("availability"), byte(p.cfg.QoS), true, "online")
		logger.Info("gpu-broadcast: connected to MQTT broker %s", p.cfg.Broker)
	}
	opts.OnConnectionLost = func(_ pahomqtt.Client, err error) {
		p.connected.Store(false)
		logger.Warning("gpu-broadcast: MQTT connection lost: %v", err)
	}

	p.client = pahomqtt.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(p.cfg.ConnTimeout) {
		return fmt.Errorf("mqtt: timed out connecting to %s", p.cfg.Broker)
	}
	return token.Error()
}

func (p *mqttPublisher) disconnect() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

// publish publishes a GpuStats snapshot as JSON under <prefix>/stats.
func (p *mqttPublisher) publish(stats intelgpu.GpuStats) {
	if !p.shouldPublish() {
		return
	}
	payload, err := json.Marshal(stats)
	if err != nil {
		logger.Warning("gpu-broadcast: marshal MQTT payload: %v", err)
		return
	}
	token := p.client.Publish(p.buildTopic("stats"), byte(p.cfg.QoS), p.cfg.Retain, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		logger.Warning("gpu-broadcast: publish MQTT stats: %v", err)
	}
}

func (p *mqttPublisher) shouldPublish() bool {
	return p.cfg.Enabled && p.connected.Load() && p.client != nil
}

func (p *mqttPublisher) buildTopic(suffix string) string {
	if p.cfg.TopicPrefix == "" {
		return suffix
	}
	return fmt.Sprintf("%s/%s", p.cfg.TopicPrefix, suffix)
}
