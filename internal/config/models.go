package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/muurk/coopdoor/internal/door"
	"github.com/muurk/coopdoor/internal/link"
)

// Radio kinds
const (
	RadioSerial    = "serial"    // HC-12 on a local UART
	RadioWebSocket = "websocket" // radio behind a coopctl bridge
	RadioSim       = "sim"       // in-process simulated door
)

// Config represents the entire coopctl configuration file.
type Config struct {
	Version   int             `yaml:"version"`
	Device    DeviceConfig    `yaml:"device"`
	Link      link.Policy     `yaml:"link"`
	Radio     RadioConfig     `yaml:"radio"`
	Responder ResponderConfig `yaml:"responder"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// DeviceConfig identifies the door being controlled
type DeviceConfig struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name,omitempty"`
	InitialState string `yaml:"initial_state"` // "closed" or "open"
}

// RadioConfig selects and configures the transport
type RadioConfig struct {
	Kind string `yaml:"kind"`
	Port string `yaml:"port,omitempty"` // serial device path
	Baud int    `yaml:"baud,omitempty"`
	URL  string `yaml:"url,omitempty"` // bridge URL, ws://host:port/radio; empty to discover
}

// ResponderConfig tunes "coopctl respond" and the demo door
type ResponderConfig struct {
	AckTimeout     time.Duration `yaml:"ack_timeout"`
	MaxAckAttempts int           `yaml:"max_ack_attempts"`
	ReplayWindow   time.Duration `yaml:"replay_window"`
	Travel         time.Duration `yaml:"travel"` // simulated door travel time
}

// BridgeConfig configures "coopctl bridge"
type BridgeConfig struct {
	Addr      string `yaml:"addr"`
	Advertise bool   `yaml:"advertise"` // publish over mDNS
}

// LoggingConfig holds log settings
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error; empty for silent
}

// MetricsConfig holds the Prometheus listener settings
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"` // empty disables the endpoint
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Version: 1,
		Device: DeviceConfig{
			ID:           "1",
			InitialState: "closed",
		},
		Link: link.DefaultPolicy(),
		Radio: RadioConfig{
			Kind: RadioSerial,
			Port: "/dev/ttyUSB0",
			Baud: 9600,
		},
		Responder: ResponderConfig{
			AckTimeout:     300 * time.Millisecond,
			MaxAckAttempts: 5,
			ReplayWindow:   30 * time.Second,
			Travel:         200 * time.Millisecond,
		},
		Bridge: BridgeConfig{
			Addr:      ":8765",
			Advertise: true,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// applyDefaults fills zero values left by a partial file
func (c *Config) applyDefaults() {
	def := Default()
	if c.Device.ID == "" {
		c.Device.ID = def.Device.ID
	}
	if c.Device.InitialState == "" {
		c.Device.InitialState = def.Device.InitialState
	}
	if c.Link.AttemptTimeout == 0 {
		c.Link.AttemptTimeout = def.Link.AttemptTimeout
	}
	if c.Link.MaxAttempts == 0 {
		c.Link.MaxAttempts = def.Link.MaxAttempts
	}
	if c.Radio.Kind == "" {
		c.Radio.Kind = def.Radio.Kind
	}
	if c.Radio.Baud == 0 {
		c.Radio.Baud = def.Radio.Baud
	}
	if c.Responder.AckTimeout == 0 {
		c.Responder.AckTimeout = def.Responder.AckTimeout
	}
	if c.Responder.MaxAckAttempts == 0 {
		c.Responder.MaxAckAttempts = def.Responder.MaxAckAttempts
	}
	if c.Responder.ReplayWindow == 0 {
		c.Responder.ReplayWindow = def.Responder.ReplayWindow
	}
	if c.Bridge.Addr == "" {
		c.Bridge.Addr = def.Bridge.Addr
	}
}

// Validate checks the configuration for values coopctl cannot use.
func (c *Config) Validate() error {
	if c.Version != 1 {
		return fmt.Errorf("unsupported config version: %d (expected 1)", c.Version)
	}
	if _, err := door.ParseState(c.Device.InitialState); err != nil {
		return fmt.Errorf("device.initial_state: %w", err)
	}
	if c.Link.AttemptTimeout < 0 {
		return fmt.Errorf("link.attempt_timeout must be positive, got %s", c.Link.AttemptTimeout)
	}
	if c.Link.MaxAttempts < 0 {
		return fmt.Errorf("link.max_attempts must be positive, got %d", c.Link.MaxAttempts)
	}

	switch strings.ToLower(c.Radio.Kind) {
	case RadioSerial:
		if c.Radio.Port == "" {
			return fmt.Errorf("radio.port is required for a serial radio")
		}
	case RadioWebSocket:
		// An empty URL means the bridge for device.id is found over mDNS
		if c.Radio.URL != "" && !strings.HasPrefix(c.Radio.URL, "ws://") && !strings.HasPrefix(c.Radio.URL, "wss://") {
			return fmt.Errorf("radio.url must be a ws:// or wss:// URL, got %q", c.Radio.URL)
		}
	case RadioSim:
	default:
		return fmt.Errorf("radio.kind must be %s, %s or %s, got %q", RadioSerial, RadioWebSocket, RadioSim, c.Radio.Kind)
	}
	return nil
}

// InitialState returns the configured starting door state.
func (c *Config) InitialState() door.State {
	s, err := door.ParseState(c.Device.InitialState)
	if err != nil {
		return door.Closed
	}
	return s
}
