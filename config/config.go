// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Transports supported by the broker connection.
const (
	TransportTCP       = "tcp"
	TransportTLS       = "tls"
	TransportWebSocket = "ws"
	TransportSecureWS  = "wss"
)

// Sensor kinds.
const (
	SensorADC       = "adc"
	SensorSimulated = "simulated"
)

// MaxDeviceIDLength bounds the device id so a telemetry record with all
// essential fields always fits its size limit.
const MaxDeviceIDLength = 64

type (
	// Config is the complete agent configuration. It is not modified after
	// Load returns.
	Config struct {
		DeviceID    string        `yaml:"device_id"`
		CyclePeriod Duration      `yaml:"cycle_period"`
		LogLevel    string        `yaml:"log_level"`
		Network     NetworkConfig `yaml:"network"`
		Broker      BrokerConfig  `yaml:"broker"`
		Model       ModelConfig   `yaml:"model"`
		Sensor      SensorConfig  `yaml:"sensor"`
		Metrics     MetricsConfig `yaml:"metrics"`
	}

	// NetworkConfig describes the local link.
	NetworkConfig struct {
		// Interface, if set, must be up before the broker is dialed.
		Interface string `yaml:"interface"`
		// SSID is the wireless network the interface is expected to join.
		// Association itself is managed by the operating system.
		SSID string `yaml:"ssid"`
		// Password is the wireless passphrase. Like SSID it is informational
		// only and is never logged.
		Password Secret `yaml:"password"`
	}

	// BrokerConfig describes the MQTT broker and session.
	BrokerConfig struct {
		Host           string    `yaml:"host"`
		Port           int       `yaml:"port"`
		Transport      string    `yaml:"transport"`
		Path           string    `yaml:"path"`
		ClientID       string    `yaml:"client_id"`
		Username       string    `yaml:"username"`
		PasswordFile   string    `yaml:"password_file"`
		KeepAlive      Duration  `yaml:"keep_alive"`
		ConnectTimeout Duration  `yaml:"connect_timeout"`
		Attempts       int       `yaml:"attempts"`
		BackoffMin     Duration  `yaml:"backoff_min"`
		BackoffMax     Duration  `yaml:"backoff_max"`
		// DispatchWait bounds how long each cycle waits for session events.
		// Zero only drains what has already arrived.
		DispatchWait Duration  `yaml:"dispatch_wait"`
		TLS          TLSConfig `yaml:"tls"`
	}

	// TLSConfig holds the file paths of TLS material.
	TLSConfig struct {
		CAFile          string `yaml:"ca_file"`
		CertFile        string `yaml:"cert_file"`
		KeyFile         string `yaml:"key_file"`
		KeyPasswordFile string `yaml:"key_password_file"`
		ServerName      string `yaml:"server_name"`
	}

	// ModelConfig describes the classifier.
	ModelConfig struct {
		// Path to the model file. Empty or unreadable means heuristic mode.
		Path         string  `yaml:"path"`
		ArenaSize    int     `yaml:"arena_size"`
		Threshold    float64 `yaml:"threshold"`
		MaxMagnitude float64 `yaml:"max_magnitude"`
	}

	// SensorConfig describes the sampling source.
	SensorConfig struct {
		Kind           string  `yaml:"kind"`
		Path           string  `yaml:"path"`
		ReferenceVolts float64 `yaml:"reference_volts"`
		MaxRaw         int     `yaml:"max_raw"`
		Seed           int64   `yaml:"seed"`
	}

	// MetricsConfig describes the Prometheus endpoint. An empty address
	// disables it.
	MetricsConfig struct {
		Addr string `yaml:"addr"`
	}
)

// Load reads the YAML file at path (if path is not empty), applies AGENT_*
// environment overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, &InvalidArgumentError{
				message: "could not parse " + path,
				wrapped: err,
			}
		}
	}

	if err := cfg.applyEnv(os.Environ()); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.CyclePeriod == 0 {
		c.CyclePeriod = Duration(2 * time.Second)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	b := &c.Broker
	if b.Transport == "" {
		b.Transport = TransportTCP
	}
	if b.Port == 0 {
		switch b.Transport {
		case TransportTLS:
			b.Port = 8883
		case TransportWebSocket:
			b.Port = 80
		case TransportSecureWS:
			b.Port = 443
		default:
			b.Port = 1883
		}
	}
	if b.Path == "" {
		b.Path = "/mqtt"
	}
	if b.ClientID == "" {
		b.ClientID = c.DeviceID
	}
	if b.KeepAlive == 0 {
		b.KeepAlive = Duration(60 * time.Second)
	}
	if b.ConnectTimeout == 0 {
		b.ConnectTimeout = Duration(5 * time.Second)
	}
	if b.Attempts == 0 {
		b.Attempts = 3
	}
	if b.BackoffMin == 0 {
		b.BackoffMin = Duration(time.Second)
	}
	if b.BackoffMax == 0 {
		b.BackoffMax = Duration(60 * time.Second)
	}

	if c.Sensor.Kind == "" {
		c.Sensor.Kind = SensorADC
	}
	if c.Sensor.ReferenceVolts == 0 {
		c.Sensor.ReferenceVolts = 5.0
	}
	if c.Sensor.MaxRaw == 0 {
		c.Sensor.MaxRaw = 4095
	}

	if c.Model.ArenaSize == 0 {
		c.Model.ArenaSize = 2048
	}
	if c.Model.Threshold == 0 {
		c.Model.Threshold = 2.5
	}
	if c.Model.MaxMagnitude == 0 {
		// The ADC cannot read above its reference; the simulator tops out
		// at 5 V.
		c.Model.MaxMagnitude = 5.0
		if c.Sensor.Kind == SensorADC {
			c.Model.MaxMagnitude = c.Sensor.ReferenceVolts
		}
	}
}

func (c *Config) validate() error {
	if err := ValidateDeviceID(c.DeviceID); err != nil {
		return err
	}
	if c.CyclePeriod <= 0 {
		return invalid("cycle_period must be positive")
	}
	if _, err := c.Level(); err != nil {
		return err
	}

	b := &c.Broker
	if b.Host == "" {
		return invalid("broker.host is required")
	}
	if b.Port < 1 || b.Port > 65535 {
		return invalid("broker.port %d out of range", b.Port)
	}
	switch b.Transport {
	case TransportTCP, TransportWebSocket:
		if b.TLS != (TLSConfig{}) {
			return invalid("TLS configuration provided but not using TLS")
		}
	case TransportTLS, TransportSecureWS:
	default:
		return invalid("unknown broker.transport %q", b.Transport)
	}
	if (b.TLS.CertFile != "") != (b.TLS.KeyFile != "") {
		return invalid(
			"certificate file and key file must be provided together",
		)
	}
	if b.TLS.KeyPasswordFile != "" && b.TLS.KeyFile == "" {
		return invalid("key password file provided without key file")
	}
	if b.Attempts < 1 {
		return invalid("broker.attempts must be at least 1")
	}
	if b.KeepAlive < Duration(time.Second) ||
		b.KeepAlive > Duration(65535*time.Second) {
		return invalid("broker.keep_alive %s out of range", b.KeepAlive)
	}
	if b.ConnectTimeout <= 0 {
		return invalid("broker.connect_timeout must be positive")
	}
	if b.BackoffMin <= 0 || b.BackoffMax < b.BackoffMin {
		return invalid("broker backoff bounds %s..%s invalid",
			b.BackoffMin, b.BackoffMax)
	}
	if b.DispatchWait < 0 || b.DispatchWait >= c.CyclePeriod {
		return invalid("broker.dispatch_wait %s must be shorter than "+
			"cycle_period %s", b.DispatchWait, c.CyclePeriod)
	}

	m := &c.Model
	if m.ArenaSize <= 0 {
		return invalid("model.arena_size must be positive")
	}
	if m.Threshold <= 0 || m.MaxMagnitude <= 0 {
		return invalid("model threshold and max_magnitude must be positive")
	}

	switch c.Sensor.Kind {
	case SensorADC:
		if c.Sensor.Path == "" {
			return invalid("sensor.path is required for the adc sensor")
		}
		if c.Sensor.ReferenceVolts <= 0 || c.Sensor.MaxRaw <= 0 {
			return invalid("sensor reference must be positive")
		}
		if c.Model.MaxMagnitude < c.Sensor.ReferenceVolts {
			return invalid(
				"model.max_magnitude %g is below sensor.reference_volts %g",
				c.Model.MaxMagnitude,
				c.Sensor.ReferenceVolts,
			)
		}
	case SensorSimulated:
	default:
		return invalid("unknown sensor.kind %q", c.Sensor.Kind)
	}
	return nil
}

// ValidateDeviceID checks that the id is non-empty, at most
// MaxDeviceIDLength bytes, and usable as a single MQTT topic level.
func ValidateDeviceID(id string) error {
	switch {
	case id == "":
		return invalid("device_id is required")
	case len(id) > MaxDeviceIDLength:
		return invalid(
			"device_id is %d bytes, limit is %d",
			len(id),
			MaxDeviceIDLength,
		)
	case strings.ContainsAny(id, "/+#\x00"):
		return invalid("device_id %q contains a topic separator or wildcard", id)
	case strings.IndexFunc(id, isSpaceOrControl) >= 0:
		return invalid("device_id %q contains whitespace", id)
	}
	return nil
}

func isSpaceOrControl(r rune) bool {
	return r <= ' ' || r == 0x7f
}

// Level returns the configured log level.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, &InvalidArgumentError{
			message: fmt.Sprintf("could not parse log_level %q", c.LogLevel),
			wrapped: err,
		}
	}
	return level, nil
}

// BrokerURL returns the WebSocket URL of the broker for the ws and wss
// transports.
func (b *BrokerConfig) BrokerURL() string {
	return fmt.Sprintf("%s://%s:%d%s", b.Transport, b.Host, b.Port, b.Path)
}
