package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	MAVLink   MAVLinkConfig
	Session   SessionConfig
	FlightLog FlightLogConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host              string
	Port              int
	CORSOrigins       []string
	DroneRegistryPath string // path to drones.yaml, optional
}

// MAVLinkConfig holds defaults used when a connection string omits them
// (e.g. a bare serial device path with no explicit baud rate).
type MAVLinkConfig struct {
	DefaultPort     string
	DefaultBaudRate int
}

// SessionConfig holds the timing constants governing the receiver scheduler
// and command/ACK state machine. Overridable so tests can run the state
// machine at compressed timescales.
type SessionConfig struct {
	ReadFrequencyHz    int           // receiver loop rate, default 4000 Hz
	AckTimeout         time.Duration // default 500ms
	ParamQuiescence    time.Duration // default 300ms
	ParamIndexTimeout  time.Duration // per-index retrieval timeout, default 2s
	HeartbeatTimeout   time.Duration // default 3s
	TelemetryLogPeriod time.Duration // minimum spacing between telemetry log samples, default 1s
}

// ReadInterval is the receiver loop's sleep duration between iterations.
func (s SessionConfig) ReadInterval() time.Duration {
	if s.ReadFrequencyHz <= 0 {
		return 250 * time.Microsecond
	}
	return time.Second / time.Duration(s.ReadFrequencyHz)
}

type FlightLogConfig struct {
	Directory string
	Gzip      bool
}

type LoggingConfig struct {
	Level string // "debug", "info", "warn", "error"
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			CORSOrigins: []string{
				"http://localhost:5173",
				"http://localhost:3000",
			},
			DroneRegistryPath: "./data/config/drones.yaml",
		},
		MAVLink: MAVLinkConfig{
			DefaultPort:     "/dev/ttyUSB0",
			DefaultBaudRate: 57600,
		},
		Session: SessionConfig{
			ReadFrequencyHz:    4000,
			AckTimeout:         500 * time.Millisecond,
			ParamQuiescence:    300 * time.Millisecond,
			ParamIndexTimeout:  2 * time.Second,
			HeartbeatTimeout:   3 * time.Second,
			TelemetryLogPeriod: time.Second,
		},
		FlightLog: FlightLogConfig{
			Directory: "./flight_logs",
			Gzip:      true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks if the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Session.ReadFrequencyHz <= 0 {
		return fmt.Errorf("invalid read frequency: %d", c.Session.ReadFrequencyHz)
	}

	return nil
}

// ServerAddr returns the server address as host:port.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
