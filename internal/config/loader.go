package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config but with YAML tags and optional fields, used as
// an overlay on top of Default() when a config file is present.
type fileConfig struct {
	Server *struct {
		Host              string   `yaml:"host"`
		Port              int      `yaml:"port"`
		CORSOrigins       []string `yaml:"cors_origins"`
		DroneRegistryPath string   `yaml:"drone_registry_path"`
	} `yaml:"server"`
	MAVLink *struct {
		DefaultPort     string `yaml:"default_port"`
		DefaultBaudRate int    `yaml:"default_baud_rate"`
	} `yaml:"mavlink"`
	Session *struct {
		ReadFrequencyHz    int `yaml:"read_frequency_hz"`
		AckTimeoutMs       int `yaml:"ack_timeout_ms"`
		ParamQuiescenceMs  int `yaml:"param_quiescence_ms"`
		ParamIndexTimeoutS int `yaml:"param_index_timeout_s"`
		HeartbeatTimeoutS  int `yaml:"heartbeat_timeout_s"`
	} `yaml:"session"`
	FlightLog *struct {
		Directory string `yaml:"directory"`
		Gzip      *bool  `yaml:"gzip"`
	} `yaml:"flight_log"`
	Logging *struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadFile reads a YAML config file and overlays it on top of Default().
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyFileConfig(cfg, &fc)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func applyFileConfig(cfg *Config, fc *fileConfig) {
	if fc.Server != nil {
		if fc.Server.Host != "" {
			cfg.Server.Host = fc.Server.Host
		}
		if fc.Server.Port != 0 {
			cfg.Server.Port = fc.Server.Port
		}
		if len(fc.Server.CORSOrigins) > 0 {
			cfg.Server.CORSOrigins = fc.Server.CORSOrigins
		}
		if fc.Server.DroneRegistryPath != "" {
			cfg.Server.DroneRegistryPath = fc.Server.DroneRegistryPath
		}
	}
	if fc.MAVLink != nil {
		if fc.MAVLink.DefaultPort != "" {
			cfg.MAVLink.DefaultPort = fc.MAVLink.DefaultPort
		}
		if fc.MAVLink.DefaultBaudRate != 0 {
			cfg.MAVLink.DefaultBaudRate = fc.MAVLink.DefaultBaudRate
		}
	}
	if fc.Session != nil {
		if fc.Session.ReadFrequencyHz != 0 {
			cfg.Session.ReadFrequencyHz = fc.Session.ReadFrequencyHz
		}
		if fc.Session.AckTimeoutMs != 0 {
			cfg.Session.AckTimeout = time.Duration(fc.Session.AckTimeoutMs) * time.Millisecond
		}
		if fc.Session.ParamQuiescenceMs != 0 {
			cfg.Session.ParamQuiescence = time.Duration(fc.Session.ParamQuiescenceMs) * time.Millisecond
		}
		if fc.Session.ParamIndexTimeoutS != 0 {
			cfg.Session.ParamIndexTimeout = time.Duration(fc.Session.ParamIndexTimeoutS) * time.Second
		}
		if fc.Session.HeartbeatTimeoutS != 0 {
			cfg.Session.HeartbeatTimeout = time.Duration(fc.Session.HeartbeatTimeoutS) * time.Second
		}
	}
	if fc.FlightLog != nil {
		if fc.FlightLog.Directory != "" {
			cfg.FlightLog.Directory = fc.FlightLog.Directory
		}
		if fc.FlightLog.Gzip != nil {
			cfg.FlightLog.Gzip = *fc.FlightLog.Gzip
		}
	}
	if fc.Logging != nil && fc.Logging.Level != "" {
		cfg.Logging.Level = fc.Logging.Level
	}
}

// Load builds configuration starting from Default(), optionally overlaying a
// YAML file named by FLIGHTPATH_CONFIG_FILE, then applying environment
// variable overrides. Falls back to defaults for any value left unset.
func Load() *Config {
	cfg := Default()

	if path := os.Getenv("FLIGHTPATH_CONFIG_FILE"); path != "" {
		if fileCfg, err := LoadFile(path); err == nil {
			cfg = fileCfg
		}
	}

	if port := os.Getenv("FLIGHTPATH_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if host := os.Getenv("FLIGHTPATH_HOST"); host != "" {
		cfg.Server.Host = host
	}

	if logLevel := os.Getenv("FLIGHTPATH_LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if mavPort := os.Getenv("FLIGHTPATH_MAVLINK_PORT"); mavPort != "" {
		cfg.MAVLink.DefaultPort = mavPort
	}

	if mavBaud := os.Getenv("FLIGHTPATH_MAVLINK_BAUD"); mavBaud != "" {
		if b, err := strconv.Atoi(mavBaud); err == nil {
			cfg.MAVLink.DefaultBaudRate = b
		}
	}

	if dir := os.Getenv("FLIGHTPATH_FLIGHT_LOG_DIR"); dir != "" {
		cfg.FlightLog.Directory = dir
	}

	if gz := os.Getenv("FLIGHTPATH_FLIGHT_LOG_GZIP"); gz != "" {
		cfg.FlightLog.Gzip = gz == "1" || gz == "true"
	}

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("invalid configuration: %v", err))
	}

	return cfg
}
