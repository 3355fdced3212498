package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DroneEntry is a friendly name mapped to the MAVLink connection string used
// to open a session (e.g. "udp:0.0.0.0:14550", "serial:/dev/ttyUSB0:57600").
type DroneEntry struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Connection string `yaml:"connection"`
}

// DroneRegistry is an optional convenience lookup from a friendly id to the
// connection string the HTTP API's {conn} path segment expects. Sessions can
// equally be addressed directly by connection string without a registry.
type DroneRegistry struct {
	Drones []DroneEntry `yaml:"drones"`
}

// LoadDroneRegistry loads drone entries from a YAML file.
func LoadDroneRegistry(path string) (*DroneRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read drone registry: %w", err)
	}

	var registry DroneRegistry
	if err := yaml.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("parse drone registry: %w", err)
	}

	return &registry, nil
}

// Resolve returns the connection string registered for id, or id itself if
// no entry matches — callers may always address a session directly.
func (r *DroneRegistry) Resolve(id string) string {
	if r == nil {
		return id
	}
	for _, d := range r.Drones {
		if d.ID == id {
			return d.Connection
		}
	}
	return id
}
