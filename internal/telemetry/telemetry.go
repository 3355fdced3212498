// Package telemetry holds the live snapshot state a Session maintains from
// inbound MAVLink messages: position, mode, battery, attitude, and EKF
// health, all mutated only by the receiver loop.
package telemetry

import (
	"sync"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/ardupilotmega"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
)

// EKF status flag bits used to derive State.EkfOK, per MAVLink's
// EKF_STATUS_REPORT flags field.
const (
	ekfAttitude        = 1 << 0
	ekfVelocityHoriz   = 1 << 1
	ekfVelocityVert    = 1 << 2
	ekfPosHorizRel     = 1 << 3
	ekfPredPosHorizRel = 1 << 8
)

const ekfOKMask = ekfAttitude | ekfVelocityHoriz | ekfVelocityVert | ekfPosHorizRel | ekfPredPosHorizRel

// Position is the vehicle's local NED position, in meters.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// BaseModeFlags decodes the subset of HEARTBEAT.base_mode this system cares
// about.
type BaseModeFlags struct {
	Stabilize   bool `json:"stabilize"`
	Auto        bool `json:"auto"`
	ManualInput bool `json:"manual_input"`
}

// VFR holds the subset of VFR_HUD fields surfaced in the snapshot.
type VFR struct {
	Airspeed    float64 `json:"airspeed"`
	Groundspeed float64 `json:"groundspeed"`
	Heading     float64 `json:"heading"`
	Throttle    float64 `json:"throttle"`
	Altitude    float64 `json:"altitude"`
	Climb       float64 `json:"climb"`
}

// Attitude holds roll/pitch/yaw in radians.
type Attitude struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// EKF holds the variance fields reported by EKF_STATUS_REPORT.
type EKF struct {
	VelocityVariance float64 `json:"velocity_variance"`
	PosHorizVariance float64 `json:"pos_horiz_variance"`
	PosVertVariance  float64 `json:"pos_vert_variance"`
	CompassVariance  float64 `json:"compass_variance"`
}

// State is a point-in-time snapshot of a vehicle's telemetry. A fresh
// session reports the zero value with Mode set to "STABILIZE" (see
// NewStore): EkfOK false, all numeric fields zero.
type State struct {
	Position         Position      `json:"position"`
	WaypointDistance float64       `json:"waypoint_distance"`
	Armed            bool          `json:"armed"`
	Mode             string        `json:"mode"`
	BaseMode         BaseModeFlags `json:"base_mode_flags"`
	VFR              VFR           `json:"vfr"`
	Attitude         Attitude      `json:"attitude"`
	EKF              EKF           `json:"ekf"`
	EkfOK            bool          `json:"ekf_ok"`
	BatteryLevel     int32         `json:"battery_level"`
}

// FlightModeNamer supplies the current flight mode name, satisfied by
// *mavlink.Link.
type FlightModeNamer interface {
	FlightModeName() string
}

// Store holds the current State behind a mutex; only the receiver loop
// calls Update.
type Store struct {
	mu    sync.RWMutex
	state State
}

// NewStore returns a Store with default state.
func NewStore() *Store {
	return &Store{state: State{Mode: "STABILIZE"}}
}

// Snapshot returns a copy of the current telemetry state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Reset restores the default state, called when a session disconnects.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{Mode: "STABILIZE"}
}

// Update dispatches a single inbound message into the telemetry state, then
// refreshes Mode from the link's current flight mode name.
func (s *Store) Update(msg message.Message, link FlightModeNamer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch m := msg.(type) {
	case *ardupilotmega.MessageLocalPositionNed:
		s.state.Position = Position{X: float64(m.X), Y: float64(m.Y), Z: float64(m.Z)}

	case *ardupilotmega.MessageNavControllerOutput:
		s.state.WaypointDistance = float64(m.WpDist)

	case *ardupilotmega.MessageBatteryStatus:
		if m.BatteryRemaining >= 0 {
			s.state.BatteryLevel = int32(m.BatteryRemaining)
		}

	case *ardupilotmega.MessageSysStatus:
		// Second source for battery_level, for firmware that doesn't send
		// BATTERY_STATUS. Applied on every SYS_STATUS, so when both arrive
		// the most recent one wins.
		s.state.BatteryLevel = int32(m.BatteryRemaining)

	case *ardupilotmega.MessageHeartbeat:
		if m.Type == ardupilotmega.MAV_TYPE_QUADROTOR {
			s.state.Armed = (m.BaseMode & ardupilotmega.MAV_MODE_FLAG_SAFETY_ARMED) != 0
			s.state.BaseMode = BaseModeFlags{
				Stabilize:   (m.BaseMode & ardupilotmega.MAV_MODE_FLAG_STABILIZE_ENABLED) != 0,
				Auto:        (m.BaseMode & ardupilotmega.MAV_MODE_FLAG_AUTO_ENABLED) != 0,
				ManualInput: (m.BaseMode & ardupilotmega.MAV_MODE_FLAG_MANUAL_INPUT_ENABLED) != 0,
			}
		}

	case *ardupilotmega.MessageVfrHud:
		s.state.VFR = VFR{
			Airspeed:    float64(m.Airspeed),
			Groundspeed: float64(m.Groundspeed),
			Heading:     float64(m.Heading),
			Throttle:    float64(m.Throttle),
			Altitude:    float64(m.Alt),
			Climb:       float64(m.Climb),
		}

	case *ardupilotmega.MessageAttitude:
		s.state.Attitude = Attitude{Roll: float64(m.Roll), Pitch: float64(m.Pitch), Yaw: float64(m.Yaw)}

	case *ardupilotmega.MessageEkfStatusReport:
		s.state.EKF = EKF{
			VelocityVariance: float64(m.VelocityVariance),
			PosHorizVariance: float64(m.PosHorizVariance),
			PosVertVariance:  float64(m.PosVertVariance),
			CompassVariance:  float64(m.CompassVariance),
		}
		s.state.EkfOK = (uint32(m.Flags) & ekfOKMask) == ekfOKMask

	default:
		// Unknown types are ignored.
	}

	s.state.Mode = link.FlightModeName()
}
