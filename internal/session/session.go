// Package session implements the Session state machine: the per-vehicle
// connect/command/disconnect lifecycle sitting on top of one Link Adapter,
// Parameter Store, Telemetry State, and Flight Logger.
package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/ardupilotmega"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/google/uuid"

	"github.com/skybridge-systems/mavsessiond/internal/config"
	"github.com/skybridge-systems/mavsessiond/internal/flightlog"
	"github.com/skybridge-systems/mavsessiond/internal/logging"
	"github.com/skybridge-systems/mavsessiond/internal/params"
	"github.com/skybridge-systems/mavsessiond/internal/telemetry"
)

// LinkAdapter is the subset of *mavlink.Link a Session drives. Defined here
// so tests can substitute a fake transport.
type LinkAdapter interface {
	WaitHeartbeat(timeout time.Duration) (uint8, error)
	Recv() (message.Message, bool)
	SendCommandLong(cmd common.MAV_CMD, params [7]float32) error
	SetMode(modeID uint32) error
	ParamSet(id string, value float32) error
	ParamRequestList() error
	ParamRequestRead(index int16) error
	ModeMapping() map[string]uint32
	FlightModeName() string
	Close() error
}

// OpenFunc constructs a LinkAdapter for a connection string. Overridable in
// tests; production code wires *mavlink.Open.
type OpenFunc func(connString string, mavCfg config.MAVLinkConfig, logger *logging.Logger) (LinkAdapter, error)

// DroneInfo is the externally visible telemetry snapshot plus identifying
// fields, returned by GetDroneInfo and enumerated by the session manager's
// AllInfo.
type DroneInfo struct {
	ConnectionString string          `json:"connection_string"`
	SessionID        string          `json:"session_id"`
	Connected        bool            `json:"connected"`
	Telemetry        telemetry.State `json:"telemetry"`
}

// Session is one vehicle's connect/command/disconnect state machine.
//
// Two locks with distinct roles: mu serializes command operations (one
// command at a time per session, held across ACK waits) and is never taken
// by the receiver loop; stateMu guards the connection state both sides
// read, and is only ever held briefly.
type Session struct {
	connString string
	cfg        config.SessionConfig
	mavCfg     config.MAVLinkConfig
	openFn     OpenFunc
	logger     *logging.Logger
	logDir     string
	logGzip    bool

	mu sync.Mutex

	stateMu            sync.RWMutex
	link               LinkAdapter
	connected          bool
	id                 string
	flightLogger       *flightlog.Logger
	lastTelemetryLogTS time.Time

	telemetryStore *telemetry.Store
	paramStore     *params.Store

	ackArm     *ackSlot
	ackTakeoff *ackSlot
	ackSetMode *ackSlot
}

// New constructs an idle, disconnected Session for connString.
func New(connString string, cfg config.Config, openFn OpenFunc, logger *logging.Logger) *Session {
	return &Session{
		connString:     connString,
		cfg:            cfg.Session,
		mavCfg:         cfg.MAVLink,
		openFn:         openFn,
		logger:         logger,
		logDir:         cfg.FlightLog.Directory,
		logGzip:        cfg.FlightLog.Gzip,
		telemetryStore: telemetry.NewStore(),
		paramStore:     params.NewStore(),
		ackArm:         newAckSlot(),
		ackTakeoff:     newAckSlot(),
		ackSetMode:     newAckSlot(),
	}
}

// ConnectionString returns the session's key.
func (s *Session) ConnectionString() string { return s.connString }

// IsConnected reports whether the session currently holds a live link.
func (s *Session) IsConnected() bool {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.connected
}

// connState snapshots the fields commands need under the state lock.
func (s *Session) connState() (LinkAdapter, *flightlog.Logger, bool) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.link, s.flightLogger, s.connected
}

// Connect opens the Link Adapter, waits for a heartbeat, runs full parameter
// retrieval, and opens the Flight Logger. On any failure the session is left
// fully disconnected so it can be retried or removed from the registry.
func (s *Session) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.IsConnected() {
		return &DroneAlreadyConnectedError{}
	}

	link, err := s.openFn(s.connString, s.mavCfg, s.logger)
	if err != nil {
		return fmt.Errorf("open link: %w", err)
	}

	if _, err := link.WaitHeartbeat(s.cfg.HeartbeatTimeout); err != nil {
		link.Close()
		return &AckTimeoutError{Msg: fmt.Sprintf("no heartbeat from %s within %s", s.connString, s.cfg.HeartbeatTimeout)}
	}

	if err := params.RetrieveAll(link, s.paramStore, s.cfg.ParamIndexTimeout); err != nil {
		link.Close()
		return fmt.Errorf("parameter retrieval: %w", err)
	}

	id := uuid.NewString()

	fl, err := flightlog.New(s.logDir, s.connString, id, s.logGzip, s.logger)
	if err != nil {
		link.Close()
		return fmt.Errorf("open flight logger: %w", err)
	}

	fl.Write(flightlog.EventConnectionConnected, map[string]interface{}{"connection_string": s.connString})

	s.stateMu.Lock()
	s.link = link
	s.flightLogger = fl
	s.id = id
	s.connected = true
	s.lastTelemetryLogTS = time.Time{}
	s.stateMu.Unlock()

	return nil
}

// Disconnect tears the session back down to Disconnected, clearing the
// telemetry and parameter state so a reconnect starts from scratch.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stateMu.Lock()
	if !s.connected {
		s.stateMu.Unlock()
		return &DroneNotConnectedError{}
	}
	link := s.link
	fl := s.flightLogger
	s.link = nil
	s.flightLogger = nil
	s.connected = false
	s.stateMu.Unlock()

	fl.Write(flightlog.EventConnectionDisconnected, nil)
	fl.Close()
	link.Close()

	s.paramStore.Clear()
	s.telemetryStore.Reset()

	return nil
}

// Arm issues MAV_CMD_COMPONENT_ARM_DISARM(1) and waits for its ACK.
func (s *Session) Arm() error {
	return s.armDisarm(1, "ARM", "arming", "Arming failed")
}

// Disarm issues MAV_CMD_COMPONENT_ARM_DISARM(0) and waits for its ACK.
func (s *Session) Disarm() error {
	return s.armDisarm(0, "DISARM", "disarming", "Disarming failed")
}

func (s *Session) armDisarm(value float32, name, op, failMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, fl, connected := s.connState()
	if !connected {
		return &DroneNotConnectedError{}
	}

	s.ackArm.reset()
	if err := link.SendCommandLong(common.MAV_CMD_COMPONENT_ARM_DISARM, [7]float32{value, 0, 0, 0, 0, 0, 0}); err != nil {
		s.logCommand(fl, name, false, err)
		return err
	}

	if err := s.waitAck(s.ackArm, op, failMsg); err != nil {
		s.logCommand(fl, name, false, err)
		return err
	}

	s.logCommand(fl, name, true, nil)
	return nil
}

// Takeoff issues MAV_CMD_NAV_TAKEOFF and waits for its ACK.
func (s *Session) Takeoff(height float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, fl, connected := s.connState()
	if !connected {
		return &DroneNotConnectedError{}
	}

	s.ackTakeoff.reset()
	if err := link.SendCommandLong(common.MAV_CMD_NAV_TAKEOFF, [7]float32{0, 0, 0, 0, 0, 0, height}); err != nil {
		s.logCommand(fl, "TAKEOFF", false, err)
		return err
	}

	if err := s.waitAck(s.ackTakeoff, "takeoff", "Takeoff failed"); err != nil {
		s.logCommand(fl, "TAKEOFF", false, err)
		return err
	}

	s.logCommand(fl, "TAKEOFF", true, nil)
	return nil
}

// Land sets mode LAND, fire-and-forget (no ACK wait).
func (s *Session) Land() error {
	return s.setModeFireAndForget("LAND")
}

// ReturnToLaunch sets mode RTL, fire-and-forget (no ACK wait).
func (s *Session) ReturnToLaunch() error {
	return s.setModeFireAndForget("RTL")
}

func (s *Session) setModeFireAndForget(mode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, fl, connected := s.connState()
	if !connected {
		return &DroneNotConnectedError{}
	}

	modeID, ok := link.ModeMapping()[mode]
	if !ok {
		return &ValueError{Msg: fmt.Sprintf("Unknown mode '%s'", mode)}
	}

	if err := link.SetMode(modeID); err != nil {
		s.logCommand(fl, mode, false, err)
		return err
	}
	s.logCommand(fl, mode, true, nil)
	return nil
}

// SetMode looks mode up in the vehicle's mode table and waits for its ACK.
func (s *Session) SetMode(mode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, fl, connected := s.connState()
	if !connected {
		return &DroneNotConnectedError{}
	}

	mode = strings.ToUpper(mode)
	modeID, ok := link.ModeMapping()[mode]
	if !ok {
		return &ValueError{Msg: fmt.Sprintf("Unknown mode '%s'", mode)}
	}

	s.ackSetMode.reset()
	if err := link.SetMode(modeID); err != nil {
		s.logCommand(fl, "SET_MODE", false, err)
		return err
	}

	if err := s.waitAck(s.ackSetMode, "set_mode", fmt.Sprintf("failed setting %s mode", mode)); err != nil {
		s.logCommand(fl, "SET_MODE", false, err)
		return err
	}

	fl.Write(flightlog.EventCommand, map[string]interface{}{
		"name": "SET_MODE", "success": true, "mode": mode,
	})
	fl.Write(flightlog.EventModeChange, map[string]interface{}{"mode": mode})
	return nil
}

// SetParameter writes a parameter and waits for the parameter store to
// quiesce (no count increase for ParamQuiescence) before returning.
func (s *Session) SetParameter(id string, value float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, fl, connected := s.connState()
	if !connected {
		return &DroneNotConnectedError{}
	}

	oldValue, _ := s.paramStore.Get(id)

	if err := link.ParamSet(id, value); err != nil {
		return err
	}

	s.paramStore.WaitQuiescence(s.cfg.ParamQuiescence)

	newValue, _ := s.paramStore.Get(id)
	fl.Write(flightlog.EventParameterChange, map[string]interface{}{
		"id":        id,
		"old_value": oldValue,
		"new_value": newValue,
	})

	return nil
}

// GetAvailableModes returns the vehicle's mode name table.
func (s *Session) GetAvailableModes() ([]string, error) {
	link, _, connected := s.connState()
	if !connected {
		return nil, &DroneNotConnectedError{}
	}

	mapping := link.ModeMapping()
	modes := make([]string, 0, len(mapping))
	for name := range mapping {
		modes = append(modes, name)
	}
	return modes, nil
}

// GetDroneInfo returns the current telemetry snapshot plus identity fields.
func (s *Session) GetDroneInfo() DroneInfo {
	s.stateMu.RLock()
	connected := s.connected
	id := s.id
	s.stateMu.RUnlock()

	return DroneInfo{
		ConnectionString: s.connString,
		SessionID:        id,
		Connected:        connected,
		Telemetry:        s.telemetryStore.Snapshot(),
	}
}

// GetAllParameters returns the full parameter map.
func (s *Session) GetAllParameters() (map[string]float32, error) {
	if !s.IsConnected() {
		return nil, &DroneNotConnectedError{}
	}
	return s.paramStore.GetAll(), nil
}

// waitAck blocks for the ACK timeout, translating a terminal result into the
// session's error taxonomy. op names the operation for the timeout message;
// failMsg is used verbatim for a Denied/Failed terminal result.
func (s *Session) waitAck(slot *ackSlot, op, failMsg string) error {
	select {
	case result := <-slot.ch:
		switch result {
		case AckAccepted:
			return nil
		default:
			return &CommandFailedError{Msg: failMsg}
		}
	case <-time.After(s.cfg.AckTimeout):
		return ackTimeout(op)
	}
}

// logCommand records a COMMAND entry if the flight logger is present.
func (s *Session) logCommand(fl *flightlog.Logger, name string, success bool, cmdErr error) {
	if fl == nil {
		return
	}
	data := map[string]interface{}{"name": name, "success": success}
	if cmdErr != nil {
		data["error"] = cmdErr.Error()
		if k, ok := cmdErr.(interface{ Kind() string }); ok {
			data["error_type"] = k.Kind()
		}
	}
	fl.Write(flightlog.EventCommand, data)
}

// --- Receiver-loop-facing methods, called only by the Session Manager ---

// Dispatch routes one inbound message into telemetry, parameters, and ACK
// slots, then maybe logs a rate-limited telemetry sample. Called only by
// the Session Manager's receiver goroutine; never takes the command mutex,
// so a caller blocked in an ACK wait cannot stall message delivery.
func (s *Session) Dispatch(msg message.Message) {
	s.stateMu.RLock()
	link := s.link
	s.stateMu.RUnlock()
	if link == nil {
		return
	}

	s.telemetryStore.Update(msg, link)
	s.paramStore.Update(msg)

	if ack, ok := msg.(*ardupilotmega.MessageCommandAck); ok {
		s.dispatchAck(ack)
	}

	s.maybeLogTelemetry(msg)
}

func (s *Session) dispatchAck(ack *ardupilotmega.MessageCommandAck) {
	var result AckResult
	switch ack.Result {
	case ardupilotmega.MAV_RESULT_ACCEPTED:
		result = AckAccepted
	case ardupilotmega.MAV_RESULT_FAILED:
		result = AckFailed
	default:
		result = AckDenied
	}

	switch ack.Command {
	case ardupilotmega.MAV_CMD_COMPONENT_ARM_DISARM:
		s.ackArm.signal(result)
	case ardupilotmega.MAV_CMD_NAV_TAKEOFF:
		s.ackTakeoff.signal(result)
	case ardupilotmega.MAV_CMD_DO_SET_MODE:
		s.ackSetMode.signal(result)
	}
}

func (s *Session) maybeLogTelemetry(msg message.Message) {
	switch msg.(type) {
	case *ardupilotmega.MessageLocalPositionNed,
		*ardupilotmega.MessageVfrHud,
		*ardupilotmega.MessageBatteryStatus,
		*ardupilotmega.MessageAttitude:
	default:
		return
	}

	now := time.Now()

	s.stateMu.Lock()
	fl := s.flightLogger
	if fl == nil || now.Sub(s.lastTelemetryLogTS) < s.cfg.TelemetryLogPeriod {
		s.stateMu.Unlock()
		return
	}
	s.lastTelemetryLogTS = now
	s.stateMu.Unlock()

	fl.Write(flightlog.EventTelemetry, s.telemetryStore.Snapshot())
}

// Link exposes the underlying Link Adapter for the Session Manager's
// receiver loop to poll. Returns nil if not connected.
func (s *Session) Link() LinkAdapter {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.link
}

// ParamCount reports the parameter store's size, used by the receiver
// loop's readiness guard.
func (s *Session) ParamCount() int {
	return s.paramStore.Count()
}
