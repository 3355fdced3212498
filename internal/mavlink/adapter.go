// Package mavlink adapts github.com/bluenviron/gomavlib/v3 into the
// poll-based Link contract the session layer expects: a non-blocking recv()
// fed by an internal drain goroutine, plus a small set of fire-and-forget
// command senders.
package mavlink

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/ardupilotmega"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/skybridge-systems/mavsessiond/internal/config"
	"github.com/skybridge-systems/mavsessiond/internal/logging"
)

// targetComponentID is MAV_COMP_ID_AUTOPILOT1, the component all commands
// and parameter requests are addressed to.
const targetComponentID = 1

// recvBufferSize bounds how many undrained inbound messages the adapter
// will hold before newest-message writes start dropping the oldest.
const recvBufferSize = 256

// Link is a single MAVLink connection to one vehicle.
type Link struct {
	node   *gomavlib.Node
	logger *logging.Logger

	sendMu sync.Mutex // serializes WriteMessageAll against concurrent command senders

	recvCh chan message.Message
	stopCh chan struct{}
	doneCh chan struct{}

	systemID   atomic.Uint32 // 0 until first heartbeat
	customMode atomic.Uint32
	lastHbUnix atomic.Int64
}

// Open parses a connection string and establishes a MAVLink node.
//
// Recognized forms: "udp:host:port", "tcp:host:port", "serial:/dev/ttyX:baud",
// or a bare path treated as a serial device using the configured default baud.
func Open(connString string, mavCfg config.MAVLinkConfig, logger *logging.Logger) (*Link, error) {
	endpoint, err := parseEndpoint(connString, mavCfg)
	if err != nil {
		return nil, fmt.Errorf("parse connection string %q: %w", connString, err)
	}

	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints:   []gomavlib.EndpointConf{endpoint},
		Dialect:     ardupilotmega.Dialect,
		OutVersion:  gomavlib.V2,
		OutSystemID: 255, // ground control station system ID
	})
	if err != nil {
		return nil, fmt.Errorf("create mavlink node: %w", err)
	}

	l := &Link{
		node:   node,
		logger: logger,
		recvCh: make(chan message.Message, recvBufferSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	go l.drain()

	return l, nil
}

// parseEndpoint maps a connection string onto a gomavlib endpoint.
func parseEndpoint(connString string, mavCfg config.MAVLinkConfig) (gomavlib.EndpointConf, error) {
	parts := strings.SplitN(connString, ":", 2)
	scheme := parts[0]

	switch scheme {
	case "udp":
		// udp: listens for a vehicle streaming to us, the usual SITL and
		// telemetry-radio arrangement.
		if len(parts) != 2 || parts[1] == "" {
			return nil, fmt.Errorf("udp connection string requires host:port")
		}
		return gomavlib.EndpointUDPServer{Address: parts[1]}, nil

	case "tcp":
		if len(parts) != 2 || parts[1] == "" {
			return nil, fmt.Errorf("tcp connection string requires host:port")
		}
		return gomavlib.EndpointTCPClient{Address: parts[1]}, nil

	case "serial":
		if len(parts) != 2 || parts[1] == "" {
			return nil, fmt.Errorf("serial connection string requires device[:baud]")
		}
		device, baud := splitSerialTarget(parts[1], mavCfg.DefaultBaudRate)
		return gomavlib.EndpointSerial{Device: device, Baud: baud}, nil

	default:
		// Bare path: treat the whole string as a serial device at the default baud.
		return gomavlib.EndpointSerial{Device: connString, Baud: mavCfg.DefaultBaudRate}, nil
	}
}

func splitSerialTarget(s string, defaultBaud int) (device string, baud int) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return s, defaultBaud
	}
	if b, err := strconv.Atoi(s[idx+1:]); err == nil {
		return s[:idx], b
	}
	return s, defaultBaud
}

// drain moves gomavlib's event channel into the buffered recv channel,
// tracking heartbeat/system-id/mode bookkeeping along the way so
// FlightModeName and SystemID are available without a caller round-trip.
func (l *Link) drain() {
	defer close(l.doneCh)

	for {
		select {
		case <-l.stopCh:
			return
		case evt, ok := <-l.node.Events():
			if !ok {
				return
			}
			frm, ok := evt.(*gomavlib.EventFrame)
			if !ok {
				continue
			}
			msg := frm.Message()

			if hb, ok := msg.(*ardupilotmega.MessageHeartbeat); ok {
				l.systemID.Store(uint32(frm.SystemID()))
				l.customMode.Store(hb.CustomMode)
				l.lastHbUnix.Store(time.Now().Unix())
			}

			select {
			case l.recvCh <- msg:
			default:
				// Drop the oldest pending message to make room; a slow consumer
				// should not be able to wedge the drain goroutine.
				select {
				case <-l.recvCh:
				default:
				}
				select {
				case l.recvCh <- msg:
				default:
				}
			}
		}
	}
}

// WaitHeartbeat blocks until a HEARTBEAT is observed or timeout elapses.
func (l *Link) WaitHeartbeat(timeout time.Duration) (uint8, error) {
	deadline := time.After(timeout)
	for {
		select {
		case msg := <-l.recvCh:
			if hb, ok := msg.(*ardupilotmega.MessageHeartbeat); ok {
				sysID := uint8(l.systemID.Load())
				l.customMode.Store(hb.CustomMode)
				return sysID, nil
			}
		case <-deadline:
			return 0, &TimeoutError{Op: "wait_heartbeat"}
		}
	}
}

// Recv is a non-blocking poll returning the next buffered message, if any.
func (l *Link) Recv() (message.Message, bool) {
	select {
	case msg := <-l.recvCh:
		return msg, true
	default:
		return nil, false
	}
}

// SystemID returns the vehicle's MAVLink system ID observed so far.
func (l *Link) SystemID() uint8 {
	return uint8(l.systemID.Load())
}

// FlightModeName resolves the last observed custom_mode against the
// ArduCopter mode table.
func (l *Link) FlightModeName() string {
	return modeName(l.customMode.Load())
}

// ModeMapping returns the name→id table used by set_mode / get_available_modes.
func (l *Link) ModeMapping() map[string]uint32 {
	return ModeMapping()
}

func (l *Link) write(op string, msg message.Message) error {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()

	if err := l.node.WriteMessageAll(msg); err != nil {
		return &SendError{Op: op, Err: err}
	}
	return nil
}

// SendCommandLong issues a COMMAND_LONG with the given command id and up to
// seven float parameters.
func (l *Link) SendCommandLong(cmd common.MAV_CMD, params [7]float32) error {
	return l.write("send_command_long", &ardupilotmega.MessageCommandLong{
		TargetSystem:    l.SystemID(),
		TargetComponent: targetComponentID,
		Command:         cmd,
		Confirmation:    0,
		Param1:          params[0],
		Param2:          params[1],
		Param3:          params[2],
		Param4:          params[3],
		Param5:          params[4],
		Param6:          params[5],
		Param7:          params[6],
	})
}

// SetMode sends MAV_CMD_DO_SET_MODE with the given ArduCopter custom_mode id.
func (l *Link) SetMode(modeID uint32) error {
	return l.write("set_mode", &ardupilotmega.MessageCommandLong{
		TargetSystem:    l.SystemID(),
		TargetComponent: targetComponentID,
		Command:         common.MAV_CMD_DO_SET_MODE,
		Param1:          float32(ardupilotmega.MAV_MODE_FLAG_CUSTOM_MODE_ENABLED),
		Param2:          float32(modeID),
	})
}

// ParamSet sends a PARAM_SET for a float-valued parameter.
func (l *Link) ParamSet(id string, value float32) error {
	return l.write("param_set", &ardupilotmega.MessageParamSet{
		TargetSystem:    l.SystemID(),
		TargetComponent: targetComponentID,
		ParamId:         id,
		ParamValue:      value,
		ParamType:       ardupilotmega.MAV_PARAM_TYPE_REAL32,
	})
}

// ParamRequestList requests the vehicle stream its full parameter set.
func (l *Link) ParamRequestList() error {
	return l.write("param_request_list", &ardupilotmega.MessageParamRequestList{
		TargetSystem:    l.SystemID(),
		TargetComponent: targetComponentID,
	})
}

// ParamRequestRead requests a single parameter by index.
func (l *Link) ParamRequestRead(index int16) error {
	return l.write("param_request_read", &ardupilotmega.MessageParamRequestRead{
		TargetSystem:    l.SystemID(),
		TargetComponent: targetComponentID,
		ParamIndex:      index,
		ParamId:         "",
	})
}

// Close stops the drain goroutine and closes the underlying node.
func (l *Link) Close() error {
	close(l.stopCh)
	select {
	case <-l.doneCh:
	case <-time.After(2 * time.Second):
		l.logger.Warnf("mavlink: drain goroutine stop timed out")
	}
	l.node.Close()
	return nil
}
