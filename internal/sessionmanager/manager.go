// Package sessionmanager implements the process-wide registry of sessions
// and the single high-frequency receiver goroutine that demultiplexes
// inbound MAVLink traffic across all of them.
package sessionmanager

import (
	"errors"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/skybridge-systems/mavsessiond/internal/config"
	"github.com/skybridge-systems/mavsessiond/internal/logging"
	"github.com/skybridge-systems/mavsessiond/internal/mavlink"
	"github.com/skybridge-systems/mavsessiond/internal/session"
)

// dispatchable is the subset of *session.Session the receiver loop needs;
// defined here so the loop itself is testable against fakes.
type dispatchable interface {
	ConnectionString() string
	IsConnected() bool
	ParamCount() int
	Link() session.LinkAdapter
	Dispatch(msg message.Message)
}

// Manager is the singleton session registry plus receiver loop.
type Manager struct {
	cfg    config.Config
	logger *logging.Logger

	registryMu sync.RWMutex
	sessions   map[string]*session.Session

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Manager. Call Start to begin the receiver loop.
func New(cfg config.Config, logger *logging.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*session.Session),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// openMavlinkLink adapts mavlink.Open to session.OpenFunc.
func openMavlinkLink(connString string, mavCfg config.MAVLinkConfig, logger *logging.Logger) (session.LinkAdapter, error) {
	return mavlink.Open(connString, mavCfg, logger)
}

// Start spawns the receiver goroutine. Safe to call once.
func (m *Manager) Start() {
	go m.receiverLoop()
}

// Shutdown signals the receiver goroutine to stop and waits for it to exit.
func (m *Manager) Shutdown() {
	close(m.stopCh)
	<-m.doneCh
}

// Get returns the session for connString, if any.
func (m *Manager) Get(connString string) (*session.Session, bool) {
	m.registryMu.RLock()
	defer m.registryMu.RUnlock()
	s, ok := m.sessions[connString]
	return s, ok
}

// ConnectDrone connects (creating the session if absent) and registers it.
// On failure the session is not added (or is removed if it already existed
// as a fresh unconnected entry), per the connect-time rollback rule.
func (m *Manager) ConnectDrone(connString string) error {
	m.registryMu.Lock()
	existing, ok := m.sessions[connString]
	if ok && existing.IsConnected() {
		m.registryMu.Unlock()
		return &sessionAlreadyConnectedError{}
	}
	if !ok {
		existing = session.New(connString, m.cfg, openMavlinkLink, m.logger)
		m.sessions[connString] = existing
	}
	m.registryMu.Unlock()

	if err := existing.Connect(); err != nil {
		// A concurrent caller may have won the race and connected this
		// session first; only a genuinely failed connect rolls the entry
		// back out of the registry.
		var already *session.DroneAlreadyConnectedError
		if !errors.As(err, &already) {
			m.registryMu.Lock()
			delete(m.sessions, connString)
			m.registryMu.Unlock()
		}
		return err
	}

	return nil
}

// DisconnectDrone disconnects an existing session and removes it from the
// registry; a later connect for the same connection string starts a fresh
// session with a new identity.
func (m *Manager) DisconnectDrone(connString string) error {
	s, ok := m.Get(connString)
	if !ok {
		return &sessionNotFoundError{}
	}
	if err := s.Disconnect(); err != nil {
		return err
	}

	m.registryMu.Lock()
	delete(m.sessions, connString)
	m.registryMu.Unlock()
	return nil
}

// AllInfo returns a snapshot of every registered session's drone info.
func (m *Manager) AllInfo() map[string]session.DroneInfo {
	m.registryMu.RLock()
	snapshot := make([]*session.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		snapshot = append(snapshot, s)
	}
	m.registryMu.RUnlock()

	out := make(map[string]session.DroneInfo, len(snapshot))
	for _, s := range snapshot {
		out[s.ConnectionString()] = s.GetDroneInfo()
	}
	return out
}

// receiverLoop is the single high-frequency goroutine servicing every
// connected session's inbound MAVLink traffic.
func (m *Manager) receiverLoop() {
	defer close(m.doneCh)

	interval := m.cfg.Session.ReadInterval()

	for {
		select {
		case <-m.stopCh:
			return
		default:
		}

		time.Sleep(interval)

		m.registryMu.RLock()
		snapshot := make([]dispatchable, 0, len(m.sessions))
		for _, s := range m.sessions {
			snapshot = append(snapshot, s)
		}
		m.registryMu.RUnlock()

		for _, s := range snapshot {
			if !s.IsConnected() || s.ParamCount() == 0 {
				continue
			}
			link := s.Link()
			if link == nil {
				continue
			}
			if msg, ok := link.Recv(); ok {
				s.Dispatch(msg)
			}
		}
	}
}
