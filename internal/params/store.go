// Package params implements the Parameter Store: a cache of the vehicle's
// named parameters, populated by PARAM_VALUE messages and the full
// retrieval algorithm run once at connect.
package params

import (
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/ardupilotmega"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
)

// KeyNotFoundError is returned by Get for an unknown parameter id.
type KeyNotFoundError struct {
	ID string
}

func (e *KeyNotFoundError) Error() string { return "parameter not found: " + e.ID }

func (e *KeyNotFoundError) Kind() string { return "KeyNotFound" }

// Store holds the current set of known parameter values, keyed by id. Only
// the receiver loop mutates it via Update.
type Store struct {
	mu      sync.RWMutex
	values  map[string]float32
	changed chan struct{} // signaled (non-blocking) when an Update adds a new parameter id
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		values:  make(map[string]float32),
		changed: make(chan struct{}, 1),
	}
}

// Update applies a PARAM_VALUE message, if that's what msg is. Any other
// message type is a no-op.
func (s *Store) Update(msg message.Message) {
	pv, ok := msg.(*ardupilotmega.MessageParamValue)
	if !ok {
		return
	}
	s.mu.Lock()
	before := len(s.values)
	s.values[pv.ParamId] = pv.ParamValue
	grew := len(s.values) > before
	s.mu.Unlock()

	if !grew {
		return
	}
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// WaitQuiescence blocks until idle has elapsed with no intervening increase
// in the store's parameter count, resetting its idle window on every such
// increase observed in the meantime.
func (s *Store) WaitQuiescence(idle time.Duration) {
	select {
	case <-s.changed:
	default:
	}

	timer := time.NewTimer(idle)
	defer timer.Stop()
	for {
		select {
		case <-s.changed:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(idle)
		case <-timer.C:
			return
		}
	}
}

// Clear empties the store, called when a session disconnects so a later
// reconnect starts its retrieval from scratch.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]float32)
}

// Count returns the number of known parameters.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Get returns a single parameter's value, or KeyNotFoundError.
func (s *Store) Get(id string) (float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[id]
	if !ok {
		return 0, &KeyNotFoundError{ID: id}
	}
	return v, nil
}

// GetAll returns a copy of the full parameter map.
func (s *Store) GetAll() map[string]float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float32, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
