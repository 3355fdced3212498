package params

import (
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/ardupilotmega"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
)

// Link is the subset of the MAVLink adapter the retrieval algorithm drives.
type Link interface {
	ParamRequestList() error
	ParamRequestRead(index int16) error
	Recv() (message.Message, bool)
}

// RetrieveAll runs the full parameter retrieval algorithm against link,
// populating store, and returns once the vehicle's reported parameter count
// has been satisfied (best-effort for any indices never observed).
//
// This runs synchronously on the connecting caller's goroutine, before the
// receiver loop begins servicing the session, so it calls link.Recv()
// directly rather than going through the session's shared receiver.
func RetrieveAll(link Link, store *Store, indexTimeout time.Duration) error {
	if err := link.ParamRequestList(); err != nil {
		return err
	}

	observed := make(map[uint16]bool)
	paramCount := uint16(0)

	// Phase 1: drain PARAM_VALUE as they stream in, until a receive times out.
	for {
		msg, ok := pollDeadline(link, time.Now().Add(indexTimeout))
		if !ok {
			break
		}
		pv, ok := msg.(*ardupilotmega.MessageParamValue)
		if !ok {
			continue
		}
		store.Update(pv)
		observed[pv.ParamIndex] = true
		if pv.ParamCount > paramCount {
			paramCount = pv.ParamCount
		}
	}

	// Phase 2: fill any gaps by index, best-effort. Unrelated traffic may
	// interleave with the reply, so keep reading until the requested index
	// shows up or its window closes.
	for i := uint16(0); i < paramCount; i++ {
		if observed[i] {
			continue
		}
		if err := link.ParamRequestRead(int16(i)); err != nil {
			continue
		}
		deadline := time.Now().Add(indexTimeout)
		for !observed[i] {
			msg, ok := pollDeadline(link, deadline)
			if !ok {
				break
			}
			if pv, ok := msg.(*ardupilotmega.MessageParamValue); ok {
				store.Update(pv)
				observed[pv.ParamIndex] = true
			}
		}
	}

	return nil
}

// pollDeadline polls link.Recv() until it returns a message or deadline passes.
func pollDeadline(link Link, deadline time.Time) (message.Message, bool) {
	for {
		if msg, ok := link.Recv(); ok {
			return msg, true
		}
		if time.Now().After(deadline) {
			return nil, false
		}
		time.Sleep(time.Millisecond)
	}
}
