package params

import (
	"testing"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/ardupilotmega"
)

func TestStoreUpdateAndGet(t *testing.T) {
	store := NewStore()

	if store.Count() != 0 {
		t.Fatalf("expected empty store, got %d", store.Count())
	}

	store.Update(&ardupilotmega.MessageParamValue{
		ParamId:    "RTL_ALT",
		ParamValue: 1500,
		ParamIndex: 0,
		ParamCount: 2,
	})

	if store.Count() != 1 {
		t.Fatalf("expected 1 parameter, got %d", store.Count())
	}

	v, err := store.Get("RTL_ALT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 1500 {
		t.Errorf("RTL_ALT = %v, want 1500", v)
	}
}

func TestStoreGetUnknown(t *testing.T) {
	store := NewStore()

	_, err := store.Get("MISSING")
	if err == nil {
		t.Fatal("expected KeyNotFoundError")
	}
	if kerr, ok := err.(*KeyNotFoundError); !ok || kerr.Kind() != "KeyNotFound" {
		t.Errorf("expected KeyNotFoundError, got %T", err)
	}
}

func TestStoreUpdateIgnoresOtherMessages(t *testing.T) {
	store := NewStore()

	store.Update(&ardupilotmega.MessageHeartbeat{})

	if store.Count() != 0 {
		t.Errorf("expected non-PARAM_VALUE messages to be ignored, got count %d", store.Count())
	}
}

func TestWaitQuiescenceReturnsAfterIdlePeriod(t *testing.T) {
	store := NewStore()

	start := time.Now()
	store.WaitQuiescence(20 * time.Millisecond)
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("WaitQuiescence returned after %v, want at least 20ms", elapsed)
	}
}

func TestWaitQuiescenceResetsOnNewParameter(t *testing.T) {
	store := NewStore()

	go func() {
		time.Sleep(10 * time.Millisecond)
		store.Update(&ardupilotmega.MessageParamValue{ParamId: "NEW_PARAM", ParamValue: 1})
	}()

	start := time.Now()
	store.WaitQuiescence(20 * time.Millisecond)
	elapsed := time.Since(start)

	// The reset pushes total wait past the idle window alone (20ms), since
	// the clock restarts ~10ms in.
	if elapsed < 25*time.Millisecond {
		t.Errorf("WaitQuiescence returned after %v, expected the idle window to restart on the update", elapsed)
	}
}

func TestWaitQuiescenceIgnoresUpdateToExistingKey(t *testing.T) {
	store := NewStore()
	store.Update(&ardupilotmega.MessageParamValue{ParamId: "EXISTING", ParamValue: 1})

	go func() {
		time.Sleep(5 * time.Millisecond)
		// Re-setting an already-known key does not grow the store, so this
		// must not reset the idle timer.
		store.Update(&ardupilotmega.MessageParamValue{ParamId: "EXISTING", ParamValue: 2})
	}()

	start := time.Now()
	store.WaitQuiescence(20 * time.Millisecond)
	elapsed := time.Since(start)

	if elapsed > 35*time.Millisecond {
		t.Errorf("WaitQuiescence took %v, expected ~20ms since re-setting an existing key shouldn't reset the timer", elapsed)
	}
}

func TestStoreGetAllReturnsCopy(t *testing.T) {
	store := NewStore()
	store.Update(&ardupilotmega.MessageParamValue{ParamId: "A", ParamValue: 1})

	all := store.GetAll()
	all["A"] = 99

	v, _ := store.Get("A")
	if v != 1 {
		t.Errorf("GetAll mutation leaked into store: got %v, want 1", v)
	}
}
