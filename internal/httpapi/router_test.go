package httpapi

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/skybridge-systems/mavsessiond/internal/config"
	"github.com/skybridge-systems/mavsessiond/internal/flightlog"
	"github.com/skybridge-systems/mavsessiond/internal/logging"
	"github.com/skybridge-systems/mavsessiond/internal/sessionmanager"
)

func testRouter(t *testing.T) (*Router, config.Config) {
	t.Helper()
	cfg := *config.Default()
	cfg.FlightLog.Directory = t.TempDir()
	cfg.Session.ParamIndexTimeout = 5 * time.Millisecond
	cfg.Session.HeartbeatTimeout = 5 * time.Millisecond

	logger := logging.New("test", logging.ERROR)
	manager := sessionmanager.New(cfg, logger)
	return New(manager, cfg, logger, nil), cfg
}

func TestHealthz(t *testing.T) {
	rt, _ := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	rt.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestArmOnUnknownSessionReturns404(t *testing.T) {
	rt, _ := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/udp:127.0.0.1:14550/arm", nil)
	rec := httptest.NewRecorder()

	rt.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "DroneNotConnected") {
		t.Errorf("body = %q, want DroneNotConnected type", rec.Body.String())
	}
}

func TestConnectWithoutHeartbeatIsServerError(t *testing.T) {
	rt, _ := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/connect/udp:127.0.0.1:14599", nil)
	rec := httptest.NewRecorder()

	rt.Handler().ServeHTTP(rec, req)

	// No heartbeat ever arrives on this address, so Connect fails the
	// heartbeat wait. Unlike command endpoints, connect only answers 400
	// for an already-connected session; everything else is a 500.
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestConnectTranslatesPlusToSlash(t *testing.T) {
	rt, _ := testRouter(t)
	// "serial:+dev+ttyUSB0" should become "serial:/dev/ttyUSB0" before it
	// reaches the MAVLink layer; connecting to a nonexistent serial device
	// fails, and any echoed connection string must be the translated form.
	req := httptest.NewRequest(http.MethodGet, "/connect/serial:+dev+ttyUSB0", nil)
	rec := httptest.NewRecorder()

	rt.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if strings.Contains(body, "+dev+ttyUSB0") {
		t.Errorf("connection string was not translated, body = %q", body)
	}
}

func TestTakeoffInvalidHeightReturnsValueError(t *testing.T) {
	rt, _ := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/udp:127.0.0.1:14550/takeoff/not-a-number", nil)
	rec := httptest.NewRecorder()

	rt.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ValueError") {
		t.Errorf("body = %q, want ValueError type", rec.Body.String())
	}
}

func TestDronesInfoEmptyRegistry(t *testing.T) {
	rt, _ := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/drones_info", nil)
	rec := httptest.NewRecorder()

	rt.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "{}" {
		t.Errorf("body = %q, want {}", rec.Body.String())
	}
}

func TestListLogsAndReadAndDelete(t *testing.T) {
	rt, cfg := testRouter(t)

	logger := logging.New("test", logging.ERROR)
	fl, err := flightlog.New(cfg.FlightLog.Directory, "udp:127.0.0.1:14550", "44444444-4444-4444-4444-444444444444", false, logger)
	if err != nil {
		t.Fatalf("flightlog.New: %v", err)
	}
	fl.Close()
	name := filepath.Base(fl.Path())

	listReq := httptest.NewRequest(http.MethodGet, "/logs", nil)
	listRec := httptest.NewRecorder()
	rt.Handler().ServeHTTP(listRec, listReq)
	if listRec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", listRec.Code)
	}
	if !strings.Contains(listRec.Body.String(), name) {
		t.Errorf("list body missing %s: %s", name, listRec.Body.String())
	}

	readReq := httptest.NewRequest(http.MethodGet, "/logs/"+name, nil)
	readRec := httptest.NewRecorder()
	rt.Handler().ServeHTTP(readRec, readReq)
	if readRec.Code != http.StatusOK {
		t.Fatalf("read status = %d, want 200", readRec.Code)
	}

	delReq := httptest.NewRequest(http.MethodDelete, "/logs/"+name, nil)
	delRec := httptest.NewRecorder()
	rt.Handler().ServeHTTP(delRec, delReq)
	if delRec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", delRec.Code)
	}

	if _, err := os.Stat(filepath.Join(cfg.FlightLog.Directory, name)); !os.IsNotExist(err) {
		t.Error("expected log file to be removed")
	}
}

func TestReadUnknownLogReturns404(t *testing.T) {
	rt, _ := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/logs/does-not-exist.jsonl", nil)
	rec := httptest.NewRecorder()

	rt.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
